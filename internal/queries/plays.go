package queries

import (
	"context"

	"github.com/RahulBansal123/audius-protocol/internal/models"
)

// PlayStore is the slice of the repository the play queries need.
type PlayStore interface {
	GetPlaysBySignature(ctx context.Context, signature string) ([]models.Play, error)
	GetRecentlyListenedTrackIDs(ctx context.Context, limit int) ([]int64, error)
	GetTrackPlayCounts(ctx context.Context, trackIDs []int64) (map[int64]int64, error)
}

// GetPlay returns the plays recorded for an on-chain signature.
func GetPlay(ctx context.Context, store PlayStore, signature string) ([]models.Play, error) {
	return store.GetPlaysBySignature(ctx, signature)
}

// GetTrackListenMilestones returns all-time play counts for the n most
// recently listened-to tracks.
func GetTrackListenMilestones(ctx context.Context, store PlayStore, limit int) (map[int64]int64, error) {
	trackIDs, err := store.GetRecentlyListenedTrackIDs(ctx, limit)
	if err != nil {
		return nil, err
	}
	if len(trackIDs) == 0 {
		return map[int64]int64{}, nil
	}
	return store.GetTrackPlayCounts(ctx, trackIDs)
}

package repository

import (
	"context"

	"github.com/RahulBansal123/audius-protocol/internal/models"
)

// GetPlaysBySignature returns plays recorded for an on-chain signature.
func (r *Repository) GetPlaysBySignature(ctx context.Context, signature string) ([]models.Play, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, user_id, play_item_id, COALESCE(signature, ''), created_at
		FROM plays
		WHERE signature = $1`, signature)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanPlays(rows)
}

// GetPlaysAfter returns up to limit plays with id greater than afterID,
// in insertion order. Used by the listening-history fold.
func (r *Repository) GetPlaysAfter(ctx context.Context, afterID int64, limit int) ([]models.Play, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, user_id, play_item_id, COALESCE(signature, ''), created_at
		FROM plays
		WHERE id > $1
		ORDER BY id ASC
		LIMIT $2`, afterID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanPlays(rows)
}

// GetRecentlyListenedTrackIDs returns the distinct track ids of the n most
// recently played tracks, newest first.
func (r *Repository) GetRecentlyListenedTrackIDs(ctx context.Context, limit int) ([]int64, error) {
	rows, err := r.db.Query(ctx, `
		SELECT play_item_id
		FROM plays
		GROUP BY play_item_id
		ORDER BY MAX(created_at) DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var trackIDs []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		trackIDs = append(trackIDs, id)
	}
	return trackIDs, rows.Err()
}

type playRows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func scanPlays(rows playRows) ([]models.Play, error) {
	var plays []models.Play
	for rows.Next() {
		var p models.Play
		if err := rows.Scan(&p.ID, &p.UserID, &p.PlayItemID, &p.Signature, &p.CreatedAt); err != nil {
			return nil, err
		}
		plays = append(plays, p)
	}
	return plays, rows.Err()
}

package queries

import (
	"context"
	"time"

	"github.com/RahulBansal123/audius-protocol/internal/models"
)

const defaultHistoryLimit = 100

// ListeningHistoryArgs parameterizes a listening-history page.
type ListeningHistoryArgs struct {
	UserID        int64
	Limit         int
	Offset        int
	FilterDeleted bool
	WithUsers     bool
}

// TrackActivity is one play in a user's history: the canonical track
// joined with the timestamp of that play, optionally with the owner user.
type TrackActivity struct {
	models.Track
	ActivityTimestamp time.Time    `json:"activity_timestamp"`
	User              *models.User `json:"user,omitempty"`
}

// HistoryStore is the slice of the repository the history read path needs.
type HistoryStore interface {
	GetListeningHistory(ctx context.Context, userID int64) ([]models.ListenRecord, error)
	GetTracksByIDs(ctx context.Context, trackIDs []int64) ([]models.Track, error)
	GetTrackPlayCounts(ctx context.Context, trackIDs []int64) (map[int64]int64, error)
	GetUsersByIDs(ctx context.Context, userIDs []int64) ([]models.User, error)
}

// GetUserListeningHistory returns a page of a user's play log in
// reverse-chronological order. The stored log preserves repeat plays, and
// so does the result: a track played twice appears twice, each entry with
// its own activity timestamp. Track metadata is fetched once per distinct
// track on the page. With FilterDeleted set, entries whose track is
// deleted or unknown to the canonical track table are dropped after the
// page is cut, keeping offsets stable.
func GetUserListeningHistory(ctx context.Context, store HistoryStore, args ListeningHistoryArgs) ([]TrackActivity, error) {
	history, err := store.GetListeningHistory(ctx, args.UserID)
	if err != nil {
		return nil, err
	}
	if len(history) == 0 {
		return []TrackActivity{}, nil
	}

	// The log is chronologically appended; walk it backwards for
	// newest-first, then cut the requested page.
	limit := args.Limit
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	offset := args.Offset
	if offset < 0 {
		offset = 0
	}
	if offset >= len(history) {
		return []TrackActivity{}, nil
	}

	page := make([]models.ListenRecord, 0, limit)
	for i := len(history) - 1 - offset; i >= 0 && len(page) < limit; i-- {
		page = append(page, history[i])
	}

	trackIDs := distinctTrackIDs(page)
	tracks, err := store.GetTracksByIDs(ctx, trackIDs)
	if err != nil {
		return nil, err
	}
	trackByID := make(map[int64]models.Track, len(tracks))
	for _, t := range tracks {
		trackByID[t.TrackID] = t
	}

	if err := populateTrackMetadata(ctx, store, trackByID, trackIDs); err != nil {
		return nil, err
	}

	var userByID map[int64]models.User
	if args.WithUsers {
		userByID, err = ownerUsers(ctx, store, tracks)
		if err != nil {
			return nil, err
		}
	}

	activities := make([]TrackActivity, 0, len(page))
	for _, listen := range page {
		track, ok := trackByID[listen.TrackID]
		if args.FilterDeleted && (!ok || track.IsDelete) {
			continue
		}
		if !ok {
			// Keep the play even if the track has vanished from the
			// canonical table: the entry carries the id and timestamp.
			track = models.Track{TrackID: listen.TrackID, IsDelete: true}
		}
		activity := TrackActivity{Track: track, ActivityTimestamp: listen.Timestamp}
		if args.WithUsers {
			if owner, ok := userByID[track.OwnerID]; ok {
				ownerCopy := owner
				activity.User = &ownerCopy
			}
		}
		activities = append(activities, activity)
	}
	return activities, nil
}

func distinctTrackIDs(page []models.ListenRecord) []int64 {
	seen := make(map[int64]bool, len(page))
	ids := make([]int64, 0, len(page))
	for _, listen := range page {
		if !seen[listen.TrackID] {
			seen[listen.TrackID] = true
			ids = append(ids, listen.TrackID)
		}
	}
	return ids
}

// populateTrackMetadata bundles peripheral info (play counts) onto tracks.
func populateTrackMetadata(ctx context.Context, store HistoryStore, trackByID map[int64]models.Track, trackIDs []int64) error {
	counts, err := store.GetTrackPlayCounts(ctx, trackIDs)
	if err != nil {
		return err
	}
	for id, count := range counts {
		if t, ok := trackByID[id]; ok {
			t.PlayCount = count
			trackByID[id] = t
		}
	}
	return nil
}

func ownerUsers(ctx context.Context, store HistoryStore, tracks []models.Track) (map[int64]models.User, error) {
	seen := make(map[int64]bool, len(tracks))
	ownerIDs := make([]int64, 0, len(tracks))
	for _, t := range tracks {
		if !seen[t.OwnerID] {
			seen[t.OwnerID] = true
			ownerIDs = append(ownerIDs, t.OwnerID)
		}
	}
	users, err := store.GetUsersByIDs(ctx, ownerIDs)
	if err != nil {
		return nil, err
	}
	userByID := make(map[int64]models.User, len(users))
	for _, u := range users {
		userByID[u.UserID] = u
	}
	return userByID, nil
}

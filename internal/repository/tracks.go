package repository

import (
	"context"

	"github.com/RahulBansal123/audius-protocol/internal/models"
)

// GetTracksByIDs returns the current version of each requested track,
// including deleted tracks so callers can decide whether to filter them.
func (r *Repository) GetTracksByIDs(ctx context.Context, trackIDs []int64) ([]models.Track, error) {
	if len(trackIDs) == 0 {
		return nil, nil
	}
	rows, err := r.db.Query(ctx, `
		SELECT track_id, owner_id, COALESCE(title, ''), duration,
		       is_delete, is_unlisted, created_at, updated_at
		FROM tracks
		WHERE track_id = ANY($1) AND is_current`, trackIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tracks []models.Track
	for rows.Next() {
		var t models.Track
		if err := rows.Scan(&t.TrackID, &t.OwnerID, &t.Title, &t.Duration,
			&t.IsDelete, &t.IsUnlisted, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, err
		}
		tracks = append(tracks, t)
	}
	return tracks, rows.Err()
}

// GetTrackPlayCounts returns all-time play counts for the given tracks.
// Tracks that were never played are absent from the map.
func (r *Repository) GetTrackPlayCounts(ctx context.Context, trackIDs []int64) (map[int64]int64, error) {
	if len(trackIDs) == 0 {
		return nil, nil
	}
	rows, err := r.db.Query(ctx, `
		SELECT play_item_id, COUNT(*)
		FROM plays
		WHERE play_item_id = ANY($1)
		GROUP BY play_item_id`, trackIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[int64]int64)
	for rows.Next() {
		var trackID, count int64
		if err := rows.Scan(&trackID, &count); err != nil {
			return nil, err
		}
		counts[trackID] = count
	}
	return counts, rows.Err()
}

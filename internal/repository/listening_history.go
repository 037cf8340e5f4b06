package repository

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5"

	"github.com/RahulBansal123/audius-protocol/internal/models"
)

// GetListeningHistory returns a user's play log in stored (chronological)
// order. Nil if the user has no history row.
func (r *Repository) GetListeningHistory(ctx context.Context, userID int64) ([]models.ListenRecord, error) {
	var raw []byte
	err := r.db.QueryRow(ctx,
		"SELECT listening_history FROM user_listening_history WHERE user_id = $1", userID,
	).Scan(&raw)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var history []models.ListenRecord
	if err := json.Unmarshal(raw, &history); err != nil {
		return nil, err
	}
	return history, nil
}

// GetListeningHistories returns the play logs for multiple users at once.
func (r *Repository) GetListeningHistories(ctx context.Context, userIDs []int64) (map[int64][]models.ListenRecord, error) {
	if len(userIDs) == 0 {
		return nil, nil
	}
	rows, err := r.db.Query(ctx,
		"SELECT user_id, listening_history FROM user_listening_history WHERE user_id = ANY($1)", userIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	histories := make(map[int64][]models.ListenRecord)
	for rows.Next() {
		var userID int64
		var raw []byte
		if err := rows.Scan(&userID, &raw); err != nil {
			return nil, err
		}
		var history []models.ListenRecord
		if err := json.Unmarshal(raw, &history); err != nil {
			return nil, err
		}
		histories[userID] = history
	}
	return histories, rows.Err()
}

// UpsertListeningHistory replaces a user's play log wholesale. The caller
// is responsible for keeping the log chronologically ordered.
func (r *Repository) UpsertListeningHistory(ctx context.Context, userID int64, history []models.ListenRecord) error {
	raw, err := json.Marshal(history)
	if err != nil {
		return err
	}
	_, err = r.db.Exec(ctx, `
		INSERT INTO user_listening_history (user_id, listening_history)
		VALUES ($1, $2)
		ON CONFLICT (user_id) DO UPDATE SET listening_history = EXCLUDED.listening_history`,
		userID, raw)
	return err
}

// TruncateListeningHistory drops all history rows, used by the backfill tool
// before a full rebuild.
func (r *Repository) TruncateListeningHistory(ctx context.Context) error {
	_, err := r.db.Exec(ctx, "TRUNCATE user_listening_history")
	return err
}

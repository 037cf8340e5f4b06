package repository

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5"

	"github.com/RahulBansal123/audius-protocol/internal/models"
)

// GetStatusSnapshot returns the stored payload for a snapshot kind,
// nil if none has been written yet.
func (r *Repository) GetStatusSnapshot(ctx context.Context, kind string) (*models.StatusSnapshot, error) {
	var snap models.StatusSnapshot
	var raw []byte
	err := r.db.QueryRow(ctx,
		"SELECT kind, payload, updated_at FROM status_snapshots WHERE kind = $1", kind,
	).Scan(&snap.Kind, &raw, &snap.UpdatedAt)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	snap.Payload = json.RawMessage(raw)
	return &snap, nil
}

// UpsertStatusSnapshot stores an opaque payload under a snapshot kind.
func (r *Repository) UpsertStatusSnapshot(ctx context.Context, kind string, payload json.RawMessage) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO status_snapshots (kind, payload, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (kind) DO UPDATE SET payload = EXCLUDED.payload, updated_at = NOW()`,
		kind, []byte(payload))
	return err
}

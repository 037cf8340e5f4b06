package repository

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Repository struct {
	db *pgxpool.Pool
}

func NewRepository(dbURL string) (*Repository, error) {
	config, err := pgxpool.ParseConfig(dbURL)
	if err != nil {
		return nil, fmt.Errorf("unable to parse db url: %w", err)
	}

	if maxConnStr := os.Getenv("DB_MAX_OPEN_CONNS"); maxConnStr != "" {
		if maxConn, err := strconv.Atoi(maxConnStr); err == nil {
			config.MaxConns = int32(maxConn)
		}
	}
	if minConnStr := os.Getenv("DB_MAX_IDLE_CONNS"); minConnStr != "" {
		if minConn, err := strconv.Atoi(minConnStr); err == nil {
			config.MinConns = int32(minConn)
		}
	}

	pool, err := pgxpool.NewWithConfig(context.Background(), config)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %w", err)
	}

	return &Repository{db: pool}, nil
}

func (r *Repository) Migrate(schemaPath string) error {
	content, err := os.ReadFile(schemaPath)
	if err != nil {
		return fmt.Errorf("failed to read schema file: %w", err)
	}

	_, err = r.db.Exec(context.Background(), string(content))
	if err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}
	return nil
}

func (r *Repository) Close() {
	r.db.Close()
}

// Ping verifies database connectivity, used by /health_check.
func (r *Repository) Ping(ctx context.Context) error {
	return r.db.Ping(ctx)
}

// ConnStats reports pool utilization for the verbose health payload.
func (r *Repository) ConnStats() (total, idle, max int32) {
	s := r.db.Stat()
	return s.TotalConns(), s.IdleConns(), s.MaxConns()
}

// GetCheckpoint returns the last processed row id for a derived table,
// 0 if the job has never run.
func (r *Repository) GetCheckpoint(ctx context.Context, tablename string) (int64, error) {
	var lastRowID int64
	err := r.db.QueryRow(ctx,
		"SELECT last_row_id FROM indexing_checkpoints WHERE tablename = $1", tablename,
	).Scan(&lastRowID)
	if err == pgx.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return lastRowID, nil
}

// SaveCheckpoint records the last processed row id for a derived table.
func (r *Repository) SaveCheckpoint(ctx context.Context, tablename string, lastRowID int64) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO indexing_checkpoints (tablename, last_row_id, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (tablename) DO UPDATE SET last_row_id = EXCLUDED.last_row_id, updated_at = NOW()`,
		tablename, lastRowID)
	return err
}

// GetLatestIndexedBlock returns the block the external indexer has marked
// current. Zero values if indexing has not started.
func (r *Repository) GetLatestIndexedBlock(ctx context.Context) (number uint64, blockhash string, err error) {
	err = r.db.QueryRow(ctx,
		"SELECT number, blockhash FROM blocks WHERE is_current",
	).Scan(&number, &blockhash)
	if err == pgx.ErrNoRows {
		return 0, "", nil
	}
	return number, blockhash, err
}

package main

import (
	"context"
	"log"
	"os"

	"go.uber.org/zap"

	"github.com/RahulBansal123/audius-protocol/internal/config"
	"github.com/RahulBansal123/audius-protocol/internal/repository"
	"github.com/RahulBansal123/audius-protocol/internal/tasks"
)

// Rebuilds every user's listening history from the plays table. Wipes the
// denormalized logs and the indexer checkpoint, then replays all plays
// batch by batch. Run with the history indexer stopped.
func main() {
	cfg := config.FromEnv()

	repo, err := repository.NewRepository(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Unable to connect to database: %v", err)
	}
	defer repo.Close()

	ctx := context.Background()

	if os.Getenv("SKIP_TRUNCATE") != "true" {
		if err := repo.TruncateListeningHistory(ctx); err != nil {
			log.Fatalf("Failed to truncate listening history: %v", err)
		}
		if err := repo.SaveCheckpoint(ctx, "user_listening_history", 0); err != nil {
			log.Fatalf("Failed to reset checkpoint: %v", err)
		}
		log.Println("Cleared listening history and checkpoint")
	}

	logger := zap.NewNop()
	indexer := tasks.NewHistoryIndexer(repo, nil, nil, logger)

	batches := 0
	for {
		before, err := repo.GetCheckpoint(ctx, "user_listening_history")
		if err != nil {
			log.Fatalf("Failed to read checkpoint: %v", err)
		}
		if err := indexer.Run(ctx); err != nil {
			log.Fatalf("Backfill batch failed: %v", err)
		}
		after, err := repo.GetCheckpoint(ctx, "user_listening_history")
		if err != nil {
			log.Fatalf("Failed to read checkpoint: %v", err)
		}
		if after == before {
			break
		}
		batches++
		log.Printf("Processed batch %d (checkpoint %d)", batches, after)
	}

	log.Printf("Backfill complete after %d batches", batches)
}

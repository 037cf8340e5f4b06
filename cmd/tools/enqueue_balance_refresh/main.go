package main

import (
	"context"
	"log"
	"os"
	"strconv"

	"go.uber.org/zap"

	"github.com/RahulBansal123/audius-protocol/internal/cache"
	"github.com/RahulBansal123/audius-protocol/internal/config"
)

// Force-enqueues user ids into the balance refresh set so the next
// refresher pass picks them up. Usage: enqueue_balance_refresh 1 2 3
func main() {
	if len(os.Args) < 2 {
		log.Fatal("Usage: enqueue_balance_refresh <user_id> [user_id...]")
	}

	var userIDs []int64
	for _, arg := range os.Args[1:] {
		id, err := strconv.ParseInt(arg, 10, 64)
		if err != nil {
			log.Fatalf("Invalid user id %q: %v", arg, err)
		}
		userIDs = append(userIDs, id)
	}

	cfg := config.FromEnv()
	ctx := context.Background()

	cacheClient, err := cache.New(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, zap.NewNop())
	if err != nil {
		log.Fatalf("Unable to connect to redis: %v", err)
	}
	defer cacheClient.Close()

	if err := cacheClient.EnqueueBalanceRefresh(ctx, userIDs); err != nil {
		log.Fatalf("Failed to enqueue: %v", err)
	}

	log.Printf("Enqueued %d user(s) for balance refresh", len(userIDs))
}

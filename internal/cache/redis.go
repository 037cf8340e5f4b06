package cache

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Redis keys shared between the query layer, background jobs and the
// health endpoint.
const (
	BalanceRefreshSetKey        = "user_balance_refresh"
	BalanceRefreshCountKey      = "user_balance_refresh_count"
	BalanceRefreshCompletionKey = "user_balances_refresh_last_completion"
	HistoryIndexCompletionKey   = "user_listening_history_last_completion"
	FleetScrapeCompletionKey    = "fleet_scrape_last_completion"
	BalanceRefreshLockKey       = "update_user_balances_lock"

	latestBlockKey     = "latest_block_from_chain"
	latestBlockHashKey = "latest_blockhash_from_chain"
)

// releaseScript deletes a lock key only if it still holds our token, so a
// holder that outlived its expiry cannot release a successor's lock.
const releaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`

// Client wraps the Redis connection used for the balance refresh queue,
// job locks and cached chain state.
type Client struct {
	rdb    *redis.Client
	logger *zap.Logger
}

func New(ctx context.Context, addr, password string, db int, logger *zap.Logger) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,

		PoolSize:     10,
		MinIdleConns: 2,

		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", addr, err)
	}

	logger.Info("connected to redis", zap.String("addr", addr), zap.Int("db", db))
	return &Client{rdb: rdb, logger: logger}, nil
}

func (c *Client) Close() error {
	return c.rdb.Close()
}

func (c *Client) Health(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// EnqueueBalanceRefresh adds user ids to the pending-refresh set. The set
// dedupes, so repeat enqueues are harmless.
func (c *Client) EnqueueBalanceRefresh(ctx context.Context, userIDs []int64) error {
	if len(userIDs) == 0 {
		return nil
	}
	members := make([]interface{}, 0, len(userIDs))
	for _, id := range userIDs {
		members = append(members, strconv.FormatInt(id, 10))
	}
	return c.rdb.SAdd(ctx, BalanceRefreshSetKey, members...).Err()
}

// RefreshCandidates lists all user ids currently enqueued for refresh.
func (c *Client) RefreshCandidates(ctx context.Context) ([]int64, error) {
	members, err := c.rdb.SMembers(ctx, BalanceRefreshSetKey).Result()
	if err != nil {
		return nil, err
	}
	ids := make([]int64, 0, len(members))
	for _, m := range members {
		id, err := strconv.ParseInt(m, 10, 64)
		if err != nil {
			c.logger.Warn("dropping malformed refresh set member", zap.String("member", m))
			c.rdb.SRem(ctx, BalanceRefreshSetKey, m)
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// RemoveRefreshed removes refreshed user ids from the pending set and bumps
// the lifetime refresh counter.
func (c *Client) RemoveRefreshed(ctx context.Context, userIDs []int64) error {
	if len(userIDs) == 0 {
		return nil
	}
	members := make([]interface{}, 0, len(userIDs))
	for _, id := range userIDs {
		members = append(members, strconv.FormatInt(id, 10))
	}
	if err := c.rdb.SRem(ctx, BalanceRefreshSetKey, members...).Err(); err != nil {
		return err
	}
	return c.rdb.IncrBy(ctx, BalanceRefreshCountKey, int64(len(userIDs))).Err()
}

// SetLastCompletion records when a job last finished, for /health_check ages.
func (c *Client) SetLastCompletion(ctx context.Context, key string, t time.Time) error {
	return c.rdb.Set(ctx, key, strconv.FormatInt(t.Unix(), 10), 0).Err()
}

// SecondsSinceCompletion returns how long ago a job finished, nil if it has
// never completed.
func (c *Client) SecondsSinceCompletion(ctx context.Context, key string, now time.Time) (*int64, error) {
	v, err := c.rdb.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	last, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return nil, err
	}
	age := now.Unix() - last
	return &age, nil
}

// AcquireLock takes a non-blocking token lock. Returns the release token
// and whether the lock was acquired.
func (c *Client) AcquireLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	token := uuid.NewString()
	ok, err := c.rdb.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return "", false, err
	}
	return token, ok, nil
}

// ReleaseLock releases a token lock if it is still held by token.
func (c *Client) ReleaseLock(ctx context.Context, key, token string) error {
	return c.rdb.Eval(ctx, releaseScript, []string{key}, token).Err()
}

// CacheLatestChainBlock stores the chain tip so /health_check does not hit
// the eth client on every request.
func (c *Client) CacheLatestChainBlock(ctx context.Context, number uint64, hash string, ttl time.Duration) error {
	if err := c.rdb.Set(ctx, latestBlockKey, strconv.FormatUint(number, 10), ttl).Err(); err != nil {
		return err
	}
	return c.rdb.Set(ctx, latestBlockHashKey, hash, ttl).Err()
}

// GetLatestChainBlock returns the cached chain tip, ok=false on a miss.
func (c *Client) GetLatestChainBlock(ctx context.Context) (number uint64, hash string, ok bool, err error) {
	v, err := c.rdb.Get(ctx, latestBlockKey).Result()
	if err == redis.Nil {
		return 0, "", false, nil
	}
	if err != nil {
		return 0, "", false, err
	}
	number, err = strconv.ParseUint(v, 10, 64)
	if err != nil {
		return 0, "", false, nil
	}
	hash, err = c.rdb.Get(ctx, latestBlockHashKey).Result()
	if err == redis.Nil {
		return number, "", true, nil
	}
	if err != nil {
		return 0, "", false, err
	}
	return number, hash, true, nil
}

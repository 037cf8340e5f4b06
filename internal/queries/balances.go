package queries

import (
	"context"
	"time"

	"github.com/RahulBansal123/audius-protocol/internal/models"
)

// Staleness tolerated before a cached balance is refreshed. Priority
// (verified) users refresh fastest; zero balances slowest.
const (
	BalanceRefreshPriority = time.Minute
	BalanceRefreshNonEmpty = 15 * time.Minute
	BalanceRefreshEmpty    = time.Hour
)

// WalletBalance is the API-facing view of a user's cached balances,
// decimal wei strings.
type WalletBalance struct {
	OwnerWalletBalance       string `json:"owner_wallet_balance"`
	AssociatedWalletsBalance string `json:"associated_wallets_balance"`
}

// BalanceStore is the slice of the repository the balance read path needs.
type BalanceStore interface {
	GetUserBalances(ctx context.Context, userIDs []int64) ([]models.UserBalance, error)
	InsertZeroBalances(ctx context.Context, userIDs []int64) error
	GetVerifiedUserIDs(ctx context.Context, userIDs []int64) (map[int64]bool, error)
}

// RefreshQueue enqueues user ids for the periodic balance refresh job.
type RefreshQueue interface {
	EnqueueBalanceRefresh(ctx context.Context, userIDs []int64) error
}

// NeedsBalanceRefresh reports whether a cached balance is due. A row that
// has never been refreshed (created_at == updated_at) is always due;
// otherwise the threshold depends on priority and whether any balance is
// non-zero.
func NeedsBalanceRefresh(b models.UserBalance, priority bool, now time.Time) bool {
	if b.UpdatedAt.Equal(b.CreatedAt) {
		return true
	}
	var threshold time.Duration
	switch {
	case priority:
		threshold = BalanceRefreshPriority
	case b.Balance != "0" || b.AssociatedWalletsBalance != "0":
		threshold = BalanceRefreshNonEmpty
	default:
		threshold = BalanceRefreshEmpty
	}
	return b.UpdatedAt.Before(now.Add(-threshold))
}

// GetBalances returns cached balances for the given users, zero-filling
// users that have never been looked up, and enqueues for refresh every
// unknown user, every stale balance and every verified user.
func GetBalances(ctx context.Context, store BalanceStore, queue RefreshQueue, userIDs []int64) (map[int64]WalletBalance, error) {
	cached, err := store.GetUserBalances(ctx, userIDs)
	if err != nil {
		return nil, err
	}

	result := make(map[int64]WalletBalance, len(userIDs))
	cachedIDs := make(map[int64]bool, len(cached))
	for _, b := range cached {
		cachedIDs[b.UserID] = true
		result[b.UserID] = WalletBalance{
			OwnerWalletBalance:       b.Balance,
			AssociatedWalletsBalance: b.AssociatedWalletsBalance,
		}
	}

	var missing []int64
	for _, id := range userIDs {
		if !cachedIDs[id] {
			result[id] = WalletBalance{OwnerWalletBalance: "0", AssociatedWalletsBalance: "0"}
			missing = append(missing, id)
		}
	}
	if err := store.InsertZeroBalances(ctx, missing); err != nil {
		return nil, err
	}

	verified, err := store.GetVerifiedUserIDs(ctx, userIDs)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	enqueue := append([]int64(nil), missing...)
	seen := make(map[int64]bool, len(missing))
	for _, id := range missing {
		seen[id] = true
	}
	for _, b := range cached {
		if !seen[b.UserID] && NeedsBalanceRefresh(b, false, now) {
			seen[b.UserID] = true
			enqueue = append(enqueue, b.UserID)
		}
	}
	for id := range verified {
		if !seen[id] {
			seen[id] = true
			enqueue = append(enqueue, id)
		}
	}
	if err := queue.EnqueueBalanceRefresh(ctx, enqueue); err != nil {
		return nil, err
	}

	return result, nil
}

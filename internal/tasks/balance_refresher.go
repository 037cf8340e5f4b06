package tasks

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/RahulBansal123/audius-protocol/internal/cache"
	"github.com/RahulBansal123/audius-protocol/internal/eth"
	"github.com/RahulBansal123/audius-protocol/internal/eventbus"
	"github.com/RahulBansal123/audius-protocol/internal/metrics"
	"github.com/RahulBansal123/audius-protocol/internal/models"
	"github.com/RahulBansal123/audius-protocol/internal/queries"
)

// DefaultRefreshLockTTL bounds how long a crashed refresher can hold the
// cross-process lock.
const DefaultRefreshLockTTL = 2 * time.Hour

// ChainClient is the slice of the eth client the refresher needs.
type ChainClient interface {
	ResolveContract(ctx context.Context, name string) (common.Address, error)
	TokenBalance(ctx context.Context, token common.Address, wallet string) (*big.Int, error)
	TotalStakedFor(ctx context.Context, staking common.Address, wallet string) (*big.Int, error)
	TotalDelegatorStake(ctx context.Context, delegateManager common.Address, wallet string) (*big.Int, error)
}

// BalanceStore is the slice of the repository the refresher needs.
type BalanceStore interface {
	GetUserBalances(ctx context.Context, userIDs []int64) ([]models.UserBalance, error)
	InsertZeroBalances(ctx context.Context, userIDs []int64) error
	GetVerifiedUserIDs(ctx context.Context, userIDs []int64) (map[int64]bool, error)
	GetUserWallets(ctx context.Context, userIDs []int64) (map[int64]models.UserWallets, error)
	UpdateUserBalance(ctx context.Context, userID int64, balance, associatedBalance string) error
}

// RefreshState is the Redis surface the refresher needs: the pending set,
// the cross-process lock and the completion timestamp.
type RefreshState interface {
	RefreshCandidates(ctx context.Context) ([]int64, error)
	RemoveRefreshed(ctx context.Context, userIDs []int64) error
	AcquireLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error)
	ReleaseLock(ctx context.Context, key, token string) error
	SetLastCompletion(ctx context.Context, key string, t time.Time) error
}

// BalanceRefresher reconciles cached user balances against on-chain state.
// One instance runs at a time across the process pool; each run drains the
// pending-refresh set, skipping entries that are not yet stale.
type BalanceRefresher struct {
	store   BalanceStore
	state   RefreshState
	chain   ChainClient
	bus     *eventbus.Bus
	logger  *zap.Logger
	lockTTL time.Duration
}

func NewBalanceRefresher(store BalanceStore, state RefreshState, chain ChainClient, bus *eventbus.Bus, logger *zap.Logger) *BalanceRefresher {
	return &BalanceRefresher{
		store:   store,
		state:   state,
		chain:   chain,
		bus:     bus,
		logger:  logger.Named("balance_refresher"),
		lockTTL: DefaultRefreshLockTTL,
	}
}

// Run executes one refresh pass under the cross-process lock. If another
// instance holds the lock the run is skipped silently.
func (br *BalanceRefresher) Run(ctx context.Context) error {
	token, ok, err := br.state.AcquireLock(ctx, cache.BalanceRefreshLockKey, br.lockTTL)
	if err != nil {
		return err
	}
	if !ok {
		br.logger.Info("refresh lock held elsewhere, skipping run")
		return nil
	}
	defer func() {
		if err := br.state.ReleaseLock(ctx, cache.BalanceRefreshLockKey, token); err != nil {
			br.logger.Warn("failed to release refresh lock", zap.Error(err))
		}
	}()

	start := time.Now()
	refreshed, err := br.refresh(ctx)
	if err != nil {
		return err
	}
	metrics.BalanceRefreshRuns.Inc()
	if err := br.state.SetLastCompletion(ctx, cache.BalanceRefreshCompletionKey, time.Now()); err != nil {
		br.logger.Warn("failed to record completion", zap.Error(err))
	}
	br.logger.Info("balance refresh complete",
		zap.Int("refreshed", refreshed),
		zap.Duration("took", time.Since(start)))
	return nil
}

func (br *BalanceRefresher) refresh(ctx context.Context) (int, error) {
	candidates, err := br.state.RefreshCandidates(ctx)
	if err != nil {
		return 0, err
	}
	if len(candidates) == 0 {
		return 0, nil
	}
	br.logger.Info("starting refresh", zap.Int("candidates", len(candidates)))

	balances, err := br.store.GetUserBalances(ctx, candidates)
	if err != nil {
		return 0, err
	}

	// Balances enqueued from current-user lookups may not have rows yet;
	// create them so the zero state is cached.
	present := make(map[int64]bool, len(balances))
	for _, b := range balances {
		present[b.UserID] = true
	}
	now := time.Now()
	var missing []int64
	for _, id := range candidates {
		if !present[id] {
			missing = append(missing, id)
			balances = append(balances, models.UserBalance{
				UserID: id, Balance: "0", AssociatedWalletsBalance: "0",
				CreatedAt: now, UpdatedAt: now,
			})
		}
	}
	if err := br.store.InsertZeroBalances(ctx, missing); err != nil {
		return 0, err
	}

	// Verified users refresh on the short threshold.
	verified, err := br.store.GetVerifiedUserIDs(ctx, candidates)
	if err != nil {
		return 0, err
	}

	// Entries not yet stale stay in the set for a later run.
	var due []int64
	for _, b := range balances {
		if queries.NeedsBalanceRefresh(b, verified[b.UserID], now) {
			due = append(due, b.UserID)
		}
	}
	if len(due) == 0 {
		return 0, nil
	}

	wallets, err := br.store.GetUserWallets(ctx, due)
	if err != nil {
		return 0, err
	}

	tokenAddr, err := br.chain.ResolveContract(ctx, eth.TokenRegistryKey)
	if err != nil {
		return 0, err
	}
	stakingAddr, err := br.chain.ResolveContract(ctx, eth.StakingRegistryKey)
	if err != nil {
		return 0, err
	}
	delegateAddr, err := br.chain.ResolveContract(ctx, eth.DelegateManagerRegistryKey)
	if err != nil {
		return 0, err
	}

	refreshed := 0
	for _, userID := range due {
		w, ok := wallets[userID]
		if !ok || w.OwnerWallet == "" {
			br.logger.Warn("no wallet on record, skipping user", zap.Int64("user_id", userID))
			continue
		}
		owner, associated, err := br.fetchBalances(ctx, tokenAddr, stakingAddr, delegateAddr, w)
		if err != nil {
			// Best effort: a failed lookup for one user must not stall
			// the rest of the batch.
			metrics.BalanceRefreshErrors.Inc()
			br.logger.Error("error fetching balance", zap.Int64("user_id", userID), zap.Error(err))
			continue
		}
		if err := br.store.UpdateUserBalance(ctx, userID, owner.String(), associated.String()); err != nil {
			br.logger.Error("error storing balance", zap.Int64("user_id", userID), zap.Error(err))
			continue
		}
		refreshed++
		if br.bus != nil {
			br.bus.Publish(eventbus.Event{
				Type:      eventbus.TypeBalanceRefreshed,
				Timestamp: time.Now(),
				Data: map[string]interface{}{
					"user_id":                    userID,
					"balance":                    owner.String(),
					"associated_wallets_balance": associated.String(),
				},
			})
		}
	}
	metrics.BalanceRefreshUsers.Add(float64(refreshed))

	// Every due entry leaves the set, fetched or not; failures will be
	// re-enqueued by the next balance read that finds them stale.
	if err := br.state.RemoveRefreshed(ctx, due); err != nil {
		return refreshed, err
	}
	return refreshed, nil
}

// fetchBalances reads a user's owner-wallet token balance and sums token,
// staked and delegated amounts across associated wallets.
func (br *BalanceRefresher) fetchBalances(ctx context.Context, tokenAddr, stakingAddr, delegateAddr common.Address, w models.UserWallets) (*big.Int, *big.Int, error) {
	owner, err := br.chain.TokenBalance(ctx, tokenAddr, w.OwnerWallet)
	if err != nil {
		return nil, nil, err
	}
	associated := new(big.Int)
	for _, wallet := range w.AssociatedWallets {
		balance, err := br.chain.TokenBalance(ctx, tokenAddr, wallet)
		if err != nil {
			return nil, nil, err
		}
		delegated, err := br.chain.TotalDelegatorStake(ctx, delegateAddr, wallet)
		if err != nil {
			return nil, nil, err
		}
		staked, err := br.chain.TotalStakedFor(ctx, stakingAddr, wallet)
		if err != nil {
			return nil, nil, err
		}
		associated.Add(associated, balance)
		associated.Add(associated, delegated)
		associated.Add(associated, staked)
	}
	return owner, associated, nil
}

package queries

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RahulBansal123/audius-protocol/internal/models"
)

func balanceRow(userID int64, balance, associated string, age time.Duration) models.UserBalance {
	created := time.Now().Add(-24 * time.Hour)
	return models.UserBalance{
		UserID:                   userID,
		Balance:                  balance,
		AssociatedWalletsBalance: associated,
		CreatedAt:                created,
		UpdatedAt:                time.Now().Add(-age),
	}
}

func TestNeedsBalanceRefresh(t *testing.T) {
	t.Parallel()
	now := time.Now()

	cases := []struct {
		name     string
		balance  models.UserBalance
		priority bool
		want     bool
	}{
		{name: "never refreshed", want: true, balance: models.UserBalance{
			Balance: "0", AssociatedWalletsBalance: "0",
			CreatedAt: now.Add(-time.Second), UpdatedAt: now.Add(-time.Second),
		}},
		{name: "priority stale", priority: true, want: true,
			balance: balanceRow(1, "0", "0", 2*time.Minute)},
		{name: "priority fresh", priority: true, want: false,
			balance: balanceRow(1, "0", "0", 10*time.Second)},
		{name: "nonzero stale", want: true,
			balance: balanceRow(1, "100", "0", 20*time.Minute)},
		{name: "nonzero fresh", want: false,
			balance: balanceRow(1, "100", "0", 5*time.Minute)},
		{name: "associated nonzero stale", want: true,
			balance: balanceRow(1, "0", "5", 20*time.Minute)},
		{name: "zero stale", want: true,
			balance: balanceRow(1, "0", "0", 2*time.Hour)},
		{name: "zero within slow window", want: false,
			balance: balanceRow(1, "0", "0", 30*time.Minute)},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, NeedsBalanceRefresh(tc.balance, tc.priority, now))
		})
	}
}

type fakeBalanceStore struct {
	balances map[int64]models.UserBalance
	verified map[int64]bool
	inserted []int64
}

func (f *fakeBalanceStore) GetUserBalances(_ context.Context, userIDs []int64) ([]models.UserBalance, error) {
	var out []models.UserBalance
	for _, id := range userIDs {
		if b, ok := f.balances[id]; ok {
			out = append(out, b)
		}
	}
	return out, nil
}

func (f *fakeBalanceStore) InsertZeroBalances(_ context.Context, userIDs []int64) error {
	f.inserted = append(f.inserted, userIDs...)
	return nil
}

func (f *fakeBalanceStore) GetVerifiedUserIDs(_ context.Context, userIDs []int64) (map[int64]bool, error) {
	out := make(map[int64]bool)
	for _, id := range userIDs {
		if f.verified[id] {
			out[id] = true
		}
	}
	return out, nil
}

type fakeRefreshQueue struct {
	enqueued []int64
}

func (f *fakeRefreshQueue) EnqueueBalanceRefresh(_ context.Context, userIDs []int64) error {
	f.enqueued = append(f.enqueued, userIDs...)
	return nil
}

func TestGetBalances(t *testing.T) {
	t.Parallel()
	store := &fakeBalanceStore{
		balances: map[int64]models.UserBalance{
			1: balanceRow(1, "500", "10", 5*time.Minute), // fresh, non-zero
			2: balanceRow(2, "300", "0", 20*time.Minute), // stale
			3: balanceRow(3, "0", "0", 30*time.Minute),   // fresh, zero
		},
		verified: map[int64]bool{4: true},
	}
	queue := &fakeRefreshQueue{}

	got, err := GetBalances(context.Background(), store, queue, []int64{1, 2, 3, 4, 5})
	require.NoError(t, err)

	// Every requested user has an entry; unknowns are zero-filled.
	require.Len(t, got, 5)
	assert.Equal(t, "500", got[1].OwnerWalletBalance)
	assert.Equal(t, "10", got[1].AssociatedWalletsBalance)
	assert.Equal(t, WalletBalance{OwnerWalletBalance: "0", AssociatedWalletsBalance: "0"}, got[4])
	assert.Equal(t, WalletBalance{OwnerWalletBalance: "0", AssociatedWalletsBalance: "0"}, got[5])

	// Zero rows were persisted for the unknowns.
	sort.Slice(store.inserted, func(i, j int) bool { return store.inserted[i] < store.inserted[j] })
	assert.Equal(t, []int64{4, 5}, store.inserted)

	// Enqueued: unknowns (4, 5), stale (2), verified (4, deduped).
	sort.Slice(queue.enqueued, func(i, j int) bool { return queue.enqueued[i] < queue.enqueued[j] })
	assert.Equal(t, []int64{2, 4, 5}, queue.enqueued)
}

func TestGetBalances_NoUsers(t *testing.T) {
	t.Parallel()
	store := &fakeBalanceStore{}
	queue := &fakeRefreshQueue{}

	got, err := GetBalances(context.Background(), store, queue, nil)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Empty(t, queue.enqueued)
}

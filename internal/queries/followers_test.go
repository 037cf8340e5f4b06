package queries

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RahulBansal123/audius-protocol/internal/models"
	"github.com/RahulBansal123/audius-protocol/internal/repository"
)

type fakeFollowerStore struct {
	rows  []repository.FollowerRow
	users map[int64]models.User
}

func (f *fakeFollowerStore) GetFollowersForUser(_ context.Context, _ int64, limit, offset int) ([]repository.FollowerRow, error) {
	if offset >= len(f.rows) {
		return nil, nil
	}
	end := offset + limit
	if end > len(f.rows) {
		end = len(f.rows)
	}
	return f.rows[offset:end], nil
}

func (f *fakeFollowerStore) GetUsersByIDs(_ context.Context, userIDs []int64) ([]models.User, error) {
	// Return users in arbitrary (reversed) order to exercise the re-sort.
	var out []models.User
	for i := len(userIDs) - 1; i >= 0; i-- {
		if u, ok := f.users[userIDs[i]]; ok {
			out = append(out, u)
		}
	}
	return out, nil
}

func TestGetFollowersForUser(t *testing.T) {
	t.Parallel()
	store := &fakeFollowerStore{
		rows: []repository.FollowerRow{
			{UserID: 7, FollowerCount: 50},
			{UserID: 2, FollowerCount: 10},
			{UserID: 5, FollowerCount: 10},
			{UserID: 9, FollowerCount: 0},
		},
		users: map[int64]models.User{
			2: {UserID: 2, Handle: "two"},
			5: {UserID: 5, Handle: "five"},
			7: {UserID: 7, Handle: "seven"},
			9: {UserID: 9, Handle: "nine"},
		},
	}

	got, err := GetFollowersForUser(context.Background(), store, 1, 10, 0)
	require.NoError(t, err)
	require.Len(t, got, 4)

	// Follower count desc, user id asc as tiebreak.
	assert.Equal(t, []int64{7, 2, 5, 9},
		[]int64{got[0].UserID, got[1].UserID, got[2].UserID, got[3].UserID})
	assert.Equal(t, int64(50), got[0].FollowerCount)
	assert.Equal(t, int64(10), got[1].FollowerCount)
}

func TestGetFollowersForUser_Empty(t *testing.T) {
	t.Parallel()
	store := &fakeFollowerStore{}

	got, err := GetFollowersForUser(context.Background(), store, 1, 10, 0)
	require.NoError(t, err)
	assert.Empty(t, got)
}

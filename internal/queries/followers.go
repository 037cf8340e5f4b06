package queries

import (
	"context"
	"sort"

	"github.com/RahulBansal123/audius-protocol/internal/models"
	"github.com/RahulBansal123/audius-protocol/internal/repository"
)

const defaultFollowersLimit = 10

// FollowerStore is the slice of the repository the followers query needs.
type FollowerStore interface {
	GetFollowersForUser(ctx context.Context, followeeID int64, limit, offset int) ([]repository.FollowerRow, error)
	GetUsersByIDs(ctx context.Context, userIDs []int64) ([]models.User, error)
}

// GetFollowersForUser returns users following followeeID ordered by their
// own follower count (desc), user id (asc) as a tiebreak. Pagination
// happens in SQL; the user fetch can reorder, so the result is re-sorted
// to match.
func GetFollowersForUser(ctx context.Context, store FollowerStore, followeeID int64, limit, offset int) ([]models.User, error) {
	if limit <= 0 {
		limit = defaultFollowersLimit
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := store.GetFollowersForUser(ctx, followeeID, limit, offset)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return []models.User{}, nil
	}

	ids := make([]int64, 0, len(rows))
	countByID := make(map[int64]int64, len(rows))
	for _, row := range rows {
		ids = append(ids, row.UserID)
		countByID[row.UserID] = row.FollowerCount
	}

	users, err := store.GetUsersByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range users {
		users[i].FollowerCount = countByID[users[i].UserID]
	}
	sort.Slice(users, func(i, j int) bool {
		if users[i].FollowerCount != users[j].FollowerCount {
			return users[i].FollowerCount > users[j].FollowerCount
		}
		return users[i].UserID < users[j].UserID
	})
	return users, nil
}

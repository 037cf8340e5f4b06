package repository

import (
	"context"
)

// FollowerRow is one follower of a user with the follower's own
// follower count, used for popularity ordering.
type FollowerRow struct {
	UserID        int64
	FollowerCount int64
}

// GetFollowersForUser returns users following followeeID ordered by
// (their follower count desc, user id asc) for deterministic pagination.
func (r *Repository) GetFollowersForUser(ctx context.Context, followeeID int64, limit, offset int) ([]FollowerRow, error) {
	rows, err := r.db.Query(ctx, `
		SELECT f.follower_user_id,
		       (SELECT COUNT(*) FROM follows f2
		        WHERE f2.followee_user_id = f.follower_user_id
		          AND f2.is_current AND NOT f2.is_delete) AS follower_count
		FROM follows f
		WHERE f.followee_user_id = $1 AND f.is_current AND NOT f.is_delete
		ORDER BY follower_count DESC, f.follower_user_id ASC
		LIMIT $2 OFFSET $3`, followeeID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var followers []FollowerRow
	for rows.Next() {
		var fr FollowerRow
		if err := rows.Scan(&fr.UserID, &fr.FollowerCount); err != nil {
			return nil, err
		}
		followers = append(followers, fr)
	}
	return followers, rows.Err()
}

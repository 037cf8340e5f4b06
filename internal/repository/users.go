package repository

import (
	"context"

	"github.com/RahulBansal123/audius-protocol/internal/models"
)

// GetUsersByIDs returns the current version of each requested user.
// Missing ids are simply absent from the result.
func (r *Repository) GetUsersByIDs(ctx context.Context, userIDs []int64) ([]models.User, error) {
	if len(userIDs) == 0 {
		return nil, nil
	}
	rows, err := r.db.Query(ctx, `
		SELECT user_id, COALESCE(handle, ''), COALESCE(name, ''), COALESCE(wallet, ''),
		       is_verified, is_deactivated, created_at, updated_at
		FROM users
		WHERE user_id = ANY($1) AND is_current`, userIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		var u models.User
		if err := rows.Scan(&u.UserID, &u.Handle, &u.Name, &u.Wallet,
			&u.IsVerified, &u.IsDeactivated, &u.CreatedAt, &u.UpdatedAt); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// GetVerifiedUserIDs filters the given ids down to verified users.
func (r *Repository) GetVerifiedUserIDs(ctx context.Context, userIDs []int64) (map[int64]bool, error) {
	if len(userIDs) == 0 {
		return nil, nil
	}
	rows, err := r.db.Query(ctx,
		"SELECT user_id FROM users WHERE user_id = ANY($1) AND is_current AND is_verified", userIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	verified := make(map[int64]bool)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		verified[id] = true
	}
	return verified, rows.Err()
}

// GetUserWallets returns the owner wallet plus current, non-deleted
// associated wallets for each requested user.
func (r *Repository) GetUserWallets(ctx context.Context, userIDs []int64) (map[int64]models.UserWallets, error) {
	if len(userIDs) == 0 {
		return nil, nil
	}
	rows, err := r.db.Query(ctx, `
		SELECT u.user_id, COALESCE(u.wallet, ''), aw.wallet
		FROM users u
		LEFT OUTER JOIN associated_wallets aw
		  ON aw.user_id = u.user_id AND aw.is_current AND NOT aw.is_delete
		WHERE u.user_id = ANY($1) AND u.is_current`, userIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	wallets := make(map[int64]models.UserWallets)
	for rows.Next() {
		var userID int64
		var owner string
		var associated *string
		if err := rows.Scan(&userID, &owner, &associated); err != nil {
			return nil, err
		}
		w, ok := wallets[userID]
		if !ok {
			w = models.UserWallets{UserID: userID, OwnerWallet: owner}
		}
		if associated != nil {
			w.AssociatedWallets = append(w.AssociatedWallets, *associated)
		}
		wallets[userID] = w
	}
	return wallets, rows.Err()
}

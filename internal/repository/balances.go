package repository

import (
	"context"

	"github.com/RahulBansal123/audius-protocol/internal/models"
)

// GetUserBalances returns cached balance rows for the given users.
// Users without a row are absent from the result.
func (r *Repository) GetUserBalances(ctx context.Context, userIDs []int64) ([]models.UserBalance, error) {
	if len(userIDs) == 0 {
		return nil, nil
	}
	rows, err := r.db.Query(ctx, `
		SELECT user_id, balance, associated_wallets_balance, created_at, updated_at
		FROM user_balances
		WHERE user_id = ANY($1)`, userIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var balances []models.UserBalance
	for rows.Next() {
		var b models.UserBalance
		if err := rows.Scan(&b.UserID, &b.Balance, &b.AssociatedWalletsBalance,
			&b.CreatedAt, &b.UpdatedAt); err != nil {
			return nil, err
		}
		balances = append(balances, b)
	}
	return balances, rows.Err()
}

// InsertZeroBalances creates zero-valued balance rows for users that have
// never been looked up. Existing rows are left untouched.
func (r *Repository) InsertZeroBalances(ctx context.Context, userIDs []int64) error {
	if len(userIDs) == 0 {
		return nil
	}
	_, err := r.db.Exec(ctx, `
		INSERT INTO user_balances (user_id, balance, associated_wallets_balance)
		SELECT unnest($1::bigint[]), '0', '0'
		ON CONFLICT (user_id) DO NOTHING`, userIDs)
	return err
}

// UpdateUserBalance stores a freshly fetched on-chain balance.
func (r *Repository) UpdateUserBalance(ctx context.Context, userID int64, balance, associatedBalance string) error {
	_, err := r.db.Exec(ctx, `
		UPDATE user_balances
		SET balance = $2, associated_wallets_balance = $3, updated_at = NOW()
		WHERE user_id = $1`, userID, balance, associatedBalance)
	return err
}

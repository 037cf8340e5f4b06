package models

import (
	"encoding/json"
	"time"
)

// User represents the current version of a row in the 'users' table.
type User struct {
	UserID        int64     `json:"user_id"`
	Handle        string    `json:"handle"`
	Name          string    `json:"name,omitempty"`
	Wallet        string    `json:"wallet,omitempty"`
	IsVerified    bool      `json:"is_verified"`
	IsDeactivated bool      `json:"is_deactivated,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`

	// Derived fields, populated by the query layer.
	FollowerCount int64 `json:"follower_count,omitempty"`
}

// Track represents the current version of a row in the 'tracks' table.
type Track struct {
	TrackID    int64     `json:"track_id"`
	OwnerID    int64     `json:"owner_id"`
	Title      string    `json:"title"`
	Duration   int       `json:"duration,omitempty"`
	IsDelete   bool      `json:"is_delete,omitempty"`
	IsUnlisted bool      `json:"is_unlisted,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`

	// Derived fields, populated by the query layer.
	PlayCount int64 `json:"play_count,omitempty"`
}

// Play represents a row in the 'plays' table. UserID is nil for
// anonymous plays.
type Play struct {
	ID         int64     `json:"id"`
	UserID     *int64    `json:"user_id,omitempty"`
	PlayItemID int64     `json:"play_item_id"`
	Signature  string    `json:"signature,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// Follow represents a row in the 'follows' table.
type Follow struct {
	FollowerUserID int64     `json:"follower_user_id"`
	FolloweeUserID int64     `json:"followee_user_id"`
	CreatedAt      time.Time `json:"created_at"`
}

// UserBalance is the cached on-chain balance for a user, in wei,
// stored as decimal strings to avoid precision loss.
type UserBalance struct {
	UserID                   int64     `json:"user_id"`
	Balance                  string    `json:"balance"`
	AssociatedWalletsBalance string    `json:"associated_wallets_balance"`
	CreatedAt                time.Time `json:"created_at"`
	UpdatedAt                time.Time `json:"updated_at"`
}

// UserWallets holds the owner wallet and current, non-deleted associated
// wallets for a user.
type UserWallets struct {
	UserID            int64    `json:"user_id"`
	OwnerWallet       string   `json:"owner_wallet"`
	AssociatedWallets []string `json:"associated_wallets,omitempty"`
}

// ListenRecord is one entry of a user's listening history: a single play
// of a track. The per-user log is stored chronologically appended, repeat
// plays included, as a JSONB array in 'user_listening_history'.
type ListenRecord struct {
	TrackID   int64     `json:"track_id"`
	Timestamp time.Time `json:"timestamp"`
}

// StatusSnapshot is an opaque payload persisted by background jobs and
// served as-is by the API (e.g. fleet health aggregates).
type StatusSnapshot struct {
	Kind      string          `json:"kind"`
	Payload   json.RawMessage `json:"payload"`
	UpdatedAt time.Time       `json:"updated_at"`
}

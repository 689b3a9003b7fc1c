package auth

import (
	"context"
	"time"
)

// UserStore is the user directory. Implementations return ErrNotFound for
// missing rows and ErrAlreadyExists when a wallet is already bound.
type UserStore interface {
	Create(ctx context.Context, u *User) error
	Find(ctx context.Context, id string) (*User, error)
	FindByWallet(ctx context.Context, wallet string) (*User, error)
	// RecordLogin increments login_count and sets last_login_at, returning the updated row.
	RecordLogin(ctx context.Context, id string, at time.Time) (*User, error)
	SetRole(ctx context.Context, id, role string) (*User, error)
}

// TokenStore persists personal access tokens. FindByHash is the hot path and
// must be an indexed equality lookup.
type TokenStore interface {
	Create(ctx context.Context, tok *APIToken) error
	Find(ctx context.Context, id string) (*APIToken, error)
	FindByHash(ctx context.Context, hash string) (*APIToken, error)
	ListByUser(ctx context.Context, userID string) ([]*APIToken, error)
	// Revoke sets revoked_at once; revoking an already revoked token is a no-op.
	Revoke(ctx context.Context, id string, at time.Time) error
	TouchLastUsed(ctx context.Context, id string, at time.Time) error
}

package auth

import "time"

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// User is a platform account. Accounts are created by the first wallet login.
type User struct {
	ID          string     `json:"id"`
	Wallet      string     `json:"wallet,omitempty"`
	Username    string     `json:"username"`
	Role        string     `json:"role"`
	LoginCount  int64      `json:"login_count"`
	LastLoginAt *time.Time `json:"last_login_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// APIToken is the persisted form of a personal access token. The plaintext secret
// is never stored; TokenHash holds its SHA-256 digest.
type APIToken struct {
	ID         string     `json:"id"`
	UserID     string     `json:"user_id"`
	Name       string     `json:"name"`
	TokenHash  string     `json:"-"`
	Scopes     []Scope    `json:"scopes"`
	CreatedAt  time.Time  `json:"created_at"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
	RevokedAt  *time.Time `json:"revoked_at,omitempty"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
}

// Status reports the lifecycle state of the token at instant now.
func (t APIToken) Status(now time.Time) TokenStatus {
	switch {
	case t.RevokedAt != nil:
		return TokenRevoked
	case t.ExpiresAt != nil && !now.Before(*t.ExpiresAt):
		return TokenExpired
	default:
		return TokenActive
	}
}

// TokenStatus is the derived lifecycle state of a PAT.
type TokenStatus string

const (
	TokenActive  TokenStatus = "active"
	TokenRevoked TokenStatus = "revoked"
	TokenExpired TokenStatus = "expired"
)

// RoleInfo is the resolved privilege of a user.
type RoleInfo struct {
	Role    string `json:"role"`
	IsAdmin bool   `json:"is_admin"`
}

package auth

import (
	"context"
	"errors"
	"strings"
)

// AdminResolver decides admin privilege. A user is an admin when their role is
// "admin" or their wallet is on the reserved allow-list.
type AdminResolver struct {
	users   UserStore
	wallets map[string]struct{}
}

// NewAdminResolver builds a resolver. reservedWallets is the explicit trust anchor
// for wallets that are always admins regardless of their stored role.
func NewAdminResolver(users UserStore, reservedWallets []string) *AdminResolver {
	set := make(map[string]struct{}, len(reservedWallets))
	for _, w := range reservedWallets {
		if w = strings.TrimSpace(w); w != "" {
			set[w] = struct{}{}
		}
	}
	return &AdminResolver{users: users, wallets: set}
}

// ReservedWallets returns the configured allow-list.
func (r *AdminResolver) ReservedWallets() []string {
	out := make([]string, 0, len(r.wallets))
	for w := range r.wallets {
		out = append(out, w)
	}
	return out
}

// IsAdmin reports whether userID holds admin privilege. Unknown users are not admins.
func (r *AdminResolver) IsAdmin(ctx context.Context, userID string) (bool, error) {
	info, err := r.UserRole(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return info.IsAdmin, nil
}

// UserRole returns the stored role and the resolved admin flag.
func (r *AdminResolver) UserRole(ctx context.Context, userID string) (RoleInfo, error) {
	if strings.TrimSpace(userID) == "" {
		return RoleInfo{}, ErrNotFound
	}
	u, err := r.users.Find(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return RoleInfo{}, ErrNotFound
		}
		return RoleInfo{}, internalErr("find user", err)
	}
	return RoleInfo{Role: u.Role, IsAdmin: r.resolve(u)}, nil
}

// RequireAdmin fails with ErrNotAdmin unless userID is an admin. Privileged
// operations call it before touching any data.
func (r *AdminResolver) RequireAdmin(ctx context.Context, userID string) error {
	ok, err := r.IsAdmin(ctx, userID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotAdmin
	}
	return nil
}

func (r *AdminResolver) resolve(u *User) bool {
	if u.Role == RoleAdmin {
		return true
	}
	if u.Wallet == "" {
		return false
	}
	_, reserved := r.wallets[u.Wallet]
	return reserved
}

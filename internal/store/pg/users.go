package pg

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"ideaboard.app/internal/auth"
	"ideaboard.app/internal/ids"
)

// UserStore implements auth.UserStore on the users table.
type UserStore struct {
	db *sql.DB
}

var _ auth.UserStore = (*UserStore)(nil)

const userColumns = `id, coalesce(wallet, ''), username, role, login_count, last_login_at, created_at`

func scanUser(row interface{ Scan(...any) error }) (*auth.User, error) {
	var (
		u         auth.User
		lastLogin sql.NullTime
	)
	if err := row.Scan(&u.ID, &u.Wallet, &u.Username, &u.Role, &u.LoginCount, &lastLogin, &u.CreatedAt); err != nil {
		return nil, err
	}
	u.LastLoginAt = timePtr(lastLogin)
	u.CreatedAt = u.CreatedAt.UTC()
	return &u, nil
}

func (s *UserStore) Create(ctx context.Context, u *auth.User) error {
	if s.db == nil {
		return errNoDB
	}
	if u.ID == "" {
		u.ID = ids.New()
	}
	if u.Role == "" {
		u.Role = auth.RoleUser
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		insert into users (id, wallet, username, role, login_count, last_login_at, created_at)
		values ($1, $2, $3, $4, $5, $6, $7)
	`, u.ID, nullIfEmpty(u.Wallet), u.Username, u.Role, u.LoginCount, nullTime(u.LastLoginAt), u.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return auth.ErrAlreadyExists
		}
		return err
	}
	return nil
}

func (s *UserStore) Find(ctx context.Context, id string) (*auth.User, error) {
	if s.db == nil {
		return nil, errNoDB
	}
	u, err := scanUser(s.db.QueryRowContext(ctx, `select `+userColumns+` from users where id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auth.ErrNotFound
	}
	return u, err
}

func (s *UserStore) FindByWallet(ctx context.Context, wallet string) (*auth.User, error) {
	if s.db == nil {
		return nil, errNoDB
	}
	u, err := scanUser(s.db.QueryRowContext(ctx, `select `+userColumns+` from users where wallet = $1`, wallet))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auth.ErrNotFound
	}
	return u, err
}

// RecordLogin increments the login counter in the database so concurrent logins
// never lose an update.
func (s *UserStore) RecordLogin(ctx context.Context, id string, at time.Time) (*auth.User, error) {
	if s.db == nil {
		return nil, errNoDB
	}
	u, err := scanUser(s.db.QueryRowContext(ctx, `
		update users
		set login_count = login_count + 1, last_login_at = $2
		where id = $1
		returning `+userColumns, id, at.UTC()))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auth.ErrNotFound
	}
	return u, err
}

func (s *UserStore) SetRole(ctx context.Context, id, role string) (*auth.User, error) {
	if s.db == nil {
		return nil, errNoDB
	}
	u, err := scanUser(s.db.QueryRowContext(ctx, `
		update users set role = $2
		where id = $1
		returning `+userColumns, id, role))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auth.ErrNotFound
	}
	return u, err
}

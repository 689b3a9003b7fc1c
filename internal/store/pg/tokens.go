package pg

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgtype"

	"ideaboard.app/internal/auth"
	"ideaboard.app/internal/ids"
)

// TokenStore implements auth.TokenStore on the api_tokens table. Only the hash of a
// token is ever written.
type TokenStore struct {
	db    *sql.DB
	types *pgtype.Map
}

var _ auth.TokenStore = (*TokenStore)(nil)

const tokenColumns = `id, user_id, name, token_hash, scopes, created_at, expires_at, revoked_at, last_used_at`

func (s *TokenStore) scanToken(row interface{ Scan(...any) error }) (*auth.APIToken, error) {
	var (
		t                          auth.APIToken
		scopes                     []string
		expires, revoked, lastUsed sql.NullTime
	)
	if err := row.Scan(&t.ID, &t.UserID, &t.Name, &t.TokenHash, s.types.SQLScanner(&scopes), &t.CreatedAt, &expires, &revoked, &lastUsed); err != nil {
		return nil, err
	}
	t.Scopes = auth.ScopesFromStrings(scopes)
	t.CreatedAt = t.CreatedAt.UTC()
	t.ExpiresAt = timePtr(expires)
	t.RevokedAt = timePtr(revoked)
	t.LastUsedAt = timePtr(lastUsed)
	return &t, nil
}

func (s *TokenStore) Create(ctx context.Context, tok *auth.APIToken) error {
	if s.db == nil {
		return errNoDB
	}
	if tok.ID == "" {
		tok.ID = ids.New()
	}
	if tok.CreatedAt.IsZero() {
		tok.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		insert into api_tokens (id, user_id, name, token_hash, scopes, created_at, expires_at)
		values ($1, $2, $3, $4, $5, $6, $7)
	`, tok.ID, tok.UserID, tok.Name, tok.TokenHash, auth.ScopeStrings(tok.Scopes), tok.CreatedAt, nullTime(tok.ExpiresAt))
	if err != nil {
		if isUniqueViolation(err) {
			return auth.ErrAlreadyExists
		}
		return err
	}
	return nil
}

func (s *TokenStore) Find(ctx context.Context, id string) (*auth.APIToken, error) {
	if s.db == nil {
		return nil, errNoDB
	}
	t, err := s.scanToken(s.db.QueryRowContext(ctx, `select `+tokenColumns+` from api_tokens where id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auth.ErrNotFound
	}
	return t, err
}

func (s *TokenStore) FindByHash(ctx context.Context, hash string) (*auth.APIToken, error) {
	if s.db == nil {
		return nil, errNoDB
	}
	t, err := s.scanToken(s.db.QueryRowContext(ctx, `select `+tokenColumns+` from api_tokens where token_hash = $1`, hash))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auth.ErrNotFound
	}
	return t, err
}

func (s *TokenStore) ListByUser(ctx context.Context, userID string) ([]*auth.APIToken, error) {
	if s.db == nil {
		return nil, errNoDB
	}
	rows, err := s.db.QueryContext(ctx, `
		select `+tokenColumns+`
		from api_tokens
		where user_id = $1
		order by created_at desc, id desc
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*auth.APIToken
	for rows.Next() {
		t, err := s.scanToken(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// Revoke stamps revoked_at once; later calls keep the original timestamp.
func (s *TokenStore) Revoke(ctx context.Context, id string, at time.Time) error {
	if s.db == nil {
		return errNoDB
	}
	res, err := s.db.ExecContext(ctx, `
		update api_tokens set revoked_at = coalesce(revoked_at, $2)
		where id = $1
	`, id, at.UTC())
	if err != nil {
		return err
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if aff == 0 {
		return auth.ErrNotFound
	}
	return nil
}

func (s *TokenStore) TouchLastUsed(ctx context.Context, id string, at time.Time) error {
	if s.db == nil {
		return errNoDB
	}
	_, err := s.db.ExecContext(ctx, `update api_tokens set last_used_at = $2 where id = $1`, id, at.UTC())
	return err
}

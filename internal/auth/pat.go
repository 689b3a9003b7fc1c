package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"ideaboard.app/internal/ids"
	"ideaboard.app/internal/obs"
	"ideaboard.app/internal/tasks"
)

const (
	// TokenPrefix marks every personal access token so leaked strings are
	// recognizable and non-PAT bearer values are rejected without a store lookup.
	TokenPrefix = "ib_pat_"

	tokenSecretBytes = 32
	maxTokenNameLen  = 100
)

var tokenPattern = regexp.MustCompile(`^` + TokenPrefix + `[0-9a-f]{64}$`)

// Submitter schedules best-effort work off the request path.
type Submitter interface {
	Submit(name string, fn tasks.Func) bool
}

// CreateTokenRequest describes a new PAT.
type CreateTokenRequest struct {
	Name      string
	Scopes    []Scope
	ExpiresAt *time.Time
}

// TokenManager implements the PAT lifecycle: create, list, revoke, authenticate.
type TokenManager struct {
	tokens TokenStore
	runner Submitter
	now    func() time.Time
	random io.Reader
}

// TokenManagerOption configures TokenManager.
type TokenManagerOption func(*TokenManager)

// WithTokenClock overrides the time source (tests).
func WithTokenClock(fn func() time.Time) TokenManagerOption {
	return func(m *TokenManager) {
		if fn != nil {
			m.now = fn
		}
	}
}

// WithRandom overrides the entropy source (tests).
func WithRandom(r io.Reader) TokenManagerOption {
	return func(m *TokenManager) {
		if r != nil {
			m.random = r
		}
	}
}

// NewTokenManager constructs a TokenManager. runner receives last-used refreshes;
// a nil runner disables them.
func NewTokenManager(store TokenStore, runner Submitter, opts ...TokenManagerOption) *TokenManager {
	m := &TokenManager{
		tokens: store,
		runner: runner,
		now:    time.Now,
		random: rand.Reader,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// CreateToken generates a token for userID and returns its plaintext. The
// plaintext is not stored anywhere and cannot be recovered after this call.
func (m *TokenManager) CreateToken(ctx context.Context, userID string, req CreateTokenRequest) (string, *APIToken, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return "", nil, fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}
	name := strings.TrimSpace(req.Name)
	if name == "" || utf8.RuneCountInString(name) > maxTokenNameLen {
		return "", nil, fmt.Errorf("%w: name must be 1-%d characters", ErrInvalidInput, maxTokenNameLen)
	}
	scopes, err := ParseScopes(ScopeStrings(req.Scopes))
	if err != nil {
		return "", nil, err
	}
	now := m.now().UTC()
	var expiresAt *time.Time
	if req.ExpiresAt != nil {
		exp := req.ExpiresAt.UTC()
		if !exp.After(now) {
			return "", nil, fmt.Errorf("%w: expires_at must be in the future", ErrInvalidInput)
		}
		expiresAt = &exp
	}

	plaintext, err := m.generateSecret()
	if err != nil {
		return "", nil, internalErr("generate token", err)
	}
	tok := &APIToken{
		ID:        ids.New(),
		UserID:    userID,
		Name:      name,
		TokenHash: HashSecret(plaintext),
		Scopes:    scopes,
		CreatedAt: now,
		ExpiresAt: expiresAt,
	}
	if err := m.tokens.Create(ctx, tok); err != nil {
		return "", nil, internalErr("store token", err)
	}
	meta := *tok
	meta.TokenHash = ""
	return plaintext, &meta, nil
}

// ListTokens returns the caller's tokens, newest first, without hashes.
func (m *TokenManager) ListTokens(ctx context.Context, userID string) ([]*APIToken, error) {
	list, err := m.tokens.ListByUser(ctx, userID)
	if err != nil {
		return nil, internalErr("list tokens", err)
	}
	for _, tok := range list {
		tok.TokenHash = ""
	}
	return list, nil
}

// RevokeToken revokes tokenID on behalf of userID. Unknown ids and tokens owned by
// another user fail with the same ErrTokenForbidden. Revoking twice succeeds.
func (m *TokenManager) RevokeToken(ctx context.Context, userID, tokenID string) error {
	tokenID = strings.TrimSpace(tokenID)
	if !ids.Valid(tokenID) {
		return ErrTokenForbidden
	}
	tok, err := m.tokens.Find(ctx, tokenID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrTokenForbidden
		}
		return internalErr("find token", err)
	}
	if !CompareConstantTime(tok.UserID, userID) {
		return ErrTokenForbidden
	}
	if err := m.tokens.Revoke(ctx, tok.ID, m.now().UTC()); err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrTokenForbidden
		}
		return internalErr("revoke token", err)
	}
	return nil
}

// Authenticate resolves a PAT plaintext to a principal. Malformed, unknown,
// revoked and expired tokens all fail with ErrUnauthorized.
func (m *TokenManager) Authenticate(ctx context.Context, bearer string) (Principal, error) {
	if !tokenPattern.MatchString(bearer) {
		obs.ObserveAuth("pat", "format")
		return Principal{}, ErrInvalidFormat
	}
	hash := HashSecret(bearer)
	tok, err := m.tokens.FindByHash(ctx, hash)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			obs.ObserveAuth("pat", "not_found")
			return Principal{}, ErrUnauthorized
		}
		obs.ObserveAuth("pat", "error")
		return Principal{}, internalErr("lookup token", err)
	}
	if !CompareConstantTime(tok.TokenHash, hash) {
		obs.ObserveAuth("pat", "not_found")
		return Principal{}, ErrUnauthorized
	}
	now := m.now().UTC()
	if status := tok.Status(now); status != TokenActive {
		obs.ObserveAuth("pat", string(status))
		return Principal{}, ErrUnauthorized
	}

	m.touch(tok.ID, now)
	obs.ObserveAuth("pat", "ok")
	return Principal{
		UserID:  tok.UserID,
		Kind:    KindPAT,
		TokenID: tok.ID,
		Scopes:  tok.Scopes,
	}, nil
}

func (m *TokenManager) touch(tokenID string, at time.Time) {
	if m.runner == nil {
		return
	}
	store := m.tokens
	m.runner.Submit("pat.touch_last_used", func(ctx context.Context) error {
		return store.TouchLastUsed(ctx, tokenID, at)
	})
}

func (m *TokenManager) generateSecret() (string, error) {
	buf := make([]byte, tokenSecretBytes)
	if _, err := io.ReadFull(m.random, buf); err != nil {
		return "", err
	}
	return TokenPrefix + hex.EncodeToString(buf), nil
}

// HasTokenPrefix reports whether s claims to be a PAT. It does not validate the body.
func HasTokenPrefix(s string) bool {
	return strings.HasPrefix(s, TokenPrefix)
}

package auth

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func newTestTokenManager(t *testing.T, clock *fixedClock) (*TokenManager, *MemoryTokenStore, *inlineRunner) {
	t.Helper()
	store := NewMemoryStore().Tokens()
	runner := &inlineRunner{}
	return NewTokenManager(store, runner, WithTokenClock(clock.Now)), store, runner
}

func TestTokenLifecycle(t *testing.T) {
	ctx := context.Background()
	clock := newFixedClock(time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC))
	mgr, store, runner := newTestTokenManager(t, clock)

	plaintext, meta, err := mgr.CreateToken(ctx, "user-1", CreateTokenRequest{
		Name:   "bot",
		Scopes: []Scope{ScopePostRead},
	})
	if err != nil {
		t.Fatalf("CreateToken: %v", err)
	}
	if !tokenPattern.MatchString(plaintext) {
		t.Fatalf("plaintext %q does not match token format", plaintext)
	}
	if meta.TokenHash != "" {
		t.Fatal("returned metadata must not carry the hash")
	}

	stored, err := store.Find(ctx, meta.ID)
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if stored.TokenHash != HashSecret(plaintext) {
		t.Fatal("store must hold the SHA-256 of the plaintext")
	}
	if strings.Contains(stored.TokenHash, plaintext) || stored.TokenHash == plaintext {
		t.Fatal("plaintext leaked into storage")
	}

	p, err := mgr.Authenticate(ctx, plaintext)
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if p.UserID != "user-1" || p.Kind != KindPAT || p.TokenID != meta.ID {
		t.Fatalf("unexpected principal %+v", p)
	}
	if err := p.Require(ScopePostRead); err != nil {
		t.Fatalf("post:read should be granted: %v", err)
	}
	if err := p.Require(ScopePostWrite); !errors.Is(err, ErrForbidden) {
		t.Fatalf("post:write should be denied, got %v", err)
	}
	if len(runner.names) != 1 || runner.names[0] != "pat.touch_last_used" {
		t.Fatalf("expected last-used refresh, got %v", runner.names)
	}
	touched, _ := store.Find(ctx, meta.ID)
	if touched.LastUsedAt == nil || !touched.LastUsedAt.Equal(clock.Now()) {
		t.Fatalf("last_used_at not refreshed: %v", touched.LastUsedAt)
	}

	if err := mgr.RevokeToken(ctx, "user-1", meta.ID); err != nil {
		t.Fatalf("RevokeToken: %v", err)
	}
	if _, err := mgr.Authenticate(ctx, plaintext); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("revoked token must fail, got %v", err)
	}

	first, _ := store.Find(ctx, meta.ID)
	clock.Advance(time.Minute)
	if err := mgr.RevokeToken(ctx, "user-1", meta.ID); err != nil {
		t.Fatalf("second revoke should succeed: %v", err)
	}
	second, _ := store.Find(ctx, meta.ID)
	if !second.RevokedAt.Equal(*first.RevokedAt) {
		t.Fatal("revoked_at must not move on repeat revoke")
	}
}

func TestCreateTokenValidation(t *testing.T) {
	ctx := context.Background()
	clock := newFixedClock(time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC))
	mgr, _, _ := newTestTokenManager(t, clock)
	past := clock.Now().Add(-time.Second)

	cases := []struct {
		name string
		req  CreateTokenRequest
	}{
		{"empty name", CreateTokenRequest{Name: "  ", Scopes: []Scope{ScopePostRead}}},
		{"long name", CreateTokenRequest{Name: strings.Repeat("x", 101), Scopes: []Scope{ScopePostRead}}},
		{"no scopes", CreateTokenRequest{Name: "bot"}},
		{"unknown scope", CreateTokenRequest{Name: "bot", Scopes: []Scope{"admin:all"}}},
		{"past expiry", CreateTokenRequest{Name: "bot", Scopes: []Scope{ScopePostRead}, ExpiresAt: &past}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, _, err := mgr.CreateToken(ctx, "user-1", tc.req); !errors.Is(err, ErrInvalidInput) {
				t.Fatalf("expected ErrInvalidInput, got %v", err)
			}
		})
	}
}

func TestAuthenticateExpiredToken(t *testing.T) {
	ctx := context.Background()
	clock := newFixedClock(time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC))
	mgr, _, _ := newTestTokenManager(t, clock)
	exp := clock.Now().Add(time.Hour)
	plaintext, _, err := mgr.CreateToken(ctx, "user-1", CreateTokenRequest{
		Name: "ci", Scopes: []Scope{ScopePostWrite}, ExpiresAt: &exp,
	})
	if err != nil {
		t.Fatalf("CreateToken: %v", err)
	}
	if _, err := mgr.Authenticate(ctx, plaintext); err != nil {
		t.Fatalf("token should be valid before expiry: %v", err)
	}
	clock.Advance(time.Hour)
	if _, err := mgr.Authenticate(ctx, plaintext); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("token at expiry instant must fail, got %v", err)
	}
}

func TestAuthenticateRejectsMalformedWithoutLookup(t *testing.T) {
	ctx := context.Background()
	clock := newFixedClock(time.Now())
	mgr, _, runner := newTestTokenManager(t, clock)
	for _, tok := range []string{
		"",
		"ib_pat_",
		"ib_pat_" + strings.Repeat("A", 64),
		"ib_pat_" + strings.Repeat("0", 63),
		"gh_pat_" + strings.Repeat("0", 64),
		"ib_pat_" + strings.Repeat("0", 64) + " ",
	} {
		_, err := mgr.Authenticate(ctx, tok)
		if !errors.Is(err, ErrInvalidFormat) || !errors.Is(err, ErrUnauthorized) {
			t.Fatalf("Authenticate(%q) = %v, want ErrInvalidFormat", tok, err)
		}
	}
	if _, err := mgr.Authenticate(ctx, "ib_pat_"+strings.Repeat("0", 64)); !errors.Is(err, ErrUnauthorized) || errors.Is(err, ErrInvalidFormat) {
		t.Fatalf("well-formed unknown token should be plain unauthorized, got %v", err)
	}
	if len(runner.names) != 0 {
		t.Fatal("failed authentications must not schedule work")
	}
}

func TestRevokeTokenNotOwned(t *testing.T) {
	ctx := context.Background()
	clock := newFixedClock(time.Now())
	mgr, store, _ := newTestTokenManager(t, clock)
	_, meta, err := mgr.CreateToken(ctx, "owner", CreateTokenRequest{Name: "bot", Scopes: []Scope{ScopePostRead}})
	if err != nil {
		t.Fatalf("CreateToken: %v", err)
	}
	if err := mgr.RevokeToken(ctx, "intruder", meta.ID); !errors.Is(err, ErrTokenForbidden) {
		t.Fatalf("expected ErrTokenForbidden, got %v", err)
	}
	tok, _ := store.Find(ctx, meta.ID)
	if tok.RevokedAt != nil {
		t.Fatal("non-owner revoke must not change the token")
	}
	for _, id := range []string{"", "not-an-id", "01ARZ3NDEKTSV4RRFFQ69G5FAV"} {
		if err := mgr.RevokeToken(ctx, "owner", id); !errors.Is(err, ErrForbidden) {
			t.Fatalf("RevokeToken(%q) = %v, want forbidden", id, err)
		}
	}
}

func TestListTokensNewestFirstWithoutHashes(t *testing.T) {
	ctx := context.Background()
	clock := newFixedClock(time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC))
	mgr, _, _ := newTestTokenManager(t, clock)
	for _, name := range []string{"first", "second", "third"} {
		if _, _, err := mgr.CreateToken(ctx, "user-1", CreateTokenRequest{Name: name, Scopes: []Scope{ScopePostRead}}); err != nil {
			t.Fatalf("CreateToken: %v", err)
		}
		clock.Advance(time.Second)
	}
	if _, _, err := mgr.CreateToken(ctx, "user-2", CreateTokenRequest{Name: "other", Scopes: []Scope{ScopePostRead}}); err != nil {
		t.Fatalf("CreateToken: %v", err)
	}
	list, err := mgr.ListTokens(ctx, "user-1")
	if err != nil {
		t.Fatalf("ListTokens: %v", err)
	}
	if len(list) != 3 {
		t.Fatalf("expected 3 tokens, got %d", len(list))
	}
	if list[0].Name != "third" || list[2].Name != "first" {
		t.Fatalf("unexpected order: %s, %s, %s", list[0].Name, list[1].Name, list[2].Name)
	}
	for _, tok := range list {
		if tok.TokenHash != "" {
			t.Fatal("list must not expose hashes")
		}
	}
}

func TestCreateTokenUsesEntropySource(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore().Tokens()
	mgr := NewTokenManager(store, nil, WithRandom(strings.NewReader(strings.Repeat("\x01", 32))))
	plaintext, _, err := mgr.CreateToken(ctx, "u", CreateTokenRequest{Name: "bot", Scopes: []Scope{ScopePostRead}})
	if err != nil {
		t.Fatalf("CreateToken: %v", err)
	}
	if want := TokenPrefix + strings.Repeat("01", 32); plaintext != want {
		t.Fatalf("plaintext = %q, want %q", plaintext, want)
	}
	if _, _, err := mgr.CreateToken(ctx, "u", CreateTokenRequest{Name: "bot", Scopes: []Scope{ScopePostRead}}); !errors.Is(err, ErrInternal) {
		t.Fatalf("exhausted entropy should be internal error, got %v", err)
	}
}

package auth

import (
	"context"
	"errors"
	"testing"
)

func TestParseScopes(t *testing.T) {
	got, err := ParseScopes([]string{" Post:Read ", "post:read", "comment:reply", ""})
	if err != nil {
		t.Fatalf("ParseScopes: %v", err)
	}
	if len(got) != 2 || got[0] != ScopePostRead || got[1] != ScopeCommentReply {
		t.Fatalf("unexpected scopes %v", got)
	}
	if _, err := ParseScopes([]string{"post:read", "post:delete"}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected unknown scope to fail, got %v", err)
	}
	if _, err := ParseScopes(nil); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected empty set to fail, got %v", err)
	}
}

func TestEnsureScopeIsFlat(t *testing.T) {
	if err := EnsureScope([]Scope{ScopePostWrite}, ScopePostRead); !errors.Is(err, ErrScopeDenied) {
		t.Fatalf("post:write must not imply post:read, got %v", err)
	}
	if err := EnsureScope([]Scope{ScopeCommentWrite, ScopeCommentReply}, ScopeCommentReply); err != nil {
		t.Fatalf("EnsureScope: %v", err)
	}
	if err := EnsureScope(nil, ScopePostRead); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
}

func TestPrincipalRequire(t *testing.T) {
	session := Principal{UserID: "u", Kind: KindSession}
	for _, s := range AllScopes {
		if err := session.Require(s); err != nil {
			t.Fatalf("session denied %s: %v", s, err)
		}
	}
	pat := Principal{UserID: "u", Kind: KindPAT, Scopes: []Scope{ScopeCommentWrite}}
	if err := pat.Require(ScopeCommentWrite); err != nil {
		t.Fatalf("Require: %v", err)
	}
	if err := pat.Require(ScopePostWrite); !errors.Is(err, ErrScopeDenied) {
		t.Fatalf("expected ErrScopeDenied, got %v", err)
	}
}

func TestPrincipalContext(t *testing.T) {
	ctx := context.Background()
	if _, ok := PrincipalFromContext(ctx); ok {
		t.Fatal("empty context has no principal")
	}
	ctx = ContextWithPrincipal(ctx, Principal{UserID: "u1", Kind: KindPAT, TokenID: "t1"})
	p, ok := PrincipalFromContext(ctx)
	if !ok || p.UserID != "u1" || p.TokenID != "t1" {
		t.Fatalf("PrincipalFromContext = %+v, %v", p, ok)
	}
	if kind, ok := KindFromContext(ctx); !ok || kind != KindPAT {
		t.Fatalf("KindFromContext = %q, %v", kind, ok)
	}
	if id, ok := UserIDFromContext(ctx); !ok || id != "u1" {
		t.Fatalf("UserIDFromContext = %q, %v", id, ok)
	}
}

func TestTokenStatus(t *testing.T) {
	now := mustTime(t, "2026-01-01T00:00:00Z")
	later := now.Add(1)
	tok := APIToken{}
	if tok.Status(now) != TokenActive {
		t.Fatal("no expiry means active")
	}
	tok.ExpiresAt = &later
	if tok.Status(now) != TokenActive {
		t.Fatal("future expiry means active")
	}
	tok.ExpiresAt = &now
	if tok.Status(now) != TokenExpired {
		t.Fatal("expiry at now means expired")
	}
	tok.RevokedAt = &later
	if tok.Status(now) != TokenRevoked {
		t.Fatal("revocation wins")
	}
}

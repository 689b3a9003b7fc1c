package auth

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestNewSessionIssuerRejectsWeakSecret(t *testing.T) {
	if _, err := NewSessionIssuer(""); err == nil {
		t.Fatal("expected error for empty secret")
	}
	if _, err := NewSessionIssuer("short"); err == nil {
		t.Fatal("expected error for short secret")
	}
}

func TestSessionIssueValidateRoundTrip(t *testing.T) {
	clock := newFixedClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	s := newTestSessions(t, WithSessionClock(clock.Now))

	token, exp, err := s.Issue(SessionClaims{UserID: "u1", Wallet: "w1", Username: "alice"}, 0)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if want := clock.Now().Add(DefaultSessionTTL); !exp.Equal(want) {
		t.Fatalf("expires_at = %s, want %s", exp, want)
	}
	if !looksLikeJWT(token) {
		t.Fatalf("token %q is not JWT-shaped", token)
	}

	claims, err := s.Validate(token)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if claims.UserID != "u1" || claims.Wallet != "w1" || claims.Username != "alice" {
		t.Fatalf("unexpected claims %+v", claims)
	}
	if !claims.ExpiresAt.Equal(exp) {
		t.Fatalf("claims expiry %s != %s", claims.ExpiresAt, exp)
	}
}

func TestSessionValidateRejectsExpired(t *testing.T) {
	clock := newFixedClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	s := newTestSessions(t, WithSessionClock(clock.Now))
	token, _, err := s.Issue(SessionClaims{UserID: "u1"}, time.Hour)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	clock.Advance(time.Hour + time.Second)
	if _, err := s.Validate(token); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for expired token, got %v", err)
	}
}

func TestSessionValidateRejectsForeignSecretAndTampering(t *testing.T) {
	s := newTestSessions(t)
	other, err := NewSessionIssuer("another-secret-entirely")
	if err != nil {
		t.Fatalf("NewSessionIssuer: %v", err)
	}
	token, _, err := other.Issue(SessionClaims{UserID: "u1"}, 0)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if _, err := s.Validate(token); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("foreign token accepted: %v", err)
	}

	mine, _, err := s.Issue(SessionClaims{UserID: "u1"}, 0)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	parts := strings.Split(mine, ".")
	sig := []byte(parts[2])
	if sig[0] == 'A' {
		sig[0] = 'B'
	} else {
		sig[0] = 'A'
	}
	tampered := parts[0] + "." + parts[1] + "." + string(sig)
	if _, err := s.Validate(tampered); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("tampered token accepted: %v", err)
	}
}

func TestSessionValidateRejectsOtherIssuer(t *testing.T) {
	a := newTestSessions(t, WithIssuer("a"))
	b := newTestSessions(t, WithIssuer("b"))
	token, _, err := a.Issue(SessionClaims{UserID: "u1"}, 0)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if _, err := b.Validate(token); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected issuer mismatch to fail, got %v", err)
	}
}

func TestSessionIssueRequiresUser(t *testing.T) {
	s := newTestSessions(t)
	if _, _, err := s.Issue(SessionClaims{}, 0); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestSessionValidateGarbage(t *testing.T) {
	s := newTestSessions(t)
	for _, tok := range []string{"", "a.b.c", "not-a-jwt", TokenPrefix + strings.Repeat("0", 64)} {
		if _, err := s.Validate(tok); !errors.Is(err, ErrUnauthorized) {
			t.Fatalf("Validate(%q) = %v, want ErrUnauthorized", tok, err)
		}
	}
}

package auth

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/hkdf"
)

const (
	defaultIssuer     = "ideaboard"
	DefaultSessionTTL = 7 * 24 * time.Hour

	sessionKeyInfo = "ideaboard/session/hs256/v1"
	minSecretLen   = 16
)

var errMissingSecret = errors.New("auth: session secret is not configured")

// SessionClaims is the identity carried by a session token.
type SessionClaims struct {
	UserID    string
	Wallet    string
	Username  string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

type sessionJWT struct {
	Wallet   string `json:"wallet,omitempty"`
	Username string `json:"username,omitempty"`
	jwt.RegisteredClaims
}

// SessionIssuer mints and validates stateless HS256 session tokens. There is no
// revocation list: rotating the secret invalidates every outstanding session.
type SessionIssuer struct {
	key    []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// SessionOption configures SessionIssuer.
type SessionOption func(*SessionIssuer)

// WithIssuer overrides the iss claim.
func WithIssuer(issuer string) SessionOption {
	return func(s *SessionIssuer) {
		if issuer = strings.TrimSpace(issuer); issuer != "" {
			s.issuer = issuer
		}
	}
}

// WithSessionTTL overrides the default session lifetime.
func WithSessionTTL(ttl time.Duration) SessionOption {
	return func(s *SessionIssuer) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithSessionClock overrides the time source (tests).
func WithSessionClock(fn func() time.Time) SessionOption {
	return func(s *SessionIssuer) {
		if fn != nil {
			s.now = fn
		}
	}
}

// NewSessionIssuer derives the signing key from secret with HKDF-SHA256.
func NewSessionIssuer(secret string, opts ...SessionOption) (*SessionIssuer, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, errMissingSecret
	}
	if len(secret) < minSecretLen {
		return nil, fmt.Errorf("auth: session secret must be at least %d bytes", minSecretLen)
	}
	key := make([]byte, 32)
	if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(secret), nil, []byte(sessionKeyInfo)), key); err != nil {
		return nil, fmt.Errorf("auth: derive session key: %w", err)
	}
	s := &SessionIssuer{
		key:    key,
		issuer: defaultIssuer,
		ttl:    DefaultSessionTTL,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// TTL returns the default session lifetime.
func (s *SessionIssuer) TTL() time.Duration { return s.ttl }

// Issue signs a session token. ttl <= 0 falls back to the configured default.
func (s *SessionIssuer) Issue(claims SessionClaims, ttl time.Duration) (string, time.Time, error) {
	userID := strings.TrimSpace(claims.UserID)
	if userID == "" {
		return "", time.Time{}, fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}
	if ttl <= 0 {
		ttl = s.ttl
	}
	now := s.now().UTC()
	exp := now.Add(ttl)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, sessionJWT{
		Wallet:   claims.Wallet,
		Username: claims.Username,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			ID:        uuid.NewString(),
		},
	})
	signed, err := token.SignedString(s.key)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign session: %w", err)
	}
	return signed, exp, nil
}

// Validate verifies signature and expiry together and returns the claims.
// Every failure is reported as ErrUnauthorized.
func (s *SessionIssuer) Validate(token string) (SessionClaims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return SessionClaims{}, ErrUnauthorized
	}
	parsed, err := jwt.ParseWithClaims(token, &sessionJWT{}, func(t *jwt.Token) (any, error) {
		return s.key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil || !parsed.Valid {
		return SessionClaims{}, ErrUnauthorized
	}
	claims, ok := parsed.Claims.(*sessionJWT)
	if !ok {
		return SessionClaims{}, ErrUnauthorized
	}
	if err := s.validateClaims(claims); err != nil {
		return SessionClaims{}, ErrUnauthorized
	}
	return SessionClaims{
		UserID:    claims.Subject,
		Wallet:    claims.Wallet,
		Username:  claims.Username,
		IssuedAt:  claims.IssuedAt.Time,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

func (s *SessionIssuer) validateClaims(claims *sessionJWT) error {
	if strings.TrimSpace(claims.Subject) == "" {
		return errors.New("subject missing")
	}
	if claims.ExpiresAt == nil || claims.IssuedAt == nil {
		return errors.New("timestamps missing")
	}
	now := s.now().UTC()
	// Allow a small clock skew of 5 seconds when validating issued-at.
	if claims.IssuedAt.Time.After(now.Add(5 * time.Second)) {
		return errors.New("token issued in the future")
	}
	if claims.ExpiresAt.Time.Before(claims.IssuedAt.Time) {
		return errors.New("token expiry precedes issued-at")
	}
	return nil
}

// looksLikeJWT reports whether s has the three-segment compact JWS shape.
func looksLikeJWT(s string) bool {
	parts := strings.Split(s, ".")
	if len(parts) != 3 {
		return false
	}
	for _, p := range parts {
		if p == "" {
			return false
		}
	}
	return true
}

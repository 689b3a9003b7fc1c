package auth

import (
	"context"
	"strings"

	"ideaboard.app/internal/obs"
)

const bearerScheme = "bearer"

// attempt is the tagged outcome of trying one credential kind. NotApplicable means
// the credential was not of this kind; Invalid means it was, and failed.
type attempt int

const (
	attemptNotApplicable attempt = iota
	attemptOK
	attemptInvalid
)

// Guard is the per-request entry point that accepts either a session token or a PAT
// and yields a uniform Principal.
type Guard struct {
	sessions *SessionIssuer
	tokens   *TokenManager
}

// NewGuard wires the two credential paths. Either may be nil to disable it.
func NewGuard(sessions *SessionIssuer, tokens *TokenManager) *Guard {
	return &Guard{sessions: sessions, tokens: tokens}
}

// Authenticate resolves the Authorization header value. The session path is tried
// first; if it does not produce a principal, the header must be "Bearer <token>"
// and the token is handed to the PAT manager, whose error is the one returned.
func (g *Guard) Authenticate(ctx context.Context, header string) (Principal, error) {
	header = strings.TrimSpace(header)

	if p, res := g.trySession(header); res == attemptOK {
		return p, nil
	}

	if header == "" {
		return Principal{}, ErrMissingToken
	}
	token, ok := parseBearer(header)
	if !ok {
		return Principal{}, ErrMalformedHeader
	}
	if g.tokens == nil {
		return Principal{}, ErrUnauthorized
	}
	return g.tokens.Authenticate(ctx, token)
}

// Session validates a session-only credential. Used by routes that must not
// accept PATs, such as token management.
func (g *Guard) Session(header string) (Principal, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return Principal{}, ErrMissingToken
	}
	p, res := g.trySession(header)
	if res != attemptOK {
		return Principal{}, ErrUnauthorized
	}
	return p, nil
}

func (g *Guard) trySession(header string) (Principal, attempt) {
	if g.sessions == nil {
		return Principal{}, attemptNotApplicable
	}
	candidate := header
	if token, ok := parseBearer(header); ok {
		candidate = token
	}
	if candidate == "" || HasTokenPrefix(candidate) || !looksLikeJWT(candidate) {
		return Principal{}, attemptNotApplicable
	}
	claims, err := g.sessions.Validate(candidate)
	if err != nil {
		obs.ObserveAuth("session", "invalid")
		return Principal{}, attemptInvalid
	}
	obs.ObserveAuth("session", "ok")
	return Principal{
		UserID:   claims.UserID,
		Wallet:   claims.Wallet,
		Username: claims.Username,
		Kind:     KindSession,
	}, attemptOK
}

// parseBearer accepts exactly "Bearer <token>" (scheme case-insensitive) with a
// single non-empty token.
func parseBearer(header string) (string, bool) {
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, bearerScheme) {
		return "", false
	}
	if token == "" || strings.ContainsAny(token, " \t\r\n") {
		return "", false
	}
	return token, true
}

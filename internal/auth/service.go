package auth

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"ideaboard.app/internal/obs"
)

const challengeNonceLabel = "Nonce: "

var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_]{3,32}$`)

// ChallengeStore issues single-use login nonces bound to a wallet.
type ChallengeStore interface {
	Issue(ctx context.Context, wallet string) (nonce string, expiresAt time.Time, err error)
	// Consume reports whether nonce was outstanding for wallet and removes it.
	Consume(ctx context.Context, wallet, nonce string) (bool, error)
}

// LoginRequest is a wallet-signed login attempt.
type LoginRequest struct {
	PublicKey string
	Signature string
	Message   string
	// Username is only applied when the login creates the account.
	Username string
}

// LoginResult carries the issued session and the logged-in user.
type LoginResult struct {
	Token     string
	ExpiresAt time.Time
	User      *User
	Created   bool
}

// Challenge is the message a wallet is asked to sign.
type Challenge struct {
	Nonce     string    `json:"nonce"`
	Message   string    `json:"message"`
	ExpiresAt time.Time `json:"expires_at"`
}

// WalletStatus answers the public wallet existence check.
type WalletStatus struct {
	Exists bool   `json:"exists"`
	UserID string `json:"user_id,omitempty"`
}

// Service orchestrates wallet login and user lookups.
type Service struct {
	users      UserStore
	sessions   *SessionIssuer
	challenges ChallengeStore
	now        func() time.Time
}

// ServiceOption configures Service.
type ServiceOption func(*Service)

// WithChallenges requires logins to embed a nonce issued by store.
func WithChallenges(store ChallengeStore) ServiceOption {
	return func(s *Service) {
		s.challenges = store
	}
}

// WithClock overrides the time source (tests).
func WithClock(fn func() time.Time) ServiceOption {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

// NewService constructs Service.
func NewService(users UserStore, sessions *SessionIssuer, opts ...ServiceOption) *Service {
	svc := &Service{
		users:    users,
		sessions: sessions,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// ChallengesEnabled reports whether logins require a nonce.
func (s *Service) ChallengesEnabled() bool { return s.challenges != nil }

// Challenge issues a fresh login nonce for wallet.
func (s *Service) Challenge(ctx context.Context, wallet string) (Challenge, error) {
	if s.challenges == nil {
		return Challenge{}, ErrNotFound
	}
	wallet = strings.TrimSpace(wallet)
	if !ValidWallet(wallet) {
		return Challenge{}, fmt.Errorf("%w: invalid wallet address", ErrInvalidInput)
	}
	nonce, exp, err := s.challenges.Issue(ctx, wallet)
	if err != nil {
		return Challenge{}, internalErr("issue challenge", err)
	}
	return Challenge{
		Nonce:     nonce,
		Message:   ChallengeMessage(wallet, nonce, s.now().UTC()),
		ExpiresAt: exp,
	}, nil
}

// ChallengeMessage renders the text a wallet signs to log in.
func ChallengeMessage(wallet, nonce string, issuedAt time.Time) string {
	return "Sign in to ideaboard\n" +
		"Wallet: " + wallet + "\n" +
		challengeNonceLabel + nonce + "\n" +
		"Issued At: " + issuedAt.UTC().Format(time.RFC3339)
}

// Login verifies the wallet signature, finds or creates the user, records the
// login and issues a session. The signature is checked before any store access.
func (s *Service) Login(ctx context.Context, req LoginRequest) (LoginResult, error) {
	wallet := strings.TrimSpace(req.PublicKey)
	if !VerifySignature(wallet, req.Signature, req.Message) {
		obs.ObserveAuth("login", "bad_signature")
		return LoginResult{}, ErrUnauthorized
	}
	if s.challenges != nil {
		nonce, ok := nonceFromMessage(req.Message)
		if !ok {
			obs.ObserveAuth("login", "missing_nonce")
			return LoginResult{}, ErrUnauthorized
		}
		valid, err := s.challenges.Consume(ctx, wallet, nonce)
		if err != nil {
			return LoginResult{}, internalErr("consume challenge", err)
		}
		if !valid {
			obs.ObserveAuth("login", "stale_nonce")
			return LoginResult{}, ErrUnauthorized
		}
	}

	user, created, err := s.upsertWalletUser(ctx, wallet, req.Username)
	if err != nil {
		return LoginResult{}, err
	}
	token, exp, err := s.sessions.Issue(SessionClaims{
		UserID:   user.ID,
		Wallet:   user.Wallet,
		Username: user.Username,
	}, 0)
	if err != nil {
		return LoginResult{}, internalErr("issue session", err)
	}
	obs.ObserveAuth("login", "ok")
	return LoginResult{Token: token, ExpiresAt: exp, User: user, Created: created}, nil
}

func (s *Service) upsertWalletUser(ctx context.Context, wallet, username string) (*User, bool, error) {
	now := s.now().UTC()
	existing, err := s.users.FindByWallet(ctx, wallet)
	switch {
	case err == nil:
		u, err := s.users.RecordLogin(ctx, existing.ID, now)
		if err != nil {
			return nil, false, internalErr("record login", err)
		}
		return u, false, nil
	case !errors.Is(err, ErrNotFound):
		return nil, false, internalErr("find user", err)
	}

	u := &User{
		Wallet:      wallet,
		Username:    pickUsername(username, wallet),
		Role:        RoleUser,
		LoginCount:  1,
		LastLoginAt: &now,
		CreatedAt:   now,
	}
	if err := s.users.Create(ctx, u); err != nil {
		if !errors.Is(err, ErrAlreadyExists) {
			return nil, false, internalErr("create user", err)
		}
		// Lost a race with a concurrent first login for the same wallet.
		existing, err := s.users.FindByWallet(ctx, wallet)
		if err != nil {
			return nil, false, internalErr("find user", err)
		}
		u, err := s.users.RecordLogin(ctx, existing.ID, now)
		if err != nil {
			return nil, false, internalErr("record login", err)
		}
		return u, false, nil
	}
	return u, true, nil
}

// CheckWallet reports whether an account is bound to wallet. This deliberately
// discloses existence.
func (s *Service) CheckWallet(ctx context.Context, wallet string) (WalletStatus, error) {
	wallet = strings.TrimSpace(wallet)
	if wallet == "" {
		return WalletStatus{}, fmt.Errorf("%w: wallet address is required", ErrInvalidInput)
	}
	u, err := s.users.FindByWallet(ctx, wallet)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return WalletStatus{Exists: false}, nil
		}
		return WalletStatus{}, internalErr("find user", err)
	}
	return WalletStatus{Exists: true, UserID: u.ID}, nil
}

// Me returns the current user.
func (s *Service) Me(ctx context.Context, userID string) (*User, error) {
	u, err := s.users.Find(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, internalErr("find user", err)
	}
	return u, nil
}

// SetRole changes a user's stored role. Callers must have checked admin
// privilege first.
func (s *Service) SetRole(ctx context.Context, userID, role string) (*User, error) {
	role = strings.TrimSpace(strings.ToLower(role))
	if role != RoleUser && role != RoleAdmin {
		return nil, fmt.Errorf("%w: role must be %q or %q", ErrInvalidInput, RoleUser, RoleAdmin)
	}
	u, err := s.users.SetRole(ctx, userID, role)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, internalErr("set role", err)
	}
	return u, nil
}

func pickUsername(requested, wallet string) string {
	if requested = strings.TrimSpace(requested); usernamePattern.MatchString(requested) {
		return requested
	}
	short := wallet
	if len(short) > 8 {
		short = short[:8]
	}
	return "user_" + short
}

func nonceFromMessage(message string) (string, bool) {
	for _, line := range strings.Split(message, "\n") {
		line = strings.TrimSpace(line)
		if rest, ok := strings.CutPrefix(line, challengeNonceLabel); ok {
			rest = strings.TrimSpace(rest)
			return rest, rest != ""
		}
	}
	return "", false
}

package auth

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

type memChallenges struct {
	mu     sync.Mutex
	issued map[string]string
}

func (m *memChallenges) Issue(ctx context.Context, wallet string) (string, time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.issued == nil {
		m.issued = make(map[string]string)
	}
	nonce := "n-" + wallet[:4]
	m.issued[wallet] = nonce
	return nonce, time.Now().Add(5 * time.Minute), nil
}

func (m *memChallenges) Consume(ctx context.Context, wallet, nonce string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	want, ok := m.issued[wallet]
	if !ok || want != nonce {
		return false, nil
	}
	delete(m.issued, wallet)
	return true, nil
}

func TestLoginCreatesThenCountsRepeatLogins(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	sessions := newTestSessions(t)
	svc := NewService(store, sessions)
	w := newTestWallet(t)
	msg := "login to ideaboard"

	first, err := svc.Login(ctx, LoginRequest{PublicKey: w.Address, Signature: w.Sign(msg), Message: msg, Username: "alice"})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if !first.Created || first.User.LoginCount != 1 || first.User.Username != "alice" {
		t.Fatalf("unexpected first login %+v", first.User)
	}
	claims, err := sessions.Validate(first.Token)
	if err != nil {
		t.Fatalf("issued session invalid: %v", err)
	}
	if claims.UserID != first.User.ID || claims.Wallet != w.Address {
		t.Fatalf("claims mismatch %+v", claims)
	}

	second, err := svc.Login(ctx, LoginRequest{PublicKey: w.Address, Signature: w.Sign(msg), Message: msg, Username: "renamed"})
	if err != nil {
		t.Fatalf("second Login: %v", err)
	}
	if second.Created || second.User.ID != first.User.ID {
		t.Fatal("repeat login must reuse the account")
	}
	if second.User.LoginCount != 2 {
		t.Fatalf("login_count = %d, want 2", second.User.LoginCount)
	}
	if second.User.Username != "alice" {
		t.Fatal("username is only set on creation")
	}
}

func TestLoginRejectsBadSignatureBeforeStoreAccess(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	svc := NewService(store, newTestSessions(t))
	w := newTestWallet(t)
	other := newTestWallet(t)

	_, err := svc.Login(ctx, LoginRequest{PublicKey: w.Address, Signature: other.Sign("m"), Message: "m"})
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if _, err := store.FindByWallet(ctx, w.Address); !errors.Is(err, ErrNotFound) {
		t.Fatal("failed login must not create an account")
	}
}

func TestLoginWithChallenges(t *testing.T) {
	ctx := context.Background()
	challenges := &memChallenges{}
	svc := NewService(NewMemoryStore(), newTestSessions(t), WithChallenges(challenges))
	w := newTestWallet(t)

	if _, err := svc.Login(ctx, LoginRequest{PublicKey: w.Address, Signature: w.Sign("no nonce"), Message: "no nonce"}); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("login without nonce should fail, got %v", err)
	}

	ch, err := svc.Challenge(ctx, w.Address)
	if err != nil {
		t.Fatalf("Challenge: %v", err)
	}
	if !strings.Contains(ch.Message, "Nonce: "+ch.Nonce) || !strings.Contains(ch.Message, w.Address) {
		t.Fatalf("challenge message missing fields: %q", ch.Message)
	}
	req := LoginRequest{PublicKey: w.Address, Signature: w.Sign(ch.Message), Message: ch.Message}
	if _, err := svc.Login(ctx, req); err != nil {
		t.Fatalf("Login: %v", err)
	}
	if _, err := svc.Login(ctx, req); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("replayed nonce should fail, got %v", err)
	}

	if _, err := svc.Challenge(ctx, "not base58 0OIl"); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestChallengeDisabled(t *testing.T) {
	svc := NewService(NewMemoryStore(), newTestSessions(t))
	if svc.ChallengesEnabled() {
		t.Fatal("challenges should be off by default")
	}
	if _, err := svc.Challenge(context.Background(), newTestWallet(t).Address); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestCheckWalletAndMe(t *testing.T) {
	ctx := context.Background()
	svc := NewService(NewMemoryStore(), newTestSessions(t))
	w := newTestWallet(t)

	st, err := svc.CheckWallet(ctx, w.Address)
	if err != nil || st.Exists {
		t.Fatalf("CheckWallet before login = %+v, %v", st, err)
	}
	res, err := svc.Login(ctx, LoginRequest{PublicKey: w.Address, Signature: w.Sign("x"), Message: "x"})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	st, err = svc.CheckWallet(ctx, w.Address)
	if err != nil || !st.Exists || st.UserID != res.User.ID {
		t.Fatalf("CheckWallet after login = %+v, %v", st, err)
	}
	if _, err := svc.CheckWallet(ctx, " "); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}

	me, err := svc.Me(ctx, res.User.ID)
	if err != nil || me.Wallet != w.Address {
		t.Fatalf("Me = %+v, %v", me, err)
	}
	if _, err := svc.Me(ctx, "nobody"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if !strings.HasPrefix(me.Username, "user_") {
		t.Fatalf("default username = %q", me.Username)
	}
}

func TestSetRole(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	svc := NewService(store, newTestSessions(t))
	u := &User{Wallet: "w1", Username: "bob"}
	if err := store.Create(ctx, u); err != nil {
		t.Fatalf("Create: %v", err)
	}
	got, err := svc.SetRole(ctx, u.ID, " Admin ")
	if err != nil || got.Role != RoleAdmin {
		t.Fatalf("SetRole = %+v, %v", got, err)
	}
	if _, err := svc.SetRole(ctx, u.ID, "root"); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	if _, err := svc.SetRole(ctx, "missing", RoleUser); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPickUsername(t *testing.T) {
	if got := pickUsername("good_name", "ABCDEFGHIJK"); got != "good_name" {
		t.Fatalf("got %q", got)
	}
	if got := pickUsername("no spaces allowed", "ABCDEFGHIJK"); got != "user_ABCDEFGH" {
		t.Fatalf("got %q", got)
	}
	if got := pickUsername("", "ABC"); got != "user_ABC" {
		t.Fatalf("got %q", got)
	}
}

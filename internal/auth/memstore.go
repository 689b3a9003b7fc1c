package auth

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"ideaboard.app/internal/ids"
)

var (
	_ UserStore  = (*MemoryStore)(nil)
	_ TokenStore = (*MemoryTokenStore)(nil)
)

// MemoryStore is an in-process user directory for development and tests.
type MemoryStore struct {
	mu       sync.RWMutex
	users    map[string]*User
	byWallet map[string]string

	tokens *MemoryTokenStore
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:    make(map[string]*User),
		byWallet: make(map[string]string),
		tokens: &MemoryTokenStore{
			tokens: make(map[string]*APIToken),
			byHash: make(map[string]string),
		},
	}
}

// Tokens returns the token store sharing this store's lifetime.
func (s *MemoryStore) Tokens() *MemoryTokenStore { return s.tokens }

func (s *MemoryStore) Create(ctx context.Context, u *User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u.ID == "" {
		u.ID = ids.New()
	}
	if _, ok := s.users[u.ID]; ok {
		return ErrAlreadyExists
	}
	if w := strings.TrimSpace(u.Wallet); w != "" {
		if _, taken := s.byWallet[w]; taken {
			return ErrAlreadyExists
		}
		s.byWallet[w] = u.ID
	}
	if u.Role == "" {
		u.Role = RoleUser
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	cp := *u
	s.users[u.ID] = &cp
	return nil
}

func (s *MemoryStore) Find(ctx context.Context, id string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *MemoryStore) FindByWallet(ctx context.Context, wallet string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byWallet[strings.TrimSpace(wallet)]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *s.users[id]
	return &cp, nil
}

func (s *MemoryStore) RecordLogin(ctx context.Context, id string, at time.Time) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	u.LoginCount++
	at = at.UTC()
	u.LastLoginAt = &at
	cp := *u
	return &cp, nil
}

func (s *MemoryStore) SetRole(ctx context.Context, id, role string) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	u.Role = role
	cp := *u
	return &cp, nil
}

// MemoryTokenStore keeps PAT rows in memory keyed by id and by hash.
type MemoryTokenStore struct {
	mu     sync.RWMutex
	tokens map[string]*APIToken
	byHash map[string]string
}

func (s *MemoryTokenStore) Create(ctx context.Context, tok *APIToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if tok.ID == "" {
		tok.ID = ids.New()
	}
	if _, dup := s.byHash[tok.TokenHash]; dup {
		return ErrAlreadyExists
	}
	if tok.CreatedAt.IsZero() {
		tok.CreatedAt = time.Now().UTC()
	}
	s.tokens[tok.ID] = cloneToken(tok)
	s.byHash[tok.TokenHash] = tok.ID
	return nil
}

func (s *MemoryTokenStore) Find(ctx context.Context, id string) (*APIToken, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tok, ok := s.tokens[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneToken(tok), nil
}

func (s *MemoryTokenStore) FindByHash(ctx context.Context, hash string) (*APIToken, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byHash[hash]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneToken(s.tokens[id]), nil
}

func (s *MemoryTokenStore) ListByUser(ctx context.Context, userID string) ([]*APIToken, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*APIToken
	for _, tok := range s.tokens {
		if tok.UserID == userID {
			out = append(out, cloneToken(tok))
		}
	}
	slices.SortFunc(out, func(a, b *APIToken) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(b.ID, a.ID)
	})
	return out, nil
}

func (s *MemoryTokenStore) Revoke(ctx context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tok, ok := s.tokens[id]
	if !ok {
		return ErrNotFound
	}
	if tok.RevokedAt == nil {
		at = at.UTC()
		tok.RevokedAt = &at
	}
	return nil
}

func (s *MemoryTokenStore) TouchLastUsed(ctx context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tok, ok := s.tokens[id]
	if !ok {
		return ErrNotFound
	}
	at = at.UTC()
	tok.LastUsedAt = &at
	return nil
}

func cloneToken(t *APIToken) *APIToken {
	cp := *t
	cp.Scopes = slices.Clone(t.Scopes)
	return &cp
}

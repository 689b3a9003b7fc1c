// Package nonce stores single-use login challenges in Redis.
package nonce

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"ideaboard.app/internal/auth"
)

const (
	keyPrefix  = "login:nonce:"
	nonceBytes = 16

	DefaultTTL = 5 * time.Minute
)

// Store issues and consumes login nonces. At most one nonce is outstanding per
// wallet; issuing a new one replaces the previous.
type Store struct {
	client redis.UniversalClient
	ttl    time.Duration
	now    func() time.Time
	random io.Reader
}

var _ auth.ChallengeStore = (*Store)(nil)

// Option configures Store.
type Option func(*Store)

// WithTTL sets how long an issued nonce stays valid.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// New wraps an existing Redis client.
func New(client redis.UniversalClient, opts ...Option) *Store {
	s := &Store{client: client, ttl: DefaultTTL, now: time.Now, random: rand.Reader}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Dial parses a redis:// URL, connects and pings with a short timeout.
func Dial(ctx context.Context, rawURL string, opts ...Option) (*Store, error) {
	options, err := redis.ParseURL(strings.TrimSpace(rawURL))
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(options)
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return New(client, opts...), nil
}

// Close releases the client.
func (s *Store) Close() error { return s.client.Close() }

// Ping reports whether Redis is reachable.
func (s *Store) Ping(ctx context.Context) error { return s.client.Ping(ctx).Err() }

// Issue stores a fresh random nonce for wallet.
func (s *Store) Issue(ctx context.Context, wallet string) (string, time.Time, error) {
	wallet = strings.TrimSpace(wallet)
	if wallet == "" {
		return "", time.Time{}, errors.New("wallet is required")
	}
	buf := make([]byte, nonceBytes)
	if _, err := io.ReadFull(s.random, buf); err != nil {
		return "", time.Time{}, fmt.Errorf("generate nonce: %w", err)
	}
	nonce := hex.EncodeToString(buf)
	if err := s.client.Set(ctx, keyPrefix+wallet, nonce, s.ttl).Err(); err != nil {
		return "", time.Time{}, fmt.Errorf("store nonce: %w", err)
	}
	return nonce, s.now().UTC().Add(s.ttl), nil
}

// Consume atomically removes the outstanding nonce and reports whether it matched.
// A mismatch still burns the stored nonce.
func (s *Store) Consume(ctx context.Context, wallet, nonce string) (bool, error) {
	wallet = strings.TrimSpace(wallet)
	nonce = strings.TrimSpace(nonce)
	if wallet == "" || nonce == "" {
		return false, nil
	}
	stored, err := s.client.GetDel(ctx, keyPrefix+wallet).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("consume nonce: %w", err)
	}
	return subtle.ConstantTimeCompare([]byte(stored), []byte(nonce)) == 1, nil
}

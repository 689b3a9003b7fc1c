// Package config reads service settings from IDEABOARD_* environment variables,
// optionally seeded from a .env file.
package config

import (
	"errors"
	"fmt"
	"net/netip"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"ideaboard.app/internal/auth"
	"ideaboard.app/internal/nonce"
)

const envPrefix = "IDEABOARD_"

// Config is the full runtime configuration of the API process.
type Config struct {
	HTTPAddr string
	GRPCAddr string

	PostgresDSN string
	RedisURL    string
	AMQPURL     string
	AuditQueue  string

	AuthSecret   string
	SessionTTL   time.Duration
	AdminWallets []string
	RequireNonce bool
	NonceTTL     time.Duration

	RateLimitRPS   float64
	RateLimitBurst int
	CORSOrigins    []string
	TrustedProxies []string

	TaskWorkers int
	TaskTimeout time.Duration
}

// Load reads .env (if present) and then the process environment. Variables
// already set in the environment win over .env entries.
func Load() (Config, error) {
	_ = godotenv.Load()
	return LoadFrom(os.LookupEnv)
}

// LoadFrom builds a Config from lookup. It returns every validation problem at once.
func LoadFrom(lookup func(string) (string, bool)) (Config, error) {
	r := reader{lookup: lookup}
	cfg := Config{
		HTTPAddr:       r.str("HTTP_ADDR", ":8080"),
		GRPCAddr:       r.str("GRPC_ADDR", ""),
		PostgresDSN:    r.str("PG_DSN", ""),
		RedisURL:       r.str("REDIS_URL", ""),
		AMQPURL:        r.str("AMQP_URL", ""),
		AuditQueue:     r.str("AUDIT_QUEUE", "audit.events"),
		AuthSecret:     r.str("AUTH_SECRET", ""),
		SessionTTL:     r.duration("SESSION_TTL", auth.DefaultSessionTTL),
		AdminWallets:   r.list("ADMIN_WALLETS"),
		RequireNonce:   r.boolean("REQUIRE_NONCE", false),
		NonceTTL:       r.duration("NONCE_TTL", nonce.DefaultTTL),
		RateLimitRPS:   r.float("RATE_RPS", 10),
		RateLimitBurst: r.integer("RATE_BURST", 20),
		CORSOrigins:    r.list("CORS_ORIGINS"),
		TrustedProxies: r.list("TRUSTED_PROXIES"),
		TaskWorkers:    r.integer("TASK_WORKERS", 32),
		TaskTimeout:    r.duration("TASK_TIMEOUT", 5*time.Second),
	}

	errs := r.errs
	if strings.TrimSpace(cfg.AuthSecret) == "" {
		errs = append(errs, fmt.Errorf("%sAUTH_SECRET is required", envPrefix))
	}
	if cfg.RequireNonce && cfg.RedisURL == "" {
		errs = append(errs, fmt.Errorf("%sREQUIRE_NONCE needs %sREDIS_URL", envPrefix, envPrefix))
	}
	if cfg.SessionTTL <= 0 {
		errs = append(errs, fmt.Errorf("%sSESSION_TTL must be positive", envPrefix))
	}
	if cfg.TaskWorkers <= 0 {
		errs = append(errs, fmt.Errorf("%sTASK_WORKERS must be positive", envPrefix))
	}
	if cfg.RateLimitBurst < 0 || cfg.RateLimitRPS < 0 {
		errs = append(errs, fmt.Errorf("%sRATE_RPS and %sRATE_BURST must not be negative", envPrefix, envPrefix))
	}
	for _, p := range cfg.TrustedProxies {
		if _, err := netip.ParsePrefix(p); err == nil {
			continue
		}
		if _, err := netip.ParseAddr(p); err != nil {
			errs = append(errs, fmt.Errorf("%sTRUSTED_PROXIES: %q is not an address or CIDR", envPrefix, p))
		}
	}
	return cfg, errors.Join(errs...)
}

type reader struct {
	lookup func(string) (string, bool)
	errs   []error
}

func (r *reader) raw(key string) (string, bool) {
	v, ok := r.lookup(envPrefix + key)
	if !ok {
		return "", false
	}
	v = strings.TrimSpace(v)
	return v, v != ""
}

func (r *reader) str(key, def string) string {
	if v, ok := r.raw(key); ok {
		return v
	}
	return def
}

func (r *reader) list(key string) []string {
	v, ok := r.raw(key)
	if !ok {
		return nil
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func (r *reader) boolean(key string, def bool) bool {
	v, ok := r.raw(key)
	if !ok {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s%s: %w", envPrefix, key, err))
		return def
	}
	return b
}

func (r *reader) integer(key string, def int) int {
	v, ok := r.raw(key)
	if !ok {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s%s: %w", envPrefix, key, err))
		return def
	}
	return n
}

func (r *reader) float(key string, def float64) float64 {
	v, ok := r.raw(key)
	if !ok {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s%s: %w", envPrefix, key, err))
		return def
	}
	return f
}

func (r *reader) duration(key string, def time.Duration) time.Duration {
	v, ok := r.raw(key)
	if !ok {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s%s: %w", envPrefix, key, err))
		return def
	}
	return d
}

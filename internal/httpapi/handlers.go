package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"ideaboard.app/internal/audit"
	"ideaboard.app/internal/auth"
	"ideaboard.app/internal/obs"
	"ideaboard.app/internal/stream"
)

const (
	serviceName  = "ideaboard-api"
	maxBodyBytes = 1 << 20
)

type pinger interface {
	Ping(ctx context.Context) error
}

type readinessChecker interface {
	Check(ctx context.Context) error
}

// ReadyProbe checks the backing services that must be reachable to serve traffic.
// Nil members are skipped.
type ReadyProbe struct {
	DB    pinger
	Redis pinger
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB != nil {
		if err := rp.DB.Ping(ctx); err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
	}
	if rp.Redis != nil {
		if err := rp.Redis.Ping(ctx); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
	}
	return nil
}

// Deps are the collaborators the HTTP layer dispatches to.
type Deps struct {
	Guard   *auth.Guard
	Logins  *auth.Service
	Tokens  *auth.TokenManager
	Admins  *auth.AdminResolver
	Audit   *audit.Recorder
	Live    *stream.Hub
	Ready   readinessChecker
	Version string

	RateBurst      int
	RatePerSec     float64
	CORSOrigins    []string
	TrustedProxies *ProxyList
}

// API is the HTTP surface.
type API struct {
	mux        *http.ServeMux
	guard      *auth.Guard
	logins     *auth.Service
	tokens     *auth.TokenManager
	admins     *auth.AdminResolver
	audit      *audit.Recorder
	live       *stream.Hub
	readyProbe readinessChecker
	version    string

	rateBurst   int
	ratePerSec  float64
	corsOrigins []string
	proxies     *ProxyList
}

func New(d Deps) *API {
	a := &API{
		mux:         http.NewServeMux(),
		guard:       d.Guard,
		logins:      d.Logins,
		tokens:      d.Tokens,
		admins:      d.Admins,
		audit:       d.Audit,
		live:        d.Live,
		readyProbe:  d.Ready,
		version:     d.Version,
		rateBurst:   d.RateBurst,
		ratePerSec:  d.RatePerSec,
		corsOrigins: d.CORSOrigins,
		proxies:     d.TrustedProxies,
	}
	if a.readyProbe == nil {
		a.readyProbe = ReadyProbe{}
	}
	if a.rateBurst <= 0 {
		a.rateBurst = 20
	}
	if a.ratePerSec <= 0 {
		a.ratePerSec = 10
	}

	// health/ready/info
	a.mux.HandleFunc("GET /healthz", a.Healthz)
	a.mux.HandleFunc("GET /readyz", a.Ready)
	a.mux.HandleFunc("GET /v1/info", a.Info)
	a.mux.Handle("GET /metrics", obs.Handler())

	// wallet login
	a.mux.HandleFunc("POST /v1/auth/login", a.handleLogin)
	a.mux.HandleFunc("GET /v1/auth/nonce/{address}", a.handleNonce)
	a.mux.HandleFunc("GET /v1/auth/check-wallet/{address}", a.handleCheckWallet)
	a.mux.Handle("GET /v1/auth/me", a.sessionOnly(a.handleMe))
	a.mux.Handle("GET /v1/auth/role", a.authenticated(a.handleRole))
	a.mux.Handle("GET /v1/auth/principal", a.authenticated(requireScope(auth.ScopePostRead, a.handlePrincipal)))

	// personal access tokens: managed from interactive sessions only
	a.mux.Handle("POST /v1/tokens", a.sessionOnly(a.handleCreateToken))
	a.mux.Handle("GET /v1/tokens", a.sessionOnly(a.handleListTokens))
	a.mux.Handle("DELETE /v1/tokens/{id}", a.sessionOnly(a.handleRevokeToken))

	// admin: sessions only, no scope grants admin access
	a.mux.Handle("GET /v1/admin/users/{id}", a.sessionOnly(a.adminOnly(a.handleAdminGetUser)))
	a.mux.Handle("PUT /v1/admin/users/{id}/role", a.sessionOnly(a.adminOnly(a.handleAdminSetRole)))
	a.mux.Handle("GET /v1/admin/audit", a.sessionOnly(a.adminOnly(a.handleAdminAudit)))
	a.mux.Handle("GET /v1/admin/audit/stream", a.sessionOnly(a.adminOnly(a.handleAuditStream)))

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusNotFound, "resource not found")
	})

	return a
}

// Handler returns the mux wrapped in the full middleware chain.
func (a *API) Handler() http.Handler {
	var h http.Handler = obs.Instrument(a.mux)
	h = MaxBodyBytes(h, maxBodyBytes)
	h = RateLimit(h, a.rateBurst, a.ratePerSec)
	h = CORS(h, a.corsOrigins...)
	h = SecurityHeaders(h)
	h = LoggingJSON(h)
	return RequestID(h, a.proxies)
}

// --- Handlers ---

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": serviceName,
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.readyProbe.Check(r.Context()); err != nil {
		obs.SetReady(false)
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	obs.SetReady(true)
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    serviceName,
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.version,
	})
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	if code == http.StatusUnauthorized && w.Header().Get("WWW-Authenticate") == "" {
		w.Header().Set("WWW-Authenticate", `Bearer realm="ideaboard"`)
	}
	writeJSON(w, code, map[string]any{
		"error":      msg,
		"request_id": requestIDFromContext(r.Context()),
	})
}

// writeDomainError maps auth sentinel errors to HTTP statuses. Internal errors are
// logged and reported without detail.
func writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, auth.ErrMissingToken):
		writeError(w, r, http.StatusUnauthorized, "missing bearer token")
	case errors.Is(err, auth.ErrMalformedHeader):
		writeError(w, r, http.StatusUnauthorized, "malformed authorization header")
	case errors.Is(err, auth.ErrUnauthorized):
		writeError(w, r, http.StatusUnauthorized, "invalid token")
	case errors.Is(err, auth.ErrScopeDenied):
		w.Header().Set("WWW-Authenticate", `Bearer error="insufficient_scope"`)
		writeError(w, r, http.StatusForbidden, publicMessage(err))
	case errors.Is(err, auth.ErrNotAdmin):
		writeError(w, r, http.StatusForbidden, "admin privilege required")
	case errors.Is(err, auth.ErrForbidden):
		writeError(w, r, http.StatusForbidden, "forbidden")
	case errors.Is(err, auth.ErrNotFound):
		writeError(w, r, http.StatusNotFound, "resource not found")
	case errors.Is(err, auth.ErrInvalidInput):
		writeError(w, r, http.StatusBadRequest, publicMessage(err))
	case errors.Is(err, auth.ErrAlreadyExists):
		writeError(w, r, http.StatusConflict, "resource already exists")
	default:
		obs.Error("request failed", map[string]any{
			"request_id": requestIDFromContext(r.Context()),
			"path":       r.URL.Path,
			"error":      err,
		})
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}

func publicMessage(err error) string {
	return strings.TrimPrefix(err.Error(), "auth: ")
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	if r.Body == nil {
		return errors.New("request body is required")
	}
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.Is(err, io.EOF):
			return errors.New("request body is required")
		case errors.As(err, &maxErr):
			return fmt.Errorf("request body exceeds %d bytes", maxErr.Limit)
		default:
			return fmt.Errorf("invalid JSON: %v", err)
		}
	}
	if dec.More() {
		return errors.New("request body must contain a single JSON object")
	}
	return nil
}

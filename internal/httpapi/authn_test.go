package httpapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"ideaboard.app/internal/auth"
)

func TestRequireScopeAllowsSession(t *testing.T) {
	handler := requireScope(auth.ScopePostWrite, okHandler)

	req := httptest.NewRequest(http.MethodGet, "/scoped", nil)
	req = req.WithContext(auth.ContextWithPrincipal(req.Context(), auth.Principal{UserID: "u1", Kind: auth.KindSession}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
}

func TestRequireScopeRejectsMissingScope(t *testing.T) {
	handler := requireScope(auth.ScopePostWrite, okHandler)

	req := httptest.NewRequest(http.MethodGet, "/scoped", nil)
	req = req.WithContext(auth.ContextWithPrincipal(req.Context(), auth.Principal{
		UserID: "u1",
		Kind:   auth.KindPAT,
		Scopes: []auth.Scope{auth.ScopePostRead},
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rr.Code)
	}
}

func TestRequireScopeWithoutPrincipal(t *testing.T) {
	rr := httptest.NewRecorder()
	requireScope(auth.ScopePostRead, okHandler).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/scoped", nil))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
}

func TestSessionOnlyNamesPATRejection(t *testing.T) {
	api := &API{guard: auth.NewGuard(mustSessions(t), nil)}
	handler := api.sessionOnly(okHandler)

	req := httptest.NewRequest(http.MethodGet, "/session", nil)
	req.Header.Set("Authorization", "Bearer "+auth.TokenPrefix+"0000000000000000000000000000000000000000000000000000000000000000")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["error"] != "session token required" {
		t.Fatalf("unexpected error: %v", body["error"])
	}
}

func TestAuthenticatedWithoutGuard(t *testing.T) {
	api := &API{}
	rr := httptest.NewRecorder()
	api.authenticated(okHandler).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/x", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
}

func TestAdminOnlyWithoutResolver(t *testing.T) {
	api := &API{}
	req := httptest.NewRequest(http.MethodGet, "/admin", nil)
	req = req.WithContext(auth.ContextWithPrincipal(req.Context(), auth.Principal{UserID: "u1", Kind: auth.KindSession}))

	rr := httptest.NewRecorder()
	api.adminOnly(okHandler).ServeHTTP(rr, req)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rr.Code)
	}
}

func TestBearerValue(t *testing.T) {
	cases := map[string]string{
		"Bearer abc": "abc",
		"bearer abc": "abc",
		"abc":        "abc",
		"":           "",
	}
	for in, want := range cases {
		if got := bearerValue(in); got != want {
			t.Fatalf("bearerValue(%q) = %q, want %q", in, got, want)
		}
	}
}

func mustSessions(t *testing.T) *auth.SessionIssuer {
	t.Helper()
	s, err := auth.NewSessionIssuer("authn-test-secret-value")
	if err != nil {
		t.Fatalf("NewSessionIssuer: %v", err)
	}
	return s
}

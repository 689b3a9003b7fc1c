package httpapi

import (
	"net/http"

	"ideaboard.app/internal/auth"
)

const authHeader = "Authorization"

// authenticated admits either a session token or a PAT.
func (a *API) authenticated(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if a.guard == nil {
			writeError(w, r, http.StatusServiceUnavailable, "authentication unavailable")
			return
		}
		principal, err := a.guard.Authenticate(r.Context(), r.Header.Get(authHeader))
		if err != nil {
			writeDomainError(w, r, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(auth.ContextWithPrincipal(r.Context(), principal)))
	})
}

// sessionOnly admits interactive sessions and rejects PATs.
func (a *API) sessionOnly(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if a.guard == nil {
			writeError(w, r, http.StatusServiceUnavailable, "authentication unavailable")
			return
		}
		principal, err := a.guard.Session(r.Header.Get(authHeader))
		if err != nil {
			if auth.HasTokenPrefix(bearerValue(r.Header.Get(authHeader))) {
				writeError(w, r, http.StatusUnauthorized, "session token required")
				return
			}
			writeDomainError(w, r, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(auth.ContextWithPrincipal(r.Context(), principal)))
	})
}

// requireScope enforces scope on PAT principals; sessions pass.
func requireScope(scope auth.Scope, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		principal, ok := auth.PrincipalFromContext(r.Context())
		if !ok {
			writeDomainError(w, r, auth.ErrUnauthorized)
			return
		}
		if err := principal.Require(scope); err != nil {
			writeDomainError(w, r, err)
			return
		}
		next(w, r)
	}
}

// adminOnly resolves admin privilege before the handler touches any data.
func (a *API) adminOnly(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		principal, ok := auth.PrincipalFromContext(r.Context())
		if !ok {
			writeDomainError(w, r, auth.ErrUnauthorized)
			return
		}
		if a.admins == nil {
			writeDomainError(w, r, auth.ErrNotAdmin)
			return
		}
		if err := a.admins.RequireAdmin(r.Context(), principal.UserID); err != nil {
			writeDomainError(w, r, err)
			return
		}
		next(w, r)
	}
}

func bearerValue(header string) string {
	if len(header) > 7 && (header[:7] == "Bearer " || header[:7] == "bearer ") {
		return header[7:]
	}
	return header
}

package httpapi

import (
	"errors"
	"net/http"
	"time"

	"ideaboard.app/internal/audit"
	"ideaboard.app/internal/auth"
)

type loginRequest struct {
	PublicKey string `json:"publicKey"`
	Signature string `json:"signature"`
	Message   string `json:"message"`
	Username  string `json:"username,omitempty"`
}

type loginResponse struct {
	Token     string     `json:"token"`
	ExpiresAt time.Time  `json:"expires_at"`
	User      *auth.User `json:"user"`
	Created   bool       `json:"created"`
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if a.logins == nil {
		writeError(w, r, http.StatusServiceUnavailable, "login unavailable")
		return
	}
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if req.PublicKey == "" || req.Signature == "" || req.Message == "" {
		writeError(w, r, http.StatusBadRequest, "publicKey, signature and message are required")
		return
	}

	res, err := a.logins.Login(r.Context(), auth.LoginRequest{
		PublicKey: req.PublicKey,
		Signature: req.Signature,
		Message:   req.Message,
		Username:  req.Username,
	})
	if err != nil {
		if errors.Is(err, auth.ErrUnauthorized) {
			writeError(w, r, http.StatusUnauthorized, "invalid signature")
			return
		}
		writeDomainError(w, r, err)
		return
	}

	a.record(r, audit.Entry{
		Action:       audit.ActionLogin,
		ActorUserID:  res.User.ID,
		ResourceType: "user",
		ResourceID:   res.User.ID,
		Metadata:     map[string]any{"created": res.Created, "login_count": res.User.LoginCount},
	})
	writeJSON(w, http.StatusOK, loginResponse{
		Token:     res.Token,
		ExpiresAt: res.ExpiresAt,
		User:      res.User,
		Created:   res.Created,
	})
}

func (a *API) handleNonce(w http.ResponseWriter, r *http.Request) {
	if a.logins == nil || !a.logins.ChallengesEnabled() {
		writeError(w, r, http.StatusNotFound, "login challenges are disabled")
		return
	}
	ch, err := a.logins.Challenge(r.Context(), r.PathValue("address"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ch)
}

func (a *API) handleCheckWallet(w http.ResponseWriter, r *http.Request) {
	if a.logins == nil {
		writeError(w, r, http.StatusServiceUnavailable, "login unavailable")
		return
	}
	st, err := a.logins.CheckWallet(r.Context(), r.PathValue("address"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (a *API) handleMe(w http.ResponseWriter, r *http.Request) {
	principal, _ := auth.PrincipalFromContext(r.Context())
	u, err := a.logins.Me(r.Context(), principal.UserID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (a *API) handleRole(w http.ResponseWriter, r *http.Request) {
	principal, _ := auth.PrincipalFromContext(r.Context())
	if a.admins == nil {
		writeJSON(w, http.StatusOK, auth.RoleInfo{Role: auth.RoleUser})
		return
	}
	info, err := a.admins.UserRole(r.Context(), principal.UserID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (a *API) handlePrincipal(w http.ResponseWriter, r *http.Request) {
	principal, _ := auth.PrincipalFromContext(r.Context())
	if principal.Scopes == nil {
		principal.Scopes = []auth.Scope{}
	}
	writeJSON(w, http.StatusOK, principal)
}

// record appends an audit entry; the recorder never fails the request.
func (a *API) record(r *http.Request, e audit.Entry) {
	if a.audit == nil {
		return
	}
	a.audit.Append(r.Context(), e)
}

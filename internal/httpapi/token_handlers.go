package httpapi

import (
	"net/http"
	"time"

	"ideaboard.app/internal/audit"
	"ideaboard.app/internal/auth"
)

type createTokenRequest struct {
	Name      string     `json:"name"`
	Scopes    []string   `json:"scopes"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

type createTokenResponse struct {
	// Token is the plaintext secret. It is returned exactly once.
	Token string         `json:"token"`
	Meta  *auth.APIToken `json:"meta"`
}

type listTokensResponse struct {
	Tokens []tokenView `json:"tokens"`
}

type tokenView struct {
	*auth.APIToken
	Status auth.TokenStatus `json:"status"`
}

func (a *API) handleCreateToken(w http.ResponseWriter, r *http.Request) {
	principal, _ := auth.PrincipalFromContext(r.Context())
	var req createTokenRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	plaintext, meta, err := a.tokens.CreateToken(r.Context(), principal.UserID, auth.CreateTokenRequest{
		Name:      req.Name,
		Scopes:    auth.ScopesFromStrings(req.Scopes),
		ExpiresAt: req.ExpiresAt,
	})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	a.record(r, audit.Entry{
		Action:       audit.ActionTokenCreate,
		ResourceType: "api_token",
		ResourceID:   meta.ID,
		Metadata: map[string]any{
			"name":   meta.Name,
			"scopes": auth.ScopeStrings(meta.Scopes),
		},
	})
	w.Header().Set("Location", "/v1/tokens/"+meta.ID)
	writeJSON(w, http.StatusCreated, createTokenResponse{Token: plaintext, Meta: meta})
}

func (a *API) handleListTokens(w http.ResponseWriter, r *http.Request) {
	principal, _ := auth.PrincipalFromContext(r.Context())
	list, err := a.tokens.ListTokens(r.Context(), principal.UserID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	now := time.Now().UTC()
	views := make([]tokenView, 0, len(list))
	for _, tok := range list {
		views = append(views, tokenView{APIToken: tok, Status: tok.Status(now)})
	}
	writeJSON(w, http.StatusOK, listTokensResponse{Tokens: views})
}

func (a *API) handleRevokeToken(w http.ResponseWriter, r *http.Request) {
	principal, _ := auth.PrincipalFromContext(r.Context())
	tokenID := r.PathValue("id")
	if err := a.tokens.RevokeToken(r.Context(), principal.UserID, tokenID); err != nil {
		writeDomainError(w, r, err)
		return
	}
	a.record(r, audit.Entry{
		Action:       audit.ActionTokenRevoke,
		ResourceType: "api_token",
		ResourceID:   tokenID,
	})
	writeJSON(w, http.StatusOK, map[string]any{"revoked": true})
}

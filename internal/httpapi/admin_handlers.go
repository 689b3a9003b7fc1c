package httpapi

import (
	"net/http"
	"strconv"
	"strings"

	"ideaboard.app/internal/audit"
	"ideaboard.app/internal/auth"
)

type setRoleRequest struct {
	Role string `json:"role"`
}

type adminUserResponse struct {
	User    *auth.User `json:"user"`
	IsAdmin bool       `json:"is_admin"`
}

func (a *API) handleAdminGetUser(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("id")
	u, err := a.logins.Me(r.Context(), userID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	info, err := a.admins.UserRole(r.Context(), userID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, adminUserResponse{User: u, IsAdmin: info.IsAdmin})
}

func (a *API) handleAdminSetRole(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("id")
	var req setRoleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	before, err := a.logins.Me(r.Context(), userID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	u, err := a.logins.SetRole(r.Context(), userID, req.Role)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	a.record(r, audit.Entry{
		Action:       audit.ActionRoleChange,
		ResourceType: "user",
		ResourceID:   userID,
		Metadata:     map[string]any{"from": before.Role, "to": u.Role},
	})
	info, err := a.admins.UserRole(r.Context(), userID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, adminUserResponse{User: u, IsAdmin: info.IsAdmin})
}

func (a *API) handleAdminAudit(w http.ResponseWriter, r *http.Request) {
	limit := audit.DefaultListLimit
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, r, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}
	entries, err := a.audit.List(r.Context(), limit)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

package auth

// AuthKind identifies which credential produced a Principal.
type AuthKind string

const (
	KindSession AuthKind = "session"
	KindPAT     AuthKind = "pat"
)

// Principal is the normalized result of authentication consumed by handlers.
// Handlers branch on scope, not on which transport carried the credential.
type Principal struct {
	UserID   string   `json:"user_id"`
	Wallet   string   `json:"wallet,omitempty"`
	Username string   `json:"username,omitempty"`
	Kind     AuthKind `json:"auth_kind"`
	TokenID  string   `json:"token_id,omitempty"`
	Scopes   []Scope  `json:"scopes,omitempty"`
}

// Unrestricted reports whether the principal bypasses scope checks. Only
// interactive sessions do.
func (p Principal) Unrestricted() bool {
	return p.Kind == KindSession
}

// Require enforces scope for PAT principals and lets sessions through.
func (p Principal) Require(scope Scope) error {
	if p.Unrestricted() {
		return nil
	}
	return EnsureScope(p.Scopes, scope)
}

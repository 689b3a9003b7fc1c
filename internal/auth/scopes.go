package auth

import (
	"fmt"
	"strings"
)

// Scope is an atomic permission label carried by a personal access token.
type Scope string

// The scope set is closed and flat; extend it only together with a schema/API version bump.
const (
	ScopePostRead     Scope = "post:read"
	ScopePostWrite    Scope = "post:write"
	ScopeCommentWrite Scope = "comment:write"
	ScopeCommentReply Scope = "comment:reply"
)

// AllScopes lists every scope a token may carry.
var AllScopes = []Scope{ScopePostRead, ScopePostWrite, ScopeCommentWrite, ScopeCommentReply}

// Valid reports whether s belongs to the closed scope set.
func (s Scope) Valid() bool {
	for _, known := range AllScopes {
		if s == known {
			return true
		}
	}
	return false
}

// ParseScopes normalizes raw scope names, rejecting unknown ones and dropping duplicates.
func ParseScopes(raw []string) ([]Scope, error) {
	seen := make(map[Scope]struct{}, len(raw))
	out := make([]Scope, 0, len(raw))
	for _, r := range raw {
		s := Scope(strings.TrimSpace(strings.ToLower(r)))
		if s == "" {
			continue
		}
		if !s.Valid() {
			return nil, fmt.Errorf("%w: unknown scope %q", ErrInvalidInput, r)
		}
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: at least one scope is required", ErrInvalidInput)
	}
	return out, nil
}

// EnsureScope fails with ErrScopeDenied unless needed is in scopes. There is no
// hierarchy: post:write does not imply post:read.
func EnsureScope(scopes []Scope, needed Scope) error {
	for _, s := range scopes {
		if s == needed {
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrScopeDenied, needed)
}

// ScopeStrings converts scopes to their wire names.
func ScopeStrings(scopes []Scope) []string {
	out := make([]string, len(scopes))
	for i, s := range scopes {
		out[i] = string(s)
	}
	return out
}

// ScopesFromStrings converts stored scope names back without validation; rows
// written before a scope was retired keep loading.
func ScopesFromStrings(raw []string) []Scope {
	out := make([]Scope, len(raw))
	for i, s := range raw {
		out[i] = Scope(s)
	}
	return out
}

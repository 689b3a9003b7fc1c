package auth

import "context"

type principalContextKey struct{}
type kindContextKey struct{}

// ContextWithPrincipal attaches the authenticated principal and its credential kind.
func ContextWithPrincipal(ctx context.Context, principal Principal) context.Context {
	ctx = context.WithValue(ctx, principalContextKey{}, &principal)
	return context.WithValue(ctx, kindContextKey{}, principal.Kind)
}

// PrincipalFromContext extracts the authenticated principal from the context.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	if ctx == nil {
		return Principal{}, false
	}
	v, ok := ctx.Value(principalContextKey{}).(*Principal)
	if !ok || v == nil {
		return Principal{}, false
	}
	return *v, true
}

// KindFromContext returns the credential kind used for this request. It is a tag
// for logging and branching, not a security boundary.
func KindFromContext(ctx context.Context) (AuthKind, bool) {
	if ctx == nil {
		return "", false
	}
	v, ok := ctx.Value(kindContextKey{}).(AuthKind)
	return v, ok && v != ""
}

// UserIDFromContext returns the authenticated user id, if any.
func UserIDFromContext(ctx context.Context) (string, bool) {
	p, ok := PrincipalFromContext(ctx)
	if !ok || p.UserID == "" {
		return "", false
	}
	return p.UserID, true
}

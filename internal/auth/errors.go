package auth

import (
	"errors"
	"fmt"
)

var (
	ErrUnauthorized  = errors.New("auth: unauthorized")
	ErrForbidden     = errors.New("auth: forbidden")
	ErrNotFound      = errors.New("auth: not found")
	ErrInvalidInput  = errors.New("auth: invalid input")
	ErrAlreadyExists = errors.New("auth: already exists")
	ErrInternal      = errors.New("auth: internal error")
)

// Specializations keep the externally visible class while letting callers and
// metrics tell them apart with errors.Is.
var (
	// ErrInvalidFormat marks a credential rejected on shape alone, without a store lookup.
	ErrInvalidFormat = fmt.Errorf("%w: malformed credential", ErrUnauthorized)
	// ErrMissingToken is returned when no Authorization header is present.
	ErrMissingToken = fmt.Errorf("%w: missing token", ErrUnauthorized)
	// ErrMalformedHeader is returned when the header is not "Bearer <token>".
	ErrMalformedHeader = fmt.Errorf("%w: malformed header", ErrUnauthorized)
	// ErrScopeDenied is returned when a PAT lacks the scope a route requires.
	ErrScopeDenied = fmt.Errorf("%w: missing scope", ErrForbidden)
	// ErrTokenForbidden covers both unknown tokens and tokens owned by someone else.
	ErrTokenForbidden = fmt.Errorf("%w: token not owned by caller", ErrForbidden)
	// ErrNotAdmin is returned by privileged operations for non-admin callers.
	ErrNotAdmin = fmt.Errorf("%w: admin privilege required", ErrForbidden)
)

func internalErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrInternal, op, err)
}

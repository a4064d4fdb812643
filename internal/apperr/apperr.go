// Package apperr declares the error taxonomy shared by every service
// package. Services return these sentinels (wrapped with context via
// fmt.Errorf("%w: ...")); internal/httpapi is the single place that maps
// them to HTTP status codes.
package apperr

import "errors"

var (
	// ErrNotFound covers both "does not exist" and "exists in another
	// tenant" - the two are never distinguished externally.
	ErrNotFound = errors.New("not found")

	// ErrUnauthenticated means the bearer credential is missing, malformed,
	// or expired.
	ErrUnauthenticated = errors.New("unauthenticated")

	// ErrForbidden means the principal is known but not allowed: role
	// mismatch, subscription irregular, plan limit reached.
	ErrForbidden = errors.New("forbidden")

	// ErrValidation means the caller supplied a malformed request.
	ErrValidation = errors.New("validation failed")

	// ErrConflict means a uniqueness constraint was violated.
	ErrConflict = errors.New("conflict")

	// ErrInvalidCredentials covers login and OTP verification failures.
	// Deliberately indistinguishable from each other to avoid enumeration.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrExpired means a time-boxed artifact (OTP, share token) is past its
	// expiry. An expired access credential is reported as
	// ErrUnauthenticated instead.
	ErrExpired = errors.New("expired")

	// ErrLinkClosed means a share token is structurally still valid but the
	// signer or document it points to is no longer in a signable state.
	ErrLinkClosed = errors.New("link closed")

	// ErrInternal is the catch-all for anything else.
	ErrInternal = errors.New("internal error")
)

// Is reports whether err (or any error it wraps) matches target.
func Is(err, target error) bool { return errors.Is(err, target) }

// HTTPStatus maps an error to the status code internal/httpapi writes. Any
// error not wrapping one of the sentinels above maps to 500.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return 200
	case errors.Is(err, ErrNotFound):
		return 404
	case errors.Is(err, ErrUnauthenticated):
		return 401
	case errors.Is(err, ErrInvalidCredentials):
		return 401
	case errors.Is(err, ErrForbidden):
		return 403
	case errors.Is(err, ErrExpired):
		return 403
	case errors.Is(err, ErrLinkClosed):
		return 403
	case errors.Is(err, ErrValidation):
		return 400
	case errors.Is(err, ErrConflict):
		return 409
	default:
		return 500
	}
}

// Package autherr holds the error taxonomy shared by the identity gateway,
// the session lifecycle manager and the transport layer.
//
// Provider-specific failures are translated into these values at the gateway
// boundary; nothing above the gateway sees provider error shapes.
package autherr

import "errors"

var (
	ErrInvalidCredentials  = errors.New("incorrect email or password")
	ErrAccountNotConfirmed = errors.New("account is not confirmed")
	ErrAccountNotFound     = errors.New("account not found")
	ErrAccountInactive     = errors.New("account is not active")
	ErrRateLimited         = errors.New("too many attempts")

	// ErrProviderUnavailable is transient: the caller may retry it once.
	ErrProviderUnavailable = errors.New("identity provider unavailable")

	ErrInvalidToken    = errors.New("invalid token")
	ErrTokenExpired    = errors.New("token expired")
	ErrSessionExpired  = errors.New("session expired")
	ErrRefreshFailed   = errors.New("refresh failed, sign in again")
	ErrSessionNotFound = errors.New("session not found")
	ErrValidation      = errors.New("invalid request")

	// ErrStoreUnavailable separates "the system is broken" from "you are not authorized".
	ErrStoreUnavailable = errors.New("session store unavailable")
)

var terminal = []error{
	ErrInvalidCredentials,
	ErrAccountNotConfirmed,
	ErrAccountNotFound,
	ErrAccountInactive,
	ErrInvalidToken,
	ErrTokenExpired,
	ErrSessionExpired,
	ErrRefreshFailed,
	ErrValidation,
}

// IsTerminal reports whether err must never be retried.
func IsTerminal(err error) bool {
	for _, t := range terminal {
		if errors.Is(err, t) {
			return true
		}
	}
	return false
}

// IsRetryable reports whether err is the one kind a caller may retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrProviderUnavailable)
}

// IsUnauthorized reports whether err should surface to clients as "not authenticated".
func IsUnauthorized(err error) bool {
	return errors.Is(err, ErrInvalidCredentials) ||
		errors.Is(err, ErrAccountNotFound) ||
		errors.Is(err, ErrInvalidToken) ||
		errors.Is(err, ErrTokenExpired) ||
		errors.Is(err, ErrSessionExpired) ||
		errors.Is(err, ErrRefreshFailed)
}

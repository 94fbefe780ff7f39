// Package errors defines the session and sync error taxonomy and the JSON
// responders used by the local status surface.
package errors

import (
	stderrors "errors"
	"fmt"
)

var (
	// ErrInvalidToken indicates an access token that cannot be decoded or carries no subject.
	ErrInvalidToken = stderrors.New("invalid token")

	// ErrInvalidCredentials indicates login was called with empty or undecodable tokens.
	ErrInvalidCredentials = stderrors.New("invalid credentials")

	// ErrRefreshFailed indicates the backend rejected the refresh token.
	ErrRefreshFailed = stderrors.New("token refresh failed")

	// ErrPersistence indicates a session storage write failed.
	ErrPersistence = stderrors.New("session persistence failed")

	// ErrNetwork indicates a transport-level failure talking to the backend.
	ErrNetwork = stderrors.New("network error")

	// ErrValidation indicates the backend rejected a request body.
	ErrValidation = stderrors.New("validation error")

	// ErrUnauthorized indicates the backend answered 401.
	ErrUnauthorized = stderrors.New("unauthorized")

	// ErrNotAuthenticated indicates an operation that needs a session was called without one.
	ErrNotAuthenticated = stderrors.New("not authenticated")
)

// Persistence wraps a storage failure so it matches ErrPersistence.
func Persistence(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrPersistence, op, err)
}

// Network wraps a transport failure so it matches ErrNetwork.
func Network(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrNetwork, op, err)
}

// IsSessionInvalid reports whether err means the caller no longer holds a usable session.
func IsSessionInvalid(err error) bool {
	return stderrors.Is(err, ErrUnauthorized) ||
		stderrors.Is(err, ErrNotAuthenticated) ||
		stderrors.Is(err, ErrRefreshFailed) ||
		stderrors.Is(err, ErrInvalidToken)
}

// Is reports whether any error in err's tree matches target.
func Is(err, target error) bool {
	return stderrors.Is(err, target)
}

// As finds the first error in err's tree that matches target.
func As(err error, target any) bool {
	return stderrors.As(err, target)
}

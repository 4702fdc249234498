package ssosdk

import (
	"errors"
	"fmt"
)

var (
	// ErrNotAuthenticated indicates an operation that needs a live session
	// was called without one.
	ErrNotAuthenticated = errors.New("ssosdk: not authenticated")

	// ErrNoRefreshToken indicates a refresh was requested but no refresh
	// token is held.
	ErrNoRefreshToken = errors.New("ssosdk: no refresh token")

	// ErrStateMismatch indicates the state parameter on an authorization
	// callback did not match the value stored at login time.
	ErrStateMismatch = errors.New("ssosdk: state parameter mismatch")

	// ErrProvider indicates the identity provider rejected a request.
	ErrProvider = errors.New("ssosdk: provider error")

	// ErrAPI indicates the todo API rejected a request.
	ErrAPI = errors.New("ssosdk: api error")
)

// apiError builds an error from a non-2xx response body, wrapping the
// given sentinel so callers can branch with errors.Is.
func apiError(sentinel error, status int, body ErrorResponse) error {
	if body.Error != "" {
		return fmt.Errorf("%w: %s: %s (status %d)",
			sentinel, body.Error, body.ErrorDescription, status)
	}
	return fmt.Errorf("%w: status %d", sentinel, status)
}

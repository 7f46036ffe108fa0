// Package errs defines the error categories surfaced by the session layer.
//
// Transport and storage failures are translated into these types at the
// auth manager and gateway boundaries, so callers only ever match on the
// types below with errors.As.
package errs

import (
	"fmt"
)

const (
	networkMessage     = "Unable to reach the server. Check your connection and try again."
	credentialFallback = "Login failed. Check your username and password."
	expiredMessage     = "Your session has expired. Please log in again."
)

// CredentialError is returned when the backend rejects a login attempt.
type CredentialError struct {
	StatusCode int    // 0 when rejected before any request was sent
	Message    string // backend-provided reason when available
}

func (e *CredentialError) Error() string {
	if e.Message == "" {
		return credentialFallback
	}
	return e.Message
}

// NetworkError is returned when a request produced no response at all.
type NetworkError struct {
	Err error
}

func (e *NetworkError) Error() string {
	return networkMessage
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// Cause returns the underlying transport error text, for logs.
func (e *NetworkError) Cause() string {
	if e.Err == nil {
		return ""
	}
	return e.Err.Error()
}

// AuthExpiredError is returned when an authenticated request was rejected
// because the access token is no longer valid.
type AuthExpiredError struct {
	Method string
	Path   string
}

func (e *AuthExpiredError) Error() string {
	return expiredMessage
}

// HTTPError is any non-2xx response other than an authentication failure.
type HTTPError struct {
	StatusCode int
	Detail     string
}

func (e *HTTPError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("request failed (status %d)", e.StatusCode)
	}
	return fmt.Sprintf("request failed (status %d): %s", e.StatusCode, e.Detail)
}

// PersistenceError wraps a session store failure.
type PersistenceError struct {
	Op  string // "read", "write" or "clear"
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("session store %s failed: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

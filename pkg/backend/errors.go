package backend

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors for common conditions.
var (
	// ErrNoBaseURL is returned when the backend URL is not configured.
	ErrNoBaseURL = errors.New("backend: base URL required")

	// ErrContractViolation indicates the backend rejected the request body
	// as malformed (HTTP 422). This is a client bug, not a transient failure.
	ErrContractViolation = errors.New("backend: request rejected as invalid")

	// ErrEmptyReply indicates a 2xx response without the expected text.
	ErrEmptyReply = errors.New("backend: empty reply")
)

// APIError represents a non-2xx response from the interview backend.
type APIError struct {
	// StatusCode is the HTTP status code.
	StatusCode int

	// Message is the error detail from the backend.
	Message string

	// Path is the endpoint that failed.
	Path string

	// cause is a sentinel the error also matches via errors.Is.
	cause error
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return fmt.Sprintf("backend %s: API error %d: %s", e.Path, e.StatusCode, e.Message)
}

// Unwrap exposes the sentinel classification, if any.
func (e *APIError) Unwrap() error {
	return e.cause
}

// IsContractViolation returns true for HTTP 422.
func (e *APIError) IsContractViolation() bool {
	return e.StatusCode == http.StatusUnprocessableEntity
}

// IsSessionExpired returns true when the backend no longer recognizes
// the session token.
func (e *APIError) IsSessionExpired() bool {
	return e.StatusCode == http.StatusUnauthorized ||
		e.StatusCode == http.StatusForbidden ||
		e.StatusCode == http.StatusNotFound ||
		e.StatusCode == http.StatusGone
}

// IsServerError returns true if this is a server-side error (HTTP 5xx).
func (e *APIError) IsServerError() bool {
	return e.StatusCode >= 500 && e.StatusCode < 600
}

// IsRetryable returns true if the same request may succeed later.
func (e *APIError) IsRetryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.IsServerError()
}

package pinning

import (
	"errors"
	"fmt"
)

// ErrorKind is the closed taxonomy every provider-specific failure is
// normalized into. The migration engine's retry and abort decisions key off
// these kinds, never off provider wire details.
type ErrorKind string

const (
	// ErrKindAuthFailed means the credentials were rejected. Fatal for the whole run.
	ErrKindAuthFailed ErrorKind = "AuthFailed"
	// ErrKindRateLimited means the provider throttled the request. Retryable.
	ErrKindRateLimited ErrorKind = "RateLimited"
	// ErrKindUnreachable means the provider could not be reached or answered
	// with a server error or timeout. Retryable.
	ErrKindUnreachable ErrorKind = "Unreachable"
	// ErrKindRejected means the provider refused the pin request itself. Not retryable.
	ErrKindRejected ErrorKind = "Rejected"
	// ErrKindUnknown means an unclassifiable failure. Retried, then failed.
	ErrKindUnknown ErrorKind = "Unknown"
)

// PinError is a normalized pinning failure
type PinError struct {
	Kind     ErrorKind
	Provider string
	Message  string
	Cause    error
}

// Error implements the error interface
func (e *PinError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %s: %v", e.Provider, e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s: %s", e.Provider, e.Kind, e.Message)
}

// Unwrap returns the underlying cause
func (e *PinError) Unwrap() error {
	return e.Cause
}

// Retryable reports whether the failure is transient
func (e *PinError) Retryable() bool {
	switch e.Kind {
	case ErrKindRateLimited, ErrKindUnreachable, ErrKindUnknown:
		return true
	default:
		return false
	}
}

// Retryable reports whether an error is a transient pinning failure.
// Non-PinError failures are treated as transient.
func Retryable(err error) bool {
	var pinErr *PinError
	if errors.As(err, &pinErr) {
		return pinErr.Retryable()
	}
	return true
}

// KindOf extracts the error kind from any error, mapping non-PinError
// failures to Unknown.
func KindOf(err error) ErrorKind {
	var pinErr *PinError
	if errors.As(err, &pinErr) {
		return pinErr.Kind
	}
	return ErrKindUnknown
}

// classifyHTTP maps an HTTP response status to the error taxonomy
func classifyHTTP(provider string, status int, body string) *PinError {
	kind := ErrKindUnknown
	switch {
	case status == 401 || status == 403:
		kind = ErrKindAuthFailed
	case status == 429:
		kind = ErrKindRateLimited
	case status == 400 || status == 404 || status == 422:
		kind = ErrKindRejected
	case status >= 500:
		kind = ErrKindUnreachable
	}
	return &PinError{
		Kind:     kind,
		Provider: provider,
		Message:  fmt.Sprintf("HTTP %d: %s", status, truncate(body, 200)),
	}
}

// transportError wraps a network-level failure (dial, TLS, timeout)
func transportError(provider string, err error) *PinError {
	return &PinError{
		Kind:     ErrKindUnreachable,
		Provider: provider,
		Message:  "request failed",
		Cause:    err,
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

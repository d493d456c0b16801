package indexer

import "fmt"

// FetchErrorKind classifies indexer fetch failures
type FetchErrorKind string

const (
	// ErrKindInvalidAddress means the creator address failed local validation
	ErrKindInvalidAddress FetchErrorKind = "InvalidAddress"
	// ErrKindNetworkFailure means the indexer was unreachable or returned a bad response
	ErrKindNetworkFailure FetchErrorKind = "NetworkFailure"
)

// FetchError is a typed indexer failure. It is recoverable at the fetch
// boundary: callers report it and continue with an empty collection.
type FetchError struct {
	Kind    FetchErrorKind
	Message string
	Cause   error
}

// Error implements the error interface
func (e *FetchError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap returns the underlying cause
func (e *FetchError) Unwrap() error {
	return e.Cause
}

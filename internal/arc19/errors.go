package arc19

import (
	"errors"
	"fmt"

	"github.com/nft-repin/internal/types"
)

// DecodeErrorKind is the closed set of decode failure classifications
type DecodeErrorKind string

const (
	// ErrKindNotArc19 means the URL does not match the ARC-19 template grammar
	ErrKindNotArc19 DecodeErrorKind = "NotArc19"
	// ErrKindMissingField means the template's address field is unknown or unset on the asset
	ErrKindMissingField DecodeErrorKind = "MissingField"
	// ErrKindInvalidEncoding means the address is not valid padded base32 or fails its checksum
	ErrKindInvalidEncoding DecodeErrorKind = "InvalidEncoding"
	// ErrKindUnsupportedHash means the template names a hash function the decoder does not support
	ErrKindUnsupportedHash DecodeErrorKind = "UnsupportedHash"
	// ErrKindUnsupportedVersion means the template names a CID version other than 1
	ErrKindUnsupportedVersion DecodeErrorKind = "UnsupportedVersion"
)

// DecodeError is a structured ARC-19 decode failure. Decode failures are
// always recoverable at the collection level: the asset is skipped and the
// run continues.
type DecodeError struct {
	Kind    DecodeErrorKind
	Message string
	Cause   error
}

// Error implements the error interface
func (e *DecodeError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap returns the underlying cause
func (e *DecodeError) Unwrap() error {
	return e.Cause
}

// Detail converts a decode failure into a portable error detail for storage
// and API responses. Non-decode errors map to the NotArc19 kind.
func Detail(err error) *types.ErrorDetail {
	var decodeErr *DecodeError
	if errors.As(err, &decodeErr) {
		return &types.ErrorDetail{Kind: string(decodeErr.Kind), Message: decodeErr.Error()}
	}
	return &types.ErrorDetail{Kind: string(ErrKindNotArc19), Message: err.Error()}
}

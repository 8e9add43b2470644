// Package domainerrors defines the error taxonomy shared by services and the
// HTTP boundary. Services create or wrap errors with a Code; the transport
// layer translates codes to status codes in exactly one place.
package domainerrors

import (
	"errors"
	"fmt"
)

// Code classifies an error for boundary translation.
type Code string

const (
	// CodeNotFound signals a missing workspace or item.
	CodeNotFound Code = "not_found"
	// CodeForbidden signals a secret mismatch, insufficient tier, or a
	// protected operation (e.g. deleting an item with official records).
	CodeForbidden Code = "forbidden"
	// CodeBadRequest signals malformed transport input (body, query params).
	CodeBadRequest Code = "bad_request"
	// CodeConflict signals a state conflict (duplicate creation).
	CodeConflict Code = "conflict"
	// CodeValidation signals invalid domain input. Ingestion identifier
	// collisions carry this code and abort the run.
	CodeValidation Code = "validation_failed"
	// CodeInvariantViolation signals a broken domain invariant.
	CodeInvariantViolation Code = "invariant_violation"
	// CodeIndexRequired signals a query the backing store cannot serve
	// without a composite index. Distinguishable from generic failures so
	// callers receive the remediation URL instead of a 500.
	CodeIndexRequired Code = "index_required"
	// CodeUnavailable signals a dependency outage (upstream dataset, cache).
	CodeUnavailable Code = "unavailable"
	// CodeInternal is the generic fallback; descriptions are not exposed.
	CodeInternal Code = "internal_error"
)

// Error is a classified domain error, optionally wrapping a cause.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a domain error with the given code and message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf creates a domain error with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to an underlying error. If err is already
// a domain error its code is preserved so classification survives layering.
func Wrap(err error, code Code, message string) *Error {
	if err == nil {
		return New(code, message)
	}
	var de *Error
	if errors.As(err, &de) {
		code = de.Code
	}
	return &Error{Code: code, Message: message, Err: err}
}

// HasCode reports whether err carries the given code anywhere in its chain.
func HasCode(err error, code Code) bool {
	var de *Error
	if errors.As(err, &de) {
		return de.Code == code
	}
	return false
}

// CodeOf extracts the code from err, defaulting to CodeInternal.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

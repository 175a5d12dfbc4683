// Package domainerrors defines the typed error vocabulary shared by services
// and the HTTP layer. Services return these so transport can map them to
// status codes without inspecting error strings.
package domainerrors

import (
	"errors"
	"fmt"
)

// Code classifies a domain error for transport mapping and logging.
type Code string

const (
	// CodeBadRequest covers malformed requests (unparseable body, nil request).
	CodeBadRequest Code = "bad_request"
	// CodeValidation covers well-formed requests with disallowed content.
	// Messages are safe to return verbatim to the caller.
	CodeValidation Code = "validation_error"
	// CodeUnauthorized covers missing or unusable credentials.
	CodeUnauthorized Code = "unauthorized"
	// CodeForbidden covers insufficient capability or role. Messages must stay
	// generic so the permission structure does not leak.
	CodeForbidden Code = "forbidden"
	// CodeNotFound covers absent entities. Deliberately indistinguishable from
	// inaccessible ones at the HTTP boundary.
	CodeNotFound Code = "not_found"
	// CodeConflict covers uniqueness and state conflicts.
	CodeConflict Code = "conflict"
	// CodeInvariantViolation marks a broken domain invariant detected by a
	// constructor. Services translate it before it reaches transport.
	CodeInvariantViolation Code = "invariant_violation"
	// CodeInternal covers unexpected faults. The message is logged, never
	// returned to the caller.
	CodeInternal Code = "internal_error"
)

// Error is a coded domain error with an optional wrapped cause.
type Error struct {
	Code    Code
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// New creates a coded error without a cause.
func New(code Code, message string) error {
	return &Error{Code: code, Message: message}
}

// Newf creates a coded error with a formatted message.
func Newf(code Code, format string, args ...any) error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to an underlying cause.
func Wrap(err error, code Code, message string) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: message, cause: err}
}

// HasCode reports whether err (or anything it wraps) carries the given code.
func HasCode(err error, code Code) bool {
	var de *Error
	if errors.As(err, &de) {
		return de.Code == code
	}
	return false
}

// CodeOf extracts the code from err, defaulting to CodeInternal for uncoded
// errors so unexpected faults never leak detail.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// MessageOf extracts the message from err. Empty for uncoded errors.
func MessageOf(err error) string {
	var de *Error
	if errors.As(err, &de) {
		return de.Message
	}
	return ""
}

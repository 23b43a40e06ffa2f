// Package errors provides the error taxonomy shared by the game engine and the
// HTTP layer.
package errors

import (
	stderrors "errors"
	"net/http"
)

// Kind classifies an error for callers that need a deterministic status.
type Kind string

const (
	KindNotFound     Kind = "NOT_FOUND"
	KindForbidden    Kind = "FORBIDDEN"
	KindConflict     Kind = "CONFLICT"
	KindInvalidInput Kind = "INVALID_INPUT"
	KindInternal     Kind = "INTERNAL"
)

// Error is the domain error type with a machine-readable code.
type Error struct {
	Kind    Kind   // Coarse category
	Code    Code   // Machine-readable error code
	Message string // Human-readable message
	Cause   error  // Wrapped underlying error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

// Unwrap returns the underlying cause for error chain traversal.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error by code.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// New creates a domain error whose kind is derived from the code.
func New(code Code, message string) *Error {
	return &Error{
		Kind:    code.Kind(),
		Code:    code,
		Message: message,
	}
}

// Wrap creates a domain error that wraps an underlying cause.
func Wrap(code Code, message string, cause error) *Error {
	return &Error{
		Kind:    code.Kind(),
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// Internal wraps an unexpected failure.
func Internal(message string, cause error) *Error {
	return Wrap(CodeInternal, message, cause)
}

// As finds the first *Error in err's chain.
func As(err error) (*Error, bool) {
	var de *Error
	if stderrors.As(err, &de) {
		return de, true
	}
	return nil, false
}

// KindOf returns the kind of err, or KindInternal for errors outside the taxonomy.
func KindOf(err error) Kind {
	if de, ok := As(err); ok {
		return de.Kind
	}
	return KindInternal
}

// CodeOf returns the code of err, or CodeInternal for errors outside the taxonomy.
func CodeOf(err error) Code {
	if de, ok := As(err); ok {
		return de.Code
	}
	return CodeInternal
}

// HTTPStatus maps err to the status code the API answers with.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindNotFound:
		return http.StatusNotFound
	case KindForbidden:
		return http.StatusForbidden
	case KindConflict:
		return http.StatusConflict
	case KindInvalidInput:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// PublicMessage returns the message safe to show a client. Internal causes are
// not exposed.
func PublicMessage(err error) string {
	de, ok := As(err)
	if !ok || de.Kind == KindInternal {
		return "internal error"
	}
	return de.Message
}

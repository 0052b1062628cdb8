// Package apperr defines the tagged failure type returned by every pipeline
// across a request boundary. Handlers map the Kind to an HTTP status and
// render the Code so callers can react to specific known cases.
package apperr

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"gorm.io/gorm"
)

// Kind classifies a failure.
type Kind string

const (
	KindConfig       Kind = "config"
	KindValidation   Kind = "validation"
	KindNotFound     Kind = "not_found"
	KindConflict     Kind = "conflict"
	KindUnauthorized Kind = "unauthorized"
	KindForbidden    Kind = "forbidden"
	KindUnavailable  Kind = "unavailable"
	KindInternal     Kind = "internal"
)

// Machine-readable codes for the cases callers branch on.
const (
	CodeMissingField   = "missing_field"
	CodeMissingPlaceID = "MISSING_PLACE_ID"
	CodeTimeout        = "timeout"
)

// Error is a pipeline failure carrying its kind, a machine code, a
// human-readable message and the wrapped cause.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// New creates an Error without a cause.
func New(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

// Wrap creates an Error around cause.
func Wrap(kind Kind, code, message string, cause error) *Error {
	return &Error{Kind: kind, Code: code, Message: message, Err: cause}
}

func Config(code, message string, cause error) *Error {
	return Wrap(KindConfig, code, message, cause)
}

func Validation(code, message string) *Error {
	return New(KindValidation, code, message)
}

func NotFound(code, message string) *Error {
	return New(KindNotFound, code, message)
}

func Conflict(code, message string, cause error) *Error {
	return Wrap(KindConflict, code, message, cause)
}

func Forbidden(message string) *Error {
	return New(KindForbidden, "forbidden", message)
}

func Unauthorized(message string) *Error {
	return New(KindUnauthorized, "unauthorized", message)
}

func Internal(code, message string, cause error) *Error {
	return Wrap(KindInternal, code, message, cause)
}

// As returns the *Error in err's chain, if any.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// KindOf reports the kind of err; untagged errors are internal.
func KindOf(err error) Kind {
	if e, ok := As(err); ok {
		return e.Kind
	}
	return KindInternal
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// Retryable reports whether the caller may retry the same request.
func Retryable(err error) bool {
	return Is(err, KindUnavailable)
}

// FromContext tags deadline and cancellation errors as unavailable and
// wraps anything else as internal. Errors already tagged pass through.
func FromContext(op string, err error) error {
	if err == nil {
		return nil
	}
	if _, ok := As(err); ok {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return Wrap(KindUnavailable, CodeTimeout, op+" timed out", err)
	}
	return Wrap(KindInternal, "internal_error", op+" failed", err)
}

// FromDB maps GORM errors onto kinds. gorm.Config.TranslateError must be
// enabled for duplicate keys to be recognised.
func FromDB(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return Wrap(KindNotFound, "not_found", op+": not found", err)
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return Wrap(KindConflict, "duplicate", op+": already exists", err)
	default:
		return FromContext(op, err)
	}
}

// HTTPStatus maps a kind to the status code used at the HTTP boundary.
func HTTPStatus(kind Kind) int {
	switch kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Package apperr defines the error kinds surfaced at the service boundary.
// Every error a caller can see carries a stable Kind and a message that is
// safe to return; the wrapped cause is for logs only.
package apperr

import (
	"errors"
	"net/http"
)

// Kind is the machine-checkable class of an error.
type Kind string

const (
	KindValidation         Kind = "validation"
	KindConflict           Kind = "conflict"
	KindInvalidCredentials Kind = "invalid_credentials"
	KindUnauthorized       Kind = "unauthorized"
	KindForbidden          Kind = "forbidden"
	KindNotFound           Kind = "not_found"
	KindInternal           Kind = "internal"
)

// Error is a classified error. Field names the offending input for
// validation and conflict errors.
type Error struct {
	Kind    Kind
	Field   string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return string(e.Kind) + ": " + e.Message + ": " + e.Err.Error()
	}
	return string(e.Kind) + ": " + e.Message
}

func (e *Error) Unwrap() error { return e.Err }

func Validation(field, msg string) *Error {
	return &Error{Kind: KindValidation, Field: field, Message: msg}
}

func Conflict(field, msg string) *Error {
	return &Error{Kind: KindConflict, Field: field, Message: msg}
}

func InvalidCredentials() *Error {
	return &Error{Kind: KindInvalidCredentials, Message: "Invalid credentials"}
}

func Unauthorized(msg string) *Error {
	return &Error{Kind: KindUnauthorized, Message: msg}
}

func Forbidden(msg string) *Error {
	return &Error{Kind: KindForbidden, Message: msg}
}

func NotFound(msg string) *Error {
	return &Error{Kind: KindNotFound, Message: msg}
}

// Internal hides cause behind a generic message.
func Internal(cause error) *Error {
	return &Error{Kind: KindInternal, Message: "Internal server error", Err: cause}
}

// From returns err as an *Error, classifying anything unknown as internal.
func From(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Internal(err)
}

// KindOf reports the kind of err, or "" for nil.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	return From(err).Kind
}

// Is reports whether err is classified as kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// HTTPStatus maps a kind to its response status.
func HTTPStatus(kind Kind) int {
	switch kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindConflict:
		return http.StatusConflict
	case KindInvalidCredentials, KindUnauthorized:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

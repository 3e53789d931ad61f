// Package apperrors defines the closed error taxonomy shared by all services.
// The HTTP layer maps Kind to a status code instead of string-matching messages.
package apperrors

import (
	"errors"
	"fmt"
)

// Kind classifies an application error.
type Kind string

const (
	KindUnauthorized     Kind = "unauthorized"
	KindNotFound         Kind = "not_found"
	KindConflict         Kind = "conflict"
	KindValidationFailed Kind = "validation_failed"
	KindInternal         Kind = "internal"
)

// Error is a Kind-tagged application error carrying structured context.
type Error struct {
	Kind   Kind
	Entity string // entity type the error refers to ("tenant", "role", ...)
	Msg    string
	Err    error // wrapped cause, if any
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

// Unwrap exposes the wrapped cause for errors.Is/errors.As chains.
func (e *Error) Unwrap() error {
	return e.Err
}

// Unauthorized returns an authorization failure. The message is fixed-form
// ("Unauthorized", optionally qualified) so the transport surfaces 401.
func Unauthorized(msg string) *Error {
	if msg == "" {
		msg = "Unauthorized"
	}
	return &Error{Kind: KindUnauthorized, Msg: msg}
}

// NotFound reports a missing entity.
func NotFound(entity, msg string) *Error {
	return &Error{Kind: KindNotFound, Entity: entity, Msg: msg}
}

// Conflict reports a uniqueness or cascade-precondition violation.
func Conflict(entity, msg string) *Error {
	return &Error{Kind: KindConflict, Entity: entity, Msg: msg}
}

// Validation reports a business-rule violation on the request itself.
func Validation(entity, msg string) *Error {
	return &Error{Kind: KindValidationFailed, Entity: entity, Msg: msg}
}

// Internal wraps an unexpected store failure.
func Internal(msg string, err error) *Error {
	return &Error{Kind: KindInternal, Msg: msg, Err: err}
}

// KindOf extracts the Kind of err, or KindInternal for untagged errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// IsUnauthorized reports whether err is an authorization failure.
func IsUnauthorized(err error) bool { return KindOf(err) == KindUnauthorized }

// IsNotFound reports whether err is a missing-entity error.
func IsNotFound(err error) bool { return KindOf(err) == KindNotFound }

// IsConflict reports whether err is a uniqueness/precondition violation.
func IsConflict(err error) bool { return KindOf(err) == KindConflict }

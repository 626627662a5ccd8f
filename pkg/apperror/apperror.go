// Package apperror defines the closed error taxonomy for the control plane.
//
// Every component raises one of these typed failures; the HTTP layer maps them
// onto a fixed status code per code. Anything untyped is converted to Internal
// at the top of the stack and only a correlation id crosses the boundary.
package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// Code identifies a failure class with a fixed HTTP status mapping.
type Code string

const (
	CodeAuthRequired           Code = "AUTH_REQUIRED"
	CodePermissionDenied       Code = "PERMISSION_DENIED"
	CodeInvalidInput           Code = "INVALID_INPUT"
	CodeInvalidStateTransition Code = "INVALID_STATE_TRANSITION"
	CodeFeatureDisabled        Code = "FEATURE_DISABLED"
	CodeDataIncomplete         Code = "DATA_INCOMPLETE"
	CodeRateLimited            Code = "RATE_LIMITED"
	CodeNotFound               Code = "NOT_FOUND"
	CodeInternal               Code = "INTERNAL"
)

// Error is a typed control-plane failure.
type Error struct {
	Code    Code                   `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`

	// wrapped holds an underlying cause, never serialized to callers.
	wrapped error
}

func (e *Error) Error() string {
	if e.wrapped != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.wrapped)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes the underlying cause for errors.Is/As chains.
func (e *Error) Unwrap() error {
	return e.wrapped
}

// WithDetail attaches a single structured detail and returns the error.
func (e *Error) WithDetail(key string, value interface{}) *Error {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// WithCause records the underlying error without exposing it to callers.
func (e *Error) WithCause(err error) *Error {
	e.wrapped = err
	return e
}

// HTTPStatus returns the fixed status mapping for the error code.
func (e *Error) HTTPStatus() int {
	switch e.Code {
	case CodeAuthRequired:
		return http.StatusUnauthorized
	case CodePermissionDenied, CodeFeatureDisabled:
		return http.StatusForbidden
	case CodeInvalidInput, CodeInvalidStateTransition:
		return http.StatusBadRequest
	case CodeDataIncomplete:
		return http.StatusUnprocessableEntity
	case CodeRateLimited:
		return http.StatusTooManyRequests
	case CodeNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// New constructs a typed error with a formatted message.
func New(code Code, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// AuthRequired signals a missing or invalid credential (401).
func AuthRequired(format string, args ...interface{}) *Error {
	return New(CodeAuthRequired, format, args...)
}

// PermissionDenied signals an authorization failure (403).
func PermissionDenied(format string, args ...interface{}) *Error {
	return New(CodePermissionDenied, format, args...)
}

// InvalidInput signals a malformed or rejected request (400).
func InvalidInput(format string, args ...interface{}) *Error {
	return New(CodeInvalidInput, format, args...)
}

// InvalidStateTransition signals an illegal lifecycle move (400).
func InvalidStateTransition(format string, args ...interface{}) *Error {
	return New(CodeInvalidStateTransition, format, args...)
}

// FeatureDisabled signals a capability gate rejection (403).
func FeatureDisabled(format string, args ...interface{}) *Error {
	return New(CodeFeatureDisabled, format, args...)
}

// DataIncomplete signals a request missing required follow-up data (422).
func DataIncomplete(format string, args ...interface{}) *Error {
	return New(CodeDataIncomplete, format, args...)
}

// RateLimited signals throttling (429).
func RateLimited(format string, args ...interface{}) *Error {
	return New(CodeRateLimited, format, args...)
}

// NotFound signals a missing entity (404).
func NotFound(format string, args ...interface{}) *Error {
	return New(CodeNotFound, format, args...)
}

// Internal wraps an unexpected failure (500). The cause is kept server-side.
func Internal(err error) *Error {
	e := New(CodeInternal, "internal error")
	e.wrapped = err
	return e
}

// From converts any error into a typed *Error. Typed errors pass through;
// anything else becomes Internal with the original error as hidden cause.
func From(err error) *Error {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr
	}
	return Internal(err)
}

// IsCode reports whether err is a typed error with the given code.
func IsCode(err error, code Code) bool {
	var appErr *Error
	return errors.As(err, &appErr) && appErr.Code == code
}

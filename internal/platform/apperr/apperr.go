// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package apperr defines the centralized error taxonomy for the Aegis gate.

Every rejection produced by the admission layer (authentication, CSRF, rate
limiting, input validation) is expressed as an [AppError] so the HTTP boundary
renders one consistent envelope.

Taxonomy:

  - UNAUTHENTICATED (401): missing, expired, invalid or revoked token.
  - FORBIDDEN (403): insufficient role or permission, CSRF failure.
  - RATE_LIMITED (429): limit exceeded, IP blocked, login lockout.
  - MALICIOUS_INPUT (400): an injection pattern was detected.
  - VALIDATION_ERROR (400) and UNPROCESSABLE (422): well-formed but invalid input.

Rejections are terminal. Nothing downstream of a rejection is executed.
*/
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// # Error Codes

const (
	CodeUnauthenticated = "UNAUTHENTICATED"
	CodeForbidden       = "FORBIDDEN"
	CodeRateLimited     = "RATE_LIMITED"
	CodeMaliciousInput  = "MALICIOUS_INPUT"
	CodeValidation      = "VALIDATION_ERROR"
	CodeUnprocessable   = "UNPROCESSABLE"
	CodePayloadTooLarge = "PAYLOAD_TOO_LARGE"
	CodeNotFound        = "NOT_FOUND"
	CodeNotAllowed      = "METHOD_NOT_ALLOWED"
	CodeConflict        = "CONFLICT"
	CodeInternal        = "INTERNAL_ERROR"
	CodeUnavailable     = "SERVICE_UNAVAILABLE"
)

// AppError is the canonical error type for the Aegis API.
//
// It carries an HTTP status code, a machine-readable code, a client-safe
// message, and an optional slice of field-level validation errors.
//
// # Security
//
// The Cause field is for server-side logging only and is never sent to clients
// to avoid leaking internal implementation details (e.g., store failures).
type AppError struct {
	// Code is a machine-readable error identifier (e.g. "UNAUTHENTICATED").
	Code string `json:"code"`
	// Message is a human-readable description safe to return to the client.
	Message string `json:"error"`
	// Reason refines the code (e.g. "EXPIRED", "REVOKED") without leaking detail.
	Reason string `json:"reason,omitempty"`
	// HTTPStatus is the HTTP response status code.
	HTTPStatus int `json:"-"`
	// RetryAfter is the client back-off hint in seconds for RATE_LIMITED errors.
	RetryAfter int `json:"-"`
	// Cause is the underlying error, used for server-side logging only.
	Cause error `json:"-"`
	// Details holds per-field validation errors for VALIDATION_ERROR responses.
	Details []FieldError `json:"details,omitempty"`
}

// FieldError represents a single field-level validation failure.
type FieldError struct {
	// Field is the JSON field name that failed validation.
	Field string `json:"field"`
	// Message is the human-readable description of the failure.
	Message string `json:"message"`
}

// Error implements the error interface. It returns the client-safe message.
func (e *AppError) Error() string { return e.Message }

// Unwrap allows [errors.Is] and [errors.As] to traverse the cause chain.
func (e *AppError) Unwrap() error { return e.Cause }

// WithCause attaches a server-side cause and returns the same error.
func (e *AppError) WithCause(cause error) *AppError {
	e.Cause = cause
	return e
}

// # Client Errors (4xx)

// Unauthenticated creates a 401 [AppError]. Reason is one of the token
// rejection reasons ("MISSING", "EXPIRED", "INVALID", "REVOKED").
func Unauthenticated(reason, msg string) *AppError {
	return &AppError{
		Code:       CodeUnauthenticated,
		Message:    msg,
		Reason:     reason,
		HTTPStatus: http.StatusUnauthorized,
	}
}

// Unauthorized creates a 401 [AppError] without a specific reason.
func Unauthorized(msg string) *AppError {
	return Unauthenticated("", msg)
}

// Forbidden creates a 403 [AppError].
func Forbidden(msg string) *AppError {
	return &AppError{
		Code:       CodeForbidden,
		Message:    msg,
		HTTPStatus: http.StatusForbidden,
	}
}

// MaliciousInput creates a 400 [AppError] for input that matched an injection pattern.
//
// The offending value is never echoed back. Only the field name is reported.
func MaliciousInput(field string) *AppError {
	appError := &AppError{
		Code:       CodeMaliciousInput,
		Message:    "Request contains disallowed content",
		HTTPStatus: http.StatusBadRequest,
	}
	if field != "" {
		appError.Details = []FieldError{{Field: field, Message: "Disallowed content"}}
	}
	return appError
}

// ValidationError creates a 400 [AppError] with optional per-field details.
func ValidationError(msg string, details ...FieldError) *AppError {
	return &AppError{
		Code:       CodeValidation,
		Message:    msg,
		HTTPStatus: http.StatusBadRequest,
		Details:    details,
	}
}

// PayloadTooLarge creates a 413 [AppError] for bodies over the configured limit.
func PayloadTooLarge(limit int64) *AppError {
	return &AppError{
		Code:       CodePayloadTooLarge,
		Message:    fmt.Sprintf("Request body exceeds %d bytes", limit),
		HTTPStatus: http.StatusRequestEntityTooLarge,
	}
}

// RateLimited creates a 429 [AppError] carrying a Retry-After hint.
func RateLimited(retryAfterSeconds int) *AppError {
	if retryAfterSeconds < 1 {
		retryAfterSeconds = 1
	}
	return &AppError{
		Code:       CodeRateLimited,
		Message:    fmt.Sprintf("Too many requests. Try again in %ds.", retryAfterSeconds),
		HTTPStatus: http.StatusTooManyRequests,
		RetryAfter: retryAfterSeconds,
	}
}

// Unprocessable creates a 422 [AppError] for semantically invalid input.
func Unprocessable(msg string) *AppError {
	return &AppError{
		Code:       CodeUnprocessable,
		Message:    msg,
		HTTPStatus: http.StatusUnprocessableEntity,
	}
}

// NotFound creates a 404 [AppError] for unrouted paths.
func NotFound(msg string) *AppError {
	return &AppError{
		Code:       CodeNotFound,
		Message:    msg,
		HTTPStatus: http.StatusNotFound,
	}
}

// MethodNotAllowed creates a 405 [AppError].
func MethodNotAllowed() *AppError {
	return &AppError{
		Code:       CodeNotAllowed,
		Message:    "Method not allowed",
		HTTPStatus: http.StatusMethodNotAllowed,
	}
}

// Conflict creates a 409 [AppError] for a write that collides with existing state.
func Conflict(msg string) *AppError {
	return &AppError{
		Code:       CodeConflict,
		Message:    msg,
		HTTPStatus: http.StatusConflict,
	}
}

// # Server Errors (5xx)

// Internal creates a 500 [AppError] wrapping an unexpected server-side error.
// The cause is stored for logging but is never sent to the client.
func Internal(cause error) *AppError {
	return &AppError{
		Code:       CodeInternal,
		Message:    "An unexpected error occurred",
		HTTPStatus: http.StatusInternalServerError,
		Cause:      cause,
	}
}

// ServiceUnavailable creates a 503 [AppError] for degraded backing stores.
func ServiceUnavailable(msg string) *AppError {
	return &AppError{
		Code:       CodeUnavailable,
		Message:    msg,
		HTTPStatus: http.StatusServiceUnavailable,
	}
}

// # Helpers

// IsAppError reports whether err (or any error in its chain) is an [*AppError].
func IsAppError(err error) bool {
	var ae *AppError
	return errors.As(err, &ae)
}

// As extracts the [*AppError] from err's chain. It returns nil if not found.
func As(err error) *AppError {
	var ae *AppError
	if errors.As(err, &ae) {
		return ae
	}
	return nil
}

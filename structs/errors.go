// Copyright (c) Fieldward, Inc.
// SPDX-License-Identifier: BUSL-1.1

package structs

import (
	"errors"
	"fmt"
)

var (
	// ErrPermissionDenied is returned when an operation is attempted by a
	// caller whose role does not allow it.
	ErrPermissionDenied = errors.New("Permission denied")

	// ErrTokenRequired is returned when a request carries no bearer token.
	ErrTokenRequired = errors.New("Authorization token required")

	// ErrInvalidToken is returned when a bearer token fails verification.
	ErrInvalidToken = errors.New("Invalid or expired token")

	// ErrInvalidCredentials is returned on a failed login. The message is
	// deliberately identical for unknown email and wrong password.
	ErrInvalidCredentials = errors.New("Invalid email or password")
)

// NotFoundError is returned when an entity does not exist under the caller's
// tenant view. Cross-tenant reads are reported with this same error so that
// existence never leaks across companies.
type NotFoundError struct {
	Entity string
}

func NewNotFoundError(entity string) *NotFoundError {
	return &NotFoundError{Entity: entity}
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found", e.Entity)
}

// IsNotFound reports whether err is a NotFoundError.
func IsNotFound(err error) bool {
	var nfe *NotFoundError
	return errors.As(err, &nfe)
}

// ConflictError is returned when a request contradicts current state: an
// illegal status transition, a violated invariant, or a duplicate unique
// value.
type ConflictError struct {
	Msg string
}

func NewConflictError(format string, args ...interface{}) *ConflictError {
	return &ConflictError{Msg: fmt.Sprintf(format, args...)}
}

func (e *ConflictError) Error() string { return e.Msg }

// IsConflict reports whether err is a ConflictError.
func IsConflict(err error) bool {
	var ce *ConflictError
	return errors.As(err, &ce)
}

// ValidationError is returned when a request fails schema or invariant
// checks. Details carries per-field messages for the response body.
type ValidationError struct {
	Msg     string
	Details map[string]string
}

func NewValidationError(msg string) *ValidationError {
	return &ValidationError{Msg: msg}
}

func (e *ValidationError) WithDetail(field, msg string) *ValidationError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[field] = msg
	return e
}

func (e *ValidationError) Error() string { return e.Msg }

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// SemanticError is returned when a request is well-formed but rejected on
// semantic grounds, surfaced as 422.
type SemanticError struct {
	Msg string
}

func NewSemanticError(format string, args ...interface{}) *SemanticError {
	return &SemanticError{Msg: fmt.Sprintf(format, args...)}
}

func (e *SemanticError) Error() string { return e.Msg }

// RateLimitError is returned when a caller exceeds a request budget.
type RateLimitError struct {
	RetryAfterSeconds int
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited, retry after %d seconds", e.RetryAfterSeconds)
}

// ExternalError wraps a failure of an upstream provider (geocoding,
// payments). Routing failures never surface this; they degrade locally.
type ExternalError struct {
	Provider string
	Err      error
}

func NewExternalError(provider string, err error) *ExternalError {
	return &ExternalError{Provider: provider, Err: err}
}

func (e *ExternalError) Error() string {
	return fmt.Sprintf("%s unavailable: %v", e.Provider, e.Err)
}

func (e *ExternalError) Unwrap() error { return e.Err }

// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package errors defines the error kinds surfaced by the token lifecycle.
package errors

import (
	"errors"
	"fmt"
)

// Error types
const (
	// ErrConfigUnavailable is returned when the identity provider configuration cannot be fetched
	ErrConfigUnavailable = "config_unavailable"

	// ErrAuthorizationDenied is returned when the identity provider redirects back with an error
	ErrAuthorizationDenied = "authorization_denied"

	// ErrCsrfViolation is returned when the callback state does not match the stored marker
	ErrCsrfViolation = "csrf_violation"

	// ErrTokenExchangeFailed is returned when a code exchange or refresh call fails
	ErrTokenExchangeFailed = "token_exchange_failed"

	// ErrNoRefreshToken is returned when a refresh is requested without a refresh token
	ErrNoRefreshToken = "no_refresh_token"
)

// Error represents an error in the application
type Error struct {
	// Type is the error type
	Type string

	// Message is the error message
	Message string

	// Cause is the underlying error
	Cause error
}

// Error returns the error message
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %s", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a new error
func NewError(errorType, message string, cause error) *Error {
	return &Error{
		Type:    errorType,
		Message: message,
		Cause:   cause,
	}
}

// NewConfigUnavailableError creates a new config unavailable error
func NewConfigUnavailableError(message string, cause error) *Error {
	return NewError(ErrConfigUnavailable, message, cause)
}

// NewAuthorizationDeniedError creates a new authorization denied error.
// The message carries the error code supplied by the identity provider.
func NewAuthorizationDeniedError(message string, cause error) *Error {
	return NewError(ErrAuthorizationDenied, message, cause)
}

// NewCsrfViolationError creates a new CSRF violation error
func NewCsrfViolationError(message string, cause error) *Error {
	return NewError(ErrCsrfViolation, message, cause)
}

// NewTokenExchangeFailedError creates a new token exchange failed error
func NewTokenExchangeFailedError(message string, cause error) *Error {
	return NewError(ErrTokenExchangeFailed, message, cause)
}

// NewNoRefreshTokenError creates a new no refresh token error
func NewNoRefreshTokenError(message string, cause error) *Error {
	return NewError(ErrNoRefreshToken, message, cause)
}

// IsConfigUnavailable checks if the error is a config unavailable error
func IsConfigUnavailable(err error) bool {
	return isType(err, ErrConfigUnavailable)
}

// IsAuthorizationDenied checks if the error is an authorization denied error
func IsAuthorizationDenied(err error) bool {
	return isType(err, ErrAuthorizationDenied)
}

// IsCsrfViolation checks if the error is a CSRF violation error
func IsCsrfViolation(err error) bool {
	return isType(err, ErrCsrfViolation)
}

// IsTokenExchangeFailed checks if the error is a token exchange failed error
func IsTokenExchangeFailed(err error) bool {
	return isType(err, ErrTokenExchangeFailed)
}

// IsNoRefreshToken checks if the error is a no refresh token error
func IsNoRefreshToken(err error) bool {
	return isType(err, ErrNoRefreshToken)
}

func isType(err error, errorType string) bool {
	var e *Error
	return errors.As(err, &e) && e.Type == errorType
}

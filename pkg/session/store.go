// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package session provides the persistent session store: a small string
// key/value store scoped to one login session. It holds the serialized token
// state and the transient CSRF marker of an authorization request.
package session

import (
	"context"
	"errors"
	"fmt"
	"regexp"
)

//go:generate mockgen -destination=mocks/mock_store.go -package=mocks -source=store.go Store

const (
	// StateKey holds the serialized token state.
	StateKey = "auth_state"
	// CSRFKey holds the single-use CSRF marker of a pending authorization request.
	CSRFKey = "oauth_state"

	// DefaultScope is the scope used when none is configured.
	DefaultScope = "default"
)

// ErrNotFound is returned by Get when the key has no value.
var ErrNotFound = errors.New("session entry not found")

// Store is a string key/value store scoped to a single session.
type Store interface {
	// Get returns the value stored under key, or ErrNotFound.
	Get(ctx context.Context, key string) (string, error)
	// Set stores value under key, overwriting any previous value.
	Set(ctx context.Context, key, value string) error
	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
	// Close releases any resources held by the store.
	Close() error
}

var scopePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,127}$`)

// ValidateScope checks that a scope can be used as a file name, keyring
// service suffix and redis key segment.
func ValidateScope(scope string) error {
	if !scopePattern.MatchString(scope) {
		return fmt.Errorf("invalid session scope %q: must match %s", scope, scopePattern.String())
	}
	return nil
}

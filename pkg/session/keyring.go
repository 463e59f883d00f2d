// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/zalando/go-keyring"
)

const keyringServicePrefix = "thv-auth"

// KeyringStore keeps entries in the operating system keyring. Each scope is
// a separate keyring service and each key a separate item.
type KeyringStore struct {
	service string
}

// NewKeyringStore creates a KeyringStore for scope.
func NewKeyringStore(scope string) *KeyringStore {
	return &KeyringStore{service: keyringServicePrefix + "/" + scope}
}

// Get implements Store.
func (s *KeyringStore) Get(_ context.Context, key string) (string, error) {
	value, err := keyring.Get(s.service, key)
	if errors.Is(err, keyring.ErrNotFound) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to read %s from keyring: %w", key, err)
	}
	return value, nil
}

// Set implements Store.
func (s *KeyringStore) Set(_ context.Context, key, value string) error {
	if err := keyring.Set(s.service, key, value); err != nil {
		return fmt.Errorf("failed to write %s to keyring: %w", key, err)
	}
	return nil
}

// Delete implements Store.
func (s *KeyringStore) Delete(_ context.Context, key string) error {
	err := keyring.Delete(s.service, key)
	if err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("failed to delete %s from keyring: %w", key, err)
	}
	return nil
}

// Close implements Store.
func (*KeyringStore) Close() error {
	return nil
}

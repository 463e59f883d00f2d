// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"context"
	"fmt"

	"github.com/stacklok/thv-auth/pkg/logger"
)

// ProviderType identifies a session store backend.
type ProviderType string

const (
	// MemoryType keeps the session in process memory.
	MemoryType ProviderType = "memory"
	// FileType keeps the session in a locked file under the XDG state directory.
	FileType ProviderType = "file"
	// KeyringType keeps the session in the operating system keyring.
	KeyringType ProviderType = "keyring"
	// RedisType keeps the session in Redis.
	RedisType ProviderType = "redis"
)

// Config selects and configures a session store.
type Config struct {
	Provider ProviderType
	Scope    string

	// FilePath overrides the default session file location.
	FilePath string

	Redis RedisConfig
}

// NewStore creates the Store described by cfg.
func NewStore(ctx context.Context, cfg Config) (Store, error) {
	scope := cfg.Scope
	if scope == "" {
		scope = DefaultScope
	}
	if err := ValidateScope(scope); err != nil {
		return nil, err
	}

	logger.Debugw("creating session store", "provider", cfg.Provider, "scope", scope)

	switch cfg.Provider {
	case MemoryType:
		return NewMemoryStore(), nil
	case FileType, "":
		path := cfg.FilePath
		if path == "" {
			var err error
			path, err = DefaultFilePath(scope)
			if err != nil {
				return nil, fmt.Errorf("failed to resolve session file path: %w", err)
			}
		}
		return NewFileStore(path)
	case KeyringType:
		return NewKeyringStore(scope), nil
	case RedisType:
		return NewRedisStore(ctx, cfg.Redis, scope)
	default:
		return nil, fmt.Errorf("unknown session provider: %s", cfg.Provider)
	}
}

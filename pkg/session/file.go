// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
	"github.com/gofrs/flock"
)

// lockTimeout is the maximum time to wait for a file lock
const lockTimeout = 1 * time.Second

// FileStore keeps the entries of one scope in a JSON file guarded by a lock
// file, so several processes of the same user share one session.
type FileStore struct {
	path string
}

// DefaultFilePath returns the XDG state path of the session file for scope.
func DefaultFilePath(scope string) (string, error) {
	return xdg.StateFile(filepath.Join("thv-auth", "sessions", scope+".json"))
}

// NewFileStore creates a FileStore backed by path. The parent directory is
// created if needed.
func NewFileStore(path string) (*FileStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("failed to create session directory: %w", err)
	}
	return &FileStore{path: filepath.Clean(path)}, nil
}

// Get implements Store.
func (s *FileStore) Get(ctx context.Context, key string) (string, error) {
	var value string
	err := s.withLock(ctx, false, func() error {
		entries, err := s.read()
		if err != nil {
			return err
		}
		v, ok := entries[key]
		if !ok {
			return ErrNotFound
		}
		value = v
		return nil
	})
	return value, err
}

// Set implements Store.
func (s *FileStore) Set(ctx context.Context, key, value string) error {
	return s.update(ctx, func(entries map[string]string) {
		entries[key] = value
	})
}

// Delete implements Store.
func (s *FileStore) Delete(ctx context.Context, key string) error {
	return s.update(ctx, func(entries map[string]string) {
		delete(entries, key)
	})
}

// Close implements Store.
func (*FileStore) Close() error {
	return nil
}

func (s *FileStore) update(ctx context.Context, fn func(map[string]string)) error {
	return s.withLock(ctx, true, func() error {
		entries, err := s.read()
		if err != nil {
			return err
		}
		fn(entries)
		return s.write(entries)
	})
}

func (s *FileStore) withLock(ctx context.Context, exclusive bool, fn func() error) error {
	fileLock := flock.New(s.path + ".lock")
	lockCtx, cancel := context.WithTimeout(ctx, lockTimeout)
	defer cancel()

	var locked bool
	var err error
	if exclusive {
		locked, err = fileLock.TryLockContext(lockCtx, 50*time.Millisecond)
	} else {
		locked, err = fileLock.TryRLockContext(lockCtx, 50*time.Millisecond)
	}
	if err != nil {
		return fmt.Errorf("failed to acquire session lock: %w", err)
	}
	if !locked {
		return fmt.Errorf("failed to acquire session lock: timeout after %v", lockTimeout)
	}
	defer func() { _ = fileLock.Unlock() }()

	return fn()
}

func (s *FileStore) read() (map[string]string, error) {
	entries := make(map[string]string)

	// #nosec G304: path is derived from the configured session scope.
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return entries, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read session file: %w", err)
	}
	if len(data) == 0 {
		return entries, nil
	}
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("failed to parse session file: %w", err)
	}
	return entries, nil
}

func (s *FileStore) write(entries map[string]string) error {
	if len(entries) == 0 {
		if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed to remove session file: %w", err)
		}
		return nil
	}

	data, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("failed to encode session file: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temporary session file: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() { _ = os.Remove(tmpPath) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write session file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write session file: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("failed to replace session file: %w", err)
	}
	return nil
}

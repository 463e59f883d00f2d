// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package window models the browser surface the token lifecycle runs in:
// an application origin, the current location within it, and navigation.
//
// Navigating within the origin only moves the current location. Navigating
// anywhere else hands the URL to the system web browser.
package window

import (
	"errors"
	"fmt"
	"net/url"
	"sync"

	"github.com/pkg/browser"

	"github.com/stacklok/thv-auth/pkg/logger"
)

// Navigator is the browser surface used by the login flow.
type Navigator interface {
	// Origin returns the application origin, e.g. "https://app.example".
	Origin() string
	// Location returns a copy of the current location.
	Location() *url.URL
	// Navigate performs a full navigation to target, which may be relative
	// to the current location.
	Navigate(target string) error
	// ReplaceLocation rewrites the current location without navigating.
	ReplaceLocation(u *url.URL)
}

// Opener opens an external URL.
type Opener func(target string) error

// Option configures a Window.
type Option func(*Window)

// WithOpener replaces the function used to open external URLs. The default
// opens the system web browser.
func WithOpener(open Opener) Option {
	return func(w *Window) {
		w.open = open
	}
}

// Window is a Navigator for an application served at a fixed origin.
type Window struct {
	origin *url.URL
	open   Opener

	mu       sync.RWMutex
	location *url.URL
}

var _ Navigator = (*Window)(nil)

// New creates a Window for origin. The initial location is the origin root.
func New(origin string, opts ...Option) (*Window, error) {
	parsed, err := url.Parse(origin)
	if err != nil {
		return nil, fmt.Errorf("invalid origin: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("invalid origin %q: scheme and host are required", origin)
	}

	w := &Window{
		origin:   &url.URL{Scheme: parsed.Scheme, Host: parsed.Host},
		open:     browser.OpenURL,
		location: &url.URL{Scheme: parsed.Scheme, Host: parsed.Host, Path: "/"},
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Origin implements Navigator.
func (w *Window) Origin() string {
	return w.origin.String()
}

// Location implements Navigator.
func (w *Window) Location() *url.URL {
	w.mu.RLock()
	defer w.mu.RUnlock()
	loc := *w.location
	return &loc
}

// Navigate implements Navigator.
func (w *Window) Navigate(target string) error {
	resolved, err := w.resolve(target)
	if err != nil {
		return err
	}

	if w.sameOrigin(resolved) {
		w.setLocation(resolved)
		logger.Debugw("navigated", "location", resolved.String())
		return nil
	}

	logger.Infof("Opening browser to: %s", resolved.String())
	if err := w.open(resolved.String()); err != nil {
		return fmt.Errorf("failed to open %s: %w", resolved.Redacted(), err)
	}
	return nil
}

// ReplaceLocation implements Navigator.
func (w *Window) ReplaceLocation(u *url.URL) {
	loc := *u
	w.setLocation(&loc)
}

// Visit sets the current location to target as if the browser had loaded
// it. Targets outside the origin are rejected.
func (w *Window) Visit(target string) error {
	resolved, err := w.resolve(target)
	if err != nil {
		return err
	}
	if !w.sameOrigin(resolved) {
		return errors.New("cannot visit a location outside the application origin")
	}
	w.setLocation(resolved)
	return nil
}

func (w *Window) resolve(target string) (*url.URL, error) {
	ref, err := url.Parse(target)
	if err != nil {
		return nil, fmt.Errorf("invalid navigation target: %w", err)
	}
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.location.ResolveReference(ref), nil
}

func (w *Window) sameOrigin(u *url.URL) bool {
	return u.Scheme == w.origin.Scheme && u.Host == w.origin.Host
}

func (w *Window) setLocation(u *url.URL) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.location = u
}

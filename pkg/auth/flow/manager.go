// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package flow drives the OAuth2 authorization-code token lifecycle: login,
// callback handling with CSRF verification, token access with an expiry
// margin, reactive and proactive refresh, and logout.
package flow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
	"k8s.io/utils/clock"

	"github.com/stacklok/thv-auth/pkg/auth/backend"
	"github.com/stacklok/thv-auth/pkg/auth/token"
	"github.com/stacklok/thv-auth/pkg/logger"
	"github.com/stacklok/thv-auth/pkg/session"
	"github.com/stacklok/thv-auth/pkg/window"
)

// DefaultRefreshInterval is how often the background refresher checks the
// token expiry.
const DefaultRefreshInterval = 30 * time.Second

// Option configures a Manager.
type Option func(*Manager)

// WithClock replaces the real clock.
func WithClock(c clock.WithTicker) Option {
	return func(m *Manager) {
		m.clock = c
	}
}

// WithRefreshInterval sets the background refresher poll interval.
func WithRefreshInterval(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.refreshInterval = d
		}
	}
}

// WithStateGenerator replaces the CSRF marker generator.
func WithStateGenerator(gen func() string) Option {
	return func(m *Manager) {
		m.newCSRFState = gen
	}
}

// Manager owns the token state of one session.
type Manager struct {
	client    backend.Client
	store     session.Store
	navigator window.Navigator

	clock           clock.WithTicker
	refreshInterval time.Duration
	newCSRFState    func() string

	holder *token.Holder

	// commitMu serializes commits together with their store writes so the
	// store never lags behind a later commit.
	commitMu sync.Mutex
	// callbackMu makes the CSRF check and consumption atomic.
	callbackMu sync.Mutex
	refreshes  singleflight.Group

	flowMu    sync.Mutex
	flowState State

	refresherMu     sync.Mutex
	refresherCancel context.CancelFunc
	refresherDone   chan struct{}
}

// NewManager creates a Manager. Call Init before use to load a persisted
// session.
func NewManager(client backend.Client, store session.Store, navigator window.Navigator, opts ...Option) *Manager {
	m := &Manager{
		client:          client,
		store:           store,
		navigator:       navigator,
		clock:           clock.RealClock{},
		refreshInterval: DefaultRefreshInterval,
		newCSRFState:    uuid.NewString,
		holder:          token.NewHolder(),
		flowState:       StateIdle,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Init loads the persisted session and derives the initial flow state.
// A snapshot that cannot be decoded is discarded.
func (m *Manager) Init(ctx context.Context) error {
	m.commitMu.Lock()
	defer m.commitMu.Unlock()

	state, err := m.loadState(ctx)
	if err != nil {
		return err
	}
	m.holder.Init(state)

	pending, err := m.hasPendingLogin(ctx)
	if err != nil {
		return err
	}

	switch {
	case state.AccessToken != "" || state.HasRefreshToken():
		m.setFlowState(StateAuthenticated)
	case pending:
		m.setFlowState(StateAwaitingCallback)
	default:
		m.setFlowState(StateIdle)
	}

	logger.Debugw("session initialized", "flow_state", m.FlowState().String())
	return nil
}

func (m *Manager) loadState(ctx context.Context) (token.State, error) {
	raw, err := m.store.Get(ctx, session.StateKey)
	if errors.Is(err, session.ErrNotFound) {
		return token.State{}, nil
	}
	if err != nil {
		return token.State{}, fmt.Errorf("failed to load session: %w", err)
	}

	state, err := token.Decode(raw)
	if err != nil {
		logger.Warnw("discarding unreadable session state", "error", err)
		if err := m.store.Delete(ctx, session.StateKey); err != nil {
			logger.Warnw("failed to delete unreadable session state", "error", err)
		}
		return token.State{}, nil
	}
	return state, nil
}

func (m *Manager) hasPendingLogin(ctx context.Context) (bool, error) {
	_, err := m.store.Get(ctx, session.CSRFKey)
	if errors.Is(err, session.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to load login state: %w", err)
	}
	return true, nil
}

// Reset clears the in-memory state without touching the store.
func (m *Manager) Reset() {
	m.commitMu.Lock()
	defer m.commitMu.Unlock()
	m.holder.Reset()
	m.setFlowState(StateIdle)
}

// FlowState returns the current flow state.
func (m *Manager) FlowState() State {
	m.flowMu.Lock()
	defer m.flowMu.Unlock()
	return m.flowState
}

// TokenState returns a copy of the current token state.
func (m *Manager) TokenState() token.State {
	return m.holder.State()
}

// RedirectURI returns the callback URI registered for the current origin.
func (m *Manager) RedirectURI() string {
	return strings.TrimRight(m.navigator.Origin(), "/") + "/callback"
}

func (m *Manager) setFlowState(to State) {
	m.flowMu.Lock()
	from := m.flowState
	m.flowState = to
	m.flowMu.Unlock()

	if from != to {
		logger.Debugw("flow state changed", "from", from.String(), "to", to.String())
	}
}

// persist writes state to the store. Callers hold commitMu. Failures are
// logged; the in-memory state stays authoritative.
func (m *Manager) persist(ctx context.Context, state token.State) {
	if state.IsZero() {
		if err := m.store.Delete(ctx, session.StateKey); err != nil {
			logger.Warnw("failed to delete session state", "error", err)
		}
		return
	}

	encoded, err := token.Encode(state)
	if err != nil {
		logger.Warnw("failed to encode session state", "error", err)
		return
	}
	if err := m.store.Set(ctx, session.StateKey, encoded); err != nil {
		logger.Warnw("failed to persist session state", "error", err)
	}
}

// Logout clears the token state and the session store and navigates to the
// application root. No server-side revocation happens. The in-memory state
// is cleared even when the store cannot be updated.
func (m *Manager) Logout(ctx context.Context) error {
	var errs []error

	m.commitMu.Lock()
	m.holder.Reset()
	for _, key := range []string{session.StateKey, session.CSRFKey} {
		if err := m.store.Delete(ctx, key); err != nil {
			errs = append(errs, fmt.Errorf("failed to delete %s: %w", key, err))
		}
	}
	m.commitMu.Unlock()

	m.setFlowState(StateIdle)
	logger.Info("logged out")

	if err := m.navigator.Navigate("/"); err != nil {
		errs = append(errs, fmt.Errorf("failed to navigate home: %w", err))
	}
	return errors.Join(errs...)
}

// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package flow

import (
	"context"

	"k8s.io/utils/clock"

	"github.com/stacklok/thv-auth/pkg/logger"
)

// StartTokenRefresh starts the background refresher, which renews the tokens
// shortly before they expire. It is a no-op if the refresher is already
// running. The refresher stops when ctx is cancelled or StopTokenRefresh is
// called.
func (m *Manager) StartTokenRefresh(ctx context.Context) {
	m.refresherMu.Lock()
	defer m.refresherMu.Unlock()

	if m.refresherCancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	m.refresherCancel = cancel
	m.refresherDone = done

	ticker := m.clock.NewTicker(m.refreshInterval)
	go m.runRefresher(ctx, ticker, done)

	logger.Debugw("token refresher started", "interval", m.refreshInterval)
}

// StopTokenRefresh stops the background refresher and waits for it to exit.
// It is a no-op if the refresher is not running.
func (m *Manager) StopTokenRefresh() {
	m.refresherMu.Lock()
	cancel, done := m.refresherCancel, m.refresherDone
	m.refresherCancel, m.refresherDone = nil, nil
	m.refresherMu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	logger.Debug("token refresher stopped")
}

// RefresherRunning reports whether the background refresher is active.
func (m *Manager) RefresherRunning() bool {
	m.refresherMu.Lock()
	defer m.refresherMu.Unlock()
	return m.refresherCancel != nil
}

func (m *Manager) runRefresher(ctx context.Context, ticker clock.Ticker, done chan struct{}) {
	defer close(done)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.clearRefresher(done)
			return
		case <-ticker.C():
			m.refreshIfNeeded(ctx)
		}
	}
}

// clearRefresher forgets the refresher identified by done, unless it was
// already replaced or stopped.
func (m *Manager) clearRefresher(done chan struct{}) {
	m.refresherMu.Lock()
	defer m.refresherMu.Unlock()
	if m.refresherDone == done {
		m.refresherCancel()
		m.refresherCancel, m.refresherDone = nil, nil
	}
}

func (m *Manager) refreshIfNeeded(ctx context.Context) {
	state, generation := m.holder.Snapshot()
	if !state.NeedsRefresh(m.clock.Now()) {
		return
	}

	if _, err := m.refreshSince(ctx, &generation); err != nil {
		logger.Warnw("automatic token refresh failed", "error", err)
		return
	}
	logger.Info("token refreshed automatically")
}

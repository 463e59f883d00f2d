// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package flow

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	testingclock "k8s.io/utils/clock/testing"

	"github.com/stacklok/thv-auth/pkg/auth/backend/mocks"
	"github.com/stacklok/thv-auth/pkg/auth/token"
	"github.com/stacklok/thv-auth/pkg/session"
	"github.com/stacklok/thv-auth/pkg/window"
)

const testOrigin = "https://app.example"

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

type browserRecorder struct {
	mu     sync.Mutex
	opened []string
}

func (b *browserRecorder) open(target string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.opened = append(b.opened, target)
	return nil
}

func (b *browserRecorder) Opened() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.opened...)
}

type testEnv struct {
	client  *mocks.MockClient
	store   *session.MemoryStore
	window  *window.Window
	browser *browserRecorder
	clock   *testingclock.FakeClock
	manager *Manager
}

func newTestEnv(t *testing.T, opts ...Option) *testEnv {
	t.Helper()

	ctrl := gomock.NewController(t)
	env := &testEnv{
		client:  mocks.NewMockClient(ctrl),
		store:   session.NewMemoryStore(),
		browser: &browserRecorder{},
		clock:   testingclock.NewFakeClock(testNow),
	}

	w, err := window.New(testOrigin, window.WithOpener(env.browser.open))
	require.NoError(t, err)
	env.window = w

	allOpts := append([]Option{WithClock(env.clock)}, opts...)
	env.manager = NewManager(env.client, env.store, env.window, allOpts...)
	return env
}

// authenticate installs tokens expiring expiresIn from the fake clock's now.
func (e *testEnv) authenticate(t *testing.T, access, refresh string, expiresIn time.Duration) token.State {
	t.Helper()
	state := token.NewState(access, refresh, expiresIn, e.clock.Now())
	e.manager.holder.Init(state)
	e.manager.setFlowState(StateAuthenticated)
	return state
}

func (e *testEnv) storedState(t *testing.T) (token.State, bool) {
	t.Helper()
	raw, err := e.store.Get(t.Context(), session.StateKey)
	if err != nil {
		require.ErrorIs(t, err, session.ErrNotFound)
		return token.State{}, false
	}
	state, err := token.Decode(raw)
	require.NoError(t, err)
	return state, true
}

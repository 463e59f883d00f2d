// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package flow

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/stacklok/thv-auth/pkg/auth/backend"
	autherrors "github.com/stacklok/thv-auth/pkg/errors"
)

func waitForTicker(t *testing.T, env *testEnv) {
	t.Helper()
	require.Eventually(t, env.clock.HasWaiters, time.Second, time.Millisecond)
}

func TestManager_TokenRefresher_RefreshesBeforeExpiry(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	// Expires in 2 minutes: no refresh 30s in, refresh 90s in.
	env.authenticate(t, "A", "R", 2*time.Minute)

	refreshed := make(chan struct{})
	env.client.EXPECT().Refresh(gomock.Any(), "R").
		DoAndReturn(func(context.Context, string) (*backend.TokenResponse, error) {
			close(refreshed)
			return &backend.TokenResponse{AccessToken: "A2", ExpiresIn: 300}, nil
		})

	env.manager.StartTokenRefresh(t.Context())
	t.Cleanup(env.manager.StopTokenRefresh)
	waitForTicker(t, env)

	env.clock.Step(30 * time.Second)
	select {
	case <-refreshed:
		t.Fatal("refreshed more than 60s before expiry")
	case <-time.After(50 * time.Millisecond):
	}

	env.clock.Step(60 * time.Second)

	select {
	case <-refreshed:
	case <-time.After(time.Second):
		t.Fatal("token was not refreshed")
	}

	require.Eventually(t, func() bool {
		tok, ok := env.manager.Token()
		return ok && tok == "A2"
	}, time.Second, time.Millisecond)
	assert.Equal(t, "R", env.manager.TokenState().RefreshToken)
}

func TestManager_TokenRefresher_FailureIsNotFatal(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	before := env.authenticate(t, "A", "R", 45*time.Second)

	failed := make(chan struct{})
	env.client.EXPECT().Refresh(gomock.Any(), "R").
		DoAndReturn(func(context.Context, string) (*backend.TokenResponse, error) {
			close(failed)
			return nil, autherrors.NewTokenExchangeFailedError("token refresh failed", nil)
		})

	env.manager.StartTokenRefresh(t.Context())
	t.Cleanup(env.manager.StopTokenRefresh)
	waitForTicker(t, env)

	env.clock.Step(DefaultRefreshInterval)
	select {
	case <-failed:
	case <-time.After(time.Second):
		t.Fatal("refresh was not attempted")
	}

	env.manager.StopTokenRefresh()
	assert.Equal(t, before, env.manager.TokenState(), "failed background refresh must not log out")
	assert.Equal(t, StateAuthenticated, env.manager.FlowState())
}

func TestManager_TokenRefresher_NothingToRefresh(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, WithRefreshInterval(10*time.Second))

	// No client expectations: without a refresh token nothing is sent.
	env.manager.StartTokenRefresh(t.Context())
	t.Cleanup(env.manager.StopTokenRefresh)
	waitForTicker(t, env)

	for range 5 {
		env.clock.Step(10 * time.Second)
	}
	time.Sleep(20 * time.Millisecond)
}

func TestManager_TokenRefresher_Lifecycle(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	assert.False(t, env.manager.RefresherRunning())

	env.manager.StartTokenRefresh(t.Context())
	assert.True(t, env.manager.RefresherRunning())

	// Starting twice keeps a single ticker.
	env.manager.StartTokenRefresh(t.Context())
	waitForTicker(t, env)

	env.manager.StopTokenRefresh()
	assert.False(t, env.manager.RefresherRunning())

	// Stopping twice is a no-op.
	env.manager.StopTokenRefresh()

	// Cancelling the start context also stops the refresher.
	ctx, cancel := context.WithCancel(t.Context())
	env.manager.StartTokenRefresh(ctx)
	assert.True(t, env.manager.RefresherRunning())
	cancel()
	require.Eventually(t, func() bool { return !env.manager.RefresherRunning() }, time.Second, time.Millisecond)

	// And it can be started again afterwards.
	env.manager.StartTokenRefresh(t.Context())
	assert.True(t, env.manager.RefresherRunning())
	env.manager.StopTokenRefresh()
}

// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package flow

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/stacklok/thv-auth/pkg/auth/backend/mocks"
	"github.com/stacklok/thv-auth/pkg/auth/token"
	"github.com/stacklok/thv-auth/pkg/session"
	sessionmocks "github.com/stacklok/thv-auth/pkg/session/mocks"
	"github.com/stacklok/thv-auth/pkg/window"
)

func TestManager_Init(t *testing.T) {
	t.Parallel()

	valid := token.State{AccessToken: "A", RefreshToken: "R", ExpiresAt: testNow.Add(time.Hour).UnixMilli()}
	encoded, err := token.Encode(valid)
	require.NoError(t, err)

	tests := []struct {
		name      string
		entries   map[string]string
		wantState token.State
		wantFlow  State
		wantKept  bool
	}{
		{
			name:     "empty store",
			wantFlow: StateIdle,
		},
		{
			name:      "persisted session",
			entries:   map[string]string{session.StateKey: encoded},
			wantState: valid,
			wantFlow:  StateAuthenticated,
			wantKept:  true,
		},
		{
			name:     "pending login",
			entries:  map[string]string{session.CSRFKey: "S"},
			wantFlow: StateAwaitingCallback,
		},
		{
			name:     "corrupt snapshot",
			entries:  map[string]string{session.StateKey: "{broken"},
			wantFlow: StateIdle,
		},
		{
			name:     "access token without expiry",
			entries:  map[string]string{session.StateKey: `{"accessToken":"A","refreshToken":null,"expiresAt":null}`},
			wantFlow: StateIdle,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			env := newTestEnv(t)
			for k, v := range tt.entries {
				require.NoError(t, env.store.Set(t.Context(), k, v))
			}

			require.NoError(t, env.manager.Init(t.Context()))
			assert.Equal(t, tt.wantState, env.manager.TokenState())
			assert.Equal(t, tt.wantFlow, env.manager.FlowState())

			_, err := env.store.Get(t.Context(), session.StateKey)
			if tt.wantKept {
				require.NoError(t, err)
			} else {
				require.ErrorIs(t, err, session.ErrNotFound)
			}
		})
	}
}

func TestManager_Init_StoreUnavailable(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	store := sessionmocks.NewMockStore(ctrl)
	store.EXPECT().Get(gomock.Any(), session.StateKey).Return("", errors.New("keyring locked"))

	w, err := window.New(testOrigin)
	require.NoError(t, err)

	manager := NewManager(mocks.NewMockClient(ctrl), store, w)
	err = manager.Init(t.Context())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "keyring locked")
}

func TestManager_Reset(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.authenticate(t, "A", "R", time.Hour)
	env.manager.persist(t.Context(), env.manager.TokenState())

	env.manager.Reset()
	assert.True(t, env.manager.TokenState().IsZero())
	assert.Equal(t, StateIdle, env.manager.FlowState())

	_, found := env.storedState(t)
	assert.True(t, found, "reset must not touch the store")
}

func TestManager_Logout_StoreFailure(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	store := sessionmocks.NewMockStore(ctrl)
	store.EXPECT().Delete(gomock.Any(), session.StateKey).Return(errors.New("disk full"))
	store.EXPECT().Delete(gomock.Any(), session.CSRFKey).Return(nil)

	w, err := window.New(testOrigin)
	require.NoError(t, err)

	manager := NewManager(mocks.NewMockClient(ctrl), store, w)
	manager.holder.Init(token.State{AccessToken: "A", ExpiresAt: time.Now().Add(time.Hour).UnixMilli()})

	err = manager.Logout(t.Context())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.True(t, manager.TokenState().IsZero(), "memory is cleared even when the store fails")
	assert.False(t, manager.IsAuthenticated())
}

func TestManager_RedirectURI(t *testing.T) {
	t.Parallel()

	for _, origin := range []string{"http://localhost:8666", "http://localhost:8666/"} {
		w, err := window.New(origin)
		require.NoError(t, err)
		manager := NewManager(nil, session.NewMemoryStore(), w)
		assert.Equal(t, "http://localhost:8666/callback", manager.RedirectURI())
	}
}

func TestState_String(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "idle", StateIdle.String())
	assert.Equal(t, "awaiting_callback", StateAwaitingCallback.String())
	assert.Equal(t, "exchanging", StateExchanging.String())
	assert.Equal(t, "authenticated", StateAuthenticated.String())
	assert.Equal(t, "failed", StateFailed.String())
	assert.Equal(t, "unknown", State(42).String())
}

// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package flow

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/stacklok/thv-auth/pkg/auth/backend"
	backendmocks "github.com/stacklok/thv-auth/pkg/auth/backend/mocks"
	autherrors "github.com/stacklok/thv-auth/pkg/errors"
	"github.com/stacklok/thv-auth/pkg/session"
	sessionmocks "github.com/stacklok/thv-auth/pkg/session/mocks"
	"github.com/stacklok/thv-auth/pkg/window"
)

func TestManager_Login(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, WithStateGenerator(func() string { return "S" }))
	env.client.EXPECT().AuthConfig(gomock.Any()).Return(&backend.AuthConfig{
		AuthorizationURL: "https://idp/auth",
		ClientID:         "app1",
	}, nil)

	require.NoError(t, env.manager.Login(t.Context()))

	assert.Equal(t, []string{
		"https://idp/auth?client_id=app1&redirect_uri=https%3A%2F%2Fapp.example%2Fcallback" +
			"&response_type=code&scope=openid+profile+email&state=S",
	}, env.browser.Opened())

	marker, err := env.store.Get(t.Context(), session.CSRFKey)
	require.NoError(t, err)
	assert.Equal(t, "S", marker)
	assert.Equal(t, StateAwaitingCallback, env.manager.FlowState())
}

func TestManager_Login_OverwritesPreviousMarker(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	require.NoError(t, env.store.Set(t.Context(), session.CSRFKey, "stale"))

	env.client.EXPECT().AuthConfig(gomock.Any()).Return(&backend.AuthConfig{
		AuthorizationURL: "https://idp/auth",
		ClientID:         "app1",
	}, nil)

	require.NoError(t, env.manager.Login(t.Context()))

	marker, err := env.store.Get(t.Context(), session.CSRFKey)
	require.NoError(t, err)
	assert.NotEqual(t, "stale", marker)
	assert.Len(t, marker, 36, "marker should be a UUID")
}

func TestManager_Login_AuthorizationURLWithQuery(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, WithStateGenerator(func() string { return "S" }))
	url := env.manager.AuthCodeURL(&backend.AuthConfig{
		AuthorizationURL: "https://idp/realms/r/protocol/openid-connect/auth?kc_idp_hint=github",
		ClientID:         "app1",
	}, "S")

	assert.Equal(t, "https://idp/realms/r/protocol/openid-connect/auth?kc_idp_hint=github"+
		"&client_id=app1&redirect_uri=https%3A%2F%2Fapp.example%2Fcallback"+
		"&response_type=code&scope=openid+profile+email&state=S", url)
}

func TestManager_Login_ConfigUnavailable(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
	}{
		{name: "typed error", err: autherrors.NewConfigUnavailableError("failed to fetch auth config", nil)},
		{name: "untyped error", err: errors.New("connection refused")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			env := newTestEnv(t)
			env.client.EXPECT().AuthConfig(gomock.Any()).Return(nil, tt.err)

			err := env.manager.Login(t.Context())
			require.Error(t, err)
			assert.True(t, autherrors.IsConfigUnavailable(err))

			_, err = env.store.Get(t.Context(), session.CSRFKey)
			require.ErrorIs(t, err, session.ErrNotFound)
			assert.Empty(t, env.browser.Opened())
			assert.Equal(t, StateFailed, env.manager.FlowState())
		})
	}
}

func TestManager_Login_MarkerNotStored(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	client := backendmocks.NewMockClient(ctrl)
	store := sessionmocks.NewMockStore(ctrl)
	browser := &browserRecorder{}
	w, err := window.New(testOrigin, window.WithOpener(browser.open))
	require.NoError(t, err)

	client.EXPECT().AuthConfig(gomock.Any()).Return(&backend.AuthConfig{
		AuthorizationURL: "https://idp/auth",
		ClientID:         "app1",
	}, nil)
	store.EXPECT().Set(gomock.Any(), session.CSRFKey, gomock.Any()).Return(errors.New("quota exceeded"))

	manager := NewManager(client, store, w)
	err = manager.Login(t.Context())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "quota exceeded")
	assert.Empty(t, browser.Opened())
	assert.Equal(t, StateFailed, manager.FlowState())
}

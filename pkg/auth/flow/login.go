// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package flow

import (
	"context"
	"fmt"

	"golang.org/x/oauth2"

	"github.com/stacklok/thv-auth/pkg/auth/backend"
	autherrors "github.com/stacklok/thv-auth/pkg/errors"
	"github.com/stacklok/thv-auth/pkg/session"
)

// Scopes are requested on every login.
var Scopes = []string{"openid", "profile", "email"}

// Login starts the authorization-code flow: it stores a fresh CSRF marker and
// navigates to the identity provider.
func (m *Manager) Login(ctx context.Context) error {
	cfg, err := m.client.AuthConfig(ctx)
	if err != nil {
		m.setFlowState(StateFailed)
		if !autherrors.IsConfigUnavailable(err) {
			err = autherrors.NewConfigUnavailableError("failed to fetch auth config", err)
		}
		return err
	}

	state := m.newCSRFState()
	if err := m.store.Set(ctx, session.CSRFKey, state); err != nil {
		m.setFlowState(StateFailed)
		return fmt.Errorf("failed to store login state: %w", err)
	}

	authURL := m.AuthCodeURL(cfg, state)
	m.setFlowState(StateAwaitingCallback)

	if err := m.navigator.Navigate(authURL); err != nil {
		return fmt.Errorf("failed to navigate to the authorization endpoint: %w", err)
	}
	return nil
}

// AuthCodeURL builds the authorization endpoint URL for cfg and state.
func (m *Manager) AuthCodeURL(cfg *backend.AuthConfig, state string) string {
	conf := oauth2.Config{
		ClientID:    cfg.ClientID,
		RedirectURL: m.RedirectURI(),
		Scopes:      Scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL: cfg.AuthorizationURL,
		},
	}
	return conf.AuthCodeURL(state)
}

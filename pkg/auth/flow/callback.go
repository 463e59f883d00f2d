// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package flow

import (
	"context"
	"errors"
	"time"

	"github.com/stacklok/thv-auth/pkg/auth/token"
	autherrors "github.com/stacklok/thv-auth/pkg/errors"
	"github.com/stacklok/thv-auth/pkg/logger"
	"github.com/stacklok/thv-auth/pkg/session"
)

// callbackParams are removed from the location once the code is redeemed.
var callbackParams = []string{"code", "state", "session_state", "iss"}

// HandleCallback processes the current location as a redirect back from the
// identity provider. It returns false without side effects when the location
// carries no authorization code.
func (m *Manager) HandleCallback(ctx context.Context) (bool, error) {
	location := m.navigator.Location()
	query := location.Query()

	if providerErr := query.Get("error"); providerErr != "" {
		m.setFlowState(StateFailed)
		m.discardCSRFState(ctx)
		msg := "authentication error: " + providerErr
		if desc := query.Get("error_description"); desc != "" {
			msg += ": " + desc
		}
		return false, autherrors.NewAuthorizationDeniedError(msg, nil)
	}

	code := query.Get("code")
	if code == "" {
		return false, nil
	}

	if err := m.consumeCSRFState(ctx, query.Get("state")); err != nil {
		m.setFlowState(StateFailed)
		return false, err
	}
	m.setFlowState(StateExchanging)

	resp, err := m.client.ExchangeCode(ctx, code, m.RedirectURI())
	if err != nil {
		m.setFlowState(StateFailed)
		if !autherrors.IsTokenExchangeFailed(err) {
			err = autherrors.NewTokenExchangeFailedError("authorization code exchange failed", err)
		}
		return false, err
	}

	state := token.NewState(resp.AccessToken, resp.RefreshToken,
		time.Duration(resp.ExpiresIn)*time.Second, m.clock.Now())

	m.commitMu.Lock()
	m.holder.Commit(state)
	m.persist(ctx, state)
	m.commitMu.Unlock()

	for _, param := range callbackParams {
		query.Del(param)
	}
	location.RawQuery = query.Encode()
	m.navigator.ReplaceLocation(location)

	m.setFlowState(StateAuthenticated)
	logger.Info("login completed")
	return true, nil
}

// consumeCSRFState verifies state against the stored marker and deletes the
// marker on a match.
func (m *Manager) consumeCSRFState(ctx context.Context, state string) error {
	m.callbackMu.Lock()
	defer m.callbackMu.Unlock()

	stored, err := m.store.Get(ctx, session.CSRFKey)
	if err != nil && !errors.Is(err, session.ErrNotFound) {
		return autherrors.NewCsrfViolationError("unable to verify state parameter", err)
	}
	if stored == "" || state != stored {
		return autherrors.NewCsrfViolationError("invalid state parameter - possible CSRF attack", nil)
	}

	if err := m.store.Delete(ctx, session.CSRFKey); err != nil {
		return autherrors.NewCsrfViolationError("unable to consume state parameter", err)
	}
	return nil
}

// discardCSRFState drops the marker of a login the provider rejected.
func (m *Manager) discardCSRFState(ctx context.Context) {
	m.callbackMu.Lock()
	defer m.callbackMu.Unlock()

	if err := m.store.Delete(ctx, session.CSRFKey); err != nil {
		logger.Warnw("failed to discard login state", "error", err)
	}
}

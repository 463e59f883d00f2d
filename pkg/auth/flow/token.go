// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package flow

import (
	"context"
	"errors"
	"time"

	"golang.org/x/oauth2"

	"github.com/stacklok/thv-auth/pkg/auth/token"
	autherrors "github.com/stacklok/thv-auth/pkg/errors"
	"github.com/stacklok/thv-auth/pkg/logger"
)

const refreshKey = "refresh"

// ErrNoValidToken is returned by the TokenSource when no usable access token
// can be obtained.
var ErrNoValidToken = errors.New("no valid access token")

// Token returns the current access token unless it is missing or within
// token.AccessMargin of its expiry. It never touches the network.
func (m *Manager) Token() (string, bool) {
	return m.holder.State().ValidAccessToken(m.clock.Now())
}

// IsAuthenticated reports whether a usable access token is held.
func (m *Manager) IsAuthenticated() bool {
	_, ok := m.Token()
	return ok
}

// EnsureValidToken returns a usable access token, refreshing it if needed.
// A failed refresh logs the session out.
func (m *Manager) EnsureValidToken(ctx context.Context) (string, bool) {
	state, generation := m.holder.Snapshot()
	if tok, ok := state.ValidAccessToken(m.clock.Now()); ok {
		return tok, true
	}
	if !state.HasRefreshToken() {
		return "", false
	}

	tok, err := m.refreshSince(ctx, &generation)
	if err == nil {
		return tok, true
	}
	if ctx.Err() != nil {
		return "", false
	}

	logger.Warnw("failed to refresh token, logging out", "error", err)
	if err := m.Logout(ctx); err != nil {
		logger.Warnw("logout after failed refresh was incomplete", "error", err)
	}
	return "", false
}

// RefreshAccessToken exchanges the refresh token for a new token pair and
// returns the new access token. Concurrent callers share one refresh; the
// shared call is not cancelled when a single caller gives up.
func (m *Manager) RefreshAccessToken(ctx context.Context) (string, error) {
	return m.refreshSince(ctx, nil)
}

// refreshSince joins or starts the shared refresh. When observed is set, the
// refresh is skipped if the state moved past that generation and a usable
// access token is now held, so a caller that saw an expired token only after
// another refresh completed does not rotate the tokens again.
func (m *Manager) refreshSince(ctx context.Context, observed *uint64) (string, error) {
	if !m.holder.State().HasRefreshToken() {
		return "", autherrors.NewNoRefreshTokenError("no refresh token available", nil)
	}

	detached := context.WithoutCancel(ctx)
	ch := m.refreshes.DoChan(refreshKey, func() (any, error) {
		return m.refresh(detached, observed)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (m *Manager) refresh(ctx context.Context, observed *uint64) (string, error) {
	current, generation := m.holder.Snapshot()
	if observed != nil && generation != *observed {
		if tok, ok := current.ValidAccessToken(m.clock.Now()); ok {
			logger.Debug("token already refreshed, skipping backend call")
			return tok, nil
		}
	}
	if !current.HasRefreshToken() {
		return "", autherrors.NewNoRefreshTokenError("no refresh token available", nil)
	}

	resp, err := m.client.Refresh(ctx, current.RefreshToken)
	if err != nil {
		if !autherrors.IsTokenExchangeFailed(err) {
			err = autherrors.NewTokenExchangeFailedError("token refresh failed", err)
		}
		return "", err
	}

	next := current.WithRotation(resp.AccessToken, resp.RefreshToken,
		time.Duration(resp.ExpiresIn)*time.Second, m.clock.Now())

	m.commitMu.Lock()
	committed := m.holder.CommitIf(generation, next)
	if committed {
		m.persist(ctx, next)
	}
	m.commitMu.Unlock()

	if !committed {
		logger.Debug("session changed during token refresh, discarding refreshed tokens")
		if tok, ok := m.Token(); ok {
			return tok, nil
		}
		return "", autherrors.NewTokenExchangeFailedError("session changed during token refresh", nil)
	}

	m.setFlowState(StateAuthenticated)
	logger.Debugw("access token refreshed", "expires_at", next.Expiry())
	return next.AccessToken, nil
}

// TokenSource adapts EnsureValidToken to an oauth2.TokenSource. The Expiry
// of the returned token is token.AccessMargin before the real expiry.
func (m *Manager) TokenSource(ctx context.Context) oauth2.TokenSource {
	return &tokenSource{ctx: ctx, manager: m}
}

type tokenSource struct {
	ctx     context.Context
	manager *Manager
}

// Token implements oauth2.TokenSource.
func (ts *tokenSource) Token() (*oauth2.Token, error) {
	accessToken, ok := ts.manager.EnsureValidToken(ts.ctx)
	if !ok {
		return nil, ErrNoValidToken
	}

	state := ts.manager.holder.State()
	tok := &oauth2.Token{
		AccessToken: accessToken,
		TokenType:   "Bearer",
	}
	if state.AccessToken == accessToken && state.ExpiresAt != 0 {
		tok.Expiry = state.Expiry().Add(-token.AccessMargin)
	}
	return tok, nil
}

// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package backend is the client for the trusted backend that brokers the
// authorization-code flow: it publishes the identity provider configuration
// and performs code exchange and refresh on behalf of the client.
package backend

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v5"

	autherrors "github.com/stacklok/thv-auth/pkg/errors"
	"github.com/stacklok/thv-auth/pkg/logger"
	"github.com/stacklok/thv-auth/pkg/networking"
)

//go:generate mockgen -destination=mocks/mock_client.go -package=mocks -source=client.go Client

// Backend endpoint paths, relative to the backend base URL.
const (
	ConfigPath  = "config/auth"
	TokenPath   = "auth/token"
	RefreshPath = "auth/refresh"
)

// Auth config fetches are attempted once unless WithConfigRetry allows more.
const (
	DefaultConfigMaxTries      = 1
	defaultConfigRetryInterval = 250 * time.Millisecond
)

// AuthConfig is the identity provider configuration published by the backend.
type AuthConfig struct {
	AuthorizationURL string `json:"authorization_url"`
	ClientID         string `json:"client_id"`
	// RedirectURI is informational. The client always derives the redirect
	// URI from its own origin.
	RedirectURI string `json:"redirect_uri,omitempty"`
}

// TokenResponse is returned by the code exchange and refresh endpoints.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	TokenType    string `json:"token_type,omitempty"`
	// ExpiresIn is the access token lifetime in seconds.
	ExpiresIn int64 `json:"expires_in"`
}

// Client talks to the backend.
type Client interface {
	// AuthConfig fetches the identity provider configuration.
	AuthConfig(ctx context.Context) (*AuthConfig, error)
	// ExchangeCode exchanges an authorization code for tokens.
	ExchangeCode(ctx context.Context, code, redirectURI string) (*TokenResponse, error)
	// Refresh exchanges a refresh token for a new token pair.
	Refresh(ctx context.Context, refreshToken string) (*TokenResponse, error)
}

type exchangeRequest struct {
	Code        string `json:"code"`
	RedirectURI string `json:"redirect_uri"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// HTTPClient is the Client implementation that speaks JSON over HTTP.
type HTTPClient struct {
	configURL  string
	tokenURL   string
	refreshURL string
	client     networking.HTTPClient

	configMaxTries      uint
	configRetryInterval time.Duration
}

var _ Client = (*HTTPClient)(nil)

// ClientOption configures an HTTPClient.
type ClientOption func(*HTTPClient)

// WithConfigRetry sets how many times an auth config fetch is attempted and
// the delay before the first retry. Only transport failures, server errors and
// 429 responses are retried. Code exchange and refresh are never retried.
func WithConfigRetry(maxTries uint, initialInterval time.Duration) ClientOption {
	return func(c *HTTPClient) {
		if maxTries > 0 {
			c.configMaxTries = maxTries
		}
		if initialInterval > 0 {
			c.configRetryInterval = initialInterval
		}
	}
}

// NewHTTPClient creates a Client for the backend rooted at baseURL.
func NewHTTPClient(baseURL string, client networking.HTTPClient, opts ...ClientOption) (*HTTPClient, error) {
	parsed, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid backend URL: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("invalid backend URL %q: scheme must be http or https", baseURL)
	}
	if parsed.Host == "" {
		return nil, fmt.Errorf("invalid backend URL %q: missing host", baseURL)
	}

	c := &HTTPClient{
		configURL:           parsed.JoinPath(ConfigPath).String(),
		tokenURL:            parsed.JoinPath(TokenPath).String(),
		refreshURL:          parsed.JoinPath(RefreshPath).String(),
		client:              client,
		configMaxTries:      DefaultConfigMaxTries,
		configRetryInterval: defaultConfigRetryInterval,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// AuthConfig implements Client.
func (c *HTTPClient) AuthConfig(ctx context.Context) (*AuthConfig, error) {
	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.InitialInterval = c.configRetryInterval
	expBackoff.Reset()

	operation := func() (*networking.FetchResult[AuthConfig], error) {
		result, err := networking.FetchJSON[AuthConfig](ctx, c.client, c.configURL)
		if err != nil && !isRetryable(ctx, err) {
			return nil, backoff.Permanent(err)
		}
		return result, err
	}

	result, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(expBackoff),
		backoff.WithMaxTries(c.configMaxTries),
		backoff.WithNotify(func(err error, delay time.Duration) {
			logger.Debugf("Retrying auth config fetch after %v: %v", delay, err)
		}),
	)
	if err != nil {
		return nil, autherrors.NewConfigUnavailableError("failed to fetch auth config", err)
	}

	cfg := result.Data
	if cfg.AuthorizationURL == "" || cfg.ClientID == "" {
		return nil, autherrors.NewConfigUnavailableError(
			"auth config is missing authorization_url or client_id", nil)
	}
	if _, err := url.Parse(cfg.AuthorizationURL); err != nil {
		return nil, autherrors.NewConfigUnavailableError("auth config has an invalid authorization_url", err)
	}

	logger.Debugw("fetched auth config", "authorization_url", cfg.AuthorizationURL, "client_id", cfg.ClientID)
	return &cfg, nil
}

// ExchangeCode implements Client.
func (c *HTTPClient) ExchangeCode(ctx context.Context, code, redirectURI string) (*TokenResponse, error) {
	result, err := networking.PostJSON[TokenResponse](ctx, c.client, c.tokenURL, exchangeRequest{
		Code:        code,
		RedirectURI: redirectURI,
	})
	if err != nil {
		return nil, autherrors.NewTokenExchangeFailedError("authorization code exchange failed", err)
	}
	if err := validateTokenResponse(&result.Data); err != nil {
		return nil, autherrors.NewTokenExchangeFailedError("authorization code exchange failed", err)
	}
	return &result.Data, nil
}

// Refresh implements Client.
func (c *HTTPClient) Refresh(ctx context.Context, refreshToken string) (*TokenResponse, error) {
	result, err := networking.PostJSON[TokenResponse](ctx, c.client, c.refreshURL, refreshRequest{
		RefreshToken: refreshToken,
	})
	if err != nil {
		return nil, autherrors.NewTokenExchangeFailedError("token refresh failed", err)
	}
	if err := validateTokenResponse(&result.Data); err != nil {
		return nil, autherrors.NewTokenExchangeFailedError("token refresh failed", err)
	}
	return &result.Data, nil
}

// isRetryable reports whether a failed request may succeed when repeated.
func isRetryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	var httpErr *networking.HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode >= http.StatusInternalServerError ||
			httpErr.StatusCode == http.StatusTooManyRequests
	}
	var urlErr *url.Error
	return errors.As(err, &urlErr)
}

func validateTokenResponse(resp *TokenResponse) error {
	if resp.AccessToken == "" {
		return errors.New("token response is missing access_token")
	}
	if resp.ExpiresIn <= 0 {
		return fmt.Errorf("token response has invalid expires_in %d", resp.ExpiresIn)
	}
	return nil
}

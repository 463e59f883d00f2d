// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/viper"
	"go.opentelemetry.io/otel"

	"github.com/stacklok/toolhive-core/env"

	"github.com/stacklok/thv-auth/pkg/auth/backend"
	"github.com/stacklok/thv-auth/pkg/auth/callback"
	"github.com/stacklok/thv-auth/pkg/auth/flow"
	"github.com/stacklok/thv-auth/pkg/config"
	"github.com/stacklok/thv-auth/pkg/logger"
	"github.com/stacklok/thv-auth/pkg/networking"
	"github.com/stacklok/thv-auth/pkg/session"
	"github.com/stacklok/thv-auth/pkg/window"
)

// authSession bundles everything a command needs to act on the stored session.
type authSession struct {
	cfg     *config.Config
	client  backend.Client
	store   session.Store
	window  *window.Window
	manager *flow.Manager
}

// Close releases the session store.
func (s *authSession) Close() {
	if err := s.store.Close(); err != nil {
		logger.Warnf("Failed to close session store: %v", err)
	}
}

// configStore returns the config store selected by the --config flag.
func configStore() config.Store {
	return config.NewLocalStore(viper.GetString("config"))
}

// loadConfig loads the config file and applies environment overrides.
func loadConfig(ctx context.Context) (*config.Config, error) {
	cfg, err := configStore().Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	cfg.ApplyEnv(&env.OSReader{})
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// newBackendClient builds the instrumented backend client for cfg.
func newBackendClient(cfg *config.Config) (backend.Client, error) {
	httpClient, err := networking.NewHttpClientBuilder().
		WithCABundle(cfg.CACertificatePath).
		Build()
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP client: %w", err)
	}

	// #nosec G115 -- ConfigRetries is validated to be between 0 and config.MaxConfigRetries
	maxTries := uint(cfg.ConfigRetries) + 1
	client, err := backend.NewHTTPClient(cfg.BackendURL, httpClient, backend.WithConfigRetry(maxTries, 0))
	if err != nil {
		return nil, err
	}
	return backend.WithTelemetry(otel.GetMeterProvider(), otel.GetTracerProvider(), client)
}

// newAuthSession wires the backend client, the session store and the token
// manager for a window served on port, then restores the stored session.
func newAuthSession(ctx context.Context, cfg *config.Config, port int, opts ...window.Option) (*authSession, error) {
	client, err := newBackendClient(cfg)
	if err != nil {
		return nil, err
	}

	sessionCfg, err := cfg.SessionConfig()
	if err != nil {
		return nil, err
	}
	store, err := session.NewStore(ctx, sessionCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open session store: %w", err)
	}

	w, err := window.New(callback.Origin(port), opts...)
	if err != nil {
		return nil, errors.Join(err, store.Close())
	}

	interval, err := cfg.GetRefreshInterval()
	if err != nil {
		return nil, errors.Join(err, store.Close())
	}

	manager := flow.NewManager(client, store, w, flow.WithRefreshInterval(interval))
	if err := manager.Init(ctx); err != nil {
		return nil, errors.Join(fmt.Errorf("failed to restore session: %w", err), store.Close())
	}

	return &authSession{
		cfg:     cfg,
		client:  client,
		store:   store,
		window:  w,
		manager: manager,
	}, nil
}

// openSession loads the config and restores the stored session.
func openSession(ctx context.Context) (*authSession, error) {
	cfg, err := loadConfig(ctx)
	if err != nil {
		return nil, err
	}
	return newAuthSession(ctx, cfg, cfg.CallbackPort)
}

// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package app

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"

	"github.com/stacklok/thv-auth/pkg/auth/flow"
	"github.com/stacklok/thv-auth/pkg/logger"
	"github.com/stacklok/thv-auth/pkg/telemetry"
)

func newKeepaliveCmd() *cobra.Command {
	var metricsPort int
	cmd := &cobra.Command{
		Use:   "keepalive",
		Short: "Keep the session's tokens fresh until interrupted",
		Long: `Poll the stored session and refresh the access token shortly before it expires.
Refresh failures are logged and retried on the next poll. Stop with Ctrl+C.

With --metrics-port, backend request metrics are served in the Prometheus format
on http://127.0.0.1:<port>/metrics.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return keepaliveCmdFunc(cmd, metricsPort)
		},
	}
	cmd.Flags().IntVar(&metricsPort, "metrics-port", 0, "Serve Prometheus metrics on this loopback port (disabled when 0)")
	return cmd
}

func keepaliveCmdFunc(cmd *cobra.Command, metricsPort int) error {
	ctx := cmd.Context()

	if metricsPort != 0 {
		stop, err := serveMetrics(metricsPort)
		if err != nil {
			return err
		}
		defer stop()
	}

	s, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	if !s.manager.TokenState().HasRefreshToken() {
		return fmt.Errorf("%w: run 'thv-auth login' to sign in", flow.ErrNoValidToken)
	}
	interval, err := s.cfg.GetRefreshInterval()
	if err != nil {
		return err
	}

	s.manager.StartTokenRefresh(ctx)
	defer s.manager.StopTokenRefresh()

	logger.Infof("Keeping session alive, polling every %s", interval)
	<-ctx.Done()
	logger.Info("Stopping token refresher")
	return nil
}

// serveMetrics installs a Prometheus-backed global meter provider and serves
// it on port. The returned function stops both.
func serveMetrics(port int) (func(), error) {
	provider, handler, err := telemetry.NewPrometheusMeterProvider()
	if err != nil {
		return nil, err
	}
	otel.SetMeterProvider(provider)

	srv, err := telemetry.StartMetricsServer(port, handler)
	if err != nil {
		_ = provider.Shutdown(context.Background())
		return nil, err
	}

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			logger.Warnf("Failed to stop metrics server: %v", err)
		}
		if err := provider.Shutdown(ctx); err != nil {
			logger.Warnf("Failed to stop meter provider: %v", err)
		}
	}, nil
}

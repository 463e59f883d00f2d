// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package telemetry exposes the OpenTelemetry metrics recorded by thv-auth in
// the Prometheus text format.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/stacklok/thv-auth/pkg/logger"
)

// MetricsPath is the path the metrics server serves on.
const MetricsPath = "/metrics"

// NewPrometheusMeterProvider returns a meter provider whose metrics are served
// by the returned handler. Each provider has its own registry.
func NewPrometheusMeterProvider() (*sdkmetric.MeterProvider, http.Handler, error) {
	registry := prometheus.NewRegistry()

	exporter, err := otelprom.New(otelprom.WithRegisterer(registry))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
	return provider, handler, nil
}

// MetricsServer serves a metrics handler on the loopback interface.
type MetricsServer struct {
	server   *http.Server
	listener net.Listener
}

// StartMetricsServer binds 127.0.0.1:port and serves handler on MetricsPath in
// the background. Port 0 picks a free port.
func StartMetricsServer(port int, handler http.Handler) (*MetricsServer, error) {
	listener, err := net.Listen("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(port)))
	if err != nil {
		return nil, fmt.Errorf("failed to start metrics server: %w", err)
	}

	r := chi.NewRouter()
	r.Handle(MetricsPath, handler)

	s := &MetricsServer{
		server: &http.Server{
			Handler:           r,
			ReadHeaderTimeout: 10 * time.Second,
		},
		listener: listener,
	}

	go func() {
		logger.Infof("Serving metrics on http://%s%s", listener.Addr(), MetricsPath)
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorf("Metrics server failed: %v", err)
		}
	}()
	return s, nil
}

// Addr returns the address the server listens on.
func (s *MetricsServer) Addr() net.Addr {
	return s.listener.Addr()
}

// Shutdown stops the server.
func (s *MetricsServer) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

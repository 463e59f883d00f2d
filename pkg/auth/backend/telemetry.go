// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package backend

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	autherrors "github.com/stacklok/thv-auth/pkg/errors"
)

const instrumentationName = "github.com/stacklok/thv-auth/pkg/auth/backend"

var (
	attrOperation = attribute.Key("thv_auth.backend.operation")
	attrErrorType = attribute.Key("error.type")
)

// Operation names recorded on spans and metrics.
const (
	operationAuthConfig   = "auth_config"
	operationExchangeCode = "exchange_code"
	operationRefresh      = "refresh"
)

// WithTelemetry decorates client so every call records a CLIENT span and
// request, error and duration metrics.
func WithTelemetry(
	meterProvider metric.MeterProvider,
	tracerProvider trace.TracerProvider,
	client Client,
) (Client, error) {
	meter := meterProvider.Meter(instrumentationName)

	requestsTotal, err := meter.Int64Counter(
		"thv_auth_backend_requests",
		metric.WithDescription("Total number of requests to the auth backend"))
	if err != nil {
		return nil, fmt.Errorf("failed to create requests total counter: %w", err)
	}
	errorsTotal, err := meter.Int64Counter(
		"thv_auth_backend_errors",
		metric.WithDescription("Total number of failed requests to the auth backend"))
	if err != nil {
		return nil, fmt.Errorf("failed to create errors total counter: %w", err)
	}
	requestsDuration, err := meter.Float64Histogram(
		"thv_auth_backend_requests_duration",
		metric.WithDescription("Duration of auth backend requests in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create requests duration histogram: %w", err)
	}

	return telemetryClient{
		client:           client,
		tracer:           tracerProvider.Tracer(instrumentationName),
		requestsTotal:    requestsTotal,
		errorsTotal:      errorsTotal,
		requestsDuration: requestsDuration,
	}, nil
}

type telemetryClient struct {
	client Client
	tracer trace.Tracer

	requestsTotal    metric.Int64Counter
	errorsTotal      metric.Int64Counter
	requestsDuration metric.Float64Histogram
}

var _ Client = telemetryClient{}

// record starts a CLIENT span for operation and returns a function that
// should be deferred to record the duration, the error and end the span.
func (t telemetryClient) record(ctx context.Context, operation string, err *error) (context.Context, func()) {
	attrs := []attribute.KeyValue{attrOperation.String(operation)}

	ctx, span := t.tracer.Start(ctx, "thv_auth.backend "+operation,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attrs...),
	)

	metricAttrs := metric.WithAttributes(attrs...)
	start := time.Now()
	t.requestsTotal.Add(ctx, 1, metricAttrs)

	return ctx, func() {
		t.requestsDuration.Record(ctx, time.Since(start).Seconds(), metricAttrs)
		if err != nil && *err != nil {
			errType := errorType(*err)
			t.errorsTotal.Add(ctx, 1, metric.WithAttributes(attrOperation.String(operation), attrErrorType.String(errType)))
			span.RecordError(*err)
			span.SetAttributes(attrErrorType.String(errType))
			span.SetStatus(codes.Error, (*err).Error())
		}
		span.End()
	}
}

// errorType returns the typed error kind of err, or "unknown".
func errorType(err error) string {
	var typed *autherrors.Error
	if errors.As(err, &typed) {
		return typed.Type
	}
	return "unknown"
}

// AuthConfig implements Client.
func (t telemetryClient) AuthConfig(ctx context.Context) (_ *AuthConfig, retErr error) {
	ctx, done := t.record(ctx, operationAuthConfig, &retErr)
	defer done()
	return t.client.AuthConfig(ctx)
}

// ExchangeCode implements Client.
func (t telemetryClient) ExchangeCode(ctx context.Context, code, redirectURI string) (_ *TokenResponse, retErr error) {
	ctx, done := t.record(ctx, operationExchangeCode, &retErr)
	defer done()
	return t.client.ExchangeCode(ctx, code, redirectURI)
}

// Refresh implements Client.
func (t telemetryClient) Refresh(ctx context.Context, refreshToken string) (_ *TokenResponse, retErr error) {
	ctx, done := t.record(ctx, operationRefresh, &retErr)
	defer done()
	return t.client.Refresh(ctx, refreshToken)
}

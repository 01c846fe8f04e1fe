// Package observability provides integrated observable client wrapper for external connections.
package observability

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// circuitBreakerMaxFailures and circuitBreakerTimeout bound how many
// failures an outbound backend tolerates before ExecuteWithMetrics starts
// short-circuiting calls, and how long it waits before trying again. Failures
// are counted since the breaker last closed; successes in between do not
// reset the count.
const (
	circuitBreakerMaxFailures      = 5
	circuitBreakerTimeout          = 30 * time.Second
	circuitBreakerSuccessThreshold = 0.5
)

// IntegratedObservableClient wraps external clients (fetch backend, transform
// backend, store backend) with OpenTelemetry tracing,
// Prometheus metrics, and a circuit breaker, behind an adaptive timeout.
type IntegratedObservableClient struct {
	AdaptiveTimeout *AdaptiveTimeoutManager
	Metrics         *ConnectionMetrics
	Breaker         *CircuitBreaker

	ConnectionType ConnectionType
	OperationType  OperationType
	Endpoint       string
	ServiceName    string

	tracer trace.Tracer
}

// NewIntegratedObservableClient creates a new integrated observable client.
func NewIntegratedObservableClient(
	connectionType ConnectionType,
	operationType OperationType,
	endpoint string,
	serviceName string,
	baseTimeout time.Duration,
	minTimeout time.Duration,
	maxTimeout time.Duration,
) *IntegratedObservableClient {
	return &IntegratedObservableClient{
		AdaptiveTimeout: NewAdaptiveTimeoutManager(baseTimeout, minTimeout, maxTimeout),
		Metrics:         NewConnectionMetrics(connectionType, operationType, endpoint),
		Breaker:         NewCircuitBreaker(circuitBreakerMaxFailures, circuitBreakerTimeout, circuitBreakerSuccessThreshold),
		ConnectionType:  connectionType,
		OperationType:   operationType,
		Endpoint:        endpoint,
		ServiceName:     serviceName,
		tracer:          otel.Tracer(serviceName),
	}
}

// ExecuteWithMetrics executes fn under an adaptive timeout, tracing the call
// and recording Prometheus + in-memory connection metrics.
func (c *IntegratedObservableClient) ExecuteWithMetrics(
	ctx context.Context,
	operation string,
	fn func(ctx context.Context) error,
) error {
	spanCtx, span := c.tracer.Start(ctx, fmt.Sprintf("%s.%s", c.ServiceName, operation))
	defer span.End()

	if !c.Breaker.CanExecute() {
		RecordCircuitBreakerStatus(c.Endpoint, operation, int(c.Breaker.GetState()))
		span.SetStatus(codes.Error, "circuit breaker open")
		span.SetAttributes(attribute.Bool("circuit_breaker.open", true))
		return fmt.Errorf("op=observability.IntegratedObservableClient.ExecuteWithMetrics endpoint=%s operation=%s: circuit breaker open", c.Endpoint, operation)
	}

	span.SetAttributes(
		attribute.String("connection.type", string(c.ConnectionType)),
		attribute.String("operation.type", string(c.OperationType)),
		attribute.String("endpoint", c.Endpoint),
		attribute.String("service.name", c.ServiceName),
		attribute.String("operation.name", operation),
	)

	timeout := c.AdaptiveTimeout.GetTimeout()
	span.SetAttributes(attribute.Float64("timeout.seconds", timeout.Seconds()))

	timeoutCtx, cancel := context.WithTimeout(spanCtx, timeout)
	defer cancel()

	start := time.Now()
	err := fn(timeoutCtx)
	duration := time.Since(start)

	if err != nil {
		if timeoutCtx.Err() == context.DeadlineExceeded {
			c.AdaptiveTimeout.RecordTimeout()
			c.Metrics.RecordTimeout(duration)
			span.SetStatus(codes.Error, "timeout")
			span.SetAttributes(attribute.Bool("timeout", true))
		} else {
			c.AdaptiveTimeout.RecordFailure(err)
			c.Metrics.RecordFailure(err, duration)
			span.SetStatus(codes.Error, err.Error())
		}
		span.SetAttributes(attribute.Bool("success", false))
		c.Breaker.RecordFailure()
	} else {
		c.AdaptiveTimeout.RecordSuccess(duration)
		c.Metrics.RecordSuccess(duration)
		span.SetStatus(codes.Ok, "success")
		span.SetAttributes(attribute.Bool("success", true))
		c.Breaker.RecordSuccess()
	}
	RecordCircuitBreakerStatus(c.Endpoint, operation, int(c.Breaker.GetState()))

	c.recordPrometheusMetrics(operation, duration, err)

	span.SetAttributes(
		attribute.Float64("duration.seconds", duration.Seconds()),
		attribute.Bool("success", err == nil),
	)

	return err
}

func (c *IntegratedObservableClient) recordPrometheusMetrics(operation string, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		if err == context.DeadlineExceeded {
			status = "timeout"
		} else {
			status = "error"
		}
	}

	switch c.ConnectionType {
	case ConnectionTypeAI, ConnectionTypeStore:
		ObservePhaseDuration(operation, duration)
	case ConnectionTypeHTTP:
		HTTPRequestsTotal.WithLabelValues(c.Endpoint, operation, status).Inc()
		HTTPRequestDuration.WithLabelValues(c.Endpoint, operation).Observe(duration.Seconds())
	}

	slog.Info("external connection executed",
		slog.String("connection_type", string(c.ConnectionType)),
		slog.String("operation_type", string(c.OperationType)),
		slog.String("endpoint", c.Endpoint),
		slog.String("operation", operation),
		slog.Duration("duration", duration),
		slog.Bool("success", err == nil),
		slog.String("status", status),
		slog.Duration("timeout", c.AdaptiveTimeout.GetTimeout()))
}

// GetHealthStatus returns the health status of the connection.
func (c *IntegratedObservableClient) GetHealthStatus() map[string]interface{} {
	stats := c.AdaptiveTimeout.GetStats()

	successes, _ := stats["success_count"].(int64)
	failures, _ := stats["failure_count"].(int64)
	timeouts, _ := stats["timeout_count"].(int64)
	total := successes + failures + timeouts
	successRate := 0.0
	if total > 0 {
		successRate = float64(successes) / float64(total)
	}

	return map[string]interface{}{
		"is_healthy":      successRate > 0.8,
		"current_timeout": c.AdaptiveTimeout.GetTimeout().Seconds(),
		"success_rate":    successRate,
		"total_requests":  total,
		"last_update":     stats["last_update"],
	}
}

// IsHealthy returns true if the connection is healthy.
func (c *IntegratedObservableClient) IsHealthy() bool {
	stats := c.AdaptiveTimeout.GetStats()
	successes, _ := stats["success_count"].(int64)
	failures, _ := stats["failure_count"].(int64)
	timeouts, _ := stats["timeout_count"].(int64)
	total := successes + failures + timeouts
	successRate := 0.0
	if total > 0 {
		successRate = float64(successes) / float64(total)
	}
	return successRate > 0.8
}

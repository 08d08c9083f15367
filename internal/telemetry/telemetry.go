// Package telemetry wires OpenTelemetry metrics for the engine: request
// counts and latency histograms per operation, exported to stdout on an
// interval so an operator can watch them without standing up a collector.
package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// Metrics holds the instruments request handlers record against.
type Metrics struct {
	provider  *sdkmetric.MeterProvider
	requests  metric.Int64Counter
	latency   metric.Float64Histogram
	cacheHits metric.Int64Counter
}

// New builds a Metrics instance exporting to stdout every interval.
func New(ctx context.Context, interval time.Duration) (*Metrics, error) {
	exporter, err := stdoutmetric.New(stdoutmetric.WithoutTimestamps())
	if err != nil {
		return nil, fmt.Errorf("telemetry: build stdout exporter: %w", err)
	}
	if interval <= 0 {
		interval = time.Minute
	}

	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(interval))),
	)
	meter := provider.Meter("semcache")

	requests, err := meter.Int64Counter("semcache.requests", metric.WithDescription("total adapter requests by operation"))
	if err != nil {
		return nil, fmt.Errorf("telemetry: build requests counter: %w", err)
	}
	latency, err := meter.Float64Histogram("semcache.request.latency_ms", metric.WithDescription("adapter request latency in milliseconds"))
	if err != nil {
		return nil, fmt.Errorf("telemetry: build latency histogram: %w", err)
	}
	cacheHits, err := meter.Int64Counter("semcache.cache_hits", metric.WithDescription("query requests resolved from cache"))
	if err != nil {
		return nil, fmt.Errorf("telemetry: build cache hit counter: %w", err)
	}

	return &Metrics{provider: provider, requests: requests, latency: latency, cacheHits: cacheHits}, nil
}

// RecordRequest records one completed operation's latency and, for
// queries, whether it was a cache hit.
func (m *Metrics) RecordRequest(ctx context.Context, operation string, elapsed time.Duration, cacheHit bool) {
	opt := metric.WithAttributes(attribute.String("operation", operation))
	m.requests.Add(ctx, 1, opt)
	m.latency.Record(ctx, float64(elapsed.Microseconds())/1000.0, opt)
	if cacheHit {
		m.cacheHits.Add(ctx, 1)
	}
}

// Shutdown flushes and stops the metric provider.
func (m *Metrics) Shutdown(ctx context.Context) error {
	return m.provider.Shutdown(ctx)
}

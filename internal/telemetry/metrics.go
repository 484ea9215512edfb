package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/railtrace/railtrace/internal/telemetry"

// RouteMetrics holds instruments for route resolution: upstream calls and the response cache.
// A nil *RouteMetrics records nothing.
type RouteMetrics struct {
	upstreamDuration metric.Float64Histogram
	upstreamTotal    metric.Int64Counter
	cacheHits        metric.Int64Counter
	cacheMisses      metric.Int64Counter
	persistErrors    metric.Int64Counter
}

// NewRouteMetrics creates the route instruments on provider, or on the global
// meter provider when provider is nil.
func NewRouteMetrics(provider metric.MeterProvider) (*RouteMetrics, error) {
	if provider == nil {
		provider = otel.GetMeterProvider()
	}
	meter := provider.Meter(meterName)

	upstreamDuration, err := meter.Float64Histogram(
		"routing.upstream.duration",
		metric.WithDescription("Duration of upstream routing engine requests in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	upstreamTotal, err := meter.Int64Counter(
		"routing.upstream.total",
		metric.WithDescription("Total number of upstream routing engine requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}

	cacheHits, err := meter.Int64Counter(
		"routing.cache.hit",
		metric.WithDescription("Number of route cache hits"),
		metric.WithUnit("{hit}"),
	)
	if err != nil {
		return nil, err
	}

	cacheMisses, err := meter.Int64Counter(
		"routing.cache.miss",
		metric.WithDescription("Number of route cache misses"),
		metric.WithUnit("{miss}"),
	)
	if err != nil {
		return nil, err
	}

	persistErrors, err := meter.Int64Counter(
		"routing.cache.persist_errors",
		metric.WithDescription("Number of route responses that could not be written to the cache"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, err
	}

	return &RouteMetrics{
		upstreamDuration: upstreamDuration,
		upstreamTotal:    upstreamTotal,
		cacheHits:        cacheHits,
		cacheMisses:      cacheMisses,
		persistErrors:    persistErrors,
	}, nil
}

// RecordUpstream records one upstream engine call.
func (m *RouteMetrics) RecordUpstream(engine string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	attrs := []attribute.KeyValue{attribute.String("routing.engine", engine)}
	if err != nil {
		attrs = append(attrs, attribute.Bool("error", true))
	}

	// Metrics outlive the request context.
	ctx := context.TODO()
	m.upstreamDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
	m.upstreamTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordCacheHit records a route cache hit.
func (m *RouteMetrics) RecordCacheHit(engine string) {
	if m == nil {
		return
	}
	m.cacheHits.Add(context.TODO(), 1, metric.WithAttributes(attribute.String("routing.engine", engine)))
}

// RecordCacheMiss records a route cache miss.
func (m *RouteMetrics) RecordCacheMiss(engine string) {
	if m == nil {
		return
	}
	m.cacheMisses.Add(context.TODO(), 1, metric.WithAttributes(attribute.String("routing.engine", engine)))
}

// RecordPersistError records a failed cache write.
func (m *RouteMetrics) RecordPersistError(engine string) {
	if m == nil {
		return
	}
	m.persistErrors.Add(context.TODO(), 1, metric.WithAttributes(attribute.String("routing.engine", engine)))
}

package telemetry_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/railtrace/railtrace/internal/telemetry"
)

func TestInit_Disabled(t *testing.T) {
	ctx := context.Background()
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator())

	provider, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName:    "railtrace-api",
		ServiceVersion: "1.0.0",
		Environment:    "test",
		OTLPEndpoint:   "localhost:4317",
		Enabled:        false,
	})

	require.NoError(t, err)
	assert.Nil(t, provider.TracerProvider)
	assert.Nil(t, provider.MeterProvider)
	assert.Contains(t, otel.GetTextMapPropagator().Fields(), "traceparent")

	assert.NoError(t, provider.Shutdown(ctx))
}

func TestProvider_Shutdown_NilProviders(t *testing.T) {
	provider := &telemetry.Provider{}
	err := provider.Shutdown(context.Background())
	assert.NoError(t, err)
}

func TestProvider_Shutdown_StopsBoth(t *testing.T) {
	tp := sdktrace.NewTracerProvider()
	mp := sdkmetric.NewMeterProvider()
	provider := &telemetry.Provider{TracerProvider: tp, MeterProvider: mp}

	require.NoError(t, provider.Shutdown(context.Background()))

	_, span := tp.Tracer("test").Start(context.Background(), "after-shutdown")
	assert.False(t, span.IsRecording())
}

func TestSampler(t *testing.T) {
	assert.Contains(t, telemetry.Sampler(1).Description(), "AlwaysOnSampler")
	assert.Contains(t, telemetry.Sampler(0).Description(), "AlwaysOnSampler")
	assert.Contains(t, telemetry.Sampler(0.25).Description(), "TraceIDRatioBased{0.25}")
}

// sums collects every int64 counter of reader, keyed by instrument name and
// the routing.engine attribute.
func sums(t *testing.T, reader *sdkmetric.ManualReader) map[[2]string]int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	out := make(map[[2]string]int64)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				continue
			}
			for _, dp := range sum.DataPoints {
				engine, _ := dp.Attributes.Value(attribute.Key("routing.engine"))
				out[[2]string{m.Name, engine.AsString()}] += dp.Value
			}
		}
	}
	return out
}

func TestRouteMetrics_Record(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	m, err := telemetry.NewRouteMetrics(sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)))
	require.NoError(t, err)

	m.RecordUpstream("osrm", 120*time.Millisecond, nil)
	m.RecordUpstream("osrm", time.Second, errors.New("boom"))
	m.RecordCacheHit("osrm")
	m.RecordCacheMiss("osrm")
	m.RecordCacheMiss("viaroute")
	m.RecordPersistError("osrm")

	got := sums(t, reader)
	assert.Equal(t, int64(2), got[[2]string{"routing.upstream.total", "osrm"}])
	assert.Equal(t, int64(1), got[[2]string{"routing.cache.hit", "osrm"}])
	assert.Equal(t, int64(1), got[[2]string{"routing.cache.miss", "osrm"}])
	assert.Equal(t, int64(1), got[[2]string{"routing.cache.miss", "viaroute"}])
	assert.Equal(t, int64(1), got[[2]string{"routing.cache.persist_errors", "osrm"}])
}

func TestRouteMetrics_GlobalProvider(t *testing.T) {
	m, err := telemetry.NewRouteMetrics(nil)
	require.NoError(t, err)
	assert.NotPanics(t, func() { m.RecordCacheHit("osrm") })
}

func TestRouteMetrics_NilIsNoop(t *testing.T) {
	var m *telemetry.RouteMetrics

	assert.NotPanics(t, func() {
		m.RecordUpstream("viaroute", time.Second, nil)
		m.RecordCacheHit("viaroute")
		m.RecordCacheMiss("viaroute")
		m.RecordPersistError("viaroute")
	})
}

package resilience_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/railtrace/railtrace/internal/provider/resilience"
)

// engine serves statuses in order, repeating the last one, and counts calls.
func engine(t *testing.T, statuses ...int) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		n := int(calls.Add(1))
		if n > len(statuses) {
			n = len(statuses)
		}
		w.WriteHeader(statuses[n-1])
	}))
	t.Cleanup(server.Close)
	return server, &calls
}

// fastConfig retries quickly and never trips the breaker.
func fastConfig(name string, retries uint64) resilience.ClientConfig {
	cb := resilience.DefaultCircuitBreakerConfig(name)
	cb.ReadyToTrip = func(gobreaker.Counts) bool { return false }

	cfg := resilience.DefaultClientConfig(name)
	cfg.MaxRetries = retries
	cfg.InitialInterval = 5 * time.Millisecond
	cfg.MaxInterval = 20 * time.Millisecond
	cfg.CircuitBreaker = &cb
	return cfg
}

func TestClient_Get(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		_, _ = w.Write([]byte(`{"route_geometry":"_p~iF~ps|U"}`))
	}))
	defer server.Close()

	client := resilience.NewClient(resilience.DefaultClientConfig("viaroute"))
	assert.Equal(t, "viaroute", client.Name())

	resp, err := client.Get(context.Background(), server.URL)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"route_geometry":"_p~iF~ps|U"}`, string(resp.Body))
}

func TestClient_RetryPolicy(t *testing.T) {
	tests := []struct {
		name         string
		statuses     []int
		retries      uint64
		wantStatus   int
		wantAttempts int32
	}{
		{"no retries by default", []int{http.StatusBadGateway}, 0, http.StatusBadGateway, 1},
		{"5xx retried until success", []int{503, 503, 200}, 5, http.StatusOK, 3},
		{"exhausted retries return the last reply", []int{http.StatusInternalServerError}, 2, http.StatusInternalServerError, 3},
		{"4xx not retried", []int{http.StatusBadRequest}, 3, http.StatusBadRequest, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server, calls := engine(t, tt.statuses...)
			client := resilience.NewClient(fastConfig("retry", tt.retries))

			resp, err := client.Get(context.Background(), server.URL)
			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, resp.StatusCode)
			assert.Equal(t, tt.wantAttempts, calls.Load())
		})
	}
}

func TestClient_RetryReplaysRequestBody(t *testing.T) {
	const body = `{"coordinates":[[2.3,48.8],[4.8,45.7]]}`
	var attempts atomic.Int32
	var last atomic.Value

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ := io.ReadAll(r.Body)
		last.Store(string(got))
		if attempts.Add(1) < 2 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := resilience.NewClient(fastConfig("ors", 2))

	req, err := http.NewRequestWithContext(context.Background(), http.MethodPost, server.URL, strings.NewReader(body))
	require.NoError(t, err)

	resp, err := client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int32(2), attempts.Load())
	assert.Equal(t, body, last.Load())
}

func TestClient_GetBodyTooLarge(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(strings.Repeat("x", 64)))
	}))
	defer server.Close()

	cfg := resilience.DefaultClientConfig("large")
	cfg.MaxBodyBytes = 16

	_, err := resilience.NewClient(cfg).Get(context.Background(), server.URL)
	assert.ErrorIs(t, err, resilience.ErrBodyTooLarge)
}

func TestClient_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(300 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	cfg := fastConfig("slow", 0)
	cfg.Timeout = 50 * time.Millisecond

	_, err := resilience.NewClient(cfg).Get(context.Background(), server.URL)
	assert.Error(t, err)
}

func TestClient_ContextCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(time.Second)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := resilience.NewClient(fastConfig("cancel", 3)).Get(ctx, server.URL)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestClient_CircuitBreakerTrips(t *testing.T) {
	server, calls := engine(t, http.StatusInternalServerError)

	cbConfig := resilience.CircuitBreakerConfig{
		Name:        "trip",
		MaxRequests: 1,
		Timeout:     10 * time.Second,
		ReadyToTrip: resilience.TripOnFailureRatio(5, 0.5),
	}
	cfg := fastConfig("trip", 0)
	cfg.CircuitBreaker = &cbConfig
	client := resilience.NewClient(cfg)

	for i := 0; i < 5; i++ {
		_, err := client.Get(context.Background(), server.URL)
		require.NoError(t, err)
	}
	assert.Equal(t, gobreaker.StateOpen, client.CircuitBreakerState())

	_, err := client.Get(context.Background(), server.URL)
	assert.ErrorIs(t, err, resilience.ErrCircuitOpen)
	assert.Equal(t, int32(5), calls.Load(), "open breaker must not reach the engine")

	var open *resilience.CircuitOpenError
	require.ErrorAs(t, err, &open)
	assert.Equal(t, "trip", open.Upstream)
	assert.Greater(t, open.RetryAfter, 8*time.Second)
	assert.LessOrEqual(t, open.RetryAfter, 10*time.Second)
}

func TestClient_RetryAfterClosed(t *testing.T) {
	client := resilience.NewClient(resilience.DefaultClientConfig("closed"))
	assert.Zero(t, client.RetryAfter())
	assert.Equal(t, gobreaker.StateClosed, client.CircuitBreakerState())
}

func TestClient_CustomStateChangeHookStillCalled(t *testing.T) {
	server, _ := engine(t, http.StatusBadGateway)

	var transitions []gobreaker.State
	cbConfig := resilience.CircuitBreakerConfig{
		Name:        "hook",
		ReadyToTrip: resilience.TripOnFailureRatio(1, 1),
		OnStateChange: func(_ string, _, to gobreaker.State) {
			transitions = append(transitions, to)
		},
	}
	cfg := resilience.DefaultClientConfig("hook")
	cfg.CircuitBreaker = &cbConfig
	client := resilience.NewClient(cfg)

	_, err := client.Get(context.Background(), server.URL)
	require.NoError(t, err)

	assert.Equal(t, []gobreaker.State{gobreaker.StateOpen}, transitions)
	// Unset breaker fields fall back to the defaults.
	assert.Greater(t, client.RetryAfter(), 58*time.Second)
}

func TestClient_RecordsOutcomesInRegistry(t *testing.T) {
	server, _ := engine(t, http.StatusOK, http.StatusInternalServerError)

	registry := resilience.NewRegistry()
	cfg := fastConfig("osrm", 0)
	cfg.Registry = registry
	client := resilience.NewClient(cfg)

	_, err := client.Get(context.Background(), server.URL)
	require.NoError(t, err)

	health := registry.Health("osrm")
	require.NotNil(t, health)
	require.NotNil(t, health.LastSuccessAt)
	assert.Nil(t, health.LastFailureAt)

	_, err = client.Get(context.Background(), server.URL)
	require.NoError(t, err)

	health = registry.Health("osrm")
	require.NotNil(t, health.LastFailureAt)
	assert.Equal(t, "server error: Internal Server Error", health.LastError)
}

func TestDefaults(t *testing.T) {
	cfg := resilience.DefaultClientConfig("viaroute")
	assert.Equal(t, "viaroute", cfg.Name)
	assert.Equal(t, 30*time.Second, cfg.Timeout)
	assert.Zero(t, cfg.MaxRetries)
	assert.Equal(t, 100*time.Millisecond, cfg.InitialInterval)
	assert.Equal(t, 5*time.Second, cfg.MaxInterval)
	assert.Equal(t, int64(16<<20), cfg.MaxBodyBytes)
	require.NotNil(t, cfg.CircuitBreaker)

	cb := *cfg.CircuitBreaker
	assert.Equal(t, "viaroute", cb.Name)
	assert.Equal(t, uint32(1), cb.MaxRequests)
	assert.Equal(t, 60*time.Second, cb.Timeout)
	assert.NotNil(t, cb.ReadyToTrip)
}

func TestTripOnFailureRatio(t *testing.T) {
	tests := []struct {
		name   string
		counts gobreaker.Counts
		want   bool
	}{
		{"no requests", gobreaker.Counts{}, false},
		{"not enough requests", gobreaker.Counts{Requests: 4, TotalFailures: 4}, false},
		{"low failure rate", gobreaker.Counts{Requests: 10, TotalFailures: 4}, false},
		{"half failing", gobreaker.Counts{Requests: 10, TotalFailures: 5}, true},
		{"five of five failing", gobreaker.Counts{Requests: 5, TotalFailures: 5}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, resilience.DefaultReadyToTrip(tt.counts))
		})
	}

	assert.False(t, resilience.TripOnFailureRatio(0, 0.5)(gobreaker.Counts{}), "zero requests never trip")
	assert.True(t, resilience.TripOnFailureRatio(1, 1)(gobreaker.Counts{Requests: 1, TotalFailures: 1}))
}

func TestErrors(t *testing.T) {
	assert.Equal(t, "server error: Bad Gateway", (&resilience.ServerError{StatusCode: http.StatusBadGateway}).Error())

	open := &resilience.CircuitOpenError{Upstream: "osrm", RetryAfter: 1500 * time.Millisecond}
	assert.ErrorIs(t, open, resilience.ErrCircuitOpen)
	assert.Equal(t, "circuit breaker open for osrm, retry in 2s", open.Error())
}

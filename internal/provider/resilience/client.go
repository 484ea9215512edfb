package resilience

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"
)

// Predefined errors for resilient operations.
var (
	// ErrCircuitOpen is returned when the circuit breaker is open.
	ErrCircuitOpen = errors.New("circuit breaker is open")

	// ErrBodyTooLarge is returned by Get when the upstream body exceeds MaxBodyBytes.
	ErrBodyTooLarge = errors.New("upstream response body too large")
)

// CircuitOpenError is returned while an engine's breaker rejects calls. It
// matches ErrCircuitOpen under errors.Is.
type CircuitOpenError struct {
	Upstream string

	// RetryAfter is the time left before the breaker lets a probe through.
	RetryAfter time.Duration
}

func (e *CircuitOpenError) Error() string {
	return fmt.Sprintf("circuit breaker open for %s, retry in %s", e.Upstream, e.RetryAfter.Round(time.Second))
}

func (e *CircuitOpenError) Is(target error) bool {
	return target == ErrCircuitOpen
}

// ClientConfig holds configuration for the resilient HTTP client.
type ClientConfig struct {
	// Name identifies this client for circuit breaker naming and the health registry.
	Name string

	// Timeout bounds each HTTP call.
	// Default: 30 seconds
	Timeout time.Duration

	// MaxRetries is the number of additional attempts after a transient failure.
	// Zero disables retries.
	MaxRetries uint64

	// InitialInterval is the initial retry backoff interval.
	// Default: 100ms
	InitialInterval time.Duration

	// MaxInterval is the maximum retry backoff interval.
	// Default: 5 seconds
	MaxInterval time.Duration

	// MaxBodyBytes caps the body size read by Get.
	// Default: 16 MiB
	MaxBodyBytes int64

	// CircuitBreaker is the circuit breaker configuration.
	// If nil, uses DefaultCircuitBreakerConfig.
	CircuitBreaker *CircuitBreakerConfig

	// Registry receives the client and its success/failure history. Optional.
	Registry *Registry

	// Logger records circuit breaker state changes.
	Logger zerolog.Logger

	// Transport overrides the HTTP transport, mainly for tests.
	Transport http.RoundTripper
}

// DefaultClientConfig returns the defaults used for upstream routing engines.
func DefaultClientConfig(name string) ClientConfig {
	cbConfig := DefaultCircuitBreakerConfig(name)
	return ClientConfig{
		Name:            name,
		Timeout:         30 * time.Second,
		MaxRetries:      0,
		InitialInterval: 100 * time.Millisecond,
		MaxInterval:     5 * time.Second,
		MaxBodyBytes:    16 << 20,
		CircuitBreaker:  &cbConfig,
		Logger:          zerolog.Nop(),
	}
}

// Client is a resilient HTTP client with circuit breaker and retry logic.
type Client struct {
	httpClient     *http.Client
	circuitBreaker *gobreaker.CircuitBreaker[*http.Response]
	openTimeout    time.Duration
	config         ClientConfig

	mu       sync.Mutex
	openedAt time.Time
}

// NewClient creates a new resilient HTTP client and registers it with cfg.Registry.
func NewClient(cfg ClientConfig) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.InitialInterval == 0 {
		cfg.InitialInterval = 100 * time.Millisecond
	}
	if cfg.MaxInterval == 0 {
		cfg.MaxInterval = 5 * time.Second
	}
	if cfg.MaxBodyBytes == 0 {
		cfg.MaxBodyBytes = 16 << 20
	}

	cbConfig := DefaultCircuitBreakerConfig(cfg.Name)
	if cfg.CircuitBreaker != nil {
		cbConfig = cfg.CircuitBreaker.withDefaults()
	}

	c := &Client{
		httpClient: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: cfg.Transport,
		},
		openTimeout: cbConfig.Timeout,
		config:      cfg,
	}

	notify := cbConfig.OnStateChange
	if notify == nil {
		logger := cfg.Logger
		notify = func(name string, from, to gobreaker.State) {
			logger.Warn().
				Str("upstream", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("circuit breaker state changed")
		}
	}
	cbConfig.OnStateChange = func(name string, from, to gobreaker.State) {
		c.stateChanged(to)
		notify(name, from, to)
	}
	c.circuitBreaker = newCircuitBreaker[*http.Response](cbConfig) //nolint:bodyclose // type param, not response

	if cfg.Registry != nil {
		cfg.Registry.Register(cfg.Name, c)
	}
	return c
}

// Name returns the client name.
func (c *Client) Name() string {
	return c.config.Name
}

// Do executes an HTTP request with circuit breaker protection and retry logic.
// The request is retried on transient failures (5xx, network errors) with exponential backoff.
// Returns a *CircuitOpenError immediately if the circuit breaker is open.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	return c.DoWithContext(req.Context(), req)
}

// DoWithContext executes an HTTP request with the given context.
func (c *Client) DoWithContext(ctx context.Context, req *http.Request) (*http.Response, error) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.config.InitialInterval
	bo.MaxInterval = c.config.MaxInterval
	bo.MaxElapsedTime = 0 // retries are bounded by WithMaxRetries

	policy := backoff.WithContext(backoff.WithMaxRetries(bo, c.config.MaxRetries), ctx)

	var lastResp *http.Response

	operation := func() error {
		// 5xx replies are returned as errors so they count against the breaker.
		resp, err := c.circuitBreaker.Execute(func() (*http.Response, error) { //nolint:bodyclose // caller is responsible for closing
			attempt := req.Clone(ctx)
			if req.GetBody != nil {
				body, err := req.GetBody()
				if err != nil {
					return nil, err
				}
				attempt.Body = body
			}
			r, err := c.httpClient.Do(attempt)
			if err != nil {
				return nil, err
			}
			if r.StatusCode >= 500 {
				return r, &ServerError{StatusCode: r.StatusCode}
			}
			return r, nil
		})

		if err != nil {
			if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
				return backoff.Permanent(ErrCircuitOpen)
			}
			if resp != nil {
				if lastResp != nil {
					lastResp.Body.Close()
				}
				lastResp = resp
			}
			return err
		}

		if lastResp != nil {
			lastResp.Body.Close()
		}
		lastResp = resp
		return nil
	}

	err := backoff.Retry(operation, policy)
	if errors.Is(err, ErrCircuitOpen) {
		err = &CircuitOpenError{Upstream: c.config.Name, RetryAfter: c.RetryAfter()}
	}
	if err != nil {
		c.recordFailure(err)
		// A 5xx that exhausted retries is handed back to the caller as a response.
		if lastResp != nil && !errors.Is(err, ErrCircuitOpen) {
			return lastResp, nil
		}
		if lastResp != nil {
			lastResp.Body.Close()
		}
		return nil, err
	}

	c.recordSuccess()
	return lastResp, nil
}

// Response is a fully read upstream reply.
type Response struct {
	StatusCode int
	Body       []byte
}

// Get issues a GET to url and reads the whole body, up to MaxBodyBytes.
func (c *Client) Get(ctx context.Context, url string) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.DoWithContext(ctx, req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.config.MaxBodyBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	if int64(len(body)) > c.config.MaxBodyBytes {
		return nil, ErrBodyTooLarge
	}

	return &Response{StatusCode: resp.StatusCode, Body: body}, nil
}

func (c *Client) recordSuccess() {
	if c.config.Registry != nil {
		c.config.Registry.RecordSuccess(c.config.Name)
	}
}

func (c *Client) recordFailure(err error) {
	if c.config.Registry != nil {
		c.config.Registry.RecordFailure(c.config.Name, err)
	}
}

// ServerError represents an HTTP 5xx server error.
type ServerError struct {
	StatusCode int
}

func (e *ServerError) Error() string {
	return "server error: " + http.StatusText(e.StatusCode)
}

func (c *Client) stateChanged(to gobreaker.State) {
	now := time.Now()

	c.mu.Lock()
	if to == gobreaker.StateOpen {
		c.openedAt = now
	} else {
		c.openedAt = time.Time{}
	}
	c.mu.Unlock()

	if c.config.Registry != nil {
		c.config.Registry.RecordStateChange(c.config.Name, to, now)
	}
}

// RetryAfter reports how long until an open breaker admits a probe. It is zero
// when the breaker is closed and at least one second while it is open.
func (c *Client) RetryAfter() time.Duration {
	c.mu.Lock()
	openedAt := c.openedAt
	c.mu.Unlock()

	if openedAt.IsZero() {
		if c.circuitBreaker.State() == gobreaker.StateHalfOpen {
			return time.Second
		}
		return 0
	}
	remaining := c.openTimeout - time.Since(openedAt)
	if remaining < time.Second {
		return time.Second
	}
	return remaining
}

// CircuitBreakerState returns the current state of the circuit breaker.
func (c *Client) CircuitBreakerState() gobreaker.State {
	return c.circuitBreaker.State()
}

// CircuitBreakerCounts returns the current counts of the circuit breaker.
func (c *Client) CircuitBreakerCounts() gobreaker.Counts {
	return c.circuitBreaker.Counts()
}

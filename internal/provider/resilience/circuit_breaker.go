// Package resilience wraps calls to upstream routing engines with a circuit breaker,
// a per-call timeout and optional retries.
package resilience

import (
	"time"

	"github.com/sony/gobreaker/v2"
)

// Breaker defaults for routing engines. An engine that fails half of at least
// five lookups is left alone for a minute.
const (
	DefaultTripMinRequests  = 5
	DefaultTripFailureRatio = 0.5
	DefaultOpenTimeout      = 60 * time.Second
)

// CircuitBreakerConfig configures the breaker guarding one engine.
type CircuitBreakerConfig struct {
	Name string

	// MaxRequests is the number of probe lookups allowed while half-open.
	MaxRequests uint32

	// Interval clears the counts while closed. Zero keeps them until a state change.
	Interval time.Duration

	// Timeout is how long the breaker stays open before probing the engine again.
	Timeout time.Duration

	ReadyToTrip   func(counts gobreaker.Counts) bool
	OnStateChange func(name string, from gobreaker.State, to gobreaker.State)
}

// DefaultCircuitBreakerConfig returns the breaker settings used for every engine.
func DefaultCircuitBreakerConfig(name string) CircuitBreakerConfig {
	return CircuitBreakerConfig{
		Name:        name,
		MaxRequests: 1,
		Timeout:     DefaultOpenTimeout,
		ReadyToTrip: DefaultReadyToTrip,
	}
}

// TripOnFailureRatio returns a ReadyToTrip func that opens the breaker once at
// least minRequests lookups were made and the share of failures reaches ratio.
func TripOnFailureRatio(minRequests uint32, ratio float64) func(gobreaker.Counts) bool {
	return func(counts gobreaker.Counts) bool {
		if counts.Requests < minRequests || counts.Requests == 0 {
			return false
		}
		return float64(counts.TotalFailures)/float64(counts.Requests) >= ratio
	}
}

// DefaultReadyToTrip trips after DefaultTripMinRequests lookups with a failure
// ratio of DefaultTripFailureRatio or more.
var DefaultReadyToTrip = TripOnFailureRatio(DefaultTripMinRequests, DefaultTripFailureRatio)

func (cfg CircuitBreakerConfig) withDefaults() CircuitBreakerConfig {
	if cfg.MaxRequests == 0 {
		cfg.MaxRequests = 1
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultOpenTimeout
	}
	if cfg.ReadyToTrip == nil {
		cfg.ReadyToTrip = DefaultReadyToTrip
	}
	return cfg
}

func newCircuitBreaker[T any](cfg CircuitBreakerConfig) *gobreaker.CircuitBreaker[T] {
	return gobreaker.NewCircuitBreaker[T](gobreaker.Settings{
		Name:          cfg.Name,
		MaxRequests:   cfg.MaxRequests,
		Interval:      cfg.Interval,
		Timeout:       cfg.Timeout,
		ReadyToTrip:   cfg.ReadyToTrip,
		OnStateChange: cfg.OnStateChange,
	})
}

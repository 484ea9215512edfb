package resilience

import (
	"sort"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"
)

// ProviderHealth is the health snapshot of one upstream routing engine.
type ProviderHealth struct {
	Name         string
	CircuitState gobreaker.State
	Counts       gobreaker.Counts

	LastSuccessAt *time.Time
	LastFailureAt *time.Time
	LastError     string

	// StateChangedAt is when the breaker last moved between states. Nil until the first transition.
	StateChangedAt *time.Time

	// RetryAfter is the time left before an open breaker probes the engine again.
	RetryAfter time.Duration
}

// IsHealthy returns true if the provider is considered healthy.
func (h *ProviderHealth) IsHealthy() bool {
	return h.CircuitState == gobreaker.StateClosed
}

// IsDegraded returns true while the breaker is half-open.
func (h *ProviderHealth) IsDegraded() bool {
	return h.CircuitState == gobreaker.StateHalfOpen
}

// IsUnhealthy returns true while the breaker is open.
func (h *ProviderHealth) IsUnhealthy() bool {
	return h.CircuitState == gobreaker.StateOpen
}

// Registry tracks the engine clients of a process and what happened to their
// recent calls. It backs /ops/status.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]*providerRecord
}

type providerRecord struct {
	client         *Client
	lastSuccessAt  *time.Time
	lastFailureAt  *time.Time
	lastError      string
	stateChangedAt *time.Time
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{providers: make(map[string]*providerRecord)}
}

// Register adds client under name, replacing any earlier client with that name.
func (r *Registry) Register(name string, client *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[name] = &providerRecord{client: client}
}

// RecordSuccess records a successful call.
func (r *Registry) RecordSuccess(name string) {
	now := time.Now()
	r.update(name, func(p *providerRecord) { p.lastSuccessAt = &now })
}

// RecordFailure records a failed call and its error.
func (r *Registry) RecordFailure(name string, err error) {
	now := time.Now()
	r.update(name, func(p *providerRecord) {
		p.lastFailureAt = &now
		if err != nil {
			p.lastError = err.Error()
		}
	})
}

// RecordStateChange records a breaker transition. It runs inside the breaker's
// state-change hook and must not call back into the breaker.
func (r *Registry) RecordStateChange(name string, _ gobreaker.State, at time.Time) {
	r.update(name, func(p *providerRecord) { p.stateChangedAt = &at })
}

func (r *Registry) update(name string, fn func(*providerRecord)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.providers[name]; ok {
		fn(p)
	}
}

// Health returns the snapshot of one provider, or nil if it is not registered.
func (r *Registry) Health(name string) *ProviderHealth {
	r.mu.RLock()
	p, ok := r.providers[name]
	var rec providerRecord
	if ok {
		rec = *p
	}
	r.mu.RUnlock()

	if !ok {
		return nil
	}
	return rec.health(name)
}

// All returns a snapshot of every registered provider, ordered by name.
func (r *Registry) All() []*ProviderHealth {
	r.mu.RLock()
	records := make(map[string]providerRecord, len(r.providers))
	for name, p := range r.providers {
		records[name] = *p
	}
	r.mu.RUnlock()

	// Breaker state is read after releasing the lock: the breaker calls
	// RecordStateChange while holding its own mutex.
	health := make([]*ProviderHealth, 0, len(records))
	for name, rec := range records {
		health = append(health, rec.health(name))
	}
	sort.Slice(health, func(i, j int) bool { return health[i].Name < health[j].Name })
	return health
}

func (p providerRecord) health(name string) *ProviderHealth {
	return &ProviderHealth{
		Name:           name,
		CircuitState:   p.client.CircuitBreakerState(),
		Counts:         p.client.CircuitBreakerCounts(),
		LastSuccessAt:  p.lastSuccessAt,
		LastFailureAt:  p.lastFailureAt,
		LastError:      p.lastError,
		StateChangedAt: p.stateChangedAt,
		RetryAfter:     p.client.RetryAfter(),
	}
}

package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/paulmach/orb/geojson"
	"github.com/rs/zerolog"

	"github.com/railtrace/railtrace/internal/routing"
)

// Resolver resolves an endpoint pair, filling the route cache on the way.
type Resolver interface {
	Resolve(ctx context.Context, origin, destination string, simplified bool) (*geojson.Feature, error)
}

// PrewarmJob resolves batches of endpoint pairs so later requests hit the cache.
type PrewarmJob struct {
	config   PrewarmConfig
	resolver Resolver
	logger   zerolog.Logger

	metrics *PrewarmMetrics
}

// PrewarmMetrics tracks prewarm job statistics.
type PrewarmMetrics struct {
	mu sync.RWMutex

	// Counters
	TotalRuns    int64
	WarmedPairs  int64
	NoRoutePairs int64
	SkippedPairs int64
	FailedPairs  int64

	// Timings
	LastRunAt       time.Time
	LastRunDuration time.Duration
	TotalDuration   time.Duration
}

// PrewarmJobConfig holds configuration for creating a PrewarmJob.
type PrewarmJobConfig struct {
	Config   PrewarmConfig
	Resolver Resolver
	Logger   zerolog.Logger
}

// NewPrewarmJob creates a new prewarm job.
func NewPrewarmJob(cfg PrewarmJobConfig) *PrewarmJob {
	return &PrewarmJob{
		config:   cfg.Config.withDefaults(),
		resolver: cfg.Resolver,
		logger:   cfg.Logger,
		metrics:  &PrewarmMetrics{},
	}
}

// PrewarmResult contains the result of a prewarm run.
type PrewarmResult struct {
	StartTime  time.Time
	EndTime    time.Time
	Duration   time.Duration
	TotalPairs int

	// Warmed counts pairs whose engine reply is now cached, including NoRoute ones.
	Warmed int
	// NoRoute counts pairs the engine cannot connect.
	NoRoute int
	// Skipped counts pairs rejected as invalid; retrying them cannot succeed.
	Skipped int
	// Failed counts pairs that errored or were not attempted before cancellation.
	Failed int

	Errors []PrewarmError
}

// PrewarmError records why a pair was not warmed.
type PrewarmError struct {
	Pair  Pair
	Error string
}

type outcome int

const (
	outcomeWarmed outcome = iota
	outcomeNoRoute
	outcomeSkipped
	outcomeFailed
)

type pairResult struct {
	pair    Pair
	outcome outcome
	err     error
}

// Run resolves pairs with bounded concurrency.
func (j *PrewarmJob) Run(ctx context.Context, pairs []Pair) *PrewarmResult {
	startTime := time.Now()
	result := &PrewarmResult{
		StartTime:  startTime,
		TotalPairs: len(pairs),
	}

	j.logger.Info().
		Int("total_pairs", result.TotalPairs).
		Int("concurrency", j.config.Concurrency).
		Msg("starting route prewarm job")

	pairsChan := make(chan Pair, len(pairs))
	resultsChan := make(chan pairResult, len(pairs))

	var wg sync.WaitGroup
	for i := 0; i < j.config.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			j.prewarmWorker(ctx, pairsChan, resultsChan)
		}()
	}

	for _, p := range pairs {
		pairsChan <- p
	}
	close(pairsChan)

	go func() {
		wg.Wait()
		close(resultsChan)
	}()

	processed := 0
	for pr := range resultsChan {
		processed++
		switch pr.outcome {
		case outcomeWarmed:
			result.Warmed++
		case outcomeNoRoute:
			result.Warmed++
			result.NoRoute++
		case outcomeSkipped:
			result.Skipped++
		case outcomeFailed:
			result.Failed++
		}
		if pr.err != nil && pr.outcome != outcomeNoRoute {
			result.Errors = append(result.Errors, PrewarmError{Pair: pr.pair, Error: pr.err.Error()})
		}
	}
	result.Failed += result.TotalPairs - processed

	result.EndTime = time.Now()
	result.Duration = result.EndTime.Sub(startTime)

	j.updateMetrics(result)

	j.logger.Info().
		Dur("duration", result.Duration).
		Int("warmed", result.Warmed).
		Int("no_route", result.NoRoute).
		Int("skipped", result.Skipped).
		Int("failed", result.Failed).
		Msg("route prewarm job completed")

	return result
}

func (j *PrewarmJob) prewarmWorker(ctx context.Context, pairs <-chan Pair, results chan<- pairResult) {
	for pair := range pairs {
		select {
		case <-ctx.Done():
			return
		default:
			results <- j.prewarmPair(ctx, pair)
		}
	}
}

func (j *PrewarmJob) prewarmPair(ctx context.Context, pair Pair) pairResult {
	pairCtx, cancel := context.WithTimeout(ctx, j.config.Timeout)
	defer cancel()

	_, err := j.resolver.Resolve(pairCtx, pair.Dep, pair.Arr, false)
	switch {
	case err == nil:
		return pairResult{pair: pair, outcome: outcomeWarmed}
	case errors.Is(err, routing.ErrNoRouteFound):
		return pairResult{pair: pair, outcome: outcomeNoRoute, err: err}
	case errors.Is(err, routing.ErrInvalidEndpoint), errors.Is(err, routing.ErrInvalidCoordinates):
		j.logger.Warn().Err(err).Str("dep", pair.Dep).Str("arr", pair.Arr).Msg("skipping invalid prewarm pair")
		return pairResult{pair: pair, outcome: outcomeSkipped, err: err}
	default:
		j.logger.Error().Err(err).Str("dep", pair.Dep).Str("arr", pair.Arr).Msg("failed to prewarm route")
		return pairResult{pair: pair, outcome: outcomeFailed, err: err}
	}
}

// CheckHealth resolves the configured health pair. A NoRoute reply still proves the engine answers.
func (j *PrewarmJob) CheckHealth(ctx context.Context) error {
	pr := j.prewarmPair(ctx, j.config.HealthPair)
	if pr.outcome == outcomeWarmed || pr.outcome == outcomeNoRoute {
		return nil
	}
	return pr.err
}

func (j *PrewarmJob) updateMetrics(result *PrewarmResult) {
	j.metrics.mu.Lock()
	defer j.metrics.mu.Unlock()

	j.metrics.TotalRuns++
	j.metrics.WarmedPairs += int64(result.Warmed)
	j.metrics.NoRoutePairs += int64(result.NoRoute)
	j.metrics.SkippedPairs += int64(result.Skipped)
	j.metrics.FailedPairs += int64(result.Failed)
	j.metrics.LastRunAt = result.EndTime
	j.metrics.LastRunDuration = result.Duration
	j.metrics.TotalDuration += result.Duration
}

// GetMetrics returns a copy of the current metrics.
func (j *PrewarmJob) GetMetrics() PrewarmMetrics {
	j.metrics.mu.RLock()
	defer j.metrics.mu.RUnlock()

	return PrewarmMetrics{
		TotalRuns:       j.metrics.TotalRuns,
		WarmedPairs:     j.metrics.WarmedPairs,
		NoRoutePairs:    j.metrics.NoRoutePairs,
		SkippedPairs:    j.metrics.SkippedPairs,
		FailedPairs:     j.metrics.FailedPairs,
		LastRunAt:       j.metrics.LastRunAt,
		LastRunDuration: j.metrics.LastRunDuration,
		TotalDuration:   j.metrics.TotalDuration,
	}
}

// MetricsSnapshot returns a snapshot of the current metrics as a map.
func (j *PrewarmJob) MetricsSnapshot() map[string]interface{} {
	m := j.GetMetrics()
	return map[string]interface{}{
		"total_runs":        m.TotalRuns,
		"warmed_pairs":      m.WarmedPairs,
		"no_route_pairs":    m.NoRoutePairs,
		"skipped_pairs":     m.SkippedPairs,
		"failed_pairs":      m.FailedPairs,
		"last_run_at":       m.LastRunAt,
		"last_run_duration": m.LastRunDuration.String(),
		"total_duration":    m.TotalDuration.String(),
	}
}

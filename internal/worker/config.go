// Package worker prewarms the route cache from background jobs.
package worker

import "time"

// Pair is an endpoint pair to resolve: station ids or coordinate strings.
type Pair struct {
	Dep string `json:"dep"`
	Arr string `json:"arr"`
}

// PrewarmConfig holds configuration for the prewarm job.
type PrewarmConfig struct {
	// Concurrency is the number of pairs resolved at once.
	// Default: 3
	Concurrency int

	// Timeout bounds the resolution of a single pair.
	// Default: 60 seconds
	Timeout time.Duration

	// HealthPair is resolved by health_check jobs to verify the engine is reachable.
	// Default: Paris Montparnasse to Lyon Part-Dieu.
	HealthPair Pair
}

// DefaultPrewarmConfig returns the default prewarm configuration.
func DefaultPrewarmConfig() PrewarmConfig {
	return PrewarmConfig{
		Concurrency: 3,
		Timeout:     60 * time.Second,
		HealthPair:  Pair{Dep: "4916", Arr: "5085"},
	}
}

func (c PrewarmConfig) withDefaults() PrewarmConfig {
	d := DefaultPrewarmConfig()
	if c.Concurrency <= 0 {
		c.Concurrency = d.Concurrency
	}
	if c.Timeout <= 0 {
		c.Timeout = d.Timeout
	}
	if c.HealthPair.Dep == "" || c.HealthPair.Arr == "" {
		c.HealthPair = d.HealthPair
	}
	return c
}

// PairsBetween returns every ordered pair of distinct stations, so that both
// directions of each connection are warmed.
func PairsBetween(stations []string) []Pair {
	seen := make(map[string]struct{}, len(stations))
	unique := make([]string, 0, len(stations))
	for _, s := range stations {
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		unique = append(unique, s)
	}

	pairs := make([]Pair, 0, len(unique)*(len(unique)-1))
	for _, dep := range unique {
		for _, arr := range unique {
			if dep != arr {
				pairs = append(pairs, Pair{Dep: dep, Arr: arr})
			}
		}
	}
	return pairs
}

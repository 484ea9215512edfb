// Package search provides typo-tolerant station name lookup.
package search

import (
	"sort"
	"strings"

	"github.com/railtrace/railtrace/internal/catalog"
)

// Options tunes the fuzzy matcher.
type Options struct {
	// Threshold is the worst score still reported as a match (0 exact, 1 anything).
	Threshold float64
	// Location is the rune position where a match is expected to start.
	Location int
	// Distance scales the penalty of a match found away from Location.
	Distance int
	// MinMatchCharLength drops matched runs shorter than this from the indices.
	MinMatchCharLength int
	// MaxPatternLength is the longest query handled by Bitap; longer ones fall back
	// to token matching.
	MaxPatternLength int
	// Limit caps the number of results.
	Limit int
}

// DefaultOptions returns the matcher settings used by the station search endpoint.
func DefaultOptions() Options {
	return Options{
		Threshold:          0.4,
		Location:           0,
		Distance:           100,
		MinMatchCharLength: 3,
		MaxPatternLength:   32,
		Limit:              10,
	}
}

// Match reports which part of one field matched the query.
type Match struct {
	Indices [][2]int `json:"indices"`
	Value   string   `json:"value"`
	Key     string   `json:"key"`
}

// Result is one ranked station.
type Result struct {
	Item    *catalog.Station `json:"item"`
	Score   float64          `json:"score"`
	Matches []Match          `json:"matches"`
}

type field struct {
	key   string
	value string
	lower string
	runes []rune
}

type entry struct {
	station *catalog.Station
	fields  []field
}

// Index is an immutable search index over a fixed station list.
// It is safe for concurrent use.
type Index struct {
	entries []entry
	opts    Options
}

// New indexes the name and slug of each station. Result order for equal scores
// follows the order of stations.
func New(stations []*catalog.Station, opts Options) *Index {
	ix := &Index{
		entries: make([]entry, 0, len(stations)),
		opts:    opts,
	}
	for _, s := range stations {
		ix.entries = append(ix.entries, entry{
			station: s,
			fields:  []field{newField("name", s.Name), newField("slug", s.Slug)},
		})
	}
	return ix
}

func newField(key, value string) field {
	lower := strings.ToLower(value)
	return field{key: key, value: value, lower: lower, runes: []rune(lower)}
}

// Len returns the number of indexed stations.
func (ix *Index) Len() int {
	return len(ix.entries)
}

// Search ranks stations whose name or slug fuzzily matches query, best first.
// When countries is non-empty only stations from those country codes are considered.
// The result is never nil.
func (ix *Index) Search(query string, countries []string) []Result {
	results := []Result{}

	query = strings.TrimSpace(query)
	if query == "" {
		return results
	}

	allowed := countrySet(countries)
	p := newPattern(query, ix.opts.MaxPatternLength)

	for _, e := range ix.entries {
		if allowed != nil {
			if _, ok := allowed[strings.ToUpper(e.station.Country)]; !ok {
				continue
			}
		}

		total := 1.0
		matched := false
		matches := []Match{}
		for _, f := range e.fields {
			if f.lower == "" {
				continue
			}
			res := p.match(f.lower, f.runes, ix.opts)
			if !res.isMatch {
				continue
			}
			matched = true
			total *= res.score
			if len(res.indices) > 0 {
				matches = append(matches, Match{Indices: res.indices, Value: f.value, Key: f.key})
			}
		}
		if !matched {
			continue
		}

		results = append(results, Result{Item: e.station, Score: total, Matches: matches})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score < results[j].Score
	})

	if ix.opts.Limit > 0 && len(results) > ix.opts.Limit {
		results = results[:ix.opts.Limit]
	}
	return results
}

func countrySet(countries []string) map[string]struct{} {
	var set map[string]struct{}
	for _, c := range countries {
		c = strings.ToUpper(strings.TrimSpace(c))
		if c == "" {
			continue
		}
		if set == nil {
			set = make(map[string]struct{})
		}
		set[c] = struct{}{}
	}
	return set
}

// Package routecache persists raw upstream route responses keyed by their endpoints.
package routecache

import (
	"context"
	"strings"
)

// Cache stores raw route response bodies.
type Cache interface {
	// Get returns the cached body for key. A miss is reported as ok == false with a nil error.
	Get(ctx context.Context, key string) (body []byte, ok bool, err error)
	// Put stores body under key, replacing any previous value.
	Put(ctx context.Context, key string, body []byte) error
}

// Separator joins the origin and destination parts of a key. It never appears in a
// sanitized endpoint, so distinct endpoint pairs always map to distinct keys.
const Separator = "_"

// Sanitize keeps only digits, commas, periods and minus signs.
func Sanitize(endpoint string) string {
	var b strings.Builder
	b.Grow(len(endpoint))
	for _, r := range endpoint {
		if (r >= '0' && r <= '9') || r == ',' || r == '.' || r == '-' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Key builds the cache key for an origin/destination pair.
func Key(origin, destination string) string {
	return Sanitize(origin) + Separator + Sanitize(destination)
}

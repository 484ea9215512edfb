package middleware

import (
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/httprate"

	"github.com/railtrace/railtrace/internal/api/models"
)

// RateLimitConfig is a fixed request budget per client IP and window.
type RateLimitConfig struct {
	RequestLimit int
	WindowLength time.Duration
}

var (
	// RouteRateLimit guards /route, where a cache miss costs an engine call.
	RouteRateLimit = RateLimitConfig{RequestLimit: 30, WindowLength: time.Minute}

	// StationsRateLimit guards the in-memory station search.
	StationsRateLimit = RateLimitConfig{RequestLimit: 100, WindowLength: time.Minute}
)

// PerMinute returns a config allowing limit requests per minute, or fallback when limit is not positive.
func PerMinute(limit int, fallback RateLimitConfig) RateLimitConfig {
	if limit <= 0 {
		return fallback
	}
	return RateLimitConfig{RequestLimit: limit, WindowLength: time.Minute}
}

// RateLimitByIP limits each client IP, as resolved by chi's RealIP, to cfg.
// One middleware value is one budget: mounting it on several paths shares it.
func RateLimitByIP(cfg RateLimitConfig) func(http.Handler) http.Handler {
	return httprate.Limit(
		cfg.RequestLimit,
		cfg.WindowLength,
		httprate.WithKeyFuncs(httprate.KeyByRealIP),
		httprate.WithLimitHandler(limitExceeded(cfg.WindowLength)),
	)
}

func limitExceeded(window time.Duration) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		problem := models.NewTooManyRequests(GetRequestID(r.Context()), "Rate limit exceeded. Please try again later.")
		problem.Instance = r.URL.Path

		w.Header().Set("Retry-After", strconv.Itoa(retryAfter(w.Header(), window, time.Now())))
		problem.Write(w)
	}
}

// retryAfter is the number of seconds until the limiter window resets, read from
// the X-RateLimit-Reset header httprate sets. It falls back to the full window.
func retryAfter(h http.Header, window time.Duration, now time.Time) int {
	full := int(math.Ceil(window.Seconds()))
	reset, err := strconv.ParseInt(h.Get("X-RateLimit-Reset"), 10, 64)
	if err != nil {
		return full
	}
	secs := int(math.Ceil(time.Unix(reset, 0).Sub(now).Seconds()))
	switch {
	case secs < 1:
		return 1
	case secs > full:
		return full
	default:
		return secs
	}
}

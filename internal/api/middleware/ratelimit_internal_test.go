package middleware

import (
	"net/http"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRetryAfter(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	reset := func(d time.Duration) http.Header {
		h := http.Header{}
		h.Set("X-RateLimit-Reset", strconv.FormatInt(now.Add(d).Unix(), 10))
		return h
	}

	tests := []struct {
		name   string
		header http.Header
		want   int
	}{
		{"no header", http.Header{}, 60},
		{"garbage", http.Header{"X-Ratelimit-Reset": {"soon"}}, 60},
		{"mid window", reset(17 * time.Second), 17},
		{"already reset", reset(-3 * time.Second), 1},
		{"beyond window", reset(5 * time.Minute), 60},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, retryAfter(tt.header, time.Minute, now))
		})
	}
}

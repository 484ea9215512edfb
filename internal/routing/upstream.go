package routing

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/railtrace/railtrace/internal/provider/resilience"
)

// HTTPGetter fetches a URL and returns the full reply. *resilience.Client implements it.
type HTTPGetter interface {
	Get(ctx context.Context, url string) (*resilience.Response, error)
}

// RequestFailed wraps a transport-level failure (network error, timeout, open circuit).
func RequestFailed(provider string, err error) error {
	return &Error{
		Provider: provider,
		Code:     "REQUEST_FAILED",
		Message:  "failed to reach routing provider",
		Err:      fmt.Errorf("%w: %w", ErrProviderUnavailable, err),
	}
}

// StatusError maps a non-2xx reply to an error.
func StatusError(provider string, statusCode int) error {
	code := fmt.Sprintf("HTTP_%d", statusCode)
	message := fmt.Sprintf("routing provider returned status %d", statusCode)
	if statusCode >= 500 {
		code = fmt.Sprintf("SERVER_%d", statusCode)
		message = "routing provider is temporarily unavailable"
	}
	return &Error{
		Provider: provider,
		Code:     code,
		Message:  message,
		Err:      ErrProviderUnavailable,
	}
}

// CheckJSON rejects reply bodies that are not JSON so they never reach the cache.
func CheckJSON(provider string, body []byte) error {
	if !json.Valid(body) {
		return &Error{
			Provider: provider,
			Code:     "INVALID_JSON",
			Message:  "routing provider returned a non-JSON body",
			Err:      ErrMalformedResponse,
		}
	}
	return nil
}

// IsSuccess reports whether statusCode is 2xx.
func IsSuccess(statusCode int) bool {
	return statusCode >= http.StatusOK && statusCode < http.StatusMultipleChoices
}

// Package openrouteservice provides a routing engine backed by the OpenRouteService directions API.
package openrouteservice

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/railtrace/railtrace/internal/provider/resilience"
	"github.com/railtrace/railtrace/internal/routing"
	"github.com/railtrace/railtrace/pkg/polyline"
)

const (
	// ProviderName identifies this routing engine.
	ProviderName = "openrouteservice"

	// DefaultBaseURL is the OpenRouteService API base URL.
	DefaultBaseURL = "https://api.openrouteservice.org"

	// DefaultProfile is used when no profile is configured.
	DefaultProfile = "driving-car"

	// DefaultTimeout is the default request timeout.
	DefaultTimeout = 30 * time.Second

	maxBodyBytes = 16 << 20
)

// HTTPDoer is an interface for executing HTTP requests.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// ClientConfig holds configuration for the OpenRouteService client.
type ClientConfig struct {
	// APIKey is sent in the Authorization header. Self-hosted instances may not need one.
	APIKey string

	// BaseURL is the API base URL (optional, defaults to ORS API).
	BaseURL string

	// Profile is the directions profile in the URL path (optional, defaults to driving-car).
	Profile string

	// HTTPClient is the HTTP client to use (optional).
	// If nil, uses a resilient client with defaults.
	HTTPClient HTTPDoer

	// Timeout is the request timeout (optional, defaults to 30s).
	Timeout time.Duration

	// MaxRetries for transient failures (default: none).
	MaxRetries uint64

	// Registry is the provider registry for health tracking (optional).
	Registry *resilience.Registry

	// Logger for client operations.
	Logger zerolog.Logger
}

// Client is an OpenRouteService API client.
type Client struct {
	apiKey     string
	baseURL    string
	profile    string
	httpClient HTTPDoer
	logger     zerolog.Logger
}

// NewClient creates a new OpenRouteService client.
func NewClient(cfg ClientConfig) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	profile := cfg.Profile
	if profile == "" {
		profile = DefaultProfile
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		clientCfg := resilience.DefaultClientConfig(ProviderName)
		clientCfg.Timeout = timeout
		clientCfg.MaxRetries = cfg.MaxRetries
		clientCfg.Registry = cfg.Registry
		clientCfg.Logger = cfg.Logger
		httpClient = resilience.NewClient(clientCfg)
	}

	return &Client{
		apiKey:     cfg.APIKey,
		baseURL:    strings.TrimRight(baseURL, "/"),
		profile:    profile,
		httpClient: httpClient,
		logger:     cfg.Logger,
	}
}

// Name returns the engine name.
func (c *Client) Name() string {
	return ProviderName
}

// AxisOrder returns routing.LonLat: ORS coordinates are GeoJSON ordered.
func (c *Client) AxisOrder() routing.AxisOrder {
	return routing.LonLat
}

// Fetch requests a route. Endpoints must already be sanitized "lon,lat" pairs.
// A "route not found" reply is reported as routing.ErrNoRouteFound and is not returned as a body.
func (c *Client) Fetch(ctx context.Context, origin, destination string) ([]byte, error) {
	from, err := parsePoint(origin)
	if err != nil {
		return nil, &routing.Error{Provider: ProviderName, Code: "INVALID_ORIGIN", Message: "invalid origin coordinates", Err: routing.ErrInvalidCoordinates}
	}
	to, err := parsePoint(destination)
	if err != nil {
		return nil, &routing.Error{Provider: ProviderName, Code: "INVALID_DESTINATION", Message: "invalid destination coordinates", Err: routing.ErrInvalidCoordinates}
	}

	body, err := json.Marshal(orsRequest{
		Coordinates:  [][]float64{from, to},
		Instructions: false,
		Geometry:     true,
		Units:        "m",
	})
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	url := fmt.Sprintf("%s/v2/directions/%s/json", c.baseURL, c.profile)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", c.apiKey)
	}

	c.logger.Debug().
		Str("profile", c.profile).
		Str("origin", origin).
		Str("destination", destination).
		Msg("requesting directions from ORS")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, routing.RequestFailed(ProviderName, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes+1))
	if err != nil {
		return nil, routing.RequestFailed(ProviderName, err)
	}
	if len(respBody) > maxBodyBytes {
		return nil, routing.RequestFailed(ProviderName, resilience.ErrBodyTooLarge)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, c.handleErrorResponse(resp.StatusCode, respBody)
	}
	if err := routing.CheckJSON(ProviderName, respBody); err != nil {
		return nil, err
	}

	return respBody, nil
}

// handleErrorResponse maps ORS error responses to domain errors.
func (c *Client) handleErrorResponse(statusCode int, body []byte) error {
	var orsErr orsErrorResponse
	if err := json.Unmarshal(body, &orsErr); err != nil {
		return routing.StatusError(ProviderName, statusCode)
	}

	switch {
	case statusCode == http.StatusNotFound,
		orsErr.Error.Code == orsErrorCodeNotFound,
		orsErr.Error.Code == orsErrorCodePointNotFound:
		message := orsErr.Error.Message
		if message == "" {
			message = "no route found between the given points"
		}
		return &routing.Error{
			Provider: ProviderName,
			Code:     "NO_ROUTE",
			Message:  message,
			Err:      routing.ErrNoRouteFound,
		}
	case statusCode == http.StatusForbidden || statusCode == http.StatusUnauthorized:
		return &routing.Error{
			Provider: ProviderName,
			Code:     "FORBIDDEN",
			Message:  "API access denied - check API key configuration",
			Err:      routing.ErrProviderUnavailable,
		}
	case statusCode == http.StatusTooManyRequests:
		return &routing.Error{
			Provider: ProviderName,
			Code:     "RATE_LIMIT",
			Message:  "API rate limit exceeded, please try again later",
			Err:      routing.ErrProviderUnavailable,
		}
	}
	return routing.StatusError(ProviderName, statusCode)
}

// Geometry extracts the first route geometry, encoded at 1e5 precision.
func (c *Client) Geometry(body []byte) (routing.Geometry, error) {
	var r orsResponse
	if err := json.Unmarshal(body, &r); err != nil {
		return routing.Geometry{}, &routing.Error{
			Provider: ProviderName,
			Code:     "INVALID_JSON",
			Message:  "cannot decode ORS response",
			Err:      fmt.Errorf("%w: %v", routing.ErrMalformedResponse, err),
		}
	}

	if len(r.Routes) == 0 || r.Routes[0].Geometry == "" {
		return routing.Geometry{}, &routing.Error{
			Provider: ProviderName,
			Code:     "NO_ROUTE",
			Message:  "ORS response has no route geometry",
			Err:      routing.ErrNoRouteFound,
		}
	}

	return routing.Geometry{Polyline: r.Routes[0].Geometry, Precision: polyline.Precision5}, nil
}

// parsePoint turns "lon,lat" into a GeoJSON position.
func parsePoint(endpoint string) ([]float64, error) {
	lon, lat, ok := strings.Cut(endpoint, ",")
	if !ok {
		return nil, fmt.Errorf("expected lon,lat, got %q", endpoint)
	}
	x, err := strconv.ParseFloat(lon, 64)
	if err != nil {
		return nil, err
	}
	y, err := strconv.ParseFloat(lat, 64)
	if err != nil {
		return nil, err
	}
	return []float64{x, y}, nil
}

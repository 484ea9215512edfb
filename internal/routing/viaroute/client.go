// Package viaroute provides a client for the legacy OSRM "viaroute" service hosted by raildar.fr.
package viaroute

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/railtrace/railtrace/internal/provider/resilience"
	"github.com/railtrace/railtrace/internal/routing"
	"github.com/railtrace/railtrace/pkg/polyline"
)

const (
	// ProviderName identifies this routing engine.
	ProviderName = "viaroute"

	// DefaultBaseURL is the raildar OSRM engine.
	DefaultBaseURL = "http://raildar.fr/osrm-engine"

	// DefaultTimeout is the default request timeout.
	DefaultTimeout = 30 * time.Second
)

// ClientConfig holds configuration for the viaroute client.
type ClientConfig struct {
	// BaseURL is the engine base URL (optional, defaults to raildar).
	BaseURL string

	// HTTPClient is the HTTP client to use (optional).
	// If nil, uses a resilient client with defaults.
	HTTPClient routing.HTTPGetter

	// Timeout is the request timeout (optional, defaults to 30s).
	Timeout time.Duration

	// MaxRetries for transient failures (default: none).
	MaxRetries uint64

	// Registry is the provider registry for health tracking (optional).
	Registry *resilience.Registry

	// Logger for client operations.
	Logger zerolog.Logger
}

// Client is a viaroute API client.
type Client struct {
	baseURL    string
	httpClient routing.HTTPGetter
	logger     zerolog.Logger
}

// NewClient creates a new viaroute client.
func NewClient(cfg ClientConfig) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
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
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		logger:     cfg.Logger,
	}
}

// Name returns the engine name.
func (c *Client) Name() string {
	return ProviderName
}

// AxisOrder returns routing.LatLon: viaroute endpoints are "lat,lon".
func (c *Client) AxisOrder() routing.AxisOrder {
	return routing.LatLon
}

// Fetch requests a route. Endpoints must already be sanitized.
func (c *Client) Fetch(ctx context.Context, origin, destination string) ([]byte, error) {
	url := fmt.Sprintf("%s/viaroute?z=10&output=json&alt=false&loc=%s&loc=%s", c.baseURL, origin, destination)

	c.logger.Debug().
		Str("origin", origin).
		Str("destination", destination).
		Msg("requesting route from viaroute")

	resp, err := c.httpClient.Get(ctx, url)
	if err != nil {
		return nil, routing.RequestFailed(ProviderName, err)
	}
	if !routing.IsSuccess(resp.StatusCode) {
		return nil, routing.StatusError(ProviderName, resp.StatusCode)
	}
	if err := routing.CheckJSON(ProviderName, resp.Body); err != nil {
		return nil, err
	}

	return resp.Body, nil
}

// reply is the subset of the viaroute response used here.
type reply struct {
	Status        json.RawMessage `json:"status,omitempty"`
	StatusMessage string          `json:"status_message,omitempty"`
	RouteGeometry string          `json:"route_geometry"`
}

// Geometry extracts route_geometry, encoded at 1e6 precision.
func (c *Client) Geometry(body []byte) (routing.Geometry, error) {
	var r reply
	if err := json.Unmarshal(body, &r); err != nil {
		return routing.Geometry{}, &routing.Error{
			Provider: ProviderName,
			Code:     "INVALID_JSON",
			Message:  "cannot decode viaroute response",
			Err:      fmt.Errorf("%w: %v", routing.ErrMalformedResponse, err),
		}
	}

	if r.RouteGeometry == "" {
		message := r.StatusMessage
		if message == "" {
			message = "viaroute response has no route geometry"
		}
		return routing.Geometry{}, &routing.Error{
			Provider: ProviderName,
			Code:     "NO_ROUTE",
			Message:  message,
			Err:      routing.ErrNoRouteFound,
		}
	}

	return routing.Geometry{Polyline: r.RouteGeometry, Precision: polyline.Precision6}, nil
}

// Package osrm provides a client for the OSRM v5 route service.
package osrm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/railtrace/railtrace/internal/provider/resilience"
	"github.com/railtrace/railtrace/internal/routing"
	"github.com/railtrace/railtrace/pkg/polyline"
)

const (
	// ProviderName identifies this routing engine.
	ProviderName = "osrm"

	// DefaultBaseURL is a local OSRM instance.
	DefaultBaseURL = "http://localhost:5000"

	// DefaultProfile is the OSRM profile used for rail routing.
	DefaultProfile = "train"

	// DefaultTimeout is the default request timeout.
	DefaultTimeout = 30 * time.Second
)

// OSRM reply codes that mean the request was understood but no route exists.
const (
	codeOK        = "Ok"
	codeNoRoute   = "NoRoute"
	codeNoSegment = "NoSegment"
)

// ClientConfig holds configuration for the OSRM client.
type ClientConfig struct {
	// BaseURL is the OSRM server URL (optional, defaults to localhost:5000).
	BaseURL string

	// Profile is the routing profile in the URL path (optional, defaults to "train").
	Profile string

	// Precision selects polyline (1e5) or polyline6 (1e6) geometries (default: 1e5).
	Precision polyline.Precision

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

// Client is an OSRM route service client.
type Client struct {
	baseURL    string
	profile    string
	precision  polyline.Precision
	httpClient routing.HTTPGetter
	logger     zerolog.Logger
}

// NewClient creates a new OSRM client.
func NewClient(cfg ClientConfig) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	profile := cfg.Profile
	if profile == "" {
		profile = DefaultProfile
	}

	precision := cfg.Precision
	if precision != polyline.Precision6 {
		precision = polyline.Precision5
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
		profile:    profile,
		precision:  precision,
		httpClient: httpClient,
		logger:     cfg.Logger,
	}
}

// Name returns the engine name.
func (c *Client) Name() string {
	return ProviderName
}

// AxisOrder returns routing.LonLat: OSRM v5 coordinates are "lon,lat".
func (c *Client) AxisOrder() routing.AxisOrder {
	return routing.LonLat
}

func (c *Client) geometries() string {
	if c.precision == polyline.Precision6 {
		return "polyline6"
	}
	return "polyline"
}

// Fetch requests a route. Endpoints must already be sanitized.
// A 400 NoRoute/NoSegment reply is reported as routing.ErrNoRouteFound and is not returned as a body.
func (c *Client) Fetch(ctx context.Context, origin, destination string) ([]byte, error) {
	url := fmt.Sprintf("%s/route/v1/%s/%s;%s?overview=full&geometries=%s",
		c.baseURL, c.profile, origin, destination, c.geometries())

	c.logger.Debug().
		Str("origin", origin).
		Str("destination", destination).
		Str("profile", c.profile).
		Msg("requesting route from OSRM")

	resp, err := c.httpClient.Get(ctx, url)
	if err != nil {
		return nil, routing.RequestFailed(ProviderName, err)
	}

	if resp.StatusCode == http.StatusBadRequest {
		var r reply
		if json.Unmarshal(resp.Body, &r) == nil && (r.Code == codeNoRoute || r.Code == codeNoSegment) {
			return nil, &routing.Error{
				Provider: ProviderName,
				Code:     "NO_ROUTE",
				Message:  r.Message,
				Err:      routing.ErrNoRouteFound,
			}
		}
	}
	if !routing.IsSuccess(resp.StatusCode) {
		return nil, routing.StatusError(ProviderName, resp.StatusCode)
	}
	if err := routing.CheckJSON(ProviderName, resp.Body); err != nil {
		return nil, err
	}

	return resp.Body, nil
}

// reply is the subset of the OSRM route response used here.
type reply struct {
	Code    string `json:"code"`
	Message string `json:"message,omitempty"`
	Routes  []struct {
		Geometry string `json:"geometry"`
	} `json:"routes"`
}

// Geometry extracts the first route geometry.
func (c *Client) Geometry(body []byte) (routing.Geometry, error) {
	var r reply
	if err := json.Unmarshal(body, &r); err != nil {
		return routing.Geometry{}, &routing.Error{
			Provider: ProviderName,
			Code:     "INVALID_JSON",
			Message:  "cannot decode OSRM response",
			Err:      fmt.Errorf("%w: %v", routing.ErrMalformedResponse, err),
		}
	}

	switch {
	case r.Code == codeNoRoute || r.Code == codeNoSegment || (r.Code == codeOK && len(r.Routes) == 0):
		return routing.Geometry{}, &routing.Error{
			Provider: ProviderName,
			Code:     "NO_ROUTE",
			Message:  "no route found between the given points",
			Err:      routing.ErrNoRouteFound,
		}
	case r.Code != codeOK:
		return routing.Geometry{}, &routing.Error{
			Provider: ProviderName,
			Code:     r.Code,
			Message:  r.Message,
			Err:      routing.ErrMalformedResponse,
		}
	case r.Routes[0].Geometry == "":
		return routing.Geometry{}, &routing.Error{
			Provider: ProviderName,
			Code:     "NO_ROUTE",
			Message:  "OSRM route has no geometry",
			Err:      routing.ErrNoRouteFound,
		}
	}

	return routing.Geometry{Polyline: r.Routes[0].Geometry, Precision: c.precision}, nil
}

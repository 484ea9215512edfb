// Package routing resolves rail routes between two endpoints into GeoJSON features.
package routing

import (
	"context"
	"errors"

	"github.com/railtrace/railtrace/pkg/polyline"
)

// Sentinel errors for routing operations.
var (
	// ErrProviderUnavailable indicates the routing engine is down, unreachable or answered with an error status.
	ErrProviderUnavailable = errors.New("routing provider unavailable")
	// ErrNoRouteFound indicates the engine found no route between the given points.
	ErrNoRouteFound = errors.New("no route found between the given points")
	// ErrInvalidCoordinates indicates an endpoint is not a usable coordinate pair.
	ErrInvalidCoordinates = errors.New("invalid coordinates")
	// ErrInvalidEndpoint indicates an endpoint is empty once sanitized.
	ErrInvalidEndpoint = errors.New("invalid endpoint")
	// ErrMalformedResponse indicates the engine reply could not be interpreted.
	ErrMalformedResponse = errors.New("malformed routing response")
)

// AxisOrder is the coordinate order an engine expects in its endpoints.
type AxisOrder int

const (
	// LatLon endpoints are written "lat,lon".
	LatLon AxisOrder = iota
	// LonLat endpoints are written "lon,lat".
	LonLat
)

func (o AxisOrder) String() string {
	if o == LonLat {
		return "lon,lat"
	}
	return "lat,lon"
}

// Geometry is the encoded route line extracted from an engine reply.
type Geometry struct {
	Polyline  string
	Precision polyline.Precision
}

// Engine is an upstream routing service.
type Engine interface {
	// Name identifies the engine for logging, metrics and feature properties.
	Name() string
	// AxisOrder is the coordinate order Fetch expects.
	AxisOrder() AxisOrder
	// Fetch asks the engine for a route and returns the raw reply body.
	// Only replies worth caching are returned without error.
	Fetch(ctx context.Context, origin, destination string) ([]byte, error)
	// Geometry extracts the route line from a reply previously returned by Fetch.
	Geometry(body []byte) (Geometry, error)
}

// Error provides detailed error information from the routing engine.
type Error struct {
	Provider string // Engine that generated the error
	Code     string // Error code from the engine or HTTP status
	Message  string // Human-readable error message
	Err      error  // Underlying error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsRetryable returns true if the error is transient and the request can be retried.
func (e *Error) IsRetryable() bool {
	return errors.Is(e.Err, ErrProviderUnavailable)
}

package routing

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/simplify"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"github.com/railtrace/railtrace/internal/catalog"
	"github.com/railtrace/railtrace/internal/routecache"
	"github.com/railtrace/railtrace/internal/telemetry"
	"github.com/railtrace/railtrace/pkg/polyline"
)

const tracerName = "github.com/railtrace/railtrace/internal/routing"

// DefaultSimplifyTolerance is the Douglas-Peucker tolerance in degrees.
const DefaultSimplifyTolerance = 0.01

// Shape selects the GeoJSON geometry a resolved route is wrapped in.
type Shape string

const (
	// ShapePolygon wraps the route line as the single ring of a Polygon.
	ShapePolygon Shape = "polygon"
	// ShapeLineString returns the route line as a LineString.
	ShapeLineString Shape = "linestring"
)

// StationLookup finds stations by identifier.
type StationLookup interface {
	Station(id string) (*catalog.Station, bool)
}

// ResolverConfig holds configuration for the route resolver.
type ResolverConfig struct {
	// Engine is the upstream routing engine.
	Engine Engine

	// Cache stores raw engine replies.
	Cache routecache.Cache

	// Stations resolves station identifiers to coordinates. Optional.
	Stations StationLookup

	// Shape of the returned geometry (default: polygon).
	Shape Shape

	// SimplifyTolerance is used when simplification is requested (default: 0.01 degrees).
	SimplifyTolerance float64

	// Logger for resolver operations.
	Logger zerolog.Logger

	// Metrics records upstream calls and cache outcomes. Optional.
	Metrics *telemetry.RouteMetrics

	// Tracer for resolver spans (default: global tracer).
	Tracer trace.Tracer
}

// Resolver turns endpoint pairs into route features, reading through the response cache.
type Resolver struct {
	engine    Engine
	cache     routecache.Cache
	stations  StationLookup
	shape     Shape
	tolerance float64
	logger    zerolog.Logger
	metrics   *telemetry.RouteMetrics
	tracer    trace.Tracer

	inflight singleflight.Group
}

// NewResolver creates a new route resolver.
func NewResolver(cfg ResolverConfig) *Resolver {
	shape := cfg.Shape
	if shape == "" {
		shape = ShapePolygon
	}

	tolerance := cfg.SimplifyTolerance
	if tolerance <= 0 {
		tolerance = DefaultSimplifyTolerance
	}

	tracer := cfg.Tracer
	if tracer == nil {
		tracer = otel.Tracer(tracerName)
	}

	return &Resolver{
		engine:    cfg.Engine,
		cache:     cfg.Cache,
		stations:  cfg.Stations,
		shape:     shape,
		tolerance: tolerance,
		logger:    cfg.Logger,
		metrics:   cfg.Metrics,
		tracer:    tracer,
	}
}

// EngineName returns the name of the underlying engine.
func (r *Resolver) EngineName() string {
	return r.engine.Name()
}

// Resolve returns the route between two endpoints. Each endpoint is a coordinate string in
// the engine's axis order, or, when both are known station identifiers, a station id.
func (r *Resolver) Resolve(ctx context.Context, origin, destination string, simplified bool) (*geojson.Feature, error) {
	ctx, span := r.tracer.Start(ctx, "routing.Resolve",
		trace.WithAttributes(attribute.String("routing.engine", r.engine.Name())))
	defer span.End()

	feature, err := r.resolve(ctx, origin, destination, simplified)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return feature, nil
}

func (r *Resolver) resolve(ctx context.Context, origin, destination string, simplified bool) (*geojson.Feature, error) {
	origin, destination, err := r.Endpoints(origin, destination)
	if err != nil {
		return nil, err
	}

	key := routecache.Key(origin, destination)
	trace.SpanFromContext(ctx).SetAttributes(attribute.String("routing.cache_key", key))

	body, err := r.Body(ctx, key, origin, destination)
	if err != nil {
		return nil, err
	}

	geom, err := r.engine.Geometry(body)
	if err != nil {
		return nil, err
	}

	coords, err := polyline.Decode(geom.Polyline, geom.Precision)
	if err != nil {
		return nil, &Error{
			Provider: r.engine.Name(),
			Code:     "MALFORMED_GEOMETRY",
			Message:  "route geometry could not be decoded",
			Err:      fmt.Errorf("%w: %w", ErrMalformedResponse, err),
		}
	}

	line := make(orb.LineString, len(coords))
	for i, c := range coords {
		line[i] = orb.Point(c.LonLat())
	}
	if simplified {
		line = simplify.DouglasPeucker(r.tolerance).LineString(line.Clone())
	}

	var feature *geojson.Feature
	if r.shape == ShapeLineString {
		feature = geojson.NewFeature(line)
	} else {
		feature = geojson.NewFeature(orb.Polygon{orb.Ring(line)})
	}
	feature.Properties["origin"] = origin
	feature.Properties["destination"] = destination
	feature.Properties["engine"] = r.engine.Name()
	feature.Properties["points"] = len(line)
	feature.Properties["length_m"] = math.Round(polyline.Length(coords))
	feature.Properties["simplified"] = simplified

	return feature, nil
}

// Endpoints normalizes an endpoint pair: station ids are replaced by coordinates, the
// values are sanitized and corrected, then checked to be valid coordinates.
func (r *Resolver) Endpoints(origin, destination string) (string, string, error) {
	if r.stations != nil {
		from, okFrom := r.stations.Station(strings.TrimSpace(origin))
		to, okTo := r.stations.Station(strings.TrimSpace(destination))
		if okFrom && okTo {
			if !from.Located() || !to.Located() {
				return "", "", &Error{
					Provider: r.engine.Name(),
					Code:     "STATION_UNLOCATED",
					Message:  "station has no coordinates",
					Err:      ErrInvalidCoordinates,
				}
			}
			origin, destination = r.stationCoordinates(from), r.stationCoordinates(to)
		}
	}

	origin, err := r.endpoint(origin, "ORIGIN")
	if err != nil {
		return "", "", err
	}
	destination, err = r.endpoint(destination, "DESTINATION")
	if err != nil {
		return "", "", err
	}
	return origin, destination, nil
}

func (r *Resolver) endpoint(raw, role string) (string, error) {
	value := routecache.Sanitize(raw)
	if value == "" {
		return "", &Error{
			Provider: r.engine.Name(),
			Code:     "INVALID_" + role,
			Message:  "missing " + strings.ToLower(role),
			Err:      ErrInvalidEndpoint,
		}
	}

	value = CorrectKnownStation(value)

	if err := validateEndpoint(value, r.engine.AxisOrder()); err != nil {
		return "", &Error{
			Provider: r.engine.Name(),
			Code:     "INVALID_" + role,
			Message:  fmt.Sprintf("invalid %s coordinates %q", strings.ToLower(role), value),
			Err:      fmt.Errorf("%w: %v", ErrInvalidCoordinates, err),
		}
	}
	return value, nil
}

func (r *Resolver) stationCoordinates(s *catalog.Station) string {
	if r.engine.AxisOrder() == LonLat {
		return s.LonLat()
	}
	return s.LatLon()
}

// Body returns the raw engine reply for the pair, from the cache when present.
// Concurrent misses for the same key share one upstream request. The shared request
// is not tied to any caller's cancellation: a caller whose ctx ends gets ctx.Err()
// while the others keep waiting. The engine client's timeout bounds the fetch.
func (r *Resolver) Body(ctx context.Context, key, origin, destination string) ([]byte, error) {
	name := r.engine.Name()

	body, ok, err := r.cache.Get(ctx, key)
	switch {
	case err != nil:
		r.logger.Warn().Err(err).Str("cache_key", key).Msg("route cache read failed, treating as miss")
	case ok:
		r.metrics.RecordCacheHit(name)
		r.logger.Debug().Str("cache_key", key).Msg("cache hit for route")
		return body, nil
	}
	r.metrics.RecordCacheMiss(name)

	fetchCtx := context.WithoutCancel(ctx)
	ch := r.inflight.DoChan(key, func() (interface{}, error) {
		r.logger.Debug().
			Str("origin", origin).
			Str("destination", destination).
			Str("engine", name).
			Msg("fetching route from engine")

		start := time.Now()
		body, err := r.engine.Fetch(fetchCtx, origin, destination)
		r.metrics.RecordUpstream(name, time.Since(start), err)
		if err != nil {
			r.logger.Error().Err(err).
				Str("origin", origin).
				Str("destination", destination).
				Str("engine", name).
				Msg("failed to fetch route")
			return nil, err
		}

		if err := r.cache.Put(fetchCtx, key, body); err != nil {
			r.metrics.RecordPersistError(name)
			r.logger.Warn().Err(err).Str("cache_key", key).Msg("failed to persist route response")
		}
		return body, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		if res.Shared {
			r.logger.Debug().Str("cache_key", key).Msg("joined in-flight route request")
		}
		return res.Val.([]byte), nil
	}
}

// Montparnasse is published at its main hall; trains are routed from the platforms.
const (
	montparnasseLatLon          = "48.841172,2.320514"
	montparnassePlatformsLatLon = "48.839526,2.318630"
	montparnasseLonLat          = "2.320514,48.841172"
	montparnassePlatformsLonLat = "2.318630,48.839526"
)

// CorrectKnownStation replaces station coordinates that are known to route badly.
func CorrectKnownStation(endpoint string) string {
	switch endpoint {
	case montparnasseLatLon:
		return montparnassePlatformsLatLon
	case montparnasseLonLat:
		return montparnassePlatformsLonLat
	}
	return endpoint
}

// validateEndpoint checks that the endpoint holds two finite numbers within coordinate range.
func validateEndpoint(endpoint string, order AxisOrder) error {
	parts := strings.Split(endpoint, ",")
	if len(parts) != 2 {
		return fmt.Errorf("expected two comma-separated values, got %d", len(parts))
	}

	var values [2]float64
	for i, p := range parts {
		v, err := strconv.ParseFloat(p, 64)
		if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("value %q is not a number", p)
		}
		values[i] = v
	}

	lat, lon := values[0], values[1]
	if order == LonLat {
		lat, lon = values[1], values[0]
	}
	if lat < -90 || lat > 90 {
		return fmt.Errorf("latitude %f out of range [-90, 90]", lat)
	}
	if lon < -180 || lon > 180 {
		return fmt.Errorf("longitude %f out of range [-180, 180]", lon)
	}
	return nil
}

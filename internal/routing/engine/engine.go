// Package engine builds the configured upstream routing engine.
package engine

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/railtrace/railtrace/internal/config"
	"github.com/railtrace/railtrace/internal/provider/resilience"
	"github.com/railtrace/railtrace/internal/routing"
	"github.com/railtrace/railtrace/internal/routing/openrouteservice"
	"github.com/railtrace/railtrace/internal/routing/osrm"
	"github.com/railtrace/railtrace/internal/routing/viaroute"
	"github.com/railtrace/railtrace/pkg/polyline"
)

// New returns the engine named by cfg.Engine.
func New(cfg config.RoutingConfig, registry *resilience.Registry, logger zerolog.Logger) (routing.Engine, error) {
	switch cfg.Engine {
	case viaroute.ProviderName, "":
		return viaroute.NewClient(viaroute.ClientConfig{
			BaseURL:    cfg.BaseURL,
			Timeout:    cfg.Timeout,
			MaxRetries: cfg.MaxRetries,
			Registry:   registry,
			Logger:     logger,
		}), nil

	case osrm.ProviderName:
		precision, err := polyline.PrecisionFromDigits(cfg.Precision)
		if err != nil {
			return nil, err
		}
		return osrm.NewClient(osrm.ClientConfig{
			BaseURL:    cfg.BaseURL,
			Profile:    cfg.Profile,
			Precision:  precision,
			Timeout:    cfg.Timeout,
			MaxRetries: cfg.MaxRetries,
			Registry:   registry,
			Logger:     logger,
		}), nil

	case openrouteservice.ProviderName:
		return openrouteservice.NewClient(openrouteservice.ClientConfig{
			APIKey:     cfg.APIKey,
			BaseURL:    cfg.BaseURL,
			Profile:    cfg.Profile,
			Timeout:    cfg.Timeout,
			MaxRetries: cfg.MaxRetries,
			Registry:   registry,
			Logger:     logger,
		}), nil
	}
	return nil, fmt.Errorf("unknown routing engine %q", cfg.Engine)
}

// Shape maps the configured geometry name to a routing.Shape.
func Shape(name string) routing.Shape {
	if routing.Shape(name) == routing.ShapeLineString {
		return routing.ShapeLineString
	}
	return routing.ShapePolygon
}

package engine

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"

	"github.com/railtrace/railtrace/internal/config"
	"github.com/railtrace/railtrace/internal/provider/resilience"
	"github.com/railtrace/railtrace/internal/routecache"
	"github.com/railtrace/railtrace/internal/routing"
	"github.com/railtrace/railtrace/internal/routing/openrouteservice"
	"github.com/railtrace/railtrace/internal/routing/osrm"
	"github.com/railtrace/railtrace/internal/routing/viaroute"
	"github.com/railtrace/railtrace/internal/telemetry"
)

// Deps are the shared collaborators of a resolver.
type Deps struct {
	Fs       afero.Fs
	Stations routing.StationLookup
	Registry *resilience.Registry
	Metrics  *telemetry.RouteMetrics
	Logger   zerolog.Logger
}

// Built is a resolver together with a description of its cache layout.
type Built struct {
	Resolver  *routing.Resolver
	CacheTier string
	CacheDir  string
}

// CacheNamespace names the cache subdirectory for an engine setup. Replies from
// another engine, profile or precision cannot be decoded by this one, so each
// setup keeps its own files under CACHE_DIR.
func CacheNamespace(cfg config.RoutingConfig) string {
	switch cfg.Engine {
	case osrm.ProviderName:
		return fmt.Sprintf("%s-%s-p%d", osrm.ProviderName, pathSafe(cfg.Profile), cfg.Precision)
	case openrouteservice.ProviderName:
		return fmt.Sprintf("%s-%s-p5", openrouteservice.ProviderName, pathSafe(cfg.Profile))
	}
	return viaroute.ProviderName + "-p6"
}

func pathSafe(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		}
		return '_'
	}, s)
}

// NewResolver wires the configured engine behind the disk cache and, when
// cfg.Cache.MemoryEntries is positive, an in-memory LRU in front of it.
func NewResolver(cfg *config.Config, deps Deps) (*Built, error) {
	fs := deps.Fs
	if fs == nil {
		fs = afero.NewOsFs()
	}

	dir := filepath.Join(cfg.Cache.Dir, CacheNamespace(cfg.Routing))
	files, err := routecache.NewFileCache(fs, dir)
	if err != nil {
		return nil, fmt.Errorf("failed to open route cache: %w", err)
	}

	eng, err := New(cfg.Routing, deps.Registry, deps.Logger)
	if err != nil {
		return nil, err
	}

	tier := "disk"
	if cfg.Cache.MemoryEntries > 0 {
		tier = "memory+disk"
	}

	resolver := routing.NewResolver(routing.ResolverConfig{
		Engine:            eng,
		Cache:             routecache.NewTiered(files, cfg.Cache.MemoryEntries),
		Stations:          deps.Stations,
		Shape:             Shape(cfg.Routing.Geometry),
		SimplifyTolerance: cfg.Routing.SimplifyTolerance,
		Logger:            deps.Logger,
		Metrics:           deps.Metrics,
	})

	return &Built{Resolver: resolver, CacheTier: tier, CacheDir: dir}, nil
}

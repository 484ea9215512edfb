// Package main provides the entrypoint for the RailTrace API server.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"

	"github.com/railtrace/railtrace/internal/api"
	"github.com/railtrace/railtrace/internal/api/middleware"
	"github.com/railtrace/railtrace/internal/catalog"
	"github.com/railtrace/railtrace/internal/config"
	"github.com/railtrace/railtrace/internal/provider/resilience"
	"github.com/railtrace/railtrace/internal/routing/engine"
	"github.com/railtrace/railtrace/internal/search"
	"github.com/railtrace/railtrace/internal/telemetry"
)

// Version and BuildTime are set at compile time via ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	const serviceName = "railtrace-api"

	// Setup structured logging
	log := zerolog.New(os.Stdout).
		With().
		Timestamp().
		Str("service", serviceName).
		Str("version", Version).
		Logger()

	log.Info().
		Str("build_time", BuildTime).
		Msg("starting RailTrace API")

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	if level, err := zerolog.ParseLevel(cfg.Log.Level); err == nil {
		log = log.Level(level)
	}

	// Initialize OpenTelemetry
	ctx := context.Background()

	tp, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName:    serviceName,
		ServiceVersion: Version,
		Environment:    cfg.Server.Env,
		OTLPEndpoint:   cfg.Telemetry.OTLPEndpoint,
		Enabled:        cfg.Telemetry.Enabled,
		Insecure:       cfg.Telemetry.Insecure,
		SampleRatio:    cfg.Telemetry.SampleRatio,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize telemetry")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if shutdownErr := tp.Shutdown(shutdownCtx); shutdownErr != nil {
			log.Error().Err(shutdownErr).Msg("failed to shutdown telemetry")
		}
	}()

	if cfg.Telemetry.Enabled {
		log.Info().
			Str("otlp_endpoint", cfg.Telemetry.OTLPEndpoint).
			Msg("OpenTelemetry initialized")
	}

	// Initialize metrics
	metrics, err := middleware.NewMetrics(nil)
	if err != nil {
		log.Error().Err(err).Msg("failed to initialize metrics")
		os.Exit(1) //nolint:gocritic // intentional exit, telemetry cleanup is best-effort
	}
	routeMetrics, err := telemetry.NewRouteMetrics(nil)
	if err != nil {
		log.Error().Err(err).Msg("failed to initialize route metrics")
		os.Exit(1)
	}

	// The service does not listen until the station dataset is loaded.
	fs := afero.NewOsFs()
	stations, err := catalog.LoadFile(fs, cfg.Stations.Path, catalog.Options{InfoLocale: cfg.Stations.InfoLocale})
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.Stations.Path).Msg("failed to load station dataset")
	}
	log.Info().
		Int("stations", stations.Len()).
		Int("suggestable", stations.SuggestableLen()).
		Msg("station dataset loaded")

	index := search.New(stations.Suggestable(), search.DefaultOptions())

	registry := resilience.NewRegistry()
	built, err := engine.NewResolver(cfg, engine.Deps{
		Fs:       fs,
		Stations: stations,
		Registry: registry,
		Metrics:  routeMetrics,
		Logger:   log,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize route resolver")
	}
	log.Info().
		Str("engine", built.Resolver.EngineName()).
		Str("cache_dir", cfg.Cache.Dir).
		Str("cache_tier", built.CacheTier).
		Str("cache_dir", built.CacheDir).
		Msg("route resolver initialized")

	// Create router with configuration
	router := api.NewRouter(api.RouterConfig{
		Version:     Version,
		BuildTime:   BuildTime,
		Logger:      log,
		ServiceName: serviceName,
		Metrics:     metrics,
		Resolver:    built.Resolver,
		Stations:    index,
		Catalog:     stations,
		Registry:    registry,
		CacheTier:   built.CacheTier,
		HTTP:        cfg.HTTP,
	})

	// Create HTTP server. Route lookups may wait on the engine for the full routing timeout.
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.Routing.Timeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info().
			Str("addr", server.Addr).
			Msg("server listening")

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
		os.Exit(1)
	}

	log.Info().Msg("server stopped")
}

// Package api provides the HTTP API for railtrace.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/railtrace/railtrace/internal/api/handler"
	"github.com/railtrace/railtrace/internal/api/middleware"
	"github.com/railtrace/railtrace/internal/api/response"
	"github.com/railtrace/railtrace/internal/config"
	"github.com/railtrace/railtrace/internal/provider/resilience"
)

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	Version     string
	BuildTime   string
	Logger      zerolog.Logger
	ServiceName string
	Metrics     *middleware.Metrics

	Resolver  handler.RouteResolver
	Stations  handler.StationSearcher
	Catalog   handler.CatalogStats
	Registry  *resilience.Registry
	CacheTier string

	HTTP config.HTTPConfig
}

// NewRouter creates a new chi router with all API routes configured. Every route is
// served both at the root and under /api.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "railtrace-api"
	}

	// Global middleware - order matters
	r.Use(middleware.RequestID)            // Generate/propagate request ID first
	r.Use(middleware.Tracing(serviceName)) // Distributed tracing
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.Middleware()) // HTTP metrics
	}
	r.Use(middleware.Logger(cfg.Logger))                // Structured logging
	r.Use(middleware.Recovery(cfg.Logger))              // Panic recovery
	r.Use(chimiddleware.RealIP)                         // Real IP extraction
	r.Use(chimiddleware.StripSlashes)                   // /route/ == /route
	r.Use(middleware.CORS(cfg.HTTP.CORSAllowedOrigins)) // Station picker UI
	r.Use(middleware.SecurityHeaders)                   // Security headers (HSTS, CSP, etc.)
	r.Use(middleware.RequireTLS(cfg.HTTP.RequireTLS))   // TLS enforcement

	validate := validator.New()

	opsHandler := handler.NewOpsHandler(handler.OpsConfig{
		Version:   cfg.Version,
		BuildTime: cfg.BuildTime,
		Catalog:   cfg.Catalog,
		Registry:  cfg.Registry,
		CacheTier: cfg.CacheTier,
	})
	stationsHandler := handler.NewStationsHandler(cfg.Stations, validate)
	routeHandler := handler.NewRouteHandler(cfg.Resolver, validate, cfg.Logger)

	routeRateLimit := middleware.RateLimitByIP(middleware.PerMinute(cfg.HTTP.RateLimitRoute, middleware.RouteRateLimit))
	stationsRateLimit := middleware.RateLimitByIP(middleware.PerMinute(cfg.HTTP.RateLimitStations, middleware.StationsRateLimit))

	routes := func(r chi.Router) {
		r.Route("/ops", func(r chi.Router) {
			r.Get("/health", opsHandler.HealthCheck)
			r.Get("/ready", opsHandler.ReadinessCheck)
			r.Get("/status", opsHandler.SystemStatus)
		})

		r.With(stationsRateLimit).Get("/stations", stationsHandler.Search)
		r.With(routeRateLimit).Get("/route", routeHandler.Route)
	}

	routes(r)
	r.Route("/api", routes)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		response.NotFound(w, r, "no such endpoint")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		response.MethodNotAllowed(w, r)
	})

	return r
}

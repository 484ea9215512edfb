// Package config loads service configuration from the environment and an optional config file.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/afero"
	"github.com/spf13/viper"
)

// Config is the full configuration for the API server and the prewarm worker.
type Config struct {
	Server    ServerConfig
	Log       LogConfig
	Stations  StationsConfig
	Cache     CacheConfig
	Routing   RoutingConfig
	HTTP      HTTPConfig
	Telemetry TelemetryConfig
	Worker    WorkerConfig
}

type ServerConfig struct {
	Port string `validate:"required,numeric"`
	Env  string `validate:"required"`
}

type LogConfig struct {
	Level string `validate:"oneof=trace debug info warn error"`
}

type StationsConfig struct {
	Path       string `validate:"required"`
	InfoLocale string `validate:"required,alpha"`
}

// CacheConfig locates the route cache. Files live under Dir in one subdirectory
// per engine, profile and precision, so changing ROUTING_* never serves stale replies.
type CacheConfig struct {
	Dir           string `validate:"required"`
	MemoryEntries int    `validate:"gte=0"`
}

type RoutingConfig struct {
	Engine            string        `validate:"oneof=viaroute osrm openrouteservice"`
	BaseURL           string        `validate:"omitempty,url"`
	APIKey            string
	Profile           string        `validate:"required"`
	Precision         int           `validate:"oneof=5 6"`
	Timeout           time.Duration `validate:"gt=0"`
	MaxRetries        uint64
	Geometry          string  `validate:"oneof=polygon linestring"`
	SimplifyTolerance float64 `validate:"gt=0"`
}

type HTTPConfig struct {
	CORSAllowedOrigins []string
	RequireTLS         bool
	RateLimitRoute     int `validate:"gte=0"`
	RateLimitStations  int `validate:"gte=0"`
}

type TelemetryConfig struct {
	Enabled      bool
	OTLPEndpoint string `validate:"required_if=Enabled true"`
	Insecure     bool
	SampleRatio  float64 `validate:"gte=0,lte=1"`
}

type WorkerConfig struct {
	ProjectID      string
	SubscriptionID string
	Concurrency    int           `validate:"gte=1"`
	Timeout        time.Duration `validate:"gt=0"`
	HealthPort     string        `validate:"required,numeric"`
}

var defaults = map[string]any{
	"APP_PORT":                    "5001",
	"APP_ENV":                     "development",
	"LOG_LEVEL":                   "info",
	"STATIONS_PATH":               "./stations.csv",
	"STATIONS_INFO_LOCALE":        "fr",
	"CACHE_DIR":                   "./data",
	"CACHE_MEMORY_ENTRIES":        1024,
	"ROUTING_ENGINE":              "viaroute",
	"ROUTING_BASE_URL":            "",
	"ROUTING_API_KEY":             "",
	"ROUTING_PROFILE":             "train",
	"ROUTING_PRECISION":           5,
	"ROUTING_TIMEOUT":             "30s",
	"ROUTING_MAX_RETRIES":         0,
	"ROUTE_GEOMETRY":              "polygon",
	"SIMPLIFY_TOLERANCE":          0.01,
	"CORS_ALLOWED_ORIGINS":        "*",
	"REQUIRE_TLS":                 false,
	"RATE_LIMIT_ROUTE":            30,
	"RATE_LIMIT_STATIONS":         100,
	"OTEL_ENABLED":                false,
	"OTEL_EXPORTER_OTLP_ENDPOINT": "localhost:4317",
	"OTEL_EXPORTER_OTLP_INSECURE": true,
	"OTEL_TRACES_SAMPLE_RATIO":    1.0,
	"PUBSUB_PROJECT_ID":           "",
	"PUBSUB_SUBSCRIPTION":         "",
	"WORKER_CONCURRENCY":          3,
	"WORKER_TIMEOUT":              "60s",
	"WORKER_HEALTH_PORT":          "8081",
}

// Load reads configuration from the environment. When CONFIG_FILE is set, that file
// (any format viper understands) provides values the environment does not override.
func Load() (*Config, error) {
	return load(afero.NewOsFs())
}

func load(fs afero.Fs) (*Config, error) {
	v := viper.New()
	v.SetFs(fs)
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.AutomaticEnv()

	if file := v.GetString("CONFIG_FILE"); file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", file, err)
		}
	}

	cfg := &Config{
		Server: ServerConfig{
			Port: v.GetString("APP_PORT"),
			Env:  v.GetString("APP_ENV"),
		},
		Log: LogConfig{
			Level: strings.ToLower(v.GetString("LOG_LEVEL")),
		},
		Stations: StationsConfig{
			Path:       v.GetString("STATIONS_PATH"),
			InfoLocale: v.GetString("STATIONS_INFO_LOCALE"),
		},
		Cache: CacheConfig{
			Dir:           v.GetString("CACHE_DIR"),
			MemoryEntries: v.GetInt("CACHE_MEMORY_ENTRIES"),
		},
		Routing: RoutingConfig{
			Engine:            strings.ToLower(v.GetString("ROUTING_ENGINE")),
			BaseURL:           v.GetString("ROUTING_BASE_URL"),
			APIKey:            v.GetString("ROUTING_API_KEY"),
			Profile:           v.GetString("ROUTING_PROFILE"),
			Precision:         v.GetInt("ROUTING_PRECISION"),
			Timeout:           v.GetDuration("ROUTING_TIMEOUT"),
			MaxRetries:        v.GetUint64("ROUTING_MAX_RETRIES"),
			Geometry:          strings.ToLower(v.GetString("ROUTE_GEOMETRY")),
			SimplifyTolerance: v.GetFloat64("SIMPLIFY_TOLERANCE"),
		},
		HTTP: HTTPConfig{
			CORSAllowedOrigins: splitList(v.GetString("CORS_ALLOWED_ORIGINS")),
			RequireTLS:         v.GetBool("REQUIRE_TLS"),
			RateLimitRoute:     v.GetInt("RATE_LIMIT_ROUTE"),
			RateLimitStations:  v.GetInt("RATE_LIMIT_STATIONS"),
		},
		Telemetry: TelemetryConfig{
			Enabled:      v.GetBool("OTEL_ENABLED"),
			OTLPEndpoint: v.GetString("OTEL_EXPORTER_OTLP_ENDPOINT"),
			Insecure:     v.GetBool("OTEL_EXPORTER_OTLP_INSECURE"),
			SampleRatio:  v.GetFloat64("OTEL_TRACES_SAMPLE_RATIO"),
		},
		Worker: WorkerConfig{
			ProjectID:      v.GetString("PUBSUB_PROJECT_ID"),
			SubscriptionID: v.GetString("PUBSUB_SUBSCRIPTION"),
			Concurrency:    v.GetInt("WORKER_CONCURRENCY"),
			Timeout:        v.GetDuration("WORKER_TIMEOUT"),
			HealthPort:     v.GetString("WORKER_HEALTH_PORT"),
		},
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

// IsProduction reports whether the service runs in the production environment.
func (c *Config) IsProduction() bool {
	return c.Server.Env == "production"
}

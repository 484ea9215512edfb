package engine

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/railtrace/railtrace/internal/config"
	"github.com/railtrace/railtrace/internal/provider/resilience"
	"github.com/railtrace/railtrace/internal/routing"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name      string
		cfg       config.RoutingConfig
		wantName  string
		wantOrder routing.AxisOrder
	}{
		{
			name:      "viaroute",
			cfg:       config.RoutingConfig{Engine: "viaroute", Timeout: time.Second},
			wantName:  "viaroute",
			wantOrder: routing.LatLon,
		},
		{
			name:      "osrm",
			cfg:       config.RoutingConfig{Engine: "osrm", Precision: 6, Profile: "train", Timeout: time.Second},
			wantName:  "osrm",
			wantOrder: routing.LonLat,
		},
		{
			name:      "openrouteservice",
			cfg:       config.RoutingConfig{Engine: "openrouteservice", APIKey: "key", Profile: "driving-car", Timeout: time.Second},
			wantName:  "openrouteservice",
			wantOrder: routing.LonLat,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			registry := resilience.NewRegistry()

			e, err := New(tt.cfg, registry, zerolog.Nop())
			require.NoError(t, err)
			assert.Equal(t, tt.wantName, e.Name())
			assert.Equal(t, tt.wantOrder, e.AxisOrder())
			assert.NotNil(t, registry.Health(tt.wantName))
		})
	}
}

func TestNew_Errors(t *testing.T) {
	_, err := New(config.RoutingConfig{Engine: "graphhopper"}, nil, zerolog.Nop())
	assert.Error(t, err)

	_, err = New(config.RoutingConfig{Engine: "osrm", Precision: 7}, nil, zerolog.Nop())
	assert.Error(t, err)
}

func TestShape(t *testing.T) {
	assert.Equal(t, routing.ShapeLineString, Shape("linestring"))
	assert.Equal(t, routing.ShapePolygon, Shape("polygon"))
	assert.Equal(t, routing.ShapePolygon, Shape(""))
}

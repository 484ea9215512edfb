// Package handler provides HTTP handlers for the railtrace API.
package handler

import (
	"math"
	"net/http"
	"time"

	"github.com/railtrace/railtrace/internal/api/models"
	"github.com/railtrace/railtrace/internal/api/response"
	"github.com/railtrace/railtrace/internal/provider/resilience"
)

// CatalogStats reports the size of the loaded station catalog.
type CatalogStats interface {
	Len() int
	SuggestableLen() int
}

// OpsHandler handles operational endpoints.
type OpsHandler struct {
	version   string
	buildTime string
	catalog   CatalogStats
	registry  *resilience.Registry
	cacheTier string
}

// OpsConfig holds the dependencies of the ops endpoints.
type OpsConfig struct {
	Version   string
	BuildTime string
	Catalog   CatalogStats
	Registry  *resilience.Registry
	// CacheTier describes the route cache layout, e.g. "memory+disk".
	CacheTier string
}

// NewOpsHandler creates a new OpsHandler.
func NewOpsHandler(cfg OpsConfig) *OpsHandler {
	return &OpsHandler{
		version:   cfg.Version,
		buildTime: cfg.BuildTime,
		catalog:   cfg.Catalog,
		registry:  cfg.Registry,
		cacheTier: cfg.CacheTier,
	}
}

// HealthCheck handles GET /ops/health - liveness check.
func (h *OpsHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	health := models.Health{
		Status: models.HealthStatusOK,
		Time:   models.Timestamp(time.Now()),
		Details: map[string]interface{}{
			"version":   h.version,
			"buildTime": h.buildTime,
		},
	}
	response.JSON(w, r, http.StatusOK, health)
}

// ReadinessCheck handles GET /ops/ready. The service is ready once the station catalog is loaded.
func (h *OpsHandler) ReadinessCheck(w http.ResponseWriter, r *http.Request) {
	if h.catalog == nil || h.catalog.Len() == 0 {
		response.JSON(w, r, http.StatusServiceUnavailable, models.Health{
			Status: models.HealthStatusFail,
			Time:   models.Timestamp(time.Now()),
		})
		return
	}

	health := models.Health{
		Status: models.HealthStatusOK,
		Time:   models.Timestamp(time.Now()),
		Details: map[string]interface{}{
			"stations":    h.catalog.Len(),
			"suggestable": h.catalog.SuggestableLen(),
		},
	}
	response.JSON(w, r, http.StatusOK, health)
}

// SystemStatus handles GET /ops/status - routing engine and subsystem status.
func (h *OpsHandler) SystemStatus(w http.ResponseWriter, r *http.Request) {
	status := models.SystemStatus{
		Status:     models.HealthStatusOK,
		Time:       models.Timestamp(time.Now()),
		Subsystems: h.subsystems(),
		Providers:  []models.ProviderStatus{},
	}

	if h.registry != nil {
		for _, p := range h.registry.All() {
			ps := providerStatus(p)
			status.Providers = append(status.Providers, ps)
			status.Status = status.Status.Worse(ps.Status)
		}
	}
	for _, s := range status.Subsystems {
		status.Status = status.Status.Worse(s.Status)
	}

	response.JSON(w, r, http.StatusOK, status)
}

func (h *OpsHandler) subsystems() []models.SubsystemStatus {
	catalog := models.SubsystemStatus{Name: "station-catalog", Status: models.HealthStatusOK}
	if h.catalog == nil || h.catalog.Len() == 0 {
		catalog.Status = models.HealthStatusFail
	}

	cache := models.SubsystemStatus{Name: "route-cache", Status: models.HealthStatusOK}
	if h.cacheTier != "" {
		tier := h.cacheTier
		cache.Detail = &tier
	}

	return []models.SubsystemStatus{catalog, cache}
}

func providerStatus(p *resilience.ProviderHealth) models.ProviderStatus {
	ps := models.ProviderStatus{
		Provider:     p.Name,
		Status:       models.HealthStatusOK,
		CircuitState: p.CircuitState.String(),
		Requests:     p.Counts.Requests,
		Failures:     p.Counts.TotalFailures,
	}
	switch {
	case p.IsUnhealthy():
		ps.Status = models.HealthStatusFail
		ps.RetryAfterSeconds = int(math.Ceil(p.RetryAfter.Seconds()))
	case p.IsDegraded():
		ps.Status = models.HealthStatusDegraded
	}

	if p.StateChangedAt != nil {
		ts := models.Timestamp(*p.StateChangedAt)
		ps.CircuitChangedAt = &ts
	}
	if p.LastSuccessAt != nil {
		ts := models.Timestamp(*p.LastSuccessAt)
		ps.LastSuccessAt = &ts
	}
	if p.LastFailureAt != nil {
		ts := models.Timestamp(*p.LastFailureAt)
		ps.LastFailureAt = &ts
	}
	if p.LastError != "" {
		msg := p.LastError
		ps.Message = &msg
	}
	return ps
}

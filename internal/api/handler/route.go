package handler

import (
	"context"
	"errors"
	"math"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/paulmach/orb/geojson"
	"github.com/rs/zerolog"

	"github.com/railtrace/railtrace/internal/api/middleware"
	"github.com/railtrace/railtrace/internal/api/models"
	"github.com/railtrace/railtrace/internal/api/response"
	"github.com/railtrace/railtrace/internal/provider/resilience"
	"github.com/railtrace/railtrace/internal/routing"
)

// RouteResolver resolves an endpoint pair to a route feature.
type RouteResolver interface {
	Resolve(ctx context.Context, origin, destination string, simplified bool) (*geojson.Feature, error)
}

// RouteHandler handles route resolution.
type RouteHandler struct {
	resolver RouteResolver
	validate *validator.Validate
	logger   zerolog.Logger
}

// NewRouteHandler creates a new RouteHandler.
func NewRouteHandler(resolver RouteResolver, validate *validator.Validate, logger zerolog.Logger) *RouteHandler {
	return &RouteHandler{resolver: resolver, validate: validate, logger: logger}
}

// Route handles GET /route?dep=&arr=&simplify= - the rail route between two stations
// or coordinate pairs, as a GeoJSON feature.
func (h *RouteHandler) Route(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	simplify, _ := strconv.ParseBool(q.Get("simplify"))
	query := models.RouteQuery{
		Dep:      q.Get("dep"),
		Arr:      q.Get("arr"),
		Simplify: simplify,
	}

	if err := h.validate.Struct(query); err != nil {
		response.BadRequest(w, r, "dep and arr are required", fieldErrors(err, map[string]string{
			"Dep": "dep",
			"Arr": "arr",
		}))
		return
	}

	feature, err := h.resolver.Resolve(r.Context(), query.Dep, query.Arr, query.Simplify)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	w.Header().Set("Cache-Control", "public, max-age=86400")
	response.GeoJSON(w, r, http.StatusOK, feature)
}

func (h *RouteHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	traceID := middleware.GetRequestID(r.Context())

	var problem *models.Problem
	switch {
	case errors.Is(err, routing.ErrInvalidEndpoint), errors.Is(err, routing.ErrInvalidCoordinates):
		problem = models.NewBadRequest(traceID, err.Error(), nil)
	case errors.Is(err, routing.ErrNoRouteFound):
		problem = models.NewNoRoute(traceID, "no route between the requested endpoints")
	case errors.Is(err, resilience.ErrCircuitOpen):
		w.Header().Set("Retry-After", retryAfterSeconds(err))
		problem = models.NewServiceUnavailable(traceID, "routing engine temporarily unavailable")
	default:
		h.logger.Error().Err(err).Str("request_id", traceID).Msg("route resolution failed")
		problem = models.NewInternalError(traceID, "Error "+err.Error())
	}

	var rerr *routing.Error
	if errors.As(err, &rerr) {
		problem.Code = rerr.Code
	}
	response.Error(w, r, problem)
}

// retryAfterSeconds rounds the breaker's remaining open time up to whole seconds.
func retryAfterSeconds(err error) string {
	wait := resilience.DefaultOpenTimeout
	var open *resilience.CircuitOpenError
	if errors.As(err, &open) && open.RetryAfter > 0 {
		wait = open.RetryAfter
	}
	return strconv.Itoa(int(math.Ceil(wait.Seconds())))
}

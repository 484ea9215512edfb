// Package response writes JSON, GeoJSON and problem replies. Every reply echoes
// the request ID set by middleware.RequestID.
package response

import (
	"encoding/json"
	"net/http"

	"github.com/railtrace/railtrace/internal/api/middleware"
	"github.com/railtrace/railtrace/internal/api/models"
)

// ContentTypeGeoJSON is the media type of route features.
const ContentTypeGeoJSON = "application/geo+json"

// JSON writes data as application/json.
func JSON(w http.ResponseWriter, r *http.Request, status int, data interface{}) {
	write(w, r, "application/json", status, data)
}

// GeoJSON writes a route feature as application/geo+json.
func GeoJSON(w http.ResponseWriter, r *http.Request, status int, data interface{}) {
	write(w, r, ContentTypeGeoJSON, status, data)
}

func write(w http.ResponseWriter, r *http.Request, contentType string, status int, data interface{}) {
	h := w.Header()
	if requestID := middleware.GetRequestID(r.Context()); requestID != "" {
		h.Set("X-Request-Id", requestID)
	}
	h.Set("Content-Type", contentType)
	w.WriteHeader(status)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

// Error writes problem with the request path as its instance.
func Error(w http.ResponseWriter, r *http.Request, problem *models.Problem) {
	problem.Instance = r.URL.Path
	problem.Write(w)
}

// BadRequest writes a validation problem listing the rejected parameters.
func BadRequest(w http.ResponseWriter, r *http.Request, detail string, errors []models.FieldError) {
	Error(w, r, models.NewBadRequest(middleware.GetRequestID(r.Context()), detail, errors))
}

func NotFound(w http.ResponseWriter, r *http.Request, detail string) {
	Error(w, r, models.NewNotFound(middleware.GetRequestID(r.Context()), detail))
}

// MethodNotAllowed writes a 405 response. The Allow header is left to the router.
func MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	detail := r.Method + " is not supported on " + r.URL.Path
	Error(w, r, models.NewMethodNotAllowed(middleware.GetRequestID(r.Context()), detail))
}

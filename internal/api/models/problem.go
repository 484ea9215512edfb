package models

import (
	"encoding/json"
	"net/http"
)

// Problem is an RFC 7807 error body, served as application/problem+json.
type Problem struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`

	// TraceID is the request ID, also sent as X-Request-Id.
	TraceID string `json:"traceId"`

	// Code is the resolver or engine error code, such as NO_ROUTE or SERVER_502.
	Code string `json:"code,omitempty"`

	// Errors lists the rejected query parameters.
	Errors []FieldError `json:"errors,omitempty"`
}

// FieldError reports one rejected query parameter.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

const problemBase = "https://railtrace.app/problems/"

// Problem type URIs.
const (
	ProblemTypeValidation       = problemBase + "validation-error"
	ProblemTypeNoRoute          = problemBase + "no-route"
	ProblemTypeNotFound         = problemBase + "not-found"
	ProblemTypeMethodNotAllowed = problemBase + "method-not-allowed"
	ProblemTypeTLSRequired      = problemBase + "tls-required"
	ProblemTypeTooManyRequests  = problemBase + "too-many-requests"
	ProblemTypeInternal         = problemBase + "internal-error"
	ProblemTypeUnavailable      = problemBase + "service-unavailable"
)

type problemKind struct {
	typ    string
	title  string
	status int
}

var (
	validationKind       = problemKind{ProblemTypeValidation, "Validation error", http.StatusBadRequest}
	tlsRequiredKind      = problemKind{ProblemTypeTLSRequired, "TLS required", http.StatusForbidden}
	noRouteKind          = problemKind{ProblemTypeNoRoute, "No route found", http.StatusNotFound}
	notFoundKind         = problemKind{ProblemTypeNotFound, "Not found", http.StatusNotFound}
	methodNotAllowedKind = problemKind{ProblemTypeMethodNotAllowed, "Method not allowed", http.StatusMethodNotAllowed}
	tooManyRequestsKind  = problemKind{ProblemTypeTooManyRequests, "Too many requests", http.StatusTooManyRequests}
	internalKind         = problemKind{ProblemTypeInternal, "Internal server error", http.StatusInternalServerError}
	unavailableKind      = problemKind{ProblemTypeUnavailable, "Service unavailable", http.StatusServiceUnavailable}
)

func (k problemKind) new(traceID, detail string) *Problem {
	return &Problem{Type: k.typ, Title: k.title, Status: k.status, Detail: detail, TraceID: traceID}
}

// Write sends p with its status code. X-Request-Id is only set when p carries a trace ID.
func (p *Problem) Write(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/problem+json")
	if p.TraceID != "" {
		w.Header().Set("X-Request-Id", p.TraceID)
	}
	w.WriteHeader(p.Status)
	_ = json.NewEncoder(w).Encode(p)
}

// NewBadRequest reports rejected query parameters (400).
func NewBadRequest(traceID, detail string, errors []FieldError) *Problem {
	p := validationKind.new(traceID, detail)
	p.Errors = errors
	return p
}

// NewTLSRequired rejects a plain HTTP request (403).
func NewTLSRequired(traceID string) *Problem {
	return tlsRequiredKind.new(traceID, "This endpoint requires HTTPS")
}

// NewNoRoute reports an endpoint pair the engine cannot connect (404).
func NewNoRoute(traceID, detail string) *Problem { return noRouteKind.new(traceID, detail) }

// NewNotFound reports an unknown path (404).
func NewNotFound(traceID, detail string) *Problem { return notFoundKind.new(traceID, detail) }

// NewMethodNotAllowed reports a method the path does not serve (405).
func NewMethodNotAllowed(traceID, detail string) *Problem {
	return methodNotAllowedKind.new(traceID, detail)
}

// NewTooManyRequests reports an exhausted rate limit (429).
func NewTooManyRequests(traceID, detail string) *Problem {
	return tooManyRequestsKind.new(traceID, detail)
}

// NewInternalError reports an unexpected failure (500).
func NewInternalError(traceID, detail string) *Problem { return internalKind.new(traceID, detail) }

// NewServiceUnavailable reports an engine behind an open circuit (503).
func NewServiceUnavailable(traceID, detail string) *Problem {
	return unavailableKind.new(traceID, detail)
}

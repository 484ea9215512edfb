package middleware

import (
	"net/http"

	"github.com/railtrace/railtrace/internal/api/models"
)

// apiSecurityHeaders are sent on every reply. The API serves JSON only, so
// nothing may be framed, scripted or embedded. Station picker pages on other
// origins still read replies through CORS, hence the cross-origin resource policy.
var apiSecurityHeaders = [][2]string{
	{"X-Content-Type-Options", "nosniff"},
	{"X-Frame-Options", "DENY"},
	{"Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'"},
	{"Cross-Origin-Resource-Policy", "cross-origin"},
	{"Referrer-Policy", "no-referrer"},
	{"Permissions-Policy", "geolocation=(), camera=(), microphone=()"},
}

const hstsValue = "max-age=31536000; includeSubDomains"

// SecurityHeaders sets the API's security headers. Strict-Transport-Security is
// only sent on requests that arrived over HTTPS, directly or via a proxy.
func SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		for _, kv := range apiSecurityHeaders {
			h.Set(kv[0], kv[1])
		}
		if scheme(r) == "https" {
			h.Set("Strict-Transport-Security", hstsValue)
		}
		next.ServeHTTP(w, r)
	})
}

// RequireTLS rejects requests a proxy marked as plain HTTP through
// X-Forwarded-Proto. Requests without the header and /ops probes are let through.
func RequireTLS(enabled bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !enabled {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			proto := r.Header.Get("X-Forwarded-Proto")
			if proto == "" || proto == "https" || isOpsPath(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			problem := models.NewTLSRequired(GetRequestID(r.Context()))
			problem.Instance = r.URL.Path
			problem.Write(w)
		})
	}
}

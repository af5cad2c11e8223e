package middleware

import (
	"net/http"
	"strings"

	"github.com/trafficlens/trafficlens/internal/api/models"
)

// ContentTypeJSON defaults the response Content-Type to
// application/json. Handlers that write something else (problem+json,
// the geometry stream) set the header first and win.
func ContentTypeJSON(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if w.Header().Get("Content-Type") == "" {
			w.Header().Set("Content-Type", "application/json")
		}
		next.ServeHTTP(w, r)
	})
}

// RequireJSON rejects write requests that declare a non-JSON body.
// Every mutating endpoint - session exchange, settings, overrides, flag
// upserts, frame injection - takes JSON; a stray form post gets a 415
// before it reaches a handler. Requests without a Content-Type header
// pass, the decoder deals with those.
func RequireJSON(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost, http.MethodPut, http.MethodPatch:
			contentType := r.Header.Get("Content-Type")
			if contentType != "" && !strings.HasPrefix(contentType, "application/json") {
				traceID := GetRequestID(r.Context())
				problem := models.NewProblem(
					"https://api.trafficlens.io/problems/unsupported-media-type",
					"Unsupported media type",
					http.StatusUnsupportedMediaType,
					traceID,
				)
				problem.Detail = "request body must be application/json"
				problem.Instance = r.URL.Path
				problem.Write(w)
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

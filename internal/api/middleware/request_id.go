// Package middleware provides the HTTP middleware chain for the
// TrafficLens API: request correlation, auth and role checks, rate
// limiting, tracing, and the security headers the control-room
// dashboard relies on.
package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

// RequestIDHeader carries the correlation ID between the dashboard and
// the API. Inbound values are trusted as-is so a dashboard session can
// stitch its own traces across calls.
const RequestIDHeader = "X-Request-Id"

// requestIDPrefix marks IDs minted by this service, as opposed to ones
// supplied by a client.
const requestIDPrefix = "req_"

// requestIDKey is the context key for the request ID.
type requestIDKey struct{}

// RequestID ensures every request carries a correlation ID: the inbound
// header value if the client sent one, a fresh "req_"-prefixed ID
// otherwise. The ID is echoed in the response header and stored in the
// request context for the logger and the problem responses.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(RequestIDHeader)
		if requestID == "" {
			requestID = requestIDPrefix + uuid.New().String()[:22]
		}

		w.Header().Set(RequestIDHeader, requestID)

		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetRequestID retrieves the request ID from the context, or "" when
// the request never passed through RequestID.
func GetRequestID(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey{}).(string); ok {
		return id
	}
	return ""
}

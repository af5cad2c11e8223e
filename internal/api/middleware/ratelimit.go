package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/httprate"

	"github.com/trafficlens/trafficlens/internal/api/models"
)

// RateLimitConfig holds one rate-limit category: a request budget per
// rolling window.
type RateLimitConfig struct {
	RequestLimit int
	WindowLength time.Duration
}

// Rate-limit categories per endpoint class. Telemetry polling is the
// hot path and gets headroom for a 2 Hz dashboard; geometry responses
// and network reloads are the expensive ones and are limited hardest
// after the session exchange.
var (
	// SessionRateLimit applies to the token exchange (10 req/min).
	SessionRateLimit = RateLimitConfig{
		RequestLimit: 10,
		WindowLength: time.Minute,
	}

	// GeometryRateLimit applies to lane-geometry reads and network
	// reloads (30 req/min). A geometry payload for a large scenario runs
	// to megabytes.
	GeometryRateLimit = RateLimitConfig{
		RequestLimit: 30,
		WindowLength: time.Minute,
	}

	// TelemetryRateLimit applies to the polling endpoints: vehicles,
	// signals, congestion, the emergency feed and settings (120 req/min).
	TelemetryRateLimit = RateLimitConfig{
		RequestLimit: 120,
		WindowLength: time.Minute,
	}

	// AdminRateLimit applies to flag management and other admin
	// operations (60 req/min).
	AdminRateLimit = RateLimitConfig{
		RequestLimit: 60,
		WindowLength: time.Minute,
	}
)

// RateLimitByIP limits by client IP, as extracted by chi's RealIP
// middleware. Used on the unauthenticated surface.
func RateLimitByIP(cfg RateLimitConfig) func(http.Handler) http.Handler {
	return httprate.Limit(
		cfg.RequestLimit,
		cfg.WindowLength,
		httprate.WithKeyFuncs(httprate.KeyByRealIP),
		httprate.WithLimitHandler(limitExceededHandler(cfg)),
	)
}

// RateLimitByOperator limits by the authenticated operator ID so a
// control room behind one NAT does not share a single budget. Requests
// without an operator in context fall back to the client IP.
func RateLimitByOperator(cfg RateLimitConfig) func(http.Handler) http.Handler {
	return httprate.Limit(
		cfg.RequestLimit,
		cfg.WindowLength,
		httprate.WithKeyFuncs(keyByOperatorOrIP),
		httprate.WithLimitHandler(limitExceededHandler(cfg)),
	)
}

func keyByOperatorOrIP(r *http.Request) (string, error) {
	if operatorID := GetUserID(r.Context()); operatorID != "" {
		return "op:" + operatorID, nil
	}
	return httprate.KeyByRealIP(r)
}

// limitExceededHandler writes the RFC 7807 response for a tripped
// limit. httprate does not expose the window's reset time, so
// Retry-After advertises the full window, the latest a slot can free
// up.
func limitExceededHandler(cfg RateLimitConfig) http.HandlerFunc {
	retryAfter := strconv.Itoa(int(cfg.WindowLength.Seconds()))
	return func(w http.ResponseWriter, r *http.Request) {
		traceID := GetRequestID(r.Context())

		problem := models.NewTooManyRequests(traceID, "Rate limit exceeded. Please try again later.")
		problem.Instance = r.URL.Path

		w.Header().Set("Retry-After", retryAfter)
		problem.Write(w)
	}
}

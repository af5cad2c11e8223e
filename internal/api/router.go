// Package api provides the HTTP API for TrafficLens.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/trafficlens/trafficlens/internal/api/handler"
	"github.com/trafficlens/trafficlens/internal/api/middleware"
	"github.com/trafficlens/trafficlens/internal/api/response"
	"github.com/trafficlens/trafficlens/internal/auth"
	"github.com/trafficlens/trafficlens/internal/emergency"
	"github.com/trafficlens/trafficlens/internal/featureflags"
	"github.com/trafficlens/trafficlens/internal/ingest"
	"github.com/trafficlens/trafficlens/internal/resilience"
	"github.com/trafficlens/trafficlens/internal/settings"
)

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	Version     string
	BuildTime   string
	Logger      zerolog.Logger
	ServiceName string
	Metrics     *middleware.Metrics

	// AllowedOrigins is the CORS allowlist for the dashboard. Empty
	// disables cross-origin access.
	AllowedOrigins []string

	// SessionSharedKey gates access token issuance. Empty disables the
	// session endpoint's exchanges entirely.
	SessionSharedKey string

	JWTService         *auth.JWTService
	Pipeline           *ingest.Service
	EmergencyFeed      *emergency.FeedClient
	SettingsService    *settings.Service
	Control            handler.ControlSender
	FeatureFlagService *featureflags.Service
	Registry           *resilience.Registry
}

// NewRouter creates a new chi router with all API routes configured.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	// Set default service name if not provided
	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "trafficlens-api"
	}

	// Global middleware - order matters
	r.Use(middleware.RequestID)            // Generate/propagate request ID first
	r.Use(middleware.Tracing(serviceName)) // Distributed tracing
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.Middleware()) // HTTP metrics
	}
	r.Use(middleware.Logger(cfg.Logger))   // Structured logging
	r.Use(middleware.Recovery(cfg.Logger)) // Panic recovery
	r.Use(chimiddleware.RealIP)            // Real IP extraction
	if len(cfg.AllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   cfg.AllowedOrigins,
			AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
			AllowCredentials: false,
			MaxAge:           300,
		}))
	}
	r.Use(middleware.SecurityHeaders) // Security headers (HSTS, CSP, etc.)
	r.Use(middleware.RequireTLS)      // TLS enforcement (enabled via REQUIRE_TLS=true)
	r.Use(middleware.ContentTypeJSON) // JSON content type
	r.Use(middleware.RequireJSON)     // 415 for non-JSON write bodies

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		response.NotFound(w, req, "no such route")
	})

	// Initialize handlers
	opsHandler := handler.NewOpsHandler(cfg.Version, cfg.BuildTime, cfg.Pipeline, cfg.Registry)
	sessionHandler := handler.NewSessionHandler(cfg.JWTService, cfg.SessionSharedKey)
	networkHandler := handler.NewNetworkHandler(cfg.Pipeline)
	telemetryHandler := handler.NewTelemetryHandler(cfg.Pipeline)
	emergencyHandler := handler.NewEmergencyHandler(cfg.EmergencyFeed)
	settingsHandler := handler.NewSettingsHandler(cfg.SettingsService, cfg.Control)
	featureFlagsHandler := handler.NewFeatureFlagsHandler(cfg.FeatureFlagService)

	// Create auth middleware
	authMiddleware := middleware.Auth(cfg.JWTService)

	// Rate limits per endpoint category. The session exchange is keyed
	// by IP (no operator yet); everything behind auth is keyed by
	// operator so a shared NAT does not starve a control room.
	sessionRateLimit := middleware.RateLimitByIP(middleware.SessionRateLimit)
	geometryRateLimit := middleware.RateLimitByOperator(middleware.GeometryRateLimit)
	telemetryRateLimit := middleware.RateLimitByOperator(middleware.TelemetryRateLimit)
	adminRateLimit := middleware.RateLimitByOperator(middleware.AdminRateLimit)

	// API v1 routes
	r.Route("/v1", func(r chi.Router) {
		// Session endpoint (public) - strict rate limiting
		r.With(sessionRateLimit).Post("/session", sessionHandler.CreateSession)

		// Ops endpoints (public)
		r.Route("/ops", func(r chi.Router) {
			r.Get("/health", opsHandler.HealthCheck)
			r.Get("/ready", opsHandler.ReadinessCheck)
			// Status endpoint requires authentication
			r.With(authMiddleware).Get("/status", opsHandler.SystemStatus)
		})

		// Network endpoints (authenticated)
		r.Route("/network", func(r chi.Router) {
			r.Use(authMiddleware)
			r.With(telemetryRateLimit).Get("/", networkHandler.GetNetwork)
			r.With(telemetryRateLimit).Get("/edges", networkHandler.ListEdges)
			r.With(telemetryRateLimit).Get("/junctions", networkHandler.ListJunctions)
			// Geometry responses are large; limit harder
			r.With(geometryRateLimit).Get("/geometry", networkHandler.GetGeometry)
			// Reload re-fetches and re-parses the document
			r.With(middleware.RequireOperator, geometryRateLimit).
				Post("/reload", networkHandler.ReloadNetwork)
		})

		// Telemetry endpoints (authenticated) - per-operator rate limiting
		r.Route("/telemetry", func(r chi.Router) {
			r.Use(authMiddleware)
			r.Use(telemetryRateLimit)
			r.Get("/vehicles", telemetryHandler.ListVehicles)
			r.Get("/signals", telemetryHandler.ListSignals)
			r.Get("/congestion", telemetryHandler.GetCongestion)
		})

		// Emergency feed endpoints (authenticated)
		r.Route("/emergency", func(r chi.Router) {
			r.Use(authMiddleware)
			r.Use(telemetryRateLimit)
			r.Get("/vehicles", emergencyHandler.ListVehicles)
			r.Get("/routes", emergencyHandler.ListRoutes)
			r.With(middleware.RequireOperator).Post("/routes/request", emergencyHandler.RequestRoute)

			// Synthetic frame injection for drills and demos
			r.Route("/dev", func(r chi.Router) {
				r.Use(middleware.RequireAdmin)
				r.Post("/vehicles", emergencyHandler.InjectVehicles)
				r.Post("/routes", emergencyHandler.InjectRoutes)
			})
		})

		// Settings endpoints (authenticated) - per-operator rate limiting
		r.Route("/settings", func(r chi.Router) {
			r.Use(authMiddleware)
			r.Use(telemetryRateLimit)
			r.Get("/", settingsHandler.GetSettings)
			r.Put("/", settingsHandler.UpdateSettings)
			r.With(middleware.RequireOperator).Post("/override", settingsHandler.OverrideIntersection)
			r.With(middleware.RequireAdmin).Get("/audit", settingsHandler.ListAudit)
		})

		// Admin endpoints (authenticated) - for internal operations
		r.Route("/admin", func(r chi.Router) {
			r.Use(authMiddleware)
			r.Use(middleware.RequireAdmin)
			r.Use(adminRateLimit)

			// Feature flags management
			r.Route("/flags", func(r chi.Router) {
				r.Get("/", featureFlagsHandler.ListFeatureFlags)
				r.Put("/{key}", featureFlagsHandler.UpsertFeatureFlag)
				r.Post("/invalidate", featureFlagsHandler.InvalidateCache)
			})
		})
	})

	return r
}

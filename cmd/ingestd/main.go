// Package main provides the entrypoint for the TrafficLens ingest daemon.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/trafficlens/trafficlens/internal/api"
	"github.com/trafficlens/trafficlens/internal/api/middleware"
	"github.com/trafficlens/trafficlens/internal/auth"
	"github.com/trafficlens/trafficlens/internal/congestion"
	"github.com/trafficlens/trafficlens/internal/database"
	"github.com/trafficlens/trafficlens/internal/emergency"
	"github.com/trafficlens/trafficlens/internal/featureflags"
	"github.com/trafficlens/trafficlens/internal/ingest"
	"github.com/trafficlens/trafficlens/internal/netcache"
	"github.com/trafficlens/trafficlens/internal/network"
	"github.com/trafficlens/trafficlens/internal/observability"
	"github.com/trafficlens/trafficlens/internal/resilience"
	"github.com/trafficlens/trafficlens/internal/settings"
	"github.com/trafficlens/trafficlens/internal/stream"
	"github.com/trafficlens/trafficlens/internal/worker"
)

// Version and BuildTime are set at compile time via ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	const serviceName = "trafficlens-ingestd"

	// Local development convenience; ignored when no .env file exists.
	_ = godotenv.Load()

	// Setup structured logging
	log := zerolog.New(os.Stdout).
		With().
		Timestamp().
		Str("service", serviceName).
		Str("version", Version).
		Logger()

	log.Info().
		Str("build_time", BuildTime).
		Msg("starting TrafficLens ingest daemon")

	// Get configuration from environment
	port := envOr("APP_PORT", "8080")
	env := envOr("APP_ENV", "development")
	otlpEndpoint := envOr("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317")

	documentURL := os.Getenv("NETWORK_DOCUMENT_URL")
	if documentURL == "" {
		log.Fatal().Msg("NETWORK_DOCUMENT_URL is required")
	}

	// Initialize OpenTelemetry
	ctx := context.Background()
	telemetryEnabled := os.Getenv("OTEL_ENABLED") == "true"

	provider, err := observability.Init(ctx, observability.Config{
		ServiceName:    serviceName,
		ServiceVersion: Version,
		Environment:    env,
		OTLPEndpoint:   otlpEndpoint,
		Enabled:        telemetryEnabled,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize telemetry")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if shutdownErr := provider.Shutdown(shutdownCtx); shutdownErr != nil {
			log.Error().Err(shutdownErr).Msg("failed to shutdown telemetry")
		}
	}()

	if telemetryEnabled {
		log.Info().
			Str("otlp_endpoint", otlpEndpoint).
			Msg("OpenTelemetry initialized")
	}

	// Initialize metrics
	metrics, err := middleware.NewMetrics()
	if err != nil {
		log.Error().Err(err).Msg("failed to initialize metrics")
		os.Exit(1) //nolint:gocritic // intentional exit, telemetry cleanup is best-effort
	}

	pipelineMetrics, err := observability.NewPipelineMetrics(provider.Meter)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize pipeline metrics")
	}

	// Flag and settings repositories live in Postgres; DB_DISABLED=true
	// swaps in in-memory repositories for transportless local runs.
	var flagRepo featureflags.Repository
	var settingsRepo settings.Repository
	if os.Getenv("DB_DISABLED") == "true" {
		log.Warn().Msg("database disabled - flags and settings are in-memory only")
		flagRepo = featureflags.NewInMemoryRepository()
		settingsRepo = settings.NewInMemoryRepository()
	} else {
		dbConfig := database.ConfigFromEnv()
		pool, connErr := database.Connect(ctx, dbConfig)
		if connErr != nil {
			log.Fatal().Err(connErr).Msg("failed to connect to database")
		}
		defer pool.Close()
		log.Info().
			Str("host", dbConfig.Host).
			Int("port", dbConfig.Port).
			Str("database", dbConfig.Database).
			Msg("database connected")

		flagRepo = featureflags.NewPostgresRepository(pool)
		settingsRepo = settings.NewPostgresRepository(pool)
	}

	ffService := featureflags.NewService(featureflags.ServiceConfig{
		Repository: flagRepo,
		Logger:     log,
		CacheTTL:   1 * time.Minute,
	})
	log.Info().Msg("feature flags service initialized")

	settingsService := settings.NewService(settings.ServiceConfig{
		Repository: settingsRepo,
		Logger:     log,
	})
	log.Info().Msg("settings service initialized")

	// Initialize JWT service (get signing key from environment)
	jwtSigningKey := os.Getenv("JWT_SIGNING_KEY")
	if jwtSigningKey == "" {
		jwtSigningKey = "local-dev-signing-key-change-in-production"
		log.Warn().Msg("using default JWT signing key - not secure for production")
	}

	jwtService := auth.NewJWTService(auth.JWTConfig{
		SigningKey: jwtSigningKey,
		Issuer:     "https://api.trafficlens.io",
		Audience:   "trafficlens-api",
	})

	sessionSharedKey := os.Getenv("SESSION_SHARED_KEY")
	if sessionSharedKey == "" {
		log.Warn().Msg("SESSION_SHARED_KEY not set - session endpoint disabled")
	}

	// Upstream health registry, shared by fetcher and snapshot client
	registry := resilience.NewRegistry()

	// Network document pipeline: fetcher, parsers, cache
	fetcher := network.NewFetcher(network.FetcherConfig{
		Registry: registry,
		Logger:   log,
	})

	interpreted := network.NewInterpretedParser(log)
	var accelerated network.Parser
	if accelPath := os.Getenv("NETWORK_ACCEL_PARSER"); accelPath != "" {
		accelerated = network.NewAcceleratedParser(accelPath, log)
		log.Info().Str("path", accelPath).Msg("accelerated parser enabled")
	}
	parser := network.NewCompositeParser(network.CompositeConfig{
		Accelerated: accelerated,
		Interpreted: interpreted,
		Offload:     true,
		Logger:      log,
	})

	var cache *netcache.Cache
	cachePath := envOr("NETCACHE_PATH", "netcache.db")
	cache, err = netcache.Open(netcache.Config{
		Path:   cachePath,
		Logger: log,
	})
	if err != nil {
		log.Warn().Err(err).Str("path", cachePath).
			Msg("network cache unavailable - every reload will fetch and parse")
		cache = nil
	} else {
		defer cache.Close()
	}

	classifier := congestion.New(congestion.Config{Logger: log})

	// Live telemetry channel
	channel := stream.NewChannel(stream.Config{
		Transport: newTransport(log, "STREAM"),
		Streams:   []string{stream.KindNet, stream.KindVehicle, stream.KindSignal},
		OnUpdate: func() {
			pipelineMetrics.RecordFrame(context.Background(), "telemetry")
		},
		Logger: log,
	})

	// Emergency feed: separate transport, snapshot bootstrap behind flag
	var snapshots *emergency.SnapshotClient
	if snapshotURL := os.Getenv("EMERGENCY_SNAPSHOT_URL"); snapshotURL != "" {
		snapshots = emergency.NewSnapshotClient(emergency.SnapshotConfig{
			BaseURL:  snapshotURL,
			Registry: registry,
			Logger:   log,
		})
	}
	feed := emergency.NewFeedClient(emergency.FeedConfig{
		Transport: newTransport(log, "EMERGENCY_STREAM"),
		Snapshots: snapshots,
		Flags:     ffService,
		Logger:    log,
	})

	pipeline := ingest.New(ingest.Config{
		DocumentURL: documentURL,
		Fetcher:     fetcher,
		Parser:      parser,
		Interpreted: interpreted,
		Cache:       cache,
		Channel:     channel,
		Classifier:  classifier,
		Flags:       ffService,
		Metrics:     pipelineMetrics,
		Logger:      log,
	})

	// Load the network model before serving. Failure is tolerated: the
	// readiness endpoint reports it and the maintenance job retries.
	if err := pipeline.LoadNetwork(ctx); err != nil {
		log.Error().Err(err).Msg("initial network load failed")
	}

	// Connect telemetry streams. The channel keeps serving last-known
	// state while disconnected.
	go func() {
		if err := channel.Connect(ctx); err != nil {
			log.Error().Err(err).Msg("telemetry channel connect failed")
		}
	}()
	go func() {
		if err := feed.Connect(ctx); err != nil {
			log.Error().Err(err).Msg("emergency feed connect failed")
		}
	}()

	// Periodic maintenance: cache pruning and scheduled model refresh
	maintenanceJob := worker.NewMaintenanceJob(worker.MaintenanceJobConfig{
		Config: worker.MaintenanceConfig{
			NetworkStaleAfter: durationEnvOr("NETWORK_REFRESH_AFTER", time.Hour),
		},
		Logger:   log,
		Pipeline: pipeline,
		Cache:    cache,
		Flags:    ffService,
	})
	maintenanceCtx, stopMaintenance := context.WithCancel(ctx)
	defer stopMaintenance()
	if interval := durationEnvOr("MAINTENANCE_INTERVAL", 15*time.Minute); interval > 0 {
		go runMaintenance(maintenanceCtx, log, maintenanceJob, interval)
	}

	// An external scheduler can also trigger runs over Pub/Sub.
	if sub := os.Getenv("MAINTENANCE_SUBSCRIPTION"); sub != "" {
		pubsubHandler, psErr := worker.NewPubSubHandler(ctx, worker.PubSubConfig{
			ProjectID:        os.Getenv("PUBSUB_PROJECT_ID"),
			SubscriptionName: sub,
			MaintenanceJob:   maintenanceJob,
			Logger:           log,
		})
		if psErr != nil {
			log.Fatal().Err(psErr).Msg("failed to create maintenance pubsub handler")
		}
		defer func() {
			if closeErr := pubsubHandler.Close(); closeErr != nil {
				log.Error().Err(closeErr).Msg("closing maintenance pubsub handler")
			}
		}()
		go func() {
			if err := pubsubHandler.Start(maintenanceCtx); err != nil {
				log.Error().Err(err).Msg("maintenance pubsub handler stopped")
			}
		}()
	}

	// Create router with configuration
	router := api.NewRouter(api.RouterConfig{
		Version:            Version,
		BuildTime:          BuildTime,
		Logger:             log,
		ServiceName:        serviceName,
		Metrics:            metrics,
		AllowedOrigins:     splitEnv("CORS_ALLOWED_ORIGINS"),
		SessionSharedKey:   sessionSharedKey,
		JWTService:         jwtService,
		Pipeline:           pipeline,
		EmergencyFeed:      feed,
		SettingsService:    settingsService,
		Control:            channel,
		FeatureFlagService: ffService,
		Registry:           registry,
	})

	// Create HTTP server
	server := &http.Server{
		Addr:         ":" + port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info().
			Str("addr", server.Addr).
			Msg("server listening")

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")
	stopMaintenance()
	feed.Disconnect()
	if err := channel.Close(); err != nil {
		log.Error().Err(err).Msg("closing telemetry channel")
	}

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
		os.Exit(1)
	}

	log.Info().Msg("server stopped")
}

// newTransport builds a stream transport from environment variables
// under the given prefix: <prefix>_TRANSPORT selects websocket (default)
// or pubsub.
func newTransport(log zerolog.Logger, prefix string) stream.Transport {
	switch envOr(prefix+"_TRANSPORT", "websocket") {
	case "pubsub":
		return stream.NewPubSubTransport(stream.PubSubConfig{
			ProjectID:        os.Getenv("PUBSUB_PROJECT_ID"),
			SubscriptionName: os.Getenv(prefix + "_SUBSCRIPTION"),
			RequestTopic:     os.Getenv(prefix + "_REQUEST_TOPIC"),
			Logger:           log,
		})
	default:
		return stream.NewWebSocketTransport(stream.WebSocketConfig{
			URL:    os.Getenv(prefix + "_URL"),
			Logger: log,
		})
	}
}

func runMaintenance(ctx context.Context, log zerolog.Logger, job *worker.MaintenanceJob, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			result := job.Run(ctx)
			if result.Failed > 0 {
				log.Warn().
					Int("failed", result.Failed).
					Msg("maintenance run had failures")
			}
		}
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func durationEnvOr(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

func splitEnv(key string) []string {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

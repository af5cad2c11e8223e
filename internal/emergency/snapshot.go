package emergency

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/trafficlens/trafficlens/internal/resilience"
)

// SnapshotClientName identifies the snapshot client for circuit breaker
// naming.
const SnapshotClientName = "emergency-snapshot"

// HTTPDoer is an interface for executing HTTP requests.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// SnapshotConfig holds configuration for the snapshot client.
type SnapshotConfig struct {
	// BaseURL is the emergency API base, e.g. "https://ops.example.com/api".
	BaseURL string

	// HTTPClient is the HTTP client to use (optional).
	// If nil, uses a resilient client with defaults.
	HTTPClient HTTPDoer

	// Registry is the upstream registry for health tracking (optional).
	Registry *resilience.Registry

	Logger zerolog.Logger
}

// SnapshotClient fetches the one-shot emergency snapshot used to seed
// the feed before streaming begins.
type SnapshotClient struct {
	baseURL    string
	httpClient HTTPDoer
	logger     zerolog.Logger
}

// NewSnapshotClient creates a snapshot client.
func NewSnapshotClient(cfg SnapshotConfig) *SnapshotClient {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		clientCfg := resilience.DefaultClientConfig(SnapshotClientName)
		if cfg.Registry != nil {
			clientCfg.Registry = cfg.Registry
		}
		httpClient = resilience.NewClient(clientCfg)
	}

	return &SnapshotClient{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: httpClient,
		logger:     cfg.Logger,
	}
}

// Fetch retrieves the current snapshot.
func (c *SnapshotClient) Fetch(ctx context.Context) (*Snapshot, error) {
	url := c.baseURL + "/emergency/snapshot"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating snapshot request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching emergency snapshot: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("emergency snapshot returned status %d: %s", resp.StatusCode, string(body))
	}

	var snap Snapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		return nil, fmt.Errorf("decoding emergency snapshot: %w", err)
	}

	c.logger.Debug().
		Int("vehicles", len(snap.Vehicles)).
		Int("routes", len(snap.Routes)).
		Msg("emergency snapshot fetched")

	return &snap, nil
}

package network

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/trafficlens/trafficlens/internal/resilience"
)

// FetcherName identifies the document fetcher for circuit breaker naming.
const FetcherName = "network-document"

// HTTPDoer is an interface for executing HTTP requests.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// FetcherConfig holds configuration for the document fetcher.
type FetcherConfig struct {
	// HTTPClient is the HTTP client to use (optional).
	// If nil, uses a resilient client with defaults.
	HTTPClient HTTPDoer

	// Timeout is the per-request timeout (optional). Documents can be
	// tens of megabytes, so the default is 60s.
	Timeout time.Duration

	// Registry is the provider registry for health tracking (optional).
	Registry *resilience.Registry

	Logger zerolog.Logger
}

// Fetcher retrieves raw network documents over HTTP. Every request
// carries a cache-busting query parameter so intermediate caches never
// serve a stale document; a failed first attempt is retried once with
// explicit no-cache directives before a FetchError surfaces.
type Fetcher struct {
	httpClient HTTPDoer
	logger     zerolog.Logger
}

// NewFetcher creates a document fetcher.
func NewFetcher(cfg FetcherConfig) *Fetcher {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		clientCfg := resilience.DefaultClientConfig(FetcherName)
		clientCfg.Timeout = timeout
		if cfg.Registry != nil {
			clientCfg.Registry = cfg.Registry
		}
		httpClient = resilience.NewClient(clientCfg)
	}

	return &Fetcher{
		httpClient: httpClient,
		logger:     cfg.Logger,
	}
}

// Fetch retrieves the document at rawURL and returns its body text.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (string, error) {
	body, status, err := f.attempt(ctx, rawURL, false)
	if err == nil {
		return body, nil
	}

	f.logger.Warn().
		Err(err).
		Int("status", status).
		Str("url", rawURL).
		Msg("document fetch failed, retrying with no-cache directives")

	body, status, err = f.attempt(ctx, rawURL, true)
	if err != nil {
		return "", &FetchError{URL: rawURL, StatusCode: status, Err: err}
	}
	return body, nil
}

func (f *Fetcher) attempt(ctx context.Context, rawURL string, noCache bool) (string, int, error) {
	busted, err := appendCacheBuster(rawURL)
	if err != nil {
		return "", 0, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, busted, nil)
	if err != nil {
		return "", 0, err
	}
	if noCache {
		req.Header.Set("Cache-Control", "no-cache")
		req.Header.Set("Pragma", "no-cache")
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return "", 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", resp.StatusCode, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", resp.StatusCode, fmt.Errorf("reading response body: %w", err)
	}
	return string(body), resp.StatusCode, nil
}

// appendCacheBuster adds a t=<nanos> query parameter so each fetch defeats
// intermediate caching.
func appendCacheBuster(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("invalid document url: %w", err)
	}
	q := u.Query()
	q.Set("t", strconv.FormatInt(time.Now().UnixNano(), 10))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

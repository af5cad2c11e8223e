package network

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetchAppendsCacheBuster(t *testing.T) {
	var seen []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = append(seen, r.URL.Query().Get("t"))
		_, _ = w.Write([]byte("<net/>"))
	}))
	defer server.Close()

	fetcher := NewFetcher(FetcherConfig{HTTPClient: http.DefaultClient, Logger: zerolog.Nop()})

	body, err := fetcher.Fetch(context.Background(), server.URL+"/net.xml")
	require.NoError(t, err)
	assert.Equal(t, "<net/>", body)
	require.Len(t, seen, 1)
	assert.NotEmpty(t, seen[0], "cache-busting parameter must be present")

	_, err = fetcher.Fetch(context.Background(), server.URL+"/net.xml")
	require.NoError(t, err)
	require.Len(t, seen, 2)
	assert.NotEqual(t, seen[0], seen[1], "each fetch busts caches independently")
}

func TestFetchRetriesWithNoCacheDirectives(t *testing.T) {
	attempt := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempt++
		if attempt == 1 {
			assert.Empty(t, r.Header.Get("Cache-Control"))
			http.Error(w, "stale gateway", http.StatusBadGateway)
			return
		}
		assert.Equal(t, "no-cache", r.Header.Get("Cache-Control"))
		assert.Equal(t, "no-cache", r.Header.Get("Pragma"))
		_, _ = w.Write([]byte("<net/>"))
	}))
	defer server.Close()

	fetcher := NewFetcher(FetcherConfig{HTTPClient: http.DefaultClient, Logger: zerolog.Nop()})

	body, err := fetcher.Fetch(context.Background(), server.URL)
	require.NoError(t, err)
	assert.Equal(t, "<net/>", body)
	assert.Equal(t, 2, attempt)
}

func TestFetchErrorAfterRetry(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer server.Close()

	fetcher := NewFetcher(FetcherConfig{HTTPClient: http.DefaultClient, Logger: zerolog.Nop()})

	_, err := fetcher.Fetch(context.Background(), server.URL)
	require.Error(t, err)

	var fetchErr *FetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.Equal(t, http.StatusNotFound, fetchErr.StatusCode)
	assert.Equal(t, server.URL, fetchErr.URL)
}

func TestFetchInvalidURL(t *testing.T) {
	fetcher := NewFetcher(FetcherConfig{HTTPClient: http.DefaultClient, Logger: zerolog.Nop()})
	_, err := fetcher.Fetch(context.Background(), "http://\x7f invalid")
	require.Error(t, err)
}

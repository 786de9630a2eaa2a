// ABOUTME: Tests for bot provider metadata lookup
// ABOUTME: Covers widget config decoding, auth header, and failure responses

package client

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/streamchat/internal/config"
)

func metadataServer(t *testing.T, status int, body any) (*httptest.Server, <-chan http.Header) {
	t.Helper()
	seen := make(chan http.Header, 8)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/metadata" || r.Method != http.MethodGet {
			http.NotFound(w, r)
			return
		}
		seen <- r.Header.Clone()
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(body)
	}))
	t.Cleanup(srv.Close)
	return srv, seen
}

func TestFetchMetadata(t *testing.T) {
	srv, seen := metadataServer(t, http.StatusOK, map[string]any{
		"name": "movie-bot",
		"annotations": map[string]string{
			WidgetConfigAnnotation: `{"theme":{"primary":"#ff0000"},"title":"Movies"}`,
			"other":                "x",
		},
	})
	c := newTestClient(t, testConfig(srv.URL))

	md, err := c.FetchMetadata(t.Context())
	require.NoError(t, err)

	assert.Equal(t, "movie-bot", md.Name)
	assert.Equal(t, "x", md.Annotations["other"])
	assert.Equal(t, "Movies", md.Config["title"])
	assert.Equal(t, map[string]any{"primary": "#ff0000"}, md.Config["theme"])
	assert.Equal(t, "key-1", (<-seen).Get("X-API-KEY"))
}

func TestFetchMetadata_InvalidWidgetConfigDegrades(t *testing.T) {
	srv, _ := metadataServer(t, http.StatusOK, map[string]any{
		"name":        "movie-bot",
		"annotations": map[string]string{WidgetConfigAnnotation: "{not json"},
	})
	c := newTestClient(t, testConfig(srv.URL))

	md, err := c.FetchMetadata(t.Context())
	require.NoError(t, err)
	assert.Equal(t, "movie-bot", md.Name)
	assert.Nil(t, md.Config)
}

func TestFetchMetadata_ServerError(t *testing.T) {
	srv, _ := metadataServer(t, http.StatusInternalServerError, map[string]string{"error": "down"})
	c := newTestClient(t, testConfig(srv.URL))

	_, err := c.FetchMetadata(t.Context())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "500")
}

func TestFetchMetadata_NoBotProviderEndpoint(t *testing.T) {
	c := newTestClient(t, config.ClientConfig{Endpoint: "http://127.0.0.1:1/sse"})

	_, err := c.FetchMetadata(t.Context())
	assert.True(t, errors.Is(err, ErrNoMetadata))
}

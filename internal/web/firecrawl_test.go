package web

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/Kocoro-lab/toolscout/internal/research"
)

func newFirecrawlServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/search", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer fc-test", r.Header.Get("Authorization"))
		var req firecrawlSearchRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		if req.Query == "boom" {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"success": true,
			"data": []map[string]interface{}{
				{"url": "https://supabase.com", "title": "Supabase", "description": "Postgres dev platform"},
				{"url": "https://appwrite.io", "metadata": map[string]string{"title": "Appwrite"}},
			}[:req.Limit],
		})
	})
	mux.HandleFunc("/v1/scrape", func(w http.ResponseWriter, r *http.Request) {
		var req firecrawlScrapeRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, []string{"markdown"}, req.Formats)
		switch req.URL {
		case "https://supabase.com":
			_ = json.NewEncoder(w).Encode(map[string]interface{}{"success": true, "data": map[string]string{"markdown": "# Supabase"}})
		case "https://blocked.example":
			w.WriteHeader(http.StatusForbidden)
			_ = json.NewEncoder(w).Encode(map[string]interface{}{"success": false, "error": "blocked"})
		default:
			_ = json.NewEncoder(w).Encode(map[string]interface{}{"success": true, "data": map[string]string{"markdown": "  "}})
		}
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestFirecrawl(t *testing.T, url string) *Firecrawl {
	t.Helper()
	fc, err := NewFirecrawl(FirecrawlConfig{APIKey: "fc-test", BaseURL: url, RequestsPerSec: 1000, Burst: 100}, zaptest.NewLogger(t))
	require.NoError(t, err)
	return fc
}

func TestFirecrawlSearch(t *testing.T) {
	fc := newTestFirecrawl(t, newFirecrawlServer(t).URL)

	results, err := fc.Search(context.Background(), "Firebase alternatives", 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, research.SearchResult{Title: "Supabase", URL: "https://supabase.com", Snippet: "Postgres dev platform"}, results[0])
	assert.Equal(t, "Appwrite", results[1].Title)

	_, err = fc.Search(context.Background(), "boom", 1)
	assert.ErrorIs(t, err, research.ErrCollaboratorUnavailable)
}

func TestFirecrawlScrape(t *testing.T) {
	fc := newTestFirecrawl(t, newFirecrawlServer(t).URL)
	ctx := context.Background()

	res, err := fc.Scrape(ctx, "https://supabase.com")
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "# Supabase", res.Content)

	res, err = fc.Scrape(ctx, "https://blocked.example")
	require.NoError(t, err)
	assert.False(t, res.Success)

	res, err = fc.Scrape(ctx, "https://empty.example")
	require.NoError(t, err)
	assert.False(t, res.Success)
}

func TestFirecrawlRequiresKey(t *testing.T) {
	_, err := NewFirecrawl(FirecrawlConfig{}, nil)
	assert.Error(t, err)
}

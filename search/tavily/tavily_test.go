package tavily_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/becomeliminal/nim-assistant/search/tavily"
)

func TestClient_Search(t *testing.T) {
	var got map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/search", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"answer": "Go 1.24 was released in February 2025.",
			"results": [
				{"title": "Go 1.24 Release Notes", "url": "https://go.dev/doc/go1.24", "content": "release notes", "score": 0.98, "raw_content": null}
			]
		}`))
	}))
	defer srv.Close()

	c := tavily.New(tavily.Config{APIKey: "tvly-test", BaseURL: srv.URL + "/"})
	resp, err := c.Search(context.Background(), "latest go release", 3)
	require.NoError(t, err)

	assert.Equal(t, "tvly-test", got["api_key"])
	assert.Equal(t, "latest go release", got["query"])
	assert.Equal(t, "advanced", got["search_depth"])
	assert.Equal(t, true, got["include_answer"])
	assert.Equal(t, false, got["include_raw_content"])
	assert.Equal(t, float64(3), got["max_results"])

	assert.Equal(t, "Go 1.24 was released in February 2025.", resp.Answer)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "https://go.dev/doc/go1.24", resp.Results[0].URL)
	assert.InDelta(t, 0.98, resp.Results[0].Score, 1e-9)
}

func TestClient_SearchHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"detail": "invalid api key"}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := tavily.New(tavily.Config{BaseURL: srv.URL})
	_, err := c.Search(context.Background(), "q", 5)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}

func TestClient_SearchTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	c := tavily.New(tavily.Config{BaseURL: srv.URL, Timeout: 20 * time.Millisecond})
	_, err := c.Search(context.Background(), "q", 5)
	assert.Error(t, err)
}

func TestClient_RateLimitHonoursContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"answer": "", "results": []}`))
	}))
	defer srv.Close()

	c := tavily.New(tavily.Config{BaseURL: srv.URL, RequestsPerSecond: 0.01})
	_, err := c.Search(context.Background(), "first", 1)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = c.Search(ctx, "second", 1)
	assert.Error(t, err)
}

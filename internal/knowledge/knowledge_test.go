package knowledge

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"session-insights/internal/common/logger"
)

func esServer(t *testing.T, handler func(w http.ResponseWriter, r *http.Request)) *elasticsearch.Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Elastic-Product", "Elasticsearch")
		w.Header().Set("Content-Type", "application/json")
		handler(w, r)
	}))
	t.Cleanup(srv.Close)

	client, err := elasticsearch.NewClient(elasticsearch.Config{Addresses: []string{srv.URL}})
	require.NoError(t, err)
	return client
}

const hitsBody = `{
  "hits": {
    "total": {"value": 3},
    "hits": [
      {"_id": "a1", "_score": 4.2, "_source": {"title": "Pairing your insoles", "content": "Open the app. Hold both insoles near the phone. Wait for the light."}},
      {"_id": "a2", "_score": 2.5, "_source": {"title": "Charging", "content": "Use the supplied cable."}},
      {"_id": "a3", "_score": 0.3, "_source": {"title": "Unrelated", "content": "Noise."}}
    ]
  }
}`

// ==========================
// ElasticRetriever
// ==========================

func TestElasticRetriever_Search(t *testing.T) {
	var gotPath string
	var gotBody map[string]interface{}
	client := esServer(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &gotBody)
		assert.Equal(t, "3", r.URL.Query().Get("size"))
		_, _ = w.Write([]byte(hitsBody))
	})

	r := NewElasticRetriever(client, ElasticConfig{Index: "help-articles", MinScore: 1.0}, logger.NewTestLogger(t))
	docs, err := r.Search(context.Background(), "how do I pair my insoles", 3)
	require.NoError(t, err)

	assert.Equal(t, "/help-articles/_search", gotPath)
	mm := gotBody["query"].(map[string]interface{})["multi_match"].(map[string]interface{})
	assert.Equal(t, "how do I pair my insoles", mm["query"])
	assert.ElementsMatch(t, []interface{}{"title^2", "content"}, mm["fields"])

	require.Len(t, docs, 2)
	assert.Equal(t, "a1", docs[0].ID)
	assert.Equal(t, "Pairing your insoles", docs[0].Title)
	assert.InDelta(t, 4.2, docs[0].Score, 1e-9)
}

func TestElasticRetriever_ErrorStatus(t *testing.T) {
	client := esServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error": {"type": "index_not_found_exception"}, "status": 404}`))
	})

	r := NewElasticRetriever(client, ElasticConfig{}, logger.NewNoOpLogger())
	_, err := r.Search(context.Background(), "pairing", 4)
	assert.ErrorIs(t, err, ErrSearchFailed)
}

func TestElasticRetriever_Timeout(t *testing.T) {
	client := esServer(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	})

	r := NewElasticRetriever(client, ElasticConfig{Timeout: 50 * time.Millisecond}, logger.NewNoOpLogger())
	_, err := r.Search(context.Background(), "pairing", 4)
	assert.ErrorIs(t, err, ErrSearchTimeout)
}

// ==========================
// Prompt helpers
// ==========================

func TestBuildPrompt_NumbersDocuments(t *testing.T) {
	docs := []Document{
		{ID: "a1", Title: "Pairing", Content: "Open the app.\nHold the insoles close."},
		{ID: "a2", Content: "Use the supplied cable."},
	}
	got := BuildPrompt("how do I pair?", docs)

	assert.True(t, strings.HasPrefix(got, "Question: how do I pair?\n\nContext:\n"))
	assert.Contains(t, got, "[1] Pairing - Open the app. Hold the insoles close.")
	assert.Contains(t, got, "[2] a2 - Use the supplied cable.")
}

func TestCitedContext_TruncatesLongSnippets(t *testing.T) {
	long := strings.Repeat("word ", 400)
	got := CitedContext([]Document{{Title: "Long", Content: long}})
	assert.True(t, strings.HasSuffix(got, "..."))
	assert.LessOrEqual(t, len(got), len("[1] Long - ")+maxSnippet+3)
}

func TestExtractive(t *testing.T) {
	docs := []Document{{Title: "Pairing your insoles", Content: "Open the app. Hold both insoles near the phone. Wait for the light."}}
	assert.Equal(t, `From "Pairing your insoles": Open the app. Hold both insoles near the phone. [1]`, Extractive(docs))
	assert.Equal(t, "", Extractive(nil))
	assert.Equal(t, "Short note [1]", Extractive([]Document{{Content: "Short note"}}))
}

func TestSystemPrompt(t *testing.T) {
	got := SystemPrompt("You are a movement coach.")
	assert.True(t, strings.HasPrefix(got, "You are a movement coach.\n"))
	assert.Contains(t, got, "ONLY the provided context")
}

package knowledge

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"session-insights/internal/common/logger"
)

var (
	ErrSearchFailed  = errors.New("KNOWLEDGE_SEARCH_FAILED")
	ErrSearchTimeout = errors.New("KNOWLEDGE_SEARCH_TIMEOUT")
)

const maxSnippet = 800

// Document is one help article hit.
type Document struct {
	ID      string  `json:"id"`
	Title   string  `json:"title"`
	Content string  `json:"content"`
	Score   float64 `json:"score"`
}

// Retriever finds help articles for a question.
type Retriever interface {
	Search(ctx context.Context, query string, k int) ([]Document, error)
}

type ElasticConfig struct {
	Index    string
	MinScore float64
	Timeout  time.Duration
}

// ElasticRetriever searches an article index with a multi_match query over
// title and content.
type ElasticRetriever struct {
	client   *elasticsearch.Client
	index    string
	minScore float64
	timeout  time.Duration
	logger   logger.Logger
}

func NewElasticRetriever(client *elasticsearch.Client, cfg ElasticConfig, log logger.Logger) *ElasticRetriever {
	if cfg.Index == "" {
		cfg.Index = "help-articles"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	return &ElasticRetriever{
		client:   client,
		index:    cfg.Index,
		minScore: cfg.MinScore,
		timeout:  cfg.Timeout,
		logger:   logger.Named(log, "knowledge"),
	}
}

type searchResponse struct {
	Hits struct {
		Hits []struct {
			ID     string  `json:"_id"`
			Score  float64 `json:"_score"`
			Source struct {
				Title   string `json:"title"`
				Content string `json:"content"`
			} `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

func (r *ElasticRetriever) Search(ctx context.Context, query string, k int) ([]Document, error) {
	if k <= 0 {
		k = 4
	}
	body, err := json.Marshal(map[string]interface{}{
		"query": map[string]interface{}{
			"multi_match": map[string]interface{}{
				"query":  query,
				"fields": []string{"title^2", "content"},
				"type":   "best_fields",
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSearchFailed, err)
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	req := esapi.SearchRequest{
		Index: []string{r.index},
		Body:  bytes.NewReader(body),
		Size:  &k,
	}
	res, err := req.Do(ctx, r.client)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, ErrSearchTimeout
		}
		return nil, fmt.Errorf("%w: %v", ErrSearchFailed, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, fmt.Errorf("%w: %s", ErrSearchFailed, res.Status())
	}

	var parsed searchResponse
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrSearchFailed, err)
	}

	docs := make([]Document, 0, len(parsed.Hits.Hits))
	for _, h := range parsed.Hits.Hits {
		if h.Score < r.minScore {
			continue
		}
		docs = append(docs, Document{
			ID:      h.ID,
			Title:   h.Source.Title,
			Content: h.Source.Content,
			Score:   h.Score,
		})
	}
	r.logger.Debug("knowledge search", map[string]interface{}{
		"index": r.index,
		"hits":  len(parsed.Hits.Hits),
		"kept":  len(docs),
	})
	return docs, nil
}

// SystemPrompt frames a cited answer.
func SystemPrompt(persona string) string {
	var b strings.Builder
	if persona != "" {
		b.WriteString(persona)
		b.WriteString("\n")
	}
	b.WriteString("Answer using ONLY the provided context.\n")
	b.WriteString("Cite facts with inline references like [1] that match the numbered context items.\n")
	b.WriteString("If the answer is not in the context, say you don't have that information.\n")
	b.WriteString("Be concise, helpful and non-medical.\n")
	return b.String()
}

// BuildPrompt numbers the documents as "[n] Title - snippet" under the
// question.
func BuildPrompt(question string, docs []Document) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Question: %s\n\nContext:\n", question)
	b.WriteString(CitedContext(docs))
	b.WriteString("\n\nRemember: cite facts with [1], [2], ...")
	return b.String()
}

func CitedContext(docs []Document) string {
	lines := make([]string, 0, len(docs))
	for i, d := range docs {
		title := d.Title
		if title == "" {
			title = d.ID
		}
		lines = append(lines, fmt.Sprintf("[%d] %s - %s", i+1, title, snippet(d.Content, maxSnippet)))
	}
	return strings.Join(lines, "\n")
}

// Extractive answers from the top document alone, for when no model is
// reachable.
func Extractive(docs []Document) string {
	if len(docs) == 0 {
		return ""
	}
	top := docs[0]
	text := firstSentences(snippet(top.Content, maxSnippet), 2)
	if top.Title == "" {
		return text + " [1]"
	}
	return fmt.Sprintf("From \"%s\": %s [1]", top.Title, text)
}

func snippet(s string, max int) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8Start(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}

func utf8Start(b byte) bool { return b&0xC0 != 0x80 }

func firstSentences(s string, n int) string {
	count := 0
	for i := 0; i < len(s); i++ {
		if s[i] != '.' && s[i] != '!' && s[i] != '?' {
			continue
		}
		if i+1 == len(s) || s[i+1] == ' ' {
			count++
			if count == n {
				return s[:i+1]
			}
		}
	}
	return s
}

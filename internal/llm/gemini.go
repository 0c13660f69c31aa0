package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	commonhttp "session-insights/internal/common/http"
)

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiRequest struct {
	Contents          []geminiContent `json:"contents"`
	SystemInstruction *geminiContent  `json:"systemInstruction,omitempty"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// GeminiBackend calls the generateContent REST endpoint directly.
type GeminiBackend struct {
	client  *commonhttp.Client
	baseURL string
	apiKey  string
}

func NewGeminiBackend(client *commonhttp.Client, baseURL, apiKey string) *GeminiBackend {
	return &GeminiBackend{
		client:  client,
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
	}
}

func (b *GeminiBackend) Generate(ctx context.Context, req Request) (string, error) {
	body := geminiRequest{
		Contents: []geminiContent{{Role: "user", Parts: []geminiPart{{Text: req.User}}}},
	}
	if strings.TrimSpace(req.System) != "" {
		body.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: req.System}}}
	}

	url := fmt.Sprintf("%s/models/%s:generateContent", b.baseURL, req.Model)
	status, data, err := b.client.PostJSON(ctx, url, map[string]string{"x-goog-api-key": b.apiKey}, body)
	if err != nil {
		return "", fmt.Errorf("gemini request: %w", err)
	}

	var resp geminiResponse
	decodeErr := json.Unmarshal(data, &resp)

	if status < 200 || status > 299 {
		msg := ""
		if decodeErr == nil && resp.Error != nil {
			msg = resp.Error.Message
		}
		return "", &StatusError{Code: status, Message: msg}
	}
	if decodeErr != nil {
		return "", fmt.Errorf("decode gemini response: %w", decodeErr)
	}
	if resp.Error != nil {
		return "", &StatusError{Code: resp.Error.Code, Message: resp.Error.Message}
	}

	var out strings.Builder
	for _, c := range resp.Candidates {
		for _, p := range c.Content.Parts {
			out.WriteString(p.Text)
		}
		if out.Len() > 0 {
			break
		}
	}
	return out.String(), nil
}

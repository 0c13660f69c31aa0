package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"

	"google.golang.org/genai"
)

var apiVersionSuffix = regexp.MustCompile(`/(v\d+(?:alpha|beta)?\d*)/?$`)

// splitAPIVersion separates a trailing API version such as /v1beta from a
// REST-style base URL; the SDK appends the version itself.
func splitAPIVersion(base string) (string, string) {
	m := apiVersionSuffix.FindStringSubmatchIndex(base)
	if m == nil {
		return strings.TrimRight(base, "/"), ""
	}
	return base[:m[0]], base[m[2]:m[3]]
}

// GenAIBackend uses the google.golang.org/genai SDK.
type GenAIBackend struct {
	client *genai.Client
}

// NewGenAIBackend builds an SDK client for the Gemini API. An empty baseURL
// keeps the SDK default and a trailing version segment on it selects the
// API version; hc may be nil.
func NewGenAIBackend(ctx context.Context, apiKey, baseURL string, hc *http.Client) (*GenAIBackend, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("GenAI API key is required")
	}
	cfg := &genai.ClientConfig{
		APIKey:     apiKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: hc,
	}
	if baseURL != "" {
		base, version := splitAPIVersion(baseURL)
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: base, APIVersion: version}
	}
	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	return &GenAIBackend{client: client}, nil
}

func (b *GenAIBackend) Generate(ctx context.Context, req Request) (string, error) {
	var gcfg *genai.GenerateContentConfig
	if req.System != "" {
		gcfg = &genai.GenerateContentConfig{
			SystemInstruction: genai.NewContentFromText(req.System, genai.RoleUser),
		}
	}

	resp, err := b.client.Models.GenerateContent(ctx, req.Model,
		[]*genai.Content{genai.NewContentFromText(req.User, genai.RoleUser)}, gcfg)
	if err != nil {
		return "", mapGenAIError(err)
	}
	return resp.Text(), nil
}

// mapGenAIError converts SDK API errors to StatusError so retry
// classification is shared with the REST backend.
func mapGenAIError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return &StatusError{Code: apiErr.Code, Message: apiErr.Message}
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return &StatusError{Code: apiErrPtr.Code, Message: apiErrPtr.Message}
	}
	return fmt.Errorf("genai request: %w", err)
}

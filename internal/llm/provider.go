package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"session-insights/internal/common/config"
	commonhttp "session-insights/internal/common/http"
)

var ErrUnknownProvider = errors.New("UNKNOWN_MODEL_PROVIDER")

// NewBackend selects the backend named by cfg.Provider.
func NewBackend(ctx context.Context, cfg config.ModelConfig) (Backend, error) {
	timeout := config.GetDuration(cfg.TimeoutMs)
	switch cfg.Provider {
	case config.ProviderGeminiHTTP, "":
		return NewGeminiBackend(commonhttp.NewClient(timeout), cfg.BaseURL, cfg.APIKey), nil
	case config.ProviderGenAI:
		b, err := NewGenAIBackend(ctx, cfg.APIKey, cfg.BaseURL, &http.Client{Timeout: timeout})
		if err != nil {
			return nil, err
		}
		return b, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, cfg.Provider)
	}
}

// ClientConfig maps the model section onto Config.
func ClientConfig(cfg config.ModelConfig) Config {
	return Config{
		Model:       cfg.Model,
		MaxAttempts: cfg.MaxAttempts,
		BackoffBase: config.GetDuration(cfg.BackoffBaseMs),
		BackoffMax:  config.GetDuration(cfg.BackoffMaxMs),
	}
}

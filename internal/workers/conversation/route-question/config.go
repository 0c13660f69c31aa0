package routequestion

import (
	"time"

	"session-insights/internal/common/config"
)

type Config struct {
	Timeout time.Duration
}

// NewConfig derives the handler settings from the worker section.
func NewConfig(wcfg config.WorkerConfig) *Config {
	timeout := config.GetDuration(wcfg.Timeout)
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Config{Timeout: timeout}
}

package resolvequestion

import (
	"time"

	"session-insights/internal/common/config"
)

type Config struct {
	// Timeout bounds one resolution including model retries and queries.
	Timeout time.Duration
}

func NewConfig(wcfg config.WorkerConfig) *Config {
	timeout := config.GetDuration(wcfg.Timeout)
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Config{Timeout: timeout}
}

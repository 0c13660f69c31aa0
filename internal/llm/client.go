package llm

import (
	"context"
	"math/rand"
	"strings"
	"sync"
	"time"

	"session-insights/internal/common/logger"
	"session-insights/internal/common/metrics"
)

type Config struct {
	Model       string
	MaxAttempts int
	BackoffBase time.Duration
	BackoffMax  time.Duration
}

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

type Option func(*Client)

// WithSleep replaces the backoff sleep, typically with a recorder in tests.
func WithSleep(fn SleepFunc) Option {
	return func(c *Client) { c.sleep = fn }
}

// WithJitter replaces the jitter source. fn must return a factor in [0.8, 1.2].
func WithJitter(fn func() float64) Option {
	return func(c *Client) { c.jitter = fn }
}

// Client wraps a Backend with bounded retries. It never returns an error:
// any failure the caller has to act on collapses to unavailable.
type Client struct {
	backend Backend
	cfg     Config
	logger  logger.Logger
	sleep   SleepFunc
	jitter  func() float64
}

func NewClient(backend Backend, cfg Config, log logger.Logger, opts ...Option) *Client {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 4
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = 500 * time.Millisecond
	}
	if cfg.BackoffMax <= 0 {
		cfg.BackoffMax = 8 * time.Second
	}
	c := &Client{
		backend: backend,
		cfg:     cfg,
		logger:  logger.Named(log, "llm"),
		sleep:   contextSleep,
		jitter:  defaultJitter(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Complete generates with the configured model.
func (c *Client) Complete(ctx context.Context, system, user string) (string, bool) {
	return c.CompleteWithModel(ctx, "", system, user)
}

// CompleteWithModel returns the generated text, or unavailable=true once the
// backend failed permanently, the attempt budget ran out, the answer was
// empty or ctx was cancelled.
func (c *Client) CompleteWithModel(ctx context.Context, model, system, user string) (string, bool) {
	if c == nil || c.backend == nil {
		metrics.ModelUnavailable.Inc()
		return "", true
	}

	req := Request{System: system, User: user, Model: c.resolveModel(model)}

	var lastErr error
	for attempt := 0; attempt < c.cfg.MaxAttempts; attempt++ {
		if attempt > 0 {
			if err := c.sleep(ctx, c.backoff(attempt-1)); err != nil {
				lastErr = err
				break
			}
		}

		text, err := c.backend.Generate(ctx, req)
		if err == nil {
			if strings.TrimSpace(text) == "" {
				metrics.ModelAttempts.WithLabelValues("empty").Inc()
				lastErr = ErrEmptyResponse
				break
			}
			metrics.ModelAttempts.WithLabelValues("ok").Inc()
			return text, false
		}

		lastErr = err
		if ctx.Err() != nil {
			metrics.ModelAttempts.WithLabelValues("cancelled").Inc()
			break
		}
		if !IsRetryable(err) {
			metrics.ModelAttempts.WithLabelValues("fatal").Inc()
			break
		}
		metrics.ModelAttempts.WithLabelValues("retryable").Inc()
		c.logger.Warn("model attempt failed, retrying", map[string]interface{}{
			"attempt": attempt + 1,
			"model":   req.Model,
			"error":   err.Error(),
		})
	}

	metrics.ModelUnavailable.Inc()
	fields := map[string]interface{}{"model": req.Model}
	if lastErr != nil {
		fields["error"] = lastErr.Error()
	}
	c.logger.Warn("model unavailable", fields)
	return "", true
}

func (c *Client) resolveModel(model string) string {
	if model != "" {
		return model
	}
	if c.cfg.Model != "" {
		return c.cfg.Model
	}
	return DefaultModel
}

// backoff is base * 2^i scaled by jitter, capped at BackoffMax.
func (c *Client) backoff(i int) time.Duration {
	d := c.cfg.BackoffMax
	if i < 30 {
		d = c.cfg.BackoffBase << uint(i)
	}
	if d <= 0 || d > c.cfg.BackoffMax {
		d = c.cfg.BackoffMax
	}
	d = time.Duration(float64(d) * c.jitter())
	if d > c.cfg.BackoffMax {
		d = c.cfg.BackoffMax
	}
	return d
}

func contextSleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func defaultJitter() func() float64 {
	var mu sync.Mutex
	r := rand.New(rand.NewSource(time.Now().UnixNano()))
	return func() float64 {
		mu.Lock()
		defer mu.Unlock()
		return 0.8 + r.Float64()*0.4
	}
}

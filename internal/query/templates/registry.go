package templates

import (
	"errors"
	"fmt"

	"session-insights/internal/models"
	"session-insights/internal/query"
)

var (
	ErrMissingParam      = errors.New("MISSING_PARAMETER")
	ErrUnsupportedIntent = errors.New("UNSUPPORTED_INTENT")
)

// ParamError names the parameter a template could not resolve.
type ParamError struct {
	Intent models.Intent
	Param  string
	Reason string
}

func (e *ParamError) Error() string {
	return fmt.Sprintf("%s: %s for %s: %s", ErrMissingParam, e.Param, e.Intent, e.Reason)
}

func (e *ParamError) Unwrap() error { return ErrMissingParam }

// BuildFunc renders one template intent.
type BuildFunc func(l *Library, req models.RoutedRequest, identity interface{}) (query.Statement, error)

var registry = map[models.Intent]BuildFunc{
	models.IntentSessionDetail:  buildDetail,
	models.IntentSessionListing: buildListing,
}

type Config struct {
	Dialect   query.Dialect
	MaxWindow int
}

// Library builds trusted statements. It is immutable after New.
type Library struct {
	dialect   query.Dialect
	maxWindow int
}

func New(cfg Config) *Library {
	if cfg.Dialect == "" {
		cfg.Dialect = query.Postgres
	}
	if cfg.MaxWindow <= 0 {
		cfg.MaxWindow = 100
	}
	return &Library{dialect: cfg.Dialect, maxWindow: cfg.MaxWindow}
}

func (l *Library) Dialect() query.Dialect { return l.dialect }

// Supports reports whether intent has a template.
func Supports(intent models.Intent) bool {
	_, ok := registry[intent]
	return ok
}

// Build renders the template registered for the request's intent.
func (l *Library) Build(req models.RoutedRequest, identity interface{}) (query.Statement, error) {
	fn, ok := registry[req.Intent()]
	if !ok {
		return query.Statement{}, fmt.Errorf("%w: %s", ErrUnsupportedIntent, req.Intent())
	}
	return fn(l, req, identity)
}

// clampWindow bounds n to [1, maxWindow]; n < 1 becomes 1.
func (l *Library) clampWindow(n int) int {
	if n < 1 {
		return 1
	}
	if n > l.maxWindow {
		return l.maxWindow
	}
	return n
}

// binder hands out placeholders in bind order.
type binder struct {
	dialect query.Dialect
	args    []interface{}
}

func (b *binder) bind(v interface{}) string {
	b.args = append(b.args, v)
	return b.dialect.Placeholder(len(b.args))
}

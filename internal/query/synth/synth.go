package synth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"session-insights/internal/common/logger"
	"session-insights/internal/common/metrics"
	"session-insights/internal/query"
	"session-insights/internal/query/guard"
	"session-insights/internal/query/templates"
	"session-insights/internal/routing"
	"session-insights/internal/schema"
)

var ErrMisconfigured = errors.New("SYNTHESIZER_MISCONFIGURED")

// Source records which path produced a synthesis result.
type Source string

const (
	SourceFixed     Source = "fixed"
	SourceGenerated Source = "generated"
	SourceCached    Source = "cached"
	SourceFallback  Source = "fallback"
)

// Completer is the model surface the synthesizer needs; *llm.Client
// satisfies it.
type Completer interface {
	Complete(ctx context.Context, system, user string) (string, bool)
}

type Result struct {
	Decision guard.Decision
	Source   Source
	// Raw is the extracted model output on the generated path.
	Raw query.Untrusted
}

type Config struct {
	DefaultWindow int
}

type Synthesizer struct {
	guard    *guard.Guard
	lib      *templates.Library
	model    Completer
	snapshot *schema.Snapshot
	cache    Cache
	window   int
	logger   logger.Logger
}

// New wires a synthesizer. cache may be nil.
func New(g *guard.Guard, lib *templates.Library, model Completer, snapshot *schema.Snapshot, cache Cache, cfg Config, log logger.Logger) *Synthesizer {
	if cfg.DefaultWindow <= 0 {
		cfg.DefaultWindow = 10
	}
	return &Synthesizer{
		guard:    g,
		lib:      lib,
		model:    model,
		snapshot: snapshot,
		cache:    cache,
		window:   cfg.DefaultWindow,
		logger:   logger.Named(log, "synth"),
	}
}

// Synthesize turns a question into a guard decision. Known phrasings map to
// fixed statements without calling the model. Everything else is generated,
// extracted and validated. The error is reserved for missing dependencies.
func (s *Synthesizer) Synthesize(ctx context.Context, question string, identity interface{}) (Result, error) {
	if s == nil || s.guard == nil || s.lib == nil {
		return Result{}, ErrMisconfigured
	}
	q := routing.Normalize(question)

	if stmt, ok := s.fixed(q, identity); ok {
		s.logger.Debug("fixed statement selected", map[string]interface{}{"origin": stmt.Origin()})
		return Result{Decision: guard.AcceptTrusted(stmt), Source: SourceFixed}, nil
	}

	scope := guard.Scope{Required: ScopeRequired(q), Identity: identity}
	key := cacheKey(q, scope.Required, s.lib.Dialect())

	if res, ok := s.fromCache(ctx, key, scope); ok {
		return res, nil
	}

	text, unavailable := s.complete(ctx, q)
	if unavailable {
		s.logger.Warn("model unavailable, using overview fallback", nil)
		return Result{
			Decision: guard.AcceptTrusted(s.lib.HealthOverview(identity, s.window)),
			Source:   SourceFallback,
		}, nil
	}

	raw := ExtractSQL(text)
	d := s.guard.Validate(raw, scope)
	if d.Accepted() {
		s.store(ctx, key, d.Statement())
	}
	return Result{Decision: d, Source: SourceGenerated, Raw: raw}, nil
}

// fixed maps "last N" trend questions and overview phrasing onto the
// aggregate templates.
func (s *Synthesizer) fixed(q string, identity interface{}) (query.Statement, bool) {
	if n, ok := routing.LastN(q); ok && containsAny(q, trendTerms) {
		return s.lib.TrendSummary(identity, n), true
	}
	if routing.IsHealthOverview(q) {
		window := s.window
		if n, ok := routing.LastN(q); ok {
			window = n
		}
		return s.lib.HealthOverview(identity, window), true
	}
	return query.Statement{}, false
}

var trendTerms = []string{"trend", "analyze", "analyse", "instability", "posture", "gait", "balance"}

func (s *Synthesizer) complete(ctx context.Context, q string) (string, bool) {
	if s.model == nil {
		return "", true
	}
	return s.model.Complete(ctx, SystemPrompt(s.lib.Dialect()), UserPrompt(q, s.snapshot, s.lib.Dialect()))
}

// fromCache re-validates a cached statement; cached text is never trusted
// as is.
func (s *Synthesizer) fromCache(ctx context.Context, key string, scope guard.Scope) (Result, bool) {
	if s.cache == nil {
		return Result{}, false
	}
	text, hit, err := s.cache.Get(ctx, key)
	if err != nil {
		metrics.SynthesisCache.WithLabelValues("error").Inc()
		s.logger.Warn("synthesis cache read failed", map[string]interface{}{"error": err.Error()})
		return Result{}, false
	}
	if !hit {
		metrics.SynthesisCache.WithLabelValues("miss").Inc()
		return Result{}, false
	}

	raw := query.Untrusted(text)
	d := s.guard.Validate(raw, scope)
	if !d.Accepted() {
		metrics.SynthesisCache.WithLabelValues("invalid").Inc()
		s.logger.Warn("cached statement no longer passes the guard", map[string]interface{}{
			"reason": string(d.Reason()),
		})
		return Result{}, false
	}
	metrics.SynthesisCache.WithLabelValues("hit").Inc()
	return Result{Decision: d, Source: SourceCached, Raw: raw}, true
}

func (s *Synthesizer) store(ctx context.Context, key string, stmt query.Statement) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, key, stmt.Text()); err != nil {
		s.logger.Warn("synthesis cache write failed", map[string]interface{}{"error": err.Error()})
	}
}

// ScopeRequired decides whether a generated statement must be filtered to
// the asker. Only explicitly non-personal knowledge questions are exempt.
func ScopeRequired(q string) bool {
	q = routing.Normalize(q)
	return !(routing.IsKnowledgeQuestion(q) && !routing.IsPersonal(q))
}

func cacheKey(q string, scoped bool, dialect query.Dialect) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%t|%s", q, scoped, dialect)))
	return "synth:" + hex.EncodeToString(sum[:])
}

func containsAny(q string, terms []string) bool {
	for _, t := range terms {
		if strings.Contains(q, t) {
			return true
		}
	}
	return false
}

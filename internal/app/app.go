// Package app assembles the question-answering pipeline from configuration.
// Both binaries build it the same way; only the surrounding transport differs.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/redis/go-redis/v9"

	"session-insights/internal/common/config"
	"session-insights/internal/common/logger"
	"session-insights/internal/common/observability"
	"session-insights/internal/knowledge"
	"session-insights/internal/llm"
	"session-insights/internal/orchestrator"
	"session-insights/internal/plan"
	"session-insights/internal/query"
	"session-insights/internal/query/executor"
	"session-insights/internal/query/guard"
	"session-insights/internal/query/synth"
	"session-insights/internal/query/templates"
	"session-insights/internal/routing"
	"session-insights/internal/schema"
)

// Options carries the optional collaborators. Nil fields disable the
// feature they back.
type Options struct {
	Observability *observability.Observability
	Redis         redis.Cmdable
	Elastic       *elasticsearch.Client
	// Model overrides the configured backend, mainly for tests.
	Model synth.Completer
	Clock func() time.Time
}

type Pipeline struct {
	Router       *routing.Router
	Orchestrator *orchestrator.Orchestrator
	Guard        *guard.Guard
	Templates    *templates.Library
	Planner      *plan.Planner
	Dialect      query.Dialect
}

// Build wires router, templates, guard, synthesizer, model client and
// orchestrator over db.
func Build(ctx context.Context, cfg *config.Config, db *sql.DB, opts Options, log logger.Logger) (*Pipeline, error) {
	dialect, err := query.ParseDialect(cfg.Database.Driver)
	if err != nil {
		return nil, err
	}

	snapshot, err := schema.Load(cfg.Query.SchemaPath)
	if err != nil {
		log.Warn("schema snapshot unavailable, prompts will omit it", map[string]interface{}{
			"path":  cfg.Query.SchemaPath,
			"error": err.Error(),
		})
	}

	lib := templates.New(templates.Config{Dialect: dialect, MaxWindow: cfg.Query.MaxWindow})
	g := guard.New(guard.Config{RowCap: cfg.Query.RowCap, Dialect: dialect}, log)

	model := opts.Model
	if model == nil {
		model = newModel(ctx, cfg.Model, log)
	}

	var cache synth.Cache
	if cfg.SynthesisCache.Enabled && opts.Redis != nil {
		cache = synth.NewRedisCache(opts.Redis, config.GetDuration(cfg.SynthesisCache.TTLMs))
	}

	s := synth.New(g, lib, model, snapshot, cache, synth.Config{DefaultWindow: cfg.Query.DefaultWindow}, log)
	exec := executor.NewSQL(db, executor.Config{
		Timeout: config.GetDuration(cfg.Query.TimeoutMs),
		MaxRows: cfg.Query.MaxRows,
	}, log)

	var retriever knowledge.Retriever
	if opts.Elastic != nil {
		retriever = knowledge.NewElasticRetriever(opts.Elastic, knowledge.ElasticConfig{
			Index:    cfg.Knowledge.Index,
			MinScore: cfg.Knowledge.MinScore,
		}, log)
	}

	planner, err := plan.NewPlanner(cfg.Plan.Days)
	if err != nil {
		return nil, fmt.Errorf("build planner: %w", err)
	}

	orch, err := orchestrator.New(orchestrator.Deps{
		Templates:     lib,
		Synthesizer:   s,
		Executor:      exec,
		Model:         model,
		Retriever:     retriever,
		Planner:       planner,
		Observability: opts.Observability,
		Clock:         opts.Clock,
	}, orchestrator.Config{
		DefaultWindow: cfg.Query.DefaultWindow,
		KnowledgeTopK: cfg.Knowledge.TopK,
		Persona:       cfg.App.Persona,
	}, log)
	if err != nil {
		return nil, err
	}

	log.Info("pipeline ready", map[string]interface{}{
		"dialect":   string(dialect),
		"model":     model != nil,
		"cache":     cache != nil,
		"knowledge": retriever != nil,
		"planDays":  planner.Days(),
	})
	return &Pipeline{
		Router:       routing.NewRouter(log),
		Orchestrator: orch,
		Guard:        g,
		Templates:    lib,
		Planner:      planner,
		Dialect:      dialect,
	}, nil
}

// Ask routes and resolves one question for identity.
func (p *Pipeline) Ask(ctx context.Context, question string, identity interface{}) orchestrator.Outcome {
	return p.Orchestrator.Resolve(ctx, p.Router.Route(question), identity)
}

// SessionInsights returns the coaching note for the start or end of a
// session.
func (p *Pipeline) SessionInsights(ctx context.Context, phase orchestrator.Phase, identity interface{}, sessionID int64) orchestrator.Outcome {
	return p.Orchestrator.SessionInsights(ctx, phase, identity, sessionID)
}

// newModel returns nil when no backend can be built; the pipeline then
// treats the model as permanently unavailable.
func newModel(ctx context.Context, cfg config.ModelConfig, log logger.Logger) synth.Completer {
	if cfg.APIKey == "" {
		log.Warn("model api key not set, generative paths will use fallbacks", nil)
		return nil
	}
	backend, err := llm.NewBackend(ctx, cfg)
	if err != nil {
		log.Warn("model backend unavailable", map[string]interface{}{"error": err.Error()})
		return nil
	}
	return llm.NewClient(backend, llm.ClientConfig(cfg), log)
}

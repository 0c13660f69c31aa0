package orchestrator

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	apperrors "session-insights/internal/common/errors"
	"session-insights/internal/common/logger"
	"session-insights/internal/common/metrics"
	"session-insights/internal/common/observability"
	"session-insights/internal/knowledge"
	"session-insights/internal/models"
	"session-insights/internal/plan"
	"session-insights/internal/query/executor"
	"session-insights/internal/query/synth"
	"session-insights/internal/query/templates"
)

var ErrMissingDependency = errors.New("ORCHESTRATOR_MISSING_DEPENDENCY")

// Synthesizer produces a guard decision for a trend question.
type Synthesizer interface {
	Synthesize(ctx context.Context, question string, identity interface{}) (synth.Result, error)
}

// Deps are the collaborators. Model, Retriever and Observability may be
// nil; a nil model behaves as permanently unavailable.
type Deps struct {
	Templates     *templates.Library
	Synthesizer   Synthesizer
	Executor      executor.Executor
	Model         synth.Completer
	Retriever     knowledge.Retriever
	Planner       *plan.Planner
	Observability *observability.Observability
	Clock         func() time.Time
}

type Config struct {
	DefaultWindow int
	KnowledgeTopK int
	Persona       string
}

// Orchestrator resolves routed requests into Outcomes. It holds no
// per-request state and is safe for concurrent use.
type Orchestrator struct {
	templates *templates.Library
	synth     Synthesizer
	exec      executor.Executor
	model     synth.Completer
	retriever knowledge.Retriever
	planner   *plan.Planner
	obs       *observability.Observability
	clock     func() time.Time
	cfg       Config
	logger    logger.Logger
}

func New(deps Deps, cfg Config, log logger.Logger) (*Orchestrator, error) {
	if deps.Templates == nil || deps.Executor == nil || deps.Synthesizer == nil {
		return nil, ErrMissingDependency
	}
	if deps.Planner == nil {
		p, err := plan.NewPlanner(plan.DefaultDays)
		if err != nil {
			return nil, err
		}
		deps.Planner = p
	}
	if deps.Observability == nil {
		deps.Observability = observability.NewNoop()
	}
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	if cfg.DefaultWindow <= 0 {
		cfg.DefaultWindow = models.DefaultWindowSize
	}
	if cfg.KnowledgeTopK <= 0 {
		cfg.KnowledgeTopK = 4
	}
	return &Orchestrator{
		templates: deps.Templates,
		synth:     deps.Synthesizer,
		exec:      deps.Executor,
		model:     deps.Model,
		retriever: deps.Retriever,
		planner:   deps.Planner,
		obs:       deps.Observability,
		clock:     deps.Clock,
		cfg:       cfg,
		logger:    logger.Named(log, "orchestrator"),
	}, nil
}

// Resolve never returns an error; every failure is a typed Outcome.
func (o *Orchestrator) Resolve(ctx context.Context, req models.RoutedRequest, identity interface{}) Outcome {
	start := o.clock()
	ctx, span := o.obs.StartSpan(ctx, "orchestrator.resolve",
		attribute.String("mode", string(req.Mode())),
		attribute.String("intent", string(req.Intent())),
	)
	defer span.End()

	out := o.dispatch(ctx, req, identity)
	out.ID = uuid.NewString()
	out.Intent = req.Intent()
	out.Mode = req.Mode()

	o.record(ctx, span, out, string(out.Intent), start)
	return out
}

// record tags the span, counts the outcome under label and logs it.
func (o *Orchestrator) record(ctx context.Context, span trace.Span, out Outcome, label string, start time.Time) {
	span.SetAttributes(attribute.String("outcome", string(out.Kind)))
	if out.Kind == Failed {
		span.SetStatus(codes.Error, out.Reason)
	}
	metrics.QuestionOutcomes.WithLabelValues(string(out.Kind), label).Inc()
	o.obs.RecordResolved(ctx, label, string(out.Kind), o.clock().Sub(start))

	fields := map[string]interface{}{
		"outcomeId": out.ID,
		"mode":      string(out.Mode),
		"intent":    string(out.Intent),
		"kind":      string(out.Kind),
	}
	if out.Phase != "" {
		fields["phase"] = string(out.Phase)
	}
	if out.Code != "" {
		fields["code"] = out.Code
	}
	if out.Kind == Failed {
		fields["reason"] = out.Reason
		fields["detail"] = out.Detail
		o.logger.Warn("question failed", fields)
	} else {
		o.logger.Info("question resolved", fields)
	}
}

func (o *Orchestrator) dispatch(ctx context.Context, req models.RoutedRequest, identity interface{}) Outcome {
	switch req.Mode() {
	case models.ModeTemplateOnly:
		if identity == nil {
			return parameterFailure(req.Intent(), "identity", "identity is required")
		}
		return o.resolveTemplate(ctx, req, identity)

	case models.ModeGenerativeFallback:
		if identity == nil {
			return parameterFailure(req.Intent(), "identity", "identity is required")
		}
		switch req.Intent() {
		case models.IntentTrendSummary:
			return o.resolveTrend(ctx, req, identity)
		case models.IntentPersonalAnalysis:
			return o.resolveAnalysis(ctx, req, identity)
		case models.IntentPersonalPlan:
			return o.resolvePlan(ctx, req, identity)
		}

	case models.ModeKnowledgeLookup:
		return o.resolveKnowledge(ctx, req)

	case models.ModeFreeform:
		return o.resolveFreeform(ctx, req)
	}
	pair := string(req.Mode()) + "/" + string(req.Intent())
	return failed(ReasonUnsupportedIntent, pair).withError(apperrors.NewUnsupportedIntentError(pair))
}

// complete treats a nil model as unavailable.
func (o *Orchestrator) complete(ctx context.Context, system, user string) (string, bool) {
	if o.model == nil {
		return "", true
	}
	return o.model.Complete(ctx, system, user)
}

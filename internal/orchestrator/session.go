package orchestrator

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	apperrors "session-insights/internal/common/errors"
	"session-insights/internal/models"
	"session-insights/internal/query"
)

// Phase is the point in a session an insight is requested for.
type Phase string

const (
	PhaseStart Phase = "start"
	PhaseEnd   Phase = "end"
)

// ParsePhase accepts "start" or "end" in any case.
func ParsePhase(s string) (Phase, error) {
	switch p := Phase(strings.ToLower(strings.TrimSpace(s))); p {
	case PhaseStart, PhaseEnd:
		return p, nil
	}
	return "", fmt.Errorf("unknown phase %q (want start or end)", s)
}

// Canned texts for session insights.
const (
	TextNoRecentSessions     = "No recent sessions found. Try a gentle warm-up and maintain comfortable pacing."
	TextStartInsightsOffline = "Insights temporarily unavailable. Consider gentle warm-up, posture checks, and even pacing."
	TextEndInsightsOffline   = "Insights temporarily unavailable. For next time: keep a steady cadence, check posture alignment, and hydrate."
)

const startInsightRules = `You are a concise movement coach preparing the user for a new session.
Use ONLY the numbers provided.
Give 2-3 short observations about recent sessions against the all-time averages,
then 2 safety-aware warm-up recommendations. No diagnoses.`

const endInsightRules = `You are a concise movement coach reviewing the session that just ended.
Use ONLY the numbers provided.
Give 2-3 short observations about this session, then 2 tips for next time. No diagnoses.`

// insightWindow is how many recent sessions a start insight looks at.
const insightWindow = 10

// SessionInsights produces a short coaching note before a session starts
// or after it ends. sessionID is only read for PhaseEnd. Like Resolve it
// never returns an error.
func (o *Orchestrator) SessionInsights(ctx context.Context, phase Phase, identity interface{}, sessionID int64) Outcome {
	start := o.clock()
	ctx, span := o.obs.StartSpan(ctx, "orchestrator.session_insights",
		attribute.String("phase", string(phase)),
	)
	defer span.End()

	var out Outcome
	switch {
	case identity == nil:
		out = parameterFailure(models.IntentSessionDetail, "identity", "identity is required")
	case phase == PhaseStart:
		out = o.startInsights(ctx, identity)
	case phase == PhaseEnd:
		out = o.endInsights(ctx, identity, sessionID)
	default:
		out = failed(ReasonUnsupportedIntent, "phase "+string(phase)).
			withError(apperrors.NewUnsupportedIntentError("session_insights/" + string(phase)))
	}
	out.ID = uuid.NewString()
	out.Phase = phase

	o.record(ctx, span, out, "session_insights_"+string(phase), start)
	return out
}

func (o *Orchestrator) startInsights(ctx context.Context, identity interface{}) Outcome {
	var recent, overview *query.ResultSet
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		rs, err := o.exec.Execute(gctx, o.templates.RecentSessions(identity, insightWindow))
		recent = rs
		return err
	})
	g.Go(func() error {
		rs, err := o.exec.Execute(gctx, o.templates.HealthOverview(identity, insightWindow))
		overview = rs
		return err
	})
	if err := g.Wait(); err != nil {
		return dataFailure(err)
	}

	if recent.Empty() {
		return answered(&Payload{Rows: recent, Empty: true, Text: TextNoRecentSessions})
	}
	p := &Payload{
		Rows:     recent,
		Sections: map[string]*query.ResultSet{"recent": recent, "overview": overview},
	}

	text, unavailable := o.askWithData(ctx, startInsightRules, "",
		block(fmt.Sprintf("Last %d sessions", insightWindow), recent),
		block("All-time averages", overview))
	if unavailable {
		return modelDown(TextStartInsightsOffline, p, "start insights")
	}
	p.Text = text
	return answered(p)
}

func (o *Orchestrator) endInsights(ctx context.Context, identity interface{}, sessionID int64) Outcome {
	if sessionID <= 0 {
		return parameterFailure(models.IntentSessionDetail, models.ParamSessionID,
			fmt.Sprintf("session id must be positive, got %d", sessionID))
	}
	stmt, err := o.templates.Build(models.NewRoutedRequest(models.ModeTemplateOnly, models.IntentSessionDetail,
		map[string]interface{}{models.ParamSessionID: sessionID}), identity)
	if err != nil {
		return parameterFailure(models.IntentSessionDetail, models.ParamSessionID, err.Error())
	}

	rs, err := o.exec.Execute(ctx, stmt)
	if err != nil {
		return dataFailure(err)
	}
	if rs.Empty() {
		return answered(&Payload{Rows: rs, Empty: true})
	}

	p := &Payload{Rows: rs}
	text, unavailable := o.askWithData(ctx, endInsightRules, "", block("This session", rs))
	if unavailable {
		return modelDown(TextEndInsightsOffline, p, "end insights")
	}
	p.Text = text
	return answered(p)
}

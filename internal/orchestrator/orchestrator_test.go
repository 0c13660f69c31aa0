package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/goleak"

	apperrors "session-insights/internal/common/errors"
	"session-insights/internal/common/logger"
	"session-insights/internal/common/observability"
	"session-insights/internal/knowledge"
	"session-insights/internal/models"
	"session-insights/internal/plan"
	"session-insights/internal/query"
	"session-insights/internal/query/guard"
	"session-insights/internal/query/synth"
	"session-insights/internal/query/templates"
	"session-insights/internal/routing"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var fixedNow = time.Date(2026, 3, 30, 9, 15, 0, 0, time.UTC)

// Statement text markers for the templates the orchestrator uses.
const (
	markDetail   = "SELECT * FROM sessions"
	markListing  = "ORDER BY start_time DESC\nLIMIT $2"
	markOverview = "long_hist"
	markAverages = "AVG(cadence_spm)"
	markAlerts   = "FROM alerts a"
	markRecs     = "FROM recommendations r"
)

// ==========================
// Fakes
// ==========================

type execRoute struct {
	match string
	rs    *query.ResultSet
	err   error
}

type fakeExecutor struct {
	mu     sync.Mutex
	routes []execRoute
	calls  []query.Statement
}

func (f *fakeExecutor) on(match string, rs *query.ResultSet, err error) *fakeExecutor {
	f.routes = append(f.routes, execRoute{match: match, rs: rs, err: err})
	return f
}

func (f *fakeExecutor) Execute(_ context.Context, stmt query.Statement) (*query.ResultSet, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, stmt)
	for _, r := range f.routes {
		if strings.Contains(stmt.Text(), r.match) {
			return r.rs, r.err
		}
	}
	return &query.ResultSet{}, nil
}

func (f *fakeExecutor) count(match string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, s := range f.calls {
		if strings.Contains(s.Text(), match) {
			n++
		}
	}
	return n
}

func (f *fakeExecutor) total() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type reply struct {
	text        string
	unavailable bool
}

type modelCall struct {
	system string
	user   string
}

type fakeModel struct {
	mu      sync.Mutex
	replies []reply
	calls   []modelCall
}

func (m *fakeModel) Complete(_ context.Context, system, user string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, modelCall{system: system, user: user})
	if len(m.replies) == 0 {
		return "", true
	}
	r := m.replies[0]
	m.replies = m.replies[1:]
	return r.text, r.unavailable
}

type fakeRetriever struct {
	docs []knowledge.Document
	err  error
}

func (r *fakeRetriever) Search(context.Context, string, int) ([]knowledge.Document, error) {
	return r.docs, r.err
}

type options struct {
	model     *fakeModel
	retriever knowledge.Retriever
	obs       *observability.Observability
}

func newOrchestrator(t *testing.T, exec *fakeExecutor, o options) *Orchestrator {
	t.Helper()
	log := logger.NewTestLogger(t)

	var model synth.Completer
	if o.model != nil {
		model = o.model
	}
	lib := templates.New(templates.Config{Dialect: query.Postgres})
	g := guard.New(guard.Config{RowCap: 100, Dialect: query.Postgres}, log)
	s := synth.New(g, lib, model, nil, nil, synth.Config{DefaultWindow: 10}, log)

	orch, err := New(Deps{
		Templates:     lib,
		Synthesizer:   s,
		Executor:      exec,
		Model:         model,
		Retriever:     o.retriever,
		Observability: o.obs,
		Clock:         func() time.Time { return fixedNow },
	}, Config{Persona: "You are a movement coach."}, log)
	require.NoError(t, err)
	return orch
}

func rows(cols []string, rs ...query.Row) *query.ResultSet {
	return &query.ResultSet{Columns: cols, Rows: rs}
}

func overviewRow() query.Row {
	return query.Row{
		"total_sessions":    int64(20),
		"avg_posture_all":   75.0,
		"avg_gait_all":      90.0,
		"avg_balance_all":   80.0,
		"avg_steps_all":     5000.0,
		"avg_posture_10":    74.0,
		"avg_gait_10":       89.0,
		"avg_balance_10":    70.0,
		"avg_steps_10":      4800.0,
		"median_duration_s": 600.0,
		"short_sessions_10": int64(4),
		"recent_alerts":     int64(1),
		"recent_recs":       int64(2),
	}
}

func TestNew_RequiresCoreDependencies(t *testing.T) {
	_, err := New(Deps{}, Config{}, logger.NewNoOpLogger())
	assert.ErrorIs(t, err, ErrMissingDependency)
}

// ==========================
// template_only
// ==========================

func TestResolve_ListingEndToEnd(t *testing.T) {
	exec := (&fakeExecutor{}).on(markListing, rows([]string{"id"},
		query.Row{"id": int64(9)}, query.Row{"id": int64(8)}), nil)
	orch := newOrchestrator(t, exec, options{})

	req := routing.NewRouter(logger.NewNoOpLogger()).Route("show me my last 5 sessions")
	out := orch.Resolve(context.Background(), req, "u-1")

	assert.Equal(t, Answered, out.Kind)
	assert.Equal(t, models.IntentSessionListing, out.Intent)
	assert.NotEmpty(t, out.ID)
	require.NotNil(t, out.Data)
	assert.Len(t, out.Data.Rows.Rows, 2)

	require.Equal(t, 1, exec.total())
	assert.Equal(t, []interface{}{"u-1", 5}, exec.calls[0].Params())
	assert.True(t, exec.calls[0].RequiresIdentityScope())
}

func TestResolve_MissingParameterRepairedOnce(t *testing.T) {
	exec := &fakeExecutor{}
	orch := newOrchestrator(t, exec, options{})

	req := models.NewRoutedRequest(models.ModeTemplateOnly, models.IntentSessionListing, nil)
	out := orch.Resolve(context.Background(), req, "u-1")

	assert.Equal(t, Answered, out.Kind)
	assert.True(t, out.Data.Empty)
	require.Equal(t, 1, exec.total())
	assert.Equal(t, []interface{}{"u-1", 10}, exec.calls[0].Params())
}

func TestResolve_DetailWithoutTargetUsesLatest(t *testing.T) {
	exec := (&fakeExecutor{}).
		on(markAlerts, rows([]string{"id", "level", "message"}, query.Row{"id": int64(1), "level": "warn", "message": "heel strike"}), nil).
		on(markRecs, nil, errors.New("recommendations table locked")).
		on(markDetail, rows([]string{"id"}, query.Row{"id": int64(42)}), nil)
	orch := newOrchestrator(t, exec, options{})

	req := models.NewRoutedRequest(models.ModeTemplateOnly, models.IntentSessionDetail, nil)
	out := orch.Resolve(context.Background(), req, "u-1")

	require.Equal(t, Answered, out.Kind)
	assert.Contains(t, exec.calls[0].Text(), "ORDER BY end_time DESC LIMIT 1")
	require.NotNil(t, out.Data.Sections["alerts"])
	assert.Len(t, out.Data.Sections["alerts"].Rows, 1)
	assert.NotContains(t, out.Data.Sections, "recommendations")
	assert.Equal(t, 1, exec.count(markAlerts))
}

func TestResolve_TemplateDataErrorNotRetried(t *testing.T) {
	exec := (&fakeExecutor{}).on(markListing, nil, errors.New("QUERY_EXECUTION_FAILED: connection reset"))
	orch := newOrchestrator(t, exec, options{})

	req := models.NewRoutedRequest(models.ModeTemplateOnly, models.IntentSessionListing,
		map[string]interface{}{models.ParamWindowSize: 3})
	out := orch.Resolve(context.Background(), req, "u-1")

	assert.Equal(t, Failed, out.Kind)
	assert.Equal(t, ReasonDataAccess, out.Reason)
	assert.Equal(t, string(apperrors.ErrCodeDataAccessFailed), out.Code)
	assert.True(t, out.Retryable)
	assert.Equal(t, 1, exec.total())
}

func TestResolve_TemplateDataErrorKeepsExecutorCode(t *testing.T) {
	timeout := apperrors.NewQueryTimeoutError("template")
	exec := (&fakeExecutor{}).on(markListing, nil, timeout)
	orch := newOrchestrator(t, exec, options{})

	req := models.NewRoutedRequest(models.ModeTemplateOnly, models.IntentSessionListing,
		map[string]interface{}{models.ParamWindowSize: 3})
	out := orch.Resolve(context.Background(), req, "u-1")

	assert.Equal(t, Failed, out.Kind)
	assert.Equal(t, ReasonDataAccess, out.Reason)
	assert.Equal(t, string(apperrors.ErrCodeQueryTimeout), out.Code)
}

func TestResolve_TemplateUnsupportedIntent(t *testing.T) {
	exec := &fakeExecutor{}
	orch := newOrchestrator(t, exec, options{})

	req := models.NewRoutedRequest(models.ModeTemplateOnly, models.IntentTrendSummary, nil)
	out := orch.Resolve(context.Background(), req, "u-1")

	assert.Equal(t, Failed, out.Kind)
	assert.Equal(t, ReasonUnsupportedIntent, out.Reason)
	assert.Equal(t, string(apperrors.ErrCodeUnsupportedIntent), out.Code)
	assert.Zero(t, exec.total())
}

func TestResolve_IdentityRequiredForData(t *testing.T) {
	exec := &fakeExecutor{}
	orch := newOrchestrator(t, exec, options{})

	req := models.NewRoutedRequest(models.ModeTemplateOnly, models.IntentSessionListing, nil)
	out := orch.Resolve(context.Background(), req, nil)

	assert.Equal(t, Failed, out.Kind)
	assert.Equal(t, ReasonParameter, out.Reason)
	assert.Equal(t, string(apperrors.ErrCodeParameterMissing), out.Code)
	assert.Zero(t, exec.total())
}

func TestResolve_OutOfRangeSessionIDIsAParameterFailure(t *testing.T) {
	for _, intent := range []models.Intent{models.IntentSessionDetail, models.IntentPersonalAnalysis} {
		t.Run(string(intent), func(t *testing.T) {
			exec := &fakeExecutor{}
			orch := newOrchestrator(t, exec, options{})

			mode := models.ModeTemplateOnly
			if intent == models.IntentPersonalAnalysis {
				mode = models.ModeGenerativeFallback
			}
			req := models.NewRoutedRequest(mode, intent, map[string]interface{}{models.ParamSessionID: 1e300})
			out := orch.Resolve(context.Background(), req, "u-1")

			assert.Equal(t, Failed, out.Kind)
			assert.Equal(t, ReasonParameter, out.Reason)
			assert.Equal(t, string(apperrors.ErrCodeParameterMissing), out.Code)
			assert.Zero(t, exec.total())
		})
	}
}

// ==========================
// generative_fallback: trend
// ==========================

func TestResolve_RejectedStatementNeverExecuted(t *testing.T) {
	exec := &fakeExecutor{}
	model := &fakeModel{replies: []reply{{text: "DROP TABLE sessions;"}}}
	orch := newOrchestrator(t, exec, options{model: model})

	req := routing.NewRouter(logger.NewNoOpLogger()).Route("DROP TABLE sessions; -- give me stats")
	require.Equal(t, models.ModeGenerativeFallback, req.Mode())

	out := orch.Resolve(context.Background(), req, "u-1")

	assert.Equal(t, Failed, out.Kind)
	assert.Equal(t, "rejected:unsafe verb", out.Reason)
	assert.Equal(t, "DROP", out.Detail)
	assert.Equal(t, string(apperrors.ErrCodeQueryRejected), out.Code)
	assert.Zero(t, exec.total())
	assert.Len(t, model.calls, 1)
}

func TestResolve_TrendGenerated(t *testing.T) {
	exec := (&fakeExecutor{}).on("AVG(cadence_spm) AS cadence", rows([]string{"cadence"}, query.Row{"cadence": 104.5}), nil)
	model := &fakeModel{replies: []reply{
		{text: "```sql\nSELECT AVG(cadence_spm) AS cadence FROM sessions;\n```"},
		{text: "Summary: Cadence is steady at 104.5 spm."},
	}}
	orch := newOrchestrator(t, exec, options{model: model})

	req := models.NewRoutedRequest(models.ModeGenerativeFallback, models.IntentTrendSummary, nil).
		WithQuestion("how has my cadence changed")
	out := orch.Resolve(context.Background(), req, "u-1")

	require.Equal(t, Answered, out.Kind)
	assert.Nil(t, out.Data.Profile)
	assert.Equal(t, "Summary: Cadence is steady at 104.5 spm.", out.Data.Text)
	require.Equal(t, 1, exec.total())
	assert.Contains(t, exec.calls[0].Text(), "user_id = $1")
	assert.Contains(t, exec.calls[0].Text(), "LIMIT 100")

	require.Len(t, model.calls, 2)
	assert.Contains(t, model.calls[1].system, "Observations:")
	assert.Contains(t, model.calls[1].system, "trends vs all-time averages")
	assert.Contains(t, model.calls[1].user, "Question: how has my cadence changed")
	assert.Contains(t, model.calls[1].user, "- cadence=104.5")
}

func TestResolve_TrendModelUnavailableDegradesToOverview(t *testing.T) {
	exec := (&fakeExecutor{}).on(markOverview, rows(nil, overviewRow()), nil)
	orch := newOrchestrator(t, exec, options{model: &fakeModel{}})

	req := models.NewRoutedRequest(models.ModeGenerativeFallback, models.IntentTrendSummary, nil).
		WithQuestion("how is my cadence doing")
	out := orch.Resolve(context.Background(), req, "u-1")

	require.Equal(t, Degraded, out.Kind)
	assert.Equal(t, TextModelUnavailable, out.FallbackText)
	assert.Equal(t, string(apperrors.ErrCodeModelUnavailable), out.Code)
	require.NotNil(t, out.Data.Profile)
	assert.Equal(t, []string{"balance"}, out.Data.Profile.Declines)
	assert.True(t, out.Data.Profile.Fatigue)
	assert.Equal(t, "Tandem Stance", out.Data.Suggestions[0].Name)
	assert.Equal(t, 3, out.Data.Suggestions[0].Minutes)
}

func TestResolve_TrendWithoutQuestionUsesFixedStatement(t *testing.T) {
	exec := &fakeExecutor{}
	model := &fakeModel{}
	orch := newOrchestrator(t, exec, options{model: model})

	req := models.NewRoutedRequest(models.ModeGenerativeFallback, models.IntentTrendSummary,
		map[string]interface{}{models.ParamWindowSize: 7})
	out := orch.Resolve(context.Background(), req, "u-1")

	assert.Equal(t, Answered, out.Kind)
	assert.True(t, out.Data.Empty)
	assert.Empty(t, model.calls)
	require.Equal(t, 1, exec.total())
	assert.Contains(t, exec.calls[0].Text(), "LIMIT 7")
}

// ==========================
// generative_fallback: analysis
// ==========================

func TestResolve_AnalysisComparesSessionWithOverview(t *testing.T) {
	exec := (&fakeExecutor{}).
		on(markOverview, rows(nil, overviewRow()), nil).
		on(markDetail, rows(nil, query.Row{"id": int64(12), "posture_score": 80.0, "balance_score": 78.5}), nil)
	model := &fakeModel{replies: []reply{{text: "Summary: Posture beat your average.\nSafety: Rest if sore."}}}
	orch := newOrchestrator(t, exec, options{model: model})

	req := models.NewRoutedRequest(models.ModeGenerativeFallback, models.IntentPersonalAnalysis,
		map[string]interface{}{models.ParamSessionID: int64(12)})
	out := orch.Resolve(context.Background(), req, "u-1")

	require.Equal(t, Answered, out.Kind)
	assert.Equal(t, "Summary: Posture beat your average.\nSafety: Rest if sore.", out.Data.Text)
	require.Len(t, model.calls, 1)
	assert.Contains(t, model.calls[0].system, "single session and its relation to all-time averages")
	assert.Contains(t, model.calls[0].user, "Session:\n- balance_score=78.5, id=12, posture_score=80")
	assert.Contains(t, model.calls[0].user, "Overview:\n")
	assert.Equal(t, map[string]float64{
		"delta_posture_score": 5,
		"delta_balance_score": -1.5,
	}, out.Data.Comparison)
	assert.Contains(t, out.Data.Sections, "overview")
	assert.Contains(t, out.Data.Sections, "session")
	require.NotNil(t, out.Data.Profile)
	assert.Equal(t, 1, exec.count(markDetail))
	assert.Equal(t, 1, exec.count(markOverview))
}

func TestResolve_AnalysisEmptySession(t *testing.T) {
	exec := (&fakeExecutor{}).on(markOverview, rows(nil, overviewRow()), nil)
	orch := newOrchestrator(t, exec, options{})

	req := models.NewRoutedRequest(models.ModeGenerativeFallback, models.IntentPersonalAnalysis, nil)
	out := orch.Resolve(context.Background(), req, "u-1")

	assert.Equal(t, Answered, out.Kind)
	assert.True(t, out.Data.Empty)
}

func TestResolve_NarrativeUnavailableDegrades(t *testing.T) {
	tests := []struct {
		name     string
		exec     *fakeExecutor
		model    *fakeModel
		req      models.RoutedRequest
		wantText string
	}{
		{
			name: "analysis",
			exec: (&fakeExecutor{}).
				on(markOverview, rows(nil, overviewRow()), nil).
				on(markDetail, rows(nil, query.Row{"id": int64(12), "posture_score": 80.0}), nil),
			model: &fakeModel{},
			req: models.NewRoutedRequest(models.ModeGenerativeFallback, models.IntentPersonalAnalysis,
				map[string]interface{}{models.ParamSessionID: int64(12)}),
			wantText: TextAnalysisUnavailable,
		},
		{
			name: "trend",
			exec: (&fakeExecutor{}).on("AVG(cadence_spm) AS cadence", rows([]string{"cadence"}, query.Row{"cadence": 104.5}), nil),
			model: &fakeModel{replies: []reply{
				{text: "```sql\nSELECT AVG(cadence_spm) AS cadence FROM sessions;\n```"},
				{unavailable: true},
			}},
			req: models.NewRoutedRequest(models.ModeGenerativeFallback, models.IntentTrendSummary, nil).
				WithQuestion("how has my cadence changed"),
			wantText: TextSummaryUnavailable,
		},
		{
			name: "trend blank answer",
			exec: (&fakeExecutor{}).on("AVG(cadence_spm) AS cadence", rows([]string{"cadence"}, query.Row{"cadence": 104.5}), nil),
			model: &fakeModel{replies: []reply{
				{text: "```sql\nSELECT AVG(cadence_spm) AS cadence FROM sessions;\n```"},
				{text: "  \n"},
			}},
			req: models.NewRoutedRequest(models.ModeGenerativeFallback, models.IntentTrendSummary, nil).
				WithQuestion("how has my cadence changed"),
			wantText: TextSummaryUnavailable,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			orch := newOrchestrator(t, tt.exec, options{model: tt.model})
			out := orch.Resolve(context.Background(), tt.req, "u-1")

			require.Equal(t, Degraded, out.Kind)
			assert.Equal(t, tt.wantText, out.FallbackText)
			assert.Equal(t, string(apperrors.ErrCodeModelUnavailable), out.Code)
			require.NotNil(t, out.Data)
			assert.False(t, out.Data.Empty)
			assert.Empty(t, out.Data.Text)
		})
	}
}

func TestResolve_AnalysisDataError(t *testing.T) {
	exec := (&fakeExecutor{}).on(markOverview, nil, errors.New("QUERY_TIMEOUT"))
	orch := newOrchestrator(t, exec, options{})

	req := models.NewRoutedRequest(models.ModeGenerativeFallback, models.IntentPersonalAnalysis, nil)
	out := orch.Resolve(context.Background(), req, "u-1")

	assert.Equal(t, Failed, out.Kind)
	assert.Equal(t, ReasonDataAccess, out.Reason)
}

// ==========================
// generative_fallback: plan
// ==========================

func validPlanJSON(days int) string {
	var entries []string
	for i := 1; i <= days; i++ {
		entries = append(entries, fmt.Sprintf(
			`{"day": %d, "focus": "balance", "exercises": [{"name": "Tandem stance", "sets": 2, "reps": "20s", "notes": "near a wall"}]}`, i))
	}
	return fmt.Sprintf(`{"summary": "Balance focus", "weekly_plan": [%s], "safety": "Stop if dizzy."}`, strings.Join(entries, ","))
}

func planRequest() models.RoutedRequest {
	return routing.NewRouter(logger.NewNoOpLogger()).Route("make me a plan for balance")
}

func TestResolve_PlanModelUnavailableReturnsDatedFallback(t *testing.T) {
	exec := &fakeExecutor{}
	model := &fakeModel{replies: []reply{{unavailable: true}}}
	orch := newOrchestrator(t, exec, options{model: model})

	out := orch.Resolve(context.Background(), planRequest(), "u-1")

	require.Equal(t, Degraded, out.Kind)
	assert.Equal(t, TextPlanFallback, out.FallbackText)
	assert.Equal(t, string(apperrors.ErrCodeModelUnavailable), out.Code)
	p := out.Data.Plan
	require.NotNil(t, p)
	require.Len(t, p.WeeklyPlan, 14)
	for i, d := range p.WeeklyPlan {
		assert.Equal(t, i+1, d.Day)
		assert.Equal(t, fixedNow.AddDate(0, 0, i).Format("2006-01-02"), d.Date)
		assert.NotEmpty(t, d.Exercises)
	}

	planner, err := plan.NewPlanner(14)
	require.NoError(t, err)
	assert.NoError(t, planner.Validate(p))
	assert.Len(t, model.calls, 1, "no corrective call when unavailable")
}

func TestResolve_PlanValidOnFirstCall(t *testing.T) {
	exec := &fakeExecutor{}
	model := &fakeModel{replies: []reply{{text: validPlanJSON(14)}}}
	orch := newOrchestrator(t, exec, options{model: model})

	out := orch.Resolve(context.Background(), planRequest(), "u-1")

	require.Equal(t, Answered, out.Kind)
	assert.Equal(t, "Balance focus", out.Data.Plan.Summary)
	assert.Equal(t, "balance", out.Data.Plan.Goal)
	assert.Equal(t, "2026-03-30", out.Data.Plan.WeeklyPlan[0].Date)
	require.Len(t, model.calls, 1)
	assert.Equal(t, plan.Instruction, model.calls[0].user)
	assert.Contains(t, model.calls[0].system, "Goal: balance")
	assert.Equal(t, 1, exec.count(markAverages))
	assert.Equal(t, 1, exec.count(markListing))
}

func TestResolve_PlanCorrectedOnSecondCall(t *testing.T) {
	exec := &fakeExecutor{}
	model := &fakeModel{replies: []reply{
		{text: validPlanJSON(7)},
		{text: "```json\n" + validPlanJSON(14) + "\n```"},
	}}
	orch := newOrchestrator(t, exec, options{model: model})

	out := orch.Resolve(context.Background(), planRequest(), "u-1")

	require.Equal(t, Answered, out.Kind)
	require.Len(t, model.calls, 2)
	assert.Contains(t, model.calls[1].system, "Problems found")
	assert.Contains(t, model.calls[1].system, "weekly_plan")
	assert.Equal(t, plan.CorrectionInstruction, model.calls[1].user)
}

func TestResolve_PlanInvalidTwiceFallsBack(t *testing.T) {
	exec := &fakeExecutor{}
	model := &fakeModel{replies: []reply{{text: "not a plan"}, {text: `{"summary": "x"}`}}}
	orch := newOrchestrator(t, exec, options{model: model})

	out := orch.Resolve(context.Background(), planRequest(), "u-1")

	require.Equal(t, Degraded, out.Kind)
	assert.Equal(t, string(apperrors.ErrCodePlanValidation), out.Code)
	assert.Len(t, out.Data.Plan.WeeklyPlan, 14)
	assert.Len(t, model.calls, 2)
}

func TestResolve_PlanContextErrorsOnlyThinContext(t *testing.T) {
	exec := (&fakeExecutor{}).
		on(markAverages, nil, errors.New("QUERY_TIMEOUT")).
		on(markListing, nil, errors.New("QUERY_TIMEOUT"))
	model := &fakeModel{replies: []reply{{text: validPlanJSON(14)}}}
	orch := newOrchestrator(t, exec, options{model: model})

	out := orch.Resolve(context.Background(), planRequest(), "u-1")

	assert.Equal(t, Answered, out.Kind)
	assert.Contains(t, model.calls[0].system, "could not be loaded")
}

// ==========================
// knowledge_lookup / freeform
// ==========================

func knowledgeRequest() models.RoutedRequest {
	return models.NewRoutedRequest(models.ModeKnowledgeLookup, models.IntentKnowledgeAnswer, nil).
		WithQuestion("how do i pair the insoles")
}

var pairingDocs = []knowledge.Document{{ID: "a1", Title: "Pairing", Content: "Open the app. Hold the insoles near the phone. Wait."}}

func TestResolve_KnowledgeAnswered(t *testing.T) {
	model := &fakeModel{replies: []reply{{text: "Open the app and hold them close [1]."}}}
	orch := newOrchestrator(t, &fakeExecutor{}, options{model: model, retriever: &fakeRetriever{docs: pairingDocs}})

	out := orch.Resolve(context.Background(), knowledgeRequest(), "u-1")

	require.Equal(t, Answered, out.Kind)
	assert.Equal(t, "Open the app and hold them close [1].", out.Data.Text)
	assert.Contains(t, model.calls[0].user, "[1] Pairing - ")
}

func TestResolve_KnowledgeDegrades(t *testing.T) {
	tests := []struct {
		name      string
		retriever knowledge.Retriever
		wantText  string
	}{
		{"no retriever", nil, TextKnowledgeUnavailable},
		{"search error", &fakeRetriever{err: knowledge.ErrSearchFailed}, TextKnowledgeUnavailable},
		{"no documents", &fakeRetriever{}, TextNoDocuments},
		{"model unavailable", &fakeRetriever{docs: pairingDocs}, `From "Pairing": Open the app. Hold the insoles near the phone. [1]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			orch := newOrchestrator(t, &fakeExecutor{}, options{model: &fakeModel{}, retriever: tt.retriever})
			out := orch.Resolve(context.Background(), knowledgeRequest(), "u-1")
			assert.Equal(t, Degraded, out.Kind)
			assert.Equal(t, tt.wantText, out.FallbackText)
		})
	}
}

func TestResolve_Freeform(t *testing.T) {
	model := &fakeModel{replies: []reply{{text: "Hi there!"}}}
	orch := newOrchestrator(t, &fakeExecutor{}, options{model: model})

	req := routing.NewRouter(logger.NewNoOpLogger()).Route("good morning")
	out := orch.Resolve(context.Background(), req, nil)

	require.Equal(t, Answered, out.Kind)
	assert.Equal(t, "Hi there!", out.Data.Text)
	assert.Equal(t, "You are a movement coach.", model.calls[0].system)

	out = orch.Resolve(context.Background(), req, nil)
	assert.Equal(t, Degraded, out.Kind)
	assert.Equal(t, TextHelp, out.FallbackText)
}

// ==========================
// Session insights
// ==========================

func TestParsePhase(t *testing.T) {
	p, err := ParsePhase(" Start ")
	require.NoError(t, err)
	assert.Equal(t, PhaseStart, p)

	p, err = ParsePhase("end")
	require.NoError(t, err)
	assert.Equal(t, PhaseEnd, p)

	_, err = ParsePhase("middle")
	assert.Error(t, err)
}

func TestSessionInsights(t *testing.T) {
	recent := rows([]string{"id", "posture_score"},
		query.Row{"id": int64(9), "posture_score": 71.0},
		query.Row{"id": int64(8), "posture_score": 77.25})
	ended := rows(nil, query.Row{"id": int64(9), "cadence_spm": 102.0})

	tests := []struct {
		name      string
		phase     Phase
		sessionID int64
		identity  interface{}
		exec      *fakeExecutor
		replies   []reply
		wantKind  Kind
		wantText  string
		wantEmpty bool
		wantCode  apperrors.ErrorCode
		wantCalls int
	}{
		{
			name:      "start answered",
			phase:     PhaseStart,
			identity:  "u-1",
			exec:      (&fakeExecutor{}).on(markListing, recent, nil).on(markOverview, rows(nil, overviewRow()), nil),
			replies:   []reply{{text: "Posture dipped to 71 last time. Warm up your hips."}},
			wantKind:  Answered,
			wantText:  "Posture dipped to 71 last time. Warm up your hips.",
			wantCalls: 1,
		},
		{
			name:      "start without sessions",
			phase:     PhaseStart,
			identity:  "u-1",
			exec:      &fakeExecutor{},
			wantKind:  Answered,
			wantText:  TextNoRecentSessions,
			wantEmpty: true,
		},
		{
			name:      "start model unavailable",
			phase:     PhaseStart,
			identity:  "u-1",
			exec:      (&fakeExecutor{}).on(markListing, recent, nil),
			wantKind:  Degraded,
			wantText:  TextStartInsightsOffline,
			wantCode:  apperrors.ErrCodeModelUnavailable,
			wantCalls: 1,
		},
		{
			name:     "start data error",
			phase:    PhaseStart,
			identity: "u-1",
			exec:     (&fakeExecutor{}).on(markOverview, nil, apperrors.NewQueryTimeoutError("template")),
			wantKind: Failed,
			wantCode: apperrors.ErrCodeQueryTimeout,
		},
		{
			name:      "end answered",
			phase:     PhaseEnd,
			sessionID: 9,
			identity:  "u-1",
			exec:      (&fakeExecutor{}).on(markDetail, ended, nil),
			replies:   []reply{{text: "Cadence held at 102 spm. Keep it steady."}},
			wantKind:  Answered,
			wantText:  "Cadence held at 102 spm. Keep it steady.",
			wantCalls: 1,
		},
		{
			name:      "end model unavailable",
			phase:     PhaseEnd,
			sessionID: 9,
			identity:  "u-1",
			exec:      (&fakeExecutor{}).on(markDetail, ended, nil),
			wantKind:  Degraded,
			wantText:  TextEndInsightsOffline,
			wantCode:  apperrors.ErrCodeModelUnavailable,
			wantCalls: 1,
		},
		{
			name:      "end unknown session",
			phase:     PhaseEnd,
			sessionID: 404,
			identity:  "u-1",
			exec:      &fakeExecutor{},
			wantKind:  Answered,
			wantEmpty: true,
		},
		{
			name:     "end without session id",
			phase:    PhaseEnd,
			identity: "u-1",
			exec:     &fakeExecutor{},
			wantKind: Failed,
			wantCode: apperrors.ErrCodeParameterMissing,
		},
		{
			name:     "no identity",
			phase:    PhaseStart,
			exec:     &fakeExecutor{},
			wantKind: Failed,
			wantCode: apperrors.ErrCodeParameterMissing,
		},
		{
			name:     "unknown phase",
			phase:    Phase("middle"),
			identity: "u-1",
			exec:     &fakeExecutor{},
			wantKind: Failed,
			wantCode: apperrors.ErrCodeUnsupportedIntent,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			model := &fakeModel{replies: tt.replies}
			orch := newOrchestrator(t, tt.exec, options{model: model})

			out := orch.SessionInsights(context.Background(), tt.phase, tt.identity, tt.sessionID)

			assert.NotEmpty(t, out.ID)
			assert.Equal(t, tt.phase, out.Phase)
			require.Equal(t, tt.wantKind, out.Kind, out.Detail)
			assert.Equal(t, string(tt.wantCode), out.Code)
			assert.Len(t, model.calls, tt.wantCalls)
			switch out.Kind {
			case Answered:
				require.NotNil(t, out.Data)
				assert.Equal(t, tt.wantText, out.Data.Text)
				assert.Equal(t, tt.wantEmpty, out.Data.Empty)
			case Degraded:
				assert.Equal(t, tt.wantText, out.FallbackText)
			}
		})
	}
}

func TestSessionInsights_Prompts(t *testing.T) {
	exec := (&fakeExecutor{}).
		on(markListing, rows(nil, query.Row{"id": int64(9), "posture_score": 71.0}), nil).
		on(markOverview, rows(nil, overviewRow()), nil).
		on(markDetail, rows(nil, query.Row{"id": int64(9), "cadence_spm": 102.0}), nil)
	model := &fakeModel{replies: []reply{{text: "start"}, {text: "end"}}}
	orch := newOrchestrator(t, exec, options{model: model})

	orch.SessionInsights(context.Background(), PhaseStart, "u-1", 0)
	orch.SessionInsights(context.Background(), PhaseEnd, "u-1", 9)

	require.Len(t, model.calls, 2)
	assert.Contains(t, model.calls[0].system, "You are a movement coach.")
	assert.Contains(t, model.calls[0].system, "warm-up recommendations")
	assert.Contains(t, model.calls[0].user, "Last 10 sessions:\n- id=9, posture_score=71")
	assert.Contains(t, model.calls[0].user, "All-time averages:\n")
	assert.Contains(t, model.calls[1].system, "tips for next time")
	assert.Contains(t, model.calls[1].user, "This session:\n- cadence_spm=102, id=9")

	assert.Equal(t, 1, exec.count(markListing))
	assert.Equal(t, 1, exec.count(markOverview))
}

// ==========================
// Telemetry
// ==========================

func TestResolve_RecordsSpan(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	obs := observability.New("session-insights-test",
		observability.WithSpanProcessor(recorder),
		observability.WithRegisterer(prometheus.NewRegistry()),
		observability.WithoutGlobals(),
	)
	t.Cleanup(obs.Shutdown)

	exec := (&fakeExecutor{}).on(markListing, nil, errors.New("boom"))
	orch := newOrchestrator(t, exec, options{obs: obs})

	req := models.NewRoutedRequest(models.ModeTemplateOnly, models.IntentSessionListing,
		map[string]interface{}{models.ParamWindowSize: 2})
	orch.Resolve(context.Background(), req, "u-1")

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "orchestrator.resolve", spans[0].Name())

	attrs := map[attribute.Key]string{}
	for _, kv := range spans[0].Attributes() {
		attrs[kv.Key] = kv.Value.AsString()
	}
	assert.Equal(t, "template_only", attrs["mode"])
	assert.Equal(t, "session_listing", attrs["intent"])
	assert.Equal(t, "failed", attrs["outcome"])
}

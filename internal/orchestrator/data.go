package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	apperrors "session-insights/internal/common/errors"
	"session-insights/internal/insights"
	"session-insights/internal/models"
	"session-insights/internal/query"
	"session-insights/internal/query/synth"
	"session-insights/internal/query/templates"
)

// resolveTemplate builds the intent's template, repairing one missing
// parameter from the intent's defaults. Data errors are never retried.
func (o *Orchestrator) resolveTemplate(ctx context.Context, req models.RoutedRequest, identity interface{}) Outcome {
	stmt, err := o.templates.Build(req, identity)

	var pe *templates.ParamError
	if errors.As(err, &pe) {
		spec, _ := models.SpecFor(req.Intent())
		if repaired, ok := spec.Substitute(req, pe.Param); ok {
			o.logger.Debug("repairing missing parameter", map[string]interface{}{
				"intent": string(req.Intent()),
				"param":  pe.Param,
			})
			stmt, err = o.templates.Build(repaired, identity)
		}
	}
	if err != nil {
		if errors.Is(err, templates.ErrUnsupportedIntent) {
			return failed(ReasonUnsupportedIntent, err.Error()).
				withError(apperrors.NewUnsupportedIntentError(string(req.Intent())))
		}
		param := "unknown"
		if errors.As(err, &pe) {
			param = pe.Param
		}
		return parameterFailure(req.Intent(), param, err.Error())
	}

	rs, err := o.exec.Execute(ctx, stmt)
	if err != nil {
		return dataFailure(err)
	}
	if rs.Empty() {
		return answered(&Payload{Rows: rs, Empty: true})
	}

	p := &Payload{Rows: rs}
	if req.Intent() == models.IntentSessionDetail {
		p.Sections = o.sessionExtras(ctx, identity, rs.First())
	}
	return answered(p)
}

// sessionExtras fetches alerts and recommendations for a session. They are
// supplementary, so failures are logged and the section left out.
func (o *Orchestrator) sessionExtras(ctx context.Context, identity interface{}, session query.Row) map[string]*query.ResultSet {
	idf, ok := session.Float("id")
	if !ok {
		return nil
	}
	id := int64(idf)

	var alerts, recs *query.ResultSet
	var g errgroup.Group
	g.Go(func() error {
		rs, err := o.exec.Execute(ctx, o.templates.SessionAlerts(identity, id))
		if err != nil {
			o.logger.Warn("session alerts unavailable", map[string]interface{}{"sessionId": id, "error": err.Error()})
			return nil
		}
		alerts = rs
		return nil
	})
	g.Go(func() error {
		rs, err := o.exec.Execute(ctx, o.templates.SessionRecommendations(identity, id))
		if err != nil {
			o.logger.Warn("session recommendations unavailable", map[string]interface{}{"sessionId": id, "error": err.Error()})
			return nil
		}
		recs = rs
		return nil
	})
	_ = g.Wait()

	sections := make(map[string]*query.ResultSet, 2)
	if alerts != nil {
		sections["alerts"] = alerts
	}
	if recs != nil {
		sections["recommendations"] = recs
	}
	return sections
}

// resolveTrend synthesizes a statement for the question. A rejection is a
// policy failure and the executor is not called. Non-empty results from a
// model-written or fixed statement are narrated.
func (o *Orchestrator) resolveTrend(ctx context.Context, req models.RoutedRequest, identity interface{}) Outcome {
	window := req.WindowOr(o.cfg.DefaultWindow)
	question := req.Question()
	if question == "" {
		question = fmt.Sprintf("trend of my last %d sessions", window)
	}

	res, err := o.synth.Synthesize(ctx, question, identity)
	if err != nil {
		return failed(ReasonInternal, err.Error()).withError(apperrors.NewInternalError(err))
	}
	if !res.Decision.Accepted() {
		reason := res.Decision.Reason()
		return failed(RejectedReason(reason), res.Decision.Detail()).
			withError(apperrors.NewQueryRejectedError(string(reason)))
	}

	rs, err := o.exec.Execute(ctx, res.Decision.Statement())
	if err != nil {
		return dataFailure(err)
	}

	p := &Payload{Rows: rs, Empty: rs.Empty()}
	if row := rs.First(); insights.HasOverviewColumns(row) {
		profile := insights.ProfileFromOverview(row)
		p.Profile = &profile
		p.Suggestions = insights.Recommend(profile)
	}
	if res.Source == synth.SourceFallback {
		return modelDown(TextModelUnavailable, p, "query synthesis")
	}
	if p.Empty {
		return answered(p)
	}

	text, unavailable := o.narrate(ctx, FocusTrends, window, req.Question(), block("Results", rs))
	if unavailable {
		return modelDown(TextSummaryUnavailable, p, "trend summary")
	}
	p.Text = text
	return answered(p)
}

// resolveAnalysis loads the target session and the health overview in
// parallel, compares them and asks the model to narrate the comparison.
func (o *Orchestrator) resolveAnalysis(ctx context.Context, req models.RoutedRequest, identity interface{}) Outcome {
	params := map[string]interface{}{models.ParamLatest: true}
	if id, ok := req.SessionID(); ok {
		params = map[string]interface{}{models.ParamSessionID: id}
	} else if req.Has(models.ParamSessionID) {
		return parameterFailure(req.Intent(), models.ParamSessionID, "session_id is not an integer in range")
	}
	detail, err := o.templates.Build(
		models.NewRoutedRequest(models.ModeTemplateOnly, models.IntentSessionDetail, params), identity)
	if err != nil {
		return parameterFailure(req.Intent(), models.ParamSessionID, err.Error())
	}
	window := req.WindowOr(o.cfg.DefaultWindow)
	overviewStmt := o.templates.HealthOverview(identity, window)

	var session, overview *query.ResultSet
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		rs, err := o.exec.Execute(gctx, detail)
		session = rs
		return err
	})
	g.Go(func() error {
		rs, err := o.exec.Execute(gctx, overviewStmt)
		overview = rs
		return err
	})
	if err := g.Wait(); err != nil {
		return dataFailure(err)
	}

	sections := map[string]*query.ResultSet{"session": session, "overview": overview}
	if session.Empty() {
		return answered(&Payload{Rows: session, Empty: true, Sections: sections})
	}

	p := &Payload{
		Rows:       session,
		Sections:   sections,
		Comparison: insights.Compare(session.First(), overview.First()),
	}
	if row := overview.First(); insights.HasOverviewColumns(row) {
		profile := insights.ProfileFromOverview(row)
		p.Profile = &profile
		p.Suggestions = insights.Recommend(profile)
	}

	text, unavailable := o.narrate(ctx, FocusSession, window, req.Question(),
		block("Session", session), block("Overview", overview))
	if unavailable {
		return modelDown(TextAnalysisUnavailable, p, "session analysis")
	}
	p.Text = text
	return answered(p)
}

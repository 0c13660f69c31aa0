package orchestrator

import (
	"context"
	"strings"

	"golang.org/x/sync/errgroup"

	apperrors "session-insights/internal/common/errors"
	"session-insights/internal/models"
	"session-insights/internal/plan"
	"session-insights/internal/query"
)

// resolvePlan asks the model for a plan, allows one corrective call when
// the answer fails validation, and otherwise substitutes the fixed plan.
// Every returned plan is dated from the clock.
func (o *Orchestrator) resolvePlan(ctx context.Context, req models.RoutedRequest, identity interface{}) Outcome {
	goal := req.Goal()
	pc := o.planContext(ctx, identity, req.WindowOr(o.cfg.DefaultWindow))
	system := o.withPersona(o.planner.Prompt(goal, pc))

	var problems []string
	text, unavailable := o.complete(ctx, system, plan.Instruction)
	if !unavailable {
		p, err := o.planner.Parse(text)
		if err == nil {
			return o.planAnswer(p, goal)
		}
		problems = plan.Problems(err)
		o.logger.Info("plan failed validation, asking for a correction", map[string]interface{}{
			"problems": len(problems),
		})

		text, unavailable = o.complete(ctx, system+"\n\n"+o.planner.CorrectionPrompt(problems), plan.CorrectionInstruction)
		if !unavailable {
			p, err = o.planner.Parse(text)
			if err == nil {
				return o.planAnswer(p, goal)
			}
			problems = plan.Problems(err)
			o.logger.Warn("corrected plan failed validation", map[string]interface{}{
				"problems": problems,
			})
		}
	}

	fallback := &Payload{Plan: o.planner.Fallback(goal, o.clock())}
	if len(problems) > 0 && !unavailable {
		return degraded(TextPlanFallback, fallback).
			withError(apperrors.NewPlanValidationError(strings.Join(problems, "; ")))
	}
	return modelDown(TextPlanFallback, fallback, "plan")
}

func (o *Orchestrator) planAnswer(p *plan.Plan, goal string) Outcome {
	if p.Goal == "" {
		p.Goal = goal
	}
	p.Stamp(o.clock())
	return answered(&Payload{Plan: p})
}

// planContext fetches recent averages and sessions. A failed fetch only
// thins the context.
func (o *Orchestrator) planContext(ctx context.Context, identity interface{}, window int) plan.Context {
	var avgs, recent *query.ResultSet
	var avgErr, recentErr error

	var g errgroup.Group
	g.Go(func() error {
		avgs, avgErr = o.exec.Execute(ctx, o.templates.WindowAverages(identity, window))
		return nil
	})
	g.Go(func() error {
		recent, recentErr = o.exec.Execute(ctx, o.templates.RecentSessions(identity, window))
		return nil
	})
	_ = g.Wait()

	pc := plan.Context{Partial: avgErr != nil || recentErr != nil}
	if avgErr == nil {
		pc.Averages = avgs.First()
	}
	if recentErr == nil && recent != nil {
		pc.Recent = recent.Rows
	}
	if pc.Partial {
		o.logger.Warn("plan context incomplete", map[string]interface{}{
			"averagesError": errString(avgErr),
			"recentError":   errString(recentErr),
		})
	}
	return pc
}

func (o *Orchestrator) withPersona(prompt string) string {
	if o.cfg.Persona == "" {
		return prompt
	}
	return o.cfg.Persona + "\n" + prompt
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

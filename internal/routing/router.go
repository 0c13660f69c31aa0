package routing

import (
	"session-insights/internal/common/logger"
	"session-insights/internal/common/metrics"
	"session-insights/internal/models"
)

// Router classifies free text into a RoutedRequest. It holds no mutable
// state and is safe for concurrent use.
type Router struct {
	rules  []Rule
	logger logger.Logger
}

func NewRouter(log logger.Logger) *Router {
	return NewRouterWithRules(Rules(), log)
}

// NewRouterWithRules builds a router over a custom table, mainly for tests.
func NewRouterWithRules(rules []Rule, log logger.Logger) *Router {
	cp := make([]Rule, len(rules))
	copy(cp, rules)
	return &Router{rules: cp, logger: logger.Named(log, "router")}
}

// Route never fails; text no rule claims becomes the general intent.
func (r *Router) Route(text string) models.RoutedRequest {
	q := Normalize(text)

	req, rule := r.match(q)
	req = req.WithQuestion(q)

	r.logger.Debug("question routed", map[string]interface{}{
		"rule":   rule,
		"mode":   string(req.Mode()),
		"intent": string(req.Intent()),
	})
	metrics.QuestionsRouted.WithLabelValues(string(req.Mode()), string(req.Intent())).Inc()
	return req
}

func (r *Router) match(q string) (models.RoutedRequest, string) {
	for _, rule := range r.rules {
		if rule.Match(q) {
			return rule.Build(q), rule.Name
		}
	}
	r.logger.Debug("no rule matched, using general fallback", map[string]interface{}{
		"length": len(q),
	})
	return models.NewRoutedRequest(models.ModeFreeform, models.IntentGeneral, nil), "default"
}

package routing

import (
	"regexp"

	"session-insights/internal/models"
)

// Rule pairs a predicate over normalized text with the request it builds.
type Rule struct {
	Name  string
	Match func(q string) bool
	Build func(q string) models.RoutedRequest
}

var recencyPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\blast\s+session\b`),
	regexp.MustCompile(`\bprevious\s+session\b`),
	regexp.MustCompile(`\bmost\s+recent\s+session\b`),
	regexp.MustCompile(`\brecent\s+session\b`),
	regexp.MustCompile(`\blatest\s+session\b`),
	regexp.MustCompile(`\bprevious\s+one\b`),
}

var listingPhrases = []string{
	"list sessions", "list my sessions", "show sessions", "sessions list",
	"session list", "show my sessions", "display sessions", "view sessions",
	"view my sessions",
}

var overviewPhrases = []string{
	"describe my health", "health overview", "health summary", "health status",
	"health report", "health analysis", "overall health", "summarize my health",
	"summarise my health",
}

var statsPattern = regexp.MustCompile(`\b(?:stats|statistics)\b`)

var planPhrases = []string{
	"exercise plan", "workout plan", "training plan",
	"personalized plan", "personalised plan", "make me a plan",
}

var planForPattern = regexp.MustCompile(`\bplan\s+for\s+(?:my\s+)?(?:core|balance|posture|gait)\b`)

var knowledgePhrases = []string{
	"what is", "how to", "how do i", "benefits of", "exercises for",
	"tips for", "explain cadence", "stride time", "wear insoles",
	"care for insoles",
}

var analysisTerms = []string{
	"insight", "analyze", "analyse", "analysis", "explain", "interpret",
	"comment", "opinion", "recommendation", "tips", "advice", "coach",
	"trend", "compare", "comparison", "improvement",
}

var personalDataTerms = []string{
	"my session", "my data", "from my", "last session", "previous session",
	"gait", "posture", "balance",
}

var helpPhrases = []string{
	"help", "guide", "instructions", "steps to", "best way to", "why does",
	"how can i use", "who are you",
}

func request(mode models.Mode, intent models.Intent, params map[string]interface{}) models.RoutedRequest {
	return models.NewRoutedRequest(mode, intent, params)
}

// withWindow adds window_size when the text names one.
func withWindow(q string, params map[string]interface{}) map[string]interface{} {
	if n, ok := WindowSize(q); ok {
		params[models.ParamWindowSize] = n
	}
	return params
}

// defaultRules is evaluated top to bottom; the first match wins. Specific,
// parameterized intents come before the broad keyword rules.
var defaultRules = []Rule{
	{
		Name: "explicit_session_id",
		Match: func(q string) bool {
			_, ok := SessionID(q)
			return ok
		},
		Build: func(q string) models.RoutedRequest {
			id, _ := SessionID(q)
			return request(models.ModeTemplateOnly, models.IntentSessionDetail,
				map[string]interface{}{models.ParamSessionID: id})
		},
	},
	{
		Name:  "latest_session",
		Match: func(q string) bool { return matchesAny(q, recencyPatterns) },
		Build: func(string) models.RoutedRequest {
			return request(models.ModeTemplateOnly, models.IntentSessionDetail,
				map[string]interface{}{models.ParamLatest: true})
		},
	},
	{
		Name: "session_listing",
		Match: func(q string) bool {
			return containsAny(q, listingPhrases) || lastNSessions.MatchString(q)
		},
		Build: func(q string) models.RoutedRequest {
			n, ok := WindowSize(q)
			if !ok {
				n = models.DefaultWindowSize
			}
			return request(models.ModeTemplateOnly, models.IntentSessionListing,
				map[string]interface{}{models.ParamWindowSize: n})
		},
	},
	{
		Name: "health_overview",
		Match: func(q string) bool {
			return IsHealthOverview(q) || statsPattern.MatchString(q)
		},
		Build: func(q string) models.RoutedRequest {
			return request(models.ModeGenerativeFallback, models.IntentTrendSummary,
				withWindow(q, map[string]interface{}{}))
		},
	},
	{
		Name: "personal_plan",
		Match: func(q string) bool {
			return containsAny(q, planPhrases) || planForPattern.MatchString(q)
		},
		Build: func(q string) models.RoutedRequest {
			return request(models.ModeGenerativeFallback, models.IntentPersonalPlan,
				withWindow(q, map[string]interface{}{models.ParamGoal: Goal(q)}))
		},
	},
	{
		Name:  "knowledge",
		Match: IsKnowledgeQuestion,
		Build: func(string) models.RoutedRequest {
			return request(models.ModeKnowledgeLookup, models.IntentKnowledgeAnswer, nil)
		},
	},
	{
		Name: "personal_analysis",
		Match: func(q string) bool {
			return containsAny(q, analysisTerms) && containsAny(q, personalDataTerms)
		},
		Build: func(q string) models.RoutedRequest {
			params := map[string]interface{}{}
			if id, ok := SessionID(q); ok {
				params[models.ParamSessionID] = id
			} else if HasRecency(q) {
				params[models.ParamLatest] = true
			}
			return request(models.ModeGenerativeFallback, models.IntentPersonalAnalysis,
				withWindow(q, params))
		},
	},
	{
		Name:  "general_help",
		Match: func(q string) bool { return containsAny(q, helpPhrases) },
		Build: func(string) models.RoutedRequest {
			return request(models.ModeFreeform, models.IntentGeneralHelp, nil)
		},
	},
}

// Rules returns a copy of the default rule table in evaluation order.
func Rules() []Rule {
	out := make([]Rule, len(defaultRules))
	copy(out, defaultRules)
	return out
}

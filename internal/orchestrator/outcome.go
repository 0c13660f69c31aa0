package orchestrator

import (
	"errors"

	apperrors "session-insights/internal/common/errors"
	"session-insights/internal/insights"
	"session-insights/internal/knowledge"
	"session-insights/internal/models"
	"session-insights/internal/plan"
	"session-insights/internal/query"
	"session-insights/internal/query/guard"
)

// Kind is the three-way result of resolving a question.
type Kind string

const (
	Answered Kind = "answered"
	Degraded Kind = "degraded"
	Failed   Kind = "failed"
)

// Failure reasons. Rejections are reported as "rejected:<guard reason>".
const (
	ReasonParameter         = "parameter"
	ReasonDataAccess        = "data_access"
	ReasonUnsupportedIntent = "unsupported_intent"
	ReasonInternal          = "internal"
	rejectedPrefix          = "rejected:"
)

// RejectedReason renders the failure reason for a guard rejection.
func RejectedReason(r guard.Reason) string {
	return rejectedPrefix + string(r)
}

// Canned texts for degraded outcomes.
const (
	TextModelUnavailable     = "AI analysis is temporarily unavailable; here are your key figures."
	TextAnalysisUnavailable  = "I fetched your data, but AI analysis is momentarily unavailable. Please try again shortly."
	TextSummaryUnavailable   = "I summarized your data, but AI analysis is momentarily unavailable. Please try again shortly."
	TextPlanFallback         = "AI planning is temporarily unavailable; here is a gentle starter plan."
	TextNoDocuments          = "I couldn't find that in the help docs."
	TextKnowledgeUnavailable = "The help library is unavailable right now. Please try again shortly."
	TextHelp                 = "I can list your recent sessions, show a single session, summarize your trends, " +
		"build a two-week exercise plan, or answer questions about the app."
)

// Payload carries whatever a resolve produced. Only the fields relevant to
// the intent are set.
type Payload struct {
	Rows        *query.ResultSet            `json:"rows,omitempty"`
	Empty       bool                        `json:"empty"`
	Sections    map[string]*query.ResultSet `json:"sections,omitempty"`
	Profile     *insights.Profile           `json:"profile,omitempty"`
	Comparison  map[string]float64          `json:"comparison,omitempty"`
	Suggestions []insights.Exercise         `json:"suggestions,omitempty"`
	Plan        *plan.Plan                  `json:"plan,omitempty"`
	Text        string                      `json:"text,omitempty"`
	Documents   []knowledge.Document        `json:"documents,omitempty"`
}

// Outcome is handed to an external formatter. Failed outcomes carry a
// Reason; Degraded outcomes carry FallbackText and usually data. Code is
// the error code behind a failure or degradation.
type Outcome struct {
	ID           string        `json:"id"`
	Kind         Kind          `json:"kind"`
	Intent       models.Intent `json:"intent,omitempty"`
	Mode         models.Mode   `json:"mode,omitempty"`
	Phase        Phase         `json:"phase,omitempty"`
	Data         *Payload      `json:"data,omitempty"`
	FallbackText string        `json:"fallbackText,omitempty"`
	Reason       string        `json:"reason,omitempty"`
	Detail       string        `json:"detail,omitempty"`
	Code         string        `json:"code,omitempty"`
	Retryable    bool          `json:"retryable,omitempty"`
}

func answered(p *Payload) Outcome {
	return Outcome{Kind: Answered, Data: p}
}

func degraded(text string, p *Payload) Outcome {
	return Outcome{Kind: Degraded, FallbackText: text, Data: p}
}

func failed(reason, detail string) Outcome {
	return Outcome{Kind: Failed, Reason: reason, Detail: detail}
}

func (o Outcome) withError(err *apperrors.StandardError) Outcome {
	o.Code = string(err.Code)
	o.Retryable = err.Retryable
	return o
}

// dataFailure keeps the executor's error code, defaulting to a data access
// failure for foreign errors.
func dataFailure(err error) Outcome {
	var se *apperrors.StandardError
	if !errors.As(err, &se) {
		se = apperrors.NewDataAccessError("orchestrator", err)
	}
	return failed(ReasonDataAccess, err.Error()).withError(se)
}

func parameterFailure(intent models.Intent, param, detail string) Outcome {
	return failed(ReasonParameter, detail).withError(apperrors.NewParameterMissingError(string(intent), param))
}

func modelDown(text string, p *Payload, what string) Outcome {
	return degraded(text, p).withError(apperrors.NewModelUnavailableError(what))
}

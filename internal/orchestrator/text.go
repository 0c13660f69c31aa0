package orchestrator

import (
	"context"
	"errors"

	apperrors "session-insights/internal/common/errors"
	"session-insights/internal/knowledge"
	"session-insights/internal/models"
)

var errNoRetriever = errors.New("no knowledge retriever configured")

// resolveKnowledge answers from help articles. Search is best-effort, so
// every failure degrades rather than fails.
func (o *Orchestrator) resolveKnowledge(ctx context.Context, req models.RoutedRequest) Outcome {
	question := req.Question()
	if question == "" {
		return parameterFailure(req.Intent(), "question", "question is required")
	}
	if o.retriever == nil {
		return degraded(TextKnowledgeUnavailable, nil).
			withError(apperrors.NewKnowledgeSearchError(errNoRetriever))
	}

	docs, err := o.retriever.Search(ctx, question, o.cfg.KnowledgeTopK)
	if err != nil {
		o.logger.Warn("knowledge search failed", map[string]interface{}{"error": err.Error()})
		return degraded(TextKnowledgeUnavailable, nil).withError(apperrors.NewKnowledgeSearchError(err))
	}
	if len(docs) == 0 {
		return degraded(TextNoDocuments, &Payload{Empty: true})
	}

	answer, unavailable := o.complete(ctx, knowledge.SystemPrompt(o.cfg.Persona), knowledge.BuildPrompt(question, docs))
	if unavailable {
		return modelDown(knowledge.Extractive(docs), &Payload{Documents: docs}, "knowledge answer")
	}
	return answered(&Payload{Text: answer, Documents: docs})
}

const helpInstruction = "The user is asking what you can do. Briefly explain that you can list recent sessions, " +
	"show one session in detail, summarize trends, build a two-week exercise plan and answer app questions."

func (o *Orchestrator) resolveFreeform(ctx context.Context, req models.RoutedRequest) Outcome {
	question := req.Question()
	if question == "" {
		return parameterFailure(req.Intent(), "question", "question is required")
	}
	system := o.cfg.Persona
	if req.Intent() == models.IntentGeneralHelp {
		system = o.withPersona(helpInstruction)
	}

	answer, unavailable := o.complete(ctx, system, question)
	if unavailable {
		return modelDown(TextHelp, nil, "freeform")
	}
	return answered(&Payload{Text: answer})
}

package resolvequestion

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"

	"session-insights/internal/common/errors"
	"session-insights/internal/common/logger"
	"session-insights/internal/common/metrics"
	"session-insights/internal/common/validation"
	"session-insights/internal/models"
	"session-insights/internal/orchestrator"
	"session-insights/internal/routing"
)

const TaskType = "resolve-question"

// Resolver is the orchestrator surface the worker needs.
type Resolver interface {
	Resolve(ctx context.Context, req models.RoutedRequest, identity interface{}) orchestrator.Outcome
}

type Handler struct {
	config     *Config
	router     *routing.Router
	resolver   Resolver
	schema     *validation.Schema
	errHandler *errors.ErrorHandler
	retrier    errors.Retrier
	logger     logger.Logger
}

func NewHandler(config *Config, router *routing.Router, resolver Resolver, schema *validation.Schema, log logger.Logger) *Handler {
	l := log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:     config,
		router:     router,
		resolver:   resolver,
		schema:     schema,
		errHandler: errors.NewErrorHandler(l),
		logger:     l,
	}
}

// WithRetrier sends complete, fail and throw commands through r.
func (h *Handler) WithRetrier(r errors.Retrier) *Handler {
	h.retrier = r
	h.errHandler.WithRetrier(r)
	return h
}

// Handle completes the job for every outcome kind, Failed included. Only
// malformed input and internal errors reach the error handler.
func (h *Handler) Handle(client worker.JobClient, job entities.Job) {
	startTime := time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), h.config.Timeout)
	defer cancel()

	h.logger.Info("processing job", map[string]interface{}{
		"jobKey":      job.Key,
		"workflowKey": job.ProcessInstanceKey,
	})

	input, err := h.parseInput(job.Variables)
	if err != nil {
		h.fail(ctx, client, job, err)
		return
	}

	output, err := h.Execute(ctx, input)
	if err != nil {
		h.fail(ctx, client, job, err)
		return
	}

	cmd, err := client.NewCompleteJobCommand().
		JobKey(job.Key).
		VariablesFromObject(output)
	if err != nil {
		h.fail(ctx, client, job, errors.NewInternalError(fmt.Errorf("encode outcome: %w", err)))
		return
	}
	err = errors.Send(ctx, h.retrier, "complete job", func(ctx context.Context) error {
		_, err := cmd.Send(ctx)
		return err
	})
	if err != nil {
		h.logger.Error("failed to send complete job command", map[string]interface{}{
			"jobKey": job.Key,
			"error":  err.Error(),
		})
		return
	}

	metrics.WorkerJobsCompleted.WithLabelValues(TaskType).Inc()
	metrics.WorkerJobDuration.WithLabelValues(TaskType).Observe(time.Since(startTime).Seconds())
}

func (h *Handler) fail(ctx context.Context, client worker.JobClient, job entities.Job, err error) {
	metrics.WorkerJobsFailed.WithLabelValues(TaskType, string(errors.Normalize(err).Code)).Inc()
	h.errHandler.HandleJobError(ctx, client, job, err)
}

func (h *Handler) parseInput(variables string) (*Input, error) {
	if h.schema != nil {
		res := h.schema.ValidateJSON([]byte(variables))
		if !res.Valid {
			return nil, errors.NewInvalidJobInputError(strings.Join(res.GetErrorMessages(), "; "))
		}
	}
	var input Input
	if err := json.Unmarshal([]byte(variables), &input); err != nil {
		return nil, errors.NewInvalidJobInputError(fmt.Sprintf("parse input: %v", err))
	}
	return &input, nil
}

// Execute routes the question when no routed request is supplied and
// resolves it for the user.
func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	if input == nil {
		return nil, errors.NewInvalidJobInputError("input cannot be nil")
	}

	var req models.RoutedRequest
	switch {
	case input.RoutedRequest != nil:
		req = *input.RoutedRequest
		if req.Question() == "" && input.Question != "" {
			req = req.WithQuestion(routing.Normalize(input.Question))
		}
	case strings.TrimSpace(input.Question) != "":
		req = h.router.Route(input.Question)
	default:
		return nil, errors.NewInvalidJobInputError("question or routedRequest is required")
	}

	var identity interface{}
	if input.UserID != "" {
		identity = input.UserID
	}

	out := h.resolver.Resolve(ctx, req, identity)
	h.logger.Info("question resolved", map[string]interface{}{
		"outcomeId": out.ID,
		"kind":      string(out.Kind),
		"intent":    string(out.Intent),
	})
	return &Output{Outcome: out}, nil
}

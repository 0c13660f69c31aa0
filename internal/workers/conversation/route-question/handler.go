package routequestion

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
	"session-insights/internal/routing"
)

const TaskType = "route-question"

type Handler struct {
	config     *Config
	router     *routing.Router
	schema     *validation.Schema
	errHandler *errors.ErrorHandler
	retrier    errors.Retrier
	logger     logger.Logger
}

// NewHandler wires the router behind a Zeebe job. schema is the activity's
// input schema from the registry.
func NewHandler(config *Config, router *routing.Router, schema *validation.Schema, log logger.Logger) *Handler {
	l := log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:     config,
		router:     router,
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
		metrics.WorkerJobsFailed.WithLabelValues(TaskType, string(errors.Normalize(err).Code)).Inc()
		h.errHandler.HandleJobError(ctx, client, job, err)
		return
	}

	output, err := h.Execute(ctx, input)
	if err != nil {
		metrics.WorkerJobsFailed.WithLabelValues(TaskType, string(errors.Normalize(err).Code)).Inc()
		h.errHandler.HandleJobError(ctx, client, job, err)
		return
	}

	h.completeJob(ctx, client, job, output)
	metrics.WorkerJobsCompleted.WithLabelValues(TaskType).Inc()
	metrics.WorkerJobDuration.WithLabelValues(TaskType).Observe(time.Since(startTime).Seconds())
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

// Execute routes one question. Routing never fails; an empty question is
// the only input error.
func (h *Handler) Execute(_ context.Context, input *Input) (*Output, error) {
	if input == nil || strings.TrimSpace(input.Question) == "" {
		return nil, errors.NewInvalidJobInputError("question is required")
	}
	req := h.router.Route(input.Question)

	h.logger.Info("question routed", map[string]interface{}{
		"mode":   string(req.Mode()),
		"intent": string(req.Intent()),
	})
	return &Output{RoutedRequest: req}, nil
}

func (h *Handler) completeJob(ctx context.Context, client worker.JobClient, job entities.Job, output *Output) {
	cmd, err := client.NewCompleteJobCommand().
		JobKey(job.Key).
		VariablesFromObject(output)
	if err != nil {
		h.logger.Error("failed to create complete job command", map[string]interface{}{
			"jobKey": job.Key,
			"error":  err.Error(),
		})
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
	}
}

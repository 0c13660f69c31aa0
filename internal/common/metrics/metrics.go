package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	WorkerJobsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_jobs_completed_total",
			Help: "Total number of jobs completed by worker",
		},
		[]string{"task_type"},
	)

	WorkerJobsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_jobs_failed_total",
			Help: "Total number of jobs failed by worker",
		},
		[]string{"task_type", "error_code"},
	)

	WorkerJobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "worker_job_duration_seconds",
			Help: "Duration of job processing in seconds",
		},
		[]string{"task_type"},
	)

	QuestionsRouted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "questions_routed_total",
			Help: "Questions classified by the intent router",
		},
		[]string{"mode", "intent"},
	)

	GuardDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "guard_decisions_total",
			Help: "Safety guard decisions on generated statements",
		},
		[]string{"decision", "reason"},
	)

	ModelAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "model_attempts_total",
			Help: "Generative model backend attempts by result",
		},
		[]string{"result"},
	)

	ModelUnavailable = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "model_unavailable_total",
			Help: "Model calls that collapsed to unavailable",
		},
	)

	QuestionOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "question_outcomes_total",
			Help: "Orchestrator outcomes by kind and intent",
		},
		[]string{"kind", "intent"},
	)

	QueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "query_duration_seconds",
			Help:    "Statement execution time by statement origin",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"origin"},
	)

	SynthesisCache = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "synthesis_cache_total",
			Help: "Synthesis cache lookups by result",
		},
		[]string{"result"},
	)
)

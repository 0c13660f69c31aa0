// cmd/worker-manager/main.go
package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"session-insights/internal/app"
	"session-insights/internal/common/camunda"
	"session-insights/internal/common/config"
	"session-insights/internal/common/database"
	"session-insights/internal/common/logger"
	"session-insights/internal/common/observability"
	"session-insights/internal/common/validation"
	"session-insights/pkg/registry"

	rsq "session-insights/internal/workers/conversation/resolve-question"
	rtq "session-insights/internal/workers/conversation/route-question"
)

// retryWithBackoff attempts to execute a function with exponential backoff
func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log *zap.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName),
				zap.Error(err),
				zap.Int("attempt", i+1),
				zap.Int("maxRetries", maxRetries),
				zap.Duration("nextRetryIn", delay),
			)
			time.Sleep(delay)
			delay *= 2
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load failed: %v\n", err)
		os.Exit(1)
	}

	zapLog := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLog.Sync()
	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting worker manager...", zap.String("environment", cfg.App.Environment))

	obs := observability.New(cfg.App.Name)
	defer obs.Shutdown()

	ctx := context.Background()
	var ready atomic.Bool

	// --- Zeebe ---
	var zeebe *camunda.Client
	err = retryWithBackoff(func() error {
		var err error
		zeebe, err = camunda.NewClientWithConfig(camunda.ConfigFrom(cfg.Camunda))
		return err
	}, 10, 2*time.Second, zapLog, "Zeebe client initialization")
	if err != nil {
		zapLog.Fatal("zeebe client failed after retries", zap.Error(err))
	}
	zapLog.Info("Zeebe client connected successfully")

	// --- Session store ---
	var db *sql.DB
	err = retryWithBackoff(func() error {
		var err error
		if db == nil {
			db, err = database.Open(cfg.Database)
			if err != nil {
				return err
			}
		}
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		return db.PingContext(pingCtx)
	}, 15, 2*time.Second, zapLog, "Database connection")
	if err != nil {
		zapLog.Fatal("database failed after retries", zap.Error(err))
	}
	defer db.Close()
	zapLog.Info("Database connected successfully", zap.String("driver", cfg.Database.Driver))

	opts := app.Options{Observability: obs}

	// --- Redis (synthesis cache, optional) ---
	if cfg.SynthesisCache.Enabled {
		var rc *database.RedisClient
		err = retryWithBackoff(func() error {
			var err error
			rc, err = database.NewRedis(cfg.Database.Redis)
			if err != nil {
				return err
			}
			if err := rc.Ping(ctx); err != nil {
				rc.Close()
				return err
			}
			return nil
		}, 10, 2*time.Second, zapLog, "Redis connection")
		if err != nil {
			zapLog.Warn("redis unavailable, synthesis cache disabled", zap.Error(err))
		} else {
			defer rc.Close()
			opts.Redis = rc.Client
			zapLog.Info("Redis connected successfully")
		}
	}

	// --- Elasticsearch (help articles, optional) ---
	if cfg.Database.Elasticsearch.Enabled() {
		var es *database.ElasticsearchClient
		err = retryWithBackoff(func() error {
			var err error
			es, err = database.NewElasticsearch(cfg.Database.Elasticsearch)
			if err != nil {
				return err
			}
			return es.Ping(ctx)
		}, 15, 2*time.Second, zapLog, "Elasticsearch connection")
		if err != nil {
			zapLog.Warn("elasticsearch unavailable, knowledge answers will degrade", zap.Error(err))
		} else {
			if err := es.CheckIndex(ctx, cfg.Knowledge.Index); err != nil {
				zapLog.Warn("help-article index check failed", zap.String("index", cfg.Knowledge.Index), zap.Error(err))
			}
			opts.Elastic = es.Client
			zapLog.Info("Elasticsearch connected successfully")
		}
	}

	pipeline, err := app.Build(ctx, cfg, db, opts, log)
	if err != nil {
		zapLog.Fatal("pipeline wiring failed", zap.Error(err))
	}

	reg, err := registry.LoadRegistry(cfg.Registry.Path)
	if err != nil {
		zapLog.Fatal("activity registry load failed", zap.String("path", cfg.Registry.Path), zap.Error(err))
	}
	if err := reg.Validate(); err != nil {
		zapLog.Fatal("activity registry invalid", zap.Error(err))
	}

	// --- Workers ---
	var workers []worker.JobWorker
	start := func(taskType string, handler camunda.HandlerFunc) {
		if !config.IsWorkerEnabled(cfg, taskType) {
			zapLog.Info("worker disabled by configuration", zap.String("taskType", taskType))
			return
		}
		if a, err := reg.Find(taskType); err == nil && !a.ImplementationStatus.Deployable() {
			zapLog.Warn("worker not deployable, skipping",
				zap.String("taskType", taskType),
				zap.String("status", string(a.ImplementationStatus)),
			)
			return
		}
		if jw := camunda.StartWorker(zeebe.Raw(), taskType, config.GetWorkerConfig(cfg, taskType), handler, log); jw != nil {
			workers = append(workers, jw)
		}
	}

	{
		wcfg := rtq.NewConfig(config.GetWorkerConfig(cfg, rtq.TaskType))
		schema, timeout := activitySettings(reg, rtq.TaskType, wcfg.Timeout, zapLog)
		wcfg.Timeout = timeout
		handler := rtq.NewHandler(wcfg, pipeline.Router, schema, log).WithRetrier(zeebe)
		start(rtq.TaskType, handler.Handle)
	}
	{
		wcfg := rsq.NewConfig(config.GetWorkerConfig(cfg, rsq.TaskType))
		schema, timeout := activitySettings(reg, rsq.TaskType, wcfg.Timeout, zapLog)
		wcfg.Timeout = timeout
		handler := rsq.NewHandler(wcfg, pipeline.Router, pipeline.Orchestrator, schema, log).WithRetrier(zeebe)
		start(rsq.TaskType, handler.Handle)
	}
	zapLog.Info("Workers registered", zap.Int("count", len(workers)))
	ready.Store(true)

	// --- Health & Metrics Server ---
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		writeStatus(w, http.StatusOK, "healthy")
	})
	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		if !ready.Load() {
			writeStatus(w, http.StatusServiceUnavailable, "starting")
			return
		}
		if err := db.PingContext(r.Context()); err != nil {
			writeStatus(w, http.StatusServiceUnavailable, "database unreachable")
			return
		}
		if err := zeebe.HealthCheck(r.Context()); err != nil {
			writeStatus(w, http.StatusServiceUnavailable, "broker unreachable")
			return
		}
		writeStatus(w, http.StatusOK, "ready")
	})
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:              cfg.Metrics.Address,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		zapLog.Info("Health/Metrics server listening", zap.String("address", cfg.Metrics.Address))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zapLog.Error("Health/Metrics server failed", zap.Error(err))
		}
	}()

	// --- Graceful Shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	zapLog.Info("Shutdown signal received, stopping workers...")
	ready.Store(false)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	for _, jw := range workers {
		jw.Close()
		jw.AwaitClose()
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("Error stopping health server", zap.Error(err))
	}
	if err := zeebe.Close(); err != nil {
		zapLog.Error("Error closing Zeebe client", zap.Error(err))
	}

	zapLog.Info("Worker manager stopped gracefully")
}

// activitySettings returns the registry's compiled input schema and
// declared timeout for taskType. A missing entry leaves the worker without
// schema validation and keeps def.
func activitySettings(reg *registry.ActivityRegistry, taskType string, def time.Duration, log *zap.Logger) (*validation.Schema, time.Duration) {
	a, err := reg.Find(taskType)
	if err != nil {
		log.Warn("no registry entry for worker", zap.String("taskType", taskType))
		return nil, def
	}
	s, err := a.InputValidator()
	if err != nil {
		log.Warn("registry input schema does not compile", zap.String("taskType", taskType), zap.Error(err))
		s = nil
	}
	return s, a.TimeoutDuration(def)
}

func writeStatus(w http.ResponseWriter, code int, status string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{
		"status": status,
		"time":   time.Now().Format(time.RFC3339),
	})
}

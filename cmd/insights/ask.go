package main

import (
	"context"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"session-insights/internal/app"
	"session-insights/internal/common/config"
	"session-insights/internal/common/database"
	"session-insights/internal/common/errors"
	"session-insights/internal/common/logger"
)

var askUser string

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Answer a question against the configured session store",
	Long: `ask builds the same pipeline as the worker manager and resolves one
question for --user. Redis and Elasticsearch are used when configured.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		p, closeAll, err := openPipeline(ctx, cfg, newLogger())
		if err != nil {
			return err
		}
		defer closeAll()

		var identity interface{}
		if askUser != "" {
			identity = askUser
		}
		return printJSON(cmd.OutOrStdout(), p.Ask(ctx, strings.Join(args, " "), identity))
	},
}

// openPipeline connects the session store and the optional backends and
// builds the pipeline. The returned func releases every connection.
func openPipeline(ctx context.Context, cfg *config.Config, log logger.Logger) (*app.Pipeline, func(), error) {
	var closers []func()
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	db, err := database.Open(cfg.Database)
	if err != nil {
		return nil, nil, errors.NewDatabaseConnectionError(err)
	}
	closers = append(closers, func() { db.Close() })

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		closeAll()
		return nil, nil, errors.NewDatabaseConnectionError(err).WithCause(err)
	}

	var opts app.Options
	if cfg.SynthesisCache.Enabled {
		rc, err := database.NewRedis(cfg.Database.Redis)
		if err != nil {
			closeAll()
			return nil, nil, err
		}
		closers = append(closers, func() { rc.Close() })
		if err := rc.Ping(ctx); err != nil {
			log.Warn("redis unavailable, synthesis cache disabled", map[string]interface{}{"error": err.Error()})
		} else {
			opts.Redis = rc.Client
		}
	}
	if cfg.Database.Elasticsearch.Enabled() {
		es, err := database.NewElasticsearch(cfg.Database.Elasticsearch)
		if err != nil {
			closeAll()
			return nil, nil, err
		}
		opts.Elastic = es.Client
	}

	p, err := app.Build(ctx, cfg, db, opts, log)
	if err != nil {
		closeAll()
		return nil, nil, err
	}
	return p, closeAll, nil
}

func init() {
	askCmd.Flags().StringVar(&askUser, "user", "", "User the question is asked for")
	rootCmd.AddCommand(askCmd)
}

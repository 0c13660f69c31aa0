package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"session-insights/internal/orchestrator"
)

var (
	insightsUser    string
	insightsPhase   string
	insightsSession int64
)

var sessionInsightsCmd = &cobra.Command{
	Use:   "session-insights",
	Short: "Coaching note for the start or end of a session",
	Long: `session-insights prints a short note for --user. With --phase start it
looks at the last 10 sessions; with --phase end it reviews --session.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		phase, err := orchestrator.ParsePhase(insightsPhase)
		if err != nil {
			return err
		}
		if insightsUser == "" {
			return fmt.Errorf("--user is required")
		}
		if phase == orchestrator.PhaseEnd && insightsSession <= 0 {
			return fmt.Errorf("--session is required with --phase end")
		}

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

		return printJSON(cmd.OutOrStdout(), p.SessionInsights(ctx, phase, insightsUser, insightsSession))
	},
}

func init() {
	sessionInsightsCmd.Flags().StringVar(&insightsUser, "user", "", "User the note is for")
	sessionInsightsCmd.Flags().StringVar(&insightsPhase, "phase", string(orchestrator.PhaseStart), "start or end")
	sessionInsightsCmd.Flags().Int64Var(&insightsSession, "session", 0, "Session id reviewed with --phase end")
	rootCmd.AddCommand(sessionInsightsCmd)
}

package main

import (
	"time"

	"github.com/spf13/cobra"

	"session-insights/internal/plan"
)

var (
	planGoal  string
	planDays  int
	planStart string
)

var planFallbackCmd = &cobra.Command{
	Use:   "plan-fallback",
	Short: "Print the fixed exercise plan used when the model is unavailable",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		planner, err := plan.NewPlanner(planDays)
		if err != nil {
			return err
		}
		start := time.Now()
		if planStart != "" {
			start, err = time.Parse(time.DateOnly, planStart)
			if err != nil {
				return err
			}
		}
		return printJSON(cmd.OutOrStdout(), planner.Fallback(planGoal, start))
	},
}

func init() {
	planFallbackCmd.Flags().StringVar(&planGoal, "goal", "", "Goal the plan is for")
	planFallbackCmd.Flags().IntVar(&planDays, "days", 14, "Plan length in days")
	planFallbackCmd.Flags().StringVar(&planStart, "start", "", "First day (YYYY-MM-DD, default today)")
	rootCmd.AddCommand(planFallbackCmd)
}

package main

import (
	"strings"

	"github.com/spf13/cobra"

	"session-insights/internal/routing"
)

var routeCmd = &cobra.Command{
	Use:   "route <question>",
	Short: "Show how a question is routed",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		req := routing.NewRouter(newLogger()).Route(strings.Join(args, " "))
		return printJSON(cmd.OutOrStdout(), req)
	},
}

func init() {
	rootCmd.AddCommand(routeCmd)
}

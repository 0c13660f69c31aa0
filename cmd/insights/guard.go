package main

import (
	"strings"

	"github.com/spf13/cobra"

	"session-insights/internal/query"
	"session-insights/internal/query/guard"
)

var (
	guardDialect string
	guardScope   bool
	guardUser    string
	guardRowCap  int
)

type guardResult struct {
	Accepted bool          `json:"accepted"`
	SQL      string        `json:"sql,omitempty"`
	Params   []interface{} `json:"params,omitempty"`
	Reason   string        `json:"reason,omitempty"`
	Detail   string        `json:"detail,omitempty"`
}

var guardCmd = &cobra.Command{
	Use:   "guard <sql>",
	Short: "Run a statement through the safety guard without executing it",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dialect, err := query.ParseDialect(guardDialect)
		if err != nil {
			return err
		}
		g := guard.New(guard.Config{RowCap: guardRowCap, Dialect: dialect}, newLogger())

		scope := guard.Scope{Required: guardScope}
		if guardUser != "" {
			scope.Identity = guardUser
		}
		d := g.Validate(query.Untrusted(strings.Join(args, " ")), scope)

		res := guardResult{Accepted: d.Accepted()}
		if d.Accepted() {
			res.SQL = d.Statement().Text()
			res.Params = d.Statement().Params()
		} else {
			res.Reason = string(d.Reason())
			res.Detail = d.Detail()
		}
		return printJSON(cmd.OutOrStdout(), res)
	},
}

func init() {
	guardCmd.Flags().StringVar(&guardDialect, "dialect", "postgres", "SQL dialect (postgres, sqlite)")
	guardCmd.Flags().BoolVar(&guardScope, "scope", true, "Require an identity filter")
	guardCmd.Flags().StringVar(&guardUser, "user", "", "Identity to scope the statement to")
	guardCmd.Flags().IntVar(&guardRowCap, "row-cap", 100, "LIMIT added to unbounded session reads")
	rootCmd.AddCommand(guardCmd)
}

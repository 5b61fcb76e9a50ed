package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newAuditsCommand(cctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "audits <roster>",
		Short: "Show import history for a roster",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cctx.withApp(func(a *app) error {
				r, err := a.rosters.GetByName(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if r == nil {
					return fmt.Errorf("roster %q not found", args[0])
				}
				audits, err := a.audits.List(cmd.Context(), r.ID)
				if err != nil {
					return err
				}
				for _, au := range audits {
					fmt.Fprintf(cmd.OutOrStdout(), "%s  %-7s total %4d  accepted %4d  skipped %4d  failed %4d  %dms\n",
						au.CreatedAt.Format("2006-01-02 15:04"), au.Mode,
						au.TotalRows, au.AcceptedRows, au.SkippedRows, au.FailedRows, au.DurationMS)
					if au.FailedRows > 0 && au.TopReasons != "[]" {
						fmt.Fprintf(cmd.OutOrStdout(), "    reasons: %s\n", au.TopReasons)
					}
				}
				return nil
			})
		},
	}
}

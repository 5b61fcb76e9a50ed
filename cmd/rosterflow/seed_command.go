package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jask/rosterflow/internal/database/repository"
	"github.com/jask/rosterflow/internal/testdata"
)

func newSeedCommand(cctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Seed a demo roster into an empty database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cctx.withApp(func(a *app) error {
				repos := testdata.Repos{
					Rosters: repository.NewRosterRepo(a.db),
					Players: repository.NewPlayerRepo(a.db),
				}
				if err := testdata.Seed(cmd.Context(), repos); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "demo roster seeded")
				return nil
			})
		},
	}
}

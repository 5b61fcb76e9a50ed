package main

import (
	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	var dbFlag string
	var verboseFlag bool

	ctx := newCommandContext(&dbFlag, &verboseFlag)

	rootCmd := &cobra.Command{
		Use:           "rosterflow",
		Short:         "Tournament roster import and reconciliation",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVar(&dbFlag, "db", "", "Path to the sqlite database")
	rootCmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false, "Verbose logging")

	rootCmd.AddCommand(newImportCommand(ctx))
	rootCmd.AddCommand(newRostersCommand(ctx))
	rootCmd.AddCommand(newAuditsCommand(ctx))
	rootCmd.AddCommand(newSeedCommand(ctx))

	return rootCmd
}

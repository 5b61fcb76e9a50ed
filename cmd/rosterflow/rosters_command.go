package main

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/jask/rosterflow/internal/database/repository"
	"github.com/jask/rosterflow/internal/service"
)

func newRostersCommand(cctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rosters",
		Short: "Manage rosters",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	cmd.AddCommand(newRostersListCommand(cctx))
	cmd.AddCommand(newRostersAddCommand(cctx))
	cmd.AddCommand(newRostersShowCommand(cctx))
	return cmd
}

func newRostersListCommand(cctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List rosters",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cctx.withApp(func(a *app) error {
				rosters, err := a.rosters.List(cmd.Context())
				if err != nil {
					return err
				}
				for _, r := range rosters {
					n, err := a.players.CountByRoster(cmd.Context(), r.ID)
					if err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "%s  %-30s %4d entries\n", r.ID[:8], r.Name, n)
				}
				return nil
			})
		},
	}
}

func newRostersAddCommand(cctx *commandContext) *cobra.Command {
	var criteria string
	cmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Create a roster",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cctx.withApp(func(a *app) error {
				if criteria == "" {
					criteria = "[]"
				}
				if _, err := service.ParseCriteria(criteria); err != nil {
					return err
				}
				r := repository.Roster{
					ID:         uuid.NewString(),
					Name:       args[0],
					Categories: criteria,
				}
				if err := a.rosters.Upsert(cmd.Context(), r); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "created roster %s (%s)\n", r.Name, r.ID)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&criteria, "criteria", "", "Eligibility criteria JSON")
	return cmd
}

func newRostersShowCommand(cctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <name>",
		Short: "Show a roster's entries",
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
				players, err := a.players.ListByRoster(cmd.Context(), r.ID)
				if err != nil {
					return err
				}
				for _, p := range players {
					rating := "unrated"
					if p.Rating != nil {
						rating = fmt.Sprintf("%d", *p.Rating)
					}
					regNo := "-"
					if p.RegNo != nil {
						regNo = *p.RegNo
					}
					fmt.Fprintf(cmd.OutOrStdout(), "%4d  %-30s %8s  %s\n", p.Rank, p.Name, rating, regNo)
				}
				return nil
			})
		},
	}
}

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/jask/rosterflow/internal/service"
	"github.com/jask/rosterflow/internal/tui"
)

func newImportCommand(cctx *commandContext) *cobra.Command {
	var rosterName string
	var mode string
	var auto bool
	var dryRun bool
	var sessionID string
	var errorsOut string
	var tieBreak string

	cmd := &cobra.Command{
		Use:   "import <csv>",
		Short: "Import a roster sheet and reconcile it against a roster",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cctx.withApp(func(a *app) error {
				ctx := cmd.Context()

				roster, err := a.rosters.GetByName(ctx, rosterName)
				if err != nil {
					return err
				}
				if roster == nil {
					return fmt.Errorf("roster %q not found (create it with `rosterflow rosters add`)", rosterName)
				}

				opts := importOptions(a, mode, tieBreak)
				importer := service.NewImporter(a.rosters, a.players, a.audits, a.sessions, a.log, opts)

				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()

				prepared, err := importer.Prepare(ctx, roster.ID, f)
				if err != nil {
					return err
				}
				if sessionID != "" {
					if err := importer.Resume(ctx, prepared, sessionID); err != nil {
						return err
					}
				}

				printPrepared(cmd, prepared)
				if errorsOut != "" {
					if err := exportRowErrors(errorsOut, prepared); err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "row errors written to %s\n", errorsOut)
				}

				warnings, err := importer.Preflight(ctx, prepared)
				if err != nil {
					return err
				}
				for _, w := range warnings {
					fmt.Fprintln(cmd.OutOrStdout(), "warning:", w)
				}

				if dryRun {
					if err := importer.Checkpoint(ctx, prepared); err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "dry run, nothing written (session %s)\n", prepared.Session.ID)
					return nil
				}

				if auto {
					return autoCommit(ctx, cmd, importer, prepared)
				}

				p := tea.NewProgram(tui.New(ctx, importer, prepared), tea.WithAltScreen())
				_, err = p.Run()
				return err
			})
		},
	}

	cmd.Flags().StringVarP(&rosterName, "roster", "r", "", "Target roster name (required)")
	cmd.Flags().StringVarP(&mode, "mode", "m", "append", "Import mode: append or replace")
	cmd.Flags().BoolVar(&auto, "auto", false, "Resolve all conflicts by merging and commit without review")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Prepare and report, write nothing")
	cmd.Flags().StringVar(&sessionID, "session", "", "Resume a saved review session")
	cmd.Flags().StringVar(&errorsOut, "export-errors", "", "Write excluded rows to a JSON file")
	cmd.Flags().StringVar(&tieBreak, "tie-break", "", "Merge tie-break: first, lower-index, higher-seqno")
	_ = cmd.MarkFlagRequired("roster")

	return cmd
}

func importOptions(a *app, mode, tieBreak string) service.Options {
	opts := service.Options{
		Mode:   service.ModeAppend,
		Policy: service.DefaultMergePolicy(),
		Normalize: service.NormalizeOptions{
			UnratedWhenZero:         a.cfg.Import.UnratedWhenZero,
			UnratedWhenMissingRegNo: a.cfg.Import.UnratedWhenMissingRegNo,
		},
		ChunkSize:       a.cfg.Import.ChunkSize,
		UpdateThreshold: a.cfg.Import.UpdateThreshold,
		ReviewThreshold: a.cfg.Import.ReviewThreshold,
		TieBreak:        service.TieBreak(a.cfg.Import.TieBreak),
		ParseTimeout:    time.Duration(a.cfg.Import.ParseTimeoutMS) * time.Millisecond,
	}
	if mode == "replace" {
		opts.Mode = service.ModeReplace
	}
	if tieBreak != "" {
		opts.TieBreak = service.TieBreak(tieBreak)
	}
	return opts
}

func printPrepared(cmd *cobra.Command, p *service.Prepared) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "parsed %d rows (delimiter %q, header row %d)\n", len(p.Table.Rows), p.Table.Delimiter, p.Table.HeaderIndex)
	for field, col := range p.Mapping.Columns {
		fmt.Fprintf(out, "  %-12s <- %q (%.2f)\n", field, col.Header, col.Confidence)
	}
	fmt.Fprintf(out, "%d records, %d dropped as footer noise, %d ranks imputed, %d row errors, %d conflicts\n",
		len(p.Records), p.Dropped, p.ImputedRanks, len(p.RowErrors), len(p.Conflicts.Pending()))
	for row := range p.Eligibility {
		fmt.Fprintf(out, "warning: row %d: %s\n", row, p.Eligibility[row])
	}
}

func autoCommit(ctx context.Context, cmd *cobra.Command, importer *service.Importer, p *service.Prepared) error {
	if err := p.Conflicts.ResolveAll(service.MergeAB); err != nil {
		return err
	}
	if err := importer.Score(ctx, p); err != nil {
		return err
	}
	ledger, err := importer.Commit(ctx, p)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "created %d, updated %d, skipped %d, failed %d (%s)\n",
		ledger.Created, ledger.Updated, ledger.Skipped, len(ledger.Failed), ledger.Duration)
	for _, f := range ledger.Failed {
		fmt.Fprintf(cmd.OutOrStdout(), "  row %d: %s\n", f.OriginalIndex, f.Reason)
	}
	return nil
}

func exportRowErrors(path string, p *service.Prepared) error {
	b, err := json.MarshalIndent(p.RowErrors, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o644)
}

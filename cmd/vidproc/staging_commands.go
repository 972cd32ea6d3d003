package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"vidproc/internal/jobstore"
	"vidproc/internal/staging"
)

func newStagingCommand(ctx *commandContext) *cobra.Command {
	stagingCmd := &cobra.Command{
		Use:   "staging",
		Short: "Inspect and clean intermediate files in the staging directory",
	}
	stagingCmd.AddCommand(newStagingListCommand(ctx))
	stagingCmd.AddCommand(newStagingCleanCommand(ctx))
	return stagingCmd
}

func newStagingListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List intermediate files, oldest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			entries, err := staging.List(cfg.Paths.StagingDir)
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "Staging directory is empty")
				return nil
			}
			rows := make([][]string, 0, len(entries))
			for _, entry := range entries {
				job := "-"
				if entry.JobID != "" {
					job = shortID(entry.JobID)
				}
				rows = append(rows, []string{
					entry.Name,
					job,
					fmt.Sprintf("%d", entry.Size),
					formatAge(time.Since(entry.ModTime)),
				})
			}
			table := renderTable(
				[]string{"File", "Job", "Bytes", "Age"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight},
			)
			fmt.Fprint(cmd.OutOrStdout(), table)
			fmt.Fprintln(cmd.OutOrStdout())
			return nil
		},
	}
}

func newStagingCleanCommand(ctx *commandContext) *cobra.Command {
	var maxAge time.Duration
	var orphaned bool

	cmd := &cobra.Command{
		Use:   "clean",
		Short: "Remove stale intermediates, or those of jobs no longer running",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}

			var result staging.CleanResult
			if orphaned {
				err = ctx.withStore(func(store *jobstore.Store) error {
					running, err := store.List(cmd.Context(), jobstore.StatusRunning)
					if err != nil {
						return err
					}
					active := make(map[string]struct{}, len(running))
					for _, job := range running {
						active[job.ID] = struct{}{}
					}
					result = staging.CleanOrphaned(cmd.Context(), cfg.Paths.StagingDir, active, logger)
					return nil
				})
				if err != nil {
					return err
				}
			} else {
				result = staging.CleanStale(cmd.Context(), cfg.Paths.StagingDir, maxAge, logger)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Removed %d files\n", len(result.Removed))
			for _, failure := range result.Errors {
				fmt.Fprintf(out, "  %s: %v\n", failure.Path, failure.Error)
			}
			if len(result.Errors) > 0 {
				return fmt.Errorf("%d staging files could not be removed", len(result.Errors))
			}
			return nil
		},
	}

	cmd.Flags().DurationVar(&maxAge, "max-age", 24*time.Hour, "Remove files older than this")
	cmd.Flags().BoolVar(&orphaned, "orphaned", false, "Remove compose intermediates of jobs that are not running")
	return cmd
}

func formatAge(d time.Duration) string {
	switch {
	case d < time.Minute:
		return "<1m"
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	case d < 48*time.Hour:
		return fmt.Sprintf("%dh", int(d.Hours()))
	}
	return fmt.Sprintf("%dd", int(d.Hours()/24))
}

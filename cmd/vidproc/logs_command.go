package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"vidproc/internal/jobstore"
	"vidproc/internal/logs"
)

func newJobsLogsCommand(ctx *commandContext) *cobra.Command {
	var lines int
	var follow bool

	cmd := &cobra.Command{
		Use:   "logs <id>",
		Short: "Print a job's log; the id may be abbreviated",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(store *jobstore.Store) error {
				job, err := store.FindByPrefix(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if job == nil {
					return fmt.Errorf("job %s not found", args[0])
				}
				if strings.TrimSpace(job.LogPath) == "" {
					return fmt.Errorf("job %s has no log file", shortID(job.ID))
				}

				out := cmd.OutOrStdout()
				tail, offset, err := logs.Last(job.LogPath, lines)
				if err != nil {
					return err
				}
				for _, line := range tail {
					fmt.Fprintln(out, line)
				}
				if !follow || job.Finished() {
					return nil
				}

				done := func() bool {
					current, err := store.Get(cmd.Context(), job.ID)
					return err != nil || current == nil || current.Finished()
				}
				_, err = logs.Follow(cmd.Context(), job.LogPath, logs.FollowOptions{
					Offset: offset,
					Poll:   500 * time.Millisecond,
					Done:   done,
				}, func(line string) { fmt.Fprintln(out, line) })
				if errors.Is(err, context.Canceled) {
					return nil
				}
				return err
			})
		},
	}

	cmd.Flags().IntVarP(&lines, "lines", "n", 50, "Number of trailing lines to print")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Keep printing new lines until the job finishes")
	return cmd
}

package main

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"vidproc/internal/jobstore"
	"vidproc/internal/services"
	"vidproc/internal/workflow"
)

func newConvertCommand(ctx *commandContext) *cobra.Command {
	var maxDurationMs int64
	var fadeInMs int64
	var fadeOutMs int64
	var useConfigFades bool

	cmd := &cobra.Command{
		Use:   "convert <input> <output>",
		Short: "Convert an audio file to AAC in MP4, with optional trim and fades",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := workflow.AudioOptions{MaxDurationMs: maxDurationMs, FadeInMs: fadeInMs, FadeOutMs: fadeOutMs}
			if useConfigFades {
				cfg, err := ctx.ensureConfig()
				if err != nil {
					return err
				}
				if !cmd.Flags().Changed("fade-in-ms") {
					opts.FadeInMs = int64(cfg.Audio.FadeInMs)
				}
				if !cmd.Flags().Changed("fade-out-ms") {
					opts.FadeOutMs = int64(cfg.Audio.FadeOutMs)
				}
			}
			return runJob(cmd, ctx, workflow.Job{
				Kind:         jobstore.KindConvertAudio,
				Input:        args[0],
				Output:       args[1],
				AudioOptions: opts,
			})
		},
	}

	cmd.Flags().Int64Var(&maxDurationMs, "max-duration-ms", -1, "Trim output to this many milliseconds (negative keeps the whole input)")
	cmd.Flags().Int64Var(&fadeInMs, "fade-in-ms", -1, "Fade-in length in milliseconds")
	cmd.Flags().Int64Var(&fadeOutMs, "fade-out-ms", -1, "Fade-out length in milliseconds")
	cmd.Flags().BoolVar(&useConfigFades, "fades", false, "Apply the configured fade lengths")
	return cmd
}

func newTimeLapseCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "timelapse <output> <image>...",
		Short: "Encode still images into an H.264 time-lapse",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runJob(cmd, ctx, workflow.Job{
				Kind:   jobstore.KindTimeLapse,
				Output: args[0],
				Images: args[1:],
			})
		},
	}
}

func newMuxCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "mux <audio> <video> <output>",
		Short: "Combine an audio track and a video track without re-encoding",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runJob(cmd, ctx, workflow.Job{
				Kind:   jobstore.KindMux,
				Audio:  args[0],
				Video:  args[1],
				Output: args[2],
			})
		},
	}
}

func newComposeCommand(ctx *commandContext) *cobra.Command {
	var audio string

	cmd := &cobra.Command{
		Use:   "compose <output> <image>...",
		Short: "Encode images into a time-lapse with an audio track fitted to its length",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runJob(cmd, ctx, workflow.Job{
				Kind:   jobstore.KindCompose,
				Output: args[0],
				Images: args[1:],
				Audio:  audio,
			})
		},
	}

	cmd.Flags().StringVarP(&audio, "audio", "a", "", "Audio file to fit to the time-lapse")
	return cmd
}

func runJob(cmd *cobra.Command, ctx *commandContext, job workflow.Job) error {
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return err
	}
	logger, err := ctx.ensureLogger()
	if err != nil {
		return err
	}
	store, err := ctx.ensureStore()
	if err != nil {
		return err
	}
	job.RequestID = uuid.NewString()

	pipeline := workflow.NewPipeline(cfg, nil, logger)
	runner := workflow.NewRunner(cfg, pipeline, store, logger, nil)

	out := cmd.OutOrStdout()
	started := time.Now()
	prog := startProgress(out, !ctx.isVerbose(), fmt.Sprintf("%s → %s", job.Kind, job.Output))
	res := runner.Run(cmd.Context(), job)
	if res.Err != nil {
		prog.fail(fmt.Sprintf("%s failed (%s)", job.Kind, services.FailureKind(res.Err)))
		if res.JobID != "" {
			fmt.Fprintf(out, "Job %s log: %s\n", shortID(res.JobID), runner.JobLogPath(res.JobID))
		}
		return fmt.Errorf("%w: %w", errJobFailed, res.Err)
	}
	prog.success(fmt.Sprintf("Wrote %s (%d samples, %s) in %s",
		res.Output,
		res.Report.SamplesWritten,
		formatMillis(res.Report.DurationMs),
		time.Since(started).Round(time.Millisecond),
	))
	return nil
}

package workflow

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"

	"vidproc/internal/config"
	"vidproc/internal/jobstore"
	"vidproc/internal/logging"
	"vidproc/internal/preflight"
	"vidproc/internal/services"
)

// Job is a request for one of the pipeline entry points.
type Job struct {
	Kind jobstore.Kind
	// Images feed time-lapse and compose jobs.
	Images []string
	// Audio is the audio input of mux and compose jobs.
	Audio string
	// Video is the video input of mux jobs.
	Video string
	// Input is the audio file of convert jobs.
	Input        string
	Output       string
	AudioOptions AudioOptions
	// RequestID correlates log lines across jobs started by one command.
	RequestID string
}

func (j Job) inputs() []string {
	switch j.Kind {
	case jobstore.KindConvertAudio:
		return []string{j.Input}
	case jobstore.KindTimeLapse:
		return append([]string(nil), j.Images...)
	case jobstore.KindMux:
		return []string{j.Audio, j.Video}
	case jobstore.KindCompose:
		inputs := append([]string(nil), j.Images...)
		if j.Audio != "" {
			inputs = append(inputs, j.Audio)
		}
		return inputs
	}
	return nil
}

func (j Job) validate() error {
	switch j.Kind {
	case jobstore.KindConvertAudio, jobstore.KindTimeLapse, jobstore.KindMux, jobstore.KindCompose:
	default:
		return services.Wrap(services.ErrValidation, "runner", "submit", fmt.Sprintf("unknown job kind %q", j.Kind), nil)
	}
	if strings.TrimSpace(j.Output) == "" {
		return services.Wrap(services.ErrValidation, "runner", "submit", "output path is required", nil)
	}
	return nil
}

// Result is the terminal outcome of a job, delivered exactly once.
type Result struct {
	JobID  string
	Kind   jobstore.Kind
	Output string
	Report Report
	Err    error
}

// Runner executes jobs against a Pipeline, records them in the job ledger
// and reports each outcome through a callback.
type Runner struct {
	cfg      *config.Config
	pipeline *Pipeline
	store    *jobstore.Store
	base     *slog.Logger
	logger   *slog.Logger
	onResult func(Result)

	checkOnce sync.Once
	checkErr  error
	wg        sync.WaitGroup
}

// NewRunner constructs a Runner. store and onResult may be nil.
func NewRunner(cfg *config.Config, pipeline *Pipeline, store *jobstore.Store, logger *slog.Logger, onResult func(Result)) *Runner {
	if logger == nil {
		logger = logging.NewNop()
	}
	if onResult == nil {
		onResult = func(Result) {}
	}
	return &Runner{
		cfg:      cfg,
		pipeline: pipeline,
		store:    store,
		base:     logger,
		logger:   logging.NewComponentLogger(logger, "runner"),
		onResult: onResult,
	}
}

// Submit registers job and runs it in the background. The returned id names
// the job in the ledger and in the Result passed to the callback. ctx governs
// the job's lifetime.
func (r *Runner) Submit(ctx context.Context, job Job) (string, error) {
	id, err := r.begin(ctx, job)
	if err != nil {
		return "", err
	}
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.deliver(r.execute(ctx, id, job))
	}()
	return id, nil
}

// Run executes job synchronously, delivers its Result to the callback and
// returns it.
func (r *Runner) Run(ctx context.Context, job Job) Result {
	id, err := r.begin(ctx, job)
	if err != nil {
		res := Result{Kind: job.Kind, Output: job.Output, Err: err}
		r.deliver(res)
		return res
	}
	res := r.execute(ctx, id, job)
	r.deliver(res)
	return res
}

// Wait blocks until every submitted job has delivered its Result.
func (r *Runner) Wait() {
	r.wg.Wait()
}

func (r *Runner) deliver(res Result) {
	r.onResult(res)
}

func (r *Runner) begin(ctx context.Context, job Job) (string, error) {
	if err := job.validate(); err != nil {
		return "", err
	}
	// Bookkeeping outlives cancellation so a canceled job is still recorded.
	ctx = context.WithoutCancel(ctx)
	if err := r.checkEnvironment(ctx); err != nil {
		return "", err
	}
	id := uuid.NewString()
	if r.store == nil {
		return id, nil
	}
	rec, err := r.store.Create(ctx, jobstore.NewJob{
		ID:         id,
		Kind:       job.Kind,
		LogPath:    r.JobLogPath(id),
		Inputs:     job.inputs(),
		OutputPath: job.Output,
	})
	if err != nil {
		return "", services.Wrap(services.ErrIO, "runner", "record job", "", err)
	}
	return rec.ID, nil
}

func (r *Runner) checkEnvironment(ctx context.Context) error {
	r.checkOnce.Do(func() {
		if err := r.cfg.EnsureDirectories(); err != nil {
			r.checkErr = services.Wrap(services.ErrIO, "runner", "prepare directories", "", err)
			return
		}
		failures := preflight.Failures(preflight.RunAll(ctx, r.cfg))
		if len(failures) == 0 {
			return
		}
		names := make([]string, 0, len(failures))
		for _, f := range failures {
			names = append(names, fmt.Sprintf("%s (%s)", f.Name, f.Detail))
		}
		r.checkErr = services.Wrap(services.ErrValidation, "runner", "preflight", strings.Join(names, "; "), nil)
	})
	return r.checkErr
}

func (r *Runner) execute(ctx context.Context, id string, job Job) Result {
	res := Result{JobID: id, Kind: job.Kind, Output: job.Output}

	ctx = services.WithJobID(ctx, id)
	ctx = services.WithStage(ctx, string(job.Kind))
	ctx = services.WithRequestID(ctx, job.RequestID)

	logger, closer := r.jobLogger(id)
	defer closer.Close()
	logger = logging.WithContext(ctx, logger)
	logger.Info("job started",
		logging.String(logging.FieldEventType, "job_started"),
		logging.String("output", job.Output),
		logging.Int("inputs", len(job.inputs())),
	)

	pipeline := r.pipeline.WithLogger(logger)
	switch job.Kind {
	case jobstore.KindConvertAudio:
		res.Report, res.Err = pipeline.ConvertAudio(ctx, job.Input, job.Output, job.AudioOptions)
	case jobstore.KindTimeLapse:
		res.Report, res.Err = pipeline.EncodeTimeLapse(ctx, job.Images, job.Output)
	case jobstore.KindMux:
		res.Report, res.Err = pipeline.MuxAudioVideo(ctx, job.Audio, job.Video, job.Output)
	case jobstore.KindCompose:
		res.Report, res.Err = pipeline.EncodeImagesWithAudio(ctx, id, job.Images, job.Audio, job.Output)
	}
	if res.Err != nil && ctx.Err() != nil && !errors.Is(res.Err, services.ErrCanceled) {
		res.Err = services.Wrap(services.ErrCanceled, string(job.Kind), "run", "", errors.Join(res.Err, ctx.Err()))
	}

	if err := r.record(context.WithoutCancel(ctx), res); err != nil {
		logger.Warn("job ledger update failed", logging.Error(err))
	}
	if res.Err != nil {
		logger.Error("job failed",
			logging.String(logging.FieldEventType, "job_failed"),
			logging.String("error_kind", services.FailureKind(res.Err)),
			logging.Error(res.Err),
		)
		return res
	}
	logger.Info("job succeeded",
		logging.String(logging.FieldEventType, "job_succeeded"),
		logging.Int("samples_written", res.Report.SamplesWritten),
		logging.Int64("duration_ms", res.Report.DurationMs),
	)
	return res
}

func (r *Runner) record(ctx context.Context, res Result) error {
	if r.store == nil {
		return nil
	}
	if res.Err != nil {
		return r.store.Fail(ctx, res.JobID, res.Err)
	}
	return r.store.Succeed(ctx, res.JobID, jobstore.Summary{
		SamplesWritten: int64(res.Report.SamplesWritten),
		DurationMs:     res.Report.DurationMs,
	})
}

// JobLogPath returns the per-job log file for id.
func (r *Runner) JobLogPath(id string) string {
	return filepath.Join(r.cfg.JobLogDir(), id+".log")
}

func (r *Runner) jobLogger(id string) (*slog.Logger, io.Closer) {
	handler, closer, err := logging.NewJobHandler(r.JobLogPath(id), r.cfg.Logging.Level)
	if err != nil {
		r.logger.Warn("job log unavailable", logging.String(logging.FieldJobID, id), logging.Error(err))
		return r.base, io.NopCloser(nil)
	}
	return logging.JobLogger(r.base, handler), closer
}

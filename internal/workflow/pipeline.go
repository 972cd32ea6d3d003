package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/gofrs/flock"

	"vidproc/internal/codec"
	"vidproc/internal/codec/ffcodec"
	"vidproc/internal/config"
	"vidproc/internal/fileutil"
	"vidproc/internal/logging"
	"vidproc/internal/render"
	"vidproc/internal/services"
)

// eosWait bounds how long a time-lapse waits for the encoder's end of stream
// after the last frame.
const eosWait = 2 * time.Minute

// ErrOutputBusy reports an output path locked by another job.
var ErrOutputBusy = errors.New("output is in use by another job")

// Report summarises a finished job.
type Report struct {
	// SamplesWritten counts samples written to the output container.
	SamplesWritten int
	// DurationMs is the output duration, or 0 when unknown.
	DurationMs int64
}

// Pipeline runs the job entry points against one configuration and codec
// registry. Jobs on distinct outputs may run concurrently.
type Pipeline struct {
	cfg      *config.Config
	registry *codec.Registry
	logger   *slog.Logger
	loader   render.Loader
}

// PipelineOption customises a Pipeline.
type PipelineOption func(*Pipeline)

// WithLoader replaces the image decoder used by the frame renderer.
func WithLoader(loader render.Loader) PipelineOption {
	return func(p *Pipeline) {
		if loader != nil {
			p.loader = loader
		}
	}
}

// NewPipeline constructs a Pipeline. A nil registry uses NewRegistry(cfg).
func NewPipeline(cfg *config.Config, registry *codec.Registry, logger *slog.Logger, opts ...PipelineOption) *Pipeline {
	if logger == nil {
		logger = logging.NewNop()
	}
	if registry == nil {
		registry = NewRegistry(cfg, logger)
	}
	p := &Pipeline{
		cfg:      cfg,
		registry: registry,
		logger:   logging.NewComponentLogger(logger, "workflow"),
		loader:   render.LoadFile,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// NewRegistry returns a codec registry with the ffmpeg-backed codecs
// configured from cfg.
func NewRegistry(cfg *config.Config, logger *slog.Logger) *codec.Registry {
	reg := codec.NewRegistry()
	ffcodec.Register(reg, ffcodec.Settings{
		Binary:       cfg.FFmpeg.FFmpegBinary,
		BufferCount:  cfg.Codec.BufferCount,
		MaxInputSize: cfg.Codec.MaxInputSize,
		Preset:       cfg.Video.Preset,
		Logger:       logger,
	})
	return reg
}

// WithLogger returns a copy of p that logs through logger.
func (p *Pipeline) WithLogger(logger *slog.Logger) *Pipeline {
	if logger == nil {
		return p
	}
	clone := *p
	clone.logger = logging.NewComponentLogger(logger, "workflow")
	return &clone
}

func (p *Pipeline) jobLogger(ctx context.Context, stage string) *slog.Logger {
	return logging.WithContext(ctx, p.logger).With(logging.String(logging.FieldStage, stage))
}

func (p *Pipeline) maxEmptyPolls() int {
	timeout := p.cfg.CodecTimeout()
	if timeout <= 0 {
		return 0
	}
	return int(eosWait / timeout)
}

// produce runs write against the partial file of output while holding the
// output lock. On success the partial file is published onto output; on
// failure both the partial file and any existing output are removed.
func (p *Pipeline) produce(stage, output string, write func(partial string) error) (err error) {
	output = strings.TrimSpace(output)
	if output == "" {
		return services.Wrap(services.ErrValidation, stage, "output", "output path is required", nil)
	}
	if err := fileutil.EnsureParentDir(output); err != nil {
		return services.Wrap(services.ErrIO, stage, "output", output, err)
	}

	lockPath := output + ".lock"
	lock := flock.New(lockPath)
	locked, err := lock.TryLock()
	if err != nil {
		return services.Wrap(services.ErrIO, stage, "lock output", output, err)
	}
	if !locked {
		return services.Wrap(services.ErrValidation, stage, "lock output", output, ErrOutputBusy)
	}
	defer func() {
		_ = lock.Unlock()
		_ = fileutil.RemoveIfExists(lockPath)
	}()

	partial := fileutil.PartialPath(output)
	defer func() {
		if err == nil {
			return
		}
		err = errors.Join(err, fileutil.RemoveIfExists(partial), fileutil.RemoveIfExists(output))
	}()

	if err := write(partial); err != nil {
		return err
	}
	if err := fileutil.Publish(partial, output); err != nil {
		return services.Wrap(services.ErrIO, stage, "publish output", output, err)
	}
	return nil
}

func closeCodec(c codec.Codec) error {
	if c == nil {
		return nil
	}
	return errors.Join(c.Stop(), c.Release())
}

func configureErr(stage, operation string, detail string, err error) error {
	return services.Wrap(services.ErrCodecConfiguration, stage, operation, detail, err)
}

func startErr(stage, operation string, err error) error {
	return services.Wrap(services.ErrExternalTool, stage, operation, "", err)
}

func requireFile(stage, role, path string) error {
	if strings.TrimSpace(path) == "" {
		return services.Wrap(services.ErrValidation, stage, role, fmt.Sprintf("%s path is required", role), nil)
	}
	return nil
}

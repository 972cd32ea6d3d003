// Package render turns a list of still images into surface frames for a
// video encoder, stamping each with a fixed-rate presentation clock.
package render

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"time"

	"vidproc/internal/codec"
	"vidproc/internal/logging"
	"vidproc/internal/media"
	"vidproc/internal/muxer"
	"vidproc/internal/pump"
	"vidproc/internal/services"
)

// Encoder defaults for time-lapse output.
const (
	DefaultFrameRate      = 30
	DefaultBitRate        = 2_000_000
	DefaultIFrameInterval = 15
)

// EncoderFormat is the surface-mode H.264 configuration for a frame size.
func EncoderFormat(size image.Point, frameRate, bitRate, iFrameInterval int) media.Format {
	if frameRate <= 0 {
		frameRate = DefaultFrameRate
	}
	if bitRate <= 0 {
		bitRate = DefaultBitRate
	}
	if iFrameInterval <= 0 {
		iFrameInterval = DefaultIFrameInterval
	}
	return media.Format{
		MIME:             media.MIMEVideoAVC,
		Width:            size.X,
		Height:           size.Y,
		ColorFormat:      media.ColorFormatSurface,
		BitRate:          bitRate,
		FrameRate:        frameRate,
		KeyFrameInterval: iFrameInterval,
	}
}

// Options configures a Renderer.
type Options struct {
	FrameRate int
	Timeout   time.Duration
	// MaxEmptyPolls bounds consecutive empty polls while waiting for the
	// encoder's end of stream. Zero waits indefinitely.
	MaxEmptyPolls int
	Loader        Loader
}

// Renderer draws images onto an encoder surface and keeps the encoder's
// output flowing into a single muxer track.
type Renderer struct {
	encoder  codec.SurfaceEncoder
	surface  codec.Surface
	drain    *pump.EncoderDrain
	clock    *Clock
	progress *logging.ProgressSampler
	opts     Options
	logger   *slog.Logger
}

// NewRenderer binds an encoder that has been configured, given its input
// surface and started.
func NewRenderer(encoder codec.SurfaceEncoder, surface codec.Surface, tracks *muxer.TrackManager, opts Options, logger *slog.Logger) *Renderer {
	if opts.Loader == nil {
		opts.Loader = LoadFile
	}
	logger = logging.NewComponentLogger(logger, "renderer")
	return &Renderer{
		encoder:  encoder,
		surface:  surface,
		drain:    pump.NewEncoderDrain(encoder, tracks, opts.Timeout, logger),
		clock:    NewClock(opts.FrameRate),
		progress: logging.NewProgressSampler(25),
		opts:     opts,
		logger:   logger,
	}
}

// Clock exposes the presentation clock.
func (r *Renderer) Clock() *Clock { return r.clock }

// Render commits one frame per image in order, then ends the stream and
// drains the encoder until its end of stream is written. Cancellation is
// checked before each image.
func (r *Renderer) Render(ctx context.Context, images []string) error {
	if len(images) == 0 {
		return services.Wrap(services.ErrValidation, "renderer", "render", "no images", nil)
	}
	for i, path := range images {
		if err := ctx.Err(); err != nil {
			return services.Wrap(services.ErrCanceled, "renderer", "render", "", err)
		}
		if _, err := r.drain.DrainAvailable(); err != nil {
			return err
		}
		if err := r.renderFrame(path); err != nil {
			return err
		}
		r.logger.Debug("frame committed",
			logging.Int("frame", i),
			logging.String("image", path),
			logging.Int64("pts_us", r.clock.NowUs()),
		)
		r.clock.Advance()
		if percent := float64(i+1) * 100 / float64(len(images)); r.progress.ShouldLog(percent, "render") {
			r.logger.Info("time-lapse progress",
				logging.Int("frames", i+1),
				logging.Int("images", len(images)),
				logging.Float64("percent", percent),
			)
		}
	}

	if err := r.encoder.SignalEndOfInputStream(); err != nil {
		return services.Wrap(services.ErrIO, "encoder", "signal end of stream", "", err)
	}
	if err := r.drain.DrainToEOS(r.opts.MaxEmptyPolls); err != nil {
		return err
	}
	r.logger.Debug("time-lapse encoded",
		logging.Int("frames", r.clock.Frames()),
		logging.Int("samples", r.drain.Written()),
		logging.Int64("duration_us", r.clock.NowUs()),
	)
	return nil
}

func (r *Renderer) renderFrame(path string) error {
	img, err := r.opts.Loader(path)
	if err != nil {
		return services.Wrap(services.ErrIO, "renderer", "load image", path, err)
	}
	if img.Bounds().Empty() {
		return services.Wrap(services.ErrValidation, "renderer", "load image", fmt.Sprintf("%s has no pixels", path), nil)
	}
	Draw(r.surface.Canvas(), img)
	r.surface.SetPresentationTime(r.clock.NowNs())
	if err := r.surface.SwapBuffers(); err != nil {
		return services.Wrap(services.ErrIO, "renderer", "swap buffers", path, err)
	}
	return nil
}

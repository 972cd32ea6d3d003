package workflow

import (
	"context"
	"errors"

	"vidproc/internal/codec"
	"vidproc/internal/logging"
	"vidproc/internal/media"
	"vidproc/internal/muxer"
	"vidproc/internal/render"
	"vidproc/internal/resolution"
	"vidproc/internal/services"
)

const stageTimeLapse = "timelapse"

// EncodeTimeLapse encodes images, one frame each in order, into an H.264 MP4
// at output. The frame size is negotiated from the first image.
func (p *Pipeline) EncodeTimeLapse(ctx context.Context, images []string, output string) (Report, error) {
	if len(images) == 0 {
		return Report{}, services.Wrap(services.ErrValidation, stageTimeLapse, "images", "at least one image is required", nil)
	}
	logger := p.jobLogger(ctx, stageTimeLapse)
	logger.Info("time-lapse started",
		logging.String(logging.FieldEventType, "timelapse_start"),
		logging.Int("images", len(images)),
		logging.String("output", output),
	)

	var report Report
	err := p.produce(stageTimeLapse, output, func(partial string) error {
		var err error
		report, err = p.renderImages(ctx, images, partial)
		return err
	})
	if err != nil {
		logger.Error("time-lapse failed",
			logging.String(logging.FieldEventType, "timelapse_failed"),
			logging.Error(err),
		)
		return Report{}, err
	}
	logger.Info("time-lapse completed",
		logging.String(logging.FieldEventType, "timelapse_complete"),
		logging.Int("frames", report.SamplesWritten),
		logging.Int64("duration_ms", report.DurationMs),
	)
	return report, nil
}

func (p *Pipeline) renderImages(ctx context.Context, images []string, partial string) (report Report, err error) {
	logger := p.jobLogger(ctx, stageTimeLapse)

	sourceSize, err := render.ImageSize(images[0])
	if err != nil {
		return report, services.Wrap(services.ErrIO, stageTimeLapse, "read image size", images[0], err)
	}
	encoder, err := p.registry.NewSurfaceEncoder(media.MIMEVideoAVC)
	if err != nil {
		return report, err
	}
	defer func() { err = errors.Join(err, closeCodec(encoder)) }()

	size, err := resolution.Negotiate(encoder, sourceSize)
	if err != nil {
		return report, err
	}
	logger.Debug("frame size negotiated",
		logging.Int("source_width", sourceSize.X),
		logging.Int("source_height", sourceSize.Y),
		logging.Int("width", size.X),
		logging.Int("height", size.Y),
	)

	format := render.EncoderFormat(size, p.cfg.Video.FrameRate, p.cfg.Video.BitRate, p.cfg.Video.IFrameInterval)
	if err := encoder.Configure(format, codec.ModeEncode); err != nil {
		return report, configureErr(stageTimeLapse, "configure encoder", format.String(), err)
	}
	surface, err := encoder.CreateInputSurface()
	if err != nil {
		return report, configureErr(stageTimeLapse, "create input surface", "", err)
	}
	defer func() { err = errors.Join(err, surface.Release()) }()
	if err := encoder.Start(); err != nil {
		return report, startErr(stageTimeLapse, "start encoder", err)
	}

	out, err := muxer.NewFMP4(partial, logger)
	if err != nil {
		return report, services.Wrap(services.ErrIO, stageTimeLapse, "create output", partial, err)
	}
	tracks := muxer.NewTrackManager(out, 1, logger)
	defer func() { err = errors.Join(err, tracks.Finalize()) }()

	renderer := render.NewRenderer(encoder, surface, tracks, render.Options{
		FrameRate:     format.FrameRate,
		Timeout:       p.cfg.CodecTimeout(),
		MaxEmptyPolls: p.maxEmptyPolls(),
		Loader:        p.loader,
	}, logger)
	if err := renderer.Render(ctx, images); err != nil {
		return report, err
	}
	if err := tracks.Finalize(); err != nil {
		return report, err
	}

	report.SamplesWritten = tracks.Samples(0)
	report.DurationMs = renderer.Clock().NowUs() / 1000
	return report, nil
}

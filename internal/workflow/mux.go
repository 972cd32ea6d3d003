package workflow

import (
	"context"
	"errors"

	"vidproc/internal/logging"
	"vidproc/internal/muxer"
	"vidproc/internal/remux"
	"vidproc/internal/services"
	"vidproc/internal/source"
)

const stageMux = "mux"

// MuxAudioVideo copies the first video track of video and the first audio
// track of audio into a new MP4 at output without re-encoding.
func (p *Pipeline) MuxAudioVideo(ctx context.Context, audio, video, output string) (Report, error) {
	if err := requireFile(stageMux, "audio", audio); err != nil {
		return Report{}, err
	}
	if err := requireFile(stageMux, "video", video); err != nil {
		return Report{}, err
	}
	logger := p.jobLogger(ctx, stageMux)
	logger.Info("remux started",
		logging.String(logging.FieldEventType, "mux_start"),
		logging.String("audio", audio),
		logging.String("video", video),
		logging.String("output", output),
	)

	var report Report
	err := p.produce(stageMux, output, func(partial string) error {
		var err error
		report, err = p.remux(ctx, audio, video, partial)
		return err
	})
	if err != nil {
		logger.Error("remux failed",
			logging.String(logging.FieldEventType, "mux_failed"),
			logging.Error(err),
		)
		return Report{}, err
	}
	logger.Info("remux completed",
		logging.String(logging.FieldEventType, "mux_complete"),
		logging.Int("samples_written", report.SamplesWritten),
		logging.Int64("duration_ms", report.DurationMs),
	)
	return report, nil
}

func (p *Pipeline) remux(ctx context.Context, audio, video, partial string) (report Report, err error) {
	logger := p.jobLogger(ctx, stageMux)

	videoSrc, err := source.Open(video)
	if err != nil {
		return report, err
	}
	defer func() { err = errors.Join(err, videoSrc.Close()) }()
	audioSrc, err := source.Open(audio)
	if err != nil {
		return report, err
	}
	defer func() { err = errors.Join(err, audioSrc.Close()) }()

	videoIn, audioIn, err := remux.SelectInputs(videoSrc, audioSrc)
	if err != nil {
		return report, err
	}
	if err := ctx.Err(); err != nil {
		return report, services.Wrap(services.ErrCanceled, stageMux, "remux", "", err)
	}

	out, err := muxer.NewFMP4(partial, logger)
	if err != nil {
		return report, services.Wrap(services.ErrIO, stageMux, "create output", partial, err)
	}
	tracks := muxer.NewTrackManager(out, 2, logger)
	defer func() { err = errors.Join(err, tracks.Finalize()) }()

	res, err := remux.New(tracks, logger).Mux(videoIn, audioIn)
	if err != nil {
		return report, err
	}
	if err := tracks.Finalize(); err != nil {
		return report, err
	}
	if res.SkippedAudio > 0 {
		logger.Warn("skipped empty audio samples", logging.Int("skipped", res.SkippedAudio))
	}
	report.SamplesWritten = res.VideoSamples + res.AudioSamples
	report.DurationMs = videoIn.Format.DurationMs()
	return report, nil
}

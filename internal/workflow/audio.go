package workflow

import (
	"context"
	"errors"

	"vidproc/internal/codec"
	"vidproc/internal/logging"
	"vidproc/internal/media"
	"vidproc/internal/muxer"
	"vidproc/internal/pump"
	"vidproc/internal/services"
	"vidproc/internal/source"
)

const stageConvert = "convert"

// AudioOptions controls trimming and fades of an audio conversion. Values
// <= 0 disable the corresponding feature.
type AudioOptions struct {
	MaxDurationMs int64
	FadeInMs      int64
	FadeOutMs     int64
}

// NoAudioEffects converts the whole input without fades.
func NoAudioEffects() AudioOptions {
	return AudioOptions{MaxDurationMs: -1, FadeInMs: -1, FadeOutMs: -1}
}

// ConvertAudio decodes the first audio track of input, applies the requested
// trim and fades, and encodes it to AAC in an MP4 container at output.
func (p *Pipeline) ConvertAudio(ctx context.Context, input, output string, opts AudioOptions) (Report, error) {
	if err := requireFile(stageConvert, "input", input); err != nil {
		return Report{}, err
	}
	logger := p.jobLogger(ctx, stageConvert)
	logger.Info("audio conversion started",
		logging.String(logging.FieldEventType, "convert_start"),
		logging.String("input", input),
		logging.String("output", output),
		logging.Int64("max_duration_ms", opts.MaxDurationMs),
		logging.Int64("fade_in_ms", opts.FadeInMs),
		logging.Int64("fade_out_ms", opts.FadeOutMs),
	)

	var report Report
	err := p.produce(stageConvert, output, func(partial string) (err error) {
		src, cleanup, err := p.openAudio(ctx, input)
		if err != nil {
			return err
		}
		defer func() { err = errors.Join(err, src.Close(), cleanup()) }()

		_, format, err := source.SelectAudioTrack(src)
		if err != nil {
			return err
		}
		report, err = p.convertTrack(ctx, src, format, partial, opts)
		return err
	})
	if err != nil {
		logger.Error("audio conversion failed",
			logging.String(logging.FieldEventType, "convert_failed"),
			logging.Error(err),
		)
		return Report{}, err
	}
	logger.Info("audio conversion completed",
		logging.String(logging.FieldEventType, "convert_complete"),
		logging.Int("samples_written", report.SamplesWritten),
		logging.Int64("duration_ms", report.DurationMs),
	)
	return report, nil
}

func (p *Pipeline) convertTrack(ctx context.Context, src source.Source, format media.Format, partial string, opts AudioOptions) (report Report, err error) {
	logger := p.jobLogger(ctx, stageConvert)

	decoder, err := p.registry.NewDecoder(format.MIME)
	if err != nil {
		return report, err
	}
	defer func() { err = errors.Join(err, closeCodec(decoder)) }()
	if err := decoder.Configure(format, codec.ModeDecode); err != nil {
		return report, configureErr(stageConvert, "configure decoder", format.String(), err)
	}

	encFormat := pump.EncoderFormat(format, p.cfg.Audio.DefaultBitRate)
	encoder, err := p.registry.NewEncoder(encFormat.MIME)
	if err != nil {
		return report, err
	}
	defer func() { err = errors.Join(err, closeCodec(encoder)) }()
	if err := encoder.Configure(encFormat, codec.ModeEncode); err != nil {
		return report, configureErr(stageConvert, "configure encoder", encFormat.String(), err)
	}

	if err := decoder.Start(); err != nil {
		return report, startErr(stageConvert, "start decoder", err)
	}
	if err := encoder.Start(); err != nil {
		return report, startErr(stageConvert, "start encoder", err)
	}

	out, err := muxer.NewFMP4(partial, logger)
	if err != nil {
		return report, services.Wrap(services.ErrIO, stageConvert, "create output", partial, err)
	}
	tracks := muxer.NewTrackManager(out, 1, logger)
	defer func() { err = errors.Join(err, tracks.Finalize()) }()

	pp := pump.New(src, format, decoder, encoder, tracks, pump.Options{
		MaxDurationMs:       opts.MaxDurationMs,
		FadeInMs:            opts.FadeInMs,
		FadeOutMs:           opts.FadeOutMs,
		Timeout:             p.cfg.CodecTimeout(),
		EncoderInputRetries: p.cfg.Codec.EncoderInputRetries,
		DefaultBitRate:      p.cfg.Audio.DefaultBitRate,
	}, logger)
	if err := pp.Run(ctx); err != nil {
		return report, err
	}
	if err := tracks.Finalize(); err != nil {
		return report, err
	}

	stats := pp.Stats()
	report.SamplesWritten = stats.SamplesWritten
	report.DurationMs = outputDurationMs(pp.TotalMs(), format.DurationMs())
	logger.Debug("audio track converted",
		logging.String("input_format", format.String()),
		logging.String("output_format", encFormat.String()),
		logging.Int("samples_read", stats.SamplesRead),
		logging.Int("faded_buffers", stats.FadedBuffers),
		logging.Int64("bytes_written", stats.BytesWritten),
	)
	return report, nil
}

// outputDurationMs is the trimmed length when both lengths are known, or
// whichever one is.
func outputDurationMs(totalMs, sourceMs int64) int64 {
	switch {
	case totalMs > 0 && sourceMs > 0:
		return min(totalMs, sourceMs)
	case totalMs > 0:
		return totalMs
	case sourceMs > 0:
		return sourceMs
	}
	return 0
}

package pump

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"vidproc/internal/codec"
	"vidproc/internal/fade"
	"vidproc/internal/logging"
	"vidproc/internal/media"
	"vidproc/internal/muxer"
	"vidproc/internal/services"
	"vidproc/internal/source"
)

const (
	// DefaultBitRate is used when the source does not declare one.
	DefaultBitRate = 128000
	// EncoderMaxInputSize sizes encoder input buffers so one decoded buffer
	// always fits.
	EncoderMaxInputSize = 1 << 20

	defaultTimeout             = 10 * time.Millisecond
	defaultEncoderInputRetries = 3
)

// Options configures one audio conversion run.
type Options struct {
	// MaxDurationMs trims the output; negative keeps the source duration.
	MaxDurationMs int64
	// FadeInMs and FadeOutMs enable fades when positive.
	FadeInMs  int64
	FadeOutMs int64
	// Timeout is the bounded wait of every dequeue.
	Timeout time.Duration
	// EncoderInputRetries bounds how many encoder drains that free nothing may
	// separate failed input slot requests before the run fails.
	EncoderInputRetries int
	// DefaultBitRate applies when the input format carries no bit rate.
	DefaultBitRate int
}

// EncoderFormat derives the AAC encoder configuration from the decoder's
// input format.
func EncoderFormat(input media.Format, defaultBitRate int) media.Format {
	bitRate := input.BitRate
	if bitRate <= 0 {
		bitRate = defaultBitRate
	}
	if bitRate <= 0 {
		bitRate = DefaultBitRate
	}
	return media.Format{
		MIME:         media.MIMEAudioAAC,
		AACProfile:   media.AACObjectLC,
		SampleRate:   input.SampleRate,
		ChannelCount: input.ChannelCount,
		BitRate:      bitRate,
		MaxInputSize: EncoderMaxInputSize,
	}
}

// Pump is the decode, fade, encode, mux state machine for one audio track.
// It is not safe for concurrent use.
type Pump struct {
	src     source.Source
	decoder codec.Codec
	encoder codec.Codec
	drain   *EncoderDrain
	opts    Options
	logger  *slog.Logger

	inputFormat   media.Format
	decodedFormat media.Format
	totalMs       int64

	state    State
	progress Progress
	pass     pass
	stats    Stats
}

// New builds a pump over an already selected source track. The decoder and
// encoder must be configured and started; tracks must expect one track.
func New(src source.Source, inputFormat media.Format, decoder, encoder codec.Codec, tracks *muxer.TrackManager, opts Options, logger *slog.Logger) *Pump {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.EncoderInputRetries <= 0 {
		opts.EncoderInputRetries = defaultEncoderInputRetries
	}
	total := opts.MaxDurationMs
	if total < 0 {
		total = inputFormat.DurationMs()
	}
	logger = logging.NewComponentLogger(logger, "pump")
	return &Pump{
		src:           src,
		decoder:       decoder,
		encoder:       encoder,
		drain:         NewEncoderDrain(encoder, tracks, opts.Timeout, logger),
		opts:          opts,
		logger:        logger,
		inputFormat:   inputFormat,
		decodedFormat: inputFormat,
		totalMs:       total,
		state:         StateFeeding,
	}
}

// State returns the current state.
func (p *Pump) State() State { return p.state }

// Progress returns the completion flags.
func (p *Pump) Progress() Progress { return p.progress }

// Stats returns buffer counters for the run so far.
func (p *Pump) Stats() Stats {
	s := p.stats
	s.SamplesWritten = p.drain.Written()
	s.BytesWritten = p.drain.Bytes()
	return s
}

// TotalMs returns the output duration used for trimming and fade-out, or a
// non-positive value when unknown.
func (p *Pump) TotalMs() int64 { return p.totalMs }

// Run steps the pump until it finishes. Cancellation is observed only between
// feeding rounds.
func (p *Pump) Run(ctx context.Context) error {
	for p.state != StateFinished {
		if p.state == StateFeeding {
			if err := ctx.Err(); err != nil {
				return services.Wrap(services.ErrCanceled, "pump", "run", "", err)
			}
		}
		if err := p.Step(); err != nil {
			p.logger.Error("pump failed",
				logging.String(logging.FieldEventType, "pump_failed"),
				logging.String("state", p.state.String()),
				logging.Error(err),
			)
			return err
		}
	}
	stats := p.Stats()
	p.logger.Debug("pump finished",
		logging.String(logging.FieldEventType, "pump_finished"),
		logging.Int("samples_read", stats.SamplesRead),
		logging.Int("frames_decoded", stats.FramesDecoded),
		logging.Int("samples_written", stats.SamplesWritten),
		logging.Int("faded_buffers", stats.FadedBuffers),
	)
	return nil
}

// Step performs one transition.
func (p *Pump) Step() error {
	switch p.state {
	case StateFeeding:
		return p.feed()
	case StateDrainEncoder:
		return p.drainEncoder()
	case StateDrainDecoder:
		return p.drainDecoder()
	case StateFinished:
		return nil
	default:
		return services.Wrap(services.ErrPumpProtocol, "pump", "step", fmt.Sprintf("unknown state %d", p.state), nil)
	}
}

func (p *Pump) feed() error {
	if !p.progress.InputExtracted {
		if err := p.feedOnce(); err != nil {
			return err
		}
	}
	p.pass = pass{decoderEmpty: p.progress.InputDecoded}
	p.state = StateDrainEncoder
	return nil
}

func (p *Pump) feedOnce() error {
	index, ok, err := p.decoder.DequeueInputBuffer(p.opts.Timeout)
	if err != nil {
		return services.Wrap(services.ErrIO, "decoder", "dequeue input", "", err)
	}
	if !ok {
		return nil
	}
	buf, err := p.decoder.InputBuffer(index)
	if err != nil {
		return services.Wrap(services.ErrIO, "decoder", "input buffer", fmt.Sprintf("buffer %d", index), err)
	}

	n, readErr := p.src.ReadSampleData(buf)
	sampleTime := p.src.SampleTime()
	switch {
	case readErr == nil && (p.totalMs <= 0 || p.totalMs >= sampleTime/1000):
		info := media.BufferInfo{Size: n, PresentationTimeUs: sampleTime, Flags: p.src.SampleFlags()}
		if n == 0 {
			p.logger.Warn("zero-length source sample", logging.Int64("pts_us", sampleTime))
		}
		if err := p.decoder.QueueInputBuffer(index, info); err != nil {
			return services.Wrap(services.ErrIO, "decoder", "queue input", "", err)
		}
		p.stats.SamplesRead++
		p.src.Advance()
		return nil
	case readErr != nil && !errors.Is(readErr, io.EOF):
		// Hand the slot back as end of stream so the decoder is not left
		// holding a dequeued buffer.
		_ = p.decoder.QueueInputBuffer(index, media.BufferInfo{Flags: media.FlagEndOfStream})
		return services.Wrap(services.ErrIO, "source", "read sample", "", readErr)
	}

	if err := p.decoder.QueueInputBuffer(index, media.BufferInfo{Flags: media.FlagEndOfStream}); err != nil {
		return services.Wrap(services.ErrIO, "decoder", "queue end of stream", "", err)
	}
	p.progress.InputExtracted = true
	p.logger.Debug("input extracted",
		logging.Int("samples", p.stats.SamplesRead),
		logging.Int64("total_ms", p.totalMs),
		logging.Bool("trimmed", readErr == nil),
	)
	return nil
}

func (p *Pump) drainEncoder() error {
	kind, eos, err := p.drain.Once()
	if err != nil {
		return err
	}
	if eos {
		if !p.progress.InputDecoded {
			return services.Wrap(services.ErrPumpProtocol, "encoder", "drain", "end of stream before all input was decoded", nil)
		}
		p.progress.OutputEncoded = true
		p.state = StateFinished
		return nil
	}
	if kind != codec.OutputEmpty {
		return nil
	}
	p.pass.encoderEmpty = true
	if p.pass.decoderEmpty {
		p.state = StateFeeding
		return nil
	}
	p.state = StateDrainDecoder
	return nil
}

func (p *Pump) drainDecoder() error {
	out, err := p.decoder.DequeueOutputBuffer(p.opts.Timeout)
	if err != nil {
		return services.Wrap(services.ErrIO, "decoder", "dequeue output", "", err)
	}
	switch out.Kind {
	case codec.OutputEmpty:
		p.pass.decoderEmpty = true
		p.state = StateFeeding
		return nil
	case codec.OutputFormatChanged:
		p.decodedFormat = p.decoder.OutputFormat()
		p.logger.Debug("decoder output format changed",
			logging.String(logging.FieldEventType, "decoder_format_changed"),
			logging.String("format", p.decodedFormat.String()),
		)
		p.state = StateDrainEncoder
		return nil
	}

	transferErr := p.transfer(out)
	if err := p.decoder.ReleaseOutputBuffer(out.Index); err != nil && transferErr == nil {
		transferErr = services.Wrap(services.ErrIO, "decoder", "release output", fmt.Sprintf("buffer %d", out.Index), err)
	}
	if transferErr != nil {
		return transferErr
	}
	p.stats.FramesDecoded++
	if out.Info.EndOfStream() {
		p.progress.InputDecoded = true
		p.pass.decoderEmpty = true
	}
	p.state = StateDrainEncoder
	return nil
}

// transfer copies one decoded buffer into an encoder input slot, applying the
// fade envelope, and queues it with the decoder's timestamp and flags.
func (p *Pump) transfer(out codec.Output) error {
	index, err := p.acquireEncoderInput()
	if err != nil {
		return err
	}
	src, err := p.decoder.OutputBuffer(out.Index)
	if err != nil {
		p.abandonEncoderInput(index)
		return services.Wrap(services.ErrIO, "decoder", "output buffer", fmt.Sprintf("buffer %d", out.Index), err)
	}
	dst, err := p.encoder.InputBuffer(index)
	if err != nil {
		p.abandonEncoderInput(index)
		return services.Wrap(services.ErrIO, "encoder", "input buffer", fmt.Sprintf("buffer %d", index), err)
	}
	payload := codec.Payload(src, out.Info)
	if len(dst) < len(payload) {
		p.abandonEncoderInput(index)
		return services.Wrap(services.ErrPumpProtocol, "encoder", "copy", fmt.Sprintf("decoded buffer of %d bytes exceeds encoder slot of %d", len(payload), len(dst)), nil)
	}

	envelope := fade.Envelope{
		FadeInMs:   p.opts.FadeInMs,
		FadeOutMs:  p.opts.FadeOutMs,
		TotalMs:    p.totalMs,
		SampleRate: p.decodedFormat.SampleRate,
		Channels:   p.decodedFormat.ChannelCount,
	}
	n, mode := envelope.Apply(dst, payload, out.Info.PresentationTimeUs)
	if mode != fade.ModeCopy && n > 0 {
		p.stats.FadedBuffers++
		p.logger.Debug("fade applied",
			logging.String("mode", mode.String()),
			logging.Int64("pts_us", out.Info.PresentationTimeUs),
		)
	}
	info := media.BufferInfo{Size: n, PresentationTimeUs: out.Info.PresentationTimeUs, Flags: out.Info.Flags}
	if err := p.encoder.QueueInputBuffer(index, info); err != nil {
		return services.Wrap(services.ErrIO, "encoder", "queue input", "", err)
	}
	return nil
}

// acquireEncoderInput waits for an encoder input slot, draining all pending
// encoder output between attempts. Only rounds whose drain freed nothing count
// against EncoderInputRetries.
func (p *Pump) acquireEncoderInput() (int, error) {
	for attempt := 0; ; {
		index, ok, err := p.encoder.DequeueInputBuffer(p.opts.Timeout)
		if err != nil {
			return -1, services.Wrap(services.ErrIO, "encoder", "dequeue input", "", err)
		}
		if ok {
			return index, nil
		}
		if attempt >= p.opts.EncoderInputRetries {
			return -1, services.Wrap(services.ErrPumpProtocol, "encoder", "dequeue input",
				fmt.Sprintf("no input slot after %d retries", p.opts.EncoderInputRetries), nil)
		}
		drained, err := p.drainPending()
		if err != nil {
			return -1, err
		}
		if drained == 0 {
			attempt++
		}
		p.logger.Debug("encoder input slot unavailable, drained",
			logging.Int("drained", drained),
			logging.Int("attempt", attempt),
		)
	}
}

// drainPending pulls encoder output until the encoder reports nothing ready
// and returns how many outputs it handled. End of stream here means the
// encoder finished before its input did.
func (p *Pump) drainPending() (int, error) {
	drained := 0
	for {
		kind, eos, err := p.drain.Once()
		if err != nil {
			return drained, err
		}
		if eos {
			return drained, services.Wrap(services.ErrPumpProtocol, "encoder", "drain", "end of stream before all input was decoded", nil)
		}
		if kind == codec.OutputEmpty {
			return drained, nil
		}
		drained++
	}
}

// abandonEncoderInput returns a dequeued encoder slot as an empty buffer.
func (p *Pump) abandonEncoderInput(index int) {
	if err := p.encoder.QueueInputBuffer(index, media.BufferInfo{}); err != nil {
		p.logger.Debug("return encoder input slot failed", logging.Error(err))
	}
}

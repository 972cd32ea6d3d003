package pump

import (
	"fmt"
	"log/slog"
	"time"

	"vidproc/internal/codec"
	"vidproc/internal/logging"
	"vidproc/internal/muxer"
	"vidproc/internal/services"
)

// EncoderDrain moves encoder output into a single muxer track. It registers
// the track and starts the muxer on the encoder's format change.
type EncoderDrain struct {
	encoder codec.Codec
	tracks  *muxer.TrackManager
	timeout time.Duration
	logger  *slog.Logger

	track     int
	written   int
	bytes     int64
	lastPTSUs int64
}

// NewEncoderDrain binds an encoder to the track manager that receives its
// output.
func NewEncoderDrain(encoder codec.Codec, tracks *muxer.TrackManager, timeout time.Duration, logger *slog.Logger) *EncoderDrain {
	return &EncoderDrain{
		encoder: encoder,
		tracks:  tracks,
		timeout: timeout,
		logger:  logging.NewComponentLogger(logger, "encoder-drain"),
		track:   -1,
	}
}

// Once pulls one encoder output. It returns the dequeue kind and whether the
// written buffer carried end of stream.
func (d *EncoderDrain) Once() (codec.OutputKind, bool, error) {
	out, err := d.encoder.DequeueOutputBuffer(d.timeout)
	if err != nil {
		return codec.OutputEmpty, false, services.Wrap(services.ErrIO, "encoder", "dequeue output", "", err)
	}
	switch out.Kind {
	case codec.OutputEmpty:
		return out.Kind, false, nil
	case codec.OutputFormatChanged:
		if d.track >= 0 {
			return out.Kind, false, services.Wrap(services.ErrPumpProtocol, "encoder", "format change", "output format changed after track registration", nil)
		}
		format := d.encoder.OutputFormat()
		d.logger.Debug("encoder output format changed",
			logging.String(logging.FieldEventType, "encoder_format_changed"),
			logging.String("format", format.String()),
		)
		track, err := d.tracks.RegisterTrack(format)
		if err != nil {
			return out.Kind, false, err
		}
		d.track = track
		if err := d.tracks.Start(); err != nil {
			return out.Kind, false, err
		}
		return out.Kind, false, nil
	}

	writeErr := d.write(out)
	if err := d.encoder.ReleaseOutputBuffer(out.Index); err != nil && writeErr == nil {
		writeErr = services.Wrap(services.ErrIO, "encoder", "release output", fmt.Sprintf("buffer %d", out.Index), err)
	}
	if writeErr != nil {
		return out.Kind, false, writeErr
	}
	return out.Kind, out.Info.EndOfStream(), nil
}

func (d *EncoderDrain) write(out codec.Output) error {
	if d.track < 0 {
		return services.Wrap(services.ErrPumpProtocol, "encoder", "write sample", "encoder produced output before its format", nil)
	}
	buf, err := d.encoder.OutputBuffer(out.Index)
	if err != nil {
		return services.Wrap(services.ErrIO, "encoder", "output buffer", fmt.Sprintf("buffer %d", out.Index), err)
	}
	if err := d.tracks.WriteSample(d.track, buf, out.Info); err != nil {
		return err
	}
	if out.Info.Size > 0 {
		d.written++
		d.bytes += int64(out.Info.Size)
		d.lastPTSUs = out.Info.PresentationTimeUs
	}
	d.logger.Debug("encoded sample written",
		logging.Int("size", out.Info.Size),
		logging.Int64("pts_us", out.Info.PresentationTimeUs),
		logging.Bool("eos", out.Info.EndOfStream()),
	)
	return nil
}

// DrainAvailable pulls encoder output until the encoder reports nothing
// ready or end of stream. It returns whether end of stream was written.
func (d *EncoderDrain) DrainAvailable() (bool, error) {
	for {
		kind, eos, err := d.Once()
		if err != nil || eos {
			return eos, err
		}
		if kind == codec.OutputEmpty {
			return false, nil
		}
	}
}

// DrainToEOS pulls encoder output until end of stream is written, ignoring
// empty polls. maxEmpty bounds consecutive empty polls; zero means no bound.
func (d *EncoderDrain) DrainToEOS(maxEmpty int) error {
	empty := 0
	for {
		kind, eos, err := d.Once()
		if err != nil {
			return err
		}
		if eos {
			return nil
		}
		if kind != codec.OutputEmpty {
			empty = 0
			continue
		}
		empty++
		if maxEmpty > 0 && empty >= maxEmpty {
			return services.Wrap(services.ErrPumpProtocol, "encoder", "drain", fmt.Sprintf("no end of stream after %d empty polls", empty), nil)
		}
	}
}

// Track returns the registered muxer track, or -1 before the format change.
func (d *EncoderDrain) Track() int { return d.track }

// Written returns the number of non-empty samples written.
func (d *EncoderDrain) Written() int { return d.written }

// Bytes returns the payload bytes written.
func (d *EncoderDrain) Bytes() int64 { return d.bytes }

// LastPTSUs returns the timestamp of the last written sample.
func (d *EncoderDrain) LastPTSUs() int64 { return d.lastPTSUs }

package muxer

import (
	"errors"
	"fmt"
	"log/slog"

	"vidproc/internal/logging"
	"vidproc/internal/media"
	"vidproc/internal/services"
)

// ErrTrackLifecycle reports a call that breaks the register, start, write,
// finalize order.
var ErrTrackLifecycle = errors.New("muxer track lifecycle violation")

// TrackManager wraps a Muxer and enforces the track lifecycle for one output.
type TrackManager struct {
	muxer    Muxer
	expected int
	logger   *slog.Logger

	formats   []media.Format
	indices   map[int]int
	writes    []int
	started   bool
	finalized bool
}

// NewTrackManager manages m, which must carry exactly expectedTracks tracks.
func NewTrackManager(m Muxer, expectedTracks int, logger *slog.Logger) *TrackManager {
	return &TrackManager{
		muxer:    m,
		expected: expectedTracks,
		logger:   logging.NewComponentLogger(logger, "muxer"),
		indices:  map[int]int{},
	}
}

// RegisterTrack adds a track and returns the muxer-assigned index.
func (t *TrackManager) RegisterTrack(format media.Format) (int, error) {
	switch {
	case t.finalized:
		return -1, lifecycle("register track", "muxer already finalized")
	case t.started:
		return -1, lifecycle("register track", "muxer already started")
	case len(t.formats) >= t.expected:
		return -1, lifecycle("register track", fmt.Sprintf("all %d tracks already registered", t.expected))
	}
	index, err := t.muxer.AddTrack(format)
	if err != nil {
		return -1, services.Wrap(services.ErrCodecConfiguration, "muxer", "add track", format.String(), err)
	}
	t.indices[index] = len(t.formats)
	t.formats = append(t.formats, format)
	t.writes = append(t.writes, 0)
	t.logger.Debug("track registered",
		logging.String(logging.FieldEventType, "track_registered"),
		logging.Int("track", index),
		logging.String("format", format.String()),
	)
	return index, nil
}

// Start starts the container. It must be called once, after every expected
// track is registered.
func (t *TrackManager) Start() error {
	switch {
	case t.finalized:
		return lifecycle("start", "muxer already finalized")
	case t.started:
		return lifecycle("start", "muxer already started")
	case len(t.formats) != t.expected:
		return lifecycle("start", fmt.Sprintf("%d of %d tracks registered", len(t.formats), t.expected))
	}
	if err := t.muxer.Start(); err != nil {
		return services.Wrap(services.ErrIO, "muxer", "start", "", err)
	}
	t.started = true
	t.logger.Debug("muxer started", logging.Int("tracks", len(t.formats)))
	return nil
}

// WriteSample writes one encoded sample. Codec configuration buffers and
// empty end-of-stream markers carry no media and are not forwarded.
func (t *TrackManager) WriteSample(index int, data []byte, info media.BufferInfo) error {
	slot, ok := t.indices[index]
	switch {
	case !t.started:
		return lifecycle("write sample", "muxer not started")
	case t.finalized:
		return lifecycle("write sample", "muxer already finalized")
	case !ok:
		return lifecycle("write sample", fmt.Sprintf("track %d not registered", index))
	}
	if info.Flags.Has(media.FlagCodecConfig) {
		t.logger.Debug("skipping codec config buffer", logging.Int("track", index), logging.Int("size", info.Size))
		return nil
	}
	if info.Size == 0 && info.EndOfStream() {
		return nil
	}
	if err := t.muxer.WriteSampleData(index, data, info); err != nil {
		return services.Wrap(services.ErrIO, "muxer", "write sample", fmt.Sprintf("track %d", index), err)
	}
	t.writes[slot]++
	return nil
}

// Started reports whether Start succeeded.
func (t *TrackManager) Started() bool { return t.started }

// TrackCount returns the number of registered tracks.
func (t *TrackManager) TrackCount() int { return len(t.formats) }

// Samples returns how many samples were written to the track at index.
func (t *TrackManager) Samples(index int) int {
	if slot, ok := t.indices[index]; ok {
		return t.writes[slot]
	}
	return 0
}

// Finalize stops the container if it was started and releases it. It is safe
// to call more than once and on every exit path.
func (t *TrackManager) Finalize() error {
	if t.finalized {
		return nil
	}
	t.finalized = true
	var errs []error
	if t.started {
		if err := t.muxer.Stop(); err != nil {
			errs = append(errs, services.Wrap(services.ErrIO, "muxer", "stop", "", err))
		}
	}
	if err := t.muxer.Release(); err != nil {
		errs = append(errs, services.Wrap(services.ErrIO, "muxer", "release", "", err))
	}
	t.logger.Debug("muxer finalized", logging.Bool("started", t.started))
	return errors.Join(errs...)
}

func lifecycle(operation, message string) error {
	return services.Wrap(services.ErrPumpProtocol, "muxer", operation, message, ErrTrackLifecycle)
}

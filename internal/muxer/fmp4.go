package muxer

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/bluenviron/mediacommon/v2/pkg/codecs/h264"
	"github.com/bluenviron/mediacommon/v2/pkg/codecs/mpeg4audio"
	"github.com/bluenviron/mediacommon/v2/pkg/formats/fmp4"
	"github.com/bluenviron/mediacommon/v2/pkg/formats/fmp4/seekablebuffer"
	"github.com/bluenviron/mediacommon/v2/pkg/formats/mp4"

	"vidproc/internal/logging"
	"vidproc/internal/media"
)

const (
	videoTimeScale     = 90000
	defaultFrameRate   = 30
	aacSamplesPerFrame = 1024
	fragmentSeconds    = 1
)

var errNotStarted = errors.New("fmp4 muxer not started")

// ErrSampleRange is returned when a BufferInfo points outside its buffer.
var ErrSampleRange = errors.New("sample range outside buffer")

type fmp4Track struct {
	id        int
	timeScale uint32
	format    media.Format
	codec     mp4.Codec
	isVideo   bool

	pending      *fmp4.Sample
	pendingTicks int64
	lastDuration uint32

	fragment     []*fmp4.Sample
	fragmentBase int64
	fragmentDur  uint64
}

// FMP4 writes a fragmented MP4 file. Each track buffers one sample so its
// duration can be derived from the next timestamp, and fragments are flushed
// roughly once per second of media.
type FMP4 struct {
	path    string
	file    *os.File
	logger  *slog.Logger
	tracks  []*fmp4Track
	seq     uint32
	started bool
	stopped bool
}

// NewFMP4 creates (or truncates) the output file at path.
func NewFMP4(path string, logger *slog.Logger) (*FMP4, error) {
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create output: %w", err)
	}
	return &FMP4{
		path:   path,
		file:   file,
		logger: logging.NewComponentLogger(logger, "fmp4"),
	}, nil
}

// Path returns the output file path.
func (m *FMP4) Path() string { return m.path }

func (m *FMP4) AddTrack(format media.Format) (int, error) {
	if m.started {
		return -1, errors.New("fmp4 muxer already started")
	}
	track := &fmp4Track{id: len(m.tracks) + 1, format: format.Clone()}
	switch {
	case format.MIME == media.MIMEVideoAVC:
		if len(format.CodecConfig) < 2 || len(format.CodecConfig[0]) == 0 || len(format.CodecConfig[1]) == 0 {
			return -1, errors.New("h264 track requires sps and pps")
		}
		track.codec = &mp4.CodecH264{SPS: format.CodecConfig[0], PPS: format.CodecConfig[1]}
		track.timeScale = videoTimeScale
		track.isVideo = true
	case format.MIME == media.MIMEAudioAAC:
		config, err := audioConfig(format)
		if err != nil {
			return -1, err
		}
		track.codec = &mp4.CodecMPEG4Audio{Config: *config}
		track.timeScale = uint32(config.SampleRate)
	default:
		return -1, fmt.Errorf("unsupported track mime %q", format.MIME)
	}
	m.tracks = append(m.tracks, track)
	return len(m.tracks) - 1, nil
}

func audioConfig(format media.Format) (*mpeg4audio.AudioSpecificConfig, error) {
	var config mpeg4audio.AudioSpecificConfig
	if len(format.CodecConfig) > 0 && len(format.CodecConfig[0]) > 0 {
		if err := config.Unmarshal(format.CodecConfig[0]); err != nil {
			return nil, fmt.Errorf("parse audio specific config: %w", err)
		}
		return &config, nil
	}
	if format.SampleRate <= 0 || format.ChannelCount <= 0 {
		return nil, fmt.Errorf("aac track requires sample rate and channel count (got %d/%d)", format.SampleRate, format.ChannelCount)
	}
	profile := format.AACProfile
	if profile == 0 {
		profile = media.AACObjectLC
	}
	config.Type = mpeg4audio.ObjectType(profile)
	config.SampleRate = format.SampleRate
	config.ChannelCount = format.ChannelCount
	return &config, nil
}

func (m *FMP4) Start() error {
	if m.started {
		return errors.New("fmp4 muxer already started")
	}
	if len(m.tracks) == 0 {
		return errors.New("fmp4 muxer has no tracks")
	}
	init := &fmp4.Init{}
	for _, t := range m.tracks {
		init.Tracks = append(init.Tracks, &fmp4.InitTrack{
			ID:        t.id,
			TimeScale: t.timeScale,
			Codec:     t.codec,
		})
	}
	var buf seekablebuffer.Buffer
	if err := init.Marshal(&buf); err != nil {
		return fmt.Errorf("marshal init segment: %w", err)
	}
	if _, err := m.file.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("write init segment: %w", err)
	}
	m.started = true
	return nil
}

func (m *FMP4) WriteSampleData(index int, data []byte, info media.BufferInfo) error {
	if !m.started || m.stopped {
		return errNotStarted
	}
	if index < 0 || index >= len(m.tracks) {
		return fmt.Errorf("unknown track %d", index)
	}
	if info.Offset < 0 || info.Size < 0 || info.Offset > len(data) || info.Size > len(data)-info.Offset {
		return fmt.Errorf("%w: offset %d size %d in %d bytes", ErrSampleRange, info.Offset, info.Size, len(data))
	}
	payload := data[info.Offset : info.Offset+info.Size]
	if len(payload) == 0 {
		return nil
	}
	t := m.tracks[index]

	sample := &fmp4.Sample{}
	if t.isVideo {
		avcc, keyFrame, err := annexBToAVCC(payload)
		if err != nil {
			return err
		}
		if len(avcc) == 0 {
			return nil
		}
		sample.Payload = avcc
		sample.IsNonSyncSample = !(keyFrame || info.KeyFrame())
	} else {
		sample.Payload = stripADTS(payload)
	}
	ticks := info.PresentationTimeUs * int64(t.timeScale) / 1_000_000

	if t.pending != nil {
		m.settle(t, ticks)
		if err := m.maybeFlush(t); err != nil {
			return err
		}
	}
	t.pending = sample
	t.pendingTicks = ticks
	return nil
}

// settle closes the pending sample with a duration reaching nextTicks.
func (m *FMP4) settle(t *fmp4Track, nextTicks int64) {
	duration := nextTicks - t.pendingTicks
	if duration <= 0 {
		duration = int64(t.defaultDuration())
	}
	t.pending.Duration = uint32(duration)
	t.lastDuration = t.pending.Duration
	if len(t.fragment) == 0 {
		t.fragmentBase = max(t.pendingTicks, 0)
	}
	t.fragment = append(t.fragment, t.pending)
	t.fragmentDur += uint64(t.pending.Duration)
	t.pending = nil
}

func (t *fmp4Track) defaultDuration() uint32 {
	if t.lastDuration > 0 {
		return t.lastDuration
	}
	if t.isVideo {
		rate := t.format.FrameRate
		if rate <= 0 {
			rate = defaultFrameRate
		}
		return uint32(int(t.timeScale) / rate)
	}
	return aacSamplesPerFrame
}

func (m *FMP4) maybeFlush(t *fmp4Track) error {
	if t.fragmentDur < uint64(t.timeScale)*fragmentSeconds {
		return nil
	}
	return m.flush(t)
}

func (m *FMP4) flush(t *fmp4Track) error {
	if len(t.fragment) == 0 {
		return nil
	}
	m.seq++
	part := &fmp4.Part{
		SequenceNumber: m.seq,
		Tracks: []*fmp4.PartTrack{{
			ID:       t.id,
			BaseTime: uint64(t.fragmentBase),
			Samples:  t.fragment,
		}},
	}
	var buf seekablebuffer.Buffer
	if err := part.Marshal(&buf); err != nil {
		return fmt.Errorf("marshal fragment: %w", err)
	}
	if _, err := m.file.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("write fragment: %w", err)
	}
	m.logger.Debug("fragment written",
		logging.Int("track", t.id),
		logging.Int("samples", len(t.fragment)),
		logging.Int64("base", t.fragmentBase),
	)
	t.fragment = nil
	t.fragmentDur = 0
	return nil
}

// Stop flushes buffered samples and closes the file.
func (m *FMP4) Stop() error {
	if !m.started {
		return errNotStarted
	}
	if m.stopped {
		return nil
	}
	m.stopped = true
	var errs []error
	for _, t := range m.tracks {
		if t.pending != nil {
			m.settle(t, t.pendingTicks+int64(t.defaultDuration()))
		}
		if err := m.flush(t); err != nil {
			errs = append(errs, err)
		}
	}
	if err := m.file.Sync(); err != nil {
		errs = append(errs, fmt.Errorf("sync output: %w", err))
	}
	if err := m.file.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close output: %w", err))
	}
	m.file = nil
	return errors.Join(errs...)
}

// Release closes the file if Stop never ran.
func (m *FMP4) Release() error {
	if m.file == nil {
		return nil
	}
	err := m.file.Close()
	m.file = nil
	return err
}

// annexBToAVCC converts an Annex-B access unit to length-prefixed form,
// dropping access unit delimiters.
func annexBToAVCC(payload []byte) ([]byte, bool, error) {
	var annexb h264.AnnexB
	if err := annexb.Unmarshal(payload); err != nil {
		return nil, false, fmt.Errorf("parse annex-b sample: %w", err)
	}
	nalus := make([][]byte, 0, len(annexb))
	keyFrame := false
	for _, nalu := range annexb {
		if len(nalu) == 0 {
			continue
		}
		switch h264.NALUType(nalu[0] & 0x1f) {
		case h264.NALUTypeAccessUnitDelimiter:
			continue
		case h264.NALUTypeIDR:
			keyFrame = true
		}
		nalus = append(nalus, nalu)
	}
	if len(nalus) == 0 {
		return nil, false, nil
	}
	out, err := h264.AVCC(nalus).Marshal()
	if err != nil {
		return nil, false, fmt.Errorf("marshal avcc sample: %w", err)
	}
	return out, keyFrame, nil
}

// stripADTS returns the raw access unit when payload carries a single ADTS
// frame.
func stripADTS(payload []byte) []byte {
	if len(payload) < 7 || payload[0] != 0xff || payload[1]&0xf6 != 0xf0 {
		return payload
	}
	var pkts mpeg4audio.ADTSPackets
	if err := pkts.Unmarshal(payload); err != nil || len(pkts) != 1 {
		return payload
	}
	return pkts[0].AU
}

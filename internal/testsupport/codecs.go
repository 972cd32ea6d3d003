package testsupport

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"sync"
	"time"

	"vidproc/internal/codec"
	"vidproc/internal/media"
)

type fakeOutput struct {
	data []byte
	info media.BufferInfo
}

// FakeCodec is a scripted in-memory codec. Every queued input reappears as
// one output in FIFO order, optionally transformed. Input slots are granted
// only while fewer than Slots buffers are in flight, which models the small
// shared buffer pool of a hardware codec.
type FakeCodec struct {
	mu sync.Mutex

	// Format is reported by OutputFormat after the format change.
	Format media.Format
	// Slots bounds buffers held by the caller plus buffers waiting in the codec.
	Slots int
	// Transform maps an input payload to its output payload. nil copies.
	Transform func([]byte) []byte
	// Latency makes every output poll return Empty this many times before a
	// pending output is handed out.
	Latency int
	// Burst makes every non-empty input produce this many outputs, one
	// microsecond apart.
	Burst int
	// StarveInput refuses every input slot request.
	StarveInput bool
	// RepeatFormatChange reports the format change twice.
	RepeatFormatChange bool
	// EarlyEOS emits an end-of-stream output right after the format change.
	EarlyEOS bool

	Configured media.Format
	Mode       codec.Mode
	Queued     []media.BufferInfo
	Starts     int
	Stops      int
	Releases   int

	started        bool
	formatReported int
	eosQueued      bool
	earlyEOSSent   bool
	waited         int

	nextIndex int
	inputs    map[int][]byte
	pending   []fakeOutput
	outputs   map[int]fakeOutput
}

// NewFakeDecoder returns a FakeCodec producing 16-bit PCM at the given rate.
func NewFakeDecoder(sampleRate, channels int) *FakeCodec {
	return &FakeCodec{
		Format: media.Format{
			MIME:         media.MIMEAudioRaw,
			SampleRate:   sampleRate,
			ChannelCount: channels,
			PCMEncoding:  media.PCM16Bit,
		},
		Slots: 4,
	}
}

// NewFakeEncoder returns a FakeCodec reporting an AAC output format.
func NewFakeEncoder(sampleRate, channels int) *FakeCodec {
	return &FakeCodec{
		Format: media.Format{
			MIME:         media.MIMEAudioAAC,
			SampleRate:   sampleRate,
			ChannelCount: channels,
			AACProfile:   media.AACObjectLC,
		},
		Slots: 4,
	}
}

func (f *FakeCodec) Configure(format media.Format, mode codec.Mode) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.started {
		return codec.ErrState
	}
	f.Configured = format.Clone()
	f.Mode = mode
	return nil
}

func (f *FakeCodec) Start() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started = true
	f.Starts++
	if f.inputs == nil {
		f.inputs = map[int][]byte{}
		f.outputs = map[int]fakeOutput{}
	}
	if f.Slots <= 0 {
		f.Slots = 4
	}
	return nil
}

func (f *FakeCodec) inFlight() int {
	return len(f.inputs) + len(f.pending) + len(f.outputs)
}

func (f *FakeCodec) DequeueInputBuffer(time.Duration) (int, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.started {
		return 0, false, codec.ErrState
	}
	if f.StarveInput || f.eosQueued || f.inFlight() >= f.Slots {
		return 0, false, nil
	}
	idx := f.nextIndex
	f.nextIndex++
	f.inputs[idx] = make([]byte, 1<<16)
	return idx, true, nil
}

func (f *FakeCodec) InputBuffer(index int) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	buf, ok := f.inputs[index]
	if !ok {
		return nil, fmt.Errorf("%w: %d", codec.ErrBufferIndex, index)
	}
	return buf, nil
}

func (f *FakeCodec) QueueInputBuffer(index int, info media.BufferInfo) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	buf, ok := f.inputs[index]
	if !ok {
		return fmt.Errorf("%w: %d", codec.ErrBufferIndex, index)
	}
	if f.eosQueued {
		return codec.ErrInputClosed
	}
	delete(f.inputs, index)
	f.Queued = append(f.Queued, info)
	payload := append([]byte(nil), codec.Payload(buf, info)...)
	if f.Transform != nil && len(payload) > 0 {
		payload = f.Transform(payload)
	}
	out := info
	out.Offset = 0
	out.Size = len(payload)
	copies := 1
	if f.Burst > 1 && len(payload) > 0 {
		copies = f.Burst
	}
	for i := 0; i < copies; i++ {
		burst := out
		burst.PresentationTimeUs += int64(i)
		f.pending = append(f.pending, fakeOutput{data: payload, info: burst})
	}
	if info.EndOfStream() {
		f.eosQueued = true
	}
	return nil
}

func (f *FakeCodec) DequeueOutputBuffer(time.Duration) (codec.Output, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.started {
		return codec.Output{}, codec.ErrState
	}
	wantFormats := 1
	if f.RepeatFormatChange {
		wantFormats = 2
	}
	if f.formatReported < wantFormats {
		f.formatReported++
		return codec.Output{Kind: codec.OutputFormatChanged}, nil
	}
	if f.EarlyEOS && !f.earlyEOSSent {
		f.earlyEOSSent = true
		return f.handOut(fakeOutput{info: media.BufferInfo{Flags: media.FlagEndOfStream}}), nil
	}
	if len(f.pending) == 0 {
		return codec.Output{Kind: codec.OutputEmpty}, nil
	}
	if f.waited < f.Latency {
		f.waited++
		return codec.Output{Kind: codec.OutputEmpty}, nil
	}
	f.waited = 0
	next := f.pending[0]
	f.pending = f.pending[1:]
	return f.handOut(next), nil
}

func (f *FakeCodec) handOut(out fakeOutput) codec.Output {
	idx := f.nextIndex
	f.nextIndex++
	f.outputs[idx] = out
	return codec.Output{Kind: codec.OutputReady, Index: idx, Info: out.info}
}

func (f *FakeCodec) OutputBuffer(index int) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out, ok := f.outputs[index]
	if !ok {
		return nil, fmt.Errorf("%w: %d", codec.ErrBufferIndex, index)
	}
	return out.data, nil
}

func (f *FakeCodec) ReleaseOutputBuffer(index int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.outputs[index]; !ok {
		return fmt.Errorf("%w: %d", codec.ErrBufferIndex, index)
	}
	delete(f.outputs, index)
	return nil
}

func (f *FakeCodec) OutputFormat() media.Format {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Format.Clone()
}

func (f *FakeCodec) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started = false
	f.Stops++
	return nil
}

func (f *FakeCodec) Release() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started = false
	f.Releases++
	return nil
}

// Outstanding returns the number of input and output buffers handed to the
// caller and not yet given back.
func (f *FakeCodec) Outstanding() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.inputs) + len(f.outputs)
}

// FakeFrame records one committed surface frame.
type FakeFrame struct {
	PresentationTimeNs int64
	TopLeft            color.RGBA
	BottomLeft         color.RGBA
}

// FakeSurfaceEncoder is a surface-mode encoder that turns every committed
// frame into one Annex-B access unit. Frame timestamps come from the surface.
type FakeSurfaceEncoder struct {
	FakeCodec

	// Supported decides IsSizeSupported. nil accepts dimensions that are
	// multiples of 16.
	Supported func(width, height int) bool
	// OnSwap runs before each frame is committed.
	OnSwap func(frame int)

	Frames    []FakeFrame
	EOSSignal int

	surface *fakeSurface
}

// NewFakeSurfaceEncoder returns a surface encoder with no configured size.
func NewFakeSurfaceEncoder() *FakeSurfaceEncoder {
	return &FakeSurfaceEncoder{FakeCodec: FakeCodec{Slots: 1 << 20}}
}

func (e *FakeSurfaceEncoder) Configure(format media.Format, mode codec.Mode) error {
	if err := e.FakeCodec.Configure(format, mode); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Format = media.Format{
		MIME:        media.MIMEVideoAVC,
		Width:       format.Width,
		Height:      format.Height,
		FrameRate:   format.FrameRate,
		CodecConfig: [][]byte{H264SPS(format.Width, format.Height), H264PPS},
	}
	return nil
}

func (e *FakeSurfaceEncoder) IsSizeSupported(width, height int) bool {
	if e.Supported != nil {
		return e.Supported(width, height)
	}
	return width > 0 && height > 0 && width%16 == 0 && height%16 == 0
}

func (e *FakeSurfaceEncoder) CreateInputSurface() (codec.Surface, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.Configured.Width <= 0 || e.Configured.Height <= 0 {
		return nil, errors.New("fake surface encoder: not configured")
	}
	e.surface = &fakeSurface{
		enc:    e,
		canvas: image.NewRGBA(image.Rect(0, 0, e.Configured.Width, e.Configured.Height)),
	}
	return e.surface, nil
}

func (e *FakeSurfaceEncoder) SignalEndOfInputStream() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.eosQueued {
		return codec.ErrInputClosed
	}
	e.eosQueued = true
	e.EOSSignal++
	e.pending = append(e.pending, fakeOutput{info: media.BufferInfo{Flags: media.FlagEndOfStream}})
	return nil
}

func (e *FakeSurfaceEncoder) commit(s *fakeSurface) error {
	frame := len(e.Frames)
	if e.OnSwap != nil {
		e.OnSwap(frame)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.started {
		return codec.ErrState
	}
	if e.eosQueued {
		return codec.ErrInputClosed
	}
	b := s.canvas.Bounds()
	e.Frames = append(e.Frames, FakeFrame{
		PresentationTimeNs: s.ptsNs,
		TopLeft:            s.canvas.RGBAAt(b.Min.X, b.Min.Y),
		BottomLeft:         s.canvas.RGBAAt(b.Min.X, b.Max.Y-1),
	})
	nalType := byte(0x41)
	flags := media.BufferFlag(0)
	if frame == 0 {
		nalType = 0x65
		flags = media.FlagKeyFrame
	}
	au := []byte{0, 0, 0, 1, nalType, 0x88, byte(frame)}
	e.pending = append(e.pending, fakeOutput{
		data: au,
		info: media.BufferInfo{Size: len(au), PresentationTimeUs: s.ptsNs / 1000, Flags: flags},
	})
	return nil
}

type fakeSurface struct {
	enc      *FakeSurfaceEncoder
	canvas   *image.RGBA
	ptsNs    int64
	released bool
}

func (s *fakeSurface) Bounds() image.Rectangle      { return s.canvas.Bounds() }
func (s *fakeSurface) Canvas() *image.RGBA          { return s.canvas }
func (s *fakeSurface) SetPresentationTime(ns int64) { s.ptsNs = ns }
func (s *fakeSurface) SwapBuffers() error {
	if s.released {
		return errors.New("fake surface: released")
	}
	return s.enc.commit(s)
}
func (s *fakeSurface) Release() error {
	s.released = true
	return nil
}

// SurfaceReleased reports whether the created surface was released.
func (e *FakeSurfaceEncoder) SurfaceReleased() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.surface != nil && e.surface.released
}

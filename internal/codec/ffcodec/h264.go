package ffcodec

import (
	"errors"
	"fmt"
	"image"
	"strconv"
	"sync"

	"vidproc/internal/codec"
	"vidproc/internal/media"
)

// Frame size limits accepted by the H.264 encoder.
const (
	MinFrameSize = 16
	MaxFrameSize = 4096
)

// H264Encoder encodes surface frames to H.264 with ffmpeg and libx264.
// B-frames are disabled so output order matches submission order, and every
// access unit begins with a delimiter so the stream can be split.
type H264Encoder struct {
	*pipeCodec
	input   media.Format
	surface *frameSurface

	ptsMu   sync.Mutex
	pts     []int64
	lastPTS int64
}

// NewH264Encoder returns an unconfigured surface encoder.
func NewH264Encoder(settings Settings) *H264Encoder {
	e := &H264Encoder{}
	e.pipeCodec = newPipeCodec("h264-encoder", settings, nil)
	e.args = e.buildArgs
	e.prepare = func([]byte, media.BufferInfo) ([]byte, error) {
		return nil, errors.New("h264 encoder takes input through its surface")
	}
	e.stamp = e.stampUnit
	e.eosTime = func() int64 {
		e.ptsMu.Lock()
		defer e.ptsMu.Unlock()
		return e.lastPTS
	}
	return e
}

// IsSizeSupported accepts even dimensions within the encoder limits.
func (e *H264Encoder) IsSizeSupported(width, height int) bool {
	return width%2 == 0 && height%2 == 0 &&
		width >= MinFrameSize && width <= MaxFrameSize &&
		height >= MinFrameSize && height <= MaxFrameSize
}

func (e *H264Encoder) Configure(format media.Format, mode codec.Mode) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if mode != codec.ModeEncode {
		return fmt.Errorf("%w: h264 encoder configured for %s", codec.ErrState, mode)
	}
	if format.MIME != media.MIMEVideoAVC {
		return fmt.Errorf("%w: h264 encoder cannot produce %q", codec.ErrState, format.MIME)
	}
	if format.ColorFormat != media.ColorFormatSurface {
		return fmt.Errorf("%w: h264 encoder only accepts surface input", codec.ErrState)
	}
	if !e.IsSizeSupported(format.Width, format.Height) {
		return fmt.Errorf("%w: unsupported frame size %dx%d", codec.ErrState, format.Width, format.Height)
	}
	if format.FrameRate <= 0 {
		return fmt.Errorf("%w: h264 encoder needs a frame rate", codec.ErrState)
	}
	e.input = format.Clone()
	e.splitter = &accessUnitSplitter{frameRate: format.FrameRate}
	e.markConfigured(0)
	return nil
}

func (e *H264Encoder) buildArgs() []string {
	f := e.input
	gop := f.FrameRate * max(f.KeyFrameInterval, 1)
	args := append(prelude(),
		"-f", "rawvideo",
		"-pix_fmt", "rgba",
		"-s", fmt.Sprintf("%dx%d", f.Width, f.Height),
		"-r", strconv.Itoa(f.FrameRate),
		"-i", "pipe:0",
		"-vf", "vflip",
		"-c:v", "libx264",
		"-preset", e.settings.Preset,
		"-bf", "0",
		"-g", strconv.Itoa(gop),
		"-pix_fmt", "yuv420p",
		"-x264-params", "aud=1",
	)
	if f.BitRate > 0 {
		args = append(args, "-b:v", strconv.Itoa(f.BitRate))
	}
	return append(args, "-f", "h264", "pipe:1")
}

// CreateInputSurface returns the frame target. It must be called after
// Configure and before Start.
func (e *H264Encoder) CreateInputSurface() (codec.Surface, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.configured {
		return nil, fmt.Errorf("%w: surface before configure", codec.ErrState)
	}
	if e.started {
		return nil, fmt.Errorf("%w: surface after start", codec.ErrState)
	}
	e.surface = &frameSurface{
		enc:    e,
		canvas: image.NewRGBA(image.Rect(0, 0, e.input.Width, e.input.Height)),
	}
	return e.surface, nil
}

// SignalEndOfInputStream closes the encoder's input.
func (e *H264Encoder) SignalEndOfInputStream() error {
	return e.submit(nil, true)
}

func (e *H264Encoder) commit(frame []byte, ptsUs int64) error {
	e.ptsMu.Lock()
	e.pts = append(e.pts, ptsUs)
	e.ptsMu.Unlock()
	if err := e.submit(frame, false); err != nil {
		e.ptsMu.Lock()
		e.pts = e.pts[:len(e.pts)-1]
		e.ptsMu.Unlock()
		return err
	}
	return nil
}

func (e *H264Encoder) stampUnit(unit) int64 {
	e.ptsMu.Lock()
	defer e.ptsMu.Unlock()
	if len(e.pts) == 0 {
		// more access units than frames; continue the last timestamp
		return e.lastPTS
	}
	e.lastPTS = e.pts[0]
	e.pts = e.pts[1:]
	return e.lastPTS
}

type frameSurface struct {
	enc      *H264Encoder
	canvas   *image.RGBA
	ptsNs    int64
	released bool
}

func (s *frameSurface) Bounds() image.Rectangle      { return s.canvas.Bounds() }
func (s *frameSurface) Canvas() *image.RGBA          { return s.canvas }
func (s *frameSurface) SetPresentationTime(ns int64) { s.ptsNs = ns }

// SwapBuffers commits the canvas as one frame.
func (s *frameSurface) SwapBuffers() error {
	if s.released {
		return fmt.Errorf("%w: surface released", codec.ErrState)
	}
	frame := append([]byte(nil), s.canvas.Pix...)
	return s.enc.commit(frame, s.ptsNs/1000)
}

func (s *frameSurface) Release() error {
	s.released = true
	return nil
}

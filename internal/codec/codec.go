// Package codec defines the decoder/encoder capability driven by the codec
// pump, the tagged result of a bounded-wait dequeue, and a registry that
// creates codecs by MIME type.
//
// A codec owns a small fixed set of input and output buffers addressed by
// index. Callers dequeue an index, fill or read the buffer, then hand the
// index back with QueueInputBuffer or ReleaseOutputBuffer. Each dequeued index
// must be handed back exactly once.
package codec

import (
	"errors"
	"image"
	"time"

	"vidproc/internal/media"
)

var (
	// ErrState reports a call made in the wrong lifecycle state.
	ErrState = errors.New("codec: invalid state")
	// ErrBufferIndex reports an index that is not currently owned by the caller.
	ErrBufferIndex = errors.New("codec: invalid buffer index")
	// ErrInputClosed reports input submitted after end of stream.
	ErrInputClosed = errors.New("codec: input after end of stream")
)

// Mode selects decoding or encoding at configure time.
type Mode int

const (
	ModeDecode Mode = iota
	ModeEncode
)

func (m Mode) String() string {
	if m == ModeEncode {
		return "encode"
	}
	return "decode"
}

// OutputKind tags the result of DequeueOutputBuffer.
type OutputKind int

const (
	// OutputEmpty means nothing was ready within the wait. It is not an error.
	OutputEmpty OutputKind = iota
	// OutputReady carries a filled buffer index and its descriptor.
	OutputReady
	// OutputFormatChanged means OutputFormat now reports the final format.
	OutputFormatChanged
)

func (k OutputKind) String() string {
	switch k {
	case OutputReady:
		return "ready"
	case OutputFormatChanged:
		return "format_changed"
	default:
		return "empty"
	}
}

// Output is the tagged result of a bounded-wait output dequeue.
type Output struct {
	Kind  OutputKind
	Index int
	Info  media.BufferInfo
}

// Codec is a stateful transform between compressed and raw media.
type Codec interface {
	Configure(format media.Format, mode Mode) error
	Start() error
	// DequeueInputBuffer waits up to timeout for a free input slot.
	DequeueInputBuffer(timeout time.Duration) (index int, ok bool, err error)
	InputBuffer(index int) ([]byte, error)
	QueueInputBuffer(index int, info media.BufferInfo) error
	DequeueOutputBuffer(timeout time.Duration) (Output, error)
	// OutputBuffer returns the backing storage of a ready output; the payload
	// is the Offset/Size range of its descriptor.
	OutputBuffer(index int) ([]byte, error)
	ReleaseOutputBuffer(index int) error
	OutputFormat() media.Format
	Stop() error
	Release() error
}

// Surface is an encoder-owned frame target. Frames are drawn into Canvas,
// tagged with SetPresentationTime and committed with SwapBuffers. Canvas rows
// are stored bottom-up like a GL framebuffer: row 0 is the bottom of the
// encoded picture.
type Surface interface {
	Bounds() image.Rectangle
	Canvas() *image.RGBA
	SetPresentationTime(ns int64)
	SwapBuffers() error
	Release() error
}

// SurfaceEncoder is an encoder fed through a Surface instead of input buffers.
type SurfaceEncoder interface {
	Codec
	// CreateInputSurface must be called after Configure and before Start.
	CreateInputSurface() (Surface, error)
	SignalEndOfInputStream() error
	IsSizeSupported(width, height int) bool
}

// Payload slices the descriptor's range out of buf, clamping to its bounds.
func Payload(buf []byte, info media.BufferInfo) []byte {
	start := min(max(info.Offset, 0), len(buf))
	end := min(start+max(info.Size, 0), len(buf))
	return buf[start:end]
}

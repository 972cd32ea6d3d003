package media

// BufferFlag marks properties of a single sample buffer.
type BufferFlag uint32

const (
	FlagKeyFrame BufferFlag = 1 << iota
	FlagCodecConfig
	FlagEndOfStream
)

// Has reports whether all bits of other are set.
func (f BufferFlag) Has(other BufferFlag) bool {
	return f&other == other
}

// BufferInfo is the sample buffer descriptor that travels with every buffer
// handed between a source, a codec and a muxer.
type BufferInfo struct {
	Offset             int
	Size               int
	PresentationTimeUs int64
	Flags              BufferFlag
}

// EndOfStream reports whether the descriptor carries the end-of-stream flag.
func (b BufferInfo) EndOfStream() bool {
	return b.Flags.Has(FlagEndOfStream)
}

// KeyFrame reports whether the descriptor marks a sync sample.
func (b BufferInfo) KeyFrame() bool {
	return b.Flags.Has(FlagKeyFrame)
}

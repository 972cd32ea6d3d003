package media

import (
	"fmt"
	"strings"
)

// MIME types understood by the pipeline.
const (
	MIMEAudioAAC = "audio/mp4a-latm"
	MIMEAudioRaw = "audio/raw"
	MIMEVideoAVC = "video/avc"
)

// AACObjectLC is the AAC Low Complexity audio object type.
const AACObjectLC = 2

// ColorFormat describes how raw video frames reach an encoder.
type ColorFormat int

const (
	ColorFormatUnknown ColorFormat = iota
	// ColorFormatSurface means frames are rendered into an encoder-provided surface.
	ColorFormatSurface
	ColorFormatRGBA
)

// PCMEncoding identifies the raw sample layout of decoded audio.
type PCMEncoding int

const (
	PCMUnknown PCMEncoding = iota
	PCM16Bit
)

// Format describes one track: its codec and the capabilities a consumer
// needs to configure itself. Zero values mean "not present".
type Format struct {
	MIME             string
	SampleRate       int
	ChannelCount     int
	BitRate          int
	DurationUs       int64
	Width            int
	Height           int
	ColorFormat      ColorFormat
	FrameRate        int
	KeyFrameInterval int
	MaxInputSize     int
	AACProfile       int
	PCMEncoding      PCMEncoding

	// CodecConfig carries codec specific data: SPS and PPS for H.264, the
	// AudioSpecificConfig for AAC.
	CodecConfig [][]byte
}

// IsAudio reports whether the format describes an audio track. A track that
// exposes a channel count counts as audio even when its MIME is unknown.
func (f Format) IsAudio() bool {
	return strings.HasPrefix(f.MIME, "audio/") || f.ChannelCount > 0
}

// IsVideo reports whether the format describes a video track.
func (f Format) IsVideo() bool {
	return strings.HasPrefix(f.MIME, "video/")
}

// DurationMs returns the track duration in milliseconds, or 0 when unknown.
func (f Format) DurationMs() int64 {
	if f.DurationUs <= 0 {
		return 0
	}
	return f.DurationUs / 1000
}

// Clone returns a deep copy so callers can override fields without touching
// the source format.
func (f Format) Clone() Format {
	out := f
	if len(f.CodecConfig) > 0 {
		out.CodecConfig = make([][]byte, len(f.CodecConfig))
		for i, b := range f.CodecConfig {
			out.CodecConfig[i] = append([]byte(nil), b...)
		}
	}
	return out
}

func (f Format) String() string {
	var b strings.Builder
	b.WriteString(f.MIME)
	if f.IsVideo() {
		fmt.Fprintf(&b, " %dx%d", f.Width, f.Height)
		if f.FrameRate > 0 {
			fmt.Fprintf(&b, "@%d", f.FrameRate)
		}
	}
	if f.SampleRate > 0 {
		fmt.Fprintf(&b, " %dHz", f.SampleRate)
	}
	if f.ChannelCount > 0 {
		fmt.Fprintf(&b, " %dch", f.ChannelCount)
	}
	if f.BitRate > 0 {
		fmt.Fprintf(&b, " %dbps", f.BitRate)
	}
	return b.String()
}

// Package fade applies amplitude envelopes to interleaved 16-bit PCM while it
// is copied from a decoder output buffer into an encoder input buffer.
//
// Two shapes exist. Fade-in is a quadratic ease from silence, measured from
// the start of the stream. Fade-out is a decibel-linear decay that begins once
// the remaining time to the end of the stream falls inside the fade window.
// Gains are always clamped to [0, 1].
package fade

import (
	"encoding/binary"
	"math"
)

// BytesPerSample is the size of one s16le sample of one channel.
const BytesPerSample = 2

// FadeInGain returns the fade-in multiplier elapsedMs into a fade of
// durationMs. Non-positive durations disable the envelope.
func FadeInGain(elapsedMs, durationMs float64) float64 {
	if durationMs <= 0 {
		return 1
	}
	progress := elapsedMs / durationMs
	return clamp(progress * progress)
}

// FadeOutGain returns the fade-out multiplier elapsedMs into a fade of
// durationMs. progress <= 0 yields unity gain, progress >= 1 silence.
func FadeOutGain(elapsedMs, durationMs float64) float64 {
	if durationMs <= 0 {
		return 1
	}
	progress := elapsedMs / durationMs
	switch {
	case progress <= 0:
		return 1
	case progress >= 1:
		return 0
	}
	return clamp(20 * math.Log10(progress) / -40)
}

func clamp(gain float64) float64 {
	switch {
	case math.IsNaN(gain), gain < 0:
		return 0
	case gain > 1:
		return 1
	}
	return gain
}

// Mode reports which envelope applies to a buffer.
type Mode int

const (
	ModeCopy Mode = iota
	ModeIn
	ModeOut
)

func (m Mode) String() string {
	switch m {
	case ModeIn:
		return "fade_in"
	case ModeOut:
		return "fade_out"
	default:
		return "copy"
	}
}

// Envelope describes the fades applied to one conversion. A zero or negative
// duration disables the corresponding fade. TotalMs is the duration of the
// output stream; without it fade-out cannot be placed and is disabled.
type Envelope struct {
	FadeInMs   int64
	FadeOutMs  int64
	TotalMs    int64
	SampleRate int
	Channels   int
}

// Active reports whether any fade could touch the stream.
func (e Envelope) Active() bool {
	return e.FadeInMs > 0 || (e.FadeOutMs > 0 && e.TotalMs > 0)
}

// ModeAt selects the envelope for a buffer starting at ptsUs. Fade-in wins
// when both windows overlap.
func (e Envelope) ModeAt(ptsUs int64) Mode {
	if e.FadeInMs > 0 && ptsUs < e.FadeInMs*1000 {
		return ModeIn
	}
	if e.FadeOutMs > 0 && e.TotalMs > 0 {
		tillEndMs := float64(e.TotalMs) - float64(ptsUs)/1000
		if float64(e.FadeOutMs) >= tillEndMs {
			return ModeOut
		}
	}
	return ModeCopy
}

// Apply copies src into dst applying the envelope selected for ptsUs and
// returns the number of bytes written. One gain is computed per frame and
// shared by every channel of that frame. A trailing partial sample is copied
// verbatim. dst must be at least len(src) bytes.
func (e Envelope) Apply(dst, src []byte, ptsUs int64) (int, Mode) {
	mode := e.ModeAt(ptsUs)
	n := copy(dst, src)
	if mode == ModeCopy || e.SampleRate <= 0 {
		return n, ModeCopy
	}
	channels := max(e.Channels, 1)

	frameMs := 1000 / float64(e.SampleRate)
	var startMs, durationMs float64
	var gainAt func(float64, float64) float64
	switch mode {
	case ModeIn:
		startMs = float64(ptsUs / 1000)
		durationMs = float64(e.FadeInMs)
		gainAt = FadeInGain
	case ModeOut:
		tillEndMs := float64(e.TotalMs) - float64(ptsUs)/1000
		startMs = float64(e.FadeOutMs) - math.Trunc(tillEndMs)
		durationMs = float64(e.FadeOutMs)
		gainAt = FadeOutGain
	}

	frameBytes := channels * BytesPerSample
	frames := n / frameBytes
	for f := 0; f < frames; f++ {
		gain := gainAt(startMs+float64(f)*frameMs, durationMs)
		base := f * frameBytes
		for c := 0; c < channels; c++ {
			off := base + c*BytesPerSample
			sample := int16(binary.LittleEndian.Uint16(src[off:]))
			binary.LittleEndian.PutUint16(dst[off:], uint16(scale(sample, gain)))
		}
	}
	// Samples of an incomplete trailing frame use the next frame's gain.
	if rem := n - frames*frameBytes; rem >= BytesPerSample {
		gain := gainAt(startMs+float64(frames)*frameMs, durationMs)
		for off := frames * frameBytes; off+BytesPerSample <= n; off += BytesPerSample {
			sample := int16(binary.LittleEndian.Uint16(src[off:]))
			binary.LittleEndian.PutUint16(dst[off:], uint16(scale(sample, gain)))
		}
	}
	return n, mode
}

func scale(sample int16, gain float64) int16 {
	v := math.Round(float64(sample) * gain)
	switch {
	case v > math.MaxInt16:
		return math.MaxInt16
	case v < math.MinInt16:
		return math.MinInt16
	}
	return int16(v)
}

package source

import (
	"fmt"

	"github.com/bluenviron/mediacommon/v2/pkg/codecs/mpeg4audio"

	"vidproc/internal/media"
)

// SamplesPerAACFrame is the number of PCM frames coded in one AAC access unit.
const SamplesPerAACFrame = 1024

// ParseADTS parses a raw ADTS stream into a single-track source. Samples are
// bare access units; the AudioSpecificConfig travels in the track format.
func ParseADTS(data []byte) (*Memory, error) {
	var pkts mpeg4audio.ADTSPackets
	if err := pkts.Unmarshal(data); err != nil {
		return nil, fmt.Errorf("parse adts: %w", err)
	}
	if len(pkts) == 0 {
		return nil, fmt.Errorf("parse adts: no frames")
	}
	first := pkts[0]
	if first.SampleRate <= 0 {
		return nil, fmt.Errorf("parse adts: invalid sample rate %d", first.SampleRate)
	}

	asc := mpeg4audio.AudioSpecificConfig{
		Type:         first.Type,
		SampleRate:   first.SampleRate,
		ChannelCount: first.ChannelCount,
	}
	ascBytes, err := asc.Marshal()
	if err != nil {
		return nil, fmt.Errorf("marshal audio specific config: %w", err)
	}

	samples := make([]Sample, 0, len(pkts))
	var payloadBytes int64
	for i, pkt := range pkts {
		samples = append(samples, Sample{
			Data:   pkt.AU,
			TimeUs: aacFrameTimeUs(int64(i), first.SampleRate),
			Flags:  media.FlagKeyFrame,
		})
		payloadBytes += int64(len(pkt.AU))
	}
	durationUs := aacFrameTimeUs(int64(len(pkts)), first.SampleRate)
	bitRate := 0
	if durationUs > 0 {
		bitRate = int(payloadBytes * 8 * 1_000_000 / durationUs)
	}

	return NewMemory(Track{
		Format: media.Format{
			MIME:         media.MIMEAudioAAC,
			SampleRate:   first.SampleRate,
			ChannelCount: first.ChannelCount,
			BitRate:      bitRate,
			DurationUs:   durationUs,
			AACProfile:   int(first.Type),
			MaxInputSize: maxSampleSize(samples),
			CodecConfig:  [][]byte{ascBytes},
		},
		Samples: samples,
	}), nil
}

func aacFrameTimeUs(frame int64, sampleRate int) int64 {
	return frame * SamplesPerAACFrame * 1_000_000 / int64(sampleRate)
}

func maxSampleSize(samples []Sample) int {
	size := 0
	for _, s := range samples {
		size = max(size, len(s.Data))
	}
	return size
}

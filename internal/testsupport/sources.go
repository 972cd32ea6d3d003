package testsupport

import (
	"vidproc/internal/media"
	"vidproc/internal/source"
)

// PCMTrack builds a raw PCM track of count samples, each framesPerSample
// frames long and filled with value.
func PCMTrack(sampleRate, channels, count, framesPerSample int, value int16) source.Track {
	samples := make([]source.Sample, count)
	for i := range samples {
		samples[i] = source.Sample{
			Data:   ConstantPCM(framesPerSample, channels, value),
			TimeUs: int64(i) * int64(framesPerSample) * 1_000_000 / int64(sampleRate),
			Flags:  media.FlagKeyFrame,
		}
	}
	return source.Track{
		Format: media.Format{
			MIME:         media.MIMEAudioRaw,
			SampleRate:   sampleRate,
			ChannelCount: channels,
			PCMEncoding:  media.PCM16Bit,
			DurationUs:   int64(count) * int64(framesPerSample) * 1_000_000 / int64(sampleRate),
			MaxInputSize: framesPerSample * channels * 2,
		},
		Samples: samples,
	}
}

// VideoTrack builds an H.264 track of count Annex-B samples at fps.
func VideoTrack(width, height, count, fps int) source.Track {
	samples := make([]source.Sample, count)
	for i := range samples {
		nalType := byte(0x41)
		var flags media.BufferFlag
		if i == 0 {
			nalType = 0x65
			flags = media.FlagKeyFrame
		}
		samples[i] = source.Sample{
			Data:   []byte{0, 0, 0, 1, nalType, 0x9a, byte(i)},
			TimeUs: int64(i) * 1_000_000 / int64(fps),
			Flags:  flags,
		}
	}
	return source.Track{
		Format: media.Format{
			MIME:        media.MIMEVideoAVC,
			Width:       width,
			Height:      height,
			FrameRate:   fps,
			DurationUs:  int64(count) * 1_000_000 / int64(fps),
			CodecConfig: [][]byte{H264SPS(width, height), H264PPS},
		},
		Samples: samples,
	}
}

// AACTrack builds an AAC track of count access units.
func AACTrack(sampleRate, channels, count int) source.Track {
	samples := make([]source.Sample, count)
	for i := range samples {
		samples[i] = source.Sample{
			Data:   []byte{0x21, 0x10, 0x04, byte(i)},
			TimeUs: int64(i) * 1024 * 1_000_000 / int64(sampleRate),
			Flags:  media.FlagKeyFrame,
		}
	}
	return source.Track{
		Format: media.Format{
			MIME:         media.MIMEAudioAAC,
			SampleRate:   sampleRate,
			ChannelCount: channels,
			AACProfile:   media.AACObjectLC,
			DurationUs:   int64(count) * 1024 * 1_000_000 / int64(sampleRate),
		},
		Samples: samples,
	}
}

// MemorySource returns an in-memory source over tracks.
func MemorySource(tracks ...source.Track) *source.Memory {
	return source.NewMemory(tracks...)
}

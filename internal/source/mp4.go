package source

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/bluenviron/mediacommon/v2/pkg/formats/pmp4"

	"vidproc/internal/media"
)

// ParseMP4 parses any ISO BMFF file. Files carrying movie fragments go
// through ParseFMP4; progressive files (ftyp, moov, mdat) are read from their
// sample tables.
func ParseMP4(data []byte) (*Memory, error) {
	boxes, err := splitBoxes(data)
	if err != nil {
		return nil, fmt.Errorf("parse mp4: %w", err)
	}
	hasMoov := false
	for _, b := range boxes {
		switch b.typ {
		case "moof", "styp":
			return ParseFMP4(data)
		case "moov":
			hasMoov = true
		}
	}
	if !hasMoov {
		return nil, errors.New("parse mp4: missing moov box")
	}
	return parseProgressive(data)
}

func parseProgressive(data []byte) (*Memory, error) {
	var pres pmp4.Presentation
	if err := pres.Unmarshal(bytes.NewReader(data)); err != nil {
		return nil, fmt.Errorf("parse mp4: %w", err)
	}
	tracks := make([]Track, 0, len(pres.Tracks))
	for _, pt := range pres.Tracks {
		track, err := buildProgressiveTrack(pt)
		if err != nil {
			return nil, fmt.Errorf("track %d: %w", pt.ID, err)
		}
		tracks = append(tracks, track)
	}
	return NewMemory(tracks...), nil
}

func buildProgressiveTrack(pt *pmp4.Track) (Track, error) {
	if pt.TimeScale == 0 {
		return Track{}, errors.New("zero timescale")
	}
	format, isVideo, err := trackFormat(pt.Codec)
	if err != nil {
		return Track{}, err
	}
	scale := int64(pt.TimeScale)

	samples := make([]Sample, 0, len(pt.Samples))
	var dts int64
	for i, s := range pt.Samples {
		payload, err := s.GetPayload()
		if err != nil {
			return Track{}, fmt.Errorf("sample %d: %w", i, err)
		}
		if isVideo {
			if payload, err = avccToAnnexB(payload); err != nil {
				return Track{}, err
			}
		}
		var flags media.BufferFlag
		if !s.IsNonSyncSample {
			flags |= media.FlagKeyFrame
		}
		samples = append(samples, Sample{
			Data:   payload,
			TimeUs: (dts + int64(s.PTSOffset)) * 1_000_000 / scale,
			Flags:  flags,
		})
		dts += int64(s.Duration)
	}

	format.DurationUs = dts * 1_000_000 / scale
	if isVideo && format.DurationUs > 0 && len(samples) > 1 {
		format.FrameRate = int((int64(len(samples))*1_000_000 + format.DurationUs/2) / format.DurationUs)
	}
	format.MaxInputSize = maxSampleSize(samples)
	return Track{Format: format, Samples: samples}, nil
}

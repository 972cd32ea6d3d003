package source

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/bluenviron/mediacommon/v2/pkg/codecs/h264"
	"github.com/bluenviron/mediacommon/v2/pkg/formats/fmp4"
	"github.com/bluenviron/mediacommon/v2/pkg/formats/mp4"

	"vidproc/internal/media"
)

// MIMEUnknown marks tracks whose codec the pipeline cannot carry.
const MIMEUnknown = "application/octet-stream"

type box struct {
	typ  string
	data []byte
}

// splitBoxes walks the top-level boxes of an ISO BMFF byte stream.
func splitBoxes(data []byte) ([]box, error) {
	var boxes []box
	for off := 0; off < len(data); {
		if len(data)-off < 8 {
			return nil, fmt.Errorf("truncated box header at %d", off)
		}
		size := uint64(binary.BigEndian.Uint32(data[off:]))
		typ := string(data[off+4 : off+8])
		switch size {
		case 0:
			size = uint64(len(data) - off)
		case 1:
			if len(data)-off < 16 {
				return nil, fmt.Errorf("truncated large box header at %d", off)
			}
			size = binary.BigEndian.Uint64(data[off+8:])
		}
		if size < 8 || size > uint64(len(data)-off) {
			return nil, fmt.Errorf("invalid size %d for box %q at %d", size, typ, off)
		}
		boxes = append(boxes, box{typ: typ, data: data[off : off+int(size)]})
		off += int(size)
	}
	return boxes, nil
}

// ParseFMP4 parses a fragmented MP4 file into an in-memory source. Video
// samples are returned in Annex-B form; audio samples are bare AAC access
// units.
func ParseFMP4(data []byte) (*Memory, error) {
	boxes, err := splitBoxes(data)
	if err != nil {
		return nil, fmt.Errorf("parse fmp4: %w", err)
	}
	var initBuf, partsBuf bytes.Buffer
	for _, b := range boxes {
		switch b.typ {
		case "ftyp", "moov":
			initBuf.Write(b.data)
		case "moof", "mdat":
			partsBuf.Write(b.data)
		}
	}
	if initBuf.Len() == 0 {
		return nil, errors.New("parse fmp4: missing init segment")
	}

	var init fmp4.Init
	if err := init.Unmarshal(bytes.NewReader(initBuf.Bytes())); err != nil {
		return nil, fmt.Errorf("parse fmp4 init: %w", err)
	}
	var parts fmp4.Parts
	if partsBuf.Len() > 0 {
		if err := parts.Unmarshal(partsBuf.Bytes()); err != nil {
			return nil, fmt.Errorf("parse fmp4 fragments: %w", err)
		}
	}

	tracks := make([]Track, 0, len(init.Tracks))
	for _, it := range init.Tracks {
		track, err := buildTrack(it, parts)
		if err != nil {
			return nil, fmt.Errorf("track %d: %w", it.ID, err)
		}
		tracks = append(tracks, track)
	}
	return NewMemory(tracks...), nil
}

func buildTrack(it *fmp4.InitTrack, parts fmp4.Parts) (Track, error) {
	if it.TimeScale == 0 {
		return Track{}, errors.New("zero timescale")
	}
	format, isVideo, err := trackFormat(it.Codec)
	if err != nil {
		return Track{}, err
	}

	var (
		samples  []Sample
		firstDTS int64 = -1
		endDTS   int64
	)
	for _, part := range parts {
		for _, pt := range part.Tracks {
			if pt.ID != it.ID {
				continue
			}
			dts := int64(pt.BaseTime)
			if firstDTS < 0 {
				firstDTS = dts
			}
			for _, s := range pt.Samples {
				payload := s.Payload
				if isVideo {
					if payload, err = avccToAnnexB(payload); err != nil {
						return Track{}, err
					}
				}
				var flags media.BufferFlag
				if !s.IsNonSyncSample {
					flags |= media.FlagKeyFrame
				}
				pts := dts + int64(s.PTSOffset)
				samples = append(samples, Sample{
					Data:   payload,
					TimeUs: pts * 1_000_000 / int64(it.TimeScale),
					Flags:  flags,
				})
				dts += int64(s.Duration)
			}
			endDTS = dts
		}
	}
	if firstDTS >= 0 {
		format.DurationUs = (endDTS - firstDTS) * 1_000_000 / int64(it.TimeScale)
	}
	if isVideo && format.DurationUs > 0 && len(samples) > 1 {
		format.FrameRate = int((int64(len(samples))*1_000_000 + format.DurationUs/2) / format.DurationUs)
	}
	format.MaxInputSize = maxSampleSize(samples)
	return Track{Format: format, Samples: samples}, nil
}

func trackFormat(codec mp4.Codec) (media.Format, bool, error) {
	switch c := codec.(type) {
	case *mp4.CodecH264:
		format := media.Format{
			MIME:        media.MIMEVideoAVC,
			CodecConfig: [][]byte{c.SPS, c.PPS},
		}
		var sps h264.SPS
		if err := sps.Unmarshal(c.SPS); err != nil {
			return media.Format{}, false, fmt.Errorf("parse sps: %w", err)
		}
		format.Width = sps.Width()
		format.Height = sps.Height()
		return format, true, nil
	case *mp4.CodecMPEG4Audio:
		asc, err := c.Config.Marshal()
		if err != nil {
			return media.Format{}, false, fmt.Errorf("marshal audio specific config: %w", err)
		}
		return media.Format{
			MIME:         media.MIMEAudioAAC,
			SampleRate:   c.Config.SampleRate,
			ChannelCount: c.Config.ChannelCount,
			AACProfile:   int(c.Config.Type),
			CodecConfig:  [][]byte{asc},
		}, false, nil
	default:
		return media.Format{MIME: MIMEUnknown}, false, nil
	}
}

func avccToAnnexB(payload []byte) ([]byte, error) {
	var au h264.AVCC
	if err := au.Unmarshal(payload); err != nil {
		return nil, fmt.Errorf("parse avcc sample: %w", err)
	}
	out, err := h264.AnnexB(au).Marshal()
	if err != nil {
		return nil, fmt.Errorf("marshal annex-b sample: %w", err)
	}
	return out, nil
}

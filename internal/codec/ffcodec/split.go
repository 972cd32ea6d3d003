package ffcodec

import (
	"bytes"
	"fmt"

	"github.com/bluenviron/mediacommon/v2/pkg/codecs/h264"
	"github.com/bluenviron/mediacommon/v2/pkg/codecs/mpeg4audio"

	"vidproc/internal/media"
)

const (
	adtsHeaderSize = 7
	maxResync      = 64 << 10
)

// adtsSplitter cuts an ADTS byte stream into bare AAC access units. The
// first unit carries the track format derived from its header.
type adtsSplitter struct {
	buf       []byte
	announced bool
	skipped   int
}

func (s *adtsSplitter) Push(data []byte) ([]unit, error) {
	s.buf = append(s.buf, data...)
	var units []unit
	for len(s.buf) >= adtsHeaderSize {
		if s.buf[0] != 0xff || s.buf[1]&0xf6 != 0xf0 {
			s.buf = s.buf[1:]
			s.skipped++
			if s.skipped > maxResync {
				return units, fmt.Errorf("lost adts sync")
			}
			continue
		}
		frameLen := int(s.buf[3]&0x03)<<11 | int(s.buf[4])<<3 | int(s.buf[5])>>5
		if frameLen < adtsHeaderSize {
			return units, fmt.Errorf("invalid adts frame length %d", frameLen)
		}
		if len(s.buf) < frameLen {
			break
		}
		var pkts mpeg4audio.ADTSPackets
		if err := pkts.Unmarshal(s.buf[:frameLen]); err != nil {
			return units, fmt.Errorf("parse adts frame: %w", err)
		}
		s.buf = s.buf[frameLen:]
		s.skipped = 0
		for _, pkt := range pkts {
			u := unit{data: append([]byte(nil), pkt.AU...), keyFrame: true}
			if !s.announced {
				format, err := adtsFormat(pkt)
				if err != nil {
					return units, err
				}
				u.format = &format
				s.announced = true
			}
			units = append(units, u)
		}
	}
	return units, nil
}

func (s *adtsSplitter) Flush() ([]unit, error) {
	if len(s.buf) > 0 {
		return nil, fmt.Errorf("%d trailing bytes after last adts frame", len(s.buf))
	}
	return nil, nil
}

func adtsFormat(pkt *mpeg4audio.ADTSPacket) (media.Format, error) {
	asc := mpeg4audio.AudioSpecificConfig{
		Type:         pkt.Type,
		SampleRate:   pkt.SampleRate,
		ChannelCount: pkt.ChannelCount,
	}
	config, err := asc.Marshal()
	if err != nil {
		return media.Format{}, fmt.Errorf("marshal audio specific config: %w", err)
	}
	return media.Format{
		MIME:         media.MIMEAudioAAC,
		SampleRate:   pkt.SampleRate,
		ChannelCount: pkt.ChannelCount,
		AACProfile:   int(pkt.Type),
		CodecConfig:  [][]byte{config},
	}, nil
}

// pcmChunker cuts raw PCM into fixed-size buffers.
type pcmChunker struct {
	size int
	buf  []byte
}

func (c *pcmChunker) Push(data []byte) ([]unit, error) {
	c.buf = append(c.buf, data...)
	var units []unit
	for len(c.buf) >= c.size {
		units = append(units, unit{data: append([]byte(nil), c.buf[:c.size]...)})
		c.buf = c.buf[c.size:]
	}
	return units, nil
}

func (c *pcmChunker) Flush() ([]unit, error) {
	if len(c.buf) == 0 {
		return nil, nil
	}
	u := unit{data: c.buf}
	c.buf = nil
	return []unit{u}, nil
}

// accessUnitSplitter cuts an Annex-B H.264 stream into access units. Every
// access unit must start with an access unit delimiter. The first unit
// carries the format built from its SPS and PPS.
type accessUnitSplitter struct {
	buf       []byte
	scan      int
	started   bool
	announced bool
	frameRate int
}

var audPrefix = []byte{0, 0, 1, byte(h264.NALUTypeAccessUnitDelimiter)}

func (s *accessUnitSplitter) Push(data []byte) ([]unit, error) {
	s.buf = append(s.buf, data...)
	var units []unit
	for {
		if !s.started {
			start := bytes.Index(s.buf, audPrefix)
			if start < 0 {
				// keep a possible partial delimiter
				if len(s.buf) > len(audPrefix) {
					s.buf = s.buf[len(s.buf)-len(audPrefix):]
				}
				return units, nil
			}
			s.buf = s.buf[startCodeStart(s.buf, start):]
			s.started = true
			s.scan = len(audPrefix)
		}
		next := bytes.Index(s.buf[s.scan:], audPrefix)
		if next < 0 {
			s.scan = max(len(s.buf)-len(audPrefix)+1, s.scan)
			return units, nil
		}
		cut := startCodeStart(s.buf, s.scan+next)
		u, err := s.unit(s.buf[:cut])
		if err != nil {
			return units, err
		}
		units = append(units, u)
		s.buf = s.buf[cut:]
		s.scan = len(audPrefix)
		if s.buf[0] == 0 && len(s.buf) > len(audPrefix) && s.buf[1] == 0 && s.buf[2] == 0 {
			s.scan++
		}
	}
}

func (s *accessUnitSplitter) Flush() ([]unit, error) {
	if !s.started || len(s.buf) == 0 {
		return nil, nil
	}
	u, err := s.unit(s.buf)
	s.buf = nil
	if err != nil {
		return nil, err
	}
	return []unit{u}, nil
}

// startCodeStart widens a 3-byte start code at i to include a leading zero.
func startCodeStart(buf []byte, i int) int {
	if i > 0 && buf[i-1] == 0 {
		return i - 1
	}
	return i
}

func (s *accessUnitSplitter) unit(data []byte) (unit, error) {
	data = append([]byte(nil), data...)
	var au h264.AnnexB
	if err := au.Unmarshal(data); err != nil {
		return unit{}, fmt.Errorf("parse access unit: %w", err)
	}
	u := unit{data: data}
	var sps, pps []byte
	for _, nalu := range au {
		if len(nalu) == 0 {
			continue
		}
		switch h264.NALUType(nalu[0] & 0x1f) {
		case h264.NALUTypeIDR:
			u.keyFrame = true
		case h264.NALUTypeSPS:
			sps = nalu
		case h264.NALUTypePPS:
			pps = nalu
		}
	}
	if !s.announced {
		if sps == nil || pps == nil {
			return unit{}, fmt.Errorf("first access unit carries no sps/pps")
		}
		var parsed h264.SPS
		if err := parsed.Unmarshal(sps); err != nil {
			return unit{}, fmt.Errorf("parse sps: %w", err)
		}
		u.format = &media.Format{
			MIME:        media.MIMEVideoAVC,
			Width:       parsed.Width(),
			Height:      parsed.Height(),
			FrameRate:   s.frameRate,
			CodecConfig: [][]byte{sps, pps},
		}
		s.announced = true
	}
	return u, nil
}

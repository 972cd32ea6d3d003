// Package source reads compressed or raw samples, one track at a time, from
// the containers the pipeline accepts: RIFF/WAVE PCM, raw ADTS AAC streams and
// MP4 files, progressive or fragmented.
package source

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"vidproc/internal/media"
	"vidproc/internal/services"
)

var (
	// ErrNoMatchingTrack is returned when no track satisfies a selector.
	ErrNoMatchingTrack = services.ErrNoMatchingTrack
	// ErrUnsupportedContainer is returned by Open for unrecognized files.
	ErrUnsupportedContainer = errors.New("unsupported container")
	// ErrNoTrackSelected is returned when samples are read before SelectTrack.
	ErrNoTrackSelected = errors.New("no track selected")
)

// Source is the sample reader capability. ReadSampleData returns io.EOF once
// the selected track is exhausted and io.ErrShortBuffer when buf cannot hold
// the current sample.
type Source interface {
	TrackCount() int
	TrackFormat(index int) (media.Format, error)
	SelectTrack(index int) error
	ReadSampleData(buf []byte) (int, error)
	// SampleTime is the current sample's presentation time in microseconds,
	// or -1 when the track is exhausted.
	SampleTime() int64
	SampleFlags() media.BufferFlag
	// Advance moves to the next sample and reports whether one exists.
	Advance() bool
	Close() error
}

// Open sniffs the container at path and returns a matching Source.
func Open(path string) (Source, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, services.Wrap(services.ErrIO, "source", "open", path, err)
	}
	header := make([]byte, 12)
	n, err := io.ReadFull(file, header)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
		file.Close()
		return nil, services.Wrap(services.ErrIO, "source", "read header", path, err)
	}
	header = header[:n]

	switch {
	case isWAV(header):
		src, err := newWAV(file)
		if err != nil {
			file.Close()
			return nil, services.Wrap(services.ErrIO, "source", "parse wav", path, err)
		}
		return src, nil
	case isADTS(header):
		file.Close()
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, services.Wrap(services.ErrIO, "source", "read", path, err)
		}
		src, err := ParseADTS(data)
		if err != nil {
			return nil, services.Wrap(services.ErrIO, "source", "parse", path, err)
		}
		return src, nil
	case isMP4(header):
		file.Close()
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, services.Wrap(services.ErrIO, "source", "read", path, err)
		}
		src, err := ParseMP4(data)
		if err != nil {
			// An MP4 we cannot read natively may still be transcoded by ffmpeg.
			return nil, services.Wrap(services.ErrIO, "source", "parse", path,
				fmt.Errorf("%w: %w", ErrUnsupportedContainer, err))
		}
		return src, nil
	default:
		file.Close()
		return nil, services.Wrap(services.ErrIO, "source", "open", path, ErrUnsupportedContainer)
	}
}

func isWAV(h []byte) bool {
	return len(h) >= 12 && bytes.Equal(h[0:4], []byte("RIFF")) && bytes.Equal(h[8:12], []byte("WAVE"))
}

func isADTS(h []byte) bool {
	return len(h) >= 2 && h[0] == 0xFF && h[1]&0xF6 == 0xF0
}

func isMP4(h []byte) bool {
	if len(h) < 8 {
		return false
	}
	switch string(h[4:8]) {
	case "ftyp", "styp", "moov", "moof":
		return true
	}
	return false
}

// SelectAudioTrack selects the first audio track: one whose MIME starts with
// "audio/" or whose format declares a channel count.
func SelectAudioTrack(src Source) (int, media.Format, error) {
	return selectTrack(src, "audio", media.Format.IsAudio)
}

// SelectVideoTrack selects the first track whose MIME starts with "video/".
func SelectVideoTrack(src Source) (int, media.Format, error) {
	return selectTrack(src, "video", media.Format.IsVideo)
}

func selectTrack(src Source, kind string, match func(media.Format) bool) (int, media.Format, error) {
	for i := 0; i < src.TrackCount(); i++ {
		format, err := src.TrackFormat(i)
		if err != nil {
			return -1, media.Format{}, err
		}
		if !match(format) {
			continue
		}
		if err := src.SelectTrack(i); err != nil {
			return -1, media.Format{}, err
		}
		return i, format, nil
	}
	return -1, media.Format{}, services.Wrap(ErrNoMatchingTrack, "source", "select track",
		fmt.Sprintf("file contains no %s track", kind), nil)
}

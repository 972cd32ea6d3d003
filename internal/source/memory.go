package source

import (
	"fmt"
	"io"

	"vidproc/internal/media"
)

// Sample is one in-memory sample.
type Sample struct {
	Data   []byte
	TimeUs int64
	Flags  media.BufferFlag
}

// Track is an in-memory track.
type Track struct {
	Format  media.Format
	Samples []Sample
}

// Memory serves samples from memory. ADTS and fMP4 files are parsed into a
// Memory source up front.
type Memory struct {
	tracks   []Track
	selected int
	cursor   int
}

// NewMemory returns a source over tracks. No track is selected.
func NewMemory(tracks ...Track) *Memory {
	return &Memory{tracks: tracks, selected: -1}
}

func (m *Memory) TrackCount() int { return len(m.tracks) }

func (m *Memory) TrackFormat(index int) (media.Format, error) {
	if index < 0 || index >= len(m.tracks) {
		return media.Format{}, fmt.Errorf("track %d out of range", index)
	}
	return m.tracks[index].Format, nil
}

func (m *Memory) SelectTrack(index int) error {
	if index < 0 || index >= len(m.tracks) {
		return fmt.Errorf("track %d out of range", index)
	}
	m.selected = index
	m.cursor = 0
	return nil
}

func (m *Memory) current() (*Sample, error) {
	if m.selected < 0 {
		return nil, ErrNoTrackSelected
	}
	samples := m.tracks[m.selected].Samples
	if m.cursor >= len(samples) {
		return nil, io.EOF
	}
	return &samples[m.cursor], nil
}

func (m *Memory) ReadSampleData(buf []byte) (int, error) {
	s, err := m.current()
	if err != nil {
		return 0, err
	}
	if len(s.Data) > len(buf) {
		return 0, io.ErrShortBuffer
	}
	return copy(buf, s.Data), nil
}

func (m *Memory) SampleTime() int64 {
	s, err := m.current()
	if err != nil {
		return -1
	}
	return s.TimeUs
}

func (m *Memory) SampleFlags() media.BufferFlag {
	s, err := m.current()
	if err != nil {
		return 0
	}
	return s.Flags
}

func (m *Memory) Advance() bool {
	if m.selected < 0 {
		return false
	}
	if m.cursor < len(m.tracks[m.selected].Samples) {
		m.cursor++
	}
	return m.cursor < len(m.tracks[m.selected].Samples)
}

func (m *Memory) Close() error {
	m.tracks = nil
	m.selected = -1
	return nil
}

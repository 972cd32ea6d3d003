package testsupport

import (
	"errors"
	"sync"

	"vidproc/internal/media"
)

// WrittenSample records one WriteSampleData call.
type WrittenSample struct {
	Track int
	Data  []byte
	Info  media.BufferInfo
}

// RecordingMuxer is an in-memory muxer that records every call.
type RecordingMuxer struct {
	mu sync.Mutex

	Formats  []media.Format
	Samples  []WrittenSample
	Starts   int
	Stops    int
	Releases int

	StartErr error
	WriteErr error
}

// NewRecordingMuxer returns an empty RecordingMuxer.
func NewRecordingMuxer() *RecordingMuxer {
	return &RecordingMuxer{}
}

func (m *RecordingMuxer) AddTrack(format media.Format) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Starts > 0 {
		return -1, errors.New("recording muxer: add track after start")
	}
	m.Formats = append(m.Formats, format.Clone())
	return len(m.Formats) - 1, nil
}

func (m *RecordingMuxer) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.StartErr != nil {
		return m.StartErr
	}
	m.Starts++
	return nil
}

func (m *RecordingMuxer) WriteSampleData(track int, data []byte, info media.BufferInfo) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.WriteErr != nil {
		return m.WriteErr
	}
	if m.Starts == 0 {
		return errors.New("recording muxer: write before start")
	}
	payload := append([]byte(nil), data[info.Offset:info.Offset+info.Size]...)
	m.Samples = append(m.Samples, WrittenSample{Track: track, Data: payload, Info: info})
	return nil
}

func (m *RecordingMuxer) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Stops++
	return nil
}

func (m *RecordingMuxer) Release() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Releases++
	return nil
}

// TrackSamples returns the samples written to track.
func (m *RecordingMuxer) TrackSamples(track int) []WrittenSample {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []WrittenSample
	for _, s := range m.Samples {
		if s.Track == track {
			out = append(out, s)
		}
	}
	return out
}

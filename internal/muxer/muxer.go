// Package muxer writes encoded samples into an output container and guards
// the track lifecycle: tracks are registered before the container starts,
// the container starts exactly once, and samples are only written to started,
// registered tracks.
package muxer

import (
	"vidproc/internal/media"
)

// Muxer is the container writer capability.
type Muxer interface {
	AddTrack(format media.Format) (int, error)
	Start() error
	WriteSampleData(track int, data []byte, info media.BufferInfo) error
	Stop() error
	Release() error
}

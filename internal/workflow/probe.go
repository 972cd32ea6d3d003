package workflow

import (
	"errors"

	"vidproc/internal/source"
)

// ProbeDurationMs returns the duration of the first video track of the file
// at path, or -1 when it has no video track or its duration is unknown.
func ProbeDurationMs(path string) (ms int64, err error) {
	src, err := source.Open(path)
	if err != nil {
		return -1, err
	}
	defer func() { err = errors.Join(err, src.Close()) }()

	_, format, err := source.SelectVideoTrack(src)
	if err != nil {
		if errors.Is(err, source.ErrNoMatchingTrack) {
			return -1, nil
		}
		return -1, err
	}
	if d := format.DurationMs(); d > 0 {
		return d, nil
	}
	return -1, nil
}

// Package resolution picks the output frame size for a time-lapse encode.
package resolution

import (
	"fmt"
	"image"
	"log/slog"
	"sort"

	"vidproc/internal/logging"
	"vidproc/internal/services"
)

// Candidates are the standard sizes tried when the source size is not
// directly supported, in declaration order.
var Candidates = []image.Point{
	{X: 176, Y: 144},
	{X: 320, Y: 240},
	{X: 320, Y: 180},
	{X: 640, Y: 360},
	{X: 720, Y: 480},
	{X: 1280, Y: 720},
	{X: 1920, Y: 1080},
}

// SizeChecker reports whether an encoder accepts a frame size.
type SizeChecker interface {
	IsSizeSupported(width, height int) bool
}

// SizeCheckerFunc adapts a function to SizeChecker.
type SizeCheckerFunc func(width, height int) bool

func (f SizeCheckerFunc) IsSizeSupported(width, height int) bool { return f(width, height) }

// Negotiator ranks candidate sizes against a source size.
type Negotiator struct {
	Candidates []image.Point
	Logger     *slog.Logger
}

// Negotiate is shorthand for a Negotiator over the default candidates.
func Negotiate(checker SizeChecker, source image.Point) (image.Point, error) {
	return Negotiator{}.Negotiate(checker, source)
}

// Negotiate returns source unchanged when the encoder supports it. Otherwise
// candidates are ordered by absolute pixel-count difference, ties broken by
// aspect-ratio difference, and the first supported one wins.
func (n Negotiator) Negotiate(checker SizeChecker, source image.Point) (image.Point, error) {
	logger := logging.NewComponentLogger(n.Logger, "resolution")
	if source.X <= 0 || source.Y <= 0 {
		return image.Point{}, services.Wrap(services.ErrValidation, "resolution", "negotiate",
			fmt.Sprintf("invalid source size %dx%d", source.X, source.Y), nil)
	}
	if checker.IsSizeSupported(source.X, source.Y) {
		logger.Debug("source size supported", logging.String("size", sizeString(source)))
		return source, nil
	}

	candidates := n.Candidates
	if len(candidates) == 0 {
		candidates = Candidates
	}
	ranked := Rank(source, candidates)
	for _, c := range ranked {
		if checker.IsSizeSupported(c.X, c.Y) {
			logger.Debug("negotiated size",
				logging.String("source", sizeString(source)),
				logging.String("size", sizeString(c)),
			)
			return c, nil
		}
	}
	return image.Point{}, services.Wrap(services.ErrNoSupportedResolution, "resolution", "negotiate",
		fmt.Sprintf("no candidate supported for %s", sizeString(source)), nil)
}

// Rank returns a copy of candidates ordered by closeness to source.
func Rank(source image.Point, candidates []image.Point) []image.Point {
	ranked := append([]image.Point(nil), candidates...)
	pixels := area(source)
	aspect := aspectRatio(source)
	sort.SliceStable(ranked, func(i, j int) bool {
		di := abs64(area(ranked[i]) - pixels)
		dj := abs64(area(ranked[j]) - pixels)
		if di != dj {
			return di < dj
		}
		return absf(aspectRatio(ranked[i])-aspect) < absf(aspectRatio(ranked[j])-aspect)
	})
	return ranked
}

func area(p image.Point) int64 {
	return int64(p.X) * int64(p.Y)
}

// aspectRatio keeps the smaller side as numerator so portrait and landscape
// sizes compare on the same scale.
func aspectRatio(p image.Point) float64 {
	small, large := p.X, p.Y
	if small > large {
		small, large = large, small
	}
	if large == 0 {
		return 0
	}
	return float64(small) / float64(large)
}

func abs64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}

func absf(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

func sizeString(p image.Point) string {
	return fmt.Sprintf("%dx%d", p.X, p.Y)
}

package render_test

import (
	"context"
	"errors"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vidproc/internal/codec"
	"vidproc/internal/logging"
	"vidproc/internal/muxer"
	"vidproc/internal/render"
	"vidproc/internal/services"
	"vidproc/internal/source"
	"vidproc/internal/testsupport"
)

var (
	red  = color.RGBA{R: 255, A: 255}
	blue = color.RGBA{B: 255, A: 255}
)

// splitImage is red on the top half and blue on the bottom half.
func splitImage(w, h int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		c := red
		if y >= h/2 {
			c = blue
		}
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	return img
}

func slowLoader(delay time.Duration) render.Loader {
	return func(string) (image.Image, error) {
		time.Sleep(delay)
		return splitImage(8, 8), nil
	}
}

func startEncoder(t *testing.T, fps int) (*testsupport.FakeSurfaceEncoder, codec.Surface) {
	t.Helper()
	enc := testsupport.NewFakeSurfaceEncoder()
	require.NoError(t, enc.Configure(render.EncoderFormat(image.Pt(32, 32), fps, 0, 0), codec.ModeEncode))
	surface, err := enc.CreateInputSurface()
	require.NoError(t, err)
	require.NoError(t, enc.Start())
	return enc, surface
}

func imageList(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = filepath.Join("frames", string(rune('a'+i))+".png")
	}
	return out
}

func TestClockAdvancesByFixedInterval(t *testing.T) {
	c := render.NewClock(30)
	assert.Equal(t, int64(33333), c.IntervalUs())
	for i := 0; i < 4; i++ {
		assert.Equal(t, int64(i)*33333, c.NowUs())
		c.Advance()
	}
	assert.Equal(t, 4, c.Frames())
	assert.Equal(t, int64(4*33333*1000), c.NowNs())

	assert.Equal(t, int64(1_000_000/render.DefaultFrameRate), render.NewClock(0).IntervalUs())
}

func TestDrawFlipsVertically(t *testing.T) {
	canvas := image.NewRGBA(image.Rect(0, 0, 16, 16))
	render.Draw(canvas, splitImage(4, 4))
	assert.Equal(t, blue, canvas.RGBAAt(0, 0))
	assert.Equal(t, blue, canvas.RGBAAt(15, 3))
	assert.Equal(t, red, canvas.RGBAAt(0, 15))
	assert.Equal(t, red, canvas.RGBAAt(15, 12))
}

func TestRendererTimestampsIgnoreRenderCost(t *testing.T) {
	const frames, fps = 6, 10
	enc, surface := startEncoder(t, fps)
	rec := testsupport.NewRecordingMuxer()
	tracks := muxer.NewTrackManager(rec, 1, logging.NewNop())
	r := render.NewRenderer(enc, surface, tracks, render.Options{
		FrameRate: fps,
		Timeout:   time.Millisecond,
		Loader:    slowLoader(15 * time.Millisecond),
	}, logging.NewNop())

	require.NoError(t, r.Render(context.Background(), imageList(frames)))
	require.NoError(t, tracks.Finalize())

	require.Len(t, enc.Frames, frames)
	for i, f := range enc.Frames {
		assert.Equal(t, int64(i)*100_000_000, f.PresentationTimeNs)
		assert.Equal(t, blue, f.TopLeft, "frame %d row 0 is the picture bottom", i)
		assert.Equal(t, red, f.BottomLeft)
	}
	samples := rec.TrackSamples(0)
	require.Len(t, samples, frames)
	for i, s := range samples {
		assert.Equal(t, int64(i)*100_000, s.Info.PresentationTimeUs)
	}
	assert.Equal(t, int64(frames)*100_000, r.Clock().NowUs())
	assert.Equal(t, 1, enc.EOSSignal)
	assert.Equal(t, 1, rec.Starts)
}

func TestRendererOutputDurationIsFrameCountTimesInterval(t *testing.T) {
	const frames, fps = 7, 25
	enc, surface := startEncoder(t, fps)
	path := filepath.Join(t.TempDir(), "timelapse.mp4")
	out, err := muxer.NewFMP4(path, logging.NewNop())
	require.NoError(t, err)
	tracks := muxer.NewTrackManager(out, 1, logging.NewNop())
	r := render.NewRenderer(enc, surface, tracks, render.Options{
		FrameRate: fps,
		Timeout:   time.Millisecond,
		Loader:    slowLoader(5 * time.Millisecond),
	}, logging.NewNop())

	require.NoError(t, r.Render(context.Background(), imageList(frames)))
	require.NoError(t, tracks.Finalize())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	src, err := source.ParseFMP4(data)
	require.NoError(t, err)
	_, format, err := source.SelectVideoTrack(src)
	require.NoError(t, err)
	assert.Equal(t, int64(frames)*(1_000_000/fps), format.DurationUs)
	assert.Equal(t, 32, format.Width)
}

func TestRendererStopsOnCancel(t *testing.T) {
	enc, surface := startEncoder(t, 30)
	tracks := muxer.NewTrackManager(testsupport.NewRecordingMuxer(), 1, logging.NewNop())
	r := render.NewRenderer(enc, surface, tracks, render.Options{Loader: slowLoader(0)}, logging.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := r.Render(ctx, imageList(3))
	require.ErrorIs(t, err, services.ErrCanceled)
	assert.Empty(t, enc.Frames)
}

func TestRendererWrapsLoaderErrors(t *testing.T) {
	enc, surface := startEncoder(t, 30)
	tracks := muxer.NewTrackManager(testsupport.NewRecordingMuxer(), 1, logging.NewNop())
	boom := errors.New("corrupt jpeg")
	r := render.NewRenderer(enc, surface, tracks, render.Options{
		Loader: func(string) (image.Image, error) { return nil, boom },
	}, logging.NewNop())

	err := r.Render(context.Background(), imageList(2))
	require.ErrorIs(t, err, services.ErrIO)
	assert.ErrorIs(t, err, boom)
}

func TestRendererRejectsEmptyList(t *testing.T) {
	enc, surface := startEncoder(t, 30)
	tracks := muxer.NewTrackManager(testsupport.NewRecordingMuxer(), 1, logging.NewNop())
	r := render.NewRenderer(enc, surface, tracks, render.Options{}, logging.NewNop())
	require.ErrorIs(t, r.Render(context.Background(), nil), services.ErrValidation)
}

func TestLoadFileAndImageSize(t *testing.T) {
	path := testsupport.WritePNG(t, filepath.Join(t.TempDir(), "one.png"), 333, 217, red)

	size, err := render.ImageSize(path)
	require.NoError(t, err)
	assert.Equal(t, image.Pt(333, 217), size)

	img, err := render.LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 333, img.Bounds().Dx())

	_, err = render.LoadFile(filepath.Join(t.TempDir(), "missing.png"))
	require.Error(t, err)
}

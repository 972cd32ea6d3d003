package workflow_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/gofrs/flock"

	"vidproc/internal/fileutil"
	"vidproc/internal/services"
	"vidproc/internal/source"
	"vidproc/internal/testsupport"
	"vidproc/internal/workflow"
)

func TestConvertAudioTrimsToMaxDuration(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	p, c := newTestPipeline(t, cfg)
	dir := t.TempDir()
	input := writeWAV(t, filepath.Join(dir, "in.wav"), 8)
	output := filepath.Join(dir, "out", "audio.m4a")

	// 1024 frames at 8 kHz are 128 ms per sample.
	report, err := p.ConvertAudio(context.Background(), input, output, workflow.AudioOptions{MaxDurationMs: 300, FadeInMs: 50, FadeOutMs: 50})
	if err != nil {
		t.Fatalf("ConvertAudio: %v", err)
	}
	if report.SamplesWritten != 3 {
		t.Fatalf("expected 3 samples written, got %d", report.SamplesWritten)
	}
	if report.DurationMs != 300 {
		t.Fatalf("expected 300ms duration, got %d", report.DurationMs)
	}

	src := openOutput(t, output)
	track, format, err := source.SelectAudioTrack(src)
	if err != nil {
		t.Fatalf("select audio track: %v", err)
	}
	if format.SampleRate != testRate || format.ChannelCount != testChannels {
		t.Fatalf("unexpected output format %s", format)
	}
	if got := countSamples(t, src, track); got != 3 {
		t.Fatalf("expected 3 samples in output, got %d", got)
	}
	if len(c.encoders) != 1 || c.encoders[0].Releases != 1 {
		t.Fatalf("expected one released encoder, got %+v", c.encoders)
	}
	assertMissing(t, fileutil.PartialPath(output))
	assertMissing(t, output+".lock")
}

func TestConvertAudioWholeInput(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	p, _ := newTestPipeline(t, cfg)
	dir := t.TempDir()
	input := writeWAV(t, filepath.Join(dir, "in.wav"), 5)
	output := filepath.Join(dir, "out.m4a")

	report, err := p.ConvertAudio(context.Background(), input, output, workflow.NoAudioEffects())
	if err != nil {
		t.Fatalf("ConvertAudio: %v", err)
	}
	if report.SamplesWritten != 5 {
		t.Fatalf("expected 5 samples, got %d", report.SamplesWritten)
	}
	if report.DurationMs != 640 {
		t.Fatalf("expected 640ms, got %d", report.DurationMs)
	}
}

func TestConvertAudioWithoutAudioTrackBuildsNoCodec(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	p, c := newTestPipeline(t, cfg)
	dir := t.TempDir()
	video := filepath.Join(dir, "video.mp4")
	if _, err := p.EncodeTimeLapse(context.Background(), writeImages(t, dir, 2), video); err != nil {
		t.Fatalf("EncodeTimeLapse: %v", err)
	}
	built := c.created()
	output := filepath.Join(dir, "out.m4a")

	_, err := p.ConvertAudio(context.Background(), video, output, workflow.NoAudioEffects())
	if !errors.Is(err, services.ErrNoMatchingTrack) {
		t.Fatalf("expected ErrNoMatchingTrack, got %v", err)
	}
	if c.created() != built {
		t.Fatalf("expected no codec to be created, got %d new", c.created()-built)
	}
	assertMissing(t, output)
}

func TestConvertAudioFailureRemovesOutput(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	p, c := newTestPipeline(t, cfg)
	c.tweakEncoder = func(enc *testsupport.FakeCodec) { enc.StarveInput = true }
	dir := t.TempDir()
	input := writeWAV(t, filepath.Join(dir, "in.wav"), 4)
	output := testsupport.WriteFile(t, filepath.Join(dir, "out.m4a"), []byte("stale"))

	_, err := p.ConvertAudio(context.Background(), input, output, workflow.NoAudioEffects())
	if !errors.Is(err, services.ErrPumpProtocol) {
		t.Fatalf("expected ErrPumpProtocol, got %v", err)
	}
	assertMissing(t, output)
	assertMissing(t, fileutil.PartialPath(output))
	if enc := c.encoders[0]; enc.Stops != 1 || enc.Releases != 1 {
		t.Fatalf("expected encoder stopped and released once, got stops=%d releases=%d", enc.Stops, enc.Releases)
	}
}

func TestConvertAudioRejectsLockedOutput(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	p, c := newTestPipeline(t, cfg)
	dir := t.TempDir()
	input := writeWAV(t, filepath.Join(dir, "in.wav"), 2)
	output := testsupport.WriteFile(t, filepath.Join(dir, "out.m4a"), []byte("owned by another job"))

	lock := flock.New(output + ".lock")
	locked, err := lock.TryLock()
	if err != nil || !locked {
		t.Fatalf("take lock: locked=%v err=%v", locked, err)
	}
	defer lock.Unlock()

	_, err = p.ConvertAudio(context.Background(), input, output, workflow.NoAudioEffects())
	if !errors.Is(err, workflow.ErrOutputBusy) || !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected busy output validation error, got %v", err)
	}
	data, readErr := os.ReadFile(output)
	if readErr != nil || string(data) != "owned by another job" {
		t.Fatalf("locked output must be untouched, got %q err=%v", data, readErr)
	}
	if c.created() != 0 {
		t.Fatalf("expected no codecs, got %d", c.created())
	}
}

func TestConvertAudioRequiresInput(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	p, _ := newTestPipeline(t, cfg)
	_, err := p.ConvertAudio(context.Background(), " ", filepath.Join(t.TempDir(), "out.m4a"), workflow.NoAudioEffects())
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestEncodeTimeLapse(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithFrameRate(10))
	p, c := newTestPipeline(t, cfg)
	dir := t.TempDir()
	output := filepath.Join(dir, "timelapse.mp4")

	report, err := p.EncodeTimeLapse(context.Background(), writeImages(t, dir, 3), output)
	if err != nil {
		t.Fatalf("EncodeTimeLapse: %v", err)
	}
	if report.SamplesWritten != 3 || report.DurationMs != 300 {
		t.Fatalf("unexpected report %+v", report)
	}
	probed, err := workflow.ProbeDurationMs(output)
	if err != nil {
		t.Fatalf("ProbeDurationMs: %v", err)
	}
	if probed != 300 {
		t.Fatalf("expected probed duration 300ms, got %d", probed)
	}

	enc := c.surfaces[0]
	if len(enc.Frames) != 3 || enc.EOSSignal != 1 {
		t.Fatalf("expected 3 frames and one EOS, got %d frames eos=%d", len(enc.Frames), enc.EOSSignal)
	}
	for i, f := range enc.Frames {
		if want := int64(i) * 100_000_000; f.PresentationTimeNs != want {
			t.Fatalf("frame %d pts=%d want %d", i, f.PresentationTimeNs, want)
		}
	}
	if !enc.SurfaceReleased() || enc.Releases != 1 {
		t.Fatalf("expected surface and encoder released")
	}
}

func TestEncodeTimeLapseWithoutSupportedResolution(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	p, c := newTestPipeline(t, cfg)
	c.tweakSurface = func(enc *testsupport.FakeSurfaceEncoder) {
		enc.Supported = func(int, int) bool { return false }
	}
	dir := t.TempDir()
	output := filepath.Join(dir, "timelapse.mp4")

	_, err := p.EncodeTimeLapse(context.Background(), writeImages(t, dir, 1), output)
	if !errors.Is(err, services.ErrNoSupportedResolution) {
		t.Fatalf("expected ErrNoSupportedResolution, got %v", err)
	}
	assertMissing(t, output)
	if c.surfaces[0].Releases != 1 {
		t.Fatalf("expected encoder released on failure")
	}
}

func TestEncodeTimeLapseRequiresImages(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	p, _ := newTestPipeline(t, cfg)
	_, err := p.EncodeTimeLapse(context.Background(), nil, filepath.Join(t.TempDir(), "out.mp4"))
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestEncodeTimeLapseReportsUnreadableImageAsIO(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	p, _ := newTestPipeline(t, cfg)
	dir := t.TempDir()
	image := testsupport.WriteFile(t, filepath.Join(dir, "broken.png"), []byte("not an image"))
	output := filepath.Join(dir, "out.mp4")

	_, err := p.EncodeTimeLapse(context.Background(), []string{image}, output)
	if !errors.Is(err, services.ErrIO) {
		t.Fatalf("expected ErrIO, got %v", err)
	}
	if kind := services.FailureKind(err); kind != services.KindIO {
		t.Fatalf("expected failure kind %q, got %q", services.KindIO, kind)
	}
	assertMissing(t, output)
}

func TestMuxAudioVideo(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithFrameRate(10))
	p, _ := newTestPipeline(t, cfg)
	ctx := context.Background()
	dir := t.TempDir()
	video := filepath.Join(dir, "video.mp4")
	audio := filepath.Join(dir, "audio.m4a")
	if _, err := p.EncodeTimeLapse(ctx, writeImages(t, dir, 4), video); err != nil {
		t.Fatalf("EncodeTimeLapse: %v", err)
	}
	if _, err := p.ConvertAudio(ctx, writeWAV(t, filepath.Join(dir, "in.wav"), 3), audio, workflow.NoAudioEffects()); err != nil {
		t.Fatalf("ConvertAudio: %v", err)
	}
	output := filepath.Join(dir, "muxed.mp4")

	report, err := p.MuxAudioVideo(ctx, audio, video, output)
	if err != nil {
		t.Fatalf("MuxAudioVideo: %v", err)
	}
	if report.SamplesWritten != 7 || report.DurationMs != 400 {
		t.Fatalf("unexpected report %+v", report)
	}

	src := openOutput(t, output)
	if src.TrackCount() != 2 {
		t.Fatalf("expected 2 tracks, got %d", src.TrackCount())
	}
	videoTrack, _, err := source.SelectVideoTrack(src)
	if err != nil {
		t.Fatalf("select video: %v", err)
	}
	audioTrack, _, err := source.SelectAudioTrack(src)
	if err != nil {
		t.Fatalf("select audio: %v", err)
	}
	if got := countSamples(t, src, videoTrack); got != 4 {
		t.Fatalf("expected 4 video samples, got %d", got)
	}
	if got := countSamples(t, src, audioTrack); got != 3 {
		t.Fatalf("expected 3 audio samples, got %d", got)
	}
}

func TestMuxAudioVideoRequiresAudioTrack(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	p, _ := newTestPipeline(t, cfg)
	dir := t.TempDir()
	video := filepath.Join(dir, "video.mp4")
	if _, err := p.EncodeTimeLapse(context.Background(), writeImages(t, dir, 2), video); err != nil {
		t.Fatalf("EncodeTimeLapse: %v", err)
	}
	output := filepath.Join(dir, "muxed.mp4")

	_, err := p.MuxAudioVideo(context.Background(), video, video, output)
	if !errors.Is(err, services.ErrNoMatchingTrack) {
		t.Fatalf("expected ErrNoMatchingTrack, got %v", err)
	}
	assertMissing(t, output)
}

func TestEncodeImagesWithAudioTrimsAudioToVideo(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithFrameRate(10), testsupport.WithFades(100, 100))
	p, _ := newTestPipeline(t, cfg)
	dir := t.TempDir()
	output := filepath.Join(dir, "final.mp4")

	report, err := p.EncodeImagesWithAudio(context.Background(), "job1", writeImages(t, dir, 3), writeWAV(t, filepath.Join(dir, "in.wav"), 8), output)
	if err != nil {
		t.Fatalf("EncodeImagesWithAudio: %v", err)
	}
	if report.DurationMs != 300 {
		t.Fatalf("expected 300ms, got %d", report.DurationMs)
	}

	src := openOutput(t, output)
	audioTrack, _, err := source.SelectAudioTrack(src)
	if err != nil {
		t.Fatalf("select audio: %v", err)
	}
	if got := countSamples(t, src, audioTrack); got != 3 {
		t.Fatalf("expected audio trimmed to 3 samples, got %d", got)
	}
	videoTmp, audioTmp := p.StagingPaths("job1")
	assertMissing(t, videoTmp)
	assertMissing(t, audioTmp)
}

func TestEncodeImagesWithoutAudioIsTimeLapse(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	p, _ := newTestPipeline(t, cfg)
	dir := t.TempDir()
	output := filepath.Join(dir, "final.mp4")

	if _, err := p.EncodeImagesWithAudio(context.Background(), "job2", writeImages(t, dir, 2), "", output); err != nil {
		t.Fatalf("EncodeImagesWithAudio: %v", err)
	}
	src := openOutput(t, output)
	if src.TrackCount() != 1 {
		t.Fatalf("expected a single video track, got %d", src.TrackCount())
	}
}

func TestProbeDurationWithoutVideoTrack(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	p, _ := newTestPipeline(t, cfg)
	dir := t.TempDir()
	audio := filepath.Join(dir, "audio.m4a")
	if _, err := p.ConvertAudio(context.Background(), writeWAV(t, filepath.Join(dir, "in.wav"), 2), audio, workflow.NoAudioEffects()); err != nil {
		t.Fatalf("ConvertAudio: %v", err)
	}
	got, err := workflow.ProbeDurationMs(audio)
	if err != nil {
		t.Fatalf("ProbeDurationMs: %v", err)
	}
	if got != -1 {
		t.Fatalf("expected -1 for audio-only file, got %d", got)
	}
}

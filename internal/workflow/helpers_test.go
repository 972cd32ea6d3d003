package workflow_test

import (
	"errors"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"vidproc/internal/codec"
	"vidproc/internal/config"
	"vidproc/internal/logging"
	"vidproc/internal/media"
	"vidproc/internal/source"
	"vidproc/internal/testsupport"
	"vidproc/internal/workflow"
)

const (
	testRate     = 8000
	testChannels = 1
)

// codecs records every codec the pipeline asked the registry for.
type codecs struct {
	encoders []*testsupport.FakeCodec
	surfaces []*testsupport.FakeSurfaceEncoder

	// tweak adjusts codecs as they are created.
	tweakEncoder func(*testsupport.FakeCodec)
	tweakSurface func(*testsupport.FakeSurfaceEncoder)
}

func (c *codecs) created() int {
	return len(c.encoders) + len(c.surfaces)
}

func newTestPipeline(t *testing.T, cfg *config.Config) (*workflow.Pipeline, *codecs) {
	t.Helper()
	c := &codecs{}
	reg := codec.NewRegistry()
	reg.RegisterEncoder(media.MIMEAudioAAC, func() (codec.Codec, error) {
		enc := testsupport.NewFakeEncoder(testRate, testChannels)
		if c.tweakEncoder != nil {
			c.tweakEncoder(enc)
		}
		c.encoders = append(c.encoders, enc)
		return enc, nil
	})
	reg.RegisterSurfaceEncoder(media.MIMEVideoAVC, func() (codec.SurfaceEncoder, error) {
		enc := testsupport.NewFakeSurfaceEncoder()
		if c.tweakSurface != nil {
			c.tweakSurface(enc)
		}
		c.surfaces = append(c.surfaces, enc)
		return enc, nil
	})
	return workflow.NewPipeline(cfg, reg, logging.NewNop()), c
}

// writeWAV writes count 1024-frame samples of mono 8 kHz PCM.
func writeWAV(t *testing.T, path string, samples int) string {
	t.Helper()
	pcm := testsupport.ConstantPCM(samples*1024, testChannels, 1000)
	return testsupport.WriteFile(t, path, testsupport.WAVBytes(testRate, testChannels, pcm))
}

func writeImages(t *testing.T, dir string, count int) []string {
	t.Helper()
	out := make([]string, count)
	for i := range out {
		out[i] = testsupport.WritePNG(t, filepath.Join(dir, "frame"+string(rune('a'+i))+".png"), 32, 32, color.RGBA{R: 200, A: 255})
	}
	return out
}

func writeScript(t *testing.T, path, body string) string {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for script: %v", err)
	}
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755); err != nil {
		t.Fatalf("write script %s: %v", path, err)
	}
	return path
}

func openOutput(t *testing.T, path string) source.Source {
	t.Helper()
	src, err := source.Open(path)
	if err != nil {
		t.Fatalf("open output %s: %v", path, err)
	}
	t.Cleanup(func() { _ = src.Close() })
	return src
}

func countSamples(t *testing.T, src source.Source, track int) int {
	t.Helper()
	if err := src.SelectTrack(track); err != nil {
		t.Fatalf("select track %d: %v", track, err)
	}
	count := 0
	for src.SampleTime() >= 0 {
		count++
		if !src.Advance() {
			break
		}
	}
	return count
}

func assertMissing(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected %s to be absent, stat err=%v", path, err)
	}
}

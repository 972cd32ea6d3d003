package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"vidproc/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.StagingDir = filepath.Join(base, "staging")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.StateDir = filepath.Join(base, "state")
	cfgVal.Codec.TimeoutMs = 1

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithFades overrides the default audio fades.
func WithFades(inMs, outMs int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Audio.FadeInMs = inMs
		b.cfg.Audio.FadeOutMs = outMs
	}
}

// WithFrameRate overrides the time-lapse frame rate.
func WithFrameRate(fps int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Video.FrameRate = fps
	}
}

// WithStubbedBinaries writes stub executables for the provided names and
// points the ffmpeg settings at them. If names is empty, ffmpeg and ffprobe
// are stubbed.
func WithStubbedBinaries(names ...string) ConfigOption {
	return func(b *configBuilder) {
		if len(names) == 0 {
			names = []string{"ffmpeg", "ffprobe"}
		}
		binDir := filepath.Join(b.baseDir, "bin")
		if err := os.MkdirAll(binDir, 0o755); err != nil {
			b.t.Fatalf("mkdir bin dir: %v", err)
		}
		script := []byte("#!/bin/sh\nexit 0\n")
		for _, name := range names {
			target := filepath.Join(binDir, name)
			if err := os.WriteFile(target, script, 0o755); err != nil {
				b.t.Fatalf("write stub %s: %v", name, err)
			}
			switch name {
			case "ffmpeg":
				b.cfg.FFmpeg.FFmpegBinary = target
			case "ffprobe":
				b.cfg.FFmpeg.FFprobeBinary = target
			}
		}
	}
}

// BaseDir returns the temp root used for a config created by NewConfig.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.StagingDir)
}

package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"vidproc/internal/config"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)

	path := filepath.Join(t.TempDir(), "absent.toml")
	cfg, resolved, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if exists {
		t.Fatal("expected config file to be absent")
	}
	if resolved != path {
		t.Fatalf("unexpected resolved path %q", resolved)
	}
	wantStaging := filepath.Join(tempHome, ".local", "share", "vidproc", "staging")
	if cfg.Paths.StagingDir != wantStaging {
		t.Fatalf("unexpected staging dir: got %q want %q", cfg.Paths.StagingDir, wantStaging)
	}
	if cfg.Codec.TimeoutMs != 10 || cfg.Codec.EncoderInputRetries != 3 {
		t.Fatalf("unexpected codec defaults: %+v", cfg.Codec)
	}
	if cfg.Video.FrameRate != 30 || cfg.Video.BitRate != 2000000 || cfg.Video.IFrameInterval != 15 {
		t.Fatalf("unexpected video defaults: %+v", cfg.Video)
	}
	if cfg.Audio.FadeInMs != 500 || cfg.Audio.FadeOutMs != 500 {
		t.Fatalf("unexpected audio defaults: %+v", cfg.Audio)
	}
	if got := cfg.CodecTimeout().Milliseconds(); got != 10 {
		t.Fatalf("CodecTimeout = %dms", got)
	}
	if cfg.JobStorePath() != filepath.Join(cfg.Paths.StateDir, "jobs.db") {
		t.Fatalf("unexpected job store path %q", cfg.JobStorePath())
	}
}

func TestLoadCustomPath(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)

	configPath := filepath.Join(t.TempDir(), "config.toml")
	content := `
[paths]
staging_dir = "~/media/staging"
state_dir = "/var/lib/vidproc"

[ffmpeg]
ffmpeg_binary = "  /opt/ffmpeg/bin/ffmpeg  "

[video]
frame_rate = 24
preset = " Medium "

[logging]
format = "JSON"
level = "Debug"
`
	if err := os.WriteFile(configPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists || resolved != configPath {
		t.Fatalf("expected config to exist at %q, got %q (exists=%v)", configPath, resolved, exists)
	}
	if cfg.Paths.StagingDir != filepath.Join(tempHome, "media", "staging") {
		t.Fatalf("unexpected staging dir %q", cfg.Paths.StagingDir)
	}
	if cfg.Paths.StateDir != "/var/lib/vidproc" {
		t.Fatalf("unexpected state dir %q", cfg.Paths.StateDir)
	}
	if cfg.FFmpeg.FFmpegBinary != "/opt/ffmpeg/bin/ffmpeg" {
		t.Fatalf("expected trimmed ffmpeg binary, got %q", cfg.FFmpeg.FFmpegBinary)
	}
	if cfg.FFmpeg.FFprobeBinary != "ffprobe" {
		t.Fatalf("expected default ffprobe binary, got %q", cfg.FFmpeg.FFprobeBinary)
	}
	if cfg.Video.FrameRate != 24 || cfg.Video.Preset != "medium" {
		t.Fatalf("unexpected video config %+v", cfg.Video)
	}
	if cfg.Logging.Format != "json" || cfg.Logging.Level != "debug" {
		t.Fatalf("unexpected logging config %+v", cfg.Logging)
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(configPath, []byte("[video]\nframerate = 24\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, _, _, err := config.Load(configPath); err == nil {
		t.Fatal("expected unknown key to fail parsing")
	}
}

func TestCreateSample(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "config.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample returned error: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}

	var parsed config.Config
	if err := toml.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("sample config is not valid TOML: %v", err)
	}
	defaults := config.Default()
	if parsed.Codec != defaults.Codec || parsed.Audio != defaults.Audio || parsed.Video != defaults.Video {
		t.Fatalf("sample config drifted from defaults: %+v", parsed)
	}
	if !strings.Contains(string(data), "[paths]") {
		t.Fatal("sample config missing [paths] section")
	}
}

func TestEnsureDirectories(t *testing.T) {
	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.StagingDir = filepath.Join(base, "staging")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Paths.StateDir = filepath.Join(base, "state")
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	for _, dir := range []string{cfg.Paths.StagingDir, cfg.Paths.LogDir, cfg.Paths.StateDir} {
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			t.Fatalf("expected directory %q: %v", dir, err)
		}
	}
}

func TestValidateDetectsInvalidValues(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*config.Config)
		wantErr string
	}{
		{"timeout", func(c *config.Config) { c.Codec.TimeoutMs = -1 }, "codec.timeout_ms"},
		{"retries", func(c *config.Config) { c.Codec.EncoderInputRetries = 0 }, "codec.encoder_input_retries"},
		{"max input", func(c *config.Config) { c.Codec.MaxInputSize = 16 }, "codec.max_input_size"},
		{"buffer count", func(c *config.Config) { c.Codec.BufferCount = 100 }, "codec.buffer_count"},
		{"fade in", func(c *config.Config) { c.Audio.FadeInMs = -5 }, "audio.fade_in_ms"},
		{"frame rate", func(c *config.Config) { c.Video.FrameRate = 0 }, "video.frame_rate"},
		{"preset", func(c *config.Config) { c.Video.Preset = "warp" }, "video.preset"},
		{"log format", func(c *config.Config) { c.Logging.Format = "xml" }, "logging.format"},
		{"log level", func(c *config.Config) { c.Logging.Level = "trace" }, "logging.level"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("error %q does not mention %q", err, tt.wantErr)
			}
		})
	}
}

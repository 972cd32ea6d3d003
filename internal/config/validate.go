package config

import (
	"errors"
	"fmt"
	"slices"
)

var x264Presets = []string{
	"ultrafast", "superfast", "veryfast", "faster", "fast",
	"medium", "slow", "slower", "veryslow", "placebo",
}

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateCodec(); err != nil {
		return err
	}
	if err := c.validateAudio(); err != nil {
		return err
	}
	if err := c.validateVideo(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateCodec() error {
	if c.Codec.TimeoutMs <= 0 {
		return errors.New("codec.timeout_ms must be positive")
	}
	if c.Codec.EncoderInputRetries < 1 {
		return errors.New("codec.encoder_input_retries must be at least 1")
	}
	if c.Codec.MaxInputSize < 4096 {
		return errors.New("codec.max_input_size must be at least 4096 bytes")
	}
	if c.Codec.BufferCount < 1 || c.Codec.BufferCount > 64 {
		return errors.New("codec.buffer_count must be between 1 and 64")
	}
	return nil
}

func (c *Config) validateAudio() error {
	if c.Audio.DefaultBitRate <= 0 {
		return errors.New("audio.default_bit_rate must be positive")
	}
	if c.Audio.FadeInMs < 0 {
		return errors.New("audio.fade_in_ms must be zero or positive")
	}
	if c.Audio.FadeOutMs < 0 {
		return errors.New("audio.fade_out_ms must be zero or positive")
	}
	return nil
}

func (c *Config) validateVideo() error {
	if c.Video.BitRate <= 0 {
		return errors.New("video.bit_rate must be positive")
	}
	if c.Video.FrameRate <= 0 || c.Video.FrameRate > 240 {
		return errors.New("video.frame_rate must be between 1 and 240")
	}
	if c.Video.IFrameInterval <= 0 {
		return errors.New("video.i_frame_interval must be positive")
	}
	if !slices.Contains(x264Presets, c.Video.Preset) {
		return fmt.Errorf("video.preset %q is not an x264 preset", c.Video.Preset)
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format %q must be console or json", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level %q must be debug, info, warn or error", c.Logging.Level)
	}
	return nil
}

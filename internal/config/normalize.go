package config

import (
	"fmt"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeFFmpeg()
	c.normalizeCodec()
	c.normalizeAudio()
	c.normalizeVideo()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	if strings.TrimSpace(c.Paths.StagingDir) == "" {
		c.Paths.StagingDir = defaultStagingDir
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		c.Paths.StateDir = defaultStateDir
	}
	var err error
	if c.Paths.StagingDir, err = expandPath(c.Paths.StagingDir); err != nil {
		return fmt.Errorf("paths.staging_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeFFmpeg() {
	c.FFmpeg.FFmpegBinary = strings.TrimSpace(c.FFmpeg.FFmpegBinary)
	if c.FFmpeg.FFmpegBinary == "" {
		c.FFmpeg.FFmpegBinary = defaultFFmpegBinary
	}
	c.FFmpeg.FFprobeBinary = strings.TrimSpace(c.FFmpeg.FFprobeBinary)
	if c.FFmpeg.FFprobeBinary == "" {
		c.FFmpeg.FFprobeBinary = defaultFFprobeBinary
	}
}

// Zero means "not set"; negative values are left for Validate to reject.
func (c *Config) normalizeCodec() {
	if c.Codec.TimeoutMs == 0 {
		c.Codec.TimeoutMs = defaultCodecTimeoutMs
	}
	if c.Codec.EncoderInputRetries == 0 {
		c.Codec.EncoderInputRetries = defaultEncoderInputRetries
	}
	if c.Codec.MaxInputSize == 0 {
		c.Codec.MaxInputSize = defaultMaxInputSize
	}
	if c.Codec.BufferCount == 0 {
		c.Codec.BufferCount = defaultBufferCount
	}
}

func (c *Config) normalizeAudio() {
	if c.Audio.DefaultBitRate == 0 {
		c.Audio.DefaultBitRate = defaultAudioBitRate
	}
}

func (c *Config) normalizeVideo() {
	if c.Video.BitRate == 0 {
		c.Video.BitRate = defaultVideoBitRate
	}
	if c.Video.FrameRate == 0 {
		c.Video.FrameRate = defaultFrameRate
	}
	if c.Video.IFrameInterval == 0 {
		c.Video.IFrameInterval = defaultIFrameInterval
	}
	c.Video.Preset = strings.ToLower(strings.TrimSpace(c.Video.Preset))
	if c.Video.Preset == "" {
		c.Video.Preset = defaultVideoPreset
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}

package config

const (
	defaultStagingDir          = "~/.local/share/vidproc/staging"
	defaultLogDir              = "~/.local/share/vidproc/logs"
	defaultStateDir            = "~/.local/state/vidproc"
	defaultFFmpegBinary        = "ffmpeg"
	defaultFFprobeBinary       = "ffprobe"
	defaultCodecTimeoutMs      = 10
	defaultEncoderInputRetries = 3
	defaultMaxInputSize        = 1 << 20
	defaultBufferCount         = 4
	defaultAudioBitRate        = 128000
	defaultFadeInMs            = 500
	defaultFadeOutMs           = 500
	defaultVideoBitRate        = 2000000
	defaultFrameRate           = 30
	defaultIFrameInterval      = 15
	defaultVideoPreset         = "veryfast"
	defaultLogFormat           = "console"
	defaultLogLevel            = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			StagingDir: defaultStagingDir,
			LogDir:     defaultLogDir,
			StateDir:   defaultStateDir,
		},
		FFmpeg: FFmpeg{
			FFmpegBinary:  defaultFFmpegBinary,
			FFprobeBinary: defaultFFprobeBinary,
		},
		Codec: Codec{
			TimeoutMs:           defaultCodecTimeoutMs,
			EncoderInputRetries: defaultEncoderInputRetries,
			MaxInputSize:        defaultMaxInputSize,
			BufferCount:         defaultBufferCount,
		},
		Audio: Audio{
			DefaultBitRate: defaultAudioBitRate,
			FadeInMs:       defaultFadeInMs,
			FadeOutMs:      defaultFadeOutMs,
		},
		Video: Video{
			BitRate:        defaultVideoBitRate,
			FrameRate:      defaultFrameRate,
			IFrameInterval: defaultIFrameInterval,
			Preset:         defaultVideoPreset,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}

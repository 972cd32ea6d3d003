package ffcodec

import (
	"vidproc/internal/codec"
	"vidproc/internal/media"
)

// Register adds the ffmpeg-backed AAC decoder, AAC encoder and H.264 surface
// encoder to reg.
func Register(reg *codec.Registry, settings Settings) {
	reg.RegisterDecoder(media.MIMEAudioAAC, func() (codec.Codec, error) {
		return NewAACDecoder(settings), nil
	})
	reg.RegisterEncoder(media.MIMEAudioAAC, func() (codec.Codec, error) {
		return NewAACEncoder(settings), nil
	})
	reg.RegisterSurfaceEncoder(media.MIMEVideoAVC, func() (codec.SurfaceEncoder, error) {
		return NewH264Encoder(settings), nil
	})
}

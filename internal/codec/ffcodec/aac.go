package ffcodec

import (
	"fmt"
	"strconv"

	"github.com/bluenviron/mediacommon/v2/pkg/codecs/mpeg4audio"

	"vidproc/internal/codec"
	"vidproc/internal/media"
)

// samplesPerAACFrame is the PCM frame count of one AAC LC access unit.
const samplesPerAACFrame = 1024

// AACEncoder encodes interleaved s16le PCM to AAC LC with ffmpeg. Output
// buffers are bare access units; the format change carries the
// AudioSpecificConfig.
type AACEncoder struct {
	*pipeCodec
	input   media.Format
	basePTS int64
	hasBase bool
	frames  int64
}

// NewAACEncoder returns an unconfigured encoder.
func NewAACEncoder(settings Settings) *AACEncoder {
	e := &AACEncoder{}
	e.pipeCodec = newPipeCodec("aac-encoder", settings, &adtsSplitter{})
	e.args = e.buildArgs
	e.prepare = e.prepareInput
	e.stamp = e.stampUnit
	e.eosTime = e.nextPTS
	return e
}

func (e *AACEncoder) Configure(format media.Format, mode codec.Mode) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if mode != codec.ModeEncode {
		return fmt.Errorf("%w: aac encoder configured for %s", codec.ErrState, mode)
	}
	if format.MIME != media.MIMEAudioAAC {
		return fmt.Errorf("%w: aac encoder cannot produce %q", codec.ErrState, format.MIME)
	}
	if format.SampleRate <= 0 || format.ChannelCount <= 0 {
		return fmt.Errorf("%w: aac encoder needs sample rate and channel count", codec.ErrState)
	}
	if format.AACProfile != 0 && format.AACProfile != media.AACObjectLC {
		return fmt.Errorf("%w: unsupported aac profile %d", codec.ErrState, format.AACProfile)
	}
	e.input = format.Clone()
	e.markConfigured(format.MaxInputSize)
	return nil
}

func (e *AACEncoder) buildArgs() []string {
	args := append(prelude(),
		"-f", "s16le",
		"-ar", strconv.Itoa(e.input.SampleRate),
		"-ac", strconv.Itoa(e.input.ChannelCount),
		"-i", "pipe:0",
		"-c:a", "aac",
		"-profile:a", "aac_low",
	)
	if e.input.BitRate > 0 {
		args = append(args, "-b:a", strconv.Itoa(e.input.BitRate))
	}
	return append(args, "-f", "adts", "pipe:1")
}

func (e *AACEncoder) prepareInput(payload []byte, info media.BufferInfo) ([]byte, error) {
	if !e.hasBase && len(payload) > 0 {
		e.basePTS = info.PresentationTimeUs
		e.hasBase = true
	}
	return append([]byte(nil), payload...), nil
}

func (e *AACEncoder) stampUnit(unit) int64 {
	pts := e.nextPTS()
	e.frames++
	return pts
}

func (e *AACEncoder) nextPTS() int64 {
	return e.basePTS + e.frames*samplesPerAACFrame*1_000_000/int64(e.input.SampleRate)
}

// AACDecoder decodes bare AAC access units to interleaved s16le PCM with
// ffmpeg. Access units are framed as ADTS on the way in.
type AACDecoder struct {
	*pipeCodec
	input   media.Format
	config  mpeg4audio.AudioSpecificConfig
	basePTS int64
	hasBase bool
	samples int64
}

// NewAACDecoder returns an unconfigured decoder.
func NewAACDecoder(settings Settings) *AACDecoder {
	d := &AACDecoder{}
	d.pipeCodec = newPipeCodec("aac-decoder", settings, nil)
	d.args = d.buildArgs
	d.prepare = d.prepareInput
	d.stamp = d.stampUnit
	d.eosTime = d.nextPTS
	return d
}

func (d *AACDecoder) Configure(format media.Format, mode codec.Mode) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if mode != codec.ModeDecode {
		return fmt.Errorf("%w: aac decoder configured for %s", codec.ErrState, mode)
	}
	if format.MIME != media.MIMEAudioAAC {
		return fmt.Errorf("%w: aac decoder cannot read %q", codec.ErrState, format.MIME)
	}
	config, err := decoderConfig(format)
	if err != nil {
		return fmt.Errorf("%w: %v", codec.ErrState, err)
	}
	d.input = format.Clone()
	d.config = config
	d.splitter = &pcmChunker{size: samplesPerAACFrame * config.ChannelCount * 2}
	d.format = media.Format{
		MIME:         media.MIMEAudioRaw,
		SampleRate:   config.SampleRate,
		ChannelCount: config.ChannelCount,
		PCMEncoding:  media.PCM16Bit,
		DurationUs:   format.DurationUs,
	}
	d.markConfigured(format.MaxInputSize)
	return nil
}

func decoderConfig(format media.Format) (mpeg4audio.AudioSpecificConfig, error) {
	var config mpeg4audio.AudioSpecificConfig
	if len(format.CodecConfig) > 0 && len(format.CodecConfig[0]) > 0 {
		if err := config.Unmarshal(format.CodecConfig[0]); err != nil {
			return config, fmt.Errorf("parse audio specific config: %w", err)
		}
		return config, nil
	}
	if format.SampleRate <= 0 || format.ChannelCount <= 0 {
		return config, fmt.Errorf("aac input needs sample rate and channel count")
	}
	profile := format.AACProfile
	if profile == 0 {
		profile = media.AACObjectLC
	}
	config.Type = mpeg4audio.ObjectType(profile)
	config.SampleRate = format.SampleRate
	config.ChannelCount = format.ChannelCount
	return config, nil
}

// Start announces the PCM output format before any decoded buffer.
func (d *AACDecoder) Start() error {
	if err := d.pipeCodec.Start(); err != nil {
		return err
	}
	d.mu.Lock()
	format := d.format.Clone()
	d.ready = append(d.ready, item{format: &format})
	d.mu.Unlock()
	d.notify()
	return nil
}

func (d *AACDecoder) buildArgs() []string {
	return append(prelude(),
		"-f", "aac",
		"-i", "pipe:0",
		"-f", "s16le",
		"-ar", strconv.Itoa(d.config.SampleRate),
		"-ac", strconv.Itoa(d.config.ChannelCount),
		"pipe:1",
	)
}

func (d *AACDecoder) prepareInput(payload []byte, info media.BufferInfo) ([]byte, error) {
	if len(payload) == 0 {
		return nil, nil
	}
	if !d.hasBase {
		d.basePTS = info.PresentationTimeUs
		d.hasBase = true
	}
	return wrapADTS(d.config, payload)
}

func wrapADTS(config mpeg4audio.AudioSpecificConfig, au []byte) ([]byte, error) {
	if len(au) >= 2 && au[0] == 0xff && au[1]&0xf6 == 0xf0 {
		return append([]byte(nil), au...), nil
	}
	pkts := mpeg4audio.ADTSPackets{{
		Type:         config.Type,
		SampleRate:   config.SampleRate,
		ChannelCount: config.ChannelCount,
		AU:           au,
	}}
	return pkts.Marshal()
}

func (d *AACDecoder) stampUnit(u unit) int64 {
	pts := d.nextPTS()
	d.samples += int64(len(u.data) / (2 * d.config.ChannelCount))
	return pts
}

func (d *AACDecoder) nextPTS() int64 {
	return d.basePTS + d.samples*1_000_000/int64(d.config.SampleRate)
}

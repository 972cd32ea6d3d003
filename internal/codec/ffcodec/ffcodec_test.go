package ffcodec

import (
	"os/exec"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/bluenviron/mediacommon/v2/pkg/codecs/mpeg4audio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vidproc/internal/codec"
	"vidproc/internal/media"
)

func TestPipeCodecMovesBuffersThroughProcess(t *testing.T) {
	if _, err := exec.LookPath("cat"); err != nil {
		t.Skip("cat not available")
	}
	var stamped int64
	p := newPipeCodec("cat", Settings{Binary: "cat", BufferCount: 4, MaxInputSize: 64}, &pcmChunker{size: 4})
	p.args = func() []string { return nil }
	p.prepare = func(payload []byte, _ media.BufferInfo) ([]byte, error) {
		return append([]byte(nil), payload...), nil
	}
	p.stamp = func(unit) int64 {
		stamped += 100
		return stamped
	}
	p.eosTime = func() int64 { return stamped + 100 }
	p.markConfigured(0)
	require.NoError(t, p.Start())
	t.Cleanup(func() { _ = p.Release() })

	idx, ok, err := p.DequeueInputBuffer(time.Second)
	require.NoError(t, err)
	require.True(t, ok)
	buf, err := p.InputBuffer(idx)
	require.NoError(t, err)
	copy(buf, []byte{1, 2, 3, 4, 5, 6, 7, 8})
	require.NoError(t, p.QueueInputBuffer(idx, media.BufferInfo{Size: 8}))
	require.ErrorIs(t, p.QueueInputBuffer(idx, media.BufferInfo{Size: 1}), codec.ErrBufferIndex)

	idx, ok, err = p.DequeueInputBuffer(time.Second)
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, p.QueueInputBuffer(idx, media.BufferInfo{Flags: media.FlagEndOfStream}))
	_, ok, err = p.DequeueInputBuffer(time.Millisecond)
	require.NoError(t, err)
	assert.False(t, ok, "no input after end of stream")

	var payloads [][]byte
	var eos media.BufferInfo
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		out, err := p.DequeueOutputBuffer(10 * time.Millisecond)
		require.NoError(t, err)
		if out.Kind != codec.OutputReady {
			continue
		}
		data, err := p.OutputBuffer(out.Index)
		require.NoError(t, err)
		payloads = append(payloads, append([]byte(nil), codec.Payload(data, out.Info)...))
		require.NoError(t, p.ReleaseOutputBuffer(out.Index))
		if out.Info.EndOfStream() {
			eos = out.Info
			break
		}
	}
	require.True(t, eos.EndOfStream(), "end of stream not delivered")
	assert.Equal(t, int64(300), eos.PresentationTimeUs)
	require.Len(t, payloads, 3)
	assert.Equal(t, []byte{1, 2, 3, 4}, payloads[0])
	assert.Equal(t, []byte{5, 6, 7, 8}, payloads[1])
	assert.Empty(t, payloads[2])
	require.NoError(t, p.Stop())
}

func TestPipeCodecReportsProcessFailure(t *testing.T) {
	if _, err := exec.LookPath("false"); err != nil {
		t.Skip("false not available")
	}
	p := newPipeCodec("false", Settings{Binary: "false"}, &pcmChunker{size: 4})
	p.args = func() []string { return nil }
	p.stamp = func(unit) int64 { return 0 }
	p.eosTime = func() int64 { return 0 }
	p.markConfigured(0)
	require.NoError(t, p.Start())
	t.Cleanup(func() { _ = p.Release() })

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		out, err := p.DequeueOutputBuffer(10 * time.Millisecond)
		if err != nil {
			assert.Contains(t, err.Error(), "exited")
			return
		}
		require.Equal(t, codec.OutputEmpty, out.Kind)
	}
	t.Fatal("process failure not reported")
}

func TestAACEncoderConfigure(t *testing.T) {
	enc := NewAACEncoder(Settings{})
	require.Error(t, enc.Configure(media.Format{MIME: media.MIMEAudioAAC, SampleRate: 44100, ChannelCount: 2}, codec.ModeDecode))
	require.Error(t, enc.Configure(media.Format{MIME: media.MIMEAudioRaw, SampleRate: 44100, ChannelCount: 2}, codec.ModeEncode))
	require.Error(t, enc.Configure(media.Format{MIME: media.MIMEAudioAAC, SampleRate: 44100, ChannelCount: 2, AACProfile: 5}, codec.ModeEncode))

	require.NoError(t, enc.Configure(media.Format{MIME: media.MIMEAudioAAC, SampleRate: 22050, ChannelCount: 1, BitRate: 96000}, codec.ModeEncode))
	args := strings.Join(enc.buildArgs(), " ")
	assert.Contains(t, args, "-f s16le -ar 22050 -ac 1 -i pipe:0")
	assert.Contains(t, args, "-b:a 96000")
	assert.True(t, strings.HasSuffix(args, "-f adts pipe:1"))
}

func TestAACEncoderTimestamps(t *testing.T) {
	enc := NewAACEncoder(Settings{})
	require.NoError(t, enc.Configure(media.Format{MIME: media.MIMEAudioAAC, SampleRate: 32000, ChannelCount: 1}, codec.ModeEncode))
	_, err := enc.prepareInput([]byte{1, 2}, media.BufferInfo{Size: 2, PresentationTimeUs: 500_000})
	require.NoError(t, err)
	assert.Equal(t, int64(500_000), enc.stampUnit(unit{}))
	assert.Equal(t, int64(532_000), enc.stampUnit(unit{}))
	assert.Equal(t, int64(564_000), enc.nextPTS())
}

func TestAACDecoderConfigure(t *testing.T) {
	asc := mpeg4audio.AudioSpecificConfig{Type: 2, SampleRate: 48000, ChannelCount: 2}
	config, err := asc.Marshal()
	require.NoError(t, err)

	dec := NewAACDecoder(Settings{})
	require.NoError(t, dec.Configure(media.Format{MIME: media.MIMEAudioAAC, CodecConfig: [][]byte{config}}, codec.ModeDecode))
	assert.Equal(t, media.Format{
		MIME:         media.MIMEAudioRaw,
		SampleRate:   48000,
		ChannelCount: 2,
		PCMEncoding:  media.PCM16Bit,
	}, dec.format)
	args := dec.buildArgs()
	assert.True(t, slices.Contains(args, "aac"))
	assert.Equal(t, "pipe:1", args[len(args)-1])

	require.Error(t, NewAACDecoder(Settings{}).Configure(media.Format{MIME: media.MIMEAudioAAC}, codec.ModeDecode))
}

func TestWrapADTS(t *testing.T) {
	config := mpeg4audio.AudioSpecificConfig{Type: 2, SampleRate: 44100, ChannelCount: 1}
	au := []byte{0x21, 0x00, 0x49}
	framed, err := wrapADTS(config, au)
	require.NoError(t, err)

	var pkts mpeg4audio.ADTSPackets
	require.NoError(t, pkts.Unmarshal(framed))
	require.Len(t, pkts, 1)
	assert.Equal(t, au, pkts[0].AU)
	assert.Equal(t, 44100, pkts[0].SampleRate)

	again, err := wrapADTS(config, framed)
	require.NoError(t, err)
	assert.Equal(t, framed, again)
}

func TestH264EncoderSizes(t *testing.T) {
	enc := NewH264Encoder(Settings{})
	cases := []struct {
		w, h int
		want bool
	}{
		{320, 240, true},
		{16, 16, true},
		{4096, 2160, true},
		{333, 217, false},
		{8, 8, false},
		{4098, 2160, false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, enc.IsSizeSupported(tc.w, tc.h), "%dx%d", tc.w, tc.h)
	}
}

func TestH264EncoderConfigure(t *testing.T) {
	enc := NewH264Encoder(Settings{Preset: "ultrafast"})
	_, err := enc.CreateInputSurface()
	require.ErrorIs(t, err, codec.ErrState)

	format := media.Format{
		MIME:             media.MIMEVideoAVC,
		Width:            320,
		Height:           240,
		ColorFormat:      media.ColorFormatSurface,
		FrameRate:        30,
		KeyFrameInterval: 15,
		BitRate:          2_000_000,
	}
	bad := format
	bad.ColorFormat = media.ColorFormatRGBA
	require.Error(t, enc.Configure(bad, codec.ModeEncode))
	bad = format
	bad.Width = 321
	require.Error(t, enc.Configure(bad, codec.ModeEncode))

	require.NoError(t, enc.Configure(format, codec.ModeEncode))
	args := strings.Join(enc.buildArgs(), " ")
	for _, want := range []string{"-s 320x240", "-r 30", "-vf vflip", "-bf 0", "-g 450", "-preset ultrafast", "-b:v 2000000", "aud=1"} {
		assert.Contains(t, args, want)
	}

	surface, err := enc.CreateInputSurface()
	require.NoError(t, err)
	assert.Equal(t, 320, surface.Bounds().Dx())
	assert.Len(t, surface.Canvas().Pix, 320*240*4)
	require.NoError(t, surface.Release())
	require.Error(t, surface.SwapBuffers())
}

func TestH264EncoderStampsInSubmissionOrder(t *testing.T) {
	enc := NewH264Encoder(Settings{})
	enc.pts = []int64{0, 33_333, 66_666}
	assert.Equal(t, int64(0), enc.stampUnit(unit{}))
	assert.Equal(t, int64(33_333), enc.stampUnit(unit{}))
	assert.Equal(t, int64(66_666), enc.stampUnit(unit{}))
	assert.Equal(t, int64(66_666), enc.stampUnit(unit{}))
	assert.Equal(t, int64(66_666), enc.eosTime())
}

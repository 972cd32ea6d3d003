package media_test

import (
	"testing"

	"vidproc/internal/media"
)

func TestFormatClassification(t *testing.T) {
	cases := []struct {
		name  string
		fmt   media.Format
		audio bool
		video bool
	}{
		{"aac", media.Format{MIME: media.MIMEAudioAAC}, true, false},
		{"channel count only", media.Format{MIME: "application/octet-stream", ChannelCount: 2}, true, false},
		{"avc", media.Format{MIME: media.MIMEVideoAVC, Width: 640, Height: 360}, false, true},
		{"unknown", media.Format{MIME: "text/plain"}, false, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.fmt.IsAudio(); got != tc.audio {
				t.Fatalf("IsAudio = %v, want %v", got, tc.audio)
			}
			if got := tc.fmt.IsVideo(); got != tc.video {
				t.Fatalf("IsVideo = %v, want %v", got, tc.video)
			}
		})
	}
}

func TestFormatCloneDetachesCodecConfig(t *testing.T) {
	orig := media.Format{MIME: media.MIMEVideoAVC, CodecConfig: [][]byte{{0x67, 0x42}, {0x68}}}
	cp := orig.Clone()
	cp.CodecConfig[0][0] = 0x00
	cp.Width = 1280
	if orig.CodecConfig[0][0] != 0x67 {
		t.Fatal("clone shares codec config storage with original")
	}
	if orig.Width != 0 {
		t.Fatal("clone mutated original width")
	}
}

func TestBufferFlags(t *testing.T) {
	info := media.BufferInfo{Flags: media.FlagKeyFrame | media.FlagEndOfStream}
	if !info.EndOfStream() || !info.KeyFrame() {
		t.Fatalf("expected both flags set: %b", info.Flags)
	}
	if info.Flags.Has(media.FlagCodecConfig) {
		t.Fatal("unexpected codec config flag")
	}
}

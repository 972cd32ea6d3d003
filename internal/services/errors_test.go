package services_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"vidproc/internal/services"
)

func TestWrapIncludesContext(t *testing.T) {
	base := errors.New("boom")
	err := services.Wrap(services.ErrIO, "muxer", "write", "failed", base)
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, services.ErrIO) {
		t.Fatalf("expected marker to be retained, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped error to contain base error, got %v", err)
	}
	msg := err.Error()
	for _, fragment := range []string{"muxer", "write", "failed"} {
		if !strings.Contains(msg, fragment) {
			t.Fatalf("expected %q in error string %q", fragment, msg)
		}
	}
}

func TestWrapWithoutDetail(t *testing.T) {
	err := services.Wrap(nil, "", "", "", nil)
	if !errors.Is(err, services.ErrIO) {
		t.Fatalf("expected default marker, got %v", err)
	}
	if !strings.Contains(err.Error(), "service failure") {
		t.Fatalf("unexpected message %q", err.Error())
	}
}

func TestFailureKindMapping(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{services.Wrap(services.ErrNoMatchingTrack, "source", "select", "no audio", nil), services.KindNoMatchingTrack},
		{services.Wrap(services.ErrNoSupportedResolution, "render", "negotiate", "", nil), services.KindNoSupportedResolution},
		{services.Wrap(services.ErrPumpProtocol, "pump", "encoder input", "", nil), services.KindPumpProtocol},
		{services.Wrap(services.ErrCodecConfiguration, "codec", "configure", "", nil), services.KindCodecConfiguration},
		{services.Wrap(services.ErrValidation, "workflow", "request", "", nil), services.KindValidation},
		{services.Wrap(services.ErrExternalTool, "ffmpeg", "start", "", nil), services.KindExternalTool},
		{fmt.Errorf("run: %w", context.Canceled), services.KindCanceled},
		{errors.New("mystery"), services.KindUnknown},
	}
	for _, tc := range cases {
		if got := services.FailureKind(tc.err); got != tc.want {
			t.Fatalf("FailureKind(%v) = %q, want %q", tc.err, got, tc.want)
		}
	}
}

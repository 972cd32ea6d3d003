package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNoMatchingTrack       = errors.New("no matching track")
	ErrNoSupportedResolution = errors.New("no supported resolution")
	ErrPumpProtocol          = errors.New("codec pump protocol violation")
	ErrCodecConfiguration    = errors.New("codec configuration error")
	ErrIO                    = errors.New("i/o error")
	ErrValidation            = errors.New("validation error")
	ErrExternalTool          = errors.New("external tool error")
	ErrCanceled              = errors.New("canceled")
)

// Failure kinds persisted in the job ledger.
const (
	KindNoMatchingTrack       = "no_matching_track"
	KindNoSupportedResolution = "no_supported_resolution"
	KindPumpProtocol          = "pump_protocol"
	KindCodecConfiguration    = "codec_configuration"
	KindIO                    = "io"
	KindValidation            = "validation"
	KindExternalTool          = "external_tool"
	KindCanceled              = "canceled"
	KindUnknown               = "unknown"
)

// Wrap builds an error message that includes stage context while tagging it with
// the provided marker for later classification. The marker should be one of the
// exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrIO
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// FailureKind maps a job error to the short kind string stored alongside the
// failed run. Nil errors map to an empty kind.
func FailureKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrCanceled), errors.Is(err, context.Canceled):
		return KindCanceled
	case errors.Is(err, ErrNoMatchingTrack):
		return KindNoMatchingTrack
	case errors.Is(err, ErrNoSupportedResolution):
		return KindNoSupportedResolution
	case errors.Is(err, ErrPumpProtocol):
		return KindPumpProtocol
	case errors.Is(err, ErrCodecConfiguration):
		return KindCodecConfiguration
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrExternalTool):
		return KindExternalTool
	case errors.Is(err, ErrIO):
		return KindIO
	default:
		return KindUnknown
	}
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}

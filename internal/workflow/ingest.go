package workflow

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"vidproc/internal/ffprobe"
	"vidproc/internal/fileutil"
	"vidproc/internal/logging"
	"vidproc/internal/services"
	"vidproc/internal/source"
)

const stageIngest = "ingest"

func noCleanup() error { return nil }

// openAudio opens input as a sample source. Containers the in-process readers
// do not understand are probed with ffprobe and transcoded to a staging WAV;
// the returned cleanup removes that file.
func (p *Pipeline) openAudio(ctx context.Context, input string) (source.Source, func() error, error) {
	src, err := source.Open(input)
	if err == nil {
		return src, noCleanup, nil
	}
	if !errors.Is(err, source.ErrUnsupportedContainer) {
		return nil, nil, err
	}

	wav, err := p.ingest(ctx, input)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() error { return fileutil.RemoveIfExists(wav) }
	src, err = source.Open(wav)
	if err != nil {
		return nil, nil, errors.Join(err, cleanup())
	}
	return src, cleanup, nil
}

// ingest transcodes the first audio stream of input to 16-bit PCM WAV in the
// staging directory and returns its path.
func (p *Pipeline) ingest(ctx context.Context, input string) (string, error) {
	logger := p.jobLogger(ctx, stageIngest)

	probe, err := ffprobe.Inspect(ctx, p.cfg.FFmpeg.FFprobeBinary, input)
	if err != nil {
		return "", services.Wrap(services.ErrExternalTool, stageIngest, "probe", input, err)
	}
	if probe.AudioStreamCount() == 0 {
		return "", services.Wrap(services.ErrNoMatchingTrack, stageIngest, "select track",
			fmt.Sprintf("%s has no audio stream", input), nil)
	}
	if stream, ok := probe.FirstAudioStream(); ok {
		logger.Info("transcoding input for ingest",
			logging.String(logging.FieldEventType, "ingest_start"),
			logging.String("input", input),
			logging.String("codec", stream.CodecName),
			logging.Int("sample_rate", stream.SampleRateHz()),
			logging.Int("channels", stream.Channels),
			logging.Int64("duration_ms", probe.DurationMs()),
		)
	}

	if err := os.MkdirAll(p.cfg.Paths.StagingDir, 0o755); err != nil {
		return "", services.Wrap(services.ErrIO, stageIngest, "staging", p.cfg.Paths.StagingDir, err)
	}
	wav := filepath.Join(p.cfg.Paths.StagingDir, "ingest-"+uuid.NewString()+".wav")
	args := []string{
		"-hide_banner", "-loglevel", "error", "-y",
		"-i", input,
		"-vn", "-map", "0:a:0",
		"-c:a", "pcm_s16le",
		"-f", "wav", wav,
	}
	cmd := exec.CommandContext(ctx, p.cfg.FFmpeg.FFmpegBinary, args...)
	if out, err := cmd.CombinedOutput(); err != nil {
		_ = fileutil.RemoveIfExists(wav)
		detail := strings.TrimSpace(string(out))
		if ctx.Err() != nil {
			return "", services.Wrap(services.ErrCanceled, stageIngest, "transcode", input, ctx.Err())
		}
		return "", services.Wrap(services.ErrExternalTool, stageIngest, "transcode", detail, err)
	}
	logger.Debug("ingest transcode complete", logging.String("wav", wav))
	return wav, nil
}

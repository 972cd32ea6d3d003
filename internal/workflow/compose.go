package workflow

import (
	"context"
	"errors"
	"path/filepath"
	"strings"

	"vidproc/internal/fileutil"
	"vidproc/internal/logging"
	"vidproc/internal/services"
)

const stageCompose = "compose"

// StagingPaths returns the intermediate video and audio files of a compose
// job.
func (p *Pipeline) StagingPaths(jobID string) (video, audio string) {
	base := filepath.Join(p.cfg.Paths.StagingDir, "tmp-"+jobID)
	return base + ".mp4", base + ".m4a"
}

// EncodeImagesWithAudio renders images into a time-lapse and, when audio is
// set, converts the audio trimmed to the video's length with the configured
// fades and remuxes both into output. Staging files are always removed.
func (p *Pipeline) EncodeImagesWithAudio(ctx context.Context, jobID string, images []string, audio, output string) (report Report, err error) {
	if strings.TrimSpace(audio) == "" {
		return p.EncodeTimeLapse(ctx, images, output)
	}
	if strings.TrimSpace(jobID) == "" {
		return report, services.Wrap(services.ErrValidation, stageCompose, "job id", "job id is required", nil)
	}
	logger := p.jobLogger(ctx, stageCompose)

	videoTmp, audioTmp := p.StagingPaths(jobID)
	defer func() {
		err = errors.Join(err, fileutil.RemoveIfExists(videoTmp), fileutil.RemoveIfExists(audioTmp))
	}()

	video, err := p.EncodeTimeLapse(ctx, images, videoTmp)
	if err != nil {
		return report, err
	}

	durationMs, err := ProbeDurationMs(videoTmp)
	if err != nil {
		return report, err
	}
	logger.Debug("video duration probed",
		logging.Int64("duration_ms", durationMs),
		logging.Int64("clock_duration_ms", video.DurationMs),
	)
	opts := AudioOptions{
		MaxDurationMs: durationMs,
		FadeInMs:      int64(p.cfg.Audio.FadeInMs),
		FadeOutMs:     int64(p.cfg.Audio.FadeOutMs),
	}
	if _, err := p.ConvertAudio(ctx, audio, audioTmp, opts); err != nil {
		return report, err
	}

	report, err = p.MuxAudioVideo(ctx, audioTmp, videoTmp, output)
	if err != nil {
		return report, err
	}
	return report, nil
}

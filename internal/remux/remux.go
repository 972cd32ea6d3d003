// Package remux copies already-compressed video and audio samples from two
// sources into one container without decoding.
package remux

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"vidproc/internal/logging"
	"vidproc/internal/media"
	"vidproc/internal/muxer"
	"vidproc/internal/services"
	"vidproc/internal/source"
)

// ScratchSize is the size of the buffer shared by both tracks. No single
// compressed sample may exceed it.
const ScratchSize = 1 << 20

// Input is one selected track of an opened source.
type Input struct {
	Source source.Source
	Track  int
	Format media.Format
}

// SelectInputs picks the first video track of video and the first audio
// track of audio. Nothing is registered with a muxer when either is missing.
func SelectInputs(video, audio source.Source) (Input, Input, error) {
	vi, vf, err := source.SelectVideoTrack(video)
	if err != nil {
		return Input{}, Input{}, fmt.Errorf("video input: %w", err)
	}
	ai, af, err := source.SelectAudioTrack(audio)
	if err != nil {
		return Input{}, Input{}, fmt.Errorf("audio input: %w", err)
	}
	return Input{Source: video, Track: vi, Format: vf}, Input{Source: audio, Track: ai, Format: af}, nil
}

// Result counts the samples copied per track.
type Result struct {
	VideoSamples int
	AudioSamples int
	SkippedAudio int
}

// Remuxer drains two selected inputs into a two-track muxer.
type Remuxer struct {
	tracks  *muxer.TrackManager
	logger  *slog.Logger
	scratch []byte
}

// New returns a Remuxer writing through tracks, which must expect two tracks.
func New(tracks *muxer.TrackManager, logger *slog.Logger) *Remuxer {
	return &Remuxer{
		tracks:  tracks,
		logger:  logging.NewComponentLogger(logger, "remux"),
		scratch: make([]byte, ScratchSize),
	}
}

// Mux registers the video then the audio track, starts the muxer, and copies
// every video sample followed by every audio sample with its original
// timestamp and flags.
func (r *Remuxer) Mux(video, audio Input) (Result, error) {
	var res Result
	videoTrack, err := r.tracks.RegisterTrack(video.Format)
	if err != nil {
		return res, err
	}
	audioTrack, err := r.tracks.RegisterTrack(audio.Format)
	if err != nil {
		return res, err
	}
	if err := r.tracks.Start(); err != nil {
		return res, err
	}

	res.VideoSamples, _, err = r.copyTrack("video", video.Source, videoTrack, false)
	if err != nil {
		return res, err
	}
	res.AudioSamples, res.SkippedAudio, err = r.copyTrack("audio", audio.Source, audioTrack, true)
	if err != nil {
		return res, err
	}
	r.logger.Debug("remux complete",
		logging.Int("video_samples", res.VideoSamples),
		logging.Int("audio_samples", res.AudioSamples),
		logging.Int("skipped_audio", res.SkippedAudio),
	)
	return res, nil
}

func (r *Remuxer) copyTrack(kind string, src source.Source, track int, skipEmpty bool) (int, int, error) {
	written, skipped := 0, 0
	for {
		n, err := src.ReadSampleData(r.scratch)
		if errors.Is(err, io.EOF) {
			return written, skipped, nil
		}
		if err != nil {
			return written, skipped, services.Wrap(services.ErrIO, "remux", "read "+kind+" sample", fmt.Sprintf("sample %d", written+skipped), err)
		}
		info := media.BufferInfo{Size: n, PresentationTimeUs: src.SampleTime(), Flags: src.SampleFlags()}
		if n == 0 && skipEmpty {
			skipped++
			r.logger.Warn("skipping empty audio sample", logging.Int64("pts_us", info.PresentationTimeUs))
		} else {
			if err := r.tracks.WriteSample(track, r.scratch, info); err != nil {
				return written, skipped, err
			}
			written++
		}
		if !src.Advance() {
			return written, skipped, nil
		}
	}
}

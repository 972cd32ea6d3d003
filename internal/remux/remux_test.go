package remux_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vidproc/internal/logging"
	"vidproc/internal/media"
	"vidproc/internal/muxer"
	"vidproc/internal/remux"
	"vidproc/internal/services"
	"vidproc/internal/source"
	"vidproc/internal/testsupport"
)

func TestRemuxCopiesEverySampleVerbatim(t *testing.T) {
	videoTrack := testsupport.VideoTrack(64, 48, 10, 10)
	audioTrack := testsupport.AACTrack(44100, 2, 5)
	video := testsupport.MemorySource(videoTrack)
	audio := testsupport.MemorySource(audioTrack)

	vin, ain, err := remux.SelectInputs(video, audio)
	require.NoError(t, err)

	rec := testsupport.NewRecordingMuxer()
	tracks := muxer.NewTrackManager(rec, 2, logging.NewNop())
	res, err := remux.New(tracks, logging.NewNop()).Mux(vin, ain)
	require.NoError(t, err)
	require.NoError(t, tracks.Finalize())

	assert.Equal(t, remux.Result{VideoSamples: 10, AudioSamples: 5}, res)
	require.Len(t, rec.Samples, 15)
	assert.Equal(t, 1, rec.Starts)
	require.Len(t, rec.Formats, 2)
	assert.Equal(t, media.MIMEVideoAVC, rec.Formats[0].MIME)
	assert.Equal(t, media.MIMEAudioAAC, rec.Formats[1].MIME)

	for i, s := range rec.Samples[:10] {
		assert.Equal(t, 0, s.Track)
		assert.Equal(t, videoTrack.Samples[i].Data, s.Data)
		assert.Equal(t, videoTrack.Samples[i].TimeUs, s.Info.PresentationTimeUs)
		assert.Equal(t, videoTrack.Samples[i].Flags, s.Info.Flags)
	}
	for i, s := range rec.Samples[10:] {
		assert.Equal(t, 1, s.Track)
		assert.Equal(t, audioTrack.Samples[i].Data, s.Data)
		assert.Equal(t, audioTrack.Samples[i].TimeUs, s.Info.PresentationTimeUs)
	}
}

func TestRemuxSkipsEmptyAudioSamples(t *testing.T) {
	audioTrack := testsupport.AACTrack(44100, 1, 4)
	audioTrack.Samples[2].Data = nil
	vin, ain, err := remux.SelectInputs(
		testsupport.MemorySource(testsupport.VideoTrack(32, 32, 2, 10)),
		testsupport.MemorySource(audioTrack),
	)
	require.NoError(t, err)

	rec := testsupport.NewRecordingMuxer()
	tracks := muxer.NewTrackManager(rec, 2, logging.NewNop())
	res, err := remux.New(tracks, logging.NewNop()).Mux(vin, ain)
	require.NoError(t, err)
	assert.Equal(t, 3, res.AudioSamples)
	assert.Equal(t, 1, res.SkippedAudio)
	assert.Len(t, rec.TrackSamples(1), 3)
}

func TestSelectInputsRequiresBothTracks(t *testing.T) {
	video := testsupport.MemorySource(testsupport.VideoTrack(32, 32, 2, 10))
	notAudio := testsupport.MemorySource(testsupport.VideoTrack(32, 32, 2, 10))

	_, _, err := remux.SelectInputs(video, notAudio)
	require.ErrorIs(t, err, services.ErrNoMatchingTrack)
	assert.ErrorIs(t, err, source.ErrNoMatchingTrack)

	audio := testsupport.MemorySource(testsupport.AACTrack(44100, 1, 2))
	_, _, err = remux.SelectInputs(audio, audio)
	require.ErrorIs(t, err, services.ErrNoMatchingTrack)
}

func TestRemuxToFMP4(t *testing.T) {
	vin, ain, err := remux.SelectInputs(
		testsupport.MemorySource(testsupport.VideoTrack(64, 48, 10, 10)),
		testsupport.MemorySource(testsupport.AACTrack(48000, 2, 5)),
	)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "out.mp4")
	out, err := muxer.NewFMP4(path, logging.NewNop())
	require.NoError(t, err)
	tracks := muxer.NewTrackManager(out, 2, logging.NewNop())
	_, err = remux.New(tracks, logging.NewNop()).Mux(vin, ain)
	require.NoError(t, err)
	require.NoError(t, tracks.Finalize())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	src, err := source.ParseFMP4(data)
	require.NoError(t, err)
	require.Equal(t, 2, src.TrackCount())
	vf, err := src.TrackFormat(0)
	require.NoError(t, err)
	assert.Equal(t, int64(1_000_000), vf.DurationUs)
	af, err := src.TrackFormat(1)
	require.NoError(t, err)
	assert.Equal(t, 48000, af.SampleRate)
}

package muxer_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vidproc/internal/logging"
	"vidproc/internal/media"
	"vidproc/internal/muxer"
	"vidproc/internal/services"
	"vidproc/internal/testsupport"
)

var aacFormat = media.Format{MIME: media.MIMEAudioAAC, SampleRate: 44100, ChannelCount: 2}

func TestTrackManagerLifecycle(t *testing.T) {
	rec := testsupport.NewRecordingMuxer()
	tm := muxer.NewTrackManager(rec, 1, logging.NewNop())

	err := tm.WriteSample(0, []byte{1}, media.BufferInfo{Size: 1})
	require.ErrorIs(t, err, muxer.ErrTrackLifecycle)
	assert.ErrorIs(t, err, services.ErrPumpProtocol)

	require.ErrorIs(t, tm.Start(), muxer.ErrTrackLifecycle)

	idx, err := tm.RegisterTrack(aacFormat)
	require.NoError(t, err)
	require.NoError(t, tm.Start())
	require.True(t, tm.Started())

	_, err = tm.RegisterTrack(aacFormat)
	require.ErrorIs(t, err, muxer.ErrTrackLifecycle)
	require.ErrorIs(t, tm.Start(), muxer.ErrTrackLifecycle)

	require.NoError(t, tm.WriteSample(idx, []byte{1, 2, 3}, media.BufferInfo{Size: 3, PresentationTimeUs: 10}))
	require.ErrorIs(t, tm.WriteSample(idx+1, []byte{1}, media.BufferInfo{Size: 1}), muxer.ErrTrackLifecycle)

	require.NoError(t, tm.Finalize())
	require.NoError(t, tm.Finalize())

	assert.Equal(t, 1, rec.Starts)
	assert.Equal(t, 1, rec.Stops)
	assert.Equal(t, 1, rec.Releases)
	assert.Equal(t, 1, tm.Samples(idx))
	require.Len(t, rec.Samples, 1)
	assert.Equal(t, []byte{1, 2, 3}, rec.Samples[0].Data)
}

func TestTrackManagerRejectsExtraTracks(t *testing.T) {
	tm := muxer.NewTrackManager(testsupport.NewRecordingMuxer(), 1, logging.NewNop())
	_, err := tm.RegisterTrack(aacFormat)
	require.NoError(t, err)
	_, err = tm.RegisterTrack(aacFormat)
	require.ErrorIs(t, err, muxer.ErrTrackLifecycle)
	assert.Equal(t, 1, tm.TrackCount())
}

func TestTrackManagerSkipsConfigAndEmptyEOS(t *testing.T) {
	rec := testsupport.NewRecordingMuxer()
	tm := muxer.NewTrackManager(rec, 1, logging.NewNop())
	idx, err := tm.RegisterTrack(aacFormat)
	require.NoError(t, err)
	require.NoError(t, tm.Start())

	require.NoError(t, tm.WriteSample(idx, []byte{0x12, 0x10}, media.BufferInfo{Size: 2, Flags: media.FlagCodecConfig}))
	require.NoError(t, tm.WriteSample(idx, nil, media.BufferInfo{Flags: media.FlagEndOfStream}))
	assert.Empty(t, rec.Samples)
}

func TestTrackManagerFinalizeWithoutStartOnlyReleases(t *testing.T) {
	rec := testsupport.NewRecordingMuxer()
	tm := muxer.NewTrackManager(rec, 1, logging.NewNop())
	require.NoError(t, tm.Finalize())
	assert.Equal(t, 0, rec.Stops)
	assert.Equal(t, 1, rec.Releases)
}

func TestTrackManagerWrapsWriteErrors(t *testing.T) {
	rec := testsupport.NewRecordingMuxer()
	tm := muxer.NewTrackManager(rec, 1, logging.NewNop())
	idx, err := tm.RegisterTrack(aacFormat)
	require.NoError(t, err)
	require.NoError(t, tm.Start())
	rec.WriteErr = errors.New("disk full")
	err = tm.WriteSample(idx, []byte{1}, media.BufferInfo{Size: 1})
	require.ErrorIs(t, err, services.ErrIO)
	assert.Contains(t, err.Error(), "disk full")
}

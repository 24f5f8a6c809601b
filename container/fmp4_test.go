package container

import (
	"bytes"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	amp4 "github.com/abema/go-mp4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opd-ai/videopipeline/geom"
	"github.com/opd-ai/videopipeline/media"
)

func videoSpec() TrackSpec {
	return TrackSpec{MediaType: media.MediaTypeVideo, Width: 16, Height: 16, Transform: geom.Rotation(0)}
}

func audioSpec() TrackSpec {
	return TrackSpec{MediaType: media.MediaTypeAudio, Audio: media.DefaultAudioFormat}
}

func audioSample(pts media.Time) media.SampleBuffer {
	ab := &media.AudioBuffer{
		Format:      media.DefaultAudioFormat,
		Data:        make([]byte, 480*2),
		SampleCount: 480,
	}
	return media.NewAudioSample(ab, pts)
}

func newTestWriter(t *testing.T, opts FMP4Options) *FMP4Writer {
	t.Helper()
	w, err := NewFMP4Writer(filepath.Join(t.TempDir(), "movie.mp4"), opts)
	require.NoError(t, err)
	return w
}

func TestFMP4WriterWritesMovie(t *testing.T) {
	w := newTestWriter(t, FMP4Options{FragmentDuration: 100 * time.Millisecond})

	require.True(t, w.CanAdd(videoSpec()))
	video, err := w.AddInput(videoSpec())
	require.NoError(t, err)
	audio, err := w.AddInput(audioSpec())
	require.NoError(t, err)

	assert.False(t, video.IsReadyForMoreMediaData(), "not ready before writing starts")
	require.NoError(t, w.StartWriting())
	assert.Equal(t, StatusWriting, w.Status())

	start := media.NewTime(1000, 600)
	w.StartSession(start)
	assert.True(t, video.IsReadyForMoreMediaData())

	for i := 0; i < 10; i++ {
		pts := start.Add(media.NewTime(int64(i), 30))
		require.NoError(t, video.AppendPixelBuffer(media.NewPixelBuffer(16, 16), pts))
		require.NoError(t, audio.AppendSample(audioSample(start.Add(media.NewTime(int64(i*480), 48000)))))
	}

	var finishErr error
	called := false
	w.FinishWriting(func(err error) {
		called = true
		finishErr = err
	})
	require.True(t, called)
	require.NoError(t, finishErr)
	assert.Equal(t, StatusCompleted, w.Status())

	data, err := os.ReadFile(w.Path())
	require.NoError(t, err)
	require.Greater(t, len(data), 8)
	assert.Equal(t, "ftyp", string(data[4:8]))
	assert.True(t, bytes.Contains(data, []byte("moov")))
	assert.True(t, bytes.Contains(data, []byte("moof")))
	assert.True(t, bytes.Contains(data, []byte("mdat")))
}

// trackMatrices reads the tkhd matrix of every track in the file at path.
func trackMatrices(t *testing.T, path string) map[uint32][9]int32 {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)

	boxes, err := amp4.ExtractBoxWithPayload(bytes.NewReader(data), nil,
		amp4.BoxPath{amp4.BoxTypeMoov(), amp4.BoxTypeTrak(), amp4.BoxTypeTkhd()})
	require.NoError(t, err)

	out := map[uint32][9]int32{}
	for _, b := range boxes {
		tkhd := b.Payload.(*amp4.Tkhd)
		out[tkhd.TrackID] = tkhd.Matrix
	}
	return out
}

func TestFMP4WriterWritesDisplayMatrix(t *testing.T) {
	w := newTestWriter(t, FMP4Options{})
	spec := videoSpec()
	spec.Transform = geom.Rotation(math.Pi / 2).Translated(16, 0)
	video, err := w.AddInput(spec)
	require.NoError(t, err)
	_, err = w.AddInput(audioSpec())
	require.NoError(t, err)

	require.NoError(t, w.StartWriting())
	w.StartSession(media.ZeroTime)
	require.NoError(t, video.AppendPixelBuffer(media.NewPixelBuffer(16, 16), media.ZeroTime))
	w.FinishWriting(nil)
	require.Equal(t, StatusCompleted, w.Status())

	matrices := trackMatrices(t, w.Path())
	require.Len(t, matrices, 2)
	assert.Equal(t, [9]int32{0, 0x10000, 0, -0x10000, 0, 0, 16 << 16, 0, 0x40000000}, matrices[1])
	assert.Equal(t, [9]int32{0x10000, 0, 0, 0, 0x10000, 0, 0, 0, 0x40000000}, matrices[2], "audio keeps identity")
}

func TestFMP4WriterIdentityTransform(t *testing.T) {
	w := newTestWriter(t, FMP4Options{})
	_, err := w.AddInput(videoSpec())
	require.NoError(t, err)
	require.NoError(t, w.StartWriting())
	w.FinishWriting(nil)

	matrices := trackMatrices(t, w.Path())
	assert.Equal(t, [9]int32{0x10000, 0, 0, 0, 0x10000, 0, 0, 0, 0x40000000}, matrices[1])
}

func TestFMP4WriterRejectsLateTracks(t *testing.T) {
	w := newTestWriter(t, FMP4Options{})
	_, err := w.AddInput(videoSpec())
	require.NoError(t, err)
	require.NoError(t, w.StartWriting())

	assert.False(t, w.CanAdd(audioSpec()))
	_, err = w.AddInput(audioSpec())
	assert.ErrorIs(t, err, ErrAlreadyStarted)
	assert.ErrorIs(t, w.StartWriting(), ErrAlreadyStarted)
}

func TestFMP4WriterUnsupportedTracks(t *testing.T) {
	w := newTestWriter(t, FMP4Options{})

	tests := []struct {
		name string
		spec TrackSpec
	}{
		{"unknown media", TrackSpec{}},
		{"empty video", TrackSpec{MediaType: media.MediaTypeVideo}},
		{"8-bit pcm", TrackSpec{MediaType: media.MediaTypeAudio, Audio: media.AudioFormat{SampleRate: 8000, Channels: 1, BitDepth: 8}}},
		{"opus without channels", TrackSpec{MediaType: media.MediaTypeAudio, Audio: media.AudioFormat{Codec: media.AudioCodecOpus}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.False(t, w.CanAdd(tt.spec))
			_, err := w.AddInput(tt.spec)
			assert.ErrorIs(t, err, ErrUnsupportedTrack)
		})
	}

	assert.True(t, w.CanAdd(TrackSpec{
		MediaType: media.MediaTypeAudio,
		Audio:     media.AudioFormat{Codec: media.AudioCodecOpus, SampleRate: 48000, Channels: 2},
	}))
	assert.ErrorIs(t, w.StartWriting(), ErrUnsupportedTrack)
}

// silkPacket is a mono wideband SILK Opus packet (TOC 0x48, 20ms).
var silkPacket = []byte{0x48, 0x83, 0xca, 0xde, 0x8a, 0xe5, 0x67, 0xd5, 0x1c, 0xac, 0xa2, 0x54, 0xfa, 0xff, 0xbf}

func TestFMP4WriterOpusLayoutFromPacket(t *testing.T) {
	w := newTestWriter(t, FMP4Options{})
	spec := TrackSpec{
		MediaType:  media.MediaTypeAudio,
		Audio:      media.AudioFormat{Codec: media.AudioCodecOpus, SampleRate: OpusTimescale},
		OpusHeader: silkPacket,
	}
	require.True(t, w.CanAdd(spec), "channel count comes from the packet")
	in, err := w.AddInput(spec)
	require.NoError(t, err)
	require.NoError(t, w.StartWriting())
	w.StartSession(media.ZeroTime)

	for i := 0; i < 3; i++ {
		require.NoError(t, in.AppendSample(media.NewAudioSample(&media.AudioBuffer{
			Format:      spec.Audio,
			Data:        silkPacket,
			SampleCount: 960,
		}, media.NewTime(int64(i*960), OpusTimescale))))
	}
	w.FinishWriting(nil)
	require.Equal(t, StatusCompleted, w.Status())

	data, err := os.ReadFile(w.Path())
	require.NoError(t, err)
	boxes, err := amp4.ExtractBoxWithPayload(bytes.NewReader(data), nil, amp4.BoxPath{
		amp4.BoxTypeMoov(), amp4.BoxTypeTrak(), amp4.BoxTypeMdia(), amp4.BoxTypeMinf(),
		amp4.BoxTypeStbl(), amp4.BoxTypeStsd(), amp4.BoxTypeOpus(), amp4.BoxTypeDOps(),
	})
	require.NoError(t, err)
	require.Len(t, boxes, 1)
	assert.Equal(t, uint8(1), boxes[0].Payload.(*amp4.DOps).OutputChannelCount)

	bad := spec
	bad.OpusHeader = []byte{0xff}
	assert.False(t, newTestWriter(t, FMP4Options{}).CanAdd(bad), "undecodable header")
}

func TestFMP4WriterSessionHandling(t *testing.T) {
	w := newTestWriter(t, FMP4Options{MaxPendingSamples: 2})
	video, err := w.AddInput(videoSpec())
	require.NoError(t, err)
	require.NoError(t, w.StartWriting())

	pb := media.NewPixelBuffer(16, 16)
	assert.ErrorIs(t, video.AppendPixelBuffer(pb, media.NewTime(0, 600)), ErrNotWriting, "no session yet")

	w.StartSession(media.NewTime(600, 600))
	require.NoError(t, video.AppendPixelBuffer(pb, media.NewTime(0, 600)), "early samples are discarded")
	assert.True(t, video.IsReadyForMoreMediaData())

	require.NoError(t, video.AppendPixelBuffer(pb, media.NewTime(600, 600)))
	require.NoError(t, video.AppendPixelBuffer(pb, media.NewTime(620, 600)))
	assert.False(t, video.IsReadyForMoreMediaData(), "pending buffer full")
	assert.ErrorIs(t, video.AppendPixelBuffer(pb, media.NewTime(640, 600)), ErrNotReady)

	err = video.AppendSample(audioSample(media.NewTime(600, 600)))
	assert.ErrorIs(t, err, ErrSampleMismatch)

	w.FinishWriting(nil)
	assert.Equal(t, StatusCompleted, w.Status())
	assert.False(t, video.IsReadyForMoreMediaData())

	var second error
	w.FinishWriting(func(err error) { second = err })
	assert.ErrorIs(t, second, ErrNotWriting)
}

func TestNewFMP4WriterOpenFailure(t *testing.T) {
	_, err := NewFMP4Writer(filepath.Join(t.TempDir(), "missing", "dir", "movie.mp4"), FMP4Options{})
	assert.ErrorIs(t, err, ErrWriterOpen)
}

func TestStatusString(t *testing.T) {
	assert.Equal(t, "writing", StatusWriting.String())
	assert.Equal(t, "status(9)", Status(9).String())
}

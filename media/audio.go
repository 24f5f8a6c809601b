package media

import (
	"fmt"

	"github.com/pion/opus"
	"github.com/sirupsen/logrus"
)

// AudioCodec identifies the encoding of audio payloads. Audio is passed
// through to the container untouched, so the codec only matters for the
// track description.
type AudioCodec uint8

const (
	// AudioCodecLPCM is interleaved signed 16-bit little-endian PCM.
	AudioCodecLPCM AudioCodec = iota
	// AudioCodecOpus is one Opus packet per sample buffer.
	AudioCodecOpus
)

// String returns the codec name.
func (c AudioCodec) String() string {
	switch c {
	case AudioCodecLPCM:
		return "lpcm"
	case AudioCodecOpus:
		return "opus"
	default:
		return "unknown"
	}
}

// AudioFormat describes an audio stream.
type AudioFormat struct {
	Codec      AudioCodec
	SampleRate int
	Channels   int
	BitDepth   int
}

// DefaultAudioFormat is the microphone format used when a device does not
// report one: 48 kHz mono 16-bit PCM.
var DefaultAudioFormat = AudioFormat{
	Codec:      AudioCodecLPCM,
	SampleRate: 48000,
	Channels:   1,
	BitDepth:   16,
}

func (f AudioFormat) String() string {
	return fmt.Sprintf("%s %dHz %dch", f.Codec, f.SampleRate, f.Channels)
}

// AudioBuffer is a packet of audio in its native format.
type AudioBuffer struct {
	Format      AudioFormat
	Data        []byte
	SampleCount int // samples per channel
}

// OpusInfo is what a decoded Opus packet reveals about its stream.
type OpusInfo struct {
	Bandwidth  opus.Bandwidth
	SampleRate int
	Channels   int
}

// ReadOpusInfo decodes one Opus packet to learn the stream's channel layout and
// audio bandwidth. The decoded PCM is discarded.
func ReadOpusInfo(packet []byte) (OpusInfo, error) {
	if len(packet) == 0 {
		return OpusInfo{}, fmt.Errorf("%w: empty packet", ErrNotOpus)
	}

	decoder := opus.NewDecoder()

	// 1920 samples covers a 40ms frame at 48kHz.
	output := make([]byte, 1920*2*2)

	bandwidth, isStereo, err := decoder.Decode(packet, output)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function":    "ReadOpusInfo",
			"packet_size": len(packet),
			"error":       err.Error(),
		}).Debug("Opus packet not decodable")
		return OpusInfo{}, fmt.Errorf("%w: %v", ErrNotOpus, err)
	}

	info := OpusInfo{
		Bandwidth:  bandwidth,
		SampleRate: sampleRateForBandwidth(bandwidth),
		Channels:   1,
	}
	if isStereo {
		info.Channels = 2
	}

	logrus.WithFields(logrus.Fields{
		"function":    "ReadOpusInfo",
		"bandwidth":   bandwidth.String(),
		"sample_rate": info.SampleRate,
		"channels":    info.Channels,
	}).Debug("Opus stream layout read")

	return info, nil
}

func sampleRateForBandwidth(bw opus.Bandwidth) int {
	switch bw {
	case opus.BandwidthNarrowband:
		return 8000
	case opus.BandwidthMediumband:
		return 12000
	case opus.BandwidthWideband:
		return 16000
	case opus.BandwidthSuperwideband:
		return 24000
	default:
		return 48000
	}
}

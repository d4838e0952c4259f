package media

import (
	"fmt"
	"log/slog"

	"github.com/pion/rtp"
	"gopkg.in/hraban/opus.v2"

	"github.com/teslashibe/candidly/pkg/audioio"
)

// opusRate is the RTP clock and decode rate for Opus.
const opusRate = 48000

// AudioTrack decodes Opus RTP to mono PCM at the source's sample rate
// and pushes it into a ChannelSource.
type AudioTrack struct {
	dec    *opus.Decoder
	source *audioio.ChannelSource
	logger *slog.Logger

	pcm     []int16
	errors  int
	decoded int64
}

// NewAudioTrack creates a decoder feeding source.
func NewAudioTrack(source *audioio.ChannelSource, logger *slog.Logger) (*AudioTrack, error) {
	dec, err := opus.NewDecoder(opusRate, 1)
	if err != nil {
		return nil, fmt.Errorf("media: opus decoder: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &AudioTrack{
		dec:    dec,
		source: source,
		logger: logger,
		// 120ms at 48kHz is the longest Opus frame.
		pcm: make([]int16, 5760),
	}, nil
}

// WriteRTP decodes one packet. Decode errors are counted and skipped.
func (a *AudioTrack) WriteRTP(pkt *rtp.Packet) {
	if len(pkt.Payload) == 0 {
		return
	}
	n, err := a.dec.Decode(pkt.Payload, a.pcm)
	if err != nil {
		a.errors++
		if a.errors <= 5 {
			a.logger.Debug("opus decode failed", "error", err, "payload_bytes", len(pkt.Payload))
		}
		return
	}
	a.decoded += int64(n)
	a.source.Push(toChunk(a.pcm[:n], opusRate, a.source.Config().SampleRate))
}

// toChunk resamples decoded mono PCM into an owned chunk.
func toChunk(samples []int16, fromRate, toRate int) audioio.AudioChunk {
	out := audioio.Resample(samples, fromRate, toRate)
	if len(out) > 0 && &out[0] == &samples[0] {
		out = append([]int16(nil), out...)
	}
	return audioio.AudioChunk{
		Samples:    out,
		SampleRate: toRate,
		Channels:   1,
	}
}

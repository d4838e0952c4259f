package media

import (
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/pion/rtcp"
	"github.com/pion/webrtc/v3"

	"github.com/teslashibe/candidly/pkg/audioio"
	"github.com/teslashibe/candidly/pkg/metrics"
	"github.com/teslashibe/candidly/pkg/proctor"
)

// Peer is one candidate's WebRTC connection. It implements proctor.Media.
type Peer struct {
	id     string
	pc     *webrtc.PeerConnection
	video  *VideoTrack
	audio  *audioio.ChannelSource
	config Config
	logger *slog.Logger

	ready       chan struct{}
	readyOnce   sync.Once
	closed      chan struct{}
	releaseOnce sync.Once

	mu       sync.Mutex
	released bool
	wg       sync.WaitGroup
}

func newPeer(id string, pc *webrtc.PeerConnection, cfg Config, logger *slog.Logger) *Peer {
	audioCfg := audioio.DefaultConfig()
	audioCfg.Backend = audioio.BackendWebRTC
	audioCfg.SampleRate = cfg.SampleRate

	decoder := cfg.Decoder
	if decoder == nil {
		decoder = NewFFmpegDecoder()
	}

	p := &Peer{
		id:     id,
		pc:     pc,
		video:  NewVideoTrack(decoder, logger),
		audio:  audioio.NewChannelSource(audioCfg, logger),
		config: cfg,
		logger: logger,
		ready:  make(chan struct{}),
		closed: make(chan struct{}),
	}

	metrics.MediaPeers.Inc()
	pc.OnTrack(p.onTrack)
	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		p.logger.Info("peer connection state", "state", state.String())
	})
	pc.OnICEConnectionStateChange(func(state webrtc.ICEConnectionState) {
		p.logger.Debug("ice state", "state", state.String())
	})
	return p
}

func (p *Peer) onTrack(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.released {
		return
	}

	mime := track.Codec().MimeType
	p.logger.Info("remote track", "kind", track.Kind().String(), "codec", mime)

	switch {
	case track.Kind() == webrtc.RTPCodecTypeVideo && strings.EqualFold(mime, webrtc.MimeTypeH264):
		p.wg.Add(2)
		go p.readVideo(track)
		go p.requestKeyframes(track)
		p.readyOnce.Do(func() { close(p.ready) })

	case track.Kind() == webrtc.RTPCodecTypeAudio && strings.EqualFold(mime, webrtc.MimeTypeOpus):
		at, err := NewAudioTrack(p.audio, p.logger)
		if err != nil {
			p.logger.Error("audio track unusable", "error", err)
			return
		}
		p.wg.Add(1)
		go p.readAudio(track, at)

	default:
		p.logger.Warn("unsupported track ignored", "kind", track.Kind().String(), "codec", mime)
	}
}

func (p *Peer) readVideo(track *webrtc.TrackRemote) {
	defer p.wg.Done()
	for {
		pkt, _, err := track.ReadRTP()
		if err != nil {
			return
		}
		if err := p.video.WriteRTP(pkt); err != nil {
			p.logger.Debug("h264 depacketize", "error", err)
		}
	}
}

func (p *Peer) readAudio(track *webrtc.TrackRemote, at *AudioTrack) {
	defer p.wg.Done()
	for {
		pkt, _, err := track.ReadRTP()
		if err != nil {
			return
		}
		at.WriteRTP(pkt)
	}
}

// requestKeyframes sends periodic PLIs so the buffered GOP stays short.
func (p *Peer) requestKeyframes(track *webrtc.TrackRemote) {
	defer p.wg.Done()
	ticker := time.NewTicker(p.config.KeyframeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-p.closed:
			return
		case <-ticker.C:
			err := p.pc.WriteRTCP([]rtcp.Packet{
				&rtcp.PictureLossIndication{MediaSSRC: uint32(track.SSRC())},
			})
			if err != nil {
				p.logger.Debug("keyframe request failed", "error", err)
			}
		}
	}
}

// ID returns the peer's identifier.
func (p *Peer) ID() string { return p.id }

// Frames implements proctor.Media.
func (p *Peer) Frames() proctor.FrameSource { return p.video }

// Audio implements proctor.Media.
func (p *Peer) Audio() audioio.Source { return p.audio }

// Ready implements proctor.Media. It closes when video starts flowing.
func (p *Peer) Ready() <-chan struct{} { return p.ready }

// Release closes the connection and its tracks. It is idempotent.
func (p *Peer) Release() error {
	var err error
	p.releaseOnce.Do(func() {
		p.mu.Lock()
		p.released = true
		p.mu.Unlock()

		close(p.closed)
		err = p.pc.Close()
		p.audio.Close()
		p.wg.Wait()
		metrics.MediaPeers.Dec()
		p.logger.Info("peer released", "pictures", p.video.Pictures(), "audio_overruns", p.audio.Overruns())
	})
	return err
}

var _ proctor.Media = (*Peer)(nil)

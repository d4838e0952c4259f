package media

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pion/interceptor"
	"github.com/pion/webrtc/v3"

	"github.com/teslashibe/candidly/pkg/proctor"
)

// SessionDescription is the SDP exchanged with the candidate's browser.
type SessionDescription struct {
	Type string `json:"type"`
	SDP  string `json:"sdp"`
}

// Ingest answers WebRTC offers and hands the resulting peer to the
// proctoring monitor. It implements proctor.Provider.
type Ingest struct {
	config Config
	logger *slog.Logger
	api    *webrtc.API
	ice    []webrtc.ICEServer

	offers chan *Peer

	mu     sync.Mutex
	peers  map[string]*Peer
	closed bool
}

// NewIngest creates an ingest with default codecs and interceptors.
func NewIngest(opts ...Option) (*Ingest, error) {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	m := &webrtc.MediaEngine{}
	if err := m.RegisterDefaultCodecs(); err != nil {
		return nil, fmt.Errorf("media: register codecs: %w", err)
	}
	ir := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(m, ir); err != nil {
		return nil, fmt.Errorf("media: register interceptors: %w", err)
	}

	var ice []webrtc.ICEServer
	if len(cfg.ICEServers) > 0 {
		ice = []webrtc.ICEServer{{URLs: cfg.ICEServers}}
	}

	return &Ingest{
		config: cfg,
		logger: cfg.Logger.With("component", "media.ingest"),
		api:    webrtc.NewAPI(webrtc.WithMediaEngine(m), webrtc.WithInterceptorRegistry(ir)),
		ice:    ice,
		offers: make(chan *Peer, 1),
		peers:  make(map[string]*Peer),
	}, nil
}

// HandleOffer answers an SDP offer. The new peer replaces any peer that
// has not been claimed by Acquire yet.
func (i *Ingest) HandleOffer(ctx context.Context, offer SessionDescription) (SessionDescription, error) {
	if offer.Type != "offer" || offer.SDP == "" {
		return SessionDescription{}, ErrInvalidOffer
	}

	i.mu.Lock()
	closed := i.closed
	i.mu.Unlock()
	if closed {
		return SessionDescription{}, ErrReleased
	}

	pc, err := i.api.NewPeerConnection(webrtc.Configuration{ICEServers: i.ice})
	if err != nil {
		return SessionDescription{}, fmt.Errorf("media: new peer connection: %w", err)
	}

	id := uuid.New().String()
	peer := newPeer(id, pc, i.config, i.logger.With("peer_id", id))

	answer, err := i.answer(ctx, pc, offer)
	if err != nil {
		peer.Release()
		return SessionDescription{}, err
	}

	var stale *Peer
	i.mu.Lock()
	i.peers[id] = peer
	select {
	case i.offers <- peer:
	default:
		// Writers hold mu, so after draining the slot is free.
		select {
		case stale = <-i.offers:
			delete(i.peers, stale.ID())
		default:
		}
		i.offers <- peer
	}
	i.mu.Unlock()

	if stale != nil {
		i.logger.Info("replacing unclaimed peer", "peer_id", stale.ID())
		stale.Release()
	}

	i.logger.Info("offer answered", "peer_id", id)
	return answer, nil
}

func (i *Ingest) answer(ctx context.Context, pc *webrtc.PeerConnection, offer SessionDescription) (SessionDescription, error) {
	remote := webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: offer.SDP}
	if err := pc.SetRemoteDescription(remote); err != nil {
		return SessionDescription{}, fmt.Errorf("%w: %w", ErrInvalidOffer, err)
	}
	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		return SessionDescription{}, fmt.Errorf("media: create answer: %w", err)
	}

	gathered := webrtc.GatheringCompletePromise(pc)
	if err := pc.SetLocalDescription(answer); err != nil {
		return SessionDescription{}, fmt.Errorf("media: set local description: %w", err)
	}
	select {
	case <-gathered:
	case <-ctx.Done():
		return SessionDescription{}, ctx.Err()
	}

	local := pc.LocalDescription()
	if local == nil {
		return SessionDescription{}, fmt.Errorf("media: no local description")
	}
	return SessionDescription{Type: "answer", SDP: local.SDP}, nil
}

// Acquire waits for the candidate's offer. A candidate who never grants
// camera and microphone access produces ErrNoOffer after OfferTimeout.
func (i *Ingest) Acquire(ctx context.Context) (proctor.Media, error) {
	timer := time.NewTimer(i.config.OfferTimeout)
	defer timer.Stop()

	select {
	case peer := <-i.offers:
		i.logger.Info("media acquired", "peer_id", peer.ID())
		return peer, nil
	case <-timer.C:
		return nil, ErrNoOffer
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close releases every peer created by this ingest.
func (i *Ingest) Close() error {
	i.mu.Lock()
	i.closed = true
	peers := make([]*Peer, 0, len(i.peers))
	for _, p := range i.peers {
		peers = append(peers, p)
	}
	i.peers = map[string]*Peer{}
	i.mu.Unlock()

	for _, p := range peers {
		p.Release()
	}
	return nil
}

var _ proctor.Provider = (*Ingest)(nil)

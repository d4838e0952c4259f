package media

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/pion/webrtc/v3"
)

func newTestIngest(t *testing.T, opts ...Option) *Ingest {
	t.Helper()
	opts = append([]Option{WithICEServers()}, opts...)
	in, err := NewIngest(opts...)
	if err != nil {
		t.Fatalf("NewIngest() error = %v", err)
	}
	t.Cleanup(func() { in.Close() })
	return in
}

func browserOffer(t *testing.T) SessionDescription {
	t.Helper()
	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{})
	if err != nil {
		t.Fatalf("NewPeerConnection() error = %v", err)
	}
	t.Cleanup(func() { pc.Close() })

	for _, kind := range []webrtc.RTPCodecType{webrtc.RTPCodecTypeVideo, webrtc.RTPCodecTypeAudio} {
		_, err := pc.AddTransceiverFromKind(kind, webrtc.RTPTransceiverInit{
			Direction: webrtc.RTPTransceiverDirectionSendonly,
		})
		if err != nil {
			t.Fatalf("AddTransceiverFromKind() error = %v", err)
		}
	}

	offer, err := pc.CreateOffer(nil)
	if err != nil {
		t.Fatalf("CreateOffer() error = %v", err)
	}
	gathered := webrtc.GatheringCompletePromise(pc)
	if err := pc.SetLocalDescription(offer); err != nil {
		t.Fatalf("SetLocalDescription() error = %v", err)
	}
	<-gathered
	return SessionDescription{Type: "offer", SDP: pc.LocalDescription().SDP}
}

func TestIngest_InvalidOffer(t *testing.T) {
	in := newTestIngest(t)
	ctx := context.Background()

	tests := []SessionDescription{
		{Type: "answer", SDP: "v=0"},
		{Type: "offer"},
		{Type: "offer", SDP: "not sdp"},
	}
	for _, offer := range tests {
		if _, err := in.HandleOffer(ctx, offer); !errors.Is(err, ErrInvalidOffer) {
			t.Errorf("HandleOffer(%+v) error = %v, want ErrInvalidOffer", offer, err)
		}
	}
}

func TestIngest_AcquireTimesOut(t *testing.T) {
	in := newTestIngest(t, WithOfferTimeout(20*time.Millisecond))

	if _, err := in.Acquire(context.Background()); !errors.Is(err, ErrNoOffer) {
		t.Errorf("Acquire() error = %v, want ErrNoOffer", err)
	}
}

func TestIngest_AcquireCancelled(t *testing.T) {
	in := newTestIngest(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := in.Acquire(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Acquire() error = %v, want context.Canceled", err)
	}
}

func TestIngest_AnswersOffer(t *testing.T) {
	in := newTestIngest(t, WithOfferTimeout(time.Second))
	ctx := context.Background()

	answer, err := in.HandleOffer(ctx, browserOffer(t))
	if err != nil {
		t.Fatalf("HandleOffer() error = %v", err)
	}
	if answer.Type != "answer" {
		t.Errorf("answer.Type = %q", answer.Type)
	}
	if !strings.Contains(answer.SDP, "m=video") || !strings.Contains(answer.SDP, "m=audio") {
		t.Errorf("answer SDP missing media sections:\n%s", answer.SDP)
	}

	m, err := in.Acquire(ctx)
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	if m.Frames() == nil || m.Audio() == nil {
		t.Fatal("media has nil sources")
	}
	select {
	case <-m.Ready():
		t.Error("Ready() closed before any video arrived")
	default:
	}

	if err := m.Release(); err != nil {
		t.Errorf("Release() error = %v", err)
	}
	if err := m.Release(); err != nil {
		t.Errorf("second Release() error = %v", err)
	}
}

func TestIngest_NewOfferReplacesUnclaimed(t *testing.T) {
	in := newTestIngest(t, WithOfferTimeout(50*time.Millisecond))
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := in.HandleOffer(ctx, browserOffer(t)); err != nil {
			t.Fatalf("HandleOffer(%d) error = %v", i, err)
		}
	}

	if _, err := in.Acquire(ctx); err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	if _, err := in.Acquire(ctx); !errors.Is(err, ErrNoOffer) {
		t.Errorf("second Acquire() error = %v, want ErrNoOffer", err)
	}
}

func TestIngest_ClosedRejectsOffers(t *testing.T) {
	in := newTestIngest(t)
	in.Close()

	if _, err := in.HandleOffer(context.Background(), SessionDescription{Type: "offer", SDP: "v=0"}); !errors.Is(err, ErrReleased) {
		t.Errorf("HandleOffer() after Close error = %v, want ErrReleased", err)
	}
}

func TestConfig_Validate(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Errorf("DefaultConfig().Validate() error = %v", err)
	}
	cfg := DefaultConfig()
	cfg.OfferTimeout = 0
	if err := cfg.Validate(); err == nil {
		t.Error("Validate() with zero offer timeout = nil")
	}
}

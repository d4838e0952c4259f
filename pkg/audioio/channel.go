package audioio

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
)

// ChannelSource is a Source fed by an external producer such as a
// decoded WebRTC track. Push never blocks: when the queue is full the
// chunk is dropped and counted as an overrun.
type ChannelSource struct {
	cfg    Config
	logger *slog.Logger

	mu       sync.Mutex
	running  bool
	closed   bool
	streamCh chan AudioChunk

	pushed   atomic.Int64
	overruns atomic.Int64
}

// NewChannelSource creates a push-fed source.
func NewChannelSource(cfg Config, logger *slog.Logger) *ChannelSource {
	if logger == nil {
		logger = slog.Default()
	}
	return &ChannelSource{
		cfg:      cfg,
		logger:   logger,
		streamCh: make(chan AudioChunk, cfg.QueueDepth),
	}
}

// Start marks the source as accepting chunks.
func (s *ChannelSource) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return io.ErrClosedPipe
	}
	s.running = true
	return nil
}

// Push enqueues a chunk. It reports false when the chunk was dropped.
func (s *ChannelSource) Push(chunk AudioChunk) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return false
	}
	select {
	case s.streamCh <- chunk:
		s.pushed.Add(1)
		return true
	default:
		s.overruns.Add(1)
		return false
	}
}

// Stop closes the stream. Consumers see io.EOF after draining.
// A ChannelSource cannot be restarted once stopped.
func (s *ChannelSource) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.running = false
	s.closed = true
	close(s.streamCh)
	s.logger.Debug("channel audio source stopped",
		"pushed", s.pushed.Load(),
		"overruns", s.overruns.Load(),
	)
	return nil
}

// Read reads the next audio chunk.
func (s *ChannelSource) Read(ctx context.Context) (AudioChunk, error) {
	return readChunk(ctx, s.streamCh)
}

// Stream returns the audio chunk channel.
func (s *ChannelSource) Stream() <-chan AudioChunk {
	return s.streamCh
}

// Config returns the audio configuration.
func (s *ChannelSource) Config() Config {
	return s.cfg
}

// Name returns "webrtc".
func (s *ChannelSource) Name() string {
	return string(BackendWebRTC)
}

// Close stops the source.
func (s *ChannelSource) Close() error {
	return s.Stop()
}

// Overruns returns how many chunks were dropped because the queue was full.
func (s *ChannelSource) Overruns() int64 {
	return s.overruns.Load()
}

var _ Source = (*ChannelSource)(nil)

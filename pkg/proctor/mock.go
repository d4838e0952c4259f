package proctor

import (
	"context"
	"errors"
	"sync"

	"github.com/teslashibe/candidly/pkg/audioio"
)

// ErrNoFrame is returned by frame sources before the first frame arrives.
var ErrNoFrame = errors.New("proctor: no frame available")

// StaticFrames is a FrameSource that always returns the same frame.
type StaticFrames struct {
	mu    sync.Mutex
	frame []byte
	err   error
}

// NewStaticFrames creates a frame source returning frame.
func NewStaticFrames(frame []byte) *StaticFrames {
	return &StaticFrames{frame: frame}
}

// SetError makes CaptureJPEG fail with err until cleared with nil.
func (s *StaticFrames) SetError(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

// CaptureJPEG implements FrameSource.
func (s *StaticFrames) CaptureJPEG() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	if s.frame == nil {
		return nil, ErrNoFrame
	}
	return s.frame, nil
}

// MockMedia is an in-memory Media for tests and local runs.
type MockMedia struct {
	frames FrameSource
	audio  audioio.Source
	ready  chan struct{}

	mu        sync.Mutex
	readyOnce sync.Once
	releases  int
}

// NewMockMedia creates media that is ready immediately.
func NewMockMedia(frames FrameSource, audio audioio.Source) *MockMedia {
	m := NewPendingMockMedia(frames, audio)
	m.MarkReady()
	return m
}

// NewPendingMockMedia creates media that becomes ready on MarkReady.
func NewPendingMockMedia(frames FrameSource, audio audioio.Source) *MockMedia {
	return &MockMedia{frames: frames, audio: audio, ready: make(chan struct{})}
}

// MarkReady closes the ready channel.
func (m *MockMedia) MarkReady() {
	m.readyOnce.Do(func() { close(m.ready) })
}

// Frames implements Media.
func (m *MockMedia) Frames() FrameSource { return m.frames }

// Audio implements Media.
func (m *MockMedia) Audio() audioio.Source { return m.audio }

// Ready implements Media.
func (m *MockMedia) Ready() <-chan struct{} { return m.ready }

// Release implements Media.
func (m *MockMedia) Release() error {
	m.mu.Lock()
	m.releases++
	m.mu.Unlock()
	return nil
}

// Releases returns how many times Release was called.
func (m *MockMedia) Releases() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.releases
}

// MockProvider hands out a fixed Media or error.
type MockProvider struct {
	Media Media
	Err   error
}

// Acquire implements Provider.
func (p *MockProvider) Acquire(ctx context.Context) (Media, error) {
	if p.Err != nil {
		return nil, p.Err
	}
	return p.Media, nil
}

var (
	_ FrameSource = (*StaticFrames)(nil)
	_ Media       = (*MockMedia)(nil)
	_ Provider    = (*MockProvider)(nil)
)

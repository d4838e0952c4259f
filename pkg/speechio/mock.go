package speechio

import (
	"context"
	"sync"
	"time"
)

// MockRecognizer is a Recognizer for tests. Results are served from a
// queue; when the queue is empty Recognize blocks until ctx is done.
type MockRecognizer struct {
	mu        sync.Mutex
	available bool
	queue     []mockResult
	calls     int
	wake      chan struct{}

	// RecognizeFunc overrides the queue when set.
	RecognizeFunc func(ctx context.Context, opts RecognizeOptions) (Recognition, error)
}

type mockResult struct {
	rec Recognition
	err error
}

// NewMockRecognizer creates an available mock recognizer.
func NewMockRecognizer() *MockRecognizer {
	return &MockRecognizer{available: true, wake: make(chan struct{}, 1)}
}

// SetAvailable controls what Available reports.
func (m *MockRecognizer) SetAvailable(v bool) {
	m.mu.Lock()
	m.available = v
	m.mu.Unlock()
}

// QueueText queues a result captured now.
func (m *MockRecognizer) QueueText(text string) {
	m.QueueResult(Recognition{Text: text, At: time.Now()}, nil)
}

// QueueError queues a recognition error.
func (m *MockRecognizer) QueueError(err error) {
	m.QueueResult(Recognition{}, err)
}

// QueueResult queues a result or error.
func (m *MockRecognizer) QueueResult(rec Recognition, err error) {
	m.mu.Lock()
	m.queue = append(m.queue, mockResult{rec: rec, err: err})
	m.mu.Unlock()
	select {
	case m.wake <- struct{}{}:
	default:
	}
}

// Available implements Recognizer.
func (m *MockRecognizer) Available() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.available
}

// Recognize implements Recognizer.
func (m *MockRecognizer) Recognize(ctx context.Context, opts RecognizeOptions) (Recognition, error) {
	m.mu.Lock()
	m.calls++
	fn := m.RecognizeFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, opts)
	}

	for {
		m.mu.Lock()
		if len(m.queue) > 0 {
			next := m.queue[0]
			m.queue = m.queue[1:]
			m.mu.Unlock()
			return next.rec, next.err
		}
		m.mu.Unlock()

		select {
		case <-ctx.Done():
			return Recognition{}, ctx.Err()
		case <-m.wake:
		}
	}
}

// Calls returns how many times Recognize was invoked.
func (m *MockRecognizer) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// MockSynthesizer is a Synthesizer for tests that records spoken text.
type MockSynthesizer struct {
	mu      sync.Mutex
	spoken  []string
	cancels int

	// Delay simulates playback time.
	Delay time.Duration

	// SpeakFunc overrides the default behavior when set.
	SpeakFunc func(ctx context.Context, u Utterance) error
}

// NewMockSynthesizer creates a mock synthesizer with instant playback.
func NewMockSynthesizer() *MockSynthesizer {
	return &MockSynthesizer{}
}

// Speak implements Synthesizer.
func (m *MockSynthesizer) Speak(ctx context.Context, u Utterance) error {
	m.mu.Lock()
	m.spoken = append(m.spoken, u.Text)
	fn := m.SpeakFunc
	delay := m.Delay
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, u)
	}
	if delay <= 0 {
		return nil
	}
	select {
	case <-time.After(delay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Cancel implements Synthesizer.
func (m *MockSynthesizer) Cancel() error {
	m.mu.Lock()
	m.cancels++
	m.mu.Unlock()
	return nil
}

// Spoken returns the texts passed to Speak, in order.
func (m *MockSynthesizer) Spoken() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.spoken...)
}

// Cancels returns how many times Cancel was called.
func (m *MockSynthesizer) Cancels() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cancels
}

var (
	_ Recognizer  = (*MockRecognizer)(nil)
	_ Synthesizer = (*MockSynthesizer)(nil)
)

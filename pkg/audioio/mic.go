package audioio

import (
	"context"
	"sync"
)

// Microphone is an exclusive lease over the candidate's capture device.
// At most one consumer holds it at a time.
type Microphone struct {
	sem chan struct{}

	mu     sync.Mutex
	holder string
	gen    uint64
}

// NewMicrophone creates an unheld lease.
func NewMicrophone() *Microphone {
	return &Microphone{sem: make(chan struct{}, 1)}
}

// Acquire blocks until the lease is free or ctx is done.
// The returned release func is safe to call more than once.
func (m *Microphone) Acquire(ctx context.Context, owner string) (func(), error) {
	select {
	case m.sem <- struct{}{}:
		return m.granted(owner), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// TryAcquire takes the lease only if it is free.
func (m *Microphone) TryAcquire(owner string) (func(), bool) {
	select {
	case m.sem <- struct{}{}:
		return m.granted(owner), true
	default:
		return nil, false
	}
}

// Holder returns the current owner, or "" when free.
func (m *Microphone) Holder() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.holder
}

func (m *Microphone) granted(owner string) func() {
	m.mu.Lock()
	m.gen++
	gen := m.gen
	m.holder = owner
	m.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			if m.gen == gen {
				m.holder = ""
			}
			m.mu.Unlock()
			<-m.sem
		})
	}
}

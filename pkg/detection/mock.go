package detection

import "sync"

// Mock is a Detector for tests. By default it reports Faces faces per call.
type Mock struct {
	mu     sync.Mutex
	faces  int
	calls  int
	closed bool

	// DetectFunc overrides the default behavior when set.
	DetectFunc func(jpeg []byte) ([]Detection, error)
}

// NewMock creates a mock that reports the given number of faces.
func NewMock(faces int) *Mock {
	return &Mock{faces: faces}
}

// SetFaces changes how many faces subsequent calls report.
func (m *Mock) SetFaces(n int) {
	m.mu.Lock()
	m.faces = n
	m.mu.Unlock()
}

// Detect returns the configured faces.
func (m *Mock) Detect(jpeg []byte) ([]Detection, error) {
	m.mu.Lock()
	m.calls++
	faces := m.faces
	fn := m.DetectFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(jpeg)
	}

	dets := make([]Detection, faces)
	for i := range dets {
		dets[i] = Detection{X: float64(i) * 0.3, Y: 0.2, W: 0.2, H: 0.3, Confidence: 0.9}
	}
	return dets, nil
}

// Count returns the number of faces Detect reports.
func (m *Mock) Count(jpeg []byte) (int, error) {
	dets, err := m.Detect(jpeg)
	return len(dets), err
}

// Calls returns how many times Detect ran.
func (m *Mock) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Close marks the mock closed.
func (m *Mock) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}

// Closed reports whether Close was called.
func (m *Mock) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

var _ Detector = (*Mock)(nil)

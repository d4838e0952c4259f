package detection

import (
	"errors"
	"testing"
)

func TestDetection_Area(t *testing.T) {
	tests := []struct {
		name   string
		det    Detection
		expect float64
	}{
		{name: "quarter of image", det: Detection{W: 0.5, H: 0.5}, expect: 0.25},
		{name: "small face", det: Detection{W: 0.1, H: 0.2}, expect: 0.02},
		{name: "empty box", det: Detection{}, expect: 0},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.det.Area(); got < tc.expect-1e-9 || got > tc.expect+1e-9 {
				t.Errorf("Area: got %.4f, want %.4f", got, tc.expect)
			}
		})
	}
}

func TestFilter(t *testing.T) {
	dets := []Detection{
		{W: 0.2, H: 0.3, Confidence: 0.95},
		{W: 0.2, H: 0.3, Confidence: 0.4},
		{W: 0.01, H: 0.01, Confidence: 0.99},
	}

	got := Filter(dets, 0.6, 0.002)
	if len(got) != 1 {
		t.Fatalf("Filter kept %d detections, want 1", len(got))
	}
	if got[0].Confidence != 0.95 {
		t.Errorf("kept wrong detection: %+v", got[0])
	}
	if dets[1].Confidence != 0.4 {
		t.Error("Filter modified its input")
	}
}

func TestConfigValidate(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}

	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"no model", func(c *Config) { c.ModelPath = "" }},
		{"zero threshold", func(c *Config) { c.ConfidenceThresh = 0 }},
		{"threshold above one", func(c *Config) { c.ConfidenceThresh = 1.5 }},
		{"zero width", func(c *Config) { c.InputWidth = 0 }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.modify(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestMock(t *testing.T) {
	m := NewMock(2)
	dets, err := m.Detect(nil)
	if err != nil || len(dets) != 2 {
		t.Fatalf("Detect = %d, %v", len(dets), err)
	}

	m.SetFaces(1)
	dets, _ = m.Detect(nil)
	if len(dets) != 1 {
		t.Errorf("after SetFaces(1) got %d faces", len(dets))
	}

	boom := errors.New("boom")
	m.DetectFunc = func([]byte) ([]Detection, error) { return nil, boom }
	if _, err := m.Detect(nil); !errors.Is(err, boom) {
		t.Errorf("DetectFunc not used: %v", err)
	}
	if m.Calls() != 3 {
		t.Errorf("Calls() = %d, want 3", m.Calls())
	}

	m.Close()
	if !m.Closed() {
		t.Error("Closed() = false after Close")
	}
}

func TestMockCount(t *testing.T) {
	m := NewMock(3)
	n, err := m.Count(nil)
	if err != nil || n != 3 {
		t.Fatalf("Count = %d, %v, want 3", n, err)
	}

	boom := errors.New("boom")
	m.DetectFunc = func([]byte) ([]Detection, error) { return nil, boom }
	if _, err := m.Count(nil); !errors.Is(err, boom) {
		t.Errorf("Count error = %v, want boom", err)
	}
}

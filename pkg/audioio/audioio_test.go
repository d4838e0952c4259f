package audioio

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"
)

func TestAudioChunk_Amplitude(t *testing.T) {
	chunk := AudioChunk{Samples: []int16{0, 16384, -32768, 0}, SampleRate: 16000, Channels: 1}

	if got := chunk.Peak(); got != 1.0 {
		t.Errorf("Peak() = %v, want 1.0", got)
	}
	if got := chunk.Mean(); got != 0.375 {
		t.Errorf("Mean() = %v, want 0.375", got)
	}

	empty := AudioChunk{}
	if empty.Peak() != 0 || empty.Mean() != 0 {
		t.Error("empty chunk should have zero amplitude")
	}
}

func TestAudioChunk_BytesRoundTrip(t *testing.T) {
	chunk := AudioChunk{Samples: []int16{1, -1, 32767, -32768}, SampleRate: 16000, Channels: 1}

	var back AudioChunk
	back.FromBytes(chunk.Bytes(), 16000, 1)
	for i := range chunk.Samples {
		if back.Samples[i] != chunk.Samples[i] {
			t.Errorf("sample %d = %d, want %d", i, back.Samples[i], chunk.Samples[i])
		}
	}
	if d := (&AudioChunk{Samples: make([]int16, 16000), SampleRate: 16000, Channels: 1}).Duration(); d != 1.0 {
		t.Errorf("Duration() = %v, want 1.0", d)
	}
}

func TestResample(t *testing.T) {
	in := make([]int16, 480)
	for i := range in {
		in[i] = int16(i)
	}
	out := Resample(in, 48000, 16000)
	if len(out) != 160 {
		t.Fatalf("len = %d, want 160", len(out))
	}
	if out[1] != 3 {
		t.Errorf("out[1] = %d, want 3", out[1])
	}
	if same := Resample(in, 16000, 16000); len(same) != len(in) {
		t.Error("same-rate resample changed length")
	}
}

func TestStereoToMono(t *testing.T) {
	mono := StereoToMono([]int16{100, 300, -50, 50})
	if len(mono) != 2 || mono[0] != 200 || mono[1] != 0 {
		t.Errorf("StereoToMono = %v", mono)
	}
}

func TestConfigValidate(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.BufferSize() != 320 {
		t.Errorf("BufferSize() = %d, want 320", cfg.BufferSize())
	}

	bad := cfg
	bad.QueueDepth = 0
	if err := bad.Validate(); err == nil {
		t.Error("expected error for zero queue depth")
	}
}

func TestNewSource(t *testing.T) {
	cfg := DefaultConfig()

	src, err := NewSource(cfg, nil)
	if err != nil {
		t.Fatalf("NewSource: %v", err)
	}
	if src.Name() != "webrtc" {
		t.Errorf("Name() = %q", src.Name())
	}

	cfg.Backend = "alsa"
	if _, err := NewSource(cfg, nil); err == nil {
		t.Error("expected error for unsupported backend")
	}
}

func TestMockSource_SineWave(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Backend = BackendMock
	cfg.BufferDuration = 10 * time.Millisecond

	src := NewMockSource(cfg, nil, WithSineWave(440, 0.5))
	defer src.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if err := src.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := src.Start(ctx); err != nil {
		t.Fatalf("second Start: %v", err)
	}

	chunk, err := src.Read(ctx)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(chunk.Samples) != cfg.BufferSize() {
		t.Errorf("got %d samples, want %d", len(chunk.Samples), cfg.BufferSize())
	}
	if peak := chunk.Peak(); peak < 0.3 || peak > 0.51 {
		t.Errorf("Peak() = %v, want about 0.5", peak)
	}

	if err := src.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if err := src.Stop(); err != nil {
		t.Fatalf("second Stop: %v", err)
	}

	for {
		if _, err := src.Read(ctx); err != nil {
			if !errors.Is(err, io.EOF) {
				t.Errorf("Read after stop = %v, want io.EOF", err)
			}
			break
		}
	}

	src.Close()
	if err := src.Start(ctx); !errors.Is(err, io.ErrClosedPipe) {
		t.Errorf("Start after Close = %v, want io.ErrClosedPipe", err)
	}
}

func TestChannelSource(t *testing.T) {
	cfg := DefaultConfig()
	cfg.QueueDepth = 2
	src := NewChannelSource(cfg, nil)

	if src.Push(AudioChunk{}) {
		t.Error("Push before Start should drop")
	}

	if err := src.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !src.Push(AudioChunk{Samples: []int16{1}}) || !src.Push(AudioChunk{Samples: []int16{2}}) {
		t.Fatal("Push into empty queue failed")
	}
	if src.Push(AudioChunk{Samples: []int16{3}}) {
		t.Error("Push into full queue should drop")
	}
	if src.Overruns() != 1 {
		t.Errorf("Overruns() = %d, want 1", src.Overruns())
	}

	ctx := context.Background()
	chunk, err := src.Read(ctx)
	if err != nil || chunk.Samples[0] != 1 {
		t.Fatalf("Read = %v, %v", chunk, err)
	}

	src.Close()
	src.Close()
	if _, err := src.Read(ctx); err != nil {
		t.Fatalf("buffered chunk lost after close: %v", err)
	}
	if _, err := src.Read(ctx); !errors.Is(err, io.EOF) {
		t.Errorf("Read after drain = %v, want io.EOF", err)
	}
	if src.Push(AudioChunk{}) {
		t.Error("Push after Close should drop")
	}
}

func TestMicrophone_Exclusive(t *testing.T) {
	mic := NewMicrophone()

	release, ok := mic.TryAcquire("speech")
	if !ok {
		t.Fatal("TryAcquire on free mic failed")
	}
	if mic.Holder() != "speech" {
		t.Errorf("Holder() = %q", mic.Holder())
	}
	if _, ok := mic.TryAcquire("noise"); ok {
		t.Fatal("second consumer acquired a held mic")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := mic.Acquire(ctx, "noise"); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Acquire on held mic = %v, want deadline exceeded", err)
	}

	release()
	release()
	if mic.Holder() != "" {
		t.Errorf("Holder() after release = %q", mic.Holder())
	}

	release2, err := mic.Acquire(context.Background(), "noise")
	if err != nil {
		t.Fatalf("Acquire after release: %v", err)
	}
	if _, ok := mic.TryAcquire("speech"); ok {
		t.Error("double release freed the lease twice")
	}
	release2()
}

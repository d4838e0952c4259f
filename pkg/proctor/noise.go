package proctor

import (
	"time"

	"github.com/teslashibe/candidly/pkg/audioio"
)

// NoiseKind distinguishes short loud sounds from sustained background noise.
type NoiseKind string

const (
	NoiseSpike      NoiseKind = "spike"
	NoiseBackground NoiseKind = "background"
)

// NoiseEvent is an anomalous audio observation.
type NoiseEvent struct {
	Kind  NoiseKind `json:"kind"`
	Level float64   `json:"level"`
	At    time.Time `json:"at"`
}

// noiseAnalyzer tracks peak and running average amplitude over a chunk window.
type noiseAnalyzer struct {
	spike      float64
	background float64
	cooldown   time.Duration

	window []float64
	next   int
	filled int
	sum    float64

	lastFired map[NoiseKind]time.Time
}

func newNoiseAnalyzer(cfg Config) *noiseAnalyzer {
	return &noiseAnalyzer{
		spike:      cfg.SpikeThreshold,
		background: cfg.BackgroundThreshold,
		cooldown:   cfg.NoiseCooldown,
		window:     make([]float64, cfg.NoiseWindow),
		lastFired:  make(map[NoiseKind]time.Time),
	}
}

// observe folds one chunk into the window and returns any events it triggers.
func (n *noiseAnalyzer) observe(chunk audioio.AudioChunk, now time.Time) []NoiseEvent {
	if len(chunk.Samples) == 0 {
		return nil
	}

	peak := chunk.Peak()
	mean := chunk.Mean()

	n.sum -= n.window[n.next]
	n.window[n.next] = mean
	n.sum += mean
	n.next = (n.next + 1) % len(n.window)
	if n.filled < len(n.window) {
		n.filled++
	}
	avg := n.sum / float64(n.filled)

	var events []NoiseEvent
	if peak > n.spike && n.ready(NoiseSpike, now) {
		events = append(events, NoiseEvent{Kind: NoiseSpike, Level: peak, At: now})
	}
	if avg > n.background && n.ready(NoiseBackground, now) {
		events = append(events, NoiseEvent{Kind: NoiseBackground, Level: avg, At: now})
	}
	return events
}

func (n *noiseAnalyzer) ready(kind NoiseKind, now time.Time) bool {
	if last, ok := n.lastFired[kind]; ok && now.Sub(last) < n.cooldown {
		return false
	}
	n.lastFired[kind] = now
	return true
}

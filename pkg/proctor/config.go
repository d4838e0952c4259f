package proctor

import (
	"fmt"
	"log/slog"
	"time"
)

// Default values.
const (
	DefaultFaceInterval        = 2 * time.Second
	DefaultMaxFaces            = 1
	DefaultSpikeThreshold      = 0.15
	DefaultBackgroundThreshold = 0.05
	DefaultNoiseWindow         = 50
	DefaultNoiseCooldown       = 2 * time.Second
	DefaultReadyTimeout        = 15 * time.Second
)

// Config holds monitor configuration.
type Config struct {
	// FaceInterval is the face-watch sampling period.
	FaceInterval time.Duration

	// MaxFaces is the largest face count that is not a violation.
	MaxFaces int

	// NoiseWatch enables audio anomaly analysis.
	NoiseWatch bool

	// SpikeThreshold is the normalized peak above which a spike fires.
	SpikeThreshold float64

	// BackgroundThreshold is the normalized running average above which
	// background noise fires.
	BackgroundThreshold float64

	// NoiseWindow is the number of chunks in the running average.
	NoiseWindow int

	// NoiseCooldown suppresses repeat events of the same kind.
	NoiseCooldown time.Duration

	// ReadyTimeout bounds the wait for media tracks to arrive.
	ReadyTimeout time.Duration

	Logger *slog.Logger
}

// DefaultConfig returns the default monitor configuration.
func DefaultConfig() Config {
	return Config{
		FaceInterval:        DefaultFaceInterval,
		MaxFaces:            DefaultMaxFaces,
		NoiseWatch:          true,
		SpikeThreshold:      DefaultSpikeThreshold,
		BackgroundThreshold: DefaultBackgroundThreshold,
		NoiseWindow:         DefaultNoiseWindow,
		NoiseCooldown:       DefaultNoiseCooldown,
		ReadyTimeout:        DefaultReadyTimeout,
		Logger:              slog.Default(),
	}
}

// Option configures a Monitor.
type Option func(*Config)

// WithFaceInterval sets the face sampling period.
func WithFaceInterval(d time.Duration) Option {
	return func(c *Config) { c.FaceInterval = d }
}

// WithMaxFaces sets the allowed face count.
func WithMaxFaces(n int) Option {
	return func(c *Config) { c.MaxFaces = n }
}

// WithNoiseThresholds sets the spike and background thresholds.
func WithNoiseThresholds(spike, background float64) Option {
	return func(c *Config) {
		c.SpikeThreshold = spike
		c.BackgroundThreshold = background
	}
}

// WithNoiseWindow sets the running average length in chunks.
func WithNoiseWindow(n int) Option {
	return func(c *Config) { c.NoiseWindow = n }
}

// WithNoiseCooldown sets the minimum gap between events of one kind.
func WithNoiseCooldown(d time.Duration) Option {
	return func(c *Config) { c.NoiseCooldown = d }
}

// WithNoiseWatch enables or disables audio analysis.
func WithNoiseWatch(enabled bool) Option {
	return func(c *Config) { c.NoiseWatch = enabled }
}

// WithReadyTimeout bounds the wait for media readiness.
func WithReadyTimeout(d time.Duration) Option {
	return func(c *Config) { c.ReadyTimeout = d }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Config) { c.Logger = l }
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.FaceInterval <= 0 {
		return fmt.Errorf("proctor: face interval must be positive, got %v", c.FaceInterval)
	}
	if c.MaxFaces < 1 {
		return fmt.Errorf("proctor: max faces must be at least 1, got %d", c.MaxFaces)
	}
	if c.SpikeThreshold <= 0 || c.SpikeThreshold > 1 {
		return fmt.Errorf("proctor: spike threshold must be in (0,1], got %v", c.SpikeThreshold)
	}
	if c.BackgroundThreshold <= 0 || c.BackgroundThreshold > 1 {
		return fmt.Errorf("proctor: background threshold must be in (0,1], got %v", c.BackgroundThreshold)
	}
	if c.NoiseWindow < 1 {
		return fmt.Errorf("proctor: noise window must be at least 1, got %d", c.NoiseWindow)
	}
	if c.ReadyTimeout <= 0 {
		return fmt.Errorf("proctor: ready timeout must be positive, got %v", c.ReadyTimeout)
	}
	return nil
}

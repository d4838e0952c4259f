package speechio

import (
	"fmt"
	"log/slog"
	"time"
)

// Default values.
const (
	DefaultSettleDelay = 1500 * time.Millisecond
	DefaultLocale      = "en-US"
)

// Config holds adapter configuration.
type Config struct {
	// SettleDelay is how long the guard stays raised after playback ends,
	// so trailing audio and room echo are not captured as candidate speech.
	SettleDelay time.Duration

	// Locale is fixed for the session.
	Locale string

	// Rate, Pitch and Volume are fixed synthesis prosody.
	Rate   float64
	Pitch  float64
	Volume float64

	Logger *slog.Logger
}

// DefaultConfig returns the default adapter configuration.
func DefaultConfig() Config {
	return Config{
		SettleDelay: DefaultSettleDelay,
		Locale:      DefaultLocale,
		Rate:        1.0,
		Pitch:       1.0,
		Volume:      1.0,
		Logger:      slog.Default(),
	}
}

// Option configures the adapter.
type Option func(*Config)

// WithSettleDelay sets the post-playback echo guard window.
func WithSettleDelay(d time.Duration) Option {
	return func(c *Config) { c.SettleDelay = d }
}

// WithLocale sets the recognition and synthesis locale.
func WithLocale(locale string) Option {
	return func(c *Config) { c.Locale = locale }
}

// WithProsody sets synthesis rate, pitch and volume.
func WithProsody(rate, pitch, volume float64) Option {
	return func(c *Config) {
		c.Rate = rate
		c.Pitch = pitch
		c.Volume = volume
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Config) { c.Logger = l }
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.SettleDelay < 0 {
		return fmt.Errorf("speechio: settle delay must not be negative, got %v", c.SettleDelay)
	}
	if c.Locale == "" {
		return fmt.Errorf("speechio: locale is required")
	}
	if c.Rate <= 0 || c.Volume < 0 || c.Volume > 1 {
		return fmt.Errorf("speechio: invalid prosody rate=%v volume=%v", c.Rate, c.Volume)
	}
	return nil
}

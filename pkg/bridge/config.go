package bridge

import (
	"errors"
	"log/slog"
	"time"

	"github.com/teslashibe/candidly/pkg/media"
)

// Config configures the speech bridge.
type Config struct {
	// ConnectTimeout bounds how long a request waits for a host to attach.
	ConnectTimeout time.Duration

	// WriteTimeout bounds a single websocket write.
	WriteTimeout time.Duration

	// Locale is announced to the host in the hello message.
	Locale string

	// Constraints are the capture settings the host requests from the
	// candidate's devices.
	Constraints media.Constraints

	Logger *slog.Logger
}

// Option configures the bridge.
type Option func(*Config)

// WithConnectTimeout sets how long requests wait for a host.
func WithConnectTimeout(d time.Duration) Option {
	return func(c *Config) { c.ConnectTimeout = d }
}

// WithLocale sets the announced locale.
func WithLocale(locale string) Option {
	return func(c *Config) { c.Locale = locale }
}

// WithConstraints sets the capture constraints.
func WithConstraints(mc media.Constraints) Option {
	return func(c *Config) { c.Constraints = mc }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Config) { c.Logger = l }
}

// DefaultConfig returns default bridge settings.
func DefaultConfig() Config {
	return Config{
		ConnectTimeout: 10 * time.Second,
		WriteTimeout:   5 * time.Second,
		Locale:         "en-US",
		Constraints:    media.DefaultConstraints(),
		Logger:         slog.Default(),
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.ConnectTimeout <= 0 {
		return errors.New("bridge: connect timeout must be positive")
	}
	if c.WriteTimeout <= 0 {
		return errors.New("bridge: write timeout must be positive")
	}
	return nil
}

package interview

import (
	"errors"
	"log/slog"
	"time"
)

// DefaultClosingPhrase is the text the backend uses to end an interview.
const DefaultClosingPhrase = "concludes our interview"

// Config configures an Orchestrator.
type Config struct {
	// ClosingPhrase ends the interview when found in an AI reply
	// (case-insensitive). Empty disables phrase matching.
	ClosingPhrase string

	// NoSpeechBackoff is the wait before listening again after silence.
	NoSpeechBackoff time.Duration

	// NetworkBackoff is the wait after a recognition network error.
	NetworkBackoff time.Duration

	// BusyBackoff is the wait when listen raced a speaking guard.
	BusyBackoff time.Duration

	// RetryPrompt is spoken when a chat call fails so the candidate
	// repeats their answer. It is not added to the history.
	RetryPrompt string

	// CheckStatus refuses to start a session the backend marks completed.
	CheckStatus bool

	// SubmitTimeout bounds the final submission.
	SubmitTimeout time.Duration

	// RecordingURL is attached to the submission when set.
	RecordingURL string

	Logger *slog.Logger
}

// Option configures an Orchestrator.
type Option func(*Config)

// DefaultConfig returns default orchestrator settings.
func DefaultConfig() Config {
	return Config{
		ClosingPhrase:   DefaultClosingPhrase,
		NoSpeechBackoff: 500 * time.Millisecond,
		NetworkBackoff:  2 * time.Second,
		BusyBackoff:     250 * time.Millisecond,
		RetryPrompt:     "Sorry, I had trouble with that. Could you please repeat your answer?",
		CheckStatus:     true,
		SubmitTimeout:   30 * time.Second,
		Logger:          slog.Default(),
	}
}

// WithClosingPhrase sets the termination phrase.
func WithClosingPhrase(p string) Option {
	return func(c *Config) { c.ClosingPhrase = p }
}

// WithBackoff sets the listen retry waits for silence and network errors.
func WithBackoff(noSpeech, network time.Duration) Option {
	return func(c *Config) {
		c.NoSpeechBackoff = noSpeech
		c.NetworkBackoff = network
	}
}

// WithRetryPrompt sets the line spoken after a failed chat call.
func WithRetryPrompt(p string) Option {
	return func(c *Config) { c.RetryPrompt = p }
}

// WithStatusCheck enables or disables the pre-start status lookup.
func WithStatusCheck(enabled bool) Option {
	return func(c *Config) { c.CheckStatus = enabled }
}

// WithSubmitTimeout sets the submission timeout.
func WithSubmitTimeout(d time.Duration) Option {
	return func(c *Config) { c.SubmitTimeout = d }
}

// WithRecordingURL attaches a recording link to the submission.
func WithRecordingURL(u string) Option {
	return func(c *Config) { c.RecordingURL = u }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Config) { c.Logger = l }
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.NoSpeechBackoff < 0 || c.NetworkBackoff < 0 || c.BusyBackoff < 0 {
		return errors.New("interview: backoff must not be negative")
	}
	if c.SubmitTimeout <= 0 {
		return errors.New("interview: submit timeout must be positive")
	}
	return nil
}

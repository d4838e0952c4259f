// Package media receives the candidate's camera and microphone over
// WebRTC and exposes them to the proctoring monitor: video as on-demand
// JPEG frames, audio as 16 kHz PCM chunks.
package media

import (
	"errors"
	"log/slog"
	"time"
)

// DefaultSTUNURL is used when no ICE servers are configured.
const DefaultSTUNURL = "stun:stun.l.google.com:19302"

// Sentinel errors.
var (
	ErrInvalidOffer = errors.New("media: invalid SDP offer")
	ErrNoOffer      = errors.New("media: no media offer received")
	ErrNoFrame      = errors.New("media: no video frame yet")
	ErrReleased     = errors.New("media: peer released")
)

// Constraints are the capture settings requested from the candidate's
// device.
type Constraints struct {
	Video VideoConstraints `json:"video"`
	Audio AudioConstraints `json:"audio"`
}

// VideoConstraints are the requested camera settings.
type VideoConstraints struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// AudioConstraints are the requested microphone processing settings.
// Noise suppression and gain control stay off so the noise watch sees
// the raw room level.
type AudioConstraints struct {
	EchoCancellation bool `json:"echoCancellation"`
	NoiseSuppression bool `json:"noiseSuppression"`
	AutoGainControl  bool `json:"autoGainControl"`
}

// DefaultConstraints returns 640x480 video with echo cancellation only.
func DefaultConstraints() Constraints {
	return Constraints{
		Video: VideoConstraints{Width: 640, Height: 480},
		Audio: AudioConstraints{EchoCancellation: true},
	}
}

// Config configures the WebRTC ingest.
type Config struct {
	// ICEServers are STUN/TURN URLs offered to the peer connection.
	ICEServers []string

	// OfferTimeout bounds how long Acquire waits for the candidate's offer.
	OfferTimeout time.Duration

	// KeyframeInterval is how often a keyframe is requested from the
	// sender so decoding never needs a long GOP.
	KeyframeInterval time.Duration

	// SampleRate is the PCM rate delivered to the noise watch.
	SampleRate int

	// Decoder turns H.264 into JPEG. Nil uses ffmpeg.
	Decoder Decoder

	Logger *slog.Logger
}

// Option configures the ingest.
type Option func(*Config)

// WithICEServers sets the ICE server URLs.
func WithICEServers(urls ...string) Option {
	return func(c *Config) { c.ICEServers = urls }
}

// WithOfferTimeout sets how long Acquire waits for an offer.
func WithOfferTimeout(d time.Duration) Option {
	return func(c *Config) { c.OfferTimeout = d }
}

// WithKeyframeInterval sets the keyframe request interval.
func WithKeyframeInterval(d time.Duration) Option {
	return func(c *Config) { c.KeyframeInterval = d }
}

// WithDecoder sets the video decoder.
func WithDecoder(d Decoder) Option {
	return func(c *Config) { c.Decoder = d }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Config) { c.Logger = l }
}

// DefaultConfig returns default ingest settings.
func DefaultConfig() Config {
	return Config{
		ICEServers:       []string{DefaultSTUNURL},
		OfferTimeout:     2 * time.Minute,
		KeyframeInterval: 2 * time.Second,
		SampleRate:       16000,
		Logger:           slog.Default(),
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.OfferTimeout <= 0 {
		return errors.New("media: offer timeout must be positive")
	}
	if c.KeyframeInterval <= 0 {
		return errors.New("media: keyframe interval must be positive")
	}
	if c.SampleRate <= 0 {
		return errors.New("media: sample rate must be positive")
	}
	return nil
}

// Package config loads process configuration from the environment and
// an optional .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/url"
	"time"

	"github.com/joho/godotenv"

	env "github.com/teslashibe/candidly/internal/config"
	"github.com/teslashibe/candidly/pkg/speechio"
)

// Defaults mirrored from packages that link OpenCV or libopus.
const (
	DefaultClosingPhrase   = "concludes our interview"
	DefaultFaceModel       = "models/face_detection_yunet.onnx"
	DefaultFaceInterval    = 2 * time.Second
	DefaultMaxFaces        = 1
	DefaultNoiseSpike      = 0.15
	DefaultNoiseBackground = 0.05
	DefaultSTUNURL         = "stun:stun.l.google.com:19302"
	DefaultOfferTimeout    = 2 * time.Minute
)

// Environment variable names.
const (
	EnvSessionToken    = "CANDIDLY_SESSION_TOKEN"
	EnvCandidateID     = "CANDIDLY_CANDIDATE_ID"
	EnvCandidateName   = "CANDIDLY_CANDIDATE_NAME"
	EnvBackendURL      = "CANDIDLY_BACKEND_URL"
	EnvListenAddr      = "CANDIDLY_LISTEN_ADDR"
	EnvLogLevel        = "CANDIDLY_LOG_LEVEL"
	EnvLocale          = "CANDIDLY_LOCALE"
	EnvSettleDelay     = "CANDIDLY_SETTLE_DELAY"
	EnvFaceInterval    = "CANDIDLY_FACE_INTERVAL"
	EnvMaxFaces        = "CANDIDLY_MAX_FACES"
	EnvNoiseSpike      = "CANDIDLY_NOISE_SPIKE"
	EnvNoiseBackground = "CANDIDLY_NOISE_BACKGROUND"
	EnvNoiseWatch      = "CANDIDLY_NOISE_WATCH"
	EnvFaceModel       = "CANDIDLY_FACE_MODEL"
	EnvClosingPhrase   = "CANDIDLY_CLOSING_PHRASE"
	EnvHTTPTimeout     = "CANDIDLY_HTTP_TIMEOUT"
	EnvSTUNURL         = "CANDIDLY_STUN_URL"
	EnvOfferTimeout    = "CANDIDLY_OFFER_TIMEOUT"
	EnvRecordingURL    = "CANDIDLY_RECORDING_URL"
	EnvStaticDir       = "CANDIDLY_STATIC_DIR"
)

// Config holds everything the interview process needs.
// Flag parsing is done in cmd/interview; this struct is data only.
type Config struct {
	// Session identity.
	SessionToken  string
	CandidateID   string
	CandidateName string

	// Backend.
	BackendURL  string
	HTTPTimeout time.Duration

	// HTTP surface.
	ListenAddr string
	StaticDir  string
	LogLevel   string

	// Speech.
	Locale        string
	SettleDelay   time.Duration
	ClosingPhrase string

	// Proctoring.
	FaceInterval    time.Duration
	MaxFaces        int
	NoiseSpike      float64
	NoiseBackground float64
	NoiseWatch      bool
	FaceModel       string

	// Media.
	STUNURL      string
	OfferTimeout time.Duration
	RecordingURL string
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		HTTPTimeout:     30 * time.Second,
		ListenAddr:      ":8080",
		LogLevel:        "info",
		Locale:          speechio.DefaultLocale,
		SettleDelay:     speechio.DefaultSettleDelay,
		ClosingPhrase:   DefaultClosingPhrase,
		FaceInterval:    DefaultFaceInterval,
		MaxFaces:        DefaultMaxFaces,
		NoiseSpike:      DefaultNoiseSpike,
		NoiseBackground: DefaultNoiseBackground,
		NoiseWatch:      true,
		FaceModel:       DefaultFaceModel,
		STUNURL:         DefaultSTUNURL,
		OfferTimeout:    DefaultOfferTimeout,
	}
}

// Load reads envFile (".env" when empty; a missing file is fine) and
// then the environment.
func Load(envFile string) (Config, error) {
	explicit := envFile != ""
	if !explicit {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil {
		if explicit || !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("config: load %s: %w", envFile, err)
		}
		slog.Debug("no env file", "path", envFile)
	}
	return FromEnv()
}

// FromEnv builds the configuration from environment variables only.
func FromEnv() (Config, error) {
	c := Default()
	var errs []error
	collect := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}
	var err error

	c.SessionToken = env.String(EnvSessionToken, "")
	c.CandidateID = env.String(EnvCandidateID, "")
	c.CandidateName = env.String(EnvCandidateName, "")

	c.BackendURL = env.String(EnvBackendURL, "")
	c.HTTPTimeout, err = env.Duration(EnvHTTPTimeout, c.HTTPTimeout)
	collect(err)

	c.ListenAddr = env.String(EnvListenAddr, c.ListenAddr)
	c.StaticDir = env.String(EnvStaticDir, "")
	c.LogLevel = env.String(EnvLogLevel, c.LogLevel)

	c.Locale = env.String(EnvLocale, c.Locale)
	c.SettleDelay, err = env.Duration(EnvSettleDelay, c.SettleDelay)
	collect(err)
	c.ClosingPhrase = env.String(EnvClosingPhrase, c.ClosingPhrase)

	c.FaceInterval, err = env.Duration(EnvFaceInterval, c.FaceInterval)
	collect(err)
	c.MaxFaces, err = env.Int(EnvMaxFaces, c.MaxFaces)
	collect(err)
	c.NoiseSpike, err = env.Float(EnvNoiseSpike, c.NoiseSpike)
	collect(err)
	c.NoiseBackground, err = env.Float(EnvNoiseBackground, c.NoiseBackground)
	collect(err)
	c.NoiseWatch, err = env.Bool(EnvNoiseWatch, c.NoiseWatch)
	collect(err)
	c.FaceModel = env.String(EnvFaceModel, c.FaceModel)

	c.STUNURL = env.String(EnvSTUNURL, c.STUNURL)
	c.OfferTimeout, err = env.Duration(EnvOfferTimeout, c.OfferTimeout)
	collect(err)
	c.RecordingURL = env.String(EnvRecordingURL, "")

	if len(errs) > 0 {
		return c, fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return c, nil
}

// Validate checks that required configuration is present and sane.
func (c *Config) Validate() error {
	if c.SessionToken == "" {
		return &ConfigError{Field: "SessionToken", Message: "session token is required (-session or " + EnvSessionToken + ")"}
	}
	if c.BackendURL == "" {
		return &ConfigError{Field: "BackendURL", Message: EnvBackendURL + " environment variable is required"}
	}
	u, err := url.Parse(c.BackendURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return &ConfigError{Field: "BackendURL", Message: fmt.Sprintf("%s must be an http(s) URL, got %q", EnvBackendURL, c.BackendURL)}
	}
	if c.ListenAddr == "" {
		return &ConfigError{Field: "ListenAddr", Message: "listen address is required"}
	}
	if c.HTTPTimeout <= 0 {
		return &ConfigError{Field: "HTTPTimeout", Message: "HTTP timeout must be positive"}
	}
	if c.SettleDelay < 0 {
		return &ConfigError{Field: "SettleDelay", Message: "settle delay cannot be negative"}
	}
	if c.FaceInterval <= 0 {
		return &ConfigError{Field: "FaceInterval", Message: "face interval must be positive"}
	}
	if c.MaxFaces < 1 {
		return &ConfigError{Field: "MaxFaces", Message: "max faces must be at least 1"}
	}
	if c.NoiseSpike <= 0 || c.NoiseSpike > 1 {
		return &ConfigError{Field: "NoiseSpike", Message: "noise spike threshold must be in (0,1]"}
	}
	if c.NoiseBackground <= 0 || c.NoiseBackground > 1 {
		return &ConfigError{Field: "NoiseBackground", Message: "noise background threshold must be in (0,1]"}
	}
	if c.OfferTimeout <= 0 {
		return &ConfigError{Field: "OfferTimeout", Message: "offer timeout must be positive"}
	}
	return nil
}

// ConfigError represents a configuration validation error.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return e.Message
}

// Package web serves the interview's HTTP surface: the operator API and
// status stream, the candidate page's media offer and speech bridge
// endpoints, and Prometheus metrics.
package web

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/websocket/v2"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/teslashibe/candidly/pkg/hub"
	"github.com/teslashibe/candidly/pkg/interview"
	"github.com/teslashibe/candidly/pkg/media"
	"github.com/teslashibe/candidly/pkg/session"
)

// Controller is the running interview. *interview.Orchestrator
// implements it.
type Controller interface {
	Snapshot() interview.Snapshot
	History() []session.Turn
	Flags() session.Flags
	End()
	RequestListen() error
	RetrySubmit(ctx context.Context) error
	OnEvent(fn func(interview.Event))
}

// OfferHandler answers the candidate page's WebRTC offer. *media.Ingest
// implements it.
type OfferHandler interface {
	HandleOffer(ctx context.Context, offer media.SessionDescription) (media.SessionDescription, error)
}

// Config configures the server.
type Config struct {
	// Addr is the listen address.
	Addr string

	// StaticDir, if set, is served at / for the candidate page.
	StaticDir string

	// RequestTimeout bounds offer and submit-retry handling.
	RequestTimeout time.Duration

	Logger *slog.Logger
}

// Option configures the server.
type Option func(*Config)

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	return func(c *Config) { c.Addr = addr }
}

// WithStaticDir serves dir at /.
func WithStaticDir(dir string) Option {
	return func(c *Config) { c.StaticDir = dir }
}

// WithRequestTimeout sets the timeout for slow handlers.
func WithRequestTimeout(d time.Duration) Option {
	return func(c *Config) { c.RequestTimeout = d }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Config) { c.Logger = l }
}

// DefaultConfig returns default server settings.
func DefaultConfig() Config {
	return Config{
		Addr:           ":8080",
		RequestTimeout: 30 * time.Second,
		Logger:         slog.Default(),
	}
}

// Server is the HTTP surface of one interview.
type Server struct {
	app    *fiber.App
	config Config
	logger *slog.Logger

	ctl    Controller
	offers OfferHandler

	statusHub *hub.Hub
	ctx       context.Context
	cancel    context.CancelFunc
}

// NewServer wires routes for ctl. speech is the speech bridge's
// websocket handler; offers and speech may be nil when those
// endpoints are not served.
func NewServer(ctl Controller, offers OfferHandler, speech fiber.Handler, opts ...Option) (*Server, error) {
	if ctl == nil {
		return nil, errors.New("web: controller is required")
	}
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		config:    cfg,
		logger:    cfg.Logger.With("component", "web.Server"),
		ctl:       ctl,
		offers:    offers,
		statusHub: hub.New("status", cfg.Logger),
		ctx:       ctx,
		cancel:    cancel,
	}

	app := fiber.New(fiber.Config{
		AppName:               "Candidly Interview",
		DisableStartupMessage: true,
		ErrorHandler:          s.handleError,
	})
	app.Use(cors.New())

	if cfg.StaticDir != "" {
		app.Static("/", cfg.StaticDir)
	}

	api := app.Group("/api")
	api.Get("/status", s.handleStatus)
	api.Get("/transcript", s.handleTranscript)
	api.Get("/flags", s.handleFlags)
	api.Post("/end", s.handleEnd)
	api.Post("/listen", s.handleListen)
	api.Post("/submit/retry", s.handleRetrySubmit)
	if offers != nil {
		api.Post("/media/offer", s.handleOffer)
	}

	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/status", websocket.New(s.handleStatusWS))
	if speech != nil {
		app.Get("/ws/speech", speech)
	}

	s.app = app

	go s.statusHub.Run(ctx)
	ctl.OnEvent(s.publish)
	return s, nil
}

// App returns the underlying fiber app.
func (s *Server) App() *fiber.App {
	return s.app
}

// Start listens until ctx is cancelled or the listener fails.
func (s *Server) Start(ctx context.Context) error {
	s.logger.Info("http server listening", "addr", s.config.Addr)

	errCh := make(chan error, 1)
	go func() { errCh <- s.app.Listen(s.config.Addr) }()

	select {
	case err := <-errCh:
		s.cancel()
		return err
	case <-ctx.Done():
		return s.Shutdown()
	}
}

// Shutdown stops the server and the status hub.
func (s *Server) Shutdown() error {
	s.cancel()
	return s.app.ShutdownWithTimeout(5 * time.Second)
}

// publish forwards interview events to status subscribers.
func (s *Server) publish(ev interview.Event) {
	if err := s.statusHub.BroadcastJSON(ev); err != nil {
		s.logger.Warn("event not broadcast", "type", ev.Type, "error", err)
	}
}

// handleError renders errors as {"error": ...}.
func (s *Server) handleError(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
	}
	if code >= fiber.StatusInternalServerError {
		s.logger.Error("request failed", "path", c.Path(), "error", err)
	}
	return c.Status(code).JSON(fiber.Map{"error": err.Error()})
}

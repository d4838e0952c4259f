package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	ilog "github.com/teslashibe/candidly/internal/log"
	"github.com/teslashibe/candidly/pkg/audioio"
	"github.com/teslashibe/candidly/pkg/backend"
	"github.com/teslashibe/candidly/pkg/bridge"
	"github.com/teslashibe/candidly/pkg/config"
	"github.com/teslashibe/candidly/pkg/detection"
	"github.com/teslashibe/candidly/pkg/interview"
	"github.com/teslashibe/candidly/pkg/media"
	"github.com/teslashibe/candidly/pkg/proctor"
	"github.com/teslashibe/candidly/pkg/reporter"
	"github.com/teslashibe/candidly/pkg/session"
	"github.com/teslashibe/candidly/pkg/speechio"
	"github.com/teslashibe/candidly/pkg/web"
)

// App owns every component of one interview process.
type App struct {
	config config.Config
	logger *slog.Logger

	backend  *backend.Client
	reporter *reporter.Reporter
	bridge   *bridge.Bridge
	speech   *speechio.Adapter
	detector *detection.YuNetDetector
	monitor  *proctor.Monitor
	ingest   *media.Ingest
	orch     *interview.Orchestrator
	server   *web.Server
}

// New creates an App from a validated configuration.
func New(cfg config.Config) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &App{config: cfg}, nil
}

// Init builds and wires the components. Call it after New and before Run.
func (a *App) Init() error {
	sess := session.Session{
		Token:         a.config.SessionToken,
		CandidateID:   a.config.CandidateID,
		CandidateName: a.config.CandidateName,
	}
	a.logger = sessionLogger(ilog.Init(a.config.LogLevel), sess)

	var err error
	a.backend, err = backend.NewClient(
		backend.WithBaseURL(a.config.BackendURL),
		backend.WithTimeout(a.config.HTTPTimeout),
		backend.WithLogger(a.logger),
	)
	if err != nil {
		return fmt.Errorf("backend: %w", err)
	}
	a.reporter = reporter.New(a.backend, sess, reporter.WithLogger(a.logger))

	mic := audioio.NewMicrophone()

	a.bridge, err = bridge.New(
		bridge.WithLocale(a.config.Locale),
		bridge.WithLogger(a.logger),
	)
	if err != nil {
		return fmt.Errorf("bridge: %w", err)
	}

	a.speech, err = speechio.New(a.bridge, a.bridge, mic,
		speechio.WithSettleDelay(a.config.SettleDelay),
		speechio.WithLocale(a.config.Locale),
		speechio.WithLogger(a.logger),
	)
	if err != nil {
		return fmt.Errorf("speech: %w", err)
	}

	dcfg := detection.DefaultConfig()
	dcfg.ModelPath = a.config.FaceModel
	dcfg.Logger = a.logger
	a.detector, err = detection.NewYuNet(dcfg)
	if err != nil {
		return fmt.Errorf("face detector: %w", err)
	}

	a.monitor, err = proctor.New(a.detector, mic,
		proctor.WithFaceInterval(a.config.FaceInterval),
		proctor.WithMaxFaces(a.config.MaxFaces),
		proctor.WithNoiseThresholds(a.config.NoiseSpike, a.config.NoiseBackground),
		proctor.WithNoiseWatch(a.config.NoiseWatch),
		proctor.WithLogger(a.logger),
	)
	if err != nil {
		return fmt.Errorf("proctor: %w", err)
	}

	ingestOpts := []media.Option{
		media.WithOfferTimeout(a.config.OfferTimeout),
		media.WithLogger(a.logger),
	}
	if a.config.STUNURL != "" {
		ingestOpts = append(ingestOpts, media.WithICEServers(a.config.STUNURL))
	}
	a.ingest, err = media.NewIngest(ingestOpts...)
	if err != nil {
		return fmt.Errorf("media: %w", err)
	}

	a.orch, err = interview.New(interview.Deps{
		Session:  sess,
		Speech:   a.speech,
		Monitor:  a.monitor,
		Media:    a.ingest,
		Backend:  a.backend,
		Reporter: a.reporter,
	},
		interview.WithClosingPhrase(a.config.ClosingPhrase),
		interview.WithRecordingURL(a.config.RecordingURL),
		interview.WithLogger(a.logger),
	)
	if err != nil {
		return fmt.Errorf("interview: %w", err)
	}

	webOpts := []web.Option{
		web.WithAddr(a.config.ListenAddr),
		web.WithRequestTimeout(a.config.HTTPTimeout),
		web.WithLogger(a.logger),
	}
	if a.config.StaticDir != "" {
		webOpts = append(webOpts, web.WithStaticDir(a.config.StaticDir))
	}
	a.server, err = web.NewServer(a.orch, a.ingest, a.bridge.Handler(), webOpts...)
	if err != nil {
		return fmt.Errorf("web: %w", err)
	}

	return nil
}

// Run serves the candidate page and conducts the interview. It returns
// when the interview is submitted or ctx is cancelled. After a failed
// submission the server keeps running so the submission can be retried.
func (a *App) Run(ctx context.Context) error {
	serverErr := make(chan error, 1)
	go func() { serverErr <- a.server.Start(ctx) }()

	submitted := make(chan struct{}, 1)
	a.orch.OnEvent(func(ev interview.Event) {
		if ev.Type == interview.EventSubmitted {
			select {
			case submitted <- struct{}{}:
			default:
			}
		}
	})

	a.logger.Info("interview ready", "addr", a.config.ListenAddr)

	runErr := make(chan error, 1)
	go func() { runErr <- a.orch.Run(ctx) }()

	var err error
	select {
	case err = <-runErr:
	case err = <-serverErr:
		if ctx.Err() == nil {
			return fmt.Errorf("http server: %w", err)
		}
		err = <-runErr
	}

	var serr *interview.SubmitError
	switch {
	case err == nil:
		ack := a.orch.Ack()
		a.logger.Info("interview submitted", "ai_flag", ack != nil && ack.AIFlag != 0)
		return nil
	case errors.Is(err, context.Canceled), errors.Is(err, interview.ErrNotStarted):
		a.logger.Info("interview abandoned", "reason", err)
		return nil
	case errors.As(err, &serr):
		a.logger.Error("submission failed, waiting for retry", "error", serr.Err)
		return a.awaitRetry(ctx, submitted, serverErr)
	default:
		return err
	}
}

// awaitRetry keeps serving until a retried submission succeeds or the
// process is told to stop.
func (a *App) awaitRetry(ctx context.Context, submitted <-chan struct{}, serverErr <-chan error) error {
	select {
	case <-submitted:
		a.logger.Info("interview submitted after retry")
		return nil
	case <-ctx.Done():
		return nil
	case err := <-serverErr:
		return err
	}
}

// sessionLogger tags every line with the session. The token is a
// credential, so only its redacted form is logged.
func sessionLogger(base *slog.Logger, sess session.Session) *slog.Logger {
	return base.With(
		"session", sess.Redacted(),
		"candidate_id", sess.CandidateID,
	)
}

// Shutdown releases every component. It is safe to call after a failed
// Init.
func (a *App) Shutdown() {
	if a.server != nil {
		if err := a.server.Shutdown(); err != nil {
			a.logger.Warn("http shutdown", "error", err)
		}
	}
	if a.ingest != nil {
		a.ingest.Close()
	}
	if a.monitor != nil {
		a.monitor.Stop()
	}
	if a.detector != nil {
		a.detector.Close()
	}
	if a.reporter != nil {
		a.reporter.Close()
	}
	if a.logger != nil {
		a.logger.Info("shutdown complete")
	}
}

// Package reporter persists proctoring flags and the final submission.
//
// Flag updates are fire-and-forget: Report never blocks the caller, a
// single worker coalesces bursts and sends only flags the backend has not
// yet acknowledged, and failures are logged rather than retried inline.
// The complete flag set is sent again just before the final submission.
package reporter

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/teslashibe/candidly/pkg/backend"
	"github.com/teslashibe/candidly/pkg/metrics"
	"github.com/teslashibe/candidly/pkg/session"
)

// Sentinel errors.
var (
	ErrClosed           = errors.New("reporter: closed")
	ErrSubmitInFlight   = errors.New("reporter: submission already in flight")
	ErrAlreadySubmitted = errors.New("reporter: already submitted")
)

// API is the subset of the backend client the reporter needs.
type API interface {
	UpdateFlags(ctx context.Context, u backend.FlagUpdate) error
	Submit(ctx context.Context, req backend.SubmitRequest) (*backend.SubmitAck, error)
}

// Config configures a Reporter.
type Config struct {
	// Debounce coalesces reports arriving within this window into one update.
	Debounce time.Duration

	// Timeout bounds each flag update.
	Timeout time.Duration

	Logger *slog.Logger
}

// Option configures a Reporter.
type Option func(*Config)

// WithDebounce sets the coalescing window.
func WithDebounce(d time.Duration) Option {
	return func(c *Config) { c.Debounce = d }
}

// WithTimeout sets the per-update timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Config) { c.Timeout = d }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Config) { c.Logger = l }
}

// DefaultConfig returns default reporter settings.
func DefaultConfig() Config {
	return Config{
		Debounce: 250 * time.Millisecond,
		Timeout:  10 * time.Second,
		Logger:   slog.Default(),
	}
}

// Reporter delivers flags for one session.
type Reporter struct {
	api     API
	session session.Session
	cfg     Config
	logger  *slog.Logger

	mu         sync.Mutex
	pending    session.Flags
	delivered  session.Flags
	submitting bool
	submitted  bool
	closed     bool

	signal  chan struct{}
	flushCh chan chan struct{}
	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}
}

// New creates a Reporter and starts its worker.
func New(api API, s session.Session, opts ...Option) *Reporter {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	r := &Reporter{
		api:     api,
		session: s,
		cfg:     cfg,
		logger:  cfg.Logger.With("component", "reporter", "candidate_id", s.CandidateID),
		signal:  make(chan struct{}, 1),
		flushCh: make(chan chan struct{}),
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	go r.run()
	return r
}

// Report merges flags into the pending set and schedules delivery.
// It never blocks.
func (r *Reporter) Report(f session.Flags) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		r.logger.Debug("report after close ignored")
		return
	}
	r.pending = r.pending.Merge(f)
	r.mu.Unlock()

	select {
	case r.signal <- struct{}{}:
	default:
	}
}

// Pending returns every flag reported so far.
func (r *Reporter) Pending() session.Flags {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pending
}

// Delivered returns the flags the backend has acknowledged.
func (r *Reporter) Delivered() session.Flags {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.delivered
}

// Flush delivers any undelivered flags now and waits for the attempt.
func (r *Reporter) Flush(ctx context.Context) error {
	done := make(chan struct{})
	select {
	case r.flushCh <- done:
	case <-r.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Submit sends the final flag aggregate and then the transcript exactly
// once. A failed final flag update is logged and does not block the
// submission. After a successful Submit further calls return
// ErrAlreadySubmitted.
func (r *Reporter) Submit(ctx context.Context, turns []session.Turn, flags session.Flags, recordingURL string) (*backend.SubmitAck, error) {
	r.mu.Lock()
	switch {
	case r.submitted:
		r.mu.Unlock()
		return nil, ErrAlreadySubmitted
	case r.submitting:
		r.mu.Unlock()
		return nil, ErrSubmitInFlight
	}
	r.submitting = true
	all := r.pending.Merge(flags)
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		r.submitting = false
		r.mu.Unlock()
	}()

	if err := r.api.UpdateFlags(ctx, backend.FinalFlagUpdate(r.session, all)); err != nil {
		metrics.FlagReportFailures.Inc()
		r.logger.Warn("final flag update failed", "error", err)
	} else {
		r.mu.Lock()
		r.delivered = r.delivered.Merge(session.Flags{
			MultipleFaces:  all.MultipleFaces,
			AnomalousNoise: all.AnomalousNoise,
		})
		r.mu.Unlock()
	}

	mf, noise, _ := all.Ints()
	ack, err := r.api.Submit(ctx, backend.SubmitRequest{
		SessionToken: r.session.Token,
		Responses:    turns,
		RecordingURL: recordingURL,
		Flags:        &backend.SubmitFlags{MultipleFaces: mf, Noise: noise},
	})
	if err != nil {
		metrics.Submissions.WithLabelValues("failed").Inc()
		r.logger.Error("submission failed", "error", err, "turns", len(turns))
		return nil, err
	}

	r.mu.Lock()
	r.submitted = true
	r.mu.Unlock()

	metrics.Submissions.WithLabelValues("ok").Inc()
	r.logger.Info("interview submitted", "turns", len(turns), "message", ack.Message)
	return ack, nil
}

// Close stops the worker. Undelivered flags are left for the final
// submission. Close is idempotent.
func (r *Reporter) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	r.mu.Unlock()

	r.cancel()
	<-r.done
	return nil
}

func (r *Reporter) run() {
	defer close(r.done)

	for {
		select {
		case <-r.ctx.Done():
			return
		case <-r.signal:
			if r.cfg.Debounce > 0 {
				timer := time.NewTimer(r.cfg.Debounce)
				select {
				case <-r.ctx.Done():
					timer.Stop()
					return
				case <-timer.C:
				}
			}
			r.deliver()
		case done := <-r.flushCh:
			r.deliver()
			close(done)
		}
	}
}

// deliver sends the flags not yet acknowledged. On failure they stay
// undelivered and go out with the next report or the final submission.
func (r *Reporter) deliver() {
	r.mu.Lock()
	delta := r.pending.Delta(r.delivered)
	r.mu.Unlock()

	// AI suspicion is decided by the backend, never reported from here.
	delta.AISuspected = false
	if !delta.Any() {
		return
	}

	ctx, cancel := context.WithTimeout(r.ctx, r.cfg.Timeout)
	defer cancel()

	if err := r.api.UpdateFlags(ctx, backend.PartialFlagUpdate(r.session, delta)); err != nil {
		metrics.FlagReportFailures.Inc()
		r.logger.Warn("flag update failed",
			"multiple_faces", delta.MultipleFaces,
			"noise", delta.AnomalousNoise,
			"error", err,
		)
		return
	}

	r.mu.Lock()
	r.delivered = r.delivered.Merge(delta)
	r.mu.Unlock()

	r.logger.Info("flags reported",
		"multiple_faces", delta.MultipleFaces,
		"noise", delta.AnomalousNoise,
	)
}

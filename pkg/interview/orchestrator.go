// Package interview runs one voice interview: it greets the candidate,
// alternates AI speech with candidate answers, keeps proctoring running
// in the background and submits the transcript once at the end.
package interview

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/teslashibe/candidly/pkg/backend"
	"github.com/teslashibe/candidly/pkg/metrics"
	"github.com/teslashibe/candidly/pkg/proctor"
	"github.com/teslashibe/candidly/pkg/session"
	"github.com/teslashibe/candidly/pkg/speechio"
)

// Sentinel errors.
var (
	ErrAlreadyRunning   = errors.New("interview: already running")
	ErrNotListening     = errors.New("interview: not waiting for a listen request")
	ErrNoPendingSubmit  = errors.New("interview: no failed submission to retry")
	ErrPermissions      = errors.New("interview: camera or microphone unavailable")
	ErrMissingComponent = errors.New("interview: missing component")
	ErrNotStarted       = errors.New("interview: ended before the greeting")
)

// SubmitError reports a failed final submission. The interview stays in
// StateEnding until RetrySubmit succeeds.
type SubmitError struct {
	Err error
}

func (e *SubmitError) Error() string {
	return "interview: submission failed: " + e.Err.Error()
}

func (e *SubmitError) Unwrap() error {
	return e.Err
}

// Speech is the speaking and listening capability. *speechio.Adapter
// implements it.
type Speech interface {
	Speak(ctx context.Context, text string) error
	Listen(ctx context.Context) (string, error)
	Cancel() error
}

// phaseSource is implemented by speech adapters that expose their turn
// state. *speechio.Adapter does.
type phaseSource interface {
	State() *speechio.TurnState
}

// Monitor is the proctoring monitor. *proctor.Monitor implements it.
type Monitor interface {
	Start(ctx context.Context, p proctor.Provider, h proctor.Handlers) error
	Stop() error
}

// Backend generates the interviewer's lines. *backend.Client implements it.
type Backend interface {
	Start(ctx context.Context, token string) (*backend.StartResponse, error)
	Chat(ctx context.Context, token, message string, history []session.Turn) (*backend.ChatResponse, error)
	Status(ctx context.Context, token string) (*backend.StatusResponse, error)
}

// Reporter persists flags and the submission. *reporter.Reporter
// implements it.
type Reporter interface {
	Report(f session.Flags)
	Submit(ctx context.Context, turns []session.Turn, flags session.Flags, recordingURL string) (*backend.SubmitAck, error)
	Close() error
}

// Deps are the collaborators of one interview.
type Deps struct {
	Session  session.Session
	Speech   Speech
	Monitor  Monitor
	Media    proctor.Provider
	Backend  Backend
	Reporter Reporter
}

// Snapshot is a point-in-time view for operators.
type Snapshot struct {
	State         State         `json:"state"`
	CandidateID   string        `json:"candidate_id"`
	CandidateName string        `json:"candidate_name"`
	Turns         int           `json:"turns"`
	Flags         session.Flags `json:"flags"`
	AwaitingMic   bool          `json:"awaiting_listen_request"`
	SpeechPhase   string        `json:"speech_phase,omitempty"`
	Error         string        `json:"error,omitempty"`
}

// Orchestrator drives a single interview session.
type Orchestrator struct {
	session  session.Session
	speech   Speech
	monitor  Monitor
	media    proctor.Provider
	backend  Backend
	reporter Reporter
	config   Config
	logger   *slog.Logger
	history  *session.History

	mu        sync.Mutex
	state     State
	flags     session.Flags
	err       error
	ack       *backend.SubmitAck
	paused    bool
	started   bool
	phase     speechio.Phase
	observers []func(Event)

	listenReq    chan struct{}
	endCh        chan struct{}
	endOnce      sync.Once
	teardownOnce sync.Once
}

// New creates an orchestrator for deps.Session.
func New(deps Deps, opts ...Option) (*Orchestrator, error) {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch {
	case deps.Speech == nil:
		return nil, fmt.Errorf("%w: speech", ErrMissingComponent)
	case deps.Monitor == nil:
		return nil, fmt.Errorf("%w: monitor", ErrMissingComponent)
	case deps.Media == nil:
		return nil, fmt.Errorf("%w: media provider", ErrMissingComponent)
	case deps.Backend == nil:
		return nil, fmt.Errorf("%w: backend", ErrMissingComponent)
	case deps.Reporter == nil:
		return nil, fmt.Errorf("%w: reporter", ErrMissingComponent)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	o := &Orchestrator{
		session:   deps.Session,
		speech:    deps.Speech,
		monitor:   deps.Monitor,
		media:     deps.Media,
		backend:   deps.Backend,
		reporter:  deps.Reporter,
		config:    cfg,
		logger:    cfg.Logger.With("component", "interview.orchestrator", "candidate_id", deps.Session.CandidateID),
		history:   session.NewHistory(),
		state:     StateInitializing,
		listenReq: make(chan struct{}, 1),
		endCh:     make(chan struct{}),
	}
	if ps, ok := deps.Speech.(phaseSource); ok {
		o.phase = ps.State().Phase()
		ps.State().OnChange(o.onSpeechPhase)
	}
	return o, nil
}

// OnEvent registers an observer. Observers run synchronously on the
// goroutine that caused the event and must not block.
func (o *Orchestrator) OnEvent(fn func(Event)) {
	o.mu.Lock()
	o.observers = append(o.observers, fn)
	o.mu.Unlock()
}

// Run conducts the interview until it concludes, End is called, or ctx
// is cancelled. Cancelling ctx abandons the interview without
// submitting, and so does End before the greeting, which returns
// ErrNotStarted. A failed submission returns *SubmitError.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.mu.Lock()
	if o.started {
		o.mu.Unlock()
		return ErrAlreadyRunning
	}
	o.started = true
	o.mu.Unlock()

	metrics.SessionsActive.Inc()
	defer metrics.SessionsActive.Dec()

	turnCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-o.endCh:
			cancel()
		case <-turnCtx.Done():
		}
	}()

	err := o.converse(turnCtx)

	if ctx.Err() != nil {
		o.abandon(ctx.Err())
		return ctx.Err()
	}
	if err != nil {
		o.fail(err)
		return err
	}
	if o.history.Len() == 0 {
		// Nothing was said, so there is nothing to submit.
		o.abandon(ErrNotStarted)
		return ErrNotStarted
	}
	return o.finish(ctx)
}

// converse runs everything up to Ending. It returns nil when the
// interview should be submitted and an error only for fatal conditions.
func (o *Orchestrator) converse(ctx context.Context) error {
	if err := o.session.Validate(); err != nil {
		return err
	}
	o.logger.Info("interview starting", "token", o.session.Redacted())

	if o.config.CheckStatus {
		if err := o.checkStatus(ctx); err != nil {
			return o.unlessStopping(ctx, err)
		}
	}

	o.setState(StateAwaitingPermissions)
	err := o.monitor.Start(ctx, o.media, proctor.Handlers{
		OnMultipleFaces: o.onMultipleFaces,
		OnNoise:         o.onNoise,
	})
	if err != nil {
		return o.unlessStopping(ctx, fmt.Errorf("%w: %w", ErrPermissions, err))
	}

	o.setState(StateGreeting)
	start, err := o.backend.Start(ctx, o.session.Token)
	if err != nil {
		return o.unlessStopping(ctx, fmt.Errorf("interview: start: %w", err))
	}
	if start.CandidateID != nil {
		if id := fmt.Sprint(start.CandidateID); id != o.session.CandidateID {
			o.logger.Warn("backend candidate id differs from session", "backend_candidate_id", id)
		}
	}

	reply := start.Text()
	concluded := o.concluded(start.Concluded, reply)
	o.appendTurn(session.NewTurn(session.RoleAI, reply, time.Now()))

	for {
		o.setState(StateSpeaking)
		if err := o.speech.Speak(ctx, reply); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			o.logger.Warn("speech output failed, continuing", "error", err)
		}
		if concluded {
			o.logger.Info("interview concluded by backend", "turns", o.history.Len())
			return nil
		}

		text, ok, err := o.listen(ctx)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}

		o.setState(StateProcessing)
		answer := session.NewTurn(session.RoleCandidate, text, time.Now())
		resp, err := o.backend.Chat(ctx, o.session.Token, text, o.history.Turns())
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if ClassifyChat(err) == Fatal {
				return fmt.Errorf("interview: chat: %w", err)
			}
			o.logger.Warn("chat failed, asking candidate to repeat",
				"error", err,
				"contract_violation", isContractViolation(err),
			)
			o.emit(Event{Type: EventTurnFailed, Error: err.Error()})
			reply, concluded = o.config.RetryPrompt, false
			continue
		}

		// The answer is committed only with its reply so the history
		// always alternates.
		o.appendTurn(answer)
		reply = resp.Reply
		concluded = o.concluded(resp.Concluded, reply)
		o.appendTurn(session.NewTurn(session.RoleAI, reply, time.Now()))
	}
}

// listen returns the next utterance. ok is false when the interview is
// ending.
func (o *Orchestrator) listen(ctx context.Context) (string, bool, error) {
	for {
		o.setState(StateListening)
		text, err := o.speech.Listen(ctx)
		if err == nil {
			return text, true, nil
		}
		if ctx.Err() != nil {
			return "", false, nil
		}

		disp, wait := ClassifyListen(err, o.config)
		switch disp {
		case Fatal:
			return "", false, fmt.Errorf("interview: listen: %w", err)

		case Recoverable:
			cause := speechio.CodeFromError(err)
			if cause == "" {
				cause = "busy"
			}
			metrics.ListenRetries.WithLabelValues(cause).Inc()
			o.logger.Debug("listen retry", "cause", cause, "backoff", wait)
			o.emit(Event{Type: EventListenRetry, Error: err.Error()})
			if !sleep(ctx, wait) {
				return "", false, nil
			}

		case Cancelled:
			// Cancelled underneath us without an end request.
			if !sleep(ctx, o.config.BusyBackoff) {
				return "", false, nil
			}

		default:
			if errors.Is(err, speechio.ErrEchoDropped) {
				metrics.EchoDropped.Inc()
			}
			o.logger.Info("listening paused", "cause", err)
			if !o.awaitListenRequest(ctx, err) {
				return "", false, nil
			}
		}
	}
}

func (o *Orchestrator) awaitListenRequest(ctx context.Context, cause error) bool {
	select {
	case <-o.listenReq:
	default:
	}

	o.mu.Lock()
	o.paused = true
	o.mu.Unlock()
	defer func() {
		o.mu.Lock()
		o.paused = false
		o.mu.Unlock()
	}()

	o.emit(Event{Type: EventListenPause, Error: cause.Error()})

	select {
	case <-o.listenReq:
		return true
	case <-ctx.Done():
		return false
	}
}

// RequestListen resumes listening after it paused on an echo drop or a
// capture error.
func (o *Orchestrator) RequestListen() error {
	o.mu.Lock()
	paused := o.paused
	o.mu.Unlock()
	if !paused {
		return ErrNotListening
	}
	select {
	case o.listenReq <- struct{}{}:
	default:
	}
	return nil
}

// End asks the interview to stop and submit. It is safe to call more
// than once and from any goroutine.
func (o *Orchestrator) End() {
	o.endOnce.Do(func() {
		o.logger.Info("end requested")
		close(o.endCh)
	})
}

// RetrySubmit re-sends the final submission after a failure.
func (o *Orchestrator) RetrySubmit(ctx context.Context) error {
	o.mu.Lock()
	var serr *SubmitError
	pending := o.state == StateEnding && errors.As(o.err, &serr)
	o.mu.Unlock()
	if !pending {
		return ErrNoPendingSubmit
	}

	ctx, cancel := context.WithTimeout(ctx, o.config.SubmitTimeout)
	defer cancel()
	return o.submit(ctx)
}

// finish moves to Ending, tears down media first and then submits.
func (o *Orchestrator) finish(ctx context.Context) error {
	o.setState(StateEnding)
	o.teardown()

	ctx, cancel := context.WithTimeout(ctx, o.config.SubmitTimeout)
	defer cancel()
	return o.submit(ctx)
}

func (o *Orchestrator) submit(ctx context.Context) error {
	turns := o.history.Turns()
	ack, err := o.reporter.Submit(ctx, turns, o.Flags(), o.config.RecordingURL)
	if err != nil {
		serr := &SubmitError{Err: err}
		o.mu.Lock()
		o.err = serr
		o.mu.Unlock()
		o.logger.Error("submission failed", "error", err, "turns", len(turns))
		o.emit(Event{Type: EventSubmitError, Error: err.Error()})
		return serr
	}

	if ack.AIFlag != 0 {
		o.mergeFlags(session.Flags{AISuspected: true})
	}

	o.mu.Lock()
	o.ack = ack
	o.err = nil
	o.mu.Unlock()

	metrics.SessionsTotal.WithLabelValues("submitted").Inc()
	o.setState(StateEnded)
	o.emit(Event{Type: EventSubmitted})
	o.logger.Info("interview submitted", "turns", len(turns), "ai_flag", ack.AIFlag)
	return nil
}

// teardown stops speech, proctoring and flag delivery exactly once.
func (o *Orchestrator) teardown() {
	o.teardownOnce.Do(func() {
		if err := o.speech.Cancel(); err != nil {
			o.logger.Warn("cancel speech", "error", err)
		}
		if err := o.monitor.Stop(); err != nil {
			o.logger.Warn("stop monitor", "error", err)
		}
		if err := o.reporter.Close(); err != nil {
			o.logger.Warn("close reporter", "error", err)
		}
	})
}

func (o *Orchestrator) fail(err error) {
	o.teardown()
	o.mu.Lock()
	o.err = err
	o.mu.Unlock()

	metrics.SessionsTotal.WithLabelValues("error").Inc()
	o.logger.Error("interview failed", "state", o.State(), "error", err)
	o.setState(StateError)
	o.emit(Event{Type: EventError, Error: err.Error()})
}

func (o *Orchestrator) abandon(cause error) {
	o.teardown()
	o.mu.Lock()
	o.err = cause
	o.mu.Unlock()

	metrics.SessionsTotal.WithLabelValues("abandoned").Inc()
	o.logger.Info("interview abandoned without submission", "turns", o.history.Len())
	o.setState(StateEnded)
}

func (o *Orchestrator) checkStatus(ctx context.Context) error {
	st, err := o.backend.Status(ctx, o.session.Token)
	if err != nil {
		if errors.Is(err, session.ErrSessionExpired) {
			return err
		}
		o.logger.Warn("status lookup failed, continuing", "error", err)
		return nil
	}
	if st.Status == backend.StatusCompleted {
		return fmt.Errorf("%w: interview already completed", session.ErrSessionExpired)
	}
	return nil
}

// unlessStopping drops err when the interview is being ended.
func (o *Orchestrator) unlessStopping(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return nil
	}
	return err
}

func (o *Orchestrator) concluded(explicit bool, reply string) bool {
	if explicit {
		return true
	}
	phrase := strings.ToLower(strings.TrimSpace(o.config.ClosingPhrase))
	return phrase != "" && strings.Contains(strings.ToLower(reply), phrase)
}

func (o *Orchestrator) onMultipleFaces(count int) {
	o.logger.Warn("multiple faces detected", "face_count", count)
	o.raise(session.Flags{MultipleFaces: true})
}

func (o *Orchestrator) onNoise(ev proctor.NoiseEvent) {
	o.logger.Warn("anomalous noise detected", "kind", ev.Kind, "level", ev.Level)
	o.raise(session.Flags{AnomalousNoise: true})
}

// raise records flags locally first, then hands them to the reporter.
func (o *Orchestrator) raise(f session.Flags) {
	o.mergeFlags(f)
	o.reporter.Report(f)
}

func (o *Orchestrator) mergeFlags(f session.Flags) {
	o.mu.Lock()
	o.flags = o.flags.Merge(f)
	snapshot := o.flags
	o.mu.Unlock()
	o.emit(Event{Type: EventFlags, Flags: &snapshot})
}

// onSpeechPhase republishes speech turn phases so operators can see
// when the AI is talking and when the candidate is expected to answer.
func (o *Orchestrator) onSpeechPhase(_, to speechio.Phase) {
	o.mu.Lock()
	o.phase = to
	o.mu.Unlock()
	o.emit(Event{Type: EventSpeech, Phase: to.String()})
}

func (o *Orchestrator) appendTurn(t session.Turn) {
	o.history.Append(t)
	metrics.Turns.WithLabelValues(t.Role.String()).Inc()
	o.emit(Event{Type: EventTurn, Turn: &t})
}

func (o *Orchestrator) setState(s State) {
	o.mu.Lock()
	prev := o.state
	if prev == s || prev.Terminal() {
		o.mu.Unlock()
		return
	}
	o.state = s
	o.mu.Unlock()

	o.logger.Debug("state change", "from", prev, "to", s)
	o.emit(Event{Type: EventState})
}

func (o *Orchestrator) emit(ev Event) {
	o.mu.Lock()
	ev.State = o.state
	observers := make([]func(Event), len(o.observers))
	copy(observers, o.observers)
	o.mu.Unlock()

	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	for _, fn := range observers {
		fn(ev)
	}
}

// State returns the current state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// History returns a copy of the conversation so far.
func (o *Orchestrator) History() []session.Turn {
	return o.history.Turns()
}

// Flags returns the current flag set.
func (o *Orchestrator) Flags() session.Flags {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.flags
}

// Err returns the error that ended or is holding up the interview.
func (o *Orchestrator) Err() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.err
}

// Ack returns the submission acknowledgement once submitted.
func (o *Orchestrator) Ack() *backend.SubmitAck {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.ack
}

// Session returns the session being interviewed.
func (o *Orchestrator) Session() session.Session {
	return o.session
}

// Snapshot returns an operator view of the interview.
func (o *Orchestrator) Snapshot() Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	snap := Snapshot{
		State:         o.state,
		CandidateID:   o.session.CandidateID,
		CandidateName: o.session.CandidateName,
		Turns:         o.history.Len(),
		Flags:         o.flags,
		AwaitingMic:   o.paused,
		SpeechPhase:   o.phase.String(),
	}
	if o.err != nil {
		snap.Error = o.err.Error()
	}
	return snap
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

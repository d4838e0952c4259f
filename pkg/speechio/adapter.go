package speechio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/teslashibe/candidly/pkg/audioio"
)

// micOwner is the lease owner name used while speaking or recognizing.
const micOwner = "speech"

// Adapter turns the host speech engines into Speak and Listen calls.
type Adapter struct {
	rec    Recognizer
	synth  Synthesizer
	mic    *audioio.Microphone
	state  *TurnState
	config Config
	logger *slog.Logger

	mu           sync.Mutex
	speakSeq     uint64
	speakCancel  context.CancelFunc
	listenCancel context.CancelFunc
}

// New creates an adapter. rec may be nil when the host has no recognizer;
// Listen then fails with ErrNotAvailable. mic may be nil when no other
// consumer shares the capture device.
func New(rec Recognizer, synth Synthesizer, mic *audioio.Microphone, opts ...Option) (*Adapter, error) {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if synth == nil {
		return nil, fmt.Errorf("speechio: synthesizer is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Adapter{
		rec:    rec,
		synth:  synth,
		mic:    mic,
		state:  NewTurnState(),
		config: cfg,
		logger: cfg.Logger.With("component", "speechio.adapter"),
	}, nil
}

// State returns the session's turn state.
func (a *Adapter) State() *TurnState {
	return a.state
}

// Speak cancels any in-flight synthesis or listen, raises the speaking
// guard, plays text and returns after playback plus the settle delay.
// When a microphone is shared, Speak holds it for the whole guard.
func (a *Adapter) Speak(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	a.mu.Lock()
	if a.speakCancel != nil {
		a.speakCancel()
	}
	if a.listenCancel != nil {
		a.listenCancel()
	}
	a.speakSeq++
	seq := a.speakSeq
	speakCtx, cancel := context.WithCancel(ctx)
	a.speakCancel = cancel
	a.mu.Unlock()

	var release func()
	defer func() {
		a.finishSpeak(seq, cancel)
		if release != nil {
			release()
		}
	}()

	if err := a.synth.Cancel(); err != nil {
		a.logger.Debug("cancel before speak failed", "error", err)
	}

	// The guard goes up before any audio can reach the speaker. The
	// microphone lease is held until the guard drops so the noise watch
	// never analyses the AI's own voice.
	a.state.raiseGuard()
	a.mu.Lock()
	if a.listenCancel != nil {
		a.listenCancel()
	}
	a.mu.Unlock()
	if a.mic != nil {
		var err error
		release, err = a.mic.Acquire(speakCtx, micOwner)
		if err != nil {
			return ErrAborted
		}
	}

	start := time.Now()
	err := a.synth.Speak(speakCtx, Utterance{
		Text:   text,
		Locale: a.config.Locale,
		Rate:   a.config.Rate,
		Pitch:  a.config.Pitch,
		Volume: a.config.Volume,
	})
	if speakCtx.Err() != nil {
		return ErrAborted
	}
	if err != nil {
		a.logger.Warn("synthesis failed", "error", err)
	}
	a.logger.Debug("playback finished", "chars", len(text), "duration_ms", time.Since(start).Milliseconds())

	a.state.settle()
	timer := time.NewTimer(a.config.SettleDelay)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-speakCtx.Done():
		return ErrAborted
	}

	if err != nil {
		return fmt.Errorf("speechio: synthesis: %w", err)
	}
	return nil
}

func (a *Adapter) finishSpeak(seq uint64, cancel context.CancelFunc) {
	cancel()
	a.mu.Lock()
	current := seq == a.speakSeq
	if current {
		a.speakCancel = nil
	}
	a.mu.Unlock()
	if current {
		a.state.lowerGuard()
	}
}

// Listen captures one candidate utterance. It refuses with ErrBusy while
// the speaking guard is raised. Results captured under the guard are
// discarded with ErrEchoDropped. A returned utterance leaves the turn
// state in PhaseProcessing.
func (a *Adapter) Listen(ctx context.Context) (string, error) {
	if a.rec == nil || !a.rec.Available() {
		return "", ErrNotAvailable
	}
	if err := a.state.beginListening(); err != nil {
		return "", err
	}
	defer a.state.endListening()

	listenCtx, cancel := context.WithCancel(ctx)
	a.mu.Lock()
	a.listenCancel = cancel
	a.mu.Unlock()
	defer func() {
		cancel()
		a.mu.Lock()
		a.listenCancel = nil
		a.mu.Unlock()
	}()

	if a.mic != nil {
		release, err := a.mic.Acquire(listenCtx, micOwner)
		if err != nil {
			return "", ErrAborted
		}
		defer release()
		if a.state.IsSpeaking() {
			return "", ErrBusy
		}
	}

	res, err := a.rec.Recognize(listenCtx, RecognizeOptions{Locale: a.config.Locale})
	if listenCtx.Err() != nil {
		return "", ErrAborted
	}
	if err != nil {
		return "", err
	}

	if a.state.Suppressed(res.At) {
		a.logger.Info("dropped recognition captured during AI speech", "at", res.At)
		return "", ErrEchoDropped
	}

	text := strings.TrimSpace(res.Text)
	if text == "" {
		return "", ErrNoSpeech
	}

	// The answer is now being processed; the next Speak leaves this phase.
	if err := a.state.EnterProcessing(); err != nil {
		return "", ErrAborted
	}
	return text, nil
}

// Cancel stops any pending speech and listen and returns to idle.
// It is safe to call repeatedly.
func (a *Adapter) Cancel() error {
	a.mu.Lock()
	if a.speakCancel != nil {
		a.speakCancel()
		a.speakCancel = nil
	}
	if a.listenCancel != nil {
		a.listenCancel()
		a.listenCancel = nil
	}
	a.speakSeq++
	a.mu.Unlock()

	err := a.synth.Cancel()
	a.state.Reset()
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("speechio: cancel synthesis: %w", err)
	}
	return nil
}

package speechio

import (
	"sync"
	"time"
)

// Phase is the speech turn phase of a session.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseAISpeaking
	PhaseEchoGuard
	PhaseListening
	PhaseProcessing
)

// String returns a human-readable phase name.
func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseAISpeaking:
		return "ai_speaking"
	case PhaseEchoGuard:
		return "echo_guard"
	case PhaseListening:
		return "listening"
	case PhaseProcessing:
		return "processing"
	default:
		return "unknown"
	}
}

// TurnState is the single speech turn state of a session. It is shared by
// the adapter and the recognition result handler instead of a global flag.
//
// The speaking guard is raised for PhaseAISpeaking and PhaseEchoGuard.
type TurnState struct {
	mu        sync.Mutex
	phase     Phase
	raisedAt  time.Time
	loweredAt time.Time
	observers []func(from, to Phase)
	now       func() time.Time
}

// NewTurnState creates an idle state.
func NewTurnState() *TurnState {
	return &TurnState{now: time.Now}
}

// Phase returns the current phase.
func (s *TurnState) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// IsSpeaking reports whether the speaking guard is raised.
func (s *TurnState) IsSpeaking() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return guarded(s.phase)
}

// IsListening reports whether a listen is in progress.
func (s *TurnState) IsListening() bool {
	return s.Phase() == PhaseListening
}

// Suppressed reports whether audio captured at t must be discarded:
// either the guard is raised now, or t falls inside the last guard window.
func (s *TurnState) Suppressed(t time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if guarded(s.phase) {
		return true
	}
	if s.raisedAt.IsZero() || t.IsZero() {
		return false
	}
	return !t.Before(s.raisedAt) && !t.After(s.loweredAt)
}

// OnChange registers an observer called after every phase change.
func (s *TurnState) OnChange(fn func(from, to Phase)) {
	s.mu.Lock()
	s.observers = append(s.observers, fn)
	s.mu.Unlock()
}

// EnterProcessing marks that a recognized utterance is being answered.
func (s *TurnState) EnterProcessing() error {
	return s.transition(func(p Phase) (Phase, error) {
		if guarded(p) {
			return p, ErrBusy
		}
		return PhaseProcessing, nil
	})
}

// Reset returns to idle, lowering the guard if it was raised.
func (s *TurnState) Reset() {
	s.transition(func(Phase) (Phase, error) { return PhaseIdle, nil })
}

func (s *TurnState) raiseGuard() {
	s.transition(func(Phase) (Phase, error) { return PhaseAISpeaking, nil })
}

func (s *TurnState) settle() {
	s.transition(func(p Phase) (Phase, error) {
		if p != PhaseAISpeaking {
			return p, nil
		}
		return PhaseEchoGuard, nil
	})
}

func (s *TurnState) lowerGuard() {
	s.transition(func(p Phase) (Phase, error) {
		if !guarded(p) {
			return p, nil
		}
		return PhaseIdle, nil
	})
}

func (s *TurnState) beginListening() error {
	return s.transition(func(p Phase) (Phase, error) {
		if guarded(p) || p == PhaseListening {
			return p, ErrBusy
		}
		return PhaseListening, nil
	})
}

func (s *TurnState) endListening() {
	s.transition(func(p Phase) (Phase, error) {
		if p != PhaseListening {
			return p, nil
		}
		return PhaseIdle, nil
	})
}

func (s *TurnState) transition(next func(Phase) (Phase, error)) error {
	s.mu.Lock()
	from := s.phase
	to, err := next(from)
	if err != nil || to == from {
		s.mu.Unlock()
		return err
	}
	now := s.now()
	if !guarded(from) && guarded(to) {
		s.raisedAt = now
		s.loweredAt = time.Time{}
	}
	if guarded(from) && !guarded(to) {
		s.loweredAt = now
	}
	s.phase = to
	observers := append([]func(from, to Phase){}, s.observers...)
	s.mu.Unlock()

	for _, fn := range observers {
		fn(from, to)
	}
	return nil
}

func guarded(p Phase) bool {
	return p == PhaseAISpeaking || p == PhaseEchoGuard
}

package interview

import (
	"context"
	"errors"
	"time"

	"github.com/teslashibe/candidly/pkg/backend"
	"github.com/teslashibe/candidly/pkg/session"
	"github.com/teslashibe/candidly/pkg/speechio"
)

// Disposition says what the state machine does with an error.
type Disposition int

const (
	// Recoverable errors are retried after a fixed backoff without
	// involving the candidate.
	Recoverable Disposition = iota

	// Paused errors stop listening until RequestListen is called.
	Paused

	// Degraded errors are logged and otherwise ignored.
	Degraded

	// Cancelled means the interview is being ended or abandoned.
	Cancelled

	// Fatal errors end the session in StateError.
	Fatal
)

// String returns the disposition name.
func (d Disposition) String() string {
	switch d {
	case Recoverable:
		return "recoverable"
	case Paused:
		return "paused"
	case Degraded:
		return "degraded"
	case Cancelled:
		return "cancelled"
	case Fatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// ClassifyListen maps a Listen error to its disposition and, for
// recoverable errors, the wait before listening again.
func ClassifyListen(err error, cfg Config) (Disposition, time.Duration) {
	switch {
	case errors.Is(err, speechio.ErrNoSpeech):
		return Recoverable, cfg.NoSpeechBackoff
	case errors.Is(err, speechio.ErrNetwork):
		return Recoverable, cfg.NetworkBackoff
	case errors.Is(err, speechio.ErrBusy):
		return Recoverable, cfg.BusyBackoff
	case errors.Is(err, speechio.ErrAborted),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return Cancelled, 0
	case errors.Is(err, speechio.ErrNotAvailable),
		errors.Is(err, speechio.ErrPermissionDenied):
		return Fatal, 0
	default:
		// Echo drops and capture failures wait for the candidate.
		return Paused, 0
	}
}

// ClassifyChat maps a chat error to its disposition.
func ClassifyChat(err error) Disposition {
	switch {
	case errors.Is(err, session.ErrSessionExpired):
		return Fatal
	case errors.Is(err, context.Canceled):
		return Cancelled
	default:
		// Includes 422 contract violations: the backend client has
		// already logged the payload, the turn is still retryable.
		return Recoverable
	}
}

func isContractViolation(err error) bool {
	return errors.Is(err, backend.ErrContractViolation)
}

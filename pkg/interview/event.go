package interview

import (
	"time"

	"github.com/teslashibe/candidly/pkg/session"
)

// EventType identifies what an Event reports.
type EventType string

const (
	EventState       EventType = "state"
	EventTurn        EventType = "turn"
	EventFlags       EventType = "flags"
	EventListenRetry EventType = "listen_retry"
	EventListenPause EventType = "listen_paused"
	EventTurnFailed  EventType = "turn_failed"
	EventSubmitted   EventType = "submitted"
	EventSubmitError EventType = "submit_error"
	EventError       EventType = "error"
	EventSpeech      EventType = "speech"
)

// Event is published to observers on every observable change.
type Event struct {
	Type  EventType      `json:"type"`
	State State          `json:"state"`
	Turn  *session.Turn  `json:"turn,omitempty"`
	Flags *session.Flags `json:"flags,omitempty"`
	Phase string         `json:"phase,omitempty"`
	Error string         `json:"error,omitempty"`
	At    time.Time      `json:"at"`
}

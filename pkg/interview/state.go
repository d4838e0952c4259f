package interview

import "fmt"

// State is the orchestrator's position in the interview lifecycle.
type State int

const (
	StateInitializing State = iota
	StateAwaitingPermissions
	StateGreeting
	StateSpeaking
	StateListening
	StateProcessing
	StateEnding
	StateEnded
	StateError
)

var stateNames = [...]string{
	StateInitializing:        "initializing",
	StateAwaitingPermissions: "awaiting_permissions",
	StateGreeting:            "greeting",
	StateSpeaking:            "speaking",
	StateListening:           "listening",
	StateProcessing:          "processing",
	StateEnding:              "ending",
	StateEnded:               "ended",
	StateError:               "error",
}

// String returns the snake_case state name.
func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "unknown"
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *State) UnmarshalText(text []byte) error {
	for i, name := range stateNames {
		if name == string(text) {
			*s = State(i)
			return nil
		}
	}
	return fmt.Errorf("interview: unknown state %q", text)
}

// Terminal reports whether no further transitions can happen.
func (s State) Terminal() bool {
	return s == StateEnded || s == StateError
}

package session

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Role identifies who produced a turn.
// The values match the backend's conversation_history wire format.
type Role string

const (
	RoleAI        Role = "assistant"
	RoleCandidate Role = "user"
)

// String returns a human-readable name for the role.
func (r Role) String() string {
	switch r {
	case RoleAI:
		return "ai"
	case RoleCandidate:
		return "candidate"
	default:
		return string(r)
	}
}

// Turn is one utterance in the conversation.
type Turn struct {
	ID        string    `json:"-"`
	Role      Role      `json:"role"`
	Text      string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// NewTurn creates a turn with a fresh ID.
func NewTurn(role Role, text string, at time.Time) Turn {
	return Turn{
		ID:        uuid.New().String(),
		Role:      role,
		Text:      text,
		Timestamp: at,
	}
}

// History is the append-only conversation record.
// Turns are never reordered or mutated once appended; readers get copies.
type History struct {
	mu    sync.RWMutex
	turns []Turn
}

// NewHistory creates an empty history.
func NewHistory() *History {
	return &History{turns: make([]Turn, 0, 32)}
}

// Append adds turns in order.
func (h *History) Append(turns ...Turn) {
	h.mu.Lock()
	h.turns = append(h.turns, turns...)
	h.mu.Unlock()
}

// Turns returns a copy of all turns in append order.
func (h *History) Turns() []Turn {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]Turn, len(h.turns))
	copy(out, h.turns)
	return out
}

// Len returns the number of turns.
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.turns)
}

// Last returns the most recent turn, if any.
func (h *History) Last() (Turn, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if len(h.turns) == 0 {
		return Turn{}, false
	}
	return h.turns[len(h.turns)-1], true
}

// Package session holds the per-interview data model: the candidate's
// session identity, the ordered conversation history and the proctoring
// flag set.
package session

import (
	"errors"
	"fmt"
)

// Sentinel errors for session validation.
var (
	// ErrSessionMissing indicates no session token was available.
	// The caller should send the candidate back to re-authenticate.
	ErrSessionMissing = errors.New("session: missing session")

	// ErrSessionExpired indicates the backend no longer accepts the token.
	ErrSessionExpired = errors.New("session: session expired")
)

// Session identifies one candidate's interview attempt.
// It is created by an external collaborator and never mutated afterwards.
type Session struct {
	Token         string `json:"session_token"`
	CandidateID   string `json:"candidate_id"`
	CandidateName string `json:"candidate_name"`
}

// Validate checks that the session carries the fields the interview needs.
func (s Session) Validate() error {
	if s.Token == "" {
		return ErrSessionMissing
	}
	if s.CandidateID == "" {
		return fmt.Errorf("%w: candidate id is empty", ErrSessionMissing)
	}
	return nil
}

// Redacted returns a log-safe form of the token.
func (s Session) Redacted() string {
	if len(s.Token) <= 4 {
		return "****"
	}
	return s.Token[:4] + "****"
}

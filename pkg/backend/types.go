// Package backend is the HTTP client for the interview backend, which
// generates questions, decides when the interview is over and stores
// flags and the final submission.
package backend

import (
	"github.com/teslashibe/candidly/pkg/session"
)

// Interview status values returned by Status.
const (
	StatusPending    = "pending"
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
)

// StartRequest opens the interview.
type StartRequest struct {
	SessionToken string `json:"session_token"`
}

// StartResponse carries the opening greeting.
type StartResponse struct {
	Greeting      string `json:"greeting"`
	Message       string `json:"message,omitempty"`
	CandidateID   any    `json:"candidate_id,omitempty"`
	CandidateName string `json:"candidate_name,omitempty"`
	Concluded     bool   `json:"concluded,omitempty"`
}

// ChatRequest sends one candidate utterance with the prior conversation.
type ChatRequest struct {
	SessionToken        string         `json:"session_token"`
	Message             string         `json:"message"`
	ConversationHistory []session.Turn `json:"conversation_history"`
}

// ChatResponse is the AI's next line.
type ChatResponse struct {
	Reply     string `json:"reply"`
	Concluded bool   `json:"concluded,omitempty"`
}

// FlagUpdate is the update-flags body. Nil fields are omitted so a
// partial update never clears a flag the backend already holds.
type FlagUpdate struct {
	SessionToken  string `json:"session_token"`
	CandidateID   string `json:"candidate_id"`
	MultipleFaces *int   `json:"multiple_faces_flag,omitempty"`
	Noise         *int   `json:"noise_flag,omitempty"`
	AI            *int   `json:"ai_flag,omitempty"`
}

// PartialFlagUpdate includes only the flags that are set.
func PartialFlagUpdate(s session.Session, f session.Flags) FlagUpdate {
	u := FlagUpdate{SessionToken: s.Token, CandidateID: s.CandidateID}
	one := 1
	if f.MultipleFaces {
		u.MultipleFaces = &one
	}
	if f.AnomalousNoise {
		u.Noise = &one
	}
	return u
}

// FinalFlagUpdate includes every flag. AI suspicion is always sent as 0;
// only the backend's own analysis sets it.
func FinalFlagUpdate(s session.Session, f session.Flags) FlagUpdate {
	mf, noise, _ := f.Ints()
	ai := 0
	return FlagUpdate{
		SessionToken:  s.Token,
		CandidateID:   s.CandidateID,
		MultipleFaces: &mf,
		Noise:         &noise,
		AI:            &ai,
	}
}

// SubmitRequest is the single final submission.
type SubmitRequest struct {
	SessionToken string         `json:"session_token"`
	Responses    []session.Turn `json:"responses"`
	RecordingURL string         `json:"recording_url,omitempty"`
	Flags        *SubmitFlags   `json:"flags,omitempty"`
}

// SubmitFlags is the flag aggregate attached to a submission.
type SubmitFlags struct {
	MultipleFaces int `json:"multiple_faces_flag"`
	Noise         int `json:"noise_flag"`
}

// SubmitAck acknowledges the submission.
type SubmitAck struct {
	Message        string `json:"message"`
	CandidateID    any    `json:"candidate_id,omitempty"`
	InterviewScore *int   `json:"interview_score,omitempty"`
	AIFlag         int    `json:"ai_flag,omitempty"`
}

// StatusResponse reports where a session stands.
type StatusResponse struct {
	Status         string `json:"status"`
	CandidateID    any    `json:"candidate_id,omitempty"`
	CandidateName  string `json:"candidate_name,omitempty"`
	InterviewScore *int   `json:"interview_score,omitempty"`
}

// Text returns the greeting, falling back to the message field.
func (r StartResponse) Text() string {
	if r.Greeting != "" {
		return r.Greeting
	}
	return r.Message
}

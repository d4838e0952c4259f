// Package speechio wraps the host's speech recognition and synthesis
// engines as two awaitable operations, Speak and Listen, and owns the
// echo guard that keeps the AI's own voice out of the transcript.
package speechio

import (
	"context"
	"time"
)

// Recognizer is a single-shot speech recognition engine.
type Recognizer interface {
	// Available reports whether the host supports recognition at all.
	Available() bool

	// Recognize captures one utterance and returns when the engine reports
	// a final result or an error. It must honour ctx cancellation.
	Recognize(ctx context.Context, opts RecognizeOptions) (Recognition, error)
}

// Synthesizer is a text-to-speech engine.
type Synthesizer interface {
	// Speak plays the utterance and returns when playback has ended.
	Speak(ctx context.Context, u Utterance) error

	// Cancel stops any playback in progress. Safe to call when idle.
	Cancel() error
}

// RecognizeOptions are passed to the recognizer for each pass.
type RecognizeOptions struct {
	Locale         string `json:"lang"`
	Continuous     bool   `json:"continuous"`
	InterimResults bool   `json:"interim_results"`
}

// Recognition is a final recognition result.
type Recognition struct {
	Text       string    `json:"text"`
	Confidence float64   `json:"confidence,omitempty"`
	At         time.Time `json:"at"` // when the audio was captured
}

// Utterance is a request to speak text with fixed prosody.
type Utterance struct {
	Text   string  `json:"text"`
	Locale string  `json:"lang"`
	Rate   float64 `json:"rate"`
	Pitch  float64 `json:"pitch"`
	Volume float64 `json:"volume"`
}

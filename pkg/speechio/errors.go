package speechio

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by the adapter.
// Recognizer implementations return these so callers can decide retry policy.
var (
	// ErrNotAvailable indicates the host has no speech recognition capability.
	ErrNotAvailable = errors.New("speechio: recognition not available")

	// ErrBusy indicates listen was requested while the speaking guard is raised
	// or another listen is active.
	ErrBusy = errors.New("speechio: busy")

	// ErrNoSpeech indicates recognition ended without detecting speech.
	ErrNoSpeech = errors.New("speechio: no speech detected")

	// ErrAudioCapture indicates the capture device failed.
	ErrAudioCapture = errors.New("speechio: audio capture failed")

	// ErrPermissionDenied indicates the host refused microphone access.
	ErrPermissionDenied = errors.New("speechio: permission denied")

	// ErrNetwork indicates the recognition service could not be reached.
	ErrNetwork = errors.New("speechio: network error")

	// ErrAborted indicates the operation was cancelled.
	ErrAborted = errors.New("speechio: aborted")

	// ErrEchoDropped indicates a recognition result was captured while the
	// AI was speaking and has been discarded.
	ErrEchoDropped = errors.New("speechio: echo dropped")
)

// Recognition error codes as reported by host speech engines.
const (
	CodeNoSpeech           = "no-speech"
	CodeAudioCapture       = "audio-capture"
	CodeNotAllowed         = "not-allowed"
	CodeServiceNotAllowed  = "service-not-allowed"
	CodeNetwork            = "network"
	CodeAborted            = "aborted"
	CodeLanguageNotSupport = "language-not-supported"
	CodeNotSupported       = "not-supported"
)

// ErrorFromCode maps a host recognition error code to a sentinel error.
func ErrorFromCode(code, message string) error {
	var base error
	switch code {
	case CodeNoSpeech:
		base = ErrNoSpeech
	case CodeAudioCapture:
		base = ErrAudioCapture
	case CodeNotAllowed, CodeServiceNotAllowed:
		base = ErrPermissionDenied
	case CodeNetwork:
		base = ErrNetwork
	case CodeAborted:
		base = ErrAborted
	case CodeNotSupported, CodeLanguageNotSupport:
		base = ErrNotAvailable
	default:
		return fmt.Errorf("speechio: recognition error %q: %s", code, message)
	}
	if message == "" {
		return base
	}
	return fmt.Errorf("%w: %s", base, message)
}

// CodeFromError is the inverse of ErrorFromCode for sentinel errors.
func CodeFromError(err error) string {
	switch {
	case errors.Is(err, ErrNoSpeech):
		return CodeNoSpeech
	case errors.Is(err, ErrAudioCapture):
		return CodeAudioCapture
	case errors.Is(err, ErrPermissionDenied):
		return CodeNotAllowed
	case errors.Is(err, ErrNetwork):
		return CodeNetwork
	case errors.Is(err, ErrAborted):
		return CodeAborted
	case errors.Is(err, ErrNotAvailable):
		return CodeNotSupported
	default:
		return ""
	}
}

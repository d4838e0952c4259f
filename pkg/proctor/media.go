package proctor

import (
	"context"

	"github.com/teslashibe/candidly/pkg/audioio"
)

// FrameSource provides the latest video frame as JPEG.
type FrameSource interface {
	CaptureJPEG() ([]byte, error)
}

// Media is the candidate's live camera and microphone for one session.
type Media interface {
	// Frames returns the camera feed.
	Frames() FrameSource

	// Audio returns the microphone feed, or nil if the host offered none.
	Audio() audioio.Source

	// Ready is closed once video is flowing.
	Ready() <-chan struct{}

	// Release stops all tracks. Safe to call more than once.
	Release() error
}

// Provider acquires media after the candidate grants permission.
type Provider interface {
	Acquire(ctx context.Context) (Media, error)
}

// Package detection wraps an external face-detection model behind a small
// interface. Callers only need to know how many faces are in a frame and
// how confident the model is about each.
package detection

import (
	"fmt"
	"log/slog"
)

// Detection represents a detected face
type Detection struct {
	X, Y       float64 // Top-left corner (0-1 normalized)
	W, H       float64 // Width and height (0-1 normalized)
	Confidence float64 // Detection confidence (0-1)
}

// Area returns the area of the bounding box
func (d Detection) Area() float64 {
	return d.W * d.H
}

// Detector is the interface for face detection backends
type Detector interface {
	// Detect finds faces in a JPEG frame
	Detect(jpeg []byte) ([]Detection, error)

	// Count returns how many faces are in a JPEG frame
	Count(jpeg []byte) (int, error)

	// Close releases resources
	Close() error
}

// Config holds detector configuration
type Config struct {
	ModelPath        string  // Path to ONNX model
	ConfidenceThresh float64 // Minimum confidence (default 0.6)
	MinArea          float64 // Ignore boxes smaller than this fraction of the frame
	InputWidth       int     // Model input width
	InputHeight      int     // Model input height
	Logger           *slog.Logger
}

// DefaultConfig returns production defaults for YuNet
func DefaultConfig() Config {
	return Config{
		ModelPath:        "models/face_detection_yunet.onnx",
		ConfidenceThresh: 0.6,
		MinArea:          0.002,
		InputWidth:       320,
		InputHeight:      240,
		Logger:           slog.Default(),
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.ModelPath == "" {
		return fmt.Errorf("detection: model path is required")
	}
	if c.ConfidenceThresh <= 0 || c.ConfidenceThresh > 1 {
		return fmt.Errorf("detection: confidence threshold must be in (0,1], got %v", c.ConfidenceThresh)
	}
	if c.InputWidth <= 0 || c.InputHeight <= 0 {
		return fmt.Errorf("detection: input size must be positive, got %dx%d", c.InputWidth, c.InputHeight)
	}
	return nil
}

// Filter drops detections below the confidence threshold or minimum area.
// Tiny boxes are usually posters or reflections, not people.
func Filter(dets []Detection, minConfidence, minArea float64) []Detection {
	out := dets[:0:0]
	for _, d := range dets {
		if d.Confidence < minConfidence || d.Area() < minArea {
			continue
		}
		out = append(out, d)
	}
	return out
}

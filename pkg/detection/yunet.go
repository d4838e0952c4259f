package detection

import (
	"errors"
	"fmt"
	"image"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"

	"gocv.io/x/gocv"
)

// yunetColumns is the row width of FaceDetectorYN output: a box, five
// landmark pairs and the score.
const (
	yunetColumns = 15
	yunetScore   = 14
)

// ErrEmptyFrame is returned for a frame that decodes to no pixels.
var ErrEmptyFrame = errors.New("detection: empty frame")

// YuNetDetector counts faces in candidate camera frames with OpenCV's
// FaceDetectorYN. Frames wider than the configured input are downscaled
// first; a webcam face stays well above the model's minimum size at
// 320 pixels.
type YuNetDetector struct {
	config Config
	logger *slog.Logger

	mu  sync.Mutex // FaceDetectorYN is not safe for concurrent use
	net gocv.FaceDetectorYN

	frames atomic.Int64
}

// NewYuNet loads a YuNet ONNX model from disk.
func NewYuNet(cfg Config) (*YuNetDetector, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if _, err := os.Stat(cfg.ModelPath); err != nil {
		return nil, fmt.Errorf("detection: face model %s: %w", cfg.ModelPath, err)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	net := gocv.NewFaceDetectorYNWithParams(
		cfg.ModelPath,
		"",
		image.Pt(cfg.InputWidth, cfg.InputHeight),
		float32(cfg.ConfidenceThresh),
		0.3,
		5000,
		int(gocv.NetBackendDefault),
		int(gocv.NetTargetCPU),
	)

	return &YuNetDetector{
		config: cfg,
		logger: cfg.Logger.With("component", "detection.yunet"),
		net:    net,
	}, nil
}

// Count returns how many faces pass the confidence and area filters.
func (d *YuNetDetector) Count(jpeg []byte) (int, error) {
	dets, err := d.Detect(jpeg)
	if err != nil {
		return 0, err
	}
	return len(dets), nil
}

// Detect returns the faces in a JPEG frame, normalized to the frame size.
func (d *YuNetDetector) Detect(jpeg []byte) ([]Detection, error) {
	img, err := d.decode(jpeg)
	if err != nil {
		return nil, err
	}
	defer img.Close()

	faces := gocv.NewMat()
	defer faces.Close()

	d.mu.Lock()
	d.net.SetInputSize(image.Pt(img.Cols(), img.Rows()))
	d.net.Detect(img, &faces)
	d.mu.Unlock()

	dets := Filter(parseFaces(faces, img.Cols(), img.Rows()), d.config.ConfidenceThresh, d.config.MinArea)
	n := d.frames.Add(1)
	if len(dets) != 1 {
		d.logger.Debug("face count", "faces", len(dets), "frame", n)
	}
	return dets, nil
}

// decode reads a JPEG and shrinks it to at most InputWidth pixels wide.
func (d *YuNetDetector) decode(jpeg []byte) (gocv.Mat, error) {
	img, err := gocv.IMDecode(jpeg, gocv.IMReadColor)
	if err != nil {
		return img, fmt.Errorf("detection: decode frame: %w", err)
	}
	if img.Empty() {
		img.Close()
		return img, ErrEmptyFrame
	}
	if img.Cols() <= d.config.InputWidth {
		return img, nil
	}

	scale := float64(d.config.InputWidth) / float64(img.Cols())
	small := gocv.NewMat()
	gocv.Resize(img, &small, image.Point{}, scale, scale, gocv.InterpolationArea)
	img.Close()
	return small, nil
}

// Frames returns how many frames have been analysed.
func (d *YuNetDetector) Frames() int64 {
	return d.frames.Load()
}

// Close releases the model.
func (d *YuNetDetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.net.Close()
	return nil
}

// parseFaces converts FaceDetectorYN rows in pixels to normalized
// detections. Rows narrower than the YuNet layout are ignored.
func parseFaces(faces gocv.Mat, width, height int) []Detection {
	if faces.Empty() || faces.Cols() < yunetColumns || width <= 0 || height <= 0 {
		return nil
	}
	w, h := float64(width), float64(height)
	out := make([]Detection, 0, faces.Rows())
	for r := 0; r < faces.Rows(); r++ {
		out = append(out, Detection{
			X:          float64(faces.GetFloatAt(r, 0)) / w,
			Y:          float64(faces.GetFloatAt(r, 1)) / h,
			W:          float64(faces.GetFloatAt(r, 2)) / w,
			H:          float64(faces.GetFloatAt(r, 3)) / h,
			Confidence: float64(faces.GetFloatAt(r, yunetScore)),
		})
	}
	return out
}

var _ Detector = (*YuNetDetector)(nil)

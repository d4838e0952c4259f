package detection

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"os"
	"path/filepath"
	"testing"

	"gocv.io/x/gocv"
)

func TestYuNetNewInvalidPath(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ModelPath = "/nonexistent/path/model.onnx"

	if _, err := NewYuNet(cfg); err == nil {
		t.Error("Expected error for invalid model path")
	}
}

func TestYuNetDetect(t *testing.T) {
	modelPath := findModelPath()
	if modelPath == "" {
		t.Skip("YuNet model not found, skipping test")
	}

	cfg := DefaultConfig()
	cfg.ModelPath = modelPath

	detector, err := NewYuNet(cfg)
	if err != nil {
		t.Fatalf("NewYuNet failed: %v", err)
	}
	defer detector.Close()

	t.Run("invalid jpeg", func(t *testing.T) {
		if _, err := detector.Detect([]byte("not a jpeg")); err == nil {
			t.Error("Expected error for invalid JPEG")
		}
	})

	t.Run("blank frame has no faces", func(t *testing.T) {
		dets, err := detector.Detect(solidJPEG(t, 640, 480))
		if err != nil {
			t.Fatalf("Detect failed: %v", err)
		}
		if len(dets) != 0 {
			t.Errorf("Expected 0 faces in a blank frame, got %d", len(dets))
		}
	})

	t.Run("large frame is downscaled and counted", func(t *testing.T) {
		before := detector.Frames()
		n, err := detector.Count(solidJPEG(t, 1280, 960))
		if err != nil {
			t.Fatalf("Count failed: %v", err)
		}
		if n != 0 {
			t.Errorf("Count = %d, want 0", n)
		}
		if detector.Frames() != before+1 {
			t.Errorf("Frames() = %d, want %d", detector.Frames(), before+1)
		}
	})
}

func TestParseFaces(t *testing.T) {
	faces := gocv.NewMatWithSize(2, yunetColumns, gocv.MatTypeCV32F)
	defer faces.Close()

	rows := [][5]float32{
		// x, y, w, h, score
		{32, 24, 64, 48, 0.95},
		{160, 120, 16, 12, 0.4},
	}
	for r, row := range rows {
		for c := 0; c < 4; c++ {
			faces.SetFloatAt(r, c, row[c])
		}
		faces.SetFloatAt(r, yunetScore, row[4])
	}

	dets := parseFaces(faces, 320, 240)
	if len(dets) != 2 {
		t.Fatalf("parseFaces returned %d detections, want 2", len(dets))
	}
	if dets[0].X != 0.1 || dets[0].Y != 0.1 || dets[0].W != 0.2 || dets[0].H != 0.2 {
		t.Errorf("first box = %+v, want normalized 0.1,0.1,0.2,0.2", dets[0])
	}
	if got := dets[0].Confidence; got < 0.949 || got > 0.951 {
		t.Errorf("first confidence = %v, want 0.95", got)
	}

	kept := Filter(dets, 0.6, 0.002)
	if len(kept) != 1 {
		t.Errorf("Filter kept %d faces, want 1", len(kept))
	}
}

func TestParseFacesIgnoresShortRows(t *testing.T) {
	short := gocv.NewMatWithSize(1, 4, gocv.MatTypeCV32F)
	defer short.Close()
	if dets := parseFaces(short, 320, 240); len(dets) != 0 {
		t.Errorf("parseFaces on 4 columns = %d detections, want 0", len(dets))
	}

	empty := gocv.NewMat()
	defer empty.Close()
	if dets := parseFaces(empty, 320, 240); len(dets) != 0 {
		t.Errorf("parseFaces on empty mat = %d detections, want 0", len(dets))
	}
}

func solidJPEG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: 90, G: 120, B: 150, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 80}); err != nil {
		t.Fatalf("encode: %v", err)
	}
	return buf.Bytes()
}

func findModelPath() string {
	candidates := []string{
		"models/face_detection_yunet.onnx",
		"../../models/face_detection_yunet.onnx",
	}
	if env := os.Getenv("CANDIDLY_FACE_MODEL"); env != "" {
		candidates = append([]string{env}, candidates...)
	}
	for _, p := range candidates {
		if abs, err := filepath.Abs(p); err == nil {
			if _, err := os.Stat(abs); err == nil {
				return abs
			}
		}
	}
	return ""
}

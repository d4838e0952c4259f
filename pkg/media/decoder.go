package media

import (
	"bytes"
	"context"
	"fmt"
	"image/jpeg"
	"os/exec"
	"time"
)

// Decoder converts an Annex-B H.264 stream starting at a keyframe into
// a JPEG of its most recent picture.
type Decoder interface {
	Decode(ctx context.Context, annexB []byte) ([]byte, error)
}

// FFmpegDecoder decodes with a short-lived ffmpeg process over pipes.
type FFmpegDecoder struct {
	// Path is the ffmpeg binary.
	Path string

	// Timeout bounds one decode.
	Timeout time.Duration

	// Quality is the mjpeg quality scale (1-31, lower is better).
	Quality int
}

// NewFFmpegDecoder creates a decoder using ffmpeg from PATH.
func NewFFmpegDecoder() *FFmpegDecoder {
	return &FFmpegDecoder{Path: "ffmpeg", Timeout: 2 * time.Second, Quality: 3}
}

// Decode implements Decoder.
func (d *FFmpegDecoder) Decode(ctx context.Context, annexB []byte) ([]byte, error) {
	if len(annexB) < 100 {
		return nil, ErrNoFrame
	}

	ctx, cancel := context.WithTimeout(ctx, d.Timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, d.Path,
		"-loglevel", "error",
		"-f", "h264",
		"-i", "pipe:0",
		"-f", "image2pipe",
		"-vcodec", "mjpeg",
		"-q:v", fmt.Sprint(d.Quality),
		"pipe:1",
	)

	var stdout, stderr bytes.Buffer
	cmd.Stdin = bytes.NewReader(annexB)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	// ffmpeg exits non-zero on a truncated trailing picture but still
	// emits the complete ones.
	runErr := cmd.Run()
	if ctx.Err() != nil {
		return nil, fmt.Errorf("media: ffmpeg: %w", ctx.Err())
	}

	frame := lastJPEG(stdout.Bytes())
	if frame == nil {
		if runErr != nil {
			return nil, fmt.Errorf("media: ffmpeg: %w: %s", runErr, bytes.TrimSpace(stderr.Bytes()))
		}
		return nil, ErrNoFrame
	}
	if !plausibleFrame(frame) {
		return nil, ErrNoFrame
	}
	return frame, nil
}

// lastJPEG returns the final image in a concatenated mjpeg stream.
// SOI cannot appear inside entropy-coded data, which is byte-stuffed.
func lastJPEG(stream []byte) []byte {
	i := bytes.LastIndex(stream, []byte{0xFF, 0xD8, 0xFF})
	if i < 0 {
		return nil
	}
	return stream[i:]
}

// plausibleFrame rejects undecodable, tiny or uniformly gray frames,
// which the decoder produces before it has a reference picture.
func plausibleFrame(data []byte) bool {
	if len(data) < 1000 {
		return false
	}
	img, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		return false
	}
	b := img.Bounds()
	if b.Dx() < 100 || b.Dy() < 100 {
		return false
	}

	var rSum, gSum, bSum, n int
	for y := b.Min.Y; y < b.Max.Y; y += b.Dy() / 10 {
		for x := b.Min.X; x < b.Max.X; x += b.Dx() / 10 {
			r, g, bl, _ := img.At(x, y).RGBA()
			rSum += int(r >> 8)
			gSum += int(g >> 8)
			bSum += int(bl >> 8)
			n++
		}
	}
	if n == 0 {
		return false
	}
	avgR, avgG, avgB := rSum/n, gSum/n, bSum/n

	if avgR < 30 && avgG < 30 && avgB < 30 {
		return false
	}
	spread := abs(avgR-avgG) + abs(avgG-avgB) + abs(avgR-avgB)
	return !(spread < 15 && avgR > 100 && avgR < 150)
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

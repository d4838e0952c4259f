package media

import (
	"bytes"
	"context"
	"log/slog"
	"sync"

	"github.com/pion/rtp"
	"github.com/pion/rtp/codecs"
)

// maxGOPBytes caps the buffered stream when keyframes stop arriving.
const maxGOPBytes = 8 << 20

// H.264 NAL unit types.
const (
	nalIDR = 5
	nalSPS = 7
)

// VideoTrack reassembles H.264 RTP into the pictures since the last
// keyframe and decodes the newest one on demand. It implements
// proctor.FrameSource.
type VideoTrack struct {
	decoder Decoder
	logger  *slog.Logger

	mu      sync.Mutex
	depack  codecs.H264Packet
	au      []byte
	gop     []byte
	haveKey bool
	seq     uint64

	decodeMu   sync.Mutex
	decodedSeq uint64
	frame      []byte
}

// NewVideoTrack creates a track that decodes with d.
func NewVideoTrack(d Decoder, logger *slog.Logger) *VideoTrack {
	if logger == nil {
		logger = slog.Default()
	}
	return &VideoTrack{decoder: d, logger: logger}
}

// WriteRTP feeds one RTP packet. The marker bit ends an access unit.
func (v *VideoTrack) WriteRTP(pkt *rtp.Packet) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	nal, err := v.depack.Unmarshal(pkt.Payload)
	if err != nil {
		return err
	}
	v.au = append(v.au, nal...)

	if pkt.Marker {
		v.finishAccessUnit()
	}
	return nil
}

// finishAccessUnit appends the completed picture to the GOP, starting a
// new GOP on keyframes. Caller holds mu.
func (v *VideoTrack) finishAccessUnit() {
	au := v.au
	v.au = nil
	if len(au) == 0 {
		return
	}

	switch {
	case isKeyframe(au):
		v.gop = append(v.gop[:0], au...)
		v.haveKey = true
	case !v.haveKey:
		return
	case len(v.gop)+len(au) > maxGOPBytes:
		v.logger.Warn("video buffer full, waiting for keyframe", "bytes", len(v.gop))
		v.gop = v.gop[:0]
		v.haveKey = false
		return
	default:
		v.gop = append(v.gop, au...)
	}
	v.seq++
}

// CaptureJPEG decodes the newest complete picture. Repeated calls with
// no new video return the cached frame.
func (v *VideoTrack) CaptureJPEG() ([]byte, error) {
	v.mu.Lock()
	seq := v.seq
	var gop []byte
	if seq > 0 {
		gop = bytes.Clone(v.gop)
	}
	v.mu.Unlock()

	v.decodeMu.Lock()
	defer v.decodeMu.Unlock()

	if seq == 0 || len(gop) == 0 {
		if v.frame != nil {
			return bytes.Clone(v.frame), nil
		}
		return nil, ErrNoFrame
	}
	if seq == v.decodedSeq && v.frame != nil {
		return bytes.Clone(v.frame), nil
	}

	frame, err := v.decoder.Decode(context.Background(), gop)
	if err != nil {
		if v.frame != nil {
			v.logger.Debug("decode failed, reusing last frame", "error", err)
			return bytes.Clone(v.frame), nil
		}
		return nil, err
	}
	v.frame = frame
	v.decodedSeq = seq
	return bytes.Clone(frame), nil
}

// Pictures returns how many complete pictures have been buffered.
func (v *VideoTrack) Pictures() uint64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.seq
}

// isKeyframe reports whether an Annex-B access unit carries an SPS or
// an IDR slice.
func isKeyframe(au []byte) bool {
	for _, t := range nalTypes(au) {
		if t == nalSPS || t == nalIDR {
			return true
		}
	}
	return false
}

// nalTypes lists the NAL unit types in an Annex-B byte stream.
func nalTypes(stream []byte) []byte {
	var types []byte
	for i := 0; i+3 < len(stream); i++ {
		if stream[i] != 0 || stream[i+1] != 0 {
			continue
		}
		switch {
		case stream[i+2] == 1:
			types = append(types, stream[i+3]&0x1F)
			i += 2
		case stream[i+2] == 0 && i+4 < len(stream) && stream[i+3] == 1:
			types = append(types, stream[i+4]&0x1F)
			i += 3
		}
	}
	return types
}

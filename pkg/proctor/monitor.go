// Package proctor watches the candidate's camera and microphone for
// interview-integrity violations and reports them as discrete events.
// It never blocks or fails the conversation once started.
package proctor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/teslashibe/candidly/pkg/audioio"
	"github.com/teslashibe/candidly/pkg/detection"
	"github.com/teslashibe/candidly/pkg/metrics"
)

// micOwner is the lease owner name used while a chunk is analysed.
const micOwner = "noise"

// Errors returned by the monitor.
var (
	ErrStopped       = errors.New("proctor: monitor stopped")
	ErrAlreadyActive = errors.New("proctor: watch already active")
	ErrMediaNotReady = errors.New("proctor: media not ready")
	ErrMediaAcquire  = errors.New("proctor: media acquisition failed")
)

// Handlers receive detection events. They run on monitor goroutines and
// must not block.
type Handlers struct {
	OnMultipleFaces func(count int)
	OnNoise         func(NoiseEvent)
}

// Stats are monitor counters.
type Stats struct {
	FaceTicks     int64 `json:"face_ticks"`
	DroppedTicks  int64 `json:"dropped_ticks"`
	DetectErrors  int64 `json:"detect_errors"`
	FaceEvents    int64 `json:"face_events"`
	NoiseChunks   int64 `json:"noise_chunks"`
	SkippedChunks int64 `json:"skipped_chunks"`
	NoiseEvents   int64 `json:"noise_events"`
}

// Monitor runs the face and noise watches for one session.
type Monitor struct {
	detector detection.Detector
	mic      *audioio.Microphone
	config   Config
	logger   *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu         sync.Mutex
	faceActive bool
	noiseOn    bool
	audio      audioio.Source
	media      Media
	stopped    bool
	stopOnce   sync.Once

	detecting atomic.Bool
	running   atomic.Int32

	faceTicks     atomic.Int64
	droppedTicks  atomic.Int64
	detectErrors  atomic.Int64
	faceEvents    atomic.Int64
	noiseChunks   atomic.Int64
	skippedChunks atomic.Int64
	noiseEvents   atomic.Int64
}

// New creates a monitor. mic may be nil when speech recognition does not
// share the capture device.
func New(detector detection.Detector, mic *audioio.Microphone, opts ...Option) (*Monitor, error) {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if detector == nil {
		return nil, fmt.Errorf("proctor: detector is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Monitor{
		detector: detector,
		mic:      mic,
		config:   cfg,
		logger:   cfg.Logger.With("component", "proctor.monitor"),
		ctx:      ctx,
		cancel:   cancel,
	}, nil
}

// Start acquires media from p, waits until the tracks are flowing, and
// starts both watches. Any failure here is fatal to the session and
// leaves the monitor stopped.
func (m *Monitor) Start(ctx context.Context, p Provider, h Handlers) error {
	media, err := p.Acquire(ctx)
	if err != nil {
		m.Stop()
		return fmt.Errorf("%w: %w", ErrMediaAcquire, err)
	}

	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		media.Release()
		return ErrStopped
	}
	m.media = media
	m.mu.Unlock()

	timer := time.NewTimer(m.config.ReadyTimeout)
	defer timer.Stop()
	select {
	case <-media.Ready():
	case <-timer.C:
		m.Stop()
		return ErrMediaNotReady
	case <-ctx.Done():
		m.Stop()
		return ctx.Err()
	}

	if err := m.StartFaceWatch(media.Frames(), h.OnMultipleFaces); err != nil {
		m.Stop()
		return err
	}

	if audio := media.Audio(); m.config.NoiseWatch && audio != nil {
		if err := m.StartNoiseWatch(audio, h.OnNoise); err != nil {
			m.Stop()
			return err
		}
	} else {
		m.logger.Info("noise watch disabled", "configured", m.config.NoiseWatch, "has_audio", audio != nil)
	}
	return nil
}

// StartFaceWatch samples frames every FaceInterval and calls onMultipleFaces
// with the face count when it first exceeds MaxFaces. The callback fires
// again only after the count has dropped back to an allowed value.
func (m *Monitor) StartFaceWatch(frames FrameSource, onMultipleFaces func(count int)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopped {
		return ErrStopped
	}
	if m.faceActive {
		return ErrAlreadyActive
	}
	m.faceActive = true

	m.wg.Add(1)
	m.running.Add(1)
	go m.faceLoop(frames, onMultipleFaces)

	m.logger.Info("face watch started", "interval", m.config.FaceInterval, "max_faces", m.config.MaxFaces)
	return nil
}

func (m *Monitor) faceLoop(frames FrameSource, onMultipleFaces func(int)) {
	defer m.wg.Done()
	defer m.running.Add(-1)

	ticker := time.NewTicker(m.config.FaceInterval)
	defer ticker.Stop()

	var violating atomic.Bool
	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			m.faceTicks.Add(1)
			if !m.detecting.CompareAndSwap(false, true) {
				m.droppedTicks.Add(1)
				metrics.FaceTicksDropped.Inc()
				m.logger.Debug("face tick dropped, detection still running")
				continue
			}
			m.wg.Add(1)
			go func() {
				defer m.wg.Done()
				defer m.detecting.Store(false)
				m.detectOnce(frames, &violating, onMultipleFaces)
			}()
		}
	}
}

func (m *Monitor) detectOnce(frames FrameSource, violating *atomic.Bool, onMultipleFaces func(int)) {
	frame, err := frames.CaptureJPEG()
	if err != nil {
		m.detectErrors.Add(1)
		metrics.FaceDetectErrors.Inc()
		m.logger.Debug("no frame for face detection", "error", err)
		return
	}

	count, err := m.detector.Count(frame)
	if err != nil {
		m.detectErrors.Add(1)
		metrics.FaceDetectErrors.Inc()
		m.logger.Warn("face detection failed, skipping sample", "error", err)
		return
	}

	if count <= m.config.MaxFaces {
		violating.Store(false)
		return
	}
	if violating.Swap(true) || m.ctx.Err() != nil {
		return
	}

	m.faceEvents.Add(1)
	metrics.FlagsRaised.WithLabelValues("multiple_faces").Inc()
	m.logger.Warn("multiple faces detected", "face_count", count)
	if onMultipleFaces != nil {
		onMultipleFaces(count)
	}
}

// StartNoiseWatch analyses audio chunks for spikes and sustained background
// noise. Chunks arriving while the speech adapter holds the microphone
// are skipped, so coverage pauses while the AI speaks, during the echo
// guard and during listening.
func (m *Monitor) StartNoiseWatch(audio audioio.Source, onNoise func(NoiseEvent)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopped {
		return ErrStopped
	}
	if m.noiseOn {
		return ErrAlreadyActive
	}
	if err := audio.Start(m.ctx); err != nil {
		return fmt.Errorf("proctor: start audio: %w", err)
	}
	m.noiseOn = true
	m.audio = audio

	m.wg.Add(1)
	m.running.Add(1)
	go m.noiseLoop(audio, onNoise)

	m.logger.Info("noise watch started",
		"spike", m.config.SpikeThreshold,
		"background", m.config.BackgroundThreshold,
		"window", m.config.NoiseWindow,
	)
	return nil
}

func (m *Monitor) noiseLoop(audio audioio.Source, onNoise func(NoiseEvent)) {
	defer m.wg.Done()
	defer m.running.Add(-1)

	analyzer := newNoiseAnalyzer(m.config)
	stream := audio.Stream()
	for {
		select {
		case <-m.ctx.Done():
			return
		case chunk, ok := <-stream:
			if !ok {
				m.logger.Info("audio stream ended, noise watch stopping")
				return
			}
			m.analyseChunk(analyzer, chunk, onNoise)
		}
	}
}

func (m *Monitor) analyseChunk(analyzer *noiseAnalyzer, chunk audioio.AudioChunk, onNoise func(NoiseEvent)) {
	if m.mic != nil {
		release, ok := m.mic.TryAcquire(micOwner)
		if !ok {
			m.skippedChunks.Add(1)
			metrics.NoiseChunksSkipped.Inc()
			return
		}
		defer release()
	}

	m.noiseChunks.Add(1)
	for _, ev := range analyzer.observe(chunk, time.Now()) {
		m.noiseEvents.Add(1)
		metrics.FlagsRaised.WithLabelValues("noise_" + string(ev.Kind)).Inc()
		m.logger.Warn("anomalous noise", "kind", ev.Kind, "level", ev.Level)
		if onNoise != nil {
			onNoise(ev)
		}
	}
}

// Stop cancels both watches, closes the audio source and releases media.
// It is safe to call any number of times from any goroutine.
func (m *Monitor) Stop() error {
	m.stopOnce.Do(func() {
		m.mu.Lock()
		m.stopped = true
		audio := m.audio
		media := m.media
		m.mu.Unlock()

		m.cancel()
		m.wg.Wait()

		if audio != nil {
			if err := audio.Close(); err != nil {
				m.logger.Debug("close audio", "error", err)
			}
		}
		if media != nil {
			if err := media.Release(); err != nil {
				m.logger.Warn("release media", "error", err)
			}
		}
		m.logger.Info("monitor stopped", "stats", m.Stats())
	})
	return nil
}

// Active reports whether any watch goroutine is still running.
func (m *Monitor) Active() bool {
	return m.running.Load() > 0
}

// Stats returns a snapshot of monitor counters.
func (m *Monitor) Stats() Stats {
	return Stats{
		FaceTicks:     m.faceTicks.Load(),
		DroppedTicks:  m.droppedTicks.Load(),
		DetectErrors:  m.detectErrors.Load(),
		FaceEvents:    m.faceEvents.Load(),
		NoiseChunks:   m.noiseChunks.Load(),
		SkippedChunks: m.skippedChunks.Load(),
		NoiseEvents:   m.noiseEvents.Load(),
	}
}

// Package metrics exposes Prometheus instruments for interview sessions.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "interview_sessions_active",
		Help: "Interview sessions currently running",
	})

	SessionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "interview_sessions_total",
		Help: "Interview sessions by final state",
	}, []string{"outcome"})

	Turns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "interview_turns_total",
		Help: "Conversation turns appended, by role",
	}, []string{"role"})

	ListenRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "interview_listen_retries_total",
		Help: "Automatic listen retries by cause",
	}, []string{"cause"})

	EchoDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "interview_echo_dropped_total",
		Help: "Recognition results discarded because the AI was speaking",
	})

	BackendDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "interview_backend_duration_seconds",
		Help:    "Interview backend call latency",
		Buckets: []float64{0.05, 0.1, 0.2, 0.5, 1.0, 2.0, 5.0, 10.0},
	}, []string{"call"})

	BackendErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "interview_backend_errors_total",
		Help: "Interview backend failures by call and status",
	}, []string{"call", "status"})

	FlagsRaised = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "proctor_flags_raised_total",
		Help: "Proctoring detection events by flag",
	}, []string{"flag"})

	FaceTicksDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "proctor_face_ticks_dropped_total",
		Help: "Face-watch ticks skipped because detection was still running",
	})

	FaceDetectErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "proctor_face_detect_errors_total",
		Help: "Face detection cycles that failed and were skipped",
	})

	NoiseChunksSkipped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "proctor_noise_chunks_skipped_total",
		Help: "Audio chunks not analysed because speech recognition held the microphone",
	})

	FlagReportFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "reporter_flag_failures_total",
		Help: "Best-effort flag updates that failed",
	})

	Submissions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reporter_submissions_total",
		Help: "Final submissions by result",
	}, []string{"result"})

	BridgeHosts = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "bridge_hosts_connected",
		Help: "Speech hosts connected over the bridge websocket",
	})

	BridgeErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bridge_errors_total",
		Help: "Speech engine errors reported by the host, by code",
	}, []string{"code"})

	MediaPeers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "media_peers_active",
		Help: "Candidate WebRTC peers currently connected",
	})
)

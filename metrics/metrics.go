// Package metrics provides Prometheus metrics for check-ins.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "insulink"

// Submission outcomes.
const (
	OutcomeOK       = "ok"
	OutcomeFailed   = "failed"
	OutcomeMismatch = "mismatch"
)

type Metrics struct {
	// Capture metrics
	CaptureSessions  prometheus.Counter
	CaptureAutoStops prometheus.Counter
	CaptureDuration  prometheus.Histogram

	// Transcription metrics
	TranscriptionSeconds  *prometheus.HistogramVec
	TranscriptionFailures prometheus.Counter

	// Questionnaire metrics
	AnswersRecorded *prometheus.CounterVec
	Submissions     *prometheus.CounterVec

	registry *prometheus.Registry
}

// Default is the process-wide instance served by Serve.
var Default = New(prometheus.NewRegistry())

// New creates all metrics and registers them on reg.
func New(reg *prometheus.Registry) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		registry: reg,

		CaptureSessions: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "capture_sessions_total",
			Help:      "Total number of microphone capture sessions started",
		}),
		CaptureAutoStops: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "capture_autostops_total",
			Help:      "Capture sessions ended by the silence window",
		}),
		CaptureDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "capture_duration_seconds",
			Help:      "Length of captured answers in seconds",
			Buckets:   []float64{0.5, 1, 2, 3, 5, 8, 13, 20, 30, 60},
		}),

		TranscriptionSeconds: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "transcription_seconds",
			Help:      "Time from stop to final transcript",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		}, []string{"strategy"}),
		TranscriptionFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transcription_failures_total",
			Help:      "Transcriptions that failed and re-prompted",
		}),

		AnswersRecorded: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "answers_recorded_total",
			Help:      "Answers appended per category",
		}, []string{"category"}),
		Submissions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "submissions_total",
			Help:      "Answer set submissions by outcome",
		}, []string{"outcome"}),
	}
}

func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

func (m *Metrics) ObserveCapture(d time.Duration, autoStopped bool) {
	m.CaptureDuration.Observe(d.Seconds())
	if autoStopped {
		m.CaptureAutoStops.Inc()
	}
}

func (m *Metrics) ObserveTranscription(strategy string, d time.Duration, failed bool) {
	if failed {
		m.TranscriptionFailures.Inc()
		return
	}
	m.TranscriptionSeconds.WithLabelValues(strategy).Observe(d.Seconds())
}

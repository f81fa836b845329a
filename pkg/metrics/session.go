package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// SessionMetrics records session manager activity.
//
// A nil SessionMetrics is valid and means metrics are disabled; callers
// guard every call with a nil check.
type SessionMetrics interface {
	// SessionStarted records a new session and the live session count.
	SessionStarted(active int)

	// SessionEnded records a completed teardown. reason is "closed",
	// "idle" or "shutdown".
	SessionEnded(reason string, active int)

	// FileOpened records a file accepted by the named backend.
	FileOpened(backend string)

	// FileClosed records a file released from the named backend.
	FileClosed(backend string)

	// OpenFailed records an open no backend accepted ("no_file") or that
	// could not be tracked ("memory").
	OpenFailed(reason string)

	// BytesTransferred records payload moved through a backend.
	// direction is "read" or "write".
	BytesTransferred(backend, direction string, n int)

	// TransmitBuffers records the number of queued transmit buffers.
	TransmitBuffers(queued int)
}

// sessionMetrics is the Prometheus implementation of SessionMetrics.
type sessionMetrics struct {
	sessionsActive   prometheus.Gauge
	sessionsTotal    prometheus.Counter
	sessionsEnded    *prometheus.CounterVec
	filesOpen        *prometheus.GaugeVec
	filesOpened      *prometheus.CounterVec
	openFailures     *prometheus.CounterVec
	bytesTransferred *prometheus.CounterVec
	txBuffersQueued  prometheus.Gauge
}

// NewSessionMetrics creates a Prometheus-backed SessionMetrics.
//
// Returns nil if metrics are not enabled (InitRegistry not called).
func NewSessionMetrics() SessionMetrics {
	if !IsEnabled() {
		return nil
	}

	reg := GetRegistry()

	return &sessionMetrics{
		sessionsActive: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "sessions_active",
				Help:      "Current number of live sessions",
			},
		),
		sessionsTotal: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sessions_started_total",
				Help:      "Total number of sessions created",
			},
		),
		sessionsEnded: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sessions_ended_total",
				Help:      "Total number of sessions torn down by reason",
			},
			[]string{"reason"},
		),
		filesOpen: promauto.With(reg).NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "files_open",
				Help:      "Current number of open files by backend",
			},
			[]string{"backend"},
		),
		filesOpened: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "files_opened_total",
				Help:      "Total number of files opened by backend",
			},
			[]string{"backend"},
		),
		openFailures: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "open_failures_total",
				Help:      "Total number of failed opens by reason",
			},
			[]string{"reason"},
		),
		bytesTransferred: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "bytes_transferred_total",
				Help:      "Total bytes moved through backends",
			},
			[]string{"backend", "direction"},
		),
		txBuffersQueued: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "transmit_buffers_queued",
				Help:      "Current number of transmit buffers queued across sessions",
			},
		),
	}
}

func (m *sessionMetrics) SessionStarted(active int) {
	m.sessionsTotal.Inc()
	m.sessionsActive.Set(float64(active))
}

func (m *sessionMetrics) SessionEnded(reason string, active int) {
	m.sessionsEnded.WithLabelValues(reason).Inc()
	m.sessionsActive.Set(float64(active))
}

func (m *sessionMetrics) FileOpened(backend string) {
	m.filesOpened.WithLabelValues(backend).Inc()
	m.filesOpen.WithLabelValues(backend).Inc()
}

func (m *sessionMetrics) FileClosed(backend string) {
	m.filesOpen.WithLabelValues(backend).Dec()
}

func (m *sessionMetrics) OpenFailed(reason string) {
	m.openFailures.WithLabelValues(reason).Inc()
}

func (m *sessionMetrics) BytesTransferred(backend, direction string, n int) {
	if n <= 0 {
		return
	}
	m.bytesTransferred.WithLabelValues(backend, direction).Add(float64(n))
}

func (m *sessionMetrics) TransmitBuffers(queued int) {
	m.txBuffersQueued.Set(float64(queued))
}

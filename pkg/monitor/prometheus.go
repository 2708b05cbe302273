package monitor

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// promMonitor is the Prometheus implementation of Monitor.
type promMonitor struct {
	writesDropped *prometheus.CounterVec
	batchesMade   *prometheus.CounterVec
	batchesGone   *prometheus.CounterVec
	uploads       *prometheus.CounterVec
	uploadDelay   *prometheus.GaugeVec
}

// NewPrometheus creates a Monitor registering its collectors with reg.
func NewPrometheus(reg prometheus.Registerer) Monitor {
	return &promMonitor{
		writesDropped: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "pulsekit_writes_dropped_total",
				Help: "Events dropped before reaching disk, by reason",
			},
			[]string{"feature", "reason"},
		),
		batchesMade: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "pulsekit_batches_created_total",
				Help: "Batch files created",
			},
			[]string{"feature"},
		),
		batchesGone: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "pulsekit_batches_deleted_total",
				Help: "Batch files deleted, by reason",
			},
			[]string{"feature", "reason"},
		),
		uploads: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "pulsekit_upload_attempts_total",
				Help: "Upload cycle outcomes, by status class",
			},
			[]string{"feature", "status"},
		),
		uploadDelay: promauto.With(reg).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "pulsekit_upload_delay_seconds",
				Help: "Current adaptive upload delay",
			},
			[]string{"feature"},
		),
	}
}

func (m *promMonitor) WriteDropped(feature, reason string) {
	m.writesDropped.WithLabelValues(feature, reason).Inc()
}

func (m *promMonitor) BatchCreated(feature string) {
	m.batchesMade.WithLabelValues(feature).Inc()
}

func (m *promMonitor) BatchDeleted(feature, reason string) {
	m.batchesGone.WithLabelValues(feature, reason).Inc()
}

func (m *promMonitor) UploadAttempt(feature, status string) {
	m.uploads.WithLabelValues(feature, status).Inc()
}

func (m *promMonitor) UploadDelay(feature string, delay time.Duration) {
	m.uploadDelay.WithLabelValues(feature).Set(delay.Seconds())
}

package monitor

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestNilSafeHelpers(t *testing.T) {
	t.Parallel()

	// All helpers must be no-ops on a nil Monitor.
	WriteDropped(nil, "logs", "consent")
	BatchCreated(nil, "logs")
	BatchDeleted(nil, "logs", "uploaded")
	UploadAttempt(nil, "logs", "success")
	UploadDelay(nil, "logs", time.Second)
}

func TestPrometheusCounters(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	m := NewPrometheus(reg)

	m.WriteDropped("logs", "oversize")
	m.WriteDropped("logs", "oversize")
	m.BatchCreated("rum")
	m.BatchDeleted("rum", "uploaded")
	m.UploadAttempt("rum", "retryable")
	m.UploadDelay("rum", 5*time.Second)

	pm := m.(*promMonitor)
	assert.Equal(t, 2.0, testutil.ToFloat64(pm.writesDropped.WithLabelValues("logs", "oversize")))
	assert.Equal(t, 1.0, testutil.ToFloat64(pm.batchesMade.WithLabelValues("rum")))
	assert.Equal(t, 1.0, testutil.ToFloat64(pm.batchesGone.WithLabelValues("rum", "uploaded")))
	assert.Equal(t, 1.0, testutil.ToFloat64(pm.uploads.WithLabelValues("rum", "retryable")))
	assert.Equal(t, 5.0, testutil.ToFloat64(pm.uploadDelay.WithLabelValues("rum")))
}

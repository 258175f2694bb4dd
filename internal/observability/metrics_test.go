package observability

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetricsRecorders(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.RecordScan("completed", 20*time.Millisecond)
	m.RecordScan("skipped", 0)
	m.RecordAlert("response_breached")
	m.RecordAlert("response_breached")
	m.RecordNotification("internal", "sla_breach", "sent")
	m.RecordRebalance(3)
	m.RecordRebalance(0)
	m.RecordAssignment("balancer")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.scanPasses.WithLabelValues("completed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.scanPasses.WithLabelValues("skipped")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.alerts.WithLabelValues("response_breached")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.notifications.WithLabelValues("internal", "sla_breach", "sent")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.rebalanceMoves))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.assignments.WithLabelValues("balancer")))
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordRequest("/", "GET", 200, time.Millisecond)
		m.RecordError("/", "GET", "X")
		m.RecordScan("completed", time.Second)
		m.RecordAlert("a")
		m.RecordNotification("c", "t", "s")
		m.RecordRebalance(1)
		m.RecordAssignment("o")
	})
}

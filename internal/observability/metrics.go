package observability

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the service's Prometheus collectors.
type Metrics struct {
	requests       *prometheus.CounterVec
	requestLatency *prometheus.HistogramVec
	errors         *prometheus.CounterVec
	scanPasses     *prometheus.CounterVec
	scanDuration   prometheus.Histogram
	alerts         *prometheus.CounterVec
	notifications  *prometheus.CounterVec
	rebalanceMoves prometheus.Counter
	assignments    *prometheus.CounterVec
}

// NewMetrics registers collectors on reg. A nil reg uses a private registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	m := &Metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "helpdesk_http_requests_total",
			Help: "HTTP requests by path, method and status.",
		}, []string{"path", "method", "status"}),
		requestLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "helpdesk_http_request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"path", "method"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "helpdesk_http_errors_total",
			Help: "HTTP errors by path, method and error code.",
		}, []string{"path", "method", "code"}),
		scanPasses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "helpdesk_sla_scan_passes_total",
			Help: "SLA scan passes by outcome (completed, failed, skipped).",
		}, []string{"outcome"}),
		scanDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "helpdesk_sla_scan_duration_seconds",
			Help:    "Duration of completed SLA scan passes.",
			Buckets: prometheus.DefBuckets,
		}),
		alerts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "helpdesk_sla_alerts_total",
			Help: "SLA alerts raised by alert type.",
		}, []string{"alert_type"}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "helpdesk_notifications_total",
			Help: "Notifications by channel, type and resulting status.",
		}, []string{"channel", "type", "status"}),
		rebalanceMoves: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "helpdesk_rebalance_moved_tickets_total",
			Help: "Tickets moved by workload rebalancing.",
		}),
		assignments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "helpdesk_auto_assignments_total",
			Help: "Auto-assignment outcomes (rule_user, rule_role, balancer, unassigned).",
		}, []string{"outcome"}),
	}
	reg.MustRegister(m.requests, m.requestLatency, m.errors, m.scanPasses, m.scanDuration,
		m.alerts, m.notifications, m.rebalanceMoves, m.assignments)
	return m
}

// RecordRequest increments counters for requests.
func (m *Metrics) RecordRequest(path, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(path, method, strconv.Itoa(status)).Inc()
	m.requestLatency.WithLabelValues(path, method).Observe(duration.Seconds())
}

// RecordError increments error counters.
func (m *Metrics) RecordError(path, method, code string) {
	if m == nil {
		return
	}
	m.errors.WithLabelValues(path, method, code).Inc()
}

// RecordScan tracks a scan pass outcome; duration is observed for completed passes only.
func (m *Metrics) RecordScan(outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.scanPasses.WithLabelValues(outcome).Inc()
	if outcome == "completed" {
		m.scanDuration.Observe(duration.Seconds())
	}
}

// RecordAlert counts a raised alert.
func (m *Metrics) RecordAlert(alertType string) {
	if m == nil {
		return
	}
	m.alerts.WithLabelValues(alertType).Inc()
}

// RecordNotification counts a notification reaching status.
func (m *Metrics) RecordNotification(channel, notificationType, status string) {
	if m == nil {
		return
	}
	m.notifications.WithLabelValues(channel, notificationType, status).Inc()
}

// RecordRebalance counts moved tickets.
func (m *Metrics) RecordRebalance(moved int) {
	if m == nil || moved <= 0 {
		return
	}
	m.rebalanceMoves.Add(float64(moved))
}

// RecordAssignment counts an auto-assignment outcome.
func (m *Metrics) RecordAssignment(outcome string) {
	if m == nil {
		return
	}
	m.assignments.WithLabelValues(outcome).Inc()
}

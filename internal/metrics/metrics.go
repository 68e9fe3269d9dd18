// Package metrics exposes the Prometheus collectors of the service.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "campusfix_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)
	httpLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "campusfix_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
	escalationTicks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "campusfix_escalation_ticks_total",
			Help: "Escalation ticks by outcome.",
		},
		[]string{"result"},
	)
	escalationTickLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "campusfix_escalation_tick_duration_seconds",
			Help:    "Escalation tick duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
	)
	slaIncidents = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "campusfix_sla_incidents",
			Help: "Open incidents per SLA state at the last tick.",
		},
		[]string{"state"},
	)
	escalations = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "campusfix_incidents_escalated_total",
			Help: "Incidents raised to critical priority.",
		},
	)
	assignments = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "campusfix_assignments_total",
			Help: "Assignment attempts by result code.",
		},
		[]string{"result"},
	)
	notifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "campusfix_notifications_total",
			Help: "Notifications emitted by type and outcome.",
		},
		[]string{"type", "result"},
	)
	predictionFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "campusfix_prediction_failures_total",
			Help: "Failed prediction source calls.",
		},
	)
	predictionLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "campusfix_prediction_latency_seconds",
			Help:    "Prediction source latency in seconds.",
			Buckets: prometheus.DefBuckets,
		},
	)
)

func Register() {
	prometheus.MustRegister(httpRequests, httpLatency, escalationTicks, escalationTickLatency, slaIncidents,
		escalations, assignments, notifications, predictionFailures, predictionLatency)
}

func Handler() http.Handler {
	return promhttp.Handler()
}

// Instrument records request count and latency keyed by the matched route.
func Instrument() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		status := strconv.Itoa(c.Writer.Status())
		httpRequests.WithLabelValues(c.Request.Method, path, status).Inc()
		httpLatency.WithLabelValues(c.Request.Method, path, status).Observe(time.Since(start).Seconds())
	}
}

func ObserveTick(result string, d time.Duration) {
	escalationTicks.WithLabelValues(result).Inc()
	if result != "skipped" {
		escalationTickLatency.Observe(d.Seconds())
	}
}

func SetSLAState(state string, n int) {
	slaIncidents.WithLabelValues(state).Set(float64(n))
}

func IncEscalation() {
	escalations.Inc()
}

func IncAssignment(result string) {
	assignments.WithLabelValues(result).Inc()
}

func IncNotification(kind, result string) {
	notifications.WithLabelValues(kind, result).Inc()
}

func IncPredictionFailure() {
	predictionFailures.Inc()
}

func ObservePredictionLatency(d time.Duration) {
	predictionLatency.Observe(d.Seconds())
}

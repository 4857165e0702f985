package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// EventMetrics records outcomes for event pipeline stages (outbox publish,
// domain consumer, email consumer) labelled by event type.
type EventMetrics struct {
	duration *prometheus.HistogramVec
	success  *prometheus.CounterVec
	failure  *prometheus.CounterVec
}

// NewEventMetrics registers the stage metrics on the provided registerer.
func NewEventMetrics(reg prometheus.Registerer, stage string) *EventMetrics {
	if reg == nil {
		return &EventMetrics{}
	}
	stage = normalizeLabel(stage)
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    stage + "_duration_seconds",
		Help:    "Duration of " + stage + " handling in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"event_type"})
	success := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: stage + "_success_total",
		Help: "Successful " + stage + " executions.",
	}, []string{"event_type"})
	failure := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: stage + "_failure_total",
		Help: "Failed " + stage + " executions.",
	}, []string{"event_type", "reason"})
	reg.MustRegister(duration, success, failure)
	return &EventMetrics{
		duration: duration,
		success:  success,
		failure:  failure,
	}
}

func (m *EventMetrics) ObserveDuration(eventType string, duration time.Duration) {
	if m == nil || m.duration == nil {
		return
	}
	m.duration.WithLabelValues(normalizeLabel(eventType)).Observe(duration.Seconds())
}

func (m *EventMetrics) IncSuccess(eventType string) {
	if m == nil || m.success == nil {
		return
	}
	m.success.WithLabelValues(normalizeLabel(eventType)).Inc()
}

func (m *EventMetrics) IncFailure(eventType, reason string) {
	if m == nil || m.failure == nil {
		return
	}
	m.failure.WithLabelValues(normalizeLabel(eventType), normalizeLabel(reason)).Inc()
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}

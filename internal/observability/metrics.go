package observability

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	apperrors "kalium.io/kalium/internal/pkg/errors"
)

// Metrics holds the service collectors.
type Metrics struct {
	Registry *prometheus.Registry

	operations  *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	events      *prometheus.CounterVec
	sweeps      *prometheus.CounterVec
	httpLatency *prometheus.HistogramVec
}

// NewMetrics registers the collectors on a fresh registry together with the
// Go runtime and process collectors.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		Registry: reg,
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kalium",
			Name:      "operations_total",
			Help:      "Lifecycle operations by name and result code.",
		}, []string{"operation", "code"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "kalium",
			Name:      "operation_duration_seconds",
			Help:      "Lifecycle operation latency including the store transaction.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kalium",
			Name:      "events_published_total",
			Help:      "Committed lifecycle events handed to the dispatcher.",
		}, []string{"event_type"}),
		sweeps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kalium",
			Name:      "expired_orders_total",
			Help:      "Orders examined by the expiration sweeper by outcome.",
		}, []string{"outcome"}),
		httpLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "kalium",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route and status.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.operations, m.duration, m.events, m.sweeps, m.httpLatency,
	)
	return m
}

// ObserveOperation records one operation. The result code is the AppError
// code, "OK" on success and "INTERNAL" for anything else.
func (m *Metrics) ObserveOperation(op string, started time.Time, err error) {
	m.duration.WithLabelValues(op).Observe(time.Since(started).Seconds())
	m.operations.WithLabelValues(op, resultCode(err)).Inc()
}

// EventPublished counts one dispatched event.
func (m *Metrics) EventPublished(eventType string) {
	m.events.WithLabelValues(eventType).Inc()
}

// SweepObserved adds the outcome counts of one sweep.
func (m *Metrics) SweepObserved(cancelled, failed int) {
	m.sweeps.WithLabelValues("cancelled").Add(float64(cancelled))
	m.sweeps.WithLabelValues("failed").Add(float64(failed))
}

// ObserveHTTP records one HTTP request.
func (m *Metrics) ObserveHTTP(method, route, status string, d time.Duration) {
	m.httpLatency.WithLabelValues(method, route, status).Observe(d.Seconds())
}

func resultCode(err error) string {
	if err == nil {
		return "OK"
	}
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return "INTERNAL"
}

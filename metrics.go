package opcua

import (
	"time"

	"github.com/edgeo-scada/opcua-typesys/internal/metrics"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds client metrics.
type Metrics struct {
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	BrowseNextTotal prometheus.Counter
}

// NewMetrics creates client metrics registered with reg. A nil reg creates
// unregistered collectors.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		RequestsTotal: metrics.Register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metrics.Namespace,
			Subsystem: "client",
			Name:      "requests_total",
			Help:      "Total service requests by service and result.",
		}, []string{"service", "result"})),

		RequestDuration: metrics.Register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metrics.Namespace,
			Subsystem: "client",
			Name:      "request_duration_seconds",
			Help:      "Service request duration in seconds.",
			Buckets:   metrics.DurationBuckets,
		}, []string{"service"})),

		BrowseNextTotal: metrics.Register(reg, prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metrics.Namespace,
			Subsystem: "client",
			Name:      "browse_continuations_total",
			Help:      "Total BrowseNext calls issued to follow continuation points.",
		})),
	}
}

func (m *Metrics) observe(svc ServiceID, start time.Time, err error) {
	result := "good"
	if err != nil {
		result = StatusCodeOf(err).String()
	}
	m.RequestsTotal.WithLabelValues(svc.String(), result).Inc()
	m.RequestDuration.WithLabelValues(svc.String()).Observe(time.Since(start).Seconds())
}

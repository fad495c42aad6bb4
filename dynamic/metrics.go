package dynamic

import (
	"github.com/edgeo-scada/opcua-typesys/internal/metrics"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds codec registry metrics.
type Metrics struct {
	RegisteredTypes prometheus.Gauge
	DecodeErrors    prometheus.Counter
	SkippedTypes    prometheus.Counter
}

// NewMetrics creates codec metrics registered with reg. A nil reg creates
// unregistered collectors.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		RegisteredTypes: metrics.Register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metrics.Namespace,
			Subsystem: "dynamic",
			Name:      "registered_types",
			Help:      "Data types with a registered codec.",
		})),

		DecodeErrors: metrics.Register(reg, prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metrics.Namespace,
			Subsystem: "dynamic",
			Name:      "decode_errors_total",
			Help:      "Extension objects that could not be decoded.",
		})),

		SkippedTypes: metrics.Register(reg, prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metrics.Namespace,
			Subsystem: "dynamic",
			Name:      "skipped_types_total",
			Help:      "Structured data types whose codec could not be built.",
		})),
	}
}

package typetree

import (
	"github.com/edgeo-scada/opcua-typesys/internal/metrics"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds discovery metrics.
type Metrics struct {
	DiscoveriesTotal   *prometheus.CounterVec
	TypesDiscovered    prometheus.Counter
	BrowseFailures     prometheus.Counter
	DefinitionFailures prometheus.Counter
	Duration           prometheus.Histogram
}

// NewMetrics creates discovery metrics registered with reg. A nil reg
// creates unregistered collectors.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		DiscoveriesTotal: metrics.Register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metrics.Namespace,
			Subsystem: "typetree",
			Name:      "discoveries_total",
			Help:      "Total data type discoveries by result.",
		}, []string{"result"})),

		TypesDiscovered: metrics.Register(reg, prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metrics.Namespace,
			Subsystem: "typetree",
			Name:      "types_discovered_total",
			Help:      "Total data types added to discovered trees.",
		})),

		BrowseFailures: metrics.Register(reg, prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metrics.Namespace,
			Subsystem: "typetree",
			Name:      "browse_failures_total",
			Help:      "Browse requests that failed and were treated as empty.",
		})),

		DefinitionFailures: metrics.Register(reg, prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metrics.Namespace,
			Subsystem: "typetree",
			Name:      "definition_failures_total",
			Help:      "DataTypeDefinition reads that failed to decode or transfer.",
		})),

		Duration: metrics.Register(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: metrics.Namespace,
			Subsystem: "typetree",
			Name:      "discovery_duration_seconds",
			Help:      "Duration of complete data type discoveries.",
			Buckets:   metrics.DurationBuckets,
		})),
	}
}

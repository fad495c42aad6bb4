package typetree

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	opcua "github.com/edgeo-scada/opcua-typesys"
)

// Option configures Discover.
type Option func(*options)

type options struct {
	logger      zerolog.Logger
	registerer  prometheus.Registerer
	metrics     *Metrics
	maxRequests int64

	rootID   opcua.NodeID
	rootName opcua.QualifiedName
}

func defaultOptions() *options {
	return &options{
		logger:   zerolog.Nop(),
		rootID:   opcua.BaseDataType,
		rootName: opcua.QualifiedName{Name: "BaseDataType"},
	}
}

// WithLogger sets the logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithMetricsRegisterer registers discovery metrics with reg.
func WithMetricsRegisterer(reg prometheus.Registerer) Option {
	return func(o *options) {
		o.registerer = reg
	}
}

// WithMetrics records into existing metrics, so several discoveries can
// share one set of collectors.
func WithMetrics(m *Metrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}

// WithMaxConcurrentRequests caps the browse and read requests in flight. Zero
// or a negative n leaves the fan-out unbounded.
func WithMaxConcurrentRequests(n int64) Option {
	return func(o *options) {
		o.maxRequests = n
	}
}

// WithRoot starts discovery at a data type other than BaseDataType.
func WithRoot(id opcua.NodeID, browseName opcua.QualifiedName) Option {
	return func(o *options) {
		o.rootID = id
		o.rootName = browseName
	}
}

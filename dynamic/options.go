package dynamic

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

// Option configures a Manager.
type Option func(*options)

type options struct {
	logger     zerolog.Logger
	registerer prometheus.Registerer
	metrics    *Metrics
}

func defaultOptions() *options {
	return &options{
		logger: zerolog.Nop(),
	}
}

// WithLogger sets the logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithMetricsRegisterer registers the manager metrics with reg.
func WithMetricsRegisterer(reg prometheus.Registerer) Option {
	return func(o *options) {
		o.registerer = reg
	}
}

// WithMetrics records into existing metrics.
func WithMetrics(m *Metrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}

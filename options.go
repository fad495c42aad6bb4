package opcua

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

// Option is a functional option for configuring the client.
type Option func(*clientOptions)

type clientOptions struct {
	timeout time.Duration

	// Browse settings
	maxReferencesPerNode uint32
	maxContinuations     int

	authenticationToken NodeID

	logger     zerolog.Logger
	registerer prometheus.Registerer
	metrics    *Metrics
}

func defaultOptions() *clientOptions {
	return &clientOptions{
		timeout:          DefaultTimeout,
		maxContinuations: 1000,
		logger:           zerolog.Nop(),
	}
}

// WithTimeout sets the per-request timeout applied when the caller's context
// has no deadline.
func WithTimeout(d time.Duration) Option {
	return func(o *clientOptions) {
		o.timeout = d
	}
}

// WithMaxReferencesPerNode limits the references the server returns per
// browse before handing out a continuation point. Zero leaves it to the
// server.
func WithMaxReferencesPerNode(n uint32) Option {
	return func(o *clientOptions) {
		o.maxReferencesPerNode = n
	}
}

// WithMaxContinuations bounds the BrowseNext calls issued for one browse.
func WithMaxContinuations(n int) Option {
	return func(o *clientOptions) {
		o.maxContinuations = n
	}
}

// WithAuthenticationToken sets the session token sent in request headers.
func WithAuthenticationToken(token NodeID) Option {
	return func(o *clientOptions) {
		o.authenticationToken = token
	}
}

// WithLogger sets the logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(o *clientOptions) {
		o.logger = logger
	}
}

// WithMetricsRegisterer registers the client metrics with reg.
func WithMetricsRegisterer(reg prometheus.Registerer) Option {
	return func(o *clientOptions) {
		o.registerer = reg
	}
}

// WithMetrics uses m instead of creating client metrics. It takes precedence
// over WithMetricsRegisterer.
func WithMetrics(m *Metrics) Option {
	return func(o *clientOptions) {
		o.metrics = m
	}
}

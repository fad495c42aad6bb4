package memspace

import (
	"time"

	"github.com/rs/zerolog"
)

// Option configures a Space.
type Option func(*options)

type options struct {
	logger        zerolog.Logger
	maxReferences uint32
	namespaceURIs bool
	now           func() time.Time
}

func defaultOptions() *options {
	return &options{
		logger: zerolog.Nop(),
		now:    time.Now,
	}
}

// WithLogger sets the logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithMaxReferencesPerNode caps the references of one browse result when the
// request sets no limit. The rest is handed out through continuation points.
func WithMaxReferencesPerNode(n uint32) Option {
	return func(o *options) {
		o.maxReferences = n
	}
}

// WithNamespaceURIs reports browse targets outside namespace zero by
// namespace URI instead of index.
func WithNamespaceURIs() Option {
	return func(o *options) {
		o.namespaceURIs = true
	}
}

// WithClock sets the time source of timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

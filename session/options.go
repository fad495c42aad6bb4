package session

import (
	"github.com/rs/zerolog"

	"github.com/edgeo-scada/opcua-typesys/dynamic"
	"github.com/edgeo-scada/opcua-typesys/typetree"
)

// Option configures an Initializer.
type Option func(*options)

type options struct {
	logger       zerolog.Logger
	factory      dynamic.CodecFactory
	discoverOpts []typetree.Option
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

// WithCodecFactory replaces the codec factory. By default codecs are built
// by dynamic.NewCodecFactory for the initializer's manager.
func WithCodecFactory(f dynamic.CodecFactory) Option {
	return func(o *options) {
		o.factory = f
	}
}

// WithDiscoveryOptions passes opts to every typetree.Discover call.
func WithDiscoveryOptions(opts ...typetree.Option) Option {
	return func(o *options) {
		o.discoverOpts = append(o.discoverOpts, opts...)
	}
}

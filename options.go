package keepbook

import "go.uber.org/zap"

// Option configures the engine types (Resolver, Valuer, Historian).
type Option func(*options)

type options struct {
	logger *zap.Logger
}

// WithLogger sets the logger used for debug traces. A nil logger disables logging.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) { o.logger = logger }
}

func newOptions(opts []Option) options {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	return o
}

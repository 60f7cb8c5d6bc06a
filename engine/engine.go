package engine

import (
	"time"

	"github.com/rs/zerolog"
	"github.com/sicko7947/idemflow"
)

// Option configures an Executor, RequestManager or TransactionManager
type Option func(*options)

type options struct {
	logger   zerolog.Logger
	metrics  idemflow.Metrics
	now      func() time.Time
	txConfig []idemflow.ConfigOption
}

// newOptions applies opts over the defaults.
// If no logger is provided, a default stdout logger with Info level is used.
func newOptions(opts []Option) options {
	o := options{
		logger:  idemflow.DefaultLogger(),
		metrics: idemflow.NopMetrics{},
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithLogger sets a custom logger
func WithLogger(logger zerolog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithMetrics sets the metrics sink
func WithMetrics(metrics idemflow.Metrics) Option {
	return func(o *options) {
		if metrics != nil {
			o.metrics = metrics
		}
	}
}

// WithClock overrides the time source used for entry timestamps and window checks
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

// WithTransactionConfig adjusts the config a TransactionManager starts from
func WithTransactionConfig(opts ...idemflow.ConfigOption) Option {
	return func(o *options) {
		o.txConfig = append(o.txConfig, opts...)
	}
}

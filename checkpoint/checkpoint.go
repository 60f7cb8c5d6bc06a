package checkpoint

// Package checkpoint records and resumes partial workflow progress.
//
// A Manager validates and persists snapshots through an idemflow.CheckpointStorage.
// A Runner drives an ordered list of steps, consulting the manager's strategy after
// each one and resuming from the latest snapshot on restart.

import (
	"time"

	"github.com/rs/zerolog"
	"github.com/sicko7947/idemflow"
)

// Option configures a Manager or Runner
type Option func(*options)

type options struct {
	logger  zerolog.Logger
	metrics idemflow.Metrics
	now     func() time.Time
}

func defaultOptions() options {
	return options{
		logger:  idemflow.DefaultLogger(),
		metrics: idemflow.NopMetrics{},
		now:     time.Now,
	}
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

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

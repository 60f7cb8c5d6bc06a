package idemflow

import "time"

// Metric names
const (
	MetricHit        = "idemflow.hit"
	MetricMiss       = "idemflow.miss"
	MetricExecuted   = "idemflow.executed"
	MetricFailed     = "idemflow.failed"
	MetricWait       = "idemflow.wait"
	MetricTimeout    = "idemflow.timeout"
	MetricMismatch   = "idemflow.mismatch"
	MetricMerged     = "idemflow.merged"
	MetricDuration   = "idemflow.duration"
	MetricCheckpoint = "idemflow.checkpoint"
)

// Metrics receives counters and timings from the engine
type Metrics interface {
	Count(name string, value int64, tags ...string)
	Timing(name string, d time.Duration, tags ...string)
}

// NopMetrics discards everything
type NopMetrics struct{}

func (NopMetrics) Count(string, int64, ...string)         {}
func (NopMetrics) Timing(string, time.Duration, ...string) {}

// LevelTag formats the level as a metrics tag
func LevelTag(level Level) string {
	return "level:" + level.String()
}

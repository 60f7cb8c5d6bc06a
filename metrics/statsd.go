package metrics

import (
	"time"

	"github.com/DataDog/datadog-go/v5/statsd"
	"github.com/rs/zerolog"
	"github.com/sicko7947/idemflow"
)

// Client is the subset of the statsd client used here
type Client interface {
	Count(name string, value int64, tags []string, rate float64) error
	Timing(name string, value time.Duration, tags []string, rate float64) error
	Close() error
}

var _ Client = (*statsd.Client)(nil)

// Statsd reports engine metrics to a DogStatsD agent.
// It is safe to use from multiple goroutines.
type Statsd struct {
	client       Client
	samplingRate float64
	tags         []string
	logger       zerolog.Logger
}

// Option configures Statsd
type Option func(*Statsd)

// WithSamplingRate sets the sampling rate. The default of 1 sends every sample.
func WithSamplingRate(rate float64) Option {
	return func(s *Statsd) {
		if rate > 0 && rate <= 1 {
			s.samplingRate = rate
		}
	}
}

// WithTags adds tags to every metric
func WithTags(tags ...string) Option {
	return func(s *Statsd) {
		s.tags = append(s.tags, tags...)
	}
}

// WithLogger sets the logger used for send failures
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Statsd) {
		s.logger = logger
	}
}

// New wraps an existing client
func New(client Client, opts ...Option) *Statsd {
	s := &Statsd{
		client:       client,
		samplingRate: 1,
		logger:       zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Dial connects to the agent at addr, e.g. "localhost:8125"
func Dial(addr string, globalTags []string, opts ...Option) (*Statsd, error) {
	client, err := statsd.New(addr, statsd.WithTags(globalTags))
	if err != nil {
		return nil, err
	}
	return New(client, opts...), nil
}

func (s *Statsd) withTags(tags []string) []string {
	if len(s.tags) == 0 {
		return tags
	}
	out := make([]string, 0, len(s.tags)+len(tags))
	out = append(out, s.tags...)
	return append(out, tags...)
}

func (s *Statsd) Count(name string, value int64, tags ...string) {
	if err := s.client.Count(name, value, s.withTags(tags), s.samplingRate); err != nil {
		s.logger.Warn().Err(err).Str("metric", name).Msg("Error occurred while doing statsd count")
	}
}

func (s *Statsd) Timing(name string, d time.Duration, tags ...string) {
	if err := s.client.Timing(name, d, s.withTags(tags), s.samplingRate); err != nil {
		s.logger.Warn().Err(err).Str("metric", name).Msg("Error occurred while doing statsd timing")
	}
}

// Close flushes and closes the underlying client
func (s *Statsd) Close() error {
	return s.client.Close()
}

var _ idemflow.Metrics = (*Statsd)(nil)

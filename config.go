package idemflow

import "time"

// Level tags the granularity a key applies to
type Level string

const (
	LevelAction      Level = "ACTION"
	LevelWorkflow    Level = "WORKFLOW"
	LevelRequest     Level = "REQUEST"
	LevelTransaction Level = "TRANSACTION"
)

// String returns the string representation
func (l Level) String() string {
	return string(l)
}

// KeyStrategyKind selects how keys are derived
type KeyStrategyKind string

const (
	KeyStrategyContentBased KeyStrategyKind = "CONTENT_BASED"
	KeyStrategyUserProvided KeyStrategyKind = "USER_PROVIDED"
	KeyStrategyHybrid       KeyStrategyKind = "HYBRID"
)

// KeyStrategy describes key derivation. The prefix/suffix flags only apply to HYBRID.
type KeyStrategy struct {
	Kind          KeyStrategyKind
	UserKeyPrefix bool
	ContentSuffix bool
}

// ContentBased hashes the input
func ContentBased() KeyStrategy {
	return KeyStrategy{Kind: KeyStrategyContentBased}
}

// UserProvided uses the caller-supplied key verbatim
func UserProvided() KeyStrategy {
	return KeyStrategy{Kind: KeyStrategyUserProvided}
}

// Hybrid combines a caller prefix with a content hash suffix
func Hybrid(userKeyPrefix, contentSuffix bool) KeyStrategy {
	return KeyStrategy{
		Kind:          KeyStrategyHybrid,
		UserKeyPrefix: userKeyPrefix,
		ContentSuffix: contentSuffix,
	}
}

// ConflictKind selects how concurrent callers on the same key are resolved
type ConflictKind string

const (
	ConflictReturnPrevious    ConflictKind = "RETURN_PREVIOUS"
	ConflictWaitForCompletion ConflictKind = "WAIT_FOR_COMPLETION"
	ConflictMerge             ConflictKind = "MERGE"
)

// ConflictBehavior is the policy for callers that find their key in flight.
// Timeout only applies to WAIT_FOR_COMPLETION.
type ConflictBehavior struct {
	Kind    ConflictKind
	Timeout time.Duration
}

// ReturnPrevious makes waiters receive the in-flight result once available
func ReturnPrevious() ConflictBehavior {
	return ConflictBehavior{Kind: ConflictReturnPrevious}
}

// WaitForCompletion makes waiters give up after timeout
func WaitForCompletion(timeout time.Duration) ConflictBehavior {
	return ConflictBehavior{Kind: ConflictWaitForCompletion, Timeout: timeout}
}

// Merge lets waiters fold their input into the stored result when the action supports it
func Merge() ConflictBehavior {
	return ConflictBehavior{Kind: ConflictMerge}
}

// StorageBackend is a hint for which backend should hold results
type StorageBackend string

const (
	StorageTierSpecific StorageBackend = "TIER_SPECIFIC"
	StorageInMemory     StorageBackend = "IN_MEMORY"
	StoragePostgres     StorageBackend = "POSTGRES"
	StorageRedis        StorageBackend = "REDIS"
	StorageDistributed  StorageBackend = "DISTRIBUTED"
)

// InputMismatchPolicy decides what happens when a cached key is hit with a different input
type InputMismatchPolicy string

const (
	InputMismatchIgnore InputMismatchPolicy = "IGNORE"
	InputMismatchReject InputMismatchPolicy = "REJECT"
)

// ResultCachingConfig toggles persistence of successful results
type ResultCachingConfig struct {
	Enabled bool
}

// Config holds the idempotency policy of an action or manager
type Config struct {
	Enabled             bool
	Level               Level
	KeyStrategy         KeyStrategy
	DeduplicationWindow time.Duration
	ConflictBehavior    ConflictBehavior
	StorageBackend      StorageBackend
	ResultCaching       ResultCachingConfig
	InputMismatch       InputMismatchPolicy
}

// DefaultDeduplicationWindow is how long results stay reusable by default
const DefaultDeduplicationWindow = time.Hour

// DefaultConfig returns the safe defaults, optionally adjusted by opts
func DefaultConfig(opts ...ConfigOption) Config {
	cfg := Config{
		Enabled:             true,
		Level:               LevelAction,
		KeyStrategy:         ContentBased(),
		DeduplicationWindow: DefaultDeduplicationWindow,
		ConflictBehavior:    ReturnPrevious(),
		StorageBackend:      StorageInMemory,
		ResultCaching:       ResultCachingConfig{Enabled: true},
		InputMismatch:       InputMismatchIgnore,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// Validate checks the config for values the engine cannot honour
func (c Config) Validate() error {
	if c.DeduplicationWindow < 0 {
		return NewValidationError("deduplication window must not be negative")
	}
	if c.ConflictBehavior.Kind == ConflictWaitForCompletion && c.ConflictBehavior.Timeout <= 0 {
		return NewValidationError("wait-for-completion requires a positive timeout")
	}
	if c.KeyStrategy.Kind == KeyStrategyHybrid && !c.KeyStrategy.UserKeyPrefix && !c.KeyStrategy.ContentSuffix {
		return NewValidationError("hybrid key strategy needs a prefix or a suffix")
	}
	return nil
}

// Expired reports whether an entry created at createdAt is outside the window at now
func (c Config) Expired(createdAt, now time.Time) bool {
	if c.DeduplicationWindow <= 0 || createdAt.IsZero() {
		return false
	}
	return now.Sub(createdAt) >= c.DeduplicationWindow
}

// ConfigOption allows functional configuration of a Config
type ConfigOption func(*Config)

// WithEnabled toggles deduplication
func WithEnabled(enabled bool) ConfigOption {
	return func(c *Config) {
		c.Enabled = enabled
	}
}

// WithLevel sets the idempotency level
func WithLevel(level Level) ConfigOption {
	return func(c *Config) {
		c.Level = level
	}
}

// WithKeyStrategy sets the key derivation strategy
func WithKeyStrategy(strategy KeyStrategy) ConfigOption {
	return func(c *Config) {
		c.KeyStrategy = strategy
	}
}

// WithWindow sets the deduplication window
func WithWindow(window time.Duration) ConfigOption {
	return func(c *Config) {
		c.DeduplicationWindow = window
	}
}

// WithConflictBehavior sets the concurrent-caller policy
func WithConflictBehavior(behavior ConflictBehavior) ConfigOption {
	return func(c *Config) {
		c.ConflictBehavior = behavior
	}
}

// WithStorageBackend sets the storage backend hint
func WithStorageBackend(backend StorageBackend) ConfigOption {
	return func(c *Config) {
		c.StorageBackend = backend
	}
}

// WithResultCaching toggles result persistence
func WithResultCaching(enabled bool) ConfigOption {
	return func(c *Config) {
		c.ResultCaching.Enabled = enabled
	}
}

// WithInputMismatch sets the policy for keys reused with a different input
func WithInputMismatch(policy InputMismatchPolicy) ConfigOption {
	return func(c *Config) {
		c.InputMismatch = policy
	}
}

package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/sicko7947/idemflow"
)

// call is one invocation presented to the dedup core
type call[V any] struct {
	key         idemflow.Key
	fingerprint string
	run         func(ctx context.Context) (V, error)
	// merge folds this call's input into previous; nil when the work cannot merge
	merge func(ctx context.Context, previous V) (V, error)
}

// dedup runs at most one execution per key and persists successful results
type dedup[V any] struct {
	storage idemflow.ResultStorage[V]
	cfg     idemflow.Config
	cfgErr  error
	flights *registry[V]
	logger  zerolog.Logger
	metrics idemflow.Metrics
	now     func() time.Time
}

func newDedup[V any](storage idemflow.ResultStorage[V], cfg idemflow.Config, o options) *dedup[V] {
	return &dedup[V]{
		storage: storage,
		cfg:     cfg,
		cfgErr:  cfg.Validate(),
		flights: newRegistry[V](),
		logger:  o.logger,
		metrics: o.metrics,
		now:     o.now,
	}
}

func (d *dedup[V]) tag() string {
	return idemflow.LevelTag(d.cfg.Level)
}

func (d *dedup[V]) do(ctx context.Context, c call[V]) (V, error) {
	var zero V

	if d.cfgErr != nil {
		return zero, d.cfgErr
	}
	if err := ctx.Err(); err != nil {
		return zero, err
	}
	if !d.cfg.Enabled {
		return runSafely(ctx, c.run)
	}
	if c.key == "" {
		return zero, idemflow.NewValidationError("idempotency key must not be empty")
	}

	// Fast path: a live stored result answers without touching the registry
	if value, ok, err := d.lookup(ctx, c); err != nil || ok {
		return value, err
	}

	f, leader := d.flights.acquire(c.key)
	if leader {
		return d.lead(ctx, c, f)
	}
	return d.follow(ctx, c, f)
}

// lookup returns a live stored value for c, applying the input mismatch policy
func (d *dedup[V]) lookup(ctx context.Context, c call[V]) (V, bool, error) {
	var zero V

	entry, found, err := d.live(ctx, c.key)
	if err != nil || !found {
		return zero, false, err
	}

	if err := d.checkMismatch(c, entry.Fingerprint); err != nil {
		return zero, false, err
	}

	d.hit(c.key)
	return entry.Value, true, nil
}

// live loads the entry for key. Expired entries count as absent.
func (d *dedup[V]) live(ctx context.Context, key idemflow.Key) (idemflow.Entry[V], bool, error) {
	entry, found, err := d.storage.Get(ctx, key)
	if err != nil {
		idemflow.LogStorageError(d.logger, "get", err)
		return idemflow.Entry[V]{}, false, idemflow.AsStorageError("get", err)
	}
	if !found || d.cfg.Expired(entry.CreatedAt, d.now()) {
		return idemflow.Entry[V]{}, false, nil
	}
	return entry, true, nil
}

func (d *dedup[V]) hit(key idemflow.Key) {
	idemflow.LogIdempotencyHit(d.logger, key, d.cfg.Level)
	d.metrics.Count(idemflow.MetricHit, 1, d.tag())
}

// checkMismatch compares the caller's input fingerprint with the one recorded for the key
func (d *dedup[V]) checkMismatch(c call[V], recorded string) error {
	if c.fingerprint == "" || recorded == "" || c.fingerprint == recorded {
		return nil
	}

	rejected := d.cfg.InputMismatch == idemflow.InputMismatchReject
	idemflow.LogInputMismatch(d.logger, c.key, rejected)
	d.metrics.Count(idemflow.MetricMismatch, 1, d.tag())
	if rejected {
		return idemflow.NewMismatchError(c.key)
	}
	return nil
}

// lead executes the work for a key this caller claimed. The work and its persistence run
// on their own goroutine, detached from the caller's cancellation, so waiters always get
// an outcome. A cancelled claimant stops waiting like any follower.
func (d *dedup[V]) lead(ctx context.Context, c call[V], f *flight[V]) (V, error) {
	detached := context.WithoutCancel(ctx)
	go func() {
		value, fingerprint, err := d.execute(detached, c)
		d.flights.release(c.key, f, value, fingerprint, err)
	}()

	select {
	case <-f.done:
		return d.outcome(c, f)
	case <-ctx.Done():
		var zero V
		return zero, ctx.Err()
	}
}

// execute runs the work and persists its result. The returned fingerprint is the one
// recorded with the value, which is not the caller's when another caller stored first.
func (d *dedup[V]) execute(ctx context.Context, c call[V]) (V, string, error) {
	var zero V

	// Another caller may have finished between the fast path and acquire
	entry, found, err := d.live(ctx, c.key)
	if err != nil {
		return zero, "", err
	}
	if found {
		d.hit(c.key)
		return entry.Value, entry.Fingerprint, nil
	}

	idemflow.LogIdempotencyMiss(d.logger, c.key, d.cfg.Level)
	d.metrics.Count(idemflow.MetricMiss, 1, d.tag())

	start := d.now()
	value, err := runSafely(ctx, c.run)
	duration := d.now().Sub(start)
	d.metrics.Timing(idemflow.MetricDuration, duration, d.tag())

	if err != nil {
		idemflow.LogActionFailed(d.logger, c.key, d.cfg.Level, err)
		d.metrics.Count(idemflow.MetricFailed, 1, d.tag())
		return zero, "", err
	}

	idemflow.LogActionExecuted(d.logger, c.key, d.cfg.Level, duration)
	d.metrics.Count(idemflow.MetricExecuted, 1, d.tag())

	if err := d.persist(ctx, c.key, idemflow.Entry[V]{
		Value:       value,
		Fingerprint: c.fingerprint,
		CreatedAt:   d.now(),
	}); err != nil {
		return zero, "", err
	}

	return value, c.fingerprint, nil
}

// outcome is what a finished flight means for c. The mismatch policy is applied per caller.
func (d *dedup[V]) outcome(c call[V], f *flight[V]) (V, error) {
	var zero V
	if f.err != nil {
		return zero, f.err
	}
	if err := d.checkMismatch(c, f.fingerprint); err != nil {
		return zero, err
	}
	return f.value, nil
}

func (d *dedup[V]) persist(ctx context.Context, key idemflow.Key, entry idemflow.Entry[V]) error {
	if !d.cfg.ResultCaching.Enabled {
		return nil
	}
	if err := d.storage.Set(ctx, key, entry); err != nil {
		idemflow.LogStorageError(d.logger, "set", err)
		return idemflow.AsStorageError("set", err)
	}
	idemflow.LogResultStored(d.logger, key)
	return nil
}

// follow waits on another caller's execution according to the conflict behavior
func (d *dedup[V]) follow(ctx context.Context, c call[V], f *flight[V]) (V, error) {
	var zero V
	behavior := d.cfg.ConflictBehavior

	idemflow.LogInflightWait(d.logger, c.key, behavior.Kind)
	d.metrics.Count(idemflow.MetricWait, 1, d.tag())

	var timeout <-chan time.Time
	if behavior.Kind == idemflow.ConflictWaitForCompletion {
		timer := time.NewTimer(behavior.Timeout)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case <-f.done:
	case <-ctx.Done():
		return zero, ctx.Err()
	case <-timeout:
		idemflow.LogInflightTimeout(d.logger, c.key, behavior.Timeout)
		d.metrics.Count(idemflow.MetricTimeout, 1, d.tag())
		return zero, idemflow.NewTimeoutError(c.key, behavior.Timeout)
	}

	if f.err == nil && behavior.Kind == idemflow.ConflictMerge && c.merge != nil {
		return d.mergeInto(ctx, c, f.value)
	}
	return d.outcome(c, f)
}

// mergeInto folds the caller's input into the stored value. Merges on one key are
// serialized through the registry like executions.
func (d *dedup[V]) mergeInto(ctx context.Context, c call[V], previous V) (V, error) {
	var zero V

	for {
		f, leader := d.flights.acquire(c.key)
		if !leader {
			select {
			case <-f.done:
				if f.err == nil {
					previous = f.value
				}
				continue
			case <-ctx.Done():
				return zero, ctx.Err()
			}
		}

		return d.leadMerge(ctx, c, f, previous)
	}
}

func (d *dedup[V]) leadMerge(ctx context.Context, c call[V], f *flight[V], previous V) (value V, err error) {
	detached := context.WithoutCancel(ctx)
	entry := idemflow.Entry[V]{Value: previous, Fingerprint: c.fingerprint, CreatedAt: d.now()}
	defer func() {
		d.flights.release(c.key, f, value, entry.Fingerprint, err)
	}()

	stored, found, err := d.storage.Get(detached, c.key)
	if err != nil {
		idemflow.LogStorageError(d.logger, "get", err)
		return value, idemflow.AsStorageError("get", err)
	}
	if found && !d.cfg.Expired(stored.CreatedAt, d.now()) {
		entry = stored
	}

	merged, err := runSafely(detached, func(ctx context.Context) (V, error) {
		return c.merge(ctx, entry.Value)
	})
	if err != nil {
		idemflow.LogActionFailed(d.logger, c.key, d.cfg.Level, err)
		d.metrics.Count(idemflow.MetricFailed, 1, d.tag())
		return value, err
	}

	entry.Value = merged
	if err := d.persist(detached, c.key, entry); err != nil {
		return value, err
	}

	idemflow.LogResultMerged(d.logger, c.key)
	d.metrics.Count(idemflow.MetricMerged, 1, d.tag())
	return merged, nil
}

// fingerprintOf fingerprints a call's input. An input that cannot be encoded is rejected,
// since it could neither be compared under the mismatch policy nor used for a content key.
func fingerprintOf(input any) (string, error) {
	fingerprint, err := idemflow.Fingerprint(input)
	if err != nil {
		return "", idemflow.NewValidationError("input cannot be fingerprinted: " + err.Error())
	}
	return fingerprint, nil
}

// runSafely invokes fn, converting a panic into an unexpected error
func runSafely[V any](ctx context.Context, fn func(context.Context) (V, error)) (value V, err error) {
	defer func() {
		if r := recover(); r != nil {
			var zero V
			value = zero
			err = idemflow.NewUnexpectedError(fmt.Sprintf("action panicked: %v", r), nil)
		}
	}()
	return fn(ctx)
}

// Package monotask implements MonoTask (spec §4.8): a single-instance
// deduplicating executor that coalesces concurrent callers into one
// in-flight provider call, caches the result for a configurable TTL, and
// supports cancel/restart/allow-completion invalidation via a bumped
// execution ID.
//
// Has no direct teacher equivalent; grounded on
// O-tero-Distributed-Caching-System's documented singleflight-based
// request coalescing (its doc comment: "Request coalescing via
// golang.org/x/sync/singleflight prevents thundering herd on cache
// misses") for the idle/coalesce shape. Execution itself is hand-rolled
// rather than delegated to singleflight.Group, which exposes no hook for
// the cancel/restart extension below (see SPEC_FULL.md DOMAIN STACK,
// C11). Retry wiring reuses package retry (C9); error wrapping reuses
// package lighterr (C14).
package monotask

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/kvflow/lighttask/clock"
	"github.com/kvflow/lighttask/lighterr"
	"github.com/kvflow/lighttask/retry"
)

// Provider is the user-supplied work function. It must eventually return
// exactly once.
type Provider[V any] func() (V, error)

// Callback receives the terminal outcome of an Execute call.
type Callback[V any] func(V, error)

// Dispatcher runs a callback, used to decouple completion fan-out from
// the goroutine that produced the result (spec §9: "invoke on the
// callback queue"). The default dispatcher runs the callback inline on
// a fresh goroutine.
type Dispatcher func(func())

func defaultDispatcher(f func()) { go f() }

// ClearStrategy selects the behavior of ClearResult (spec §4.8).
type ClearStrategy int

const (
	// Cancel bumps the execution ID (discarding any in-flight
	// completion), fails all current waiters with
	// lighterr.ErrExecutionCancelled, and clears the cached result.
	Cancel ClearStrategy = iota
	// Restart clears the cached result, lets any in-flight execution
	// complete into the void, and, when callers are waiting, immediately
	// schedules a fresh execution that preserves them. With no waiters
	// no execution is started.
	Restart
	// AllowCompletion clears the cached result only; an in-flight
	// execution (if any) still completes and fans out normally.
	AllowCompletion
)

type state int

const (
	stateIdle state = iota
	stateExecuting
)

// Task is a MonoTask instance for one expensive computation (spec
// §4.8).
type Task[V any] struct {
	mu sync.Mutex

	clk      clock.Clock
	provider Provider[V]
	dispatch Dispatcher
	logger   zerolog.Logger

	expireDuration time.Duration
	retryPolicy    retry.Policy

	st       state
	execID   uint64
	waiters  []Callback[V]
	result   V
	hasValue bool
	expireAt time.Time
}

// Option configures a Task at construction time.
type Option[V any] func(*Task[V])

// WithExpireDuration sets how long a successful result remains fresh.
func WithExpireDuration[V any](d time.Duration) Option[V] {
	return func(t *Task[V]) { t.expireDuration = d }
}

// WithRetryPolicy sets the retry policy applied on provider failure.
func WithRetryPolicy[V any](p retry.Policy) Option[V] {
	return func(t *Task[V]) { t.retryPolicy = p }
}

// WithDispatcher overrides how completion callbacks are invoked.
func WithDispatcher[V any](d Dispatcher) Option[V] {
	return func(t *Task[V]) { t.dispatch = d }
}

// WithClock overrides the time source, for deterministic tests.
func WithClock[V any](clk clock.Clock) Option[V] {
	return func(t *Task[V]) { t.clk = clk }
}

// WithLogger attaches a zerolog.Logger for execute/cancel/restart
// diagnostics.
func WithLogger[V any](l zerolog.Logger) Option[V] {
	return func(t *Task[V]) { t.logger = l }
}

// New constructs a Task around provider.
func New[V any](provider Provider[V], opts ...Option[V]) *Task[V] {
	t := &Task[V]{
		clk:         clock.Default,
		provider:    provider,
		dispatch:    defaultDispatcher,
		retryPolicy: retry.Never(),
		logger:      zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Execute registers cb for the result of this task's current or next
// execution, per spec §4.8:
//
//   - idle, cached result fresh, !forceUpdate: cb runs immediately
//     (dispatched) with the cached result; state remains idle.
//   - executing: cb is appended to the waiter list.
//   - otherwise: a fresh execution starts, assigned a new execution ID.
func (t *Task[V]) Execute(cb Callback[V], forceUpdate bool) {
	t.mu.Lock()

	if t.st == stateIdle {
		if !forceUpdate {
			if v, ok := t.freshResultLocked(); ok {
				t.mu.Unlock()
				t.dispatch(func() { cb(v, nil) })
				return
			}
		}
		t.startExecutionLocked(cb)
		t.mu.Unlock()
		return
	}

	// executing: coalesce into the in-flight attempt.
	t.waiters = append(t.waiters, cb)
	t.mu.Unlock()
}

// CurrentResult returns the cached result iff it has not yet expired.
// On staleness the cache is cleared and ok is false.
func (t *Task[V]) CurrentResult() (v V, ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.freshResultLocked()
}

func (t *Task[V]) freshResultLocked() (V, bool) {
	if !t.hasValue {
		var zero V
		return zero, false
	}
	if !t.expireAt.IsZero() && t.clk.Now().After(t.expireAt) {
		var zero V
		t.hasValue = false
		t.result = zero
		return zero, false
	}
	return t.result, true
}

// ClearResult applies strategy to the cached result and/or any in-flight
// execution, per spec §4.8.
func (t *Task[V]) ClearResult(strategy ClearStrategy) {
	t.mu.Lock()

	var zero V
	t.hasValue = false
	t.result = zero
	t.expireAt = time.Time{}

	switch strategy {
	case Cancel:
		t.execID++
		waiters := t.waiters
		t.waiters = nil
		t.st = stateIdle
		t.mu.Unlock()
		for _, w := range waiters {
			w := w
			t.dispatch(func() { w(zero, lighterr.ErrExecutionCancelled) })
		}
		t.logger.Debug().Msg("monotask cancelled")
	case Restart:
		// The in-flight attempt (if any) keeps its execID and completes
		// into the void: bump execID now so its completion is discarded,
		// then immediately start a fresh execution carrying the existing
		// waiters forward.
		waiters := t.waiters
		t.waiters = nil
		t.execID++
		t.st = stateIdle
		if len(waiters) == 0 {
			t.mu.Unlock()
			return
		}
		first := waiters[0]
		t.startExecutionLocked(first)
		t.waiters = append(t.waiters, waiters[1:]...)
		t.mu.Unlock()
		t.logger.Debug().Msg("monotask restarted")
	case AllowCompletion:
		t.mu.Unlock()
	}
}

// startExecutionLocked transitions to executing, assigns a fresh
// execution ID, registers cb as the first waiter, and dispatches the
// provider. Must be called with mu held; it releases and reacquires
// nothing itself (the caller unlocks after it returns).
func (t *Task[V]) startExecutionLocked(cb Callback[V]) {
	t.st = stateExecuting
	t.execID++
	myID := t.execID
	t.waiters = append(t.waiters, cb)
	go t.run(myID, t.retryPolicy)
}

func (t *Task[V]) run(execID uint64, policy retry.Policy) {
	v, err := t.provider()
	if err == nil {
		t.complete(execID, v, nil)
		return
	}

	wrapped := lighterr.WrapProvider(err)
	if !policy.ShouldRetry() {
		t.complete(execID, v, wrapped)
		return
	}

	delay := policy.TimeInterval()
	if delay > 0 {
		time.Sleep(delay)
	}
	t.run(execID, policy.Next())
}

func (t *Task[V]) complete(execID uint64, v V, err error) {
	t.mu.Lock()
	if execID != t.execID || t.st != stateExecuting {
		// Cancelled or superseded: discard silently (spec §4.8: "any
		// execId mismatch at completion silently aborts the attempt").
		t.mu.Unlock()
		return
	}

	waiters := t.waiters
	t.waiters = nil
	t.st = stateIdle

	if err == nil {
		t.result = v
		t.hasValue = true
		if t.expireDuration > 0 {
			t.expireAt = t.clk.Now().Add(t.expireDuration)
		} else {
			t.expireAt = time.Time{}
		}
	}
	t.mu.Unlock()

	for _, w := range waiters {
		w := w
		t.dispatch(func() { w(v, err) })
	}
	if err != nil {
		t.logger.Debug().Err(err).Msg("monotask failed")
	}
}

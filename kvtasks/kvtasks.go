// Package kvtasks implements KVLightTasksManager (spec §4.9): the
// top-level scheduler that consults a MemoryCache (package cache),
// coalesces concurrent requests for the same key via a pending-request
// table, admits cache misses into a bounded HashQueue (package queue),
// and dispatches them to a caller-supplied data provider on a bounded
// worker pool, applying a retry policy and fanning results back to every
// waiting callback.
//
// Has no direct teacher equivalent (Krishna8167-tempuscache is a leaf
// cache with no scheduler); built from spec §4.9 directly, using
// O-tero-Distributed-Caching-System's RequestCoalescer field name/shape
// for the pending-table idea and golang.org/x/sync/semaphore.Weighted
// verbatim as the "worker slot" abstract permit of spec §3 (see
// DESIGN.md C12, SPEC_FULL.md DOMAIN STACK).
package kvtasks

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"github.com/kvflow/lighttask/cache"
	"github.com/kvflow/lighttask/lighterr"
	"github.com/kvflow/lighttask/queue"
	"github.com/kvflow/lighttask/retry"
)

// PriorityStrategy governs both the order queued misses are pulled in
// and the overflow policy when the queue is full (spec §4.6/§4.9).
type PriorityStrategy int

const (
	// LIFO pulls from the front (most recently queued first) and, on
	// overflow, evicts the oldest queued key to admit the new one.
	LIFO PriorityStrategy = iota
	// FIFO pulls from the back (oldest queued first) and, on overflow,
	// rejects the new key.
	FIFO
)

// MonoProvideFunc is a per-key data provider: eventually invokes cb with
// a present payload, an explicit null (absent) payload (cb(nil, nil)),
// or a failure, exactly once.
type MonoProvideFunc[K comparable, V any] func(key K, cb func(value *V, err error))

// MultiProvideFunc is a batched data provider: eventually invokes cb
// exactly once with either a per-key result map (keys absent from the
// map are treated as an explicit null payload) or a failure that applies
// to every key in the batch.
type MultiProvideFunc[K comparable, V any] func(keys []K, cb func(values map[K]*V, err error))

// Dispatcher runs a callback, decoupling completion fan-out from the
// goroutine that produced the result. The default dispatcher runs the
// callback inline on a fresh goroutine (the "default global queue" of
// spec §4.9).
type Dispatcher func(func())

func defaultDispatcher(f func()) { go f() }

type pendingCallback[K comparable, V any] func(K, *V, error)

// Manager is a KVLightTasksManager instance (spec §4.9).
type Manager[K comparable, V any] struct {
	mu sync.Mutex

	cache *cache.Cache[K, V]
	queue *queue.Queue[K]
	sem   *semaphore.Weighted

	pending map[K][]pendingCallback[K, V]

	strategy        PriorityStrategy
	retryPolicy     retry.Policy
	elementPriority cache.Priority
	dispatch        Dispatcher
	logger          zerolog.Logger

	monoProvider  MonoProvideFunc[K, V]
	multiProvider MultiProvideFunc[K, V]
	maxBatch      int
}

// New constructs a Manager. Exactly one of WithMonoProvider or
// WithMultiProvider must be supplied.
func New[K comparable, V any](opts ...Option[K, V]) *Manager[K, V] {
	m := &Manager[K, V]{
		pending:     make(map[K][]pendingCallback[K, V]),
		strategy:    LIFO,
		retryPolicy: retry.Never(),
		dispatch:    defaultDispatcher,
		logger:      zerolog.Nop(),
		maxBatch:    1,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.queue == nil {
		m.queue = queue.New[K](0)
	}
	if m.sem == nil {
		m.sem = semaphore.NewWeighted(1)
	}
	if m.cache == nil {
		m.cache = cache.New[K, V](cache.WithMemoryLimit[K, V](1024, 0))
	}
	return m
}

// Stats returns the underlying cache's access statistics.
func (m *Manager[K, V]) Stats() cache.Stats { return m.cache.Stats() }

// Stop releases background resources (the cache's active-expiry
// janitor, if configured).
func (m *Manager[K, V]) Stop() { m.cache.Stop() }

func (m *Manager[K, V]) overflowStrategy() queue.Strategy {
	if m.strategy == LIFO {
		return queue.EvictOldest
	}
	return queue.RejectNewest
}

func (m *Manager[K, V]) pullNextLocked() (K, bool) {
	var keys []K
	if m.strategy == LIFO {
		keys = m.queue.DequeueFront(1)
	} else {
		keys = m.queue.DequeueBack(1)
	}
	if len(keys) == 0 {
		var zero K
		return zero, false
	}
	return keys[0], true
}

func (m *Manager[K, V]) pullNextBatchLocked() []K {
	if m.strategy == LIFO {
		return m.queue.DequeueFront(m.maxBatch)
	}
	return m.queue.DequeueBack(m.maxBatch)
}

// enqueueLocked admits key into the pending queue, failing whichever
// key the overflow strategy designates as the loser (spec §4.6/§4.9).
func (m *Manager[K, V]) enqueueLocked(key K) {
	loser, wasEvicted, accepted := m.queue.Enqueue(key, m.overflowStrategy())
	if wasEvicted {
		m.failKeyLocked(loser, lighterr.ErrEvictedByPriorityStrategy)
	}
	_ = accepted
}

func (m *Manager[K, V]) failKeyLocked(key K, err error) {
	cbs := m.pending[key]
	delete(m.pending, key)
	m.logger.Debug().Interface("key", key).Err(err).Msg("kvtasks key failed before scheduling")
	for _, cb := range cbs {
		cb := cb
		m.dispatch(func() { cb(key, nil, err) })
	}
}

func (m *Manager[K, V]) resolveKeyLocked(key K, value *V, err error) {
	cbs := m.pending[key]
	delete(m.pending, key)
	for _, cb := range cbs {
		cb := cb
		m.dispatch(func() { cb(key, value, err) })
	}
}

type providerResult[V any] struct {
	value *V
	err   error
}

// runMono drives a single-key worker for initialKey, looping while the
// pending queue keeps handing it more work, per spec §4.9's schedule()
// algorithm. The semaphore permit acquired by the caller is held across
// every attempt (including retry sleeps, per §9 Open Question 2) and is
// released only when there is no more work to pull.
func (m *Manager[K, V]) runMono(initialKey K) {
	key := initialKey
	for {
		value, err := m.callMonoWithRetry(key, m.retryPolicy)

		m.mu.Lock()
		if err == nil {
			m.cache.Set(key, value, m.elementPriority, 0)
		}
		m.resolveKeyLocked(key, value, err)

		next, ok := m.pullNextLocked()
		if !ok {
			m.sem.Release(1)
			m.mu.Unlock()
			return
		}
		m.mu.Unlock()
		key = next
	}
}

func (m *Manager[K, V]) callMonoWithRetry(key K, policy retry.Policy) (*V, error) {
	for {
		resultCh := make(chan providerResult[V], 1)
		m.monoProvider(key, func(v *V, err error) {
			select {
			case resultCh <- providerResult[V]{value: v, err: err}:
			default:
			}
		})
		res := <-resultCh
		if res.err == nil {
			return res.value, nil
		}
		if !policy.ShouldRetry() {
			return nil, lighterr.WrapProvider(res.err)
		}
		if d := policy.TimeInterval(); d > 0 {
			time.Sleep(d)
		}
		policy = policy.Next()
	}
}

// runMulti drives a batched worker, looping the same way runMono does
// but operating on a slice of keys per attempt (spec §4.9: "treats the
// batch as atomic").
func (m *Manager[K, V]) runMulti(initialBatch []K) {
	batch := initialBatch
	for {
		results, err := m.callMultiWithRetry(batch, m.retryPolicy)

		m.mu.Lock()
		if err == nil {
			for _, k := range batch {
				v := results[k]
				m.cache.Set(k, v, m.elementPriority, 0)
				m.resolveKeyLocked(k, v, nil)
			}
		} else {
			for _, k := range batch {
				m.resolveKeyLocked(k, nil, err)
			}
		}

		next := m.pullNextBatchLocked()
		if len(next) == 0 {
			m.sem.Release(1)
			m.mu.Unlock()
			return
		}
		m.mu.Unlock()
		batch = next
	}
}

func (m *Manager[K, V]) callMultiWithRetry(batch []K, policy retry.Policy) (map[K]*V, error) {
	for {
		type multiResult struct {
			values map[K]*V
			err    error
		}
		resultCh := make(chan multiResult, 1)
		m.multiProvider(batch, func(values map[K]*V, err error) {
			select {
			case resultCh <- multiResult{values: values, err: err}:
			default:
			}
		})
		res := <-resultCh
		if res.err == nil {
			return res.values, nil
		}
		if !policy.ShouldRetry() {
			return nil, lighterr.WrapProvider(res.err)
		}
		if d := policy.TimeInterval(); d > 0 {
			time.Sleep(d)
		}
		policy = policy.Next()
	}
}

// scheduleLocked dispatches as many freshKeys as there are free worker
// slots and enqueues the remainder, per spec §4.9's schedule(). Must be
// called with mu held.
func (m *Manager[K, V]) scheduleLocked(freshKeys []K) {
	if len(freshKeys) == 0 {
		return
	}
	if m.monoProvider != nil {
		for _, k := range freshKeys {
			if !m.sem.TryAcquire(1) {
				m.enqueueLocked(k)
				continue
			}
			k := k
			go m.runMono(k)
		}
		return
	}

	i := 0
	for i < len(freshKeys) {
		if !m.sem.TryAcquire(1) {
			for ; i < len(freshKeys); i++ {
				m.enqueueLocked(freshKeys[i])
			}
			return
		}
		end := i + m.maxBatch
		if end > len(freshKeys) {
			end = len(freshKeys)
		}
		batch := append([]K(nil), freshKeys[i:end]...)
		i = end
		go m.runMulti(batch)
	}
}

// Package cache implements MemoryCache (spec §4.5): a fixed-capacity
// element store layered over the composite TTL+Priority+LRU store
// (package store), adding configuration, TTL randomization, memory-cost
// accounting, key validation, null-element caching, and statistics.
//
// Grounded on Krishna8167-tempuscache's Cache (cache.go), generalized
// from a bare map[string]*list.Element + ad hoc TTL/LRU bookkeeping to a
// thin configuration and accounting layer on top of store.Store, which
// already owns the TTL/priority/LRU mechanics (C2/C4/C5/C6).
package cache

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/kvflow/lighttask/clock"
	"github.com/kvflow/lighttask/store"
	"github.com/kvflow/lighttask/traceid"
)

// Priority re-exports store's priority type.
type Priority = store.Priority

// Result classifies the outcome of a Get, per spec §4.5.
type Result int

const (
	// ResultMiss means the key is absent or expired.
	ResultMiss Result = iota
	// ResultInvalidKey means a configured key validator rejected the key.
	ResultInvalidKey
	// ResultHitNull means the key holds an explicit null payload
	// (negative cache).
	ResultHitNull
	// ResultHitNonNull means the key holds a present payload.
	ResultHitNonNull
)

// Access is the outcome of a Get call.
type Access[V any] struct {
	Result Result
	Value  V // meaningful only when Result == ResultHitNonNull
}

// CostFunc computes the memory cost, in bytes, of a payload. A nil
// CostFunc defaults every element to a cost of 1 (spec §4.5: "cost
// defaults to 1 per element").
type CostFunc[V any] func(value V) int64

// KeyValidator reports whether a key is well-formed. Keys that fail
// validation are never stored and always read back as ResultInvalidKey.
type KeyValidator[K comparable] func(key K) bool

// StatisticsReport is invoked synchronously, under the cache's own lock,
// after every Get.
type StatisticsReport func(stats Stats)

// NoExpiry, passed as the ttl argument to Set, means the inserted
// element never expires regardless of the configured defaults.
const NoExpiry time.Duration = -1

// Cache is the composite element store of spec §4.5.
type Cache[K comparable, V any] struct {
	mu         sync.RWMutex
	threadSafe bool

	clk   clock.Clock
	store *store.Store[K, entry[V]]

	countLimit     int
	memoryBytes    int64
	totalCost      int64
	costOf         map[K]int64
	defaultTTL     time.Duration
	defaultTTLNull time.Duration
	jitterRange    time.Duration

	keyValidator KeyValidator[K]
	costFn       CostFunc[V]
	report       StatisticsReport
	logger       zerolog.Logger

	stats   Stats
	tracer  traceid.Counter
	cleanup *cleanupWorker[K, V]
}

// New constructs a Cache. With no options, the cache is disabled (a zero
// count limit, per spec §4.5: "Reject when memoryLimit is 0").
func New[K comparable, V any](opts ...Option[K, V]) *Cache[K, V] {
	c := &Cache[K, V]{
		threadSafe: true,
		clk:        clock.Default,
		costOf:     make(map[K]int64),
		logger:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}

	c.store = store.New[K, entry[V]](c.countLimit, c.clk, c.onEvict)
	c.stats.TraceID = c.tracer.Next()

	if c.cleanup != nil {
		c.cleanup.start(c)
	}
	return c
}

// Stop terminates the background expiration sweep, if one was
// configured via WithCleanupInterval.
func (c *Cache[K, V]) Stop() {
	if c.cleanup != nil {
		c.cleanup.stop()
	}
}

// Len returns the number of stored elements, including expired ones that
// have not yet been removed.
func (c *Cache[K, V]) Len() int {
	if c.threadSafe {
		c.mu.RLock()
		defer c.mu.RUnlock()
	}
	return c.store.Len()
}

// Get looks up key, classifying the result per spec §4.5's four-way
// access result, updating statistics and invoking the statistics report
// hook synchronously before returning.
func (c *Cache[K, V]) Get(key K) Access[V] {
	if c.threadSafe {
		c.mu.Lock()
		defer c.mu.Unlock()
	}

	if c.keyValidator != nil && !c.keyValidator(key) {
		c.stats.InvalidKeyCount++
		c.reportLocked()
		return Access[V]{Result: ResultInvalidKey}
	}

	rec, ok := c.store.Get(key)
	if !ok {
		c.stats.MissCount++
		c.reportLocked()
		c.logger.Debug().Interface("key", key).Msg("cache miss")
		return Access[V]{Result: ResultMiss}
	}

	if rec.Value.isNull {
		c.stats.NullHitCount++
		c.reportLocked()
		return Access[V]{Result: ResultHitNull}
	}

	c.stats.NonNullHitCount++
	c.reportLocked()
	return Access[V]{Result: ResultHitNonNull, Value: rec.Value.value}
}

// Set inserts or replaces key with value at the given priority and TTL.
// A nil value stores an explicit null payload (negative cache). ttl == 0
// uses the configured default for the payload's null-ness; ttl < 0
// (NoExpiry) stores the element with no expiration; ttl > 0 is used
// verbatim before jitter is applied.
//
// Reports false when the cache is disabled, the key is invalid, the
// priority tiers reject the element (store full and its priority below
// every stored element's), or the new element cannot fit even after
// evicting every other entry (spec
// §4.5: "If the new element itself would violate a cap even after full
// eviction, reject").
func (c *Cache[K, V]) Set(key K, value *V, priority Priority, ttl time.Duration) bool {
	if c.threadSafe {
		c.mu.Lock()
		defer c.mu.Unlock()
	}

	if c.countLimit <= 0 {
		return false
	}
	if c.keyValidator != nil && !c.keyValidator(key) {
		return false
	}

	isNull := value == nil
	e := entry[V]{isNull: isNull}
	if !isNull {
		e.value = *value
	}
	newCost := e.cost(c.costFn)

	// Pre-remove key's own cost contribution (re-insert semantics, mirroring
	// store.Set's "remove then insert"). costOf[key] is deleted rather than
	// merely decremented so that if makeRoom's eviction loop happens to
	// reclaim this same key (it is still physically present in the store
	// until store.Set below), onEvict's bookkeeping does not double-count it.
	oldCost, hadOld := c.costOf[key]
	if hadOld {
		c.totalCost -= oldCost
		delete(c.costOf, key)
	}
	if !c.makeRoom(newCost) {
		if hadOld {
			c.costOf[key] = oldCost
			c.totalCost += oldCost
		}
		return false
	}

	expireAt := c.expireAt(isNull, ttl)
	c.store.Set(key, e, priority, expireAt)
	if !c.store.Contains(key) {
		return false
	}
	c.costOf[key] = newCost
	c.totalCost += newCost
	c.logger.Debug().Interface("key", key).Bool("null", isNull).Msg("cache set")
	return true
}

func (c *Cache[K, V]) expireAt(isNull bool, ttl time.Duration) time.Time {
	var base time.Duration
	never := false
	switch {
	case ttl < 0:
		never = true
	case ttl > 0:
		base = ttl
	default:
		if isNull {
			base = c.defaultTTLNull
		} else {
			base = c.defaultTTL
		}
		if base <= 0 {
			never = true
		}
	}
	if never {
		return time.Time{}
	}
	return c.clk.Now().Add(jitter(base, c.jitterRange))
}

// Remove deletes key unconditionally, and reports whether it was
// present.
func (c *Cache[K, V]) Remove(key K) bool {
	if c.threadSafe {
		c.mu.Lock()
		defer c.mu.Unlock()
	}
	if old, ok := c.costOf[key]; ok {
		c.totalCost -= old
		delete(c.costOf, key)
	}
	return c.store.Remove(key)
}

// Stats returns a snapshot of the current access counters.
func (c *Cache[K, V]) Stats() Stats {
	if c.threadSafe {
		c.mu.RLock()
		defer c.mu.RUnlock()
	}
	return c.stats
}

// ResetStats zeroes every counter and issues a fresh tracing ID (spec
// §3: "Reset replaces the tracing ID with a fresh monotonic value").
func (c *Cache[K, V]) ResetStats() {
	if c.threadSafe {
		c.mu.Lock()
		defer c.mu.Unlock()
	}
	c.stats = Stats{TraceID: c.tracer.Next()}
}

func (c *Cache[K, V]) reportLocked() {
	if c.report != nil {
		c.report(c.stats)
	}
}

func (c *Cache[K, V]) onEvict(key K, _ store.Record[entry[V]], reason store.EvictReason) {
	if old, ok := c.costOf[key]; ok {
		c.totalCost -= old
		delete(c.costOf, key)
	}
	c.logger.Debug().Interface("key", key).Int("reason", int(reason)).Msg("cache evict")
}

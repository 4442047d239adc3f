package cache

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/kvflow/lighttask/clock"
)

// Option configures a Cache at construction time, generalizing the
// teacher's functional-options pattern (options.go's WithCleanupInterval)
// to the full configuration surface of spec §4.5/§6.
type Option[K comparable, V any] func(*Cache[K, V])

// WithThreadSafe controls whether Cache guards every operation with its
// own mutex. Defaults to true; set false only when the caller already
// serializes access externally.
func WithThreadSafe[K comparable, V any](safe bool) Option[K, V] {
	return func(c *Cache[K, V]) { c.threadSafe = safe }
}

// WithMemoryLimit sets both caps of spec §4.5's memoryLimit: count is the
// maximum number of stored elements, memoryBytes is the maximum sum of
// element costs. count == 0 disables the cache entirely. memoryBytes <= 0
// disables the byte cap (only count is enforced).
func WithMemoryLimit[K comparable, V any](count int, memoryBytes int64) Option[K, V] {
	return func(c *Cache[K, V]) {
		c.countLimit = count
		c.memoryBytes = memoryBytes
	}
}

// WithDefaultTTL sets the TTL applied to non-null payloads when Set is
// called with ttl == 0.
func WithDefaultTTL[K comparable, V any](d time.Duration) Option[K, V] {
	return func(c *Cache[K, V]) { c.defaultTTL = d }
}

// WithDefaultTTLForNull sets the TTL applied to explicit null payloads
// when Set is called with ttl == 0.
func WithDefaultTTLForNull[K comparable, V any](d time.Duration) Option[K, V] {
	return func(c *Cache[K, V]) { c.defaultTTLNull = d }
}

// WithTTLJitter sets the uniform +/- randomization window applied to
// every insert's effective TTL, to desynchronize expirations.
func WithTTLJitter[K comparable, V any](r time.Duration) Option[K, V] {
	return func(c *Cache[K, V]) { c.jitterRange = r }
}

// WithKeyValidator rejects keys that fail validation: Get returns
// ResultInvalidKey and Set becomes a no-op.
func WithKeyValidator[K comparable, V any](v KeyValidator[K]) Option[K, V] {
	return func(c *Cache[K, V]) { c.keyValidator = v }
}

// WithCostProvider overrides the default per-element cost of 1.
func WithCostProvider[K comparable, V any](f CostFunc[V]) Option[K, V] {
	return func(c *Cache[K, V]) { c.costFn = f }
}

// WithStatisticsReport registers a hook invoked synchronously, under the
// cache's own lock, after every Get.
func WithStatisticsReport[K comparable, V any](f StatisticsReport) Option[K, V] {
	return func(c *Cache[K, V]) { c.report = f }
}

// WithLogger attaches a zerolog.Logger for set/evict/expire diagnostics.
// A disabled logger (zerolog.Nop()) is used when this option is omitted.
func WithLogger[K comparable, V any](l zerolog.Logger) Option[K, V] {
	return func(c *Cache[K, V]) { c.logger = l }
}

// WithClock overrides the time source used for TTL comparisons, for
// deterministic tests.
func WithClock[K comparable, V any](clk clock.Clock) Option[K, V] {
	return func(c *Cache[K, V]) { c.clk = clk }
}

// WithCleanupInterval starts a background goroutine that periodically
// sweeps expired entries, adapted from the teacher's janitor.go. Without
// this option the cache relies solely on lazy expiration at Get time.
func WithCleanupInterval[K comparable, V any](d time.Duration) Option[K, V] {
	return func(c *Cache[K, V]) {
		if d <= 0 {
			return
		}
		c.cleanup = &cleanupWorker[K, V]{interval: d}
	}
}

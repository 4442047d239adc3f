package kvtasks

import (
	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"github.com/kvflow/lighttask/cache"
	"github.com/kvflow/lighttask/queue"
	"github.com/kvflow/lighttask/retry"
)

// Option configures a Manager at construction time.
type Option[K comparable, V any] func(*Manager[K, V])

// WithMonoProvider sets the manager's per-key provider. Mutually
// exclusive with WithMultiProvider.
func WithMonoProvider[K comparable, V any](p MonoProvideFunc[K, V]) Option[K, V] {
	return func(m *Manager[K, V]) { m.monoProvider = p }
}

// WithMultiProvider sets the manager's batched provider, with batches of
// up to maxBatch keys. Mutually exclusive with WithMonoProvider.
func WithMultiProvider[K comparable, V any](p MultiProvideFunc[K, V], maxBatch int) Option[K, V] {
	return func(m *Manager[K, V]) {
		m.multiProvider = p
		if maxBatch > 0 {
			m.maxBatch = maxBatch
		}
	}
}

// WithMaxRunningTasks bounds the number of concurrent worker slots (spec
// §4.9's maxRunningTasks), backed by golang.org/x/sync/semaphore.Weighted.
func WithMaxRunningTasks[K comparable, V any](n int64) Option[K, V] {
	return func(m *Manager[K, V]) { m.sem = semaphore.NewWeighted(n) }
}

// WithMaxQueueingTasks bounds the pending-queue capacity (spec §4.9's
// maxQueueingTasks), enforced via package queue.
func WithMaxQueueingTasks[K comparable, V any](n int) Option[K, V] {
	return func(m *Manager[K, V]) { m.queue = queue.New[K](n) }
}

// WithPriorityStrategy selects LIFO or FIFO scheduling/overflow
// discipline (spec §4.6/§4.9). Defaults to LIFO.
func WithPriorityStrategy[K comparable, V any](s PriorityStrategy) Option[K, V] {
	return func(m *Manager[K, V]) { m.strategy = s }
}

// WithRetryPolicy sets the retry policy applied to provider failures
// (spec §4.9's retryCount, generalized to a full retry.Policy).
func WithRetryPolicy[K comparable, V any](p retry.Policy) Option[K, V] {
	return func(m *Manager[K, V]) { m.retryPolicy = p }
}

// WithCache supplies a pre-configured cache.Cache (spec §4.9's
// cacheConfig) instead of letting the Manager build a default one.
func WithCache[K comparable, V any](c *cache.Cache[K, V]) Option[K, V] {
	return func(m *Manager[K, V]) { m.cache = c }
}

// WithElementPriority sets the single cache priority the Manager applies
// to every element it writes on successful provider completion. The
// distilled fetch API (spec §4.9) never surfaces priority at the
// call site, so it is a manager-wide constant configured here rather
// than threaded per Fetch call (see DESIGN.md, Open Question:
// "per-key priority at the Manager layer").
func WithElementPriority[K comparable, V any](p cache.Priority) Option[K, V] {
	return func(m *Manager[K, V]) { m.elementPriority = p }
}

// WithDispatcher overrides how completion callbacks are invoked.
func WithDispatcher[K comparable, V any](d Dispatcher) Option[K, V] {
	return func(m *Manager[K, V]) { m.dispatch = d }
}

// WithLogger attaches a zerolog.Logger for schedule/evict/retry
// diagnostics.
func WithLogger[K comparable, V any](l zerolog.Logger) Option[K, V] {
	return func(m *Manager[K, V]) { m.logger = l }
}

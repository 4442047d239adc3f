package cache

import (
	"math/rand"
	"time"
)

// makeRoom evicts, in the order required by spec §4.5 ("(a) expired, (b)
// lowest-priority LRU"), until newCost would fit under the configured
// memory-byte limit, or the store is empty. Reports whether the new
// element now fits.
//
// Replaces the teacher's evictOldest (eviction.go), which only knew a
// single count-based LRU eviction; here cost accounting sits above the
// store's own count-capacity eviction, which already applies the same
// expired-then-LRU order internally (store.Store.Set).
func (c *Cache[K, V]) makeRoom(newCost int64) bool {
	fits := func() bool {
		return c.memoryBytes <= 0 || c.totalCost+newCost <= c.memoryBytes
	}
	for !fits() && c.store.Len() > 0 {
		if expired := c.store.RemoveExpired(); len(expired) > 0 {
			continue
		}
		if _, _, ok := c.store.RemoveLRU(); !ok {
			break
		}
	}
	return fits()
}

// jitter applies a uniform offset in [-r, +r] to base, clamped at 0
// (spec §4.5: "base + uniform(-range, +range), clamped to ≥ 0").
func jitter(base, r time.Duration) time.Duration {
	if r <= 0 {
		return base
	}
	offset := time.Duration(rand.Int63n(2*int64(r)+1)) - r
	d := base + offset
	if d < 0 {
		return 0
	}
	return d
}

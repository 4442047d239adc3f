package store

import (
	"testing"
	"time"

	"github.com/kvflow/lighttask/clock"
)

func TestStoreTTLExpiryIsLazilyRemovedOnGet(t *testing.T) {
	clk := clock.NewManual(time.Unix(0, 0))
	s := New[string, int](0, clk, nil)

	s.Set("a", 1, 0, clk.Now().Add(time.Second))
	if _, ok := s.Get("a"); !ok {
		t.Fatalf("expected hit before expiry")
	}

	clk.Advance(2 * time.Second)
	if _, ok := s.Get("a"); ok {
		t.Fatalf("expected miss after expiry")
	}
	if s.Len() != 0 {
		t.Fatalf("expired entry should have been removed, len=%d", s.Len())
	}
}

func TestStoreRemoveExpiredSweepsAllStaleEntries(t *testing.T) {
	clk := clock.NewManual(time.Unix(0, 0))
	s := New[string, int](0, clk, nil)

	s.Set("a", 1, 0, clk.Now().Add(time.Second))
	s.Set("b", 2, 0, clk.Now().Add(2*time.Second))
	s.Set("c", 3, 0, clk.Now().Add(time.Hour))

	clk.Advance(3 * time.Second)
	removed := s.RemoveExpired()
	if len(removed) != 2 {
		t.Fatalf("removed = %v, want 2 entries", removed)
	}
	if s.Len() != 1 || !s.Contains("c") {
		t.Fatalf("expected only c to survive, len=%d", s.Len())
	}
}

func TestStoreEvictionPrefersExpiredSlotOverValidLRU(t *testing.T) {
	clk := clock.NewManual(time.Unix(0, 0))
	var evictedReason EvictReason
	var evictedKey string
	s := New[string, int](2, clk, func(key string, rec Record[int], reason EvictReason) {
		evictedKey, evictedReason = key, reason
	})

	s.Set("stale", 1, 1, clk.Now().Add(time.Second)) // will expire soon
	s.Set("fresh", 2, 1, clk.Now().Add(time.Hour))   // same priority tier, should survive

	clk.Advance(2 * time.Second) // "stale" is now expired but not yet swept

	// Inserting a third key while full should reclaim the stale slot
	// instead of evicting the still-valid "fresh" entry, even though
	// "fresh" is the priority/LRU structure's own LRU victim.
	s.Set("new", 3, 1, clk.Now().Add(time.Hour))

	if s.Contains("stale") {
		t.Fatalf("stale entry should have been reclaimed")
	}
	if !s.Contains("fresh") {
		t.Fatalf("fresh entry should have survived")
	}
	if !s.Contains("new") {
		t.Fatalf("new entry should be present")
	}
	if evictedKey != "stale" || evictedReason != EvictExpired {
		t.Fatalf("expected stale reclaimed via EvictExpired callback, got key=%s reason=%v", evictedKey, evictedReason)
	}
}

func TestStoreHeapTierBijectionAfterMixedOps(t *testing.T) {
	clk := clock.NewManual(time.Unix(0, 0))
	s := New[string, int](4, clk, nil)

	s.Set("a", 1, 1, clk.Now().Add(time.Minute))
	s.Set("b", 2, 2, clk.Now().Add(2*time.Minute))
	s.Set("c", 3, 1, clk.Now().Add(3*time.Minute))
	s.Remove("a")
	s.Set("d", 4, 3, clk.Now().Add(4*time.Minute))

	// every surviving key must be retrievable and the heap/tier sizes
	// must agree (bijection: one TTL heap slot per stored record).
	for _, k := range []string{"b", "c", "d"} {
		if !s.Contains(k) {
			t.Fatalf("expected %s present", k)
		}
	}
	if s.ttlHeap.Len() != s.Len() {
		t.Fatalf("heap len %d != store len %d", s.ttlHeap.Len(), s.Len())
	}
}

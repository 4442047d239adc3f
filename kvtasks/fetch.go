package kvtasks

import "github.com/kvflow/lighttask/cache"

// Fetch resolves a single key: a cache hit (including a cached explicit
// null, and an invalid key) invokes cb immediately; a miss coalesces with
// any other pending request for the same key and schedules (or queues)
// exactly one provider attempt (spec §4.9).
func (m *Manager[K, V]) Fetch(key K, cb func(value *V, err error)) {
	m.fetchBatch([]K{key}, func(_ int, _ K, v *V, err error) { cb(v, err) })
}

// FetchMany resolves keys, invoking cb once per input position (spec
// §4.9: "guarantees exactly one callback invocation per input position",
// including once per duplicate). All misses in keys are classified and
// scheduled together under a single mutex acquisition, so concurrently
// missed keys are eligible to batch onto the same multi-provider worker
// (spec §4.9 step 4).
func (m *Manager[K, V]) FetchMany(keys []K, cb func(key K, value *V, err error)) {
	m.fetchBatch(keys, func(_ int, key K, v *V, err error) { cb(key, v, err) })
}

// FetchAll resolves keys and invokes cb exactly once, after every key has
// resolved, with the aggregated result at each index corresponding to the
// key at the same index in keys (spec §5 "Ordering guarantees": "the
// order of the final aggregated list matches the order of the input keys
// (duplicates reproduced in place)").
func (m *Manager[K, V]) FetchAll(keys []K, cb func(values []*V, errs []error)) {
	if len(keys) == 0 {
		cb(nil, nil)
		return
	}

	values := make([]*V, len(keys))
	errs := make([]error, len(keys))
	counter := &lockedCounter{remaining: len(keys)}

	m.fetchBatch(keys, func(idx int, _ K, v *V, err error) {
		done := counter.record(func() {
			values[idx] = v
			errs[idx] = err
		})
		if !done {
			return
		}
		cb(values, errs)
	})
}

// fetchBatch implements spec §4.9's algorithm: classify every key against
// C7 under one mutex acquisition, coalesce misses into the pending table,
// collect the keys that are newly in flight into freshKeys, and schedule
// all of them together so a multi-provider can batch concurrently-missed
// keys onto the same worker. cb is invoked once per input position
// (position idx, not deduplicated by key) so duplicate keys in keys each
// get their own callback invocation, in the shape FetchAll needs to
// reproduce duplicates in place.
func (m *Manager[K, V]) fetchBatch(keys []K, cb func(idx int, key K, value *V, err error)) {
	m.mu.Lock()

	var freshKeys []K
	for idx, key := range keys {
		idx, key := idx, key
		access := m.cache.Get(key)
		switch access.Result {
		case cache.ResultHitNonNull:
			v := access.Value
			m.dispatch(func() { cb(idx, key, &v, nil) })
			continue
		case cache.ResultHitNull:
			m.dispatch(func() { cb(idx, key, nil, nil) })
			continue
		case cache.ResultInvalidKey:
			// Spec §7: "Invalid key — not an error; a distinct
			// success-with-null outcome." Indistinguishable from a cached
			// null payload at the callback boundary; C7's own stats
			// record it as its own category.
			m.dispatch(func() { cb(idx, key, nil, nil) })
			continue
		}

		_, alreadyPending := m.pending[key]
		m.pending[key] = append(m.pending[key], func(k K, v *V, err error) { cb(idx, k, v, err) })
		if !alreadyPending {
			freshKeys = append(freshKeys, key)
		}
	}

	m.scheduleLocked(freshKeys)
	m.mu.Unlock()
}

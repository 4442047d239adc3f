// Package traceid provides the monotonically increasing counter that
// issues Stats' tracing IDs (spec §4.5). A cache draws one ID when it is
// built and a fresh one on every ResetStats, so the accesses counted
// between two resets can be correlated with any structured log line
// emitted for them.
//
// Grounded on the teacher's own stats.go (Krishna8167-tempuscache), which
// holds its hit/miss counters behind sync/atomic rather than a mutex; this
// package generalizes that pattern into a standalone counter usable by both
// cache and kvtasks.
package traceid

import "sync/atomic"

// Counter is a concurrency-safe monotonically increasing ID generator.
// The zero value is ready to use and starts at 0; the first Next() call
// returns 1.
type Counter struct {
	n atomic.Int64
}

// Next returns the next trace ID, starting at 1.
func (c *Counter) Next() int64 {
	return c.n.Add(1)
}

// Current returns the most recently issued trace ID without advancing it
// (0 if Next has never been called).
func (c *Counter) Current() int64 {
	return c.n.Load()
}

// Reset returns the counter to its initial state. Cache.ResetStats does
// not call it: it draws a fresh ID with Next instead.
func (c *Counter) Reset() {
	c.n.Store(0)
}

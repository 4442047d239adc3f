package kvtasks

import "sync"

// lockedCounter serializes writes from concurrently completing Fetch
// callbacks and reports when the last one has landed, backing
// FetchAll's aggregation barrier.
type lockedCounter struct {
	mu        sync.Mutex
	remaining int
}

func (c *lockedCounter) record(write func()) (done bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	write()
	c.remaining--
	return c.remaining == 0
}

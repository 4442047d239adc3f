package kvtasks

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kvflow/lighttask/lighterr"
	"github.com/kvflow/lighttask/retry"
)

func TestFetchCoalescesConcurrentCallersForSameKey(t *testing.T) {
	var calls int32
	release := make(chan struct{})
	m := New[string, int](
		WithMonoProvider[string, int](func(key string, cb func(v *int, err error)) {
			atomic.AddInt32(&calls, 1)
			go func() {
				<-release
				v := 42
				cb(&v, nil)
			}()
		}),
		WithMaxRunningTasks[string, int](4),
	)
	defer m.Stop()

	var wg sync.WaitGroup
	results := make([]int, 5)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			m.Fetch("k", func(v *int, err error) {
				if assert.NoError(t, err) {
					results[i] = *v
				}
			})
		}(i)
	}

	require.Eventually(t, func() bool { return atomic.LoadInt32(&calls) == 1 }, time.Second, time.Millisecond)
	close(release)
	wg.Wait()

	require.Eventually(t, func() bool {
		for _, r := range results {
			if r != 42 {
				return false
			}
		}
		return true
	}, time.Second, time.Millisecond)

	require.EqualValues(t, 1, atomic.LoadInt32(&calls), "provider should be invoked exactly once")
}

func TestFetchCacheHitAvoidsProvider(t *testing.T) {
	var calls int32
	m := New[string, int](
		WithMonoProvider[string, int](func(key string, cb func(v *int, err error)) {
			atomic.AddInt32(&calls, 1)
			v := 1
			cb(&v, nil)
		}),
	)
	defer m.Stop()

	first := make(chan int, 1)
	m.Fetch("a", func(v *int, err error) { first <- *v })
	<-first

	second := make(chan int, 1)
	m.Fetch("a", func(v *int, err error) { second <- *v })
	<-second

	require.EqualValues(t, 1, atomic.LoadInt32(&calls), "second fetch should be a cache hit")
}

func TestFetchNullPayloadIsCachedAndReturned(t *testing.T) {
	var calls int32
	m := New[string, int](
		WithMonoProvider[string, int](func(key string, cb func(v *int, err error)) {
			atomic.AddInt32(&calls, 1)
			cb(nil, nil)
		}),
	)
	defer m.Stop()

	done := make(chan bool, 1)
	m.Fetch("missing", func(v *int, err error) { done <- v == nil && err == nil })
	require.True(t, <-done, "expected nil value, nil error for explicit null payload")

	done2 := make(chan bool, 1)
	m.Fetch("missing", func(v *int, err error) { done2 <- v == nil && err == nil })
	<-done2
	require.EqualValues(t, 1, atomic.LoadInt32(&calls), "cached null should not re-invoke the provider")
}

func TestFetchManyInvokesCallbackPerKeyIncludingDuplicates(t *testing.T) {
	m := New[string, int](
		WithMonoProvider[string, int](func(key string, cb func(v *int, err error)) {
			v := len(key)
			cb(&v, nil)
		}),
	)
	defer m.Stop()

	keys := []string{"a", "bb", "a"}
	var mu sync.Mutex
	var got []string
	var wg sync.WaitGroup
	wg.Add(len(keys))
	m.FetchMany(keys, func(key string, v *int, err error) {
		mu.Lock()
		got = append(got, key)
		mu.Unlock()
		wg.Done()
	})
	wg.Wait()

	require.Len(t, got, 3, "expected one callback invocation per input position")
}

func TestFetchAllAggregatesAllResults(t *testing.T) {
	m := New[string, int](
		WithMonoProvider[string, int](func(key string, cb func(v *int, err error)) {
			if key == "bad" {
				cb(nil, errBoom{})
				return
			}
			v := len(key)
			cb(&v, nil)
		}),
	)
	defer m.Stop()

	done := make(chan struct {
		values []*int
		errs   []error
	}, 1)
	m.FetchAll([]string{"a", "bb", "bad"}, func(values []*int, errs []error) {
		done <- struct {
			values []*int
			errs   []error
		}{values, errs}
	})

	out := <-done
	require.Len(t, out.values, 3)
	require.Len(t, out.errs, 3)

	require.NotNil(t, out.values[0])
	require.Equal(t, 1, *out.values[0])
	require.NoError(t, out.errs[0])

	require.NotNil(t, out.values[1])
	require.Equal(t, 2, *out.values[1])
	require.NoError(t, out.errs[1])

	require.Nil(t, out.values[2])
	require.Error(t, out.errs[2], "expected the \"bad\" position to carry the provider error")
}

func TestFetchAllReproducesDuplicateKeysInPlace(t *testing.T) {
	m := New[string, int](
		WithMonoProvider[string, int](func(key string, cb func(v *int, err error)) {
			v := len(key)
			cb(&v, nil)
		}),
	)
	defer m.Stop()

	done := make(chan struct {
		values []*int
		errs   []error
	}, 1)
	m.FetchAll([]string{"a", "bb", "a"}, func(values []*int, errs []error) {
		done <- struct {
			values []*int
			errs   []error
		}{values, errs}
	})

	out := <-done
	require.Len(t, out.values, 3, "duplicate input key must still occupy its own output position")
	require.Len(t, out.errs, 3)

	for i, want := range []int{1, 2, 1} {
		require.NoError(t, out.errs[i])
		require.NotNil(t, out.values[i])
		require.Equal(t, want, *out.values[i], "position %d", i)
	}
}

type errBoom struct{}

func (errBoom) Error() string { return "boom" }

func TestLIFOOverflowEvictsOldestQueuedKey(t *testing.T) {
	release := make(chan struct{})
	m := New[string, int](
		WithMonoProvider[string, int](func(key string, cb func(v *int, err error)) {
			<-release
			v := 1
			cb(&v, nil)
		}),
		WithMaxRunningTasks[string, int](1),
		WithMaxQueueingTasks[string, int](1),
		WithPriorityStrategy[string, int](LIFO),
	)
	defer m.Stop()

	// "first" occupies the only worker slot and blocks on release.
	m.Fetch("first", func(v *int, err error) {})
	require.Eventually(t, func() bool {
		m.mu.Lock()
		defer m.mu.Unlock()
		return m.queue.Len() == 0 && len(m.pending) == 1
	}, time.Second, time.Millisecond)

	// "second" fills the one queue slot.
	m.Fetch("second", func(v *int, err error) {})
	require.Eventually(t, func() bool {
		m.mu.Lock()
		defer m.mu.Unlock()
		return m.queue.Contains("second")
	}, time.Second, time.Millisecond)

	// "third" overflows the queue; under LIFO this evicts "second".
	var secondErr, thirdErr error
	var wg sync.WaitGroup
	wg.Add(1)
	m.mu.Lock()
	m.pending["second"] = append(m.pending["second"], func(_ string, _ *int, err error) {
		secondErr = err
		wg.Done()
	})
	m.mu.Unlock()
	m.Fetch("third", func(v *int, err error) { thirdErr = err })

	wg.Wait()
	require.Equal(t, lighterr.ErrEvictedByPriorityStrategy, secondErr, "expected \"second\" to be evicted by the LIFO overflow")

	close(release)
	_ = thirdErr
}

func TestFIFOOverflowRejectsNewestKey(t *testing.T) {
	release := make(chan struct{})
	m := New[string, int](
		WithMonoProvider[string, int](func(key string, cb func(v *int, err error)) {
			<-release
			v := 1
			cb(&v, nil)
		}),
		WithMaxRunningTasks[string, int](1),
		WithMaxQueueingTasks[string, int](1),
		WithPriorityStrategy[string, int](FIFO),
	)
	defer m.Stop()

	m.Fetch("first", func(v *int, err error) {})
	require.Eventually(t, func() bool {
		m.mu.Lock()
		defer m.mu.Unlock()
		return len(m.pending) == 1
	}, time.Second, time.Millisecond)

	m.Fetch("second", func(v *int, err error) {})
	require.Eventually(t, func() bool {
		m.mu.Lock()
		defer m.mu.Unlock()
		return m.queue.Contains("second")
	}, time.Second, time.Millisecond)

	var thirdErr error
	done := make(chan struct{})
	m.Fetch("third", func(v *int, err error) {
		thirdErr = err
		close(done)
	})
	<-done

	require.Equal(t, lighterr.ErrEvictedByPriorityStrategy, thirdErr, "expected \"third\" itself to be rejected under FIFO overflow")

	m.mu.Lock()
	stillQueued := m.queue.Contains("second")
	m.mu.Unlock()
	require.True(t, stillQueued, "FIFO overflow must leave the existing queue untouched")

	close(release)
}

func TestRetryPolicyAppliesToProviderFailureAndExhausts(t *testing.T) {
	var calls int32
	m := New[string, int](
		WithMonoProvider[string, int](func(key string, cb func(v *int, err error)) {
			atomic.AddInt32(&calls, 1)
			cb(nil, errBoom{})
		}),
		WithRetryPolicy[string, int](retry.Finite(2, retry.Fixed{D: time.Millisecond})),
	)
	defer m.Stop()

	done := make(chan error, 1)
	m.Fetch("x", func(v *int, err error) { done <- err })
	err := <-done

	require.EqualValues(t, 3, atomic.LoadInt32(&calls), "1 + 2 retries")
	require.Equal(t, error(errBoom{}), lighterr.Cause(err))
}

func TestMultiProviderBatchIsAtomicOnFailure(t *testing.T) {
	var calls int32
	m := New[string, int](
		WithMultiProvider[string, int](func(keys []string, cb func(values map[string]*int, err error)) {
			atomic.AddInt32(&calls, 1)
			cb(nil, errBoom{})
		}, 4),
	)
	defer m.Stop()

	var wg sync.WaitGroup
	wg.Add(2)
	var errA, errB error
	m.Fetch("a", func(v *int, err error) { errA = err; wg.Done() })
	m.Fetch("b", func(v *int, err error) { errB = err; wg.Done() })
	wg.Wait()

	require.Error(t, errA)
	require.Error(t, errB)
}

func TestMultiProviderPresentAndAbsentKeysClassifyDifferently(t *testing.T) {
	m := New[string, int](
		WithMultiProvider[string, int](func(keys []string, cb func(values map[string]*int, err error)) {
			v := 9
			cb(map[string]*int{"present": &v}, nil)
		}, 4),
	)
	defer m.Stop()

	var presentVal, absentVal *int
	var presentErr, absentErr error
	var wg sync.WaitGroup
	wg.Add(2)
	m.Fetch("present", func(v *int, err error) { presentVal, presentErr = v, err; wg.Done() })
	m.Fetch("absent", func(v *int, err error) { absentVal, absentErr = v, err; wg.Done() })
	wg.Wait()

	require.NoError(t, presentErr)
	require.NotNil(t, presentVal)
	require.Equal(t, 9, *presentVal)

	require.NoError(t, absentErr)
	require.Nil(t, absentVal, "expected absent key to resolve to an explicit null")
}

func TestFetchManyBatchesConcurrentMissesOntoOneMultiProviderCall(t *testing.T) {
	var batchSizes []int
	var mu sync.Mutex
	m := New[string, int](
		WithMultiProvider[string, int](func(keys []string, cb func(values map[string]*int, err error)) {
			mu.Lock()
			batchSizes = append(batchSizes, len(keys))
			mu.Unlock()
			values := make(map[string]*int, len(keys))
			for _, k := range keys {
				v := len(k)
				values[k] = &v
			}
			cb(values, nil)
		}, 8),
		WithMaxRunningTasks[string, int](1),
	)
	defer m.Stop()

	var wg sync.WaitGroup
	wg.Add(3)
	m.FetchMany([]string{"a", "bb", "ccc"}, func(key string, v *int, err error) {
		if assert.NoError(t, err) && assert.NotNil(t, v) {
			assert.Equal(t, len(key), *v)
		}
		wg.Done()
	})
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, batchSizes, 1, "expected one provider call covering all 3 concurrently-missed keys")
	require.Equal(t, 3, batchSizes[0])
}

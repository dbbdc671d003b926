package tilecache

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pspoerri/fastloader/internal/geom"
)

// fakeFetcher drains jobs and completes them immediately, counting how
// many distinct fetches it actually performed (spec.md §4.1's
// coalescing requirement: concurrent Acquires for the same key must
// result in exactly one fetch).
func fakeFetcher(t *testing.T, jobs chan FetchJob, cache *Cache, fail map[string]bool) *int32 {
	t.Helper()
	var count int32
	go func() {
		for job := range jobs {
			atomic.AddInt32(&count, 1)
			for i := range job.Buf {
				job.Buf[i] = 0x42
			}
			var err error
			if fail != nil && fail[job.Key.coord] {
				err = assert.AnError
			}
			cache.Complete(job.Key, err)
		}
	}()
	return &count
}

func TestAcquireCacheMissFetchesAndReturnsReady(t *testing.T) {
	jobs := make(chan FetchJob, 4)
	cache := New(1024, jobs, nil)
	fakeFetcher(t, jobs, cache, nil)

	key := NewKey(0, geom.Coord{0, 0})
	h, err := cache.Acquire(key, 0, geom.Coord{0, 0}, func() []byte { return make([]byte, 16) })
	require.NoError(t, err)
	require.NotNil(t, h)
	assert.Equal(t, Ready, h.Tile().State())
	assert.Equal(t, byte(0x42), h.Tile().Buf[0])
	cache.Release(h)
	close(jobs)
}

func TestAcquireCoalescesConcurrentRequests(t *testing.T) {
	jobs := make(chan FetchJob, 4)
	cache := New(1024, jobs, nil)
	count := fakeFetcher(t, jobs, cache, nil)

	key := NewKey(0, geom.Coord{1, 1})
	var wg sync.WaitGroup
	handles := make([]*Handle, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			h, err := cache.Acquire(key, 0, geom.Coord{1, 1}, func() []byte { return make([]byte, 16) })
			require.NoError(t, err)
			handles[i] = h
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(count), "8 concurrent Acquires for the same key must coalesce into 1 fetch")
	for _, h := range handles {
		cache.Release(h)
	}
	close(jobs)
}

func TestAcquirePropagatesFetchFailureWithoutCaching(t *testing.T) {
	jobs := make(chan FetchJob, 4)
	cache := New(1024, jobs, nil)
	fakeFetcher(t, jobs, cache, map[string]bool{"0,0": true})

	key := NewKey(0, geom.Coord{0, 0})
	_, err := cache.Acquire(key, 0, geom.Coord{0, 0}, func() []byte { return make([]byte, 16) })
	require.Error(t, err)
	assert.Equal(t, 0, cache.Len(), "a failed fetch must not leave a cached entry")
	close(jobs)
}

func TestMakeRoomEvictsOnlyRefcountOneInLRUOrder(t *testing.T) {
	jobs := make(chan FetchJob, 8)
	cache := New(32, jobs, nil) // room for exactly 2x16-byte tiles
	fakeFetcher(t, jobs, cache, nil)

	k0 := NewKey(0, geom.Coord{0})
	k1 := NewKey(0, geom.Coord{1})
	h0, err := cache.Acquire(k0, 0, geom.Coord{0}, func() []byte { return make([]byte, 16) })
	require.NoError(t, err)
	h1, err := cache.Acquire(k1, 0, geom.Coord{1}, func() []byte { return make([]byte, 16) })
	require.NoError(t, err)

	// Both tiles held (refcount 2): neither is evictable yet.
	require.Equal(t, int64(32), cache.UsedBytes())

	// Release k0 so it becomes evictable (refcount drops to 1), keep k1 held.
	cache.Release(h0)

	k2 := NewKey(0, geom.Coord{2})
	h2, err := cache.Acquire(k2, 0, geom.Coord{2}, func() []byte { return make([]byte, 16) })
	require.NoError(t, err)

	assert.Equal(t, 2, cache.Len(), "k0 must have been evicted to make room for k2, leaving k1 and k2")

	cache.Release(h1)
	cache.Release(h2)
	close(jobs)
}

func TestAcquireBlocksUntilRoomFreed(t *testing.T) {
	jobs := make(chan FetchJob, 8)
	cache := New(16, jobs, nil) // room for exactly 1x16-byte tile
	fakeFetcher(t, jobs, cache, nil)

	k0 := NewKey(0, geom.Coord{0})
	h0, err := cache.Acquire(k0, 0, geom.Coord{0}, func() []byte { return make([]byte, 16) })
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		k1 := NewKey(0, geom.Coord{1})
		h1, err := cache.Acquire(k1, 0, geom.Coord{1}, func() []byte { return make([]byte, 16) })
		require.NoError(t, err)
		cache.Release(h1)
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("Acquire for a second tile must block while the cache is full and the only resident tile is held")
	case <-time.After(50 * time.Millisecond):
	}

	cache.Release(h0)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Acquire did not unblock after room was freed")
	}
	close(jobs)
}

// Package tilecache implements the bounded, refcounted, LRU physical-tile
// cache described in spec.md §4.1: a map from (level, tileCoord) to a
// PhysicalTile that coalesces concurrent requests for the same tile and
// evicts least-recently-used tiles only when nothing still references them.
package tilecache

import (
	"container/list"
	"fmt"
	"strings"
	"sync"

	"github.com/pspoerri/fastloader/internal/bufpool"
	"github.com/pspoerri/fastloader/internal/geom"
)

// State is a PhysicalTile's position in the Empty→Loading→Ready→Evicted /
// Loading→Failed→Evicted state machine (spec.md §4.1 "States"). A tile that
// doesn't exist in the cache map is implicitly Empty; Evicted tiles are
// simply removed from the map, so only Loading/Ready/Failed are modeled
// explicitly.
type State int

const (
	Loading State = iota
	Ready
	Failed
)

// Key identifies a physical tile by pyramid level and tile coordinate.
type Key struct {
	Level int
	coord string
}

// NewKey builds a Key from a level and tile coordinate.
func NewKey(level int, tileCoord geom.Coord) Key {
	var b strings.Builder
	for i, v := range tileCoord {
		if i > 0 {
			b.WriteByte(',')
		}
		fmt.Fprintf(&b, "%d", v)
	}
	return Key{Level: level, coord: b.String()}
}

// PhysicalTile is one cache slot: the contiguous buffer for one physical
// tile plus its lifecycle bookkeeping (spec.md §3 "PhysicalTile").
type PhysicalTile struct {
	Key       Key
	TileCoord geom.Coord
	Buf       []byte

	state    State
	err      error
	refcount int // cache residency (1) + one per outstanding Handle
	waiters  []chan result
	bytes    int64
	elem     *list.Element // non-nil while present in the LRU list (refcount == 1)
}

// State returns the tile's current lifecycle state. Safe to call only while
// holding a Handle or from within the cache's own goroutines.
func (t *PhysicalTile) State() State { return t.state }

// Err returns the fetch error if the tile's state is Failed.
func (t *PhysicalTile) Err() error { return t.err }

type result struct {
	tile *PhysicalTile
	err  error
}

// Handle is a live reference to a Ready PhysicalTile. Callers must call
// Release exactly once per successful Acquire.
type Handle struct {
	tile  *PhysicalTile
	cache *Cache
}

// Tile returns the underlying physical tile. Only valid to read its Buf
// while the Handle is held.
func (h *Handle) Tile() *PhysicalTile { return h.tile }

// FetchJob is submitted to a TileFetcher when a tile must be loaded from
// the external TileLoader (see fetcher.go).
type FetchJob struct {
	Key       Key
	Level     int
	TileCoord geom.Coord
	Buf       []byte
}

// Cache is the bounded, refcounted, LRU physical-tile cache for one pyramid
// level. One Cache instance exists per level so capacity accounting never
// crosses levels (spec.md §6 "cacheCapacityMB[L]").
type Cache struct {
	mu   sync.Mutex
	room *sync.Cond // broadcast when Release makes a tile evictable or a failed fetch frees its bytes

	capacityBytes int64
	usedBytes     int64

	tiles map[Key]*PhysicalTile
	lru   *list.List // least-recently-used at Front, most-recently-used at Back

	jobs chan<- FetchJob
	pool *bufpool.Pool // evicted tile buffers are returned here instead of left to GC
}

// New constructs a Cache with the given byte budget. jobs is the channel a
// TileFetcher pool reads from; Acquire enqueues a FetchJob on a cache miss.
// pool receives evicted tile buffers back for reuse by the next miss of the
// same size; it may be nil to fall back to plain GC.
func New(capacityBytes int64, jobs chan<- FetchJob, pool *bufpool.Pool) *Cache {
	c := &Cache{
		capacityBytes: capacityBytes,
		tiles:         make(map[Key]*PhysicalTile),
		lru:           list.New(),
		jobs:          jobs,
		pool:          pool,
	}
	c.room = sync.NewCond(&c.mu)
	return c
}

// Acquire returns a Handle to the Ready physical tile for key, fetching it
// first if necessary. It blocks until the tile is Ready or the fetch fails.
// newBuf is called at most once, only on a cache miss, to allocate the
// tile's backing buffer (its length fixes the tile's byte cost).
func (c *Cache) Acquire(key Key, level int, tileCoord geom.Coord, newBuf func() []byte) (*Handle, error) {
	c.mu.Lock()
	if tile, ok := c.tiles[key]; ok {
		switch tile.state {
		case Ready:
			c.touchLocked(tile)
			tile.refcount++
			c.mu.Unlock()
			return &Handle{tile: tile, cache: c}, nil
		case Loading:
			ch := make(chan result, 1)
			tile.waiters = append(tile.waiters, ch)
			c.mu.Unlock()
			r := <-ch
			if r.err != nil {
				return nil, r.err
			}
			c.mu.Lock()
			r.tile.refcount++
			if r.tile.elem != nil {
				c.lru.Remove(r.tile.elem)
				r.tile.elem = nil
			}
			c.mu.Unlock()
			return &Handle{tile: r.tile, cache: c}, nil
		}
	}

	buf := newBuf()
	bytes := int64(len(buf))
	for !c.makeRoomLocked(bytes) {
		c.room.Wait()
	}

	tile := &PhysicalTile{
		Key:       key,
		TileCoord: tileCoord.Clone(),
		Buf:       buf,
		state:     Loading,
		refcount:  1, // cache residency; the creating caller waits below, not via refcount yet
		bytes:     bytes,
	}
	ch := make(chan result, 1)
	tile.waiters = append(tile.waiters, ch)
	c.tiles[key] = tile
	c.usedBytes += bytes
	c.mu.Unlock()

	c.jobs <- FetchJob{Key: key, Level: level, TileCoord: tileCoord, Buf: buf}

	r := <-ch
	if r.err != nil {
		return nil, r.err
	}
	c.mu.Lock()
	tile.refcount++
	c.mu.Unlock()
	return &Handle{tile: tile, cache: c}, nil
}

// Complete is called by a TileFetcher worker when a fetch finishes. err,
// when non-nil, transitions the slot to Failed and removes it from the
// cache without ever caching the failure (spec.md §4.1 "Policy").
func (c *Cache) Complete(key Key, fetchErr error) {
	c.mu.Lock()
	tile, ok := c.tiles[key]
	if !ok {
		c.mu.Unlock()
		return
	}
	waiters := tile.waiters
	tile.waiters = nil

	if fetchErr != nil {
		tile.state = Failed
		tile.err = fetchErr
		delete(c.tiles, key)
		c.usedBytes -= tile.bytes
		c.room.Broadcast()
	} else {
		tile.state = Ready
	}
	c.mu.Unlock()

	for _, w := range waiters {
		if fetchErr != nil {
			w <- result{err: fetchErr}
		} else {
			w <- result{tile: tile}
		}
	}
}

// Release decrements a handle's refcount. Once it drops to cache-only
// residency (1), the tile becomes evictable and rejoins the LRU list.
func (c *Cache) Release(h *Handle) {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := h.tile
	t.refcount--
	if t.refcount < 1 {
		panic("fastloader: tilecache refcount underflow")
	}
	if t.refcount == 1 {
		t.elem = c.lru.PushBack(t)
		c.room.Broadcast()
	}
}

// touchLocked moves a Ready, currently-evictable tile out of LRU residency
// ordering ahead of a new handle being issued to it (it will be reinserted
// by Release once the handle count drops back to cache-only).
func (c *Cache) touchLocked(t *PhysicalTile) {
	if t.elem != nil {
		c.lru.Remove(t.elem)
		t.elem = nil
	}
}

// makeRoomLocked evicts least-recently-used, refcount==1 tiles until there
// is room for an additional `need` bytes, or until none remain evictable.
// Returns whether enough room now exists; on false the caller must wait on
// c.room and retry (spec.md §4.1: "if none such exists, wait until one
// appears"). Callers must hold c.mu.
func (c *Cache) makeRoomLocked(need int64) bool {
	for c.usedBytes+need > c.capacityBytes && c.lru.Len() > 0 {
		front := c.lru.Front()
		victim := front.Value.(*PhysicalTile)
		c.lru.Remove(front)
		victim.elem = nil
		delete(c.tiles, victim.Key)
		c.usedBytes -= victim.bytes
		if c.pool != nil {
			c.pool.Put(victim.Buf)
		}
	}
	return c.usedBytes+need <= c.capacityBytes
}

// UsedBytes reports current cache-resident byte usage (for tests / metrics).
func (c *Cache) UsedBytes() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.usedBytes
}

// Len reports the number of tiles currently resident (any state).
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.tiles)
}

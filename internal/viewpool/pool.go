package viewpool

import (
	"sync/atomic"

	"github.com/pspoerri/fastloader/internal/geom"
)

// Pool is the per-level bounded free pool of View buffers (spec.md §3
// "Free-pool size per level ≤ configured parallelism per level"). It is the
// engine's primary back-pressure knob (spec.md §9): ViewAllocator blocks in
// Acquire when the pool is empty, and Recycler pushes a view back once its
// release count reaches zero.
type Pool struct {
	free chan *View
}

// New pre-allocates `capacity` View buffers of the given shape/element size
// and seeds the free pool with all of them, matching spec.md §5 ("the free
// pool is itself the primary back-pressure knob").
func New(capacity int, shape geom.Dims, elemSize int, releaseCount int) *Pool {
	p := &Pool{free: make(chan *View, capacity)}
	bufLen := shape.Product() * int64(elemSize)
	for i := 0; i < capacity; i++ {
		v := &View{
			Shape:                 shape.Clone(),
			ElemSize:              elemSize,
			Buf:                   make([]byte, bufLen),
			releaseCountTarget:    int32(releaseCount),
			releaseCountRemaining: int32(releaseCount),
		}
		p.free <- v
	}
	return p
}

// Acquire blocks until a View buffer is available and returns it; the
// caller stamps its geometry (planner.StampGeometry).
func (p *Pool) Acquire() *View {
	return <-p.free
}

// Release resets v and returns it to the pool immediately, without
// honoring the release-count protocol. Recycler.Release calls it once a
// view's release count reaches zero.
func (p *Pool) Release(v *View) {
	v.reset()
	p.free <- v
}

// Recycler implements spec.md §4.7: the consumer returns a view,
// releaseCountRemaining decrements, and the buffer rejoins the free pool
// only once it reaches zero.
type Recycler struct {
	pool *Pool
}

// NewRecycler builds a Recycler bound to a Pool.
func NewRecycler(pool *Pool) *Recycler { return &Recycler{pool: pool} }

// Release processes one consumer return of v. It reports whether the
// buffer was pushed back to the free pool (releaseCountRemaining reached
// zero) this call.
func (r *Recycler) Release(v *View) bool {
	if atomic.AddInt32(&v.releaseCountRemaining, -1) > 0 {
		return false
	}
	r.pool.Release(v)
	return true
}

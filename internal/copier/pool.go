package copier

import (
	"sync"

	"github.com/pspoerri/fastloader/internal/geom"
	"github.com/pspoerri/fastloader/internal/tilecache"
)

// Job is one Copier unit of work: copy a rectangle out of a cached physical
// tile into a view buffer, then release the tile handle and report
// completion. It mirrors spec.md §3 "TileRequest" plus the cache handle the
// BorderPlanner/TileCache already resolved for it.
type Job struct {
	Cache  *tilecache.Cache
	Handle *tilecache.Handle

	SrcStrides []int64
	SrcOrigin  int64

	DstBuf     []byte
	DstStrides []int64
	DstOrigin  int64

	Shape    geom.Dims
	ElemSize int
	Reversed []bool

	// OnDone runs after the copy and the TileCache release, in the
	// Copier worker's own goroutine. It must decrement the owning view's
	// outstandingCopies counter and enqueue the view to the Finalizer
	// when it reaches zero (spec.md §4.5 "On completion").
	OnDone func()
}

// Pool is a fixed-size set of Copier workers (spec.md §4.5 "Pool size M").
type Pool struct {
	jobs chan Job
	wg   sync.WaitGroup
}

// NewPool starts n Copier workers reading from an internally owned, bounded
// job queue of the given depth (back-pressure per spec.md §9 "bounded
// queues, not unbounded channels").
func NewPool(n, queueDepth int) *Pool {
	p := &Pool{
		jobs: make(chan Job, queueDepth),
	}
	p.wg.Add(n)
	for i := 0; i < n; i++ {
		go p.worker()
	}
	return p
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for job := range p.jobs {
		Copy(job.DstBuf, job.DstStrides, job.DstOrigin, job.Handle.Tile().Buf, job.SrcStrides, job.SrcOrigin, job.Shape, job.ElemSize, job.Reversed)
		job.Cache.Release(job.Handle)
		if job.OnDone != nil {
			job.OnDone()
		}
	}
}

// Submit enqueues a Job, blocking if the pool's queue is full. Submit must
// not be called after Close.
func (p *Pool) Submit(j Job) { p.jobs <- j }

// Close stops accepting new jobs and blocks until every worker has drained
// the queue and exited.
func (p *Pool) Close() {
	close(p.jobs)
	p.wg.Wait()
}

// Package viewpool implements the View type, its bounded free pool, the
// ordered-delivery reorder buffer, and the Recycler — spec.md §3 ("View"),
// §4.6 ("Finalizer & ordering") and §4.7 ("Recycler").
package viewpool

import (
	"sync"
	"sync/atomic"

	"github.com/pspoerri/fastloader/internal/geom"
)

// View is a contiguous element buffer spanning one center tile plus a
// configurable halo, as described in spec.md §3.
type View struct {
	Level           int
	CenterTileCoord geom.Coord
	Origin          geom.Coord
	Shape           geom.Dims
	Buf             []byte
	ElemSize        int

	FrontFill []int64
	BackFill  []int64
	CenterMin geom.Coord
	CenterMax geom.Coord

	// TraversalIndex is this view's position in the Traversal order; used
	// by the reorder buffer in ordered mode.
	TraversalIndex int64

	outstandingCopies int32
	err               error
	errMu             sync.Mutex

	releaseCountTarget    int32
	releaseCountRemaining int32
}

// Strides returns the View buffer's element strides (row-major, last
// dimension innermost).
func (v *View) Strides() []int64 {
	d := len(v.Shape)
	strides := make([]int64, d)
	s := int64(1)
	for i := d - 1; i >= 0; i-- {
		strides[i] = s
		s *= v.Shape[i]
	}
	return strides
}

// SetOutstandingCopies initializes the pending-copy counter (spec.md §4.3
// step 3: "Record outstandingCopies on the view = total number of
// TileRequests emitted for this view").
func (v *View) SetOutstandingCopies(n int) { atomic.StoreInt32(&v.outstandingCopies, int32(n)) }

// DecrementOutstandingCopies decrements the pending-copy counter and
// reports whether it just reached zero (spec.md §3 invariant: "view is
// emitted exactly when it transitions to 0 AND border-fill has run").
func (v *View) DecrementOutstandingCopies() bool {
	return atomic.AddInt32(&v.outstandingCopies, -1) == 0
}

// OutstandingCopies reports the current pending-copy count (tests only).
func (v *View) OutstandingCopies() int32 { return atomic.LoadInt32(&v.outstandingCopies) }

// SetErr records a fetch error that should surface to the consumer for this
// view (spec.md §7 "Propagation policy").
func (v *View) SetErr(err error) {
	v.errMu.Lock()
	defer v.errMu.Unlock()
	if v.err == nil {
		v.err = err
	}
}

// Err returns the recorded fetch error, if any.
func (v *View) Err() error {
	v.errMu.Lock()
	defer v.errMu.Unlock()
	return v.err
}

// reset clears a View's per-allocation state before it returns to the free
// pool, matching spec.md §4.7 ("buffer is scrubbed of state, counters
// reset"). The backing Buf is reused as-is; its bytes are overwritten by
// the next allocation's copies and fill pass.
func (v *View) reset() {
	v.Level = 0
	v.CenterTileCoord = nil
	v.Origin = nil
	v.FrontFill = nil
	v.BackFill = nil
	v.CenterMin = nil
	v.CenterMax = nil
	v.TraversalIndex = 0
	atomic.StoreInt32(&v.outstandingCopies, 0)
	v.err = nil
	atomic.StoreInt32(&v.releaseCountRemaining, v.releaseCountTarget)
}

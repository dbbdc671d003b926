package viewpool

import (
	"sort"
	"sync"
)

// Reorder implements the ordered-delivery reorder buffer from spec.md
// §4.6: views are submitted in completion order, keyed by their traversal
// index, and released downstream in the longest contiguous
// completed-prefix order. Pool size bounds the admissible reorder gap
// (spec.md §4.6 "the pool size is the max reorder gap admitted"), so no
// additional bound is enforced here.
type Reorder struct {
	mu      sync.Mutex
	pending map[int64]*View
	next    int64
	out     chan<- *View
}

// NewReorder builds a Reorder buffer that writes released, in-order views
// to out.
func NewReorder(out chan<- *View) *Reorder {
	return &Reorder{pending: make(map[int64]*View), out: out}
}

// Submit registers a completed view. It releases v, and any other view
// already buffered that extends the contiguous run starting at the next
// expected traversal index.
func (r *Reorder) Submit(v *View) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pending[v.TraversalIndex] = v
	for {
		w, ok := r.pending[r.next]
		if !ok {
			break
		}
		delete(r.pending, r.next)
		r.next++
		r.out <- w
	}
}

// Close flushes any views still buffered in pending, in ascending
// traversal-index order, even if the contiguous run starting at next never
// completed. Every view submitted before Close has a unique traversal
// index, so once the caller knows all expected Submit calls have returned
// this drains exactly the remainder; it exists so a permanently missing
// index (a bug elsewhere) can't strand buffered views when the caller is
// about to close the downstream channel. Submit must not be called after
// Close.
func (r *Reorder) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.pending) == 0 {
		return
	}
	indices := make([]int64, 0, len(r.pending))
	for idx := range r.pending {
		indices = append(indices, idx)
	}
	sort.Slice(indices, func(i, j int) bool { return indices[i] < indices[j] })
	for _, idx := range indices {
		r.out <- r.pending[idx]
		delete(r.pending, idx)
	}
}

package fastloader

import "github.com/pspoerri/fastloader/internal/viewpool"

// View is a delivered view: one center tile plus its populated halo,
// returned to the caller by Consumer.Next (spec.md §3 "View").
type View struct {
	Level           int
	CenterTileCoord []int64
	Origin          []int64
	Shape           []int64
	// Buf is the view's element buffer, row-major with the last dimension
	// innermost, length product(Shape)*ElementSize bytes. It must not be
	// retained after Release.
	Buf      []byte
	ElemSize int

	// CenterMin and CenterMax bound the in-file center region within Buf,
	// per dimension: indices in [CenterMin[i], CenterMax[i]) along axis i
	// are real file data, everything outside is halo (border fill or
	// overlap with a neighboring tile's halo). A dimension fully outside
	// the file (CenterMin[i] == CenterMax[i]) means this view has no valid
	// data along that axis at all.
	CenterMin []int64
	CenterMax []int64

	// Err is set when one or more physical tiles backing this view failed
	// to load (spec.md §7 "Propagation policy"); the view is still
	// delivered, but its contents are not fully populated.
	Err error

	engine   *Engine
	internal *viewpool.View
}

// Consumer is the per-level delivery interface (spec.md §6 "Consumer
// interface"): Next/Release.
type Consumer struct {
	engine *Engine
	lp     *levelPipeline
}

// Next returns the next view for this level, in traversal order if the
// engine was constructed with WithOrdered(true), otherwise in completion
// order. It returns ErrClosed once every view for this level's traversal
// has been delivered.
func (c *Consumer) Next() (*View, error) {
	v, ok := <-c.lp.out
	if !ok {
		return nil, ErrClosed
	}
	return &View{
		Level:           v.Level,
		CenterTileCoord: v.CenterTileCoord,
		Origin:          v.Origin,
		Shape:           v.Shape,
		Buf:             v.Buf,
		ElemSize:        v.ElemSize,
		CenterMin:       v.CenterMin,
		CenterMax:       v.CenterMax,
		Err:             v.Err(),
		engine:          c.engine,
		internal:        v,
	}, nil
}

// Release returns a view to the engine. Once Release has been called the
// configured release-count number of times for this view's level, its
// buffer rejoins the free pool and must not be read again (spec.md §4.7
// "Recycler").
func (c *Consumer) Release(v *View) {
	c.lp.recycler.Release(v.internal)
}

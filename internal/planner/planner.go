// Package planner implements the BorderPlanner pipeline stage from spec.md
// §4.3: given a view's geometry and a file's bounds, it computes the set of
// TileRequests needed to populate the view (both the in-file intersection
// and any BorderCreator-sourced halo requests) and wires each one through
// the TileCache and Copier pool.
package planner

import (
	"github.com/pspoerri/fastloader/internal/border"
	"github.com/pspoerri/fastloader/internal/bufpool"
	"github.com/pspoerri/fastloader/internal/copier"
	"github.com/pspoerri/fastloader/internal/geom"
	"github.com/pspoerri/fastloader/internal/tilecache"
	"github.com/pspoerri/fastloader/internal/viewpool"
)

// StampGeometry computes and records a view's origin/fill/center-region
// fields for the given center tile coordinate (spec.md §3 "View"). The
// view's Shape/Buf/ElemSize are assumed already set by the free pool.
func StampGeometry(v *viewpool.View, level int, centerTileCoord geom.Coord, fullDims, tileDims geom.Dims, radii []int64) {
	v.Level = level
	v.CenterTileCoord = centerTileCoord.Clone()
	v.Origin = geom.ViewOrigin(centerTileCoord, tileDims, radii)

	d := len(v.Shape)
	viewRect := geom.NewRect(v.Origin, v.Shape)
	fileRect := geom.NewRect(make(geom.Coord, d), fullDims)
	intersection := viewRect.Intersect(fileRect)

	frontFill := make([]int64, d)
	backFill := make([]int64, d)
	centerMin := make(geom.Coord, d)
	centerMax := make(geom.Coord, d)
	for i := 0; i < d; i++ {
		if intersection.Empty() {
			frontFill[i] = v.Shape[i]
			backFill[i] = 0
			centerMin[i] = v.Shape[i]
			centerMax[i] = v.Shape[i]
			continue
		}
		front := intersection.Min[i] - viewRect.Min[i]
		back := viewRect.Max[i] - intersection.Max[i]
		if front < 0 {
			front = 0
		}
		if back < 0 {
			back = 0
		}
		frontFill[i] = front
		backFill[i] = back
		centerMin[i] = front
		centerMax[i] = v.Shape[i] - back
	}
	v.FrontFill = frontFill
	v.BackFill = backFill
	v.CenterMin = centerMin
	v.CenterMax = centerMax
}

// Deps bundles the collaborators Plan needs to dispatch TileRequests.
type Deps struct {
	Cache         *tilecache.Cache
	CopierPool    *copier.Pool
	BorderCreator border.BorderCreator
	BufPool       *bufpool.Pool
	FullDims      geom.Dims
	TileDims      geom.Dims
	ElemSize      int
	// OnComplete runs once a view's outstandingCopies reaches zero; it
	// must run the BorderCreator's fill pass and hand the view to the
	// Finalizer (engine.go wires this to the reorder buffer or a direct
	// delivery channel per spec.md §4.6).
	OnComplete func(v *viewpool.View)
}

// Plan computes and dispatches every TileRequest for v (spec.md §4.3),
// fanning each one out to its own goroutine so TileCache.Acquire's
// blocking-until-Ready wait never serializes the requests behind each
// other; coalescing of concurrent requests for the same tile happens
// inside TileCache itself.
func Plan(v *viewpool.View, d *Deps) {
	viewRect := geom.NewRect(v.Origin, v.Shape)
	fileRect := geom.NewRect(make(geom.Coord, len(v.Shape)), d.FullDims)
	intersection := viewRect.Intersect(fileRect)

	type req struct {
		tileCoord geom.Coord
		srcRect   geom.Rect
		dstRect   geom.Rect
		reversed  []bool
	}
	var reqs []req

	if !intersection.Empty() {
		nd := len(d.FullDims)
		lo := make(geom.Coord, nd)
		hi := make(geom.Coord, nd)
		for i := 0; i < nd; i++ {
			lo[i] = intersection.Min[i] / d.TileDims[i]
			hi[i] = (intersection.Max[i] - 1) / d.TileDims[i]
		}
		forEachTileCoord(lo, hi, func(tileCoord geom.Coord) {
			tileRect := geom.TileRect(tileCoord, d.TileDims, d.FullDims)
			overlap := intersection.Intersect(tileRect)
			if overlap.Empty() {
				return
			}
			srcRect := geom.Rect{Min: overlap.Min.Clone(), Max: overlap.Max.Clone()}
			for i := 0; i < nd; i++ {
				srcRect.Min[i] -= tileRect.Min[i]
				srcRect.Max[i] -= tileRect.Min[i]
			}
			dstRect := geom.Rect{Min: overlap.Min.Clone(), Max: overlap.Max.Clone()}
			for i := 0; i < nd; i++ {
				dstRect.Min[i] -= viewRect.Min[i]
				dstRect.Max[i] -= viewRect.Min[i]
			}
			reqs = append(reqs, req{tileCoord: tileCoord, srcRect: srcRect, dstRect: dstRect, reversed: make([]bool, nd)})
		})
	}

	vg := &border.ViewGeometry{
		Shape:     v.Shape,
		FrontFill: v.FrontFill,
		BackFill:  v.BackFill,
		CenterMin: v.CenterMin,
		CenterMax: v.CenterMax,
	}
	for _, br := range d.BorderCreator.ExtraRequests(vg) {
		reqs = append(reqs, req{tileCoord: br.TileCoord, srcRect: br.SrcRect, dstRect: br.DstRect, reversed: br.AxisReversals})
	}

	v.SetOutstandingCopies(len(reqs))
	if len(reqs) == 0 {
		d.OnComplete(v)
		return
	}

	viewStrides := v.Strides()
	tileStrides := stridesOf(d.TileDims)

	for _, r := range reqs {
		r := r
		go func() {
			key := tilecache.NewKey(v.Level, r.tileCoord)
			handle, err := d.Cache.Acquire(key, v.Level, r.tileCoord, func() []byte {
				size := d.TileDims.Product() * int64(d.ElemSize)
				if d.BufPool != nil {
					return d.BufPool.Get(size)
				}
				return make([]byte, size)
			})
			if err != nil {
				v.SetErr(err)
				if v.DecrementOutstandingCopies() {
					d.OnComplete(v)
				}
				return
			}
			shape := r.srcRect.Dims()
			d.CopierPool.Submit(copier.Job{
				Cache:      d.Cache,
				Handle:     handle,
				SrcStrides: tileStrides,
				SrcOrigin:  offsetOf(r.srcRect.Min, tileStrides),
				DstBuf:     v.Buf,
				DstStrides: viewStrides,
				DstOrigin:  offsetOf(r.dstRect.Min, viewStrides),
				Shape:      shape,
				ElemSize:   d.ElemSize,
				Reversed:   r.reversed,
				OnDone: func() {
					if v.DecrementOutstandingCopies() {
						d.OnComplete(v)
					}
				},
			})
		}()
	}
}

func offsetOf(coord geom.Coord, strides []int64) int64 {
	var off int64
	for i, c := range coord {
		off += c * strides[i]
	}
	return off
}

func stridesOf(shape geom.Dims) []int64 {
	d := len(shape)
	strides := make([]int64, d)
	s := int64(1)
	for i := d - 1; i >= 0; i-- {
		strides[i] = s
		s *= shape[i]
	}
	return strides
}

// forEachTileCoord enumerates every tile coordinate in [lo,hi] inclusive,
// dimension 0 outermost.
func forEachTileCoord(lo, hi geom.Coord, fn func(geom.Coord)) {
	d := len(lo)
	coord := lo.Clone()
	for {
		fn(coord.Clone())
		i := d - 1
		for i >= 0 {
			coord[i]++
			if coord[i] <= hi[i] {
				break
			}
			coord[i] = lo[i]
			i--
		}
		if i < 0 {
			break
		}
	}
}

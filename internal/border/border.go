package border

import "github.com/pspoerri/fastloader/internal/geom"

// BorderCreator decides how a view's ghost region (ghost = halo outside the
// center tile, SPEC_FULL.md GLOSSARY) is populated. Implementations provide
// two capabilities (spec.md §4.4): producing extra TileRequests for halo
// regions sourced from neighbouring file tiles, and a fill pass that
// completes whatever the extra requests didn't cover.
type BorderCreator interface {
	// ExtraRequests returns additional tile coordinates (beyond the file's
	// existing tiles overlapping the view's intersection with the file)
	// that should be read to source the ghost region, e.g. mirrored
	// neighbours for reflective padding. Implementations that source
	// everything from a fill pass (Constant, Replicate) return nil.
	//
	// For each returned request, axisReversals indicates which axes must be
	// copied back-to-front (mirror padding); identity (all false) otherwise.
	ExtraRequests(v *ViewGeometry) []BorderTileRequest

	// Fill runs after every TileRequest for the view — including
	// ExtraRequests' own — has completed. It populates whatever part of the
	// ghost region is still unset, using the already-populated center
	// region (and any extra-request data) as its source. Implementations
	// must process dimensions in a fixed order 0..D-1, filling the front and
	// back extents at each level before recursing into the narrower inner
	// slab, so that edge and corner regions are each written exactly once.
	Fill(v *ViewGeometry, buf []byte, elemSize int)
}

// ViewGeometry is the subset of View state a BorderCreator needs: shape,
// origin, and how far the view extends past the file on each side.
type ViewGeometry struct {
	Shape      geom.Dims // buffer shape (tileDims + 2*radii)
	FrontFill  []int64   // per-dim element count before the file start
	BackFill   []int64   // per-dim element count past the file end
	CenterMin  geom.Coord // per-dim offset of the file-backed region within the buffer (== FrontFill, clamped)
	CenterMax  geom.Coord // per-dim end offset (exclusive) of the file-backed region within the buffer
}

// BorderTileRequest is a halo tile request a BorderCreator asks the
// BorderPlanner to additionally issue against the TileCache.
type BorderTileRequest struct {
	TileCoord     geom.Coord
	SrcRect       geom.Rect // rectangle within the physical tile to copy
	DstRect       geom.Rect // rectangle within the view buffer to write
	AxisReversals []bool
}

// ConstantBorderCreator fills the ghost region with a fixed value on every
// sample byte lane (spec.md §4.4 "Constant"). It never issues extra tile
// requests; Fill writes the configured value directly.
type ConstantBorderCreator struct {
	// Value is the byte pattern written into each element of the ghost
	// region, repeated/truncated to elemSize by Fill.
	Value []byte
}

// ExtraRequests implements BorderCreator.
func (c *ConstantBorderCreator) ExtraRequests(*ViewGeometry) []BorderTileRequest { return nil }

// Fill implements BorderCreator. It recurses dimension by dimension so that
// corners are written exactly once: at dimension i it fills the front/back
// slabs along axis i, spanning the full buffer range on dims < i (already
// filled by earlier steps) and only the file-backed center range on
// dims > i, then moves on to dimension i+1.
func (c *ConstantBorderCreator) Fill(v *ViewGeometry, buf []byte, elemSize int) {
	pattern := make([]byte, elemSize)
	for i := range pattern {
		if len(c.Value) > 0 {
			pattern[i] = c.Value[i%len(c.Value)]
		}
	}
	fillRecursive(v, buf, elemSize, 0, func(dst []byte) {
		for off := 0; off+elemSize <= len(dst); off += elemSize {
			copy(dst[off:off+elemSize], pattern)
		}
	})
}

// ReplicateBorderCreator duplicates the outermost populated slab of the
// center region outward into the ghost region along each axis (spec.md
// §4.4 "Default/Replicate"). It never issues extra tile requests.
type ReplicateBorderCreator struct{}

// ExtraRequests implements BorderCreator.
func (ReplicateBorderCreator) ExtraRequests(*ViewGeometry) []BorderTileRequest { return nil }

// Fill implements BorderCreator.
func (ReplicateBorderCreator) Fill(v *ViewGeometry, buf []byte, elemSize int) {
	fillRecursive(v, buf, elemSize, 0, nil)
}

// fillRecursive implements the dimension-ordered recursive fill shared by
// the built-in BorderCreators, per spec.md §4.4: "The fill pass must be
// recursive over dimensions so that edge/corner regions are handled exactly
// once; implementers must process dimensions in a fixed order (0..D-1),
// filling front and back extents at each level before recursing into the
// inner slab."
//
// writeConstant, when non-nil, is used instead of edge-replication to
// populate a newly-filled region (Constant border creator); when nil, the
// region is replicated from the nearest already-populated slab along the
// current axis (Replicate border creator).
func fillRecursive(v *ViewGeometry, buf []byte, elemSize int, dim int, writeConstant func([]byte)) {
	d := len(v.Shape)
	if dim == d {
		return
	}

	strides := stridesOf(v.Shape)

	// The "active" range on dims < dim has already been widened to the
	// full buffer extent (dims < dim are already entirely filled by
	// earlier recursive steps); dims > dim are still only the file-backed
	// center range. Bounds below reflect that invariant.
	lo := make(geom.Coord, d)
	hi := make(geom.Coord, d)
	for i := 0; i < d; i++ {
		if i < dim {
			lo[i] = 0
			hi[i] = v.Shape[i]
		} else {
			lo[i] = v.CenterMin[i]
			hi[i] = v.CenterMax[i]
		}
	}

	front := v.FrontFill[dim]
	back := v.BackFill[dim]

	if front > 0 {
		frontLo := lo.Clone()
		frontHi := hi.Clone()
		frontLo[dim] = 0
		frontHi[dim] = front
		fillSlab(buf, strides, elemSize, dim, frontLo, frontHi, v.CenterMin[dim], writeConstant)
	}
	if back > 0 {
		backLo := lo.Clone()
		backHi := hi.Clone()
		backLo[dim] = v.Shape[dim] - back
		backHi[dim] = v.Shape[dim]
		fillSlab(buf, strides, elemSize, dim, backLo, backHi, v.CenterMax[dim]-1, writeConstant)
	}

	fillRecursive(v, buf, elemSize, dim+1, writeConstant)
}

// fillSlab writes every element in [lo,hi) either with writeConstant (if
// set) or by copying from the source hyperplane obtained by replacing
// coordinate dim with sourceIndex (edge replication).
func fillSlab(buf []byte, strides []int64, elemSize int, dim int, lo, hi geom.Coord, sourceIndex int64, writeConstant func([]byte)) {
	d := len(lo)
	shape := make(geom.Dims, d)
	for i := 0; i < d; i++ {
		shape[i] = hi[i] - lo[i]
	}
	total := shape.Product()
	if total <= 0 {
		return
	}

	idx := make(geom.Coord, d)
	for n := int64(0); n < total; n++ {
		// unravel n into idx over shape
		rem := n
		for i := d - 1; i >= 0; i-- {
			if shape[i] == 0 {
				idx[i] = 0
				continue
			}
			idx[i] = rem % shape[i]
			rem /= shape[i]
		}

		dstOff := int64(0)
		for i := 0; i < d; i++ {
			dstOff += (lo[i] + idx[i]) * strides[i]
		}
		dst := buf[dstOff*int64(elemSize) : dstOff*int64(elemSize)+int64(elemSize)]

		if writeConstant != nil {
			writeConstant(dst)
			continue
		}

		srcOff := int64(0)
		for i := 0; i < d; i++ {
			v := lo[i] + idx[i]
			if i == dim {
				v = sourceIndex
			}
			srcOff += v * strides[i]
		}
		src := buf[srcOff*int64(elemSize) : srcOff*int64(elemSize)+int64(elemSize)]
		copy(dst, src)
	}
}

// stridesOf returns element strides (row-major, dimension D-1 innermost)
// for a buffer of the given shape.
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

// Package copier implements the D-dimensional strided-memcpy Copier pool
// described in spec.md §4.5: copying a rectangle out of a physical tile's
// buffer into a view buffer, with optional per-axis reversal for
// mirror-padded borders.
package copier

import "github.com/pspoerri/fastloader/internal/geom"

// Copy performs one TileRequest's worth of work: copies the rectangle of
// shape `shape` from src (strided by srcStrides, element-sized elemSize,
// starting at element offset srcOrigin) into dst (strided by dstStrides,
// starting at element offset dstOrigin), reversing the traversal direction
// on any axis set in reversed.
//
// The innermost axis (last index) is copied with a single bulk move when
// not reversed; reversed innermost copies go element-by-element back to
// front. Outer axes simply iterate, recursing inward — reversals compose
// freely across axes (spec.md §4.5 "corner-mirrored cases are supported").
func Copy(dst []byte, dstStrides []int64, dstOrigin int64, src []byte, srcStrides []int64, srcOrigin int64, shape geom.Dims, elemSize int, reversed []bool) {
	copyDim(dst, dstStrides, dstOrigin, src, srcStrides, srcOrigin, shape, elemSize, reversed, 0)
}

func copyDim(dst []byte, dstStrides []int64, dstOff int64, src []byte, srcStrides []int64, srcOff int64, shape geom.Dims, elemSize int, reversed []bool, dim int) {
	d := len(shape)
	n := shape[dim]
	if n == 0 {
		return
	}

	if dim == d-1 {
		copyInnermost(dst, dstOff, dstStrides[dim], src, srcOff, srcStrides[dim], n, elemSize, reversed[dim])
		return
	}

	for i := int64(0); i < n; i++ {
		srcIdx := i
		if reversed[dim] {
			srcIdx = n - 1 - i
		}
		copyDim(dst, dstStrides, dstOff+i*dstStrides[dim],
			src, srcStrides, srcOff+srcIdx*srcStrides[dim],
			shape, elemSize, reversed, dim+1)
	}
}

// copyInnermost copies n elements along the innermost axis. When the axis
// stride is 1 (contiguous) and not reversed, it does a single bulk move;
// otherwise it copies element by element (handles both strided innermost
// axes and reversed ones).
func copyInnermost(dst []byte, dstOff, dstStride int64, src []byte, srcOff, srcStride int64, n int64, elemSize int, reversed bool) {
	if !reversed && dstStride == 1 && srcStride == 1 {
		dstByte := dstOff * int64(elemSize)
		srcByte := srcOff * int64(elemSize)
		length := n * int64(elemSize)
		copy(dst[dstByte:dstByte+length], src[srcByte:srcByte+length])
		return
	}
	for i := int64(0); i < n; i++ {
		srcIdx := i
		if reversed {
			srcIdx = n - 1 - i
		}
		d := (dstOff + i*dstStride) * int64(elemSize)
		s := (srcOff + srcIdx*srcStride) * int64(elemSize)
		copy(dst[d:d+int64(elemSize)], src[s:s+int64(elemSize)])
	}
}

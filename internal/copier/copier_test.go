package copier

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/pspoerri/fastloader/internal/geom"
)

func TestCopy2DSubrect(t *testing.T) {
	// src is a 4x4 grid 0..15 row-major; copy the 2x2 center block into a
	// 2x2 dst.
	src := make([]byte, 16)
	for i := range src {
		src[i] = byte(i)
	}
	srcStrides := []int64{4, 1}

	dst := make([]byte, 4)
	dstStrides := []int64{2, 1}

	Copy(dst, dstStrides, 0, src, srcStrides, 1*4+1, geom.Dims{2, 2}, 1, []bool{false, false})

	assert.Equal(t, []byte{5, 6, 9, 10}, dst)
}

func TestCopyReversedInnermostAxis(t *testing.T) {
	src := []byte{1, 2, 3, 4}
	dst := make([]byte, 4)
	Copy(dst, []int64{1}, 0, src, []int64{1}, 0, geom.Dims{4}, 1, []bool{true})
	assert.Equal(t, []byte{4, 3, 2, 1}, dst)
}

func TestCopyReversedOuterAxis(t *testing.T) {
	// 2x2 src row-major {1,2, 3,4}; reversing dim 0 should swap the rows.
	src := []byte{1, 2, 3, 4}
	dst := make([]byte, 4)
	Copy(dst, []int64{2, 1}, 0, src, []int64{2, 1}, 0, geom.Dims{2, 2}, 1, []bool{true, false})
	assert.Equal(t, []byte{3, 4, 1, 2}, dst)
}

func TestCopyMultiByteElement(t *testing.T) {
	// elemSize 2, 2 elements: {0xAA,0xBB} {0xCC,0xDD}
	src := []byte{0xAA, 0xBB, 0xCC, 0xDD}
	dst := make([]byte, 4)
	Copy(dst, []int64{1}, 0, src, []int64{1}, 0, geom.Dims{2}, 2, []bool{false})
	assert.Equal(t, src, dst)
}

func TestCopyZeroShapeIsNoop(t *testing.T) {
	src := []byte{1, 2, 3, 4}
	dst := make([]byte, 4)
	Copy(dst, []int64{2, 1}, 0, src, []int64{2, 1}, 0, geom.Dims{0, 2}, 1, []bool{false, false})
	assert.Equal(t, []byte{0, 0, 0, 0}, dst)
}

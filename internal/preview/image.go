package preview

import (
	"fmt"
	"image"
	"image/color"

	fastloader "github.com/pspoerri/fastloader"
)

// ViewToImage renders a delivered View's center tile (excluding halo) as a
// grayscale image.Image, for the demo CLI's optional preview output. Views
// with more than two dimensions are sliced at the center index of every
// axis beyond the first two, following the same "middle plane stands in
// for the volume" convention internal/mask/processor.go's noise-preview
// helpers use for a 2-D look at higher-dimensional data. Only 1- and
// 2-byte element sizes are supported (uint8 and uint16 samples); anything
// else is a caller error since this package exists purely for visual
// sanity-checking.
func ViewToImage(v *fastloader.View) (image.Image, error) {
	if len(v.Shape) < 2 {
		return nil, fmt.Errorf("preview: view has %d dims, need >= 2", len(v.Shape))
	}
	switch v.ElemSize {
	case 1, 2:
	default:
		return nil, fmt.Errorf("preview: unsupported element size %d", v.ElemSize)
	}

	rows := int(v.CenterMax[0] - v.CenterMin[0])
	cols := int(v.CenterMax[1] - v.CenterMin[1])
	if rows <= 0 || cols <= 0 {
		return nil, fmt.Errorf("preview: empty center region")
	}

	strides := stridesOf(v.Shape)
	base := baseOffset(v)

	img := image.NewGray(image.Rect(0, 0, cols, rows))
	for y := 0; y < rows; y++ {
		rowOff := base + int64(y)*strides[0]
		for x := 0; x < cols; x++ {
			off := (rowOff + int64(x)*strides[1]) * int64(v.ElemSize)
			var val uint8
			if v.ElemSize == 1 {
				val = v.Buf[off]
			} else {
				// Little-endian uint16 sample: the high byte alone is a
				// reasonable 8-bit preview downscale.
				val = v.Buf[off+1]
			}
			img.SetGray(x, y, color.Gray{Y: val})
		}
	}
	return img, nil
}

// baseOffset returns the buffer element offset of the center index of
// every axis beyond the first two (dims 0,1 are rendered in full), and
// the center-region origin for dims 0,1.
func baseOffset(v *fastloader.View) int64 {
	strides := stridesOf(v.Shape)
	var off int64
	off += v.CenterMin[0] * strides[0]
	off += v.CenterMin[1] * strides[1]
	for i := 2; i < len(v.Shape); i++ {
		off += (v.Shape[i] / 2) * strides[i]
	}
	return off
}

func stridesOf(shape []int64) []int64 {
	n := len(shape)
	strides := make([]int64, n)
	s := int64(1)
	for i := n - 1; i >= 0; i-- {
		strides[i] = s
		s *= shape[i]
	}
	return strides
}

package preview

import (
	"image"

	"github.com/disintegration/gift"
)

// Downscale shrinks img so its longer side is at most maxDim, using
// gift.Resize the same way the teacher's watercolor-rendering counterpart
// (disintegration/gift) is used for GaussianBlur/mask filters elsewhere in
// the pack — here for a Lanczos resize filter instead of a blur. A maxDim
// of 0, or an image already within bounds, returns img unchanged.
func Downscale(img image.Image, maxDim int) image.Image {
	if maxDim <= 0 {
		return img
	}
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= maxDim && h <= maxDim {
		return img
	}

	var newW, newH int
	if w >= h {
		newW = maxDim
		newH = h * maxDim / w
	} else {
		newH = maxDim
		newW = w * maxDim / h
	}
	if newW < 1 {
		newW = 1
	}
	if newH < 1 {
		newH = 1
	}

	g := gift.New(gift.Resize(newW, newH, gift.LanczosResampling))
	dst := image.NewRGBA(g.Bounds(b))
	g.Draw(dst, img)
	return dst
}

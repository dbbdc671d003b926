//go:build !cgo

package preview

import (
	"fmt"
	"image"
	"image/draw"
)

func newWebPEncoder(quality int) (Encoder, error) {
	return nil, fmt.Errorf("preview: webp encoding requires CGO (install libwebp-dev and build with CGO_ENABLED=1)")
}

func imageToRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok {
		return rgba
	}
	bounds := img.Bounds()
	rgba := image.NewRGBA(bounds)
	draw.Draw(rgba, bounds, img, bounds.Min, draw.Src)
	return rgba
}

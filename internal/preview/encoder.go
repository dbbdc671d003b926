// Package preview renders a delivered View's 2-D (or center-plane slice of
// a higher-D) buffer to an image.Image and encodes it for the demo CLI's
// optional --preview output. It is adapted from the teacher's
// internal/encode package (encoder.go/png.go/jpeg.go/webp.go), trimmed to
// drop PMTiles tile-type bookkeeping and the Terrarium elevation codec,
// which are specific to the teacher's raster-to-PMTiles pipeline and have
// no place once the tile store producing them is gone.
package preview

import (
	"fmt"
	"image"
)

// Encoder encodes a preview image into file bytes.
type Encoder interface {
	Encode(img image.Image) ([]byte, error)
	Format() string
	FileExtension() string
}

// NewEncoder builds an Encoder for the given format and (format-specific)
// quality, matching the teacher's NewEncoder switch in shape.
func NewEncoder(format string, quality int) (Encoder, error) {
	switch format {
	case "jpeg", "jpg":
		return &JPEGEncoder{Quality: quality}, nil
	case "png":
		return &PNGEncoder{}, nil
	case "webp":
		return newWebPEncoder(quality)
	default:
		return nil, fmt.Errorf("preview: unsupported format %q (supported: jpeg, png, webp)", format)
	}
}

// Package synthetic provides a procedurally generated TileLoader for tests
// and the demo CLI, so the engine can be exercised without shipping large
// fixture files. It is a reference/demo collaborator outside THE CORE
// (SPEC_FULL.md §1), grounded on MeKo-Christian-WaterColorMap's
// GeneratePerlinNoiseWithOffset (internal/mask/processor.go), which samples
// Perlin noise at a global offset so adjacent tiles never show seams.
package synthetic

import (
	"math"
	"strconv"

	"github.com/aquilax/go-perlin"

	fastloader "github.com/pspoerri/fastloader"
	"github.com/pspoerri/fastloader/internal/geom"
)

// Loader generates a single-level, D-dimensional uint8 raster from Perlin
// noise. Only the first two dimensions vary the noise field; any further
// dimensions (e.g. a channel axis) are filled with the same value,
// replicated, so the loader is usable as a stand-in for arbitrary-D
// engines without needing genuinely D-dimensional noise.
type Loader struct {
	fullDims geom.Dims
	tileDims geom.Dims
	scale    float64
	seed     int64
}

// New builds a synthetic Loader. scale controls the noise frequency
// (smaller = more detail, matching GeneratePerlinNoiseWithOffset's scale
// parameter); seed makes the field deterministic across Copy()-ed
// instances and test runs.
func New(fullDims, tileDims geom.Dims, scale float64, seed int64) *Loader {
	return &Loader{fullDims: fullDims.Clone(), tileDims: tileDims.Clone(), scale: scale, seed: seed}
}

// NbDims implements fastloader.TileLoader.
func (l *Loader) NbDims() int { return len(l.fullDims) }

// NbPyramidLevels implements fastloader.TileLoader: synthetic rasters have
// exactly one level.
func (l *Loader) NbPyramidLevels() int { return 1 }

// DimNames implements fastloader.TileLoader.
func (l *Loader) DimNames() []string {
	names := make([]string, len(l.fullDims))
	for i := range names {
		names[i] = "dim" + strconv.Itoa(i)
	}
	return names
}

// FullDims implements fastloader.TileLoader.
func (l *Loader) FullDims(level int) geom.Dims { return l.fullDims.Clone() }

// TileDims implements fastloader.TileLoader.
func (l *Loader) TileDims(level int) geom.Dims { return l.tileDims.Clone() }

// ElementSize implements fastloader.TileLoader: one byte per sample.
func (l *Loader) ElementSize() int { return 1 }

// Copy implements fastloader.TileLoader. The noise field is a pure function
// of coordinates and the seed, so copies need no independent file handle;
// this still returns an independent *Loader per the interface contract.
func (l *Loader) Copy() fastloader.TileLoader {
	return &Loader{fullDims: l.fullDims.Clone(), tileDims: l.tileDims.Clone(), scale: l.scale, seed: l.seed}
}

// LoadTileFromFile implements fastloader.TileLoader by sampling the Perlin
// field at the tile's global offset, exactly the offset-alignment trick
// GeneratePerlinNoiseWithOffset uses to keep adjacent tiles seamless.
func (l *Loader) LoadTileFromFile(buf []byte, tileCoord geom.Coord, level int, threadID int) error {
	p := perlin.NewPerlin(2.0, 2.0, 3, l.seed)
	origin := geom.TileOrigin(tileCoord, l.tileDims)
	strides := l.tileDims.Strides()

	shape := l.tileDims
	total := shape.Product()
	idx := make(geom.Coord, len(shape))
	for n := int64(0); n < total; n++ {
		rem := n
		for i := len(shape) - 1; i >= 0; i-- {
			idx[i] = rem % shape[i]
			rem /= shape[i]
		}
		nx := float64(origin[0]+idx[0]) / l.scale
		ny := float64(0)
		if len(shape) > 1 {
			ny = float64(origin[1]+idx[1]) / l.scale
		}
		val := p.Noise2D(nx, ny)
		normalized := (val + 1.0) / 2.0
		gray := normalized * 255
		if gray < 0 {
			gray = 0
		}
		if gray > 255 {
			gray = 255
		}
		off := int64(0)
		for i, v := range idx {
			off += v * strides[i]
		}
		buf[off] = uint8(math.Round(gray))
	}
	return nil
}

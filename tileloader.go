package fastloader

import "github.com/pspoerri/fastloader/internal/geom"

// TileLoader is the external collaborator the engine consumes to read
// physical tiles from whatever backs a pyramid level (file format decoding
// is explicitly out of THE CORE's scope — see SPEC_FULL.md "Non-goals").
//
// Implementations must be safe for one goroutine per TileFetcher worker to
// call LoadTileFromFile concurrently on separate Copy()-ed instances, or
// internally synchronize if they share state across copies.
type TileLoader interface {
	// NbDims returns the number of dimensions D >= 1.
	NbDims() int
	// NbPyramidLevels returns the number of resolution levels >= 1.
	NbPyramidLevels() int
	// DimNames returns a human-readable name per dimension, len == NbDims().
	DimNames() []string

	// FullDims returns the element count per dimension at the given level.
	FullDims(level int) geom.Dims
	// TileDims returns the physical tile shape per dimension at the given level.
	TileDims(level int) geom.Dims

	// LoadTileFromFile populates buf (len == product(TileDims(level)) *
	// ElementSize()) with the physical tile at tileCoord, level. It runs
	// synchronously within the calling TileFetcher worker; threadID
	// identifies the calling worker for loaders that keep per-thread state
	// (e.g. a decompression scratch buffer), matching the threadId
	// parameter existing TileLoader contracts expect.
	LoadTileFromFile(buf []byte, tileCoord geom.Coord, level int, threadID int) error

	// Copy returns a deep clone with its own independent handle to the
	// underlying file/source, so concurrent TileFetcher workers never share
	// file-position state. The returned loader must read the same data.
	Copy() TileLoader

	// ElementSize returns the byte size of one sample element (e.g. 1 for
	// uint8, 4 for float32). Used for cache capacity accounting and buffer
	// sizing.
	ElementSize() int
}

// BitsPerSampleProvider is an optional capability: loaders that can report
// their native bit depth implement it for adaptive-layer bookkeeping
// (SPEC_FULL.md "channel-as-innermost-dimension").
type BitsPerSampleProvider interface {
	BitsPerSample() int
}

// validateTileLoader performs the construction-time checks from
// SPEC_FULL.md §7 that only need the loader's static metadata (not a level
// count beyond NbPyramidLevels).
func validateTileLoader(l TileLoader) error {
	if l == nil {
		return configErrorf("tileLoader", "must not be nil")
	}
	if l.NbDims() == 0 {
		return configErrorf("tileLoader.NbDims", "must be > 0")
	}
	if l.NbPyramidLevels() == 0 {
		return configErrorf("tileLoader.NbPyramidLevels", "must be > 0")
	}
	d := l.NbDims()
	if names := l.DimNames(); len(names) != d {
		return configErrorf("tileLoader.DimNames", "length %d != nbDims %d", len(names), d)
	}
	for lvl := 0; lvl < l.NbPyramidLevels(); lvl++ {
		full := l.FullDims(lvl)
		tile := l.TileDims(lvl)
		if len(full) != d {
			return configErrorf("tileLoader.FullDims", "level %d length %d != nbDims %d", lvl, len(full), d)
		}
		if len(tile) != d {
			return configErrorf("tileLoader.TileDims", "level %d length %d != nbDims %d", lvl, len(tile), d)
		}
		for i := 0; i < d; i++ {
			if full[i] == 0 {
				return configErrorf("tileLoader.FullDims", "level %d dim %d is zero", lvl, i)
			}
			if tile[i] == 0 {
				return configErrorf("tileLoader.TileDims", "level %d dim %d is zero", lvl, i)
			}
			if full[i] < tile[i] {
				return configErrorf("tileLoader.FullDims", "level %d dim %d (%d) smaller than tile dim (%d)", lvl, i, full[i], tile[i])
			}
		}
	}
	return nil
}

package grayscale

import (
	"bytes"
	"compress/zlib"
	"fmt"
	"io"
	"os"

	fastloader "github.com/pspoerri/fastloader"
	"github.com/pspoerri/fastloader/internal/geom"
)

// Loader reads single-sample (grayscale) strip- or tile-organized TIFF
// files, including pyramidal ones (one IFD per pyramid level), and exposes
// them as a fastloader.TileLoader. It mmaps the file once and every Copy()
// shares that mapping: the mapping is read-only, so concurrent readers need
// no coordination beyond the offsets recorded in each ifd.
type Loader struct {
	path string
	data []byte // mmapped file contents, shared across Copy()s
	ifds []ifd
}

// Open mmaps path and parses its IFD chain. Every IFD must describe a
// single-sample image of the same bit depth (mixed pyramids are rejected,
// spec.md §9 has no provision for per-level sample format changes).
func Open(path string) (*Loader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	size := int(info.Size())

	ifds, _, err := parseTIFF(f)
	if err != nil {
		return nil, err
	}
	if len(ifds) == 0 {
		return nil, fmt.Errorf("grayscale: %s has no IFDs", path)
	}
	for i := range ifds {
		if ifds[i].samplesPerPixel != 1 {
			return nil, fmt.Errorf("grayscale: %s level %d has %d samples per pixel, want 1", path, i, ifds[i].samplesPerPixel)
		}
		if ifds[i].planarConfig != 1 {
			return nil, fmt.Errorf("grayscale: %s level %d has planar config %d, unsupported for single-sample images", path, i, ifds[i].planarConfig)
		}
		if ifds[i].bitsPerSample != 8 && ifds[i].bitsPerSample != 16 {
			return nil, fmt.Errorf("grayscale: %s level %d has %d bits per sample, want 8 or 16", path, i, ifds[i].bitsPerSample)
		}
		if ifds[i].bitsPerSample != ifds[0].bitsPerSample {
			return nil, fmt.Errorf("grayscale: %s level %d has %d bits per sample, level 0 has %d", path, i, ifds[i].bitsPerSample, ifds[0].bitsPerSample)
		}
	}

	data, err := mmapFile(f.Fd(), size)
	if err != nil {
		return nil, fmt.Errorf("grayscale: mmapping %s: %w", path, err)
	}

	return &Loader{path: path, data: data, ifds: ifds}, nil
}

// Close releases the file's memory mapping. Every Loader sharing this
// mapping via Copy() must stop using it first.
func (l *Loader) Close() error {
	return munmapFile(l.data)
}

// NbDims implements fastloader.TileLoader: grayscale TIFFs are 2-D, row
// (y) then column (x), matching spec.md's "dimension 0 outermost"
// convention.
func (l *Loader) NbDims() int { return 2 }

// NbPyramidLevels implements fastloader.TileLoader.
func (l *Loader) NbPyramidLevels() int { return len(l.ifds) }

// DimNames implements fastloader.TileLoader.
func (l *Loader) DimNames() []string { return []string{"y", "x"} }

// FullDims implements fastloader.TileLoader.
func (l *Loader) FullDims(level int) geom.Dims {
	d := &l.ifds[level]
	return geom.Dims{int64(d.height), int64(d.width)}
}

// TileDims implements fastloader.TileLoader. Strip-organized IFDs are
// presented as one column of full-width tiles, each RowsPerStrip rows
// tall, so BorderPlanner's tile-rect math never has to special-case
// strips.
func (l *Loader) TileDims(level int) geom.Dims {
	d := &l.ifds[level]
	if d.stripOrganized() {
		return geom.Dims{int64(d.rowsPerStrip), int64(d.width)}
	}
	return geom.Dims{int64(d.tileHeight), int64(d.tileWidth)}
}

// ElementSize implements fastloader.TileLoader.
func (l *Loader) ElementSize() int { return int(l.ifds[0].bitsPerSample) / 8 }

// BitsPerSample implements fastloader.BitsPerSampleProvider.
func (l *Loader) BitsPerSample() int { return int(l.ifds[0].bitsPerSample) }

// Copy implements fastloader.TileLoader: every copy shares the same
// read-only mmap and parsed IFDs, so TileFetcher workers can run this
// loader concurrently without contending on a single file handle.
func (l *Loader) Copy() fastloader.TileLoader {
	return &Loader{path: l.path, data: l.data, ifds: l.ifds}
}

// LoadTileFromFile implements fastloader.TileLoader: it locates the
// tile's (or strip's) raw bytes via the IFD's offset/byte-count tables,
// decompresses them, and copies the valid samples into buf. buf is always
// the loader's full TileDims size; any rows/columns beyond the file's
// edge (a short last strip, or a file whose dims aren't a multiple of the
// tile size) are left zeroed, matching TIFF's own edge-tile padding
// convention.
func (l *Loader) LoadTileFromFile(buf []byte, tileCoord geom.Coord, level int, threadID int) error {
	d := &l.ifds[level]
	elemSize := l.ElementSize()

	for i := range buf {
		buf[i] = 0
	}

	var raw []byte
	var validWidth, validHeight int64
	var err error

	if d.stripOrganized() {
		raw, validHeight, err = l.readStrip(d, int(tileCoord[0]))
		validWidth = int64(d.width)
	} else {
		raw, err = l.readTile(d, int(tileCoord[0]), int(tileCoord[1]))
		validWidth = int64(d.tileWidth)
		validHeight = int64(d.tileHeight)
		if remW := int64(d.width) - tileCoord[1]*int64(d.tileWidth); remW < validWidth {
			validWidth = remW
		}
		if remH := int64(d.height) - tileCoord[0]*int64(d.tileHeight); remH < validHeight {
			validHeight = remH
		}
	}
	if err != nil {
		return err
	}
	if validWidth <= 0 || validHeight <= 0 {
		return nil
	}

	tileDims := l.TileDims(level)
	tileRowBytes := tileDims[1] * int64(elemSize)
	validRowBytes := validWidth * elemSize2(elemSize)
	rawRowBytes := int64(len(raw)) / max1(validHeight)
	if !d.stripOrganized() {
		// Tiles are always stored full size, so their row stride is the
		// full tile width even when only validHeight rows hold image data.
		rawRowBytes = int64(d.tileWidth) * int64(elemSize)
	}

	for row := int64(0); row < validHeight; row++ {
		srcOff := row * rawRowBytes
		dstOff := row * tileRowBytes
		if srcOff+validRowBytes > int64(len(raw)) || dstOff+validRowBytes > int64(len(buf)) {
			break
		}
		copy(buf[dstOff:dstOff+validRowBytes], raw[srcOff:srcOff+validRowBytes])
	}
	return nil
}

func elemSize2(elemSize int) int64 { return int64(elemSize) }

func max1(v int64) int64 {
	if v < 1 {
		return 1
	}
	return v
}

// readStrip returns the decompressed bytes for strip row (one strip per
// RowsPerStrip rows) and the number of valid image rows it covers (the
// last strip in a file is often shorter than RowsPerStrip).
func (l *Loader) readStrip(d *ifd, stripRow int) ([]byte, int64, error) {
	if stripRow < 0 || stripRow >= len(d.stripOffsets) {
		return nil, 0, fmt.Errorf("grayscale: strip %d out of range (have %d)", stripRow, len(d.stripOffsets))
	}
	off := d.stripOffsets[stripRow]
	n := d.stripByteCounts[stripRow]
	raw, err := l.decompress(d, off, n)
	if err != nil {
		return nil, 0, err
	}
	rowsHere := int64(d.rowsPerStrip)
	if remaining := int64(d.height) - int64(stripRow)*int64(d.rowsPerStrip); remaining < rowsHere {
		rowsHere = remaining
	}
	return raw, rowsHere, nil
}

// readTile returns the decompressed bytes for tile (row, col), always a
// full tileWidth*tileHeight*elemSize buffer per the TIFF 6.0 spec (edge
// tiles are padded by the encoder, not shrunk).
func (l *Loader) readTile(d *ifd, row, col int) ([]byte, error) {
	across := int((d.width + d.tileWidth - 1) / d.tileWidth)
	index := row*across + col
	if index < 0 || index >= len(d.tileOffsets) {
		return nil, fmt.Errorf("grayscale: tile (%d,%d) out of range", row, col)
	}
	off := d.tileOffsets[index]
	n := d.tileByteCounts[index]
	return l.decompress(d, off, n)
}

func (l *Loader) decompress(d *ifd, offset, length uint64) ([]byte, error) {
	if offset+length > uint64(len(l.data)) {
		return nil, fmt.Errorf("grayscale: strip/tile range [%d,%d) exceeds file size %d", offset, offset+length, len(l.data))
	}
	raw := l.data[offset : offset+length]

	switch d.compression {
	case compressionNone:
		out := make([]byte, len(raw))
		copy(out, raw)
		return out, nil
	case compressionLZW:
		return decompressTIFFLZW(raw)
	case compressionDeflate, compressionDeflate2:
		zr, err := zlib.NewReader(bytes.NewReader(raw))
		if err != nil {
			return nil, fmt.Errorf("grayscale: opening deflate stream: %w", err)
		}
		defer zr.Close()
		return io.ReadAll(zr)
	default:
		return nil, fmt.Errorf("grayscale: unsupported compression %d", d.compression)
	}
}

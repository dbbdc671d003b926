package fastloader

import (
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/pspoerri/fastloader/internal/copier"
	"github.com/pspoerri/fastloader/internal/geom"
)

// AdaptiveTileLoader decorates a concrete TileLoader to expose "logical"
// tiles of a different shape than the file's native physical tiles
// (spec.md §4.8, §9's "Open question" on partial-physical-tile copies).
// Logical tiles may be larger (aggregating several native tiles) or
// smaller (subdividing one); either way the general case is a logical tile
// whose edges fall mid-native-tile on both ends, so every assembly uses
// the same partial-copy code path regardless of the size ratio.
//
// It maintains its own small LRU cache of decoded native tiles
// (github.com/hashicorp/golang-lru/v2, as transparency-dev-trillian-tessera
// uses for its own bounded lookaside cache in dedupe.go) so that adjacent
// logical tiles sharing a native tile don't re-fetch it. This cache is
// unrelated to, and much smaller than, the engine's own TileCache — it
// exists because AdaptiveTileLoader sits entirely outside the engine, as
// far as the engine is concerned this whole type is just a TileLoader.
type AdaptiveTileLoader struct {
	native          TileLoader
	logicalTileDims []geom.Dims // per level; nil entry means "same as native"
	shared          *adaptiveShared
}

type adaptiveShared struct {
	mu      sync.Mutex
	cache   *lru.Cache[nativeKey, *nativeEntry]
	loading map[nativeKey]*nativeLoad
}

// nativeLoad tracks one in-progress native tile fetch. Waiters read buf/err
// only after done is closed, and the loading goroutine sets them before
// closing done, so the channel close supplies the needed happens-before —
// waiters never go back to the LRU cache, which may have already evicted
// the entry by the time they wake.
type nativeLoad struct {
	done chan struct{}
	buf  []byte
	err  error
}

type nativeKey struct {
	level int
	coord string
}

type nativeEntry struct {
	buf []byte
	err error
}

func nativeKeyFor(level int, coord geom.Coord) nativeKey {
	return nativeKey{level: level, coord: coord.String()}
}

// NewAdaptiveTileLoader wraps native, overriding the tile shape at the
// levels named in logicalTileDims (levels not present keep native's own
// tile shape — a pass-through adaptive layer is a no-op decorator).
// nativeCacheSize bounds the number of decoded native tiles kept around;
// a value <= 0 selects a bound of 64.
func NewAdaptiveTileLoader(native TileLoader, logicalTileDims map[int]geom.Dims, nativeCacheSize int) (*AdaptiveTileLoader, error) {
	if nativeCacheSize <= 0 {
		nativeCacheSize = 64
	}
	cache, err := lru.New[nativeKey, *nativeEntry](nativeCacheSize)
	if err != nil {
		return nil, err
	}
	dims := make([]geom.Dims, native.NbPyramidLevels())
	for lvl, d := range logicalTileDims {
		dims[lvl] = d
	}
	return &AdaptiveTileLoader{
		native:          native,
		logicalTileDims: dims,
		shared: &adaptiveShared{
			cache:   cache,
			loading: make(map[nativeKey]*nativeLoad),
		},
	}, nil
}

// NbDims implements TileLoader.
func (a *AdaptiveTileLoader) NbDims() int { return a.native.NbDims() }

// NbPyramidLevels implements TileLoader.
func (a *AdaptiveTileLoader) NbPyramidLevels() int { return a.native.NbPyramidLevels() }

// DimNames implements TileLoader.
func (a *AdaptiveTileLoader) DimNames() []string { return a.native.DimNames() }

// FullDims implements TileLoader: the file's extent is unaffected by the
// logical tiling scheme layered on top of it.
func (a *AdaptiveTileLoader) FullDims(level int) geom.Dims { return a.native.FullDims(level) }

// TileDims implements TileLoader, returning the logical tile shape.
func (a *AdaptiveTileLoader) TileDims(level int) geom.Dims {
	if level < len(a.logicalTileDims) && a.logicalTileDims[level] != nil {
		return a.logicalTileDims[level]
	}
	return a.native.TileDims(level)
}

// ElementSize implements TileLoader.
func (a *AdaptiveTileLoader) ElementSize() int { return a.native.ElementSize() }

// BitsPerSample implements BitsPerSampleProvider when native does.
func (a *AdaptiveTileLoader) BitsPerSample() int {
	if p, ok := a.native.(BitsPerSampleProvider); ok {
		return p.BitsPerSample()
	}
	return 0
}

// Copy implements TileLoader. The returned decorator gets its own handle
// to the underlying file (via native.Copy()) but shares the native-tile
// cache, so concurrent TileFetcher workers still coalesce native reads.
func (a *AdaptiveTileLoader) Copy() TileLoader {
	return &AdaptiveTileLoader{
		native:          a.native.Copy(),
		logicalTileDims: a.logicalTileDims,
		shared:          a.shared,
	}
}

// LoadTileFromFile implements TileLoader: it assembles one logical tile by
// copying from every native physical tile it overlaps, each possibly only
// partially (the general case per spec.md §9's open question).
func (a *AdaptiveTileLoader) LoadTileFromFile(buf []byte, logicalTileCoord geom.Coord, level int, threadID int) error {
	logicalDims := a.TileDims(level)
	nativeDims := a.native.TileDims(level)
	fullDims := a.FullDims(level)
	elemSize := a.ElementSize()

	origin := geom.TileOrigin(logicalTileCoord, logicalDims)
	logicalRect := geom.NewRect(origin, logicalDims)
	fileRect := geom.NewRect(make(geom.Coord, len(fullDims)), fullDims)
	clipped := logicalRect.Intersect(fileRect)
	if clipped.Empty() {
		return nil
	}

	d := len(fullDims)
	lo := make(geom.Coord, d)
	hi := make(geom.Coord, d)
	for i := 0; i < d; i++ {
		lo[i] = clipped.Min[i] / nativeDims[i]
		hi[i] = (clipped.Max[i] - 1) / nativeDims[i]
	}

	logicalStrides := logicalDims.Strides()
	nativeStrides := nativeDims.Strides()

	var loopErr error
	forEachCoord(lo, hi, func(nativeCoord geom.Coord) {
		if loopErr != nil {
			return
		}
		nativeBuf, err := a.loadNative(level, nativeCoord, nativeDims, threadID)
		if err != nil {
			loopErr = err
			return
		}
		nativeRect := geom.TileRect(nativeCoord, nativeDims, fullDims)
		overlap := clipped.Intersect(nativeRect)
		if overlap.Empty() {
			return
		}
		srcOrigin := make(geom.Coord, d)
		dstOrigin := make(geom.Coord, d)
		for i := 0; i < d; i++ {
			srcOrigin[i] = overlap.Min[i] - nativeRect.Min[i]
			dstOrigin[i] = overlap.Min[i] - origin[i]
		}
		reversed := make([]bool, d)
		copier.Copy(buf, logicalStrides, offsetOf(dstOrigin, logicalStrides),
			nativeBuf, nativeStrides, offsetOf(srcOrigin, nativeStrides),
			overlap.Dims(), elemSize, reversed)
	})
	return loopErr
}

// loadNative returns the decoded buffer for one native physical tile,
// fetching it at most once across all concurrent callers sharing this
// AdaptiveTileLoader's shared state.
func (a *AdaptiveTileLoader) loadNative(level int, coord geom.Coord, nativeDims geom.Dims, threadID int) ([]byte, error) {
	key := nativeKeyFor(level, coord)
	s := a.shared

	s.mu.Lock()
	if entry, ok := s.cache.Get(key); ok {
		s.mu.Unlock()
		return entry.buf, entry.err
	}
	if l, inProgress := s.loading[key]; inProgress {
		s.mu.Unlock()
		<-l.done
		return l.buf, l.err
	}
	l := &nativeLoad{done: make(chan struct{})}
	s.loading[key] = l
	s.mu.Unlock()

	buf := make([]byte, nativeDims.Product()*int64(a.ElementSize()))
	err := a.native.LoadTileFromFile(buf, coord, level, threadID)
	l.buf, l.err = buf, err

	s.mu.Lock()
	s.cache.Add(key, &nativeEntry{buf: buf, err: err})
	delete(s.loading, key)
	s.mu.Unlock()
	close(l.done)

	return buf, err
}

func offsetOf(coord geom.Coord, strides []int64) int64 {
	var off int64
	for i, c := range coord {
		off += c * strides[i]
	}
	return off
}

// forEachCoord enumerates every coordinate in [lo,hi] inclusive, dimension
// 0 outermost — the same odometer iteration internal/planner uses.
func forEachCoord(lo, hi geom.Coord, fn func(geom.Coord)) {
	d := len(lo)
	coord := lo.Clone()
	for {
		fn(coord.Clone())
		i := d - 1
		for i >= 0 {
			coord[i]++
			if coord[i] <= hi[i] {
				break
			}
			coord[i] = lo[i]
			i--
		}
		if i < 0 {
			break
		}
	}
}

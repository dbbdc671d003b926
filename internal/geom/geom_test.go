package geom

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRectIntersect(t *testing.T) {
	a := NewRect(Coord{-2, -2}, Dims{5, 5}) // [-2,3) x [-2,3)
	b := NewRect(Coord{0, 0}, Dims{3, 3})   // [0,3) x [0,3)

	got := a.Intersect(b)
	assert.Equal(t, Coord{0, 0}, got.Min)
	assert.Equal(t, Coord{3, 3}, got.Max)
	assert.False(t, got.Empty())
}

func TestRectIntersectEmpty(t *testing.T) {
	a := NewRect(Coord{0, 0}, Dims{2, 2})
	b := NewRect(Coord{5, 5}, Dims{2, 2})
	got := a.Intersect(b)
	assert.True(t, got.Empty())
}

func TestTilesAcrossPartialLastTile(t *testing.T) {
	full := Dims{10, 3}
	tile := Dims{4, 1}
	across := TilesAcross(full, tile)
	require.Equal(t, Dims{3, 3}, across)
}

func TestViewOriginAndShape(t *testing.T) {
	tileDims := Dims{4, 4}
	radii := []int64{1, 2}
	shape := ViewShape(tileDims, radii)
	assert.Equal(t, Dims{6, 8}, shape)

	origin := ViewOrigin(Coord{1, 0}, tileDims, radii)
	assert.Equal(t, Coord{3, -2}, origin)
}

func TestTileRectClipsToFile(t *testing.T) {
	full := Dims{10, 10}
	tile := Dims{8, 8}
	r := TileRect(Coord{1, 1}, tile, full)
	assert.Equal(t, Coord{8, 8}, r.Min)
	assert.Equal(t, Coord{10, 10}, r.Max)
}

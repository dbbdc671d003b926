package border

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/pspoerri/fastloader/internal/geom"
)

// buf1D builds a 1-D view buffer of the given shape with the center region
// [centerMin, centerMax) pre-populated 1, 2, 3, ... and the ghost region
// left zeroed, mirroring spec.md §8's "1-D constant fill" scenario.
func buf1D(shape int64, centerMin, centerMax int64) ([]byte, *ViewGeometry) {
	buf := make([]byte, shape)
	v := int64(1)
	for i := centerMin; i < centerMax; i++ {
		buf[i] = byte(v)
		v++
	}
	vg := &ViewGeometry{
		Shape:     geom.Dims{shape},
		FrontFill: []int64{centerMin},
		BackFill:  []int64{shape - centerMax},
		CenterMin: geom.Coord{centerMin},
		CenterMax: geom.Coord{centerMax},
	}
	return buf, vg
}

func TestConstantBorderCreatorFill1D(t *testing.T) {
	buf, vg := buf1D(7, 2, 5) // shape 7, center [2,5) = {1,2,3}, 2 ghost each side
	c := &ConstantBorderCreator{Value: []byte{9}}
	c.Fill(vg, buf, 1)

	assert.Equal(t, []byte{9, 9, 1, 2, 3, 9, 9}, buf)
}

func TestConstantBorderCreatorFillDefaultsToZero(t *testing.T) {
	buf, vg := buf1D(5, 1, 4)
	c := &ConstantBorderCreator{} // no Value set
	c.Fill(vg, buf, 1)

	assert.Equal(t, []byte{0, 1, 2, 3, 0}, buf)
}

func TestReplicateBorderCreatorFill1D(t *testing.T) {
	buf, vg := buf1D(7, 2, 5) // center {1,2,3} at indices 2,3,4
	r := ReplicateBorderCreator{}
	r.Fill(vg, buf, 1)

	// Front ghost replicates index 2 (value 1), back ghost replicates
	// index 4 (value 3).
	assert.Equal(t, []byte{1, 1, 1, 2, 3, 3, 3}, buf)
}

func TestReplicateBorderCreatorFill2DCorners(t *testing.T) {
	// 5x5 buffer, center [1,4)x[1,4) populated row-major 1..9, 1-wide halo
	// on every side. Corners must be filled exactly once with the nearest
	// center corner's value (replicate fill, spec.md §4.4).
	shape := geom.Dims{5, 5}
	buf := make([]byte, shape.Product())
	strides := stridesOf(shape)
	val := byte(1)
	for y := int64(1); y < 4; y++ {
		for x := int64(1); x < 4; x++ {
			buf[y*strides[0]+x*strides[1]] = val
			val++
		}
	}
	vg := &ViewGeometry{
		Shape:     shape,
		FrontFill: []int64{1, 1},
		BackFill:  []int64{1, 1},
		CenterMin: geom.Coord{1, 1},
		CenterMax: geom.Coord{4, 4},
	}
	r := ReplicateBorderCreator{}
	r.Fill(vg, buf, 1)

	at := func(y, x int64) byte { return buf[y*strides[0]+x*strides[1]] }

	// Center corners: (1,1)=1, (1,3)=3, (3,1)=7, (3,3)=9.
	assert.Equal(t, byte(1), at(0, 0), "top-left ghost corner replicates center (1,1)")
	assert.Equal(t, byte(3), at(0, 4), "top-right ghost corner replicates center (1,3)")
	assert.Equal(t, byte(7), at(4, 0), "bottom-left ghost corner replicates center (3,1)")
	assert.Equal(t, byte(9), at(4, 4), "bottom-right ghost corner replicates center (3,3)")
}

func TestConstantBorderCreatorFillMultiByteElement(t *testing.T) {
	// elemSize 2, pattern truncated/repeated per byte lane.
	shape := geom.Dims{3}
	buf := make([]byte, 3*2)
	vg := &ViewGeometry{
		Shape:     shape,
		FrontFill: []int64{1},
		BackFill:  []int64{1},
		CenterMin: geom.Coord{1},
		CenterMax: geom.Coord{2},
	}
	c := &ConstantBorderCreator{Value: []byte{0xAB, 0xCD}}
	c.Fill(vg, buf, 2)

	assert.Equal(t, []byte{0xAB, 0xCD, 0, 0, 0xAB, 0xCD}, buf)
}

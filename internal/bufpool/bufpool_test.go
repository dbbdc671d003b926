package bufpool

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetReturnsZeroedBuffer(t *testing.T) {
	p := New()
	buf := p.Get(16)
	assert.Len(t, buf, 16)
	for _, b := range buf {
		assert.Equal(t, byte(0), b)
	}
}

func TestPutGetRoundTripClearsStaleData(t *testing.T) {
	p := New()
	buf := p.Get(8)
	for i := range buf {
		buf[i] = 0xFF
	}
	p.Put(buf)

	got := p.Get(8)
	assert.Len(t, got, 8)
	for _, b := range got {
		assert.Equal(t, byte(0), b, "buffer recycled from the pool must be zeroed before reuse")
	}
}

func TestGetDistinguishesSizes(t *testing.T) {
	p := New()
	small := p.Get(4)
	p.Put(small)

	big := p.Get(1024)
	assert.Len(t, big, 1024, "a differently-sized Get must not receive a buffer from another size class")
}

func TestPutIgnoresEmptyBuffer(t *testing.T) {
	p := New()
	assert.NotPanics(t, func() { p.Put(nil) })
	assert.NotPanics(t, func() { p.Put([]byte{}) })
}

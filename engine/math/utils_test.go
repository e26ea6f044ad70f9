package math

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAlignUp(t *testing.T) {
	assert.Equal(t, uint64(0), AlignUp[uint64](0, 256))
	assert.Equal(t, uint64(256), AlignUp[uint64](1, 256))
	assert.Equal(t, uint64(256), AlignUp[uint64](256, 256))
	assert.Equal(t, uint32(512), AlignUp[uint32](257, 256))
}

func TestClampAndMin(t *testing.T) {
	assert.Equal(t, 5, Clamp(7, 0, 5))
	assert.Equal(t, 0.0, Clamp(-1.0, 0.0, 1.0))
	assert.Equal(t, 3, Min(3, 4))
}

func TestPseudoRandom_ResetRepeatsSequence(t *testing.T) {
	var r PseudoRandom
	first := []float64{r.Next(), r.Next(), r.Next()}
	for _, v := range first {
		assert.GreaterOrEqual(t, v, 0.0)
		assert.Less(t, v, 1.0)
	}
	assert.Equal(t, 1.0/randomRange, first[0])

	r.Reset()
	assert.Equal(t, first, []float64{r.Next(), r.Next(), r.Next()})
}

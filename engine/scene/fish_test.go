package scene

import (
	"testing"

	"github.com/chewxy/math32"
	"github.com/spaghettifunk/aquarium/engine/math"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sum(counts [len(FishTable)]int) int {
	total := 0
	for _, c := range counts {
		total += c
	}
	return total
}

func TestCalculateFishCount(t *testing.T) {
	cases := []struct {
		total int
		want  [len(FishTable)]int
	}{
		{0, [len(FishTable)]int{0, 0, 0, 0, 0}},
		{1, [len(FishTable)]int{0, 0, 0, 1, 0}},
		{50, [len(FishTable)]int{38, 5, 5, 1, 1}},
		{500, [len(FishTable)]int{396, 50, 50, 2, 2}},
		{5000, [len(FishTable)]int{4836, 80, 80, 2, 2}},
		{30000, [len(FishTable)]int{29676, 160, 160, 2, 2}},
	}
	for _, c := range cases {
		got := CalculateFishCount(c.total)
		assert.Equal(t, c.want, got, "total %d", c.total)
		assert.Equal(t, c.total, sum(got), "total %d", c.total)
	}
}

func TestSpeciesIndex(t *testing.T) {
	i, ok := SpeciesIndex("MediumFishB")
	require.True(t, ok)
	assert.Equal(t, 2, i)
	assert.Equal(t, FishMedium, FishTable[i].Size)

	_, ok = SpeciesIndex("Shark")
	assert.False(t, ok)
}

func TestFishPathIsReplayable(t *testing.T) {
	var r math.PseudoRandom
	first := FishPath(FishTable[0], 3, 12.5, &r)
	second := FishPath(FishTable[0], 3, 12.5, &r)
	assert.NotEqual(t, first, second, "the stream moved on")

	r.Reset()
	again := FishPath(FishTable[0], 3, 12.5, &r)
	assert.Equal(t, first, again)
}

func TestFishPathBounds(t *testing.T) {
	var r math.PseudoRandom
	for _, s := range FishTable {
		for i := 0; i < 50; i++ {
			per := FishPath(s, i, float32(i)*0.7, &r)
			assert.GreaterOrEqual(t, per.Scale, float32(1))
			assert.Less(t, per.Scale, float32(2))
			assert.GreaterOrEqual(t, per.Time, float32(0))
			assert.Less(t, per.Time, 2*math32.Pi)

			radius := s.Radius + s.RadiusRange
			assert.LessOrEqual(t, math32.Abs(per.WorldPosition[0]), radius)
			assert.LessOrEqual(t, math32.Abs(per.WorldPosition[2]), radius)
			height := fishHeight + s.HeightOffset
			assert.LessOrEqual(t, math32.Abs(per.WorldPosition[1]-height), 2+s.HeightRange)
		}
	}
}

func TestFishPathAtRest(t *testing.T) {
	var r math.PseudoRandom
	// at time zero the first fish sits at the start of its orbit
	per := FishPath(FishTable[3], 0, 0, &r)
	assert.Equal(t, float32(0), per.WorldPosition[0])
	assert.Equal(t, fishHeight, per.WorldPosition[1])
	assert.Equal(t, float32(0), per.Time)
	assert.Greater(t, per.WorldPosition[2], FishTable[3].Radius-0.001)
}

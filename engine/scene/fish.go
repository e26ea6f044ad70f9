package scene

import (
	"github.com/chewxy/math32"
	"github.com/spaghettifunk/aquarium/engine/math"
	"github.com/spaghettifunk/aquarium/engine/renderer/uniforms"
)

type FishSize uint8

const (
	FishBig FishSize = iota
	FishMedium
	FishSmall
	fishSizeCount
)

// Fish counts that switch the species split.
const (
	numFishSmall     = 100
	numFishMedium    = 1000
	numFishBig       = 10000
	numFishLeftSmall = 80
	numFishLeftBig   = 160
)

// Swim parameters shared by every species.
const (
	fishHeight      float32 = 25
	fishHeightRange float32 = 1
	fishSpeed       float32 = 0.124
	fishOffset      float32 = 0.52
	fishXClock      float32 = 1
	fishYClock      float32 = 0.556
	fishZClock      float32 = 1
	fishTailSpeed   float32 = 1
	tailOffsetMult  float32 = 1
)

type Species struct {
	Name         string
	Size         FishSize
	Speed        float32
	SpeedRange   float32
	Radius       float32
	RadiusRange  float32
	TailSpeed    float32
	HeightOffset float32
	HeightRange  float32
	// fish vertex constants
	Length float32
	Wave   float32
	Bend   float32
}

func (s Species) Vertex() uniforms.FishVertex {
	return uniforms.FishVertex{FishLength: s.Length, FishWaveLength: s.Wave, FishBendAmount: s.Bend}
}

var FishTable = [...]Species{
	{Name: "SmallFishA", Size: FishSmall, Speed: 1, SpeedRange: 1.5, Radius: 30, RadiusRange: 25, TailSpeed: 10, HeightOffset: 0, HeightRange: 16, Length: 10, Wave: 1, Bend: 2},
	{Name: "MediumFishA", Size: FishMedium, Speed: 1, SpeedRange: 2, Radius: 10, RadiusRange: 20, TailSpeed: 1, HeightOffset: 0, HeightRange: 16, Length: 10, Wave: -2, Bend: 2},
	{Name: "MediumFishB", Size: FishMedium, Speed: 0.5, SpeedRange: 4, Radius: 10, RadiusRange: 20, TailSpeed: 3, HeightOffset: -8, HeightRange: 5, Length: 10, Wave: -2, Bend: 2},
	{Name: "BigFishA", Size: FishBig, Speed: 0.5, SpeedRange: 0.5, Radius: 50, RadiusRange: 3, TailSpeed: 1.5, HeightOffset: 0, HeightRange: 16, Length: 10, Wave: -1, Bend: 0.5},
	{Name: "BigFishB", Size: FishBig, Speed: 0.5, SpeedRange: 0.5, Radius: 45, RadiusRange: 3, TailSpeed: 1, HeightOffset: 0, HeightRange: 16, Length: 10, Wave: -0.7, Bend: 0.3},
}

func SpeciesIndex(name string) (int, bool) {
	for i, s := range FishTable {
		if s.Name == name {
			return i, true
		}
	}
	return -1, false
}

// CalculateFishCount splits total over the species: the big ones first, one
// or two each, then the medium ones, and the small species takes the rest.
func CalculateFishCount(total int) [len(FishTable)]int {
	var counts [len(FishTable)]int
	left := total
	for size := FishBig; size < fishSizeCount; size++ {
		for i, s := range FishTable {
			if s.Size != size {
				continue
			}
			n := left
			switch size {
			case FishBig:
				perSpecies := 2
				if total < numFishSmall {
					perSpecies = 1
				}
				n = min(left, perSpecies)
			case FishMedium:
				switch {
				case total < numFishMedium:
					n = min(left, total/10)
				case total < numFishBig:
					n = min(left, numFishLeftSmall)
				default:
					n = min(left, numFishLeftBig)
				}
			}
			left -= n
			counts[i] = n
		}
	}
	return counts
}

// FishPath places fish index of species s at time mclock. The random stream
// must be replayed from the same point every frame for a fish to keep its path.
func FishPath(s Species, index int, mclock float32, rand *math.PseudoRandom) uniforms.FishPer {
	height := fishHeight + s.HeightOffset
	heightRange := fishHeightRange * s.HeightRange

	fishClock := mclock*fishSpeed + float32(index)*fishOffset
	speed := s.Speed + float32(rand.Next())*s.SpeedRange
	scale := 1 + float32(rand.Next())
	xRadius := s.Radius + float32(rand.Next())*s.RadiusRange
	yRadius := 2 + float32(rand.Next())*heightRange
	zRadius := s.Radius + float32(rand.Next())*s.RadiusRange

	speedClock := fishClock * speed
	xClock := speedClock * fishXClock
	yClock := speedClock * fishYClock
	zClock := speedClock * fishZClock

	return uniforms.FishPer{
		WorldPosition: [3]float32{
			math32.Sin(xClock) * xRadius,
			math32.Sin(yClock)*yRadius + height,
			math32.Cos(zClock) * zRadius,
		},
		Scale: scale,
		NextPosition: [3]float32{
			math32.Sin(xClock-0.04) * xRadius,
			math32.Sin(yClock-0.01)*yRadius + height,
			math32.Cos(zClock-0.04) * zRadius,
		},
		Time: math32.Mod((mclock+float32(index)*tailOffsetMult)*s.TailSpeed*fishTailSpeed*speed, math32.Pi*2),
	}
}

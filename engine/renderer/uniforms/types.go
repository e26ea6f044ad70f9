package uniforms

// Layouts mirror the shader constant blocks. Every field is a float32 and
// vec3 members are padded to 16 bytes.

// Maximum number of instances drawn by one CPU batched draw call.
const MaxBatchedInstances = 20

type LightWorldPosition struct {
	LightWorldPos  [3]float32
	Padding        float32
	ViewProjection [16]float32
	ViewInverse    [16]float32
}

type Light struct {
	LightColor [4]float32
	Specular   [4]float32
	Ambient    [4]float32
}

type Fog struct {
	FogPower  float32
	FogMult   float32
	FogOffset float32
	Padding   float32
	FogColor  [4]float32
}

type LightFactor struct {
	Shininess      float32
	SpecularFactor float32
}

type World struct {
	World                 [16]float32
	WorldInverseTranspose [16]float32
	WorldViewProjection   [16]float32
}

type FishVertex struct {
	FishLength     float32
	FishWaveLength float32
	FishBendAmount float32
}

// FishPer is one element of the per-instance fish vertex stream.
type FishPer struct {
	WorldPosition [3]float32
	Scale         float32
	NextPosition  [3]float32
	Time          float32
}

type SeaweedPer struct {
	Time    float32
	Padding [3]float32
}

type Inner struct {
	Eta             float32
	TankColorFudge  float32
	RefractionFudge float32
	Padding         float32
}

var (
	GenericLightFactor = LightFactor{Shininess: 50, SpecularFactor: 1}
	OutsideLightFactor = LightFactor{Shininess: 50, SpecularFactor: 0}
	SeaweedLightFactor = LightFactor{Shininess: 50, SpecularFactor: 1}
	FishLightFactor    = LightFactor{Shininess: 5, SpecularFactor: 0.3}
	DefaultInner       = Inner{Eta: 1, TankColorFudge: 0.796, RefractionFudge: 3}
)

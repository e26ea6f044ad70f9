package scene

import (
	"context"
	"encoding/binary"
	"sync"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/spaghettifunk/aquarium/engine/assets/loaders"
	"github.com/spaghettifunk/aquarium/engine/config"
	"github.com/spaghettifunk/aquarium/engine/core"
	"github.com/spaghettifunk/aquarium/engine/renderer"
	"github.com/spaghettifunk/aquarium/engine/renderer/program"
	"github.com/spaghettifunk/aquarium/engine/renderer/software"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testCatalog = `models:
  - {name: SmallFishA, group: fish, program: [fishVertexShader, fishReflectionFragmentShader], blend: true}
  - {name: RockA, group: generic, blend: true}
  - {name: SeaweedA, group: seaweed, program: [seaweedVertexShader, seaweedFragmentShader], blend: true}
  - {name: EnvironmentBox, group: outside, program: [diffuseVertexShader, diffuseFragmentShader]}
`

var testShaders = program.MapSource{
	"fishVertexShader":             "",
	"fishReflectionFragmentShader": "",
	"diffuseVertexShader":          "",
	"diffuseFragmentShader":        "",
	"seaweedVertexShader":          "",
	"seaweedFragmentShader":        "",
}

func fakeSPIRV(string) ([]byte, error) {
	code := make([]byte, 20)
	binary.LittleEndian.PutUint32(code, 0x07230203)
	return code, nil
}

// memoryAssets serves one triangle for every model.
type memoryAssets struct {
	mu            sync.Mutex
	placements    []loaders.Placement
	textureLoads  map[string]int
	missingModels map[string]bool
}

func newMemoryAssets() *memoryAssets {
	return &memoryAssets{textureLoads: make(map[string]int), missingModels: make(map[string]bool)}
}

func (m *memoryAssets) place(name string, n int) {
	for i := 0; i < n; i++ {
		world := mgl32.Translate3D(float32(i), 0, 0)
		m.placements = append(m.placements, loaders.Placement{Name: name, World: world})
	}
}

func (m *memoryAssets) LoadModel(name string) (*loaders.ModelData, error) {
	if m.missingModels[name] {
		return nil, core.ErrMissingResource
	}
	textures := map[string]string{"diffuse": name + ".png"}
	if name == "SmallFishA" {
		textures["normalMap"] = "fish_normal.png"
		textures["reflectionMap"] = "fish_reflection.png"
	}
	return &loaders.ModelData{
		Name:     name,
		Textures: textures,
		Fields: map[string]loaders.ModelField{
			"position": {NumComponents: 3, Floats: []float32{0, 0, 0, 1, 0, 0, 0, 1, 0}},
			"normal":   {NumComponents: 3, Floats: []float32{0, 0, 1, 0, 0, 1, 0, 0, 1}},
			"texCoord": {NumComponents: 2, Floats: []float32{0, 0, 1, 0, 0, 1}},
			"tangent":  {NumComponents: 3, Floats: []float32{1, 0, 0, 1, 0, 0, 1, 0, 0}},
			"binormal": {NumComponents: 3, Floats: []float32{0, 1, 0, 0, 1, 0, 0, 1, 0}},
			"indices":  {NumComponents: 3, Indices: []uint16{0, 1, 2}},
		},
	}, nil
}

func (m *memoryAssets) LoadPlacement() ([]loaders.Placement, error) {
	return m.placements, nil
}

func (m *memoryAssets) LoadTexture(file string) (*loaders.TextureData, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.textureLoads[file]++
	return &loaders.TextureData{Width: 1, Height: 1, Levels: [][][]byte{{{1, 2, 3, 4}}}}, nil
}

func (m *memoryAssets) LoadSkybox() (*loaders.TextureData, error) {
	sky := &loaders.TextureData{Width: 1, Height: 1, Cube: true}
	for i := 0; i < 6; i++ {
		sky.Levels = append(sky.Levels, [][]byte{{1, 2, 3, 4}})
	}
	return sky, nil
}

func newTestAquarium(t *testing.T, opts Options, assets *memoryAssets) (*Aquarium, *renderer.Context, *software.Device, error) {
	t.Helper()
	dev := software.NewDevice(software.Options{Width: 64, Height: 48, AutoComplete: true})
	r, err := renderer.Initialize(dev, testShaders, config.Default(), renderer.WithCompiler(fakeSPIRV))
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Terminate(context.Background()) })

	catalog, err := ParseCatalog([]byte(testCatalog))
	require.NoError(t, err)
	opts.Catalog = catalog
	a, err := New(r, opts)
	require.NoError(t, err)
	return a, r, dev, a.Load(context.Background(), assets)
}

func renderFrame(t *testing.T, a *Aquarium, r *renderer.Context) {
	t.Helper()
	list, err := r.BeginFrame(context.Background())
	require.NoError(t, err)
	a.Update(1.0 / 60)
	require.NoError(t, a.Render(list))
	require.NoError(t, r.EndFrame())
}

func sceneAssets() *memoryAssets {
	assets := newMemoryAssets()
	assets.place("RockA", 2)
	assets.place("SeaweedA", 3)
	return assets
}

func TestAquariumDrawOrder(t *testing.T) {
	a, r, dev, err := newTestAquarium(t, Options{NumFish: 10}, sceneAssets())
	require.NoError(t, err)
	// one big and one medium fish per species go to the species missing here
	assert.Equal(t, 6, a.FishCount()[0])

	renderFrame(t, a, r)

	calls := dev.DrawCalls()
	require.Len(t, calls, 1+6+1+1)
	assert.Equal(t, "RockA", calls[0].Pipeline)
	assert.Equal(t, uint32(2), calls[0].InstanceCount)
	for i, c := range calls[1:7] {
		assert.Equal(t, "SmallFishA", c.Pipeline)
		assert.Equal(t, uint32(1), c.InstanceCount)
		assert.Equal(t, uint32(i), c.StartInstance)
	}
	assert.Equal(t, "SeaweedA", calls[7].Pipeline)
	assert.Equal(t, uint32(3), calls[7].InstanceCount)
	assert.Equal(t, "EnvironmentBox", calls[8].Pipeline)
	assert.Equal(t, uint32(1), calls[8].InstanceCount)
	assert.Zero(t, dev.Stats().StateMismatches)
}

func TestAquariumInstancedFish(t *testing.T) {
	a, r, dev, err := newTestAquarium(t, Options{NumFish: 10, Instanced: true, UpdateAndDrawForEachFish: true}, sceneAssets())
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		renderFrame(t, a, r)
	}

	calls := dev.DrawCalls()
	require.Len(t, calls, 3*4)
	for frame := 0; frame < 3; frame++ {
		fish := calls[frame*4+1]
		assert.Equal(t, "SmallFishA", fish.Pipeline)
		assert.Equal(t, uint32(6), fish.InstanceCount)
	}
	assert.Equal(t, uint64(3), r.Frames())
}

func TestAquariumEachFishDraw(t *testing.T) {
	a, r, dev, err := newTestAquarium(t, Options{NumFish: 10, UpdateAndDrawForEachFish: true}, sceneAssets())
	require.NoError(t, err)

	renderFrame(t, a, r)
	fish := 0
	for _, c := range dev.DrawCalls() {
		if c.Pipeline == "SmallFishA" {
			assert.Equal(t, uint32(1), c.InstanceCount)
			fish++
		}
	}
	assert.Equal(t, 6, fish)
}

func TestAquariumSharesTextures(t *testing.T) {
	assets := sceneAssets()
	_, _, _, err := newTestAquarium(t, Options{NumFish: 10}, assets)
	require.NoError(t, err)
	for file, n := range assets.textureLoads {
		assert.Equal(t, 1, n, file)
	}
	assert.Len(t, assets.textureLoads, 6)
}

func TestAquariumPlacementLimits(t *testing.T) {
	assets := newMemoryAssets()
	assets.place("SeaweedA", 21)
	_, _, _, err := newTestAquarium(t, Options{}, assets)
	assert.ErrorIs(t, err, core.ErrInstanceCapExceeded)

	assets = newMemoryAssets()
	assets.place("EnvironmentBox", 2)
	_, _, _, err = newTestAquarium(t, Options{}, assets)
	assert.ErrorIs(t, err, core.ErrInvalidConfig)
}

func TestAquariumMissingModel(t *testing.T) {
	assets := sceneAssets()
	assets.missingModels["RockA"] = true
	_, _, _, err := newTestAquarium(t, Options{}, assets)
	assert.ErrorIs(t, err, core.ErrMissingResource)
}

func TestAquariumRecordsFPS(t *testing.T) {
	a, err := New(nil, Options{NumFish: -1})
	assert.ErrorIs(t, err, core.ErrInvalidConfig)
	assert.Nil(t, a)

	a, _, _, err = newTestAquarium(t, Options{RecordFPSFrequency: 1}, sceneAssets())
	require.NoError(t, err)
	// past the warm up, every sample is recorded
	for i := 0; i < 200; i++ {
		a.Update(0.1)
	}
	assert.NotEmpty(t, a.FPS().Recorded())
	assert.Equal(t, float64(10), a.FPS().InstantaneousFPS())
	a.PrintRecordedFPS()
}

func TestCameraUniforms(t *testing.T) {
	c := NewCamera(64, 48)
	assert.Equal(t, mgl32.Vec3{0, eyeHeight, eyeRadius}, c.Eye)

	light := c.LightWorldPosition()
	// the inverse view carries the eye as its translation
	for i := 0; i < 3; i++ {
		assert.InDelta(t, c.Eye[i], light.ViewInverse[12+i], 1e-3)
	}
	assert.NotEqual(t, [3]float32(c.Eye), light.LightWorldPos)

	w := c.WorldUniforms(mgl32.Ident4())
	assert.Equal(t, [16]float32(c.ViewProjection()), w.WorldViewProjection)
	assert.Equal(t, [16]float32(mgl32.Ident4()), w.WorldInverseTranspose)

	before := c.ViewProjection()
	c.Advance(10)
	assert.NotEqual(t, before, c.ViewProjection())
	c.SetViewport(0, 0)
	assert.Equal(t, float32(64)/48, c.aspect)
}

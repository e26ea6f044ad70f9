package assets

import (
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spaghettifunk/aquarium/engine/assets/loaders"
	"github.com/spaghettifunk/aquarium/engine/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testModel = `{"models":[
{"textures":{"diffuse":"old.png"},"fields":{"indices":{"numComponents":3,"type":"Uint16Array","data":[0,1,2]}}},
{"textures":{"diffuse":"Rock.png"},"fields":{
  "position":{"numComponents":3,"type":"Float32Array","data":[0,0,0,1,0,0,0,1,0]},
  "indices":{"numComponents":3,"type":"Uint16Array","data":[0,1,2]}}}
]}`

const testPlacement = `{"objects":[
{"name":"RockA","worldMatrix":[1,0,0,0,0,1,0,0,0,0,1,0,5,6,7,1]},
{"name":"RockA","worldMatrix":[1,0,0,0,0,1,0,0,0,0,1,0,0,0,0,1]}
]}`

func writePNG(t *testing.T, path string, w, h int, top, bottom color.RGBA) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		c := top
		if y >= h/2 {
			c = bottom
		}
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, img))
}

func newTree(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, ShaderDir), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "RockA.js"), []byte(testModel), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, PlacementFile), []byte(testPlacement), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ShaderDir, "diffuseVertexShader.wgsl"), []byte("// vs"), 0o644))
	red := color.RGBA{R: 255, A: 255}
	blue := color.RGBA{B: 255, A: 255}
	writePNG(t, filepath.Join(dir, "Rock.png"), 4, 2, red, blue)
	for _, face := range SkyboxFaces {
		writePNG(t, filepath.Join(dir, face), 2, 2, red, red)
	}
	return dir
}

func newManager(t *testing.T) (*AssetManager, string) {
	t.Helper()
	dir := newTree(t)
	am, err := NewAssetManager()
	require.NoError(t, err)
	require.NoError(t, am.Initialize(dir))
	t.Cleanup(func() { am.Shutdown() })
	return am, dir
}

func TestInitializeIndexesTree(t *testing.T) {
	am, _ := newManager(t)

	assert.Equal(t, 3+len(SkyboxFaces)+1, am.Len())
	assert.True(t, am.Has("RockA", loaders.ResourceTypeModel))
	assert.True(t, am.Has("Rock.png", loaders.ResourceTypeTexture))
	assert.True(t, am.Has("diffuseVertexShader", loaders.ResourceTypeShader))
	assert.False(t, am.Has("RockB", loaders.ResourceTypeModel))
}

func TestInitializeMissingDirectory(t *testing.T) {
	am, err := NewAssetManager()
	require.NoError(t, err)
	err = am.Initialize(filepath.Join(t.TempDir(), "nope"))
	require.ErrorIs(t, err, core.ErrMissingResource)
}

func TestLoadModelKeepsLastModel(t *testing.T) {
	am, _ := newManager(t)

	model, err := am.LoadModel("RockA")
	require.NoError(t, err)
	assert.Equal(t, "RockA", model.Name)
	assert.Equal(t, "Rock.png", model.Textures["diffuse"])
	require.Contains(t, model.Fields, "position")
	assert.Equal(t, 3, model.Fields["position"].Len())
	assert.Equal(t, []uint16{0, 1, 2}, model.Fields["indices"].Indices)
}

func TestLoadPlacement(t *testing.T) {
	am, _ := newManager(t)

	placements, err := am.LoadPlacement()
	require.NoError(t, err)
	require.Len(t, placements, 2)
	assert.Equal(t, "RockA", placements[0].Name)
	assert.Equal(t, [3]float32{5, 6, 7}, [3]float32(placements[0].World[12:15]))
}

func TestLoadTextureFlipsAndBuildsMips(t *testing.T) {
	am, _ := newManager(t)

	tex, err := am.LoadTexture("Rock.png")
	require.NoError(t, err)
	assert.False(t, tex.Cube)
	assert.Equal(t, uint32(4), tex.Width)
	assert.Equal(t, uint32(2), tex.Height)
	require.Len(t, tex.Levels, 1)
	levels := tex.Levels[0]
	require.Len(t, levels, 3)
	assert.Len(t, levels[0], 4*2*4)
	assert.Len(t, levels[1], 2*1*4)
	assert.Len(t, levels[2], 1*1*4)
	// the bottom (blue) row comes first once flipped
	assert.Equal(t, []byte{0, 0, 255, 255}, levels[0][:4])
}

func TestLoadSkybox(t *testing.T) {
	am, _ := newManager(t)

	sky, err := am.LoadSkybox()
	require.NoError(t, err)
	assert.True(t, sky.Cube)
	require.Len(t, sky.Levels, 6)
	for _, face := range sky.Levels {
		require.Len(t, face, 1)
		assert.Len(t, face[0], 2*2*4)
	}
}

func TestSourceReadsShader(t *testing.T) {
	am, _ := newManager(t)

	src, err := am.Source("diffuseVertexShader")
	require.NoError(t, err)
	assert.Equal(t, "// vs", src)

	_, err = am.Source("missing")
	require.ErrorIs(t, err, core.ErrMissingResource)
}

func TestWatcherIndexesNewFiles(t *testing.T) {
	am, dir := newManager(t)

	require.NoError(t, os.WriteFile(filepath.Join(dir, ShaderDir, "fishVertexShader.wgsl"), []byte("// fish"), 0o644))
	require.Eventually(t, func() bool {
		return am.Has("fishVertexShader", loaders.ResourceTypeShader)
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, os.Remove(filepath.Join(dir, "RockA.js")))
	require.Eventually(t, func() bool {
		return !am.Has("RockA", loaders.ResourceTypeModel)
	}, 2*time.Second, 10*time.Millisecond)
}

func TestDetermineAssetType(t *testing.T) {
	cases := map[string]loaders.ResourceType{
		"assets/PropPlacement.js":        loaders.ResourceTypePlacement,
		"assets/SmallFishA.js":           loaders.ResourceTypeModel,
		"assets/shaders/fish.wgsl":       loaders.ResourceTypeShader,
		"assets/GlobeOuter_EM_pos_x.jpg": loaders.ResourceTypeImage,
		"assets/notes.txt":               loaders.ResourceTypeNone,
	}
	for path, want := range cases {
		assert.Equal(t, want, determineAssetType(path), path)
	}
}

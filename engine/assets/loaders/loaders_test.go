package loaders

import (
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseModelData(t *testing.T) {
	ml := &ModelLoader{}

	_, err := ml.parseModelData([]byte(`{"models":[]}`))
	require.Error(t, err)

	_, err = ml.parseModelData([]byte(`{"models":[{"fields":{"indices":{"numComponents":3,"data":[0,70000,1]}}}]}`))
	require.Error(t, err)

	_, err = ml.parseModelData([]byte(`{"models":[{"fields":{"normal":{"numComponents":3,"data":[0,1]}}}]}`))
	require.Error(t, err)

	model, err := ml.parseModelData([]byte(`{"models":[{"textures":{"diffuse":"a.png"},"fields":{"texCoord":{"numComponents":2,"data":[0,0.5,1,1]}}}]}`))
	require.NoError(t, err)
	assert.Equal(t, []float32{0, 0.5, 1, 1}, model.Fields["texCoord"].Floats)
	assert.Equal(t, 2, model.Fields["texCoord"].Len())
	assert.Nil(t, model.Fields["texCoord"].Indices)
}

func TestMipLevelCount(t *testing.T) {
	assert.Equal(t, uint32(1), MipLevelCount(1, 1))
	assert.Equal(t, uint32(3), MipLevelCount(4, 2))
	assert.Equal(t, uint32(11), MipLevelCount(1024, 512))
	assert.Equal(t, uint32(10), MipLevelCount(300, 600))
}

func TestPackedDropsRowPadding(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	for i := range img.Pix {
		img.Pix[i] = byte(i)
	}
	sub := img.SubImage(image.Rect(1, 1, 3, 3)).(*image.RGBA)

	out := packed(sub)
	require.Len(t, out, 2*2*4)
	// first texel of the sub image is (1,1): offset 1*16 + 1*4
	assert.Equal(t, byte(20), out[0])
	// first texel of its second row is (1,2)
	assert.Equal(t, byte(36), out[8])
}

func TestMipChainSizes(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 8, 2))
	levels := mipChain(img)
	require.Len(t, levels, 4)
	assert.Len(t, levels[0], 8*2*4)
	assert.Len(t, levels[1], 4*1*4)
	assert.Len(t, levels[2], 2*1*4)
	assert.Len(t, levels[3], 1*1*4)
}

func TestCubeNeedsSixFaces(t *testing.T) {
	_, err := (&TextureLoader{}).Load("", &TextureParams{Cube: true, Faces: []string{"a.jpg"}})
	require.Error(t, err)
}

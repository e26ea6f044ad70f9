package loaders

import (
	"fmt"

	"github.com/spaghettifunk/aquarium/engine/core"
)

// TextureParams selects a cube map. Faces are the full paths of the six
// faces in +x, -x, +y, -y, +z, -z order; the loaded path is ignored then.
type TextureParams struct {
	Cube  bool
	Faces []string
}

// TextureData holds RGBA8 texels as Levels[layer][mip].
type TextureData struct {
	Width  uint32
	Height uint32
	Cube   bool
	Levels [][][]byte
}

// TextureLoader builds sampled textures. 2D textures are flipped and get a
// full mip chain, cube faces are used as decoded with a single level.
type TextureLoader struct{}

func (tl *TextureLoader) Load(path string, params interface{}) (*Resource, error) {
	p, _ := params.(*TextureParams)
	if p != nil && p.Cube {
		return tl.loadCube(p.Faces)
	}

	img, err := decodeImage(path, true)
	if err != nil {
		core.LogError("%s", err)
		return nil, err
	}
	data := &TextureData{
		Width:  uint32(img.Rect.Dx()),
		Height: uint32(img.Rect.Dy()),
		Levels: [][][]byte{mipChain(img)},
	}
	return &Resource{
		Name:     "texture",
		FullPath: path,
		DataSize: data.size(),
		Data:     data,
	}, nil
}

func (tl *TextureLoader) loadCube(faces []string) (*Resource, error) {
	if len(faces) != 6 {
		err := fmt.Errorf("a cube map needs 6 faces, got %d", len(faces))
		core.LogError("%s", err)
		return nil, err
	}
	data := &TextureData{Cube: true, Levels: make([][][]byte, 0, 6)}
	for i, face := range faces {
		img, err := decodeImage(face, false)
		if err != nil {
			core.LogError("%s", err)
			return nil, err
		}
		w, h := uint32(img.Rect.Dx()), uint32(img.Rect.Dy())
		if i == 0 {
			data.Width, data.Height = w, h
		} else if w != data.Width || h != data.Height {
			err := fmt.Errorf("cube face %s is %dx%d, expected %dx%d", face, w, h, data.Width, data.Height)
			core.LogError("%s", err)
			return nil, err
		}
		data.Levels = append(data.Levels, [][]byte{packed(img)})
	}
	return &Resource{
		Name:     "cube",
		FullPath: faces[0],
		DataSize: data.size(),
		Data:     data,
	}, nil
}

func (d *TextureData) size() uint64 {
	var n uint64
	for _, layer := range d.Levels {
		for _, level := range layer {
			n += uint64(len(level))
		}
	}
	return n
}

func (tl *TextureLoader) Unload(*Resource) error {
	return nil
}

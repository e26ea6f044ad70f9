package loaders

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spaghettifunk/aquarium/engine/core"
)

// ModelField is one named vertex stream, or the index list when the field
// is named "indices".
type ModelField struct {
	NumComponents int
	Floats        []float32
	Indices       []uint16
}

// Len is the number of elements of the field.
func (f ModelField) Len() int {
	if f.Indices != nil {
		return len(f.Indices)
	}
	if f.NumComponents == 0 {
		return 0
	}
	return len(f.Floats) / f.NumComponents
}

type ModelData struct {
	Name string
	// texture role (diffuse, normalMap, reflectionMap, ...) to image file name
	Textures map[string]string
	Fields   map[string]ModelField
}

type modelFile struct {
	Models []struct {
		Textures map[string]string `json:"textures"`
		Fields   map[string]struct {
			NumComponents int       `json:"numComponents"`
			Type          string    `json:"type"`
			Data          []float64 `json:"data"`
		} `json:"fields"`
	} `json:"models"`
}

type ModelLoader struct{}

// Load parses a model file. A file may list several models; the last one is
// the one drawn.
func (ml *ModelLoader) Load(path string, params interface{}) (*Resource, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	model, err := ml.parseModelData(data)
	if err != nil {
		err = fmt.Errorf("failed to parse model %s: %w", path, err)
		core.LogError("%s", err)
		return nil, err
	}
	model.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return &Resource{
		Name:     model.Name,
		FullPath: path,
		DataSize: uint64(len(data)),
		Data:     model,
	}, nil
}

func (ml *ModelLoader) parseModelData(data []byte) (*ModelData, error) {
	var file modelFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, err
	}
	if len(file.Models) == 0 {
		return nil, fmt.Errorf("no models")
	}
	last := file.Models[len(file.Models)-1]

	model := &ModelData{
		Textures: make(map[string]string, len(last.Textures)),
		Fields:   make(map[string]ModelField, len(last.Fields)),
	}
	for role, image := range last.Textures {
		model.Textures[role] = image
	}
	for name, f := range last.Fields {
		if f.NumComponents <= 0 {
			return nil, fmt.Errorf("field %s has %d components", name, f.NumComponents)
		}
		field := ModelField{NumComponents: f.NumComponents}
		if name == "indices" {
			field.Indices = make([]uint16, len(f.Data))
			for i, v := range f.Data {
				if v < 0 || v > 0xFFFF {
					return nil, fmt.Errorf("index %v out of range", v)
				}
				field.Indices[i] = uint16(v)
			}
		} else {
			if len(f.Data)%f.NumComponents != 0 {
				return nil, fmt.Errorf("field %s has %d values for %d components", name, len(f.Data), f.NumComponents)
			}
			field.Floats = make([]float32, len(f.Data))
			for i, v := range f.Data {
				field.Floats[i] = float32(v)
			}
		}
		model.Fields[name] = field
	}
	return model, nil
}

func (ml *ModelLoader) Unload(*Resource) error {
	return nil
}

package loaders

import (
	"os"
)

type ShaderLoader struct{}

// Load reads WGSL source text. Compilation happens in the renderer.
func (sl *ShaderLoader) Load(path string, params interface{}) (*Resource, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return &Resource{
		Name:     "shader",
		FullPath: path,
		DataSize: uint64(len(data)),
		Data:     string(data),
	}, nil
}

func (sl *ShaderLoader) Unload(*Resource) error {
	return nil
}

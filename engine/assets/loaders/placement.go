package loaders

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spaghettifunk/aquarium/engine/core"
)

// Placement puts one copy of the named model in the world.
type Placement struct {
	Name  string
	World [16]float32
}

type placementFile struct {
	Objects []struct {
		Name        string    `json:"name"`
		WorldMatrix []float32 `json:"worldMatrix"`
	} `json:"objects"`
}

type PlacementLoader struct{}

func (pl *PlacementLoader) Load(path string, params interface{}) (*Resource, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var file placementFile
	if err := json.Unmarshal(data, &file); err != nil {
		err = fmt.Errorf("failed to parse placement %s: %w", path, err)
		core.LogError("%s", err)
		return nil, err
	}
	placements := make([]Placement, 0, len(file.Objects))
	for i, o := range file.Objects {
		if len(o.WorldMatrix) != 16 {
			err := fmt.Errorf("placement %d (%s) has a %d element world matrix", i, o.Name, len(o.WorldMatrix))
			core.LogError("%s", err)
			return nil, err
		}
		p := Placement{Name: o.Name}
		copy(p.World[:], o.WorldMatrix)
		placements = append(placements, p)
	}
	return &Resource{
		Name:     "placement",
		FullPath: path,
		DataSize: uint64(len(data)),
		Data:     placements,
	}, nil
}

func (pl *PlacementLoader) Unload(*Resource) error {
	return nil
}

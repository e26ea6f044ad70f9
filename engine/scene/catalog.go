package scene

import (
	_ "embed"
	"fmt"

	"github.com/spaghettifunk/aquarium/engine/core"
	"github.com/spaghettifunk/aquarium/engine/renderer/models"
	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var defaultCatalog []byte

type Group string

const (
	GroupFish    Group = "fish"
	GroupGeneric Group = "generic"
	GroupSeaweed Group = "seaweed"
	GroupInner   Group = "inner"
	GroupOutside Group = "outside"
)

// Kind is the model kind drawing the group.
func (g Group) Kind(instanced bool) (models.Kind, error) {
	switch g {
	case GroupFish:
		if instanced {
			return models.KindFishInstanced, nil
		}
		return models.KindFish, nil
	case GroupGeneric:
		return models.KindGeneric, nil
	case GroupSeaweed:
		return models.KindSeaweed, nil
	case GroupInner:
		return models.KindInner, nil
	case GroupOutside:
		return models.KindOutside, nil
	}
	return 0, fmt.Errorf("%w: group %q", core.ErrUnknownModel, string(g))
}

type ModelInfo struct {
	Name  string `yaml:"name"`
	Group Group  `yaml:"group"`
	// vertex and fragment shader, or empty
	Program []string `yaml:"program"`
	Blend   bool     `yaml:"blend"`
}

type Catalog struct {
	Models []ModelInfo `yaml:"models"`
}

// DefaultCatalog is the aquarium shipped with the engine.
func DefaultCatalog() (*Catalog, error) {
	return ParseCatalog(defaultCatalog)
}

func ParseCatalog(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		err = fmt.Errorf("%w: scene catalog: %w", core.ErrInvalidConfig, err)
		core.LogError("%s", err)
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Catalog) Validate() error {
	seen := make(map[string]bool, len(c.Models))
	for _, m := range c.Models {
		var problem string
		switch {
		case m.Name == "":
			problem = "model without a name"
		case seen[m.Name]:
			problem = fmt.Sprintf("model %s listed twice", m.Name)
		case len(m.Program) != 0 && len(m.Program) != 2:
			problem = fmt.Sprintf("model %s needs a vertex and a fragment shader", m.Name)
		}
		if problem == "" {
			if _, err := m.Group.Kind(false); err != nil {
				problem = fmt.Sprintf("model %s: %s", m.Name, err)
			}
		}
		if problem == "" && m.Group == GroupFish {
			if _, ok := SpeciesIndex(m.Name); !ok {
				problem = fmt.Sprintf("fish %s has no species entry", m.Name)
			}
		}
		if problem != "" {
			err := fmt.Errorf("%w: %s", core.ErrInvalidConfig, problem)
			core.LogError("%s", err)
			return err
		}
		seen[m.Name] = true
	}
	return nil
}

// Group returns the models of group g in draw order.
func (c *Catalog) Group(g Group) []ModelInfo {
	var out []ModelInfo
	for _, m := range c.Models {
		if m.Group == g {
			out = append(out, m)
		}
	}
	return out
}

// programFor picks the shaders of a model without an explicit program. It
// reports whether the program samples the skybox.
func programFor(info ModelInfo, textures map[string]string) (vs, fs string, skybox bool) {
	if len(info.Program) == 2 {
		return info.Program[0], info.Program[1], true
	}
	if _, ok := textures["reflectionMap"]; ok {
		return "reflectionMapVertexShader", "reflectionMapFragmentShader", true
	}
	if _, ok := textures["normalMap"]; ok {
		return "normalMapVertexShader", "normalMapFragmentShader", false
	}
	return "diffuseVertexShader", "diffuseFragmentShader", false
}

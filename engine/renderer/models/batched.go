package models

import (
	"github.com/spaghettifunk/aquarium/engine/renderer/gpu"
	"github.com/spaghettifunk/aquarium/engine/renderer/uniforms"
)

var (
	baseStreams   = []string{"position", "normal", "texCoord"}
	bumpStreams   = []string{"position", "normal", "texCoord", "tangent", "binormal"}
	lightTextures = []string{"normalMap", "reflectionMap"}
)

func initGeneric(m *Model, h Host) error {
	streams := baseStreams
	optional := []string{"skybox"}
	if _, ok := m.Textures["normalMap"]; ok {
		streams = bumpStreams
		optional = append(lightTextures[:len(lightTextures):len(lightTextures)], "skybox")
	}
	factor, err := uniforms.NewStatic(h.Stager(), h.UploadList(), m.Name+"-light-factor", uniforms.GenericLightFactor)
	if err != nil {
		return err
	}
	m.own(factor)
	if err := m.initBatch(h); err != nil {
		return err
	}
	return m.build(h, layoutPlan{
		streams:   streams,
		required:  []string{"diffuse"},
		optional:  optional,
		constants: []gpu.Buffer{factor.Buffer()},
		roots:     []gpu.BindingParam{rootConstant(registerWorld)},
	})
}

func initSeaweed(m *Model, h Host) error {
	factor, err := uniforms.NewStatic(h.Stager(), h.UploadList(), m.Name+"-light-factor", uniforms.SeaweedLightFactor)
	if err != nil {
		return err
	}
	m.own(factor)
	if err := m.initBatch(h); err != nil {
		return err
	}
	seaweed, err := uniforms.NewMappedArray[uniforms.SeaweedPer](h.Stager(), m.Name+"-seaweed-per",
		uniforms.MaxBatchedInstances, uniforms.MaxBatchedInstances)
	if err != nil {
		return err
	}
	m.own(seaweed)
	m.seaweed = seaweed
	return m.build(h, layoutPlan{
		streams:   baseStreams,
		required:  []string{"diffuse", "skybox"},
		constants: []gpu.Buffer{factor.Buffer()},
		roots: []gpu.BindingParam{
			rootConstant(registerWorld),
			rootConstant(registerSeaweed),
		},
	})
}

func (m *Model) initBatch(h Host) error {
	worlds, err := uniforms.NewMappedArray[uniforms.World](h.Stager(), m.Name+"-world",
		uniforms.MaxBatchedInstances, uniforms.MaxBatchedInstances)
	if err != nil {
		return err
	}
	m.own(worlds)
	m.worlds = worlds
	return nil
}

func prepareBatched(*Model) error { return nil }

// updateBatched appends one placement. Appending past the batch capacity
// fails: the batch must be drawn, which resets it, first.
func updateBatched(m *Model, inst *Instance) error {
	if err := m.worlds.Append(inst.World); err != nil {
		return err
	}
	if m.seaweed != nil {
		return m.seaweed.Append(uniforms.SeaweedPer{Time: inst.Time})
	}
	return nil
}

// drawBatched issues one draw covering every accumulated placement and
// empties the batch.
func drawBatched(m *Model, list gpu.CommandList) error {
	count := m.worlds.Len()
	if count == 0 {
		return nil
	}
	if err := m.worlds.Flush(); err != nil {
		return err
	}
	m.bind(list)
	list.SetConstantBuffer(paramWorld, m.worlds.Buffer(), 0)
	if m.seaweed != nil {
		if err := m.seaweed.Flush(); err != nil {
			return err
		}
		list.SetConstantBuffer(paramSeaweed, m.seaweed.Buffer(), 0)
		m.seaweed.Reset()
	}
	list.DrawIndexedInstanced(m.indexLen, uint32(count), 0, 0, 0)
	m.worlds.Reset()
	return nil
}

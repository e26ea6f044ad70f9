package models

import (
	"unsafe"

	"github.com/spaghettifunk/aquarium/engine/renderer/gpu"
	"github.com/spaghettifunk/aquarium/engine/renderer/uniforms"
)

func initFish(m *Model, h Host) error {
	factor, err := uniforms.NewStatic(h.Stager(), h.UploadList(), m.Name+"-light-factor", uniforms.FishLightFactor)
	if err != nil {
		return err
	}
	m.own(factor)
	vertex, err := uniforms.NewStatic(h.Stager(), h.UploadList(), m.Name+"-fish-vertex", m.fish)
	if err != nil {
		return err
	}
	m.own(vertex)

	// an empty species still gets a one element stream so the layout is valid
	capacity := max(m.instances, 1)
	per, err := uniforms.NewMappedArray[uniforms.FishPer](h.Stager(), m.Name+"-fish-per", capacity, 0)
	if err != nil {
		return err
	}
	m.own(per)
	m.fishPer = per

	if err := m.build(h, layoutPlan{
		streams:        bumpStreams,
		required:       []string{"diffuse", "normalMap", "reflectionMap", "skybox"},
		constants:      []gpu.Buffer{factor.Buffer()},
		roots:          []gpu.BindingParam{rootConstant(registerWorld)},
		instanceAttrs:  fishInstanceAttributes,
		instanceStride: uint32(unsafe.Sizeof(uniforms.FishPer{})),
	}); err != nil {
		return err
	}
	m.vertexConstants = vertex.Buffer()
	return nil
}

// prepareFish starts a new frame of fish state.
func prepareFish(m *Model) error {
	m.fishPer.Reset()
	m.drawnFish = 0
	return nil
}

func (m *Model) bindFish(list gpu.CommandList) {
	m.bind(list)
	list.SetConstantBuffer(paramWorld, m.vertexConstants, 0)
	list.SetVertexBuffers(instanceSlot, m.fishPer.VertexView())
}

// drawFish issues one draw per fish updated since the previous Draw, each
// reading its own element of the FishPer stream.
func drawFish(m *Model, list gpu.CommandList) error {
	from, to := m.drawnFish, m.fishPer.Len()
	if from >= to {
		return nil
	}
	if err := m.fishPer.FlushRange(from, to); err != nil {
		return err
	}
	m.bindFish(list)
	for i := from; i < to; i++ {
		list.DrawIndexedInstanced(m.indexLen, 1, 0, 0, uint32(i))
	}
	m.drawnFish = to
	return nil
}

// drawFishInstanced covers every fish of the species with one draw.
func drawFishInstanced(m *Model, list gpu.CommandList) error {
	count := m.fishPer.Len()
	if count == 0 {
		return nil
	}
	if err := m.fishPer.Flush(); err != nil {
		return err
	}
	m.bindFish(list)
	list.DrawIndexedInstanced(m.indexLen, uint32(count), 0, 0, 0)
	return nil
}

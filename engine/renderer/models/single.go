package models

import (
	"github.com/spaghettifunk/aquarium/engine/renderer/gpu"
	"github.com/spaghettifunk/aquarium/engine/renderer/uniforms"
)

// The tank glass.
func initInner(m *Model, h Host) error {
	factor, err := uniforms.NewStatic(h.Stager(), h.UploadList(), m.Name+"-light-factor", uniforms.GenericLightFactor)
	if err != nil {
		return err
	}
	m.own(factor)
	inner, err := uniforms.NewStatic(h.Stager(), h.UploadList(), m.Name+"-inner", uniforms.DefaultInner)
	if err != nil {
		return err
	}
	m.own(inner)
	if err := m.initWorld(h); err != nil {
		return err
	}
	return m.build(h, layoutPlan{
		streams:   bumpStreams,
		required:  []string{"diffuse", "normalMap", "reflectionMap", "skybox"},
		constants: []gpu.Buffer{factor.Buffer(), inner.Buffer()},
		roots:     []gpu.BindingParam{rootConstant(registerWorld)},
	})
}

// The outer tank frame.
func initOutside(m *Model, h Host) error {
	factor, err := uniforms.NewStatic(h.Stager(), h.UploadList(), m.Name+"-light-factor", uniforms.OutsideLightFactor)
	if err != nil {
		return err
	}
	m.own(factor)
	if err := m.initWorld(h); err != nil {
		return err
	}
	return m.build(h, layoutPlan{
		streams:   baseStreams,
		required:  []string{"diffuse"},
		optional:  []string{"skybox"},
		constants: []gpu.Buffer{factor.Buffer()},
		roots:     []gpu.BindingParam{rootConstant(registerWorld)},
	})
}

func (m *Model) initWorld(h Host) error {
	world, err := uniforms.NewDynamic[uniforms.World](h.Stager(), m.Name+"-world")
	if err != nil {
		return err
	}
	m.own(world)
	m.world = world
	return nil
}

func updateSingle(m *Model, inst *Instance) error {
	return m.world.Set(inst.World)
}

func drawSingle(m *Model, list gpu.CommandList) error {
	m.bind(list)
	list.SetConstantBuffer(paramWorld, m.world.Buffer(), 0)
	list.DrawIndexedInstanced(m.indexLen, 1, 0, 0, 0)
	return nil
}

// Package models implements the draw strategies of the aquarium models.
//
// Every model follows the same per frame protocol: PrepareForDraw, then any
// number of UpdatePerInstanceUniforms / UpdateFishPerUniforms calls, then
// Draw. What Draw records depends on the model kind: one draw per object,
// one draw per CPU batch of instances, or one hardware instanced draw.
package models

import (
	"fmt"

	"github.com/spaghettifunk/aquarium/engine/core"
	"github.com/spaghettifunk/aquarium/engine/renderer/descriptor"
	"github.com/spaghettifunk/aquarium/engine/renderer/gpu"
	"github.com/spaghettifunk/aquarium/engine/renderer/program"
	"github.com/spaghettifunk/aquarium/engine/renderer/staging"
	"github.com/spaghettifunk/aquarium/engine/renderer/uniforms"
)

// Globals are the scene wide bindings shared by every model.
type Globals struct {
	// Base of the light and fog constant buffer views, in that order.
	Table              descriptor.GPUHandle
	LightWorldPosition gpu.Buffer
	ColorFormat        gpu.Format
	DepthFormat        gpu.Format
	SampleCount        uint32
}

// Host is what a model needs from the renderer context during Init.
type Host interface {
	Device() gpu.Device
	Stager() *staging.Stager
	Descriptors() *descriptor.Allocator
	// UploadList is the command list setup uploads are recorded into.
	UploadList() gpu.CommandList
	Globals() Globals
}

// Desc describes a model before any device object exists.
type Desc struct {
	Kind  Kind
	Name  string
	Blend bool
	// Number of fish for fish kinds.
	Instances int
	Fish      uniforms.FishVertex
}

type Model struct {
	Kind  Kind
	Name  string
	Blend bool

	// Shared resources, owned by the context that created them.
	Buffers  map[string]*staging.GPUBuffer
	Textures map[string]*staging.GPUTexture
	Program  *program.Program

	state     State
	instances int
	fish      uniforms.FishVertex
	globals   Globals

	layout   gpu.BindingLayout
	pipeline gpu.Pipeline
	table    descriptor.GPUHandle
	vertex   []gpu.VertexBufferView
	index    gpu.IndexBufferView
	indexLen uint32
	// Private constant buffers, destroyed with the model.
	owned []interface{ Destroy() }

	// kind specific state
	world   *uniforms.Dynamic[uniforms.World]
	worlds  *uniforms.MappedArray[uniforms.World]
	seaweed *uniforms.MappedArray[uniforms.SeaweedPer]
	fishPer *uniforms.MappedArray[uniforms.FishPer]
	// fish length, wave and bend constants
	vertexConstants gpu.Buffer
	// next fish to draw in single draw mode
	drawnFish int
}

func New(desc Desc) (*Model, error) {
	if desc.Kind >= kindCount {
		err := fmt.Errorf("%w: %d", core.ErrUnknownModel, desc.Kind)
		core.LogError("%s", err)
		return nil, err
	}
	if desc.Instances < 0 {
		err := fmt.Errorf("%w: model %s has %d instances", core.ErrInvalidConfig, desc.Name, desc.Instances)
		core.LogError("%s", err)
		return nil, err
	}
	return &Model{
		Kind:      desc.Kind,
		Name:      desc.Name,
		Blend:     desc.Blend,
		Buffers:   make(map[string]*staging.GPUBuffer),
		Textures:  make(map[string]*staging.GPUTexture),
		instances: desc.Instances,
		fish:      desc.Fish,
	}, nil
}

func (m *Model) SetBuffer(name string, b *staging.GPUBuffer) {
	m.Buffers[name] = b
}

func (m *Model) SetTexture(name string, t *staging.GPUTexture) {
	m.Textures[name] = t
}

func (m *Model) SetProgram(p *program.Program) {
	m.Program = p
}

func (m *Model) State() State {
	return m.state
}

func (m *Model) Capabilities() Capabilities {
	return m.Kind.Capabilities()
}

// Instances is the number of fish the model was created for.
func (m *Model) Instances() int {
	return m.instances
}

// Init builds the binding layout, the pipeline and the private constant
// buffers. It runs once; the named buffers and textures must be set before.
func (m *Model) Init(h Host) error {
	if m.state != StateUninitialized {
		err := fmt.Errorf("model %s initialized twice", m.Name)
		core.LogError("%s", err)
		return err
	}
	m.globals = h.Globals()
	if err := dispatch[m.Kind].setup(m, h); err != nil {
		m.Destroy()
		return fmt.Errorf("failed to initialize %s model %s: %w", m.Kind, m.Name, err)
	}
	m.state = StateReady
	core.LogDebug("model %s (%s) ready", m.Name, m.Kind)
	return nil
}

// PrepareForDraw writes the per frame uniforms. It must run before Draw in
// every frame.
func (m *Model) PrepareForDraw() error {
	if m.state == StateUninitialized {
		return m.notReady("prepare")
	}
	if err := dispatch[m.Kind].prepare(m); err != nil {
		return err
	}
	m.state = StatePrepared
	return nil
}

// UpdatePerInstanceUniforms stores the uniforms of the next placement.
// Batched kinds reuse their mapped arrays from offset zero after a draw, so
// they take no placements between Draw and EndFrame.
func (m *Model) UpdatePerInstanceUniforms(inst *Instance) error {
	if m.state != StatePrepared && m.state != StateDrawn {
		return m.notReady("update")
	}
	if m.state == StateDrawn && m.Capabilities().Batched {
		return m.notReady("update")
	}
	return dispatch[m.Kind].update(m, inst)
}

// UpdateFishPerUniforms stores the state of fish index for this frame.
func (m *Model) UpdateFishPerUniforms(index int, per uniforms.FishPer) error {
	if !m.Capabilities().FishPer {
		err := fmt.Errorf("model %s (%s) has no fish state", m.Name, m.Kind)
		core.LogError("%s", err)
		return err
	}
	if m.state != StatePrepared && m.state != StateDrawn {
		return m.notReady("update")
	}
	return m.fishPer.Set(index, per)
}

// Draw records the draw calls of the model into list.
func (m *Model) Draw(list gpu.CommandList) error {
	if m.state != StatePrepared && m.state != StateDrawn {
		return m.notReady("draw")
	}
	if err := dispatch[m.Kind].draw(m, list); err != nil {
		return err
	}
	m.state = StateDrawn
	return nil
}

// EndFrame returns the model to the ready state; the next frame has to be
// prepared again.
func (m *Model) EndFrame() {
	if m.state == StatePrepared || m.state == StateDrawn {
		m.state = StateReady
	}
}

// BatchLen is the number of placements accumulated since the last draw.
func (m *Model) BatchLen() int {
	if m.worlds == nil {
		return 0
	}
	return m.worlds.Len()
}

func (m *Model) Destroy() {
	for _, o := range m.owned {
		o.Destroy()
	}
	m.owned = nil
	if m.pipeline != nil {
		m.pipeline.Destroy()
		m.pipeline = nil
	}
	if m.layout != nil {
		m.layout.Destroy()
		m.layout = nil
	}
	m.state = StateUninitialized
}

func (m *Model) notReady(op string) error {
	err := fmt.Errorf("%w: cannot %s model %s while %s", core.ErrNotReady, op, m.Name, m.state)
	core.LogError("%s", err)
	return err
}

func (m *Model) own(o interface{ Destroy() }) {
	m.owned = append(m.owned, o)
}

// bind records the state shared by every kind: layout, pipeline, scene
// constants, model table and geometry.
func (m *Model) bind(list gpu.CommandList) {
	list.SetBindingLayout(m.layout)
	list.SetPipeline(m.pipeline)
	list.SetDescriptorTable(paramScene, uint32(m.globals.Table))
	list.SetConstantBuffer(paramLightWorldPosition, m.globals.LightWorldPosition, 0)
	list.SetDescriptorTable(paramModel, uint32(m.table))
	list.SetVertexBuffers(0, m.vertex...)
	list.SetIndexBuffer(m.index)
}

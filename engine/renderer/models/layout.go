package models

import (
	"fmt"

	"github.com/spaghettifunk/aquarium/engine/core"
	"github.com/spaghettifunk/aquarium/engine/renderer/gpu"
	"github.com/spaghettifunk/aquarium/engine/renderer/staging"
)

// Root parameter indices shared by every binding layout.
const (
	paramScene uint32 = iota
	paramLightWorldPosition
	paramModel
	// world uniforms, or the fish vertex constants for fish kinds
	paramWorld
	paramSeaweed
)

// Register of the first model constant buffer. b0 and b1 hold light and fog.
const (
	registerLightWorldPosition uint32 = 2
	registerModelConstants     uint32 = 3
	registerWorld              uint32 = 6
	registerSeaweed            uint32 = 7
)

const instanceSlot uint32 = 5

var semantics = map[string]string{
	"position": "POSITION",
	"normal":   "NORMAL",
	"texCoord": "TEXCOORD",
	"tangent":  "TANGENT",
	"binormal": "BINORMAL",
}

// 2D textures are mirrored, the skybox is clamped.
var samplers = []gpu.StaticSampler{
	{Register: 0, Filter: gpu.FilterMinMagLinearMipPoint, AddressMode: gpu.AddressModeMirror, Visibility: gpu.VisibilityPixel},
	{Register: 1, Filter: gpu.FilterLinear, AddressMode: gpu.AddressModeClamp, Visibility: gpu.VisibilityPixel},
}

// fishInstanceAttributes describe the FishPer stream of instanced fish.
var fishInstanceAttributes = []gpu.VertexAttribute{
	{Semantic: "TEXCOORD", SemanticIndex: 1, Format: gpu.FormatR32G32B32Float, Slot: instanceSlot, Offset: 0, PerInstance: true},
	{Semantic: "TEXCOORD", SemanticIndex: 2, Format: gpu.FormatR32Float, Slot: instanceSlot, Offset: 12, PerInstance: true},
	{Semantic: "TEXCOORD", SemanticIndex: 3, Format: gpu.FormatR32G32B32Float, Slot: instanceSlot, Offset: 16, PerInstance: true},
	{Semantic: "TEXCOORD", SemanticIndex: 4, Format: gpu.FormatR32Float, Slot: instanceSlot, Offset: 28, PerInstance: true},
}

// layoutPlan is what a model kind binds besides the scene constants.
type layoutPlan struct {
	streams   []string
	required  []string
	optional  []string
	constants []gpu.Buffer
	// extra root constant buffers after the model table
	roots []gpu.BindingParam
	// attributes and stride of the instance stream, if any
	instanceAttrs  []gpu.VertexAttribute
	instanceStride uint32
}

// geometry resolves the named vertex streams and the index buffer.
func (m *Model) geometry(streams []string) ([]gpu.VertexAttribute, []uint32, error) {
	attrs := make([]gpu.VertexAttribute, 0, len(streams))
	strides := make([]uint32, 0, len(streams))
	m.vertex = m.vertex[:0]
	for slot, name := range streams {
		b, ok := m.Buffers[name]
		if !ok || b == nil {
			return nil, nil, m.missing("buffer", name)
		}
		attrs = append(attrs, gpu.VertexAttribute{
			Semantic: semantics[name],
			Format:   gpu.FloatFormat(b.Stride / 4),
			Slot:     uint32(slot),
		})
		strides = append(strides, b.Stride)
		m.vertex = append(m.vertex, b.VertexView())
	}
	idx, ok := m.Buffers["indices"]
	if !ok || idx == nil {
		return nil, nil, m.missing("buffer", "indices")
	}
	m.index = idx.IndexView()
	m.indexLen = idx.Count
	return attrs, strides, nil
}

// textures returns the required textures followed by the optional ones present.
func (m *Model) textures(required, optional []string) ([]*staging.GPUTexture, error) {
	out := make([]*staging.GPUTexture, 0, len(required)+len(optional))
	for _, name := range required {
		t, ok := m.Textures[name]
		if !ok || t == nil {
			return nil, m.missing("texture", name)
		}
		out = append(out, t)
	}
	for _, name := range optional {
		if t, ok := m.Textures[name]; ok && t != nil {
			out = append(out, t)
		}
	}
	return out, nil
}

func (m *Model) missing(what, name string) error {
	err := fmt.Errorf("%w: model %s needs %s %q", core.ErrMissingResource, m.Name, what, name)
	core.LogError("%s", err)
	return err
}

// build creates the descriptor table, binding layout and pipeline from plan.
func (m *Model) build(h Host, plan layoutPlan) error {
	if m.Program == nil || m.Program.Vertex == nil || m.Program.Fragment == nil {
		return m.missing("program", m.Name)
	}
	attrs, strides, err := m.geometry(plan.streams)
	if err != nil {
		return err
	}
	textures, err := m.textures(plan.required, plan.optional)
	if err != nil {
		return err
	}

	// model constants first, then textures, in consecutive slots
	alloc := h.Descriptors()
	first := true
	for _, cb := range plan.constants {
		slot, err := alloc.AllocateCBV(cb)
		if err != nil {
			return err
		}
		if first {
			m.table, first = slot.GPU, false
		}
	}
	for _, t := range textures {
		slot, err := alloc.AllocateSRV(t.Texture)
		if err != nil {
			return err
		}
		if first {
			m.table, first = slot.GPU, false
		}
	}

	params := []gpu.BindingParam{
		paramScene: {
			Kind:       gpu.BindingKindTable,
			Visibility: gpu.VisibilityPixel,
			Ranges:     []gpu.DescriptorRange{{Kind: gpu.DescriptorKindCBV, Count: 2, BaseRegister: 0}},
		},
		paramLightWorldPosition: {
			Kind:       gpu.BindingKindConstantBuffer,
			Visibility: gpu.VisibilityVertex,
			Register:   registerLightWorldPosition,
		},
		paramModel: {
			Kind:       gpu.BindingKindTable,
			Visibility: gpu.VisibilityAll,
			Ranges: []gpu.DescriptorRange{
				{Kind: gpu.DescriptorKindCBV, Count: uint32(len(plan.constants)), BaseRegister: registerModelConstants},
				{Kind: gpu.DescriptorKindSRV, Count: uint32(len(textures)), BaseRegister: 0},
			},
		},
	}
	params = append(params, plan.roots...)

	layout, err := h.Device().CreateBindingLayout(gpu.BindingLayoutDesc{
		Label:    m.Name,
		Params:   params,
		Samplers: samplers,
	})
	if err != nil {
		err = fmt.Errorf("failed to create binding layout for %s: %w", m.Name, err)
		core.LogError("%s", err)
		return err
	}
	m.layout = layout

	if plan.instanceAttrs != nil {
		for len(strides) < int(instanceSlot) {
			strides = append(strides, 0)
		}
		strides = append(strides, plan.instanceStride)
		attrs = append(attrs, plan.instanceAttrs...)
	}

	g := m.globals
	pipeline, err := h.Device().CreatePipeline(gpu.PipelineDesc{
		Label:        m.Name,
		Layout:       layout,
		Vertex:       m.Program.Vertex,
		Fragment:     m.Program.Fragment,
		Attributes:   attrs,
		Strides:      strides,
		Blend:        m.Blend,
		SampleCount:  g.SampleCount,
		ColorFormat:  g.ColorFormat,
		DepthFormat:  g.DepthFormat,
		CullBack:     true,
		FrontCCW:     true,
		DepthLess:    true,
		DepthEnabled: true,
	})
	if err != nil {
		err = fmt.Errorf("failed to create pipeline for %s: %w", m.Name, err)
		core.LogError("%s", err)
		return err
	}
	m.pipeline = pipeline
	return nil
}

func rootConstant(register uint32) gpu.BindingParam {
	return gpu.BindingParam{
		Kind:       gpu.BindingKindConstantBuffer,
		Visibility: gpu.VisibilityVertex,
		Register:   register,
	}
}

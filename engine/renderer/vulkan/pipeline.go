package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/aquarium/engine/core"
	"github.com/spaghettifunk/aquarium/engine/renderer/gpu"
)

/**
 * @brief A binding layout: one descriptor set per parameter, plus a last set
 * holding the static samplers.
 */
type VulkanBindingLayout struct {
	context *VulkanContext
	desc    gpu.BindingLayoutDesc

	/** @brief The set layouts, indexed by parameter. The sampler set is last. */
	SetLayouts []vk.DescriptorSetLayout
	/** @brief The pipeline layout built from SetLayouts. */
	PipelineLayout vk.PipelineLayout

	samplers    []vk.Sampler
	samplerPool vk.DescriptorPool
	samplerSet  vk.DescriptorSet
}

func NewBindingLayout(context *VulkanContext, desc gpu.BindingLayoutDesc) (*VulkanBindingLayout, error) {
	bl := &VulkanBindingLayout{context: context, desc: desc}
	device := context.Device.LogicalDevice

	for i, param := range desc.Params {
		var bindings []vk.DescriptorSetLayoutBinding
		switch param.Kind {
		case gpu.BindingKindConstantBuffer:
			bindings = append(bindings, vk.DescriptorSetLayoutBinding{
				Binding:         param.Register,
				DescriptorType:  vk.DescriptorTypeUniformBuffer,
				DescriptorCount: 1,
				StageFlags:      stageFlagsOf(param.Visibility),
			})
		case gpu.BindingKindTable:
			for _, r := range param.Ranges {
				for j := uint32(0); j < r.Count; j++ {
					binding := vk.DescriptorSetLayoutBinding{
						Binding:         r.BaseRegister + j,
						DescriptorType:  vk.DescriptorTypeUniformBuffer,
						DescriptorCount: 1,
						StageFlags:      stageFlagsOf(param.Visibility),
					}
					if r.Kind == gpu.DescriptorKindSRV {
						binding.Binding += textureBindingOffset
						binding.DescriptorType = vk.DescriptorTypeSampledImage
					}
					bindings = append(bindings, binding)
				}
			}
		}
		layout, err := createSetLayout(context, bindings)
		if err != nil {
			bl.Destroy()
			return nil, fmt.Errorf("binding layout %s parameter %d: %w", desc.Label, i, err)
		}
		bl.SetLayouts = append(bl.SetLayouts, layout)
	}

	if err := bl.createSamplers(); err != nil {
		bl.Destroy()
		return nil, err
	}

	pipelineLayoutCreateInfo := vk.PipelineLayoutCreateInfo{
		SType:          vk.StructureTypePipelineLayoutCreateInfo,
		SetLayoutCount: uint32(len(bl.SetLayouts)),
		PSetLayouts:    bl.SetLayouts,
	}
	if res := vk.CreatePipelineLayout(device, &pipelineLayoutCreateInfo, context.Allocator, &bl.PipelineLayout); res != vk.Success {
		bl.Destroy()
		return nil, resultError(res, "vkCreatePipelineLayout(%s)", desc.Label)
	}
	return bl, nil
}

func createSetLayout(context *VulkanContext, bindings []vk.DescriptorSetLayoutBinding) (vk.DescriptorSetLayout, error) {
	createInfo := vk.DescriptorSetLayoutCreateInfo{
		SType:        vk.StructureTypeDescriptorSetLayoutCreateInfo,
		BindingCount: uint32(len(bindings)),
		PBindings:    bindings,
	}
	var layout vk.DescriptorSetLayout
	if res := vk.CreateDescriptorSetLayout(context.Device.LogicalDevice, &createInfo, context.Allocator, &layout); res != vk.Success {
		return vk.NullDescriptorSetLayout, resultError(res, "vkCreateDescriptorSetLayout")
	}
	return layout, nil
}

// createSamplers builds the static samplers and writes them once into a set
// owned by the layout. They never change for the lifetime of the layout.
func (bl *VulkanBindingLayout) createSamplers() error {
	device := bl.context.Device.LogicalDevice
	var bindings []vk.DescriptorSetLayoutBinding
	for _, s := range bl.desc.Samplers {
		filter, mipmap := filterOf(s.Filter)
		mode := addressModeOf(s.AddressMode)
		samplerInfo := vk.SamplerCreateInfo{
			SType:                   vk.StructureTypeSamplerCreateInfo,
			MagFilter:               filter,
			MinFilter:               filter,
			MipmapMode:              mipmap,
			AddressModeU:            mode,
			AddressModeV:            mode,
			AddressModeW:            mode,
			AnisotropyEnable:        vk.False,
			MaxAnisotropy:           1,
			CompareEnable:           vk.False,
			CompareOp:               vk.CompareOpAlways,
			MinLod:                  0,
			MaxLod:                  1000,
			BorderColor:             vk.BorderColorIntOpaqueBlack,
			UnnormalizedCoordinates: vk.False,
		}
		var sampler vk.Sampler
		if res := vk.CreateSampler(device, &samplerInfo, bl.context.Allocator, &sampler); res != vk.Success {
			return resultError(res, "vkCreateSampler")
		}
		bl.samplers = append(bl.samplers, sampler)
		bindings = append(bindings, vk.DescriptorSetLayoutBinding{
			Binding:         s.Register,
			DescriptorType:  vk.DescriptorTypeSampler,
			DescriptorCount: 1,
			StageFlags:      stageFlagsOf(s.Visibility),
		})
	}

	layout, err := createSetLayout(bl.context, bindings)
	if err != nil {
		return err
	}
	bl.SetLayouts = append(bl.SetLayouts, layout)
	if len(bindings) == 0 {
		return nil
	}

	poolInfo := vk.DescriptorPoolCreateInfo{
		SType:         vk.StructureTypeDescriptorPoolCreateInfo,
		MaxSets:       1,
		PoolSizeCount: 1,
		PPoolSizes: []vk.DescriptorPoolSize{{
			Type:            vk.DescriptorTypeSampler,
			DescriptorCount: uint32(len(bindings)),
		}},
	}
	if res := vk.CreateDescriptorPool(device, &poolInfo, bl.context.Allocator, &bl.samplerPool); res != vk.Success {
		return resultError(res, "vkCreateDescriptorPool(samplers)")
	}
	allocateInfo := vk.DescriptorSetAllocateInfo{
		SType:              vk.StructureTypeDescriptorSetAllocateInfo,
		DescriptorPool:     bl.samplerPool,
		DescriptorSetCount: 1,
		PSetLayouts:        []vk.DescriptorSetLayout{layout},
	}
	if res := vk.AllocateDescriptorSets(device, &allocateInfo, &bl.samplerSet); res != vk.Success {
		return resultError(res, "vkAllocateDescriptorSets(samplers)")
	}

	writes := make([]vk.WriteDescriptorSet, len(bindings))
	for i, b := range bindings {
		writes[i] = vk.WriteDescriptorSet{
			SType:           vk.StructureTypeWriteDescriptorSet,
			DstSet:          bl.samplerSet,
			DstBinding:      b.Binding,
			DescriptorCount: 1,
			DescriptorType:  vk.DescriptorTypeSampler,
			PImageInfo:      []vk.DescriptorImageInfo{{Sampler: bl.samplers[i]}},
		}
	}
	vk.UpdateDescriptorSets(device, uint32(len(writes)), writes, 0, nil)
	return nil
}

func (bl *VulkanBindingLayout) Desc() gpu.BindingLayoutDesc { return bl.desc }

// samplerSetIndex is the set number the static samplers are bound at.
func (bl *VulkanBindingLayout) samplerSetIndex() uint32 { return uint32(len(bl.desc.Params)) }

func (bl *VulkanBindingLayout) Destroy() {
	device := bl.context.Device.LogicalDevice
	if bl.PipelineLayout != vk.NullPipelineLayout {
		vk.DestroyPipelineLayout(device, bl.PipelineLayout, bl.context.Allocator)
		bl.PipelineLayout = vk.NullPipelineLayout
	}
	if bl.samplerPool != vk.NullDescriptorPool {
		vk.DestroyDescriptorPool(device, bl.samplerPool, bl.context.Allocator)
		bl.samplerPool = vk.NullDescriptorPool
	}
	for _, s := range bl.samplers {
		vk.DestroySampler(device, s, bl.context.Allocator)
	}
	bl.samplers = nil
	for _, l := range bl.SetLayouts {
		vk.DestroyDescriptorSetLayout(device, l, bl.context.Allocator)
	}
	bl.SetLayouts = nil
}

/**
 * @brief Holds a Vulkan pipeline and the description it was built from.
 */
type VulkanPipeline struct {
	context *VulkanContext
	desc    gpu.PipelineDesc
	layout  *VulkanBindingLayout
	/** @brief The internal pipeline handle. */
	Handle vk.Pipeline
}

func NewGraphicsPipeline(context *VulkanContext, renderpass *VulkanRenderpass, desc gpu.PipelineDesc) (*VulkanPipeline, error) {
	layout, ok := desc.Layout.(*VulkanBindingLayout)
	if !ok {
		return nil, fmt.Errorf("pipeline %s: binding layout was not created by the vulkan backend", desc.Label)
	}
	vs, ok := desc.Vertex.(*VulkanShaderStage)
	if !ok {
		return nil, fmt.Errorf("pipeline %s: vertex module was not created by the vulkan backend", desc.Label)
	}
	fs, ok := desc.Fragment.(*VulkanShaderStage)
	if !ok {
		return nil, fmt.Errorf("pipeline %s: fragment module was not created by the vulkan backend", desc.Label)
	}
	outPipeline := &VulkanPipeline{context: context, desc: desc, layout: layout}

	// Viewport and scissor are dynamic, only the counts matter here.
	viewportState := vk.PipelineViewportStateCreateInfo{
		SType:         vk.StructureTypePipelineViewportStateCreateInfo,
		ViewportCount: 1,
		ScissorCount:  1,
	}

	// Rasterizer
	rasterizerCreateInfo := vk.PipelineRasterizationStateCreateInfo{
		SType:                   vk.StructureTypePipelineRasterizationStateCreateInfo,
		DepthClampEnable:        vk.False,
		RasterizerDiscardEnable: vk.False,
		PolygonMode:             vk.PolygonModeFill,
		LineWidth:               1.0,
		CullMode:                vk.CullModeFlags(vk.CullModeNone),
		FrontFace:               vk.FrontFaceClockwise,
		DepthBiasEnable:         vk.False,
	}
	if desc.CullBack {
		rasterizerCreateInfo.CullMode = vk.CullModeFlags(vk.CullModeBackBit)
	}
	if desc.FrontCCW {
		rasterizerCreateInfo.FrontFace = vk.FrontFaceCounterClockwise
	}

	// Multisampling.
	multisamplingCreateInfo := vk.PipelineMultisampleStateCreateInfo{
		SType:                 vk.StructureTypePipelineMultisampleStateCreateInfo,
		SampleShadingEnable:   vk.False,
		RasterizationSamples:  sampleCountBit(desc.SampleCount),
		MinSampleShading:      1.0,
		AlphaToCoverageEnable: vk.False,
		AlphaToOneEnable:      vk.False,
	}

	// Depth and stencil testing.
	depthStencil := vk.PipelineDepthStencilStateCreateInfo{
		SType:             vk.StructureTypePipelineDepthStencilStateCreateInfo,
		DepthTestEnable:   vk.False,
		DepthWriteEnable:  vk.False,
		StencilTestEnable: vk.False,
	}
	if desc.DepthEnabled {
		depthStencil.DepthTestEnable = vk.True
		depthStencil.DepthWriteEnable = vk.True
		depthStencil.DepthCompareOp = vk.CompareOpLessOrEqual
		if desc.DepthLess {
			depthStencil.DepthCompareOp = vk.CompareOpLess
		}
	}

	colorBlendAttachmentState := vk.PipelineColorBlendAttachmentState{
		BlendEnable: vk.False,
		ColorWriteMask: vk.ColorComponentFlags(vk.ColorComponentRBit) | vk.ColorComponentFlags(vk.ColorComponentGBit) |
			vk.ColorComponentFlags(vk.ColorComponentBBit) | vk.ColorComponentFlags(vk.ColorComponentABit),
	}
	if desc.Blend {
		colorBlendAttachmentState.BlendEnable = vk.True
		colorBlendAttachmentState.SrcColorBlendFactor = vk.BlendFactorSrcAlpha
		colorBlendAttachmentState.DstColorBlendFactor = vk.BlendFactorOneMinusSrcAlpha
		colorBlendAttachmentState.ColorBlendOp = vk.BlendOpAdd
		colorBlendAttachmentState.SrcAlphaBlendFactor = vk.BlendFactorOne
		colorBlendAttachmentState.DstAlphaBlendFactor = vk.BlendFactorZero
		colorBlendAttachmentState.AlphaBlendOp = vk.BlendOpAdd
	}

	colorBlendStateCreateInfo := vk.PipelineColorBlendStateCreateInfo{
		SType:           vk.StructureTypePipelineColorBlendStateCreateInfo,
		LogicOpEnable:   vk.False,
		LogicOp:         vk.LogicOpCopy,
		AttachmentCount: 1,
		PAttachments:    []vk.PipelineColorBlendAttachmentState{colorBlendAttachmentState},
	}

	// Dynamic state
	dynamicStates := []vk.DynamicState{
		vk.DynamicStateViewport,
		vk.DynamicStateScissor,
	}
	dynamicStateCreateInfo := vk.PipelineDynamicStateCreateInfo{
		SType:             vk.StructureTypePipelineDynamicStateCreateInfo,
		DynamicStateCount: uint32(len(dynamicStates)),
		PDynamicStates:    dynamicStates,
	}

	// Vertex input: one binding per slot, attribute locations follow the
	// declaration order of the attributes.
	bindingDescriptions := make([]vk.VertexInputBindingDescription, len(desc.Strides))
	for slot, stride := range desc.Strides {
		bindingDescriptions[slot] = vk.VertexInputBindingDescription{
			Binding:   uint32(slot),
			Stride:    stride,
			InputRate: vk.VertexInputRateVertex,
		}
	}
	attributes := make([]vk.VertexInputAttributeDescription, len(desc.Attributes))
	for i, a := range desc.Attributes {
		if int(a.Slot) >= len(bindingDescriptions) {
			return nil, fmt.Errorf("pipeline %s: attribute %s%d uses slot %d without a stride", desc.Label, a.Semantic, a.SemanticIndex, a.Slot)
		}
		if a.PerInstance {
			bindingDescriptions[a.Slot].InputRate = vk.VertexInputRateInstance
		}
		attributes[i] = vk.VertexInputAttributeDescription{
			Location: uint32(i),
			Binding:  a.Slot,
			Format:   vkFormat(a.Format),
			Offset:   a.Offset,
		}
	}

	// padding slots carry no attribute and are left out
	used := make([]bool, len(bindingDescriptions))
	for _, a := range desc.Attributes {
		used[a.Slot] = true
	}
	var bindings []vk.VertexInputBindingDescription
	for slot, b := range bindingDescriptions {
		if used[slot] {
			bindings = append(bindings, b)
		}
	}

	vertexInputInfo := vk.PipelineVertexInputStateCreateInfo{
		SType:                           vk.StructureTypePipelineVertexInputStateCreateInfo,
		VertexBindingDescriptionCount:   uint32(len(bindings)),
		PVertexBindingDescriptions:      bindings,
		VertexAttributeDescriptionCount: uint32(len(attributes)),
		PVertexAttributeDescriptions:    attributes,
	}

	// Input assembly
	inputAssembly := vk.PipelineInputAssemblyStateCreateInfo{
		SType:                  vk.StructureTypePipelineInputAssemblyStateCreateInfo,
		Topology:               vk.PrimitiveTopologyTriangleList,
		PrimitiveRestartEnable: vk.False,
	}

	stages := []vk.PipelineShaderStageCreateInfo{vs.stageCreateInfo(), fs.stageCreateInfo()}

	// Pipeline create
	pipelineCreateInfo := vk.GraphicsPipelineCreateInfo{
		SType:               vk.StructureTypeGraphicsPipelineCreateInfo,
		StageCount:          uint32(len(stages)),
		PStages:             stages,
		PVertexInputState:   &vertexInputInfo,
		PInputAssemblyState: &inputAssembly,
		PViewportState:      &viewportState,
		PRasterizationState: &rasterizerCreateInfo,
		PMultisampleState:   &multisamplingCreateInfo,
		PDepthStencilState:  &depthStencil,
		PColorBlendState:    &colorBlendStateCreateInfo,
		PDynamicState:       &dynamicStateCreateInfo,
		Layout:              layout.PipelineLayout,
		RenderPass:          renderpass.Handle,
		Subpass:             0,
		BasePipelineHandle:  vk.NullPipeline,
		BasePipelineIndex:   -1,
	}

	pipelines := make([]vk.Pipeline, 1)
	if res := vk.CreateGraphicsPipelines(
		context.Device.LogicalDevice,
		vk.NullPipelineCache,
		1,
		[]vk.GraphicsPipelineCreateInfo{pipelineCreateInfo},
		context.Allocator,
		pipelines); res != vk.Success {
		return nil, resultError(res, "vkCreateGraphicsPipelines(%s)", desc.Label)
	}
	outPipeline.Handle = pipelines[0]

	core.LogDebug("Graphics pipeline %s created!", desc.Label)
	return outPipeline, nil
}

func (pipeline *VulkanPipeline) Desc() gpu.PipelineDesc { return pipeline.desc }

func (pipeline *VulkanPipeline) Destroy() {
	if pipeline.Handle != vk.NullPipeline {
		vk.DestroyPipeline(pipeline.context.Device.LogicalDevice, pipeline.Handle, pipeline.context.Allocator)
		pipeline.Handle = vk.NullPipeline
	}
}

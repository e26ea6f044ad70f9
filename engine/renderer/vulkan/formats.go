package vulkan

import (
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/aquarium/engine/renderer/gpu"
)

var formats = map[gpu.Format]vk.Format{
	gpu.FormatR8G8B8A8Unorm:     vk.FormatR8g8b8a8Unorm,
	gpu.FormatB8G8R8A8Unorm:     vk.FormatB8g8r8a8Unorm,
	gpu.FormatD24UnormS8Uint:    vk.FormatD24UnormS8Uint,
	gpu.FormatR32Float:          vk.FormatR32Sfloat,
	gpu.FormatR32G32Float:       vk.FormatR32g32Sfloat,
	gpu.FormatR32G32B32Float:    vk.FormatR32g32b32Sfloat,
	gpu.FormatR32G32B32A32Float: vk.FormatR32g32b32a32Sfloat,
	gpu.FormatR16Uint:           vk.FormatR16Uint,
	gpu.FormatR32Uint:           vk.FormatR32Uint,
}

func vkFormat(f gpu.Format) vk.Format {
	if format, ok := formats[f]; ok {
		return format
	}
	return vk.FormatUndefined
}

func gpuFormat(f vk.Format) gpu.Format {
	for k, v := range formats {
		if v == f {
			return k
		}
	}
	return gpu.FormatUnknown
}

func sampleCountBit(count uint32) vk.SampleCountFlagBits {
	switch count {
	case 2:
		return vk.SampleCount2Bit
	case 4:
		return vk.SampleCount4Bit
	case 8:
		return vk.SampleCount8Bit
	}
	return vk.SampleCount1Bit
}

// access describes how a resource state is reached in Vulkan terms.
type access struct {
	layout vk.ImageLayout
	mask   vk.AccessFlagBits
	stage  vk.PipelineStageFlagBits
}

var accesses = map[gpu.ResourceState]access{
	gpu.ResourceStateCommon:                  {vk.ImageLayoutGeneral, 0, vk.PipelineStageTopOfPipeBit},
	gpu.ResourceStateCopyDest:                {vk.ImageLayoutTransferDstOptimal, vk.AccessTransferWriteBit, vk.PipelineStageTransferBit},
	gpu.ResourceStateCopySource:              {vk.ImageLayoutTransferSrcOptimal, vk.AccessTransferReadBit, vk.PipelineStageTransferBit},
	gpu.ResourceStateGenericRead:             {vk.ImageLayoutGeneral, vk.AccessHostWriteBit | vk.AccessUniformReadBit | vk.AccessVertexAttributeReadBit, vk.PipelineStageHostBit | vk.PipelineStageVertexShaderBit},
	gpu.ResourceStateVertexAndConstantBuffer: {vk.ImageLayoutUndefined, vk.AccessVertexAttributeReadBit | vk.AccessUniformReadBit, vk.PipelineStageVertexInputBit | vk.PipelineStageVertexShaderBit},
	gpu.ResourceStateIndexBuffer:             {vk.ImageLayoutUndefined, vk.AccessIndexReadBit, vk.PipelineStageVertexInputBit},
	gpu.ResourceStatePixelShaderResource:     {vk.ImageLayoutShaderReadOnlyOptimal, vk.AccessShaderReadBit, vk.PipelineStageFragmentShaderBit},
	gpu.ResourceStateRenderTarget:            {vk.ImageLayoutColorAttachmentOptimal, vk.AccessColorAttachmentReadBit | vk.AccessColorAttachmentWriteBit, vk.PipelineStageColorAttachmentOutputBit},
	gpu.ResourceStateResolveSource:           {vk.ImageLayoutTransferSrcOptimal, vk.AccessTransferReadBit, vk.PipelineStageTransferBit},
	gpu.ResourceStateResolveDest:             {vk.ImageLayoutTransferDstOptimal, vk.AccessTransferWriteBit, vk.PipelineStageTransferBit},
	gpu.ResourceStateDepthWrite:              {vk.ImageLayoutDepthStencilAttachmentOptimal, vk.AccessDepthStencilAttachmentReadBit | vk.AccessDepthStencilAttachmentWriteBit, vk.PipelineStageEarlyFragmentTestsBit | vk.PipelineStageLateFragmentTestsBit},
	gpu.ResourceStatePresent:                 {vk.ImageLayoutPresentSrc, 0, vk.PipelineStageBottomOfPipeBit},
}

func accessOf(state gpu.ResourceState) access {
	if a, ok := accesses[state]; ok {
		return a
	}
	return accesses[gpu.ResourceStateCommon]
}

// accessOfLayout is used when the real layout of an image differs from the
// one the caller declared, for instance right after creation.
func accessOfLayout(layout vk.ImageLayout) access {
	switch layout {
	case vk.ImageLayoutUndefined:
		return access{layout, 0, vk.PipelineStageTopOfPipeBit}
	case vk.ImageLayoutPresentSrc:
		return accesses[gpu.ResourceStatePresent]
	case vk.ImageLayoutTransferDstOptimal:
		return accesses[gpu.ResourceStateCopyDest]
	case vk.ImageLayoutTransferSrcOptimal:
		return accesses[gpu.ResourceStateCopySource]
	case vk.ImageLayoutShaderReadOnlyOptimal:
		return accesses[gpu.ResourceStatePixelShaderResource]
	case vk.ImageLayoutColorAttachmentOptimal:
		return accesses[gpu.ResourceStateRenderTarget]
	case vk.ImageLayoutDepthStencilAttachmentOptimal:
		return accesses[gpu.ResourceStateDepthWrite]
	}
	return access{layout, vk.AccessMemoryReadBit | vk.AccessMemoryWriteBit, vk.PipelineStageAllCommandsBit}
}

func filterOf(f gpu.Filter) (vk.Filter, vk.SamplerMipmapMode) {
	switch f {
	case gpu.FilterMinMagLinearMipPoint:
		return vk.FilterLinear, vk.SamplerMipmapModeNearest
	case gpu.FilterPoint:
		return vk.FilterNearest, vk.SamplerMipmapModeNearest
	}
	return vk.FilterLinear, vk.SamplerMipmapModeLinear
}

func addressModeOf(m gpu.AddressMode) vk.SamplerAddressMode {
	switch m {
	case gpu.AddressModeMirror:
		return vk.SamplerAddressModeMirroredRepeat
	case gpu.AddressModeClamp:
		return vk.SamplerAddressModeClampToEdge
	}
	return vk.SamplerAddressModeRepeat
}

func stageFlagsOf(v gpu.ShaderVisibility) vk.ShaderStageFlags {
	switch v {
	case gpu.VisibilityVertex:
		return vk.ShaderStageFlags(vk.ShaderStageVertexBit)
	case gpu.VisibilityPixel:
		return vk.ShaderStageFlags(vk.ShaderStageFragmentBit)
	}
	return vk.ShaderStageFlags(vk.ShaderStageVertexBit | vk.ShaderStageFragmentBit)
}

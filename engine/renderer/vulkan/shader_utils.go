package vulkan

import (
	"encoding/binary"
	"fmt"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/aquarium/engine/core"
	"github.com/spaghettifunk/aquarium/engine/renderer/gpu"
)

/**
 * @brief Represents a single shader stage.
 */
type VulkanShaderStage struct {
	context *VulkanContext
	stage   gpu.ShaderStage
	/** @brief The internal shader module Handle. */
	Handle vk.ShaderModule
}

// spirvWords converts SPIR-V bytes to the words Vulkan consumes. SPIR-V is
// little endian on every platform the backend runs on.
func spirvWords(code []byte) ([]uint32, error) {
	if len(code) == 0 || len(code)%4 != 0 {
		return nil, fmt.Errorf("spir-v byte length %d is not a multiple of 4", len(code))
	}
	words := make([]uint32, len(code)/4)
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(code[i*4:])
	}
	return words, nil
}

func NewShaderModule(context *VulkanContext, stage gpu.ShaderStage, code []byte) (*VulkanShaderStage, error) {
	words, err := spirvWords(code)
	if err != nil {
		core.LogError("%s", err)
		return nil, err
	}
	createInfo := vk.ShaderModuleCreateInfo{
		SType:    vk.StructureTypeShaderModuleCreateInfo,
		CodeSize: uint(len(code)),
		PCode:    words,
	}
	shader := &VulkanShaderStage{context: context, stage: stage}
	if res := vk.CreateShaderModule(context.Device.LogicalDevice, &createInfo, context.Allocator, &shader.Handle); res != vk.Success {
		return nil, resultError(res, "vkCreateShaderModule")
	}
	return shader, nil
}

func (s *VulkanShaderStage) Stage() gpu.ShaderStage { return s.stage }

func (s *VulkanShaderStage) Destroy() {
	if s.Handle != vk.NullShaderModule {
		vk.DestroyShaderModule(s.context.Device.LogicalDevice, s.Handle, s.context.Allocator)
		s.Handle = vk.NullShaderModule
	}
}

// stageCreateInfo describes the module as a pipeline stage. Entry points
// are called "main" in every shader of the repo.
func (s *VulkanShaderStage) stageCreateInfo() vk.PipelineShaderStageCreateInfo {
	flag := vk.ShaderStageVertexBit
	if s.stage == gpu.ShaderStageFragment {
		flag = vk.ShaderStageFragmentBit
	}
	return vk.PipelineShaderStageCreateInfo{
		SType:  vk.StructureTypePipelineShaderStageCreateInfo,
		Stage:  flag,
		Module: s.Handle,
		PName:  VulkanSafeString("main"),
	}
}

package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/aquarium/engine/core"
	"github.com/spaghettifunk/aquarium/engine/renderer/gpu"
)

// VulkanContext holds the instance level objects shared by every resource
// the backend creates.
type VulkanContext struct {
	Instance  vk.Instance
	Allocator *vk.AllocationCallbacks
	Surface   vk.Surface

	// only set when validation is enabled
	debugMessenger vk.DebugReportCallback

	Device *VulkanDevice
}

func (vc *VulkanContext) FindMemoryIndex(typeFilter, propertyFlags uint32) int32 {
	memoryProperties := vc.Device.Memory
	memoryProperties.Deref()

	for i := uint32(0); i < memoryProperties.MemoryTypeCount; i++ {
		// Check each memory type to see if its bit is set to 1.
		memoryProperties.MemoryTypes[i].Deref()
		if (typeFilter&(1<<i)) != 0 && (uint32(memoryProperties.MemoryTypes[i].PropertyFlags)&propertyFlags) == propertyFlags {
			return int32(i)
		}
	}
	core.LogWarn("Unable to find suitable memory type!")
	return -1
}

// allocate backs a buffer or image with memory of the requested properties.
func (vc *VulkanContext) allocate(requirements vk.MemoryRequirements, properties vk.MemoryPropertyFlagBits) (vk.DeviceMemory, error) {
	requirements.Deref()
	index := vc.FindMemoryIndex(requirements.MemoryTypeBits, uint32(properties))
	if index < 0 {
		err := fmt.Errorf("required memory type not found, memory is not valid")
		core.LogError("%s", err)
		return vk.NullDeviceMemory, err
	}

	allocateInfo := vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  requirements.Size,
		MemoryTypeIndex: uint32(index),
	}
	var memory vk.DeviceMemory
	if res := vk.AllocateMemory(vc.Device.LogicalDevice, &allocateInfo, vc.Allocator, &memory); res != vk.Success {
		err := fmt.Errorf("failed to allocate memory with error `%s`", VulkanResultString(res, true))
		core.LogError("%s", err)
		return vk.NullDeviceMemory, err
	}
	return memory, nil
}

// formatOf maps a format to the one the device really uses. The depth
// format is whatever the device supports best.
func (vc *VulkanContext) formatOf(f gpu.Format) vk.Format {
	if f == gpu.FormatD24UnormS8Uint && vc.Device != nil && vc.Device.DepthFormat != vk.FormatUndefined {
		return vc.Device.DepthFormat
	}
	return vkFormat(f)
}

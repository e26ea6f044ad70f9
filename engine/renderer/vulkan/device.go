package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/aquarium/engine/core"
	"github.com/spaghettifunk/aquarium/engine/renderer/gpu"
)

type VulkanDevice struct {
	PhysicalDevice     vk.PhysicalDevice
	LogicalDevice      vk.Device
	SwapchainSupport   VulkanSwapchainSupportInfo
	GraphicsQueueIndex uint32
	PresentQueueIndex  uint32

	GraphicsQueue vk.Queue
	PresentQueue  vk.Queue

	Properties vk.PhysicalDeviceProperties
	Features   vk.PhysicalDeviceFeatures
	Memory     vk.PhysicalDeviceMemoryProperties

	DepthFormat vk.Format
	Info        gpu.AdapterInfo
}

type VulkanPhysicalDeviceRequirements struct {
	Graphics             bool
	Present              bool
	DeviceExtensionNames []string
}

// Queue family indices, -1 when the family is missing.
type VulkanPhysicalDeviceQueueFamilyInfo struct {
	GraphicsFamilyIndex int32
	PresentFamilyIndex  int32
}

type physicalDeviceCandidate struct {
	device     vk.PhysicalDevice
	properties vk.PhysicalDeviceProperties
	features   vk.PhysicalDeviceFeatures
	memory     vk.PhysicalDeviceMemoryProperties
	queues     VulkanPhysicalDeviceQueueFamilyInfo
}

// DeviceCreate selects a physical device and creates the logical device with
// one graphics and one present queue.
func DeviceCreate(context *VulkanContext, pref gpu.AdapterPreference) error {
	context.Device = &VulkanDevice{}
	if err := SelectPhysicalDevice(context, pref); err != nil {
		return err
	}
	device := context.Device

	core.LogInfo("Creating logical device...")

	// Do not create additional queues for shared indices.
	indices := []uint32{device.GraphicsQueueIndex}
	if device.PresentQueueIndex != device.GraphicsQueueIndex {
		indices = append(indices, device.PresentQueueIndex)
	}
	queueCreateInfos := make([]vk.DeviceQueueCreateInfo, len(indices))
	for i, index := range indices {
		queueCreateInfos[i] = vk.DeviceQueueCreateInfo{
			SType:            vk.StructureTypeDeviceQueueCreateInfo,
			QueueFamilyIndex: index,
			QueueCount:       1,
			PQueuePriorities: []float32{1.0},
		}
	}

	extensionNames := []string{vk.KhrSwapchainExtensionName}
	available, err := deviceExtensions(device.PhysicalDevice)
	if err != nil {
		return err
	}
	if available["VK_KHR_portability_subset"] {
		core.LogInfo("Adding required extension 'VK_KHR_portability_subset'.")
		extensionNames = append(extensionNames, "VK_KHR_portability_subset")
	}

	deviceCreateInfo := vk.DeviceCreateInfo{
		SType:                   vk.StructureTypeDeviceCreateInfo,
		QueueCreateInfoCount:    uint32(len(queueCreateInfos)),
		PQueueCreateInfos:       queueCreateInfos,
		PEnabledFeatures:        []vk.PhysicalDeviceFeatures{{}},
		EnabledExtensionCount:   uint32(len(extensionNames)),
		PpEnabledExtensionNames: VulkanSafeStrings(extensionNames),
	}

	var logical vk.Device
	if res := vk.CreateDevice(device.PhysicalDevice, &deviceCreateInfo, context.Allocator, &logical); res != vk.Success {
		return resultError(res, "vkCreateDevice")
	}
	device.LogicalDevice = logical
	core.LogInfo("Logical device created.")

	var graphics, present vk.Queue
	vk.GetDeviceQueue(device.LogicalDevice, device.GraphicsQueueIndex, 0, &graphics)
	vk.GetDeviceQueue(device.LogicalDevice, device.PresentQueueIndex, 0, &present)
	device.GraphicsQueue = graphics
	device.PresentQueue = present
	core.LogInfo("Queues obtained.")

	if !DeviceDetectDepthFormat(device) {
		err := fmt.Errorf("device supports no depth stencil format")
		core.LogError("%s", err)
		return err
	}
	return nil
}

func DeviceDestroy(context *VulkanContext) {
	if context.Device == nil {
		return
	}
	// Unset queues
	context.Device.GraphicsQueue = nil
	context.Device.PresentQueue = nil

	core.LogInfo("Destroying logical device...")
	if context.Device.LogicalDevice != nil {
		vk.DestroyDevice(context.Device.LogicalDevice, context.Allocator)
		context.Device.LogicalDevice = nil
	}

	// Physical devices are not destroyed.
	context.Device.PhysicalDevice = nil
	context.Device.SwapchainSupport = VulkanSwapchainSupportInfo{}
}

func DeviceQuerySwapchainSupport(physicalDevice vk.PhysicalDevice, surface vk.Surface, supportInfo *VulkanSwapchainSupportInfo) error {
	// Surface capabilities
	if res := vk.GetPhysicalDeviceSurfaceCapabilities(physicalDevice, surface, &supportInfo.Capabilities); res != vk.Success {
		return resultError(res, "vkGetPhysicalDeviceSurfaceCapabilities")
	}
	supportInfo.Capabilities.Deref()

	// Surface formats
	if res := vk.GetPhysicalDeviceSurfaceFormats(physicalDevice, surface, &supportInfo.FormatCount, nil); res != vk.Success {
		return resultError(res, "vkGetPhysicalDeviceSurfaceFormats")
	}
	supportInfo.Formats = make([]vk.SurfaceFormat, supportInfo.FormatCount)
	if supportInfo.FormatCount != 0 {
		if res := vk.GetPhysicalDeviceSurfaceFormats(physicalDevice, surface, &supportInfo.FormatCount, supportInfo.Formats); res != vk.Success {
			return resultError(res, "vkGetPhysicalDeviceSurfaceFormats")
		}
	}

	// Present modes
	if res := vk.GetPhysicalDeviceSurfacePresentModes(physicalDevice, surface, &supportInfo.PresentModeCount, nil); res != vk.Success {
		return resultError(res, "vkGetPhysicalDeviceSurfacePresentModes")
	}
	supportInfo.PresentModes = make([]vk.PresentMode, supportInfo.PresentModeCount)
	if supportInfo.PresentModeCount != 0 {
		if res := vk.GetPhysicalDeviceSurfacePresentModes(physicalDevice, surface, &supportInfo.PresentModeCount, supportInfo.PresentModes); res != vk.Success {
			return resultError(res, "vkGetPhysicalDeviceSurfacePresentModes")
		}
	}
	return nil
}

// DeviceDetectDepthFormat picks the first packed depth stencil format the
// device can attach with optimal tiling.
func DeviceDetectDepthFormat(device *VulkanDevice) bool {
	candidates := []vk.Format{
		vk.FormatD24UnormS8Uint,
		vk.FormatD32SfloatS8Uint,
	}
	flags := vk.FormatFeatureDepthStencilAttachmentBit
	for _, candidate := range candidates {
		var properties vk.FormatProperties
		vk.GetPhysicalDeviceFormatProperties(device.PhysicalDevice, candidate, &properties)
		properties.Deref()
		if vk.FormatFeatureFlagBits(properties.OptimalTilingFeatures)&flags == flags {
			device.DepthFormat = candidate
			return true
		}
	}
	return false
}

func adapterType(t vk.PhysicalDeviceType) gpu.AdapterType {
	switch t {
	case vk.PhysicalDeviceTypeDiscreteGpu:
		return gpu.AdapterTypeDiscrete
	case vk.PhysicalDeviceTypeIntegratedGpu:
		return gpu.AdapterTypeIntegrated
	case vk.PhysicalDeviceTypeCpu:
		return gpu.AdapterTypeSoftware
	}
	return gpu.AdapterTypeOther
}

// SelectPhysicalDevice enumerates every device that can render and present
// to the surface and lets the adapter preference choose among them.
func SelectPhysicalDevice(context *VulkanContext, pref gpu.AdapterPreference) error {
	var physicalDeviceCount uint32
	if res := vk.EnumeratePhysicalDevices(context.Instance, &physicalDeviceCount, nil); res != vk.Success {
		return resultError(res, "vkEnumeratePhysicalDevices")
	}
	if physicalDeviceCount == 0 {
		err := fmt.Errorf("no devices which support Vulkan were found")
		core.LogError("%s", err)
		return err
	}
	physicalDevices := make([]vk.PhysicalDevice, physicalDeviceCount)
	if res := vk.EnumeratePhysicalDevices(context.Instance, &physicalDeviceCount, physicalDevices); res != vk.Success {
		return resultError(res, "vkEnumeratePhysicalDevices")
	}

	requirements := VulkanPhysicalDeviceRequirements{
		Graphics:             true,
		Present:              true,
		DeviceExtensionNames: []string{vk.KhrSwapchainExtensionName},
	}

	var candidates []physicalDeviceCandidate
	var adapters []gpu.AdapterInfo
	for _, physicalDevice := range physicalDevices {
		c := physicalDeviceCandidate{device: physicalDevice}
		vk.GetPhysicalDeviceProperties(physicalDevice, &c.properties)
		c.properties.Deref()
		vk.GetPhysicalDeviceFeatures(physicalDevice, &c.features)
		c.features.Deref()
		vk.GetPhysicalDeviceMemoryProperties(physicalDevice, &c.memory)
		c.memory.Deref()

		if !PhysicalDeviceMeetsRequirements(physicalDevice, context.Surface, &c.properties, &requirements, &c.queues) {
			continue
		}
		candidates = append(candidates, c)
		adapters = append(adapters, gpu.AdapterInfo{
			Name:     deviceName(&c.properties),
			VendorID: c.properties.VendorID,
			DeviceID: c.properties.DeviceID,
			Type:     adapterType(c.properties.DeviceType),
		})
	}

	i, err := gpu.SelectAdapter(adapters, pref)
	if err != nil {
		core.LogError("%s", err)
		return err
	}
	chosen := candidates[i]

	core.LogInfo("Selected device: '%s'.", adapters[i].Name)
	// GPU type, etc.
	switch chosen.properties.DeviceType {
	case vk.PhysicalDeviceTypeIntegratedGpu:
		core.LogInfo("GPU type is Integrated.")
	case vk.PhysicalDeviceTypeDiscreteGpu:
		core.LogInfo("GPU type is Discrete.")
	case vk.PhysicalDeviceTypeVirtualGpu:
		core.LogInfo("GPU type is Virtual.")
	default:
		core.LogInfo("GPU type is Unknown.")
	}
	core.LogInfo(
		"GPU Driver version: %d.%d.%d",
		vk.Version(chosen.properties.DriverVersion).Major(),
		vk.Version(chosen.properties.DriverVersion).Minor(),
		vk.Version(chosen.properties.DriverVersion).Patch(),
	)
	core.LogInfo(
		"Vulkan API version: %d.%d.%d",
		vk.Version(chosen.properties.ApiVersion).Major(),
		vk.Version(chosen.properties.ApiVersion).Minor(),
		vk.Version(chosen.properties.ApiVersion).Patch(),
	)

	// Memory information
	for j := uint32(0); j < chosen.memory.MemoryHeapCount; j++ {
		heap := chosen.memory.MemoryHeaps[j]
		heap.Deref()
		memorySizeGib := float64(heap.Size) / 1024.0 / 1024.0 / 1024.0
		if vk.MemoryHeapFlagBits(heap.Flags)&vk.MemoryHeapDeviceLocalBit != 0 {
			core.LogInfo("Local GPU memory: %.2f GiB", memorySizeGib)
		} else {
			core.LogInfo("Shared System memory: %.2f GiB", memorySizeGib)
		}
	}

	device := context.Device
	device.PhysicalDevice = chosen.device
	device.GraphicsQueueIndex = uint32(chosen.queues.GraphicsFamilyIndex)
	device.PresentQueueIndex = uint32(chosen.queues.PresentFamilyIndex)
	device.Properties = chosen.properties
	device.Features = chosen.features
	device.Memory = chosen.memory
	device.Info = adapters[i]

	core.LogInfo("Physical device selected.")
	return nil
}

func deviceName(properties *vk.PhysicalDeviceProperties) string {
	name := properties.DeviceName[:]
	return string(name[:FindFirstZeroInByteArray(name)])
}

func deviceExtensions(device vk.PhysicalDevice) (map[string]bool, error) {
	var count uint32
	if res := vk.EnumerateDeviceExtensionProperties(device, "", &count, nil); res != vk.Success {
		return nil, resultError(res, "vkEnumerateDeviceExtensionProperties")
	}
	properties := make([]vk.ExtensionProperties, count)
	if count != 0 {
		if res := vk.EnumerateDeviceExtensionProperties(device, "", &count, properties); res != vk.Success {
			return nil, resultError(res, "vkEnumerateDeviceExtensionProperties")
		}
	}
	names := make(map[string]bool, count)
	for _, p := range properties {
		p.Deref()
		name := p.ExtensionName[:]
		names[string(name[:FindFirstZeroInByteArray(name)])] = true
	}
	return names, nil
}

func PhysicalDeviceMeetsRequirements(device vk.PhysicalDevice, surface vk.Surface, properties *vk.PhysicalDeviceProperties, requirements *VulkanPhysicalDeviceRequirements, outQueueInfo *VulkanPhysicalDeviceQueueFamilyInfo) bool {
	outQueueInfo.GraphicsFamilyIndex = -1
	outQueueInfo.PresentFamilyIndex = -1
	name := deviceName(properties)

	var queueFamilyCount uint32
	vk.GetPhysicalDeviceQueueFamilyProperties(device, &queueFamilyCount, nil)
	queueFamilies := make([]vk.QueueFamilyProperties, queueFamilyCount)
	vk.GetPhysicalDeviceQueueFamilyProperties(device, &queueFamilyCount, queueFamilies)

	// Look at each queue and see what queues it supports. A family doing
	// both is preferred.
	for i := range queueFamilies {
		queueFamilies[i].Deref()
		graphics := vk.QueueFlagBits(queueFamilies[i].QueueFlags)&vk.QueueGraphicsBit != 0

		var supportsPresent vk.Bool32 = vk.False
		if res := vk.GetPhysicalDeviceSurfaceSupport(device, uint32(i), surface, &supportsPresent); res != vk.Success {
			core.LogWarn("%s: surface support query failed: %s", name, VulkanResultString(res, false))
			return false
		}
		present := supportsPresent == vk.True

		if graphics && present {
			outQueueInfo.GraphicsFamilyIndex = int32(i)
			outQueueInfo.PresentFamilyIndex = int32(i)
			break
		}
		if graphics && outQueueInfo.GraphicsFamilyIndex < 0 {
			outQueueInfo.GraphicsFamilyIndex = int32(i)
		}
		if present && outQueueInfo.PresentFamilyIndex < 0 {
			outQueueInfo.PresentFamilyIndex = int32(i)
		}
	}

	core.LogDebug("%s: graphics family %d, present family %d", name, outQueueInfo.GraphicsFamilyIndex, outQueueInfo.PresentFamilyIndex)
	if requirements.Graphics && outQueueInfo.GraphicsFamilyIndex < 0 {
		core.LogInfo("Device '%s' has no graphics queue, skipping.", name)
		return false
	}
	if requirements.Present && outQueueInfo.PresentFamilyIndex < 0 {
		core.LogInfo("Device '%s' cannot present to the surface, skipping.", name)
		return false
	}

	// Query swapchain support.
	var support VulkanSwapchainSupportInfo
	if err := DeviceQuerySwapchainSupport(device, surface, &support); err != nil || support.FormatCount < 1 || support.PresentModeCount < 1 {
		core.LogInfo("Required swapchain support not present, skipping device '%s'.", name)
		return false
	}

	// Device extensions.
	available, err := deviceExtensions(device)
	if err != nil {
		return false
	}
	for _, required := range requirements.DeviceExtensionNames {
		if !available[required] {
			core.LogInfo("Required extension not found: '%s', skipping device '%s'.", required, name)
			return false
		}
	}
	return true
}

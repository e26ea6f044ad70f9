package vulkan

import (
	"fmt"
	"unsafe"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/aquarium/engine/core"
	"github.com/spaghettifunk/aquarium/engine/renderer/gpu"
)

type Buffer struct {
	context *VulkanContext
	desc    gpu.BufferDesc
	label   string

	Handle vk.Buffer
	Memory vk.DeviceMemory
	mapped []byte
}

func newBuffer(context *VulkanContext, desc gpu.BufferDesc) (*Buffer, error) {
	if desc.Size == 0 {
		err := fmt.Errorf("cannot create empty buffer %s", desc.Label)
		core.LogError("%s", err)
		return nil, err
	}
	b := &Buffer{context: context, desc: desc, label: core.NewIdentifier(desc.Label)}

	usage := vk.BufferUsageTransferSrcBit | vk.BufferUsageTransferDstBit
	if desc.Usage&gpu.BufferUsageVertex != 0 {
		usage |= vk.BufferUsageVertexBufferBit
	}
	if desc.Usage&gpu.BufferUsageIndex != 0 {
		usage |= vk.BufferUsageIndexBufferBit
	}
	if desc.Usage&gpu.BufferUsageConstant != 0 {
		usage |= vk.BufferUsageUniformBufferBit
	}

	bufferInfo := vk.BufferCreateInfo{
		SType:       vk.StructureTypeBufferCreateInfo,
		Size:        vk.DeviceSize(desc.Size),
		Usage:       vk.BufferUsageFlags(usage),
		SharingMode: vk.SharingModeExclusive,
	}
	device := context.Device.LogicalDevice
	if res := vk.CreateBuffer(device, &bufferInfo, context.Allocator, &b.Handle); res != vk.Success {
		return nil, resultError(res, "vkCreateBuffer(%s)", b.label)
	}

	var requirements vk.MemoryRequirements
	vk.GetBufferMemoryRequirements(device, b.Handle, &requirements)
	properties := vk.MemoryPropertyDeviceLocalBit
	if desc.Heap == gpu.HeapTypeUpload {
		properties = vk.MemoryPropertyHostVisibleBit | vk.MemoryPropertyHostCoherentBit
	}
	memory, err := context.allocate(requirements, properties)
	if err != nil {
		b.Destroy()
		return nil, err
	}
	b.Memory = memory
	if res := vk.BindBufferMemory(device, b.Handle, b.Memory, 0); res != vk.Success {
		b.Destroy()
		return nil, resultError(res, "vkBindBufferMemory(%s)", b.label)
	}

	if desc.Heap == gpu.HeapTypeUpload {
		var data unsafe.Pointer
		if res := vk.MapMemory(device, b.Memory, 0, vk.DeviceSize(desc.Size), 0, &data); res != vk.Success {
			b.Destroy()
			return nil, resultError(res, "vkMapMemory(%s)", b.label)
		}
		b.mapped = unsafe.Slice((*byte)(data), desc.Size)
	}
	return b, nil
}

func (b *Buffer) Label() string        { return b.label }
func (b *Buffer) Size() uint64         { return b.desc.Size }
func (b *Buffer) Heap() gpu.HeapType   { return b.desc.Heap }
func (b *Buffer) Desc() gpu.BufferDesc { return b.desc }

// Map returns the persistent mapping of an upload buffer. The memory is host
// coherent so writes need no flush.
func (b *Buffer) Map() ([]byte, error) {
	if b.mapped == nil {
		return nil, fmt.Errorf("buffer %s is not in an upload heap", b.label)
	}
	return b.mapped, nil
}

func (b *Buffer) Destroy() {
	device := b.context.Device.LogicalDevice
	if b.mapped != nil {
		vk.UnmapMemory(device, b.Memory)
		b.mapped = nil
	}
	if b.Handle != vk.NullBuffer {
		vk.DestroyBuffer(device, b.Handle, b.context.Allocator)
		b.Handle = vk.NullBuffer
	}
	if b.Memory != vk.NullDeviceMemory {
		vk.FreeMemory(device, b.Memory, b.context.Allocator)
		b.Memory = vk.NullDeviceMemory
	}
}

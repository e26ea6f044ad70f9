package descriptor

import (
	"fmt"

	"github.com/spaghettifunk/aquarium/engine/core"
	"github.com/spaghettifunk/aquarium/engine/renderer/gpu"
)

// Number of views the aquarium scene needs: the global light and fog
// constants, the skybox, and the per model constants and textures.
const SceneCapacity uint32 = 87

// CPUHandle is the writable side of a slot.
type CPUHandle struct {
	heap  gpu.DescriptorHeap
	index uint32
}

// Write stores the view description in the heap.
func (h CPUHandle) Write(view gpu.ViewDesc) error {
	return h.heap.Write(h.index, view)
}

// GPUHandle is the shader visible side of a slot, bound as a descriptor table base.
type GPUHandle uint32

// Slot is one view descriptor in the shader visible heap.
type Slot struct {
	CPU    CPUHandle
	GPU    GPUHandle
	Offset uint32
}

// Allocator hands out descriptor slots from a fixed-size heap with a single
// growing counter. Slots are never freed or reused; the heap lives as long as
// the renderer. Allocation happens on the render thread only.
type Allocator struct {
	heap     gpu.DescriptorHeap
	capacity uint32
	next     uint32
}

func NewAllocator(device gpu.Device, capacity uint32) (*Allocator, error) {
	heap, err := device.CreateDescriptorHeap(capacity)
	if err != nil {
		err = fmt.Errorf("failed to create descriptor heap of %d views: %w", capacity, err)
		core.LogError("%s", err)
		return nil, err
	}
	return &Allocator{heap: heap, capacity: capacity}, nil
}

// Allocate returns the next free slot. The caller must write the view before
// the slot is first bound.
func (a *Allocator) Allocate() (Slot, error) {
	if a.next >= a.capacity {
		err := fmt.Errorf("%w: all %d descriptors are in use", core.ErrCapacityExhausted, a.capacity)
		core.LogError("%s", err)
		return Slot{}, err
	}
	offset := a.next
	a.next++
	return Slot{
		CPU:    CPUHandle{heap: a.heap, index: offset},
		GPU:    GPUHandle(offset),
		Offset: offset,
	}, nil
}

// AllocateView allocates a slot and writes the view into it in one step.
func (a *Allocator) AllocateView(view gpu.ViewDesc) (Slot, error) {
	slot, err := a.Allocate()
	if err != nil {
		return Slot{}, err
	}
	if err := slot.CPU.Write(view); err != nil {
		err = fmt.Errorf("failed to write descriptor %d: %w", slot.Offset, err)
		core.LogError("%s", err)
		return Slot{}, err
	}
	return slot, nil
}

// AllocateCBV creates a constant buffer view over the whole buffer.
func (a *Allocator) AllocateCBV(buffer gpu.Buffer) (Slot, error) {
	return a.AllocateView(gpu.ViewDesc{
		Kind:   gpu.DescriptorKindCBV,
		Buffer: buffer,
		Size:   gpu.CalcConstantBufferByteSize(buffer.Size()),
	})
}

// AllocateSRV creates a shader resource view over every mip and layer of the texture.
func (a *Allocator) AllocateSRV(texture gpu.Texture) (Slot, error) {
	return a.AllocateView(gpu.ViewDesc{
		Kind:    gpu.DescriptorKindSRV,
		Texture: texture,
	})
}

func (a *Allocator) Heap() gpu.DescriptorHeap {
	return a.heap
}

// Count is the number of slots handed out so far.
func (a *Allocator) Count() uint32 {
	return a.next
}

func (a *Allocator) Capacity() uint32 {
	return a.capacity
}

func (a *Allocator) Destroy() {
	if a.heap != nil {
		a.heap.Destroy()
		a.heap = nil
	}
}

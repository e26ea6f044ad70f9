package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/aquarium/engine/core"
	"github.com/spaghettifunk/aquarium/engine/renderer/gpu"
)

const (
	// SRV bindings are offset so texture and constant registers with the same
	// number do not collide inside one descriptor set.
	textureBindingOffset uint32 = 16

	descriptorPoolSets     uint32 = 4096
	descriptorPoolBuffers  uint32 = 8192
	descriptorPoolTextures uint32 = 8192
)

// DescriptorHeap keeps the views of the shader visible heap on the host.
// Vulkan has no such heap: a table bound from it is materialized as a
// descriptor set when the command list binds it.
type DescriptorHeap struct {
	views   []gpu.ViewDesc
	written []bool
}

func (h *DescriptorHeap) Capacity() uint32 { return uint32(len(h.views)) }

func (h *DescriptorHeap) Write(index uint32, view gpu.ViewDesc) error {
	if index >= uint32(len(h.views)) {
		return fmt.Errorf("descriptor index %d out of bounds (capacity %d)", index, len(h.views))
	}
	h.views[index] = view
	h.written[index] = true
	return nil
}

func (h *DescriptorHeap) View(index uint32) (gpu.ViewDesc, bool) {
	if index >= uint32(len(h.views)) || !h.written[index] {
		return gpu.ViewDesc{}, false
	}
	return h.views[index], true
}

func (h *DescriptorHeap) Destroy() {}

// setKey identifies what a descriptor set was written with: a table of the
// heap at base, or a constant buffer at offset.
type setKey struct {
	layout vk.DescriptorSetLayout
	table  bool
	base   uint32
	buffer vk.Buffer
	offset uint64
}

// setCache reuses the sets written with the same content until the owning
// allocator resets. Every fish drawn on its own binds the same sets.
type setCache[S any] struct {
	sets map[setKey]S
}

// get returns the set cached for key, or allocates and fills a new one.
func (c *setCache[S]) get(key setKey, allocate func() (S, error), fill func(S) error) (S, error) {
	if set, ok := c.sets[key]; ok {
		return set, nil
	}
	set, err := allocate()
	if err != nil {
		return set, err
	}
	if err := fill(set); err != nil {
		return set, err
	}
	if c.sets == nil {
		c.sets = make(map[setKey]S)
	}
	c.sets[key] = set
	return set, nil
}

func (c *setCache[S]) len() int {
	return len(c.sets)
}

func (c *setCache[S]) reset() {
	clear(c.sets)
}

// descriptorPool hands out the descriptor sets of one command allocator.
// When a pool runs dry the next one of the chain is used, created on demand.
// The sets are recycled all at once when the allocator resets.
type descriptorPool struct {
	context *VulkanContext
	pools   []vk.DescriptorPool
	active  int
	cache   setCache[vk.DescriptorSet]
}

func newDescriptorPool(context *VulkanContext) (*descriptorPool, error) {
	p := &descriptorPool{context: context}
	if err := p.grow(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *descriptorPool) grow() error {
	sizes := []vk.DescriptorPoolSize{
		{Type: vk.DescriptorTypeUniformBuffer, DescriptorCount: descriptorPoolBuffers},
		{Type: vk.DescriptorTypeSampledImage, DescriptorCount: descriptorPoolTextures},
	}
	createInfo := vk.DescriptorPoolCreateInfo{
		SType:         vk.StructureTypeDescriptorPoolCreateInfo,
		MaxSets:       descriptorPoolSets,
		PoolSizeCount: uint32(len(sizes)),
		PPoolSizes:    sizes,
	}
	var handle vk.DescriptorPool
	if res := vk.CreateDescriptorPool(p.context.Device.LogicalDevice, &createInfo, p.context.Allocator, &handle); res != vk.Success {
		return resultError(res, "vkCreateDescriptorPool")
	}
	p.pools = append(p.pools, handle)
	core.LogDebug("descriptor pool chain grown to %d pools", len(p.pools))
	return nil
}

// get returns a set of layout written by fill, shared with every earlier
// request for the same key since the last reset.
func (p *descriptorPool) get(key setKey, fill func(set vk.DescriptorSet) error) (vk.DescriptorSet, error) {
	return p.cache.get(key, func() (vk.DescriptorSet, error) {
		return p.allocate(key.layout)
	}, fill)
}

func (p *descriptorPool) allocate(layout vk.DescriptorSetLayout) (vk.DescriptorSet, error) {
	for {
		allocateInfo := vk.DescriptorSetAllocateInfo{
			SType:              vk.StructureTypeDescriptorSetAllocateInfo,
			DescriptorPool:     p.pools[p.active],
			DescriptorSetCount: 1,
			PSetLayouts:        []vk.DescriptorSetLayout{layout},
		}
		var set vk.DescriptorSet
		res := vk.AllocateDescriptorSets(p.context.Device.LogicalDevice, &allocateInfo, &set)
		switch res {
		case vk.Success:
			return set, nil
		case vk.ErrorOutOfPoolMemory, vk.ErrorFragmentedPool:
			p.active++
			if p.active == len(p.pools) {
				if err := p.grow(); err != nil {
					p.active--
					err = fmt.Errorf("%w: descriptor pool of the command allocator: %w", core.ErrCapacityExhausted, err)
					core.LogError("%s", err)
					return nil, err
				}
			}
		default:
			return nil, resultError(res, "vkAllocateDescriptorSets")
		}
	}
}

func (p *descriptorPool) reset() error {
	for _, handle := range p.pools {
		if res := vk.ResetDescriptorPool(p.context.Device.LogicalDevice, handle, 0); res != vk.Success {
			return resultError(res, "vkResetDescriptorPool")
		}
	}
	p.active = 0
	p.cache.reset()
	return nil
}

func (p *descriptorPool) destroy() {
	for _, handle := range p.pools {
		vk.DestroyDescriptorPool(p.context.Device.LogicalDevice, handle, p.context.Allocator)
	}
	p.pools = nil
	p.cache.reset()
}

// writeTable fills set with the heap views a table parameter points at.
func writeTable(context *VulkanContext, set vk.DescriptorSet, heap *DescriptorHeap, param gpu.BindingParam, base uint32) error {
	var writes []vk.WriteDescriptorSet
	index := base
	for _, r := range param.Ranges {
		for i := uint32(0); i < r.Count; i++ {
			view, ok := heap.View(index)
			if !ok {
				err := fmt.Errorf("%w: descriptor %d of the table at %d was never written", core.ErrMissingResource, index, base)
				core.LogError("%s", err)
				return err
			}
			write := vk.WriteDescriptorSet{
				SType:           vk.StructureTypeWriteDescriptorSet,
				DstSet:          set,
				DstArrayElement: 0,
				DescriptorCount: 1,
			}
			switch r.Kind {
			case gpu.DescriptorKindCBV:
				buffer, ok := view.Buffer.(*Buffer)
				if !ok {
					return fmt.Errorf("descriptor %d does not reference a vulkan buffer", index)
				}
				size := view.Size
				if size == 0 {
					size = buffer.Size() - view.Offset
				}
				write.DstBinding = r.BaseRegister + i
				write.DescriptorType = vk.DescriptorTypeUniformBuffer
				write.PBufferInfo = []vk.DescriptorBufferInfo{{
					Buffer: buffer.Handle,
					Offset: vk.DeviceSize(view.Offset),
					Range:  vk.DeviceSize(size),
				}}
			case gpu.DescriptorKindSRV:
				texture, ok := view.Texture.(*VulkanImage)
				if !ok {
					return fmt.Errorf("descriptor %d does not reference a vulkan image", index)
				}
				write.DstBinding = textureBindingOffset + r.BaseRegister + i
				write.DescriptorType = vk.DescriptorTypeSampledImage
				write.PImageInfo = []vk.DescriptorImageInfo{{
					ImageView:   texture.View,
					ImageLayout: vk.ImageLayoutShaderReadOnlyOptimal,
				}}
			}
			writes = append(writes, write)
			index++
		}
	}
	if len(writes) > 0 {
		vk.UpdateDescriptorSets(context.Device.LogicalDevice, uint32(len(writes)), writes, 0, nil)
	}
	return nil
}

func writeConstantBuffer(context *VulkanContext, set vk.DescriptorSet, register uint32, buffer *Buffer, offset uint64) {
	write := vk.WriteDescriptorSet{
		SType:           vk.StructureTypeWriteDescriptorSet,
		DstSet:          set,
		DstBinding:      register,
		DescriptorCount: 1,
		DescriptorType:  vk.DescriptorTypeUniformBuffer,
		PBufferInfo: []vk.DescriptorBufferInfo{{
			Buffer: buffer.Handle,
			Offset: vk.DeviceSize(offset),
			Range:  vk.DeviceSize(buffer.Size() - offset),
		}},
	}
	vk.UpdateDescriptorSets(context.Device.LogicalDevice, 1, []vk.WriteDescriptorSet{write}, 0, nil)
}

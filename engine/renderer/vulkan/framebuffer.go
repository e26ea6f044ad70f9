package vulkan

import (
	vk "github.com/goki/vulkan"
)

type VulkanFramebuffer struct {
	Handle      vk.Framebuffer
	Width       uint32
	Height      uint32
	Attachments []*VulkanImage
	Renderpass  *VulkanRenderpass
}

func FramebufferCreate(context *VulkanContext, renderpass *VulkanRenderpass, color, depth *VulkanImage) (*VulkanFramebuffer, error) {
	outFramebuffer := &VulkanFramebuffer{
		Width:       color.Width,
		Height:      color.Height,
		Attachments: []*VulkanImage{color, depth},
		Renderpass:  renderpass,
	}

	views := []vk.ImageView{color.View, depth.View}
	framebufferCreateInfo := vk.FramebufferCreateInfo{
		SType:           vk.StructureTypeFramebufferCreateInfo,
		RenderPass:      renderpass.Handle,
		AttachmentCount: uint32(len(views)),
		PAttachments:    views,
		Width:           outFramebuffer.Width,
		Height:          outFramebuffer.Height,
		Layers:          1,
	}

	if res := vk.CreateFramebuffer(context.Device.LogicalDevice, &framebufferCreateInfo, context.Allocator, &outFramebuffer.Handle); res != vk.Success {
		return nil, resultError(res, "vkCreateFramebuffer")
	}
	return outFramebuffer, nil
}

func (vfb *VulkanFramebuffer) uses(img *VulkanImage) bool {
	for _, a := range vfb.Attachments {
		if a == img {
			return true
		}
	}
	return false
}

func (vfb *VulkanFramebuffer) Destroy(context *VulkanContext) {
	if vfb.Handle != vk.NullFramebuffer {
		vk.DestroyFramebuffer(context.Device.LogicalDevice, vfb.Handle, context.Allocator)
		vfb.Handle = vk.NullFramebuffer
	}
	vfb.Attachments = nil
	vfb.Renderpass = nil
}

type framebufferKey struct {
	renderpass vk.RenderPass
	color      *VulkanImage
	depth      *VulkanImage
}

// framebufferCache keeps one framebuffer per attachment pair. Entries are
// dropped when one of their images goes away.
type framebufferCache struct {
	context *VulkanContext
	entries map[framebufferKey]*VulkanFramebuffer
}

func newFramebufferCache(context *VulkanContext) *framebufferCache {
	return &framebufferCache{context: context, entries: make(map[framebufferKey]*VulkanFramebuffer)}
}

func (c *framebufferCache) get(renderpass *VulkanRenderpass, color, depth *VulkanImage) (*VulkanFramebuffer, error) {
	key := framebufferKey{renderpass: renderpass.Handle, color: color, depth: depth}
	if fb, ok := c.entries[key]; ok {
		return fb, nil
	}
	fb, err := FramebufferCreate(c.context, renderpass, color, depth)
	if err != nil {
		return nil, err
	}
	c.entries[key] = fb
	return fb, nil
}

func (c *framebufferCache) evict(img *VulkanImage) {
	for key, fb := range c.entries {
		if fb.uses(img) {
			fb.Destroy(c.context)
			delete(c.entries, key)
		}
	}
}

func (c *framebufferCache) destroy() {
	for key, fb := range c.entries {
		fb.Destroy(c.context)
		delete(c.entries, key)
	}
}

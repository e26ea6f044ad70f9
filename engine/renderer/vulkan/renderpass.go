package vulkan

import (
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/aquarium/engine/renderer/gpu"
)

// renderpassKey identifies a compatible render pass. Pipelines are created
// against the clearing variant and stay compatible with the loading one.
type renderpassKey struct {
	color   vk.Format
	depth   vk.Format
	samples uint32
	clear   bool
}

type VulkanRenderpass struct {
	Handle vk.RenderPass
	key    renderpassKey
}

// RenderpassCreate builds a single subpass pass with one color and one depth
// attachment. Attachments enter and leave in their attachment layouts: the
// command list moves them there with explicit barriers.
func RenderpassCreate(context *VulkanContext, key renderpassKey) (*VulkanRenderpass, error) {
	outRenderpass := &VulkanRenderpass{key: key}

	loadOp := vk.AttachmentLoadOpLoad
	if key.clear {
		loadOp = vk.AttachmentLoadOpClear
	}

	// Color attachment
	colorAttachment := vk.AttachmentDescription{
		Format:         key.color,
		Samples:        sampleCountBit(key.samples),
		LoadOp:         loadOp,
		StoreOp:        vk.AttachmentStoreOpStore,
		StencilLoadOp:  vk.AttachmentLoadOpDontCare,
		StencilStoreOp: vk.AttachmentStoreOpDontCare,
		InitialLayout:  vk.ImageLayoutColorAttachmentOptimal,
		FinalLayout:    vk.ImageLayoutColorAttachmentOptimal,
	}

	// Depth attachment
	depthAttachment := vk.AttachmentDescription{
		Format:         key.depth,
		Samples:        sampleCountBit(key.samples),
		LoadOp:         vk.AttachmentLoadOpClear,
		StoreOp:        vk.AttachmentStoreOpDontCare,
		StencilLoadOp:  vk.AttachmentLoadOpClear,
		StencilStoreOp: vk.AttachmentStoreOpDontCare,
		InitialLayout:  vk.ImageLayoutDepthStencilAttachmentOptimal,
		FinalLayout:    vk.ImageLayoutDepthStencilAttachmentOptimal,
	}

	depthAttachmentReference := vk.AttachmentReference{
		Attachment: 1,
		Layout:     vk.ImageLayoutDepthStencilAttachmentOptimal,
	}

	// Main subpass
	subpass := vk.SubpassDescription{
		PipelineBindPoint:    vk.PipelineBindPointGraphics,
		ColorAttachmentCount: 1,
		PColorAttachments: []vk.AttachmentReference{{
			Attachment: 0,
			Layout:     vk.ImageLayoutColorAttachmentOptimal,
		}},
		PDepthStencilAttachment: &depthAttachmentReference,
	}

	dependency := vk.SubpassDependency{
		SrcSubpass:    vk.SubpassExternal,
		DstSubpass:    0,
		SrcStageMask:  vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit | vk.PipelineStageEarlyFragmentTestsBit),
		SrcAccessMask: 0,
		DstStageMask:  vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit | vk.PipelineStageEarlyFragmentTestsBit),
		DstAccessMask: vk.AccessFlags(vk.AccessColorAttachmentWriteBit | vk.AccessDepthStencilAttachmentWriteBit),
	}

	attachments := []vk.AttachmentDescription{colorAttachment, depthAttachment}
	renderpassCreateInfo := vk.RenderPassCreateInfo{
		SType:           vk.StructureTypeRenderPassCreateInfo,
		AttachmentCount: uint32(len(attachments)),
		PAttachments:    attachments,
		SubpassCount:    1,
		PSubpasses:      []vk.SubpassDescription{subpass},
		DependencyCount: 1,
		PDependencies:   []vk.SubpassDependency{dependency},
	}

	if res := vk.CreateRenderPass(context.Device.LogicalDevice, &renderpassCreateInfo, context.Allocator, &outRenderpass.Handle); res != vk.Success {
		return nil, resultError(res, "vkCreateRenderPass")
	}
	return outRenderpass, nil
}

func (vr *VulkanRenderpass) RenderpassDestroy(context *VulkanContext) {
	if vr.Handle != vk.NullRenderPass {
		vk.DestroyRenderPass(context.Device.LogicalDevice, vr.Handle, context.Allocator)
		vr.Handle = vk.NullRenderPass
	}
}

// RenderpassBegin starts the pass over the whole framebuffer.
func (vr *VulkanRenderpass) RenderpassBegin(cmd vk.CommandBuffer, framebuffer *VulkanFramebuffer, desc gpu.RenderPassDesc) {
	clearValues := []vk.ClearValue{
		vk.NewClearValue(desc.ClearColor[:]),
		vk.NewClearDepthStencil(desc.ClearDepth, 0),
	}
	beginInfo := vk.RenderPassBeginInfo{
		SType:       vk.StructureTypeRenderPassBeginInfo,
		RenderPass:  vr.Handle,
		Framebuffer: framebuffer.Handle,
		RenderArea: vk.Rect2D{
			Offset: vk.Offset2D{X: 0, Y: 0},
			Extent: vk.Extent2D{
				Width:  framebuffer.Width,
				Height: framebuffer.Height,
			},
		},
		ClearValueCount: uint32(len(clearValues)),
		PClearValues:    clearValues,
	}
	vk.CmdBeginRenderPass(cmd, &beginInfo, vk.SubpassContentsInline)
}

func (vr *VulkanRenderpass) RenderpassEnd(cmd vk.CommandBuffer) {
	vk.CmdEndRenderPass(cmd)
}

package vulkan

import (
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/aquarium/engine/core"
	"github.com/spaghettifunk/aquarium/engine/renderer/gpu"
)

// VulkanImage is a texture. The layout it is really in is tracked here,
// so barriers declared against the abstract state always start from the
// layout the image has on the device.
type VulkanImage struct {
	context *VulkanContext
	desc    gpu.TextureDesc
	label   string
	owned   bool

	Handle vk.Image
	Memory vk.DeviceMemory
	View   vk.ImageView
	Width  uint32
	Height uint32

	layout vk.ImageLayout
	aspect vk.ImageAspectFlagBits

	onDestroy func(*VulkanImage)
}

func ImageCreate(context *VulkanContext, desc gpu.TextureDesc) (*VulkanImage, error) {
	if desc.MipLevels == 0 {
		desc.MipLevels = 1
	}
	if desc.ArrayLayers == 0 {
		desc.ArrayLayers = 1
	}
	if desc.SampleCount == 0 {
		desc.SampleCount = 1
	}
	img := &VulkanImage{
		context: context,
		desc:    desc,
		label:   core.NewIdentifier(desc.Label),
		owned:   true,
		Width:   desc.Width,
		Height:  desc.Height,
		layout:  vk.ImageLayoutUndefined,
		aspect:  vk.ImageAspectColorBit,
	}

	var usage vk.ImageUsageFlagBits
	switch {
	case desc.DepthStencil:
		usage = vk.ImageUsageDepthStencilAttachmentBit
		img.aspect = vk.ImageAspectDepthBit | vk.ImageAspectStencilBit
	case desc.RenderTarget:
		usage = vk.ImageUsageColorAttachmentBit | vk.ImageUsageTransferSrcBit
	default:
		usage = vk.ImageUsageSampledBit | vk.ImageUsageTransferDstBit
	}

	var flags vk.ImageCreateFlagBits
	if desc.Cube {
		flags = vk.ImageCreateCubeCompatibleBit
	}

	imageCreateInfo := vk.ImageCreateInfo{
		SType:     vk.StructureTypeImageCreateInfo,
		Flags:     vk.ImageCreateFlags(flags),
		ImageType: vk.ImageType2d,
		Extent: vk.Extent3D{
			Width:  desc.Width,
			Height: desc.Height,
			Depth:  1,
		},
		MipLevels:     desc.MipLevels,
		ArrayLayers:   desc.ArrayLayers,
		Format:        context.formatOf(desc.Format),
		Tiling:        vk.ImageTilingOptimal,
		InitialLayout: vk.ImageLayoutUndefined,
		Usage:         vk.ImageUsageFlags(usage),
		Samples:       sampleCountBit(desc.SampleCount),
		SharingMode:   vk.SharingModeExclusive,
	}

	device := context.Device.LogicalDevice
	if res := vk.CreateImage(device, &imageCreateInfo, context.Allocator, &img.Handle); res != vk.Success {
		return nil, resultError(res, "vkCreateImage(%s)", img.label)
	}

	var requirements vk.MemoryRequirements
	vk.GetImageMemoryRequirements(device, img.Handle, &requirements)
	memory, err := context.allocate(requirements, vk.MemoryPropertyDeviceLocalBit)
	if err != nil {
		img.ImageDestroy()
		return nil, err
	}
	img.Memory = memory
	if res := vk.BindImageMemory(device, img.Handle, img.Memory, 0); res != vk.Success {
		img.ImageDestroy()
		return nil, resultError(res, "vkBindImageMemory(%s)", img.label)
	}

	if err := img.createView(); err != nil {
		img.ImageDestroy()
		return nil, err
	}
	return img, nil
}

// wrapImage adopts an image owned by someone else, a swapchain image.
func wrapImage(context *VulkanContext, handle vk.Image, desc gpu.TextureDesc) (*VulkanImage, error) {
	img := &VulkanImage{context: context}
	if err := img.adopt(handle, desc); err != nil {
		return nil, err
	}
	return img, nil
}

// adopt points a wrapper at a new foreign image, keeping the wrapper itself.
func (img *VulkanImage) adopt(handle vk.Image, desc gpu.TextureDesc) error {
	img.desc = desc
	img.label = desc.Label
	img.owned = false
	img.Handle = handle
	img.Width = desc.Width
	img.Height = desc.Height
	img.layout = vk.ImageLayoutUndefined
	img.aspect = vk.ImageAspectColorBit
	return img.createView()
}

func (img *VulkanImage) createView() error {
	viewType := vk.ImageViewType2d
	if img.desc.Cube {
		viewType = vk.ImageViewTypeCube
	}
	aspect := img.aspect
	if img.desc.DepthStencil {
		// only the depth aspect may be viewed
		aspect = vk.ImageAspectDepthBit
	}
	viewCreateInfo := vk.ImageViewCreateInfo{
		SType:    vk.StructureTypeImageViewCreateInfo,
		Image:    img.Handle,
		ViewType: viewType,
		Format:   img.context.formatOf(img.desc.Format),
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask:     vk.ImageAspectFlags(aspect),
			BaseMipLevel:   0,
			LevelCount:     img.desc.MipLevels,
			BaseArrayLayer: 0,
			LayerCount:     img.desc.ArrayLayers,
		},
	}
	if res := vk.CreateImageView(img.context.Device.LogicalDevice, &viewCreateInfo, img.context.Allocator, &img.View); res != vk.Success {
		return resultError(res, "vkCreateImageView(%s)", img.label)
	}
	return nil
}

func (img *VulkanImage) Label() string         { return img.label }
func (img *VulkanImage) Desc() gpu.TextureDesc { return img.desc }

// Destroy releases the image. Swapchain images only lose their view.
func (img *VulkanImage) Destroy() {
	if img.onDestroy != nil {
		img.onDestroy(img)
	}
	img.ImageDestroy()
}

func (img *VulkanImage) ImageDestroy() {
	device := img.context.Device.LogicalDevice
	if img.View != vk.NullImageView {
		vk.DestroyImageView(device, img.View, img.context.Allocator)
		img.View = vk.NullImageView
	}
	if !img.owned {
		return
	}
	if img.Memory != vk.NullDeviceMemory {
		vk.FreeMemory(device, img.Memory, img.context.Allocator)
		img.Memory = vk.NullDeviceMemory
	}
	if img.Handle != vk.NullImage {
		vk.DestroyImage(device, img.Handle, img.context.Allocator)
		img.Handle = vk.NullImage
	}
}

// barrier moves every subresource of the image to the target layout.
func (img *VulkanImage) barrier(cmd vk.CommandBuffer, to access) {
	if img.layout == to.layout {
		return
	}
	from := accessOfLayout(img.layout)
	imageBarrier := vk.ImageMemoryBarrier{
		SType:               vk.StructureTypeImageMemoryBarrier,
		SrcAccessMask:       vk.AccessFlags(from.mask),
		DstAccessMask:       vk.AccessFlags(to.mask),
		OldLayout:           img.layout,
		NewLayout:           to.layout,
		SrcQueueFamilyIndex: vk.QueueFamilyIgnored,
		DstQueueFamilyIndex: vk.QueueFamilyIgnored,
		Image:               img.Handle,
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask:     vk.ImageAspectFlags(img.aspect),
			BaseMipLevel:   0,
			LevelCount:     img.desc.MipLevels,
			BaseArrayLayer: 0,
			LayerCount:     img.desc.ArrayLayers,
		},
	}
	vk.CmdPipelineBarrier(
		cmd,
		vk.PipelineStageFlags(from.stage), vk.PipelineStageFlags(to.stage),
		0,
		0, nil,
		0, nil,
		1, []vk.ImageMemoryBarrier{imageBarrier},
	)
	img.layout = to.layout
}

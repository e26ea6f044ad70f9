package vulkan

import (
	"errors"
	"fmt"
	"math"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/aquarium/engine/core"
	emath "github.com/spaghettifunk/aquarium/engine/math"
	"github.com/spaghettifunk/aquarium/engine/renderer/gpu"
)

var errOutOfDate = errors.New("swapchain out of date")

type VulkanSwapchainSupportInfo struct {
	Capabilities     vk.SurfaceCapabilities
	FormatCount      uint32
	Formats          []vk.SurfaceFormat
	PresentModeCount uint32
	PresentModes     []vk.PresentMode
}

// VulkanSwapchain owns the presentable images. The next image is acquired
// as soon as the previous one is presented, so CurrentIndex is always the
// image the coming frame renders into.
//
// The texture wrappers handed out by BackBuffer survive a recreation: they
// are pointed at the new images instead of being replaced.
type VulkanSwapchain struct {
	context      *VulkanContext
	queue        *Queue
	window       Window
	framebuffers *framebufferCache

	ImageFormat vk.SurfaceFormat
	Handle      vk.Swapchain
	ImageCount  uint32
	Width       uint32
	Height      uint32
	vsync       bool

	images     []*VulkanImage
	imageIndex uint32

	imageAvailable []vk.Semaphore
	renderComplete []vk.Semaphore
	frame          int
	// Signaled by the last acquire and not yet waited on.
	acquired vk.Semaphore
	// Set while the window has no area to present to.
	stale bool
}

func SwapchainCreate(context *VulkanContext, queue *Queue, window Window, framebuffers *framebufferCache, vsync bool) (*VulkanSwapchain, error) {
	vs := &VulkanSwapchain{
		context:      context,
		queue:        queue,
		window:       window,
		framebuffers: framebuffers,
		vsync:        vsync,
	}
	if err := vs.createSwapchain(vk.NullSwapchain); err != nil {
		vs.SwapchainDestroy()
		return nil, err
	}
	if err := vs.createSemaphores(); err != nil {
		vs.SwapchainDestroy()
		return nil, err
	}
	if err := vs.acquire(); err != nil {
		vs.SwapchainDestroy()
		return nil, err
	}
	core.LogInfo("Swapchain created successfully (%dx%d, %d images).", vs.Width, vs.Height, vs.ImageCount)
	return vs, nil
}

func (vs *VulkanSwapchain) BufferCount() uint32                 { return uint32(len(vs.images)) }
func (vs *VulkanSwapchain) CurrentIndex() uint32                { return vs.imageIndex }
func (vs *VulkanSwapchain) BackBuffer(index uint32) gpu.Texture { return vs.images[index] }
func (vs *VulkanSwapchain) Format() gpu.Format                  { return gpuFormat(vs.ImageFormat.Format) }
func (vs *VulkanSwapchain) Extent() (uint32, uint32)            { return vs.Width, vs.Height }

// takeAcquired hands the pending acquire semaphore to the first submission
// that references the acquired image.
func (vs *VulkanSwapchain) takeAcquired() vk.Semaphore {
	sem := vs.acquired
	vs.acquired = vk.NullSemaphore
	return sem
}

// Present queues the current image and acquires the next one. A swapchain
// that no longer matches the surface is rebuilt and the caller is told to
// skip the frame with core.ErrSwapchainBooting.
func (vs *VulkanSwapchain) Present(vsync bool) error {
	if vs.stale {
		return vs.rebuild(vsync)
	}
	wait := vs.takeAcquired()
	ready := vs.renderComplete[vs.imageIndex]
	switch res := vs.queue.present(vs.Handle, vs.imageIndex, wait, ready); res {
	case vk.Success:
	case vk.Suboptimal, vk.ErrorOutOfDate:
		return vs.rebuild(vsync)
	default:
		return resultError(res, "vkQueuePresent")
	}

	if vsync != vs.vsync {
		return vs.rebuild(vsync)
	}
	if err := vs.acquire(); err != nil {
		if errors.Is(err, errOutOfDate) {
			return vs.rebuild(vsync)
		}
		return err
	}
	return nil
}

func (vs *VulkanSwapchain) acquire() error {
	sem := vs.imageAvailable[vs.frame]
	vs.frame = (vs.frame + 1) % len(vs.imageAvailable)

	var index uint32
	switch res := vk.AcquireNextImage(vs.context.Device.LogicalDevice, vs.Handle, math.MaxUint64, sem, vk.NullFence, &index); res {
	case vk.Success, vk.Suboptimal:
		vs.imageIndex = index
		vs.acquired = sem
		return nil
	case vk.ErrorOutOfDate:
		return errOutOfDate
	default:
		return resultError(res, "vkAcquireNextImage")
	}
}

func (vs *VulkanSwapchain) rebuild(vsync bool) error {
	vs.vsync = vsync
	if err := vs.SwapchainRecreate(); err != nil {
		return err
	}
	return fmt.Errorf("%w: %dx%d", core.ErrSwapchainBooting, vs.Width, vs.Height)
}

// SwapchainRecreate waits for the device to go idle and rebuilds the
// swapchain for the current surface. A window without area leaves the
// swapchain stale until it has one again.
func (vs *VulkanSwapchain) SwapchainRecreate() error {
	if res := vk.DeviceWaitIdle(vs.context.Device.LogicalDevice); res != vk.Success {
		return resultError(res, "vkDeviceWaitIdle")
	}
	width, height := vs.window.GetFramebufferSize()
	if width == 0 || height == 0 {
		vs.stale = true
		return nil
	}

	vs.destroySemaphores()
	if err := vs.createSwapchain(vs.Handle); err != nil {
		return err
	}
	if err := vs.createSemaphores(); err != nil {
		return err
	}
	switch err := vs.acquire(); {
	case errors.Is(err, errOutOfDate):
		vs.stale = true
	case err != nil:
		return err
	default:
		vs.stale = false
	}
	core.LogInfo("Swapchain recreated (%dx%d).", vs.Width, vs.Height)
	return nil
}

func (vs *VulkanSwapchain) createSwapchain(old vk.Swapchain) error {
	device := vs.context.Device
	support := &device.SwapchainSupport
	if err := DeviceQuerySwapchainSupport(device.PhysicalDevice, vs.context.Surface, support); err != nil {
		return err
	}
	if support.FormatCount == 0 || support.PresentModeCount == 0 {
		err := fmt.Errorf("surface offers no formats or present modes")
		core.LogError("%s", err)
		return err
	}

	// Choose a swap surface format.
	found := false
	for _, format := range support.Formats {
		format.Deref()
		if (format.Format == vk.FormatB8g8r8a8Unorm || format.Format == vk.FormatR8g8b8a8Unorm) &&
			format.ColorSpace == vk.ColorSpaceSrgbNonlinear {
			vs.ImageFormat = format
			found = true
			break
		}
	}
	if !found {
		err := fmt.Errorf("surface offers no B8G8R8A8 or R8G8B8A8 unorm format")
		core.LogError("%s", err)
		return err
	}

	presentMode := vk.PresentModeFifo
	if !vs.vsync {
		for _, mode := range support.PresentModes {
			if mode == vk.PresentModeMailbox {
				presentMode = mode
				break
			}
			if mode == vk.PresentModeImmediate {
				presentMode = mode
			}
		}
	}

	caps := support.Capabilities
	caps.Deref()
	caps.CurrentExtent.Deref()
	caps.MinImageExtent.Deref()
	caps.MaxImageExtent.Deref()

	// Swapchain extent
	width, height := vs.window.GetFramebufferSize()
	swapchainExtent := vk.Extent2D{Width: width, Height: height}
	if caps.CurrentExtent.Width != math.MaxUint32 {
		swapchainExtent = caps.CurrentExtent
	}
	// Clamp to the value allowed by the GPU.
	swapchainExtent.Width = emath.Clamp(swapchainExtent.Width, caps.MinImageExtent.Width, caps.MaxImageExtent.Width)
	swapchainExtent.Height = emath.Clamp(swapchainExtent.Height, caps.MinImageExtent.Height, caps.MaxImageExtent.Height)

	// The image count is fixed by the first swapchain.
	imageCount := vs.ImageCount
	if imageCount == 0 {
		imageCount = caps.MinImageCount + 1
		if caps.MaxImageCount > 0 {
			imageCount = emath.Min(imageCount, caps.MaxImageCount)
		}
	}

	swapchainCreateInfo := vk.SwapchainCreateInfo{
		SType:            vk.StructureTypeSwapchainCreateInfo,
		Surface:          vs.context.Surface,
		MinImageCount:    imageCount,
		ImageFormat:      vs.ImageFormat.Format,
		ImageColorSpace:  vs.ImageFormat.ColorSpace,
		ImageExtent:      swapchainExtent,
		ImageArrayLayers: 1,
		ImageUsage:       vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit | vk.ImageUsageTransferDstBit),
		PreTransform:     caps.CurrentTransform,
		CompositeAlpha:   vk.CompositeAlphaOpaqueBit,
		PresentMode:      presentMode,
		Clipped:          vk.True,
		OldSwapchain:     old,
	}

	// Setup the queue family indices
	if device.GraphicsQueueIndex != device.PresentQueueIndex {
		swapchainCreateInfo.ImageSharingMode = vk.SharingModeConcurrent
		swapchainCreateInfo.QueueFamilyIndexCount = 2
		swapchainCreateInfo.PQueueFamilyIndices = []uint32{device.GraphicsQueueIndex, device.PresentQueueIndex}
	} else {
		swapchainCreateInfo.ImageSharingMode = vk.SharingModeExclusive
	}

	var handle vk.Swapchain
	if res := vk.CreateSwapchain(device.LogicalDevice, &swapchainCreateInfo, vs.context.Allocator, &handle); res != vk.Success {
		return resultError(res, "vkCreateSwapchain")
	}
	// Views of the old images go before the swapchain that owns them.
	for _, img := range vs.images {
		img.Destroy()
	}
	if old != vk.NullSwapchain {
		vk.DestroySwapchain(device.LogicalDevice, old, vs.context.Allocator)
	}
	vs.Handle = handle
	vs.Width = swapchainExtent.Width
	vs.Height = swapchainExtent.Height

	// Images
	var count uint32
	if res := vk.GetSwapchainImages(device.LogicalDevice, vs.Handle, &count, nil); res != vk.Success {
		return resultError(res, "vkGetSwapchainImages")
	}
	handles := make([]vk.Image, count)
	if res := vk.GetSwapchainImages(device.LogicalDevice, vs.Handle, &count, handles); res != vk.Success {
		return resultError(res, "vkGetSwapchainImages")
	}
	if len(vs.images) > 0 && int(count) != len(vs.images) {
		err := fmt.Errorf("swapchain image count changed from %d to %d", len(vs.images), count)
		core.LogError("%s", err)
		return err
	}
	vs.ImageCount = count

	for i, h := range handles {
		desc := gpu.TextureDesc{
			Label:        fmt.Sprintf("back-buffer-%d", i),
			Width:        vs.Width,
			Height:       vs.Height,
			MipLevels:    1,
			ArrayLayers:  1,
			SampleCount:  1,
			Format:       gpuFormat(vs.ImageFormat.Format),
			RenderTarget: true,
			InitialState: gpu.ResourceStatePresent,
		}
		if i < len(vs.images) {
			if err := vs.images[i].adopt(h, desc); err != nil {
				return err
			}
			continue
		}
		img, err := wrapImage(vs.context, h, desc)
		if err != nil {
			return err
		}
		img.onDestroy = vs.framebuffers.evict
		vs.images = append(vs.images, img)
	}
	return nil
}

func (vs *VulkanSwapchain) createSemaphores() error {
	device := vs.context.Device.LogicalDevice
	semaphoreCreateInfo := vk.SemaphoreCreateInfo{
		SType: vk.StructureTypeSemaphoreCreateInfo,
	}
	create := func(n int) ([]vk.Semaphore, error) {
		out := make([]vk.Semaphore, n)
		for i := range out {
			if res := vk.CreateSemaphore(device, &semaphoreCreateInfo, vs.context.Allocator, &out[i]); res != vk.Success {
				return out, resultError(res, "vkCreateSemaphore")
			}
		}
		return out, nil
	}
	var err error
	// One more than the image count: an acquire may be outstanding while
	// every image is in flight.
	if vs.imageAvailable, err = create(len(vs.images) + 1); err != nil {
		return err
	}
	vs.renderComplete, err = create(len(vs.images))
	vs.frame = 0
	return err
}

func (vs *VulkanSwapchain) destroySemaphores() {
	device := vs.context.Device.LogicalDevice
	for _, s := range append(vs.imageAvailable, vs.renderComplete...) {
		if s != vk.NullSemaphore {
			vk.DestroySemaphore(device, s, vs.context.Allocator)
		}
	}
	vs.imageAvailable = nil
	vs.renderComplete = nil
	vs.acquired = vk.NullSemaphore
}

func (vs *VulkanSwapchain) SwapchainDestroy() {
	vk.DeviceWaitIdle(vs.context.Device.LogicalDevice)
	vs.destroySemaphores()
	// Only the views are destroyed, the images belong to the swapchain.
	for _, img := range vs.images {
		img.Destroy()
	}
	vs.images = nil
	if vs.Handle != vk.NullSwapchain {
		vk.DestroySwapchain(vs.context.Device.LogicalDevice, vs.Handle, vs.context.Allocator)
		vs.Handle = vk.NullSwapchain
	}
}

package vulkan

import (
	"errors"
	"fmt"
	"sync"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/aquarium/engine/core"
	"github.com/spaghettifunk/aquarium/engine/renderer/gpu"
)

type VulkanCommandBufferState int

const (
	COMMAND_BUFFER_STATE_READY VulkanCommandBufferState = iota
	COMMAND_BUFFER_STATE_RECORDING
	COMMAND_BUFFER_STATE_IN_RENDER_PASS
	COMMAND_BUFFER_STATE_RECORDING_ENDED
	COMMAND_BUFFER_STATE_SUBMITTED
	COMMAND_BUFFER_STATE_NOT_ALLOCATED
)

var errNotRecording = errors.New("command list is not recording")

// CommandAllocator owns a command pool and the descriptor sets materialized
// for the lists recorded from it. Both are recycled on Reset.
type CommandAllocator struct {
	context     *VulkanContext
	Handle      vk.CommandPool
	descriptors *descriptorPool
}

func NewCommandAllocator(context *VulkanContext) (*CommandAllocator, error) {
	poolCreateInfo := vk.CommandPoolCreateInfo{
		SType:            vk.StructureTypeCommandPoolCreateInfo,
		QueueFamilyIndex: context.Device.GraphicsQueueIndex,
	}
	a := &CommandAllocator{context: context}
	if res := vk.CreateCommandPool(context.Device.LogicalDevice, &poolCreateInfo, context.Allocator, &a.Handle); res != vk.Success {
		return nil, resultError(res, "vkCreateCommandPool")
	}
	descriptors, err := newDescriptorPool(context)
	if err != nil {
		a.Destroy()
		return nil, err
	}
	a.descriptors = descriptors
	return a, nil
}

// Reset recycles every command buffer and descriptor set of the allocator.
// The caller guarantees the work recorded from it has retired.
func (a *CommandAllocator) Reset() error {
	if res := vk.ResetCommandPool(a.context.Device.LogicalDevice, a.Handle, 0); res != vk.Success {
		return resultError(res, "vkResetCommandPool")
	}
	return a.descriptors.reset()
}

func (a *CommandAllocator) Destroy() {
	if a.descriptors != nil {
		a.descriptors.destroy()
		a.descriptors = nil
	}
	if a.Handle != vk.NullCommandPool {
		vk.DestroyCommandPool(a.context.Device.LogicalDevice, a.Handle, a.context.Allocator)
		a.Handle = vk.NullCommandPool
	}
}

func (a *CommandAllocator) allocateBuffer() (vk.CommandBuffer, error) {
	allocateInfo := vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        a.Handle,
		Level:              vk.CommandBufferLevelPrimary,
		CommandBufferCount: 1,
	}
	buffers := make([]vk.CommandBuffer, 1)
	if res := vk.AllocateCommandBuffers(a.context.Device.LogicalDevice, &allocateInfo, buffers); res != vk.Success {
		return nil, resultError(res, "vkAllocateCommandBuffers")
	}
	return buffers[0], nil
}

// CommandList records into one primary command buffer per allocator it has
// been reset against.
//
// Image layouts are tracked at record time. Lists must be submitted in the
// order they were recorded for the tracked layouts to hold.
type CommandList struct {
	backend *Backend

	buffers   map[*CommandAllocator]vk.CommandBuffer
	allocator *CommandAllocator
	Handle    vk.CommandBuffer
	State     VulkanCommandBufferState

	// First recording error. Reported by Close.
	err error

	heap     *DescriptorHeap
	layout   *VulkanBindingLayout
	pipeline *VulkanPipeline
	pass     *VulkanRenderpass

	// Set once a command references a swapchain image.
	writesBackBuffer bool
}

func newCommandList(backend *Backend, allocator gpu.CommandAllocator) (*CommandList, error) {
	cl := &CommandList{
		backend: backend,
		buffers: make(map[*CommandAllocator]vk.CommandBuffer),
		State:   COMMAND_BUFFER_STATE_NOT_ALLOCATED,
	}
	// Lists are created open, like their D3D12 counterparts.
	if err := cl.Reset(allocator); err != nil {
		return nil, err
	}
	return cl, nil
}

func (cl *CommandList) Reset(allocator gpu.CommandAllocator) error {
	alloc, ok := allocator.(*CommandAllocator)
	if !ok {
		return fmt.Errorf("allocator was not created by the vulkan backend")
	}
	handle, ok := cl.buffers[alloc]
	if !ok {
		var err error
		if handle, err = alloc.allocateBuffer(); err != nil {
			return err
		}
		cl.buffers[alloc] = handle
	}
	cl.allocator = alloc
	cl.Handle = handle
	cl.err = nil
	cl.heap = nil
	cl.layout = nil
	cl.pipeline = nil
	cl.pass = nil
	cl.writesBackBuffer = false

	beginInfo := vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
		Flags: vk.CommandBufferUsageFlags(vk.CommandBufferUsageOneTimeSubmitBit),
	}
	if res := vk.BeginCommandBuffer(cl.Handle, &beginInfo); res != vk.Success {
		return resultError(res, "vkBeginCommandBuffer")
	}
	cl.State = COMMAND_BUFFER_STATE_RECORDING
	return nil
}

func (cl *CommandList) Close() error {
	if cl.State != COMMAND_BUFFER_STATE_RECORDING && cl.State != COMMAND_BUFFER_STATE_IN_RENDER_PASS {
		return errNotRecording
	}
	if cl.pass != nil {
		cl.fail(fmt.Errorf("command list closed inside a render pass"))
		cl.EndRenderPass()
	}
	if res := vk.EndCommandBuffer(cl.Handle); res != vk.Success {
		return resultError(res, "vkEndCommandBuffer")
	}
	cl.State = COMMAND_BUFFER_STATE_RECORDING_ENDED
	return cl.err
}

func (cl *CommandList) Destroy() {
	for alloc, handle := range cl.buffers {
		if alloc.Handle != vk.NullCommandPool {
			vk.FreeCommandBuffers(cl.backend.context.Device.LogicalDevice, alloc.Handle, 1, []vk.CommandBuffer{handle})
		}
	}
	cl.buffers = nil
	cl.Handle = nil
	cl.State = COMMAND_BUFFER_STATE_NOT_ALLOCATED
}

func (cl *CommandList) fail(err error) {
	core.LogError("%s", err)
	if cl.err == nil {
		cl.err = err
	}
}

// touch notes that the list references img.
func (cl *CommandList) touch(img *VulkanImage) {
	if !img.owned {
		cl.writesBackBuffer = true
	}
}

// needsAcquire reports whether a batch references the acquired swapchain
// image and therefore has to wait for it to be free.
func needsAcquire(lists []*CommandList) bool {
	for _, cl := range lists {
		if cl.writesBackBuffer {
			return true
		}
	}
	return false
}

// recording reports whether commands may be recorded, flagging the list if not.
func (cl *CommandList) recording() bool {
	if cl.State == COMMAND_BUFFER_STATE_RECORDING || cl.State == COMMAND_BUFFER_STATE_IN_RENDER_PASS {
		return true
	}
	cl.fail(errNotRecording)
	return false
}

func (cl *CommandList) ResourceBarrier(resource gpu.Resource, before, after gpu.ResourceState) {
	if !cl.recording() {
		return
	}
	switch r := resource.(type) {
	case *VulkanImage:
		cl.touch(r)
		r.barrier(cl.Handle, accessOf(after))
	case *Buffer:
		from, to := accessOf(before), accessOf(after)
		memoryBarrier := vk.MemoryBarrier{
			SType:         vk.StructureTypeMemoryBarrier,
			SrcAccessMask: vk.AccessFlags(from.mask),
			DstAccessMask: vk.AccessFlags(to.mask),
		}
		vk.CmdPipelineBarrier(
			cl.Handle,
			vk.PipelineStageFlags(from.stage), vk.PipelineStageFlags(to.stage),
			0,
			1, []vk.MemoryBarrier{memoryBarrier},
			0, nil,
			0, nil,
		)
	default:
		cl.fail(fmt.Errorf("barrier on %s: resource was not created by the vulkan backend", resource.Label()))
	}
}

func (cl *CommandList) CopyBuffer(dst, src gpu.Buffer, size uint64) {
	if !cl.recording() {
		return
	}
	db, ok1 := dst.(*Buffer)
	sb, ok2 := src.(*Buffer)
	if !ok1 || !ok2 {
		cl.fail(fmt.Errorf("copy from %s to %s: buffers were not created by the vulkan backend", src.Label(), dst.Label()))
		return
	}
	if size > db.Size() || size > sb.Size() {
		cl.fail(fmt.Errorf("copy of %d bytes overflows %s or %s", size, db.label, sb.label))
		return
	}
	vk.CmdCopyBuffer(cl.Handle, sb.Handle, db.Handle, 1, []vk.BufferCopy{{
		SrcOffset: 0,
		DstOffset: 0,
		Size:      vk.DeviceSize(size),
	}})
}

func (cl *CommandList) CopyBufferToTexture(dst gpu.Texture, layer, mip uint32, src gpu.Buffer, srcOffset uint64) {
	if !cl.recording() {
		return
	}
	img, ok1 := dst.(*VulkanImage)
	sb, ok2 := src.(*Buffer)
	if !ok1 || !ok2 {
		cl.fail(fmt.Errorf("copy from %s to %s: resources were not created by the vulkan backend", src.Label(), dst.Label()))
		return
	}
	if layer >= img.desc.ArrayLayers || mip >= img.desc.MipLevels {
		cl.fail(fmt.Errorf("texture %s has no layer %d mip %d", img.label, layer, mip))
		return
	}
	img.barrier(cl.Handle, accessOf(gpu.ResourceStateCopyDest))
	region := vk.BufferImageCopy{
		BufferOffset: vk.DeviceSize(srcOffset),
		ImageSubresource: vk.ImageSubresourceLayers{
			AspectMask:     vk.ImageAspectFlags(vk.ImageAspectColorBit),
			MipLevel:       mip,
			BaseArrayLayer: layer,
			LayerCount:     1,
		},
		ImageOffset: vk.Offset3D{X: 0, Y: 0, Z: 0},
		ImageExtent: vk.Extent3D{
			Width:  max(img.Width>>mip, 1),
			Height: max(img.Height>>mip, 1),
			Depth:  1,
		},
	}
	vk.CmdCopyBufferToImage(cl.Handle, sb.Handle, img.Handle, vk.ImageLayoutTransferDstOptimal, 1, []vk.BufferImageCopy{region})
}

func (cl *CommandList) ResolveTexture(dst, src gpu.Texture) {
	if !cl.recording() {
		return
	}
	di, ok1 := dst.(*VulkanImage)
	si, ok2 := src.(*VulkanImage)
	if !ok1 || !ok2 {
		cl.fail(fmt.Errorf("resolve %s into %s: textures were not created by the vulkan backend", src.Label(), dst.Label()))
		return
	}
	cl.touch(di)
	si.barrier(cl.Handle, accessOf(gpu.ResourceStateResolveSource))
	di.barrier(cl.Handle, accessOf(gpu.ResourceStateResolveDest))
	layers := vk.ImageSubresourceLayers{
		AspectMask: vk.ImageAspectFlags(vk.ImageAspectColorBit),
		LayerCount: 1,
	}
	vk.CmdResolveImage(cl.Handle, si.Handle, vk.ImageLayoutTransferSrcOptimal, di.Handle, vk.ImageLayoutTransferDstOptimal, 1, []vk.ImageResolve{{
		SrcSubresource: layers,
		DstSubresource: layers,
		Extent: vk.Extent3D{
			Width:  min(si.Width, di.Width),
			Height: min(si.Height, di.Height),
			Depth:  1,
		},
	}})
}

func (cl *CommandList) SetDescriptorHeap(heap gpu.DescriptorHeap) {
	h, ok := heap.(*DescriptorHeap)
	if !ok {
		cl.fail(fmt.Errorf("descriptor heap was not created by the vulkan backend"))
		return
	}
	cl.heap = h
}

func (cl *CommandList) SetViewport(viewport gpu.Viewport) {
	if !cl.recording() {
		return
	}
	vk.CmdSetViewport(cl.Handle, 0, 1, []vk.Viewport{{
		X:        viewport.X,
		Y:        viewport.Y,
		Width:    viewport.Width,
		Height:   viewport.Height,
		MinDepth: viewport.MinDepth,
		MaxDepth: viewport.MaxDepth,
	}})
}

func (cl *CommandList) SetScissor(rect gpu.Rect) {
	if !cl.recording() {
		return
	}
	vk.CmdSetScissor(cl.Handle, 0, 1, []vk.Rect2D{{
		Offset: vk.Offset2D{X: rect.X, Y: rect.Y},
		Extent: vk.Extent2D{Width: rect.Width, Height: rect.Height},
	}})
}

// BeginRenderPass moves both attachments into their attachment layouts and
// starts a cached render pass over them.
func (cl *CommandList) BeginRenderPass(desc gpu.RenderPassDesc) {
	if !cl.recording() {
		return
	}
	color, ok1 := desc.Color.(*VulkanImage)
	depth, ok2 := desc.Depth.(*VulkanImage)
	if !ok1 || !ok2 {
		cl.fail(fmt.Errorf("render pass attachments were not created by the vulkan backend"))
		return
	}
	cl.touch(color)
	color.barrier(cl.Handle, accessOf(gpu.ResourceStateRenderTarget))
	depth.barrier(cl.Handle, accessOf(gpu.ResourceStateDepthWrite))

	key := renderpassKey{
		color:   cl.backend.context.formatOf(color.desc.Format),
		depth:   cl.backend.context.formatOf(depth.desc.Format),
		samples: color.desc.SampleCount,
		clear:   desc.ClearColorAttachment,
	}
	renderpass, err := cl.backend.renderpass(key)
	if err != nil {
		cl.fail(err)
		return
	}
	framebuffer, err := cl.backend.framebuffers.get(renderpass, color, depth)
	if err != nil {
		cl.fail(err)
		return
	}
	renderpass.RenderpassBegin(cl.Handle, framebuffer, desc)
	cl.pass = renderpass
	cl.State = COMMAND_BUFFER_STATE_IN_RENDER_PASS
}

func (cl *CommandList) EndRenderPass() {
	if cl.pass == nil {
		cl.fail(fmt.Errorf("no render pass to end"))
		return
	}
	cl.pass.RenderpassEnd(cl.Handle)
	cl.pass = nil
	cl.State = COMMAND_BUFFER_STATE_RECORDING
}

func (cl *CommandList) SetBindingLayout(layout gpu.BindingLayout) {
	l, ok := layout.(*VulkanBindingLayout)
	if !ok {
		cl.fail(fmt.Errorf("binding layout was not created by the vulkan backend"))
		return
	}
	cl.layout = l
	if l.samplerSet != nil && cl.recording() {
		vk.CmdBindDescriptorSets(cl.Handle, vk.PipelineBindPointGraphics, l.PipelineLayout, l.samplerSetIndex(), 1, []vk.DescriptorSet{l.samplerSet}, 0, nil)
	}
}

func (cl *CommandList) SetPipeline(pipeline gpu.Pipeline) {
	p, ok := pipeline.(*VulkanPipeline)
	if !ok {
		cl.fail(fmt.Errorf("pipeline was not created by the vulkan backend"))
		return
	}
	cl.pipeline = p
	if !cl.recording() {
		return
	}
	vk.CmdBindPipeline(cl.Handle, vk.PipelineBindPointGraphics, p.Handle)
}

// bindSet binds the set of param written with key. Sets with the same
// content are shared within the allocator, so repeated draws of one model
// reuse theirs.
func (cl *CommandList) bindSet(param uint32, key setKey, fill func(set vk.DescriptorSet) error) {
	if cl.layout == nil {
		cl.fail(fmt.Errorf("parameter %d bound without a binding layout", param))
		return
	}
	if param >= uint32(len(cl.layout.desc.Params)) {
		cl.fail(fmt.Errorf("binding layout %s has no parameter %d", cl.layout.desc.Label, param))
		return
	}
	key.layout = cl.layout.SetLayouts[param]
	set, err := cl.allocator.descriptors.get(key, fill)
	if err != nil {
		cl.fail(err)
		return
	}
	vk.CmdBindDescriptorSets(cl.Handle, vk.PipelineBindPointGraphics, cl.layout.PipelineLayout, param, 1, []vk.DescriptorSet{set}, 0, nil)
}

func (cl *CommandList) SetDescriptorTable(param uint32, base uint32) {
	if !cl.recording() {
		return
	}
	if cl.heap == nil {
		cl.fail(fmt.Errorf("descriptor table %d bound without a descriptor heap", param))
		return
	}
	cl.bindSet(param, setKey{table: true, base: base}, func(set vk.DescriptorSet) error {
		return writeTable(cl.backend.context, set, cl.heap, cl.layout.desc.Params[param], base)
	})
}

func (cl *CommandList) SetConstantBuffer(param uint32, buffer gpu.Buffer, offset uint64) {
	if !cl.recording() {
		return
	}
	b, ok := buffer.(*Buffer)
	if !ok {
		cl.fail(fmt.Errorf("constant buffer %s was not created by the vulkan backend", buffer.Label()))
		return
	}
	cl.bindSet(param, setKey{buffer: b.Handle, offset: offset}, func(set vk.DescriptorSet) error {
		writeConstantBuffer(cl.backend.context, set, cl.layout.desc.Params[param].Register, b, offset)
		return nil
	})
}

func (cl *CommandList) SetVertexBuffers(startSlot uint32, views ...gpu.VertexBufferView) {
	if !cl.recording() || len(views) == 0 {
		return
	}
	buffers := make([]vk.Buffer, len(views))
	offsets := make([]vk.DeviceSize, len(views))
	for i, v := range views {
		b, ok := v.Buffer.(*Buffer)
		if !ok {
			cl.fail(fmt.Errorf("vertex buffer in slot %d was not created by the vulkan backend", startSlot+uint32(i)))
			return
		}
		buffers[i] = b.Handle
		offsets[i] = vk.DeviceSize(v.Offset)
	}
	vk.CmdBindVertexBuffers(cl.Handle, startSlot, uint32(len(views)), buffers, offsets)
}

func (cl *CommandList) SetIndexBuffer(view gpu.IndexBufferView) {
	if !cl.recording() {
		return
	}
	b, ok := view.Buffer.(*Buffer)
	if !ok {
		cl.fail(fmt.Errorf("index buffer was not created by the vulkan backend"))
		return
	}
	indexType := vk.IndexTypeUint16
	if view.Format == gpu.IndexFormatUint32 {
		indexType = vk.IndexTypeUint32
	}
	vk.CmdBindIndexBuffer(cl.Handle, b.Handle, vk.DeviceSize(view.Offset), indexType)
}

func (cl *CommandList) DrawIndexedInstanced(indexCount, instanceCount, startIndex uint32, baseVertex int32, startInstance uint32) {
	if !cl.recording() {
		return
	}
	if cl.pass == nil || cl.pipeline == nil {
		cl.fail(fmt.Errorf("draw recorded outside a render pass or without a pipeline"))
		return
	}
	vk.CmdDrawIndexed(cl.Handle, indexCount, instanceCount, startIndex, baseVertex, startInstance)
}

// Queue is the graphics queue. Submissions are serialized.
type Queue struct {
	backend *Backend
	Handle  vk.Queue
	mu      sync.Mutex
}

func (q *Queue) Submit(lists ...gpu.CommandList) error {
	handles := make([]vk.CommandBuffer, 0, len(lists))
	batch := make([]*CommandList, 0, len(lists))
	for _, l := range lists {
		cl, ok := l.(*CommandList)
		if !ok {
			return fmt.Errorf("command list was not created by the vulkan backend")
		}
		if cl.State != COMMAND_BUFFER_STATE_RECORDING_ENDED {
			return fmt.Errorf("submitted command list is not closed")
		}
		handles = append(handles, cl.Handle)
		batch = append(batch, cl)
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	submitInfo := vk.SubmitInfo{
		SType:              vk.StructureTypeSubmitInfo,
		CommandBufferCount: uint32(len(handles)),
		PCommandBuffers:    handles,
	}
	// The first batch drawing into the acquired image waits for it to be
	// free. Setup uploads never touch it and leave the semaphore alone.
	if q.backend.swapchain != nil && needsAcquire(batch) {
		if sem := q.backend.swapchain.takeAcquired(); sem != vk.NullSemaphore {
			submitInfo.WaitSemaphoreCount = 1
			submitInfo.PWaitSemaphores = []vk.Semaphore{sem}
			submitInfo.PWaitDstStageMask = []vk.PipelineStageFlags{vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit | vk.PipelineStageTransferBit)}
		}
	}
	if res := vk.QueueSubmit(q.Handle, 1, []vk.SubmitInfo{submitInfo}, vk.NullFence); res != vk.Success {
		return resultError(res, "vkQueueSubmit")
	}
	for _, cl := range batch {
		cl.State = COMMAND_BUFFER_STATE_SUBMITTED
	}
	return nil
}

// Signal submits an empty batch carrying a fresh fence for value.
func (q *Queue) Signal(fence gpu.Fence, value uint64) error {
	vf, ok := fence.(*VulkanFence)
	if !ok {
		return fmt.Errorf("fence was not created by the vulkan backend")
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	handle, err := vf.arm(value)
	if err != nil {
		return err
	}
	if res := vk.QueueSubmit(q.Handle, 0, nil, handle); res != vk.Success {
		vf.disarm(handle)
		return resultError(res, "vkQueueSubmit(signal %d)", value)
	}
	return nil
}

// present submits an empty batch signaling ready once all previous work is
// done, then queues the image for presentation.
func (q *Queue) present(swapchain vk.Swapchain, index uint32, wait, ready vk.Semaphore) vk.Result {
	q.mu.Lock()
	defer q.mu.Unlock()
	submitInfo := vk.SubmitInfo{
		SType:                vk.StructureTypeSubmitInfo,
		SignalSemaphoreCount: 1,
		PSignalSemaphores:    []vk.Semaphore{ready},
	}
	if wait != vk.NullSemaphore {
		submitInfo.WaitSemaphoreCount = 1
		submitInfo.PWaitSemaphores = []vk.Semaphore{wait}
		submitInfo.PWaitDstStageMask = []vk.PipelineStageFlags{vk.PipelineStageFlags(vk.PipelineStageBottomOfPipeBit)}
	}
	if res := vk.QueueSubmit(q.Handle, 1, []vk.SubmitInfo{submitInfo}, vk.NullFence); res != vk.Success {
		return res
	}
	presentInfo := vk.PresentInfo{
		SType:              vk.StructureTypePresentInfo,
		WaitSemaphoreCount: 1,
		PWaitSemaphores:    []vk.Semaphore{ready},
		SwapchainCount:     1,
		PSwapchains:        []vk.Swapchain{swapchain},
		PImageIndices:      []uint32{index},
	}
	return vk.QueuePresent(q.backend.context.Device.PresentQueue, &presentInfo)
}

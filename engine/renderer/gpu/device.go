package gpu

import "context"

// Fence is a monotonically increasing completion counter. The queue signals
// a value once every command submitted before the signal has finished.
type Fence interface {
	// Completed returns the highest value the device has reached.
	Completed() uint64
	// Wait blocks until Completed() >= value. A lost device returns
	// core.ErrDeviceLost.
	Wait(ctx context.Context, value uint64) error
	Destroy()
}

// CommandAllocator backs the memory of the command lists recorded from it.
// It may only be reset once every list recorded from it has retired.
type CommandAllocator interface {
	Reset() error
	Destroy()
}

// CommandList records device commands. Recording is single threaded.
type CommandList interface {
	Reset(allocator CommandAllocator) error
	Close() error

	ResourceBarrier(resource Resource, before, after ResourceState)
	CopyBuffer(dst, src Buffer, size uint64)
	CopyBufferToTexture(dst Texture, layer, mip uint32, src Buffer, srcOffset uint64)
	ResolveTexture(dst, src Texture)

	SetDescriptorHeap(heap DescriptorHeap)
	SetViewport(viewport Viewport)
	SetScissor(rect Rect)
	BeginRenderPass(desc RenderPassDesc)
	EndRenderPass()

	SetBindingLayout(layout BindingLayout)
	SetPipeline(pipeline Pipeline)
	SetDescriptorTable(param uint32, base uint32)
	SetConstantBuffer(param uint32, buffer Buffer, offset uint64)
	SetVertexBuffers(startSlot uint32, views ...VertexBufferView)
	SetIndexBuffer(view IndexBufferView)
	DrawIndexedInstanced(indexCount, instanceCount, startIndex uint32, baseVertex int32, startInstance uint32)

	Destroy()
}

type Queue interface {
	Submit(lists ...CommandList) error
	// Signal asks the device to set the fence to value once all previously
	// submitted work has completed.
	Signal(fence Fence, value uint64) error
}

type Swapchain interface {
	BufferCount() uint32
	// CurrentIndex is the back buffer the next frame renders into.
	CurrentIndex() uint32
	BackBuffer(index uint32) Texture
	Format() Format
	Extent() (uint32, uint32)
	Present(vsync bool) error
}

type Device interface {
	Adapter() AdapterInfo
	Queue() Queue
	Swapchain() Swapchain

	CreateBuffer(desc BufferDesc) (Buffer, error)
	CreateTexture(desc TextureDesc) (Texture, error)
	CreateCommandAllocator() (CommandAllocator, error)
	CreateCommandList(allocator CommandAllocator) (CommandList, error)
	CreateFence(initial uint64) (Fence, error)
	CreateDescriptorHeap(capacity uint32) (DescriptorHeap, error)
	CreateBindingLayout(desc BindingLayoutDesc) (BindingLayout, error)
	CreateShaderModule(stage ShaderStage, code []byte) (ShaderModule, error)
	CreatePipeline(desc PipelineDesc) (Pipeline, error)

	// PollEvents gives the windowing layer a chance to process input.
	PollEvents()
	Destroy()
}

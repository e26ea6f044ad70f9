// Package renderer drives the frame: it owns the frame ring, the descriptor
// heap, the stager and the scene wide constants, and hands models the
// command list of the frame being recorded.
package renderer

import (
	"context"
	"errors"
	"fmt"

	"github.com/spaghettifunk/aquarium/engine/config"
	"github.com/spaghettifunk/aquarium/engine/core"
	"github.com/spaghettifunk/aquarium/engine/renderer/descriptor"
	"github.com/spaghettifunk/aquarium/engine/renderer/frame"
	"github.com/spaghettifunk/aquarium/engine/renderer/gpu"
	"github.com/spaghettifunk/aquarium/engine/renderer/models"
	"github.com/spaghettifunk/aquarium/engine/renderer/program"
	"github.com/spaghettifunk/aquarium/engine/renderer/staging"
	"github.com/spaghettifunk/aquarium/engine/renderer/uniforms"
)

const (
	msaaSampleCount uint32 = 4
	depthFormat            = gpu.FormatD24UnormS8Uint
)

var clearColor = [4]float32{0, 0.8, 1, 0}

// Context is the renderer seen by the host loop.
type Context struct {
	device      gpu.Device
	ring        *frame.Ring
	stager      *staging.Stager
	descriptors *descriptor.Allocator
	programs    *program.Cache
	models      []*models.Model

	vsync       bool
	sampleCount uint32

	// setup uploads recorded outside of a frame
	setupAllocator gpu.CommandAllocator
	setupList      gpu.CommandList
	setupFence     gpu.Fence
	setupValue     uint64
	setupPending   bool

	backBuffers  []*gpu.StateTracker
	depth        gpu.Texture
	msaa         gpu.Texture
	msaaState    *gpu.StateTracker
	targetWidth  uint32
	targetHeight uint32

	lightWorldPosition *uniforms.Dynamic[uniforms.LightWorldPosition]
	light              *uniforms.Dynamic[uniforms.Light]
	fog                *uniforms.Dynamic[uniforms.Fog]
	sceneTable         descriptor.GPUHandle

	slot    *frame.Slot
	back    uint32
	frames  uint64
	stopped bool
}

type Option func(*options)

type options struct {
	compile program.Compiler
}

// WithCompiler replaces the WGSL compiler used for every program.
func WithCompiler(compile program.Compiler) Option {
	return func(o *options) { o.compile = compile }
}

// Initialize creates every device object the frame loop needs. The toggles of
// cfg are read once here.
func Initialize(device gpu.Device, source program.Source, cfg *config.Config, opts ...Option) (*Context, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	c := &Context{
		device:      device,
		vsync:       cfg.VSync,
		sampleCount: 1,
	}
	if cfg.MSAA {
		c.sampleCount = msaaSampleCount
	}
	if err := c.initialize(source, o.compile, cfg); err != nil {
		c.Terminate(context.Background())
		return nil, err
	}
	info := device.Adapter()
	core.LogInfo("renderer ready on %s (msaa %t, vsync %t)", info.Name, cfg.MSAA, cfg.VSync)
	return c, nil
}

func (c *Context) initialize(source program.Source, compile program.Compiler, cfg *config.Config) error {
	var err error
	if c.ring, err = frame.NewRing(c.device, cfg.FramesInFlight); err != nil {
		return err
	}
	c.stager = staging.NewStager(c.device, cfg.FramesInFlight)
	if c.descriptors, err = descriptor.NewAllocator(c.device, descriptor.SceneCapacity); err != nil {
		return err
	}
	c.programs = program.NewCache(c.device, source, compile)

	if c.setupAllocator, err = c.device.CreateCommandAllocator(); err != nil {
		return fmt.Errorf("failed to create setup allocator: %w", err)
	}
	if c.setupList, err = c.device.CreateCommandList(c.setupAllocator); err != nil {
		return fmt.Errorf("failed to create setup command list: %w", err)
	}
	if c.setupFence, err = c.device.CreateFence(0); err != nil {
		return fmt.Errorf("failed to create setup fence: %w", err)
	}
	c.setupPending = true

	sc := c.device.Swapchain()
	for i := uint32(0); i < sc.BufferCount(); i++ {
		c.backBuffers = append(c.backBuffers, gpu.NewStateTracker(sc.BackBuffer(i), gpu.ResourceStatePresent))
	}
	if err := c.createTargets(); err != nil {
		return err
	}
	return c.createGlobals()
}

func (c *Context) createTargets() error {
	sc := c.device.Swapchain()
	width, height := sc.Extent()
	depth, err := c.device.CreateTexture(gpu.TextureDesc{
		Label:        "depth",
		Width:        width,
		Height:       height,
		MipLevels:    1,
		ArrayLayers:  1,
		SampleCount:  c.sampleCount,
		Format:       depthFormat,
		DepthStencil: true,
		InitialState: gpu.ResourceStateDepthWrite,
	})
	if err != nil {
		err = fmt.Errorf("failed to create depth target: %w", err)
		core.LogError("%s", err)
		return err
	}
	c.depth = depth
	c.targetWidth, c.targetHeight = width, height

	if c.sampleCount == 1 {
		return nil
	}
	msaa, err := c.device.CreateTexture(gpu.TextureDesc{
		Label:        "msaa-color",
		Width:        width,
		Height:       height,
		MipLevels:    1,
		ArrayLayers:  1,
		SampleCount:  c.sampleCount,
		Format:       sc.Format(),
		RenderTarget: true,
		InitialState: gpu.ResourceStateRenderTarget,
	})
	if err != nil {
		err = fmt.Errorf("failed to create msaa target: %w", err)
		core.LogError("%s", err)
		return err
	}
	c.msaa = msaa
	c.msaaState = gpu.NewStateTracker(msaa, gpu.ResourceStateRenderTarget)
	return nil
}

// createGlobals creates the scene constants. Light and fog are bound through
// two consecutive views, the light world position as a root constant buffer.
func (c *Context) createGlobals() error {
	var err error
	if c.lightWorldPosition, err = uniforms.NewDynamic[uniforms.LightWorldPosition](c.stager, "light-world-position"); err != nil {
		return err
	}
	if c.light, err = uniforms.NewDynamic[uniforms.Light](c.stager, "light"); err != nil {
		return err
	}
	if c.fog, err = uniforms.NewDynamic[uniforms.Fog](c.stager, "fog"); err != nil {
		return err
	}
	slot, err := c.descriptors.AllocateCBV(c.light.Buffer())
	if err != nil {
		return err
	}
	if _, err := c.descriptors.AllocateCBV(c.fog.Buffer()); err != nil {
		return err
	}
	c.sceneTable = slot.GPU
	return nil
}

func (c *Context) Device() gpu.Device                 { return c.device }
func (c *Context) Stager() *staging.Stager            { return c.stager }
func (c *Context) Descriptors() *descriptor.Allocator { return c.descriptors }

// UploadList returns the list of the frame being recorded, or the setup list
// outside of a frame.
func (c *Context) UploadList() gpu.CommandList {
	if c.slot != nil {
		return c.slot.List
	}
	if !c.setupPending {
		if err := c.setupAllocator.Reset(); err != nil {
			core.LogError("failed to reset setup allocator: %s", err)
		}
		if err := c.setupList.Reset(c.setupAllocator); err != nil {
			core.LogError("failed to reopen setup list: %s", err)
		}
		c.setupPending = true
	}
	return c.setupList
}

func (c *Context) Globals() models.Globals {
	return models.Globals{
		Table:              c.sceneTable,
		LightWorldPosition: c.lightWorldPosition.Buffer(),
		ColorFormat:        c.device.Swapchain().Format(),
		DepthFormat:        depthFormat,
		SampleCount:        c.sampleCount,
	}
}

// FlushSetup submits the setup uploads and waits for them. Runs by itself
// before the first frame that follows any setup work.
func (c *Context) FlushSetup(ctx context.Context) error {
	if !c.setupPending {
		return nil
	}
	if err := c.setupList.Close(); err != nil {
		return fmt.Errorf("failed to close setup list: %w", err)
	}
	c.setupPending = false
	if err := c.device.Queue().Submit(c.setupList); err != nil {
		err = fmt.Errorf("failed to submit setup list: %w", err)
		core.LogError("%s", err)
		return err
	}
	c.setupValue++
	if err := c.device.Queue().Signal(c.setupFence, c.setupValue); err != nil {
		return fmt.Errorf("failed to signal setup fence: %w", err)
	}
	if err := c.setupFence.Wait(ctx, c.setupValue); err != nil {
		err = fmt.Errorf("failed waiting for setup uploads: %w", err)
		core.LogError("%s", err)
		return err
	}
	// every staging buffer recorded so far belongs to retired work
	if c.slot == nil && c.ring.Fence().Completed() >= c.ring.Signaled() {
		c.stager.Drain()
	}
	return nil
}

func (c *Context) CreateBuffer(label string, data []byte, role staging.Role, stride uint32) (*staging.GPUBuffer, error) {
	return c.stager.UploadStatic(c.UploadList(), label, data, role, stride)
}

func (c *Context) CreateTexture(label string, data staging.TextureData) (*staging.GPUTexture, error) {
	return c.stager.UploadTexture(c.UploadList(), label, data)
}

func (c *Context) CreateProgram(vs, fs string) (*program.Program, error) {
	return c.programs.Get(vs, fs)
}

// CreateModel creates a model the context tracks for the end of frame and
// for Terminate. The caller sets its resources and calls Init.
func (c *Context) CreateModel(desc models.Desc) (*models.Model, error) {
	m, err := models.New(desc)
	if err != nil {
		return nil, err
	}
	c.models = append(c.models, m)
	return m, nil
}

func (c *Context) SetLightWorldPosition(v uniforms.LightWorldPosition) error {
	return c.lightWorldPosition.Set(v)
}

func (c *Context) SetLight(v uniforms.Light) error {
	return c.light.Set(v)
}

func (c *Context) SetFog(v uniforms.Fog) error {
	return c.fog.Set(v)
}

// Frames is the number of frames submitted so far.
func (c *Context) Frames() uint64 {
	return c.frames
}

// BeginFrame waits for the next frame slot, opens its command list, moves
// the render target into place and begins the render pass.
func (c *Context) BeginFrame(ctx context.Context) (gpu.CommandList, error) {
	if c.stopped {
		return nil, fmt.Errorf("%w: renderer terminated", core.ErrNotReady)
	}
	if err := c.FlushSetup(ctx); err != nil {
		return nil, err
	}
	if err := c.resizeTargets(ctx); err != nil {
		return nil, err
	}
	slot, err := c.ring.BeginFrame(ctx)
	if err != nil {
		return nil, err
	}
	c.stager.ReleaseRetired(c.ring.Fence().Completed())
	c.slot = slot
	list := slot.List

	sc := c.device.Swapchain()
	c.back = sc.CurrentIndex()
	width, height := sc.Extent()

	list.SetDescriptorHeap(c.descriptors.Heap())
	list.SetViewport(gpu.Viewport{Width: float32(width), Height: float32(height), MaxDepth: 1})
	list.SetScissor(gpu.Rect{Width: width, Height: height})

	color := c.backBuffers[c.back].Resource().(gpu.Texture)
	if c.msaa != nil {
		color = c.msaa
	} else if err := c.backBuffers[c.back].Transition(list, gpu.ResourceStatePresent, gpu.ResourceStateRenderTarget); err != nil {
		return nil, err
	}
	list.BeginRenderPass(gpu.RenderPassDesc{
		Color:                color,
		Depth:                c.depth,
		ClearColor:           clearColor,
		ClearDepth:           1,
		ClearColorAttachment: true,
	})
	return list, nil
}

// EndFrame ends the render pass, resolves or transitions the back buffer for
// presentation, submits the frame and presents it.
func (c *Context) EndFrame() error {
	if c.slot == nil {
		err := fmt.Errorf("%w: no frame is being recorded", core.ErrNotReady)
		core.LogError("%s", err)
		return err
	}
	list := c.slot.List
	list.EndRenderPass()

	back := c.backBuffers[c.back]
	if c.msaa != nil {
		if err := c.resolve(list, back); err != nil {
			return err
		}
	} else if err := back.Transition(list, gpu.ResourceStateRenderTarget, gpu.ResourceStatePresent); err != nil {
		return err
	}
	for _, m := range c.models {
		m.EndFrame()
	}

	value, err := c.ring.EndFrame()
	c.slot = nil
	if err != nil {
		return err
	}
	if err := c.stager.Retire(value); err != nil {
		return err
	}
	c.frames++

	if err := c.device.Swapchain().Present(c.vsync); err != nil {
		if errors.Is(err, core.ErrSwapchainBooting) {
			core.LogWarn("swapchain out of date, frame %d skipped", c.frames)
			return nil
		}
		err = fmt.Errorf("failed to present frame %d: %w", c.frames, err)
		core.LogError("%s", err)
		return err
	}
	return nil
}

// resizeTargets rebuilds the depth and msaa targets once the swapchain has
// changed size. Frames still in flight may use the old ones.
func (c *Context) resizeTargets(ctx context.Context) error {
	width, height := c.device.Swapchain().Extent()
	if width == c.targetWidth && height == c.targetHeight {
		return nil
	}
	if err := c.ring.Drain(ctx); err != nil {
		return err
	}
	if c.msaa != nil {
		c.msaa.Destroy()
		c.msaa, c.msaaState = nil, nil
	}
	c.depth.Destroy()
	c.depth = nil
	if err := c.createTargets(); err != nil {
		return err
	}
	core.LogInfo("render targets resized to %dx%d", width, height)
	return nil
}

func (c *Context) resolve(list gpu.CommandList, back *gpu.StateTracker) error {
	if err := c.msaaState.Transition(list, gpu.ResourceStateRenderTarget, gpu.ResourceStateResolveSource); err != nil {
		return err
	}
	if err := back.Transition(list, gpu.ResourceStatePresent, gpu.ResourceStateResolveDest); err != nil {
		return err
	}
	list.ResolveTexture(back.Resource().(gpu.Texture), c.msaa)
	if err := back.Transition(list, gpu.ResourceStateResolveDest, gpu.ResourceStatePresent); err != nil {
		return err
	}
	return c.msaaState.Transition(list, gpu.ResourceStateResolveSource, gpu.ResourceStateRenderTarget)
}

// Terminate waits for the last submitted frame, then releases every object
// the context created. The device itself belongs to the caller.
func (c *Context) Terminate(ctx context.Context) error {
	if c.stopped {
		return nil
	}
	c.stopped = true
	var err error
	if c.ring != nil {
		if err = c.ring.Drain(ctx); err != nil {
			core.LogError("failed to drain frames: %s", err)
		}
	}
	if c.setupFence != nil && c.setupFence.Completed() < c.setupValue {
		if werr := c.setupFence.Wait(ctx, c.setupValue); werr != nil && err == nil {
			err = werr
		}
	}

	for _, m := range c.models {
		m.Destroy()
	}
	c.models = nil
	if c.programs != nil {
		c.programs.Destroy()
	}
	if c.lightWorldPosition != nil {
		c.lightWorldPosition.Destroy()
	}
	if c.light != nil {
		c.light.Destroy()
	}
	if c.fog != nil {
		c.fog.Destroy()
	}
	if c.stager != nil {
		c.stager.Drain()
	}
	if c.msaa != nil {
		c.msaa.Destroy()
	}
	if c.depth != nil {
		c.depth.Destroy()
	}
	if c.descriptors != nil {
		c.descriptors.Destroy()
	}
	if c.setupList != nil {
		c.setupList.Destroy()
	}
	if c.setupAllocator != nil {
		c.setupAllocator.Destroy()
	}
	if c.setupFence != nil {
		c.setupFence.Destroy()
	}
	if c.ring != nil {
		c.ring.Destroy()
	}
	core.LogInfo("renderer terminated after %d frames", c.frames)
	return err
}

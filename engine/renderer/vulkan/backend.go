package vulkan

import (
	"fmt"
	"runtime"
	"unsafe"

	"github.com/go-gl/glfw/v3.3/glfw"
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/aquarium/engine/core"
	"github.com/spaghettifunk/aquarium/engine/renderer/gpu"
)

// Window is what the backend needs from the windowing layer.
type Window interface {
	GetRequiredInstanceExtensions() []string
	CreateWindowSurface(instance interface{}, allocCallbacks unsafe.Pointer) (uintptr, error)
	// GetFramebufferSize is the drawable size in pixels.
	GetFramebufferSize() (uint32, uint32)
	PollEvents()
}

type Options struct {
	AppName    string
	Validation bool
	Adapter    gpu.AdapterPreference
	VSync      bool
}

// Backend is the Vulkan implementation of gpu.Device.
type Backend struct {
	window  Window
	context *VulkanContext
	queue   *Queue

	swapchain    *VulkanSwapchain
	renderpasses map[renderpassKey]*VulkanRenderpass
	framebuffers *framebufferCache
}

func New(window Window, opts Options) (*Backend, error) {
	b := &Backend{
		window:       window,
		context:      &VulkanContext{Allocator: nil},
		renderpasses: make(map[renderpassKey]*VulkanRenderpass),
	}
	if err := b.initialize(opts); err != nil {
		b.Destroy()
		return nil, err
	}
	return b, nil
}

func (b *Backend) initialize(opts Options) error {
	procAddr := glfw.GetVulkanGetInstanceProcAddress()
	if procAddr == nil {
		err := fmt.Errorf("GetInstanceProcAddress is nil")
		core.LogError("%s", err)
		return err
	}
	vk.SetGetInstanceProcAddr(procAddr)

	if err := vk.Init(); err != nil {
		core.LogError("failed to initialize vk: %s", err)
		return err
	}

	if err := b.createInstance(opts); err != nil {
		return err
	}

	// Surface
	core.LogDebug("Creating Vulkan surface...")
	surface, err := b.window.CreateWindowSurface(b.context.Instance, nil)
	if err != nil {
		err = fmt.Errorf("vulkan surface creation failed: %w", err)
		core.LogError("%s", err)
		return err
	}
	b.context.Surface = vk.SurfaceFromPointer(surface)
	core.LogDebug("Vulkan surface created.")

	if err := DeviceCreate(b.context, opts.Adapter); err != nil {
		return err
	}
	b.queue = &Queue{backend: b, Handle: b.context.Device.GraphicsQueue}
	b.framebuffers = newFramebufferCache(b.context)

	swapchain, err := SwapchainCreate(b.context, b.queue, b.window, b.framebuffers, opts.VSync)
	if err != nil {
		return err
	}
	b.swapchain = swapchain

	core.LogInfo("Vulkan renderer initialized successfully.")
	return nil
}

func (b *Backend) createInstance(opts Options) error {
	appInfo := &vk.ApplicationInfo{
		SType:              vk.StructureTypeApplicationInfo,
		ApiVersion:         uint32(vk.MakeVersion(1, 0, 0)),
		ApplicationVersion: uint32(vk.MakeVersion(1, 0, 0)),
		PApplicationName:   VulkanSafeString(opts.AppName),
		PEngineName:        VulkanSafeString("Aquarium"),
	}

	createInfo := vk.InstanceCreateInfo{
		SType:            vk.StructureTypeInstanceCreateInfo,
		PApplicationInfo: appInfo,
	}

	// Obtain a list of required extensions
	requiredExtensions := b.window.GetRequiredInstanceExtensions()
	if runtime.GOOS == "darwin" {
		requiredExtensions = append(requiredExtensions,
			"VK_KHR_portability_enumeration",
			"VK_KHR_get_physical_device_properties2",
		)
		// VK_INSTANCE_CREATE_ENUMERATE_PORTABILITY_BIT_KHR
		createInfo.Flags |= 1
	}

	var requiredLayers []string
	if opts.Validation {
		requiredExtensions = append(requiredExtensions, vk.ExtDebugReportExtensionName)
		requiredLayers = []string{"VK_LAYER_KHRONOS_validation"}
		if err := checkLayers(requiredLayers); err != nil {
			return err
		}
	}
	core.LogDebug("Required extensions: %v", requiredExtensions)

	createInfo.EnabledExtensionCount = uint32(len(requiredExtensions))
	createInfo.PpEnabledExtensionNames = VulkanSafeStrings(requiredExtensions)
	createInfo.EnabledLayerCount = uint32(len(requiredLayers))
	createInfo.PpEnabledLayerNames = VulkanSafeStrings(requiredLayers)

	var instance vk.Instance
	if res := vk.CreateInstance(&createInfo, b.context.Allocator, &instance); res != vk.Success {
		return resultError(res, "vkCreateInstance")
	}
	b.context.Instance = instance
	if err := vk.InitInstance(b.context.Instance); err != nil {
		core.LogError("%s", err)
		return err
	}
	core.LogInfo("Vulkan Instance created.")

	// Debugger
	if opts.Validation {
		core.LogDebug("Creating Vulkan debugger...")
		debugCreateInfo := vk.DebugReportCallbackCreateInfo{
			SType:       vk.StructureTypeDebugReportCallbackCreateInfo,
			Flags:       vk.DebugReportFlags(vk.DebugReportErrorBit | vk.DebugReportWarningBit | vk.DebugReportPerformanceWarningBit),
			PfnCallback: dbgCallbackFunc,
		}
		var dbg vk.DebugReportCallback
		if err := vk.Error(vk.CreateDebugReportCallback(b.context.Instance, &debugCreateInfo, nil, &dbg)); err != nil {
			core.LogError("vk.CreateDebugReportCallback failed with %s", err)
			return err
		}
		b.context.debugMessenger = dbg
		core.LogDebug("Vulkan debugger created.")
	}
	return nil
}

// checkLayers makes sure every validation layer asked for is installed.
func checkLayers(required []string) error {
	core.LogInfo("Validation layers enabled. Enumerating...")
	var count uint32
	if res := vk.EnumerateInstanceLayerProperties(&count, nil); res != vk.Success {
		return resultError(res, "vkEnumerateInstanceLayerProperties")
	}
	available := make([]vk.LayerProperties, count)
	if res := vk.EnumerateInstanceLayerProperties(&count, available); res != vk.Success {
		return resultError(res, "vkEnumerateInstanceLayerProperties")
	}
	for _, name := range required {
		found := false
		for j := range available {
			available[j].Deref()
			end := FindFirstZeroInByteArray(available[j].LayerName[:])
			if name == string(available[j].LayerName[:end]) {
				found = true
				break
			}
		}
		if !found {
			err := fmt.Errorf("required validation layer is missing: %s", name)
			core.LogError("%s", err)
			return err
		}
	}
	core.LogInfo("All required validation layers are present.")
	return nil
}

func dbgCallbackFunc(flags vk.DebugReportFlags, objectType vk.DebugReportObjectType, object uint64, location uint64, messageCode int32, pLayerPrefix string, pMessage string, pUserData unsafe.Pointer) vk.Bool32 {
	switch {
	case flags&vk.DebugReportFlags(vk.DebugReportErrorBit) != 0:
		core.LogError("ERROR: [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	case flags&vk.DebugReportFlags(vk.DebugReportWarningBit) != 0:
		core.LogWarn("WARNING: [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	case flags&vk.DebugReportFlags(vk.DebugReportPerformanceWarningBit) != 0:
		core.LogWarn("PERFORMANCE WARNING: [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	default:
		core.LogDebug("[%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	}
	return vk.Bool32(vk.False)
}

// renderpass returns the cached render pass for key, creating it on first use.
func (b *Backend) renderpass(key renderpassKey) (*VulkanRenderpass, error) {
	if rp, ok := b.renderpasses[key]; ok {
		return rp, nil
	}
	rp, err := RenderpassCreate(b.context, key)
	if err != nil {
		return nil, err
	}
	b.renderpasses[key] = rp
	return rp, nil
}

func (b *Backend) Adapter() gpu.AdapterInfo { return b.context.Device.Info }
func (b *Backend) Queue() gpu.Queue         { return b.queue }
func (b *Backend) Swapchain() gpu.Swapchain { return b.swapchain }
func (b *Backend) PollEvents()              { b.window.PollEvents() }

func (b *Backend) CreateBuffer(desc gpu.BufferDesc) (gpu.Buffer, error) {
	return newBuffer(b.context, desc)
}

func (b *Backend) CreateTexture(desc gpu.TextureDesc) (gpu.Texture, error) {
	img, err := ImageCreate(b.context, desc)
	if err != nil {
		return nil, err
	}
	if desc.RenderTarget || desc.DepthStencil {
		img.onDestroy = b.framebuffers.evict
	}
	return img, nil
}

func (b *Backend) CreateCommandAllocator() (gpu.CommandAllocator, error) {
	return NewCommandAllocator(b.context)
}

func (b *Backend) CreateCommandList(allocator gpu.CommandAllocator) (gpu.CommandList, error) {
	return newCommandList(b, allocator)
}

func (b *Backend) CreateFence(initial uint64) (gpu.Fence, error) {
	return NewFence(b.context, initial), nil
}

func (b *Backend) CreateDescriptorHeap(capacity uint32) (gpu.DescriptorHeap, error) {
	return &DescriptorHeap{
		views:   make([]gpu.ViewDesc, capacity),
		written: make([]bool, capacity),
	}, nil
}

func (b *Backend) CreateBindingLayout(desc gpu.BindingLayoutDesc) (gpu.BindingLayout, error) {
	return NewBindingLayout(b.context, desc)
}

func (b *Backend) CreateShaderModule(stage gpu.ShaderStage, code []byte) (gpu.ShaderModule, error) {
	return NewShaderModule(b.context, stage, code)
}

// CreatePipeline builds the pipeline against the clearing render pass of its
// attachment formats. It stays usable inside the loading variant.
func (b *Backend) CreatePipeline(desc gpu.PipelineDesc) (gpu.Pipeline, error) {
	samples := desc.SampleCount
	if samples == 0 {
		samples = 1
	}
	rp, err := b.renderpass(renderpassKey{
		color:   b.context.formatOf(desc.ColorFormat),
		depth:   b.context.formatOf(desc.DepthFormat),
		samples: samples,
		clear:   true,
	})
	if err != nil {
		return nil, err
	}
	return NewGraphicsPipeline(b.context, rp, desc)
}

// Destroy waits for the device and releases everything in reverse creation
// order. Resources created through the device must be destroyed first.
func (b *Backend) Destroy() {
	if b.context.Device != nil && b.context.Device.LogicalDevice != nil {
		vk.DeviceWaitIdle(b.context.Device.LogicalDevice)
		if b.swapchain != nil {
			b.swapchain.SwapchainDestroy()
			b.swapchain = nil
		}
		if b.framebuffers != nil {
			b.framebuffers.destroy()
		}
		for key, rp := range b.renderpasses {
			rp.RenderpassDestroy(b.context)
			delete(b.renderpasses, key)
		}
	}
	DeviceDestroy(b.context)

	if b.context.Surface != vk.NullSurface {
		vk.DestroySurface(b.context.Instance, b.context.Surface, b.context.Allocator)
		b.context.Surface = vk.NullSurface
	}
	if b.context.debugMessenger != vk.NullDebugReportCallback {
		core.LogDebug("Destroying Vulkan debugger...")
		vk.DestroyDebugReportCallback(b.context.Instance, b.context.debugMessenger, b.context.Allocator)
		b.context.debugMessenger = vk.NullDebugReportCallback
	}
	if b.context.Instance != nil {
		core.LogDebug("Destroying Vulkan instance...")
		vk.DestroyInstance(b.context.Instance, b.context.Allocator)
		b.context.Instance = nil
	}
}

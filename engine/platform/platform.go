package platform

import (
	"fmt"
	"runtime"
	"unsafe"

	"github.com/go-gl/glfw/v3.3/glfw"
	"github.com/spaghettifunk/aquarium/engine/core"
)

func init() {
	// GLFW event handling must run on the main OS thread
	runtime.LockOSThread()
}

// Window is what the host loop needs from the windowing layer.
type Window interface {
	PollEvents()
	ShouldClose() bool
	GetFramebufferSize() (uint32, uint32)
	Shutdown() error
}

// Platform is a glfw window without a client API, presented to by Vulkan.
type Platform struct {
	Window *glfw.Window
	events *core.EventBus
	quit   bool
}

func New(events *core.EventBus) *Platform {
	return &Platform{events: events}
}

func (p *Platform) Startup(applicationName string, width, height uint32, fullscreen bool) error {
	if err := glfw.Init(); err != nil {
		err = fmt.Errorf("failed to initialize glfw: %w", err)
		core.LogError("%s", err)
		return err
	}
	if !glfw.VulkanSupported() {
		glfw.Terminate()
		err := fmt.Errorf("glfw reports no Vulkan loader")
		core.LogError("%s", err)
		return err
	}

	glfw.WindowHint(glfw.Visible, glfw.False)
	glfw.WindowHint(glfw.Resizable, glfw.True)
	glfw.WindowHint(glfw.ClientAPI, glfw.NoAPI) // Required for Vulkan.

	var monitor *glfw.Monitor
	if fullscreen {
		monitor = glfw.GetPrimaryMonitor()
		if mode := monitor.GetVideoMode(); mode != nil {
			width, height = uint32(mode.Width), uint32(mode.Height)
		}
	}

	window, err := glfw.CreateWindow(int(width), int(height), applicationName, monitor, nil)
	if err != nil {
		glfw.Terminate()
		err = fmt.Errorf("failed to create window: %w", err)
		core.LogError("%s", err)
		return err
	}
	p.Window = window

	p.Window.SetKeyCallback(p.keyCallback)
	p.Window.SetCloseCallback(p.closeCallback)
	p.Window.SetFramebufferSizeCallback(p.framebufferSizeCallback)
	p.Window.Show()

	core.LogInfo("window %dx%d created (fullscreen %t)", width, height, fullscreen)
	return nil
}

func (p *Platform) Shutdown() error {
	if p.Window != nil {
		p.Window.Destroy()
		p.Window = nil
	}
	glfw.Terminate()
	return nil
}

func (p *Platform) PollEvents() { glfw.PollEvents() }

func (p *Platform) ShouldClose() bool {
	return p.quit || p.Window == nil || p.Window.ShouldClose()
}

func (p *Platform) GetRequiredInstanceExtensions() []string {
	return p.Window.GetRequiredInstanceExtensions()
}

func (p *Platform) CreateWindowSurface(instance interface{}, allocCallbacks unsafe.Pointer) (uintptr, error) {
	return p.Window.CreateWindowSurface(instance, allocCallbacks)
}

func (p *Platform) GetFramebufferSize() (uint32, uint32) {
	w, h := p.Window.GetFramebufferSize()
	return uint32(max(w, 0)), uint32(max(h, 0))
}

func (p *Platform) requestQuit() {
	p.quit = true
	p.events.Fire(core.EVENT_CODE_APPLICATION_QUIT, p, core.EventContext{})
}

func (p *Platform) keyCallback(w *glfw.Window, key glfw.Key, scancode int, action glfw.Action, mods glfw.ModifierKey) {
	if action != glfw.Press {
		return
	}
	p.events.Fire(core.EVENT_CODE_KEY_PRESSED, p, core.EventContext{Key: int(key)})
	if key == glfw.KeyEscape {
		p.requestQuit()
	}
}

func (p *Platform) closeCallback(w *glfw.Window) {
	p.requestQuit()
}

func (p *Platform) framebufferSizeCallback(w *glfw.Window, width, height int) {
	p.events.Fire(core.EVENT_CODE_RESIZED, p, core.EventContext{Width: uint32(width), Height: uint32(height)})
}

// Headless stands in for the window when nothing is presented on screen.
type Headless struct {
	width  uint32
	height uint32
}

func NewHeadless(width, height uint32) *Headless {
	return &Headless{width: width, height: height}
}

func (h *Headless) PollEvents()                          {}
func (h *Headless) ShouldClose() bool                    { return false }
func (h *Headless) GetFramebufferSize() (uint32, uint32) { return h.width, h.height }
func (h *Headless) Shutdown() error                      { return nil }

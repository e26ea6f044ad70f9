package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spaghettifunk/aquarium/engine/assets"
	"github.com/spaghettifunk/aquarium/engine/config"
	"github.com/spaghettifunk/aquarium/engine/core"
	"github.com/spaghettifunk/aquarium/engine/platform"
	"github.com/spaghettifunk/aquarium/engine/renderer"
	"github.com/spaghettifunk/aquarium/engine/renderer/gpu"
	"github.com/spaghettifunk/aquarium/engine/renderer/software"
	"github.com/spaghettifunk/aquarium/engine/renderer/vulkan"
)

type Stage uint8

const (
	// Engine is in an uninitialized state
	EngineStageUninitialized Stage = iota
	// Engine is currently booting up
	EngineStageBooting
	// Engine completed boot process and is ready to be initialized
	EngineStageBootComplete
	// Engine is currently initializing
	EngineStageInitializing
	// Engine initialization is complete
	EngineStageInitialized
	// Engine is currently running
	EngineStageRunning
	// Engine is in the process of shutting down
	EngineStageShuttingDown
)

// Pause between two polls while the window is minimized.
const suspendedPoll = 50 * time.Millisecond

type Engine struct {
	currentStage Stage
	gameInstance *Game
	config       *config.Config
	isRunning    bool
	isSuspended  bool
	events       *core.EventBus
	window       platform.Window
	device       gpu.Device
	renderer     *renderer.Context
	assetManager *assets.AssetManager
	width        uint32
	height       uint32
	clock        *core.Clock
	lastTime     float64
}

func New(g *Game) (*Engine, error) {
	cfg := g.Config
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := core.SetLogLevel(cfg.LogLevel); err != nil {
		core.LogWarn("unknown log level %q, keeping the default: %s", cfg.LogLevel, err)
	}

	am, err := assets.NewAssetManager()
	if err != nil {
		core.LogError("%s", err)
		return nil, err
	}

	e := &Engine{
		currentStage: EngineStageBooting,
		gameInstance: g,
		config:       cfg,
		events:       core.NewEventBus(),
		assetManager: am,
		clock:        core.NewClock(),
		width:        uint32(cfg.WindowWidth),
		height:       uint32(cfg.WindowHeight),
	}
	e.currentStage = EngineStageBootComplete
	return e, nil
}

func (e *Engine) Initialize(ctx context.Context) error {
	if e.currentStage != EngineStageBootComplete {
		return fmt.Errorf("%w: engine initialized twice", core.ErrNotReady)
	}
	e.currentStage = EngineStageInitializing

	// register some events
	e.events.Register(core.EVENT_CODE_APPLICATION_QUIT, e, e.onEvent)
	e.events.Register(core.EVENT_CODE_KEY_PRESSED, e, e.onKey)
	e.events.Register(core.EVENT_CODE_RESIZED, e, e.onResized)

	if err := e.assetManager.Initialize(e.config.AssetPath); err != nil {
		return err
	}
	// tests hand in their own window and device
	if e.device == nil {
		if err := e.createDevice(); err != nil {
			return err
		}
	}

	r, err := renderer.Initialize(e.device, e.assetManager, e.config)
	if err != nil {
		return err
	}
	e.renderer = r

	if e.gameInstance.FnInitialize != nil {
		host := &Host{Config: e.config, Renderer: e.renderer, Assets: e.assetManager}
		if err := e.gameInstance.FnInitialize(ctx, host); err != nil {
			return err
		}
	}

	e.currentStage = EngineStageInitialized
	return nil
}

// createDevice opens the window and the device of the configured backend.
func (e *Engine) createDevice() error {
	switch e.config.Backend {
	case config.BackendSoftware:
		e.window = platform.NewHeadless(e.width, e.height)
		e.device = software.NewDevice(software.Options{
			Width:        e.width,
			Height:       e.height,
			BufferCount:  config.FramesInFlight,
			AutoComplete: true,
		})
		return nil

	case config.BackendVulkan:
		p := platform.New(e.events)
		if err := p.Startup(e.config.Name, e.width, e.height, e.config.Fullscreen); err != nil {
			return err
		}
		e.window = p
		pref, err := gpu.ParseAdapterPreference(e.config.GPU)
		if err != nil {
			return err
		}
		dev, err := vulkan.New(p, vulkan.Options{
			AppName:    e.config.Name,
			Validation: e.config.Validation,
			Adapter:    pref,
			VSync:      e.config.VSync,
		})
		if err != nil {
			return err
		}
		e.device = dev
		return nil
	}
	return fmt.Errorf("%w: backend %q", core.ErrInvalidConfig, e.config.Backend)
}

// Run renders frames until the window closes, ESC is pressed, the test time
// is over or ctx is done.
func (e *Engine) Run(ctx context.Context) error {
	if e.currentStage != EngineStageInitialized {
		return fmt.Errorf("%w: engine is not initialized", core.ErrNotReady)
	}
	e.currentStage = EngineStageRunning
	e.isRunning = true
	e.clock.Start()
	e.lastTime = 0

	for e.isRunning {
		select {
		case <-ctx.Done():
			core.LogInfo("interrupted, shutting down")
			return nil
		default:
		}

		e.window.PollEvents()
		if e.window.ShouldClose() {
			break
		}
		e.drainAssetEvents()

		if e.isSuspended {
			time.Sleep(suspendedPoll)
			continue
		}

		e.clock.Update()
		currentTime := e.clock.Elapsed()
		delta := currentTime - e.lastTime
		if e.config.AutoStop() && currentTime >= float64(e.config.TestTimeSeconds) {
			core.LogInfo("test time of %ds elapsed after %d frames", e.config.TestTimeSeconds, e.renderer.Frames())
			break
		}

		if err := e.frame(ctx, delta); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				core.LogInfo("interrupted while waiting for the GPU, shutting down")
				return nil
			}
			return e.fail(err)
		}

		// Update last time
		e.lastTime = currentTime
	}
	return nil
}

func (e *Engine) frame(ctx context.Context, delta float64) error {
	if e.gameInstance.FnUpdate != nil {
		if err := e.gameInstance.FnUpdate(delta); err != nil {
			return err
		}
	}
	list, err := e.renderer.BeginFrame(ctx)
	if err != nil {
		return err
	}
	if e.gameInstance.FnRender != nil {
		if err := e.gameInstance.FnRender(list); err != nil {
			return err
		}
	}
	return e.renderer.EndFrame()
}

// fail aborts on a lost device. Any other error ends the run.
func (e *Engine) fail(err error) error {
	if errors.Is(err, core.ErrDeviceLost) || errors.Is(err, core.ErrFenceTimeout) {
		core.LogFatal("unrecoverable device error: %s", err)
	}
	return err
}

func (e *Engine) drainAssetEvents() {
	for {
		select {
		case ev, ok := <-e.assetManager.Events():
			if !ok {
				return
			}
			core.LogDebug("asset %s: %s", ev.Op, ev.Name)
		default:
			return
		}
	}
}

// Shutdown waits for the frames in flight, then releases the game, the
// renderer, the device and the window in that order.
func (e *Engine) Shutdown(ctx context.Context) error {
	e.currentStage = EngineStageShuttingDown
	e.isRunning = false

	var errs []error
	if e.renderer != nil {
		if err := e.renderer.Terminate(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if e.gameInstance.FnShutdown != nil {
		if err := e.gameInstance.FnShutdown(); err != nil {
			errs = append(errs, err)
		}
	}
	if e.device != nil {
		e.device.Destroy()
	}
	if err := e.assetManager.Shutdown(); err != nil {
		errs = append(errs, err)
	}
	if e.window != nil {
		if err := e.window.Shutdown(); err != nil {
			errs = append(errs, err)
		}
	}
	e.events.Unregister(core.EVENT_CODE_APPLICATION_QUIT, e)
	e.events.Unregister(core.EVENT_CODE_KEY_PRESSED, e)
	e.events.Unregister(core.EVENT_CODE_RESIZED, e)
	e.currentStage = EngineStageUninitialized
	return errors.Join(errs...)
}

func (e *Engine) Stage() Stage {
	return e.currentStage
}

// GetFramebufferSize returns the width and height (in this order)
// of the application Framebuffer
func (e *Engine) GetFramebufferSize() (uint32, uint32) {
	return e.width, e.height
}

// Events is the bus the window publishes on.
func (e *Engine) Events() *core.EventBus {
	return e.events
}

func (e *Engine) onEvent(code core.SystemEventCode, sender interface{}, data core.EventContext) bool {
	if code == core.EVENT_CODE_APPLICATION_QUIT {
		core.LogInfo("EVENT_CODE_APPLICATION_QUIT received, shutting down.")
		e.isRunning = false
		return true
	}
	return false
}

func (e *Engine) onKey(code core.SystemEventCode, sender interface{}, data core.EventContext) bool {
	if data.Key == core.KEY_ESCAPE {
		// NOTE: Technically firing an event to itself, but there may be other listeners.
		e.events.Fire(core.EVENT_CODE_APPLICATION_QUIT, e, core.EventContext{})
		// Block anything else from processing this.
		return true
	}
	return false
}

func (e *Engine) onResized(code core.SystemEventCode, sender interface{}, data core.EventContext) bool {
	width, height := data.Width, data.Height
	if width == e.width && height == e.height {
		return false
	}
	e.width, e.height = width, height
	core.LogDebug("Window resize: %d, %d", width, height)

	// Handle minimization
	if width == 0 || height == 0 {
		core.LogInfo("Window minimized, suspending application.")
		e.isSuspended = true
		return true
	}
	if e.isSuspended {
		core.LogInfo("Window restored, resuming application.")
		e.isSuspended = false
	}
	return false
}

package engine

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/spaghettifunk/aquarium/engine/config"
	"github.com/spaghettifunk/aquarium/engine/core"
	"github.com/spaghettifunk/aquarium/engine/platform"
	"github.com/spaghettifunk/aquarium/engine/renderer/gpu"
	"github.com/spaghettifunk/aquarium/engine/renderer/software"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func headlessConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Backend = config.BackendSoftware
	cfg.AssetPath = t.TempDir()
	cfg.WindowWidth, cfg.WindowHeight = 64, 48
	return cfg
}

func TestEngineRunsUntilQuit(t *testing.T) {
	var (
		e        *Engine
		updates  int
		renders  int
		shutdown bool
	)
	g := &Game{
		Config: headlessConfig(t),
		FnInitialize: func(ctx context.Context, host *Host) error {
			require.NotNil(t, host.Renderer)
			require.NotNil(t, host.Assets)
			return nil
		},
		FnUpdate: func(float64) error {
			updates++
			return nil
		},
		FnRender: func(list gpu.CommandList) error {
			require.NotNil(t, list)
			renders++
			if renders == 5 {
				e.Events().Fire(core.EVENT_CODE_KEY_PRESSED, t, core.EventContext{Key: core.KEY_ESCAPE})
			}
			return nil
		},
		FnShutdown: func() error {
			shutdown = true
			return nil
		},
	}

	var err error
	e, err = New(g)
	require.NoError(t, err)
	assert.Equal(t, EngineStageBootComplete, e.Stage())

	ctx := context.Background()
	assert.ErrorIs(t, e.Run(ctx), core.ErrNotReady)
	require.NoError(t, e.Initialize(ctx))
	require.NoError(t, e.Run(ctx))

	assert.Equal(t, 5, updates)
	assert.Equal(t, 5, renders)
	assert.Equal(t, uint64(5), e.renderer.Frames())

	require.NoError(t, e.Shutdown(ctx))
	assert.True(t, shutdown)
	assert.Equal(t, EngineStageUninitialized, e.Stage())
}

func TestEngineStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	renders := 0
	g := &Game{
		Config: headlessConfig(t),
		FnRender: func(gpu.CommandList) error {
			renders++
			cancel()
			return nil
		},
	}
	e, err := New(g)
	require.NoError(t, err)
	require.NoError(t, e.Initialize(context.Background()))
	require.NoError(t, e.Run(ctx))
	assert.Equal(t, 1, renders)
	require.NoError(t, e.Shutdown(context.Background()))
}

func TestEngineStopsWhenCancelledDuringFenceWait(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// the GPU finishes whatever is awaited until it freezes; a blocked wait
	// on a frozen GPU cancels the run
	var frozen atomic.Bool
	cfg := headlessConfig(t)
	dev := software.NewDevice(software.Options{
		Width:       uint32(cfg.WindowWidth),
		Height:      uint32(cfg.WindowHeight),
		BufferCount: 3,
		OnBlock: func(f *software.Fence, value uint64) {
			if frozen.Load() {
				cancel()
				return
			}
			f.Complete(value)
		},
	})

	renders := 0
	g := &Game{
		Config: cfg,
		FnRender: func(gpu.CommandList) error {
			renders++
			if renders == 3 {
				frozen.Store(true)
			}
			return nil
		},
	}
	e, err := New(g)
	require.NoError(t, err)
	e.window = platform.NewHeadless(e.width, e.height)
	e.device = dev
	require.NoError(t, e.Initialize(context.Background()))

	require.NoError(t, e.Run(ctx))
	assert.Equal(t, 3, renders)
	assert.Equal(t, uint64(3), e.renderer.Frames())
	assert.ErrorIs(t, ctx.Err(), context.Canceled)

	// shutdown still drains the frames in flight
	frozen.Store(false)
	require.NoError(t, e.Shutdown(context.Background()))
	assert.Equal(t, EngineStageUninitialized, e.Stage())
	assert.GreaterOrEqual(t, dev.Stats().BlockingWaits, 2)
}

func TestEngineSuspendsWhenMinimized(t *testing.T) {
	e, err := New(&Game{Config: headlessConfig(t)})
	require.NoError(t, err)

	e.events.Register(core.EVENT_CODE_RESIZED, e, e.onResized)
	e.events.Fire(core.EVENT_CODE_RESIZED, t, core.EventContext{Width: 0, Height: 0})
	assert.True(t, e.isSuspended)
	e.events.Fire(core.EVENT_CODE_RESIZED, t, core.EventContext{Width: 100, Height: 80})
	assert.False(t, e.isSuspended)
	w, h := e.GetFramebufferSize()
	assert.Equal(t, uint32(100), w)
	assert.Equal(t, uint32(80), h)
}

func TestEngineRejectsInvalidConfig(t *testing.T) {
	cfg := headlessConfig(t)
	cfg.NumFish = -1
	_, err := New(&Game{Config: cfg})
	assert.ErrorIs(t, err, core.ErrInvalidConfig)
}

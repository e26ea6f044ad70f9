package engine

import (
	"context"

	"github.com/spaghettifunk/aquarium/engine/assets"
	"github.com/spaghettifunk/aquarium/engine/config"
	"github.com/spaghettifunk/aquarium/engine/renderer"
	"github.com/spaghettifunk/aquarium/engine/renderer/gpu"
)

// Host is what the engine hands the game once the renderer is up.
type Host struct {
	Config   *config.Config
	Renderer *renderer.Context
	Assets   *assets.AssetManager
}

type Game struct {
	Config       *config.Config
	State        interface{}
	FnInitialize Initialize
	FnUpdate     Update
	FnRender     Render
	FnShutdown   Shutdown
}

type Initialize func(ctx context.Context, host *Host) error
type Update func(deltaTime float64) error
type Render func(list gpu.CommandList) error

// Shutdown runs once the renderer has drained and terminated.
type Shutdown func() error

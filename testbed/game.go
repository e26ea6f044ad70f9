package testbed

import (
	"context"

	"github.com/spaghettifunk/aquarium/engine"
	"github.com/spaghettifunk/aquarium/engine/config"
	"github.com/spaghettifunk/aquarium/engine/core"
	"github.com/spaghettifunk/aquarium/engine/renderer/gpu"
	"github.com/spaghettifunk/aquarium/engine/scene"
)

// AquariumGame plugs the aquarium scene into the engine loop.
type AquariumGame struct {
	*engine.Game
}

type gameState struct {
	aquarium *scene.Aquarium
}

func NewAquariumGame(cfg *config.Config) *AquariumGame {
	g := &AquariumGame{
		Game: &engine.Game{
			Config: cfg,
			State:  &gameState{},
		},
	}

	g.FnInitialize = g.Initialize
	g.FnUpdate = g.Update
	g.FnRender = g.Render
	g.FnShutdown = g.Shutdown

	return g
}

func (g *AquariumGame) state() *gameState {
	return g.State.(*gameState)
}

func (g *AquariumGame) Initialize(ctx context.Context, host *engine.Host) error {
	core.LogInfo("loading the aquarium with %d fish...", host.Config.NumFish)

	a, err := scene.New(host.Renderer, scene.Options{
		NumFish:                  host.Config.NumFish,
		Instanced:                host.Config.InstancedDraws,
		UpdateAndDrawForEachFish: host.Config.UpdateAndDrawForEachFish,
		RecordFPSFrequency:       host.Config.RecordFPSFrequency,
	})
	if err != nil {
		return err
	}
	if err := a.Load(ctx, host.Assets); err != nil {
		return err
	}
	g.state().aquarium = a
	return nil
}

func (g *AquariumGame) Update(deltaTime float64) error {
	g.state().aquarium.Update(deltaTime)
	return nil
}

func (g *AquariumGame) Render(list gpu.CommandList) error {
	return g.state().aquarium.Render(list)
}

func (g *AquariumGame) Shutdown() error {
	a := g.state().aquarium
	if a == nil {
		return nil
	}
	a.PrintRecordedFPS()
	a.Destroy()
	return nil
}

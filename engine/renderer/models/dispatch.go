package models

import (
	"github.com/spaghettifunk/aquarium/engine/renderer/gpu"
	"github.com/spaghettifunk/aquarium/engine/renderer/uniforms"
)

type behavior struct {
	caps    Capabilities
	setup   func(m *Model, h Host) error
	prepare func(m *Model) error
	update  func(m *Model, inst *Instance) error
	draw    func(m *Model, list gpu.CommandList) error
}

var dispatch [kindCount]behavior

func init() {
	dispatch = [kindCount]behavior{
		KindGeneric: {
			caps: Capabilities{
				PerInstanceUniforms: true,
				Batched:             true,
				MaxInstances:        uniforms.MaxBatchedInstances,
			},
			setup:   initGeneric,
			prepare: prepareBatched,
			update:  updateBatched,
			draw:    drawBatched,
		},
		KindFish: {
			caps:    Capabilities{FishPer: true},
			setup:   initFish,
			prepare: prepareFish,
			update:  updateNothing,
			draw:    drawFish,
		},
		KindFishInstanced: {
			caps:    Capabilities{InstancedDraw: true, FishPer: true},
			setup:   initFish,
			prepare: prepareFish,
			update:  updateNothing,
			draw:    drawFishInstanced,
		},
		KindSeaweed: {
			caps: Capabilities{
				PerInstanceUniforms: true,
				Batched:             true,
				MaxInstances:        uniforms.MaxBatchedInstances,
			},
			setup:   initSeaweed,
			prepare: prepareBatched,
			update:  updateBatched,
			draw:    drawBatched,
		},
		KindInner: {
			caps:    Capabilities{PerInstanceUniforms: true},
			setup:   initInner,
			prepare: prepareNothing,
			update:  updateSingle,
			draw:    drawSingle,
		},
		KindOutside: {
			caps:    Capabilities{PerInstanceUniforms: true},
			setup:   initOutside,
			prepare: prepareNothing,
			update:  updateSingle,
			draw:    drawSingle,
		},
	}
}

func prepareNothing(*Model) error { return nil }

func updateNothing(*Model, *Instance) error { return nil }

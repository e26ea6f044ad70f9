package models

import (
	"fmt"
	"strings"

	"github.com/spaghettifunk/aquarium/engine/core"
	"github.com/spaghettifunk/aquarium/engine/renderer/uniforms"
)

type Kind uint8

const (
	KindGeneric Kind = iota
	// Fish drawn with one draw call per fish.
	KindFish
	// Fish drawn with one hardware instanced draw per species.
	KindFishInstanced
	KindSeaweed
	KindInner
	KindOutside
	kindCount
)

func (k Kind) String() string {
	switch k {
	case KindGeneric:
		return "generic"
	case KindFish:
		return "fish"
	case KindFishInstanced:
		return "fish-instanced"
	case KindSeaweed:
		return "seaweed"
	case KindInner:
		return "inner"
	case KindOutside:
		return "outside"
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

func ParseKind(s string) (Kind, error) {
	for k := KindGeneric; k < kindCount; k++ {
		if strings.EqualFold(s, k.String()) {
			return k, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", core.ErrUnknownModel, s)
}

// Capabilities tell the frame loop which calls a model kind expects.
type Capabilities struct {
	// UpdatePerInstanceUniforms must be called for every placement.
	PerInstanceUniforms bool
	// Every instance is covered by a single hardware instanced draw.
	InstancedDraw bool
	// Per-instance uniforms are accumulated on the CPU and drawn together,
	// at most MaxInstances per draw.
	Batched      bool
	MaxInstances int
	// Fish state is written per fish with UpdateFishPerUniforms.
	FishPer bool
}

func (k Kind) Capabilities() Capabilities {
	if k >= kindCount {
		return Capabilities{}
	}
	return dispatch[k].caps
}

type State uint8

const (
	StateUninitialized State = iota
	StateReady
	StatePrepared
	StateDrawn
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateReady:
		return "ready"
	case StatePrepared:
		return "prepared"
	case StateDrawn:
		return "drawn"
	}
	return "unknown"
}

// Instance is the per placement data of one draw.
type Instance struct {
	World uniforms.World
	// Sway phase, read by seaweed only.
	Time float32
}

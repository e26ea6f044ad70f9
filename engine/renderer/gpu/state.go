package gpu

import (
	"fmt"

	"github.com/spaghettifunk/aquarium/engine/core"
)

// StateTracker carries the tagged state of one resource. Every transition is
// checked against the tracked state before the barrier is emitted.
type StateTracker struct {
	resource Resource
	state    ResourceState
}

func NewStateTracker(resource Resource, initial ResourceState) *StateTracker {
	return &StateTracker{resource: resource, state: initial}
}

func (st *StateTracker) State() ResourceState {
	return st.state
}

func (st *StateTracker) Resource() Resource {
	return st.resource
}

// Transition records a barrier from the expected state to the target state.
// It fails without recording anything if the tracked state differs from from.
func (st *StateTracker) Transition(list CommandList, from, to ResourceState) error {
	if st.state != from {
		err := fmt.Errorf("%w: %s is %s, expected %s before moving to %s",
			core.ErrInvalidTransition, st.resource.Label(), st.state, from, to)
		core.LogError("%s", err)
		return err
	}
	if from == to {
		return nil
	}
	list.ResourceBarrier(st.resource, from, to)
	st.state = to
	return nil
}

// TransitionTo moves the resource from wherever it currently is to the target state.
func (st *StateTracker) TransitionTo(list CommandList, to ResourceState) error {
	return st.Transition(list, st.state, to)
}

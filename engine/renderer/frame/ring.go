package frame

import (
	"context"
	"fmt"

	"github.com/spaghettifunk/aquarium/engine/core"
	"github.com/spaghettifunk/aquarium/engine/renderer/gpu"
)

type SlotState uint8

const (
	SlotIdle SlotState = iota
	SlotRecording
	SlotSubmitted
)

func (s SlotState) String() string {
	switch s {
	case SlotIdle:
		return "idle"
	case SlotRecording:
		return "recording"
	case SlotSubmitted:
		return "submitted"
	}
	return "unknown"
}

// Slot is one in-flight frame: a command allocator, the list recorded from
// it and the fence value signaled after its last submission.
type Slot struct {
	Index      uint32
	Allocator  gpu.CommandAllocator
	List       gpu.CommandList
	FenceValue uint64
	state      SlotState
}

func (s *Slot) State() SlotState {
	return s.state
}

// Ring cycles through N frame slots. Before a slot is recorded again, the
// fence value of the slot after it, the frame submitted two frames ago when N
// is 3, must have retired. This bounds the work queued on the device.
type Ring struct {
	queue   gpu.Queue
	fence   gpu.Fence
	slots   []*Slot
	current uint32
	// last value handed to the queue
	signaled uint64
}

func NewRing(device gpu.Device, n int) (*Ring, error) {
	if n <= 0 {
		return nil, fmt.Errorf("%w: frame ring needs at least one slot, got %d", core.ErrInvalidConfig, n)
	}
	fence, err := device.CreateFence(0)
	if err != nil {
		err = fmt.Errorf("failed to create frame fence: %w", err)
		core.LogError("%s", err)
		return nil, err
	}
	r := &Ring{
		queue: device.Queue(),
		fence: fence,
		slots: make([]*Slot, n),
	}
	for i := range r.slots {
		alloc, err := device.CreateCommandAllocator()
		if err != nil {
			err = fmt.Errorf("failed to create command allocator %d: %w", i, err)
			core.LogError("%s", err)
			return nil, err
		}
		list, err := device.CreateCommandList(alloc)
		if err != nil {
			err = fmt.Errorf("failed to create command list %d: %w", i, err)
			core.LogError("%s", err)
			return nil, err
		}
		// Lists are created open. Close them so every frame starts with a reset.
		if err := list.Close(); err != nil {
			return nil, err
		}
		r.slots[i] = &Slot{Index: uint32(i), Allocator: alloc, List: list}
	}
	return r, nil
}

func (r *Ring) Len() int {
	return len(r.slots)
}

// Current returns the slot the next BeginFrame will record into, or the slot
// being recorded.
func (r *Ring) Current() *Slot {
	return r.slots[r.current]
}

func (r *Ring) Slot(i int) *Slot {
	return r.slots[i]
}

func (r *Ring) Fence() gpu.Fence {
	return r.fence
}

// Signaled is the last fence value submitted to the queue.
func (r *Ring) Signaled() uint64 {
	return r.signaled
}

// BeginFrame waits for the fence value of slot (current+1) mod N, then resets
// the current slot's allocator and command list for recording.
func (r *Ring) BeginFrame(ctx context.Context) (*Slot, error) {
	slot := r.slots[r.current]
	if slot.state == SlotRecording {
		err := fmt.Errorf("frame slot %d is already recording", slot.Index)
		core.LogError("%s", err)
		return nil, err
	}

	guard := r.slots[(r.current+1)%uint32(len(r.slots))]
	if err := r.wait(ctx, guard.FenceValue); err != nil {
		return nil, err
	}
	if slot.FenceValue > r.fence.Completed() {
		// Only reachable with a single slot, where the guard is the slot itself.
		if err := r.wait(ctx, slot.FenceValue); err != nil {
			return nil, err
		}
	}
	r.retire()

	if err := slot.Allocator.Reset(); err != nil {
		err = fmt.Errorf("failed to reset allocator of slot %d: %w", slot.Index, err)
		core.LogError("%s", err)
		return nil, err
	}
	if err := slot.List.Reset(slot.Allocator); err != nil {
		err = fmt.Errorf("failed to reset command list of slot %d: %w", slot.Index, err)
		core.LogError("%s", err)
		return nil, err
	}
	slot.state = SlotRecording
	return slot, nil
}

// EndFrame closes and submits the current slot, signals the next fence value
// and advances to the next slot. It returns the signaled value.
func (r *Ring) EndFrame() (uint64, error) {
	slot := r.slots[r.current]
	if slot.state != SlotRecording {
		err := fmt.Errorf("%w: frame slot %d is %s, not recording", core.ErrNotReady, slot.Index, slot.state)
		core.LogError("%s", err)
		return 0, err
	}
	if err := slot.List.Close(); err != nil {
		err = fmt.Errorf("failed to close command list of slot %d: %w", slot.Index, err)
		core.LogError("%s", err)
		return 0, err
	}
	if err := r.queue.Submit(slot.List); err != nil {
		err = fmt.Errorf("failed to submit slot %d: %w", slot.Index, err)
		core.LogError("%s", err)
		return 0, err
	}
	value := r.signaled + 1
	if err := r.queue.Signal(r.fence, value); err != nil {
		err = fmt.Errorf("failed to signal fence value %d: %w", value, err)
		core.LogError("%s", err)
		return 0, err
	}
	r.signaled = value
	slot.FenceValue = value
	slot.state = SlotSubmitted
	r.current = (r.current + 1) % uint32(len(r.slots))
	return value, nil
}

// Drain waits for the fence value of the slot preceding the current index,
// the most recent submission, so every slot is retired afterwards.
func (r *Ring) Drain(ctx context.Context) error {
	n := uint32(len(r.slots))
	last := r.slots[(r.current+n-1)%n]
	if err := r.wait(ctx, last.FenceValue); err != nil {
		return err
	}
	r.retire()
	return nil
}

// Destroy releases the per-slot objects. Drain must have returned first.
func (r *Ring) Destroy() {
	for _, s := range r.slots {
		s.List.Destroy()
		s.Allocator.Destroy()
	}
	r.fence.Destroy()
}

func (r *Ring) wait(ctx context.Context, value uint64) error {
	if value == 0 || r.fence.Completed() >= value {
		return nil
	}
	if err := r.fence.Wait(ctx, value); err != nil {
		err = fmt.Errorf("failed waiting for fence value %d: %w", value, err)
		core.LogError("%s", err)
		return err
	}
	return nil
}

func (r *Ring) retire() {
	completed := r.fence.Completed()
	for _, s := range r.slots {
		if s.state == SlotSubmitted && s.FenceValue <= completed {
			s.state = SlotIdle
		}
	}
}

package software

import (
	"context"
	"fmt"
	"sync"

	"github.com/spaghettifunk/aquarium/engine/core"
	"github.com/spaghettifunk/aquarium/engine/renderer/gpu"
)

type Queue struct {
	device  *Device
	pending []*CommandList
}

// Submit runs every command of the given lists in order.
func (q *Queue) Submit(lists ...gpu.CommandList) error {
	d := q.device
	d.mu.Lock()
	defer d.mu.Unlock()

	d.stats.Submits++
	for _, l := range lists {
		cl, ok := l.(*CommandList)
		if !ok {
			return fmt.Errorf("command list was not created by the software device")
		}
		if cl.recording {
			core.LogError("%s", ErrListNotClosed)
			return ErrListNotClosed
		}
		for _, c := range cl.commands {
			if err := c(d); err != nil {
				core.LogError("%s", err)
				return err
			}
		}
		cl.pending = true
		q.pending = append(q.pending, cl)
	}
	return nil
}

func (q *Queue) Signal(fence gpu.Fence, value uint64) error {
	f, ok := fence.(*Fence)
	if !ok {
		return fmt.Errorf("fence was not created by the software device")
	}
	d := q.device
	d.mu.Lock()
	d.stats.Signals++
	for _, cl := range q.pending {
		cl.pending = false
		cl.allocator.fence = f
		cl.allocator.fenceValue = value
	}
	q.pending = nil
	d.mu.Unlock()

	f.mu.Lock()
	if value > f.signaled {
		f.signaled = value
	}
	f.mu.Unlock()

	if d.opts.AutoComplete {
		f.Complete(value)
	}
	f.trackOutstanding()
	return nil
}

type Fence struct {
	device *Device

	mu        sync.Mutex
	completed uint64
	signaled  uint64
	changed   chan struct{}
	waits     []uint64
	onBlock   func(f *Fence, value uint64)
}

func (f *Fence) Completed() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.completed
}

// Signaled returns the highest value the queue has been asked to signal.
func (f *Fence) Signaled() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.signaled
}

// Outstanding is the number of signaled values the device has not reached yet.
func (f *Fence) Outstanding() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.signaled - f.completed
}

// OnBlock installs a hook invoked whenever a Wait has to block. Tests use it
// to play the part of the GPU finishing work.
func (f *Fence) OnBlock(hook func(f *Fence, value uint64)) {
	f.mu.Lock()
	f.onBlock = hook
	f.mu.Unlock()
}

// BlockingWaits returns the values of every Wait call that had to block.
func (f *Fence) BlockingWaits() []uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]uint64(nil), f.waits...)
}

// Complete moves the completed value forward, as the GPU would.
func (f *Fence) Complete(value uint64) {
	f.mu.Lock()
	if value > f.completed {
		f.completed = value
	}
	f.mu.Unlock()
	f.notify()
}

func (f *Fence) notify() {
	f.mu.Lock()
	close(f.changed)
	f.changed = make(chan struct{})
	f.mu.Unlock()
}

func (f *Fence) trackOutstanding() {
	out := f.Outstanding()
	d := f.device
	d.mu.Lock()
	if out > d.stats.MaxOutstandingWork {
		d.stats.MaxOutstandingWork = out
	}
	d.mu.Unlock()
}

func (f *Fence) Wait(ctx context.Context, value uint64) error {
	f.mu.Lock()
	if f.completed >= value {
		f.mu.Unlock()
		return nil
	}
	f.waits = append(f.waits, value)
	hook := f.onBlock
	f.mu.Unlock()

	d := f.device
	d.mu.Lock()
	d.stats.BlockingWaits++
	d.mu.Unlock()

	if hook != nil {
		hook(f, value)
	}

	for {
		if d.isLost() {
			err := fmt.Errorf("%w: waiting for fence value %d", core.ErrDeviceLost, value)
			core.LogError("%s", err)
			return err
		}
		f.mu.Lock()
		if f.completed >= value {
			f.mu.Unlock()
			return nil
		}
		changed := f.changed
		f.mu.Unlock()

		select {
		case <-changed:
		case <-ctx.Done():
			return fmt.Errorf("wait for fence value %d stopped: %w", value, ctx.Err())
		}
	}
}

func (f *Fence) Destroy() {}

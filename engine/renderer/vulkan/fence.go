package vulkan

import (
	"context"
	"fmt"
	"sync"
	"time"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/aquarium/engine/core"
)

// waitSlice bounds a single vkWaitForFences call so a cancelled context is
// noticed while the device is still busy.
const waitSlice = 5 * time.Millisecond

type pendingSignal struct {
	value  uint64
	handle vk.Fence
}

// VulkanFence is a monotonic counter built from binary fences: every Signal
// submits a fresh VkFence tagged with the value it stands for. Completed
// values are learned by polling the oldest outstanding fences in order.
type VulkanFence struct {
	context *VulkanContext

	mu        sync.Mutex
	completed uint64
	pending   []pendingSignal
	free      []vk.Fence
}

func NewFence(context *VulkanContext, initial uint64) *VulkanFence {
	return &VulkanFence{context: context, completed: initial}
}

// arm returns an unsignaled VkFence that stands for value.
func (vf *VulkanFence) arm(value uint64) (vk.Fence, error) {
	vf.mu.Lock()
	defer vf.mu.Unlock()

	var handle vk.Fence
	device := vf.context.Device.LogicalDevice
	if n := len(vf.free); n > 0 {
		handle = vf.free[n-1]
		vf.free = vf.free[:n-1]
		if res := vk.ResetFences(device, 1, []vk.Fence{handle}); res != vk.Success {
			return vk.NullFence, resultError(res, "vkResetFences")
		}
	} else {
		fenceCreateInfo := vk.FenceCreateInfo{
			SType: vk.StructureTypeFenceCreateInfo,
		}
		if res := vk.CreateFence(device, &fenceCreateInfo, vf.context.Allocator, &handle); res != vk.Success {
			return vk.NullFence, resultError(res, "vkCreateFence")
		}
	}
	vf.pending = append(vf.pending, pendingSignal{value: value, handle: handle})
	return handle, nil
}

// poll retires every outstanding signal the device has reached. It stops at
// the first one still running since signals complete in submission order.
func (vf *VulkanFence) poll() error {
	device := vf.context.Device.LogicalDevice
	for len(vf.pending) > 0 {
		head := vf.pending[0]
		switch res := vk.GetFenceStatus(device, head.handle); res {
		case vk.Success:
			if head.value > vf.completed {
				vf.completed = head.value
			}
			vf.free = append(vf.free, head.handle)
			vf.pending = vf.pending[1:]
		case vk.NotReady:
			return nil
		default:
			return resultError(res, "vkGetFenceStatus")
		}
	}
	return nil
}

func (vf *VulkanFence) Completed() uint64 {
	vf.mu.Lock()
	defer vf.mu.Unlock()
	if err := vf.poll(); err != nil {
		core.LogWarn("fence poll: %s", err)
	}
	return vf.completed
}

func (vf *VulkanFence) Wait(ctx context.Context, value uint64) error {
	device := vf.context.Device.LogicalDevice
	for {
		vf.mu.Lock()
		if err := vf.poll(); err != nil {
			vf.mu.Unlock()
			return err
		}
		if vf.completed >= value {
			vf.mu.Unlock()
			return nil
		}
		if len(vf.pending) == 0 || vf.pending[len(vf.pending)-1].value < value {
			vf.mu.Unlock()
			err := fmt.Errorf("%w: value %d was never signaled", core.ErrFenceTimeout, value)
			core.LogError("%s", err)
			return err
		}
		head := vf.pending[0].handle
		vf.mu.Unlock()

		switch res := vk.WaitForFences(device, 1, []vk.Fence{head}, vk.True, uint64(waitSlice.Nanoseconds())); res {
		case vk.Success, vk.Timeout:
		default:
			return resultError(res, "vkWaitForFences")
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("wait for fence value %d stopped: %w", value, ctx.Err())
		default:
		}
	}
}

func (vf *VulkanFence) Destroy() {
	vf.mu.Lock()
	defer vf.mu.Unlock()
	device := vf.context.Device.LogicalDevice
	for _, p := range vf.pending {
		vk.DestroyFence(device, p.handle, vf.context.Allocator)
	}
	for _, f := range vf.free {
		vk.DestroyFence(device, f, vf.context.Allocator)
	}
	vf.pending = nil
	vf.free = nil
}

// disarm drops a signal whose submission failed.
func (vf *VulkanFence) disarm(handle vk.Fence) {
	vf.mu.Lock()
	defer vf.mu.Unlock()
	for i, p := range vf.pending {
		if p.handle == handle {
			vf.pending = append(vf.pending[:i], vf.pending[i+1:]...)
			break
		}
	}
	vk.DestroyFence(vf.context.Device.LogicalDevice, handle, vf.context.Allocator)
}

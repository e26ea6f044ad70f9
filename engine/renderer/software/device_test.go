package software

import (
	"context"
	"testing"
	"time"

	"github.com/spaghettifunk/aquarium/engine/core"
	"github.com/spaghettifunk/aquarium/engine/renderer/gpu"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newList(t *testing.T, d *Device) (*CommandAllocator, *CommandList) {
	t.Helper()
	alloc, err := d.CreateCommandAllocator()
	require.NoError(t, err)
	list, err := d.CreateCommandList(alloc)
	require.NoError(t, err)
	return alloc.(*CommandAllocator), list.(*CommandList)
}

func TestDevice_CopyThroughUploadHeap(t *testing.T) {
	d := NewDevice(Options{AutoComplete: true})

	src, err := d.CreateBuffer(gpu.BufferDesc{Label: "src", Size: 4, Heap: gpu.HeapTypeUpload, InitialState: gpu.ResourceStateGenericRead})
	require.NoError(t, err)
	dst, err := d.CreateBuffer(gpu.BufferDesc{Label: "dst", Size: 4, Heap: gpu.HeapTypeDefault, InitialState: gpu.ResourceStateCommon})
	require.NoError(t, err)

	mapped, err := src.Map()
	require.NoError(t, err)
	copy(mapped, []byte{1, 2, 3, 4})

	_, err = dst.Map()
	assert.ErrorIs(t, err, ErrNotMappable)

	_, list := newList(t, d)
	list.ResourceBarrier(dst, gpu.ResourceStateCommon, gpu.ResourceStateCopyDest)
	list.CopyBuffer(dst, src, 4)
	list.ResourceBarrier(dst, gpu.ResourceStateCopyDest, gpu.ResourceStateVertexAndConstantBuffer)

	assert.ErrorIs(t, d.Queue().Submit(list), ErrListNotClosed)
	require.NoError(t, list.Close())
	require.NoError(t, d.Queue().Submit(list))

	got, err := d.ReadBuffer(dst)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3, 4}, got)
	assert.Equal(t, gpu.ResourceStateVertexAndConstantBuffer, d.ResourceState(dst))

	stats := d.Stats()
	assert.Equal(t, 2, stats.Barriers)
	assert.Equal(t, 1, stats.Copies)
	assert.Zero(t, stats.StateMismatches)
}

func TestDevice_BarrierMismatchIsCounted(t *testing.T) {
	d := NewDevice(Options{AutoComplete: true})
	buf, err := d.CreateBuffer(gpu.BufferDesc{Label: "b", Size: 16, InitialState: gpu.ResourceStateCommon})
	require.NoError(t, err)

	_, list := newList(t, d)
	list.ResourceBarrier(buf, gpu.ResourceStateCopyDest, gpu.ResourceStateGenericRead)
	require.NoError(t, list.Close())
	require.NoError(t, d.Queue().Submit(list))

	assert.Equal(t, 1, d.Stats().StateMismatches)
}

func TestDevice_AllocatorResetWhileInFlight(t *testing.T) {
	d := NewDevice(Options{})
	fence, err := d.CreateFence(0)
	require.NoError(t, err)
	alloc, list := newList(t, d)

	require.NoError(t, list.Close())
	require.NoError(t, d.Queue().Submit(list))
	require.NoError(t, d.Queue().Signal(fence, 1))

	assert.ErrorIs(t, alloc.Reset(), ErrAllocatorInUse)

	fence.(*Fence).Complete(1)
	assert.NoError(t, alloc.Reset())
}

func TestFence_WaitBlocksUntilCompleted(t *testing.T) {
	d := NewDevice(Options{})
	f, err := d.CreateFence(0)
	require.NoError(t, err)
	fence := f.(*Fence)
	require.NoError(t, d.Queue().Signal(fence, 1))
	assert.Equal(t, uint64(1), fence.Outstanding())

	fence.OnBlock(func(f *Fence, value uint64) {
		go func() {
			time.Sleep(5 * time.Millisecond)
			f.Complete(value)
		}()
	})

	require.NoError(t, fence.Wait(context.Background(), 1))
	assert.Equal(t, []uint64{1}, fence.BlockingWaits())

	// already reached, does not block again
	require.NoError(t, fence.Wait(context.Background(), 1))
	assert.Len(t, fence.BlockingWaits(), 1)
	assert.Equal(t, 1, d.Stats().BlockingWaits)
}

func TestFence_WaitStopsWithContext(t *testing.T) {
	d := NewDevice(Options{})
	f, err := d.CreateFence(0)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err = f.Wait(ctx, 5)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.NotErrorIs(t, err, core.ErrFenceTimeout)

	ctx, cancel = context.WithCancel(context.Background())
	f.(*Fence).OnBlock(func(*Fence, uint64) { cancel() })
	err = f.Wait(ctx, 5)
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, core.ErrFenceTimeout)
}

func TestDevice_OnBlockAppliesToEveryFence(t *testing.T) {
	var blocked []uint64
	d := NewDevice(Options{OnBlock: func(f *Fence, value uint64) {
		blocked = append(blocked, value)
		f.Complete(value)
	}})
	for i := 0; i < 2; i++ {
		f, err := d.CreateFence(0)
		require.NoError(t, err)
		require.NoError(t, f.Wait(context.Background(), 1))
	}
	assert.Equal(t, []uint64{1, 1}, blocked)
}

func TestFence_DeviceLost(t *testing.T) {
	d := NewDevice(Options{})
	f, err := d.CreateFence(0)
	require.NoError(t, err)

	f.(*Fence).OnBlock(func(*Fence, uint64) { d.Lose() })
	assert.ErrorIs(t, f.Wait(context.Background(), 1), core.ErrDeviceLost)
}

func TestSwapchain_PresentRotatesBackBuffers(t *testing.T) {
	d := NewDevice(Options{Width: 8, Height: 8, BufferCount: 3})
	sc := d.Swapchain()
	assert.Equal(t, uint32(3), sc.BufferCount())

	for i := uint32(0); i < 4; i++ {
		assert.Equal(t, i%3, sc.CurrentIndex())
		require.NoError(t, sc.Present(true))
	}
	assert.Equal(t, 4, d.Stats().Presents)
}

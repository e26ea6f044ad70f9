package frame

import (
	"context"
	"testing"

	"github.com/spaghettifunk/aquarium/engine/core"
	"github.com/spaghettifunk/aquarium/engine/renderer/software"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// completeOnBlock makes the software GPU finish exactly the awaited value
// whenever the ring has to block.
func completeOnBlock(r *Ring) *software.Fence {
	fence := r.Fence().(*software.Fence)
	fence.OnBlock(func(f *software.Fence, value uint64) {
		f.Complete(value)
	})
	return fence
}

func TestRing_WaitsOnTheSlotAfterCurrent(t *testing.T) {
	dev := software.NewDevice(software.Options{})
	ring, err := NewRing(dev, 3)
	require.NoError(t, err)
	fence := completeOnBlock(ring)

	ctx := context.Background()
	for k := 0; k < 10; k++ {
		waitsBefore := len(fence.BlockingWaits())
		slot, err := ring.BeginFrame(ctx)
		require.NoError(t, err)
		assert.Equal(t, uint32(k%3), slot.Index)
		assert.Equal(t, SlotRecording, slot.State())

		waits := fence.BlockingWaits()
		if k < 2 {
			assert.Len(t, waits, waitsBefore, "frame %d has nothing two generations back", k)
		} else {
			require.Len(t, waits, waitsBefore+1, "frame %d must wait", k)
			// slot (k+1)%3 last ran frame k-2, which signaled value k-1
			assert.Equal(t, uint64(k-1), waits[len(waits)-1])
		}

		value, err := ring.EndFrame()
		require.NoError(t, err)
		assert.Equal(t, uint64(k+1), value)
		assert.Equal(t, SlotSubmitted, slot.State())
	}
	assert.Equal(t, []uint64{1, 2, 3, 4, 5, 6, 7, 8}, fence.BlockingWaits())
}

func TestRing_TenFramesBoundedOutstandingWork(t *testing.T) {
	dev := software.NewDevice(software.Options{})
	ring, err := NewRing(dev, 3)
	require.NoError(t, err)
	fence := completeOnBlock(ring)

	ctx := context.Background()
	for k := 0; k < 10; k++ {
		_, err := ring.BeginFrame(ctx)
		require.NoError(t, err)
		assert.LessOrEqual(t, fence.Outstanding(), uint64(2))
		_, err = ring.EndFrame()
		require.NoError(t, err)
		assert.LessOrEqual(t, fence.Outstanding(), uint64(2))
	}

	stats := dev.Stats()
	assert.Equal(t, 10, stats.Submits)
	assert.Equal(t, 10, stats.Signals)
	assert.LessOrEqual(t, stats.MaxOutstandingWork, uint64(2))
}

func TestRing_ImmediateDevice(t *testing.T) {
	dev := software.NewDevice(software.Options{AutoComplete: true})
	ring, err := NewRing(dev, 3)
	require.NoError(t, err)

	ctx := context.Background()
	for k := 0; k < 10; k++ {
		_, err := ring.BeginFrame(ctx)
		require.NoError(t, err)
		_, err = ring.EndFrame()
		require.NoError(t, err)
	}
	stats := dev.Stats()
	assert.Equal(t, 10, stats.Submits)
	assert.Zero(t, stats.BlockingWaits)
	assert.Zero(t, stats.MaxOutstandingWork)
}

func TestRing_DrainWaitsForLastSubmission(t *testing.T) {
	dev := software.NewDevice(software.Options{})
	ring, err := NewRing(dev, 3)
	require.NoError(t, err)
	fence := completeOnBlock(ring)

	ctx := context.Background()
	for k := 0; k < 4; k++ {
		_, err := ring.BeginFrame(ctx)
		require.NoError(t, err)
		_, err = ring.EndFrame()
		require.NoError(t, err)
	}
	require.NoError(t, ring.Drain(ctx))

	waits := fence.BlockingWaits()
	assert.Equal(t, uint64(4), waits[len(waits)-1])
	for i := 0; i < ring.Len(); i++ {
		assert.Equal(t, SlotIdle, ring.Slot(i).State())
	}
	assert.Zero(t, fence.Outstanding())
}

func TestRing_EndFrameWithoutBegin(t *testing.T) {
	ring, err := NewRing(software.NewDevice(software.Options{}), 3)
	require.NoError(t, err)

	_, err = ring.EndFrame()
	assert.ErrorIs(t, err, core.ErrNotReady)
}

func TestRing_BeginFrameTwice(t *testing.T) {
	ring, err := NewRing(software.NewDevice(software.Options{}), 3)
	require.NoError(t, err)

	_, err = ring.BeginFrame(context.Background())
	require.NoError(t, err)
	_, err = ring.BeginFrame(context.Background())
	assert.Error(t, err)
}

func TestRing_DeviceLostIsReported(t *testing.T) {
	dev := software.NewDevice(software.Options{})
	ring, err := NewRing(dev, 3)
	require.NoError(t, err)
	ring.Fence().(*software.Fence).OnBlock(func(*software.Fence, uint64) { dev.Lose() })

	ctx := context.Background()
	for k := 0; k < 2; k++ {
		_, err := ring.BeginFrame(ctx)
		require.NoError(t, err)
		_, err = ring.EndFrame()
		require.NoError(t, err)
	}
	_, err = ring.BeginFrame(ctx)
	assert.ErrorIs(t, err, core.ErrDeviceLost)
}

func TestNewRing_RejectsEmptyRing(t *testing.T) {
	_, err := NewRing(software.NewDevice(software.Options{}), 0)
	assert.ErrorIs(t, err, core.ErrInvalidConfig)
}

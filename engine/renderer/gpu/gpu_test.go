package gpu_test

import (
	"testing"

	"github.com/spaghettifunk/aquarium/engine/core"
	"github.com/spaghettifunk/aquarium/engine/renderer/gpu"
	"github.com/spaghettifunk/aquarium/engine/renderer/software"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSelectAdapter(t *testing.T) {
	adapters := []gpu.AdapterInfo{
		{Name: "warp", Type: gpu.AdapterTypeSoftware},
		{Name: "intel", VendorID: gpu.VendorIntel, Type: gpu.AdapterTypeIntegrated},
		{Name: "amd", VendorID: gpu.VendorAMD, Type: gpu.AdapterTypeDiscrete},
	}

	idx, err := gpu.SelectAdapter(adapters, gpu.AdapterPreferenceDefault)
	require.NoError(t, err)
	assert.Equal(t, 1, idx, "software adapters are skipped")

	idx, err = gpu.SelectAdapter(adapters, gpu.AdapterPreferenceDiscrete)
	require.NoError(t, err)
	assert.Equal(t, 2, idx)

	idx, err = gpu.SelectAdapter(adapters, gpu.AdapterPreferenceIntegrated)
	require.NoError(t, err)
	assert.Equal(t, 1, idx)

	_, err = gpu.SelectAdapter(adapters[:1], gpu.AdapterPreferenceDefault)
	assert.Error(t, err)
}

func TestParseAdapterPreference(t *testing.T) {
	pref, err := gpu.ParseAdapterPreference("Discrete")
	require.NoError(t, err)
	assert.Equal(t, gpu.AdapterPreferenceDiscrete, pref)

	_, err = gpu.ParseAdapterPreference("tpu")
	assert.ErrorIs(t, err, core.ErrInvalidConfig)
}

func TestCalcConstantBufferByteSize(t *testing.T) {
	assert.Equal(t, uint64(256), gpu.CalcConstantBufferByteSize(1))
	assert.Equal(t, uint64(256), gpu.CalcConstantBufferByteSize(256))
	assert.Equal(t, uint64(512), gpu.CalcConstantBufferByteSize(300))
	assert.Equal(t, uint64(0), gpu.CalcConstantBufferByteSize(0))
	assert.Equal(t, uint64(512), gpu.CalcConstantBufferByteSize(257))
}

func TestStateTracker_Transition(t *testing.T) {
	d := software.NewDevice(software.Options{AutoComplete: true})
	buf, err := d.CreateBuffer(gpu.BufferDesc{Label: "vb", Size: 64, InitialState: gpu.ResourceStateCommon})
	require.NoError(t, err)
	alloc, err := d.CreateCommandAllocator()
	require.NoError(t, err)
	list, err := d.CreateCommandList(alloc)
	require.NoError(t, err)

	tracker := gpu.NewStateTracker(buf, gpu.ResourceStateCommon)
	require.NoError(t, tracker.Transition(list, gpu.ResourceStateCommon, gpu.ResourceStateCopyDest))
	assert.Equal(t, gpu.ResourceStateCopyDest, tracker.State())

	err = tracker.Transition(list, gpu.ResourceStateCommon, gpu.ResourceStateGenericRead)
	assert.ErrorIs(t, err, core.ErrInvalidTransition)
	assert.Equal(t, gpu.ResourceStateCopyDest, tracker.State(), "a rejected transition leaves the state alone")

	require.NoError(t, tracker.TransitionTo(list, gpu.ResourceStateVertexAndConstantBuffer))
	require.NoError(t, list.Close())
	require.NoError(t, d.Queue().Submit(list))

	assert.Equal(t, 2, d.Stats().Barriers)
	assert.Zero(t, d.Stats().StateMismatches)
	assert.Equal(t, gpu.ResourceStateVertexAndConstantBuffer, d.ResourceState(buf))
}

func TestResourceState_String(t *testing.T) {
	assert.Equal(t, "COPY_DEST", gpu.ResourceStateCopyDest.String())
	assert.Equal(t, "ResourceState(99)", gpu.ResourceState(99).String())
}

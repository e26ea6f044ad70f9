package uniforms

import (
	"testing"
	"unsafe"

	"github.com/spaghettifunk/aquarium/engine/core"
	"github.com/spaghettifunk/aquarium/engine/renderer/gpu"
	"github.com/spaghettifunk/aquarium/engine/renderer/software"
	"github.com/spaghettifunk/aquarium/engine/renderer/staging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLayoutSizes(t *testing.T) {
	assert.Equal(t, uintptr(144), unsafe.Sizeof(LightWorldPosition{}))
	assert.Equal(t, uintptr(48), unsafe.Sizeof(Light{}))
	assert.Equal(t, uintptr(32), unsafe.Sizeof(Fog{}))
	assert.Equal(t, uintptr(192), unsafe.Sizeof(World{}))
	assert.Equal(t, uintptr(32), unsafe.Sizeof(FishPer{}))
	assert.Equal(t, uintptr(16), unsafe.Sizeof(SeaweedPer{}))
	assert.Equal(t, uintptr(16), unsafe.Sizeof(Inner{}))
	assert.Equal(t, uintptr(12), unsafe.Offsetof(FishPer{}.Scale))
	assert.Equal(t, uintptr(28), unsafe.Offsetof(FishPer{}.Time))
}

func TestArray_Cap(t *testing.T) {
	_, err := NewArray[SeaweedPer](21, MaxBatchedInstances)
	assert.ErrorIs(t, err, core.ErrInstanceCapExceeded)

	arr, err := NewArray[SeaweedPer](MaxBatchedInstances, MaxBatchedInstances)
	require.NoError(t, err)
	for i := 0; i < MaxBatchedInstances; i++ {
		require.NoError(t, arr.Append(SeaweedPer{Time: float32(i)}))
	}
	assert.ErrorIs(t, arr.Append(SeaweedPer{}), core.ErrInstanceCapExceeded)
	assert.Equal(t, MaxBatchedInstances, arr.Len())

	arr.Reset()
	assert.Zero(t, arr.Len())
	require.NoError(t, arr.Append(SeaweedPer{Time: 7}))
	assert.Equal(t, float32(7), arr.At(0).Time)
}

func TestArray_Set(t *testing.T) {
	arr, err := NewArray[FishPer](4, 0)
	require.NoError(t, err)
	require.NoError(t, arr.Set(2, FishPer{Scale: 2}))
	assert.Equal(t, 3, arr.Len())
	assert.ErrorIs(t, arr.Set(4, FishPer{}), core.ErrInstanceCapExceeded)
	arr.Ptr(0).Time = 1
	assert.Equal(t, float32(1), arr.At(0).Time)
	assert.Len(t, arr.Bytes(), 4*32)
}

func TestDynamic_Set(t *testing.T) {
	dev := software.NewDevice(software.Options{AutoComplete: true})
	stager := staging.NewStager(dev, 3)

	fog, err := NewDynamic[Fog](stager, "fog")
	require.NoError(t, err)
	assert.Equal(t, uint64(256), fog.Buffer().Size())

	require.NoError(t, fog.Set(Fog{FogPower: 16.5, FogMult: 1.5}))
	raw, err := dev.ReadBuffer(fog.Buffer())
	require.NoError(t, err)
	assert.Equal(t, gpu.ValueBytes(&fog.Value), raw[:32])
}

func TestMappedArray_Flush(t *testing.T) {
	dev := software.NewDevice(software.Options{AutoComplete: true})
	stager := staging.NewStager(dev, 3)

	fish, err := NewMappedArray[FishPer](stager, "fish-per", 8, 0)
	require.NoError(t, err)
	assert.Equal(t, uint32(32), fish.VertexView().Stride)

	require.NoError(t, fish.Flush())
	require.NoError(t, fish.Append(FishPer{Scale: 1.5}))
	require.NoError(t, fish.Append(FishPer{Scale: 2.5}))
	require.NoError(t, fish.Flush())

	raw, err := dev.ReadBuffer(fish.Buffer())
	require.NoError(t, err)
	assert.Equal(t, gpu.RawBytes([]FishPer{{Scale: 1.5}, {Scale: 2.5}}), raw[:64])
}

func TestMappedArray_FlushRange(t *testing.T) {
	dev := software.NewDevice(software.Options{AutoComplete: true})
	stager := staging.NewStager(dev, 3)

	seaweed, err := NewMappedArray[SeaweedPer](stager, "seaweed-per", MaxBatchedInstances, MaxBatchedInstances)
	require.NoError(t, err)
	require.NoError(t, seaweed.Append(SeaweedPer{Time: 1}))
	require.NoError(t, seaweed.Append(SeaweedPer{Time: 2}))
	require.NoError(t, seaweed.FlushRange(1, 2))

	raw, err := dev.ReadBuffer(seaweed.Buffer())
	require.NoError(t, err)
	assert.Equal(t, float32(0), *(*float32)(unsafe.Pointer(&raw[0])))
	assert.Equal(t, float32(2), *(*float32)(unsafe.Pointer(&raw[16])))
}

func TestStatic_Upload(t *testing.T) {
	dev := software.NewDevice(software.Options{AutoComplete: true})
	stager := staging.NewStager(dev, 3)
	alloc, err := dev.CreateCommandAllocator()
	require.NoError(t, err)
	list, err := dev.CreateCommandList(alloc)
	require.NoError(t, err)

	inner, err := NewStatic(stager, list, "inner", DefaultInner)
	require.NoError(t, err)

	require.NoError(t, list.Close())
	require.NoError(t, dev.Queue().Submit(list))

	raw, err := dev.ReadBuffer(inner.Buffer())
	require.NoError(t, err)
	assert.Equal(t, gpu.ValueBytes(&inner.Value), raw[:16])
	assert.Zero(t, dev.Stats().StateMismatches)
}

package models

import (
	"encoding/binary"
	"testing"

	"github.com/spaghettifunk/aquarium/engine/core"
	"github.com/spaghettifunk/aquarium/engine/renderer/descriptor"
	"github.com/spaghettifunk/aquarium/engine/renderer/gpu"
	"github.com/spaghettifunk/aquarium/engine/renderer/program"
	"github.com/spaghettifunk/aquarium/engine/renderer/software"
	"github.com/spaghettifunk/aquarium/engine/renderer/staging"
	"github.com/spaghettifunk/aquarium/engine/renderer/uniforms"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testHost struct {
	dev     *software.Device
	stager  *staging.Stager
	alloc   *descriptor.Allocator
	list    gpu.CommandList
	globals Globals
	program *program.Program
}

func (h *testHost) Device() gpu.Device                 { return h.dev }
func (h *testHost) Stager() *staging.Stager            { return h.stager }
func (h *testHost) Descriptors() *descriptor.Allocator { return h.alloc }
func (h *testHost) UploadList() gpu.CommandList        { return h.list }
func (h *testHost) Globals() Globals                   { return h.globals }

func newHost(t *testing.T) *testHost {
	t.Helper()
	dev := software.NewDevice(software.Options{AutoComplete: true})
	alloc, err := descriptor.NewAllocator(dev, descriptor.SceneCapacity)
	require.NoError(t, err)
	cmd, err := dev.CreateCommandAllocator()
	require.NoError(t, err)
	list, err := dev.CreateCommandList(cmd)
	require.NoError(t, err)
	stager := staging.NewStager(dev, 3)
	lwp, err := stager.UploadDynamic("light-world-position", 256, 0)
	require.NoError(t, err)

	spirv := make([]byte, 20)
	binary.LittleEndian.PutUint32(spirv, 0x07230203)
	cache := program.NewCache(dev, program.MapSource{"vs": "", "fs": ""}, func(string) ([]byte, error) {
		return spirv, nil
	})
	prog, err := cache.Get("vs", "fs")
	require.NoError(t, err)

	return &testHost{
		dev:    dev,
		stager: stager,
		alloc:  alloc,
		list:   list,
		globals: Globals{
			LightWorldPosition: lwp.Buffer,
			ColorFormat:        gpu.FormatB8G8R8A8Unorm,
			DepthFormat:        gpu.FormatD24UnormS8Uint,
			SampleCount:        1,
		},
		program: prog,
	}
}

// submit closes the host list, executes it and reopens it.
func (h *testHost) submit(t *testing.T) {
	t.Helper()
	require.NoError(t, h.list.Close())
	require.NoError(t, h.dev.Queue().Submit(h.list))
	cmd, err := h.dev.CreateCommandAllocator()
	require.NoError(t, err)
	require.NoError(t, h.list.Reset(cmd))
}

func (h *testHost) model(t *testing.T, desc Desc, textures ...string) *Model {
	t.Helper()
	m, err := New(desc)
	require.NoError(t, err)
	upload := func(name string, data []float32, stride uint32) {
		b, err := h.stager.UploadStatic(h.list, desc.Name+"-"+name, gpu.RawBytes(data), staging.RoleVertex, stride)
		require.NoError(t, err)
		m.SetBuffer(name, b)
	}
	upload("position", []float32{0, 0, 0, 1, 0, 0, 0, 1, 0}, 12)
	upload("normal", []float32{0, 0, 1, 0, 0, 1, 0, 0, 1}, 12)
	upload("texCoord", []float32{0, 0, 1, 0, 0, 1}, 8)
	upload("tangent", []float32{1, 0, 0, 1, 0, 0, 1, 0, 0}, 12)
	upload("binormal", []float32{0, 1, 0, 0, 1, 0, 0, 1, 0}, 12)
	idx, err := h.stager.UploadStatic(h.list, desc.Name+"-indices", gpu.RawBytes([]uint16{0, 1, 2}), staging.RoleIndex, 2)
	require.NoError(t, err)
	m.SetBuffer("indices", idx)

	for _, name := range textures {
		data := staging.TextureData{Width: 1, Height: 1, Format: gpu.FormatR8G8B8A8Unorm}
		layers := 1
		if name == "skybox" {
			data.Cube, layers = true, 6
		}
		for i := 0; i < layers; i++ {
			data.Levels = append(data.Levels, [][]byte{{1, 2, 3, 4}})
		}
		tex, err := h.stager.UploadTexture(h.list, desc.Name+"-"+name, data)
		require.NoError(t, err)
		m.SetTexture(name, tex)
	}
	m.SetProgram(h.program)
	return m
}

var fishTextures = []string{"diffuse", "normalMap", "reflectionMap", "skybox"}

func TestParseKind(t *testing.T) {
	k, err := ParseKind("seaweed")
	require.NoError(t, err)
	assert.Equal(t, KindSeaweed, k)

	_, err = ParseKind("shark")
	assert.ErrorIs(t, err, core.ErrUnknownModel)

	_, err = New(Desc{Kind: kindCount})
	assert.ErrorIs(t, err, core.ErrUnknownModel)
}

func TestCapabilities(t *testing.T) {
	assert.True(t, KindSeaweed.Capabilities().Batched)
	assert.Equal(t, 20, KindSeaweed.Capabilities().MaxInstances)
	assert.True(t, KindFishInstanced.Capabilities().InstancedDraw)
	assert.False(t, KindFish.Capabilities().InstancedDraw)
	assert.True(t, KindFish.Capabilities().FishPer)
	assert.True(t, KindInner.Capabilities().PerInstanceUniforms)
}

func TestInit_MissingResource(t *testing.T) {
	h := newHost(t)
	m := h.model(t, Desc{Kind: KindSeaweed, Name: "SeaweedA"}, "diffuse")

	err := m.Init(h)
	assert.ErrorIs(t, err, core.ErrMissingResource)
	assert.Equal(t, StateUninitialized, m.State())

	m = h.model(t, Desc{Kind: KindOutside, Name: "TreasureChest"}, "diffuse")
	delete(m.Buffers, "indices")
	assert.ErrorIs(t, m.Init(h), core.ErrMissingResource)
}

func TestStateMachine(t *testing.T) {
	h := newHost(t)
	m := h.model(t, Desc{Kind: KindOutside, Name: "TankFrame"}, "diffuse")

	assert.ErrorIs(t, m.Draw(h.list), core.ErrNotReady)
	assert.ErrorIs(t, m.PrepareForDraw(), core.ErrNotReady)

	require.NoError(t, m.Init(h))
	assert.Equal(t, StateReady, m.State())
	assert.Error(t, m.Init(h))
	assert.ErrorIs(t, m.Draw(h.list), core.ErrNotReady, "draw needs prepare in the same frame")

	require.NoError(t, m.PrepareForDraw())
	require.NoError(t, m.UpdatePerInstanceUniforms(&Instance{}))
	require.NoError(t, m.Draw(h.list))
	assert.Equal(t, StateDrawn, m.State())

	m.EndFrame()
	assert.Equal(t, StateReady, m.State())
	assert.ErrorIs(t, m.Draw(h.list), core.ErrNotReady)

	h.submit(t)
	require.Len(t, h.dev.DrawCalls(), 1)
	assert.Equal(t, uint32(3), h.dev.DrawCalls()[0].IndexCount)
	assert.Zero(t, h.dev.Stats().StateMismatches)
}

func TestSeaweed_BatchResetsAfterDraw(t *testing.T) {
	h := newHost(t)
	m := h.model(t, Desc{Kind: KindSeaweed, Name: "SeaweedA"}, "diffuse", "skybox")
	require.NoError(t, m.Init(h))

	for frame := 0; frame < 2; frame++ {
		require.NoError(t, m.PrepareForDraw())
		for i := 0; i < uniforms.MaxBatchedInstances; i++ {
			require.NoError(t, m.UpdatePerInstanceUniforms(&Instance{Time: float32(i)}))
		}
		assert.Equal(t, uniforms.MaxBatchedInstances, m.BatchLen())
		assert.ErrorIs(t, m.UpdatePerInstanceUniforms(&Instance{}), core.ErrInstanceCapExceeded)

		require.NoError(t, m.Draw(h.list))
		assert.Zero(t, m.BatchLen())
		m.EndFrame()
	}

	h.submit(t)
	calls := h.dev.DrawCalls()
	require.Len(t, calls, 2)
	for _, c := range calls {
		assert.Equal(t, uint32(uniforms.MaxBatchedInstances), c.InstanceCount)
	}
}

func TestGeneric_EmptyBatchDrawsNothing(t *testing.T) {
	h := newHost(t)
	m := h.model(t, Desc{Kind: KindGeneric, Name: "RockA"}, "diffuse", "normalMap", "skybox")
	require.NoError(t, m.Init(h))

	require.NoError(t, m.PrepareForDraw())
	require.NoError(t, m.Draw(h.list))
	m.EndFrame()

	require.NoError(t, m.PrepareForDraw())
	require.NoError(t, m.UpdatePerInstanceUniforms(&Instance{}))
	require.NoError(t, m.UpdatePerInstanceUniforms(&Instance{}))
	require.NoError(t, m.Draw(h.list))

	h.submit(t)
	require.Len(t, h.dev.DrawCalls(), 1)
	assert.Equal(t, uint32(2), h.dev.DrawCalls()[0].InstanceCount)
}

func TestBatched_NoUpdatesBetweenDrawAndEndFrame(t *testing.T) {
	h := newHost(t)
	m := h.model(t, Desc{Kind: KindSeaweed, Name: "SeaweedA"}, "diffuse", "skybox")
	require.NoError(t, m.Init(h))

	require.NoError(t, m.PrepareForDraw())
	require.NoError(t, m.UpdatePerInstanceUniforms(&Instance{Time: 1}))
	require.NoError(t, m.Draw(h.list))

	assert.ErrorIs(t, m.UpdatePerInstanceUniforms(&Instance{Time: 2}), core.ErrNotReady)
	assert.Zero(t, m.BatchLen(), "a rejected placement must not reach the drawn arrays")

	m.EndFrame()
	require.NoError(t, m.PrepareForDraw())
	require.NoError(t, m.UpdatePerInstanceUniforms(&Instance{Time: 3}))
	assert.Equal(t, 1, m.BatchLen())
}

func TestFish_OneDrawPerFish(t *testing.T) {
	h := newHost(t)
	m := h.model(t, Desc{Kind: KindFish, Name: "SmallFishA", Instances: 5}, fishTextures...)
	require.NoError(t, m.Init(h))

	require.NoError(t, m.PrepareForDraw())
	for i := 0; i < 5; i++ {
		require.NoError(t, m.UpdateFishPerUniforms(i, uniforms.FishPer{Scale: 1}))
	}
	assert.Error(t, m.UpdateFishPerUniforms(5, uniforms.FishPer{}))
	require.NoError(t, m.Draw(h.list))
	m.EndFrame()

	// drawn as each fish is updated
	require.NoError(t, m.PrepareForDraw())
	for i := 0; i < 3; i++ {
		require.NoError(t, m.UpdateFishPerUniforms(i, uniforms.FishPer{Scale: 2}))
		require.NoError(t, m.Draw(h.list))
	}

	h.submit(t)
	calls := h.dev.DrawCalls()
	require.Len(t, calls, 8)
	for i, c := range calls {
		assert.Equal(t, uint32(1), c.InstanceCount)
		assert.Equal(t, 6, c.VertexBuffers)
		if i < 5 {
			assert.Equal(t, uint32(i), c.StartInstance)
		} else {
			assert.Equal(t, uint32(i-5), c.StartInstance)
		}
	}
	assert.Zero(t, h.dev.Stats().StateMismatches)
}

func TestFishInstanced_SingleDraw(t *testing.T) {
	h := newHost(t)
	m := h.model(t, Desc{Kind: KindFishInstanced, Name: "BigFishA", Instances: 4}, fishTextures...)
	require.NoError(t, m.Init(h))
	empty := h.model(t, Desc{Kind: KindFishInstanced, Name: "BigFishB"}, fishTextures...)
	require.NoError(t, empty.Init(h))

	require.NoError(t, m.PrepareForDraw())
	require.NoError(t, empty.PrepareForDraw())
	for i := 0; i < 4; i++ {
		require.NoError(t, m.UpdateFishPerUniforms(i, uniforms.FishPer{Time: float32(i)}))
	}
	require.NoError(t, m.Draw(h.list))
	require.NoError(t, empty.Draw(h.list))

	h.submit(t)
	calls := h.dev.DrawCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, "BigFishA", calls[0].Pipeline)
	assert.Equal(t, uint32(4), calls[0].InstanceCount)
}

func TestInit_AllocatesConsecutiveViews(t *testing.T) {
	h := newHost(t)
	inner := h.model(t, Desc{Kind: KindInner, Name: "GlobeInner"}, fishTextures...)
	require.NoError(t, inner.Init(h))
	// light factor, inner constants and four textures
	assert.Equal(t, uint32(6), h.alloc.Count())
	assert.Equal(t, descriptor.GPUHandle(0), inner.table)

	outside := h.model(t, Desc{Kind: KindOutside, Name: "TankFrame"}, "diffuse")
	require.NoError(t, outside.Init(h))
	assert.Equal(t, descriptor.GPUHandle(6), outside.table)
	assert.Equal(t, uint32(8), h.alloc.Count())
}

func TestFish_NotFishModel(t *testing.T) {
	h := newHost(t)
	m := h.model(t, Desc{Kind: KindOutside, Name: "TankFrame"}, "diffuse")
	require.NoError(t, m.Init(h))
	require.NoError(t, m.PrepareForDraw())
	assert.Error(t, m.UpdateFishPerUniforms(0, uniforms.FishPer{}))
}

package staging

import (
	"bytes"
	"os"
	"testing"

	"github.com/spaghettifunk/aquarium/engine/core"
	"github.com/spaghettifunk/aquarium/engine/renderer/gpu"
	"github.com/spaghettifunk/aquarium/engine/renderer/software"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openList(t *testing.T, d gpu.Device) gpu.CommandList {
	t.Helper()
	alloc, err := d.CreateCommandAllocator()
	require.NoError(t, err)
	list, err := d.CreateCommandList(alloc)
	require.NoError(t, err)
	return list
}

func submit(t *testing.T, d gpu.Device, list gpu.CommandList) {
	t.Helper()
	require.NoError(t, list.Close())
	require.NoError(t, d.Queue().Submit(list))
}

func TestUploadStatic_RoundTrip(t *testing.T) {
	dev := software.NewDevice(software.Options{AutoComplete: true})
	stager := NewStager(dev, 3)
	list := openList(t, dev)

	positions := []float32{0, 1, 2, 3, 4, 5, 6, 7, 8}
	data := gpu.RawBytes(positions)
	buf, err := stager.UploadStatic(list, "position", data, RoleVertex, 12)
	require.NoError(t, err)
	assert.Equal(t, uint32(3), buf.Count)
	assert.Equal(t, gpu.ResourceStateVertexAndConstantBuffer, buf.State())

	submit(t, dev, list)

	got, err := dev.ReadBuffer(buf.Buffer)
	require.NoError(t, err)
	assert.Equal(t, data, got)
	assert.Zero(t, dev.Stats().StateMismatches)
	assert.Equal(t, gpu.ResourceStateVertexAndConstantBuffer, dev.ResourceState(buf.Buffer))
}

func TestUploadStatic_IndexAndConstantRoles(t *testing.T) {
	dev := software.NewDevice(software.Options{AutoComplete: true})
	stager := NewStager(dev, 3)
	list := openList(t, dev)

	idx, err := stager.UploadStatic(list, "indices", gpu.RawBytes([]uint16{0, 1, 2}), RoleIndex, 2)
	require.NoError(t, err)
	assert.Equal(t, gpu.ResourceStateIndexBuffer, idx.State())

	cb, err := stager.UploadStatic(list, "light-factor", gpu.RawBytes([]float32{50, 1}), RoleConstant, 0)
	require.NoError(t, err)
	assert.Equal(t, uint64(256), cb.Size, "constant buffers are padded to 256 bytes")

	submit(t, dev, list)
	got, err := dev.ReadBuffer(cb.Buffer)
	require.NoError(t, err)
	assert.Equal(t, gpu.RawBytes([]float32{50, 1}), got[:8])
}

func TestUpdate_ReTransitionsThroughCopyDest(t *testing.T) {
	dev := software.NewDevice(software.Options{AutoComplete: true})
	stager := NewStager(dev, 3)
	list := openList(t, dev)

	buf, err := stager.UploadStatic(list, "seaweed", make([]byte, 32), RoleConstant, 0)
	require.NoError(t, err)
	require.NoError(t, stager.Update(list, buf, []byte{9, 9, 9, 9}))
	submit(t, dev, list)

	got, err := dev.ReadBuffer(buf.Buffer)
	require.NoError(t, err)
	assert.Equal(t, []byte{9, 9, 9, 9}, got[:4])
	assert.Equal(t, 4, dev.Stats().Barriers)
	assert.Zero(t, dev.Stats().StateMismatches)

	assert.Error(t, stager.Update(openList(t, dev), buf, make([]byte, 1024)))
}

func TestUploadTexture_AllSubresources(t *testing.T) {
	dev := software.NewDevice(software.Options{AutoComplete: true})
	stager := NewStager(dev, 3)
	list := openList(t, dev)

	mip0 := make([]byte, 2*2*4)
	for i := range mip0 {
		mip0[i] = byte(i)
	}
	mip1 := []byte{7, 7, 7, 7}
	tex, err := stager.UploadTexture(list, "diffuse", TextureData{
		Width: 2, Height: 2, Format: gpu.FormatR8G8B8A8Unorm,
		Levels: [][][]byte{{mip0, mip1}},
	})
	require.NoError(t, err)
	assert.Equal(t, gpu.ResourceStatePixelShaderResource, tex.State())
	submit(t, dev, list)

	got, err := dev.ReadTexture(tex.Texture, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, mip0, got)
	got, err = dev.ReadTexture(tex.Texture, 0, 1)
	require.NoError(t, err)
	assert.Equal(t, mip1, got)
	assert.Zero(t, dev.Stats().StateMismatches)
}

func TestUploadDynamic_UpdateIsIdempotent(t *testing.T) {
	dev := software.NewDevice(software.Options{AutoComplete: true})
	stager := NewStager(dev, 3)

	mb, err := stager.UploadDynamic("world", 16, 0)
	require.NoError(t, err)

	x := gpu.RawBytes([]float32{1, 2, 3, 4})
	require.NoError(t, mb.Update(x))
	first, err := dev.ReadBuffer(mb.Buffer)
	require.NoError(t, err)
	before := dev.Stats()

	require.NoError(t, mb.Update(x))
	second, err := dev.ReadBuffer(mb.Buffer)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, x, second)
	assert.Equal(t, before, dev.Stats(), "a mapped update records no device work")
	assert.Equal(t, gpu.ResourceStateGenericRead, dev.ResourceState(mb.Buffer))

	assert.Error(t, mb.UpdateAt(8, x))
}

func TestStager_ReleasesUploadsOnceRetired(t *testing.T) {
	dev := software.NewDevice(software.Options{})
	stager := NewStager(dev, 3)
	list := openList(t, dev)

	_, err := stager.UploadStatic(list, "a", make([]byte, 8), RoleVertex, 4)
	require.NoError(t, err)
	_, err = stager.UploadStatic(list, "b", make([]byte, 8), RoleVertex, 4)
	require.NoError(t, err)
	assert.Equal(t, 2, stager.Pending())

	require.NoError(t, stager.Retire(1))
	assert.Equal(t, 0, stager.ReleaseRetired(0), "fence 1 has not completed")
	assert.Equal(t, 2, stager.Pending())

	assert.Equal(t, 2, stager.ReleaseRetired(1))
	assert.Equal(t, 0, stager.Pending())
	assert.Equal(t, 2, dev.Stats().BuffersDestroyed)
}

func TestUploadDynamic_OverflowLogsLabelVerbatim(t *testing.T) {
	var out bytes.Buffer
	core.SetLogOutput(&out)
	t.Cleanup(func() { core.SetLogOutput(os.Stderr) })

	dev := software.NewDevice(software.Options{AutoComplete: true})
	stager := NewStager(dev, 3)
	mb, err := stager.UploadDynamic("fish%d-per", 4, 0)
	require.NoError(t, err)

	err = mb.Update(make([]byte, 8))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fish%d-per")
	assert.Contains(t, out.String(), "fish%d-per")
	assert.NotContains(t, out.String(), "%!d")
}

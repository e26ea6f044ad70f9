package staging

import (
	"fmt"

	"github.com/spaghettifunk/aquarium/engine/containers"
	"github.com/spaghettifunk/aquarium/engine/core"
	"github.com/spaghettifunk/aquarium/engine/renderer/gpu"
)

type Role uint8

const (
	RoleVertex Role = iota
	RoleIndex
	RoleConstant
	// Per-instance vertex stream.
	RoleInstance
)

// finalState is the state a resource of the role must be in to be consumed by a draw.
func (r Role) finalState() gpu.ResourceState {
	if r == RoleIndex {
		return gpu.ResourceStateIndexBuffer
	}
	return gpu.ResourceStateVertexAndConstantBuffer
}

func (r Role) usage() gpu.BufferUsage {
	switch r {
	case RoleIndex:
		return gpu.BufferUsageIndex | gpu.BufferUsageCopyDst
	case RoleConstant:
		return gpu.BufferUsageConstant | gpu.BufferUsageCopyDst
	}
	return gpu.BufferUsageVertex | gpu.BufferUsageCopyDst
}

// GPUBuffer is a device local buffer filled through an upload heap copy.
type GPUBuffer struct {
	Buffer gpu.Buffer
	Size   uint64
	Stride uint32
	Role   Role
	// Number of elements when the buffer holds vertex attributes or indices.
	Count   uint32
	tracker *gpu.StateTracker
}

func (b *GPUBuffer) State() gpu.ResourceState {
	return b.tracker.State()
}

func (b *GPUBuffer) VertexView() gpu.VertexBufferView {
	return gpu.VertexBufferView{Buffer: b.Buffer, Size: b.Size, Stride: b.Stride}
}

func (b *GPUBuffer) IndexView() gpu.IndexBufferView {
	return gpu.IndexBufferView{Buffer: b.Buffer, Size: b.Size, Format: gpu.IndexFormatUint16}
}

func (b *GPUBuffer) Destroy() {
	if b.Buffer != nil {
		b.Buffer.Destroy()
		b.Buffer = nil
	}
}

// MappedBuffer is a host visible buffer mapped once for its whole lifetime.
// It stays in the generic read state, so updates need no barrier.
type MappedBuffer struct {
	Buffer gpu.Buffer
	Size   uint64
	Stride uint32
	mapped []byte
}

// Update copies data to the start of the mapped range.
func (m *MappedBuffer) Update(data []byte) error {
	return m.UpdateAt(0, data)
}

// UpdateAt copies data into the mapped range at the given byte offset.
func (m *MappedBuffer) UpdateAt(offset uint64, data []byte) error {
	if offset+uint64(len(data)) > uint64(len(m.mapped)) {
		err := fmt.Errorf("update of %d bytes at %d overflows %s (%d bytes)", len(data), offset, m.Buffer.Label(), len(m.mapped))
		core.LogError("%s", err)
		return err
	}
	copy(m.mapped[offset:], data)
	return nil
}

func (m *MappedBuffer) VertexView() gpu.VertexBufferView {
	return gpu.VertexBufferView{Buffer: m.Buffer, Size: m.Size, Stride: m.Stride}
}

func (m *MappedBuffer) Destroy() {
	if m.Buffer != nil {
		m.Buffer.Destroy()
		m.Buffer = nil
		m.mapped = nil
	}
}

// GPUTexture is a sampled texture resident in device memory.
type GPUTexture struct {
	Texture gpu.Texture
	Cube    bool
	tracker *gpu.StateTracker
}

func (t *GPUTexture) State() gpu.ResourceState {
	return t.tracker.State()
}

func (t *GPUTexture) Destroy() {
	if t.Texture != nil {
		t.Texture.Destroy()
		t.Texture = nil
	}
}

// TextureData holds the decoded texels of every subresource: Levels[layer][mip].
type TextureData struct {
	Width  uint32
	Height uint32
	Format gpu.Format
	Cube   bool
	Levels [][][]byte
}

type retiredBatch struct {
	fenceValue uint64
	buffers    []gpu.Buffer
}

// Stager creates device local resources by copying through transient upload
// buffers. The upload buffers are kept alive until the fence value of the
// frame that recorded the copy has retired.
type Stager struct {
	device  gpu.Device
	current []gpu.Buffer
	retired *containers.RingQueue[retiredBatch]
}

func NewStager(device gpu.Device, framesInFlight int) *Stager {
	return &Stager{
		device:  device,
		retired: containers.NewRingQueue[retiredBatch](framesInFlight + 1),
	}
}

func (s *Stager) createUpload(label string, data []byte) (gpu.Buffer, error) {
	upload, err := s.device.CreateBuffer(gpu.BufferDesc{
		Label:        label + "-upload",
		Size:         uint64(len(data)),
		Heap:         gpu.HeapTypeUpload,
		Usage:        gpu.BufferUsageCopySrc,
		InitialState: gpu.ResourceStateGenericRead,
	})
	if err != nil {
		err = fmt.Errorf("failed to create upload buffer for %s: %w", label, err)
		core.LogError("%s", err)
		return nil, err
	}
	mapped, err := upload.Map()
	if err != nil {
		upload.Destroy()
		err = fmt.Errorf("failed to map upload buffer for %s: %w", label, err)
		core.LogError("%s", err)
		return nil, err
	}
	copy(mapped, data)
	s.current = append(s.current, upload)
	return upload, nil
}

// UploadStatic creates a device local buffer holding data. The copy and the
// transitions COMMON -> COPY_DEST -> final state are recorded into list, so the
// buffer is readable by every draw recorded after this call.
func (s *Stager) UploadStatic(list gpu.CommandList, label string, data []byte, role Role, stride uint32) (*GPUBuffer, error) {
	size := uint64(len(data))
	if role == RoleConstant {
		size = gpu.CalcConstantBufferByteSize(size)
	}
	buffer, err := s.device.CreateBuffer(gpu.BufferDesc{
		Label:        label,
		Size:         size,
		Heap:         gpu.HeapTypeDefault,
		Usage:        role.usage(),
		InitialState: gpu.ResourceStateCommon,
	})
	if err != nil {
		err = fmt.Errorf("failed to create buffer %s: %w", label, err)
		core.LogError("%s", err)
		return nil, err
	}
	b := &GPUBuffer{
		Buffer:  buffer,
		Size:    size,
		Stride:  stride,
		Role:    role,
		tracker: gpu.NewStateTracker(buffer, gpu.ResourceStateCommon),
	}
	if stride > 0 {
		b.Count = uint32(uint64(len(data)) / uint64(stride))
	}
	if err := s.Update(list, b, data); err != nil {
		buffer.Destroy()
		return nil, err
	}
	return b, nil
}

// Update replaces the contents of a device local buffer through a fresh
// upload buffer, moving it to COPY_DEST and back to its final state.
func (s *Stager) Update(list gpu.CommandList, b *GPUBuffer, data []byte) error {
	if uint64(len(data)) > b.Size {
		err := fmt.Errorf("update of %d bytes overflows %s (%d bytes)", len(data), b.Buffer.Label(), b.Size)
		core.LogError("%s", err)
		return err
	}
	if len(data) == 0 {
		return nil
	}
	upload, err := s.createUpload(b.Buffer.Label(), data)
	if err != nil {
		return err
	}
	if err := b.tracker.TransitionTo(list, gpu.ResourceStateCopyDest); err != nil {
		return err
	}
	list.CopyBuffer(b.Buffer, upload, uint64(len(data)))
	return b.tracker.Transition(list, gpu.ResourceStateCopyDest, b.Role.finalState())
}

// UploadTexture creates a texture in COPY_DEST, copies every subresource and
// moves it to PIXEL_SHADER_RESOURCE.
func (s *Stager) UploadTexture(list gpu.CommandList, label string, data TextureData) (*GPUTexture, error) {
	layers := uint32(len(data.Levels))
	if layers == 0 || len(data.Levels[0]) == 0 {
		err := fmt.Errorf("%w: texture %s has no texel data", core.ErrMissingResource, label)
		core.LogError("%s", err)
		return nil, err
	}
	mips := uint32(len(data.Levels[0]))

	texture, err := s.device.CreateTexture(gpu.TextureDesc{
		Label:        label,
		Width:        data.Width,
		Height:       data.Height,
		MipLevels:    mips,
		ArrayLayers:  layers,
		Cube:         data.Cube,
		SampleCount:  1,
		Format:       data.Format,
		InitialState: gpu.ResourceStateCopyDest,
	})
	if err != nil {
		err = fmt.Errorf("failed to create texture %s: %w", label, err)
		core.LogError("%s", err)
		return nil, err
	}

	var packed []byte
	offsets := make([][]uint64, layers)
	for layer, levels := range data.Levels {
		if uint32(len(levels)) != mips {
			texture.Destroy()
			return nil, fmt.Errorf("texture %s layer %d has %d mips, expected %d", label, layer, len(levels), mips)
		}
		offsets[layer] = make([]uint64, mips)
		for mip, texels := range levels {
			offsets[layer][mip] = uint64(len(packed))
			packed = append(packed, texels...)
		}
	}
	upload, err := s.createUpload(label, packed)
	if err != nil {
		texture.Destroy()
		return nil, err
	}

	t := &GPUTexture{
		Texture: texture,
		Cube:    data.Cube,
		tracker: gpu.NewStateTracker(texture, gpu.ResourceStateCopyDest),
	}
	for layer := uint32(0); layer < layers; layer++ {
		for mip := uint32(0); mip < mips; mip++ {
			list.CopyBufferToTexture(texture, layer, mip, upload, offsets[layer][mip])
		}
	}
	if err := t.tracker.Transition(list, gpu.ResourceStateCopyDest, gpu.ResourceStatePixelShaderResource); err != nil {
		texture.Destroy()
		return nil, err
	}
	return t, nil
}

// UploadDynamic creates a persistently mapped upload heap buffer. Data written
// through Update is visible to draws recorded in the same frame.
func (s *Stager) UploadDynamic(label string, size uint64, stride uint32) (*MappedBuffer, error) {
	buffer, err := s.device.CreateBuffer(gpu.BufferDesc{
		Label:        label,
		Size:         size,
		Heap:         gpu.HeapTypeUpload,
		Usage:        gpu.BufferUsageConstant | gpu.BufferUsageVertex,
		InitialState: gpu.ResourceStateGenericRead,
	})
	if err != nil {
		err = fmt.Errorf("failed to create dynamic buffer %s: %w", label, err)
		core.LogError("%s", err)
		return nil, err
	}
	mapped, err := buffer.Map()
	if err != nil {
		buffer.Destroy()
		err = fmt.Errorf("failed to map dynamic buffer %s: %w", label, err)
		core.LogError("%s", err)
		return nil, err
	}
	return &MappedBuffer{Buffer: buffer, Size: size, Stride: stride, mapped: mapped}, nil
}

// Retire tags every upload buffer recorded since the last call with the
// fence value that will mark the end of the submitted work.
func (s *Stager) Retire(fenceValue uint64) error {
	if len(s.current) == 0 {
		return nil
	}
	if s.retired.IsFull() {
		err := fmt.Errorf("%d frames of staging buffers pending, release has not kept up", s.retired.Len())
		core.LogError("%s", err)
		return err
	}
	if err := s.retired.Enqueue(retiredBatch{fenceValue: fenceValue, buffers: s.current}); err != nil {
		return err
	}
	s.current = nil
	return nil
}

// ReleaseRetired destroys the upload buffers whose copies are known complete.
func (s *Stager) ReleaseRetired(completed uint64) int {
	released := 0
	for !s.retired.IsEmpty() {
		batch, _ := s.retired.Peek()
		if batch.fenceValue > completed {
			break
		}
		_, _ = s.retired.Dequeue()
		for _, b := range batch.buffers {
			b.Destroy()
			released++
		}
	}
	return released
}

// Pending returns the number of upload buffers not yet released.
func (s *Stager) Pending() int {
	n := len(s.current)
	for i := 0; i < s.retired.Len(); i++ {
		batch, _ := s.retired.Dequeue()
		n += len(batch.buffers)
		_ = s.retired.Enqueue(batch)
	}
	return n
}

// Drain destroys every upload buffer. Only call it once the device is idle.
func (s *Stager) Drain() {
	s.ReleaseRetired(^uint64(0))
	for _, b := range s.current {
		b.Destroy()
	}
	s.current = nil
}

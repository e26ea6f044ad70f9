package software

import (
	"fmt"

	"github.com/spaghettifunk/aquarium/engine/renderer/gpu"
)

type Buffer struct {
	device    *Device
	desc      gpu.BufferDesc
	label     string
	data      []byte
	destroyed bool
}

func (b *Buffer) Label() string      { return b.label }
func (b *Buffer) Size() uint64       { return b.desc.Size }
func (b *Buffer) Heap() gpu.HeapType { return b.desc.Heap }

func (b *Buffer) Map() ([]byte, error) {
	if b.desc.Heap != gpu.HeapTypeUpload {
		return nil, fmt.Errorf("%w: %s", ErrNotMappable, b.label)
	}
	return b.data, nil
}

func (b *Buffer) Destroy() {
	b.device.mu.Lock()
	defer b.device.mu.Unlock()
	if b.destroyed {
		return
	}
	b.destroyed = true
	delete(b.device.states, b)
	b.device.stats.BuffersDestroyed++
}

// Destroyed reports whether Destroy was called.
func (b *Buffer) Destroyed() bool {
	b.device.mu.Lock()
	defer b.device.mu.Unlock()
	return b.destroyed
}

type Texture struct {
	device *Device
	desc   gpu.TextureDesc
	label  string
	// subresources indexed by layer*mips + mip
	data [][]byte
}

func newTexture(d *Device, desc gpu.TextureDesc) *Texture {
	t := &Texture{
		device: d,
		desc:   desc,
		label:  desc.Label,
		data:   make([][]byte, desc.ArrayLayers*desc.MipLevels),
	}
	for layer := uint32(0); layer < desc.ArrayLayers; layer++ {
		for mip := uint32(0); mip < desc.MipLevels; mip++ {
			w, h := MipExtent(desc.Width, desc.Height, mip)
			t.data[layer*desc.MipLevels+mip] = make([]byte, w*h*bytesPerTexel(desc.Format))
		}
	}
	return t
}

// MipExtent returns the size of a mip level, never smaller than one texel.
func MipExtent(width, height, mip uint32) (uint32, uint32) {
	w, h := width>>mip, height>>mip
	if w == 0 {
		w = 1
	}
	if h == 0 {
		h = 1
	}
	return w, h
}

func bytesPerTexel(f gpu.Format) uint32 {
	if s := f.Size(); s > 0 {
		return s
	}
	return 4
}

func (t *Texture) Label() string         { return t.label }
func (t *Texture) Desc() gpu.TextureDesc { return t.desc }

func (t *Texture) Destroy() {
	t.device.mu.Lock()
	defer t.device.mu.Unlock()
	delete(t.device.states, t)
}

func (t *Texture) subresource(layer, mip uint32) ([]byte, error) {
	if layer >= t.desc.ArrayLayers || mip >= t.desc.MipLevels {
		return nil, fmt.Errorf("subresource layer %d mip %d out of range for %s", layer, mip, t.label)
	}
	return t.data[layer*t.desc.MipLevels+mip], nil
}

type DescriptorHeap struct {
	views   []gpu.ViewDesc
	written []bool
}

func (h *DescriptorHeap) Capacity() uint32 { return uint32(len(h.views)) }

func (h *DescriptorHeap) Write(index uint32, view gpu.ViewDesc) error {
	if index >= uint32(len(h.views)) {
		return fmt.Errorf("%w: %d >= %d", ErrHeapOutOfBounds, index, len(h.views))
	}
	h.views[index] = view
	h.written[index] = true
	return nil
}

func (h *DescriptorHeap) View(index uint32) (gpu.ViewDesc, bool) {
	if index >= uint32(len(h.views)) || !h.written[index] {
		return gpu.ViewDesc{}, false
	}
	return h.views[index], true
}

func (h *DescriptorHeap) Destroy() {}

type BindingLayout struct {
	desc gpu.BindingLayoutDesc
}

func (l *BindingLayout) Desc() gpu.BindingLayoutDesc { return l.desc }
func (l *BindingLayout) Destroy()                    {}

type ShaderModule struct {
	stage gpu.ShaderStage
	code  []byte
}

func (s *ShaderModule) Stage() gpu.ShaderStage { return s.stage }
func (s *ShaderModule) Destroy()               {}

type Pipeline struct {
	desc gpu.PipelineDesc
}

func (p *Pipeline) Desc() gpu.PipelineDesc { return p.desc }
func (p *Pipeline) Destroy()               {}

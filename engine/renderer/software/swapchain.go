package software

import (
	"fmt"

	"github.com/spaghettifunk/aquarium/engine/renderer/gpu"
)

type Swapchain struct {
	device  *Device
	width   uint32
	height  uint32
	buffers []*Texture
	current uint32
}

func newSwapchain(d *Device, width, height, count uint32) *Swapchain {
	sc := &Swapchain{device: d, width: width, height: height}
	for i := uint32(0); i < count; i++ {
		t := newTexture(d, gpu.TextureDesc{
			Label:        fmt.Sprintf("backbuffer-%d", i),
			Width:        width,
			Height:       height,
			MipLevels:    1,
			ArrayLayers:  1,
			SampleCount:  1,
			Format:       gpu.FormatB8G8R8A8Unorm,
			RenderTarget: true,
			InitialState: gpu.ResourceStatePresent,
		})
		d.states[t] = gpu.ResourceStatePresent
		sc.buffers = append(sc.buffers, t)
	}
	return sc
}

func (sc *Swapchain) BufferCount() uint32 { return uint32(len(sc.buffers)) }

func (sc *Swapchain) CurrentIndex() uint32 { return sc.current }

func (sc *Swapchain) BackBuffer(index uint32) gpu.Texture { return sc.buffers[index] }

func (sc *Swapchain) Format() gpu.Format { return gpu.FormatB8G8R8A8Unorm }

func (sc *Swapchain) Extent() (uint32, uint32) { return sc.width, sc.height }

func (sc *Swapchain) Present(vsync bool) error {
	d := sc.device
	d.mu.Lock()
	defer d.mu.Unlock()
	back := sc.buffers[sc.current]
	if st := d.states[back]; st != gpu.ResourceStatePresent {
		d.stats.StateMismatches++
		return fmt.Errorf("presenting %s while in %s", back.label, st)
	}
	d.stats.Presents++
	sc.current = (sc.current + 1) % uint32(len(sc.buffers))
	return nil
}

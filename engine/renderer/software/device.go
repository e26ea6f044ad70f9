// Package software implements gpu.Device entirely in memory. Commands run on
// the CPU when submitted, fences complete either immediately or on demand.
// It backs headless runs and every renderer test.
package software

import (
	"errors"
	"fmt"
	"sync"

	"github.com/spaghettifunk/aquarium/engine/core"
	"github.com/spaghettifunk/aquarium/engine/renderer/gpu"
)

var (
	ErrNotMappable     = errors.New("buffer is not in an upload heap")
	ErrListNotClosed   = errors.New("command list submitted while still recording")
	ErrListNotOpen     = errors.New("command list is not recording")
	ErrAllocatorInUse  = errors.New("command allocator reset while its work is in flight")
	ErrHeapOutOfBounds = errors.New("descriptor index out of bounds")
)

type Options struct {
	Width       uint32
	Height      uint32
	BufferCount uint32
	// When true the device completes fences as soon as they are signaled.
	AutoComplete bool
	// Installed as the OnBlock hook of every fence the device creates.
	OnBlock func(f *Fence, value uint64)
}

// Stats counts device activity. Values only grow.
type Stats struct {
	Submits            int
	Signals            int
	BlockingWaits      int
	Barriers           int
	Copies             int
	Draws              int
	Instances          int
	Presents           int
	BuffersCreated     int
	BuffersDestroyed   int
	TexturesCreated    int
	StateMismatches    int
	MaxOutstandingWork uint64
}

type DrawCall struct {
	Pipeline      string
	IndexCount    uint32
	InstanceCount uint32
	StartInstance uint32
	VertexBuffers int
}

type Device struct {
	mu sync.Mutex

	opts      Options
	adapter   gpu.AdapterInfo
	queue     *Queue
	swapchain *Swapchain
	stats     Stats
	draws     []DrawCall
	states    map[gpu.Resource]gpu.ResourceState
	fences    []*Fence
	lost      bool
}

func NewDevice(opts Options) *Device {
	if opts.BufferCount == 0 {
		opts.BufferCount = 3
	}
	if opts.Width == 0 || opts.Height == 0 {
		opts.Width, opts.Height = 1, 1
	}
	d := &Device{
		opts: opts,
		adapter: gpu.AdapterInfo{
			Name: "software rasterizer",
			Type: gpu.AdapterTypeSoftware,
		},
		states: make(map[gpu.Resource]gpu.ResourceState),
	}
	d.queue = &Queue{device: d}
	d.swapchain = newSwapchain(d, opts.Width, opts.Height, opts.BufferCount)
	return d
}

func (d *Device) Adapter() gpu.AdapterInfo { return d.adapter }
func (d *Device) Queue() gpu.Queue         { return d.queue }
func (d *Device) Swapchain() gpu.Swapchain { return d.swapchain }
func (d *Device) PollEvents()              {}

func (d *Device) Destroy() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.states = make(map[gpu.Resource]gpu.ResourceState)
}

// Stats returns a snapshot of the counters.
func (d *Device) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stats
}

// DrawCalls returns every draw executed so far, in submission order.
func (d *Device) DrawCalls() []DrawCall {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]DrawCall(nil), d.draws...)
}

// Lose simulates a removed device: every pending and future fence wait fails.
func (d *Device) Lose() {
	d.mu.Lock()
	d.lost = true
	fences := append([]*Fence(nil), d.fences...)
	d.mu.Unlock()
	for _, f := range fences {
		f.notify()
	}
}

func (d *Device) isLost() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lost
}

// ReadBuffer copies the current contents of any buffer, device local or not.
// It is the readback path used by tests.
func (d *Device) ReadBuffer(b gpu.Buffer) ([]byte, error) {
	buf, ok := b.(*Buffer)
	if !ok {
		return nil, fmt.Errorf("buffer %s was not created by the software device", b.Label())
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]byte(nil), buf.data...), nil
}

// ReadTexture copies one subresource of a texture.
func (d *Device) ReadTexture(t gpu.Texture, layer, mip uint32) ([]byte, error) {
	tex, ok := t.(*Texture)
	if !ok {
		return nil, fmt.Errorf("texture %s was not created by the software device", t.Label())
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	sub, err := tex.subresource(layer, mip)
	if err != nil {
		return nil, err
	}
	return append([]byte(nil), sub...), nil
}

// ResourceState reports the state the device believes a resource is in.
func (d *Device) ResourceState(r gpu.Resource) gpu.ResourceState {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.states[r]
}

func (d *Device) CreateBuffer(desc gpu.BufferDesc) (gpu.Buffer, error) {
	if desc.Size == 0 {
		err := fmt.Errorf("cannot create empty buffer %s", desc.Label)
		core.LogError("%s", err)
		return nil, err
	}
	b := &Buffer{
		device: d,
		desc:   desc,
		label:  core.NewIdentifier(desc.Label),
		data:   make([]byte, desc.Size),
	}
	d.mu.Lock()
	d.states[b] = desc.InitialState
	d.stats.BuffersCreated++
	d.mu.Unlock()
	return b, nil
}

func (d *Device) CreateTexture(desc gpu.TextureDesc) (gpu.Texture, error) {
	if desc.Width == 0 || desc.Height == 0 {
		err := fmt.Errorf("cannot create empty texture %s", desc.Label)
		core.LogError("%s", err)
		return nil, err
	}
	if desc.MipLevels == 0 {
		desc.MipLevels = 1
	}
	if desc.ArrayLayers == 0 {
		desc.ArrayLayers = 1
	}
	if desc.SampleCount == 0 {
		desc.SampleCount = 1
	}
	t := newTexture(d, desc)
	d.mu.Lock()
	d.states[t] = desc.InitialState
	d.stats.TexturesCreated++
	d.mu.Unlock()
	return t, nil
}

func (d *Device) CreateCommandAllocator() (gpu.CommandAllocator, error) {
	return &CommandAllocator{device: d}, nil
}

func (d *Device) CreateCommandList(allocator gpu.CommandAllocator) (gpu.CommandList, error) {
	alloc, ok := allocator.(*CommandAllocator)
	if !ok {
		return nil, fmt.Errorf("allocator was not created by the software device")
	}
	cl := &CommandList{device: d, allocator: alloc, recording: true}
	alloc.lists = append(alloc.lists, cl)
	return cl, nil
}

func (d *Device) CreateFence(initial uint64) (gpu.Fence, error) {
	f := &Fence{
		device:    d,
		completed: initial,
		signaled:  initial,
		changed:   make(chan struct{}),
		onBlock:   d.opts.OnBlock,
	}
	d.mu.Lock()
	d.fences = append(d.fences, f)
	d.mu.Unlock()
	return f, nil
}

func (d *Device) CreateDescriptorHeap(capacity uint32) (gpu.DescriptorHeap, error) {
	return &DescriptorHeap{views: make([]gpu.ViewDesc, capacity), written: make([]bool, capacity)}, nil
}

func (d *Device) CreateBindingLayout(desc gpu.BindingLayoutDesc) (gpu.BindingLayout, error) {
	return &BindingLayout{desc: desc}, nil
}

func (d *Device) CreateShaderModule(stage gpu.ShaderStage, code []byte) (gpu.ShaderModule, error) {
	if len(code) == 0 {
		return nil, fmt.Errorf("empty shader code")
	}
	return &ShaderModule{stage: stage, code: append([]byte(nil), code...)}, nil
}

func (d *Device) CreatePipeline(desc gpu.PipelineDesc) (gpu.Pipeline, error) {
	if desc.Layout == nil {
		return nil, fmt.Errorf("pipeline %s has no binding layout", desc.Label)
	}
	return &Pipeline{desc: desc}, nil
}

// transition applies a barrier to the device side state, counting mismatches.
func (d *Device) transition(r gpu.Resource, before, after gpu.ResourceState) {
	d.stats.Barriers++
	if current := d.states[r]; current != before {
		d.stats.StateMismatches++
		core.LogWarn("barrier on %s expects %s but resource is %s", r.Label(), before, current)
	}
	d.states[r] = after
}

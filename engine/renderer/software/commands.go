package software

import (
	"fmt"

	"github.com/spaghettifunk/aquarium/engine/core"
	"github.com/spaghettifunk/aquarium/engine/renderer/gpu"
)

type CommandAllocator struct {
	device *Device
	lists  []*CommandList
	// Highest fence value covering work recorded from this allocator.
	fence      *Fence
	fenceValue uint64
}

func (a *CommandAllocator) Reset() error {
	if a.fence != nil && a.fence.Completed() < a.fenceValue {
		err := fmt.Errorf("%w: waiting on fence value %d, completed %d", ErrAllocatorInUse, a.fenceValue, a.fence.Completed())
		core.LogError("%s", err)
		return err
	}
	for _, l := range a.lists {
		l.commands = nil
	}
	return nil
}

func (a *CommandAllocator) Destroy() {}

type command func(d *Device) error

type CommandList struct {
	device    *Device
	allocator *CommandAllocator
	commands  []command
	recording bool
	// submitted but not yet covered by a signal
	pending bool

	layout   gpu.BindingLayout
	pipeline gpu.Pipeline
	index    *gpu.IndexBufferView
	vertex   map[uint32]gpu.VertexBufferView
}

func (cl *CommandList) Reset(allocator gpu.CommandAllocator) error {
	alloc, ok := allocator.(*CommandAllocator)
	if !ok {
		return fmt.Errorf("allocator was not created by the software device")
	}
	if cl.allocator != alloc {
		alloc.lists = append(alloc.lists, cl)
		cl.allocator = alloc
	}
	cl.commands = nil
	cl.recording = true
	cl.layout = nil
	cl.pipeline = nil
	cl.index = nil
	cl.vertex = nil
	return nil
}

func (cl *CommandList) Close() error {
	if !cl.recording {
		return ErrListNotOpen
	}
	cl.recording = false
	return nil
}

func (cl *CommandList) Destroy() {}

// Recording reports whether the list is open.
func (cl *CommandList) Recording() bool {
	return cl.recording
}

func (cl *CommandList) record(c command) {
	if !cl.recording {
		core.LogError("command recorded into a closed command list")
		return
	}
	cl.commands = append(cl.commands, c)
}

func (cl *CommandList) ResourceBarrier(resource gpu.Resource, before, after gpu.ResourceState) {
	cl.record(func(d *Device) error {
		d.transition(resource, before, after)
		return nil
	})
}

func (cl *CommandList) CopyBuffer(dst, src gpu.Buffer, size uint64) {
	cl.record(func(d *Device) error {
		db, sb := dst.(*Buffer), src.(*Buffer)
		if size > uint64(len(db.data)) || size > uint64(len(sb.data)) {
			return fmt.Errorf("copy of %d bytes overflows %s or %s", size, db.label, sb.label)
		}
		if st := d.states[db]; st != gpu.ResourceStateCopyDest {
			d.stats.StateMismatches++
			core.LogWarn("copy into %s while in %s", db.label, st)
		}
		copy(db.data[:size], sb.data[:size])
		d.stats.Copies++
		return nil
	})
}

func (cl *CommandList) CopyBufferToTexture(dst gpu.Texture, layer, mip uint32, src gpu.Buffer, srcOffset uint64) {
	cl.record(func(d *Device) error {
		tex, sb := dst.(*Texture), src.(*Buffer)
		sub, err := tex.subresource(layer, mip)
		if err != nil {
			return err
		}
		if srcOffset+uint64(len(sub)) > uint64(len(sb.data)) {
			return fmt.Errorf("texture copy reads past the end of %s", sb.label)
		}
		if st := d.states[tex]; st != gpu.ResourceStateCopyDest {
			d.stats.StateMismatches++
			core.LogWarn("copy into %s while in %s", tex.label, st)
		}
		copy(sub, sb.data[srcOffset:srcOffset+uint64(len(sub))])
		d.stats.Copies++
		return nil
	})
}

func (cl *CommandList) ResolveTexture(dst, src gpu.Texture) {
	cl.record(func(d *Device) error {
		dt, st := dst.(*Texture), src.(*Texture)
		if d.states[st] != gpu.ResourceStateResolveSource || d.states[dt] != gpu.ResourceStateResolveDest {
			d.stats.StateMismatches++
		}
		if len(dt.data) > 0 && len(st.data) > 0 {
			copy(dt.data[0], st.data[0])
		}
		return nil
	})
}

func (cl *CommandList) SetDescriptorHeap(heap gpu.DescriptorHeap) {}

func (cl *CommandList) SetViewport(viewport gpu.Viewport) {}

func (cl *CommandList) SetScissor(rect gpu.Rect) {}

func (cl *CommandList) BeginRenderPass(desc gpu.RenderPassDesc) {
	cl.record(func(d *Device) error {
		if desc.Color != nil && d.states[desc.Color] != gpu.ResourceStateRenderTarget {
			d.stats.StateMismatches++
			core.LogWarn("render pass color attachment %s is %s", desc.Color.Label(), d.states[desc.Color])
		}
		return nil
	})
}

func (cl *CommandList) EndRenderPass() {}

func (cl *CommandList) SetBindingLayout(layout gpu.BindingLayout) {
	cl.layout = layout
}

func (cl *CommandList) SetPipeline(pipeline gpu.Pipeline) {
	cl.pipeline = pipeline
}

func (cl *CommandList) SetDescriptorTable(param uint32, base uint32) {}

func (cl *CommandList) SetConstantBuffer(param uint32, buffer gpu.Buffer, offset uint64) {}

func (cl *CommandList) SetVertexBuffers(startSlot uint32, views ...gpu.VertexBufferView) {
	if cl.vertex == nil {
		cl.vertex = make(map[uint32]gpu.VertexBufferView)
	}
	for i, v := range views {
		cl.vertex[startSlot+uint32(i)] = v
	}
}

func (cl *CommandList) SetIndexBuffer(view gpu.IndexBufferView) {
	cl.index = &view
}

func (cl *CommandList) DrawIndexedInstanced(indexCount, instanceCount, startIndex uint32, baseVertex int32, startInstance uint32) {
	if cl.pipeline == nil || cl.layout == nil {
		core.LogError("draw recorded without a pipeline and binding layout")
		return
	}
	if cl.index == nil {
		core.LogError("draw recorded without an index buffer")
		return
	}
	call := DrawCall{
		Pipeline:      cl.pipeline.Desc().Label,
		IndexCount:    indexCount,
		InstanceCount: instanceCount,
		StartInstance: startInstance,
		VertexBuffers: len(cl.vertex),
	}
	vertex := make([]gpu.Buffer, 0, len(cl.vertex))
	for _, v := range cl.vertex {
		vertex = append(vertex, v.Buffer)
	}
	index := cl.index.Buffer
	cl.record(func(d *Device) error {
		for _, b := range vertex {
			if st := d.states[b]; st != gpu.ResourceStateVertexAndConstantBuffer && st != gpu.ResourceStateGenericRead {
				d.stats.StateMismatches++
				core.LogWarn("vertex buffer %s bound while in %s", b.Label(), st)
			}
		}
		if st := d.states[index]; st != gpu.ResourceStateIndexBuffer && st != gpu.ResourceStateVertexAndConstantBuffer && st != gpu.ResourceStateGenericRead {
			d.stats.StateMismatches++
			core.LogWarn("index buffer %s bound while in %s", index.Label(), st)
		}
		d.stats.Draws++
		d.stats.Instances += int(instanceCount)
		d.draws = append(d.draws, call)
		return nil
	})
}

package uniforms

import (
	"fmt"
	"unsafe"

	"github.com/spaghettifunk/aquarium/engine/core"
	"github.com/spaghettifunk/aquarium/engine/renderer/gpu"
	"github.com/spaghettifunk/aquarium/engine/renderer/staging"
)

// Static is a constant block uploaded once into device local memory.
type Static[T any] struct {
	Value  T
	buffer *staging.GPUBuffer
}

func NewStatic[T any](stager *staging.Stager, list gpu.CommandList, label string, value T) (*Static[T], error) {
	buf, err := stager.UploadStatic(list, label, gpu.ValueBytes(&value), staging.RoleConstant, 0)
	if err != nil {
		return nil, err
	}
	return &Static[T]{Value: value, buffer: buf}, nil
}

func (s *Static[T]) Buffer() gpu.Buffer {
	return s.buffer.Buffer
}

func (s *Static[T]) Destroy() {
	s.buffer.Destroy()
}

// Dynamic is a constant block in a persistently mapped upload buffer,
// rewritten every frame before the draws that read it are recorded.
type Dynamic[T any] struct {
	Value  T
	mapped *staging.MappedBuffer
}

func NewDynamic[T any](stager *staging.Stager, label string) (*Dynamic[T], error) {
	var zero T
	size := gpu.CalcConstantBufferByteSize(uint64(unsafe.Sizeof(zero)))
	mapped, err := stager.UploadDynamic(label, size, 0)
	if err != nil {
		return nil, err
	}
	return &Dynamic[T]{mapped: mapped}, nil
}

// Set stores the value and copies it into the mapped range.
func (d *Dynamic[T]) Set(value T) error {
	d.Value = value
	return d.Flush()
}

// Flush copies the current value into the mapped range.
func (d *Dynamic[T]) Flush() error {
	return d.mapped.Update(gpu.ValueBytes(&d.Value))
}

func (d *Dynamic[T]) Buffer() gpu.Buffer {
	return d.mapped.Buffer
}

func (d *Dynamic[T]) Destroy() {
	d.mapped.Destroy()
}

// Array accumulates per-instance entries up to a fixed capacity.
type Array[T any] struct {
	items []T
	count int
}

// NewArray checks the requested element count against the hard cap of the
// consumer and allocates storage for it.
func NewArray[T any](capacity, limit int) (*Array[T], error) {
	if capacity <= 0 || (limit > 0 && capacity > limit) {
		err := fmt.Errorf("%w: %d instances requested, limit is %d", core.ErrInstanceCapExceeded, capacity, limit)
		core.LogError("%s", err)
		return nil, err
	}
	return &Array[T]{items: make([]T, capacity)}, nil
}

// Append adds an entry after the last one.
func (a *Array[T]) Append(v T) error {
	if a.count >= len(a.items) {
		err := fmt.Errorf("%w: array of %d entries is full", core.ErrInstanceCapExceeded, len(a.items))
		core.LogError("%s", err)
		return err
	}
	a.items[a.count] = v
	a.count++
	return nil
}

// Set writes the entry at index, growing the count to cover it.
func (a *Array[T]) Set(index int, v T) error {
	if index < 0 || index >= len(a.items) {
		err := fmt.Errorf("%w: index %d outside %d entries", core.ErrInstanceCapExceeded, index, len(a.items))
		core.LogError("%s", err)
		return err
	}
	a.items[index] = v
	if index >= a.count {
		a.count = index + 1
	}
	return nil
}

func (a *Array[T]) At(index int) T {
	return a.items[index]
}

// Ptr returns the entry at index for in-place edits.
func (a *Array[T]) Ptr(index int) *T {
	return &a.items[index]
}

func (a *Array[T]) Len() int {
	return a.count
}

func (a *Array[T]) Cap() int {
	return len(a.items)
}

func (a *Array[T]) Reset() {
	a.count = 0
}

// Bytes returns the memory of every entry, used or not.
func (a *Array[T]) Bytes() []byte {
	return gpu.RawBytes(a.items)
}

// ElementSize is the byte stride between entries.
func (a *Array[T]) ElementSize() uint32 {
	var zero T
	return uint32(unsafe.Sizeof(zero))
}

// MappedArray is an Array backed by a persistently mapped upload buffer.
type MappedArray[T any] struct {
	*Array[T]
	mapped *staging.MappedBuffer
}

func NewMappedArray[T any](stager *staging.Stager, label string, capacity, limit int) (*MappedArray[T], error) {
	arr, err := NewArray[T](capacity, limit)
	if err != nil {
		return nil, err
	}
	size := uint64(len(arr.Bytes()))
	mapped, err := stager.UploadDynamic(label, gpu.CalcConstantBufferByteSize(size), arr.ElementSize())
	if err != nil {
		return nil, err
	}
	return &MappedArray[T]{Array: arr, mapped: mapped}, nil
}

// Flush copies the used entries into the mapped range.
func (m *MappedArray[T]) Flush() error {
	return m.FlushRange(0, m.count)
}

// FlushRange copies entries [from, to) into the mapped range.
func (m *MappedArray[T]) FlushRange(from, to int) error {
	if from >= to {
		return nil
	}
	offset := uint64(from) * uint64(m.ElementSize())
	return m.mapped.UpdateAt(offset, gpu.RawBytes(m.items[from:to]))
}

func (m *MappedArray[T]) Buffer() gpu.Buffer {
	return m.mapped.Buffer
}

func (m *MappedArray[T]) VertexView() gpu.VertexBufferView {
	return m.mapped.VertexView()
}

func (m *MappedArray[T]) Destroy() {
	m.mapped.Destroy()
}

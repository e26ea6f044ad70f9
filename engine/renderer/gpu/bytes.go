package gpu

import "unsafe"

// RawBytes returns the memory of a slice of plain values as bytes without
// copying. T must not contain pointers.
func RawBytes[T any](values []T) []byte {
	if len(values) == 0 {
		return nil
	}
	size := int(unsafe.Sizeof(values[0])) * len(values)
	return unsafe.Slice((*byte)(unsafe.Pointer(&values[0])), size)
}

// ValueBytes returns the memory of a single plain value.
func ValueBytes[T any](value *T) []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(value)), unsafe.Sizeof(*value))
}

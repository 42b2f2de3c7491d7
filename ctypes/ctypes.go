// Package ctypes holds the raw C primitive types that generated bindings
// are written against, and the library loader their Load function uses.
package ctypes

import (
	"unsafe"

	"github.com/jupiterrider/ffi"
)

type (
	Char      = int8
	SChar     = int8
	UChar     = uint8
	Short     = int16
	UShort    = uint16
	Int       = int32
	UInt      = uint32
	LongLong  = int64
	ULongLong = uint64
	Float     = float32
	Double    = float64
	SizeT     = uintptr
)

// TypeSizeT describes size_t to libffi.
var TypeSizeT = pointerSized()

func pointerSized() *ffi.Type {
	if unsafe.Sizeof(uintptr(0)) == 8 {
		return &ffi.TypeUint64
	}
	return &ffi.TypeUint32
}

// Array returns n copies of t, the way libffi expects an array member of a
// struct to be described.
func Array(t *ffi.Type, n int) []*ffi.Type {
	elems := make([]*ffi.Type, n)
	for i := range elems {
		elems[i] = t
	}
	return elems
}

// Flatten joins struct members into the element list of ffi.NewType.
func Flatten(members ...[]*ffi.Type) []*ffi.Type {
	var elems []*ffi.Type
	for _, m := range members {
		elems = append(elems, m...)
	}
	return elems
}

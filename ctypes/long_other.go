//go:build !windows

package ctypes

import "github.com/jupiterrider/ffi"

// long follows the pointer width outside Windows.
type (
	Long  = int
	ULong = uint
)

var (
	TypeLong  = signedPointerSized()
	TypeULong = pointerSized()
)

func signedPointerSized() *ffi.Type {
	if TypeSizeT == &ffi.TypeUint64 {
		return &ffi.TypeSint64
	}
	return &ffi.TypeSint32
}

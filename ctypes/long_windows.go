package ctypes

import "github.com/jupiterrider/ffi"

type (
	Long  = int32
	ULong = uint32
)

var (
	TypeLong  = &ffi.TypeSint32
	TypeULong = &ffi.TypeUint32
)

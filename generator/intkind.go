package generator

import (
	"math"
	"strconv"
)

// IntKind is the Go integer type a constant is declared with.
type IntKind int

const (
	I8 IntKind = iota + 1
	U8
	I16
	U16
	I32
	U32
	I64
	U64
)

func (k IntKind) GoType() string {
	switch k {
	case I8:
		return "int8"
	case U8:
		return "uint8"
	case I16:
		return "int16"
	case U16:
		return "uint16"
	case I32:
		return "int32"
	case U32:
		return "uint32"
	case U64:
		return "uint64"
	default:
		return "int64"
	}
}

func (k IntKind) String() string {
	return k.GoType()
}

// Wrap converts v the way a C cast to k would.
func (k IntKind) Wrap(v int64) int64 {
	switch k {
	case I8:
		return int64(int8(v))
	case U8:
		return int64(uint8(v))
	case I16:
		return int64(int16(v))
	case U16:
		return int64(uint16(v))
	case I32:
		return int64(int32(v))
	case U32:
		return int64(uint32(v))
	default:
		return v
	}
}

// Literal renders v, wrapped to k, as a Go constant.
func (k IntKind) Literal(v int64) string {
	if k == U64 {
		return strconv.FormatUint(uint64(v), 10)
	}

	return strconv.FormatInt(k.Wrap(v), 10)
}

// InferIntKind picks the type used when no policy overrides it.
func InferIntKind(v int64) IntKind {
	switch {
	case v >= 0 && v <= math.MaxUint32:
		return U32
	case v < 0 && v >= math.MinInt32:
		return I32
	default:
		return I64
	}
}

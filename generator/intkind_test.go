package generator

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInferIntKind(t *testing.T) {
	assert.Equal(t, U32, InferIntKind(0))
	assert.Equal(t, U32, InferIntKind(math.MaxUint32))
	assert.Equal(t, I32, InferIntKind(-0x7080))
	assert.Equal(t, I64, InferIntKind(math.MinInt32-1))
	assert.Equal(t, I64, InferIntKind(math.MaxUint32+1))
}

func TestIntKindLiteral(t *testing.T) {
	tests := []struct {
		kind IntKind
		in   int64
		want string
	}{
		{I32, -0x0020, "-32"},
		{I32, 0xFFFFFFFF, "-1"},
		{U32, -1, "4294967295"},
		{U8, 0x1FF, "255"},
		{I8, 0xFF, "-1"},
		{I16, 0x8000, "-32768"},
		{U16, -1, "65535"},
		{I64, math.MinInt64, "-9223372036854775808"},
		{U64, -1, "18446744073709551615"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.kind.Literal(tt.in), "%s(%d)", tt.kind, tt.in)
	}
}

func TestIntKindGoType(t *testing.T) {
	assert.Equal(t, "int32", I32.GoType())
	assert.Equal(t, "uint64", U64.GoType())
	assert.Equal(t, "uint8", U8.GoType())
}

package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvaluator(t *testing.T) {
	e := NewEvaluator([]Define{
		{Name: "MBEDTLS_SSL_MAX_CONTENT_LEN", Body: "16384"},
		{Name: "MBEDTLS_SSL_IN_CONTENT_LEN", Body: "MBEDTLS_SSL_MAX_CONTENT_LEN"},
		{Name: "MBEDTLS_SELF", Body: "MBEDTLS_SELF + 1"},
		{Name: "MBEDTLS_SSL_IN_CONTENT_LEN", Body: "1"},
	})
	e.SetConst("MBEDTLS_MD_SHA256", 9)

	tests := []struct {
		expr string
		want int64
	}{
		{"-0x0020", -32},
		{"( -0x6100 )", -0x6100},
		{"(1 << 3)", 8},
		{"0x80000000UL", 0x80000000},
		{"0755", 0o755},
		{"~0", -1},
		{"!0", 1},
		{"10 % 4", 2},
		{"(int) 7", 7},
		{"1 ? 2 : 3", 2},
		{"0xF0 | 0x0F", 0xFF},
		{"0xF0 & 0x3C", 0x30},
		{"0xF0 ^ 0xFF", 0x0F},
		{"1 < 2 && 3 >= 3", 1},
		{"MBEDTLS_SSL_IN_CONTENT_LEN", 16384},
		{"MBEDTLS_MD_SHA256 + 1", 10},
		{"'A'", 65},
	}

	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			got, err := e.Eval(tt.expr)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEvaluatorErrors(t *testing.T) {
	e := NewEvaluator([]Define{{Name: "MBEDTLS_SELF", Body: "MBEDTLS_SELF + 1"}})

	_, err := e.Lookup("MBEDTLS_SELF")
	assert.ErrorIs(t, err, errCycle)

	_, err = e.Eval("1 / 0")
	assert.Error(t, err)

	_, err = e.Eval("UNDEFINED_NAME")
	assert.Error(t, err)

	_, err = e.Eval(`"text"`)
	assert.Error(t, err)

	_, err = e.Eval("1.5")
	assert.Error(t, err)
}

func TestResolveAddsOpaqueStructs(t *testing.T) {
	h := &Header{
		TypeDefs: []TypeDef{
			{Name: "mbedtls_ssl_context", SourceType: CType{Name: "mbedtls_ssl_context", Elaborated: "struct"}},
			{Name: "mbedtls_known", SourceType: CType{Name: "mbedtls_known", Elaborated: "struct"}},
		},
		Structs: []Struct{{Name: "mbedtls_known", Tag: "mbedtls_known"}},
	}

	Resolve(h, nil)

	require.Len(t, h.Structs, 2)
	assert.Equal(t, "mbedtls_ssl_context", h.Structs[1].Name)
	assert.True(t, h.Structs[1].IsOpaque)
}

func TestResolveUnknownArrayBound(t *testing.T) {
	h := &Header{
		Structs: []Struct{{
			Name: "mbedtls_md_context",
			Fields: []StructField{
				{Name: "buf", Type: CType{Name: "char", DimExprs: []string{"MBEDTLS_UNKNOWN_SIZE"}}},
			},
		}},
	}

	Resolve(h, nil)

	assert.False(t, h.Structs[0].IsOpaque)
	assert.Empty(t, h.Structs[0].Fields)
}

func TestResolveSkipsBuiltinDefines(t *testing.T) {
	h := &Header{}
	Resolve(h, []Define{
		{Name: "MBEDTLS_FROM_COMMAND_LINE", Body: "1", Builtin: true},
		{Name: "MBEDTLS_FROM_HEADER", Body: "2"},
		{Name: "MBEDTLS_FROM_HEADER", Body: "3"},
	})

	require.Len(t, h.Macros, 1)
	assert.Equal(t, "MBEDTLS_FROM_HEADER", h.Macros[0].Name)
	assert.Equal(t, int64(2), h.Macros[0].Value)
}

package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const aesHeader = `
#ifndef MBEDTLS_AES_H
#define MBEDTLS_AES_H

#include "mbedtls/build_info.h"

/* padlock.c and aesni.c rely on these values! */
#define MBEDTLS_AES_ENCRYPT     1 /**< AES encryption. */
#define MBEDTLS_AES_DECRYPT     0 /**< AES decryption. */

#define MBEDTLS_ERR_AES_INVALID_KEY_LENGTH                -0x0020
#define MBEDTLS_ERR_AES_INVALID_INPUT_LENGTH              -0x0022
#define MBEDTLS_AES_BLOCK_WORDS (MBEDTLS_AES_BLOCK_SIZE / 4)
#define MBEDTLS_AES_BLOCK_SIZE 16
#define MBEDTLS_AES_NAME "aes"
#define MBEDTLS_AES_MAX(a, b) ((a) > (b) ? (a) : (b))
#define MBEDTLS_CHECK_RETURN_TYPICAL

#ifdef __cplusplus
extern "C" {
#endif

typedef struct mbedtls_aes_context {
    int MBEDTLS_PRIVATE(nr);
    size_t MBEDTLS_PRIVATE(rk_offset);
    uint32_t MBEDTLS_PRIVATE(buf)[68];
} mbedtls_aes_context;

typedef struct mbedtls_aes_xts_context mbedtls_aes_xts_context;

void mbedtls_aes_init(mbedtls_aes_context *ctx);

MBEDTLS_CHECK_RETURN_TYPICAL
int mbedtls_aes_setkey_enc(mbedtls_aes_context *ctx, const unsigned char *key,
                           unsigned int keybits);

int mbedtls_aes_crypt_cbc(mbedtls_aes_context *ctx,
                          int mode,
                          size_t length,
                          unsigned char iv[16],
                          const unsigned char *input,
                          unsigned char *output);

static inline int mbedtls_aes_helper(void)
{
    return 0;
}

void mbedtls_debug_print(const char *format, ...);

#ifdef __cplusplus
}
#endif

#endif /* aes.h */
`

func TestParse(t *testing.T) {
	h, err := Parse(aesHeader)
	require.NoError(t, err)

	require.Len(t, h.Structs, 2)
	ctx := h.Structs[0]
	assert.Equal(t, "mbedtls_aes_context", ctx.Name)
	assert.False(t, ctx.IsOpaque)
	require.Len(t, ctx.Fields, 3)
	assert.Equal(t, "nr", ctx.Fields[0].Name)
	assert.Equal(t, "int", ctx.Fields[0].Type.Name)
	assert.Equal(t, "size_t", ctx.Fields[1].Type.Name)
	assert.Equal(t, "buf", ctx.Fields[2].Name)
	assert.Equal(t, []int64{68}, ctx.Fields[2].Type.Dims)

	xts := h.Structs[1]
	assert.Equal(t, "mbedtls_aes_xts_context", xts.Name)
	assert.True(t, xts.IsOpaque)

	names := make([]string, 0, len(h.Functions))
	for _, fn := range h.Functions {
		names = append(names, fn.Name)
	}
	assert.Equal(t, []string{
		"mbedtls_aes_init",
		"mbedtls_aes_setkey_enc",
		"mbedtls_aes_crypt_cbc",
		"mbedtls_debug_print",
	}, names)

	setkey := h.Functions[1]
	assert.Equal(t, "int", setkey.ReturnType.Name)
	require.Len(t, setkey.Params, 3)
	assert.Equal(t, "key", setkey.Params[1].Name)
	assert.True(t, setkey.Params[1].Type.IsConst)
	assert.True(t, setkey.Params[1].Type.IsUnsigned)
	assert.Equal(t, 1, setkey.Params[1].Type.Pointers)
	assert.Equal(t, "keybits", setkey.Params[2].Name)
	assert.True(t, setkey.Params[2].Type.IsUnsigned)

	cbc := h.Functions[2]
	assert.Equal(t, "iv", cbc.Params[3].Name)
	assert.Equal(t, 1, cbc.Params[3].Type.Pointers)
	assert.False(t, cbc.Params[3].Type.IsArray())

	assert.True(t, h.Functions[3].IsVariadic)
}

func TestParseMacros(t *testing.T) {
	h, err := Parse(aesHeader)
	require.NoError(t, err)

	values := make(map[string]int64)
	for _, m := range h.Macros {
		values[m.Name] = m.Value
	}

	assert.Equal(t, int64(1), values["MBEDTLS_AES_ENCRYPT"])
	assert.Equal(t, int64(0), values["MBEDTLS_AES_DECRYPT"])
	assert.Equal(t, int64(-0x20), values["MBEDTLS_ERR_AES_INVALID_KEY_LENGTH"])
	assert.Equal(t, int64(4), values["MBEDTLS_AES_BLOCK_WORDS"])
	assert.NotContains(t, values, "MBEDTLS_AES_NAME")
	assert.NotContains(t, values, "MBEDTLS_AES_MAX")
	assert.NotContains(t, values, "MBEDTLS_AES_H")
}

func TestParseEnums(t *testing.T) {
	src := `
#define MBEDTLS_BASE 4
typedef enum {
    MBEDTLS_MODE_NONE = 0,
    MBEDTLS_MODE_ECB,
    MBEDTLS_MODE_CBC,
    MBEDTLS_MODE_CFB = MBEDTLS_BASE << 1,
    MBEDTLS_MODE_OFB,
} mbedtls_cipher_mode_t;

enum {
    MBEDTLS_ANON_A = -1,
    MBEDTLS_ANON_B = sizeof(int),
    MBEDTLS_ANON_C,
    MBEDTLS_ANON_D = 'x',
};
`
	h, err := Parse(src)
	require.NoError(t, err)
	require.Len(t, h.Enums, 2)

	mode := h.Enums[0]
	assert.Equal(t, "mbedtls_cipher_mode_t", mode.Name)
	want := []int64{0, 1, 2, 8, 9}
	for i, v := range mode.Values {
		assert.False(t, v.Unresolved, v.Name)
		assert.Equal(t, want[i], v.Value, v.Name)
	}

	anon := h.Enums[1]
	assert.Equal(t, "", anon.Name)
	assert.Equal(t, int64(-1), anon.Values[0].Value)
	assert.True(t, anon.Values[1].Unresolved)
	assert.True(t, anon.Values[2].Unresolved)
	assert.Equal(t, int64('x'), anon.Values[3].Value)
}

func TestParseTopLevelConditionals(t *testing.T) {
	src := `
#if defined(MBEDTLS_HAVE_TIME_DATE)
int mbedtls_platform_gmtime_r(const void *tt, void *tm_buf);
#else
int mbedtls_platform_no_time(void);
#endif

#ifdef __cplusplus
extern "C" {
#endif
typedef struct mbedtls_md_context_t {
    const void *md_info;
} mbedtls_md_context_t;
#ifdef __cplusplus
}
#endif
`
	h, err := Parse(src)
	require.NoError(t, err)

	require.Len(t, h.Functions, 2)
	assert.Equal(t, "mbedtls_platform_gmtime_r", h.Functions[0].Name)
	assert.Equal(t, "mbedtls_platform_no_time", h.Functions[1].Name)
	require.Len(t, h.Structs, 1)
	assert.Len(t, h.Structs[0].Fields, 1)
}

func TestParseConditionalInsideDeclaration(t *testing.T) {
	tests := []struct {
		name string
		src  string
		decl string
	}{
		{
			name: "struct",
			src: `
typedef struct mbedtls_gcm_context {
#if defined(MBEDTLS_BLOCK_CIPHER_C)
    mbedtls_block_cipher_context_t block_cipher_ctx;
#else
    mbedtls_cipher_context_t cipher_ctx;
#endif
    uint64_t H[16][2];
} mbedtls_gcm_context;
`,
			decl: "typedef struct mbedtls_gcm_context",
		},
		{
			name: "enum",
			src: `
typedef enum {
    MBEDTLS_SSL_HELLO_REQUEST,
#if defined(MBEDTLS_SSL_PROTO_TLS1_3)
    MBEDTLS_SSL_END_OF_EARLY_DATA,
#endif
    MBEDTLS_SSL_HANDSHAKE_OVER,
} mbedtls_ssl_states;
`,
			decl: "typedef enum",
		},
		{
			name: "params",
			src: `
int mbedtls_ssl_conf_psk(void *conf,
#if defined(MBEDTLS_SSL_PSK_IDENTITY)
                         const unsigned char *psk_identity,
#endif
                         size_t psk_len);
`,
			decl: "mbedtls_ssl_conf_psk",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.src)
			require.ErrorIs(t, err, ErrConditionalBody)
			assert.Contains(t, err.Error(), tt.decl)
		})
	}
}

func TestParseUnionMember(t *testing.T) {
	src := `
typedef struct mbedtls_block_cipher_context_t {
    mbedtls_block_cipher_id_t id;
    union {
        unsigned dummy;
        mbedtls_aes_context aes;
    } ctx;
} mbedtls_block_cipher_context_t;

struct mbedtls_bits { unsigned a : 3; unsigned b : 5; };
`
	h, err := Parse(src)
	require.NoError(t, err)
	require.Len(t, h.Structs, 2)

	for _, s := range h.Structs {
		assert.False(t, s.IsOpaque, s.Name)
		assert.Empty(t, s.Fields, s.Name)
		assert.Zero(t, s.Size, s.Name)
	}
}

func TestParseTypedefs(t *testing.T) {
	src := `
typedef int (*mbedtls_f_rng_t)(void *p_rng, unsigned char *output, size_t len);
typedef unsigned long long mbedtls_mpi_uint;
typedef time_t mbedtls_time_t;
typedef union mbedtls_union { int a; char b; } mbedtls_union;
typedef struct {
    int (*f_rng)(void *, unsigned char *, size_t);
    void *p_rng;
    unsigned char a, *b, c[2];
} mbedtls_rng_holder, *mbedtls_rng_holder_ptr;
`
	h, err := Parse(src)
	require.NoError(t, err)

	byName := make(map[string]TypeDef)
	for _, td := range h.TypeDefs {
		byName[td.Name] = td
	}

	assert.True(t, byName["mbedtls_f_rng_t"].SourceType.IsFuncPtr)
	assert.Equal(t, "long long", byName["mbedtls_mpi_uint"].SourceType.Name)
	assert.True(t, byName["mbedtls_mpi_uint"].SourceType.IsUnsigned)
	assert.Equal(t, "time_t", byName["mbedtls_time_t"].SourceType.Name)
	assert.Equal(t, "mbedtls_rng_holder", byName["mbedtls_rng_holder_ptr"].SourceType.Name)
	assert.Equal(t, 1, byName["mbedtls_rng_holder_ptr"].SourceType.Pointers)

	require.Len(t, h.Structs, 2)
	assert.True(t, h.Structs[0].IsUnion)
	assert.False(t, h.Structs[0].IsOpaque)
	assert.Empty(t, h.Structs[0].Fields)

	holder := h.Structs[1]
	assert.Equal(t, "mbedtls_rng_holder", holder.Name)
	require.Len(t, holder.Fields, 5)
	assert.True(t, holder.Fields[0].Type.IsFuncPtr)
	assert.Equal(t, "b", holder.Fields[3].Name)
	assert.Equal(t, 1, holder.Fields[3].Type.Pointers)
	assert.Equal(t, []int64{2}, holder.Fields[4].Type.Dims)
}

func TestParseDeclarator(t *testing.T) {
	tests := []struct {
		in       string
		name     string
		typeName string
		pointers int
	}{
		{"const unsigned char *key", "key", "char", 1},
		{"size_t", "", "size_t", 0},
		{"const size_t", "", "size_t", 0},
		{"void *", "", "void", 1},
		{"struct mbedtls_foo", "", "mbedtls_foo", 0},
		{"struct mbedtls_foo **out", "out", "mbedtls_foo", 2},
		{"unsigned int", "", "int", 0},
		{"unsigned bits", "bits", "int", 0},
		{"long int n", "n", "long", 0},
		{"unsigned long long x", "x", "long long", 0},
		{"short int s", "s", "short", 0},
		{"char *const restrict p", "p", "char", 1},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			name, ct, ok := parseDeclarator(tt.in)
			require.True(t, ok)
			assert.Equal(t, tt.name, name)
			assert.Equal(t, tt.typeName, ct.Name)
			assert.Equal(t, tt.pointers, ct.Pointers)
		})
	}
}

func TestParseDeclaratorWrappedFuncPtr(t *testing.T) {
	name, ct, ok := parseDeclarator("void(*MBEDTLS_PRIVATE(add_padding))(unsigned char *output, size_t olen, size_t data_len)")
	require.True(t, ok)
	assert.Equal(t, "add_padding", name)
	assert.True(t, ct.IsFuncPtr)

	fields, ok := parseStructFields(`const int *MBEDTLS_PRIVATE(info);
		int(*MBEDTLS_PRIVATE(get_padding))(unsigned char *input, size_t ilen, size_t *data_len);
		size_t MBEDTLS_PRIVATE(iv_size)`)
	require.True(t, ok)
	require.Len(t, fields, 3)
	assert.Equal(t, "info", fields[0].Name)
	assert.Equal(t, "get_padding", fields[1].Name)
	assert.True(t, fields[1].Type.IsFuncPtr)
	assert.Equal(t, "iv_size", fields[2].Name)
}

func TestParseDeclaratorRejectsGarbage(t *testing.T) {
	_, _, ok := parseDeclarator("int (*f[4])(void)")
	assert.False(t, ok)

	_, _, ok = parseDeclarator("")
	assert.False(t, ok)
}

func TestSplitStatementsDropsBodies(t *testing.T) {
	stmts := splitStatements(`int a(void); static inline int b(void) { return 1; } int c(int x);`)
	require.Len(t, stmts, 2)
	assert.Equal(t, "int a(void)", normalizeWhitespace(stmts[0]))
	assert.Equal(t, "int c(int x)", normalizeWhitespace(stmts[1]))
}

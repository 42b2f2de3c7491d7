package ctypes

import (
	"path/filepath"
	"runtime"
	"testing"
	"unsafe"

	"github.com/jupiterrider/ffi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlatten(t *testing.T) {
	elems := Flatten(
		Array(&ffi.TypeSint32, 1),
		Array(&ffi.TypeUint8, 3),
		Array(&ffi.TypePointer, 0),
	)

	require.Len(t, elems, 4)
	assert.Same(t, &ffi.TypeSint32, elems[0])
	for _, e := range elems[1:] {
		assert.Same(t, &ffi.TypeUint8, e)
	}
}

func TestPlatformWidths(t *testing.T) {
	assert.Equal(t, unsafe.Sizeof(uintptr(0)), unsafe.Sizeof(SizeT(0)))
	assert.EqualValues(t, unsafe.Sizeof(SizeT(0)), TypeSizeT.Size)

	if runtime.GOOS != "windows" {
		assert.Equal(t, unsafe.Sizeof(uintptr(0)), unsafe.Sizeof(Long(0)))
	} else {
		assert.EqualValues(t, 4, unsafe.Sizeof(Long(0)))
	}
	assert.EqualValues(t, unsafe.Sizeof(Long(0)), TypeLong.Size)
	assert.EqualValues(t, unsafe.Sizeof(ULong(0)), TypeULong.Size)
}

func TestLibraryPath(t *testing.T) {
	got := LibraryPath("/opt/mbedtls/lib", "mbedcrypto")

	switch runtime.GOOS {
	case "darwin", "ios":
		assert.Equal(t, filepath.Join("/opt/mbedtls/lib", "libmbedcrypto.dylib"), got)
	case "windows":
		assert.Equal(t, filepath.Join("/opt/mbedtls/lib", "mbedcrypto.dll"), got)
	default:
		assert.Equal(t, filepath.Join("/opt/mbedtls/lib", "libmbedcrypto.so"), got)
	}

	assert.Equal(t, filepath.Base(got), LibraryPath("", "mbedcrypto"))
}

func TestOpenMissingLibrary(t *testing.T) {
	libs, err := Open(t.TempDir(), "mbedcrypto")
	assert.Error(t, err)
	assert.Nil(t, libs)
}

func TestPrepWithoutLibraries(t *testing.T) {
	_, err := Libs{}.Prep("mbedtls_version_get_number", &ffi.TypeUint32)
	assert.EqualError(t, err, "no libraries loaded")
}

func TestCString(t *testing.T) {
	p, err := CString("mbedtls")
	require.NoError(t, err)
	assert.Equal(t, "mbedtls", GoString(p))

	_, err = CString("bad\x00string")
	assert.Error(t, err)

	assert.Equal(t, "", GoString(nil))
}

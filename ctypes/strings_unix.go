//go:build unix

package ctypes

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

// CString copies s into a NUL terminated buffer.
func CString(s string) (*Char, error) {
	p, err := unix.BytePtrFromString(s)
	if err != nil {
		return nil, err
	}
	return (*Char)(unsafe.Pointer(p)), nil
}

func GoString(p *Char) string {
	if p == nil {
		return ""
	}
	return unix.BytePtrToString((*byte)(unsafe.Pointer(p)))
}

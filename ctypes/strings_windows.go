package ctypes

import (
	"unsafe"

	"golang.org/x/sys/windows"
)

// CString copies s into a NUL terminated buffer.
func CString(s string) (*Char, error) {
	p, err := windows.BytePtrFromString(s)
	if err != nil {
		return nil, err
	}
	return (*Char)(unsafe.Pointer(p)), nil
}

func GoString(p *Char) string {
	if p == nil {
		return ""
	}
	return windows.BytePtrToString((*byte)(unsafe.Pointer(p)))
}

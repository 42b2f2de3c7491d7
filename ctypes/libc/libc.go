// Package libc declares the C library types generated bindings refer to
// without defining them. Bindings dot-import it.
package libc

import "github.com/jupiterrider/ffi"

// FILE is only ever used behind a pointer.
type FILE struct {
	_ [0]byte
}

type TimeT = int64

var TypeTimeT = &ffi.TypeSint64

package ctypes

import (
	"errors"
	"fmt"
	"path/filepath"
	"runtime"

	"github.com/jupiterrider/ffi"
)

// Libs is a set of opened shared libraries searched in order.
type Libs []ffi.Lib

// Open loads every named library from dir. On failure the libraries
// already opened are closed.
func Open(dir string, names ...string) (Libs, error) {
	libs := make(Libs, 0, len(names))

	for _, name := range names {
		lib, err := ffi.Load(LibraryPath(dir, name))
		if err != nil {
			libs.Close()
			return nil, fmt.Errorf("loading %s: %w", name, err)
		}
		libs = append(libs, lib)
	}

	return libs, nil
}

// Prep resolves a symbol in the first library that exports it.
func (l Libs) Prep(name string, ret *ffi.Type, args ...*ffi.Type) (ffi.Fun, error) {
	var errs []error

	for _, lib := range l {
		fn, err := lib.Prep(name, ret, args...)
		if err == nil {
			return fn, nil
		}
		errs = append(errs, err)
	}

	if len(errs) == 0 {
		return ffi.Fun{}, errors.New("no libraries loaded")
	}

	return ffi.Fun{}, errors.Join(errs...)
}

func (l Libs) Close() error {
	var errs []error
	for _, lib := range l {
		if err := lib.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// LibraryPath returns the file name the platform gives library name. An
// empty dir leaves the lookup to the dynamic loader.
func LibraryPath(dir, name string) string {
	var filename string
	switch runtime.GOOS {
	case "darwin", "ios":
		filename = "lib" + name + ".dylib"
	case "windows":
		filename = name + ".dll"
	default:
		filename = "lib" + name + ".so"
	}

	if dir == "" {
		return filename
	}
	return filepath.Join(dir, filename)
}

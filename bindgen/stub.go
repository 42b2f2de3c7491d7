package bindgen

import (
	"fmt"
	"os"
)

// StubName is the module stub that pulls bindings.go into the host package.
const StubName = "mod_bindings.go"

// WriteStub writes the one-line package file naming the bindings unit.
func WriteStub(path, pkg string) error {
	line := fmt.Sprintf("package %s // declarations generated into %s\n", pkg, BindingsName)
	return os.WriteFile(path, []byte(line), filePerm)
}

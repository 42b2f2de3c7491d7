package bindgen

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"golang.org/x/tools/imports"
)

// BindingsName is the file the generated bindings are written to.
const BindingsName = "bindings.go"

const filePerm = 0o644

const prelude = `// Code generated by mbedtls-bindgen. DO NOT EDIT.

//lint:file-ignore ST1003 names follow the C declarations
//lint:file-ignore U1000 not every declaration is used

`

// Render frames the generated declarations as a complete Go file: the
// suppression directives, the package clause and imports, the body, and a
// trailer that keeps every import in use.
func (b *Bindings) Render(pkg string) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteString(prelude)
	fmt.Fprintf(&buf, "package %s\n\n", pkg)

	buf.WriteString("import (\n")
	for _, imp := range b.imports {
		if imp.Name != "" {
			fmt.Fprintf(&buf, "\t%s %q\n", imp.Name, imp.Path)
			continue
		}
		fmt.Fprintf(&buf, "\t%q\n", imp.Path)
	}
	buf.WriteString(")\n\n")

	if err := b.Write(&buf); err != nil {
		return nil, err
	}

	buf.WriteString("\nvar (\n")
	for _, imp := range b.imports {
		fmt.Fprintf(&buf, "\t%s\n", imp.Anchor)
	}
	buf.WriteString(")\n")

	return buf.Bytes(), nil
}

// WriteFile renders and formats the bindings into path. When the source
// does not format, it is written to an .unformatted sidecar instead and an
// error is returned. A successful write removes a sidecar left by an
// earlier run.
func (b *Bindings) WriteFile(path, pkg string) error {
	src, err := b.Render(pkg)
	if err != nil {
		return err
	}

	formatted, err := imports.Process(path, src, &imports.Options{
		Comments:   true,
		TabIndent:  true,
		TabWidth:   8,
		FormatOnly: true,
	})
	if err != nil {
		if debugErr := writeDebugUnformatted(path, src); debugErr != nil {
			return fmt.Errorf("formatting %s: %w (writing sidecar: %v)", filepath.Base(path), err, debugErr)
		}
		return fmt.Errorf("formatting %s: %w", filepath.Base(path), err)
	}

	if err := os.WriteFile(path, formatted, filePerm); err != nil {
		return err
	}

	if err := os.Remove(UnformattedPath(path)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("removing stale sidecar: %w", err)
	}

	return nil
}

// UnformattedPath is where source that failed to format is kept. The
// suffix keeps it out of the Go package next to it.
func UnformattedPath(path string) string {
	return path + ".unformatted"
}

// writeDebugUnformatted keeps source that failed to format next to the
// intended output.
func writeDebugUnformatted(path string, content []byte) error {
	return os.WriteFile(UnformattedPath(path), content, filePerm)
}

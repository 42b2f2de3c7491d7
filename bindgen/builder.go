package bindgen

import (
	"errors"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"

	"github.com/ardanlabs/mbedtls-bindgen/generator"
	"github.com/ardanlabs/mbedtls-bindgen/parser"
)

// Builder collects the options of one generation run. Methods return the
// builder so calls can be chained.
type Builder struct {
	backend parser.Backend
	header  string
	args    []string
	opts    generator.Options
}

// NewBuilder returns a builder parsing with backend. Comments are copied
// unless GenerateComments(false) is called.
func NewBuilder(backend parser.Backend) *Builder {
	return &Builder{
		backend: backend,
		opts: generator.Options{
			GenerateComments: true,
		},
	}
}

func (b *Builder) Header(path string) *Builder {
	b.header = path
	return b
}

// ClangArg adds a compiler argument such as -I or -D.
func (b *Builder) ClangArg(arg string) *Builder {
	b.args = append(b.args, arg)
	return b
}

func (b *Builder) UseCore(on bool) *Builder {
	b.opts.UseCore = on
	return b
}

func (b *Builder) DeriveDebug(on bool) *Builder {
	b.opts.DeriveDebug = on
	return b
}

func (b *Builder) ParseCallbacks(cb Callbacks) *Builder {
	b.opts.ItemName = cb.ItemName
	b.opts.IntMacro = cb.IntMacro
	return b
}

func (b *Builder) CTypesPrefix(prefix string) *Builder {
	b.opts.CTypesPrefix = prefix
	return b
}

func (b *Builder) BlocklistFunction(name string) *Builder {
	b.opts.Blocklist = append(b.opts.Blocklist, name)
	return b
}

// OpaqueType marks the types matching pattern as opaque. Patterns use
// path.Match syntax.
func (b *Builder) OpaqueType(pattern string) *Builder {
	b.opts.Opaque = append(b.opts.Opaque, pattern)
	return b
}

func (b *Builder) GenerateComments(on bool) *Builder {
	b.opts.GenerateComments = on
	return b
}

// Libraries sets the shared libraries the generated Load function opens.
func (b *Builder) Libraries(names ...string) *Builder {
	b.opts.Libraries = append([]string(nil), names...)
	return b
}

// Bindings is the result of a successful generation.
type Bindings struct {
	body    string
	imports []generator.Import
	skipped []generator.Skip
}

// Generate parses the header and turns its declarations into Go.
func (b *Builder) Generate() (*Bindings, error) {
	if b.backend == nil {
		return nil, errors.New("no declaration backend")
	}
	if b.header == "" {
		return nil, errors.New("no header")
	}

	logrus.WithFields(logrus.Fields{
		"function": "Generate",
		"header":   b.header,
		"args":     b.args,
	}).Debug("Parsing declarations")

	h, err := b.backend.Parse(b.header, b.args)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", b.header, err)
	}

	logrus.WithFields(logrus.Fields{
		"function":  "Generate",
		"structs":   len(h.Structs),
		"functions": len(h.Functions),
		"typedefs":  len(h.TypeDefs),
		"enums":     len(h.Enums),
		"macros":    len(h.Macros),
	}).Debug("Declarations parsed")

	gen := generator.New(b.opts, h)

	out, err := gen.Generate()
	if err != nil {
		return nil, fmt.Errorf("generating code: %w", err)
	}

	for _, s := range out.Skipped {
		logrus.WithFields(logrus.Fields{
			"function": "Generate",
			"name":     s.Name,
			"reason":   s.Reason,
		}).Debug("Declaration skipped")
	}

	return &Bindings{
		body:    out.Body,
		imports: gen.Imports(),
		skipped: out.Skipped,
	}, nil
}

// Write writes the generated declarations.
func (b *Bindings) Write(w io.Writer) error {
	_, err := io.WriteString(w, b.body)
	return err
}

func (b *Bindings) Imports() []generator.Import {
	return b.imports
}

func (b *Bindings) Skipped() []generator.Skip {
	return b.skipped
}

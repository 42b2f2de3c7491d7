package generator

import (
	"bytes"
	"errors"
	"fmt"
	"go/token"
	"path"
	"strconv"
	"strings"
	"text/template"

	"github.com/ardanlabs/mbedtls-bindgen/parser"
)

// CTypesPath is the import path of the raw C type package generated code
// is written against.
const CTypesPath = "github.com/ardanlabs/mbedtls-bindgen/ctypes"

// LibcPath holds the ambient libc types. Generated files dot-import it.
const LibcPath = CTypesPath + "/libc"

// Options controls what the generator emits. The zero value emits every
// declaration under its C name.
type Options struct {
	// ItemName may rename a declaration. It is consulted for types,
	// functions, enum constants and macros.
	ItemName func(name string) (string, bool)

	// IntMacro may choose the integer type of a macro constant.
	IntMacro func(name string, value int64) (IntKind, bool)

	// CTypesPrefix is the package name raw C primitives are qualified
	// with. Defaults to "ctypes".
	CTypesPrefix string

	// UseCore leaves declarations from system headers out of the output.
	// libc types are mapped to Go and ctypes types instead.
	UseCore bool

	// DeriveDebug adds String methods to enum types.
	DeriveDebug bool

	// GenerateComments copies declaration comments the backend found.
	GenerateComments bool

	// Blocklist names C functions that are never emitted.
	Blocklist []string

	// Opaque holds path.Match patterns. Matching structs are emitted as
	// blobs of their size regardless of their fields, so a defined struct
	// that matches needs a size from the backend.
	Opaque []string

	// Libraries are the shared libraries Load opens, without prefix or
	// extension.
	Libraries []string
}

// ErrLayoutUnknown is returned for a defined struct whose size the backend
// could not determine. It cannot be emitted without a layout.
var ErrLayoutUnknown = errors.New("layout unknown")

// Skip records a declaration that was left out and why.
type Skip struct {
	Name   string
	Reason string
}

// Import is one import of a generated file. Anchor is a var declaration that
// keeps the import used whatever the body contains.
type Import struct {
	Name   string
	Path   string
	Anchor string
}

type Output struct {
	Body    string
	Skipped []Skip
}

type Generator struct {
	opts   Options
	header *parser.Header

	structs    map[string]*parser.Struct
	structTags map[string]*parser.Struct
	enums      map[string]*parser.Enum
	typedefs   map[string]parser.TypeDef
	goNames    map[string]string
	declared   map[string]bool
	layout     map[*parser.Struct]int
	blocked    map[string]bool

	descriptors []*parser.Struct
	described   map[*parser.Struct]bool

	depth   int
	skipped []Skip
}

func New(opts Options, header *parser.Header) *Generator {
	return &Generator{
		opts:   opts,
		header: header,
	}
}

func (g *Generator) prefix() string {
	if g.opts.CTypesPrefix == "" {
		return "ctypes"
	}
	return g.opts.CTypesPrefix
}

// Imports lists the imports generated code needs.
func (g *Generator) Imports() []Import {
	return []Import{
		{Path: "fmt", Anchor: "_ = fmt.Errorf"},
		{Path: "strconv", Anchor: "_ = strconv.Itoa"},
		{Path: "unsafe", Anchor: "_ = unsafe.Pointer(nil)"},
		{Path: "github.com/jupiterrider/ffi", Anchor: "_ ffi.Fun"},
		{Name: g.opts.CTypesPrefix, Path: CTypesPath, Anchor: "_ " + g.prefix() + ".Int"},
		{Name: ".", Path: LibcPath, Anchor: "_ FILE"},
	}
}

// Generate produces the declarations of the bindings file: everything
// after the import block.
func (g *Generator) Generate() (*Output, error) {
	g.index()

	var buf bytes.Buffer

	if err := g.generateEnums(&buf); err != nil {
		return nil, fmt.Errorf("generating enums: %w", err)
	}
	g.generateMacros(&buf)
	if err := g.generateStructs(&buf); err != nil {
		return nil, fmt.Errorf("generating structs: %w", err)
	}
	g.generateTypedefs(&buf)

	fns := g.planFunctions()

	if err := g.generateDescriptors(&buf); err != nil {
		return nil, fmt.Errorf("generating descriptors: %w", err)
	}

	if err := g.generateLoader(&buf, fns); err != nil {
		return nil, fmt.Errorf("generating loader: %w", err)
	}

	for _, fn := range fns {
		g.generateFunctionWrapper(&buf, fn)
	}

	return &Output{Body: buf.String(), Skipped: g.skipped}, nil
}

func structKey(name string) string  { return "struct " + name }
func enumKey(name string) string    { return "enum " + name }
func typedefKey(name string) string { return "typedef " + name }

// reserved names clash with the imports or the loader of a generated file.
var reserved = map[string]bool{
	"fmt": true, "strconv": true, "unsafe": true, "ffi": true,
	"FILE": true, "TimeT": true, "TypeTimeT": true,
	"Load": true, "loadFuncs": true, "libs": true,
}

var predeclared = map[string]bool{
	"any": true, "bool": true, "byte": true, "comparable": true, "complex64": true,
	"complex128": true, "error": true, "float32": true, "float64": true, "int": true,
	"int8": true, "int16": true, "int32": true, "int64": true, "rune": true,
	"string": true, "uint": true, "uint8": true, "uint16": true, "uint32": true,
	"uint64": true, "uintptr": true, "true": true, "false": true, "iota": true,
	"nil": true, "append": true, "cap": true, "clear": true, "close": true,
	"complex": true, "copy": true, "delete": true, "imag": true, "len": true,
	"make": true, "max": true, "min": true, "new": true, "panic": true,
	"print": true, "println": true, "real": true, "recover": true,
}

func safeIdent(name string) string {
	if token.IsKeyword(name) || predeclared[name] {
		return name + "_"
	}
	return name
}

func (g *Generator) itemName(cName string) string {
	name := cName
	if g.opts.ItemName != nil {
		if n, ok := g.opts.ItemName(cName); ok {
			name = n
		}
	}

	name = safeIdent(name)
	if reserved[name] || name == g.prefix() {
		name += "_"
	}

	return name
}

// declare claims a package level name. The first declaration wins.
func (g *Generator) declare(cName, kind string) (string, bool) {
	name := g.itemName(cName)
	if !token.IsIdentifier(name) {
		g.skip(cName, "not a Go identifier: "+name)
		return "", false
	}
	if g.declared[name] {
		g.skip(cName, kind+" "+name+" already declared")
		return "", false
	}
	g.declared[name] = true

	return name, true
}

func (g *Generator) skip(name, reason string) {
	g.skipped = append(g.skipped, Skip{Name: name, Reason: reason})
}

func (g *Generator) omitted(system bool) bool {
	return system && g.opts.UseCore
}

func (g *Generator) matchOpaque(s *parser.Struct) bool {
	for _, pattern := range g.opts.Opaque {
		for _, name := range []string{s.Name, s.Tag} {
			if name == "" {
				continue
			}
			if ok, _ := path.Match(pattern, name); ok {
				return true
			}
		}
	}
	return false
}

// selfTypedef reports typedefs such as `typedef struct foo foo;` that the
// struct declaration already covers.
func selfTypedef(td parser.TypeDef) bool {
	return td.SourceType.Elaborated != "" && td.SourceType.Pointers == 0 &&
		!td.SourceType.IsArray() && td.SourceType.Name == td.Name
}

// index builds the lookup tables and claims every type name up front so
// that references resolve regardless of declaration order.
func (g *Generator) index() {
	g.structs = make(map[string]*parser.Struct)
	g.structTags = make(map[string]*parser.Struct)
	g.enums = make(map[string]*parser.Enum)
	g.typedefs = make(map[string]parser.TypeDef)
	g.goNames = make(map[string]string)
	g.declared = make(map[string]bool)
	g.layout = make(map[*parser.Struct]int)
	g.described = make(map[*parser.Struct]bool)
	g.blocked = make(map[string]bool)
	g.skipped = nil
	g.descriptors = nil

	for _, name := range g.opts.Blocklist {
		g.blocked[name] = true
	}

	h := g.header

	for i := range h.Structs {
		s := &h.Structs[i]
		if _, ok := g.structs[s.Name]; ok || s.Name == "" || g.omitted(s.System) {
			continue
		}
		name, ok := g.declare(s.Name, "struct")
		if !ok {
			continue
		}
		g.structs[s.Name] = s
		if s.Tag != "" {
			g.structTags[s.Tag] = s
		}
		g.goNames[structKey(s.Name)] = name
	}

	for i := range h.Enums {
		e := &h.Enums[i]
		if e.Name == "" || g.omitted(e.System) {
			continue
		}
		if _, ok := g.enums[e.Name]; ok {
			continue
		}
		name, ok := g.declare(e.Name, "enum")
		if !ok {
			continue
		}
		g.enums[e.Name] = e
		g.goNames[enumKey(e.Name)] = name
	}

	for _, td := range h.TypeDefs {
		if selfTypedef(td) || g.omitted(td.System) {
			continue
		}
		if _, ok := g.typedefs[td.Name]; ok {
			continue
		}
		if _, ok := g.structs[td.Name]; ok {
			continue
		}
		name, ok := g.declare(td.Name, "typedef")
		if !ok {
			continue
		}
		g.typedefs[td.Name] = td
		g.goNames[typedefKey(td.Name)] = name
	}
}

func (g *Generator) comment(buf *bytes.Buffer, text string) {
	if !g.opts.GenerateComments || strings.TrimSpace(text) == "" {
		return
	}

	for _, line := range strings.Split(strings.TrimSpace(text), "\n") {
		fmt.Fprintf(buf, "// %s\n", strings.TrimSpace(line))
	}
}

func (g *Generator) generateEnums(buf *bytes.Buffer) error {
	for i := range g.header.Enums {
		e := &g.header.Enums[i]
		if g.omitted(e.System) {
			continue
		}

		underlying := g.prefix() + ".UInt"
		kind := U32
		if enumSigned(e) {
			underlying = g.prefix() + ".Int"
			kind = I32
		}

		typeName := underlying
		if e.Name != "" {
			name, ok := g.goNames[enumKey(e.Name)]
			if !ok || g.enums[e.Name] != e {
				continue
			}
			typeName = name

			g.comment(buf, e.Comment)
			fmt.Fprintf(buf, "type %s %s\n\n", typeName, underlying)
		}

		var consts []enumConst
		for _, v := range e.Values {
			if v.Unresolved {
				g.skip(v.Name, "enum value does not fold to an integer")
				continue
			}

			raw := v.Name
			if e.Name != "" {
				raw = typeName + "_" + v.Name
			}
			name, ok := g.declare(raw, "constant")
			if !ok {
				continue
			}

			fmt.Fprintf(buf, "const %s %s = %s\n", name, typeName, kind.Literal(v.Value))
			consts = append(consts, enumConst{name: name, cName: v.Name, value: v.Value})
		}
		buf.WriteString("\n")

		if g.opts.DeriveDebug && e.Name != "" {
			if err := g.generateStringer(buf, typeName, consts); err != nil {
				return err
			}
		}
	}

	return nil
}

type enumConst struct {
	name  string
	cName string
	value int64
}

var stringerTmpl = template.Must(template.New("stringer").Parse(`func (v {{.Type}}) String() string {
	switch v {
{{- range .Consts}}
	case {{.Name}}:
		return {{.Quoted}}
{{- end}}
	}
	return "{{.Type}}(" + strconv.FormatInt(int64(v), 10) + ")"
}

`))

func (g *Generator) generateStringer(buf *bytes.Buffer, typeName string, consts []enumConst) error {
	type caseData struct {
		Name   string
		Quoted string
	}

	var cases []caseData
	seen := make(map[int64]bool)
	for _, c := range consts {
		if seen[c.value] {
			continue
		}
		seen[c.value] = true
		cases = append(cases, caseData{Name: c.name, Quoted: strconv.Quote(c.cName)})
	}

	return stringerTmpl.Execute(buf, map[string]any{
		"Type":   typeName,
		"Consts": cases,
	})
}

func (g *Generator) generateMacros(buf *bytes.Buffer) {
	for _, m := range g.header.Macros {
		kind := InferIntKind(m.Value)
		if g.opts.IntMacro != nil {
			if k, ok := g.opts.IntMacro(m.Name, m.Value); ok {
				kind = k
			}
		}

		name, ok := g.declare(m.Name, "constant")
		if !ok {
			continue
		}

		fmt.Fprintf(buf, "const %s %s = %s\n", name, kind.GoType(), kind.Literal(m.Value))
	}
	buf.WriteString("\n")
}

func (g *Generator) generateStructs(buf *bytes.Buffer) error {
	for i := range g.header.Structs {
		s := &g.header.Structs[i]
		if g.structs[s.Name] != s {
			continue
		}
		name := g.goNames[structKey(s.Name)]

		g.comment(buf, s.Comment)

		// Only a struct that was never defined may be an empty blob.
		if !g.laidOut(s) {
			size := s.Size
			if size <= 0 {
				if !s.IsOpaque {
					return fmt.Errorf("struct %s: %w: %s", s.Name, ErrLayoutUnknown, g.layoutReason(s))
				}
				size = 0
			}
			fmt.Fprintf(buf, "type %s struct {\n\t_ [%d]byte\n}\n\n", name, size)
			continue
		}

		fmt.Fprintf(buf, "type %s struct {\n", name)
		seen := make(map[string]bool)
		for _, f := range s.Fields {
			ti, _ := g.typeOf(f.Type)

			field := safeIdent(f.Name)
			if field == "" {
				field = "_"
			}
			for field != "_" && seen[field] {
				field += "_"
			}
			seen[field] = true

			fmt.Fprintf(buf, "\t%s %s\n", field, ti.goType)
		}
		fmt.Fprintf(buf, "}\n\n")
	}

	return nil
}

func (g *Generator) layoutReason(s *parser.Struct) string {
	switch {
	case g.matchOpaque(s):
		return "opaque by pattern but its size is unknown"
	case s.IsUnion:
		return "union members are not described"
	case len(s.Fields) == 0:
		return "members are not described"
	}

	for _, f := range s.Fields {
		ti, err := g.typeOf(f.Type)
		if err != nil {
			return "field " + f.Name + ": " + err.Error()
		}
		if !ti.sized {
			return "field " + f.Name + " has no known size"
		}
	}

	return "members are not described"
}

func (g *Generator) generateTypedefs(buf *bytes.Buffer) {
	done := make(map[string]bool)

	for _, td := range g.header.TypeDefs {
		name, ok := g.goNames[typedefKey(td.Name)]
		if !ok || done[td.Name] {
			continue
		}
		done[td.Name] = true
		td = g.typedefs[td.Name]

		ti, err := g.typeOf(td.SourceType)
		if err != nil {
			g.skip(td.Name, err.Error())
			continue
		}
		if ti.goType == "" {
			g.skip(td.Name, "typedef of void")
			continue
		}
		if ti.goType == name {
			continue
		}

		fmt.Fprintf(buf, "type %s = %s\n", name, ti.goType)
	}
	buf.WriteString("\n")
}

// requireDescriptor schedules the ffi.Type of a struct passed by value,
// and of the structs it embeds.
func (g *Generator) requireDescriptor(s *parser.Struct) {
	if s == nil || g.described[s] {
		return
	}
	g.described[s] = true
	g.descriptors = append(g.descriptors, s)

	for _, f := range s.Fields {
		if f.Type.Pointers > 0 || f.Type.IsFuncPtr {
			continue
		}
		if ti, err := g.typeOf(f.Type); err == nil {
			g.requireDescriptor(ti.record)
		}
	}
}

func (g *Generator) generateDescriptors(buf *bytes.Buffer) error {
	for _, s := range g.descriptors {
		name := g.goNames[structKey(s.Name)]

		fmt.Fprintf(buf, "var %s = ffi.NewType(%s.Flatten(\n", ffiTypeName(name), g.prefix())
		for _, f := range s.Fields {
			ti, err := g.typeOf(f.Type)
			if err != nil {
				return fmt.Errorf("struct %s field %s: %w", s.Name, f.Name, err)
			}
			fmt.Fprintf(buf, "\t%s.Array(%s, %d),\n", g.prefix(), ti.elemFFI, ti.count)
		}
		fmt.Fprintf(buf, ")...)\n\n")
	}

	return nil
}

type paramPlan struct {
	name string
	info typeInfo
}

type funcPlan struct {
	cName   string
	goName  string
	comment string
	params  []paramPlan
	ret     typeInfo
	void    bool
}

func funcVarName(cName string) string {
	return "fn_" + cName
}

func (g *Generator) planFunctions() []funcPlan {
	var plans []funcPlan
	seen := make(map[string]bool)

	for _, fn := range g.header.Functions {
		switch {
		case seen[fn.Name]:
			continue
		case g.blocked[fn.Name]:
			g.skip(fn.Name, "blocklisted")
			continue
		case fn.IsVariadic:
			g.skip(fn.Name, "variadic")
			continue
		case g.omitted(fn.System):
			continue
		}
		seen[fn.Name] = true

		plan, err := g.planFunction(fn)
		if err != nil {
			g.skip(fn.Name, err.Error())
			continue
		}

		name, ok := g.declare(fn.Name, "function")
		if !ok {
			continue
		}
		plan.goName = name

		plans = append(plans, plan)
	}

	for _, p := range plans {
		for _, param := range p.params {
			g.requireDescriptor(param.info.record)
		}
		g.requireDescriptor(p.ret.record)
	}

	return plans
}

func (g *Generator) planFunction(fn parser.Function) (funcPlan, error) {
	plan := funcPlan{cName: fn.Name, comment: fn.Comment}

	if fn.ReturnType.IsVoid() {
		plan.void = true
	} else {
		ti, err := g.typeOf(fn.ReturnType)
		if err != nil {
			return funcPlan{}, fmt.Errorf("return type: %w", err)
		}
		if ti.ffi == "" || ti.goType == "" {
			return funcPlan{}, fmt.Errorf("return type %s cannot be passed by value", ti.goType)
		}
		plan.ret = ti
	}

	for i, p := range fn.Params {
		ti, err := g.typeOf(p.Type)
		if err != nil {
			return funcPlan{}, fmt.Errorf("parameter %d: %w", i, err)
		}
		if ti.ffi == "" || ti.goType == "" {
			return funcPlan{}, fmt.Errorf("parameter %d: %s cannot be passed by value", i, ti.goType)
		}
		plan.params = append(plan.params, paramPlan{name: p.Name, info: ti})
	}

	return plan, nil
}

// paramNames picks wrapper parameter names that shadow nothing the
// wrapper body refers to.
func (g *Generator) paramNames(params []paramPlan) []string {
	names := make([]string, len(params))
	used := make(map[string]bool)

	for i, p := range params {
		name := p.name
		if name == "" {
			name = "arg" + strconv.Itoa(i)
		}
		name = safeIdent(name)

		for used[name] || g.declared[name] || reserved[name] || name == "result" || name == g.prefix() {
			name += "_"
		}
		used[name] = true
		names[i] = name
	}

	return names
}

var loaderTmpl = template.Must(template.New("loader").Parse(`var libs {{.Prefix}}.Libs

// Load opens the native libraries found in dir and resolves every
// function. An empty dir searches the system library path.
func Load(dir string) error {
	var err error
	libs, err = {{.Prefix}}.Open(dir{{range .Libraries}}, {{printf "%q" .}}{{end}})
	if err != nil {
		return fmt.Errorf("failed to load library: %w", err)
	}

	if err := loadFuncs(); err != nil {
		return err
	}

	return nil
}

`))

func (g *Generator) generateLoader(buf *bytes.Buffer, fns []funcPlan) error {
	err := loaderTmpl.Execute(buf, map[string]any{
		"Prefix":    g.prefix(),
		"Libraries": g.opts.Libraries,
	})
	if err != nil {
		return err
	}

	if len(fns) > 0 {
		fmt.Fprintf(buf, "var (\n")
		for _, fn := range fns {
			fmt.Fprintf(buf, "\t%s ffi.Fun\n", funcVarName(fn.cName))
		}
		fmt.Fprintf(buf, ")\n\n")
	}

	fmt.Fprintf(buf, "func loadFuncs() error {\n")
	if len(fns) > 0 {
		fmt.Fprintf(buf, "\tvar err error\n\n")
	}

	for _, fn := range fns {
		args := []string{strconv.Quote(fn.cName)}
		if fn.void {
			args = append(args, "&ffi.TypeVoid")
		} else {
			args = append(args, fn.ret.ffi)
		}
		for _, p := range fn.params {
			args = append(args, p.info.ffi)
		}

		fmt.Fprintf(buf, "\tif %s, err = libs.Prep(%s); err != nil {\n", funcVarName(fn.cName), strings.Join(args, ", "))
		fmt.Fprintf(buf, "\t\treturn fmt.Errorf(\"%s: %%w\", err)\n", fn.cName)
		fmt.Fprintf(buf, "\t}\n\n")
	}

	fmt.Fprintf(buf, "\treturn nil\n")
	fmt.Fprintf(buf, "}\n\n")

	return nil
}

func (g *Generator) generateFunctionWrapper(buf *bytes.Buffer, fn funcPlan) {
	names := g.paramNames(fn.params)

	params := make([]string, len(fn.params))
	for i, p := range fn.params {
		params[i] = names[i] + " " + p.info.goType
	}

	g.comment(buf, fn.comment)
	if fn.void {
		fmt.Fprintf(buf, "func %s(%s) {\n", fn.goName, strings.Join(params, ", "))
	} else {
		fmt.Fprintf(buf, "func %s(%s) %s {\n", fn.goName, strings.Join(params, ", "), fn.ret.goType)
	}

	// libffi widens integer results narrower than a register to ffi_arg.
	resultArg := "nil"
	if !fn.void {
		if fn.ret.integer {
			fmt.Fprintf(buf, "\tvar result ffi.Arg\n")
		} else {
			fmt.Fprintf(buf, "\tvar result %s\n", fn.ret.goType)
		}
		resultArg = "unsafe.Pointer(&result)"
	}

	callArgs := []string{resultArg}
	for _, name := range names {
		callArgs = append(callArgs, "unsafe.Pointer(&"+name+")")
	}
	fmt.Fprintf(buf, "\t%s.Call(%s)\n", funcVarName(fn.cName), strings.Join(callArgs, ", "))

	switch {
	case fn.void:
	case fn.ret.boolean:
		fmt.Fprintf(buf, "\treturn result&0xff != 0\n")
	case fn.ret.integer:
		fmt.Fprintf(buf, "\treturn %s(result)\n", fn.ret.goType)
	default:
		fmt.Fprintf(buf, "\treturn result\n")
	}

	fmt.Fprintf(buf, "}\n\n")
}

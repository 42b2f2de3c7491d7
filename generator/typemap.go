package generator

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ardanlabs/mbedtls-bindgen/parser"
)

// typeInfo is what the generator knows about a C type at a use site.
type typeInfo struct {
	goType string

	// ffi is the libffi descriptor for passing the value in a call. It is
	// empty for types that cannot cross a call by value.
	ffi string

	// elemFFI and count describe the value as struct members: arrays
	// expand to count copies of their element.
	elemFFI string
	count   int64

	sized   bool
	integer bool
	boolean bool
	record  *parser.Struct
}

type primitive struct {
	goType  string
	ffi     string
	integer bool
}

// keywordType maps C keyword types. prefixed entries take the ctypes
// package prefix.
func (g *Generator) keywordType(ct parser.CType) (primitive, bool) {
	p := g.prefix()

	switch ct.Name {
	case "void":
		return primitive{ffi: "&ffi.TypeVoid"}, true
	case "bool":
		return primitive{goType: "bool", ffi: "&ffi.TypeUint8", integer: true}, true
	case "char":
		switch {
		case ct.IsUnsigned:
			return primitive{p + ".UChar", "&ffi.TypeUint8", true}, true
		case ct.IsSigned:
			return primitive{p + ".SChar", "&ffi.TypeSint8", true}, true
		}
		return primitive{p + ".Char", "&ffi.TypeSint8", true}, true
	case "short":
		if ct.IsUnsigned {
			return primitive{p + ".UShort", "&ffi.TypeUint16", true}, true
		}
		return primitive{p + ".Short", "&ffi.TypeSint16", true}, true
	case "int":
		if ct.IsUnsigned {
			return primitive{p + ".UInt", "&ffi.TypeUint32", true}, true
		}
		return primitive{p + ".Int", "&ffi.TypeSint32", true}, true
	case "long":
		if ct.IsUnsigned {
			return primitive{p + ".ULong", p + ".TypeULong", true}, true
		}
		return primitive{p + ".Long", p + ".TypeLong", true}, true
	case "long long":
		if ct.IsUnsigned {
			return primitive{p + ".ULongLong", "&ffi.TypeUint64", true}, true
		}
		return primitive{p + ".LongLong", "&ffi.TypeSint64", true}, true
	case "float":
		return primitive{p + ".Float", "&ffi.TypeFloat", false}, true
	case "double":
		return primitive{p + ".Double", "&ffi.TypeDouble", false}, true
	}

	return primitive{}, false
}

// libcType maps the libc names bindings use without declaring them. FILE
// has no descriptor: it is only ever handled through pointers.
func (g *Generator) libcType(name string) (primitive, bool) {
	p := g.prefix()

	switch name {
	case "int8_t":
		return primitive{"int8", "&ffi.TypeSint8", true}, true
	case "uint8_t":
		return primitive{"uint8", "&ffi.TypeUint8", true}, true
	case "int16_t":
		return primitive{"int16", "&ffi.TypeSint16", true}, true
	case "uint16_t":
		return primitive{"uint16", "&ffi.TypeUint16", true}, true
	case "int32_t":
		return primitive{"int32", "&ffi.TypeSint32", true}, true
	case "uint32_t":
		return primitive{"uint32", "&ffi.TypeUint32", true}, true
	case "int64_t":
		return primitive{"int64", "&ffi.TypeSint64", true}, true
	case "uint64_t":
		return primitive{"uint64", "&ffi.TypeUint64", true}, true
	case "uintptr_t":
		return primitive{"uintptr", p + ".TypeSizeT", true}, true
	case "size_t":
		return primitive{p + ".SizeT", p + ".TypeSizeT", true}, true
	case "time_t":
		return primitive{"TimeT", "TypeTimeT", true}, true
	case "FILE":
		return primitive{goType: "FILE"}, true
	}

	return primitive{}, false
}

func fromPrimitive(pr primitive) typeInfo {
	return typeInfo{
		goType:  pr.goType,
		ffi:     pr.ffi,
		elemFFI: pr.ffi,
		count:   1,
		sized:   pr.ffi != "" && pr.goType != "",
		integer: pr.integer,
		boolean: pr.goType == "bool",
	}
}

// typeOf resolves a C type to its Go spelling. Unknown types are an error
// unless they sit behind a pointer, in which case they become
// unsafe.Pointer.
func (g *Generator) typeOf(ct parser.CType) (typeInfo, error) {
	g.depth++
	defer func() { g.depth-- }()

	if g.depth > maxTypeDepth {
		return typeInfo{}, fmt.Errorf("type %s: typedef chain too deep", ct.Name)
	}

	var ti typeInfo

	switch {
	case ct.IsFuncPtr:
		ti = typeInfo{goType: "unsafe.Pointer", ffi: "&ffi.TypePointer", elemFFI: "&ffi.TypePointer", count: 1, sized: true}

	case ct.Pointers > 0:
		base := ct
		base.Pointers = 0
		base.Dims = nil
		base.DimExprs = nil

		goType := "unsafe.Pointer"
		switch bt, err := g.typeOf(base); {
		case base.IsVoid():
			goType = strings.Repeat("*", ct.Pointers-1) + "unsafe.Pointer"
		case err == nil && bt.goType != "":
			goType = strings.Repeat("*", ct.Pointers) + bt.goType
		}
		ti = typeInfo{goType: goType, ffi: "&ffi.TypePointer", elemFFI: "&ffi.TypePointer", count: 1, sized: true}

	default:
		var err error
		ti, err = g.baseType(ct)
		if err != nil {
			return typeInfo{}, err
		}
	}

	if !ct.IsArray() {
		return ti, nil
	}

	if len(ct.Dims) == 0 {
		return typeInfo{}, fmt.Errorf("type %s: array bound %s not resolved", ct.Name, strings.Join(ct.DimExprs, ","))
	}

	var dims strings.Builder
	count := ti.count
	for _, d := range ct.Dims {
		dims.WriteString("[" + strconv.FormatInt(d, 10) + "]")
		count *= d
	}

	return typeInfo{
		goType:  dims.String() + ti.goType,
		elemFFI: ti.elemFFI,
		count:   count,
		sized:   ti.sized,
		record:  ti.record,
	}, nil
}

const maxTypeDepth = 32

func (g *Generator) baseType(ct parser.CType) (typeInfo, error) {
	if ct.Elaborated == "" {
		if pr, ok := g.keywordType(ct); ok {
			return fromPrimitive(pr), nil
		}

		if td, ok := g.typedefs[ct.Name]; ok && !g.opts.UseCore {
			return g.typedefType(td)
		}
		if pr, ok := g.libcType(ct.Name); ok {
			return fromPrimitive(pr), nil
		}
		if td, ok := g.typedefs[ct.Name]; ok {
			return g.typedefType(td)
		}
	}

	if ct.Elaborated != "enum" {
		if s := g.lookupStruct(ct); s != nil {
			return g.structType(s)
		}
	}

	if ct.Elaborated == "" || ct.Elaborated == "enum" {
		if e, ok := g.enums[ct.Name]; ok {
			return g.enumType(e)
		}
	}

	return typeInfo{}, fmt.Errorf("unknown type %s", strings.TrimSpace(ct.Elaborated+" "+ct.Name))
}

func (g *Generator) lookupStruct(ct parser.CType) *parser.Struct {
	if ct.Elaborated != "" {
		if s, ok := g.structTags[ct.Name]; ok {
			return s
		}
	}

	return g.structs[ct.Name]
}

func (g *Generator) typedefType(td parser.TypeDef) (typeInfo, error) {
	name, ok := g.goNames[typedefKey(td.Name)]
	if !ok {
		return typeInfo{}, fmt.Errorf("typedef %s not emitted", td.Name)
	}

	ti, err := g.typeOf(td.SourceType)
	if err != nil {
		return typeInfo{}, fmt.Errorf("typedef %s: %w", td.Name, err)
	}
	if ti.goType == "" {
		return typeInfo{}, fmt.Errorf("typedef %s of void", td.Name)
	}
	ti.goType = name

	return ti, nil
}

func (g *Generator) structType(s *parser.Struct) (typeInfo, error) {
	name, ok := g.goNames[structKey(s.Name)]
	if !ok {
		return typeInfo{}, fmt.Errorf("struct %s not emitted", s.Name)
	}

	ti := typeInfo{goType: name, count: 1, record: s}
	if g.laidOut(s) {
		ti.sized = true
		ti.ffi = "&" + ffiTypeName(name)
		ti.elemFFI = ti.ffi
	}

	return ti, nil
}

func (g *Generator) enumType(e *parser.Enum) (typeInfo, error) {
	name, ok := g.goNames[enumKey(e.Name)]
	if !ok {
		return typeInfo{}, fmt.Errorf("enum %s not emitted", e.Name)
	}

	ffiType := "&ffi.TypeUint32"
	if enumSigned(e) {
		ffiType = "&ffi.TypeSint32"
	}

	return typeInfo{goType: name, ffi: ffiType, elemFFI: ffiType, count: 1, sized: true, integer: true}, nil
}

// laidOut reports whether a struct can be emitted field by field.
func (g *Generator) laidOut(s *parser.Struct) bool {
	switch g.layout[s] {
	case layoutYes:
		return true
	case layoutNo, layoutVisiting:
		return false
	}

	if s.IsOpaque || s.IsUnion || len(s.Fields) == 0 || g.matchOpaque(s) {
		g.layout[s] = layoutNo
		return false
	}

	g.layout[s] = layoutVisiting
	for _, f := range s.Fields {
		ti, err := g.typeOf(f.Type)
		if err != nil || !ti.sized {
			g.layout[s] = layoutNo
			return false
		}
	}
	g.layout[s] = layoutYes

	return true
}

const (
	layoutUnknown = iota
	layoutVisiting
	layoutYes
	layoutNo
)

func enumSigned(e *parser.Enum) bool {
	for _, v := range e.Values {
		if !v.Unresolved && v.Value < 0 {
			return true
		}
	}
	return false
}

func ffiTypeName(goName string) string {
	return "ffiType_" + goName
}

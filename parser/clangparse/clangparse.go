//go:build clang

// Package clangparse reads declarations through libclang. It produces the
// same parser.Header the regexp backend does, with struct sizes, exact enum
// values and conditional compilation taken from the compiler.
//
// It needs libclang 13 and the go-clang module, which the default build
// does not require:
//
//	go get github.com/go-clang/clang-v13/clang
//	go build -tags clang
package clangparse

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-clang/clang-v13/clang"
	"github.com/sirupsen/logrus"

	"github.com/ardanlabs/mbedtls-bindgen/parser"
)

// Clang is the libclang backend.
var Clang = parser.BackendFunc(Parse)

// Parse parses header with the given compiler arguments.
func Parse(header string, args []string) (*parser.Header, error) {
	idx := clang.NewIndex(0, 0)
	defer idx.Dispose()

	tu := idx.ParseTranslationUnit(header, args, nil, uint32(clang.TranslationUnit_DetailedPreprocessingRecord))
	if tu == (clang.TranslationUnit{}) {
		return nil, fmt.Errorf("failed to parse translation unit %s", header)
	}
	defer tu.Dispose()

	if err := diagnostics(tu); err != nil {
		return nil, err
	}

	v := &visitor{
		tu:      tu,
		named:   make(map[string]string),
		defined: make(map[string]bool),
	}
	v.collectNames(tu.TranslationUnitCursor())
	v.visit(tu.TranslationUnitCursor())

	parser.Resolve(&v.header, v.defines)

	return &v.header, nil
}

func diagnostics(tu clang.TranslationUnit) error {
	var errs []error

	for _, d := range tu.Diagnostics() {
		switch d.Severity() {
		case clang.Diagnostic_Error, clang.Diagnostic_Fatal:
			errs = append(errs, errors.New(d.Spelling()))
		default:
			logrus.WithField("function", "diagnostics").Debug(d.Spelling())
		}
		d.Dispose()
	}

	return errors.Join(errs...)
}

type visitor struct {
	tu      clang.TranslationUnit
	header  parser.Header
	defines []parser.Define

	// named maps the location of an anonymous struct or enum to the
	// typedef that names it.
	named   map[string]string
	defined map[string]bool
}

func locationKey(c clang.Cursor) string {
	f, _, _, offset := c.Location().FileLocation()
	return f.Name() + ":" + strconv.FormatUint(uint64(offset), 10)
}

func anonymous(c clang.Cursor) bool {
	s := c.Spelling()
	return s == "" || strings.Contains(s, "(")
}

// desugar looks through `struct x` spellings and through sugar libclang
// does not expose, such as decayed array parameters.
func desugar(t clang.Type) clang.Type {
	for {
		switch t.Kind() {
		case clang.Type_Elaborated:
			t = t.NamedType()
		case clang.Type_Unexposed:
			return t.CanonicalType()
		default:
			return t
		}
	}
}

func (v *visitor) collectNames(root clang.Cursor) {
	root.Visit(func(c, _ clang.Cursor) clang.ChildVisitResult {
		if c.Kind() != clang.Cursor_TypedefDecl {
			return clang.ChildVisit_Continue
		}

		decl := desugar(c.TypedefDeclUnderlyingType()).Declaration()
		switch decl.Kind() {
		case clang.Cursor_StructDecl, clang.Cursor_UnionDecl, clang.Cursor_EnumDecl:
			if anonymous(decl) {
				v.named[locationKey(decl)] = c.Spelling()
			}
		}

		return clang.ChildVisit_Continue
	})
}

func (v *visitor) visit(root clang.Cursor) {
	root.Visit(func(c, _ clang.Cursor) clang.ChildVisitResult {
		system := c.Location().IsInSystemHeader()

		switch c.Kind() {
		case clang.Cursor_StructDecl, clang.Cursor_UnionDecl:
			v.record(c, system)
		case clang.Cursor_EnumDecl:
			v.enum(c, system)
		case clang.Cursor_TypedefDecl:
			v.typedef(c, system)
		case clang.Cursor_FunctionDecl:
			v.function(c, system)
		case clang.Cursor_MacroDefinition:
			v.macro(c, system)
		}

		return clang.ChildVisit_Continue
	})
}

// declName is the name a struct or enum is emitted under, and its tag.
func (v *visitor) declName(c clang.Cursor) (string, string) {
	if !anonymous(c) {
		return c.Spelling(), c.Spelling()
	}
	return v.named[locationKey(c)], ""
}

func (v *visitor) record(c clang.Cursor, system bool) {
	if !c.IsDefinition() {
		return
	}

	name, tag := v.declName(c)
	if name == "" || v.defined[name] {
		return
	}
	v.defined[name] = true

	t := c.Type()
	s := parser.Struct{
		Name:    name,
		Tag:     tag,
		IsUnion: c.Kind() == clang.Cursor_UnionDecl,
		Size:    t.SizeOf(),
		Align:   t.AlignOf(),
		System:  system,
		Comment: c.BriefCommentText(),
	}

	ok := true
	c.Visit(func(f, _ clang.Cursor) clang.ChildVisitResult {
		if f.Kind() != clang.Cursor_FieldDecl {
			return clang.ChildVisit_Continue
		}
		if f.IsBitField() || anonymous(f) {
			ok = false
			return clang.ChildVisit_Break
		}

		ct, typeOK := convertType(f.Type())
		if !typeOK {
			ok = false
			return clang.ChildVisit_Break
		}
		s.Fields = append(s.Fields, parser.StructField{Name: f.Spelling(), Type: ct})

		return clang.ChildVisit_Continue
	})

	// The size is known, so the struct is still emitted as a blob.
	if !ok || s.IsUnion {
		s.Fields = nil
	}

	v.header.Structs = append(v.header.Structs, s)
}

func (v *visitor) enum(c clang.Cursor, system bool) {
	// Anonymous enums no typedef names still declare their constants.
	name, _ := v.declName(c)
	if name != "" {
		if v.defined["enum "+name] {
			return
		}
		v.defined["enum "+name] = true
	}

	e := parser.Enum{Name: name, System: system, Comment: c.BriefCommentText()}
	c.Visit(func(k, _ clang.Cursor) clang.ChildVisitResult {
		if k.Kind() == clang.Cursor_EnumConstantDecl {
			value := k.EnumConstantDeclValue()
			e.Values = append(e.Values, parser.EnumValue{
				Name:  k.Spelling(),
				Expr:  strconv.FormatInt(value, 10),
				Value: value,
			})
		}
		return clang.ChildVisit_Continue
	})

	v.header.Enums = append(v.header.Enums, e)
}

func (v *visitor) typedef(c clang.Cursor, system bool) {
	underlying := desugar(c.TypedefDeclUnderlyingType())

	decl := underlying.Declaration()
	switch decl.Kind() {
	case clang.Cursor_StructDecl, clang.Cursor_UnionDecl, clang.Cursor_EnumDecl:
		if anonymous(decl) {
			return
		}
	}

	ct, ok := convertType(underlying)
	if !ok {
		logrus.WithFields(logrus.Fields{
			"function": "typedef",
			"name":     c.Spelling(),
			"type":     underlying.Spelling(),
		}).Debug("Unsupported typedef")
		return
	}

	v.header.TypeDefs = append(v.header.TypeDefs, parser.TypeDef{
		Name:       c.Spelling(),
		SourceType: ct,
		System:     system,
	})
}

func (v *visitor) function(c clang.Cursor, system bool) {
	if c.StorageClass() == clang.SC_Static {
		return
	}

	fn := parser.Function{
		Name:       c.Spelling(),
		IsVariadic: c.IsVariadic(),
		System:     system,
		Comment:    c.BriefCommentText(),
	}

	ret, ok := convertType(c.ResultType())
	if !ok {
		return
	}
	fn.ReturnType = ret

	for i := int32(0); i < c.NumArguments(); i++ {
		arg := c.Argument(uint32(i))

		ct, ok := convertType(arg.Type())
		if !ok {
			return
		}
		if ct.IsArray() {
			ct.Pointers++
			ct.Dims = nil
			ct.DimExprs = nil
		}

		fn.Params = append(fn.Params, parser.FunctionParam{Name: arg.Spelling(), Type: ct})
	}

	v.header.Functions = append(v.header.Functions, fn)
}

// macro records object-like macros. Macros from the command line or from
// system headers take part in evaluation only.
func (v *visitor) macro(c clang.Cursor, system bool) {
	if c.IsMacroBuiltin() || c.IsMacroFunctionLike() {
		return
	}

	tokens := v.tu.Tokenize(c.Extent())
	if len(tokens) < 2 {
		return
	}

	parts := make([]string, 0, len(tokens)-1)
	for _, tok := range tokens[1:] {
		parts = append(parts, v.tu.TokenSpelling(tok))
	}

	f, _, _, _ := c.Location().FileLocation()

	v.defines = append(v.defines, parser.Define{
		Name:    c.Spelling(),
		Body:    strings.Join(parts, " "),
		Builtin: system || f.Name() == "",
	})
}

// convertType turns a clang type into the parser's view of it. It reports
// false for types the generator has no rendering for.
func convertType(t clang.Type) (parser.CType, bool) {
	var ct parser.CType

	t = desugar(t)
	ct.IsConst = t.IsConstQualifiedType()

	for t.Kind() == clang.Type_ConstantArray {
		ct.Dims = append(ct.Dims, t.ArraySize())
		t = desugar(t.ArrayElementType())
	}
	if t.Kind() == clang.Type_IncompleteArray {
		return ct, false
	}

	for t.Kind() == clang.Type_Pointer {
		pointee := desugar(t.PointeeType())
		switch pointee.CanonicalType().Kind() {
		case clang.Type_FunctionProto, clang.Type_FunctionNoProto:
			ct.IsFuncPtr = true
			ct.Pointers = 0
			return ct, true
		}
		ct.Pointers++
		t = pointee
	}

	switch t.Kind() {
	case clang.Type_Typedef:
		ct.Name = t.Declaration().Spelling()
		return ct, true

	case clang.Type_Record:
		decl := t.Declaration()
		if anonymous(decl) {
			return ct, false
		}
		ct.Name = decl.Spelling()
		ct.Elaborated = "struct"
		if decl.Kind() == clang.Cursor_UnionDecl {
			ct.Elaborated = "union"
		}
		return ct, true

	case clang.Type_Enum:
		decl := t.Declaration()
		if anonymous(decl) {
			return ct, false
		}
		ct.Name = decl.Spelling()
		ct.Elaborated = "enum"
		return ct, true
	}

	name, unsigned, signed, ok := builtin(t.Kind())
	if !ok {
		return ct, false
	}
	ct.Name = name
	ct.IsUnsigned = unsigned
	ct.IsSigned = signed

	return ct, true
}

func builtin(k clang.TypeKind) (name string, unsigned, signed, ok bool) {
	switch k {
	case clang.Type_Void:
		return "void", false, false, true
	case clang.Type_Bool:
		return "bool", false, false, true
	case clang.Type_Char_S, clang.Type_Char_U:
		return "char", false, false, true
	case clang.Type_SChar:
		return "char", false, true, true
	case clang.Type_UChar:
		return "char", true, false, true
	case clang.Type_Short:
		return "short", false, false, true
	case clang.Type_UShort:
		return "short", true, false, true
	case clang.Type_Int:
		return "int", false, false, true
	case clang.Type_UInt:
		return "int", true, false, true
	case clang.Type_Long:
		return "long", false, false, true
	case clang.Type_ULong:
		return "long", true, false, true
	case clang.Type_LongLong:
		return "long long", false, false, true
	case clang.Type_ULongLong:
		return "long long", true, false, true
	case clang.Type_Float:
		return "float", false, false, true
	case clang.Type_Double:
		return "double", false, false, true
	case clang.Type_LongDouble:
		return "long double", false, false, true
	}

	return "", false, false, false
}

package parser

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrConditionalBody is returned when conditional compilation selects the
// members of a struct, union or enum, or the parameters of a function.
// The regexp backend does not evaluate conditions.
var ErrConditionalBody = errors.New("conditional compilation inside a declaration")

// condMarker stands in for a conditional directive until statements are
// split, so that directives inside a body can be told from top level ones.
const condMarker = "@if@"

var conditionalDirectives = map[string]bool{
	"if": true, "ifdef": true, "ifndef": true,
	"elif": true, "elifdef": true, "elifndef": true,
	"else": true, "endif": true,
}

var blockCommentRe = regexp.MustCompile(`/\*[\s\S]*?\*/`)
var lineCommentRe = regexp.MustCompile(`//[^\n]*`)
var multiSpaceRe = regexp.MustCompile(`\s+`)
var continuationRe = regexp.MustCompile(`\\\r?\n`)
var directiveRe = regexp.MustCompile(`(?m)^[ \t]*#[ \t]*(\w+)(.*)$`)
var defineRe = regexp.MustCompile(`^\s*(\w+)(\(?)(.*)$`)
var includeRe = regexp.MustCompile(`^\s*(?:<([^>]+)>|"([^"]+)"|(\w+))`)
var attributeRe = regexp.MustCompile(`__attribute__\s*\(\((?:[^()]|\([^()]*\))*\)\)`)
var externCRe = regexp.MustCompile(`extern\s+"C"\s*\{`)
var aggregateRe = regexp.MustCompile(`^(struct|union|enum)\s*(\w*)\s*\{`)
var funcPtrRe = regexp.MustCompile(`^(.*?)\(\s*\*\s*(\w*)\s*\)\s*\((.*)\)$`)
var arraySuffixRe = regexp.MustCompile(`\[([^\]]*)\]\s*$`)
var wrappedNameRe = regexp.MustCompile(`^(.*?)\b\w+\s*\(\s*(\w+)\s*\)$`)
var wrappedFuncPtrRe = regexp.MustCompile(`\(\s*\*\s*\w+\s*\(\s*(\w+)\s*\)\s*\)`)
var identRe = regexp.MustCompile(`^[A-Za-z_]\w*$`)
var identTokenRe = regexp.MustCompile(`\b[A-Za-z_]\w*\b`)

// Include is one #include directive. Macro is set for computed includes
// such as `#include MBEDTLS_CONFIG_FILE`.
type Include struct {
	Path   string
	System bool
	Macro  string
}

type unit struct {
	header   Header
	defines  []Define
	includes []Include
}

// Parse extracts declarations from a single header's text. Includes are
// not followed; use Source for that.
func Parse(content string) (*Header, error) {
	u, err := scan(content, make(map[string]bool))
	if err != nil {
		return nil, err
	}
	Resolve(&u.header, u.defines)

	return &u.header, nil
}

// scan reads one file. empty collects object-like macros with no body;
// those identifiers are dropped from declarations (attribute macros such
// as MBEDTLS_DEPRECATED) and the set is shared across files.
//
// Conditionals at top level are not evaluated: declarations from every
// branch are kept and the first definition of a name wins. A conditional
// inside a declaration is an error.
func scan(content string, empty map[string]bool) (*unit, error) {
	u := &unit{}

	content = continuationRe.ReplaceAllString(content, " ")
	content = removeComments(content)
	content = directiveRe.ReplaceAllStringFunc(content, func(line string) string {
		m := directiveRe.FindStringSubmatch(line)
		switch m[1] {
		case "define":
			u.addDefine(m[2], empty)
		case "include":
			u.addInclude(m[2])
		default:
			if conditionalDirectives[m[1]] {
				return condMarker
			}
		}
		return ""
	})
	content = attributeRe.ReplaceAllString(content, " ")
	content = externCRe.ReplaceAllString(content, " ")

	for _, stmt := range splitStatements(content) {
		stmt, ok := dropConditionals(stmt)
		stmt = normalizeWhitespace(stmt)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrConditionalBody, excerpt(stmt))
		}
		stmt = dropEmptyMacros(stmt, empty)
		u.parseStatement(stmt)
	}

	return u, nil
}

// dropConditionals removes the conditional markers of a statement. It
// reports false when a marker sits inside braces, parentheses or brackets.
func dropConditionals(stmt string) (string, bool) {
	parts := strings.Split(stmt, condMarker)

	depth := 0
	for i, part := range parts {
		if i > 0 && depth > 0 {
			return strings.Join(parts, " "), false
		}
		depth += strings.Count(part, "{") + strings.Count(part, "(") + strings.Count(part, "[")
		depth -= strings.Count(part, "}") + strings.Count(part, ")") + strings.Count(part, "]")
	}

	return strings.Join(parts, " "), true
}

func excerpt(stmt string) string {
	if i := strings.Index(stmt, "{"); i > 0 {
		stmt = stmt[:i]
	}
	if len(stmt) > 80 {
		stmt = stmt[:80] + "..."
	}

	return strings.TrimSpace(stmt)
}

func removeComments(s string) string {
	s = blockCommentRe.ReplaceAllString(s, "")
	s = lineCommentRe.ReplaceAllString(s, "")

	return s
}

func normalizeWhitespace(s string) string {
	s = multiSpaceRe.ReplaceAllString(s, " ")

	return strings.TrimSpace(s)
}

func dropEmptyMacros(s string, empty map[string]bool) string {
	if len(empty) == 0 {
		return s
	}

	s = identTokenRe.ReplaceAllStringFunc(s, func(tok string) string {
		if empty[tok] {
			return ""
		}
		return tok
	})

	return normalizeWhitespace(s)
}

func (u *unit) addDefine(rest string, empty map[string]bool) {
	m := defineRe.FindStringSubmatch(rest)
	if m == nil || m[2] == "(" {
		return
	}

	body := strings.TrimSpace(m[3])
	if body == "" {
		empty[m[1]] = true
		return
	}

	u.defines = append(u.defines, Define{Name: m[1], Body: body})
}

func (u *unit) addInclude(rest string) {
	m := includeRe.FindStringSubmatch(rest)
	if m == nil {
		return
	}

	switch {
	case m[1] != "":
		u.includes = append(u.includes, Include{Path: m[1], System: true})
	case m[2] != "":
		u.includes = append(u.includes, Include{Path: m[2]})
	default:
		u.includes = append(u.includes, Include{Macro: m[3]})
	}
}

// splitStatements cuts the text at top-level semicolons. Function bodies
// (static inline helpers) are discarded, and a stray closing brace at depth
// zero, the end of an extern "C" block, is skipped.
func splitStatements(content string) []string {
	var stmts []string
	var cur strings.Builder

	depth := 0
	inBody := false

	for _, r := range content {
		switch r {
		case '{', '(', '[':
			if r == '{' && depth == 0 && strings.HasSuffix(strings.TrimSpace(cur.String()), ")") {
				inBody = true
			}
			depth++
		case '}', ')', ']':
			if depth == 0 {
				continue
			}
			depth--
			if depth == 0 && inBody {
				inBody = false
				cur.Reset()
				continue
			}
		case ';':
			if depth == 0 {
				stmts = append(stmts, cur.String())
				cur.Reset()
				continue
			}
		}
		cur.WriteRune(r)
	}

	return stmts
}

func splitTopLevel(s string, sep rune) []string {
	var parts []string
	var cur strings.Builder

	depth := 0
	for _, r := range s {
		switch r {
		case '{', '(', '[':
			depth++
		case '}', ')', ']':
			depth--
		}
		if r == sep && depth == 0 {
			parts = append(parts, cur.String())
			cur.Reset()
			continue
		}
		cur.WriteRune(r)
	}
	parts = append(parts, cur.String())

	return parts
}

func (u *unit) parseStatement(stmt string) {
	switch {
	case stmt == "":
	case strings.HasPrefix(stmt, "typedef "):
		u.parseTypedef(strings.TrimPrefix(stmt, "typedef "))
	case aggregateRe.MatchString(stmt):
		u.parseAggregate(stmt)
	default:
		u.parseFunction(stmt)
	}
}

func (u *unit) parseTypedef(s string) {
	if m := aggregateRe.FindStringSubmatch(s); m != nil {
		kind, tag := m[1], m[2]
		open := strings.Index(s, "{")
		end := strings.LastIndex(s, "}")
		if end < open {
			return
		}

		name := ""
		var aliases []TypeDef
		for _, d := range splitTopLevel(s[end+1:], ',') {
			stars := strings.Count(d, "*")
			d = strings.TrimSpace(strings.ReplaceAll(d, "*", ""))
			if !identRe.MatchString(d) {
				continue
			}
			if stars == 0 && name == "" {
				name = d
				continue
			}
			aliases = append(aliases, TypeDef{Name: d, SourceType: CType{Elaborated: kind, Pointers: stars}})
		}

		if name == "" {
			name = tag
		}
		if name == "" {
			return
		}

		u.addAggregate(kind, name, tag, s[open+1:end])
		for _, a := range aliases {
			a.SourceType.Name = name
			a.SourceType.Elaborated = ""
			u.header.TypeDefs = append(u.header.TypeDefs, a)
		}
		return
	}

	name, ct, ok := parseDeclarator(s)
	if !ok || name == "" {
		return
	}

	u.header.TypeDefs = append(u.header.TypeDefs, TypeDef{Name: name, SourceType: ct})
}

func (u *unit) parseAggregate(stmt string) {
	m := aggregateRe.FindStringSubmatch(stmt)
	kind, tag := m[1], m[2]

	open := strings.Index(stmt, "{")
	end := strings.LastIndex(stmt, "}")
	if end < open {
		return
	}

	if kind != "enum" && tag == "" {
		return
	}

	u.addAggregate(kind, tag, tag, stmt[open+1:end])
}

func (u *unit) addAggregate(kind, name, tag, body string) {
	if kind == "enum" {
		u.header.Enums = append(u.header.Enums, Enum{
			Name:   name,
			Values: parseEnumValues(body),
		})
		return
	}

	s := Struct{
		Name:    name,
		Tag:     tag,
		IsUnion: kind == "union",
	}

	// Unions, nested aggregates and bit-fields need layout information
	// this parser does not have. They keep a definition with no fields.
	if !s.IsUnion && !strings.ContainsAny(body, "{:") {
		if fields, ok := parseStructFields(body); ok {
			s.Fields = fields
		}
	}

	u.header.Structs = append(u.header.Structs, s)
}

func parseStructFields(body string) ([]StructField, bool) {
	var fields []StructField

	for _, decl := range strings.Split(body, ";") {
		decl = strings.TrimSpace(decl)
		if decl == "" {
			continue
		}

		parts := splitTopLevel(decl, ',')
		name, ct, ok := parseDeclarator(parts[0])
		if !ok || name == "" {
			return nil, false
		}
		fields = append(fields, StructField{Name: name, Type: ct})

		for _, extra := range parts[1:] {
			f, ok := parseExtraDeclarator(ct, extra)
			if !ok {
				return nil, false
			}
			fields = append(fields, f)
		}
	}

	return fields, true
}

// parseExtraDeclarator handles the `b` in `int a, *b[2];`.
func parseExtraDeclarator(base CType, d string) (StructField, bool) {
	d = strings.TrimSpace(d)

	var dims []string
	for {
		m := arraySuffixRe.FindStringSubmatchIndex(d)
		if m == nil {
			break
		}
		dims = append([]string{strings.TrimSpace(d[m[2]:m[3]])}, dims...)
		d = strings.TrimSpace(d[:m[0]])
	}

	stars := strings.Count(d, "*")
	name := strings.TrimSpace(strings.ReplaceAll(d, "*", ""))
	if !identRe.MatchString(name) || base.IsFuncPtr {
		return StructField{}, false
	}

	ct := base
	ct.Pointers = stars
	ct.Dims = nil
	ct.DimExprs = dims

	return StructField{Name: name, Type: ct}, true
}

func parseEnumValues(body string) []EnumValue {
	var values []EnumValue

	for _, part := range splitTopLevel(body, ',') {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		if idx := strings.Index(part, "="); idx != -1 {
			name := strings.TrimSpace(part[:idx])
			value := strings.TrimSpace(part[idx+1:])
			values = append(values, EnumValue{Name: name, Expr: value})
		} else {
			values = append(values, EnumValue{Name: part})
		}
	}

	return values
}

func (u *unit) parseFunction(stmt string) {
	stmt = strings.TrimSpace(strings.TrimPrefix(stmt, "extern "))
	if strings.HasPrefix(stmt, "static ") || strings.HasPrefix(stmt, "inline ") {
		return
	}
	if !strings.HasSuffix(stmt, ")") {
		return
	}

	open := matchingOpen(stmt)
	if open <= 0 {
		return
	}

	head := strings.TrimSpace(stmt[:open])
	if strings.HasSuffix(head, ")") {
		return
	}

	name, ret, ok := parseDeclarator(head)
	if !ok || name == "" || ret.IsArray() || ret.IsFuncPtr {
		return
	}

	params, variadic, ok := parseParams(stmt[open+1 : len(stmt)-1])
	if !ok {
		return
	}

	u.header.Functions = append(u.header.Functions, Function{
		Name:       name,
		ReturnType: ret,
		Params:     params,
		IsVariadic: variadic,
	})
}

// matchingOpen returns the index of the '(' closed by the final ')'.
func matchingOpen(s string) int {
	depth := 0
	for i := len(s) - 1; i >= 0; i-- {
		switch s[i] {
		case ')':
			depth++
		case '(':
			depth--
			if depth == 0 {
				return i
			}
		}
	}

	return -1
}

func parseParams(paramsStr string) ([]FunctionParam, bool, bool) {
	var params []FunctionParam
	isVariadic := false

	paramsStr = strings.TrimSpace(paramsStr)
	if paramsStr == "" || paramsStr == "void" {
		return nil, false, true
	}

	for _, part := range splitTopLevel(paramsStr, ',') {
		part = strings.TrimSpace(part)
		if part == "..." {
			isVariadic = true
			continue
		}

		name, ct, ok := parseDeclarator(part)
		if !ok {
			return nil, false, false
		}

		// Array parameters decay to pointers.
		if ct.IsArray() {
			ct.Pointers++
			ct.Dims = nil
			ct.DimExprs = nil
		}

		params = append(params, FunctionParam{Name: name, Type: ct})
	}

	return params, isVariadic, true
}

// parseDeclarator splits "const unsigned char *key[16]" into its name and
// type. The name is empty for abstract declarators ("size_t", "void *").
func parseDeclarator(s string) (string, CType, bool) {
	s = strings.TrimSpace(s)
	s = wrappedFuncPtrRe.ReplaceAllString(s, "(*$1)")

	if m := funcPtrRe.FindStringSubmatch(s); m != nil {
		if m[2] != "" && !identRe.MatchString(m[2]) {
			return "", CType{}, false
		}
		return m[2], CType{IsFuncPtr: true}, true
	}

	var dims []string
	for {
		m := arraySuffixRe.FindStringSubmatchIndex(s)
		if m == nil {
			break
		}
		dims = append([]string{strings.TrimSpace(s[m[2]:m[3]])}, dims...)
		s = strings.TrimSpace(s[:m[0]])
	}

	// Field names wrapped in a visibility macro: int MBEDTLS_PRIVATE(nr)
	if m := wrappedNameRe.FindStringSubmatch(s); m != nil {
		s = m[1] + " " + m[2]
	}

	stars := strings.Count(s, "*")

	var isConst bool
	var tokens []string
	for _, tok := range strings.Fields(strings.ReplaceAll(s, "*", " ")) {
		switch tok {
		case "const":
			isConst = true
		case "volatile", "restrict", "__restrict", "__restrict__", "register",
			"extern", "static", "inline", "__inline", "__inline__", "__extension__":
		default:
			tokens = append(tokens, tok)
		}
	}

	name := ""
	if n := len(tokens); n > 1 && !isTypeKeyword(tokens[n-1]) && !isElaborated(tokens[n-2]) {
		name = tokens[n-1]
		tokens = tokens[:n-1]
	}

	ct, ok := parseCType(tokens)
	if !ok || (name != "" && !identRe.MatchString(name)) {
		return "", CType{}, false
	}

	ct.IsConst = isConst
	ct.Pointers = stars
	ct.DimExprs = dims

	return name, ct, true
}

func parseCType(tokens []string) (CType, bool) {
	var ct CType
	var keyword, ident string
	longs := 0

	for i := 0; i < len(tokens); i++ {
		tok := tokens[i]
		switch tok {
		case "unsigned":
			ct.IsUnsigned = true
		case "signed":
			ct.IsSigned = true
		case "long":
			longs++
		case "int":
			if keyword == "" {
				keyword = "int"
			}
		case "short", "char", "float", "double", "void":
			keyword = tok
		case "_Bool", "bool":
			keyword = "bool"
		case "struct", "union", "enum":
			if i+1 >= len(tokens) || !identRe.MatchString(tokens[i+1]) {
				return ct, false
			}
			ct.Elaborated = tok
			ident = tokens[i+1]
			i++
		default:
			if !identRe.MatchString(tok) {
				return ct, false
			}
			ident = tok
		}
	}

	switch {
	case longs >= 2:
		keyword = "long long"
	case longs == 1 && keyword == "double":
		keyword = "long double"
	case longs == 1:
		keyword = "long"
	case keyword == "" && ident == "" && (ct.IsUnsigned || ct.IsSigned):
		keyword = "int"
	}

	switch {
	case keyword != "" && ct.Elaborated == "":
		ct.Name = keyword
	case ident != "":
		ct.Name = ident
	default:
		return ct, false
	}

	return ct, true
}

func isTypeKeyword(tok string) bool {
	switch tok {
	case "unsigned", "signed", "long", "short", "char", "int", "float", "double", "void", "_Bool", "bool":
		return true
	}
	return false
}

func isElaborated(tok string) bool {
	return tok == "struct" || tok == "union" || tok == "enum"
}

package parser

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"rsc.io/c2go/cc"
)

var errCycle = errors.New("macro refers to itself")

// Evaluator folds C constant expressions found in macro bodies, enum
// initializers and array bounds. Names resolve to enum constants first,
// then to macros, recursively.
type Evaluator struct {
	defines   map[string]string
	consts    map[string]int64
	resolving map[string]bool
}

func NewEvaluator(defines []Define) *Evaluator {
	e := &Evaluator{
		defines:   make(map[string]string, len(defines)),
		consts:    make(map[string]int64),
		resolving: make(map[string]bool),
	}

	for _, d := range defines {
		if _, ok := e.defines[d.Name]; !ok {
			e.defines[d.Name] = d.Body
		}
	}

	return e
}

// SetConst records an enum constant.
func (e *Evaluator) SetConst(name string, value int64) {
	e.consts[name] = value
}

// Eval folds expr to an integer.
func (e *Evaluator) Eval(expr string) (int64, error) {
	x, err := cc.ParseExpr(expr)
	if err != nil {
		return 0, err
	}

	return e.fold(x)
}

// Lookup resolves a single identifier.
func (e *Evaluator) Lookup(name string) (int64, error) {
	if v, ok := e.consts[name]; ok {
		return v, nil
	}

	body, ok := e.defines[name]
	if !ok {
		return 0, fmt.Errorf("undefined identifier %s", name)
	}
	if e.resolving[name] {
		return 0, fmt.Errorf("%s: %w", name, errCycle)
	}

	e.resolving[name] = true
	defer delete(e.resolving, name)

	return e.Eval(body)
}

func (e *Evaluator) fold(x *cc.Expr) (int64, error) {
	switch x.Op {
	case cc.Number:
		return parseNumber(x.Text)
	case cc.Name:
		return e.Lookup(x.Text)
	case cc.Paren, cc.Cast, cc.Plus:
		return e.fold(x.Left)
	case cc.Minus:
		v, err := e.fold(x.Left)
		return -v, err
	case cc.Twid:
		v, err := e.fold(x.Left)
		return ^v, err
	case cc.Not:
		v, err := e.fold(x.Left)
		return boolInt(v == 0), err
	case cc.Cond:
		c, err := e.fold(x.List[0])
		if err != nil {
			return 0, err
		}
		if c != 0 {
			return e.fold(x.List[1])
		}
		return e.fold(x.List[2])
	}

	if x.Left == nil || x.Right == nil {
		return 0, fmt.Errorf("unsupported expression %s", x)
	}

	l, err := e.fold(x.Left)
	if err != nil {
		return 0, err
	}
	r, err := e.fold(x.Right)
	if err != nil {
		return 0, err
	}

	switch x.Op {
	case cc.Add:
		return l + r, nil
	case cc.Sub:
		return l - r, nil
	case cc.Mul:
		return l * r, nil
	case cc.Div, cc.Mod:
		if r == 0 {
			return 0, fmt.Errorf("division by zero in %s", x)
		}
		if x.Op == cc.Div {
			return l / r, nil
		}
		return l % r, nil
	case cc.Lsh:
		return l << uint64(r), nil
	case cc.Rsh:
		return l >> uint64(r), nil
	case cc.And:
		return l & r, nil
	case cc.Or:
		return l | r, nil
	case cc.Xor:
		return l ^ r, nil
	case cc.AndAnd:
		return boolInt(l != 0 && r != 0), nil
	case cc.OrOr:
		return boolInt(l != 0 || r != 0), nil
	case cc.EqEq:
		return boolInt(l == r), nil
	case cc.NotEq:
		return boolInt(l != r), nil
	case cc.Lt:
		return boolInt(l < r), nil
	case cc.LtEq:
		return boolInt(l <= r), nil
	case cc.Gt:
		return boolInt(l > r), nil
	case cc.GtEq:
		return boolInt(l >= r), nil
	}

	return 0, fmt.Errorf("unsupported operator %s", x.Op)
}

// parseNumber reads a C integer or character constant.
func parseNumber(text string) (int64, error) {
	if strings.HasPrefix(text, "'") && strings.HasSuffix(text, "'") && len(text) >= 3 {
		r, _, _, err := strconv.UnquoteChar(text[1:len(text)-1], '\'')
		if err != nil {
			return 0, fmt.Errorf("character constant %s: %w", text, err)
		}
		return int64(r), nil
	}

	t := strings.TrimRight(text, "uUlL")
	if v, err := strconv.ParseInt(t, 0, 64); err == nil {
		return v, nil
	}

	u, err := strconv.ParseUint(t, 0, 64)
	if err != nil {
		return 0, fmt.Errorf("integer constant %s: %w", text, err)
	}

	return int64(u), nil
}

func boolInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

// Resolve folds enum values, integer macros and array bounds, and adds an
// opaque struct for every struct typedef whose body never appears.
// Declarations that do not fold are dropped, never guessed: a struct with
// an unresolved array bound keeps its definition but loses its fields.
func Resolve(h *Header, defines []Define) {
	e := NewEvaluator(defines)

	for i := range h.Enums {
		resolveEnum(e, &h.Enums[i])
	}

	h.Macros = h.Macros[:0]
	seen := make(map[string]bool)
	for _, d := range defines {
		if d.Builtin || seen[d.Name] {
			continue
		}
		seen[d.Name] = true

		v, err := e.Lookup(d.Name)
		if err != nil {
			continue
		}
		h.Macros = append(h.Macros, Macro{Name: d.Name, Body: d.Body, Value: v})
	}

	for i := range h.Structs {
		resolveFields(e, &h.Structs[i])
	}

	addOpaqueStructs(h)
}

func resolveEnum(e *Evaluator, en *Enum) {
	next := int64(0)
	known := true

	for i := range en.Values {
		v := &en.Values[i]

		switch {
		case v.Expr != "":
			val, err := e.Eval(v.Expr)
			if err != nil {
				v.Unresolved = true
				known = false
				continue
			}
			v.Value = val
			known = true
		case known:
			v.Value = next
		default:
			v.Unresolved = true
			continue
		}

		e.SetConst(v.Name, v.Value)
		next = v.Value + 1
	}
}

func resolveFields(e *Evaluator, s *Struct) {
	for i := range s.Fields {
		ct := &s.Fields[i].Type
		if len(ct.Dims) > 0 || len(ct.DimExprs) == 0 {
			continue
		}

		dims := make([]int64, 0, len(ct.DimExprs))
		for _, expr := range ct.DimExprs {
			n, err := e.Eval(expr)
			if err != nil || n < 0 {
				s.Fields = nil
				return
			}
			dims = append(dims, n)
		}
		ct.Dims = dims
	}
}

func addOpaqueStructs(h *Header) {
	defined := make(map[string]bool)
	for _, s := range h.Structs {
		defined[s.Name] = true
		if s.Tag != "" {
			defined[s.Tag] = true
		}
	}

	for _, td := range h.TypeDefs {
		src := td.SourceType
		if src.Elaborated != "struct" && src.Elaborated != "union" {
			continue
		}
		if defined[src.Name] {
			continue
		}
		defined[src.Name] = true

		h.Structs = append(h.Structs, Struct{
			Name:     src.Name,
			Tag:      src.Name,
			IsOpaque: true,
			IsUnion:  src.Elaborated == "union",
			System:   td.System,
		})
	}
}

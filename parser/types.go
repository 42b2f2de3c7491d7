package parser

// CType describes a C type as seen at a declaration site. Dims wrap
// Pointers wrap the base type: `unsigned char *bufs[4]` is Dims [4],
// Pointers 1, Name "char", IsUnsigned.
type CType struct {
	Name       string
	Elaborated string // "struct", "union", "enum" or ""
	Pointers   int
	IsConst    bool
	IsUnsigned bool
	IsSigned   bool
	IsFuncPtr  bool
	Dims       []int64
	DimExprs   []string
}

func (ct CType) IsPointer() bool {
	return ct.Pointers > 0 || ct.IsFuncPtr
}

func (ct CType) IsArray() bool {
	return len(ct.Dims) > 0 || len(ct.DimExprs) > 0
}

func (ct CType) IsVoid() bool {
	return ct.Name == "void" && ct.Pointers == 0 && !ct.IsFuncPtr && !ct.IsArray()
}

type StructField struct {
	Name string
	Type CType
}

// Struct is a struct or union. IsOpaque marks one whose definition was
// never seen. A defined struct with no Fields has a layout the backend
// could not describe; Size is its size in bytes when the backend knows it.
type Struct struct {
	Name     string
	Tag      string
	Fields   []StructField
	IsOpaque bool
	IsUnion  bool
	Size     int64
	Align    int64
	System   bool
	Comment  string
}

type FunctionParam struct {
	Name string
	Type CType
}

type Function struct {
	Name       string
	ReturnType CType
	Params     []FunctionParam
	IsVariadic bool
	System     bool
	Comment    string
}

type TypeDef struct {
	Name       string
	SourceType CType
	System     bool
}

// EnumValue holds the constant expression as written and, after Resolve,
// its value. Values that cannot be folded are marked Unresolved.
type EnumValue struct {
	Name       string
	Expr       string
	Value      int64
	Unresolved bool
}

type Enum struct {
	Name    string
	Values  []EnumValue
	System  bool
	Comment string
}

// Macro is an object-like macro whose body folds to an integer.
type Macro struct {
	Name  string
	Body  string
	Value int64
}

// Define is a raw object-like macro. Builtin defines come from compiler
// arguments; they take part in evaluation but are never emitted.
type Define struct {
	Name    string
	Body    string
	Builtin bool
}

type Header struct {
	Structs   []Struct
	Functions []Function
	TypeDefs  []TypeDef
	Enums     []Enum
	Macros    []Macro
}

// Merge appends the declarations of other to h.
func (h *Header) Merge(other *Header) {
	h.Structs = append(h.Structs, other.Structs...)
	h.Functions = append(h.Functions, other.Functions...)
	h.TypeDefs = append(h.TypeDefs, other.TypeDefs...)
	h.Enums = append(h.Enums, other.Enums...)
	h.Macros = append(h.Macros, other.Macros...)
}

// Backend turns an umbrella header into declarations. args are compiler
// style arguments (-I, -D).
type Backend interface {
	Parse(header string, args []string) (*Header, error)
}

type BackendFunc func(header string, args []string) (*Header, error)

func (f BackendFunc) Parse(header string, args []string) (*Header, error) {
	return f(header, args)
}

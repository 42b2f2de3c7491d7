package parser

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Source is the libclang-free backend. It follows #include directives that
// resolve inside the configured include directories and parses each file
// once. Headers it cannot find (libc, compiler builtins) are skipped.
// Conditional compilation is not evaluated, and a conditional inside a
// declaration fails the parse with ErrConditionalBody.
type Source struct {
	IncludeDirs []string
	Defines     []Define

	visited map[string]bool
	empty   map[string]bool
	header  Header
	defines []Define
}

// NewSource reads -I and -D arguments the way a compiler driver would.
func NewSource(args []string) *Source {
	s := &Source{}

	for i := 0; i < len(args); i++ {
		arg := args[i]
		switch {
		case arg == "-I" && i+1 < len(args):
			i++
			s.IncludeDirs = append(s.IncludeDirs, args[i])
		case strings.HasPrefix(arg, "-I"):
			s.IncludeDirs = append(s.IncludeDirs, strings.TrimPrefix(arg, "-I"))
		case arg == "-D" && i+1 < len(args):
			i++
			s.Defines = append(s.Defines, parseDefineArg(args[i]))
		case strings.HasPrefix(arg, "-D"):
			s.Defines = append(s.Defines, parseDefineArg(strings.TrimPrefix(arg, "-D")))
		}
	}

	return s
}

func parseDefineArg(def string) Define {
	name, body, ok := strings.Cut(def, "=")
	if !ok {
		body = "1"
	}

	return Define{Name: name, Body: body, Builtin: true}
}

// Regexp is the Backend built on Source.
var Regexp = BackendFunc(func(header string, args []string) (*Header, error) {
	return NewSource(args).ParseFile(header)
})

// ParseFile parses path and everything it includes.
func (s *Source) ParseFile(path string) (*Header, error) {
	s.visited = make(map[string]bool)
	s.empty = make(map[string]bool)
	s.header = Header{}
	s.defines = append([]Define(nil), s.Defines...)

	if err := s.parse(path); err != nil {
		return nil, err
	}

	Resolve(&s.header, s.defines)

	return &s.header, nil
}

func (s *Source) parse(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	if s.visited[abs] {
		return nil
	}
	s.visited[abs] = true

	data, err := os.ReadFile(abs)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	u, err := scan(string(data), s.empty)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	s.defines = append(s.defines, u.defines...)

	for _, inc := range u.includes {
		target, ok := s.resolve(inc, filepath.Dir(abs))
		if !ok {
			continue
		}
		if err := s.parse(target); err != nil {
			return err
		}
	}

	s.header.Merge(&u.header)

	return nil
}

// resolve finds the file an include refers to. Quoted includes look next
// to the including file first.
func (s *Source) resolve(inc Include, dir string) (string, bool) {
	if inc.Macro != "" {
		body, ok := s.lookupDefine(inc.Macro)
		if !ok {
			return "", false
		}
		m := includeRe.FindStringSubmatch(body)
		if m == nil || m[3] != "" {
			return "", false
		}
		inc = Include{Path: m[1] + m[2], System: m[1] != ""}
	}

	if filepath.IsAbs(inc.Path) {
		return inc.Path, fileExists(inc.Path)
	}

	var dirs []string
	if !inc.System {
		dirs = append(dirs, dir)
	}
	dirs = append(dirs, s.IncludeDirs...)

	for _, d := range dirs {
		p := filepath.Join(d, inc.Path)
		if fileExists(p) {
			return p, true
		}
	}

	return "", false
}

func (s *Source) lookupDefine(name string) (string, bool) {
	for _, d := range s.defines {
		if d.Name == name {
			return d.Body, true
		}
	}
	return "", false
}

func fileExists(path string) bool {
	st, err := os.Stat(path)
	return err == nil && !st.IsDir()
}

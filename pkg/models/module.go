package models

import "strings"

// ImportKind distinguishes the syntactic form of an import.
type ImportKind string

const (
	ImportPlain    ImportKind = "import"    // import a.b
	ImportFrom     ImportKind = "from"      // from a.b import c
	ImportFromStar ImportKind = "from_star" // from a.b import *
)

// RawImport is one import record as emitted by the front-end.
// Target is absolute (relative imports are resolved before this point).
type RawImport struct {
	Target string     `json:"target" msgpack:"t"`
	Line   uint32     `json:"line" msgpack:"l"`
	Kind   ImportKind `json:"kind" msgpack:"k"`
	Names  []string   `json:"names,omitempty" msgpack:"n,omitempty"`
}

// Candidates returns the dotted paths this import may resolve to, most
// specific first. For "from a import b" the submodule a.b is tried before a.
func (r RawImport) Candidates() []string {
	if r.Kind != ImportFrom || len(r.Names) == 0 {
		return []string{r.Target}
	}
	out := make([]string, 0, len(r.Names)+1)
	for _, n := range r.Names {
		if r.Target == "" {
			out = append(out, n)
		} else {
			out = append(out, r.Target+"."+n)
		}
	}
	if r.Target != "" {
		out = append(out, r.Target)
	}
	return out
}

// DependencyEdge is a resolved internal import between two modules.
type DependencyEdge struct {
	From  string     `json:"from"`
	To    string     `json:"to"`
	Line  uint32     `json:"line"`
	Kind  ImportKind `json:"kind"`
	Names []string   `json:"imported_names,omitempty"`
}

// DefinitionKind is the kind of a top-level definition.
type DefinitionKind string

const (
	DefFunction DefinitionKind = "function"
	DefClass    DefinitionKind = "class"
)

// Definition describes a top-level function or class in a file.
type Definition struct {
	Name string         `json:"name" msgpack:"n"`
	Kind DefinitionKind `json:"kind" msgpack:"k"`
	Line uint32         `json:"line" msgpack:"l"`
}

// Module is a project-internal Python module.
type Module struct {
	Name    string   `json:"qualified_name"`
	File    string   `json:"file_path"`
	Symbols []string `json:"declared_symbols,omitempty"`
	Package bool     `json:"package,omitempty"`
}

// Root returns the top-level segment of a dotted module name.
func Root(name string) string {
	if i := strings.IndexByte(name, '.'); i >= 0 {
		return name[:i]
	}
	return name
}

// Parent returns the dotted name without its last segment, or "".
func Parent(name string) string {
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		return name[:i]
	}
	return ""
}

// IsDescendant reports whether name lies strictly under pkg.
func IsDescendant(name, pkg string) bool {
	return len(name) > len(pkg) && strings.HasPrefix(name, pkg) && name[len(pkg)] == '.'
}

// FileFacts is everything the front-end extracts from one source file.
// It is the unit stored in the process cache.
type FileFacts struct {
	Path        string       `json:"path" msgpack:"p"`
	Module      string       `json:"module" msgpack:"m"`
	Package     bool         `json:"package" msgpack:"pk"`
	Imports     []RawImport  `json:"imports,omitempty" msgpack:"i,omitempty"`
	Definitions []Definition `json:"definitions,omitempty" msgpack:"d,omitempty"`
	Dynamic     bool         `json:"dynamic,omitempty" msgpack:"dy,omitempty"`
	Fragments   []Fragment   `json:"fragments,omitempty" msgpack:"f,omitempty"`
	Lines       int          `json:"lines" msgpack:"ln"`
}

// HasDefinition reports whether a top-level definition with the given name
// exists.
func (f *FileFacts) HasDefinition(name string) bool {
	for _, d := range f.Definitions {
		if d.Name == name {
			return true
		}
	}
	return false
}

// Symbols lists the declared top-level names.
func (f *FileFacts) Symbols() []string {
	if len(f.Definitions) == 0 {
		return nil
	}
	out := make([]string, len(f.Definitions))
	for i, d := range f.Definitions {
		out[i] = d.Name
	}
	return out
}

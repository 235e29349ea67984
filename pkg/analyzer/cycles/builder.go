// Package cycles builds the project-internal module dependency graph and
// reports circular imports.
package cycles

import (
	"slices"
	"strings"

	"github.com/panbanda/tangle/pkg/models"
	"github.com/panbanda/tangle/pkg/parser"
	"github.com/panbanda/tangle/pkg/python"
)

// Granularity selects what a graph node represents.
type Granularity string

const (
	// GranularityModule uses the longest registered module prefix of an import.
	GranularityModule Granularity = "module"
	// GranularityRoot collapses every module to its top-level package.
	GranularityRoot Granularity = "root"
)

// Builder accumulates modules and raw imports. The set of known roots grows
// as files are registered; imports outside it are dropped at Build time.
// A Builder is owned by one caller and is not safe for concurrent use.
type Builder struct {
	granularity Granularity
	modules     map[string]*models.Module
	roots       map[string]bool
	imports     []fileImports
}

type fileImports struct {
	module  string
	imports []models.RawImport
}

// BuilderOption configures a Builder.
type BuilderOption func(*Builder)

// WithGranularity sets the node granularity.
func WithGranularity(g Granularity) BuilderOption {
	return func(b *Builder) {
		b.granularity = g
	}
}

// NewBuilder creates an empty builder.
func NewBuilder(opts ...BuilderOption) *Builder {
	b := &Builder{
		granularity: GranularityModule,
		modules:     make(map[string]*models.Module),
		roots:       make(map[string]bool),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// AddFile registers a module and widens the known roots by its top-level
// segment. An empty name (a root-level __init__.py) is ignored.
func (b *Builder) AddFile(module, path string) {
	if module == "" {
		return
	}
	if _, ok := b.modules[module]; !ok {
		b.modules[module] = &models.Module{Name: module, File: path}
	}
	b.roots[models.Root(module)] = true
}

// AddImports registers a module together with its pre-extracted import records.
func (b *Builder) AddImports(module, path string, imports []models.RawImport) {
	if module == "" {
		return
	}
	b.AddFile(module, path)
	if len(imports) > 0 {
		b.imports = append(b.imports, fileImports{module: module, imports: imports})
	}
}

// AddTree registers a module from its parsed syntax tree.
func (b *Builder) AddTree(module string, isPackage bool, result *parser.ParseResult) {
	b.AddImports(module, result.Path, python.ExtractImports(result, module, isPackage))
}

// AddFacts registers a file from extracted facts.
func (b *Builder) AddFacts(f *models.FileFacts) {
	b.AddImports(f.Module, f.Path, f.Imports)
	if m, ok := b.modules[f.Module]; ok {
		m.Symbols = f.Symbols()
		m.Package = f.Package
	}
}

// KnownRoots returns the registered top-level segments, sorted.
func (b *Builder) KnownRoots() []string {
	out := make([]string, 0, len(b.roots))
	for r := range b.roots {
		out = append(out, r)
	}
	slices.Sort(out)
	return out
}

// Build resolves every recorded import against the registered modules and
// returns the dependency graph. It runs in time linear in the import count
// times the depth of the dotted names.
func (b *Builder) Build() *Graph {
	g := newGraph()
	for _, name := range b.sortedModules() {
		m := b.modules[name]
		g.addNode(b.node(name), m.File)
	}

	for _, fi := range b.imports {
		from := b.node(fi.module)
		for _, imp := range fi.imports {
			for _, to := range b.resolve(imp) {
				g.addEdge(models.DependencyEdge{
					From:  from,
					To:    to,
					Line:  imp.Line,
					Kind:  imp.Kind,
					Names: imp.Names,
				})
			}
		}
	}
	g.finish()
	return g
}

func (b *Builder) sortedModules() []string {
	names := make([]string, 0, len(b.modules))
	for n := range b.modules {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

func (b *Builder) node(module string) string {
	if b.granularity == GranularityRoot {
		return models.Root(module)
	}
	return module
}

// resolve maps an import to its internal graph nodes. Each imported name
// resolves to its longest registered prefix, so `from pkg import a, b` yields
// one node per submodule. The import target is used only when no name
// resolves, and the root segment only when nothing more specific is known.
func (b *Builder) resolve(imp models.RawImport) []string {
	cands := imp.Candidates()
	fromNames := imp.Kind == models.ImportFrom && len(imp.Names) > 0 && imp.Target != ""

	var out []string
	var rootHit string
	for i, cand := range cands {
		if fromNames && i == len(cands)-1 && len(out) > 0 {
			break
		}
		if cand == "" || !b.roots[models.Root(cand)] {
			continue
		}
		if m, ok := b.longestPrefix(cand); ok {
			if n := b.node(m); !slices.Contains(out, n) {
				out = append(out, n)
			}
			continue
		}
		if rootHit == "" {
			rootHit = models.Root(cand)
		}
	}
	if len(out) == 0 && rootHit != "" {
		out = append(out, rootHit)
	}
	return out
}

func (b *Builder) longestPrefix(path string) (string, bool) {
	for {
		if _, ok := b.modules[path]; ok {
			return path, true
		}
		i := strings.LastIndexByte(path, '.')
		if i < 0 {
			return "", false
		}
		path = path[:i]
	}
}

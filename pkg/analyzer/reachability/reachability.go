// Package reachability finds project modules that no entry point can reach
// through static imports, package attribute hooks or dynamic import roots.
package reachability

import (
	"context"
	"log/slog"
	"slices"
	"strings"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/panbanda/tangle/pkg/models"
)

const getattrHook = "__getattr__"

type module struct {
	name     string
	file     string
	isInit   bool
	dispatch bool
	dynamic  bool
	imports  []models.RawImport
}

// pkg is the package a module belongs to: itself for a package initializer,
// otherwise its parent.
func (m module) pkg() string {
	if m.isInit {
		return m.name
	}
	return models.Parent(m.name)
}

// Analyzer classifies modules as reachable or orphaned.
type Analyzer struct {
	entryFiles    map[string]bool
	testPatterns  []string
	dynamicRoots  []string
	scripts       []string
	declared      []string
	detectDynamic bool
	logger        *slog.Logger

	modules []module
	index   map[string]uint32
}

// Option is a functional option for configuring Analyzer.
type Option func(*Analyzer)

// WithEntryFiles replaces the conventional entry basenames.
func WithEntryFiles(names []string) Option {
	return func(a *Analyzer) {
		a.entryFiles = make(map[string]bool, len(names))
		for _, n := range names {
			a.entryFiles[n] = true
		}
	}
}

// WithTestPatterns replaces the test file basename globs.
func WithTestPatterns(patterns []string) Option {
	return func(a *Analyzer) {
		a.testPatterns = patterns
	}
}

// WithDynamicRoots adds module prefixes under which reaching one module
// reaches them all.
func WithDynamicRoots(roots []string) Option {
	return func(a *Analyzer) {
		a.dynamicRoots = append(a.dynamicRoots, roots...)
	}
}

// WithScriptEntryPoints adds packaging-declared "module:callable" targets.
func WithScriptEntryPoints(targets []string) Option {
	return func(a *Analyzer) {
		a.scripts = append(a.scripts, targets...)
	}
}

// WithEntryPoints adds module names that are always reachable.
func WithEntryPoints(names []string) Option {
	return func(a *Analyzer) {
		a.declared = append(a.declared, names...)
	}
}

// WithDynamicDetection toggles treating the package of any module that
// resolves names at runtime as a dynamic root. It is off by default.
func WithDynamicDetection(enabled bool) Option {
	return func(a *Analyzer) {
		a.detectDynamic = enabled
	}
}

// WithLogger sets the diagnostic logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *Analyzer) {
		a.logger = l
	}
}

// New creates a reachability analyzer.
func New(opts ...Option) *Analyzer {
	a := &Analyzer{
		testPatterns: DefaultTestPatterns,
		logger:       slog.Default(),
		index:        make(map[string]uint32),
	}
	WithEntryFiles(DefaultEntryFiles)(a)
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// AddFile registers one file. Files without a module name are ignored.
func (a *Analyzer) AddFile(f *models.FileFacts) {
	if f.Module == "" {
		return
	}
	m := module{
		name:    f.Module,
		file:    f.Path,
		isInit:  f.Package,
		dynamic: f.Dynamic,
		imports: f.Imports,
	}
	// the hook only proxies submodules when defined in a package initializer
	m.dispatch = f.Package && f.HasDefinition(getattrHook)

	if id, ok := a.index[f.Module]; ok {
		a.modules[id] = m
		return
	}
	a.index[f.Module] = uint32(len(a.modules))
	a.modules = append(a.modules, m)
}

// Analyze registers facts and computes the report.
func (a *Analyzer) Analyze(ctx context.Context, facts []models.FileFacts) (*models.ReachabilityReport, error) {
	for i := range facts {
		a.AddFile(&facts[i])
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return a.Report(), nil
}

// Close is a no-op.
func (a *Analyzer) Close() {}

// Report computes reachability over the registered modules. With no entry
// points the result is empty rather than flagging every module.
func (a *Analyzer) Report() *models.ReachabilityReport {
	a.sortModules()
	report := &models.ReachabilityReport{
		EntryPoints: a.detectEntryPoints(),
		Orphans:     []models.OrphanModule{},
	}
	report.Summary.TotalModules = len(a.modules)

	if len(report.EntryPoints) == 0 {
		a.logger.Debug("no entry points detected; skipping reachability", "modules", len(a.modules))
		report.Summary.Skipped = true
		return report
	}

	edges := a.staticEdges()
	parents := a.dispatchEdges(edges)
	report.Summary.DispatchPackages = len(parents)
	groups, memberOf := a.dynamicGroups()

	visited := roaring.New()
	queue := make([]uint32, 0, len(a.modules))
	for _, e := range report.EntryPoints {
		id := a.index[e.Module]
		if visited.CheckedAdd(id) {
			queue = append(queue, id)
		}
	}
	push := func(id uint32) {
		if visited.CheckedAdd(id) {
			queue = append(queue, id)
		}
	}

	expanded := roaring.New()
	for head := 0; head < len(queue); head++ {
		cur := queue[head]
		for _, next := range edges[cur] {
			push(next)
		}
		for _, pkg := range parents[cur] {
			push(pkg)
		}
		for _, g := range memberOf[cur] {
			if expanded.CheckedAdd(g) {
				for _, sib := range groups[g] {
					push(sib)
				}
			}
		}
	}

	report.Summary.ReachableModules = int(visited.GetCardinality())
	for id, m := range a.modules {
		if !visited.Contains(uint32(id)) {
			report.Orphans = append(report.Orphans, models.OrphanModule{Module: m.name, File: m.file})
		}
	}
	report.Summary.OrphanModules = len(report.Orphans)

	a.logger.Info("modules unreachable",
		"unreachable", len(report.Orphans),
		"total", len(a.modules),
		"entry_points", len(report.EntryPoints))
	return report
}

// sortModules renumbers modules by name so ids and output are deterministic.
func (a *Analyzer) sortModules() {
	slices.SortFunc(a.modules, func(x, y module) int {
		return strings.Compare(x.name, y.name)
	})
	for i, m := range a.modules {
		a.index[m.name] = uint32(i)
	}
}

// staticEdges resolves imports to the longest known module prefix.
func (a *Analyzer) staticEdges() [][]uint32 {
	edges := make([][]uint32, len(a.modules))
	for id, m := range a.modules {
		seen := make(map[uint32]bool)
		for _, imp := range m.imports {
			for _, cand := range imp.Candidates() {
				to, ok := a.longestPrefix(cand)
				if ok && to != uint32(id) && !seen[to] {
					seen[to] = true
					edges[id] = append(edges[id], to)
				}
			}
		}
	}
	return edges
}

// dispatchEdges wires every __getattr__ package to all of its descendants.
// It returns, per descendant, the dispatching packages above it: reaching a
// submodule imports its package too.
func (a *Analyzer) dispatchEdges(edges [][]uint32) map[uint32][]uint32 {
	parents := make(map[uint32][]uint32)
	for pid, p := range a.modules {
		if !p.dispatch {
			continue
		}
		for cid, c := range a.modules {
			if models.IsDescendant(c.name, p.name) {
				edges[pid] = append(edges[pid], uint32(cid))
				parents[uint32(cid)] = append(parents[uint32(cid)], uint32(pid))
			}
		}
	}
	return parents
}

// dynamicGroups returns, for each dynamic root, the modules under it, and for
// each module the groups it belongs to.
func (a *Analyzer) dynamicGroups() ([][]uint32, map[uint32][]uint32) {
	roots := slices.Clone(a.dynamicRoots)
	if a.detectDynamic {
		for _, m := range a.modules {
			if m.dynamic {
				roots = append(roots, m.pkg())
			}
		}
	}
	slices.Sort(roots)
	roots = slices.Compact(roots)

	var groups [][]uint32
	memberOf := make(map[uint32][]uint32)
	for _, r := range roots {
		if r == "" {
			continue
		}
		var members []uint32
		for id, m := range a.modules {
			if m.name == r || models.IsDescendant(m.name, r) {
				members = append(members, uint32(id))
			}
		}
		if len(members) < 2 {
			continue
		}
		g := uint32(len(groups))
		groups = append(groups, members)
		for _, id := range members {
			memberOf[id] = append(memberOf[id], g)
		}
	}
	return groups, memberOf
}

func (a *Analyzer) longestPrefix(path string) (uint32, bool) {
	for path != "" {
		if id, ok := a.index[path]; ok {
			return id, true
		}
		path = models.Parent(path)
	}
	return 0, false
}

package reachability

import (
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/panbanda/tangle/pkg/models"
)

// DefaultEntryFiles are basenames treated as entry points wherever they
// appear in the tree.
var DefaultEntryFiles = []string{
	"__main__.py",
	"manage.py",
	"wsgi.py",
	"asgi.py",
	"conftest.py",
	"setup.py",
	"fabfile.py",
	"tasks.py",
	"app.py",
	"main.py",
	"server.py",
	"cli.py",
}

// DefaultTestPatterns match test file basenames.
var DefaultTestPatterns = []string{
	"test_*.py",
	"*_test.py",
}

func (a *Analyzer) isTestFile(path string) bool {
	base := filepath.Base(path)
	for _, p := range a.testPatterns {
		if ok, _ := doublestar.Match(p, base); ok {
			return true
		}
	}
	return false
}

// detectEntryPoints returns entry ids in module order, each tagged with the
// first reason that applied.
func (a *Analyzer) detectEntryPoints() []models.EntryPoint {
	reasons := make(map[uint32]models.EntryReason)
	mark := func(id uint32, r models.EntryReason) {
		if _, ok := reasons[id]; !ok {
			reasons[id] = r
		}
	}

	for id, m := range a.modules {
		base := filepath.Base(m.file)
		switch {
		case a.entryFiles[base]:
			mark(uint32(id), models.EntryConventional)
		case a.isTestFile(m.file):
			mark(uint32(id), models.EntryTest)
		case m.isInit && !strings.Contains(m.name, "."):
			mark(uint32(id), models.EntryPackageRoot)
		}
	}

	for _, target := range a.scripts {
		if id, ok := a.resolveScript(target); ok {
			mark(id, models.EntryScript)
		}
	}
	for _, name := range a.declared {
		if id, ok := a.longestPrefix(name); ok {
			mark(id, models.EntryDeclared)
		}
	}

	entries := make([]models.EntryPoint, 0, len(reasons))
	for id, m := range a.modules {
		if r, ok := reasons[uint32(id)]; ok {
			entries = append(entries, models.EntryPoint{Module: m.name, Reason: r})
		}
	}
	return entries
}

// resolveScript resolves "pkg.mod:func" style targets. The callable is
// stripped first; the whole dotted path is tried as a fallback for targets
// that name a module attribute chain.
func (a *Analyzer) resolveScript(target string) (uint32, bool) {
	if i := strings.IndexByte(target, '['); i >= 0 {
		target = target[:i]
	}
	target = strings.TrimSpace(target)
	if target == "" {
		return 0, false
	}

	if mod, _, ok := strings.Cut(target, ":"); ok {
		if id, found := a.longestPrefix(strings.TrimSpace(mod)); found {
			return id, true
		}
	} else if parent := models.Parent(target); parent != "" {
		if id, found := a.longestPrefix(parent); found {
			return id, true
		}
	}
	return a.longestPrefix(strings.ReplaceAll(target, ":", "."))
}

package reachability

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/panbanda/tangle/pkg/models"
)

func quiet() Option {
	return WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func file(module, path string, targets ...string) models.FileFacts {
	f := models.FileFacts{Module: module, Path: path}
	for i, t := range targets {
		f.Imports = append(f.Imports, models.RawImport{Target: t, Line: uint32(i + 1), Kind: models.ImportPlain})
	}
	return f
}

func analyze(t *testing.T, facts []models.FileFacts, opts ...Option) *models.ReachabilityReport {
	t.Helper()
	a := New(append([]Option{quiet()}, opts...)...)
	defer a.Close()
	report, err := a.Analyze(context.Background(), facts)
	require.NoError(t, err)
	return report
}

func TestLinearChain(t *testing.T) {
	report := analyze(t, []models.FileFacts{
		file("proj.main", "proj/main.py", "proj.b"),
		file("proj.b", "proj/b.py", "proj.c"),
		file("proj.c", "proj/c.py"),
	})
	assert.Empty(t, report.Orphans)
	assert.Equal(t, 3, report.Summary.ReachableModules)
	require.Len(t, report.EntryPoints, 1)
	assert.Equal(t, models.EntryPoint{Module: "proj.main", Reason: models.EntryConventional}, report.EntryPoints[0])
}

func TestUnreferencedModuleIsOrphan(t *testing.T) {
	report := analyze(t, []models.FileFacts{
		file("proj.main", "proj/main.py", "proj.b"),
		file("proj.b", "proj/b.py"),
		file("proj.lonely", "proj/lonely.py", "proj.b"),
	})
	assert.Equal(t, []string{"proj.lonely"}, report.OrphanNames())
	assert.Equal(t, "proj/lonely.py", report.Orphans[0].File)
	assert.Equal(t, 1, report.Summary.OrphanModules)
}

func TestDiamond(t *testing.T) {
	report := analyze(t, []models.FileFacts{
		file("proj.main", "proj/main.py", "proj.b", "proj.c"),
		file("proj.b", "proj/b.py", "proj.d"),
		file("proj.c", "proj/c.py", "proj.d"),
		file("proj.d", "proj/d.py"),
	})
	assert.Empty(t, report.Orphans)
}

func TestLongestPrefixResolution(t *testing.T) {
	from := file("proj.main", "proj/main.py")
	from.Imports = []models.RawImport{
		{Target: "proj.models.User", Kind: models.ImportPlain},
		{Target: "proj", Kind: models.ImportFrom, Names: []string{"util", "CONSTANT"}},
		{Target: "requests", Kind: models.ImportPlain},
	}
	report := analyze(t, []models.FileFacts{
		from,
		file("proj.models", "proj/models.py"),
		file("proj.util", "proj/util.py"),
		file("proj.unused", "proj/unused.py"),
	})
	assert.Equal(t, []string{"proj.unused"}, report.OrphanNames())
}

func TestZeroEntryPointsFailsOpen(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	a := New(WithLogger(logger))
	report, err := a.Analyze(context.Background(), []models.FileFacts{
		file("lib.a", "lib/a.py"),
		file("lib.b", "lib/b.py"),
	})
	require.NoError(t, err)
	assert.Empty(t, report.Orphans)
	assert.True(t, report.Summary.Skipped)
	assert.Equal(t, 2, report.Summary.TotalModules)
	assert.Contains(t, buf.String(), "no entry points detected")
}

func TestGetattrPackageReachesDescendants(t *testing.T) {
	pkg := file("proj.plugins", "proj/plugins/__init__.py")
	pkg.Package = true
	pkg.Definitions = []models.Definition{{Name: "__getattr__", Kind: models.DefFunction, Line: 1}}

	report := analyze(t, []models.FileFacts{
		file("proj.main", "proj/main.py", "proj.plugins"),
		pkg,
		file("proj.plugins.alpha", "proj/plugins/alpha.py"),
		file("proj.plugins.deep.beta", "proj/plugins/deep/beta.py"),
		file("proj.other", "proj/other.py"),
	})
	assert.Equal(t, []string{"proj.other"}, report.OrphanNames())
	assert.Equal(t, 1, report.Summary.DispatchPackages)
}

func TestGetattrOutsideInitIsIgnored(t *testing.T) {
	mod := file("proj.lazy", "proj/lazy.py")
	mod.Definitions = []models.Definition{{Name: "__getattr__", Kind: models.DefFunction}}

	report := analyze(t, []models.FileFacts{
		file("proj.main", "proj/main.py", "proj.lazy"),
		mod,
		file("proj.lazy_impl", "proj/lazy_impl.py"),
	})
	assert.Equal(t, []string{"proj.lazy_impl"}, report.OrphanNames())
	assert.Equal(t, 0, report.Summary.DispatchPackages)
}

func TestReachingDescendantMarksDispatchPackage(t *testing.T) {
	pkg := file("proj.api", "proj/api/__init__.py")
	pkg.Package = true
	pkg.Definitions = []models.Definition{{Name: "__getattr__", Kind: models.DefFunction}}

	report := analyze(t, []models.FileFacts{
		file("proj.main", "proj/main.py", "proj.api.v1"),
		pkg,
		file("proj.api.v1", "proj/api/v1.py"),
		file("proj.api.v2", "proj/api/v2.py"),
	})
	assert.Empty(t, report.Orphans)
}

func TestDynamicRootReachesSiblings(t *testing.T) {
	facts := []models.FileFacts{
		file("proj.main", "proj/main.py", "proj.handlers.one"),
		file("proj.handlers.one", "proj/handlers/one.py"),
		file("proj.handlers.two", "proj/handlers/two.py"),
		file("proj.handlers.three", "proj/handlers/three.py"),
		file("proj.stray", "proj/stray.py"),
	}

	without := analyze(t, facts)
	assert.Equal(t, []string{"proj.handlers.three", "proj.handlers.two", "proj.stray"}, without.OrphanNames())

	with := analyze(t, facts, WithDynamicRoots([]string{"proj.handlers"}))
	assert.Equal(t, []string{"proj.stray"}, with.OrphanNames())
}

func TestDynamicAccessDetection(t *testing.T) {
	loader := file("plug.loaders.core", "plug/loaders/core.py")
	loader.Dynamic = true
	facts := []models.FileFacts{
		file("proj.main", "proj/main.py", "plug.loaders.core"),
		loader,
		file("plug.loaders.extra", "plug/loaders/extra.py"),
		file("plug.unused", "plug/unused.py"),
	}

	assert.Equal(t, []string{"plug.loaders.extra", "plug.unused"}, analyze(t, facts).OrphanNames())
	// detection only widens the loader's own package
	assert.Equal(t, []string{"plug.unused"}, analyze(t, facts, WithDynamicDetection(true)).OrphanNames())
}

func TestEntryPointKinds(t *testing.T) {
	root := file("proj", "proj/__init__.py")
	root.Package = true
	sub := file("proj.sub", "proj/sub/__init__.py")
	sub.Package = true

	report := analyze(t, []models.FileFacts{
		root,
		sub,
		file("proj.cli_impl", "proj/cli_impl.py"),
		file("tests.test_core", "tests/test_core.py"),
		file("proj.core_test", "proj/core_test.py"),
		file("proj.admin", "proj/admin.py"),
		file("proj.orphan", "proj/orphan.py"),
	},
		WithScriptEntryPoints([]string{"proj.cli_impl:main"}),
		WithEntryPoints([]string{"proj.admin.site"}),
	)

	reasons := make(map[string]models.EntryReason)
	for _, e := range report.EntryPoints {
		reasons[e.Module] = e.Reason
	}
	assert.Equal(t, models.EntryPackageRoot, reasons["proj"])
	assert.Equal(t, models.EntryScript, reasons["proj.cli_impl"])
	assert.Equal(t, models.EntryTest, reasons["tests.test_core"])
	assert.Equal(t, models.EntryTest, reasons["proj.core_test"])
	assert.Equal(t, models.EntryDeclared, reasons["proj.admin"])
	assert.NotContains(t, reasons, "proj.sub")
	assert.Equal(t, []string{"proj.orphan", "proj.sub"}, report.OrphanNames())
}

func TestResolveScript(t *testing.T) {
	a := New(quiet())
	for _, f := range []models.FileFacts{
		file("demo.cli", "demo/cli.py"),
		file("demo", "demo/__init__.py"),
	} {
		a.AddFile(&f)
	}
	a.sortModules()

	tests := []struct {
		target string
		want   string
		ok     bool
	}{
		{"demo.cli:main", "demo.cli", true},
		{"demo.cli:App.run", "demo.cli", true},
		{"demo.cli.main", "demo.cli", true},
		{"demo.cli:main [extra]", "demo.cli", true},
		{"other.mod:main", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			id, ok := a.resolveScript(tt.target)
			assert.Equal(t, tt.ok, ok)
			if ok {
				assert.Equal(t, tt.want, a.modules[id].name)
			}
		})
	}
}

func TestCustomEntryFilesAndPatterns(t *testing.T) {
	report := analyze(t, []models.FileFacts{
		file("svc.boot", "svc/boot.py", "svc.core"),
		file("svc.core", "svc/core.py"),
		file("svc.spec_core", "svc/spec_core.py"),
		file("svc.main", "svc/main.py"),
	},
		WithEntryFiles([]string{"boot.py"}),
		WithTestPatterns([]string{"spec_*.py"}),
	)
	assert.Equal(t, []string{"svc.main"}, report.OrphanNames())
}

func TestCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New(quiet()).Analyze(ctx, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

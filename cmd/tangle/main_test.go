package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeProject(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for name, content := range files {
		path := filepath.Join(root, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	return root
}

func cyclicProject(t *testing.T) string {
	return writeProject(t, map[string]string{
		"app/__init__.py": "",
		"app/__main__.py": "import app.a\n",
		"app/a.py":        "import app.b\n",
		"app/b.py":        "import app.a\n",
		"app/old.py":      "x = 1\n",
	})
}

func run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	app := newApp(&stdout, &stderr)
	err := app.Run(append([]string{"tangle", "--no-color", "--no-cache"}, args...))
	return stdout.String(), stderr.String(), err
}

func TestCyclesCommand(t *testing.T) {
	root := cyclicProject(t)

	out, _, err := run(t, "cycles", root)
	assert.True(t, errors.Is(err, errCheckFailed), "default gate of zero must fail, got %v", err)
	assert.Contains(t, out, "app.a -> app.b -> app.a")
	assert.Contains(t, out, "Found 1 circular dependencies (max: 0)")

	out, _, err = run(t, "cycles", "--max-cycles", "-1", root)
	require.NoError(t, err)
	assert.Contains(t, out, "(warning)")
}

func TestCyclesCommandJSON(t *testing.T) {
	root := cyclicProject(t)
	out, _, err := run(t, "--format", "json", "cycles", "--max-cycles", "5", root)
	require.NoError(t, err)

	var decoded struct {
		Findings []struct {
			RuleID string   `json:"rule_id"`
			Cycle  []string `json:"cycle"`
		} `json:"findings"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &decoded), out)
	require.Len(t, decoded.Findings, 1)
	assert.Equal(t, "TANGLE-CIRC", decoded.Findings[0].RuleID)
	assert.Equal(t, []string{"app.a", "app.b"}, decoded.Findings[0].Cycle)
}

func TestOrphansCommand(t *testing.T) {
	root := cyclicProject(t)

	out, _, err := run(t, "orphans", root)
	require.NoError(t, err)
	assert.Contains(t, out, "app.old")

	out, _, err = run(t, "orphans", "--entry", "app.old", root)
	require.NoError(t, err)
	assert.Contains(t, out, "All modules are reachable")
}

func TestClonesCommand(t *testing.T) {
	body := "def f(items):\n    total = 0\n    for item in items:\n        if item > 10:\n            total += item\n    return total\n"
	root := writeProject(t, map[string]string{
		"one.py": body,
		"two.py": strings.ReplaceAll(body, "def f", "def g"),
	})

	out, _, err := run(t, "clones", root)
	require.NoError(t, err)
	assert.Contains(t, out, "one.py:1-6 f")
	assert.Contains(t, out, "two.py:1-6 g")

	_, _, err = run(t, "clones", "--grouping", "louvain", root)
	assert.Error(t, err, "an unknown grouping mode is a configuration error")
}

func TestAnalyzeCommand(t *testing.T) {
	root := cyclicProject(t)
	out, _, err := run(t, "--format", "json", "analyze", "--max-cycles", "1", root)
	require.NoError(t, err)

	var decoded map[string]json.RawMessage
	require.NoError(t, json.Unmarshal([]byte(out), &decoded), out)
	for _, key := range []string{"files", "cycles", "check", "reachability", "clones"} {
		assert.Contains(t, decoded, key)
	}
}

func TestConfigFileAndOverrides(t *testing.T) {
	root := cyclicProject(t)
	require.NoError(t, os.WriteFile(filepath.Join(root, "tangle.toml"), []byte("[cycles]\nmax_cycles = 3\n"), 0o644))

	_, _, err := run(t, "cycles", root)
	require.NoError(t, err, "the config file raises the gate")

	_, _, err = run(t, "cycles", "--max-cycles", "0", root)
	assert.True(t, errors.Is(err, errCheckFailed), "flags override the config file")

	_, _, err = run(t, "--config", filepath.Join(root, "missing.toml"), "cycles", root)
	assert.Error(t, err)
}

func TestOutputFile(t *testing.T) {
	root := cyclicProject(t)
	path := filepath.Join(t.TempDir(), "report.json")
	out, _, err := run(t, "--format", "json", "--output", path, "orphans", root)
	require.NoError(t, err)
	assert.Empty(t, out)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "app.old")
}

func TestCacheCommands(t *testing.T) {
	root := cyclicProject(t)

	var stdout, stderr bytes.Buffer
	app := newApp(&stdout, &stderr)
	require.NoError(t, app.Run([]string{"tangle", "--no-color", "orphans", root}))

	stdout.Reset()
	require.NoError(t, app.Run([]string{"tangle", "--no-color", "--format", "json", "cache", "stats", root}))
	assert.Contains(t, stdout.String(), `"entries": 5`)

	stdout.Reset()
	require.NoError(t, app.Run([]string{"tangle", "--no-color", "cache", "clear", root}))
	assert.Contains(t, stdout.String(), "Cache cleared")

	empty := t.TempDir()
	stdout.Reset()
	require.NoError(t, app.Run([]string{"tangle", "--no-color", "cache", "stats", empty}))
	assert.Contains(t, stdout.String(), "no cache")
}

func TestInvalidRoot(t *testing.T) {
	_, _, err := run(t, "cycles", filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)

	file := filepath.Join(t.TempDir(), "x.py")
	require.NoError(t, os.WriteFile(file, nil, 0o644))
	_, _, err = run(t, "cycles", file)
	assert.Error(t, err)
}

func TestCommandsRegistered(t *testing.T) {
	app := newApp(&bytes.Buffer{}, &bytes.Buffer{})
	var names []string
	for _, cmd := range app.Commands {
		names = append(names, cmd.Name)
	}
	for _, want := range []string{"cycles", "orphans", "clones", "analyze", "watch", "cache", "mcp"} {
		assert.Contains(t, names, want)
	}
}

package python

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"

	"github.com/pelletier/go-toml"
)

type pyproject struct {
	Project struct {
		Scripts     map[string]string            `toml:"scripts"`
		GUIScripts  map[string]string            `toml:"gui-scripts"`
		EntryPoints map[string]map[string]string `toml:"entry-points"`
	} `toml:"project"`
	Tool struct {
		Poetry struct {
			Scripts map[string]string `toml:"scripts"`
		} `toml:"poetry"`
	} `toml:"tool"`
}

// LoadScriptEntryPoints returns the "module:callable" targets declared in
// root/pyproject.toml, sorted. A missing file yields no targets.
func LoadScriptEntryPoints(root string) ([]string, error) {
	data, err := os.ReadFile(filepath.Join(root, "pyproject.toml"))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read pyproject: %w", err)
	}
	return ParseScriptEntryPoints(data)
}

// ParseScriptEntryPoints extracts script targets from pyproject content.
func ParseScriptEntryPoints(data []byte) ([]string, error) {
	var doc pyproject
	if err := toml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse pyproject: %w", err)
	}

	seen := make(map[string]bool)
	add := func(m map[string]string) {
		for _, target := range m {
			seen[target] = true
		}
	}
	add(doc.Project.Scripts)
	add(doc.Project.GUIScripts)
	add(doc.Tool.Poetry.Scripts)
	for _, group := range doc.Project.EntryPoints {
		add(group)
	}

	out := make([]string, 0, len(seen))
	for target := range seen {
		out = append(out, target)
	}
	slices.Sort(out)
	return out, nil
}

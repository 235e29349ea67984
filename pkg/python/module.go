// Package python extracts module-level facts from Python source: the
// module's dotted name, its import records, its top-level definitions and
// whether it resolves names dynamically.
package python

import (
	"path/filepath"
	"strings"
)

// ModuleName derives the dotted module name of path relative to root.
// "pkg/sub/__init__.py" yields ("pkg.sub", true). A root-level __init__.py
// yields ("", true). Paths outside root fall back to the base name.
func ModuleName(root, path string) (name string, isPackage bool) {
	rel, err := filepath.Rel(root, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		rel = filepath.Base(path)
	}
	rel = filepath.ToSlash(rel)

	ext := filepath.Ext(rel)
	if ext == ".py" || ext == ".pyi" || ext == ".pyw" {
		rel = strings.TrimSuffix(rel, ext)
	}

	parts := strings.Split(rel, "/")
	if len(parts) > 0 && parts[len(parts)-1] == "__init__" {
		parts = parts[:len(parts)-1]
		isPackage = true
	}
	return strings.Join(parts, "."), isPackage
}

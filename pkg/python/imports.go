package python

import (
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/panbanda/tangle/pkg/models"
	"github.com/panbanda/tangle/pkg/parser"
)

// ExtractImports returns one record per imported path found anywhere in the
// tree. Relative imports are made absolute against module; those that climb
// above the project root are dropped.
func ExtractImports(result *parser.ParseResult, module string, isPackage bool) []models.RawImport {
	var out []models.RawImport
	src := result.Source

	parser.WalkTyped(result.Root(), src, func(node *sitter.Node, nodeType string, _ []byte) bool {
		switch nodeType {
		case "import_statement":
			for _, child := range parser.NamedChildren(node) {
				if target := importedPath(child, src); target != "" {
					out = append(out, models.RawImport{
						Target: target,
						Line:   parser.StartLine(node),
						Kind:   models.ImportPlain,
					})
				}
			}
			return false
		case "import_from_statement":
			if imp, ok := fromImport(node, src, module, isPackage); ok {
				out = append(out, imp)
			}
			return false
		case "future_import_statement":
			return false
		}
		return true
	})
	return out
}

func fromImport(node *sitter.Node, src []byte, module string, isPackage bool) (models.RawImport, bool) {
	children := parser.NamedChildren(node)
	if len(children) == 0 {
		return models.RawImport{}, false
	}

	var target string
	switch first := children[0]; first.Type() {
	case "dotted_name":
		target = parser.GetNodeText(first, src)
	case "relative_import":
		resolved, ok := resolveRelative(first, src, module, isPackage)
		if !ok {
			return models.RawImport{}, false
		}
		target = resolved
	default:
		return models.RawImport{}, false
	}

	imp := models.RawImport{
		Target: target,
		Line:   parser.StartLine(node),
		Kind:   models.ImportFrom,
	}
	for _, child := range children[1:] {
		switch child.Type() {
		case "wildcard_import":
			imp.Kind = models.ImportFromStar
			imp.Names = nil
			return imp, target != ""
		case "dotted_name", "aliased_import":
			if name := importedPath(child, src); name != "" {
				imp.Names = append(imp.Names, name)
			}
		}
	}
	if target == "" && len(imp.Names) == 0 {
		return models.RawImport{}, false
	}
	return imp, true
}

// resolveRelative turns "..pkg.mod" into an absolute dotted path.
func resolveRelative(node *sitter.Node, src []byte, module string, isPackage bool) (string, bool) {
	level := 0
	var rest string
	for _, child := range parser.NamedChildren(node) {
		switch child.Type() {
		case "import_prefix":
			level = strings.Count(parser.GetNodeText(child, src), ".")
		case "dotted_name":
			rest = parser.GetNodeText(child, src)
		}
	}
	if level == 0 {
		return rest, rest != ""
	}

	base := module
	if !isPackage {
		base = models.Parent(module)
	}
	for range level - 1 {
		// climbing out of a top-level package is an import error in Python
		if !strings.Contains(base, ".") {
			return "", false
		}
		base = models.Parent(base)
	}

	switch {
	case base == "" && rest == "":
		// "from . import x" at the project root: x is a top-level module
		return "", true
	case base == "":
		return rest, true
	case rest == "":
		return base, true
	default:
		return base + "." + rest, true
	}
}

func importedPath(node *sitter.Node, src []byte) string {
	switch node.Type() {
	case "dotted_name":
		return parser.GetNodeText(node, src)
	case "aliased_import":
		return parser.GetNodeText(node.ChildByFieldName("name"), src)
	}
	return ""
}

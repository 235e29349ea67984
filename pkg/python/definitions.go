package python

import (
	sitter "github.com/smacker/go-tree-sitter"

	"github.com/panbanda/tangle/pkg/models"
	"github.com/panbanda/tangle/pkg/parser"
)

// dynamicCalls are callables that resolve names at runtime.
var dynamicCalls = map[string]bool{
	"getattr":                 true,
	"globals":                 true,
	"eval":                    true,
	"exec":                    true,
	"__import__":              true,
	"importlib.import_module": true,
	"import_module":           true,
}

// ExtractDefinitions returns the top-level functions and classes of a file.
func ExtractDefinitions(result *parser.ParseResult) []models.Definition {
	var defs []models.Definition
	src := result.Source
	for _, child := range parser.NamedChildren(result.Root()) {
		node := child
		if node.Type() == "decorated_definition" {
			node = node.ChildByFieldName("definition")
			if node == nil {
				continue
			}
		}

		var kind models.DefinitionKind
		switch node.Type() {
		case "function_definition":
			kind = models.DefFunction
		case "class_definition":
			kind = models.DefClass
		default:
			continue
		}
		name := parser.GetNodeText(node.ChildByFieldName("name"), src)
		if name == "" {
			continue
		}
		defs = append(defs, models.Definition{Name: name, Kind: kind, Line: parser.StartLine(node)})
	}
	return defs
}

// UsesDynamicAccess reports whether the file calls anything that looks up
// modules or attributes by computed name.
func UsesDynamicAccess(result *parser.ParseResult) bool {
	found := false
	parser.WalkTyped(result.Root(), result.Source, func(node *sitter.Node, nodeType string, src []byte) bool {
		if found {
			return false
		}
		if nodeType == "call" {
			fn := node.ChildByFieldName("function")
			if fn != nil && dynamicCalls[parser.GetNodeText(fn, src)] {
				found = true
				return false
			}
		}
		return true
	})
	return found
}

package clones

import (
	sitter "github.com/smacker/go-tree-sitter"

	"github.com/panbanda/tangle/pkg/models"
	"github.com/panbanda/tangle/pkg/parser"
)

// Extractor turns parsed files into clone fragments.
type Extractor struct {
	cfg Config
}

// NewExtractor creates an extractor with the given settings.
func NewExtractor(cfg Config) (*Extractor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Extractor{cfg: cfg}, nil
}

// Extract returns every function, method and class of the file that clears
// both the line and node-count minimums.
func (e *Extractor) Extract(result *parser.ParseResult) []models.Fragment {
	var frags []models.Fragment
	// class is the enclosing class name while the nearest enclosing
	// definition is a class
	var visit func(n *sitter.Node, class string)
	visit = func(n *sitter.Node, class string) {
		for i := range int(n.NamedChildCount()) {
			child := n.NamedChild(i)
			switch child.Type() {
			case "class_definition":
				name := parser.GetNodeText(child.ChildByFieldName("name"), result.Source)
				if f, ok := e.fragment(child, result, name, models.FragmentClass); ok {
					frags = append(frags, f)
				}
				visit(child, name)
			case "function_definition":
				name := parser.GetNodeText(child.ChildByFieldName("name"), result.Source)
				kind := models.FragmentFunction
				if class != "" {
					kind = models.FragmentMethod
					name = class + "." + name
				}
				if f, ok := e.fragment(child, result, name, kind); ok {
					frags = append(frags, f)
				}
				// functions nested in a method are plain functions
				visit(child, "")
			default:
				visit(child, class)
			}
		}
	}
	visit(result.Root(), "")
	return frags
}

// fragment builds the normalized forms of one definition, or reports false
// when it is below the size minimums.
func (e *Extractor) fragment(def *sitter.Node, result *parser.ParseResult, name string, kind models.FragmentKind) (models.Fragment, bool) {
	start, end := parser.StartLine(def), parser.EndLine(def)
	if int(end-start)+1 < e.cfg.MinLines {
		return models.Fragment{}, false
	}

	stmts := bodyStatements(def, e.cfg.SkipDocstrings)
	renamed := &dumper{
		src:               result.Source,
		ignoreIdentifiers: e.cfg.IgnoreIdentifiers,
		ignoreLiterals:    e.cfg.IgnoreLiterals,
	}
	renamedTokens := renamed.dump(stmts)
	if renamed.nodes < e.cfg.MinNodes {
		return models.Fragment{}, false
	}
	raw := &dumper{src: result.Source}

	return models.Fragment{
		File:      result.Path,
		StartLine: start,
		EndLine:   end,
		Name:      name,
		Kind:      kind,
		NodeCount: renamed.nodes,
		Text:      textTokens(def, result.Source),
		Renamed:   renamedTokens,
		Raw:       raw.dump(stmts),
	}, true
}

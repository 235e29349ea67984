package clones

import (
	sitter "github.com/smacker/go-tree-sitter"
)

// Placeholders substituted by the normalizers.
const (
	placeholderString = `"STR"`
	placeholderNumber = "0"
	placeholderID     = "_ID"
	placeholderArg    = "_ARG"
	placeholderAttr   = "_ATTR"
	placeholderLit    = "_LIT"
	closeNode         = ")"
)

var stringNodes = map[string]bool{
	"string":              true,
	"concatenated_string": true,
}

var numberNodes = map[string]bool{
	"integer": true,
	"float":   true,
}

// constants keep their identity in every form.
var constantNodes = map[string]bool{
	"true":  true,
	"false": true,
	"none":  true,
}

var punctuation = map[string]bool{
	"(": true, ")": true, "[": true, "]": true, "{": true, "}": true,
	",": true, ":": true, ";": true, ".": true,
}

// paramParents are node types whose direct identifier children name parameters.
var paramParents = map[string]bool{
	"parameters":               true,
	"lambda_parameters":        true,
	"typed_parameter":          true,
	"list_splat_pattern":       true,
	"dictionary_splat_pattern": true,
}

// namedParamParents name their parameter through the "name" field only;
// their other identifiers are default values.
var namedParamParents = map[string]bool{
	"default_parameter":       true,
	"typed_default_parameter": true,
}

// textTokens re-tokenizes a fragment: comments and layout disappear, strings
// and numbers collapse to fixed placeholders.
func textTokens(node *sitter.Node, src []byte) []string {
	var out []string
	var walk func(n *sitter.Node)
	walk = func(n *sitter.Node) {
		t := n.Type()
		switch {
		case t == "comment":
			return
		case stringNodes[t]:
			out = append(out, placeholderString)
			return
		case numberNodes[t]:
			out = append(out, placeholderNumber)
			return
		}
		if n.ChildCount() == 0 {
			if text := n.Content(src); text != "" {
				out = append(out, text)
			}
			return
		}
		for i := range int(n.ChildCount()) {
			walk(n.Child(i))
		}
	}
	walk(node)
	return out
}

// dumper renders a pre-order structural dump of statements.
type dumper struct {
	src               []byte
	ignoreIdentifiers bool
	ignoreLiterals    bool
	out               []string
	nodes             int
}

func (d *dumper) dump(stmts []*sitter.Node) []string {
	for _, s := range stmts {
		d.node(s, nil)
	}
	return d.out
}

func (d *dumper) node(n *sitter.Node, parent *sitter.Node) {
	t := n.Type()
	if t == "comment" {
		return
	}
	if n.IsNamed() {
		d.nodes++
	}

	switch {
	case t == "identifier":
		d.out = append(d.out, d.identifier(n, parent))
		return
	case stringNodes[t] || numberNodes[t]:
		if d.ignoreLiterals {
			d.out = append(d.out, placeholderLit)
		} else {
			d.out = append(d.out, t+":"+n.Content(d.src))
		}
		return
	case constantNodes[t]:
		d.out = append(d.out, t)
		return
	}

	if n.ChildCount() == 0 {
		if !n.IsNamed() && !punctuation[t] {
			d.out = append(d.out, t)
		} else if n.IsNamed() {
			d.out = append(d.out, t+":"+n.Content(d.src))
		}
		return
	}

	d.out = append(d.out, t)
	for i := range int(n.ChildCount()) {
		d.node(n.Child(i), n)
	}
	d.out = append(d.out, closeNode)
}

func (d *dumper) identifier(n, parent *sitter.Node) string {
	if !d.ignoreIdentifiers {
		return "id:" + n.Content(d.src)
	}
	if parent == nil {
		return placeholderID
	}
	switch pt := parent.Type(); {
	case pt == "attribute":
		if sameNode(parent.ChildByFieldName("attribute"), n) {
			return placeholderAttr
		}
	case paramParents[pt]:
		return placeholderArg
	case namedParamParents[pt]:
		if sameNode(parent.ChildByFieldName("name"), n) {
			return placeholderArg
		}
	}
	return placeholderID
}

func sameNode(a, b *sitter.Node) bool {
	return a != nil && b != nil && a.StartByte() == b.StartByte() && a.EndByte() == b.EndByte()
}

// bodyStatements returns the statements of a definition body, minus a
// leading docstring when requested and minus comments.
func bodyStatements(def *sitter.Node, skipDocstring bool) []*sitter.Node {
	body := def.ChildByFieldName("body")
	if body == nil {
		return nil
	}
	var stmts []*sitter.Node
	for i := range int(body.NamedChildCount()) {
		c := body.NamedChild(i)
		if c.Type() == "comment" {
			continue
		}
		stmts = append(stmts, c)
	}
	if skipDocstring && len(stmts) > 0 && isDocstring(stmts[0]) {
		stmts = stmts[1:]
	}
	return stmts
}

func isDocstring(stmt *sitter.Node) bool {
	if stmt.Type() != "expression_statement" || stmt.NamedChildCount() != 1 {
		return false
	}
	return stringNodes[stmt.NamedChild(0).Type()]
}

package parse

import (
	sitter "github.com/smacker/go-tree-sitter"

	"github.com/phobologic/codelens/internal/lang"
	"github.com/phobologic/codelens/internal/syntax"
)

// lowerer converts a tree-sitter concrete tree into the syntax package's
// node set. Identifiers that declare rather than reference a name are folded
// into their owner and never become *syntax.Name.
type lowerer struct {
	lang *lang.Language
	src  []byte
}

func (l *lowerer) module(root *sitter.Node, lines int) *syntax.Module {
	return &syntax.Module{
		Loc:  syntax.Span{Start: 1, End: max(lines, 1)},
		Body: l.named(root),
	}
}

func span(n *sitter.Node) syntax.Span {
	return syntax.Span{Start: lang.StartLine(n), End: lang.EndLine(n)}
}

// defSpan ends a definition at its last line of code. The grammar lets a
// block absorb trailing comments; they are not part of the definition.
func defSpan(n *sitter.Node) syntax.Span {
	return syntax.Span{Start: lang.StartLine(n), End: codeEnd(n)}
}

func codeEnd(n *sitter.Node) int {
	for i := int(n.ChildCount()) - 1; i >= 0; i-- {
		if c := n.Child(i); c.Type() != "comment" {
			return codeEnd(c)
		}
	}
	return lang.EndLine(n)
}

// named lowers every named child of n, dropping the ones that lower to nil.
func (l *lowerer) named(n *sitter.Node) []syntax.Node {
	if n == nil {
		return nil
	}
	var out []syntax.Node
	for i := 0; i < int(n.NamedChildCount()); i++ {
		if ln := l.node(n.NamedChild(i)); ln != nil {
			out = append(out, ln)
		}
	}
	return out
}

func (l *lowerer) node(n *sitter.Node) syntax.Node {
	if n == nil {
		return nil
	}
	switch n.Type() {
	case "comment":
		return nil
	case "identifier":
		return &syntax.Name{ID: lang.NodeText(n, l.src), Loc: span(n)}
	case "function_definition":
		return l.funcDef(n, nil)
	case "class_definition":
		return l.classDef(n, nil)
	case "decorated_definition":
		return l.decorated(n)
	case "lambda":
		return l.lambda(n)
	case "call":
		return l.call(n)
	case "attribute":
		return &syntax.Attribute{
			Loc:   span(n),
			Value: l.node(n.ChildByFieldName("object")),
			Attr:  lang.NodeText(n.ChildByFieldName("attribute"), l.src),
		}
	case "dotted_name":
		return l.dottedName(n)
	case "keyword_argument":
		// The keyword is a parameter name of the callee, not a reference.
		return l.compound(n, l.node(n.ChildByFieldName("value")))
	case "keyword_pattern":
		// case Point(x=c): x is an attribute of the matched class.
		return l.keywordPattern(n)
	case "import_statement", "import_from_statement", "future_import_statement",
		"global_statement", "nonlocal_statement":
		return &syntax.Compound{Type: n.Type(), Loc: span(n)}
	case "except_clause", "except_group_clause":
		return l.exceptClause(n)
	default:
		return &syntax.Compound{Type: n.Type(), Loc: span(n), Nodes: l.named(n)}
	}
}

func (l *lowerer) compound(n *sitter.Node, children ...syntax.Node) *syntax.Compound {
	c := &syntax.Compound{Type: n.Type(), Loc: span(n)}
	for _, ch := range children {
		if ch != nil {
			c.Nodes = append(c.Nodes, ch)
		}
	}
	return c
}

func (l *lowerer) keywordPattern(n *sitter.Node) *syntax.Compound {
	c := &syntax.Compound{Type: n.Type(), Loc: span(n)}
	for i := 0; i < int(n.NamedChildCount()); i++ {
		child := n.NamedChild(i)
		if i == 0 && child.Type() == "identifier" {
			continue
		}
		if ln := l.node(child); ln != nil {
			c.Nodes = append(c.Nodes, ln)
		}
	}
	return c
}

func (l *lowerer) funcDef(n *sitter.Node, decorators []syntax.Node) *syntax.FuncDef {
	fd := &syntax.FuncDef{
		Name:       lang.NodeText(n.ChildByFieldName("name"), l.src),
		Loc:        defSpan(n),
		Class:      l.lang.FindMethodClass(n, l.src),
		Signature:  l.lang.ExtractSignature(n, l.src),
		Decorators: decorators,
	}
	for i := 0; i < int(n.ChildCount()); i++ {
		if n.Child(i).Type() == "async" {
			fd.Async = true
			break
		}
	}
	fd.Params, fd.Header = l.params(n.ChildByFieldName("parameters"))
	if rt := l.node(n.ChildByFieldName("return_type")); rt != nil {
		fd.Header = append(fd.Header, rt)
	}
	fd.Body = l.named(n.ChildByFieldName("body"))
	return fd
}

func (l *lowerer) classDef(n *sitter.Node, decorators []syntax.Node) *syntax.ClassDef {
	return &syntax.ClassDef{
		Name:       lang.NodeText(n.ChildByFieldName("name"), l.src),
		Loc:        defSpan(n),
		Decorators: decorators,
		Bases:      l.named(n.ChildByFieldName("superclasses")),
		Body:       l.named(n.ChildByFieldName("body")),
	}
}

func (l *lowerer) decorated(n *sitter.Node) syntax.Node {
	var decorators []syntax.Node
	var def *sitter.Node
	for i := 0; i < int(n.NamedChildCount()); i++ {
		child := n.NamedChild(i)
		switch child.Type() {
		case "decorator":
			decorators = append(decorators, l.named(child)...)
		case "function_definition", "class_definition":
			def = child
		}
	}
	if def == nil {
		return l.compound(n, decorators...)
	}
	if def.Type() == "class_definition" {
		return l.classDef(def, decorators)
	}
	return l.funcDef(def, decorators)
}

func (l *lowerer) lambda(n *sitter.Node) *syntax.Lambda {
	lam := &syntax.Lambda{Loc: span(n)}
	lam.Params, lam.Header = l.params(n.ChildByFieldName("parameters"))
	if body := l.node(n.ChildByFieldName("body")); body != nil {
		lam.Body = []syntax.Node{body}
	}
	return lam
}

func (l *lowerer) call(n *sitter.Node) *syntax.Call {
	c := &syntax.Call{Loc: span(n), Func: l.node(n.ChildByFieldName("function"))}
	args := n.ChildByFieldName("arguments")
	if args == nil {
		return c
	}
	if args.Type() == "argument_list" {
		c.Args = l.named(args)
	} else if a := l.node(args); a != nil {
		c.Args = []syntax.Node{a}
	}
	return c
}

// params splits a parameter list into declared names and the expressions
// (defaults and annotations) that are evaluated as references.
func (l *lowerer) params(n *sitter.Node) (names []string, exprs []syntax.Node) {
	if n == nil {
		return nil, nil
	}
	for i := 0; i < int(n.NamedChildCount()); i++ {
		p := n.NamedChild(i)
		switch p.Type() {
		case "identifier":
			names = append(names, lang.NodeText(p, l.src))
		case "list_splat_pattern", "dictionary_splat_pattern":
			names = append(names, l.patternName(p))
		case "default_parameter":
			names = append(names, l.patternName(p.ChildByFieldName("name")))
			if v := l.node(p.ChildByFieldName("value")); v != nil {
				exprs = append(exprs, v)
			}
		case "typed_parameter":
			for j := 0; j < int(p.NamedChildCount()); j++ {
				c := p.NamedChild(j)
				if c.Type() == "type" {
					if t := l.node(c); t != nil {
						exprs = append(exprs, t)
					}
					continue
				}
				names = append(names, l.patternName(c))
			}
		case "typed_default_parameter":
			names = append(names, l.patternName(p.ChildByFieldName("name")))
			for _, field := range []string{"type", "value"} {
				if v := l.node(p.ChildByFieldName(field)); v != nil {
					exprs = append(exprs, v)
				}
			}
		}
	}
	return names, exprs
}

// patternName returns the identifier declared by a parameter pattern.
func (l *lowerer) patternName(n *sitter.Node) string {
	if n == nil {
		return ""
	}
	if n.Type() == "identifier" {
		return lang.NodeText(n, l.src)
	}
	for i := 0; i < int(n.NamedChildCount()); i++ {
		if c := n.NamedChild(i); c.Type() == "identifier" {
			return lang.NodeText(c, l.src)
		}
	}
	return ""
}

// dottedName lowers a.b.c to Attribute(Attribute(Name a, b), c).
func (l *lowerer) dottedName(n *sitter.Node) syntax.Node {
	var out syntax.Node
	for i := 0; i < int(n.NamedChildCount()); i++ {
		c := n.NamedChild(i)
		if c.Type() != "identifier" {
			continue
		}
		if out == nil {
			out = &syntax.Name{ID: lang.NodeText(c, l.src), Loc: span(c)}
			continue
		}
		out = &syntax.Attribute{
			Loc:   syntax.Span{Start: span(n).Start, End: span(c).End},
			Value: out,
			Attr:  lang.NodeText(c, l.src),
		}
	}
	if out == nil {
		return &syntax.Compound{Type: n.Type(), Loc: span(n)}
	}
	return out
}

// exceptClause drops the handler alias (except E as name), which binds a
// name rather than referencing one.
func (l *lowerer) exceptClause(n *sitter.Node) syntax.Node {
	c := &syntax.Compound{Type: n.Type(), Loc: span(n)}
	afterAs := false
	for i := 0; i < int(n.ChildCount()); i++ {
		child := n.Child(i)
		if !child.IsNamed() {
			afterAs = child.Type() == "as"
			continue
		}
		if afterAs && child.Type() == "identifier" {
			afterAs = false
			continue
		}
		afterAs = false
		var ln syntax.Node
		if child.Type() == "as_pattern" {
			ln = l.node(child.NamedChild(0))
		} else {
			ln = l.node(child)
		}
		if ln != nil {
			c.Nodes = append(c.Nodes, ln)
		}
	}
	return c
}

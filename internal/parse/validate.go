package parse

import (
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
)

// The grammar accepts a few Python 2 forms and argument orders that the
// language itself rejects. invalidSyntax reports the first of them in source
// order, or nil if the tree is valid Python 3.
func invalidSyntax(n *sitter.Node, source []byte) *ParseError {
	if n == nil {
		return nil
	}
	if msg := checkNode(n, source); msg != "" {
		pt := n.StartPoint()
		return &ParseError{Line: int(pt.Row) + 1, Column: int(pt.Column) + 1, Msg: msg}
	}
	for i := 0; i < int(n.NamedChildCount()); i++ {
		if pe := invalidSyntax(n.NamedChild(i), source); pe != nil {
			return pe
		}
	}
	return nil
}

func checkNode(n *sitter.Node, source []byte) string {
	switch n.Type() {
	case "print_statement":
		// print >>f, x is also a valid Python 3 expression.
		for i := 0; i < int(n.NamedChildCount()); i++ {
			if n.NamedChild(i).Type() == "chevron" {
				return ""
			}
		}
		return "print statement is not supported; use print()"
	case "exec_statement":
		return "exec statement is not supported; use exec()"
	case "string":
		if strings.HasPrefix(string(source[n.StartByte():n.EndByte()]), "`") {
			return "backtick repr is not supported; use repr()"
		}
	case "except_clause", "except_group_clause":
		return checkExcept(n)
	case "argument_list":
		return checkArguments(n)
	}
	return ""
}

// checkExcept rejects "except E, name:", where the handler target is not
// introduced by "as".
func checkExcept(n *sitter.Node) string {
	prevExpr := false
	sep := ""
	for i := 0; i < int(n.ChildCount()); i++ {
		c := n.Child(i)
		if !c.IsNamed() {
			sep = c.Type()
			continue
		}
		switch c.Type() {
		case "block", "comment":
			prevExpr = false
			continue
		}
		if prevExpr && sep != "as" {
			return "multiple exception types must be parenthesized"
		}
		prevExpr = true
		sep = ""
	}
	return ""
}

func checkArguments(n *sitter.Node) string {
	var keyword, unpackedKeyword bool
	for i := 0; i < int(n.NamedChildCount()); i++ {
		switch n.NamedChild(i).Type() {
		case "comment":
		case "keyword_argument":
			keyword = true
		case "dictionary_splat":
			unpackedKeyword = true
		case "list_splat":
			if unpackedKeyword {
				return "iterable argument unpacking follows keyword argument unpacking"
			}
		default:
			if unpackedKeyword {
				return "positional argument follows keyword argument unpacking"
			}
			if keyword {
				return "positional argument follows keyword argument"
			}
		}
	}
	return ""
}

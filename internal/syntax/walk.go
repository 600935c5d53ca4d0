package syntax

import "fmt"

// Visitor is called for each node in pre-order. Returning false skips the
// node's children.
type Visitor func(n Node) bool

// Walk traverses n in pre-order: a node is visited before its children, and
// children in source order.
func Walk(n Node, visit Visitor) {
	if n == nil {
		return
	}
	if !visit(n) {
		return
	}
	for _, c := range children(n) {
		Walk(c, visit)
	}
}

// children dispatches over the closed node set.
func children(n Node) []Node {
	switch n := n.(type) {
	case *Module:
		return n.Children()
	case *FuncDef:
		return n.Children()
	case *ClassDef:
		return n.Children()
	case *Lambda:
		return n.Children()
	case *Call:
		return n.Children()
	case *Name:
		return nil
	case *Attribute:
		return n.Children()
	case *Compound:
		return n.Children()
	default:
		panic(fmt.Sprintf("syntax: unhandled node type %T", n))
	}
}

// Inspect walks every node of t. A nil tree is a no-op.
func Inspect(t *Tree, visit Visitor) {
	root := t.Root()
	if root == nil {
		return
	}
	Walk(root, visit)
}

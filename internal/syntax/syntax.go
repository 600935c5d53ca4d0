// Package syntax defines the immutable syntax tree the analyses run over.
//
// Nodes form a closed set: Module, FuncDef, ClassDef, Lambda, Call, Name,
// Attribute and Compound. Every walker switches over all of them; Walk panics
// on anything else so a new node kind cannot be silently skipped.
package syntax

import "fmt"

// Kind tags a node with its grammatical category.
type Kind uint8

const (
	KindModule Kind = iota + 1
	KindFuncDef
	KindClassDef
	KindLambda
	KindCall
	KindName
	KindAttribute
	KindCompound
)

var kindNames = map[Kind]string{
	KindModule:    "module",
	KindFuncDef:   "funcdef",
	KindClassDef:  "classdef",
	KindLambda:    "lambda",
	KindCall:      "call",
	KindName:      "name",
	KindAttribute: "attribute",
	KindCompound:  "compound",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Span is an inclusive, 1-based line range.
type Span struct {
	Start int
	End   int
}

// Contains reports whether line falls within the span.
func (s Span) Contains(line int) bool {
	return line >= s.Start && line <= s.End
}

// Node is a syntax tree node. The unexported method seals the interface.
type Node interface {
	Kind() Kind
	Span() Span
	Children() []Node
	sealed()
}

// Module is the root of a parsed source unit.
type Module struct {
	Loc  Span
	Body []Node
}

// FuncDef is a function definition (def or async def).
type FuncDef struct {
	Name      string
	Loc       Span
	Async     bool
	Class     string // enclosing class for methods
	Signature string
	Params    []string

	// Decorators, parameter defaults and annotations are evaluated in the
	// enclosing scope but belong to the definition's subtree.
	Decorators []Node
	Header     []Node
	Body       []Node
}

// ClassDef is a class definition.
type ClassDef struct {
	Name       string
	Loc        Span
	Decorators []Node
	Bases      []Node
	Body       []Node
}

// Lambda is an anonymous function expression. It is not a function definition.
type Lambda struct {
	Loc    Span
	Params []string
	Header []Node
	Body   []Node
}

// Call is a call expression. Func is the callee expression.
type Call struct {
	Loc  Span
	Func Node
	Args []Node
}

// Name is an identifier used as an expression.
type Name struct {
	ID  string
	Loc Span
}

// Attribute is obj.attr. Attr is not a name reference.
type Attribute struct {
	Loc   Span
	Value Node
	Attr  string
}

// Compound is any other construct; Type is the grammar node type.
type Compound struct {
	Type  string
	Loc   Span
	Nodes []Node
}

func (*Module) Kind() Kind    { return KindModule }
func (*FuncDef) Kind() Kind   { return KindFuncDef }
func (*ClassDef) Kind() Kind  { return KindClassDef }
func (*Lambda) Kind() Kind    { return KindLambda }
func (*Call) Kind() Kind      { return KindCall }
func (*Name) Kind() Kind      { return KindName }
func (*Attribute) Kind() Kind { return KindAttribute }
func (*Compound) Kind() Kind  { return KindCompound }

func (n *Module) Span() Span    { return n.Loc }
func (n *FuncDef) Span() Span   { return n.Loc }
func (n *ClassDef) Span() Span  { return n.Loc }
func (n *Lambda) Span() Span    { return n.Loc }
func (n *Call) Span() Span      { return n.Loc }
func (n *Name) Span() Span      { return n.Loc }
func (n *Attribute) Span() Span { return n.Loc }
func (n *Compound) Span() Span  { return n.Loc }

func (n *Module) Children() []Node { return n.Body }

func (n *FuncDef) Children() []Node {
	return concat(n.Decorators, n.Header, n.Body)
}

func (n *ClassDef) Children() []Node {
	return concat(n.Decorators, n.Bases, n.Body)
}

func (n *Lambda) Children() []Node {
	return concat(n.Header, n.Body)
}

func (n *Call) Children() []Node {
	out := make([]Node, 0, len(n.Args)+1)
	if n.Func != nil {
		out = append(out, n.Func)
	}
	return append(out, n.Args...)
}

func (*Name) Children() []Node { return nil }

func (n *Attribute) Children() []Node {
	if n.Value == nil {
		return nil
	}
	return []Node{n.Value}
}

func (n *Compound) Children() []Node { return n.Nodes }

func (*Module) sealed()    {}
func (*FuncDef) sealed()   {}
func (*ClassDef) sealed()  {}
func (*Lambda) sealed()    {}
func (*Call) sealed()      {}
func (*Name) sealed()      {}
func (*Attribute) sealed() {}
func (*Compound) sealed()  {}

func concat(parts ...[]Node) []Node {
	var n int
	for _, p := range parts {
		n += len(p)
	}
	out := make([]Node, 0, n)
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

// Tree is one parsed source unit. It is never mutated after construction.
type Tree struct {
	root  *Module
	lines int
}

// NewTree wraps a lowered module. lines is the source unit's line count.
func NewTree(root *Module, lines int) *Tree {
	if root == nil {
		root = &Module{}
	}
	return &Tree{root: root, lines: lines}
}

// Root returns the module node. A nil tree has a nil root.
func (t *Tree) Root() *Module {
	if t == nil {
		return nil
	}
	return t.root
}

// LineCount returns the number of lines in the source unit.
func (t *Tree) LineCount() int {
	if t == nil {
		return 0
	}
	return t.lines
}

package graph

import (
	"sort"

	"gonum.org/v1/gonum/graph/encoding"
	"gonum.org/v1/gonum/graph/encoding/dot"
	"gonum.org/v1/gonum/graph/multi"
	"gonum.org/v1/gonum/graph/topo"

	"github.com/phobologic/codelens/internal/model"
)

// funcNode is a call graph node in gonum form. DOTID makes the function name
// the node identifier in DOT output.
type funcNode struct {
	id    int64
	name  string
	attrs []encoding.Attribute
}

func (n funcNode) ID() int64                        { return n.id }
func (n funcNode) DOTID() string                    { return n.name }
func (n funcNode) Attributes() []encoding.Attribute { return n.attrs }

// gonumGraph holds the gonum representation and the name mapping. A multi
// graph is used because simple graphs reject the self-loops of recursion.
type gonumGraph struct {
	g     *multi.DirectedGraph
	nodes map[string]funcNode
	names map[int64]string
}

func toGonumGraph(cg model.CallGraph, attrs map[string][]encoding.Attribute) *gonumGraph {
	gg := &gonumGraph{
		g:     multi.NewDirectedGraph(),
		nodes: make(map[string]funcNode, len(cg.Nodes)),
		names: make(map[int64]string, len(cg.Nodes)),
	}
	for i, name := range cg.Nodes {
		n := funcNode{id: int64(i), name: name, attrs: attrs[name]}
		gg.nodes[name] = n
		gg.names[n.id] = name
		gg.g.AddNode(n)
	}
	for _, e := range cg.Edges {
		from, fromOK := gg.nodes[e.Caller]
		to, toOK := gg.nodes[e.Callee]
		if !fromOK || !toOK {
			continue
		}
		gg.g.SetLine(gg.g.NewLine(from, to))
	}
	return gg
}

// Cycles returns the groups of mutually recursive functions: strongly
// connected components with more than one function, plus every function
// that calls itself directly. Names within a group and the groups themselves
// are sorted.
func Cycles(cg model.CallGraph) [][]string {
	cycles := make([][]string, 0)
	if len(cg.Nodes) == 0 {
		return cycles
	}

	gg := toGonumGraph(cg, nil)
	for _, scc := range topo.TarjanSCC(gg.g) {
		if len(scc) == 1 {
			id := scc[0].ID()
			if !gg.g.HasEdgeFromTo(id, id) {
				continue
			}
		}
		group := make([]string, 0, len(scc))
		for _, n := range scc {
			group = append(group, gg.names[n.ID()])
		}
		sort.Strings(group)
		cycles = append(cycles, group)
	}

	sort.Slice(cycles, func(i, j int) bool {
		return cycles[i][0] < cycles[j][0]
	})
	return cycles
}

// DOTOptions controls DOT export styling.
type DOTOptions struct {
	// Highlight marks functions (e.g. long ones) with a distinct style.
	Highlight map[string]struct{}
}

// MarshalDOT renders the call graph in Graphviz DOT syntax. Layout is left
// to the consumer.
func MarshalDOT(cg model.CallGraph, name string, opts DOTOptions) ([]byte, error) {
	if name == "" {
		name = "callgraph"
	}
	attrs := make(map[string][]encoding.Attribute, len(opts.Highlight))
	for fn := range opts.Highlight {
		attrs[fn] = []encoding.Attribute{
			{Key: "color", Value: "red"},
			{Key: "style", Value: "bold"},
		}
	}
	gg := toGonumGraph(cg, attrs)
	return dot.MarshalMulti(gg.g, name, "", "  ")
}

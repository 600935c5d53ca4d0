// Package graph builds the function call graph and computes PageRank.
package graph

import (
	"math"
	"sort"

	"github.com/phobologic/codelens/internal/catalog"
	"github.com/phobologic/codelens/internal/model"
	"github.com/phobologic/codelens/internal/syntax"
)

type defKey struct {
	name string
	line int
}

// BuildCallGraph creates an edge caller → callee for every direct call in a
// catalog function's subtree whose callee is a bare name matching a catalog
// function. Attribute and computed callees are never resolved. Definitions
// sharing a name share one node. Edges are deduplicated and sorted.
func BuildCallGraph(tree *syntax.Tree, records []model.FunctionRecord) model.CallGraph {
	cg := model.CallGraph{Nodes: make([]string, 0), Edges: make([]model.CallEdge, 0)}
	if len(records) == 0 {
		return cg
	}

	known := catalog.Names(records)
	seenNode := make(map[string]struct{}, len(known))
	for i := range records {
		if _, dup := seenNode[records[i].Name]; dup {
			continue
		}
		seenNode[records[i].Name] = struct{}{}
		cg.Nodes = append(cg.Nodes, records[i].Name)
	}

	seen := make(map[model.CallEdge]struct{})
	forEachDef(tree, records, func(fd *syntax.FuncDef) {
		forEachNameCall(fd, func(callee string) {
			if _, ok := known[callee]; !ok {
				return
			}
			edge := model.CallEdge{Caller: fd.Name, Callee: callee}
			if _, dup := seen[edge]; dup {
				return
			}
			seen[edge] = struct{}{}
			cg.Edges = append(cg.Edges, edge)
		})
	})

	sort.Slice(cg.Edges, func(i, j int) bool {
		if cg.Edges[i].Caller != cg.Edges[j].Caller {
			return cg.Edges[i].Caller < cg.Edges[j].Caller
		}
		return cg.Edges[i].Callee < cg.Edges[j].Callee
	})

	return cg
}

// Unresolved returns the sorted bare-name callees called from catalog
// functions that are not themselves catalog functions (builtins, imports,
// names defined elsewhere). They are never graph nodes.
func Unresolved(tree *syntax.Tree, records []model.FunctionRecord) []string {
	out := make([]string, 0)
	if len(records) == 0 {
		return out
	}
	known := catalog.Names(records)
	missing := make(map[string]struct{})
	forEachDef(tree, records, func(fd *syntax.FuncDef) {
		forEachNameCall(fd, func(callee string) {
			if _, ok := known[callee]; !ok {
				missing[callee] = struct{}{}
			}
		})
	})
	for name := range missing {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// forEachDef calls fn for every definition in tree that has a catalog record.
func forEachDef(tree *syntax.Tree, records []model.FunctionRecord, fn func(*syntax.FuncDef)) {
	want := make(map[defKey]struct{}, len(records))
	for i := range records {
		want[defKey{records[i].Name, records[i].StartLine}] = struct{}{}
	}
	syntax.Inspect(tree, func(n syntax.Node) bool {
		if fd, ok := n.(*syntax.FuncDef); ok {
			if _, ok := want[defKey{fd.Name, fd.Loc.Start}]; ok {
				fn(fd)
			}
		}
		return true
	})
}

// forEachNameCall reports the callee of every call in fd's subtree whose
// callee is a bare name.
func forEachNameCall(fd *syntax.FuncDef, fn func(callee string)) {
	syntax.Walk(fd, func(n syntax.Node) bool {
		switch n := n.(type) {
		case *syntax.Call:
			if name, ok := n.Func.(*syntax.Name); ok {
				fn(name.ID)
			}
		case *syntax.Module, *syntax.FuncDef, *syntax.ClassDef, *syntax.Lambda,
			*syntax.Name, *syntax.Attribute, *syntax.Compound:
		}
		return true
	})
}

// Rank computes PageRank over the call graph. A call edge passes rank from
// caller to callee, so frequently called functions rank highest.
func Rank(cg model.CallGraph) map[string]float64 {
	if len(cg.Nodes) == 0 {
		return map[string]float64{}
	}

	nodes := make(map[string]struct{}, len(cg.Nodes))
	for _, n := range cg.Nodes {
		nodes[n] = struct{}{}
	}

	if len(cg.Edges) == 0 {
		uniform := 1.0 / float64(len(nodes))
		ranks := make(map[string]float64, len(nodes))
		for n := range nodes {
			ranks[n] = uniform
		}
		return ranks
	}

	outEdges := make(map[string][]string)
	outDegree := make(map[string]int)
	for _, e := range cg.Edges {
		outEdges[e.Caller] = append(outEdges[e.Caller], e.Callee)
		outDegree[e.Caller]++
	}

	return pageRank(nodes, outEdges, outDegree, 0.85, 100, 1e-6)
}

// Ranked returns the graph's functions sorted by rank descending, ties by name.
func Ranked(cg model.CallGraph) []model.FunctionRank {
	ranks := Rank(cg)
	out := make([]model.FunctionRank, 0, len(ranks))
	for name, r := range ranks {
		out = append(out, model.FunctionRank{Name: name, Rank: r})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Rank != out[j].Rank {
			return out[i].Rank > out[j].Rank
		}
		return out[i].Name < out[j].Name
	})
	return out
}

func pageRank(
	nodes map[string]struct{},
	outEdges map[string][]string,
	outDegree map[string]int,
	alpha float64,
	maxIter int,
	tol float64,
) map[string]float64 {
	n := len(nodes)
	if n == 0 {
		return nil
	}

	rank := make(map[string]float64, n)
	initial := 1.0 / float64(n)
	for node := range nodes {
		rank[node] = initial
	}

	teleport := (1.0 - alpha) / float64(n)

	for iter := 0; iter < maxIter; iter++ {
		newRank := make(map[string]float64, n)

		// Dangling node contribution (functions that call nothing)
		var danglingSum float64
		for node := range nodes {
			if outDegree[node] == 0 {
				danglingSum += rank[node]
			}
		}
		danglingContrib := alpha * danglingSum / float64(n)

		for node := range nodes {
			newRank[node] = teleport + danglingContrib
		}

		for src, targets := range outEdges {
			deg := float64(outDegree[src])
			contrib := alpha * rank[src] / deg
			for _, tgt := range targets {
				newRank[tgt] += contrib
			}
		}

		var diff float64
		for node := range nodes {
			diff += math.Abs(newRank[node] - rank[node])
		}

		rank = newRank

		if diff < tol {
			break
		}
	}

	return rank
}

// Package ranking narrows a report to its most central or most relevant
// functions.
package ranking

import (
	"strings"

	"github.com/phobologic/codelens/internal/graph"
	"github.com/phobologic/codelens/internal/model"
)

// SelectFunctions returns a new Report with only the maxFuncs highest-ranked
// functions and the graph edges between them. Ranks are computed when the
// report carries none. If maxFuncs is <= 0 or covers every function, rep is
// returned unchanged.
func SelectFunctions(rep *model.Report, maxFuncs int) *model.Report {
	if maxFuncs <= 0 || maxFuncs >= len(rep.CallGraph.Nodes) {
		return rep
	}

	ranks := rep.Ranks
	if len(ranks) == 0 {
		ranks = graph.Ranked(rep.CallGraph)
	}
	selected := ranks[:min(maxFuncs, len(ranks))]
	keep := make(map[string]struct{}, len(selected))
	for i := range selected {
		keep[selected[i].Name] = struct{}{}
	}

	out := restrict(rep, keep, func(e model.CallEdge) bool {
		_, callerOK := keep[e.Caller]
		_, calleeOK := keep[e.Callee]
		return callerOK && calleeOK
	})
	out.Ranks = append([]model.FunctionRank(nil), selected...)
	return out
}

// FilterBySymbol returns a new Report containing the functions whose name or
// qualified name contains substr (case-insensitive), their direct callers and
// callees, and the edges that touch a matched function.
func FilterBySymbol(rep *model.Report, substr string) *model.Report {
	lower := strings.ToLower(substr)

	matched := make(map[string]struct{})
	for i := range rep.Functions {
		f := &rep.Functions[i]
		if strings.Contains(strings.ToLower(f.Name), lower) ||
			strings.Contains(strings.ToLower(f.Qualified), lower) {
			matched[f.Name] = struct{}{}
		}
	}

	keep := make(map[string]struct{}, len(matched))
	for name := range matched {
		keep[name] = struct{}{}
	}
	for _, e := range rep.CallGraph.Edges {
		if _, ok := matched[e.Caller]; ok {
			keep[e.Callee] = struct{}{}
		}
		if _, ok := matched[e.Callee]; ok {
			keep[e.Caller] = struct{}{}
		}
	}

	out := restrict(rep, keep, func(e model.CallEdge) bool {
		_, callerOK := matched[e.Caller]
		_, calleeOK := matched[e.Callee]
		return callerOK || calleeOK
	})
	if rep.Ranks != nil {
		out.Ranks = make([]model.FunctionRank, 0, len(keep))
		for _, r := range rep.Ranks {
			if _, ok := keep[r.Name]; ok {
				out.Ranks = append(out.Ranks, r)
			}
		}
	}
	return out
}

// FilterByPath returns the reports whose source contains substr
// (case-insensitive), in their original order.
func FilterByPath(reps []*model.Report, substr string) []*model.Report {
	lower := strings.ToLower(substr)
	out := make([]*model.Report, 0, len(reps))
	for _, rep := range reps {
		if strings.Contains(strings.ToLower(rep.Source), lower) {
			out = append(out, rep)
		}
	}
	return out
}

// restrict copies rep keeping the functions named in keep and the edges
// accepted by keepEdge. Usages and unresolved names are source-wide and are
// carried over as is.
func restrict(rep *model.Report, keep map[string]struct{}, keepEdge func(model.CallEdge) bool) *model.Report {
	out := *rep

	out.Functions = make([]model.FunctionRecord, 0, len(keep))
	for i := range rep.Functions {
		if _, ok := keep[rep.Functions[i].Name]; ok {
			out.Functions = append(out.Functions, rep.Functions[i])
		}
	}

	out.LongFunctions = make([]model.LongFunction, 0)
	for _, lf := range rep.LongFunctions {
		if _, ok := keep[lf.Name]; ok {
			out.LongFunctions = append(out.LongFunctions, lf)
		}
	}

	out.CallGraph = model.CallGraph{Nodes: make([]string, 0, len(keep)), Edges: make([]model.CallEdge, 0)}
	for _, n := range rep.CallGraph.Nodes {
		if _, ok := keep[n]; ok {
			out.CallGraph.Nodes = append(out.CallGraph.Nodes, n)
		}
	}
	for _, e := range rep.CallGraph.Edges {
		_, callerOK := keep[e.Caller]
		_, calleeOK := keep[e.Callee]
		if callerOK && calleeOK && keepEdge(e) {
			out.CallGraph.Edges = append(out.CallGraph.Edges, e)
		}
	}

	out.Cycles = make([][]string, 0)
	for _, group := range rep.Cycles {
		all := true
		for _, n := range group {
			if _, ok := keep[n]; !ok {
				all = false
				break
			}
		}
		if all {
			out.Cycles = append(out.Cycles, group)
		}
	}
	return &out
}

// Package model defines core data structures for codelens.
package model

// FunctionRecord is one function definition found in a source unit.
// Names are not unique: every definition gets its own record.
type FunctionRecord struct {
	Name      string `json:"name" toon:"name"`
	StartLine int    `json:"start_line" toon:"start_line"`
	EndLine   int    `json:"end_line" toon:"end_line"`

	// Qualified is Class.name for methods and Name otherwise.
	Qualified string `json:"qualified" toon:"qualified"`
	Signature string `json:"signature" toon:"signature"`
	Async     bool   `json:"async,omitempty" toon:"async,omitempty"`

	// BodyStart and BodyEnd are the lines of the first and last body statement.
	BodyStart int `json:"body_start" toon:"body_start"`
	BodyEnd   int `json:"body_end" toon:"body_end"`
}

// Length returns the inclusive line span of the definition.
func (r FunctionRecord) Length() int {
	return r.EndLine - r.StartLine + 1
}

// BodyLength returns the inclusive line distance between the first and last
// body statements.
func (r FunctionRecord) BodyLength() int {
	if r.BodyStart == 0 {
		return 1
	}
	return r.BodyEnd - r.BodyStart + 1
}

// UsageIndex maps identifier names to ascending, deduplicated line numbers.
type UsageIndex map[string][]int

// Usage is the result of one identifier query.
type Usage struct {
	Name  string `json:"name" toon:"name"`
	Lines []int  `json:"lines" toon:"lines"`
}

// LongFunction is a function whose length exceeds the configured threshold.
type LongFunction struct {
	Name   string `json:"name" toon:"name"`
	Length int    `json:"length" toon:"length"`

	// StartLine tells apart definitions that share a name.
	StartLine int `json:"start_line" toon:"start_line"`
}

// CallEdge represents a direct call: Caller's body calls Callee by name.
type CallEdge struct {
	Caller string `json:"caller" toon:"caller"`
	Callee string `json:"callee" toon:"callee"`
}

// CallGraph is a simple directed graph over catalog function names.
type CallGraph struct {
	Nodes []string   `json:"nodes" toon:"nodes"`
	Edges []CallEdge `json:"edges" toon:"edges"`
}

// HasNode reports whether name is a node of the graph.
func (g CallGraph) HasNode(name string) bool {
	for _, n := range g.Nodes {
		if n == name {
			return true
		}
	}
	return false
}

// FunctionRank is a function's centrality in the call graph.
type FunctionRank struct {
	Name string  `json:"name" toon:"name"`
	Rank float64 `json:"rank" toon:"rank"`
}

// Report is the complete result of analyzing one source unit.
type Report struct {
	Source     string `json:"source" toon:"source"`
	Lines      int    `json:"lines" toon:"lines"`
	Parsed     bool   `json:"parsed" toon:"parsed"`
	ParseError string `json:"parse_error,omitempty" toon:"parse_error,omitempty"`

	Functions     []FunctionRecord `json:"functions" toon:"functions"`
	Usages        []Usage          `json:"usages" toon:"usages"`
	Threshold     int              `json:"threshold" toon:"threshold"`
	LongFunctions []LongFunction   `json:"long_functions" toon:"long_functions"`
	CallGraph     CallGraph        `json:"call_graph" toon:"call_graph"`
	Cycles        [][]string       `json:"cycles" toon:"cycles"`
	Unresolved    []string         `json:"unresolved" toon:"unresolved"`
	Ranks         []FunctionRank   `json:"ranks,omitempty" toon:"ranks,omitempty"`
}

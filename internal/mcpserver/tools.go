package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/phobologic/codelens/internal/engine"
	"github.com/phobologic/codelens/internal/graph"
	"github.com/phobologic/codelens/internal/model"
	"github.com/phobologic/codelens/internal/output"
	"github.com/phobologic/codelens/internal/ranking"
	"github.com/phobologic/codelens/internal/syntax"
)

// SourceInput names the source unit every tool works on. An empty source is a
// valid module with nothing in it; only an absent source falls back to Path.
type SourceInput struct {
	Source *string `json:"source,omitempty" jsonschema:"Python source text, possibly empty. Either source or path is required."`
	Path   string  `json:"path,omitempty" jsonschema:"Path of a Python file to read when source is absent."`
	Format string  `json:"format,omitempty" jsonschema:"Output format: toon (default), json, or markdown."`
}

// UsagesInput adds the identifier to look up.
type UsagesInput struct {
	SourceInput
	Name string `json:"name" jsonschema:"Identifier to find. Matching is exact and case-sensitive."`
}

// LongFunctionsInput adds an optional threshold.
type LongFunctionsInput struct {
	SourceInput
	Threshold *int `json:"threshold,omitempty" jsonschema:"Report functions longer than this many lines. Defaults to the configured threshold."`
}

// CallGraphInput adds graph narrowing options.
type CallGraphInput struct {
	SourceInput
	Top   int    `json:"top,omitempty" jsonschema:"Keep only the N most central functions by PageRank."`
	Focus string `json:"focus,omitempty" jsonschema:"Keep functions whose name contains this text, with their direct callers and callees."`
}

// AnalyzeInput adds the identifiers whose usages to include.
type AnalyzeInput struct {
	SourceInput
	Usages []string `json:"usages,omitempty" jsonschema:"Identifiers to find usages of."`
}

type functionList struct {
	Functions []model.FunctionRecord `json:"functions" toon:"functions"`
}

type longList struct {
	Threshold     int                  `json:"threshold" toon:"threshold"`
	LongFunctions []model.LongFunction `json:"long_functions" toon:"long_functions"`
}

type graphResult struct {
	CallGraph  model.CallGraph `json:"call_graph" toon:"call_graph"`
	Cycles     [][]string      `json:"cycles" toon:"cycles"`
	Unresolved []string        `json:"unresolved" toon:"unresolved"`
}

func (s *Server) handleListFunctions(ctx context.Context, _ *mcp.CallToolRequest, in SourceInput) (*mcp.CallToolResult, any, error) {
	tree, res := s.parse(ctx, in)
	if res != nil {
		return res, nil, nil
	}
	return toolResult(functionList{Functions: s.engine.CatalogFunctions(tree)}, in.Format)
}

func (s *Server) handleFindUsages(ctx context.Context, _ *mcp.CallToolRequest, in UsagesInput) (*mcp.CallToolResult, any, error) {
	if in.Name == "" {
		return toolError("name is required")
	}
	tree, res := s.parse(ctx, in.SourceInput)
	if res != nil {
		return res, nil, nil
	}
	return toolResult(model.Usage{Name: in.Name, Lines: s.engine.FindUsages(tree, in.Name)}, in.Format)
}

func (s *Server) handleLongFunctions(ctx context.Context, _ *mcp.CallToolRequest, in LongFunctionsInput) (*mcp.CallToolResult, any, error) {
	threshold := s.engine.Threshold()
	if in.Threshold != nil {
		if *in.Threshold < 0 {
			return toolError("threshold must be >= 0")
		}
		threshold = *in.Threshold
	}
	tree, res := s.parse(ctx, in.SourceInput)
	if res != nil {
		return res, nil, nil
	}
	records := s.engine.CatalogFunctions(tree)
	return toolResult(longList{
		Threshold:     threshold,
		LongFunctions: s.engine.FindLongFunctions(records, threshold),
	}, in.Format)
}

func (s *Server) handleCallGraph(ctx context.Context, _ *mcp.CallToolRequest, in CallGraphInput) (*mcp.CallToolResult, any, error) {
	source, err := readSource(in.SourceInput)
	if err != nil {
		return toolError(err.Error())
	}
	rep := s.engine.Analyze(ctx, source, engine.Request{Label: in.Path})
	if !rep.Parsed {
		return toolError("input did not parse: " + rep.ParseError)
	}
	if in.Focus != "" {
		rep = ranking.FilterBySymbol(rep, in.Focus)
	}
	rep = ranking.SelectFunctions(rep, in.Top)

	if in.Format == "dot" {
		long := make(map[string]struct{}, len(rep.LongFunctions))
		for _, lf := range rep.LongFunctions {
			long[lf.Name] = struct{}{}
		}
		out, err := graph.MarshalDOT(rep.CallGraph, "callgraph", graph.DOTOptions{Highlight: long})
		if err != nil {
			return toolError(err.Error())
		}
		return textResult(string(out)), nil, nil
	}
	return toolResult(graphResult{
		CallGraph:  rep.CallGraph,
		Cycles:     rep.Cycles,
		Unresolved: rep.Unresolved,
	}, in.Format)
}

func (s *Server) handleAnalyzeSource(ctx context.Context, _ *mcp.CallToolRequest, in AnalyzeInput) (*mcp.CallToolResult, any, error) {
	source, err := readSource(in.SourceInput)
	if err != nil {
		return toolError(err.Error())
	}
	rep := s.engine.Analyze(ctx, source, engine.Request{Label: in.Path, Usages: in.Usages})
	return toolResult(rep, in.Format)
}

// parse reads and parses the input. On failure it returns the error result
// to send instead.
func (s *Server) parse(ctx context.Context, in SourceInput) (*syntax.Tree, *mcp.CallToolResult) {
	source, err := readSource(in)
	if err != nil {
		res, _, _ := toolError(err.Error())
		return nil, res
	}
	tree, err := s.engine.Parse(ctx, source)
	if err != nil {
		res, _, _ := toolError("input did not parse: " + err.Error())
		return nil, res
	}
	return tree, nil
}

func readSource(in SourceInput) ([]byte, error) {
	if in.Source != nil {
		return []byte(*in.Source), nil
	}
	if in.Path == "" {
		return nil, errors.New("either source or path is required")
	}
	data, err := os.ReadFile(in.Path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", in.Path, err)
	}
	return data, nil
}

func formatOutput(data any, format string) (string, error) {
	switch format {
	case "json":
		out, err := json.MarshalIndent(data, "", "  ")
		if err != nil {
			return "", err
		}
		return string(out), nil
	case "markdown", "md":
		out, err := output.Marshal(data)
		if err != nil {
			return "", err
		}
		return "```\n" + out + "\n```", nil
	default:
		return output.Marshal(data)
	}
}

func toolResult(data any, format string) (*mcp.CallToolResult, any, error) {
	text, err := formatOutput(data, format)
	if err != nil {
		return nil, nil, err
	}
	return textResult(text), nil, nil
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: text},
		},
	}
}

func toolError(msg string) (*mcp.CallToolResult, any, error) {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: "Error: " + msg},
		},
		IsError: true,
	}, nil, nil
}

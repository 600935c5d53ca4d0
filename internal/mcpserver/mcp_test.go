package mcpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phobologic/codelens/internal/config"
	"github.com/phobologic/codelens/internal/engine"
	"github.com/phobologic/codelens/internal/model"
)

var sample = `def helper(x):
    return x + 1


def run(items):
    total = 0
    for item in items:
        total = helper(total)
    return total


def fib(n):
    return n if n < 2 else fib(n - 1) + fib(n - 2)
`

func text(s string) *string { return &s }

func newServer(t *testing.T) *Server {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Analysis.Threshold = 3
	eng, err := engine.New(cfg, slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)))
	require.NoError(t, err)
	return NewServer("test", eng, nil)
}

func resultText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	require.NotNil(t, res)
	require.NotEmpty(t, res.Content)
	text, ok := res.Content[0].(*mcp.TextContent)
	require.True(t, ok, "content is %T", res.Content[0])
	return text.Text
}

func TestServerCreation(t *testing.T) {
	t.Parallel()

	s := newServer(t)
	require.NotNil(t, s.server)
	assert.NotNil(t, NewServer("", s.engine, nil))
}

func TestListFunctions(t *testing.T) {
	t.Parallel()

	res, _, err := newServer(t).handleListFunctions(context.Background(), nil, SourceInput{Source: &sample, Format: "json"})
	require.NoError(t, err)
	require.False(t, res.IsError)

	var got functionList
	require.NoError(t, json.Unmarshal([]byte(resultText(t, res)), &got))
	require.Len(t, got.Functions, 3)
	assert.Equal(t, "run", got.Functions[1].Name)
	assert.Equal(t, 5, got.Functions[1].StartLine)
	assert.Equal(t, 9, got.Functions[1].EndLine)
}

func TestListFunctionsFromPath(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "mod.py")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o644))

	res, _, err := newServer(t).handleListFunctions(context.Background(), nil, SourceInput{Path: path})
	require.NoError(t, err)
	require.False(t, res.IsError)
	assert.Contains(t, resultText(t, res), "helper")
}

func TestParseFailureIsError(t *testing.T) {
	t.Parallel()

	res, _, err := newServer(t).handleListFunctions(context.Background(), nil, SourceInput{Source: text("def (:\n")})
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Contains(t, resultText(t, res), "input did not parse")
}

func TestMissingSource(t *testing.T) {
	t.Parallel()

	res, _, err := newServer(t).handleListFunctions(context.Background(), nil, SourceInput{})
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Contains(t, resultText(t, res), "either source or path is required")

	res, _, err = newServer(t).handleListFunctions(context.Background(), nil, SourceInput{Path: "/does/not/exist.py"})
	require.NoError(t, err)
	assert.True(t, res.IsError)
}

func TestEmptySourceIsValid(t *testing.T) {
	t.Parallel()
	s := newServer(t)
	ctx := context.Background()

	tests := []struct {
		name string
		call func(in SourceInput) (*mcp.CallToolResult, any, error)
		want string
	}{
		{"list_functions", func(in SourceInput) (*mcp.CallToolResult, any, error) {
			return s.handleListFunctions(ctx, nil, in)
		}, `{"functions": []}`},
		{"find_usages", func(in SourceInput) (*mcp.CallToolResult, any, error) {
			return s.handleFindUsages(ctx, nil, UsagesInput{SourceInput: in, Name: "x"})
		}, `{"name": "x", "lines": []}`},
		{"long_functions", func(in SourceInput) (*mcp.CallToolResult, any, error) {
			return s.handleLongFunctions(ctx, nil, LongFunctionsInput{SourceInput: in})
		}, `{"threshold": 3, "long_functions": []}`},
	}

	for _, source := range []string{"", "\n\n", "# only a comment\n"} {
		for _, tt := range tests {
			res, _, err := tt.call(SourceInput{Source: text(source), Format: "json"})
			require.NoError(t, err, tt.name)
			require.False(t, res.IsError, "%s on %q: %s", tt.name, source, resultText(t, res))
			assert.JSONEq(t, tt.want, resultText(t, res), tt.name)
		}

		res, _, err := s.handleAnalyzeSource(ctx, nil, AnalyzeInput{SourceInput: SourceInput{Source: text(source), Format: "json"}})
		require.NoError(t, err)
		require.False(t, res.IsError)
		var rep model.Report
		require.NoError(t, json.Unmarshal([]byte(resultText(t, res)), &rep))
		assert.True(t, rep.Parsed)
		assert.Empty(t, rep.Functions)
	}
}

func TestFindUsages(t *testing.T) {
	t.Parallel()

	s := newServer(t)
	res, _, err := s.handleFindUsages(context.Background(), nil, UsagesInput{
		SourceInput: SourceInput{Source: &sample, Format: "json"},
		Name:        "total",
	})
	require.NoError(t, err)

	var got model.Usage
	require.NoError(t, json.Unmarshal([]byte(resultText(t, res)), &got))
	assert.Equal(t, []int{6, 8, 9}, got.Lines)

	res, _, err = s.handleFindUsages(context.Background(), nil, UsagesInput{SourceInput: SourceInput{Source: &sample}})
	require.NoError(t, err)
	assert.True(t, res.IsError)
}

func TestLongFunctions(t *testing.T) {
	t.Parallel()

	s := newServer(t)
	res, _, err := s.handleLongFunctions(context.Background(), nil, LongFunctionsInput{
		SourceInput: SourceInput{Source: &sample, Format: "json"},
	})
	require.NoError(t, err)

	var got longList
	require.NoError(t, json.Unmarshal([]byte(resultText(t, res)), &got))
	assert.Equal(t, 3, got.Threshold)
	assert.Equal(t, []model.LongFunction{{Name: "run", Length: 5, StartLine: 5}}, got.LongFunctions)

	zero := 0
	res, _, err = s.handleLongFunctions(context.Background(), nil, LongFunctionsInput{
		SourceInput: SourceInput{Source: &sample, Format: "json"},
		Threshold:   &zero,
	})
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(resultText(t, res)), &got))
	assert.Len(t, got.LongFunctions, 3)

	negative := -1
	res, _, err = s.handleLongFunctions(context.Background(), nil, LongFunctionsInput{
		SourceInput: SourceInput{Source: &sample},
		Threshold:   &negative,
	})
	require.NoError(t, err)
	assert.True(t, res.IsError)
}

func TestCallGraph(t *testing.T) {
	t.Parallel()

	s := newServer(t)
	res, _, err := s.handleCallGraph(context.Background(), nil, CallGraphInput{
		SourceInput: SourceInput{Source: &sample, Format: "json"},
	})
	require.NoError(t, err)

	var got graphResult
	require.NoError(t, json.Unmarshal([]byte(resultText(t, res)), &got))
	assert.Equal(t, []string{"helper", "run", "fib"}, got.CallGraph.Nodes)
	assert.Equal(t, []model.CallEdge{
		{Caller: "fib", Callee: "fib"},
		{Caller: "run", Callee: "helper"},
	}, got.CallGraph.Edges)
	assert.Equal(t, [][]string{{"fib"}}, got.Cycles)
}

func TestCallGraphFocusAndDOT(t *testing.T) {
	t.Parallel()

	s := newServer(t)
	res, _, err := s.handleCallGraph(context.Background(), nil, CallGraphInput{
		SourceInput: SourceInput{Source: &sample, Format: "dot"},
		Focus:       "helper",
	})
	require.NoError(t, err)
	require.False(t, res.IsError)

	dot := resultText(t, res)
	assert.Contains(t, dot, "digraph callgraph")
	assert.Contains(t, dot, "run -> helper")
	assert.NotContains(t, dot, "fib")
}

func TestAnalyzeSource(t *testing.T) {
	t.Parallel()

	res, _, err := newServer(t).handleAnalyzeSource(context.Background(), nil, AnalyzeInput{
		SourceInput: SourceInput{Source: text("x = (\n"), Format: "json"},
	})
	require.NoError(t, err)
	require.False(t, res.IsError)

	var rep model.Report
	require.NoError(t, json.Unmarshal([]byte(resultText(t, res)), &rep))
	assert.False(t, rep.Parsed)
	assert.NotEmpty(t, rep.ParseError)
	assert.Empty(t, rep.Functions)
}

func TestFormatOutput(t *testing.T) {
	t.Parallel()

	data := model.Usage{Name: "x", Lines: []int{1, 2}}

	js, err := formatOutput(data, "json")
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"x","lines":[1,2]}`, js)

	md, err := formatOutput(data, "markdown")
	require.NoError(t, err)
	assert.Contains(t, md, "```")

	tn, err := formatOutput(data, "")
	require.NoError(t, err)
	assert.Contains(t, tn, "name: x")
}

func TestClientSession(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := newServer(t)

	clientTransport, serverTransport := mcp.NewInMemoryTransports()
	serverSession, err := s.server.Connect(ctx, serverTransport, nil)
	require.NoError(t, err)
	defer serverSession.Close()

	client := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "1.0.0"}, nil)
	session, err := client.Connect(ctx, clientTransport, nil)
	require.NoError(t, err)
	defer session.Close()

	tools, err := session.ListTools(ctx, nil)
	require.NoError(t, err)
	var names []string
	for _, tool := range tools.Tools {
		names = append(names, tool.Name)
	}
	sort.Strings(names)
	assert.Equal(t, []string{"analyze_source", "call_graph", "find_usages", "list_functions", "long_functions"}, names)

	res, err := session.CallTool(ctx, &mcp.CallToolParams{
		Name:      "find_usages",
		Arguments: map[string]any{"source": sample, "name": "helper", "format": "json"},
	})
	require.NoError(t, err)
	require.False(t, res.IsError)
	assert.JSONEq(t, `{"name":"helper","lines":[8]}`, resultText(t, res))

	res, err = session.CallTool(ctx, &mcp.CallToolParams{
		Name:      "list_functions",
		Arguments: map[string]any{"source": "", "format": "json"},
	})
	require.NoError(t, err)
	require.False(t, res.IsError, resultText(t, res))
	assert.JSONEq(t, `{"functions":[]}`, resultText(t, res))
}

func TestLongFunctionsDescriptionNamesMode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		mode string
		want string
	}{
		{"span", "end line minus start line plus one"},
		{"body", "from the first body statement"},
	}

	for _, tt := range tests {
		t.Run(tt.mode, func(t *testing.T) {
			t.Parallel()
			ctx := context.Background()

			cfg := config.DefaultConfig()
			cfg.Analysis.LengthMode = tt.mode
			eng, err := engine.New(cfg, slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)))
			require.NoError(t, err)
			s := NewServer("test", eng, nil)

			clientTransport, serverTransport := mcp.NewInMemoryTransports()
			serverSession, err := s.server.Connect(ctx, serverTransport, nil)
			require.NoError(t, err)
			defer serverSession.Close()

			client := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "1.0.0"}, nil)
			session, err := client.Connect(ctx, clientTransport, nil)
			require.NoError(t, err)
			defer session.Close()

			tools, err := session.ListTools(ctx, nil)
			require.NoError(t, err)
			var desc string
			for _, tool := range tools.Tools {
				if tool.Name == "long_functions" {
					desc = tool.Description
				}
			}
			assert.Contains(t, desc, tt.mode+" mode")
			assert.Contains(t, desc, tt.want)
		})
	}
}

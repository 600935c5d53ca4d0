// Package mcpserver exposes the codelens analyses as MCP tools over stdio.
package mcpserver

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/phobologic/codelens/internal/engine"
	"github.com/phobologic/codelens/internal/length"
)

// Server wraps the MCP server and the engine the tools run on.
type Server struct {
	server *mcp.Server
	engine *engine.Engine
	logger *slog.Logger
}

// NewServer creates an MCP server with every codelens tool registered.
func NewServer(version string, eng *engine.Engine, logger *slog.Logger) *Server {
	if version == "" {
		version = "dev"
	}
	if logger == nil {
		logger = slog.Default()
	}
	server := mcp.NewServer(
		&mcp.Implementation{
			Name:    "codelens",
			Version: version,
		},
		nil,
	)

	s := &Server{server: server, engine: eng, logger: logger}
	s.registerTools()
	return s
}

// Run serves over stdio until ctx is done or the client disconnects.
func (s *Server) Run(ctx context.Context) error {
	return s.server.Run(ctx, &mcp.StdioTransport{})
}

func (s *Server) registerTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "list_functions",
		Description: describeListFunctions,
	}, s.handleListFunctions)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "find_usages",
		Description: describeFindUsages,
	}, s.handleFindUsages)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "long_functions",
		Description: describeLongFunctions(s.engine.Mode()),
	}, s.handleLongFunctions)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "call_graph",
		Description: describeCallGraph,
	}, s.handleCallGraph)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "analyze_source",
		Description: describeAnalyzeSource,
	}, s.handleAnalyzeSource)
}

const describeListFunctions = `List every function definition in one Python source unit.

USE WHEN: you need an outline of a module: names, line ranges, signatures.
Nested functions and methods are included; lambdas are not.

RETURNS: one row per definition with name, qualified name, start and end line.
A source that does not parse is reported as an error, not as an empty list.`

const describeFindUsages = `Find the lines on which an identifier is referenced in one Python source unit.

USE WHEN: tracing where a variable or function name is read, assigned or deleted.
Attribute names (obj.name), string contents and declarations such as parameter
or import names are not references.

RETURNS: ascending, deduplicated line numbers.`

func describeLongFunctions(mode length.Mode) string {
	measure := "end line minus start line plus one"
	if mode == length.ModeBody {
		measure = "the lines from the first body statement to the start of the last one, excluding the def line and decorators"
	}
	return fmt.Sprintf(`Report functions whose length exceeds a threshold.

USE WHEN: looking for refactoring candidates by size.
Length is measured in %s mode: %s. The threshold is exclusive.

RETURNS: name, length and start line of each long function, in source order.`, mode, measure)
}

const describeCallGraph = `Build the call graph between functions of one Python source unit.

USE WHEN: understanding which functions call which, or finding recursion.
Only direct calls by bare name are resolved; method calls and calls through
variables are not. Calls to names that are not defined in the source are
listed separately as unresolved.

RETURNS: nodes, caller/callee edges, recursive groups and unresolved names.
Format "dot" returns Graphviz DOT instead.`

const describeAnalyzeSource = `Run every analysis over one Python source unit at once.

USE WHEN: you want the function catalog, long functions, call graph and the
usages of some identifiers in a single call.

RETURNS: the complete report. A parse failure is reported in parse_error with
parsed=false; the analyses are then empty.`

// Package engine is the entry point to the analyses. It parses a source unit
// once and derives the function catalog, identifier usages, long functions
// and the call graph from the tree. Analyses never fail: given no tree they
// return empty results, and an internal fault is logged and also yields the
// empty result.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/phobologic/codelens/internal/catalog"
	"github.com/phobologic/codelens/internal/config"
	"github.com/phobologic/codelens/internal/graph"
	"github.com/phobologic/codelens/internal/length"
	"github.com/phobologic/codelens/internal/model"
	"github.com/phobologic/codelens/internal/parse"
	"github.com/phobologic/codelens/internal/syntax"
	"github.com/phobologic/codelens/internal/usage"
)

// Engine runs analyses with fixed settings. It holds no per-source state and
// is safe for concurrent use.
type Engine struct {
	threshold int
	mode      length.Mode
	timeout   time.Duration
	maxBytes  int
	rank      bool
	logger    *slog.Logger
}

// Request names what Analyze should report beyond the fixed analyses.
type Request struct {
	// Label identifies the source in the report, usually its path.
	Label string
	// Usages are the identifiers to look up.
	Usages []string
}

// New creates an Engine from cfg. A nil cfg uses config.DefaultConfig and a
// nil logger uses slog.Default.
func New(cfg *config.Config, logger *slog.Logger) (*Engine, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}
	mode, err := length.ParseMode(cfg.Analysis.LengthMode)
	if err != nil {
		return nil, fmt.Errorf("creating engine: %w", err)
	}
	return &Engine{
		threshold: max(cfg.Analysis.Threshold, 0),
		mode:      mode,
		timeout:   time.Duration(cfg.Analysis.TimeoutMS) * time.Millisecond,
		maxBytes:  cfg.Analysis.MaxSourceBytes,
		rank:      cfg.Graph.Rank,
		logger:    logger,
	}, nil
}

// Threshold returns the length threshold used by Analyze.
func (e *Engine) Threshold() int { return e.threshold }

// Mode returns the length mode used by Analyze.
func (e *Engine) Mode() length.Mode { return e.mode }

// Fingerprint identifies the settings that affect a report, for cache keys.
func (e *Engine) Fingerprint() string {
	return fmt.Sprintf("threshold=%d;mode=%s;max=%d;rank=%t", e.threshold, e.mode, e.maxBytes, e.rank)
}

// Parse parses source under the configured deadline. Each call uses its own
// parser, so concurrent calls are independent.
func (e *Engine) Parse(ctx context.Context, source []byte) (*syntax.Tree, error) {
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}
	tree, err := parse.Parse(ctx, source,
		parse.WithMaxSourceBytes(e.maxBytes),
		parse.WithLogger(e.logger),
	)
	if err != nil {
		e.logger.Debug("parse failed", slog.String("error", err.Error()))
		return nil, err
	}
	return tree, nil
}

// CatalogFunctions lists every function definition in tree.
func (e *Engine) CatalogFunctions(tree *syntax.Tree) []model.FunctionRecord {
	return guard(e, "catalog", []model.FunctionRecord{}, func() []model.FunctionRecord {
		return catalog.Functions(tree)
	})
}

// FindUsages returns the ascending lines on which name is referenced.
func (e *Engine) FindUsages(tree *syntax.Tree, name string) []int {
	return guard(e, "usages", []int{}, func() []int {
		return usage.Find(tree, name)
	})
}

// FindLongFunctions returns the records longer than threshold.
func (e *Engine) FindLongFunctions(records []model.FunctionRecord, threshold int) []model.LongFunction {
	return guard(e, "length", []model.LongFunction{}, func() []model.LongFunction {
		return length.FindLongFunctions(records, threshold, e.mode)
	})
}

// BuildCallGraph returns the direct name calls between catalog functions.
func (e *Engine) BuildCallGraph(tree *syntax.Tree, records []model.FunctionRecord) model.CallGraph {
	empty := model.CallGraph{Nodes: []string{}, Edges: []model.CallEdge{}}
	return guard(e, "callgraph", empty, func() model.CallGraph {
		return graph.BuildCallGraph(tree, records)
	})
}

// Analyze parses source once and runs every analysis over the tree. A parse
// failure is recorded in the report, which then carries empty results.
func (e *Engine) Analyze(ctx context.Context, source []byte, req Request) *model.Report {
	rep := &model.Report{
		Source:        req.Label,
		Threshold:     e.threshold,
		Functions:     []model.FunctionRecord{},
		Usages:        []model.Usage{},
		LongFunctions: []model.LongFunction{},
		CallGraph:     model.CallGraph{Nodes: []string{}, Edges: []model.CallEdge{}},
		Cycles:        [][]string{},
		Unresolved:    []string{},
	}

	tree, err := e.Parse(ctx, source)
	if err != nil {
		rep.ParseError = err.Error()
	} else {
		rep.Parsed = true
		rep.Lines = tree.LineCount()
	}

	var g errgroup.Group
	g.Go(func() error {
		rep.Usages = e.usages(tree, req.Usages)
		return nil
	})
	g.Go(func() error {
		rep.Functions = e.CatalogFunctions(tree)

		var inner errgroup.Group
		inner.Go(func() error {
			rep.LongFunctions = e.FindLongFunctions(rep.Functions, e.threshold)
			return nil
		})
		inner.Go(func() error {
			rep.Unresolved = guard(e, "unresolved", []string{}, func() []string {
				return graph.Unresolved(tree, rep.Functions)
			})
			return nil
		})
		inner.Go(func() error {
			rep.CallGraph = e.BuildCallGraph(tree, rep.Functions)
			rep.Cycles = guard(e, "cycles", [][]string{}, func() [][]string {
				return graph.Cycles(rep.CallGraph)
			})
			if e.rank {
				rep.Ranks = guard(e, "rank", []model.FunctionRank{}, func() []model.FunctionRank {
					return graph.Ranked(rep.CallGraph)
				})
			}
			return nil
		})
		return inner.Wait()
	})
	_ = g.Wait()

	return rep
}

// usages looks up each distinct requested name in one index of the tree.
func (e *Engine) usages(tree *syntax.Tree, names []string) []model.Usage {
	out := make([]model.Usage, 0, len(names))
	if len(names) == 0 {
		return out
	}
	idx := guard(e, "usages", model.UsageIndex{}, func() model.UsageIndex {
		return usage.Index(tree)
	})
	seen := make(map[string]struct{}, len(names))
	for _, name := range names {
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, model.Usage{Name: name, Lines: usage.Lookup(idx, name)})
	}
	return out
}

// guard runs fn and returns empty if it panics.
func guard[T any](e *Engine, op string, empty T, fn func() T) (out T) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("analysis failed",
				slog.String("op", op),
				slog.Any("panic", r),
			)
			out = empty
		}
	}()
	return fn()
}

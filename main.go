// codelens reports the functions, identifier usages, long functions and call
// graph of Python source.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"strconv"
	"syscall"

	"github.com/schollz/progressbar/v3"
	"github.com/sourcegraph/conc/pool"
	"github.com/urfave/cli/v2"

	"github.com/phobologic/codelens/internal/cache"
	"github.com/phobologic/codelens/internal/config"
	"github.com/phobologic/codelens/internal/discover"
	"github.com/phobologic/codelens/internal/engine"
	"github.com/phobologic/codelens/internal/graph"
	"github.com/phobologic/codelens/internal/mcpserver"
	"github.com/phobologic/codelens/internal/model"
	"github.com/phobologic/codelens/internal/output"
	"github.com/phobologic/codelens/internal/ranking"
)

var version = "dev"

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdout, stderr io.Writer) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return newApp(stdout, stderr).RunContext(ctx, append([]string{"codelens"}, args...))
}

func newApp(stdout, stderr io.Writer) *cli.App {
	return &cli.App{
		Name:    "codelens",
		Usage:   "Static analysis of Python source",
		Version: version,
		Description: `codelens parses Python source and reports its function definitions,
where identifiers are used, which functions are too long and which
functions call which.

Settings are read from codelens.toml (or .yaml/.json) in the current
directory; flags override them.`,
		Writer:    stdout,
		ErrWriter: stderr,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to config file (TOML, YAML, or JSON)",
				EnvVars: []string{"CODELENS_CONFIG"},
			},
			&cli.StringFlag{
				Name:    "format",
				Aliases: []string{"f"},
				Usage:   "Output format: text, json, markdown, toon",
			},
			&cli.BoolFlag{
				Name:  "no-color",
				Usage: "Disable colored text output",
			},
			&cli.BoolFlag{
				Name:  "no-cache",
				Usage: "Disable the report cache",
			},
			&cli.BoolFlag{
				Name:  "verbose",
				Usage: "Log debug output to stderr",
			},
		},
		Commands: []*cli.Command{
			analyzeCmd(),
			scanCmd(),
			graphCmd(),
			mcpCmd(),
			initCmd(),
			cacheCmd(),
		},
	}
}

// analysisFlags returns the flags shared by the analyzing commands. Flags
// carry parse state, so each command gets its own.
func analysisFlags() []cli.Flag {
	return []cli.Flag{
		&cli.IntFlag{
			Name:    "threshold",
			Aliases: []string{"t"},
			Usage:   "Report functions longer than this many lines",
		},
		&cli.StringFlag{
			Name:  "mode",
			Usage: "Length measure: span (def line to last line) or body",
		},
		&cli.StringSliceFlag{
			Name:    "usage",
			Aliases: []string{"u"},
			Usage:   "Identifier to find usages of (repeatable)",
		},
		&cli.IntFlag{
			Name:  "top",
			Usage: "Keep only the N most central functions",
		},
		&cli.StringFlag{
			Name:  "focus",
			Usage: "Keep functions matching this name and their direct callers and callees",
		},
	}
}

func analyzeCmd() *cli.Command {
	return &cli.Command{
		Name:      "analyze",
		Usage:     "Analyze one Python file, or stdin",
		ArgsUsage: "[file|-]",
		Flags:     analysisFlags(),
		Action: func(c *cli.Context) error {
			st, err := loadSettings(c)
			if err != nil {
				return err
			}
			a, err := st.analyzer()
			if err != nil {
				return err
			}
			label, source, err := readInput(c)
			if err != nil {
				return err
			}
			rep := narrow(a.analyze(c.Context, label, source), c.String("focus"), st.cfg.Graph.Top)
			return output.Write(c.App.Writer, rep, st.format, st.colored)
		},
	}
}

func graphCmd() *cli.Command {
	flags := append([]cli.Flag{
		&cli.StringFlag{
			Name:  "name",
			Value: "callgraph",
			Usage: "Graph name in the DOT output",
		},
	}, analysisFlags()...)

	return &cli.Command{
		Name:      "graph",
		Usage:     "Print the call graph of one Python file in Graphviz DOT",
		ArgsUsage: "[file|-]",
		Flags:     flags,
		Action: func(c *cli.Context) error {
			st, err := loadSettings(c)
			if err != nil {
				return err
			}
			a, err := st.analyzer()
			if err != nil {
				return err
			}
			label, source, err := readInput(c)
			if err != nil {
				return err
			}
			rep := a.analyze(c.Context, label, source)
			if !rep.Parsed {
				return fmt.Errorf("%s: input did not parse: %s", label, rep.ParseError)
			}
			rep = narrow(rep, c.String("focus"), st.cfg.Graph.Top)

			long := make(map[string]struct{}, len(rep.LongFunctions))
			for _, lf := range rep.LongFunctions {
				long[lf.Name] = struct{}{}
			}
			out, err := graph.MarshalDOT(rep.CallGraph, c.String("name"), graph.DOTOptions{Highlight: long})
			if err != nil {
				return fmt.Errorf("encoding dot: %w", err)
			}
			_, err = fmt.Fprintln(c.App.Writer, string(out))
			return err
		},
	}
}

func scanCmd() *cli.Command {
	flags := append([]cli.Flag{
		&cli.IntFlag{
			Name:    "workers",
			Aliases: []string{"j"},
			Usage:   "Files analyzed in parallel (0 = number of CPUs)",
		},
		&cli.StringFlag{
			Name:  "path",
			Usage: "Keep only files whose path contains this text",
		},
		&cli.BoolFlag{
			Name:  "skip-tests",
			Usage: "Skip test modules and test directories",
		},
		&cli.BoolFlag{
			Name:  "no-gitignore",
			Usage: "Include files git would ignore",
		},
		&cli.BoolFlag{
			Name:    "quiet",
			Aliases: []string{"q"},
			Usage:   "Hide the progress bar",
		},
	}, analysisFlags()...)

	return &cli.Command{
		Name:      "scan",
		Usage:     "Analyze every Python file under a directory",
		ArgsUsage: "[dir]",
		Flags:     flags,
		Action:    runScan,
	}
}

func runScan(c *cli.Context) error {
	st, err := loadSettings(c)
	if err != nil {
		return err
	}
	a, err := st.analyzer()
	if err != nil {
		return err
	}

	root := "."
	if c.Args().Len() > 0 {
		root = c.Args().First()
	}
	root, err = filepath.Abs(root)
	if err != nil {
		return fmt.Errorf("resolving root: %w", err)
	}
	info, err := os.Stat(root)
	if err != nil {
		return fmt.Errorf("root path: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%s: not a directory", root)
	}

	files, err := discover.Files(root, discover.Options{
		Gitignore: st.cfg.Scan.Gitignore,
		SkipTests: st.cfg.Scan.SkipTests,
	})
	if err != nil {
		return fmt.Errorf("discovering files: %w", err)
	}
	if len(files) == 0 {
		return fmt.Errorf("no Python files found")
	}

	files = filterBySize(files, st.cfg.Analysis.MaxSourceBytes, c.App.ErrWriter)
	if len(files) == 0 {
		return fmt.Errorf("no Python files found (all exceeded size limit)")
	}

	bar := progressbar.NewOptions(len(files),
		progressbar.OptionSetWriter(c.App.ErrWriter),
		progressbar.OptionSetVisibility(!c.Bool("quiet")),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWidth(30),
		progressbar.OptionSetDescription("analyzing"),
		progressbar.OptionClearOnFinish(),
	)
	reps := a.analyzeFiles(c.Context, root, files, st.cfg.Scan.Workers, func() { _ = bar.Add(1) })
	_ = bar.Finish()

	if substr := c.String("path"); substr != "" {
		reps = ranking.FilterByPath(reps, substr)
	}
	for i := range reps {
		reps[i] = narrow(reps[i], c.String("focus"), st.cfg.Graph.Top)
	}
	return output.WriteAll(c.App.Writer, reps, st.format, st.colored)
}

func mcpCmd() *cli.Command {
	return &cli.Command{
		Name:  "mcp",
		Usage: "Serve the analyses as MCP tools over stdio",
		Action: func(c *cli.Context) error {
			st, err := loadSettings(c)
			if err != nil {
				return err
			}
			eng, err := engine.New(st.cfg, st.logger)
			if err != nil {
				return err
			}
			return mcpserver.NewServer(version, eng, st.logger).Run(c.Context)
		},
	}
}

func cacheCmd() *cli.Command {
	return &cli.Command{
		Name:  "cache",
		Usage: "Manage the report cache",
		Subcommands: []*cli.Command{
			{
				Name:  "clear",
				Usage: "Remove every cached report",
				Action: func(c *cli.Context) error {
					st, err := loadSettings(c)
					if err != nil {
						return err
					}
					store, err := cache.New(st.cfg.Cache.Dir, st.cfg.Cache.TTL, true)
					if err != nil {
						return err
					}
					if err := store.Clear(); err != nil {
						return fmt.Errorf("clearing cache: %w", err)
					}
					_, _ = fmt.Fprintf(c.App.ErrWriter, "cleared %s\n", st.cfg.Cache.Dir)
					return nil
				},
			},
		},
	}
}

// settings is the resolved configuration of one command run.
type settings struct {
	cfg     *config.Config
	format  output.Format
	colored bool
	logger  *slog.Logger
}

func loadSettings(c *cli.Context) (*settings, error) {
	logger := newLogger(c.App.ErrWriter, c.Bool("verbose"))

	var cfg *config.Config
	var err error
	if path := c.String("config"); path != "" {
		cfg, err = config.Load(path)
	} else {
		var path string
		cfg, path, err = config.LoadOrDefault(".")
		if path != "" {
			logger.Debug("loaded config", "path", path)
		}
	}
	if err != nil {
		return nil, err
	}
	if err := applyFlags(c, cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	format, err := output.ParseFormat(cfg.Output.Format)
	if err != nil {
		return nil, err
	}
	return &settings{
		cfg:     cfg,
		format:  format,
		colored: cfg.Output.Color && !c.Bool("no-color"),
		logger:  logger,
	}, nil
}

// applyFlags overrides cfg with the flags given on the command line.
func applyFlags(c *cli.Context, cfg *config.Config) error {
	if c.IsSet("format") {
		format, err := output.ParseFormat(c.String("format"))
		if err != nil {
			return err
		}
		cfg.Output.Format = string(format)
	}
	if c.IsSet("threshold") {
		cfg.Analysis.Threshold = c.Int("threshold")
	}
	if c.IsSet("mode") {
		cfg.Analysis.LengthMode = c.String("mode")
	}
	if c.IsSet("usage") {
		cfg.Analysis.Usages = c.StringSlice("usage")
	}
	if c.IsSet("top") {
		cfg.Graph.Top = c.Int("top")
	}
	if c.IsSet("workers") {
		cfg.Scan.Workers = c.Int("workers")
	}
	if c.Bool("skip-tests") {
		cfg.Scan.SkipTests = true
	}
	if c.Bool("no-gitignore") {
		cfg.Scan.Gitignore = false
	}
	if c.Bool("no-cache") {
		cfg.Cache.Enabled = false
	}
	return nil
}

func newLogger(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

func (st *settings) analyzer() (*analyzer, error) {
	eng, err := engine.New(st.cfg, st.logger)
	if err != nil {
		return nil, err
	}
	store, err := cache.New(st.cfg.Cache.Dir, st.cfg.Cache.TTL, st.cfg.Cache.Enabled)
	if err != nil {
		return nil, err
	}
	return &analyzer{eng: eng, store: store, usages: st.cfg.Analysis.Usages, logger: st.logger}, nil
}

// analyzer runs the engine behind the report cache.
type analyzer struct {
	eng    *engine.Engine
	store  *cache.Cache
	usages []string
	logger *slog.Logger
}

// key identifies a report by settings, label, requested usages and source.
// Each usage is its own key part so a name containing a comma cannot
// collide with two separate names.
func (a *analyzer) key(label string, source []byte) string {
	parts := make([]string, 0, len(a.usages)+3)
	parts = append(parts, a.eng.Fingerprint(), label, strconv.Itoa(len(a.usages)))
	return cache.Key(source, append(parts, a.usages...)...)
}

func (a *analyzer) analyze(ctx context.Context, label string, source []byte) *model.Report {
	key := a.key(label, source)
	if rep, ok := a.store.Get(key); ok {
		a.logger.Debug("cache hit", "source", label)
		return rep
	}

	rep := a.eng.Analyze(ctx, source, engine.Request{Label: label, Usages: a.usages})
	// A canceled parse says nothing about the source.
	if ctx.Err() != nil {
		return rep
	}
	if err := a.store.Set(key, rep); err != nil {
		a.logger.Warn("caching report", "source", label, "err", err)
	}
	return rep
}

// analyzeFiles analyzes files under root with a bounded pool. Reports keep
// the order of files; files that cannot be read are left out.
func (a *analyzer) analyzeFiles(ctx context.Context, root string, files []discover.FileEntry, workers int, tick func()) []*model.Report {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	indexed := make([]*model.Report, len(files))
	p := pool.New().WithMaxGoroutines(workers)
	for i, f := range files {
		p.Go(func() {
			defer tick()
			source, err := os.ReadFile(filepath.Join(root, f.Path))
			if err != nil {
				a.logger.Warn("skipping file", "path", f.Path, "err", err)
				return
			}
			indexed[i] = a.analyze(ctx, f.Path, source)
		})
	}
	p.Wait()

	reps := make([]*model.Report, 0, len(files))
	for _, rep := range indexed {
		if rep != nil {
			reps = append(reps, rep)
		}
	}
	return reps
}

func filterBySize(files []discover.FileEntry, maxSize int, stderr io.Writer) []discover.FileEntry {
	var kept []discover.FileEntry
	for _, f := range files {
		if f.Size > int64(maxSize) {
			_, _ = fmt.Fprintf(stderr, "Warning: %s: skipped (>%d bytes)\n", f.Path, maxSize)
			continue
		}
		kept = append(kept, f)
	}
	return kept
}

func readInput(c *cli.Context) (string, []byte, error) {
	path := c.Args().First()
	if path == "" || path == "-" {
		source, err := io.ReadAll(c.App.Reader)
		if err != nil {
			return "", nil, fmt.Errorf("reading stdin: %w", err)
		}
		return "<stdin>", source, nil
	}
	source, err := os.ReadFile(path)
	if err != nil {
		return "", nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return path, source, nil
}

// narrow applies --focus and --top to a report.
func narrow(rep *model.Report, focus string, top int) *model.Report {
	if focus != "" {
		rep = ranking.FilterBySymbol(rep, focus)
	}
	return ranking.SelectFunctions(rep, top)
}

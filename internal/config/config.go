// Package config loads codelens settings from TOML, YAML or JSON files.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/phobologic/codelens/internal/length"
)

// Config holds all configuration options for codelens.
type Config struct {
	Analysis AnalysisConfig `koanf:"analysis"`
	Graph    GraphConfig    `koanf:"graph"`
	Scan     ScanConfig     `koanf:"scan"`
	Cache    CacheConfig    `koanf:"cache"`
	Output   OutputConfig   `koanf:"output"`
}

// AnalysisConfig controls the per-source analyses.
type AnalysisConfig struct {
	Threshold      int      `koanf:"threshold"`
	LengthMode     string   `koanf:"length_mode"` // span or body
	TimeoutMS      int      `koanf:"timeout_ms"`  // 0 disables the parse deadline
	MaxSourceBytes int      `koanf:"max_source_bytes"`
	Usages         []string `koanf:"usages"`
}

// GraphConfig controls call graph post-processing.
type GraphConfig struct {
	Rank bool `koanf:"rank"`
	Top  int  `koanf:"top"` // 0 keeps every function
}

// ScanConfig controls batch scans over a directory.
type ScanConfig struct {
	Workers   int  `koanf:"workers"` // 0 means GOMAXPROCS
	Gitignore bool `koanf:"gitignore"`
	SkipTests bool `koanf:"skip_tests"`
}

// CacheConfig controls report caching.
type CacheConfig struct {
	Enabled bool   `koanf:"enabled"`
	Dir     string `koanf:"dir"`
	TTL     int    `koanf:"ttl"` // hours
}

// OutputConfig controls output formatting.
type OutputConfig struct {
	Format string `koanf:"format"` // text, json, markdown, toon
	Color  bool   `koanf:"color"`
}

// FileNames are the config file names searched by LoadOrDefault, in order.
var FileNames = []string{
	"codelens.toml",
	"codelens.yaml",
	"codelens.yml",
	"codelens.json",
	".codelens.toml",
	".codelens.yaml",
	".codelens.yml",
	".codelens.json",
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Analysis: AnalysisConfig{
			Threshold:      50,
			LengthMode:     string(length.ModeSpan),
			TimeoutMS:      5000,
			MaxSourceBytes: 1_000_000,
		},
		Graph: GraphConfig{
			Rank: true,
		},
		Scan: ScanConfig{
			Gitignore: true,
		},
		Cache: CacheConfig{
			Enabled: false,
			Dir:     ".codelens/cache",
			TTL:     24,
		},
		Output: OutputConfig{
			Format: "text",
			Color:  true,
		},
	}
}

// Load reads path over the defaults. The parser is chosen by extension;
// unknown extensions are read as TOML.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	cfg := DefaultConfig()

	var parser koanf.Parser
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		parser = yaml.Parser()
	case ".json":
		parser = json.Parser()
	default:
		parser = toml.Parser()
	}

	if err := k.Load(file.Provider(path), parser); err != nil {
		return nil, fmt.Errorf("loading %s: %w", path, err)
	}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// LoadOrDefault loads the first config file found in dir, or returns the
// defaults when there is none. The path of the loaded file is returned, or
// "" for defaults. A file that exists but fails to load is an error.
func LoadOrDefault(dir string) (*Config, string, error) {
	for _, name := range FileNames {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err != nil {
			continue
		}
		cfg, err := Load(path)
		if err != nil {
			return nil, "", err
		}
		return cfg, path, nil
	}
	return DefaultConfig(), "", nil
}

// MarshalTOML encodes c in the layout Load reads.
func (c *Config) MarshalTOML() ([]byte, error) {
	analysis := map[string]interface{}{
		"threshold":        c.Analysis.Threshold,
		"length_mode":      c.Analysis.LengthMode,
		"timeout_ms":       c.Analysis.TimeoutMS,
		"max_source_bytes": c.Analysis.MaxSourceBytes,
	}
	if len(c.Analysis.Usages) > 0 {
		analysis["usages"] = c.Analysis.Usages
	}
	return toml.Parser().Marshal(map[string]interface{}{
		"analysis": analysis,
		"graph": map[string]interface{}{
			"rank": c.Graph.Rank,
			"top":  c.Graph.Top,
		},
		"scan": map[string]interface{}{
			"workers":    c.Scan.Workers,
			"gitignore":  c.Scan.Gitignore,
			"skip_tests": c.Scan.SkipTests,
		},
		"cache": map[string]interface{}{
			"enabled": c.Cache.Enabled,
			"dir":     c.Cache.Dir,
			"ttl":     c.Cache.TTL,
		},
		"output": map[string]interface{}{
			"format": c.Output.Format,
			"color":  c.Output.Color,
		},
	})
}

// Validate reports every invalid setting.
func (c *Config) Validate() error {
	var errs []error
	if c.Analysis.Threshold < 0 {
		errs = append(errs, fmt.Errorf("analysis.threshold must be >= 0, got %d", c.Analysis.Threshold))
	}
	if _, err := length.ParseMode(c.Analysis.LengthMode); err != nil {
		errs = append(errs, fmt.Errorf("analysis.length_mode: %w", err))
	}
	if c.Analysis.TimeoutMS < 0 {
		errs = append(errs, fmt.Errorf("analysis.timeout_ms must be >= 0, got %d", c.Analysis.TimeoutMS))
	}
	if c.Analysis.MaxSourceBytes <= 0 {
		errs = append(errs, fmt.Errorf("analysis.max_source_bytes must be > 0, got %d", c.Analysis.MaxSourceBytes))
	}
	if c.Graph.Top < 0 {
		errs = append(errs, fmt.Errorf("graph.top must be >= 0, got %d", c.Graph.Top))
	}
	if c.Scan.Workers < 0 {
		errs = append(errs, fmt.Errorf("scan.workers must be >= 0, got %d", c.Scan.Workers))
	}
	if c.Cache.TTL < 0 {
		errs = append(errs, fmt.Errorf("cache.ttl must be >= 0, got %d", c.Cache.TTL))
	}
	switch c.Output.Format {
	case "text", "json", "markdown", "toon":
	default:
		errs = append(errs, fmt.Errorf("output.format %q is not one of text, json, markdown, toon", c.Output.Format))
	}
	return errors.Join(errs...)
}

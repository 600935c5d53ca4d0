package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefaultConfig(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	require.NotNil(t, cfg)
	assert.Equal(t, 50, cfg.Analysis.Threshold)
	assert.Equal(t, "span", cfg.Analysis.LengthMode)
	assert.Equal(t, 5000, cfg.Analysis.TimeoutMS)
	assert.True(t, cfg.Graph.Rank)
	assert.True(t, cfg.Scan.Gitignore)
	assert.False(t, cfg.Cache.Enabled)
	assert.Equal(t, "text", cfg.Output.Format)
	assert.NoError(t, cfg.Validate())
}

func TestLoadTOML(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, t.TempDir(), "codelens.toml", `
[analysis]
threshold = 20
length_mode = "body"
usages = ["config", "logger"]

[graph]
top = 5

[output]
format = "json"
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 20, cfg.Analysis.Threshold)
	assert.Equal(t, "body", cfg.Analysis.LengthMode)
	assert.Equal(t, []string{"config", "logger"}, cfg.Analysis.Usages)
	assert.Equal(t, 5, cfg.Graph.Top)
	assert.Equal(t, "json", cfg.Output.Format)

	// untouched sections keep their defaults
	assert.Equal(t, 5000, cfg.Analysis.TimeoutMS)
	assert.True(t, cfg.Graph.Rank)
}

func TestLoadYAML(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, t.TempDir(), "codelens.yaml", `
analysis:
  threshold: 30
scan:
  workers: 4
  gitignore: false
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 30, cfg.Analysis.Threshold)
	assert.Equal(t, 4, cfg.Scan.Workers)
	assert.False(t, cfg.Scan.Gitignore)
}

func TestLoadJSON(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, t.TempDir(), "codelens.json", `{
  "cache": {"enabled": true, "dir": "/tmp/cl", "ttl": 2},
  "output": {"format": "toon", "color": false}
}`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.True(t, cfg.Cache.Enabled)
	assert.Equal(t, "/tmp/cl", cfg.Cache.Dir)
	assert.Equal(t, 2, cfg.Cache.TTL)
	assert.Equal(t, "toon", cfg.Output.Format)
	assert.False(t, cfg.Output.Color)
}

func TestLoadMissing(t *testing.T) {
	t.Parallel()

	_, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	assert.Error(t, err)
}

func TestLoadInvalid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		content string
	}{
		{"negative threshold", "[analysis]\nthreshold = -1\n"},
		{"unknown mode", "[analysis]\nlength_mode = \"tokens\"\n"},
		{"unknown format", "[output]\nformat = \"xml\"\n"},
		{"zero source limit", "[analysis]\nmax_source_bytes = 0\n"},
		{"malformed", "[analysis\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			path := writeConfig(t, t.TempDir(), "codelens.toml", tt.content)
			_, err := Load(path)
			assert.Error(t, err)
		})
	}
}

func TestLoadOrDefault(t *testing.T) {
	t.Parallel()

	t.Run("none", func(t *testing.T) {
		t.Parallel()
		cfg, path, err := LoadOrDefault(t.TempDir())
		require.NoError(t, err)
		assert.Empty(t, path)
		assert.Equal(t, DefaultConfig(), cfg)
	})

	t.Run("dotfile", func(t *testing.T) {
		t.Parallel()
		dir := t.TempDir()
		want := writeConfig(t, dir, ".codelens.yml", "analysis:\n  threshold: 7\n")
		cfg, path, err := LoadOrDefault(dir)
		require.NoError(t, err)
		assert.Equal(t, want, path)
		assert.Equal(t, 7, cfg.Analysis.Threshold)
	})

	t.Run("precedence", func(t *testing.T) {
		t.Parallel()
		dir := t.TempDir()
		writeConfig(t, dir, "codelens.json", `{"analysis": {"threshold": 2}}`)
		writeConfig(t, dir, "codelens.toml", "[analysis]\nthreshold = 1\n")
		cfg, _, err := LoadOrDefault(dir)
		require.NoError(t, err)
		assert.Equal(t, 1, cfg.Analysis.Threshold)
	})

	t.Run("broken file is an error", func(t *testing.T) {
		t.Parallel()
		dir := t.TempDir()
		writeConfig(t, dir, "codelens.toml", "[analysis\n")
		_, _, err := LoadOrDefault(dir)
		assert.Error(t, err)
	})
}

func TestMarshalTOMLRoundTrip(t *testing.T) {
	t.Parallel()

	want := DefaultConfig()
	want.Analysis.Threshold = 12
	want.Analysis.Usages = []string{"session"}
	want.Scan.SkipTests = true
	want.Output.Color = false

	data, err := want.MarshalTOML()
	require.NoError(t, err)
	assert.Contains(t, string(data), "skip_tests = true")

	path := writeConfig(t, t.TempDir(), "codelens.toml", string(data))
	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

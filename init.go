package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/phobologic/codelens/internal/config"
)

const (
	sentinelStart = "<!-- codelens:start -->"
	sentinelEnd   = "<!-- codelens:end -->"
)

func initCmd() *cli.Command {
	return &cli.Command{
		Name:  "init",
		Usage: "Write a default codelens.toml",
		Description: `Creates a codelens.toml with the default settings. With --guide, also
writes a codelens usage section to an agent instructions file such as
CLAUDE.md. The section is wrapped in sentinel comments so it can be
updated in place on subsequent runs without touching surrounding content.`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Value:   "codelens.toml",
				Usage:   "Config file path",
			},
			&cli.BoolFlag{
				Name:  "force",
				Usage: "Overwrite an existing config file",
			},
			&cli.StringFlag{
				Name:  "guide",
				Usage: "Also write the usage section to this file (e.g. CLAUDE.md)",
			},
			&cli.BoolFlag{
				Name:  "dry-run",
				Usage: "Print what would be written without modifying any file",
			},
		},
		Action: runInit,
	}
}

func runInit(c *cli.Context) error {
	stdout, stderr := c.App.Writer, c.App.ErrWriter
	dryRun := c.Bool("dry-run")

	content, err := generateConfig()
	if err != nil {
		return err
	}

	path := c.String("output")
	if dryRun {
		_, _ = fmt.Fprint(stdout, content)
	} else {
		if _, err := os.Stat(path); err == nil && !c.Bool("force") {
			return fmt.Errorf("config file %q already exists (use --force to overwrite)", path)
		}
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return fmt.Errorf("creating %s: %w", dir, err)
			}
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			return fmt.Errorf("writing %s: %w", path, err)
		}
		_, _ = fmt.Fprintf(stderr, "wrote %s\n", path)
	}

	guide := c.String("guide")
	if guide == "" {
		return nil
	}
	existing, _ := os.ReadFile(guide)
	updated := applySection(string(existing), generateSection())
	if dryRun {
		_, _ = fmt.Fprint(stdout, updated)
		return nil
	}
	if err := os.WriteFile(guide, []byte(updated), 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", guide, err)
	}
	_, _ = fmt.Fprintf(stderr, "wrote codelens section to %s\n", guide)
	return nil
}

// generateConfig returns the default config as commented TOML.
func generateConfig() (string, error) {
	data, err := config.DefaultConfig().MarshalTOML()
	if err != nil {
		return "", fmt.Errorf("encoding default config: %w", err)
	}

	var b strings.Builder
	b.WriteString("# codelens configuration\n")
	b.WriteString("# analysis.length_mode is span (def line to last line) or body.\n")
	b.WriteString("# output.format is text, json, markdown or toon.\n\n")
	b.Write(data)
	return b.String(), nil
}

// generateSection returns the full sentinel-wrapped codelens documentation block.
func generateSection() string {
	body := `## codelens: Python structure

Use ` + "`codelens`" + ` via the Bash tool before reading a large Python module. It
lists the functions of a file, where a name is used and which functions call
which, without reading the whole file.

**Availability:** Check with ` + "`codelens --version`" + ` first; skip gracefully if
not found.

**Run it:**
` + "```" + `bash
codelens analyze app.py                  # functions, long functions, calls
codelens analyze -u session app.py       # plus every line that uses session
codelens analyze --focus handle app.py   # only handle and its callers/callees
codelens -f toon scan src/               # every file under src/, compact
codelens scan --skip-tests --top 10 .    # 10 most central functions per file
codelens graph app.py | dot -Tsvg        # call graph as Graphviz
` + "```" + `

**All flags:** ` + "`codelens --help`" + `

**How to use the output:**

1. **Read functions by line range.** The function table gives start and end
   lines; read only the range you need.

2. **Use usages instead of Grep for a name in one file.** Usage lines count
   reads, writes and deletes of the bare name, not attributes or strings.

3. **Calls are resolved by bare name only.** Method calls and calls through
   variables do not appear; names defined elsewhere are listed as unresolved.`

	return sentinelStart + "\n" + body + "\n" + sentinelEnd
}

// applySection inserts section into content, replacing an existing sentinel
// block if present or appending if not. It is a pure function for easy testing.
func applySection(content, section string) string {
	start := strings.Index(content, sentinelStart)
	end := strings.Index(content, sentinelEnd)

	if start >= 0 && end > start {
		return content[:start] + section + content[end+len(sentinelEnd):]
	}

	// Append, ensuring a blank line separator.
	if len(content) > 0 && !strings.HasSuffix(content, "\n") {
		content += "\n"
	}
	return content + "\n" + section + "\n"
}

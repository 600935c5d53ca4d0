// Package output renders analysis reports as text, JSON, Markdown or TOON.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"
	toon "github.com/toon-format/toon-go"

	"github.com/phobologic/codelens/internal/model"
)

// Format is an output format.
type Format string

const (
	FormatText     Format = "text"
	FormatJSON     Format = "json"
	FormatMarkdown Format = "markdown"
	FormatTOON     Format = "toon"
)

// ParseFormat converts a string to a Format.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "text":
		return FormatText, nil
	case "json":
		return FormatJSON, nil
	case "markdown", "md":
		return FormatMarkdown, nil
	case "toon":
		return FormatTOON, nil
	default:
		return "", fmt.Errorf("unknown format %q (want text, json, markdown or toon)", s)
	}
}

// Write renders one report.
func Write(w io.Writer, rep *model.Report, format Format, colored bool) error {
	switch format {
	case FormatJSON:
		return writeJSON(w, rep)
	case FormatTOON:
		return writeTOON(w, rep)
	case FormatMarkdown:
		return writeMarkdown(w, rep)
	default:
		return writeText(w, rep, colored)
	}
}

// WriteAll renders the reports of a batch scan, in order. JSON and TOON
// produce a single document; text and Markdown concatenate the reports and
// end with a summary.
func WriteAll(w io.Writer, reps []*model.Report, format Format, colored bool) error {
	switch format {
	case FormatJSON:
		return writeJSON(w, reps)
	case FormatTOON:
		return writeTOON(w, struct {
			Reports []*model.Report `toon:"reports"`
		}{reps})
	}
	for _, rep := range reps {
		if err := Write(w, rep, format, colored); err != nil {
			return err
		}
	}
	s := Summarize(reps)
	line := fmt.Sprintf("%d files, %d failed to parse, %d functions, %d long", s.Files, s.Failed, s.Functions, s.Long)
	if format == FormatMarkdown {
		_, err := fmt.Fprintf(w, "**Summary:** %s\n", line)
		return err
	}
	if colored {
		color.New(color.Bold).Fprintln(w, line)
		return nil
	}
	_, err := fmt.Fprintln(w, line)
	return err
}

// Summary counts the results of a batch scan.
type Summary struct {
	Files     int `json:"files"`
	Failed    int `json:"failed"`
	Functions int `json:"functions"`
	Long      int `json:"long"`
}

// Summarize totals reps.
func Summarize(reps []*model.Report) Summary {
	s := Summary{Files: len(reps)}
	for _, rep := range reps {
		if !rep.Parsed {
			s.Failed++
		}
		s.Functions += len(rep.Functions)
		s.Long += len(rep.LongFunctions)
	}
	return s
}

// Marshal encodes data as TOON with the indentation used by every renderer.
func Marshal(data any) (string, error) {
	out, err := toon.Marshal(data, toon.WithIndent(2))
	if err != nil {
		return "", err
	}
	return string(out), nil
}

func writeJSON(w io.Writer, data any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(data)
}

func writeTOON(w io.Writer, data any) error {
	out, err := Marshal(data)
	if err != nil {
		return fmt.Errorf("encoding toon: %w", err)
	}
	_, err = fmt.Fprintln(w, out)
	return err
}

func writeText(w io.Writer, rep *model.Report, colored bool) error {
	heading(w, displayName(rep), colored)

	if !rep.Parsed {
		msg := "input did not parse: " + rep.ParseError
		if colored {
			color.New(color.FgRed).Fprintln(w, msg)
		} else {
			fmt.Fprintln(w, msg)
		}
		fmt.Fprintln(w)
		return nil
	}

	long := longSet(rep)
	rows := make([][]string, 0, len(rep.Functions))
	for _, f := range rep.Functions {
		mark := ""
		if _, ok := long[defKey(f.Name, f.StartLine)]; ok {
			mark = "long"
			if colored {
				mark = color.YellowString(mark)
			}
		}
		rows = append(rows, []string{
			f.Qualified,
			strconv.Itoa(f.StartLine),
			strconv.Itoa(f.EndLine),
			strconv.Itoa(f.Length()),
			mark,
		})
	}
	fmt.Fprintf(w, "Functions (%d, threshold %d)\n", len(rep.Functions), rep.Threshold)
	table(w, []string{"Function", "Start", "End", "Lines", ""}, rows)

	if len(rep.Usages) > 0 {
		rows = rows[:0]
		for _, u := range rep.Usages {
			rows = append(rows, []string{u.Name, joinInts(u.Lines)})
		}
		fmt.Fprintln(w, "Usages")
		table(w, []string{"Name", "Lines"}, rows)
	}

	if len(rep.CallGraph.Edges) > 0 {
		rows = rows[:0]
		for _, e := range rep.CallGraph.Edges {
			rows = append(rows, []string{e.Caller, e.Callee})
		}
		fmt.Fprintln(w, "Calls")
		table(w, []string{"Caller", "Callee"}, rows)
	}

	for _, c := range rep.Cycles {
		msg := "recursive: " + strings.Join(c, ", ")
		if colored {
			color.New(color.FgMagenta).Fprintln(w, msg)
		} else {
			fmt.Fprintln(w, msg)
		}
	}
	if len(rep.Unresolved) > 0 {
		fmt.Fprintf(w, "unresolved calls: %s\n", strings.Join(rep.Unresolved, ", "))
	}
	fmt.Fprintln(w)
	return nil
}

func writeMarkdown(w io.Writer, rep *model.Report) error {
	fmt.Fprintf(w, "## %s\n\n", displayName(rep))
	if !rep.Parsed {
		fmt.Fprintf(w, "> **Input did not parse:** %s\n\n", rep.ParseError)
		return nil
	}

	long := longSet(rep)
	fmt.Fprintf(w, "### Functions\n\n")
	fmt.Fprintln(w, "| Function | Start | End | Lines | Long |")
	fmt.Fprintln(w, "| --- | --- | --- | --- | --- |")
	for _, f := range rep.Functions {
		mark := ""
		if _, ok := long[defKey(f.Name, f.StartLine)]; ok {
			mark = "yes"
		}
		fmt.Fprintf(w, "| `%s` | %d | %d | %d | %s |\n", f.Qualified, f.StartLine, f.EndLine, f.Length(), mark)
	}
	fmt.Fprintln(w)

	if len(rep.Usages) > 0 {
		fmt.Fprintf(w, "### Usages\n\n")
		for _, u := range rep.Usages {
			fmt.Fprintf(w, "- `%s`: %s\n", u.Name, orNone(joinInts(u.Lines)))
		}
		fmt.Fprintln(w)
	}

	if len(rep.CallGraph.Edges) > 0 {
		fmt.Fprintf(w, "### Calls\n\n")
		for _, e := range rep.CallGraph.Edges {
			fmt.Fprintf(w, "- `%s` -> `%s`\n", e.Caller, e.Callee)
		}
		fmt.Fprintln(w)
	}

	if len(rep.Cycles) > 0 {
		fmt.Fprintf(w, "### Recursion\n\n")
		for _, c := range rep.Cycles {
			fmt.Fprintf(w, "- %s\n", strings.Join(c, ", "))
		}
		fmt.Fprintln(w)
	}
	return nil
}

func heading(w io.Writer, title string, colored bool) {
	if colored {
		color.New(color.Bold).Fprintln(w, title)
	} else {
		fmt.Fprintln(w, title)
	}
	fmt.Fprintln(w, strings.Repeat("=", len(title)))
}

func table(w io.Writer, headers []string, rows [][]string) {
	t := tablewriter.NewTable(w,
		tablewriter.WithConfig(tablewriter.Config{
			Header: tw.CellConfig{
				Alignment:  tw.CellAlignment{Global: tw.AlignLeft},
				Formatting: tw.CellFormatting{AutoFormat: tw.Off},
			},
			Row: tw.CellConfig{
				Alignment: tw.CellAlignment{Global: tw.AlignLeft},
			},
		}),
		tablewriter.WithRendition(tw.Rendition{
			Borders: tw.Border{Left: tw.Off, Right: tw.Off, Top: tw.Off, Bottom: tw.Off},
			Settings: tw.Settings{
				Separators: tw.Separators{BetweenColumns: tw.Off},
			},
		}),
	)
	t.Header(headers)
	for _, row := range rows {
		t.Append(row)
	}
	t.Render()
	fmt.Fprintln(w)
}

func displayName(rep *model.Report) string {
	if rep.Source == "" {
		return "<source>"
	}
	return rep.Source
}

func defKey(name string, line int) string {
	return name + ":" + strconv.Itoa(line)
}

func longSet(rep *model.Report) map[string]struct{} {
	set := make(map[string]struct{}, len(rep.LongFunctions))
	for _, lf := range rep.LongFunctions {
		set[defKey(lf.Name, lf.StartLine)] = struct{}{}
	}
	return set
}

func joinInts(xs []int) string {
	parts := make([]string, len(xs))
	for i, x := range xs {
		parts[i] = strconv.Itoa(x)
	}
	return strings.Join(parts, ", ")
}

func orNone(s string) string {
	if s == "" {
		return "none"
	}
	return s
}

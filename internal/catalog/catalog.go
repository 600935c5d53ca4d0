// Package catalog extracts function definitions from a syntax tree.
package catalog

import (
	"github.com/phobologic/codelens/internal/model"
	"github.com/phobologic/codelens/internal/syntax"
)

// Functions returns one record per function definition in tree, nested
// definitions included, in pre-order: an enclosing function precedes the
// functions defined inside it. A nil tree yields an empty slice.
func Functions(tree *syntax.Tree) []model.FunctionRecord {
	records := make([]model.FunctionRecord, 0)
	lines := tree.LineCount()
	syntax.Inspect(tree, func(n syntax.Node) bool {
		fd, ok := n.(*syntax.FuncDef)
		if !ok {
			return true
		}
		records = append(records, record(fd, lines))
		return true
	})
	return records
}

func record(fd *syntax.FuncDef, lines int) model.FunctionRecord {
	r := model.FunctionRecord{
		Name:      fd.Name,
		StartLine: fd.Loc.Start,
		EndLine:   fd.Loc.End,
		Qualified: fd.Name,
		Signature: fd.Signature,
		Async:     fd.Async,
	}
	if fd.Class != "" {
		r.Qualified = fd.Class + "." + fd.Name
	}
	if lines > 0 && r.EndLine > lines {
		r.EndLine = lines
	}
	if r.EndLine < r.StartLine {
		r.EndLine = r.StartLine
	}
	if len(fd.Body) > 0 {
		r.BodyStart = fd.Body[0].Span().Start
		r.BodyEnd = fd.Body[len(fd.Body)-1].Span().Start
	} else {
		r.BodyStart, r.BodyEnd = r.StartLine, r.StartLine
	}
	return r
}

// Names returns the set of distinct function names in records.
func Names(records []model.FunctionRecord) map[string]struct{} {
	names := make(map[string]struct{}, len(records))
	for i := range records {
		names[records[i].Name] = struct{}{}
	}
	return names
}

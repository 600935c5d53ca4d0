// Package usage indexes where identifiers are referenced.
package usage

import (
	"sort"

	"github.com/phobologic/codelens/internal/model"
	"github.com/phobologic/codelens/internal/syntax"
)

// Index maps every referenced identifier in tree to the ascending,
// deduplicated lines it appears on. Attribute targets, string contents and
// declared names are not references.
func Index(tree *syntax.Tree) model.UsageIndex {
	seen := make(map[string]map[int]struct{})
	syntax.Inspect(tree, func(n syntax.Node) bool {
		name, ok := n.(*syntax.Name)
		if !ok {
			return true
		}
		lines := seen[name.ID]
		if lines == nil {
			lines = make(map[int]struct{})
			seen[name.ID] = lines
		}
		lines[name.Loc.Start] = struct{}{}
		return true
	})

	idx := make(model.UsageIndex, len(seen))
	for id, lines := range seen {
		idx[id] = sortedLines(lines)
	}
	return idx
}

// Find returns the ascending, deduplicated lines on which name is
// referenced. Matching is exact and case-sensitive; a name that is not a
// valid identifier matches nothing.
func Find(tree *syntax.Tree, name string) []int {
	lines := make(map[int]struct{})
	syntax.Inspect(tree, func(n syntax.Node) bool {
		if nm, ok := n.(*syntax.Name); ok && nm.ID == name {
			lines[nm.Loc.Start] = struct{}{}
		}
		return true
	})
	return sortedLines(lines)
}

// Lookup answers a query against a precomputed index.
func Lookup(idx model.UsageIndex, name string) []int {
	lines := idx[name]
	out := make([]int, len(lines))
	copy(out, lines)
	return out
}

func sortedLines(set map[int]struct{}) []int {
	out := make([]int, 0, len(set))
	for l := range set {
		out = append(out, l)
	}
	sort.Ints(out)
	return out
}

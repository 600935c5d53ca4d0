package catalog

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phobologic/codelens/internal/model"
	"github.com/phobologic/codelens/internal/parse"
	"github.com/phobologic/codelens/internal/syntax"
)

func mustParse(t *testing.T, source string) *syntax.Tree {
	t.Helper()
	tree, err := parse.Parse(context.Background(), []byte(source))
	require.NoError(t, err)
	return tree
}

func TestFunctionsTwoSimple(t *testing.T) {
	t.Parallel()

	records := Functions(mustParse(t, "def f(): pass\ndef g(): f()\n"))
	require.Len(t, records, 2)

	assert.Equal(t, "f", records[0].Name)
	assert.Equal(t, 1, records[0].StartLine)
	assert.Equal(t, 1, records[0].EndLine)
	assert.Equal(t, 1, records[0].Length())

	assert.Equal(t, "g", records[1].Name)
	assert.Equal(t, 2, records[1].StartLine)
	assert.Equal(t, 1, records[1].Length())
}

func TestFunctionsNestedPreOrder(t *testing.T) {
	t.Parallel()

	source := `def outer():
    def inner():
        def innermost():
            pass
        return innermost
    return inner

def after():
    pass
`
	records := Functions(mustParse(t, source))
	var got []string
	for _, r := range records {
		got = append(got, r.Name)
	}
	assert.Equal(t, []string{"outer", "inner", "innermost", "after"}, got)
	assert.Equal(t, 6, records[0].EndLine)
	assert.Equal(t, 2, records[1].StartLine)
}

func TestFunctionsDuplicateNamesKept(t *testing.T) {
	t.Parallel()

	source := `def h():
    return 1

def h():
    return 2
`
	records := Functions(mustParse(t, source))
	require.Len(t, records, 2)
	assert.Equal(t, "h", records[0].Name)
	assert.Equal(t, "h", records[1].Name)
	assert.Equal(t, 1, records[0].StartLine)
	assert.Equal(t, 4, records[1].StartLine)
}

func TestFunctionsMethodsQualified(t *testing.T) {
	t.Parallel()

	source := `class Greeter:
    def greet(self):
        return "hi"

    @staticmethod
    def build():
        return Greeter()
`
	records := Functions(mustParse(t, source))
	require.Len(t, records, 2)
	assert.Equal(t, "Greeter.greet", records[0].Qualified)
	assert.Equal(t, "Greeter.build", records[1].Qualified)
	assert.Equal(t, 6, records[1].StartLine)
	assert.Equal(t, "greet(self)", records[0].Signature)
}

func TestFunctionsBodyLines(t *testing.T) {
	t.Parallel()

	source := `def f():
    """Doc."""

    x = 1
    return x
`
	records := Functions(mustParse(t, source))
	require.Len(t, records, 1)
	assert.Equal(t, 2, records[0].BodyStart)
	assert.Equal(t, 5, records[0].BodyEnd)
	assert.Equal(t, 4, records[0].BodyLength())
	assert.Equal(t, 5, records[0].Length())
}

func TestFunctionsWithinLineCount(t *testing.T) {
	t.Parallel()

	source := "class A:\n    def a(self):\n        pass\n\n    async def b(self):\n        await c()\n"
	tree := mustParse(t, source)
	for _, r := range Functions(tree) {
		assert.GreaterOrEqual(t, r.EndLine, r.StartLine, r.Name)
		assert.LessOrEqual(t, r.EndLine, tree.LineCount(), r.Name)
		assert.GreaterOrEqual(t, r.StartLine, 1, r.Name)
	}
}

func TestFunctionsNilTree(t *testing.T) {
	t.Parallel()

	records := Functions(nil)
	assert.NotNil(t, records)
	assert.Empty(t, records)
}

func TestFunctionsEmptySource(t *testing.T) {
	t.Parallel()

	assert.Empty(t, Functions(mustParse(t, "")))
}

func TestNames(t *testing.T) {
	t.Parallel()

	got := Names([]model.FunctionRecord{{Name: "a"}, {Name: "b"}, {Name: "a"}})
	assert.Len(t, got, 2)
	assert.Contains(t, got, "a")
	assert.Contains(t, got, "b")
}

func TestFunctionsTrailingCommentsExcluded(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		source  string
		endLine int
		length  int
	}{
		{"trailing comment block", "def f():\n    x = 1\n    # trailing\n\n    # more\n", 2, 2},
		{"comment in nested block", "def f():\n    if x:\n        y()\n        # done\n", 3, 3},
		{"comment after docstring", "def f():\n    \"\"\"Doc.\n    \"\"\"\n    # todo\n", 3, 3},
		{"no trailing comment", "def f():\n    x = 1\n    return x\n", 3, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			records := Functions(mustParse(t, tt.source))
			require.Len(t, records, 1)
			assert.Equal(t, tt.endLine, records[0].EndLine)
			assert.Equal(t, tt.length, records[0].Length())
		})
	}
}

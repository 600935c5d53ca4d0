package parse

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phobologic/codelens/internal/syntax"
)

func mustParse(t *testing.T, source string) *syntax.Tree {
	t.Helper()
	tree, err := Parse(context.Background(), []byte(source))
	require.NoError(t, err)
	require.NotNil(t, tree)
	return tree
}

func collect[T syntax.Node](tree *syntax.Tree) []T {
	var out []T
	syntax.Inspect(tree, func(n syntax.Node) bool {
		if v, ok := n.(T); ok {
			out = append(out, v)
		}
		return true
	})
	return out
}

func names(tree *syntax.Tree) []string {
	var out []string
	for _, n := range collect[*syntax.Name](tree) {
		out = append(out, n.ID)
	}
	return out
}

func TestParseFunction(t *testing.T) {
	t.Parallel()

	tree := mustParse(t, "def hello(name: str) -> None:\n    pass\n")
	defs := collect[*syntax.FuncDef](tree)
	require.Len(t, defs, 1)

	d := defs[0]
	assert.Equal(t, "hello", d.Name)
	assert.Equal(t, syntax.Span{Start: 1, End: 2}, d.Loc)
	assert.Equal(t, []string{"name"}, d.Params)
	assert.Equal(t, "hello(name: str) -> None", d.Signature)
	assert.False(t, d.Async)
	assert.Equal(t, 2, tree.LineCount())
}

func TestParseAsyncMethod(t *testing.T) {
	t.Parallel()

	source := `class Client:
    async def fetch(self, url):
        return await get(url)
`
	tree := mustParse(t, source)
	defs := collect[*syntax.FuncDef](tree)
	require.Len(t, defs, 1)
	assert.True(t, defs[0].Async)
	assert.Equal(t, "Client", defs[0].Class)
	assert.Equal(t, []string{"self", "url"}, defs[0].Params)
	assert.True(t, strings.HasPrefix(defs[0].Signature, "async fetch("))
}

func TestParseDecoratedStartsAtDef(t *testing.T) {
	t.Parallel()

	tree := mustParse(t, "@cache\ndef compute():\n    return 1\n")
	defs := collect[*syntax.FuncDef](tree)
	require.Len(t, defs, 1)
	assert.Equal(t, 2, defs[0].Loc.Start)
	assert.Equal(t, 3, defs[0].Loc.End)
	require.Len(t, defs[0].Decorators, 1)
	assert.Contains(t, names(tree), "cache")
}

func TestParseDeclarationsAreNotNames(t *testing.T) {
	t.Parallel()

	source := `import os
from pathlib import Path
def run(arg, *rest, flag=DEFAULT, **extra):
    global counter
    configure(verbose=True)
    return os.path
`
	tree := mustParse(t, source)
	got := names(tree)

	for _, declared := range []string{"run", "arg", "rest", "flag", "extra", "counter", "verbose", "Path", "path"} {
		assert.NotContains(t, got, declared)
	}
	for _, referenced := range []string{"DEFAULT", "configure", "os"} {
		assert.Contains(t, got, referenced)
	}
}

func TestParseExceptAliasIsDeclaration(t *testing.T) {
	t.Parallel()

	source := `try:
    pass
except ValueError as err:
    report(err)
`
	tree := mustParse(t, source)
	var errLines []int
	for _, n := range collect[*syntax.Name](tree) {
		if n.ID == "err" {
			errLines = append(errLines, n.Loc.Start)
		}
	}
	assert.Equal(t, []int{4}, errLines)
	assert.Contains(t, names(tree), "ValueError")
}

func TestParseCallShape(t *testing.T) {
	t.Parallel()

	tree := mustParse(t, "helper(1)\nobj.method(2)\n")
	calls := collect[*syntax.Call](tree)
	require.Len(t, calls, 2)

	name, ok := calls[0].Func.(*syntax.Name)
	require.True(t, ok, "bare call should have a Name callee")
	assert.Equal(t, "helper", name.ID)

	attr, ok := calls[1].Func.(*syntax.Attribute)
	require.True(t, ok, "method call should have an Attribute callee")
	assert.Equal(t, "method", attr.Attr)
}

func TestParseLambdaIsNotFuncDef(t *testing.T) {
	t.Parallel()

	tree := mustParse(t, "square = lambda v: v * v\n")
	assert.Empty(t, collect[*syntax.FuncDef](tree))
	assert.Len(t, collect[*syntax.Lambda](tree), 1)
}

func TestParseEmpty(t *testing.T) {
	t.Parallel()

	for _, source := range []string{"", "\n\n", "   "} {
		tree := mustParse(t, source)
		assert.Empty(t, tree.Root().Body)
	}
}

func TestParseSyntaxError(t *testing.T) {
	t.Parallel()

	_, err := Parse(context.Background(), []byte("def broken(:\n    pass\n"))
	require.Error(t, err)

	var pe *ParseError
	require.True(t, errors.As(err, &pe))
	assert.Positive(t, pe.Line)
	assert.NotEmpty(t, pe.Msg)
}

func TestParseTooLarge(t *testing.T) {
	t.Parallel()

	_, err := Parse(context.Background(), []byte("x = 1\ny = 2\n"), WithMaxSourceBytes(4))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSourceTooLarge)
}

func TestParseInvalidEncoding(t *testing.T) {
	t.Parallel()

	_, err := Parse(context.Background(), []byte{'x', '=', 0xff, 0xfe})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidEncoding)
}

func TestParseCanceled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Parse(ctx, []byte("x = 1\n"))
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)

	var pe *ParseError
	assert.True(t, errors.As(err, &pe))
}

func TestParserReuse(t *testing.T) {
	t.Parallel()

	p := New()
	defer p.Close()

	for i := 0; i < 3; i++ {
		tree, err := p.Parse(context.Background(), []byte("def f():\n    return g()\n"))
		require.NoError(t, err)
		assert.Len(t, collect[*syntax.FuncDef](tree), 1)
	}
}

func TestLineCount(t *testing.T) {
	t.Parallel()

	tests := []struct {
		source string
		want   int
	}{
		{"", 0},
		{"x", 1},
		{"x\n", 1},
		{"x\ny", 2},
		{"x\ny\n\n", 3},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, lineCount([]byte(tt.source)), "source %q", tt.source)
	}
}

func TestParseRejectsInvalidPython(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		source string
		line   int
		msg    string
	}{
		{"print statement", "x = 1\nprint \"hello\"\n", 2, "print"},
		{"exec statement", "exec \"x = 1\"\n", 1, "exec"},
		{"except comma", "try:\n    pass\nexcept ValueError, err:\n    pass\n", 3, "parenthesized"},
		{"backtick repr", "s = `x`\n", 1, ""},
		{"positional after keyword", "f(a=1, b)\n", 1, "follows keyword argument"},
		{"positional after keyword unpacking", "f(**kw, b)\n", 1, "keyword argument unpacking"},
		{"iterable after keyword unpacking", "f(**kw, *args)\n", 1, "iterable argument unpacking"},
		{"nested call", "def g():\n    return h(x=1, y)\n", 2, "follows keyword argument"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			tree, err := Parse(context.Background(), []byte(tt.source))
			require.Error(t, err)
			assert.Nil(t, tree)

			var pe *ParseError
			require.True(t, errors.As(err, &pe))
			assert.Equal(t, tt.line, pe.Line)
			assert.Contains(t, pe.Msg, tt.msg)
		})
	}
}

func TestParseAcceptsValidPython(t *testing.T) {
	t.Parallel()

	for _, source := range []string{
		"f(a, b=1, *rest, c=2, **kw)\n",
		"f(*a, *b, c=1)\n",
		"f(**a, b=1, **c)\n",
		"f(x for x in xs)\n",
		"print(\"hello\")\n",
		"import sys\nprint >>sys.stderr, \"hello\"\n",
		"print\n",
		"try:\n    pass\nexcept (ValueError, TypeError) as err:\n    pass\n",
		"class A(Base, metaclass=Meta):\n    pass\n",
	} {
		_, err := Parse(context.Background(), []byte(source))
		assert.NoError(t, err, "source %q", source)
	}
}

func TestParseDefinitionEndsAtLastStatement(t *testing.T) {
	t.Parallel()

	source := `class Widget:
    def draw(self):
        if self.visible:
            paint(self)
            # trailing comment in nested block

    # between methods

def after():
    return 1
    # trailing

    # more
`
	tree := mustParse(t, source)
	defs := collect[*syntax.FuncDef](tree)
	require.Len(t, defs, 2)
	assert.Equal(t, syntax.Span{Start: 2, End: 4}, defs[0].Loc)
	assert.Equal(t, syntax.Span{Start: 9, End: 10}, defs[1].Loc)

	classes := collect[*syntax.ClassDef](tree)
	require.Len(t, classes, 1)
	assert.Equal(t, syntax.Span{Start: 1, End: 4}, classes[0].Loc)
}

func TestParseKeywordPatternIsNotName(t *testing.T) {
	t.Parallel()

	source := `match p:
    case Point(x=c):
        pass
`
	got := names(mustParse(t, source))
	assert.NotContains(t, got, "x")
	assert.Contains(t, got, "c")
	assert.Contains(t, got, "Point")
}

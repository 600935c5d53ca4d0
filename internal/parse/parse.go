// Package parse turns Python source into a syntax.Tree using tree-sitter.
package parse

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"unicode/utf8"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/phobologic/codelens/internal/lang"
	"github.com/phobologic/codelens/internal/syntax"
)

// DefaultMaxSourceBytes bounds the size of a single source unit.
const DefaultMaxSourceBytes = 1_000_000 // 1 MB

const warnSourceBytes = 256 * 1024

var (
	// ErrSourceTooLarge is wrapped by a ParseError when the source exceeds the size limit.
	ErrSourceTooLarge = errors.New("source exceeds size limit")
	// ErrInvalidEncoding is wrapped by a ParseError when the source is not UTF-8.
	ErrInvalidEncoding = errors.New("source is not valid UTF-8")
)

// ParseError reports source that could not be turned into a syntax tree.
// Line and Column are 1-based and zero when no position applies.
type ParseError struct {
	Line   int
	Column int
	Msg    string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("line %d, column %d: %s", e.Line, e.Column, e.Msg)
	}
	return e.Msg
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// Parser wraps a tree-sitter parser for one language. It is not safe for
// concurrent use; give each goroutine its own Parser.
type Parser struct {
	lang     *lang.Language
	parser   *sitter.Parser
	maxBytes int
	logger   *slog.Logger
}

// Option configures a Parser.
type Option func(*Parser)

// WithMaxSourceBytes sets the largest source accepted. Non-positive values are ignored.
func WithMaxSourceBytes(n int) Option {
	return func(p *Parser) {
		if n > 0 {
			p.maxBytes = n
		}
	}
}

// WithLogger sets the logger used for warnings.
func WithLogger(l *slog.Logger) Option {
	return func(p *Parser) {
		if l != nil {
			p.logger = l
		}
	}
}

// New creates a Python parser.
func New(opts ...Option) *Parser {
	p := &Parser{
		lang:     lang.Python,
		maxBytes: DefaultMaxSourceBytes,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.parser = p.lang.NewParser()
	return p
}

// Close releases parser resources.
func (p *Parser) Close() {
	p.parser.Close()
}

// Parse parses a single source unit. Any failure, including cancellation of
// ctx, is returned as a *ParseError; Parse never panics.
func (p *Parser) Parse(ctx context.Context, source []byte) (tree *syntax.Tree, err error) {
	defer func() {
		if r := recover(); r != nil {
			tree = nil
			err = &ParseError{Msg: fmt.Sprintf("internal parser failure: %v", r)}
		}
	}()

	if err := ctx.Err(); err != nil {
		return nil, &ParseError{Msg: "parse canceled before start", Err: err}
	}
	if len(source) > p.maxBytes {
		return nil, &ParseError{
			Msg: fmt.Sprintf("size %d exceeds limit %d", len(source), p.maxBytes),
			Err: ErrSourceTooLarge,
		}
	}
	if len(source) > warnSourceBytes {
		p.logger.Warn("parsing large source", slog.Int("size_bytes", len(source)))
	}
	if !utf8.Valid(source) {
		return nil, &ParseError{Msg: "source is not valid UTF-8", Err: ErrInvalidEncoding}
	}

	lines := lineCount(source)
	if len(bytes.TrimSpace(source)) == 0 {
		return syntax.NewTree(&syntax.Module{Loc: syntax.Span{Start: 1, End: lines}}, lines), nil
	}

	st, err := p.parser.ParseCtx(ctx, nil, source)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, &ParseError{Msg: "parse canceled", Err: ctxErr}
		}
		return nil, &ParseError{Msg: "tree-sitter parse failed", Err: err}
	}
	defer st.Close()

	root := st.RootNode()
	if root == nil {
		return nil, &ParseError{Msg: "tree-sitter returned nil root node"}
	}
	if root.HasError() {
		return nil, syntaxError(root, source)
	}
	if pe := invalidSyntax(root, source); pe != nil {
		return nil, pe
	}

	l := &lowerer{lang: p.lang, src: source}
	return syntax.NewTree(l.module(root, lines), lines), nil
}

// Parse is a convenience wrapper that parses source with a fresh Parser.
func Parse(ctx context.Context, source []byte, opts ...Option) (*syntax.Tree, error) {
	p := New(opts...)
	defer p.Close()
	return p.Parse(ctx, source)
}

// syntaxError describes the first ERROR or MISSING node under root.
func syntaxError(root *sitter.Node, source []byte) *ParseError {
	bad := firstError(root)
	if bad == nil {
		return &ParseError{Msg: "source contains syntax errors"}
	}
	pt := bad.StartPoint()
	pe := &ParseError{Line: int(pt.Row) + 1, Column: int(pt.Column) + 1}
	if bad.IsMissing() {
		pe.Msg = fmt.Sprintf("missing %s", bad.Type())
		return pe
	}
	text := lang.CollapseWhitespace(lang.NodeText(bad, source))
	if len(text) > 40 {
		text = text[:40] + "..."
	}
	if text == "" {
		pe.Msg = "invalid syntax"
	} else {
		pe.Msg = fmt.Sprintf("invalid syntax near %q", text)
	}
	return pe
}

func firstError(n *sitter.Node) *sitter.Node {
	if n == nil {
		return nil
	}
	if n.Type() == "ERROR" || n.IsMissing() {
		return n
	}
	if !n.HasError() {
		return nil
	}
	for i := 0; i < int(n.ChildCount()); i++ {
		if bad := firstError(n.Child(i)); bad != nil {
			return bad
		}
	}
	return nil
}

func lineCount(source []byte) int {
	if len(source) == 0 {
		return 0
	}
	n := bytes.Count(source, []byte("\n"))
	if !bytes.HasSuffix(source, []byte("\n")) {
		n++
	}
	return n
}

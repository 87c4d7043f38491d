// Package cp2kinp provides parsing of CP2K input files into ordered trees.
package cp2kinp

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// maxLineLength bounds a single input line; coordinate blocks can be long.
const maxLineLength = 1024 * 1024

// Scanner wraps a bufio.Scanner with additional functionality.
type Scanner struct {
	*bufio.Scanner
	lineNum int
}

// NewScanner creates a new Scanner from an io.Reader.
func NewScanner(r io.Reader) *Scanner {
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 0, 64*1024), maxLineLength)
	return &Scanner{
		Scanner: s,
		lineNum: 0,
	}
}

// NextLine advances the scanner and returns the current line number and text.
func (s *Scanner) NextLine() (int, string, bool) {
	if !s.Scan() {
		return s.lineNum, "", false
	}
	s.lineNum++
	return s.lineNum, s.Text(), true
}

// Parser provides configurable parsing functionality. A Parser holds no
// per-parse state and may be used by several goroutines at once.
type Parser struct {
	strictSections  bool
	bareIf          BareIfPolicy
	includeDirs     []string
	maxIncludeDepth int
	logger          *slog.Logger
}

// NewParser creates a new Parser with default configuration.
func NewParser() *Parser {
	return &Parser{
		bareIf:          BareIfFalse,
		maxIncludeDepth: DefaultMaxIncludeDepth,
		logger:          slog.Default(),
	}
}

// WithStrictSections makes "&END NAME" fail unless NAME matches the open
// section. By default any &END closes the innermost section.
func (p *Parser) WithStrictSections(strict bool) *Parser {
	p.strictSections = strict
	return p
}

// WithBareIf configures how "@IF" without an expression is handled.
func (p *Parser) WithBareIf(policy BareIfPolicy) *Parser {
	p.bareIf = policy
	return p
}

// WithIncludeDirs adds directories searched for relative @INCLUDE paths
// not found next to the including file.
func (p *Parser) WithIncludeDirs(dirs ...string) *Parser {
	p.includeDirs = append(p.includeDirs, dirs...)
	return p
}

// WithMaxIncludeDepth configures how many files may be open in one
// include chain, counting the top-level input.
func (p *Parser) WithMaxIncludeDepth(n int) *Parser {
	if n > 0 {
		p.maxIncludeDepth = n
	}
	return p
}

// WithLogger configures the logger used for include tracing and warnings.
func (p *Parser) WithLogger(logger *slog.Logger) *Parser {
	if logger != nil {
		p.logger = logger
	}
	return p
}

// ParseFile parses the CP2K input at path.
func (p *Parser) ParseFile(path string) (*Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()
	return p.Parse(f, path)
}

// Parse parses a CP2K input from r. name is used in error messages and as
// the base for relative @INCLUDE paths; an empty name resolves them against
// the working directory.
func (p *Parser) Parse(r io.Reader, name string) (*Document, error) {
	lines, err := newPreprocessor(p).run(r, name)
	if err != nil {
		return nil, err
	}

	b := &treeBuilder{lines: lines, strict: p.strictSections}
	tree, err := b.build()
	if err != nil {
		return nil, err
	}

	p.logger.Debug("Parsed input.", "file", name, "lines", len(lines), "sections", tree.Len())
	return &Document{Name: name, Tree: tree, logger: p.logger}, nil
}

// ParseString parses CP2K input held in memory.
func (p *Parser) ParseString(input string) (*Document, error) {
	return p.Parse(strings.NewReader(input), "")
}

// treeBuilder turns well-defined lines into a Tree by recursive descent.
type treeBuilder struct {
	lines  []line
	pos    int
	strict bool
}

func (b *treeBuilder) build() (*Tree, error) {
	tree := NewTree()
	closed, err := b.parseSection(tree, nil)
	if err != nil {
		return nil, err
	}
	if closed {
		return nil, b.lines[b.pos-1].errorf(ErrUnexpectedEnd, "")
	}
	return tree, nil
}

// parseSection fills tree until the &END of the section opened by open, or
// the end of input when open is nil. It reports whether an &END was seen.
func (b *treeBuilder) parseSection(tree *Tree, open *line) (bool, error) {
	for b.pos < len(b.lines) {
		ln := b.lines[b.pos]
		b.pos++

		head, rest := splitField(ln.text)
		upper := strings.ToUpper(head)

		switch {
		case upper == "&END":
			if open == nil {
				return true, nil
			}
			if err := b.checkClose(ln, *open, rest); err != nil {
				return false, err
			}
			return true, nil

		case strings.HasPrefix(upper, "&"):
			name := upper[1:]
			if name == "" {
				return false, ln.errorf(ErrInvalidSection, "")
			}
			section := NewTree()
			if rest != "" {
				section.Set(InlineKey, Scalar(rest))
			}
			closed, err := b.parseSection(section, &ln)
			if err != nil {
				return false, err
			}
			if !closed {
				return false, ln.errorf(ErrUnterminatedSection, name)
			}
			if err := tree.Insert(name, section); err != nil {
				return false, ln.errorf(err, name)
			}

		default:
			if err := tree.Insert(upper, Scalar(rest)); err != nil {
				return false, ln.errorf(err, upper)
			}
		}
	}
	return false, nil
}

// checkClose validates "&END rest" against the section it closes. Only
// strict mode compares names.
func (b *treeBuilder) checkClose(ln, open line, rest string) error {
	if !b.strict || rest == "" {
		return nil
	}
	head, _ := splitField(open.text)
	want := strings.ToUpper(head[1:])
	got, _ := splitField(rest)
	if strings.ToUpper(got) != want {
		return ln.errorf(fmt.Errorf("%w: &%s closed by &END %s", ErrSectionMismatch, want, got), got)
	}
	return nil
}

// splitField splits a line on its first run of whitespace.
func splitField(s string) (string, string) {
	i := strings.IndexAny(s, " \t")
	if i < 0 {
		return s, ""
	}
	return s[:i], strings.TrimSpace(s[i:])
}

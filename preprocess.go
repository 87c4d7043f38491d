package cp2kinp

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// BareIfPolicy decides how an @IF without an expression is treated.
type BareIfPolicy uint8

const (
	// BareIfFalse treats "@IF" alone as a false condition.
	BareIfFalse BareIfPolicy = iota
	// BareIfError rejects "@IF" alone with ErrInvalidDirective.
	BareIfError
)

// DefaultMaxIncludeDepth bounds how deep @INCLUDE may nest.
const DefaultMaxIncludeDepth = 32

// line is one physical input line together with where it came from.
type line struct {
	text string
	file string
	num  int
	// stripped is set for lines read through @INCLUDE, which have their
	// comments removed as they are read.
	stripped bool
}

func (l line) errorf(err error, name string) error {
	return &ParseError{File: l.file, Line: l.num, Text: strings.TrimSpace(l.text), Name: name, Err: err}
}

// directiveState is the macro state of a single parse: the @SET bindings
// and the one open @IF block.
type directiveState struct {
	vars       map[string]string
	inBlock    bool
	suppressed bool
	openedAt   line
}

// preprocessor expands directives for one parse. It is never shared.
type preprocessor struct {
	parser *Parser
	state  directiveState
	// stack holds the absolute paths of the files currently being expanded.
	stack []string
}

func newPreprocessor(p *Parser) *preprocessor {
	return &preprocessor{
		parser: p,
		state:  directiveState{vars: make(map[string]string)},
	}
}

// run reads the top-level input and returns its well-defined lines: every
// directive applied, every include spliced in, no empty lines left.
func (pp *preprocessor) run(r io.Reader, name string) ([]line, error) {
	lines, err := readLines(r, name, false)
	if err != nil {
		return nil, err
	}

	// The top-level input counts toward the include depth even when it has
	// no name; an empty entry never matches an include.
	top := ""
	if name != "" {
		if abs, err := filepath.Abs(name); err == nil {
			top = abs
		}
	}
	pp.stack = append(pp.stack, top)

	var out []line
	if err := pp.flatten(lines, &out); err != nil {
		return nil, err
	}
	if pp.state.inBlock {
		return nil, pp.state.openedAt.errorf(ErrUnterminatedConditional, "")
	}
	return out, nil
}

// flatten runs every line through the directive processor, expanding
// includes depth-first so that they share the same state, and appends the
// non-empty results to out.
func (pp *preprocessor) flatten(lines []line, out *[]line) error {
	for _, ln := range lines {
		text, include, err := pp.process(ln)
		if err != nil {
			return err
		}
		if include != "" {
			if err := pp.include(ln, include, out); err != nil {
				return err
			}
			continue
		}
		if text != "" {
			*out = append(*out, line{text: text, file: ln.file, num: ln.num, stripped: true})
		}
	}
	return nil
}

// process applies the directive rules to a single line. It returns the
// resulting text, or the path to splice in when the line is an @INCLUDE.
func (pp *preprocessor) process(ln line) (string, string, error) {
	text := ln.text
	if !ln.stripped {
		text = stripComment(text)
	}
	if text == "" {
		return "", "", nil
	}

	if directiveWord(text) == "@SET" {
		rest := argument(text)
		i := strings.IndexAny(rest, " \t")
		if i < 0 {
			return "", "", ln.errorf(fmt.Errorf("%w: @SET needs a name and a value", ErrInvalidDirective), "")
		}
		pp.state.vars[rest[:i]] = strings.TrimSpace(rest[i:])
		return "", "", nil
	}

	text, err := pp.substitute(ln, text)
	if err != nil {
		return "", "", err
	}

	switch directiveWord(text) {
	case "@IF":
		if pp.state.inBlock {
			return "", "", ln.errorf(ErrNestedConditional, "")
		}
		cond, err := pp.condition(ln, text)
		if err != nil {
			return "", "", err
		}
		pp.state.inBlock = true
		pp.state.suppressed = !cond
		pp.state.openedAt = ln
		return "", "", nil
	case "@ENDIF":
		if !pp.state.inBlock {
			return "", "", ln.errorf(ErrUnmatchedEndif, "")
		}
		pp.state.inBlock = false
		pp.state.suppressed = false
		return "", "", nil
	}

	if pp.state.suppressed {
		return "", "", nil
	}

	if directiveWord(text) == "@INCLUDE" {
		path := argument(text)
		if path == "" {
			return "", "", ln.errorf(fmt.Errorf("%w: @INCLUDE needs a file name", ErrInvalidDirective), "")
		}
		return "", path, nil
	}
	return text, "", nil
}

// condition evaluates the expression of an @IF line: "0" is false, any
// other text is true, and a missing expression follows the BareIfPolicy.
func (pp *preprocessor) condition(ln line, text string) (bool, error) {
	expr := argument(text)
	if expr == "" {
		if pp.parser.bareIf == BareIfError {
			return false, ln.errorf(fmt.Errorf("%w: @IF without an expression", ErrInvalidDirective), "")
		}
		return false, nil
	}
	return expr != "0", nil
}

// substitute replaces every $NAME and ${NAME} reference with its binding.
func (pp *preprocessor) substitute(ln line, text string) (string, error) {
	if !strings.Contains(text, "$") {
		return text, nil
	}

	var b strings.Builder
	for i := 0; i < len(text); {
		c := text[i]
		if c != '$' || i+1 >= len(text) {
			b.WriteByte(c)
			i++
			continue
		}

		var name string
		next := i + 1
		if text[next] == '{' {
			end := strings.IndexByte(text[next:], '}')
			if end < 0 || !isVarName(text[next+1:next+end]) {
				b.WriteByte(c)
				i++
				continue
			}
			name = text[next+1 : next+end]
			next += end + 1
		} else {
			for next < len(text) && isVarChar(text[next]) {
				next++
			}
			name = text[i+1 : next]
			if name == "" {
				b.WriteByte(c)
				i++
				continue
			}
		}

		value, ok := pp.state.vars[name]
		if !ok {
			return "", ln.errorf(ErrUndefinedVariable, name)
		}
		b.WriteString(value)
		i = next
	}
	return b.String(), nil
}

// include splices the lines of path, resolved relative to the file holding
// the directive, into out.
func (pp *preprocessor) include(from line, path string, out *[]line) error {
	resolved, err := pp.resolve(from.file, path)
	if err != nil {
		return from.errorf(err, path)
	}

	abs, err := filepath.Abs(resolved)
	if err != nil {
		return from.errorf(fmt.Errorf("invalid path: %w", err), path)
	}
	for _, open := range pp.stack {
		if open == abs {
			return from.errorf(ErrCyclicInclude, path)
		}
	}
	if len(pp.stack) >= pp.parser.maxIncludeDepth {
		return from.errorf(fmt.Errorf("%w: nesting deeper than %d files", ErrCyclicInclude, pp.parser.maxIncludeDepth), path)
	}

	pp.parser.logger.Debug("Including file.", "path", resolved, "from", from.file, "line", from.num)

	f, err := os.Open(resolved)
	if err != nil {
		return from.errorf(fmt.Errorf("%w: %v", ErrMissingInclude, err), path)
	}
	defer f.Close()

	lines, err := readLines(f, resolved, true)
	if err != nil {
		return from.errorf(err, path)
	}

	pp.stack = append(pp.stack, abs)
	defer func() { pp.stack = pp.stack[:len(pp.stack)-1] }()

	return pp.flatten(lines, out)
}

// resolve finds the file an @INCLUDE refers to: absolute paths as given,
// relative ones next to the including file and then in the include dirs.
func (pp *preprocessor) resolve(fromFile, path string) (string, error) {
	var candidates []string
	if filepath.IsAbs(path) {
		candidates = []string{path}
	} else {
		base := "."
		if fromFile != "" {
			base = filepath.Dir(fromFile)
		}
		candidates = append(candidates, filepath.Join(base, path))
		for _, dir := range pp.parser.includeDirs {
			candidates = append(candidates, filepath.Join(dir, path))
		}
	}

	for _, c := range candidates {
		info, err := os.Stat(c)
		if err == nil && !info.IsDir() {
			return c, nil
		}
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("%w: %v", ErrMissingInclude, err)
		}
	}
	return "", ErrMissingInclude
}

// readLines reads r into numbered lines. With strip set, comments are
// removed as the lines are read.
func readLines(r io.Reader, name string, strip bool) ([]line, error) {
	scanner := NewScanner(r)
	var lines []line
	for {
		num, text, ok := scanner.NextLine()
		if !ok {
			break
		}
		if strip {
			text = stripComment(text)
		}
		lines = append(lines, line{text: text, file: name, num: num, stripped: strip})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	return lines, nil
}

// stripComment cuts the line at the first unescaped '!' or '#' and trims
// it. "\!" and "\#" stand for the literal characters.
func stripComment(s string) string {
	if !strings.ContainsAny(s, "!#") {
		return strings.TrimSpace(s)
	}

	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == '\\' && i+1 < len(s) && (s[i+1] == '!' || s[i+1] == '#') {
			b.WriteByte(s[i+1])
			i++
			continue
		}
		if c == '!' || c == '#' {
			break
		}
		b.WriteByte(c)
	}
	return strings.TrimSpace(b.String())
}

// directiveWord returns the upper-cased first field of a line that starts
// with '@', or "" otherwise.
func directiveWord(s string) string {
	if !strings.HasPrefix(s, "@") {
		return ""
	}
	word, _, _ := strings.Cut(s, " ")
	word, _, _ = strings.Cut(word, "\t")
	return strings.ToUpper(word)
}

// argument returns the trimmed text after the first field.
func argument(s string) string {
	i := strings.IndexAny(s, " \t")
	if i < 0 {
		return ""
	}
	return strings.TrimSpace(s[i:])
}

func isVarName(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if !isVarChar(s[i]) {
			return false
		}
	}
	return true
}

// isVarChar checks if a character is valid in a variable name
func isVarChar(c byte) bool {
	return (c >= 'a' && c <= 'z') ||
		(c >= 'A' && c <= 'Z') ||
		(c >= '0' && c <= '9') ||
		c == '_'
}

package cp2kinp

import (
	"errors"
	"fmt"
	"strings"
)

// Preprocessing errors.
var (
	ErrMissingInclude          = errors.New("missing include file")
	ErrCyclicInclude           = errors.New("cyclic include")
	ErrUndefinedVariable       = errors.New("undefined variable")
	ErrNestedConditional       = errors.New("nested @IF")
	ErrUnmatchedEndif          = errors.New("@ENDIF without @IF")
	ErrUnterminatedConditional = errors.New("@IF without @ENDIF")
	ErrInvalidDirective        = errors.New("invalid directive")
)

// Tree building errors.
var (
	ErrUnterminatedSection = errors.New("unterminated section")
	ErrUnexpectedEnd       = errors.New("&END without open section")
	ErrSectionMismatch     = errors.New("section name mismatch")
	ErrInvalidSection      = errors.New("invalid section header")
	ErrShapeMismatch       = errors.New("cannot mix keyword and section values")
)

// Projection, kind and output errors.
var (
	ErrNoKindSection     = errors.New("no &KIND section found")
	ErrUnknownElement    = errors.New("unknown element")
	ErrKindMismatch      = errors.New("kind section does not match elements")
	ErrUnsupportedFormat = errors.New("unsupported format")
)

// ParseError locates a failure in the input. Err is one of the sentinel
// errors above.
type ParseError struct {
	File string
	Line int
	Text string
	// Name is the offending identifier (variable, section or include path)
	// when one applies.
	Name string
	Err  error
}

func (e *ParseError) Error() string {
	var b strings.Builder
	if e.File != "" {
		b.WriteString(e.File)
		if e.Line > 0 {
			fmt.Fprintf(&b, ":%d", e.Line)
		}
		b.WriteString(": ")
	}
	b.WriteString(e.Err.Error())
	if e.Name != "" {
		fmt.Fprintf(&b, " %q", e.Name)
	}
	if e.Text != "" {
		fmt.Fprintf(&b, " in line %q", e.Text)
	}
	return b.String()
}

func (e *ParseError) Unwrap() error { return e.Err }

package cp2kinp

import (
	"errors"
	"fmt"
	"log/slog"
)

// Section names the projections look for.
const (
	ForceEvalKey = "FORCE_EVAL"
	SubsysKey    = "SUBSYS"
	KindKey      = "KIND"
)

// Document is a parsed CP2K input. Tree is read-only once returned; the
// projections below work on copies.
type Document struct {
	Name   string
	Tree   *Tree
	logger *slog.Logger
}

// Config returns the element-independent template of the input.
func (d *Document) Config() *Tree {
	return ProjectConfig(d.Tree)
}

// Kinds returns the kind section of the input. A missing section is logged
// as a warning and reported through ok.
func (d *Document) Kinds() (KindSection, bool) {
	kinds, err := ExtractKinds(d.Tree)
	if err != nil {
		logger := d.logger
		if logger == nil {
			logger = slog.Default()
		}
		logger.Warn("Kind section will not be parsed.", "file", d.Name, "reason", err)
		return nil, false
	}
	return kinds, true
}

// ProjectConfig returns a deep copy of tree without FORCE_EVAL/SUBSYS, in
// every FORCE_EVAL entry when the section repeats. A tree without those
// sections is copied unchanged.
func ProjectConfig(tree *Tree) *Tree {
	out := tree.Clone()
	if out == nil {
		return NewTree()
	}
	for _, fe := range out.Sections(ForceEvalKey) {
		fe.Delete(SubsysKey)
	}
	return out
}

// ExtractKinds returns the FORCE_EVAL/SUBSYS/KIND entries of tree. Only the
// first FORCE_EVAL is inspected when several are present. It returns
// ErrNoKindSection when the path does not exist.
func ExtractKinds(tree *Tree) (KindSection, error) {
	forceEvals := tree.Sections(ForceEvalKey)
	if len(forceEvals) == 0 {
		return nil, fmt.Errorf("%w: no &%s", ErrNoKindSection, ForceEvalKey)
	}
	subsys := forceEvals[0].Sections(SubsysKey)
	if len(subsys) == 0 {
		return nil, fmt.Errorf("%w: no &%s", ErrNoKindSection, SubsysKey)
	}
	entries := subsys[0].Sections(KindKey)
	if len(entries) == 0 {
		return nil, ErrNoKindSection
	}

	kinds := make(KindSection, 0, len(entries))
	for _, entry := range entries {
		element, ok := entry.Inline()
		if !ok {
			return nil, fmt.Errorf("%w: &%s without element", ErrNoKindSection, KindKey)
		}
		attrs := entry.Clone()
		attrs.Delete(InlineKey)
		kinds = append(kinds, Kind{Element: element, Attributes: attrs})
	}
	return kinds, nil
}

// Assemble combines a config template with a kind section: the kinds are
// merged into FORCE_EVAL/SUBSYS/KIND of every FORCE_EVAL entry of a copy of
// config.
func Assemble(config *Tree, kinds KindSection) (*Tree, error) {
	out := config.Clone()
	if out == nil {
		out = NewTree()
	}

	forceEvals := out.Sections(ForceEvalKey)
	if len(forceEvals) == 0 {
		if v, ok := out.Get(ForceEvalKey); ok {
			return nil, fmt.Errorf("%w: %s is a %s", ErrShapeMismatch, ForceEvalKey, v.Shape())
		}
		fe := NewTree()
		out.Set(ForceEvalKey, fe)
		forceEvals = SectionList{fe}
	}

	for i, fe := range forceEvals {
		patch := NewTree()
		subsys := NewTree()
		subsys.Set(KindKey, kinds.Sections())
		patch.Set(SubsysKey, subsys)
		if err := Merge(fe, patch); err != nil {
			return nil, fmt.Errorf("%s #%d: %w", ForceEvalKey, i, err)
		}
	}
	return out, nil
}

// IsNoKindSection reports whether err says the kind section is missing.
func IsNoKindSection(err error) bool {
	return errors.Is(err, ErrNoKindSection)
}

// Package cp2kinp defines the core data structures for CP2K input parsing.
package cp2kinp

import "fmt"

// InlineKey is the reserved key under which a section stores the trailing
// argument of its opening line, e.g. the functional name of
// "&XC_FUNCTIONAL LDA".
const InlineKey = "_"

// Shape classifies a Value.
type Shape uint8

const (
	ShapeScalar Shape = iota
	ShapeSection
	ShapeScalarList
	ShapeSectionList
)

func (s Shape) String() string {
	switch s {
	case ShapeScalar:
		return "scalar"
	case ShapeSection:
		return "section"
	case ShapeScalarList:
		return "scalar list"
	case ShapeSectionList:
		return "section list"
	default:
		return fmt.Sprintf("Shape(%d)", uint8(s))
	}
}

// Value is any value held by a Tree. The set of implementations is closed:
// Scalar, *Tree, ScalarList and SectionList.
type Value interface {
	Shape() Shape
	clone() Value
}

// Scalar is a keyword value.
type Scalar string

// ScalarList holds the values of a keyword repeated within one section.
type ScalarList []Scalar

// SectionList holds the bodies of a section repeated within one parent.
type SectionList []*Tree

func (Scalar) Shape() Shape      { return ShapeScalar }
func (*Tree) Shape() Shape       { return ShapeSection }
func (ScalarList) Shape() Shape  { return ShapeScalarList }
func (SectionList) Shape() Shape { return ShapeSectionList }

func (s Scalar) clone() Value { return s }
func (t *Tree) clone() Value  { return t.Clone() }

func (l ScalarList) clone() Value {
	out := make(ScalarList, len(l))
	copy(out, l)
	return out
}

func (l SectionList) clone() Value {
	out := make(SectionList, len(l))
	for i, t := range l {
		out[i] = t.Clone()
	}
	return out
}

// Tree is an ordered mapping from key to Value. It represents both a whole
// parsed input and the body of a single section.
type Tree struct {
	keys   []string
	values map[string]Value
}

// NewTree returns an empty tree.
func NewTree() *Tree {
	return &Tree{values: make(map[string]Value)}
}

// Len returns the number of keys.
func (t *Tree) Len() int {
	if t == nil {
		return 0
	}
	return len(t.keys)
}

// Keys returns the keys in insertion order.
func (t *Tree) Keys() []string {
	if t == nil {
		return nil
	}
	out := make([]string, len(t.keys))
	copy(out, t.keys)
	return out
}

// Get returns the value stored under key.
func (t *Tree) Get(key string) (Value, bool) {
	if t == nil {
		return nil, false
	}
	v, ok := t.values[key]
	return v, ok
}

// Inline returns the section's inline argument, if any.
func (t *Tree) Inline() (string, bool) {
	v, ok := t.Get(InlineKey)
	if !ok {
		return "", false
	}
	s, ok := v.(Scalar)
	return string(s), ok
}

// Set stores v under key, replacing any previous value but keeping the
// key's original position.
func (t *Tree) Set(key string, v Value) {
	if t.values == nil {
		t.values = make(map[string]Value)
	}
	if _, ok := t.values[key]; !ok {
		t.keys = append(t.keys, key)
	}
	t.values[key] = v
}

// Delete removes key. It reports whether the key was present.
func (t *Tree) Delete(key string) bool {
	if _, ok := t.values[key]; !ok {
		return false
	}
	delete(t.values, key)
	for i, k := range t.keys {
		if k == key {
			t.keys = append(t.keys[:i], t.keys[i+1:]...)
			break
		}
	}
	return true
}

// Insert adds v under key applying the repeated-key rule: a second scalar
// or section under the same key turns the entry into a list, later ones are
// appended. Mixing scalars and sections under one key is ErrShapeMismatch.
func (t *Tree) Insert(key string, v Value) error {
	existing, ok := t.values[key]
	if !ok {
		t.Set(key, v)
		return nil
	}

	switch cur := existing.(type) {
	case Scalar:
		if s, ok := v.(Scalar); ok {
			t.values[key] = ScalarList{cur, s}
			return nil
		}
	case *Tree:
		if s, ok := v.(*Tree); ok {
			t.values[key] = SectionList{cur, s}
			return nil
		}
	case ScalarList:
		if s, ok := v.(Scalar); ok {
			t.values[key] = append(cur, s)
			return nil
		}
	case SectionList:
		if s, ok := v.(*Tree); ok {
			t.values[key] = append(cur, s)
			return nil
		}
	}
	return fmt.Errorf("%w: key %s holds a %s, cannot add a %s",
		ErrShapeMismatch, key, existing.Shape(), v.Shape())
}

// Clone returns a deep copy of t.
func (t *Tree) Clone() *Tree {
	if t == nil {
		return nil
	}
	out := &Tree{
		keys:   make([]string, len(t.keys)),
		values: make(map[string]Value, len(t.values)),
	}
	copy(out.keys, t.keys)
	for k, v := range t.values {
		out.values[k] = v.clone()
	}
	return out
}

// Sections returns the value under key as a list of sections, wrapping a
// single section. It returns nil for a missing key or a scalar value.
func (t *Tree) Sections(key string) SectionList {
	v, _ := t.Get(key)
	switch s := v.(type) {
	case *Tree:
		return SectionList{s}
	case SectionList:
		return s
	default:
		return nil
	}
}

// Map converts t into plain Go values: map[string]any for sections, string
// for scalars and []any for lists. Key order is lost.
func (t *Tree) Map() map[string]any {
	if t == nil {
		return nil
	}
	out := make(map[string]any, len(t.keys))
	for _, k := range t.keys {
		out[k] = plain(t.values[k])
	}
	return out
}

func plain(v Value) any {
	switch x := v.(type) {
	case Scalar:
		return string(x)
	case *Tree:
		return x.Map()
	case ScalarList:
		out := make([]any, len(x))
		for i, s := range x {
			out[i] = string(s)
		}
		return out
	case SectionList:
		out := make([]any, len(x))
		for i, s := range x {
			out[i] = s.Map()
		}
		return out
	default:
		return nil
	}
}

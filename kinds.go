package cp2kinp

import (
	"fmt"
	"slices"
	"strings"
)

// Kind holds the attributes of one chemical element, e.g. its basis set
// and pseudopotential.
type Kind struct {
	Element    string
	Attributes *Tree
}

// KindSection is the ordered list of kinds of an input.
type KindSection []Kind

// Elements returns the element symbols in order.
func (ks KindSection) Elements() []string {
	out := make([]string, len(ks))
	for i, k := range ks {
		out[i] = k.Element
	}
	return out
}

// Tree returns the kinds as an element → attributes mapping.
func (ks KindSection) Tree() *Tree {
	t := NewTree()
	for _, k := range ks {
		attrs := k.Attributes.Clone()
		if attrs == nil {
			attrs = NewTree()
		}
		t.Set(k.Element, attrs)
	}
	return t
}

// Sections returns the kinds as &KIND sections with the element as inline
// argument.
func (ks KindSection) Sections() SectionList {
	out := make(SectionList, len(ks))
	for i, k := range ks {
		s := NewTree()
		s.Set(InlineKey, Scalar(k.Element))
		for _, key := range k.Attributes.Keys() {
			v, _ := k.Attributes.Get(key)
			s.Set(key, v.clone())
		}
		out[i] = s
	}
	return out
}

// KindsFromTree reads an element → attributes mapping, as written by
// KindSection.Tree.
func KindsFromTree(t *Tree) (KindSection, error) {
	kinds := make(KindSection, 0, t.Len())
	for _, element := range t.Keys() {
		v, _ := t.Get(element)
		attrs, ok := v.(*Tree)
		if !ok {
			return nil, fmt.Errorf("%w: kind %s is a %s", ErrShapeMismatch, element, v.Shape())
		}
		kinds = append(kinds, Kind{Element: element, Attributes: attrs.Clone()})
	}
	return kinds, nil
}

// Select returns the kinds for exactly the given elements. The section may
// cover more elements than asked for, but not fewer, and may not list an
// element twice.
func (ks KindSection) Select(elements []string) (KindSection, error) {
	have := make(map[string]bool, len(ks))
	for _, k := range ks {
		if have[k.Element] {
			return nil, fmt.Errorf("%w: duplicate element %s", ErrKindMismatch, k.Element)
		}
		have[k.Element] = true
	}

	want := make(map[string]bool, len(elements))
	var missing []string
	for _, e := range elements {
		want[e] = true
		if !have[e] {
			missing = append(missing, e)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: no kind for %s", ErrKindMismatch, strings.Join(missing, ", "))
	}

	out := make(KindSection, 0, len(want))
	for _, k := range ks {
		if want[k.Element] {
			out = append(out, k)
		}
	}
	return out, nil
}

// Preset generates kinds from a basis set and a pseudopotential family.
type Preset struct {
	BasisSet  string
	Potential string
}

// DZVPPBE is the default preset: DZVP-MOLOPT-SR-GTH with GTH-PBE
// pseudopotentials.
var DZVPPBE = Preset{BasisSet: "DZVP-MOLOPT-SR-GTH", Potential: "GTH-PBE"}

// Kinds returns one kind per distinct element, in the given order. The
// potential name gets the element's valence-electron suffix, e.g.
// GTH-PBE-q6 for O.
func (p Preset) Kinds(elements ...string) (KindSection, error) {
	var kinds KindSection
	var seen []string
	for _, e := range elements {
		if slices.Contains(seen, e) {
			continue
		}
		seen = append(seen, e)
		q, ok := valenceElectrons[e]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownElement, e)
		}
		attrs := NewTree()
		attrs.Set("BASIS_SET", Scalar(p.BasisSet))
		attrs.Set("POTENTIAL", Scalar(fmt.Sprintf("%s-q%d", p.Potential, q)))
		kinds = append(kinds, Kind{Element: e, Attributes: attrs})
	}
	return kinds, nil
}

// valenceElectrons is the number of valence electrons of the GTH
// pseudopotentials per element.
var valenceElectrons = map[string]int{
	"H": 1, "He": 2, "Li": 3, "Be": 4, "B": 3, "C": 4, "N": 5, "O": 6, "F": 7, "Ne": 8,
	"Na": 9, "Mg": 2, "Al": 3, "Si": 4, "P": 5, "S": 6, "Cl": 7, "Ar": 8, "K": 9, "Ca": 10,
	"Sc": 11, "Ti": 12, "V": 13, "Cr": 14, "Mn": 15, "Fe": 16, "Co": 17, "Ni": 18, "Cu": 11,
	"Zn": 12, "Ga": 3, "Ge": 4, "As": 5, "Se": 6, "Br": 7, "Kr": 8,
	"Rb": 9, "Sr": 10, "Y": 11, "Zr": 12, "Nb": 13, "Mo": 14, "Tc": 15, "Ru": 8, "Rh": 9,
	"Pd": 18, "Ag": 11, "Cd": 12, "In": 3, "Sn": 4, "Sb": 5, "Te": 6, "I": 7, "Xe": 8,
	"Cs": 9, "Ba": 10, "La": 11, "Hf": 12, "Ta": 5, "W": 6, "Re": 7, "Os": 8, "Ir": 9,
	"Pt": 18, "Au": 19, "Hg": 12, "Tl": 3, "Pb": 4, "Bi": 5, "Po": 6, "At": 7, "Rn": 8,
}

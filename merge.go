package cp2kinp

import "fmt"

// Merge updates dst with the contents of src, recursively:
//   - keys missing from dst, or holding an empty value, are set
//   - sections are merged key by key
//   - lists are extended by lists of the same shape; a single scalar or
//     section in dst is promoted to a list first
//
// Any other overlap, such as two different scalars, is ErrShapeMismatch.
// Values taken from src are copied.
func Merge(dst, src *Tree) error {
	for _, key := range src.Keys() {
		v, _ := src.Get(key)
		cur, ok := dst.Get(key)
		if !ok || isEmptyValue(cur) {
			dst.Set(key, v.clone())
			continue
		}

		merged, err := mergeValue(key, cur, v)
		if err != nil {
			return err
		}
		dst.Set(key, merged)
	}
	return nil
}

func mergeValue(key string, cur, v Value) (Value, error) {
	switch c := cur.(type) {
	case *Tree:
		switch n := v.(type) {
		case *Tree:
			if err := Merge(c, n); err != nil {
				return nil, fmt.Errorf("%s: %w", key, err)
			}
			return c, nil
		case SectionList:
			return append(SectionList{c}, n.clone().(SectionList)...), nil
		}
	case SectionList:
		if n, ok := v.(SectionList); ok {
			return append(c, n.clone().(SectionList)...), nil
		}
	case ScalarList:
		if n, ok := v.(ScalarList); ok {
			return append(c, n...), nil
		}
	case Scalar:
		if n, ok := v.(ScalarList); ok {
			return append(ScalarList{c}, n...), nil
		}
		if n, ok := v.(Scalar); ok && n == c {
			return c, nil
		}
	}
	return nil, fmt.Errorf("%w: incoherent values for %s (%s and %s)", ErrShapeMismatch, key, cur.Shape(), v.Shape())
}

func isEmptyValue(v Value) bool {
	switch x := v.(type) {
	case Scalar:
		return x == ""
	case *Tree:
		return x.Len() == 0
	case ScalarList:
		return len(x) == 0
	case SectionList:
		return len(x) == 0
	default:
		return true
	}
}

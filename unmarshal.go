package cp2kinp

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
)

// Unmarshal stores the contents of a Tree in the struct pointed to by v.
//
// Struct tags map tree keys to fields:
//   - `inp:"NAME"` - maps key NAME to this struct field
//   - `inp:"NAME,required"` - fails when NAME is absent
//   - `inp:"-"` - ignores this field
//
// Untagged fields use their upper-cased field name. A field named by
// InlineKey receives a section's inline argument.
//
// Example:
//
//	type Global struct {
//	    Project    string `inp:"PROJECT"`
//	    RunType    string `inp:"RUN_TYPE"`
//	    PrintLevel string `inp:"PRINT_LEVEL"`
//	}
//	type Input struct {
//	    Global Global `inp:"GLOBAL"`
//	}
func Unmarshal(t *Tree, v any) error {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Ptr || rv.IsNil() {
		return fmt.Errorf("unmarshal target must be a non-nil pointer")
	}

	elem := rv.Elem()
	if elem.Kind() != reflect.Struct {
		return fmt.Errorf("unmarshal target must be a pointer to struct")
	}
	return unmarshalStruct(t, elem)
}

// unmarshalStruct unmarshals a tree into a struct value
func unmarshalStruct(t *Tree, v reflect.Value) error {
	typ := v.Type()

	for i := 0; i < typ.NumField(); i++ {
		field := typ.Field(i)
		fieldValue := v.Field(i)

		if !fieldValue.CanSet() {
			continue
		}

		tag := field.Tag.Get("inp")
		if tag == "-" {
			continue
		}

		tagName, opts := parseTag(tag)
		if tagName == "" {
			tagName = strings.ToUpper(field.Name)
		}

		value, ok := t.Get(tagName)
		if !ok {
			if hasOption(opts, "required") {
				return fmt.Errorf("required field %s not found", tagName)
			}
			continue
		}

		if err := setField(fieldValue, value); err != nil {
			return fmt.Errorf("field %s: %v", field.Name, err)
		}
	}

	return nil
}

// setField sets a reflect.Value from a tree value
func setField(field reflect.Value, value Value) error {
	switch field.Kind() {
	case reflect.String:
		s, err := scalarOf(value)
		if err != nil {
			return err
		}
		field.SetString(s)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		s, err := scalarOf(value)
		if err != nil {
			return err
		}
		i, err := strconv.ParseInt(s, 10, field.Type().Bits())
		if err != nil {
			return fmt.Errorf("cannot parse as int: %v", err)
		}
		field.SetInt(i)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		s, err := scalarOf(value)
		if err != nil {
			return err
		}
		u, err := strconv.ParseUint(s, 10, field.Type().Bits())
		if err != nil {
			return fmt.Errorf("cannot parse as uint: %v", err)
		}
		field.SetUint(u)
	case reflect.Float32, reflect.Float64:
		s, err := scalarOf(value)
		if err != nil {
			return err
		}
		f, err := parseFloat(s, field.Type().Bits())
		if err != nil {
			return fmt.Errorf("cannot parse as float: %v", err)
		}
		field.SetFloat(f)
	case reflect.Bool:
		s, err := scalarOf(value)
		if err != nil {
			return err
		}
		b, err := parseBool(s)
		if err != nil {
			return fmt.Errorf("cannot parse as bool: %v", err)
		}
		field.SetBool(b)
	case reflect.Slice:
		return setSlice(field, value)
	case reflect.Map:
		return setMap(field, value)
	case reflect.Struct:
		t, ok := value.(*Tree)
		if !ok {
			return fmt.Errorf("cannot convert %s to struct", value.Shape())
		}
		return unmarshalStruct(t, field)
	case reflect.Ptr:
		ptr := reflect.New(field.Type().Elem())
		if err := setField(ptr.Elem(), value); err != nil {
			return err
		}
		field.Set(ptr)
	case reflect.Interface:
		field.Set(reflect.ValueOf(plain(value)))
	default:
		return fmt.Errorf("unsupported field type: %s", field.Kind())
	}
	return nil
}

// setSlice fills a slice from a list; a single value becomes a one-element
// slice, since a key only turns into a list once it repeats.
func setSlice(field reflect.Value, value Value) error {
	var items []Value
	switch v := value.(type) {
	case ScalarList:
		for _, s := range v {
			items = append(items, s)
		}
	case SectionList:
		for _, s := range v {
			items = append(items, s)
		}
	default:
		items = []Value{v}
	}

	slice := reflect.MakeSlice(field.Type(), len(items), len(items))
	for i, item := range items {
		if err := setField(slice.Index(i), item); err != nil {
			return fmt.Errorf("index %d: %v", i, err)
		}
	}
	field.Set(slice)
	return nil
}

func setMap(field reflect.Value, value Value) error {
	t, ok := value.(*Tree)
	if !ok {
		return fmt.Errorf("cannot convert %s to map", value.Shape())
	}
	if field.Type().Key().Kind() != reflect.String {
		return fmt.Errorf("map key must be a string, got %s", field.Type().Key())
	}

	m := reflect.MakeMapWithSize(field.Type(), t.Len())
	for _, key := range t.Keys() {
		val, _ := t.Get(key)
		elemValue := reflect.New(field.Type().Elem()).Elem()
		if err := setField(elemValue, val); err != nil {
			return fmt.Errorf("key %s: %v", key, err)
		}
		m.SetMapIndex(reflect.ValueOf(key).Convert(field.Type().Key()), elemValue)
	}
	field.Set(m)
	return nil
}

func scalarOf(value Value) (string, error) {
	switch v := value.(type) {
	case Scalar:
		return string(v), nil
	case *Tree:
		// A section with only an inline argument reads as that argument.
		if s, ok := v.Inline(); ok && v.Len() == 1 {
			return s, nil
		}
	}
	return "", fmt.Errorf("cannot convert %s to scalar", value.Shape())
}

// Helper functions

func parseTag(tag string) (string, []string) {
	parts := strings.Split(tag, ",")
	if len(parts) == 0 {
		return "", nil
	}
	return parts[0], parts[1:]
}

func hasOption(opts []string, option string) bool {
	for _, opt := range opts {
		if opt == option {
			return true
		}
	}
	return false
}

// parseFloat also accepts Fortran exponents such as 1.0D-6.
func parseFloat(s string, bits int) (float64, error) {
	s = strings.Map(func(r rune) rune {
		if r == 'd' || r == 'D' {
			return 'e'
		}
		return r
	}, s)
	return strconv.ParseFloat(s, bits)
}

// parseBool understands CP2K logicals.
func parseBool(s string) (bool, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "T", "TRUE", ".TRUE.", "Y", "YES", "ON", "1", "":
		return true, nil
	case "F", "FALSE", ".FALSE.", "N", "NO", "OFF", "0":
		return false, nil
	default:
		return false, fmt.Errorf("invalid bool value: %s", s)
	}
}

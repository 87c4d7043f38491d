package cp2kinp

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/hashicorp/hcl/v2/hclwrite"
	"github.com/zclconf/go-cty/cty"
	"gopkg.in/yaml.v3"
)

// Format is a serialization format for trees.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
	FormatHCL  Format = "hcl"
)

// Formats lists the supported formats.
var Formats = []Format{FormatJSON, FormatYAML, FormatHCL}

// ParseFormat validates a format name given by the user.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	case "hcl":
		return FormatHCL, nil
	default:
		return "", fmt.Errorf("%w: %q, use json, yaml or hcl", ErrUnsupportedFormat, s)
	}
}

// FormatFromPath infers the format from a file extension.
func FormatFromPath(path string) (Format, error) {
	ext := strings.TrimPrefix(filepath.Ext(path), ".")
	if ext == "" {
		return "", fmt.Errorf("%w: %s has no extension, use .json, .yaml or .hcl", ErrUnsupportedFormat, path)
	}
	f, err := ParseFormat(ext)
	if err != nil {
		return "", fmt.Errorf("%w: unknown file type %s, use .json, .yaml or .hcl", ErrUnsupportedFormat, path)
	}
	return f, nil
}

// Encode writes t to w in the given format. Key order is kept in every
// format.
func Encode(w io.Writer, t *Tree, f Format) error {
	switch f {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetEscapeHTML(false)
		enc.SetIndent("", "  ")
		return enc.Encode(t)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(yamlNode(t)); err != nil {
			return err
		}
		return enc.Close()
	case FormatHCL:
		file := hclwrite.NewEmptyFile()
		if err := writeHCLBody(file.Body(), t); err != nil {
			return err
		}
		_, err := w.Write(hclwrite.Format(file.Bytes()))
		return err
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedFormat, f)
	}
}

// Decode reads a tree written by Encode. Only JSON and YAML can be read
// back. A key repeated within one mapping becomes a list, as in the input
// grammar.
func Decode(r io.Reader, f Format) (*Tree, error) {
	var (
		v   Value
		err error
	)
	switch f {
	case FormatJSON:
		v, err = decodeJSON(r)
	case FormatYAML:
		v, err = decodeYAML(r)
	default:
		return nil, fmt.Errorf("%w: cannot read %s", ErrUnsupportedFormat, f)
	}
	if err != nil {
		return nil, err
	}
	if v == nil {
		return NewTree(), nil
	}
	t, ok := v.(*Tree)
	if !ok {
		return nil, fmt.Errorf("%w: document root is a %s, want a mapping", ErrShapeMismatch, v.Shape())
	}
	return t, nil
}

func decodeJSON(r io.Reader) (Value, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	tok, err := dec.Token()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("decode json: %w", err)
	}
	v, err := valueFromJSON(dec, tok)
	if err != nil {
		return nil, err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode json: unexpected data at offset %d", dec.InputOffset())
	}
	return v, nil
}

// valueFromJSON builds the value starting at tok, reading nested tokens
// from dec.
func valueFromJSON(dec *json.Decoder, tok json.Token) (Value, error) {
	switch x := tok.(type) {
	case json.Delim:
		switch x {
		case '{':
			t := NewTree()
			for dec.More() {
				keyTok, err := dec.Token()
				if err != nil {
					return nil, fmt.Errorf("decode json: %w", err)
				}
				key, _ := keyTok.(string)
				valTok, err := dec.Token()
				if err != nil {
					return nil, fmt.Errorf("decode json: %w", err)
				}
				v, err := valueFromJSON(dec, valTok)
				if err != nil {
					return nil, err
				}
				if err := t.Insert(key, v); err != nil {
					return nil, fmt.Errorf("decode json: %w", err)
				}
			}
			if _, err := dec.Token(); err != nil {
				return nil, fmt.Errorf("decode json: %w", err)
			}
			return t, nil
		case '[':
			var items []Value
			for dec.More() {
				itemTok, err := dec.Token()
				if err != nil {
					return nil, fmt.Errorf("decode json: %w", err)
				}
				v, err := valueFromJSON(dec, itemTok)
				if err != nil {
					return nil, err
				}
				items = append(items, v)
			}
			if _, err := dec.Token(); err != nil {
				return nil, fmt.Errorf("decode json: %w", err)
			}
			return listValue(items, fmt.Sprintf("offset %d", dec.InputOffset()))
		}
	case string:
		return Scalar(x), nil
	case json.Number:
		return Scalar(x.String()), nil
	case bool:
		return Scalar(strconv.FormatBool(x)), nil
	case nil:
		return Scalar(""), nil
	}
	return nil, fmt.Errorf("decode json: unexpected token %v at offset %d", tok, dec.InputOffset())
}

func decodeYAML(r io.Reader) (Value, error) {
	var doc yaml.Node
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("decode yaml: %w", err)
	}

	root := &doc
	if root.Kind == yaml.DocumentNode && len(root.Content) > 0 {
		root = root.Content[0]
	}
	return valueFromYAML(root)
}

// MarshalJSON encodes the tree as a JSON object keeping key order.
func (t *Tree) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	if err := writeJSON(&buf, t); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeJSON(buf *bytes.Buffer, v Value) error {
	switch x := v.(type) {
	case Scalar:
		return writeJSONString(buf, string(x))
	case *Tree:
		if x == nil {
			buf.WriteString("{}")
			return nil
		}
		buf.WriteByte('{')
		for i, k := range x.keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeJSONString(buf, k); err != nil {
				return err
			}
			buf.WriteByte(':')
			if err := writeJSON(buf, x.values[k]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	case ScalarList:
		buf.WriteByte('[')
		for i, s := range x {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeJSONString(buf, string(s)); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case SectionList:
		buf.WriteByte('[')
		for i, s := range x {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeJSON(buf, s); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	default:
		return fmt.Errorf("unsupported value %T", v)
	}
	return nil
}

func writeJSONString(buf *bytes.Buffer, s string) error {
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		return err
	}
	// Encode terminates every value with a newline.
	buf.Truncate(buf.Len() - 1)
	return nil
}

func yamlNode(v Value) *yaml.Node {
	switch x := v.(type) {
	case Scalar:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: string(x)}
	case *Tree:
		n := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
		if x == nil {
			return n
		}
		for _, k := range x.keys {
			n.Content = append(n.Content,
				&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: k},
				yamlNode(x.values[k]))
		}
		return n
	case ScalarList:
		n := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
		for _, s := range x {
			n.Content = append(n.Content, yamlNode(s))
		}
		return n
	case SectionList:
		n := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
		for _, s := range x {
			n.Content = append(n.Content, yamlNode(s))
		}
		return n
	default:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!null"}
	}
}

func valueFromYAML(n *yaml.Node) (Value, error) {
	switch n.Kind {
	case yaml.AliasNode:
		return valueFromYAML(n.Alias)
	case yaml.ScalarNode:
		if n.Tag == "!!null" {
			return Scalar(""), nil
		}
		return Scalar(n.Value), nil
	case yaml.MappingNode:
		t := NewTree()
		for i := 0; i+1 < len(n.Content); i += 2 {
			v, err := valueFromYAML(n.Content[i+1])
			if err != nil {
				return nil, err
			}
			if err := t.Insert(n.Content[i].Value, v); err != nil {
				return nil, fmt.Errorf("line %d: %w", n.Content[i].Line, err)
			}
		}
		return t, nil
	case yaml.SequenceNode:
		items := make([]Value, 0, len(n.Content))
		for _, item := range n.Content {
			v, err := valueFromYAML(item)
			if err != nil {
				return nil, err
			}
			items = append(items, v)
		}
		return listValue(items, fmt.Sprintf("line %d", n.Line))
	default:
		return nil, fmt.Errorf("unsupported YAML node at line %d", n.Line)
	}
}

// listValue turns decoded list items into a ScalarList or a SectionList.
// where locates the list in error messages.
func listValue(items []Value, where string) (Value, error) {
	var scalars ScalarList
	var sections SectionList
	for _, v := range items {
		switch x := v.(type) {
		case Scalar:
			scalars = append(scalars, x)
		case *Tree:
			sections = append(sections, x)
		default:
			return nil, fmt.Errorf("%w: nested list at %s", ErrShapeMismatch, where)
		}
	}
	switch {
	case len(scalars) > 0 && len(sections) > 0:
		return nil, fmt.Errorf("%w: list at %s mixes values and sections", ErrShapeMismatch, where)
	case len(sections) > 0:
		return sections, nil
	default:
		if scalars == nil {
			scalars = ScalarList{}
		}
		return scalars, nil
	}
}

// writeHCLBody renders sections as blocks, labelled with their inline
// argument, and keywords as string attributes.
func writeHCLBody(body *hclwrite.Body, t *Tree) error {
	if t == nil {
		return nil
	}
	for _, k := range t.keys {
		if k == InlineKey {
			continue
		}
		if !hclsyntax.ValidIdentifier(k) {
			return fmt.Errorf("%w: key %q is not a valid HCL identifier", ErrUnsupportedFormat, k)
		}

		switch x := t.values[k].(type) {
		case Scalar:
			body.SetAttributeValue(k, cty.StringVal(string(x)))
		case ScalarList:
			if len(x) == 0 {
				body.SetAttributeValue(k, cty.EmptyTupleVal)
				continue
			}
			elems := make([]cty.Value, len(x))
			for i, s := range x {
				elems[i] = cty.StringVal(string(s))
			}
			body.SetAttributeValue(k, cty.TupleVal(elems))
		case *Tree:
			if err := writeHCLBlock(body, k, x); err != nil {
				return err
			}
		case SectionList:
			for _, s := range x {
				if err := writeHCLBlock(body, k, s); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func writeHCLBlock(body *hclwrite.Body, name string, t *Tree) error {
	var labels []string
	if inline, ok := t.Inline(); ok {
		labels = []string{inline}
	}
	block := body.AppendNewBlock(name, labels)
	return writeHCLBody(block.Body(), t)
}

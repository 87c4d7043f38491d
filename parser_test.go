package cp2kinp

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func TestNewParser(t *testing.T) {
	p := NewParser()
	if p == nil {
		t.Fatal("NewParser() returned nil")
	}
	require.Equal(t, DefaultMaxIncludeDepth, p.maxIncludeDepth)
	require.Equal(t, BareIfFalse, p.bareIf)
	require.False(t, p.strictSections)
}

func TestScannerNextLine(t *testing.T) {
	s := NewScanner(strings.NewReader("a\n\nb"))

	num, text, ok := s.NextLine()
	require.True(t, ok)
	require.Equal(t, 1, num)
	require.Equal(t, "a", text)

	num, text, ok = s.NextLine()
	require.True(t, ok)
	require.Equal(t, 2, num)
	require.Equal(t, "", text)

	num, _, _ = s.NextLine()
	require.Equal(t, 3, num)

	_, _, ok = s.NextLine()
	require.False(t, ok)
}

func TestParseScenarios(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  map[string]any
	}{
		{
			name: "nested sections",
			input: "&FORCE_EVAL\n  METHOD Quickstep\n  &DFT\n    BASIS_SET_FILE_NAME BASIS_MOLOPT\n" +
				"  &END DFT\n&END FORCE_EVAL",
			want: map[string]any{
				"FORCE_EVAL": map[string]any{
					"METHOD": "Quickstep",
					"DFT":    map[string]any{"BASIS_SET_FILE_NAME": "BASIS_MOLOPT"},
				},
			},
		},
		{
			name: "repeated sections",
			input: "&MOTION\n  &BAND\n    &REPLICA\n      COORD_FILE_NAME image_0.xyz\n    &END REPLICA\n" +
				"    &REPLICA\n      COORD_FILE_NAME image_1.xyz\n    &END REPLICA\n  &END BAND\n&END MOTION",
			want: map[string]any{
				"MOTION": map[string]any{
					"BAND": map[string]any{
						"REPLICA": []any{
							map[string]any{"COORD_FILE_NAME": "image_0.xyz"},
							map[string]any{"COORD_FILE_NAME": "image_1.xyz"},
						},
					},
				},
			},
		},
		{
			name:  "variable substitution",
			input: "@SET NREP 4\n&MOTION\n  &BAND\n    NUMBER_OF_REPLICA $NREP\n  &END BAND\n&END MOTION",
			want: map[string]any{
				"MOTION": map[string]any{"BAND": map[string]any{"NUMBER_OF_REPLICA": "4"}},
			},
		},
		{
			name:  "conditional block",
			input: "@SET FLAG 0\n@IF ${FLAG}\nDEBUG ON\n@ENDIF\nPRODUCTION ON",
			want:  map[string]any{"PRODUCTION": "ON"},
		},
		{
			name:  "inline argument",
			input: "&XC\n  &XC_FUNCTIONAL LDA\n  &END XC_FUNCTIONAL\n&END XC",
			want: map[string]any{
				"XC": map[string]any{"XC_FUNCTIONAL": map[string]any{"_": "LDA"}},
			},
		},
		{
			name:  "keys are upper-cased, values kept",
			input: "&force_eval\n  method Quickstep\n&end force_eval",
			want:  map[string]any{"FORCE_EVAL": map[string]any{"METHOD": "Quickstep"}},
		},
		{
			name:  "keyword without value",
			input: "&PRINT\n  FORCES\n&END",
			want:  map[string]any{"PRINT": map[string]any{"FORCES": ""}},
		},
		{
			name:  "repeated keyword",
			input: "&COORD\n  O 0 0 0\n  H 0 0 1\n  H 0 1 0\n&END COORD",
			want: map[string]any{
				"COORD": map[string]any{"O": "0 0 0", "H": []any{"0 0 1", "0 1 0"}},
			},
		},
		{
			name:  "value keeps inner spacing",
			input: "ABC 10.0   10.0 10.0\t",
			want:  map[string]any{"ABC": "10.0   10.0 10.0"},
		},
		{
			name:  "empty section",
			input: "&EMPTY\n&END EMPTY",
			want:  map[string]any{"EMPTY": map[string]any{}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := mustParse(t, NewParser(), tt.input)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("tree mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestParseUndefinedVariable(t *testing.T) {
	doc, err := NewParser().ParseString("&FORCE_EVAL\n  METHOD $UNDEF\n&END FORCE_EVAL")
	require.Nil(t, doc)
	require.ErrorIs(t, err, ErrUndefinedVariable)

	var perr *ParseError
	require.ErrorAs(t, err, &perr)
	require.Equal(t, "UNDEF", perr.Name)
	require.Equal(t, 2, perr.Line)
	require.Equal(t, "METHOD $UNDEF", perr.Text)
}

func TestParseCommentsAreIgnored(t *testing.T) {
	plain := mustParse(t, NewParser(), "&DFT\n  CHARGE 0\n&END DFT")
	commented := mustParse(t, NewParser(), "! header\n&DFT # open\n  CHARGE 0 ! neutral\n\n&END DFT ! done")

	if diff := cmp.Diff(plain, commented); diff != "" {
		t.Errorf("comments changed the tree (-plain +commented):\n%s", diff)
	}
}

func TestParseRepeatedKeysKeepOrder(t *testing.T) {
	var b strings.Builder
	for _, v := range []string{"c", "a", "b", "a"} {
		b.WriteString("K " + v + "\n")
	}

	got := mustParse(t, NewParser(), b.String())
	require.Equal(t, []any{"c", "a", "b", "a"}, got["K"])
}

func TestParseKeyOrder(t *testing.T) {
	doc, err := NewParser().ParseString("B 1\n&Z\n&END\nA 2")
	require.NoError(t, err)
	require.Equal(t, []string{"B", "Z", "A"}, doc.Tree.Keys())
}

func TestParseStructureErrors(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr error
		line    int
	}{
		{"unterminated section", "&A\n  B 1", ErrUnterminatedSection, 1},
		{"unterminated inner section", "&A\n  &B\n&END", ErrUnterminatedSection, 1},
		{"end without section", "A 1\n&END", ErrUnexpectedEnd, 2},
		{"bare ampersand", "&\n&END", ErrInvalidSection, 1},
		{"keyword then section", "KIND H\n&KIND O\n&END KIND", ErrShapeMismatch, 2},
		{"section then keyword", "&KIND O\n&END KIND\nKIND H", ErrShapeMismatch, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, err := NewParser().ParseString(tt.input)
			require.Nil(t, doc)
			require.ErrorIs(t, err, tt.wantErr)

			var perr *ParseError
			require.ErrorAs(t, err, &perr)
			require.Equal(t, tt.line, perr.Line)
		})
	}
}

func TestParseStrictSections(t *testing.T) {
	input := "&A\n  &B\n  &END C\n&END A"

	_, err := NewParser().ParseString(input)
	require.NoError(t, err, "permissive mode closes on any &END")

	_, err = NewParser().WithStrictSections(true).ParseString(input)
	require.ErrorIs(t, err, ErrSectionMismatch)
	var perr *ParseError
	require.ErrorAs(t, err, &perr)
	require.Equal(t, 3, perr.Line)

	_, err = NewParser().WithStrictSections(true).ParseString("&A\n  &b\n  &END\n&end a")
	require.NoError(t, err, "names match case-insensitively and may be omitted")
}

func TestParseFileMissing(t *testing.T) {
	_, err := NewParser().ParseFile(filepath.Join(t.TempDir(), "absent.inp"))
	require.Error(t, err)
}

func TestParseIsDeterministic(t *testing.T) {
	path := filepath.Join("testdata", "neb.inp")

	first, err := NewParser().ParseFile(path)
	require.NoError(t, err)
	second, err := NewParser().ParseFile(path)
	require.NoError(t, err)

	a, err := json.Marshal(first.Tree)
	require.NoError(t, err)
	b, err := json.Marshal(second.Tree)
	require.NoError(t, err)
	require.True(t, bytes.Equal(a, b), "trees differ:\n%s\n%s", a, b)
}

func TestParserConcurrentUse(t *testing.T) {
	p := NewParser()
	want, err := p.ParseFile(filepath.Join("testdata", "neb.inp"))
	require.NoError(t, err)

	var wg sync.WaitGroup
	results := make([]map[string]any, 16)
	errs := make([]error, len(results))
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			name := "neb.inp"
			if i%2 == 1 {
				name = "h2o_energy.inp"
			}
			doc, err := p.ParseFile(filepath.Join("testdata", name))
			errs[i] = err
			if err == nil {
				results[i] = doc.Tree.Map()
			}
		}(i)
	}
	wg.Wait()

	for i := range results {
		require.NoError(t, errs[i])
		if i%2 == 0 {
			if diff := cmp.Diff(want.Tree.Map(), results[i]); diff != "" {
				t.Errorf("parse %d differs (-want +got):\n%s", i, diff)
			}
		}
	}
}

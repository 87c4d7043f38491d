package cp2kinp

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseExampleFiles(t *testing.T) {
	tests := []struct {
		file     string
		keys     []string
		elements []string
	}{
		{"h2o_energy.inp", []string{"GLOBAL", "FORCE_EVAL"}, []string{"H", "O"}},
		{"neb.inp", []string{"GLOBAL", "MOTION", "FORCE_EVAL"}, []string{"H", "O"}},
		{"mixing.inp", []string{"MULTIPLE_FORCE_EVALS", "FORCE_EVAL"}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.file, func(t *testing.T) {
			doc := parseTestdata(t, tt.file)
			require.Equal(t, tt.keys, doc.Tree.Keys())

			kinds, err := ExtractKinds(doc.Tree)
			if tt.elements == nil {
				require.True(t, IsNoKindSection(err), "got %v", err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.elements, kinds.Elements())
		})
	}
}

func TestParseExampleValues(t *testing.T) {
	doc := parseTestdata(t, "h2o_energy.inp")

	global := doc.Tree.Sections("GLOBAL")
	require.Len(t, global, 1)
	project, _ := global[0].Get("PROJECT")
	require.Equal(t, Scalar("h2o"), project)

	dft := doc.Tree.Sections(ForceEvalKey)[0].Sections("DFT")[0]
	cutoff, _ := dft.Sections("MGRID")[0].Get("CUTOFF")
	require.Equal(t, Scalar("400"), cutoff, "comment after a value is dropped")

	xc := dft.Sections("XC")[0].Sections("XC_FUNCTIONAL")[0]
	name, ok := xc.Inline()
	require.True(t, ok)
	require.Equal(t, "PBE", name)
}

func TestParseExampleConditionalAndInclude(t *testing.T) {
	doc := parseTestdata(t, "neb.inp")

	band := doc.Tree.Sections("MOTION")[0].Sections("BAND")[0]
	n, _ := band.Get("NUMBER_OF_REPLICA")
	require.Equal(t, Scalar("2"), n)
	require.Len(t, band.Sections("REPLICA"), 2)

	fe := doc.Tree.Sections(ForceEvalKey)[0]
	_, ok := fe.Get("PRINT")
	require.False(t, ok, "@IF 0 block should be dropped")

	basis, _ := fe.Sections(SubsysKey)[0].Sections(KindKey)[0].Get("BASIS_SET")
	require.Equal(t, Scalar("DZVP-MOLOPT-SR-GTH"), basis)
}

func TestParseExampleFromAnotherDirectory(t *testing.T) {
	abs, err := filepath.Abs(filepath.Join("testdata", "neb.inp"))
	require.NoError(t, err)

	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	doc, err := NewParser().ParseFile(abs)
	require.NoError(t, err)
	_, err = ExtractKinds(doc.Tree)
	require.NoError(t, err, "includes resolve against the including file")
}

func ExampleParser_ParseString() {
	input := `@SET ELEMENT O
&FORCE_EVAL
  METHOD Quickstep
  &SUBSYS
    &KIND $ELEMENT
      BASIS_SET DZVP-MOLOPT-SR-GTH
    &END KIND
  &END SUBSYS
&END FORCE_EVAL`

	doc, err := NewParser().ParseString(input)
	if err != nil {
		fmt.Println(err)
		return
	}

	kinds, _ := ExtractKinds(doc.Tree)
	fmt.Println(kinds.Elements())

	if err := Encode(os.Stdout, doc.Config(), FormatJSON); err != nil {
		fmt.Println(err)
	}
	// Output:
	// [O]
	// {
	//   "FORCE_EVAL": {
	//     "METHOD": "Quickstep"
	//   }
	// }
}

package app

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/ecint/cp2kinp"
	"github.com/ecint/cp2kinp/internal/ctxlog"
)

func convertFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "format",
			Aliases: []string{"f"},
			Usage:   "config format (json, yaml or hcl); inferred from OUTPUT when empty",
		},
		&cli.StringFlag{
			Name:    "kind",
			Aliases: []string{"k"},
			Usage:   "also write the kind section to `FILE`",
		},
		&cli.StringFlag{
			Name:  "kind-format",
			Usage: "kind section format; inferred from the --kind file when empty",
		},
		&cli.BoolFlag{
			Name:  "strict",
			Usage: "require &END NAME to match the section it closes",
		},
		&cli.StringSliceFlag{
			Name:    "include-dir",
			Aliases: []string{"I"},
			Usage:   "search `DIR` for @INCLUDE files",
		},
	}
}

// convert parses INPUT and writes its config template to OUTPUT, plus the
// kind section when --kind is given. Every output is encoded before the
// first file is written.
func convert(c *cli.Context) error {
	logger := ctxlog.FromContext(c.Context)

	if c.NArg() < 1 {
		_ = cli.ShowAppHelp(c)
		return cli.Exit("missing INPUT", 2)
	}
	if c.NArg() > 2 {
		return cli.Exit(fmt.Sprintf("unexpected arguments: %v", c.Args().Slice()[2:]), 2)
	}
	input := c.Args().Get(0)
	output := c.Args().Get(1)
	if output == "" {
		output = DefaultOutput
	}

	configFormat, err := outputFormat(output, c.String("format"))
	if err != nil {
		return err
	}
	kindPath := c.String("kind")
	var kindFormat cp2kinp.Format
	if kindPath != "" {
		if kindFormat, err = outputFormat(kindPath, c.String("kind-format")); err != nil {
			return err
		}
	}

	parser := cp2kinp.NewParser().
		WithStrictSections(c.Bool("strict")).
		WithIncludeDirs(c.StringSlice("include-dir")...).
		WithLogger(logger)
	doc, err := parser.ParseFile(input)
	if err != nil {
		return fmt.Errorf("parse %s: %w", input, err)
	}
	logGlobal(logger, doc)

	files := []pendingFile{}
	data, err := encode(doc.Config(), configFormat)
	if err != nil {
		return fmt.Errorf("encode %s: %w", output, err)
	}
	files = append(files, pendingFile{path: output, data: data})

	if kinds, ok := doc.Kinds(); ok && kindPath != "" {
		data, err := encode(kinds.Tree(), kindFormat)
		if err != nil {
			return fmt.Errorf("encode %s: %w", kindPath, err)
		}
		files = append(files, pendingFile{path: kindPath, data: data})
	}

	return writeAll(logger, files)
}

type pendingFile struct {
	path string
	data []byte
}

func writeAll(logger *slog.Logger, files []pendingFile) error {
	for _, f := range files {
		if err := os.WriteFile(f.path, f.data, 0o644); err != nil {
			return fmt.Errorf("write %s: %w", f.path, err)
		}
		logger.Info("Wrote file.", "path", f.path, "bytes", len(f.data))
	}
	return nil
}

// outputFormat returns the forced format when set, else the one implied by
// the file extension.
func outputFormat(path, forced string) (cp2kinp.Format, error) {
	if forced != "" {
		return cp2kinp.ParseFormat(forced)
	}
	return cp2kinp.FormatFromPath(path)
}

func encode(t *cp2kinp.Tree, f cp2kinp.Format) ([]byte, error) {
	var buf bytes.Buffer
	if err := cp2kinp.Encode(&buf, t, f); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// globalSection is the part of &GLOBAL reported after parsing.
type globalSection struct {
	Project    string `inp:"PROJECT"`
	RunType    string `inp:"RUN_TYPE"`
	PrintLevel string `inp:"PRINT_LEVEL"`
}

func logGlobal(logger *slog.Logger, doc *cp2kinp.Document) {
	var in struct {
		Global globalSection `inp:"GLOBAL"`
	}
	if err := cp2kinp.Unmarshal(doc.Tree, &in); err != nil {
		logger.Debug("Could not read &GLOBAL.", "error", err)
		return
	}
	logger.Info("Parsed CP2K input.",
		"file", doc.Name,
		"project", in.Global.Project,
		"run_type", in.Global.RunType,
		"print_level", in.Global.PrintLevel,
		"sections", doc.Tree.Len())
}

package app

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/ecint/cp2kinp"
	"github.com/ecint/cp2kinp/internal/ctxlog"
)

func assembleCommand() *cli.Command {
	return &cli.Command{
		Name:      "assemble",
		Usage:     "insert a kind section into a config template",
		ArgsUsage: "CONFIG OUTPUT",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "kind",
				Aliases: []string{"k"},
				Usage:   "read the kind section from `FILE` (json or yaml)",
			},
			&cli.StringSliceFlag{
				Name:    "elements",
				Aliases: []string{"e"},
				Usage:   "element symbols to keep, or to generate kinds for when --kind is not given",
			},
			&cli.StringFlag{
				Name:  "basis-set",
				Value: cp2kinp.DZVPPBE.BasisSet,
				Usage: "basis set of generated kinds",
			},
			&cli.StringFlag{
				Name:  "potential",
				Value: cp2kinp.DZVPPBE.Potential,
				Usage: "pseudopotential family of generated kinds",
			},
			&cli.StringFlag{
				Name:    "format",
				Aliases: []string{"f"},
				Usage:   "output format; inferred from OUTPUT when empty",
			},
		},
		Action: assemble,
	}
}

// assemble reads a config template, adds kinds to every
// FORCE_EVAL/SUBSYS and writes the result.
func assemble(c *cli.Context) error {
	logger := ctxlog.FromContext(c.Context)

	if c.NArg() != 2 {
		return cli.Exit("assemble needs CONFIG and OUTPUT", 2)
	}
	configPath, output := c.Args().Get(0), c.Args().Get(1)

	outFormat, err := outputFormat(output, c.String("format"))
	if err != nil {
		return err
	}

	config, err := readTree(configPath)
	if err != nil {
		return err
	}

	kinds, err := loadKinds(c)
	if err != nil {
		return err
	}
	logger.Debug("Kinds loaded.", "elements", kinds.Elements())

	tree, err := cp2kinp.Assemble(config, kinds)
	if err != nil {
		return fmt.Errorf("assemble %s: %w", configPath, err)
	}
	data, err := encode(tree, outFormat)
	if err != nil {
		return fmt.Errorf("encode %s: %w", output, err)
	}
	return writeAll(logger, []pendingFile{{path: output, data: data}})
}

func loadKinds(c *cli.Context) (cp2kinp.KindSection, error) {
	elements := c.StringSlice("elements")

	if path := c.String("kind"); path != "" {
		t, err := readTree(path)
		if err != nil {
			return nil, err
		}
		kinds, err := cp2kinp.KindsFromTree(t)
		if err != nil {
			return nil, fmt.Errorf("kind section %s: %w", path, err)
		}
		if len(elements) == 0 {
			return kinds, nil
		}
		return kinds.Select(elements)
	}

	if len(elements) == 0 {
		return nil, cli.Exit("assemble needs --kind or --elements", 2)
	}
	preset := cp2kinp.Preset{BasisSet: c.String("basis-set"), Potential: c.String("potential")}
	return preset.Kinds(elements...)
}

func readTree(path string) (*cp2kinp.Tree, error) {
	format, err := cp2kinp.FormatFromPath(path)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	t, err := cp2kinp.Decode(f, format)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return t, nil
}

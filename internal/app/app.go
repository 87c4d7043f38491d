// Package app wires the inp2config command line: flag parsing, logger
// setup and the convert and assemble actions.
package app

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/ecint/cp2kinp/internal/ctxlog"
)

// DefaultOutput is the config file written when no OUTPUT is given.
const DefaultOutput = "ecint.json"

// New builds the inp2config application. Regular output goes to outW,
// logs and errors to errW.
func New(outW, errW io.Writer) *cli.App {
	return &cli.App{
		Name:      "inp2config",
		Usage:     "convert a CP2K input file into a JSON, YAML or HCL config",
		ArgsUsage: "INPUT [OUTPUT]",
		Writer:    outW,
		ErrWriter: errW,
		Flags: append([]cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Value:   "warn",
				Usage:   "logging level: debug, info, warn or error",
				EnvVars: []string{"INP2CONFIG_LOG_LEVEL"},
			},
			&cli.StringFlag{
				Name:    "log-format",
				Value:   "text",
				Usage:   "log output format: text or json",
				EnvVars: []string{"INP2CONFIG_LOG_FORMAT"},
			},
		}, convertFlags()...),
		Before: func(c *cli.Context) error {
			logger, err := newLogger(c.String("log-level"), c.String("log-format"), errW)
			if err != nil {
				return cli.Exit(err.Error(), 2)
			}
			c.Context = ctxlog.WithLogger(c.Context, logger)
			logger.Debug("Logger configured.")
			return nil
		},
		Action: convert,
		Commands: []*cli.Command{
			assembleCommand(),
		},
		// Exit codes are handled by the caller of Run.
		ExitErrHandler: func(*cli.Context, error) {},
	}
}

// newLogger creates and configures a new slog.Logger instance. It does not
// set the global logger, allowing for isolated logger instances.
func newLogger(levelStr, formatStr string, outW io.Writer) (*slog.Logger, error) {
	var level slog.Level
	switch strings.ToLower(levelStr) {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return nil, fmt.Errorf("invalid log-level %q: must be 'debug', 'info', 'warn', or 'error'", levelStr)
	}

	handlerOpts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler

	switch strings.ToLower(formatStr) {
	case "json":
		handler = slog.NewJSONHandler(outW, handlerOpts)
	case "text":
		handler = slog.NewTextHandler(outW, handlerOpts)
	default:
		return nil, fmt.Errorf("invalid log-format %q: must be 'text' or 'json'", formatStr)
	}

	return slog.New(handler), nil
}

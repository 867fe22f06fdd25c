package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"

	"github.com/hpungsan/browsediary/internal/config"
	"github.com/hpungsan/browsediary/internal/errors"
	"github.com/hpungsan/browsediary/internal/history"
	"github.com/hpungsan/browsediary/internal/logging"
	"github.com/hpungsan/browsediary/internal/mcp"
	"github.com/hpungsan/browsediary/internal/pipeline"
	"github.com/hpungsan/browsediary/internal/record"
	"github.com/hpungsan/browsediary/internal/render"
)

// newCLIApp creates the CLI application with all commands.
func newCLIApp(stdin io.Reader, stdout, stderr io.Writer) *cli.App {
	app := &cli.App{
		Name:      "browsediary",
		Usage:     "Append a day of browsing history to a notes vault",
		Version:   Version,
		Reader:    stdin,
		Writer:    stdout,
		ErrWriter: stderr,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "base-dir",
				Usage:   "Directory holding config.json/config.yaml and .env (default ~/.browsediary)",
				EnvVars: []string{config.EnvPrefix + "HOME"},
			},
			&cli.StringFlag{Name: "log-level", Usage: "Override log_level: debug|info|warn|error"},
		},
		Commands: []*cli.Command{
			runCmd(),
			collectCmd(),
			renderCmd(),
			configCmd(),
			serveCmd(),
		},
	}
	// Disable default exit error handler to allow proper error return in tests
	app.ExitErrHandler = func(_ *cli.Context, _ error) {}
	return app
}

// env is what every command needs: the loaded config and a logger.
type env struct {
	cfg      *config.Config
	logger   *slog.Logger
	closeLog func() error
}

// loadEnv loads configuration from the base dir and builds the logger.
func loadEnv(c *cli.Context) (*env, error) {
	baseDir := c.String("base-dir")
	if baseDir == "" {
		dir, err := config.DefaultBaseDir()
		if err != nil {
			return nil, errors.NewInternal(err)
		}
		baseDir = dir
	}

	cfg, err := config.Load(baseDir)
	if err != nil {
		return nil, err
	}
	if level := c.String("log-level"); level != "" {
		cfg.LogLevel = level
	}

	logger, closeLog, err := logging.New(cfg, c.App.ErrWriter)
	if err != nil {
		return nil, err
	}
	return &env{cfg: cfg, logger: logger, closeLog: closeLog}, nil
}

// runCmd creates the run command.
func runCmd() *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "Collect, render and append one day of browsing history to the diary",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "date", Aliases: []string{"d"}, Usage: "Day to process, YYYY-MM-DD (default: yesterday)"},
			&cli.BoolFlag{Name: "force", Aliases: []string{"f"}, Usage: "Accepted for scheduler compatibility; logged only"},
		},
		Action: func(c *cli.Context) error {
			e, err := loadEnv(c)
			if err != nil {
				return outputError(err)
			}
			defer e.closeLog()

			p, err := pipeline.New(e.cfg, e.logger)
			if err != nil {
				return outputError(err)
			}

			result, err := p.Run(c.Context, pipeline.Options{
				Date:  c.String("date"),
				Force: c.Bool("force"),
			})
			if err != nil {
				return outputError(err)
			}

			return outputJSON(c.App.Writer, result)
		},
	}
}

// collectCmd creates the collect command.
func collectCmd() *cli.Command {
	return &cli.Command{
		Name:  "collect",
		Usage: "Print one day of browsing activity as JSON lines",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "date", Aliases: []string{"d"}, Usage: "Day to collect, YYYY-MM-DD (default: yesterday)"},
		},
		Action: func(c *cli.Context) error {
			e, err := loadEnv(c)
			if err != nil {
				return outputError(err)
			}
			defer e.closeLog()

			collector, err := pipeline.NewCollector(e.cfg, e.logger)
			if err != nil {
				return outputError(err)
			}
			day, err := collector.ResolveDay(c.String("date"))
			if err != nil {
				return outputError(err)
			}

			records, err := collector.Collect(c.Context, day)
			if err != nil {
				return outputError(err)
			}
			e.logger.Info("collected", "date", day.Format(history.DateLayout), "records", len(records))

			if err := record.WriteJSONL(c.App.Writer, records); err != nil {
				return outputError(errors.NewInternal(err))
			}
			return nil
		},
	}
}

// renderCmd creates the render command.
func renderCmd() *cli.Command {
	return &cli.Command{
		Name:  "render",
		Usage: "Render JSON-line records from stdin as a diary block",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "html", Usage: "Render to HTML instead of markdown"},
		},
		Action: func(c *cli.Context) error {
			if !stdinHasData(c.App.Reader) {
				return outputError(errors.NewInvalidRequest("records must be piped via stdin"))
			}

			e, err := loadEnv(c)
			if err != nil {
				return outputError(err)
			}
			defer e.closeLog()

			renderer, err := render.New(e.cfg.Header, e.cfg.LineTemplate)
			if err != nil {
				return outputError(err)
			}

			records, err := record.ReadJSONL(c.App.Reader, e.logger)
			if err != nil {
				return outputError(err)
			}

			block := renderer.Render(records)
			if c.Bool("html") {
				html, err := render.ToHTML(block)
				if err != nil {
					return outputError(err)
				}
				_, err = io.WriteString(c.App.Writer, html)
				return err
			}
			_, err = io.WriteString(c.App.Writer, block.String())
			return err
		},
	}
}

// configCmd creates the config command.
func configCmd() *cli.Command {
	return &cli.Command{
		Name:  "config",
		Usage: "Print the effective configuration as YAML",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "check", Usage: "Fail if the configuration cannot drive a run"},
		},
		Action: func(c *cli.Context) error {
			e, err := loadEnv(c)
			if err != nil {
				return outputError(err)
			}
			defer e.closeLog()

			if c.Bool("check") {
				if err := e.cfg.Validate(); err != nil {
					return outputError(err)
				}
			}

			enc := yaml.NewEncoder(c.App.Writer)
			enc.SetIndent(2)
			if err := enc.Encode(e.cfg); err != nil {
				return outputError(errors.NewInternal(err))
			}
			return enc.Close()
		},
	}
}

// serveCmd creates the serve command.
func serveCmd() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve read-only history tools over MCP on stdio",
		Action: func(c *cli.Context) error {
			e, err := loadEnv(c)
			if err != nil {
				return outputError(err)
			}
			defer e.closeLog()

			collector, err := pipeline.NewCollector(e.cfg, e.logger)
			if err != nil {
				return outputError(err)
			}
			renderer, err := render.New(e.cfg.Header, e.cfg.LineTemplate)
			if err != nil {
				return outputError(err)
			}

			e.logger.Info("mcp server starting", "version", Version, "tools", strings.Join(mcp.AllToolNames(), ","))
			if err := mcp.Run(collector, renderer, Version); err != nil {
				return outputError(errors.NewInternal(err))
			}
			return nil
		},
	}
}

// Helper functions

// outputJSON marshals result to w as JSON.
func outputJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// outputError formats error for CLI as a single line.
func outputError(err error) error {
	if diaryErr, ok := errors.AsDiaryError(err); ok {
		return cli.Exit(fmt.Sprintf("[%s] %s", diaryErr.Code, oneLine(diaryErr.Message)), 1)
	}
	return cli.Exit(oneLine(err.Error()), 1)
}

// oneLine collapses line breaks so diagnostics stay on one stderr line.
func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// stdinHasData returns true if r has piped data (not a terminal).
func stdinHasData(r io.Reader) bool {
	f, ok := r.(*os.File)
	if !ok {
		return r != nil
	}
	stat, err := f.Stat()
	if err != nil {
		return false
	}
	return (stat.Mode() & os.ModeCharDevice) == 0
}

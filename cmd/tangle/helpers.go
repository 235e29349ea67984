package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
	"github.com/urfave/cli/v2"

	"github.com/panbanda/tangle/internal/output"
	"github.com/panbanda/tangle/internal/service/analysis"
	"github.com/panbanda/tangle/pkg/config"
)

// getRoot returns the project root from the first argument, defaulting to "."
func getRoot(c *cli.Context) (string, error) {
	root := "."
	if c.Args().Len() > 0 {
		root = c.Args().First()
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("invalid path %s: %w", root, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", err
	}
	if !info.IsDir() {
		return "", fmt.Errorf("%s is not a directory", root)
	}
	return abs, nil
}

// loadConfig loads --config when given, else the first config file in root.
// Global flags are applied on top and the result is validated again.
func loadConfig(c *cli.Context, root string) (*config.Config, error) {
	var (
		cfg  *config.Config
		path string
		err  error
	)
	if explicit := c.String("config"); explicit != "" {
		path = explicit
		cfg, err = config.Load(explicit)
	} else {
		cfg, path, err = config.LoadOrDefault(root)
	}
	if err != nil {
		return nil, err
	}
	if path != "" {
		slog.Debug("loaded config", "path", path)
	}

	if c.IsSet("format") {
		cfg.Output.Format = c.String("format")
	}
	if c.IsSet("workers") {
		cfg.Workers = c.Int("workers")
	}
	if c.Bool("no-cache") {
		cfg.Cache.Enabled = false
	}
	if c.Bool("no-color") {
		cfg.Output.Color = false
	}
	return cfg, cfg.Validate()
}

// newService builds the analysis service for a command. Progress is drawn
// only for text output on an interactive stderr.
func newService(c *cli.Context, cfg *config.Config) *analysis.Service {
	opts := []analysis.Option{
		analysis.WithConfig(cfg),
		analysis.WithLogger(slog.Default()),
	}
	if cfg.Output.Format == string(output.FormatText) && stderrIsTerminal(c) {
		opts = append(opts, analysis.WithProgress(c.App.ErrWriter))
	}
	return analysis.New(opts...)
}

func stderrIsTerminal(c *cli.Context) bool {
	f, ok := c.App.ErrWriter.(*os.File)
	return ok && isatty.IsTerminal(f.Fd())
}

// newFormatter writes to --output when given, else to the app writer.
func newFormatter(c *cli.Context, cfg *config.Config) (*output.Formatter, error) {
	format := output.ParseFormat(cfg.Output.Format)
	if path := c.String("output"); path != "" {
		return output.NewFileFormatter(format, path)
	}
	return output.NewFormatter(format, c.App.Writer, cfg.Output.Color && !color.NoColor), nil
}

// signalContext cancels on SIGINT or SIGTERM.
func signalContext(c *cli.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
}

// setup resolves everything a command needs.
func setup(c *cli.Context) (string, *config.Config, error) {
	root, err := getRoot(c)
	if err != nil {
		return "", nil, err
	}
	cfg, err := loadConfig(c, root)
	if err != nil {
		return "", nil, err
	}
	return root, cfg, nil
}

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/fatih/color"
	"github.com/urfave/cli/v2"

	"github.com/panbanda/tangle/internal/output"
	"github.com/panbanda/tangle/internal/service/analysis"
	"github.com/panbanda/tangle/pkg/config"
	"github.com/panbanda/tangle/pkg/watch"
)

func cyclesCmd() *cli.Command {
	return &cli.Command{
		Name:      "cycles",
		Aliases:   []string{"circular"},
		Usage:     "Detect circular imports between modules",
		ArgsUsage: "[path]",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "max-cycles",
				Usage: "Fail when more cycles are found (negative = report only)",
			},
			&cli.StringFlag{
				Name:  "granularity",
				Usage: "Graph nodes: module or root",
			},
		},
		Action: func(c *cli.Context) error {
			return runAnalysis(c, analysis.Selection{Cycles: true}, func(cfg *config.Config) {
				if c.IsSet("max-cycles") {
					cfg.Cycles.MaxCycles = c.Int("max-cycles")
				}
				if c.IsSet("granularity") {
					cfg.Cycles.Granularity = c.String("granularity")
				}
			})
		},
	}
}

func orphansCmd() *cli.Command {
	return &cli.Command{
		Name:      "orphans",
		Aliases:   []string{"unreachable"},
		Usage:     "Find modules no entry point can reach",
		ArgsUsage: "[path]",
		Flags: []cli.Flag{
			&cli.StringSliceFlag{
				Name:  "entry",
				Usage: "Extra entry point module (repeatable)",
			},
			&cli.StringSliceFlag{
				Name:  "dynamic-root",
				Usage: "Module prefix loaded dynamically (repeatable)",
			},
		},
		Action: func(c *cli.Context) error {
			return runAnalysis(c, analysis.Selection{Reachability: true}, func(cfg *config.Config) {
				rc := &cfg.Reachability
				rc.ExtraEntryPoints = append(rc.ExtraEntryPoints, c.StringSlice("entry")...)
				rc.DynamicRoots = append(rc.DynamicRoots, c.StringSlice("dynamic-root")...)
			})
		},
	}
}

func clonesCmd() *cli.Command {
	return &cli.Command{
		Name:      "clones",
		Aliases:   []string{"dup"},
		Usage:     "Detect duplicated functions, methods and classes",
		ArgsUsage: "[path]",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "min-lines",
				Usage: "Minimum fragment size in lines",
			},
			&cli.Float64Flag{
				Name:  "threshold",
				Usage: "Minimum similarity for a reported pair",
			},
			&cli.StringSliceFlag{
				Name:  "type",
				Usage: "Clone type to report: type1, type2, type3 (repeatable)",
			},
			&cli.StringFlag{
				Name:  "grouping",
				Usage: "Grouping mode: connected or k_core",
			},
		},
		Action: func(c *cli.Context) error {
			return runAnalysis(c, analysis.Selection{Clones: true}, func(cfg *config.Config) {
				cc := &cfg.Clones
				if c.IsSet("min-lines") {
					cc.MinLines = c.Int("min-lines")
				}
				if c.IsSet("threshold") {
					cc.SimilarityThreshold = c.Float64("threshold")
				}
				if c.IsSet("type") {
					cc.Types = c.StringSlice("type")
				}
				if c.IsSet("grouping") {
					cc.Grouping = c.String("grouping")
				}
			})
		},
	}
}

func analyzeCmd() *cli.Command {
	return &cli.Command{
		Name:      "analyze",
		Aliases:   []string{"all"},
		Usage:     "Run every analysis",
		ArgsUsage: "[path]",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "max-cycles",
				Usage: "Fail when more cycles are found (negative = report only)",
			},
		},
		Action: func(c *cli.Context) error {
			return runAnalysis(c, analysis.All(), func(cfg *config.Config) {
				if c.IsSet("max-cycles") {
					cfg.Cycles.MaxCycles = c.Int("max-cycles")
				}
			})
		},
	}
}

// runAnalysis loads configuration, applies command flags, runs the selected
// analyses and renders them. A failed cycle gate yields errCheckFailed.
func runAnalysis(c *cli.Context, sel analysis.Selection, override func(*config.Config)) error {
	root, cfg, err := setup(c)
	if err != nil {
		return err
	}
	override(cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, stop := signalContext(c)
	defer stop()

	res, err := newService(c, cfg).Run(ctx, root, sel)
	if err != nil {
		return err
	}

	f, err := newFormatter(c, cfg)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := f.Output(render(root, res, f.Colored())); err != nil {
		return err
	}
	if f.Format() == output.FormatText {
		if n := len(res.Facts.Failed); n > 0 {
			f.Warning("%d files could not be parsed and were skipped", n)
		}
		if res.Check != nil {
			if res.Check.Passed {
				f.Success("%s", res.Check.Message)
			} else {
				f.Error("%s", res.Check.Message)
			}
		}
	}
	if !res.Passed() {
		return errCheckFailed
	}
	return nil
}

// render lays out the selected reports. Machine formats serialize the
// single report of a focused command directly and the whole Result
// otherwise.
func render(root string, res *analysis.Result, colored bool) output.Renderable {
	var sections []output.Renderable
	if res.Cycles != nil {
		sections = append(sections, output.CyclesTable(root, res.Cycles, colored))
	}
	if res.Reachability != nil {
		sections = append(sections, output.OrphansTable(root, res.Reachability))
	}
	if res.Clones != nil {
		sections = append(sections, output.ClonesTable(root, res.Clones))
	}
	if len(sections) == 1 {
		return sections[0]
	}
	return &output.Report{
		Title:    fmt.Sprintf("Tangle analysis of %s (%d files)", root, len(res.Facts.Files)),
		Sections: sections,
		Data:     res,
	}
}

func watchCmd() *cli.Command {
	return &cli.Command{
		Name:      "watch",
		Usage:     "Rerun every analysis when Python files change",
		ArgsUsage: "[path]",
		Flags: []cli.Flag{
			&cli.DurationFlag{
				Name:  "debounce",
				Value: watch.DefaultDebounce,
				Usage: "Quiet period before a batch of changes is analyzed",
			},
		},
		Action: runWatch,
	}
}

// runWatch analyzes once, then again after every settled batch of changes.
// Cycle gate failures are reported but never stop the loop.
func runWatch(c *cli.Context) error {
	root, cfg, err := setup(c)
	if err != nil {
		return err
	}
	ctx, stop := signalContext(c)
	defer stop()

	svc := newService(c, cfg)
	analyze := func(ctx context.Context) {
		res, err := svc.Run(ctx, root, analysis.All())
		if err != nil {
			if ctx.Err() == nil {
				color.Red("Error: %v", err)
			}
			return
		}
		f, err := newFormatter(c, cfg)
		if err != nil {
			color.Red("Error: %v", err)
			return
		}
		defer f.Close()
		if err := f.Output(render(root, res, f.Colored())); err != nil {
			color.Red("Error: %v", err)
		}
	}

	w, err := watch.NewWatcher(root, cfg, c.Duration("debounce"))
	if err != nil {
		return err
	}
	defer w.Stop()
	w.SetLogger(slog.Default())
	w.SetCallback(func(ctx context.Context, changed []string) {
		color.Yellow("%d files changed", len(changed))
		analyze(ctx)
	})

	analyze(ctx)
	color.Cyan("Watching for changes in %s... (Ctrl+C to stop)", root)
	if err := w.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func cacheCmd() *cli.Command {
	return &cli.Command{
		Name:  "cache",
		Usage: "Inspect or clear the process cache",
		Subcommands: []*cli.Command{
			{
				Name:      "clear",
				Usage:     "Remove every cached entry",
				ArgsUsage: "[path]",
				Action:    runCacheClear,
			},
			{
				Name:      "stats",
				Usage:     "Show cache size",
				ArgsUsage: "[path]",
				Action:    runCacheStats,
			},
		},
	}
}

func runCacheClear(c *cli.Context) error {
	root, cfg, err := setup(c)
	if err != nil {
		return err
	}
	f, err := newFormatter(c, cfg)
	if err != nil {
		return err
	}
	defer f.Close()

	err = analysis.New(analysis.WithConfig(cfg)).ClearCache(c.Context, root)
	if errors.Is(err, analysis.ErrNoCache) {
		f.Warning("%v", err)
		return nil
	}
	if err != nil {
		return err
	}
	f.Success("Cache cleared: %s", cfg.CachePath(root))
	return nil
}

func runCacheStats(c *cli.Context) error {
	root, cfg, err := setup(c)
	if err != nil {
		return err
	}
	f, err := newFormatter(c, cfg)
	if err != nil {
		return err
	}
	defer f.Close()

	stats, err := analysis.New(analysis.WithConfig(cfg)).CacheStats(c.Context, root)
	if errors.Is(err, analysis.ErrNoCache) {
		f.Warning("%v", err)
		return nil
	}
	if err != nil {
		return err
	}
	return f.Output(&output.Table{
		Title:   "Cache",
		Headers: []string{"Path", "Entries", "Payload Bytes"},
		Rows: [][]string{{
			stats.Path,
			fmt.Sprintf("%d", stats.Entries),
			fmt.Sprintf("%d", stats.PayloadBytes),
		}},
		Data: stats,
	})
}

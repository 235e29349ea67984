// Package analysis wires discovery, cached fact extraction and the three
// analyzers into the runs the command line exposes.
package analysis

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"

	"github.com/panbanda/tangle/internal/cache"
	"github.com/panbanda/tangle/internal/fileproc"
	"github.com/panbanda/tangle/internal/progress"
	"github.com/panbanda/tangle/internal/scanner"
	"github.com/panbanda/tangle/pkg/analyzer/clones"
	"github.com/panbanda/tangle/pkg/config"
	"github.com/panbanda/tangle/pkg/models"
	"github.com/panbanda/tangle/pkg/parser"
	"github.com/panbanda/tangle/pkg/python"
)

// factsVersion is bumped whenever the shape or meaning of cached facts changes.
const factsVersion = 1

// Service orchestrates code analysis operations.
type Service struct {
	config   *config.Config
	logger   *slog.Logger
	progress io.Writer
	noCache  bool
}

// Option configures a Service.
type Option func(*Service)

// WithConfig sets the configuration.
func WithConfig(cfg *config.Config) Option {
	return func(s *Service) {
		s.config = cfg
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		s.logger = l
	}
}

// WithProgress draws progress bars on w. Progress is off by default.
func WithProgress(w io.Writer) Option {
	return func(s *Service) {
		s.progress = w
	}
}

// WithoutCache bypasses the process cache regardless of configuration.
func WithoutCache() Option {
	return func(s *Service) {
		s.noCache = true
	}
}

// New creates a new analysis service.
func New(opts ...Option) *Service {
	s := &Service{
		config: config.DefaultConfig(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Config returns the configuration in use.
func (s *Service) Config() *config.Config {
	return s.config
}

// Facts is the extracted state of one project.
type Facts struct {
	Root      string             `json:"root"`
	Files     []models.FileFacts `json:"-"`
	Failed    []string           `json:"failed,omitempty"`
	Oversized int                `json:"oversized,omitempty"`
}

// Collect discovers the Python files under root and extracts their facts,
// serving unchanged files from the process cache. Files that cannot be read
// or parsed are listed in Failed and contribute nothing.
func (s *Service) Collect(ctx context.Context, root string) (*Facts, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve root %s: %w", root, err)
	}

	spinner := s.spinner("Scanning")
	files, err := scanner.NewScanner(s.config).WithLogger(s.logger).ScanDir(absRoot)
	if err != nil {
		spinner.FinishError(err)
		return nil, err
	}
	spinner.FinishSuccess()

	files, oversized := scanner.FilterBySize(files, s.config.Exclude.MaxFileSize)
	if oversized > 0 {
		s.logger.Info("skipped oversized files", "count", oversized, "max_bytes", s.config.Exclude.MaxFileSize)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	cloneCfg, err := s.config.Clones.Build()
	if err != nil {
		return nil, err
	}
	extractor, err := clones.NewExtractor(cloneCfg)
	if err != nil {
		return nil, err
	}

	c := s.openCache(absRoot)
	defer c.Close()

	tracker := s.tracker("Extracting", len(files))
	proc := fileproc.New(
		fileproc.WithWorkers(s.config.Workers),
		fileproc.WithCache(c),
		fileproc.WithSettingsKey(settingsKey(cloneCfg)),
		fileproc.WithLogger(s.logger),
		fileproc.WithProgress(tracker.Tick),
	)
	facts, errs := proc.Process(ctx, files, func(psr *parser.Parser, path string) (models.FileFacts, error) {
		result, err := psr.ParseFile(path)
		if err != nil {
			s.logger.Debug("parse failed", "path", path, "error", err)
			return models.FileFacts{}, err
		}
		defer result.Close()
		f := python.Extract(absRoot, result)
		f.Fragments = extractor.Extract(result)
		return f, nil
	})
	tracker.FinishSuccess()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out := &Facts{Root: absRoot, Oversized: oversized}
	failed := make(map[string]bool)
	if errs.HasErrors() {
		out.Failed = errs.Paths()
		for _, p := range out.Failed {
			failed[p] = true
		}
	}
	out.Files = make([]models.FileFacts, 0, len(facts))
	for _, f := range facts {
		if !failed[f.Path] {
			out.Files = append(out.Files, f)
		}
	}
	return out, nil
}

// openCache opens the configured cache. Failure is logged and yields a nil
// cache, which disables caching for the run.
func (s *Service) openCache(root string) *cache.Cache {
	if s.noCache || !s.config.Cache.Enabled {
		return nil
	}
	c, err := cache.Open(s.config.CachePath(root), cache.WithLogger(s.logger))
	if err != nil {
		s.logger.Warn("cache unavailable; continuing without it", "error", err)
		return nil
	}
	return c
}

// settingsKey captures every setting that changes what extraction produces.
func settingsKey(c clones.Config) string {
	return fmt.Sprintf("v%d;lines=%d;nodes=%d;ids=%t;lits=%t;docs=%t",
		factsVersion, c.MinLines, c.MinNodes, c.IgnoreIdentifiers, c.IgnoreLiterals, c.SkipDocstrings)
}

func (s *Service) spinner(label string) *progress.Tracker {
	if s.progress == nil {
		return nil
	}
	return progress.NewSpinnerTo(s.progress, label)
}

func (s *Service) tracker(label string, total int) *progress.Tracker {
	if s.progress == nil || total == 0 {
		return nil
	}
	return progress.NewTrackerTo(s.progress, label, total)
}

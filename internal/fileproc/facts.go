package fileproc

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/panbanda/tangle/internal/cache"
	"github.com/panbanda/tangle/pkg/models"
	"github.com/panbanda/tangle/pkg/parser"
)

// Store is the cache surface the processor needs; *cache.Cache satisfies it.
type Store interface {
	Get(ctx context.Context, path string, out any) bool
	Put(ctx context.Context, path string, value any) error
}

// ExtractFunc derives the facts of one file.
type ExtractFunc func(psr *parser.Parser, path string) (models.FileFacts, error)

// entry is what the processor stores per file. Key records the extraction
// settings so that facts produced under other settings read as misses.
type entry struct {
	Key   string           `msgpack:"k"`
	Facts models.FileFacts `msgpack:"f"`
}

// Processor extracts per-file facts through an optional shared cache.
type Processor struct {
	workers    int
	cache      Store
	key        string
	logger     *slog.Logger
	onProgress ProgressFunc

	// set after the first failed cache write
	writesOff atomic.Bool
}

// Option configures a Processor.
type Option func(*Processor)

// WithWorkers sets the worker count. Values <= 1 run sequentially.
func WithWorkers(n int) Option {
	return func(p *Processor) {
		p.workers = n
	}
}

// WithCache routes lookups and stores through c. A nil cache disables caching.
func WithCache(c *cache.Cache) Option {
	return func(p *Processor) {
		if c != nil {
			p.cache = c
		}
	}
}

// WithStore is WithCache for any Store implementation.
func WithStore(s Store) Option {
	return func(p *Processor) {
		p.cache = s
	}
}

// WithSettingsKey tags stored facts with key. Cached facts carrying a
// different key are re-extracted.
func WithSettingsKey(key string) Option {
	return func(p *Processor) {
		p.key = key
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Processor) {
		p.logger = l
	}
}

// WithProgress sets a callback invoked once per file, cache hits included.
func WithProgress(fn ProgressFunc) Option {
	return func(p *Processor) {
		p.onProgress = fn
	}
}

// New creates a processor using DefaultWorkers workers and no cache.
func New(opts ...Option) *Processor {
	p := &Processor{
		workers: DefaultWorkers(),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Process returns one FileFacts per path in input order. Cached facts are
// served first; the rest are extracted with fn and stored back. A file that
// fails yields facts holding only its path and is reported in the errors.
func (p *Processor) Process(ctx context.Context, files []string, fn ExtractFunc) ([]models.FileFacts, *ProcessingErrors) {
	out := make([]models.FileFacts, len(files))
	var pending []int
	for i, path := range files {
		var e entry
		if p.cache != nil && p.cache.Get(ctx, path, &e) && e.Key == p.key {
			e.Facts.Path = path
			out[i] = e.Facts
			p.progress()
			continue
		}
		pending = append(pending, i)
	}
	if hits := len(files) - len(pending); hits > 0 {
		p.logger.Debug("cache hits", "hits", hits, "files", len(files))
	}

	paths := make([]string, len(pending))
	for j, i := range pending {
		paths[j] = files[i]
	}
	results, errs := MapFiles(ctx, paths, p.workers, func(psr *parser.Parser, path string) (models.FileFacts, error) {
		facts, err := fn(psr, path)
		if err != nil {
			return models.FileFacts{}, err
		}
		p.store(ctx, path, facts)
		return facts, nil
	}, p.onProgress)

	for j, i := range pending {
		out[i] = results[j]
		out[i].Path = files[i]
	}
	if errs.HasErrors() {
		p.logger.Warn("files skipped", "failed", len(errs.Errors), "first", errs.Errors[0].Error())
	}
	return out, errs
}

func (p *Processor) store(ctx context.Context, path string, facts models.FileFacts) {
	if p.cache == nil || p.writesOff.Load() {
		return
	}
	if err := p.cache.Put(ctx, path, entry{Key: p.key, Facts: facts}); err != nil {
		if p.writesOff.CompareAndSwap(false, true) {
			p.logger.Warn("cache store failed; disabling cache writes", "path", path, "error", err)
		}
	}
}

func (p *Processor) progress() {
	if p.onProgress != nil {
		p.onProgress()
	}
}

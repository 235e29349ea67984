package analysis

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/panbanda/tangle/internal/cache"
)

// ErrNoCache is returned by the cache operations when no cache file exists.
var ErrNoCache = errors.New("no cache")

// ClearCache removes every cached entry for the project at root.
func (s *Service) ClearCache(ctx context.Context, root string) error {
	c, err := s.existingCache(root)
	if err != nil {
		return err
	}
	defer c.Close()
	return c.Clear(ctx)
}

// CacheStats summarizes the cache for the project at root.
func (s *Service) CacheStats(ctx context.Context, root string) (*cache.Stats, error) {
	c, err := s.existingCache(root)
	if err != nil {
		return nil, err
	}
	defer c.Close()
	return c.Stats(ctx)
}

func (s *Service) existingCache(root string) (*cache.Cache, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	path := s.config.CachePath(absRoot)
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w at %s", ErrNoCache, path)
	}
	return cache.Open(path, cache.WithLogger(s.logger))
}

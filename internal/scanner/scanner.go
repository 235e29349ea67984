// Package scanner discovers the Python sources of a project.
package scanner

import (
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-git/v5/plumbing/format/gitignore"

	"github.com/panbanda/tangle/pkg/config"
	"github.com/panbanda/tangle/pkg/parser"
)

// Scanner finds source files in a directory.
type Scanner struct {
	exclude config.ExcludeConfig
	logger  *slog.Logger

	gitRoot   string
	gitignore gitignore.Matcher
}

// NewScanner creates a new file scanner.
func NewScanner(cfg *config.Config) *Scanner {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	return &Scanner{exclude: cfg.Exclude, logger: slog.Default()}
}

// WithLogger replaces the scanner's logger.
func (s *Scanner) WithLogger(l *slog.Logger) *Scanner {
	s.logger = l
	return s
}

// findGitRoot finds the root of the git repository by looking for .git directory.
// Returns empty string if not in a git repository.
func findGitRoot(start string) string {
	dir := start
	for {
		gitDir := filepath.Join(dir, ".git")
		if info, err := os.Stat(gitDir); err == nil && info.IsDir() {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// loadGitignore reads every .gitignore below the enclosing repository root.
func (s *Scanner) loadGitignore(absRoot string) {
	s.gitRoot, s.gitignore = "", nil
	if !s.exclude.Gitignore {
		return
	}
	gitRoot := findGitRoot(absRoot)
	if gitRoot == "" {
		return
	}
	patterns, err := gitignore.ReadPatterns(osfs.New(gitRoot), nil)
	if err != nil {
		s.logger.Debug("reading .gitignore failed", "root", gitRoot, "error", err)
		return
	}
	if len(patterns) > 0 {
		s.gitRoot, s.gitignore = gitRoot, gitignore.NewMatcher(patterns)
	}
}

// isExcluded checks an absolute path against skip directories, configured
// patterns (relative to the scan root) and .gitignore rules.
func (s *Scanner) isExcluded(absRoot, path string, isDir bool) bool {
	if isDir && slices.Contains(s.exclude.Dirs, filepath.Base(path)) {
		return true
	}

	if rel, err := filepath.Rel(absRoot, path); err == nil {
		rel = filepath.ToSlash(rel)
		for _, pattern := range s.exclude.Patterns {
			if ok, _ := doublestar.Match(pattern, rel); ok {
				return true
			}
		}
	}

	if s.gitignore != nil {
		if rel, err := filepath.Rel(s.gitRoot, path); err == nil && rel != "." {
			if s.gitignore.Match(strings.Split(rel, string(filepath.Separator)), isDir) {
				return true
			}
		}
	}
	return false
}

// ScanDir recursively scans a directory for Python source files and returns
// their absolute paths in lexical order.
// Validates that all paths stay within the root directory to prevent traversal attacks.
func (s *Scanner) ScanDir(root string) ([]string, error) {
	files := make([]string, 0, 256)

	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	absRoot, err = filepath.EvalSymlinks(absRoot)
	if err != nil {
		return nil, err
	}

	s.loadGitignore(absRoot)

	walkErr := filepath.WalkDir(absRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			s.logger.Debug("skipping unreadable path", "path", path, "error", err)
			return nil
		}

		// Security: validate path stays within root (prevent symlink traversal)
		if d.Type()&fs.ModeSymlink != 0 {
			resolved, err := filepath.EvalSymlinks(path)
			if err != nil || !isWithinRoot(resolved, absRoot) {
				if d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
		}

		if d.IsDir() {
			if path != absRoot && s.isExcluded(absRoot, path, true) {
				return filepath.SkipDir
			}
			return nil
		}

		if parser.DetectLanguage(path) == parser.LangUnknown {
			return nil
		}
		if s.isExcluded(absRoot, path, false) {
			return nil
		}
		files = append(files, path)
		return nil
	})

	return files, walkErr
}

// isWithinRoot checks if a path is contained within the root directory.
// Returns false if the path escapes via symlinks or relative paths.
func isWithinRoot(path, root string) bool {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	absPath = filepath.Clean(absPath)
	root = filepath.Clean(root)

	// Add separator to prevent "/root2" matching "/root"
	return absPath == root || strings.HasPrefix(absPath, root+string(filepath.Separator))
}

// FilterBySize filters files that exceed the configured maximum size.
// Returns the filtered list and the count of files that were skipped.
// If maxSize is 0, returns the original list unchanged.
func FilterBySize(files []string, maxSize int64) ([]string, int) {
	if maxSize <= 0 {
		return files, 0
	}

	filtered := make([]string, 0, len(files))
	skipped := 0

	for _, f := range files {
		info, err := os.Stat(f)
		if err != nil || info.Size() > maxSize {
			skipped++
			continue
		}
		filtered = append(filtered, f)
	}

	return filtered, skipped
}

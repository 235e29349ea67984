package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/panbanda/tangle/pkg/analyzer/clones"
	"github.com/panbanda/tangle/pkg/analyzer/cycles"
	"github.com/panbanda/tangle/pkg/analyzer/reachability"
)

// Config holds all configuration options for tangle.
type Config struct {
	// File exclusion patterns
	Exclude ExcludeConfig `koanf:"exclude"`

	Cycles       CyclesConfig       `koanf:"cycles"`
	Reachability ReachabilityConfig `koanf:"reachability"`
	Clones       ClonesConfig       `koanf:"clones"`

	// Cache settings
	Cache CacheConfig `koanf:"cache"`

	// Output settings
	Output OutputConfig `koanf:"output"`

	// Extraction parallelism: 0 picks a CPU-based default, 1 is sequential.
	Workers int `koanf:"workers"`
}

// ExcludeConfig defines file exclusion patterns.
type ExcludeConfig struct {
	Patterns    []string `koanf:"patterns"` // doublestar globs, relative to the root
	Dirs        []string `koanf:"dirs"`
	Gitignore   bool     `koanf:"gitignore"`
	MaxFileSize int64    `koanf:"max_file_size"` // bytes, 0 disables the limit
}

// CyclesConfig controls the circular dependency gate.
type CyclesConfig struct {
	MaxCycles   int    `koanf:"max_cycles"` // negative is advisory only
	Granularity string `koanf:"granularity"`
}

// ReachabilityConfig controls entry point detection.
type ReachabilityConfig struct {
	EntryFiles       []string `koanf:"entry_files"`
	TestPatterns     []string `koanf:"test_patterns"`
	DynamicRoots     []string `koanf:"dynamic_roots"`
	ExtraEntryPoints []string `koanf:"extra_entry_points"`
	DetectDynamic    bool     `koanf:"detect_dynamic"`
	Scripts          bool     `koanf:"scripts"` // read pyproject.toml script tables
}

// ClonesConfig mirrors clones.Config with file-friendly types.
type ClonesConfig struct {
	MinLines            int      `koanf:"min_lines"`
	MinNodes            int      `koanf:"min_nodes"`
	Type1Threshold      float64  `koanf:"type1_threshold"`
	Type2Threshold      float64  `koanf:"type2_threshold"`
	Type3Threshold      float64  `koanf:"type3_threshold"`
	Type4Threshold      float64  `koanf:"type4_threshold"`
	SimilarityThreshold float64  `koanf:"similarity_threshold"`
	IgnoreIdentifiers   bool     `koanf:"ignore_identifiers"`
	IgnoreLiterals      bool     `koanf:"ignore_literals"`
	SkipDocstrings      bool     `koanf:"skip_docstrings"`
	Types               []string `koanf:"types"`
	Grouping            string   `koanf:"grouping"`
	GroupingThreshold   float64  `koanf:"grouping_threshold"`
	KCoreK              int      `koanf:"k_core_k"`
	BucketPrefix        int      `koanf:"bucket_prefix"`
	MaxBucket           int      `koanf:"max_bucket"`
}

// CacheConfig controls caching behavior.
type CacheConfig struct {
	Enabled bool   `koanf:"enabled"`
	Path    string `koanf:"path"` // relative paths are resolved against the project root
}

// OutputConfig controls output formatting.
type OutputConfig struct {
	Format string `koanf:"format"` // text, json, toon
	Color  bool   `koanf:"color"`
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() *Config {
	cc := clones.DefaultConfig()
	types := make([]string, len(cc.EnabledTypes))
	for i, t := range cc.EnabledTypes {
		types[i] = string(t)
	}
	return &Config{
		Exclude: ExcludeConfig{
			Dirs: []string{
				".git",
				".hg",
				".tangle",
				".tox",
				".nox",
				".venv",
				"venv",
				"__pycache__",
				".mypy_cache",
				".pytest_cache",
				"node_modules",
				"build",
				"dist",
				"site-packages",
			},
			Gitignore:   true,
			MaxFileSize: 2 << 20,
		},
		Cycles: CyclesConfig{
			MaxCycles:   0,
			Granularity: string(cycles.GranularityModule),
		},
		Reachability: ReachabilityConfig{
			EntryFiles:   append([]string(nil), reachability.DefaultEntryFiles...),
			TestPatterns: append([]string(nil), reachability.DefaultTestPatterns...),
			Scripts:      true,
		},
		Clones: ClonesConfig{
			MinLines:            cc.MinLines,
			MinNodes:            cc.MinNodes,
			Type1Threshold:      cc.Type1Threshold,
			Type2Threshold:      cc.Type2Threshold,
			Type3Threshold:      cc.Type3Threshold,
			Type4Threshold:      cc.Type4Threshold,
			SimilarityThreshold: cc.SimilarityThreshold,
			IgnoreIdentifiers:   cc.IgnoreIdentifiers,
			IgnoreLiterals:      cc.IgnoreLiterals,
			SkipDocstrings:      cc.SkipDocstrings,
			Types:               types,
			Grouping:            string(cc.Grouping),
			GroupingThreshold:   cc.GroupingThreshold,
			KCoreK:              cc.KCoreK,
			BucketPrefix:        cc.BucketPrefix,
			MaxBucket:           cc.MaxBucket,
		},
		Cache: CacheConfig{
			Enabled: true,
			Path:    filepath.Join(".tangle", "cache.db"),
		},
		Output: OutputConfig{
			Format: "text",
			Color:  true,
		},
	}
}

// ValidationError reports one invalid setting.
type ValidationError struct {
	Field  string
	Reason string
	Err    error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// Build converts the clone section into a validated clones.Config.
func (c ClonesConfig) Build() (clones.Config, error) {
	types, err := clones.ParseCloneTypes(c.Types)
	if err != nil {
		return clones.Config{}, err
	}
	grouping, err := clones.ParseGrouping(c.Grouping)
	if err != nil {
		return clones.Config{}, err
	}
	cfg := clones.Config{
		MinLines:            c.MinLines,
		MinNodes:            c.MinNodes,
		Type1Threshold:      c.Type1Threshold,
		Type2Threshold:      c.Type2Threshold,
		Type3Threshold:      c.Type3Threshold,
		Type4Threshold:      c.Type4Threshold,
		SimilarityThreshold: c.SimilarityThreshold,
		IgnoreIdentifiers:   c.IgnoreIdentifiers,
		IgnoreLiterals:      c.IgnoreLiterals,
		SkipDocstrings:      c.SkipDocstrings,
		EnabledTypes:        types,
		Grouping:            grouping,
		GroupingThreshold:   c.GroupingThreshold,
		KCoreK:              c.KCoreK,
		BucketPrefix:        c.BucketPrefix,
		MaxBucket:           c.MaxBucket,
	}
	return cfg, cfg.Validate()
}

// Validate reports every invalid setting as a joined list of
// *ValidationError values.
func (c *Config) Validate() error {
	var errs []error
	switch cycles.Granularity(c.Cycles.Granularity) {
	case cycles.GranularityModule, cycles.GranularityRoot:
	default:
		errs = append(errs, &ValidationError{
			Field:  "cycles.granularity",
			Reason: fmt.Sprintf("unknown granularity %q (want module or root)", c.Cycles.Granularity),
		})
	}
	if c.Workers < 0 {
		errs = append(errs, &ValidationError{
			Field:  "workers",
			Reason: fmt.Sprintf("must not be negative, got %d", c.Workers),
		})
	}
	switch c.Output.Format {
	case "text", "json", "toon":
	default:
		errs = append(errs, &ValidationError{
			Field:  "output.format",
			Reason: fmt.Sprintf("unknown format %q (want text, json or toon)", c.Output.Format),
		})
	}
	if c.Cache.Enabled && c.Cache.Path == "" {
		errs = append(errs, &ValidationError{Field: "cache.path", Reason: "must be set when the cache is enabled"})
	}
	if _, err := c.Clones.Build(); err != nil {
		errs = append(errs, &ValidationError{Field: "clones", Reason: err.Error(), Err: err})
	}
	return errors.Join(errs...)
}

// Load loads configuration from a file on top of the defaults.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	cfg := DefaultConfig()

	// Determine parser based on extension
	var parser koanf.Parser
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".toml":
		parser = toml.Parser()
	case ".yaml", ".yml":
		parser = yaml.Parser()
	case ".json":
		parser = json.Parser()
	default:
		parser = toml.Parser()
	}

	if err := k.Load(file.Provider(path), parser); err != nil {
		return nil, fmt.Errorf("load config %s: %w", path, err)
	}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("decode config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// configNames are searched in order in the project root.
var configNames = []string{
	"tangle.toml",
	".tangle.toml",
	"tangle.yaml",
	".tangle.yaml",
	"tangle.yml",
	"tangle.json",
}

// Find returns the first config file present in root, or "".
func Find(root string) string {
	for _, name := range configNames {
		path := filepath.Join(root, name)
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path
		}
	}
	return ""
}

// LoadOrDefault loads the first config file found in root, or returns the
// defaults when there is none. A config file that exists but is invalid is
// an error.
func LoadOrDefault(root string) (*Config, string, error) {
	path := Find(root)
	if path == "" {
		return DefaultConfig(), "", nil
	}
	cfg, err := Load(path)
	if err != nil {
		return nil, path, err
	}
	return cfg, path, nil
}

// CachePath resolves the cache location for a project root.
func (c *Config) CachePath(root string) string {
	if filepath.IsAbs(c.Cache.Path) {
		return c.Cache.Path
	}
	return filepath.Join(root, c.Cache.Path)
}

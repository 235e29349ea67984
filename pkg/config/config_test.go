package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/panbanda/tangle/pkg/analyzer/clones"
	"github.com/panbanda/tangle/pkg/models"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
	if !cfg.Exclude.Gitignore {
		t.Error("Exclude.Gitignore should be true by default")
	}
	if len(cfg.Exclude.Dirs) == 0 {
		t.Error("Exclude.Dirs should have default values")
	}
	if cfg.Cycles.MaxCycles != 0 {
		t.Errorf("Cycles.MaxCycles = %d, want 0", cfg.Cycles.MaxCycles)
	}
	if cfg.Cycles.Granularity != "module" {
		t.Errorf("Cycles.Granularity = %s, want module", cfg.Cycles.Granularity)
	}
	if cfg.Reachability.DetectDynamic {
		t.Error("Reachability.DetectDynamic should be false by default")
	}
	if !cfg.Cache.Enabled {
		t.Error("Cache.Enabled should be true by default")
	}
	if cfg.Output.Format != "text" {
		t.Errorf("Output.Format = %s, want text", cfg.Output.Format)
	}

	built, err := cfg.Clones.Build()
	if err != nil {
		t.Fatalf("Clones.Build() error: %v", err)
	}
	want := clones.DefaultConfig()
	if built.Type1Threshold != want.Type1Threshold || built.MaxBucket != want.MaxBucket {
		t.Errorf("built clone config %+v differs from defaults %+v", built, want)
	}
	if len(built.EnabledTypes) != 3 || built.EnabledTypes[0] != models.CloneType1 {
		t.Errorf("EnabledTypes = %v", built.EnabledTypes)
	}
}

func TestLoadTOML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "tangle.toml")

	content := `
workers = 1

[exclude]
patterns = ["migrations/**"]

[cycles]
max_cycles = 3
granularity = "root"

[reachability]
dynamic_roots = ["plugins"]

[clones]
min_lines = 8
types = ["1", "type2"]
grouping = "k-core"
`
	if err := os.WriteFile(configPath, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Workers != 1 {
		t.Errorf("Workers = %d, want 1", cfg.Workers)
	}
	if cfg.Cycles.MaxCycles != 3 || cfg.Cycles.Granularity != "root" {
		t.Errorf("Cycles = %+v", cfg.Cycles)
	}
	if len(cfg.Reachability.DynamicRoots) != 1 || cfg.Reachability.DynamicRoots[0] != "plugins" {
		t.Errorf("DynamicRoots = %v", cfg.Reachability.DynamicRoots)
	}
	if len(cfg.Reachability.EntryFiles) == 0 {
		t.Error("unset keys should keep their defaults")
	}

	built, err := cfg.Clones.Build()
	if err != nil {
		t.Fatal(err)
	}
	if built.MinLines != 8 {
		t.Errorf("MinLines = %d, want 8", built.MinLines)
	}
	if built.Grouping != clones.GroupingKCore {
		t.Errorf("Grouping = %s, want k_core", built.Grouping)
	}
	if len(built.EnabledTypes) != 2 {
		t.Errorf("EnabledTypes = %v", built.EnabledTypes)
	}
	if built.Type2Threshold != 0.95 {
		t.Errorf("Type2Threshold = %v, want default 0.95", built.Type2Threshold)
	}
}

func TestLoadYAMLAndJSON(t *testing.T) {
	tmpDir := t.TempDir()

	yamlPath := filepath.Join(tmpDir, "tangle.yaml")
	yamlContent := "cycles:\n  max_cycles: -1\noutput:\n  format: json\n"
	if err := os.WriteFile(yamlPath, []byte(yamlContent), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(yamlPath)
	if err != nil {
		t.Fatalf("Load(yaml) error: %v", err)
	}
	if cfg.Cycles.MaxCycles != -1 || cfg.Output.Format != "json" {
		t.Errorf("yaml config = %+v", cfg)
	}

	jsonPath := filepath.Join(tmpDir, "tangle.json")
	jsonContent := `{"cache": {"enabled": false}, "clones": {"similarity_threshold": 0.85}}`
	if err := os.WriteFile(jsonPath, []byte(jsonContent), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err = Load(jsonPath)
	if err != nil {
		t.Fatalf("Load(json) error: %v", err)
	}
	if cfg.Cache.Enabled {
		t.Error("Cache.Enabled should be false")
	}
	if cfg.Clones.SimilarityThreshold != 0.85 {
		t.Errorf("SimilarityThreshold = %v", cfg.Clones.SimilarityThreshold)
	}
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "tangle.toml")
	content := `
[cycles]
granularity = "package"

[clones]
type1_threshold = 1.5
types = ["type9"]
`
	if err := os.WriteFile(configPath, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := Load(configPath)
	if err == nil {
		t.Fatal("Load() should reject invalid settings")
	}
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Errorf("expected a *ValidationError, got %T", err)
	}
	if !strings.Contains(err.Error(), "cycles.granularity") {
		t.Errorf("error should name the granularity field: %v", err)
	}
	if !errors.Is(err, clones.ErrUnknownCloneType) {
		t.Errorf("error should wrap ErrUnknownCloneType: %v", err)
	}
}

func TestLoadNonExistent(t *testing.T) {
	if _, err := Load("/nonexistent/path/tangle.toml"); err == nil {
		t.Error("Load() should return error for non-existent file")
	}
}

func TestLoadOrDefault(t *testing.T) {
	tmpDir := t.TempDir()

	cfg, path, err := LoadOrDefault(tmpDir)
	if err != nil || path != "" {
		t.Fatalf("LoadOrDefault() = %v, %q, %v", cfg, path, err)
	}
	if cfg.Workers != 0 {
		t.Errorf("expected defaults, got Workers = %d", cfg.Workers)
	}

	hidden := filepath.Join(tmpDir, ".tangle.toml")
	if err := os.WriteFile(hidden, []byte("workers = 4\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, path, err = LoadOrDefault(tmpDir)
	if err != nil {
		t.Fatal(err)
	}
	if path != hidden || cfg.Workers != 4 {
		t.Errorf("LoadOrDefault() loaded %q with Workers = %d", path, cfg.Workers)
	}

	visible := filepath.Join(tmpDir, "tangle.toml")
	if err := os.WriteFile(visible, []byte("workers = 2\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if got := Find(tmpDir); got != visible {
		t.Errorf("Find() = %q, want %q", got, visible)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"negative workers", func(c *Config) { c.Workers = -1 }, "workers"},
		{"unknown format", func(c *Config) { c.Output.Format = "xml" }, "output.format"},
		{"empty cache path", func(c *Config) { c.Cache.Path = "" }, "cache.path"},
		{"bad grouping", func(c *Config) { c.Clones.Grouping = "louvain" }, "clones"},
		{"bucket prefix", func(c *Config) { c.Clones.BucketPrefix = 0 }, "clones"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("Validate() should fail")
			}
			var verr *ValidationError
			if !errors.As(err, &verr) || verr.Field != tt.field {
				t.Errorf("Validate() = %v, want field %s", err, tt.field)
			}
		})
	}

	cfg := DefaultConfig()
	cfg.Cache.Enabled = false
	cfg.Cache.Path = ""
	if err := cfg.Validate(); err != nil {
		t.Errorf("a disabled cache needs no path: %v", err)
	}
}

func TestCachePath(t *testing.T) {
	cfg := DefaultConfig()
	if got, want := cfg.CachePath("/proj"), filepath.Join("/proj", ".tangle", "cache.db"); got != want {
		t.Errorf("CachePath() = %s, want %s", got, want)
	}
	cfg.Cache.Path = "/var/cache/tangle.db"
	if got := cfg.CachePath("/proj"); got != "/var/cache/tangle.db" {
		t.Errorf("CachePath() = %s", got)
	}
}

package clones

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/panbanda/tangle/pkg/models"
)

var (
	// ErrUnknownCloneType is returned for clone type names other than type1..type4.
	ErrUnknownCloneType = errors.New("unknown clone type")
	// ErrUnknownGrouping is returned for grouping modes other than connected and k_core.
	ErrUnknownGrouping = errors.New("unknown grouping mode")
)

// GroupingMode selects how qualifying pairs are clustered.
type GroupingMode string

const (
	GroupingConnected GroupingMode = "connected"
	GroupingKCore     GroupingMode = "k_core"
)

// Config holds clone detection thresholds and switches.
type Config struct {
	MinLines            int
	MinNodes            int
	Type1Threshold      float64
	Type2Threshold      float64
	Type3Threshold      float64
	Type4Threshold      float64
	SimilarityThreshold float64
	IgnoreIdentifiers   bool
	IgnoreLiterals      bool
	SkipDocstrings      bool
	EnabledTypes        []models.CloneType
	Grouping            GroupingMode
	GroupingThreshold   float64
	KCoreK              int
	BucketPrefix        int // hex characters of the digest used as bucket key
	MaxBucket           int
}

// DefaultConfig returns the default detection settings.
func DefaultConfig() Config {
	return Config{
		MinLines:            5,
		MinNodes:            10,
		Type1Threshold:      0.98,
		Type2Threshold:      0.95,
		Type3Threshold:      0.80,
		Type4Threshold:      0.75,
		SimilarityThreshold: 0.90,
		IgnoreIdentifiers:   true,
		IgnoreLiterals:      true,
		SkipDocstrings:      true,
		EnabledTypes:        []models.CloneType{models.CloneType1, models.CloneType2, models.CloneType3},
		Grouping:            GroupingConnected,
		GroupingThreshold:   0.80,
		KCoreK:              2,
		BucketPrefix:        6,
		MaxBucket:           250,
	}
}

// ParseCloneTypes converts names such as "type1" or "1" into clone types.
func ParseCloneTypes(names []string) ([]models.CloneType, error) {
	out := make([]models.CloneType, 0, len(names))
	for _, n := range names {
		n = strings.ToLower(strings.TrimSpace(n))
		if !strings.HasPrefix(n, "type") {
			n = "type" + n
		}
		ct := models.CloneType(n)
		if ct.Level() == 0 {
			return nil, fmt.Errorf("%w: %q", ErrUnknownCloneType, n)
		}
		if !slices.Contains(out, ct) {
			out = append(out, ct)
		}
	}
	return out, nil
}

// ParseGrouping validates a grouping mode name.
func ParseGrouping(name string) (GroupingMode, error) {
	switch g := GroupingMode(strings.ToLower(strings.TrimSpace(name))); g {
	case GroupingConnected, GroupingKCore:
		return g, nil
	case "kcore", "k-core":
		return GroupingKCore, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownGrouping, name)
	}
}

// Validate reports every invalid setting.
func (c Config) Validate() error {
	var errs []error
	for name, v := range map[string]float64{
		"type1_threshold":      c.Type1Threshold,
		"type2_threshold":      c.Type2Threshold,
		"type3_threshold":      c.Type3Threshold,
		"type4_threshold":      c.Type4Threshold,
		"similarity_threshold": c.SimilarityThreshold,
		"grouping_threshold":   c.GroupingThreshold,
	} {
		if v < 0 || v > 1 {
			errs = append(errs, fmt.Errorf("%s must be within [0, 1], got %v", name, v))
		}
	}
	if c.MinLines < 1 {
		errs = append(errs, fmt.Errorf("min_lines must be at least 1, got %d", c.MinLines))
	}
	if c.MinNodes < 0 {
		errs = append(errs, fmt.Errorf("min_nodes must not be negative, got %d", c.MinNodes))
	}
	if c.BucketPrefix < 1 || c.BucketPrefix > 16 {
		errs = append(errs, fmt.Errorf("bucket_prefix must be within 1..16, got %d", c.BucketPrefix))
	}
	if c.MaxBucket < 2 {
		errs = append(errs, fmt.Errorf("max_bucket must be at least 2, got %d", c.MaxBucket))
	}
	for _, t := range c.EnabledTypes {
		if t.Level() == 0 {
			errs = append(errs, fmt.Errorf("%w: %q", ErrUnknownCloneType, t))
		}
	}
	if c.Grouping != GroupingConnected && c.Grouping != GroupingKCore {
		errs = append(errs, fmt.Errorf("%w: %q", ErrUnknownGrouping, c.Grouping))
	}
	slices.SortFunc(errs, func(a, b error) int { return strings.Compare(a.Error(), b.Error()) })
	return errors.Join(errs...)
}

// enabled returns the enabled types ordered strictest first.
func (c Config) enabled() []models.CloneType {
	types := slices.Clone(c.EnabledTypes)
	slices.SortFunc(types, func(a, b models.CloneType) int { return a.Level() - b.Level() })
	return types
}

func (c Config) threshold(t models.CloneType) float64 {
	switch t {
	case models.CloneType1:
		return c.Type1Threshold
	case models.CloneType2:
		return c.Type2Threshold
	case models.CloneType3:
		return c.Type3Threshold
	default:
		return c.Type4Threshold
	}
}

func (c Config) kCoreK() int {
	return max(2, c.KCoreK)
}

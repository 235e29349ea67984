// Package clones finds duplicated functions, methods and classes at four
// levels of strictness: formatting-only (Type-1), renamed (Type-2),
// near-miss (Type-3) and semantic (Type-4, declared but never matched).
//
// Fragments are extracted once per file with three normalized forms. They
// are bucketed by truncated digests of each form and only co-bucketed
// fragments are compared, which keeps detection far below all-pairs cost.
package clones

import (
	"context"

	"github.com/panbanda/tangle/pkg/models"
)

// Analyzer runs detection over the fragments carried by extracted facts.
type Analyzer struct {
	detector *Detector
}

// New creates an analyzer. The configuration is validated here so that bad
// thresholds never surface mid-run.
func New(cfg Config) (*Analyzer, error) {
	d, err := NewDetector(cfg)
	if err != nil {
		return nil, err
	}
	return &Analyzer{detector: d}, nil
}

// Analyze detects clones across all fragments of facts.
func (a *Analyzer) Analyze(ctx context.Context, facts []models.FileFacts) (*models.CloneReport, error) {
	var frags []models.Fragment
	for i := range facts {
		frags = append(frags, facts[i].Fragments...)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return a.detector.Detect(frags), nil
}

// Close is a no-op.
func (a *Analyzer) Close() {}

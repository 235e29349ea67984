package analysis

import (
	"context"
	"fmt"

	"github.com/sourcegraph/conc/pool"

	"github.com/panbanda/tangle/pkg/analyzer"
	"github.com/panbanda/tangle/pkg/analyzer/clones"
	"github.com/panbanda/tangle/pkg/analyzer/cycles"
	"github.com/panbanda/tangle/pkg/analyzer/reachability"
	"github.com/panbanda/tangle/pkg/models"
	"github.com/panbanda/tangle/pkg/python"
)

var (
	_ analyzer.FactsAnalyzer[*models.CycleAnalysis]      = (*cycles.Analyzer)(nil)
	_ analyzer.FactsAnalyzer[*models.ReachabilityReport] = (*reachability.Analyzer)(nil)
	_ analyzer.FactsAnalyzer[*models.CloneReport]        = (*clones.Analyzer)(nil)
)

// Selection picks the analyses of a run.
type Selection struct {
	Cycles       bool
	Reachability bool
	Clones       bool
}

// All selects every analysis.
func All() Selection {
	return Selection{Cycles: true, Reachability: true, Clones: true}
}

// Result holds the outcome of the selected analyses. Unselected analyses
// are nil.
type Result struct {
	Facts        *Facts                     `json:"files"`
	Cycles       *models.CycleAnalysis      `json:"cycles,omitempty"`
	Check        *cycles.CheckResult        `json:"check,omitempty"`
	Reachability *models.ReachabilityReport `json:"reachability,omitempty"`
	Clones       *models.CloneReport        `json:"clones,omitempty"`
}

// Passed reports whether the cycle gate passed. Runs without the cycle
// analysis always pass.
func (r *Result) Passed() bool {
	return r.Check == nil || r.Check.Passed
}

// Run collects facts under root once and runs the selected analyses over
// them concurrently.
func (s *Service) Run(ctx context.Context, root string, sel Selection) (*Result, error) {
	facts, err := s.Collect(ctx, root)
	if err != nil {
		return nil, err
	}
	return s.Analyze(ctx, facts, sel)
}

// Analyze runs the selected analyses over already collected facts. The
// first failing analysis cancels the others.
func (s *Service) Analyze(ctx context.Context, facts *Facts, sel Selection) (*Result, error) {
	res := &Result{Facts: facts}

	p := pool.New().WithContext(ctx).WithCancelOnError()
	if sel.Cycles {
		p.Go(func(ctx context.Context) error {
			a, err := s.AnalyzeCycles(ctx, facts)
			if err != nil {
				return fmt.Errorf("cycles: %w", err)
			}
			check := cycles.Check(a, s.config.Cycles.MaxCycles)
			res.Cycles, res.Check = a, &check
			return nil
		})
	}
	if sel.Reachability {
		p.Go(func(ctx context.Context) error {
			r, err := s.AnalyzeReachability(ctx, facts)
			if err != nil {
				return fmt.Errorf("reachability: %w", err)
			}
			res.Reachability = r
			return nil
		})
	}
	if sel.Clones {
		p.Go(func(ctx context.Context) error {
			r, err := s.AnalyzeClones(ctx, facts)
			if err != nil {
				return fmt.Errorf("clones: %w", err)
			}
			res.Clones = r
			return nil
		})
	}
	if err := p.Wait(); err != nil {
		return nil, err
	}
	return res, nil
}

// AnalyzeCycles reports the circular imports among the collected modules.
func (s *Service) AnalyzeCycles(ctx context.Context, facts *Facts) (*models.CycleAnalysis, error) {
	a := cycles.New(cycles.WithNodeGranularity(cycles.Granularity(s.config.Cycles.Granularity)))
	defer a.Close()
	result, err := a.Analyze(ctx, facts.Files)
	if err != nil {
		return nil, err
	}
	s.logger.Debug("cycle analysis done", "modules", result.Summary.TotalModules, "cycles", result.Summary.TotalCycles)
	return result, nil
}

// AnalyzeReachability reports modules no entry point reaches. Script
// entry points come from pyproject.toml in the project root; an unreadable
// file is logged and ignored.
func (s *Service) AnalyzeReachability(ctx context.Context, facts *Facts) (*models.ReachabilityReport, error) {
	rc := s.config.Reachability
	opts := []reachability.Option{
		reachability.WithEntryFiles(rc.EntryFiles),
		reachability.WithTestPatterns(rc.TestPatterns),
		reachability.WithDynamicRoots(rc.DynamicRoots),
		reachability.WithEntryPoints(rc.ExtraEntryPoints),
		reachability.WithDynamicDetection(rc.DetectDynamic),
		reachability.WithLogger(s.logger),
	}
	if rc.Scripts {
		scripts, err := python.LoadScriptEntryPoints(facts.Root)
		if err != nil {
			s.logger.Warn("ignoring pyproject scripts", "error", err)
		}
		opts = append(opts, reachability.WithScriptEntryPoints(scripts))
	}

	a := reachability.New(opts...)
	defer a.Close()
	return a.Analyze(ctx, facts.Files)
}

// AnalyzeClones reports duplicated fragments.
func (s *Service) AnalyzeClones(ctx context.Context, facts *Facts) (*models.CloneReport, error) {
	cfg, err := s.config.Clones.Build()
	if err != nil {
		return nil, err
	}
	a, err := clones.New(cfg)
	if err != nil {
		return nil, err
	}
	defer a.Close()
	return a.Analyze(ctx, facts.Files)
}

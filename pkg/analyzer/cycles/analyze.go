package cycles

import (
	"context"
	"fmt"

	"github.com/panbanda/tangle/pkg/models"
)

const (
	// RuleID is the stable identifier attached to every circular finding.
	RuleID = "TANGLE-CIRC"

	findingKind     = "circular_dependency"
	findingCategory = "ARCHITECTURE"
)

// Analyzer turns extracted file facts into a circular dependency report.
type Analyzer struct {
	granularity Granularity
}

// Option is a functional option for configuring Analyzer.
type Option func(*Analyzer)

// WithNodeGranularity sets the graph node granularity.
func WithNodeGranularity(g Granularity) Option {
	return func(a *Analyzer) {
		a.granularity = g
	}
}

// New creates a circular dependency analyzer.
func New(opts ...Option) *Analyzer {
	a := &Analyzer{granularity: GranularityModule}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Analyze builds the graph from facts and reports its cycles.
func (a *Analyzer) Analyze(ctx context.Context, facts []models.FileFacts) (*models.CycleAnalysis, error) {
	b := NewBuilder(WithGranularity(a.granularity))
	for i := range facts {
		b.AddFacts(&facts[i])
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return Analyze(b.Build()), nil
}

// Close is a no-op; the analyzer holds no resources.
func (a *Analyzer) Close() {}

// Analyze reports every simple cycle of g, shortest first, with severity and
// a suggested break point.
func Analyze(g *Graph) *models.CycleAnalysis {
	cycles := g.FindSimpleCycles()
	findings := make([]models.CircularFinding, 0, len(cycles))

	for _, c := range cycles {
		hops := make([]uint32, len(c))
		for i, from := range c {
			hops[i] = g.EdgeLine(from, c[(i+1)%len(c)])
		}
		findings = append(findings, models.CircularFinding{
			RuleID:         RuleID,
			Kind:           findingKind,
			Category:       findingCategory,
			Severity:       models.SeverityForLength(len(c)),
			Message:        "Circular dependency: " + c.String(),
			Cycle:          c,
			CycleLength:    len(c),
			SuggestedBreak: g.SuggestBreakPoint(c),
			File:           g.File(c[0]),
			Line:           hops[0],
			HopLines:       hops,
		})
	}

	return &models.CycleAnalysis{
		Findings: findings,
		Summary:  summarize(g, cycles),
	}
}

func summarize(g *Graph, cycles []models.Cycle) models.CycleSummary {
	s := models.CycleSummary{
		TotalModules:       len(g.names),
		TotalEdges:         len(g.edges),
		TotalCycles:        len(cycles),
		StronglyConnected:  len(g.FindCycles()),
		CoreInfrastructure: CoreInfrastructure(cycles),
	}
	total := 0
	for _, c := range cycles {
		total += len(c)
		s.MaxCycleLength = max(s.MaxCycleLength, len(c))
	}
	if len(cycles) > 0 {
		s.AvgCycleLength = float64(total) / float64(len(cycles))
	}
	return s
}

// CheckResult is the outcome of the cycle gate.
type CheckResult struct {
	Passed  bool   `json:"passed"`
	Message string `json:"message"`
	Count   int    `json:"count"`
}

// Check gates on the number of cycles. A negative maxCycles is advisory and
// always passes.
func Check(analysis *models.CycleAnalysis, maxCycles int) CheckResult {
	n := len(analysis.Findings)
	switch {
	case maxCycles < 0:
		return CheckResult{
			Passed:  true,
			Message: fmt.Sprintf("Found %d circular dependencies (warning)", n),
			Count:   n,
		}
	case n > maxCycles:
		return CheckResult{
			Passed:  false,
			Message: fmt.Sprintf("Found %d circular dependencies (max: %d)", n, maxCycles),
			Count:   n,
		}
	default:
		return CheckResult{
			Passed:  true,
			Message: fmt.Sprintf("Circular dependency check passed (%d <= %d)", n, maxCycles),
			Count:   n,
		}
	}
}

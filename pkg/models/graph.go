package models

import (
	"slices"
	"strings"
)

// Severity ranks a circular dependency by length.
type Severity string

const (
	SeverityLow    Severity = "LOW"
	SeverityMedium Severity = "MEDIUM"
	SeverityHigh   Severity = "HIGH"
)

// SeverityForLength maps a cycle length to a severity tier.
func SeverityForLength(n int) Severity {
	switch {
	case n > 3:
		return SeverityHigh
	case n > 2:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// Cycle is an ordered module sequence, rotated to start at its
// lexicographically smallest member. The closing hop back to the first
// module is implicit.
type Cycle []string

// Canonical returns the rotation of c that starts at its smallest member.
func (c Cycle) Canonical() Cycle {
	if len(c) == 0 {
		return c
	}
	start := 0
	for i := 1; i < len(c); i++ {
		if c[i] < c[start] {
			start = i
		}
	}
	out := make(Cycle, 0, len(c))
	out = append(out, c[start:]...)
	out = append(out, c[:start]...)
	return out
}

// Key identifies the member set of the cycle regardless of order.
func (c Cycle) Key() string {
	members := append([]string(nil), c...)
	slices.Sort(members)
	return strings.Join(members, "\x00")
}

// Contains reports whether name is a member of the cycle.
func (c Cycle) Contains(name string) bool {
	for _, m := range c {
		if m == name {
			return true
		}
	}
	return false
}

// String renders the cycle as "a -> b -> a".
func (c Cycle) String() string {
	if len(c) == 0 {
		return ""
	}
	return strings.Join(c, " -> ") + " -> " + c[0]
}

// CircularFinding is one reported circular dependency.
type CircularFinding struct {
	RuleID         string   `json:"rule_id"`
	Kind           string   `json:"kind"`
	Category       string   `json:"category"`
	Severity       Severity `json:"severity"`
	Message        string   `json:"message"`
	Cycle          Cycle    `json:"cycle"`
	CycleLength    int      `json:"cycle_length"`
	SuggestedBreak string   `json:"suggested_break"`
	File           string   `json:"file,omitempty"`
	Line           uint32   `json:"line,omitempty"`
	HopLines       []uint32 `json:"hop_lines,omitempty"`
}

// CycleSummary aggregates a circular dependency analysis.
type CycleSummary struct {
	TotalModules       int      `json:"total_modules"`
	TotalEdges         int      `json:"total_edges"`
	TotalCycles        int      `json:"total_cycles"`
	MaxCycleLength     int      `json:"max_cycle_length"`
	AvgCycleLength     float64  `json:"avg_cycle_length"`
	StronglyConnected  int      `json:"strongly_connected_components"`
	CoreInfrastructure []string `json:"core_infrastructure,omitempty"`
}

// CycleAnalysis is the full circular dependency result.
type CycleAnalysis struct {
	Findings []CircularFinding `json:"findings"`
	Summary  CycleSummary      `json:"summary"`
}

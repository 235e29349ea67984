package output

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/panbanda/tangle/pkg/models"
)

// relPath shortens path against root for display.
func relPath(root, path string) string {
	if root == "" || path == "" {
		return path
	}
	if rel, err := filepath.Rel(root, path); err == nil && !strings.HasPrefix(rel, "..") {
		return rel
	}
	return path
}

func location(root, file string, line uint32) string {
	if file == "" {
		return ""
	}
	if line == 0 {
		return relPath(root, file)
	}
	return fmt.Sprintf("%s:%d", relPath(root, file), line)
}

// CyclesTable renders circular dependency findings.
func CyclesTable(root string, a *models.CycleAnalysis, colored bool) *Table {
	t := &Table{
		Title:   "Circular Dependencies",
		Headers: []string{"Severity", "Length", "Cycle", "Break At", "Location"},
		Empty:   "No circular dependencies found",
		Data:    a,
	}
	for _, f := range a.Findings {
		sev := string(f.Severity)
		if colored {
			sev = SeverityColor(sev, sev)
		}
		t.Rows = append(t.Rows, []string{
			sev,
			fmt.Sprintf("%d", f.CycleLength),
			f.Cycle.String(),
			f.SuggestedBreak,
			location(root, f.File, f.Line),
		})
	}
	s := a.Summary
	t.Footer = fmt.Sprintf("%d modules, %d edges, %d cycles (max length %d, %d strongly connected components)",
		s.TotalModules, s.TotalEdges, s.TotalCycles, s.MaxCycleLength, s.StronglyConnected)
	if len(s.CoreInfrastructure) > 0 {
		t.Footer += "\nCore infrastructure: " + strings.Join(s.CoreInfrastructure, ", ")
	}
	return t
}

// OrphansTable renders modules unreachable from every entry point.
func OrphansTable(root string, r *models.ReachabilityReport) *Table {
	t := &Table{
		Title:   "Orphan Modules",
		Headers: []string{"Module", "File"},
		Empty:   "All modules are reachable",
		Data:    r,
	}
	if r.Summary.Skipped {
		t.Empty = "No entry points detected; reachability skipped"
	}
	for _, o := range r.Orphans {
		t.Rows = append(t.Rows, []string{o.Module, relPath(root, o.File)})
	}
	s := r.Summary
	t.Footer = fmt.Sprintf("%d of %d modules reachable from %d entry points",
		s.ReachableModules, s.TotalModules, len(r.EntryPoints))
	return t
}

// ClonesTable renders clone groups, one row per group.
func ClonesTable(root string, r *models.CloneReport) *Table {
	t := &Table{
		Title:   "Code Clones",
		Headers: []string{"Group", "Type", "Similarity", "Lines", "Instances"},
		Empty:   "No clones found",
		Data:    r,
	}
	for _, g := range r.Groups {
		locs := make([]string, len(g.Instances))
		for i, in := range g.Instances {
			locs[i] = fmt.Sprintf("%s:%d-%d %s", relPath(root, in.File), in.StartLine, in.EndLine, in.Name)
		}
		t.Rows = append(t.Rows, []string{
			fmt.Sprintf("%d", g.ID),
			string(g.Type),
			fmt.Sprintf("%.2f", g.Similarity),
			fmt.Sprintf("%d", g.TotalLines),
			strings.Join(locs, "\n"),
		})
	}
	s := r.Summary
	t.Footer = fmt.Sprintf("%d fragments, %d comparisons, %d pairs (type1 %d, type2 %d, type3 %d), %d groups",
		s.TotalFragments, s.Comparisons, s.TotalPairs, s.Type1Count, s.Type2Count, s.Type3Count, s.TotalGroups)
	return t
}

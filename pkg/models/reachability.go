package models

// EntryReason records why a module was treated as reachable a priori.
type EntryReason string

const (
	EntryConventional EntryReason = "conventional_file"
	EntryTest         EntryReason = "test_file"
	EntryScript       EntryReason = "script"
	EntryPackageRoot  EntryReason = "package_root"
	EntryDeclared     EntryReason = "declared"
)

// EntryPoint is a module assumed reachable without proof.
type EntryPoint struct {
	Module string      `json:"module"`
	Reason EntryReason `json:"reason"`
}

// OrphanModule is a known module unreachable from every entry point.
type OrphanModule struct {
	Module string `json:"module"`
	File   string `json:"file,omitempty"`
}

// ReachabilityReport is the result of a reachability pass.
type ReachabilityReport struct {
	EntryPoints []EntryPoint        `json:"entry_points"`
	Orphans     []OrphanModule      `json:"orphans"`
	Summary     ReachabilitySummary `json:"summary"`
}

// ReachabilitySummary provides aggregate counts.
type ReachabilitySummary struct {
	TotalModules     int  `json:"total_modules"`
	ReachableModules int  `json:"reachable_modules"`
	OrphanModules    int  `json:"orphan_modules"`
	DispatchPackages int  `json:"dispatch_packages"`
	Skipped          bool `json:"skipped,omitempty"`
}

// OrphanNames lists the orphaned module names in report order.
func (r *ReachabilityReport) OrphanNames() []string {
	out := make([]string, len(r.Orphans))
	for i, o := range r.Orphans {
		out[i] = o.Module
	}
	return out
}

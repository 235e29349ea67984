package mcpserver

// Tool descriptions with interpretation guidance for LLMs.

func describeCycles() string {
	return `Finds circular import chains between the modules of a Python project.

USE WHEN:
- A change fails with an ImportError about a partially initialized module
- Planning to split or move a package
- Gating a pull request on new import cycles

INTERPRETING RESULTS:
- Each finding is one elementary cycle, reported once, rotated to start at its smallest module
- Severity: 2 modules is low, 3 medium, 4 or more high
- suggested_break names the member with the fewest dependents relative to its own imports, the cheapest place to cut
- hop_lines give the line of each import along the cycle
- check.passed is false when the cycle count exceeds max_cycles

METRICS RETURNED:
- findings: cycle, cycle_length, severity, suggested_break, file, line
- summary: total_modules, total_edges, total_cycles, max_cycle_length, core_infrastructure
- check: passed, message, count`
}

func describeOrphans() string {
	return `Lists modules that no entry point can reach through static imports.

USE WHEN:
- Looking for dead modules left behind after a refactor
- Checking that a new module is actually wired in
- Auditing a package before deleting it

INTERPRETING RESULTS:
- Entry points are conventional files (__main__.py, manage.py, main.py...), tests, top-level packages, pyproject scripts and declared modules
- Packages listed in dynamic_roots keep all of their submodules reachable
- summary.skipped is true when no entry point was found; nothing is reported as orphaned then
- An orphan may still be loaded by a plugin system or a framework by string name

METRICS RETURNED:
- entry_points: module, reason
- orphans: module, file
- summary: total_modules, reachable_modules, orphan_modules, dispatch_packages`
}

func describeClones() string {
	return `Detects duplicated functions, methods and classes across a Python project.

USE WHEN:
- Finding copy-pasted logic worth extracting into a shared helper
- Reviewing a change that may have duplicated existing code
- Measuring duplication before a cleanup

INTERPRETING RESULTS:
- type1: identical after whitespace and comments
- type2: identical up to renamed identifiers or changed literals
- type3: near-miss, statements added or removed
- similarity ranges 0.0-1.0; pairs below the threshold are dropped
- groups cluster instances that are mutually similar

METRICS RETURNED:
- pairs: a, b, similarity, type
- groups: id, type, instances, similarity, total_lines
- summary: total_fragments, total_pairs, total_groups, duplicated_lines, avg_similarity`
}

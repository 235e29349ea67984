package mcpserver

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/panbanda/tangle/internal/output"
	"github.com/panbanda/tangle/internal/service/analysis"
	"github.com/panbanda/tangle/pkg/analyzer/cycles"
	"github.com/panbanda/tangle/pkg/config"
	"github.com/panbanda/tangle/pkg/models"
)

// AnalyzeInput is the base input for all analyze tools.
type AnalyzeInput struct {
	Path    string `json:"path,omitempty" jsonschema:"Project root to analyze. Defaults to the current directory."`
	Format  string `json:"format,omitempty" jsonschema:"Output format: toon (default), json, or text."`
	NoCache bool   `json:"no_cache,omitempty" jsonschema:"Skip the fact cache and re-parse every file."`
}

// CyclesInput adds cycle gate options.
type CyclesInput struct {
	AnalyzeInput
	MaxCycles   *int   `json:"max_cycles,omitempty" jsonschema:"Cycles allowed before the check fails. Negative makes the check advisory."`
	Granularity string `json:"granularity,omitempty" jsonschema:"Graph nodes: module (default) or root, which collapses modules into their top-level package."`
}

// OrphansInput adds entry point options.
type OrphansInput struct {
	AnalyzeInput
	EntryPoints  []string `json:"entry_points,omitempty" jsonschema:"Extra modules to treat as entry points."`
	DynamicRoots []string `json:"dynamic_roots,omitempty" jsonschema:"Packages whose submodules are loaded by name and always reachable."`
}

// ClonesInput adds clone detection options.
type ClonesInput struct {
	AnalyzeInput
	MinLines  int      `json:"min_lines,omitempty" jsonschema:"Minimum fragment size in lines. Default 5."`
	Threshold float64  `json:"threshold,omitempty" jsonschema:"Minimum similarity for a reported pair (0.0-1.0). Default 0.9."`
	Types     []string `json:"types,omitempty" jsonschema:"Clone types to report: type1, type2, type3."`
	Grouping  string   `json:"grouping,omitempty" jsonschema:"Grouping mode: connected (default) or k_core."`
}

// cyclesOutput adds the gate outcome to the cycle analysis.
type cyclesOutput struct {
	Findings []models.CircularFinding `json:"findings" toon:"findings"`
	Summary  models.CycleSummary      `json:"summary" toon:"summary"`
	Check    *cycles.CheckResult      `json:"check,omitempty" toon:"check"`
}

func getRoot(input AnalyzeInput) (string, error) {
	root := input.Path
	if root == "" {
		root = "."
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", err
	}
	if !info.IsDir() {
		return "", fmt.Errorf("%s is not a directory", root)
	}
	return abs, nil
}

func getFormat(input AnalyzeInput) output.Format {
	switch input.Format {
	case "json":
		return output.FormatJSON
	case "text":
		return output.FormatText
	default:
		return output.FormatTOON
	}
}

// loadConfig reads the project config and lets edit apply tool overrides
// before validation.
func loadConfig(root string, input AnalyzeInput, edit func(*config.Config)) (*config.Config, error) {
	cfg, _, err := config.LoadOrDefault(root)
	if err != nil {
		return nil, err
	}
	if input.NoCache {
		cfg.Cache.Enabled = false
	}
	if edit != nil {
		edit(cfg)
	}
	return cfg, cfg.Validate()
}

func run(ctx context.Context, root string, cfg *config.Config, sel analysis.Selection) (*analysis.Result, error) {
	res, err := analysis.New(analysis.WithConfig(cfg)).Run(ctx, root, sel)
	if err != nil {
		return nil, err
	}
	if len(res.Facts.Files) == 0 {
		return nil, errors.New("no Python files found")
	}
	return res, nil
}

func toolResult(r output.Renderable, format output.Format) (*mcp.CallToolResult, any, error) {
	var buf bytes.Buffer
	if err := output.NewFormatter(format, &buf, false).Output(r); err != nil {
		return nil, nil, err
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: buf.String()},
		},
	}, nil, nil
}

func toolError(msg string) (*mcp.CallToolResult, any, error) {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: "Error: " + msg},
		},
		IsError: true,
	}, nil, nil
}

func handleAnalyzeCycles(ctx context.Context, req *mcp.CallToolRequest, input CyclesInput) (*mcp.CallToolResult, any, error) {
	root, err := getRoot(input.AnalyzeInput)
	if err != nil {
		return toolError(err.Error())
	}
	cfg, err := loadConfig(root, input.AnalyzeInput, func(cfg *config.Config) {
		if input.MaxCycles != nil {
			cfg.Cycles.MaxCycles = *input.MaxCycles
		}
		if input.Granularity != "" {
			cfg.Cycles.Granularity = input.Granularity
		}
	})
	if err != nil {
		return toolError(err.Error())
	}

	res, err := run(ctx, root, cfg, analysis.Selection{Cycles: true})
	if err != nil {
		return toolError(err.Error())
	}

	table := output.CyclesTable(root, res.Cycles, false)
	table.Data = cyclesOutput{Findings: res.Cycles.Findings, Summary: res.Cycles.Summary, Check: res.Check}
	return toolResult(table, getFormat(input.AnalyzeInput))
}

func handleAnalyzeOrphans(ctx context.Context, req *mcp.CallToolRequest, input OrphansInput) (*mcp.CallToolResult, any, error) {
	root, err := getRoot(input.AnalyzeInput)
	if err != nil {
		return toolError(err.Error())
	}
	cfg, err := loadConfig(root, input.AnalyzeInput, func(cfg *config.Config) {
		rc := &cfg.Reachability
		rc.ExtraEntryPoints = append(rc.ExtraEntryPoints, input.EntryPoints...)
		rc.DynamicRoots = append(rc.DynamicRoots, input.DynamicRoots...)
	})
	if err != nil {
		return toolError(err.Error())
	}

	res, err := run(ctx, root, cfg, analysis.Selection{Reachability: true})
	if err != nil {
		return toolError(err.Error())
	}
	return toolResult(output.OrphansTable(root, res.Reachability), getFormat(input.AnalyzeInput))
}

func handleAnalyzeClones(ctx context.Context, req *mcp.CallToolRequest, input ClonesInput) (*mcp.CallToolResult, any, error) {
	root, err := getRoot(input.AnalyzeInput)
	if err != nil {
		return toolError(err.Error())
	}
	cfg, err := loadConfig(root, input.AnalyzeInput, func(cfg *config.Config) {
		cc := &cfg.Clones
		if input.MinLines > 0 {
			cc.MinLines = input.MinLines
		}
		if input.Threshold > 0 {
			cc.SimilarityThreshold = input.Threshold
		}
		if len(input.Types) > 0 {
			cc.Types = input.Types
		}
		if input.Grouping != "" {
			cc.Grouping = input.Grouping
		}
	})
	if err != nil {
		return toolError(err.Error())
	}

	res, err := run(ctx, root, cfg, analysis.Selection{Clones: true})
	if err != nil {
		return toolError(err.Error())
	}
	return toolResult(output.ClonesTable(root, res.Clones), getFormat(input.AnalyzeInput))
}

package main

import (
	"github.com/urfave/cli/v2"

	"github.com/panbanda/tangle/internal/mcpserver"
)

func mcpCmd() *cli.Command {
	return &cli.Command{
		Name:  "mcp",
		Usage: "Start MCP (Model Context Protocol) server for LLM tool integration",
		Description: `Starts an MCP server over stdio transport that exposes tangle's analyses
as tools that LLMs can invoke.

To use with Claude Desktop, add to your config:
  {
    "mcpServers": {
      "tangle": {
        "command": "tangle",
        "args": ["mcp"]
      }
    }
  }

Available tools:
  - analyze_cycles    Circular imports between modules
  - analyze_orphans   Modules no entry point reaches
  - analyze_clones    Duplicated functions, methods and classes`,
		Action: runMCPCmd,
	}
}

func runMCPCmd(c *cli.Context) error {
	ctx, stop := signalContext(c)
	defer stop()
	return mcpserver.NewServer(version).Run(ctx)
}

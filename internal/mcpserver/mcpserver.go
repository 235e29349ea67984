package mcpserver

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// Server wraps the MCP server and registers the tangle analysis tools.
type Server struct {
	server *mcp.Server
}

// NewServer creates a new MCP server with all tangle tools registered.
func NewServer(version string) *Server {
	if version == "" {
		version = "dev"
	}
	server := mcp.NewServer(
		&mcp.Implementation{
			Name:    "tangle",
			Version: version,
		},
		nil,
	)

	s := &Server{server: server}
	s.registerTools()
	s.registerPrompts()
	return s
}

// Run starts the MCP server over stdio transport.
func (s *Server) Run(ctx context.Context) error {
	return s.server.Run(ctx, &mcp.StdioTransport{})
}

func (s *Server) registerTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "analyze_cycles",
		Description: describeCycles(),
	}, handleAnalyzeCycles)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "analyze_orphans",
		Description: describeOrphans(),
	}, handleAnalyzeOrphans)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "analyze_clones",
		Description: describeClones(),
	}, handleAnalyzeClones)
}

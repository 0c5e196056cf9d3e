package mcp

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/bull/gitglean/internal/indexer"
	"github.com/bull/gitglean/internal/retriever"
)

// Ingester runs one repository ingestion.
type Ingester interface {
	Ingest(ctx context.Context, req indexer.Request) (*indexer.Result, error)
}

// Searcher answers a query against one repository.
type Searcher interface {
	Search(ctx context.Context, query, repositoryURL string) ([]retriever.Result, error)
}

// Server wraps the MCP server with dependencies.
type Server struct {
	server *mcp.Server
}

// Config holds server dependencies.
type Config struct {
	Ingester Ingester
	Searcher Searcher
	Version  string
}

// NewServer creates a configured MCP server with tools registered.
func NewServer(cfg *Config) *Server {
	version := cfg.Version
	if version == "" {
		version = "dev"
	}
	impl := &mcp.Implementation{
		Name:    "gitglean",
		Version: version,
	}

	server := mcp.NewServer(impl, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "ingest_repository",
		Description: "Ingest a GitHub repository for semantic search. Replaces anything previously ingested for the same repository.",
	}, makeIngestHandler(cfg.Ingester))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "search_repository",
		Description: "Search an ingested GitHub repository semantically. Returns the most relevant files with their best matching excerpt.",
	}, makeSearchHandler(cfg.Searcher))

	return &Server{server: server}
}

// Run starts the server with stdio transport (blocks until client disconnects).
func (s *Server) Run(ctx context.Context) error {
	return s.server.Run(ctx, &mcp.StdioTransport{})
}

// MCPServer returns the underlying MCP server instance.
// Used by transport handlers that need to wrap the server.
func (s *Server) MCPServer() *mcp.Server {
	return s.server
}

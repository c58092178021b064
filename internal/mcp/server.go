package mcp

import (
	"context"

	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"

	"github.com/dshills/repoindex/internal/searcher"
	"github.com/dshills/repoindex/internal/service"
	"github.com/dshills/repoindex/internal/storage"
)

const (
	// ServerName is the MCP server name
	ServerName = "repoindex"
)

// Backend is what the tools call into; *service.Service satisfies it
type Backend interface {
	Index(ctx context.Context, root, repo string, opts service.IndexOptions) (*service.IndexResult, error)
	Search(ctx context.Context, query string, mode searcher.Mode, opts service.SearchOptions) (*searcher.Response, error)
	ListRepositories(ctx context.Context) ([]*storage.Repository, error)
}

// Server wraps the MCP server with application dependencies
type Server struct {
	mcp     *server.MCPServer
	backend Backend
	logger  zerolog.Logger
}

// Option configures a Server
type Option func(*Server)

// WithLogger sets the logger
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// NewServer creates a new MCP server instance
func NewServer(backend Backend, version string, opts ...Option) *Server {
	s := &Server{
		mcp:     server.NewMCPServer(ServerName, version),
		backend: backend,
		logger:  zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.registerTools()
	return s
}

// Serve runs the MCP server on stdio and blocks until the client disconnects.
// The caller owns the backend and closes it afterwards.
func (s *Server) Serve(ctx context.Context) error {
	s.logger.Info().Msg("MCP server listening on stdio")
	return server.ServeStdio(s.mcp)
}

// registerTools registers all MCP tools
func (s *Server) registerTools() {
	s.mcp.AddTool(indexRepositoryTool(), s.handleIndexRepository)
	s.mcp.AddTool(searchCodeTool(), s.handleSearchCode)
	s.mcp.AddTool(listRepositoriesTool(), s.handleListRepositories)
}

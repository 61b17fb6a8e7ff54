package mcp

import (
	"github.com/mark3labs/mcp-go/server"

	"github.com/ziadkadry99/assistd/internal/intent"
	"github.com/ziadkadry99/assistd/internal/vectordb"
)

// Version is set via ldflags at build time.
var Version = "dev"

// Server wraps an MCP server that exposes knowledge-base search and
// intent classification tools.
type Server struct {
	retriever  vectordb.Retriever
	classifier intent.Classifier
	pages      vectordb.Source
	mcp        *server.MCPServer
}

// NewServer creates a new MCP server. pages backs get_page and may be nil,
// in which case that tool reports that no content is loaded.
func NewServer(retriever vectordb.Retriever, classifier intent.Classifier, pages vectordb.Source) *Server {
	s := &Server{
		retriever:  retriever,
		classifier: classifier,
		pages:      pages,
	}

	s.mcp = server.NewMCPServer(
		"assistd",
		Version,
		server.WithToolCapabilities(false),
	)

	s.registerTools()

	return s
}

// registerTools adds all tool definitions and their handlers to the MCP server.
func (s *Server) registerTools() {
	s.mcp.AddTool(searchContentTool, s.handleSearchContent)
	s.mcp.AddTool(classifyIntentTool, s.handleClassifyIntent)
	s.mcp.AddTool(getPageTool, s.handleGetPage)
}

// Serve starts the MCP server on stdio. Stdout is used for MCP protocol
// messages; all logging must go to stderr.
func (s *Server) Serve() error {
	return server.ServeStdio(s.mcp)
}

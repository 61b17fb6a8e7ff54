package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/ziadkadry99/assistd/internal/content"
	"github.com/ziadkadry99/assistd/internal/vectordb"
)

const defaultSearchLimit = 5

// handleSearchContent ranks knowledge-base pages against the query.
func (s *Server) handleSearchContent(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := request.RequireString("query")
	if err != nil || strings.TrimSpace(query) == "" {
		return mcp.NewToolResultError("missing required parameter: query"), nil
	}

	limit := request.GetInt("limit", defaultSearchLimit)
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	typeFilter := content.Type(request.GetString("type_filter", ""))

	// With a filter, rank everything and keep the first matches of that type.
	searchLimit := limit
	if typeFilter != "" {
		searchLimit = 0
	}
	results, err := s.retriever.Search(ctx, query, searchLimit)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("search failed: %v", err)), nil
	}
	if typeFilter != "" {
		results = filterType(results, typeFilter, limit)
	}

	if len(results) == 0 {
		return mcp.NewToolResultText("No results found. The knowledge base may be empty; check content.dir or run `assistd ingest`."), nil
	}

	return mcp.NewToolResultText(vectordb.FormatResults(results)), nil
}

func filterType(results []vectordb.SearchResult, typ content.Type, limit int) []vectordb.SearchResult {
	var out []vectordb.SearchResult
	for _, r := range results {
		if r.Type != typ {
			continue
		}
		out = append(out, r)
		if len(out) == limit {
			break
		}
	}
	return out
}

// handleClassifyIntent returns the classifier's best match as JSON.
func (s *Server) handleClassifyIntent(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := request.RequireString("query")
	if err != nil || strings.TrimSpace(query) == "" {
		return mcp.NewToolResultError("missing required parameter: query"), nil
	}

	match := s.classifier.Classify(strings.TrimSpace(query))
	data, err := json.MarshalIndent(match, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("encoding match: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// handleGetPage returns one page as markdown.
func (s *Server) handleGetPage(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: id"), nil
	}
	if s.pages == nil {
		return mcp.NewToolResultError("No content is loaded."), nil
	}

	docs, err := s.pages(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to load content: %v", err)), nil
	}
	for _, d := range docs {
		if d.ID == id {
			return mcp.NewToolResultText(formatPage(d)), nil
		}
	}
	return mcp.NewToolResultError(fmt.Sprintf("No page found for %q.", id)), nil
}

func formatPage(d content.Document) string {
	var sb strings.Builder
	sb.WriteString("# " + d.Title + "\n\n")
	if d.Summary != "" {
		sb.WriteString(d.Summary + "\n\n")
	}
	if d.LastUpdated != "" {
		sb.WriteString(fmt.Sprintf("Last updated: %s\n\n", d.LastUpdated))
	}
	sb.WriteString(d.Body)
	if !strings.HasSuffix(d.Body, "\n") {
		sb.WriteString("\n")
	}
	return sb.String()
}

package mcp

import "github.com/mark3labs/mcp-go/mcp"

// searchContentTool defines the search_content MCP tool.
var searchContentTool = mcp.NewTool("search_content",
	mcp.WithDescription("Search the public-service knowledge base. Returns ranked pages with their summaries."),
	mcp.WithString("query",
		mcp.Required(),
		mcp.Description("Natural language search query"),
	),
	mcp.WithNumber("limit",
		mcp.Description("Maximum number of results to return (default 5)"),
	),
	mcp.WithString("type_filter",
		mcp.Description("Only return pages from this collection"),
		mcp.Enum("services", "faqs", "documents", "fees"),
	),
)

// classifyIntentTool defines the classify_intent MCP tool.
var classifyIntentTool = mcp.NewTool("classify_intent",
	mcp.WithDescription("Classify a visitor question into a service intent with slots and recommended actions."),
	mcp.WithString("query",
		mcp.Required(),
		mcp.Description("The visitor's question"),
	),
)

// getPageTool defines the get_page MCP tool.
var getPageTool = mcp.NewTool("get_page",
	mcp.WithDescription("Get the full text of one knowledge-base page."),
	mcp.WithString("id",
		mcp.Required(),
		mcp.Description("Page id in the form type:slug, e.g. services:vehicle-renewal"),
	),
)

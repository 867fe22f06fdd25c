// Package mcp exposes read-only browsing history tools over the Model Context Protocol.
package mcp

import (
	"sort"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/hpungsan/browsediary/internal/pipeline"
	"github.com/hpungsan/browsediary/internal/render"
)

// toolEntry pairs a tool definition with a handler factory.
type toolEntry struct {
	def     mcp.Tool
	handler func(*Handlers) server.ToolHandlerFunc
}

// toolRegistry maps tool names to their definitions and handler factories.
// Every tool is read-only: none of them touches the diary.
var toolRegistry = map[string]toolEntry{
	"history_records": {
		def:     recordsToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleRecords },
	},
	"history_preview": {
		def:     previewToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandlePreview },
	},
}

var recordsToolDef = mcp.NewTool("history_records",
	mcp.WithDescription(
		"List one day of browsing activity from the local history store, "+
			"grouped by (title, url) with the earliest visit time and a visit count.",
	),
	mcp.WithString("date",
		mcp.Description("Day to collect as YYYY-MM-DD (default: yesterday in the configured timezone)"),
	),
)

var previewToolDef = mcp.NewTool("history_preview",
	mcp.WithDescription(
		"Render one day of browsing activity exactly as it would be appended to the diary, "+
			"without writing anything.",
	),
	mcp.WithString("date",
		mcp.Description("Day to render as YYYY-MM-DD (default: yesterday in the configured timezone)"),
	),
	mcp.WithString("format",
		mcp.Description("markdown (default) or html"),
	),
)

// AllToolNames returns the registered tool names, sorted.
func AllToolNames() []string {
	names := make([]string, 0, len(toolRegistry))
	for name := range toolRegistry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NewServer creates an MCP server with the history tools registered.
func NewServer(collector *pipeline.Collector, renderer *render.Renderer, version string) *server.MCPServer {
	s := server.NewMCPServer(
		"browsediary",
		version,
		server.WithToolCapabilities(true),
	)

	h := NewHandlers(collector, renderer)
	for _, entry := range toolRegistry {
		s.AddTool(entry.def, entry.handler(h))
	}

	return s
}

// Run starts the MCP server using stdio transport.
func Run(collector *pipeline.Collector, renderer *render.Renderer, version string) error {
	s := NewServer(collector, renderer, version)
	return server.ServeStdio(s)
}

package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/hpungsan/browsediary/internal/errors"
	"github.com/hpungsan/browsediary/internal/history"
	"github.com/hpungsan/browsediary/internal/pipeline"
	"github.com/hpungsan/browsediary/internal/record"
	"github.com/hpungsan/browsediary/internal/render"
)

// Handlers holds dependencies for MCP tool handlers.
type Handlers struct {
	collector *pipeline.Collector
	renderer  *render.Renderer
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(collector *pipeline.Collector, renderer *render.Renderer) *Handlers {
	return &Handlers{collector: collector, renderer: renderer}
}

// RecordsRequest represents the arguments for history_records.
type RecordsRequest struct {
	Date string `json:"date,omitempty"`
}

// RecordsOutput is the history_records result.
type RecordsOutput struct {
	Date    string                  `json:"date"`
	Count   int                     `json:"count"`
	Records []record.ActivityRecord `json:"records"`
}

// PreviewRequest represents the arguments for history_preview.
type PreviewRequest struct {
	Date   string `json:"date,omitempty"`
	Format string `json:"format,omitempty"`
}

// PreviewOutput is the history_preview result.
type PreviewOutput struct {
	Date       string `json:"date"`
	Records    int    `json:"records"`
	HeaderOnly bool   `json:"header_only"`
	Format     string `json:"format"`
	Text       string `json:"text"`
}

// HandleRecords handles the history_records tool.
func (h *Handlers) HandleRecords(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[RecordsRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	date, records, err := h.collect(ctx, input.Date)
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(RecordsOutput{Date: date, Count: len(records), Records: records})
}

// HandlePreview handles the history_preview tool.
func (h *Handlers) HandlePreview(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[PreviewRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	format := input.Format
	if format == "" {
		format = "markdown"
	}
	if format != "markdown" && format != "html" {
		return errorResult(errors.NewInvalidRequest(fmt.Sprintf("format must be markdown or html, got %q", format))), nil
	}

	date, records, err := h.collect(ctx, input.Date)
	if err != nil {
		return errorResult(err), nil
	}

	block := h.renderer.Render(records)
	text := block.String()
	if format == "html" {
		if text, err = render.ToHTML(block); err != nil {
			return errorResult(err), nil
		}
	}

	return successResult(PreviewOutput{
		Date:       date,
		Records:    len(records),
		HeaderOnly: block.HeaderOnly(),
		Format:     format,
		Text:       text,
	})
}

// collect resolves date and gathers its records.
func (h *Handlers) collect(ctx context.Context, date string) (string, []record.ActivityRecord, error) {
	day, err := h.collector.ResolveDay(date)
	if err != nil {
		return "", nil, err
	}
	records, err := h.collector.Collect(ctx, day)
	if err != nil {
		return "", nil, err
	}
	return day.Format(history.DateLayout), records, nil
}

// Result helpers

// errorResult creates an MCP error result from any error.
// Uses IsError: true so MCP clients recognize failures properly.
// Internal error details are not exposed.
func errorResult(err error) *mcp.CallToolResult {
	var payload map[string]any

	if diaryErr, ok := errors.AsDiaryError(err); ok {
		errorObj := map[string]any{
			"code":      diaryErr.Code,
			"message":   diaryErr.Message,
			"retryable": diaryErr.Retryable,
		}
		if diaryErr.Code != errors.ErrInternal && diaryErr.Details != nil {
			errorObj["details"] = diaryErr.Details
		}
		payload = map[string]any{"error": errorObj}
	} else {
		payload = map[string]any{
			"error": map[string]any{
				"code":      errors.ErrInternal,
				"message":   "an internal error occurred",
				"retryable": false,
			},
		}
	}

	content, _ := json.Marshal(payload)
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: string(content)}},
		IsError: true,
	}
}

// successResult creates an MCP success result from any data.
func successResult(data any) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultJSON(data)
}

// CLAUDE:SUMMARY Registers dslwatch MCP tools: live line stats, orchestrator status, sample history.
package dslwatch

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// RegisterMCP registers the read-only dslwatch tools on srv. The reset
// stays a page click and has no tool.
func (w *Watcher) RegisterMCP(srv *mcp.Server) {
	w.registerStatsTool(srv)
	w.registerStatusTool(srv)
	w.registerHistoryTool(srv)
}

type endpoint func(ctx context.Context, req any) (any, error)

type decodeFunc func(*mcp.CallToolRequest) (any, error)

// registerTool adapts an endpoint to an MCP tool. Decode and endpoint
// failures become tool errors; the JSON response is the text content.
func registerTool(srv *mcp.Server, tool *mcp.Tool, ep endpoint, decode decodeFunc) {
	srv.AddTool(tool, func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		in, err := decode(req)
		if err != nil {
			var res mcp.CallToolResult
			res.SetError(fmt.Errorf("invalid arguments: %w", err))
			return &res, nil
		}
		resp, err := ep(ctx, in)
		if err != nil {
			var res mcp.CallToolResult
			res.SetError(err)
			return &res, nil
		}
		data, err := json.Marshal(resp)
		if err != nil {
			var res mcp.CallToolResult
			res.SetError(fmt.Errorf("marshal: %w", err))
			return &res, nil
		}
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: string(data)}},
		}, nil
	})
}

// inputSchema builds a JSON Schema object with type "object".
func inputSchema(properties map[string]any, required []string) map[string]any {
	s := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

func noArgs(*mcp.CallToolRequest) (any, error) { return nil, nil }

// --- dsl_stats ---

func (w *Watcher) registerStatsTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "dsl_stats",
		Description: "Read the DSL line statistics from the router now: uptime, CRC and FEC error counters (downstream/upstream).",
		InputSchema: inputSchema(map[string]any{}, nil),
	}
	registerTool(srv, tool, func(ctx context.Context, _ any) (any, error) {
		return w.Stats(ctx)
	}, noArgs)
}

// --- dsl_status ---

func (w *Watcher) registerStatusTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "dsl_status",
		Description: "Show which console page is detected, whether live updates are running and the last snapshot shown.",
		InputSchema: inputSchema(map[string]any{}, nil),
	}
	registerTool(srv, tool, func(context.Context, any) (any, error) {
		return statusView(w.Status()), nil
	}, noArgs)
}

// --- dsl_history ---

type historyRequest struct {
	Metric string `json:"metric"`
	Limit  int    `json:"limit,omitempty"`
}

func (w *Watcher) registerHistoryTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "dsl_history",
		Description: "List stored samples of one line metric, newest first.",
		InputSchema: inputSchema(map[string]any{
			"metric": map[string]any{"type": "string", "enum": []any{"uptime", "crcErrors", "fecErrors"}, "description": "Metric key"},
			"limit":  map[string]any{"type": "integer", "description": "Max samples (default 100)"},
		}, []string{"metric"}),
	}

	ep := func(ctx context.Context, req any) (any, error) {
		r := req.(*historyRequest)
		limit := r.Limit
		if limit <= 0 || limit > maxHistoryLimit {
			limit = defaultHistoryLimit
		}
		return w.History(ctx, r.Metric, limit)
	}

	decode := func(req *mcp.CallToolRequest) (any, error) {
		var r historyRequest
		if err := json.Unmarshal(req.Params.Arguments, &r); err != nil {
			return nil, err
		}
		if r.Metric == "" {
			return nil, fmt.Errorf("metric is required")
		}
		return &r, nil
	}

	registerTool(srv, tool, ep, decode)
}

package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/dwizi/flowy/internal/client"
	"github.com/dwizi/flowy/internal/launcher"
)

const (
	ToolQuery  = "flowy_query"
	ToolInvoke = "flowy_invoke"
)

type queryArgs struct {
	Query string `json:"query"`
}

type invokeArgs struct {
	Query    string `json:"query"`
	ItemID   string `json:"item_id"`
	ActionID string `json:"action_id"`
	Input    string `json:"input"`
}

// New exposes the launcher as MCP tools. Invocations wait for the remote
// outcome so the host sees whether WorkFlowy accepted the change.
func New(backend client.Backend, version string, logger *slog.Logger) *sdkmcp.Server {
	if logger == nil {
		logger = slog.Default()
	}
	if strings.TrimSpace(version) == "" {
		version = "dev"
	}
	server := sdkmcp.NewServer(&sdkmcp.Implementation{Name: "flowy", Version: version}, nil)
	server.AddTool(&sdkmcp.Tool{
		Name:        ToolQuery,
		Description: "List WorkFlowy nodes at a '>' separated path. An unknown path returns a single create item.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query": map[string]any{"type": "string", "description": "Path such as 'Work>Inbox'. Empty lists the root."},
			},
		},
	}, func(ctx context.Context, req *sdkmcp.CallToolRequest) (*sdkmcp.CallToolResult, error) {
		var args queryArgs
		if err := decodeArgs(req, &args); err != nil {
			return errorResult(err), nil
		}
		items, err := backend.Query(ctx, args.Query)
		if err != nil {
			return errorResult(err), nil
		}
		return jsonResult(map[string]any{"query": args.Query, "items": items})
	})
	server.AddTool(&sdkmcp.Tool{
		Name:        ToolInvoke,
		Description: "Run an action of an item returned by flowy_query: tcomplete, edit (needs input), remove, create or reauth.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query":     map[string]any{"type": "string", "description": "The query the item came from."},
				"item_id":   map[string]any{"type": "string"},
				"action_id": map[string]any{"type": "string", "enum": []string{launcher.ActionToggle, launcher.ActionEdit, launcher.ActionRemove, launcher.ActionCreate, launcher.ActionReauth}},
				"input":     map[string]any{"type": "string", "description": "New name for edit."},
			},
			"required": []string{"item_id", "action_id"},
		},
	}, func(ctx context.Context, req *sdkmcp.CallToolRequest) (*sdkmcp.CallToolResult, error) {
		var args invokeArgs
		if err := decodeArgs(req, &args); err != nil {
			return errorResult(err), nil
		}
		result, err := backend.Invoke(ctx, client.ActionRequest{
			Query:    args.Query,
			ItemID:   args.ItemID,
			ActionID: args.ActionID,
			Input:    args.Input,
			Wait:     true,
		})
		if err != nil {
			logger.Warn("mcp invoke failed", "item_id", args.ItemID, "action_id", args.ActionID, "error", err)
			return errorResult(err), nil
		}
		out, err := jsonResult(result)
		if err != nil {
			return nil, err
		}
		out.IsError = result.Failed()
		return out, nil
	})
	return server
}

// Serve runs the server over stdio until ctx ends or the host disconnects.
func Serve(ctx context.Context, server *sdkmcp.Server) error {
	return server.Run(ctx, &sdkmcp.StdioTransport{})
}

func decodeArgs(req *sdkmcp.CallToolRequest, out any) error {
	if req == nil || req.Params == nil || len(req.Params.Arguments) == 0 {
		return nil
	}
	if err := json.Unmarshal(req.Params.Arguments, out); err != nil {
		return fmt.Errorf("invalid arguments: %w", err)
	}
	return nil
}

func jsonResult(value any) (*sdkmcp.CallToolResult, error) {
	payload, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return nil, err
	}
	return &sdkmcp.CallToolResult{Content: []sdkmcp.Content{&sdkmcp.TextContent{Text: string(payload)}}}, nil
}

func errorResult(err error) *sdkmcp.CallToolResult {
	return &sdkmcp.CallToolResult{
		IsError: true,
		Content: []sdkmcp.Content{&sdkmcp.TextContent{Text: err.Error()}},
	}
}

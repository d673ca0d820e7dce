package mcp

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/parleygate/parley/internal/buildinfo"
	"github.com/parleygate/parley/internal/tools"
)

// protocolVersion is the MCP revision this server speaks.
const protocolVersion = "2024-11-05"

// Server answers MCP JSON-RPC requests from the shared tool registry.
// It is transport-agnostic; see Stdio and NewHTTPHandler for the two
// transports.
type Server struct {
	registry *tools.Registry
	logger   *slog.Logger
}

// NewServer creates an MCP server over the given registry.
func NewServer(registry *tools.Registry, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{registry: registry, logger: logger}
}

// Handle dispatches one request and returns the response, or nil for
// notifications.
func (s *Server) Handle(ctx context.Context, req *Request) *Response {
	if req.IsNotification() {
		// notifications/initialized and friends need no reply.
		s.logger.Debug("mcp notification", "method", req.Method)
		return nil
	}

	s.logger.Debug("mcp request", "method", req.Method)

	switch req.Method {
	case "initialize":
		return newResponse(req.ID, map[string]any{
			"protocolVersion": protocolVersion,
			"capabilities": map[string]any{
				"tools": map[string]any{"listChanged": false},
			},
			"serverInfo": map[string]any{
				"name":    "parley",
				"version": buildinfo.Version,
			},
		})
	case "ping":
		return newResponse(req.ID, map[string]any{})
	case "tools/list":
		return s.handleToolsList(req)
	case "tools/call":
		return s.handleToolsCall(ctx, req)
	default:
		return newErrorResponse(req.ID, codeMethodNotFound, "method not found: "+req.Method)
	}
}

// toolDescriptor is the tools/list wire shape.
type toolDescriptor struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"inputSchema"`
}

func (s *Server) handleToolsList(req *Request) *Response {
	descriptors := []toolDescriptor{}
	for _, t := range s.registry.List() {
		descriptors = append(descriptors, toolDescriptor{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: t.Parameters,
		})
	}
	return newResponse(req.ID, map[string]any{"tools": descriptors})
}

// callParams is the tools/call parameter shape.
type callParams struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// contentItem is one element of a tools/call result.
type contentItem struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// callResult is the tools/call result shape. Tool execution failures
// are reported inside the result with IsError set; protocol-level
// errors are reserved for malformed requests and unknown tools.
type callResult struct {
	Content []contentItem `json:"content"`
	IsError bool          `json:"isError"`
}

func (s *Server) handleToolsCall(ctx context.Context, req *Request) *Response {
	var params callParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return newErrorResponse(req.ID, codeInvalidParams, "invalid tools/call params: "+err.Error())
	}
	if params.Name == "" {
		return newErrorResponse(req.ID, codeInvalidParams, "tool name is required")
	}
	if s.registry.Get(params.Name) == nil {
		return newErrorResponse(req.ID, codeInvalidParams, "unknown tool: "+params.Name)
	}

	out, err := s.registry.Execute(ctx, params.Name, params.Arguments)
	if err != nil {
		info := tools.MapError(err)
		payload, mErr := json.Marshal(map[string]any{"error": info})
		if mErr != nil {
			return newErrorResponse(req.ID, codeInternalError, mErr.Error())
		}
		s.logger.Warn("tool call failed",
			"tool", params.Name,
			"code", info.Code,
			slog.Any("error", err),
		)
		return newResponse(req.ID, callResult{
			Content: []contentItem{{Type: "text", Text: string(payload)}},
			IsError: true,
		})
	}

	return newResponse(req.ID, callResult{
		Content: []contentItem{{Type: "text", Text: out}},
	})
}

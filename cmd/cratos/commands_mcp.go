package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/cratos-ai/cratos/internal/tools"
)

// mcpRequest is a JSON-RPC 2.0 request, per spec §6's MCP surface:
// "initialize", "tools/list", "tools/call".
type mcpRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
}

type mcpResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  any             `json:"result,omitempty"`
	Error   *mcpError       `json:"error,omitempty"`
}

type mcpError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type mcpToolDescription struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"inputSchema"`
}

// runMCPLoop reads one JSON-RPC request per line from in and writes one
// response per line to out. Only the three methods spec §6 names for the
// core's MCP surface are implemented; tool bodies themselves are out of
// scope (spec §1), so tools/call dispatches through the Tool Runner
// exactly as the orchestrator loop would, against whatever has been
// registered in c.registry.
func runMCPLoop(ctx context.Context, c *core, in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	enc := json.NewEncoder(out)

	for scanner.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var req mcpRequest
		if err := json.Unmarshal(line, &req); err != nil {
			enc.Encode(mcpResponse{JSONRPC: "2.0", Error: &mcpError{Code: -32700, Message: err.Error()}})
			continue
		}
		enc.Encode(handleMCPRequest(ctx, c, req))
	}
	return scanner.Err()
}

func handleMCPRequest(ctx context.Context, c *core, req mcpRequest) mcpResponse {
	resp := mcpResponse{JSONRPC: "2.0", ID: req.ID}
	switch req.Method {
	case "initialize":
		resp.Result = map[string]any{
			"protocolVersion": "2024-11-05",
			"serverInfo":      map[string]string{"name": "cratos", "version": version},
			"capabilities":    map[string]any{"tools": map[string]any{}},
		}
	case "tools/list":
		descriptors := c.registry.Enabled()
		out := make([]mcpToolDescription, 0, len(descriptors))
		for _, d := range descriptors {
			out = append(out, mcpToolDescription{
				Name:        d.Name,
				Description: d.Description,
				InputSchema: d.Parameters,
			})
		}
		resp.Result = map[string]any{"tools": out}
	case "tools/call":
		var p struct {
			Name      string          `json:"name"`
			Arguments json.RawMessage `json:"arguments"`
		}
		if err := json.Unmarshal(req.Params, &p); err != nil {
			resp.Error = &mcpError{Code: -32602, Message: err.Error()}
			return resp
		}
		result, err := c.runner.Execute(ctx, tools.Call{Name: p.Name, Input: p.Arguments})
		if err != nil {
			resp.Error = &mcpError{Code: -32000, Message: err.Error()}
			return resp
		}
		resp.Result = map[string]any{
			"content": []map[string]any{
				{"type": "text", "text": fmt.Sprintf("%v", result.Output)},
			},
			"isError": !result.Success,
		}
	default:
		resp.Error = &mcpError{Code: -32601, Message: fmt.Sprintf("unknown method %q", req.Method)}
	}
	return resp
}

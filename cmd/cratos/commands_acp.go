package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/cratos-ai/cratos/internal/eventbus"
	"github.com/cratos-ai/cratos/pkg/coreapi"
	"github.com/spf13/cobra"
)

// acpRequest is one line of the ACP wire protocol named in spec §6's CLI
// surface: "JSON-lines over stdin/stdout: {id, method, params} requests".
type acpRequest struct {
	ID     json.RawMessage `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
}

// acpResponse is the "{id, result|error}" reply, or a standalone "event"
// push frame carrying an eventbus.Event while a request is in flight.
type acpResponse struct {
	ID     json.RawMessage `json:"id,omitempty"`
	Result any             `json:"result,omitempty"`
	Error  *acpError       `json:"error,omitempty"`
	Event  *eventbus.Event `json:"event,omitempty"`
}

type acpError struct {
	Message string `json:"message"`
}

func buildAcpCmd() *cobra.Command {
	var configPath string
	var mcp bool
	cmd := &cobra.Command{
		Use:   "acp",
		Short: "Speak ACP (or, with --mcp, MCP) line-delimited JSON over stdio",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := LoadConfig(resolveConfigPath(configPath))
			if err != nil {
				return err
			}
			c, err := buildCore(cfg)
			if err != nil {
				return err
			}
			defer c.close()

			if mcp {
				return runMCPLoop(cmd.Context(), c, cmd.InOrStdin(), cmd.OutOrStdout())
			}
			return runACPLoop(cmd.Context(), c, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to YAML configuration file")
	cmd.Flags().BoolVar(&mcp, "mcp", false, "Speak MCP JSON-RPC 2.0 instead of ACP")
	return cmd
}

// runACPLoop reads one acpRequest per line from in and writes one
// acpResponse (preceded by zero or more "event" push frames) per line to
// out, until in is closed or ctx is cancelled. "admit" is the only
// request method: the uniform inbound call of spec §6.
func runACPLoop(ctx context.Context, c *core, in io.Reader, out io.Writer) error {
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
		var req acpRequest
		if err := json.Unmarshal(line, &req); err != nil {
			enc.Encode(acpResponse{Error: &acpError{Message: fmt.Sprintf("invalid request: %v", err)}})
			continue
		}
		resp := handleACPRequest(ctx, c, req, enc)
		resp.ID = req.ID
		enc.Encode(resp)
	}
	return scanner.Err()
}

func handleACPRequest(ctx context.Context, c *core, req acpRequest, enc *json.Encoder) acpResponse {
	switch req.Method {
	case "admit":
		var p coreapi.AdmitRequest
		if err := json.Unmarshal(req.Params, &p); err != nil {
			return acpResponse{Error: &acpError{Message: err.Error()}}
		}
		return admitAndStream(ctx, c, p, enc)
	case "cancel":
		var p struct {
			SessionID string `json:"session_id"`
			UserID    string `json:"user_id"`
			Scope     string `json:"scope"`
		}
		if err := json.Unmarshal(req.Params, &p); err != nil {
			return acpResponse{Error: &acpError{Message: err.Error()}}
		}
		cancelled, err := c.driver.Cancel(p.SessionID, p.UserID, p.Scope)
		if err != nil {
			return acpResponse{Error: &acpError{Message: err.Error()}}
		}
		return acpResponse{Result: map[string]bool{"cancelled": cancelled}}
	case "delete":
		var p struct {
			SessionID string `json:"session_id"`
			UserID    string `json:"user_id"`
			Scope     string `json:"scope"`
		}
		if err := json.Unmarshal(req.Params, &p); err != nil {
			return acpResponse{Error: &acpError{Message: err.Error()}}
		}
		if err := c.driver.Delete(p.SessionID, p.UserID, p.Scope); err != nil {
			return acpResponse{Error: &acpError{Message: err.Error()}}
		}
		return acpResponse{Result: map[string]bool{"deleted": true}}
	default:
		return acpResponse{Error: &acpError{Message: fmt.Sprintf("unknown method %q", req.Method)}}
	}
}

// admitAndStream admits one message and, if it started immediately,
// subscribes to the event bus to forward this Execution's events as
// "event" push frames until a terminal event arrives, then returns a
// coreapi.ReturnValue summarising the exchange. A message that only
// enqueued (started=false) returns its queue position without waiting.
func admitAndStream(ctx context.Context, c *core, p coreapi.AdmitRequest, enc *json.Encoder) acpResponse {
	recv := c.bus.Subscribe()
	defer recv.Close()

	started, position, err := c.driver.Admit(ctx, p.SessionID, p.UserID, p.ChannelKind, p.InputText, p.ActivePersona)
	if err != nil {
		return acpResponse{Error: &acpError{Message: err.Error()}}
	}
	if !started {
		return acpResponse{Result: coreapi.AdmitResult{Started: false, Position: uint(position)}}
	}

	startedAt := time.Now()
	var execID, responseText string
	var status string

	for {
		ev, ok := recv.Recv()
		if !ok {
			break
		}
		if ev.Type == "lagged" {
			continue
		}
		if execID == "" {
			if ev.Type != eventbus.TypeExecutionStarted || ev.ExecutionStarted == nil || ev.ExecutionStarted.SessionKey != p.SessionID {
				continue
			}
			execID = ev.ExecutionID
		}
		if ev.ExecutionID != execID {
			continue
		}
		enc.Encode(acpResponse{Event: &ev})

		switch ev.Type {
		case eventbus.TypeChatDelta:
			if ev.ChatDelta != nil {
				responseText += ev.ChatDelta.Delta
			}
		case eventbus.TypeExecutionCompleted:
			status = "completed"
		case eventbus.TypeExecutionFailed:
			status = "failed"
		case eventbus.TypeExecutionCancelled:
			status = "cancelled"
		}
		if status != "" {
			break
		}
	}

	return acpResponse{Result: coreapi.ReturnValue{
		ExecutionID:  execID,
		ResponseText: responseText,
		StartedAt:    startedAt,
		CompletedAt:  time.Now(),
		Status:       status,
	}}
}

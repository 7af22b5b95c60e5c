// Package coreapi holds the wire types exchanged at the orchestration
// core's boundary: the admit() call, the event-bus/event-store payloads,
// and the synchronous return value. Internal components pass richer types
// among themselves; coreapi is what crosses a process or transport edge.
package coreapi

import "time"

// AdminScope is the scope string a Principal must carry to resolve an
// approval or cancel a session it does not own.
const AdminScope = "admin"

// Principal is the identity a bearer token decodes to: the owner/admin
// check used by the Approval Manager (C2) and the Session/Queue Layer (C9)
// compares against this.
type Principal struct {
	UserID string   `json:"user_id"`
	Email  string   `json:"email,omitempty"`
	Name   string   `json:"name,omitempty"`
	Scopes []string `json:"scopes,omitempty"`
}

// HasScope reports whether the principal carries the named scope.
func (p *Principal) HasScope(scope string) bool {
	if p == nil {
		return false
	}
	for _, s := range p.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}

// IsAdmin reports whether the principal carries AdminScope.
func (p *Principal) IsAdmin() bool {
	return p.HasScope(AdminScope)
}

// AdmitRequest is the uniform inbound call described in spec §6: a channel
// adapter normalises a message and calls the core with this shape.
type AdmitRequest struct {
	SessionID      string `json:"session_id"`
	UserID         string `json:"user_id"`
	ChannelKind    string `json:"channel_kind"`
	InputText      string `json:"input_text"`
	ActivePersona  string `json:"active_persona,omitempty"`
}

// AdmitResult reports whether the message started an Execution immediately
// or was queued behind an already-running one.
type AdmitResult struct {
	Started  bool `json:"started"`
	Position uint `json:"position"`
}

// ToolCallRecord is the wire shape of a single tool invocation inside an
// Execution, per spec §3.
type ToolCallRecord struct {
	ToolName    string `json:"tool_name"`
	InputJSON   string `json:"input_json"`
	OutputJSON  string `json:"output_json"`
	Success     bool   `json:"success"`
	DurationMS  int64  `json:"duration_ms"`
	PersonaName string `json:"persona_name,omitempty"`
}

// ReturnValue is what a synchronous caller awaits, per spec §6.
type ReturnValue struct {
	ExecutionID  string           `json:"execution_id"`
	ResponseText string           `json:"response_text"`
	ToolCalls    []ToolCallRecord `json:"tool_calls"`
	StartedAt    time.Time        `json:"started_at"`
	CompletedAt  time.Time        `json:"completed_at"`
	Status       string           `json:"status"`
}

// Package eventbus implements the execution lifecycle broadcast channel
// (C1): a multi-producer multi-consumer fan-out with per-subscriber
// back-pressure that never blocks a publisher.
package eventbus

import "time"

// Type identifies the kind of lifecycle event. JSON-encoded as a
// snake_case discriminator per the external event-bus contract.
type Type string

const (
	TypeExecutionStarted   Type = "execution_started"
	TypePlanningStarted    Type = "planning_started"
	TypeChatDelta          Type = "chat_delta"
	TypeToolStarted        Type = "tool_started"
	TypeToolCompleted      Type = "tool_completed"
	TypeApprovalRequired   Type = "approval_required"
	TypeExecutionCompleted Type = "execution_completed"
	TypeExecutionFailed    Type = "execution_failed"
	TypeExecutionCancelled Type = "execution_cancelled"
)

// Event is the tagged-union record published on the bus. Exactly one
// payload field is non-nil for a given Type; ExecutionID is the common
// correlation field named in spec §3 (A2A/message_id variants are out of
// scope for this core).
type Event struct {
	Type        Type      `json:"type"`
	ExecutionID string    `json:"execution_id"`
	Time        time.Time `json:"time"`
	Sequence    uint64    `json:"seq"`

	ExecutionStarted   *ExecutionStartedPayload   `json:"execution_started,omitempty"`
	PlanningStarted    *PlanningStartedPayload    `json:"planning_started,omitempty"`
	ChatDelta          *ChatDeltaPayload          `json:"chat_delta,omitempty"`
	ToolStarted        *ToolStartedPayload        `json:"tool_started,omitempty"`
	ToolCompleted      *ToolCompletedPayload      `json:"tool_completed,omitempty"`
	ApprovalRequired   *ApprovalRequiredPayload   `json:"approval_required,omitempty"`
	ExecutionFailed    *ExecutionFailedPayload    `json:"execution_failed,omitempty"`
}

type ExecutionStartedPayload struct {
	SessionKey string `json:"session_key"`
}

type PlanningStartedPayload struct {
	Iteration int `json:"iteration"`
}

type ChatDeltaPayload struct {
	Delta   string `json:"delta"`
	IsFinal bool   `json:"is_final"`
}

type ToolStartedPayload struct {
	ToolName   string `json:"tool_name"`
	ToolCallID string `json:"tool_call_id"`
}

type ToolCompletedPayload struct {
	ToolCallID string `json:"tool_call_id"`
	ToolName   string `json:"tool_name"`
	Success    bool   `json:"success"`
	DurationMS int64  `json:"duration_ms"`
}

type ApprovalRequiredPayload struct {
	RequestID string `json:"request_id"`
}

type ExecutionFailedPayload struct {
	ErrorSanitised string `json:"error_sanitised"`
}

func started(execID string, seq uint64, p ExecutionStartedPayload) Event {
	return Event{Type: TypeExecutionStarted, ExecutionID: execID, Time: time.Now(), Sequence: seq, ExecutionStarted: &p}
}

// NewExecutionStarted builds an ExecutionStarted event.
func NewExecutionStarted(execID, sessionKey string, seq uint64) Event {
	return started(execID, seq, ExecutionStartedPayload{SessionKey: sessionKey})
}

// NewPlanningStarted builds a PlanningStarted event.
func NewPlanningStarted(execID string, iteration int, seq uint64) Event {
	return Event{Type: TypePlanningStarted, ExecutionID: execID, Time: time.Now(), Sequence: seq,
		PlanningStarted: &PlanningStartedPayload{Iteration: iteration}}
}

// NewChatDelta builds a ChatDelta event.
func NewChatDelta(execID, delta string, isFinal bool, seq uint64) Event {
	return Event{Type: TypeChatDelta, ExecutionID: execID, Time: time.Now(), Sequence: seq,
		ChatDelta: &ChatDeltaPayload{Delta: delta, IsFinal: isFinal}}
}

// NewToolStarted builds a ToolStarted event.
func NewToolStarted(execID, toolName, toolCallID string, seq uint64) Event {
	return Event{Type: TypeToolStarted, ExecutionID: execID, Time: time.Now(), Sequence: seq,
		ToolStarted: &ToolStartedPayload{ToolName: toolName, ToolCallID: toolCallID}}
}

// NewToolCompleted builds a ToolCompleted event.
func NewToolCompleted(execID, toolCallID, toolName string, success bool, durationMS int64, seq uint64) Event {
	return Event{Type: TypeToolCompleted, ExecutionID: execID, Time: time.Now(), Sequence: seq,
		ToolCompleted: &ToolCompletedPayload{ToolCallID: toolCallID, ToolName: toolName, Success: success, DurationMS: durationMS}}
}

// NewApprovalRequired builds an ApprovalRequired event.
func NewApprovalRequired(execID, requestID string, seq uint64) Event {
	return Event{Type: TypeApprovalRequired, ExecutionID: execID, Time: time.Now(), Sequence: seq,
		ApprovalRequired: &ApprovalRequiredPayload{RequestID: requestID}}
}

// NewExecutionCompleted builds an ExecutionCompleted event.
func NewExecutionCompleted(execID string, seq uint64) Event {
	return Event{Type: TypeExecutionCompleted, ExecutionID: execID, Time: time.Now(), Sequence: seq}
}

// NewExecutionFailed builds an ExecutionFailed event.
func NewExecutionFailed(execID, errSanitised string, seq uint64) Event {
	return Event{Type: TypeExecutionFailed, ExecutionID: execID, Time: time.Now(), Sequence: seq,
		ExecutionFailed: &ExecutionFailedPayload{ErrorSanitised: errSanitised}}
}

// NewExecutionCancelled builds an ExecutionCancelled event.
func NewExecutionCancelled(execID string, seq uint64) Event {
	return Event{Type: TypeExecutionCancelled, ExecutionID: execID, Time: time.Now(), Sequence: seq}
}

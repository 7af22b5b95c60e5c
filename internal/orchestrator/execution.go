// Package orchestrator implements the Orchestrator Core (C10): the
// plan-act-observe driver loop that ties together the event bus, approval
// manager, security policy, tool runner, memory, and persona-skill store
// into a single Execution per admitted message.
package orchestrator

import (
	"context"
	"time"
)

// Status is an Execution's lifecycle state, per spec §3.
type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// DefaultMaxIterations bounds the plan-act-observe loop per spec §4.10.
const DefaultMaxIterations = 10

// Execution is the driver's record of a single admitted message, owned
// exclusively by the driver loop for its lifetime. A compact summary is
// what C11 and the event store see; the full struct never leaves this
// package.
type Execution struct {
	ID            string
	SessionKey    string
	UserID        string
	ChannelKind   string
	StartedAt     time.Time
	Status        Status
	Iteration     int
	ActivePersona string
	InputText     string

	cancel   <-chan struct{}
	eventSeq uint64
}

// nextSeq returns the next sequence_num for this Execution's rows in the
// persistent event store, per spec §6's append-only contract.
func (e *Execution) nextSeq() uint64 {
	e.eventSeq++
	return e.eventSeq
}

// cancelled reports whether the Execution's cooperative cancel token has
// fired.
func (e *Execution) cancelled() bool {
	select {
	case <-e.cancel:
		return true
	default:
		return false
	}
}

// ToolCallRecord is the append-only per-call record inside an Execution,
// per spec §3.
type ToolCallRecord struct {
	ToolName    string
	InputJSON   string
	OutputJSON  string
	Success     bool
	DurationMS  int64
	PersonaName string
}

// Outcome summarises a finished Execution for C11's post-execution hooks
// and for tests; it is the narrow slice of Execution state that survives
// past the driver loop.
type Outcome struct {
	ExecutionID   string
	SessionKey    string
	Persona       string
	ResponseText  string
	Status        Status
	TaskCompleted bool
	SkillsUsed    []string
}

// PostExecutionHooks is C11's entry point, invoked fire-and-forget by the
// driver at the end of every Execution. Implementations must not block the
// driver on failure; internal/chronicle implements this.
type PostExecutionHooks interface {
	Run(ctx context.Context, outcome Outcome)
}

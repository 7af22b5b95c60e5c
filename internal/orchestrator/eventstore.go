package orchestrator

import "time"

// EventRecord is one append-only row in the persistent event store, per
// spec §6's external event-store contract: one record per state
// transition, tool call, or error.
type EventRecord struct {
	ExecutionID string
	SequenceNum uint64
	EventType   string
	Timestamp   time.Time
	DurationMS  *int64
	Payload     any
}

// EventStore is the narrow write-only surface the driver needs into the
// persistent event log; internal/audit's Logger is adapted to satisfy it.
// Replay and search are external concerns the core never reads back.
type EventStore interface {
	Append(record EventRecord) error
}

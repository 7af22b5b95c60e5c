package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/cratos-ai/cratos/internal/orchestrator"
)

// EventStoreAdapter satisfies orchestrator.EventStore by repointing a
// Logger's buffered, structured writer at the Orchestrator Core's
// append-only event-store contract (spec §6.2's `(execution_id,
// sequence_num, event_type, timestamp, duration_ms?, payload_json)`
// tuple) instead of at an audit trail.
type EventStoreAdapter struct {
	Logger *Logger
}

// Append writes one Orchestrator Core event record through the
// underlying Logger. The driver's event_type string (e.g.
// "execution_started", "tool_call") becomes the audit Event's Type
// directly; Details carries sequence_num and the caller-supplied
// payload so it survives whichever output format the Logger is
// configured for.
func (a *EventStoreAdapter) Append(record orchestrator.EventRecord) error {
	details := map[string]any{
		"execution_id": record.ExecutionID,
		"sequence_num": record.SequenceNum,
	}
	if record.DurationMS != nil {
		details["duration_ms"] = *record.DurationMS
	}
	if record.Payload != nil {
		if encoded, err := json.Marshal(record.Payload); err == nil {
			var decoded map[string]any
			if json.Unmarshal(encoded, &decoded) == nil {
				for k, v := range decoded {
					details[k] = v
				}
			} else {
				details["payload"] = string(encoded)
			}
		}
	}

	var duration time.Duration
	if record.DurationMS != nil {
		duration = time.Duration(*record.DurationMS) * time.Millisecond
	}

	a.Logger.Log(context.Background(), &Event{
		Type:      EventType(record.EventType),
		Level:     LevelInfo,
		SessionID: record.ExecutionID,
		Timestamp: record.Timestamp,
		Action:    record.EventType,
		Details:   details,
		Duration:  duration,
	})
	return nil
}

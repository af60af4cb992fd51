package eventstream

import (
	"time"

	"github.com/google/uuid"
)

const (
	// SchemaVersionV1 is the first version of the event payload schema.
	SchemaVersionV1 = 1

	// EventTypePayloadReceived is emitted for every message delivered on a
	// stream connection.
	EventTypePayloadReceived = "timespace.payload.received"
)

// PayloadEvent is a transport-neutral event for one delivered payload.
type PayloadEvent struct {
	SchemaVersion int         `json:"schema_version"`
	EventType     string      `json:"event_type"`
	EventID       string      `json:"event_id"`
	EmittedAt     time.Time   `json:"emitted_at"`
	Connection    PayloadMeta `json:"connection"`
	Payload       string      `json:"payload"`
}

// PayloadMeta identifies the connection a payload arrived on.
type PayloadMeta struct {
	Target   string `json:"target"`
	HandleID uint64 `json:"handle_id"`
	Seq      uint64 `json:"seq"`
	ThreadID string `json:"thread_id,omitempty"`

	// SourceEventID is the SSE "id:" in effect for the payload.
	SourceEventID string `json:"source_event_id,omitempty"`
}

// NewPayloadEvent stamps a v1 event for payload received on meta.
func NewPayloadEvent(meta PayloadMeta, payload string) *PayloadEvent {
	return &PayloadEvent{
		SchemaVersion: SchemaVersionV1,
		EventType:     EventTypePayloadReceived,
		EventID:       uuid.NewString(),
		EmittedAt:     time.Now().UTC(),
		Connection:    meta,
		Payload:       payload,
	}
}

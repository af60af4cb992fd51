package stream

// UpdateKind says what changed on a connection.
type UpdateKind int

const (
	// UpdateOpened is sent when the transport confirms the channel.
	UpdateOpened UpdateKind = iota

	// UpdateMessage is sent for every message; Payload holds its text.
	UpdateMessage

	// UpdateFaulted is sent when the connection closed on a transport
	// fault; Fault holds it.
	UpdateFaulted

	// UpdateClosed is sent when the source ended the stream without a
	// fault.
	UpdateClosed
)

func (k UpdateKind) String() string {
	switch k {
	case UpdateOpened:
		return "opened"
	case UpdateMessage:
		return "message"
	case UpdateFaulted:
		return "faulted"
	case UpdateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Update describes one observable change of the Client's current
// connection.
type Update struct {
	Handle *Handle
	Kind   UpdateKind

	// Payload is the message text for UpdateMessage.
	Payload string

	// Fault is set for UpdateFaulted.
	Fault error

	// Seq numbers messages on a connection starting at 1. It is zero for
	// non-message updates.
	Seq uint64

	// EventID is the source's last event id when the message arrived, or "".
	EventID string
}

// Observer receives updates in order on the connection's goroutine. For a
// given Client, observers are never invoked concurrently. Observers may
// read Payload, Fault, Snapshot and Handle.State, but must not call
// Initialize, Retarget, Dispose or Close: those wait for the running
// observer to return. Hand the update to another goroutine instead, for
// example through a Mailbox.
type Observer func(Update)

type subscription struct {
	id uint64
	fn Observer
}

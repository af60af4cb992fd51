// Package sse provides a minimal SSE (Server-Sent Events) reader for the
// timespace stream client. It parses events from a text/event-stream body
// and can optionally copy the raw bytes to a second writer, which the tail
// command uses to record the wire stream.
//
// This package intentionally does NOT provide SSE writer or server
// capabilities.
//
// See the SSE specification:
// https://html.spec.whatwg.org/multipage/server-sent-events.html
package sse

import "time"

// MessageType is the default event type. Events without an "event:" field
// carry this type after parsing.
const MessageType = "message"

// Event represents a single parsed SSE event, delimited by a blank line
// in the upstream byte stream.
type Event struct {
	// Type is the SSE event type from the "event:" field, or MessageType
	// when the field was absent or empty.
	Type string

	// Data is the concatenated contents of all "data:" lines for this event,
	// joined with "\n".
	Data string

	// ID is the last event ID seen on the stream. Per the SSE spec it
	// persists across events until another "id:" field replaces it.
	ID string

	// Retry is the reconnection time advertised by the server, or zero.
	Retry time.Duration
}

// IsMessage reports whether the event is of the default message type.
func (e *Event) IsMessage() bool {
	return e.Type == MessageType
}

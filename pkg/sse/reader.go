package sse

import (
	"bufio"
	"io"
	"strconv"
	"strings"
	"time"
)

const bom = "\ufeff"

// Reader reads SSE events from a source io.Reader. When constructed with
// NewTeeReader it also writes the source bytes, unmodified, to a destination
// io.Writer as they are read.
//
// ┌──────────────────┐   ┌─────────────────────────────────┐
// │ source io.Reader │──▶│ destination io.Writer (optional)│
// └──────────────────┘   └─────────────────────────────────┘
// │
// ▼
// ┌──────────────────┐
// │   Reader.Next()  │
// └──────────────────┘
// │
// ▼
// ┌──────────────────┐
// │      Event       │
// └──────────────────┘
type Reader struct {
	scanner *bufio.Scanner

	// Fields accumulated for the event being built.
	eventType string
	data      strings.Builder
	hasData   bool
	retry     time.Duration

	// lastID persists across events.
	lastID string

	first bool
}

// NewReader returns a Reader that parses SSE events from src.
func NewReader(src io.Reader) *Reader {
	return NewTeeReader(src, nil)
}

// NewTeeReader returns a Reader that parses SSE events from src and writes
// all raw bytes through to dest, line endings included. A nil dest disables
// the tee. The scanner reads ahead, so dest can be ahead of the last event
// Next returned.
func NewTeeReader(src io.Reader, dest io.Writer) *Reader {
	if dest != nil {
		src = io.TeeReader(src, dest)
	}

	scanner := bufio.NewScanner(src)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	return &Reader{
		scanner: scanner,
		first:   true,
	}
}

// Next returns the next parsed SSE event. It blocks until a complete event
// is available (terminated by a blank line in the stream).
// Next returns nil, nil when the source is exhausted.
//
// Events without any "data:" field are not dispatched, matching browser
// EventSource behavior; their "id:" still updates the last event ID.
func (r *Reader) Next() (*Event, error) {
	for r.scanner.Scan() {
		raw := r.scanner.Text()

		if r.first {
			raw = strings.TrimPrefix(raw, bom)
			r.first = false
		}

		// A blank line signals the end of the current event.
		if raw == "" {
			if ev := r.dispatch(); ev != nil {
				return ev, nil
			}
			continue
		}

		// Lines starting with ':' are comments (often keep-alives).
		if strings.HasPrefix(raw, ":") {
			continue
		}

		r.parseLine(raw)
	}

	if err := r.scanner.Err(); err != nil {
		return nil, err
	}

	// Source exhausted. A trailing event without a blank line is still
	// yielded so truncated streams do not lose their last message.
	if ev := r.dispatch(); ev != nil {
		return ev, nil
	}

	return nil, nil
}

// parseLine processes a single non-empty, non-comment SSE line and
// accumulates the field into the current event.
//
// A line has the form "field:value" where a single space after the colon
// is stripped if present.
func (r *Reader) parseLine(line string) {
	field, value, ok := strings.Cut(line, ":")
	if ok {
		value = strings.TrimPrefix(value, " ")
	} else {
		// No colon: the whole line is the field name with an empty value.
		field = line
	}

	switch field {
	case "data":
		if r.hasData {
			r.data.WriteByte('\n')
		}
		r.data.WriteString(value)
		r.hasData = true
	case "event":
		r.eventType = value
	case "id":
		// IDs containing NUL are ignored.
		if !strings.ContainsRune(value, 0) {
			r.lastID = value
		}
	case "retry":
		if ms, err := strconv.ParseUint(value, 10, 32); err == nil {
			r.retry = time.Duration(ms) * time.Millisecond
		}
	default:
		// Unknown fields are ignored.
	}
}

// dispatch builds the accumulated event and resets per-event state. It
// returns nil when no data field was seen.
func (r *Reader) dispatch() *Event {
	defer r.reset()

	if !r.hasData {
		return nil
	}

	ev := &Event{
		Type:  r.eventType,
		Data:  r.data.String(),
		ID:    r.lastID,
		Retry: r.retry,
	}
	if ev.Type == "" {
		ev.Type = MessageType
	}
	return ev
}

func (r *Reader) reset() {
	r.eventType = ""
	r.data.Reset()
	r.hasData = false
	r.retry = 0
}

package eventstream

import "context"

// Publisher publishes payload events to an event stream backend.
type Publisher interface {
	PublishPayload(ctx context.Context, event *PayloadEvent) error
	Close() error
}

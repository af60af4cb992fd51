package nop

import (
	"context"

	"github.com/papercomputeco/timespace/pkg/eventstream"
)

// Publisher is a no-op eventstream publisher used for tests and disabled mode.
type Publisher struct{}

// NewPublisher creates a new no-op eventstream publisher.
func NewPublisher() *Publisher {
	return &Publisher{}
}

// PublishPayload validates input and otherwise does nothing.
func (p *Publisher) PublishPayload(_ context.Context, event *eventstream.PayloadEvent) error {
	if event == nil {
		return eventstream.ErrNilPayloadEvent
	}

	return nil
}

// Close is a no-op.
func (p *Publisher) Close() error {
	return nil
}

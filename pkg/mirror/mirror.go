// Package mirror copies payloads delivered by a stream.Client to the
// configured event stream without blocking the connection goroutine.
package mirror

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/papercomputeco/timespace/pkg/config"
	"github.com/papercomputeco/timespace/pkg/eventstream"
	"github.com/papercomputeco/timespace/pkg/eventstream/kafka"
	"github.com/papercomputeco/timespace/pkg/eventstream/nop"
	"github.com/papercomputeco/timespace/pkg/logger"
	"github.com/papercomputeco/timespace/pkg/stream"
	"github.com/papercomputeco/timespace/pkg/worker"
)

// ErrUnknownProvider is returned for an unsupported eventstream.provider.
var ErrUnknownProvider = errors.New("unknown event stream provider")

// Mirror publishes every message update it observes through a worker pool.
type Mirror struct {
	publisher eventstream.Publisher
	pool      *worker.Pool
	threadID  string
	enabled   bool
}

// New builds the publisher named by cfg.Provider. Provider "none" (or
// empty) returns a disabled Mirror whose Observe is a no-op.
func New(cfg config.EventStreamConfig, threadID string, l *slog.Logger) (*Mirror, error) {
	switch cfg.Provider {
	case "", config.EventStreamNone:
		return NewWithPublisher(nop.NewPublisher(), threadID, l, false)
	case config.EventStreamKafka:
		p, err := kafka.NewPublisher(kafka.Config{
			Brokers: splitBrokers(cfg.KafkaBrokers),
			Topic:   cfg.KafkaTopic,
		})
		if err != nil {
			return nil, fmt.Errorf("creating kafka publisher: %w", err)
		}
		return NewWithPublisher(p, threadID, l, true)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, cfg.Provider)
	}
}

// NewWithPublisher mirrors to p. A disabled Mirror never starts workers.
func NewWithPublisher(p eventstream.Publisher, threadID string, l *slog.Logger, enabled bool) (*Mirror, error) {
	if l == nil {
		l = logger.Nop()
	}

	m := &Mirror{
		publisher: p,
		threadID:  threadID,
		enabled:   enabled,
	}

	if !enabled {
		return m, nil
	}

	pool, err := worker.NewPool(&worker.Config{
		Publisher: p,
		Logger:    l.With("component", "mirror"),
	})
	if err != nil {
		return nil, err
	}
	m.pool = pool

	return m, nil
}

// Enabled reports whether payloads are published anywhere.
func (m *Mirror) Enabled() bool {
	return m.enabled
}

// Observe is a stream.Observer. It enqueues message updates and ignores
// everything else; a full queue drops the event.
func (m *Mirror) Observe(u stream.Update) {
	if !m.enabled || u.Kind != stream.UpdateMessage {
		return
	}

	m.pool.Enqueue(worker.Job{Event: eventstream.NewPayloadEvent(eventstream.PayloadMeta{
		Target:   u.Handle.Target().String(),
		HandleID: u.Handle.ID(),
		Seq:      u.Seq,
		ThreadID: m.threadID,

		SourceEventID: u.EventID,
	}, u.Payload)})
}

// Close drains queued events and closes the publisher. Close the stream
// client first so no update arrives while draining.
func (m *Mirror) Close() error {
	if m.pool != nil {
		m.pool.Close()
	}
	return m.publisher.Close()
}

func splitBrokers(raw string) []string {
	var brokers []string
	for _, b := range strings.Split(raw, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}

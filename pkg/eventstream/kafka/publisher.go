// Package kafka publishes payload events to a Kafka topic.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/papercomputeco/timespace/pkg/eventstream"
)

var (
	// ErrNoBrokers is returned by NewPublisher without broker addresses.
	ErrNoBrokers = errors.New("kafka publisher requires at least one broker")

	// ErrNoTopic is returned by NewPublisher without a topic.
	ErrNoTopic = errors.New("kafka publisher requires a topic")
)

// MessageWriter is the subset of *kafkago.Writer the publisher uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Config holds the Kafka publisher settings.
type Config struct {
	Brokers []string
	Topic   string

	// WriteTimeout bounds a single write. Zero uses kafka-go's default.
	WriteTimeout time.Duration
}

// Publisher writes payload events as JSON messages keyed by handle id so
// every message of one connection lands in the same partition in order.
type Publisher struct {
	writer MessageWriter
}

var _ eventstream.Publisher = (*Publisher)(nil)

// NewPublisher creates a publisher backed by a kafka-go Writer.
func NewPublisher(cfg Config) (*Publisher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, ErrNoBrokers
	}
	if cfg.Topic == "" {
		return nil, ErrNoTopic
	}

	return NewPublisherWithWriter(&kafkago.Writer{
		Addr:         kafkago.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireOne,
		WriteTimeout: cfg.WriteTimeout,
	}), nil
}

// NewPublisherWithWriter creates a publisher over an existing writer.
func NewPublisherWithWriter(w MessageWriter) *Publisher {
	return &Publisher{writer: w}
}

// PublishPayload encodes event and writes it synchronously.
func (p *Publisher) PublishPayload(ctx context.Context, event *eventstream.PayloadEvent) error {
	if event == nil {
		return eventstream.ErrNilPayloadEvent
	}

	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encoding payload event: %w", err)
	}

	msg := kafkago.Message{
		Key:   []byte(strconv.FormatUint(event.Connection.HandleID, 10)),
		Value: value,
		Headers: []kafkago.Header{
			{Key: "event_type", Value: []byte(event.EventType)},
			{Key: "schema_version", Value: []byte(strconv.Itoa(event.SchemaVersion))},
		},
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("writing payload event %s: %w", event.EventID, err)
	}

	return nil
}

// Close flushes and closes the underlying writer.
func (p *Publisher) Close() error {
	return p.writer.Close()
}

package kafka_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	kafkago "github.com/segmentio/kafka-go"

	"github.com/papercomputeco/timespace/pkg/eventstream"
	"github.com/papercomputeco/timespace/pkg/eventstream/kafka"
)

type fakeWriter struct {
	mu     sync.Mutex
	msgs   []kafkago.Message
	err    error
	closed bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafkago.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	return nil
}

var _ = Describe("Publisher", func() {
	var (
		writer    *fakeWriter
		publisher *kafka.Publisher
		event     *eventstream.PayloadEvent
	)

	BeforeEach(func() {
		writer = &fakeWriter{}
		publisher = kafka.NewPublisherWithWriter(writer)
		event = eventstream.NewPayloadEvent(eventstream.PayloadMeta{
			Target:   "http://127.0.0.1:8000/stream?message=hi",
			HandleID: 42,
			Seq:      7,
		}, "hello")
	})

	It("requires brokers and a topic", func() {
		_, err := kafka.NewPublisher(kafka.Config{Topic: "payloads"})
		Expect(err).To(MatchError(kafka.ErrNoBrokers))

		_, err = kafka.NewPublisher(kafka.Config{Brokers: []string{"localhost:9092"}})
		Expect(err).To(MatchError(kafka.ErrNoTopic))
	})

	It("builds a writer without dialing", func() {
		p, err := kafka.NewPublisher(kafka.Config{Brokers: []string{"localhost:9092"}, Topic: "payloads"})
		Expect(err).NotTo(HaveOccurred())
		Expect(p.Close()).To(Succeed())
	})

	It("writes the event as JSON keyed by handle id", func() {
		Expect(publisher.PublishPayload(context.Background(), event)).To(Succeed())

		Expect(writer.msgs).To(HaveLen(1))
		msg := writer.msgs[0]
		Expect(string(msg.Key)).To(Equal("42"))
		Expect(msg.Headers).To(ContainElement(kafkago.Header{
			Key:   "event_type",
			Value: []byte(eventstream.EventTypePayloadReceived),
		}))

		var decoded eventstream.PayloadEvent
		Expect(json.Unmarshal(msg.Value, &decoded)).To(Succeed())
		Expect(decoded.Payload).To(Equal("hello"))
		Expect(decoded.Connection.Seq).To(Equal(uint64(7)))
		Expect(decoded.EventID).To(Equal(event.EventID))
	})

	It("rejects nil events", func() {
		err := publisher.PublishPayload(context.Background(), nil)
		Expect(err).To(MatchError(eventstream.ErrNilPayloadEvent))
		Expect(writer.msgs).To(BeEmpty())
	})

	It("wraps writer errors", func() {
		writer.err = errors.New("leader not available")
		err := publisher.PublishPayload(context.Background(), event)
		Expect(err).To(MatchError(writer.err))
		Expect(err.Error()).To(ContainSubstring(event.EventID))
	})

	It("closes the writer", func() {
		Expect(publisher.Close()).To(Succeed())
		Expect(writer.closed).To(BeTrue())
	})
})

package stream_test

import (
	"errors"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/goleak"

	"github.com/papercomputeco/timespace/pkg/sse"
	"github.com/papercomputeco/timespace/pkg/stream"
	testutils "github.com/papercomputeco/timespace/pkg/utils/test"
)

const (
	targetA = "http://127.0.0.1:8000/stream?message=first"
	targetB = "http://127.0.0.1:8000/stream?message=second"
	targetC = "http://127.0.0.1:8000/stream?message=third"
)

// recorder collects every update delivered to an observer.
type recorder struct {
	mu      sync.Mutex
	updates []stream.Update
}

func (r *recorder) observe(u stream.Update) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates = append(r.updates, u)
}

func (r *recorder) all() []stream.Update {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]stream.Update, len(r.updates))
	copy(out, r.updates)
	return out
}

func (r *recorder) messages() []string {
	var out []string
	for _, u := range r.all() {
		if u.Kind == stream.UpdateMessage {
			out = append(out, u.Payload)
		}
	}
	return out
}

func (r *recorder) kinds(h *stream.Handle) []stream.UpdateKind {
	var out []stream.UpdateKind
	for _, u := range r.all() {
		if u.Handle == h {
			out = append(out, u.Kind)
		}
	}
	return out
}

func payloadOf(c *stream.Client) func() string {
	return func() string {
		p, _ := c.Payload()
		return p
	}
}

func stateOf(h *stream.Handle) func() stream.State {
	return func() stream.State {
		return h.State()
	}
}

var _ = Describe("Client", func() {
	var (
		transport *testutils.MockTransport
		rec       *recorder
		client    *stream.Client
		ignore    goleak.Option
	)

	BeforeEach(func() {
		ignore = goleak.IgnoreCurrent()
		transport = testutils.NewMockTransport()
		rec = &recorder{}
		client = stream.New(transport, stream.WithObserver(rec.observe))
	})

	AfterEach(func() {
		transport.Release()
		Expect(client.Close()).To(Succeed())
		Expect(goleak.Find(ignore)).To(Succeed())
	})

	openChannel := func() *testutils.MockChannel {
		ch := transport.NextChannel(time.Second)
		Expect(ch).NotTo(BeNil(), "expected the transport to open a channel")
		return ch
	}

	Describe("Initialize", func() {
		It("returns a connecting handle that opens asynchronously", func() {
			transport.Hold()

			h, err := client.Initialize(targetA)
			Expect(err).NotTo(HaveOccurred())
			Expect(h.Target().String()).To(Equal(targetA))
			Expect(h.State()).To(Equal(stream.StateConnecting))
			Expect(client.Snapshot().State).To(Equal(stream.StateConnecting))

			transport.Release()
			ch := openChannel()
			Expect(ch.Target.String()).To(Equal(targetA))
			Eventually(stateOf(h)).Should(Equal(stream.StateOpen))

			_, ok := client.Payload()
			Expect(ok).To(BeFalse())
			Expect(client.Fault()).To(BeNil())
			Expect(rec.kinds(h)).To(Equal([]stream.UpdateKind{stream.UpdateOpened}))
		})

		It("rejects an empty target without connecting", func() {
			h, err := client.Initialize("")
			Expect(err).To(MatchError(stream.ErrMalformedTarget))
			Expect(h).To(BeNil())
			Expect(client.Current()).To(BeNil())
			Expect(transport.NextChannel(50 * time.Millisecond)).To(BeNil())
		})

		It("rejects a target that is not an http locator", func() {
			_, err := client.Initialize("ftp://example.com/stream")
			Expect(err).To(MatchError(stream.ErrMalformedTarget))
			Expect(transport.Channels()).To(BeEmpty())
		})

		It("fails after the client is closed", func() {
			Expect(client.Close()).To(Succeed())

			_, err := client.Initialize(targetA)
			Expect(err).To(MatchError(stream.ErrClientClosed))
		})
	})

	Describe("message delivery", func() {
		It("delivers messages in order", func() {
			h, err := client.Initialize(targetA)
			Expect(err).NotTo(HaveOccurred())
			ch := openChannel()

			ch.Send("m1")
			ch.Send("m2")
			ch.Send("m3")

			Eventually(rec.messages).Should(Equal([]string{"m1", "m2", "m3"}))
			Expect(payloadOf(client)()).To(Equal("m3"))

			var seqs []uint64
			for _, u := range rec.all() {
				if u.Kind == stream.UpdateMessage {
					Expect(u.Handle).To(BeIdenticalTo(h))
					seqs = append(seqs, u.Seq)
				}
			}
			Expect(seqs).To(Equal([]uint64{1, 2, 3}))
		})

		It("ignores events that are not plain messages", func() {
			_, err := client.Initialize(targetA)
			Expect(err).NotTo(HaveOccurred())
			ch := openChannel()

			ch.SendEvent(sse.Event{Type: "ping", Data: "{}"})
			ch.Send("hello")

			Eventually(payloadOf(client)).Should(Equal("hello"))
			Expect(rec.messages()).To(Equal([]string{"hello"}))
		})

		It("carries the source event id on message updates", func() {
			_, err := client.Initialize(targetA)
			Expect(err).NotTo(HaveOccurred())
			ch := openChannel()

			ch.SendEvent(sse.Event{Type: sse.MessageType, Data: "first", ID: "a-1", Retry: 3 * time.Second})
			ch.Send("second")

			Eventually(rec.messages).Should(Equal([]string{"first", "second"}))
			var ids []string
			for _, u := range rec.all() {
				if u.Kind == stream.UpdateMessage {
					ids = append(ids, u.EventID)
				}
			}
			Expect(ids).To(Equal([]string{"a-1", ""}))
		})

		It("keeps an empty message as a payload", func() {
			_, err := client.Initialize(targetA)
			Expect(err).NotTo(HaveOccurred())
			ch := openChannel()

			ch.Send("")

			Eventually(func() bool {
				_, ok := client.Payload()
				return ok
			}).Should(BeTrue())
			Expect(payloadOf(client)()).To(BeEmpty())
		})
	})

	Describe("Retarget", func() {
		It("never has two channels open at once", func() {
			h, err := client.Initialize(targetA)
			Expect(err).NotTo(HaveOccurred())

			targets := []string{targetB, targetC, targetA}
			for i := range 30 {
				h, err = client.Retarget(h, targets[i%len(targets)])
				Expect(err).NotTo(HaveOccurred())
			}

			Eventually(stateOf(h)).Should(Equal(stream.StateOpen))
			Expect(transport.MaxConcurrentOpen()).To(BeNumerically("<=", 1))
			Expect(transport.OpenCount()).To(Equal(1))
		})

		It("never has two channels open while connects are pending", func() {
			transport.Hold()

			h, err := client.Initialize(targetA)
			Expect(err).NotTo(HaveOccurred())
			h, err = client.Retarget(h, targetB)
			Expect(err).NotTo(HaveOccurred())
			h, err = client.Retarget(h, targetC)
			Expect(err).NotTo(HaveOccurred())

			transport.Release()
			ch := openChannel()
			Expect(ch.Target.String()).To(Equal(targetC))
			Eventually(stateOf(h)).Should(Equal(stream.StateOpen))

			Expect(transport.Channels()).To(HaveLen(1))
			Expect(transport.MaxConcurrentOpen()).To(Equal(1))
		})

		It("clears payload and fault and hides late messages from the old connection", func() {
			transport.IgnoreClose = true

			h1, err := client.Initialize(targetA)
			Expect(err).NotTo(HaveOccurred())
			a := openChannel()
			a.Send("a1")
			Eventually(payloadOf(client)).Should(Equal("a1"))

			h2, err := client.Retarget(h1, targetB)
			Expect(err).NotTo(HaveOccurred())
			Expect(h2).NotTo(BeIdenticalTo(h1))
			Expect(h1.State()).To(Equal(stream.StateClosed))

			_, ok := client.Payload()
			Expect(ok).To(BeFalse())
			Expect(client.Fault()).To(BeNil())

			// A message that was already in flight on the old channel.
			a.Send("late")

			b := openChannel()
			b.Send("b1")
			Eventually(payloadOf(client)).Should(Equal("b1"))

			Expect(rec.messages()).To(Equal([]string{"a1", "b1"}))
			Expect(rec.kinds(h1)).To(Equal([]stream.UpdateKind{stream.UpdateOpened, stream.UpdateMessage}))
			Expect(a.CloseCalls()).To(Equal(1))

			b.End()
		})

		It("is idempotent for the target of the live connection", func() {
			h, err := client.Initialize(targetA)
			Expect(err).NotTo(HaveOccurred())
			ch := openChannel()
			ch.Send("kept")
			Eventually(payloadOf(client)).Should(Equal("kept"))

			same, err := client.Retarget(h, targetA)
			Expect(err).NotTo(HaveOccurred())
			Expect(same).To(BeIdenticalTo(h))
			Expect(payloadOf(client)()).To(Equal("kept"))
			Expect(transport.NextChannel(50 * time.Millisecond)).To(BeNil())
		})

		It("reconnects to the same target after the connection closed", func() {
			h, err := client.Initialize(targetA)
			Expect(err).NotTo(HaveOccurred())
			ch := openChannel()
			ch.End()
			Eventually(stateOf(h)).Should(Equal(stream.StateClosed))

			again, err := client.Retarget(h, targetA)
			Expect(err).NotTo(HaveOccurred())
			Expect(again).NotTo(BeIdenticalTo(h))
			Expect(openChannel().Target.String()).To(Equal(targetA))
		})

		It("replaces the current connection even from a stale handle", func() {
			h1, err := client.Initialize(targetA)
			Expect(err).NotTo(HaveOccurred())
			openChannel()
			h2, err := client.Retarget(h1, targetB)
			Expect(err).NotTo(HaveOccurred())
			openChannel()

			h3, err := client.Retarget(h1, targetC)
			Expect(err).NotTo(HaveOccurred())
			Expect(h2.State()).To(Equal(stream.StateClosed))
			Expect(client.Current()).To(BeIdenticalTo(h3))
			openChannel()
			Expect(transport.MaxConcurrentOpen()).To(Equal(1))
		})

		It("leaves the current connection alone on a malformed target", func() {
			h, err := client.Initialize(targetA)
			Expect(err).NotTo(HaveOccurred())
			openChannel()
			Eventually(stateOf(h)).Should(Equal(stream.StateOpen))

			next, err := client.Retarget(h, "not a url")
			Expect(err).To(MatchError(stream.ErrMalformedTarget))
			Expect(next).To(BeNil())
			Expect(h.State()).To(Equal(stream.StateOpen))
			Expect(client.Current()).To(BeIdenticalTo(h))
		})

		It("rejects a handle from another client", func() {
			other := stream.New(testutils.NewMockTransport())
			defer other.Close()
			foreign, err := other.Initialize(targetA)
			Expect(err).NotTo(HaveOccurred())

			_, err = client.Retarget(foreign, targetB)
			Expect(err).To(MatchError(stream.ErrForeignHandle))
		})
	})

	Describe("faults", func() {
		It("records the fault and keeps the last payload", func() {
			h, err := client.Initialize(targetA)
			Expect(err).NotTo(HaveOccurred())
			ch := openChannel()

			ch.Send("partial response")
			reset := errors.New("connection reset")
			ch.Fail(reset)

			Eventually(client.Fault).ShouldNot(BeNil())
			Expect(payloadOf(client)()).To(Equal("partial response"))
			Expect(h.State()).To(Equal(stream.StateClosed))
			Expect(ch.CloseCalls()).To(Equal(1))

			var fault *stream.TransportFault
			Expect(errors.As(client.Fault(), &fault)).To(BeTrue())
			Expect(fault.Opened).To(BeTrue())
			Expect(fault.HandleID).To(Equal(h.ID()))
			Expect(fault.Target.String()).To(Equal(targetA))
			Expect(client.Fault()).To(MatchError(reset))

			Expect(rec.kinds(h)).To(Equal([]stream.UpdateKind{
				stream.UpdateOpened, stream.UpdateMessage, stream.UpdateFaulted,
			}))
		})

		It("records a fault when the channel cannot be opened", func() {
			refused := errors.New("connection refused")
			transport.FailOpens(refused)

			h, err := client.Initialize(targetA)
			Expect(err).NotTo(HaveOccurred())

			Eventually(client.Fault).Should(MatchError(refused))
			Expect(h.State()).To(Equal(stream.StateClosed))

			var fault *stream.TransportFault
			Expect(errors.As(client.Fault(), &fault)).To(BeTrue())
			Expect(fault.Opened).To(BeFalse())

			_, ok := client.Payload()
			Expect(ok).To(BeFalse())
		})

		It("does not retry after a fault", func() {
			_, err := client.Initialize(targetA)
			Expect(err).NotTo(HaveOccurred())
			openChannel().Fail(errors.New("boom"))

			Eventually(client.Fault).ShouldNot(BeNil())
			Expect(transport.NextChannel(100 * time.Millisecond)).To(BeNil())
		})

		It("clears the fault on retarget", func() {
			h, err := client.Initialize(targetA)
			Expect(err).NotTo(HaveOccurred())
			openChannel().Fail(errors.New("boom"))
			Eventually(client.Fault).ShouldNot(BeNil())

			_, err = client.Retarget(h, targetB)
			Expect(err).NotTo(HaveOccurred())
			Expect(client.Fault()).To(BeNil())
		})
	})

	Describe("premature close", func() {
		It("closes the connection without recording a fault", func() {
			h, err := client.Initialize(targetA)
			Expect(err).NotTo(HaveOccurred())
			ch := openChannel()

			ch.Send("done")
			ch.End()

			Eventually(stateOf(h)).Should(Equal(stream.StateClosed))
			Expect(client.Fault()).To(BeNil())
			Expect(payloadOf(client)()).To(Equal("done"))
			Expect(client.Snapshot().State).To(Equal(stream.StateClosed))
			Expect(rec.kinds(h)).To(ContainElement(stream.UpdateClosed))
			Expect(ch.CloseCalls()).To(Equal(1))
		})
	})

	Describe("Dispose", func() {
		It("is idempotent and closes the channel once", func() {
			h, err := client.Initialize(targetA)
			Expect(err).NotTo(HaveOccurred())
			ch := openChannel()
			ch.Send("last")
			Eventually(payloadOf(client)).Should(Equal("last"))

			client.Dispose(h)
			client.Dispose(h)

			Expect(h.State()).To(Equal(stream.StateClosed))
			Expect(ch.CloseCalls()).To(Equal(1))
			Expect(payloadOf(client)()).To(Equal("last"))
			Eventually(h.Done()).Should(BeClosed())
			Expect(transport.OpenCount()).To(Equal(0))
		})

		It("does not close the channel again after a fault", func() {
			h, err := client.Initialize(targetA)
			Expect(err).NotTo(HaveOccurred())
			ch := openChannel()
			ch.Fail(errors.New("boom"))
			Eventually(stateOf(h)).Should(Equal(stream.StateClosed))

			client.Dispose(h)
			Expect(ch.CloseCalls()).To(Equal(1))
		})

		It("cancels a connection that is still connecting", func() {
			transport.Hold()

			h, err := client.Initialize(targetA)
			Expect(err).NotTo(HaveOccurred())
			client.Dispose(h)

			Eventually(h.Done()).Should(BeClosed())
			Expect(transport.Channels()).To(BeEmpty())
			Expect(client.Fault()).To(BeNil())
		})

		It("ignores nil and foreign handles", func() {
			other := stream.New(testutils.NewMockTransport())
			defer other.Close()
			foreign, err := other.Initialize(targetA)
			Expect(err).NotTo(HaveOccurred())

			h, err := client.Initialize(targetA)
			Expect(err).NotTo(HaveOccurred())

			client.Dispose(nil)
			client.Dispose(foreign)
			Expect(h.State()).NotTo(Equal(stream.StateClosed))
		})

		It("drops messages sent after disposal", func() {
			transport.IgnoreClose = true

			h, err := client.Initialize(targetA)
			Expect(err).NotTo(HaveOccurred())
			ch := openChannel()
			Eventually(stateOf(h)).Should(Equal(stream.StateOpen))

			client.Dispose(h)
			ch.Send("after dispose")

			Eventually(h.Done()).Should(BeClosed())
			_, ok := client.Payload()
			Expect(ok).To(BeFalse())
			Expect(rec.messages()).To(BeEmpty())
		})
	})

	Describe("Close", func() {
		It("releases the channel and waits for the goroutine", func() {
			h, err := client.Initialize(targetA)
			Expect(err).NotTo(HaveOccurred())
			ch := openChannel()

			Expect(client.Close()).To(Succeed())
			Expect(h.Done()).To(BeClosed())
			Expect(ch.CloseCalls()).To(Equal(1))
			Expect(transport.OpenCount()).To(Equal(0))
		})
	})

	Describe("Subscribe", func() {
		It("stops delivering after unsubscribe", func() {
			extra := &recorder{}
			unsubscribe := client.Subscribe(extra.observe)

			_, err := client.Initialize(targetA)
			Expect(err).NotTo(HaveOccurred())
			ch := openChannel()
			ch.Send("one")
			Eventually(extra.messages).Should(Equal([]string{"one"}))

			unsubscribe()
			ch.Send("two")
			Eventually(rec.messages).Should(Equal([]string{"one", "two"}))
			Expect(extra.messages()).To(Equal([]string{"one"}))
		})
	})
})

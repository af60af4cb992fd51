package stream

import (
	"context"
	"log/slog"
	"sync"

	"github.com/papercomputeco/timespace/pkg/logger"
	"github.com/papercomputeco/timespace/pkg/target"
)

// Client owns at most one live connection and exposes the latest payload
// and fault observed on it.
type Client struct {
	transport Transport
	logger    *slog.Logger

	// notifyMu serializes observer callbacks with each other and with
	// connect, Dispose and Close, so no update from a replaced connection
	// is delivered once the call that replaced it has returned.
	notifyMu sync.Mutex

	mu         sync.Mutex
	current    *Handle
	payload    string
	hasPayload bool
	fault      error
	closed     bool
	nextID     uint64
	nextSub    uint64
	subs       []subscription

	wg sync.WaitGroup
}

// Snapshot is a consistent read of the Client's observable state.
type Snapshot struct {
	// Handle is the current connection, or nil before Initialize.
	Handle *Handle

	// State of Handle; StateClosed when Handle is nil.
	State State

	Target     target.Target
	Payload    string
	HasPayload bool
	Fault      error
}

// New returns a Client that opens channels through transport.
func New(transport Transport, opts ...Option) *Client {
	c := &Client{
		transport: transport,
		logger:    logger.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Initialize validates raw and opens a connection to it. The returned
// Handle starts in StateConnecting and moves to StateOpen asynchronously.
// A malformed target fails with ErrMalformedTarget and no connection is
// created. If the Client already has a connection, Initialize replaces it
// exactly like Retarget.
func (c *Client) Initialize(raw string) (*Handle, error) {
	t, err := target.Parse(raw)
	if err != nil {
		return nil, err
	}
	return c.connect(t)
}

// Retarget closes the Client's current connection and opens a new one to
// raw. Once Retarget returns, no payload, fault or update from the
// replaced connection is observable, and the payload and fault are reset.
//
// h is the caller's current handle; the Client's current connection is
// replaced even when h is stale, so two live connections can never exist.
// Retargeting to the target of a live current connection returns that
// connection unchanged.
func (c *Client) Retarget(h *Handle, raw string) (*Handle, error) {
	t, err := target.Parse(raw)
	if err != nil {
		return nil, err
	}

	if h != nil && h.client != c {
		return nil, ErrForeignHandle
	}

	return c.connect(t)
}

// Dispose closes h unconditionally. It is idempotent, never closes a
// transport channel twice, and does not wait for the connection goroutine.
// The last payload stays readable until the next Retarget.
func (c *Client) Dispose(h *Handle) {
	if h == nil || h.client != c {
		return
	}

	c.notifyMu.Lock()
	c.mu.Lock()
	wasLive := h.state != StateClosed
	ch := c.closeLocked(h)
	c.mu.Unlock()
	c.notifyMu.Unlock()

	if ch != nil {
		_ = ch.Close()
	}

	if wasLive {
		c.logger.Debug("connection disposed", "handle", h.id, "target", h.target.String())
	}
}

// Close disposes the current connection, rejects further connects and
// waits for every connection goroutine to exit.
func (c *Client) Close() error {
	c.notifyMu.Lock()
	c.mu.Lock()
	c.closed = true
	var ch Channel
	if c.current != nil {
		ch = c.closeLocked(c.current)
	}
	c.mu.Unlock()
	c.notifyMu.Unlock()

	if ch != nil {
		_ = ch.Close()
	}

	c.wg.Wait()
	return nil
}

// Payload returns the latest message text on the current connection.
func (c *Client) Payload() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.payload, c.hasPayload
}

// Fault returns the latest transport fault on the current connection.
func (c *Client) Fault() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fault
}

// Current returns the current connection, or nil before Initialize.
func (c *Client) Current() *Handle {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// Snapshot returns payload, fault and connection state read atomically.
func (c *Client) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Snapshot{
		Handle:     c.current,
		State:      StateClosed,
		Payload:    c.payload,
		HasPayload: c.hasPayload,
		Fault:      c.fault,
	}
	if c.current != nil {
		s.State = c.current.state
		s.Target = c.current.target
	}
	return s
}

// Subscribe registers o and returns a function that removes it.
func (c *Client) Subscribe(o Observer) func() {
	c.mu.Lock()
	id := c.subscribeLocked(o)
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		for i, s := range c.subs {
			if s.id == id {
				c.subs = append(c.subs[:i:i], c.subs[i+1:]...)
				return
			}
		}
	}
}

func (c *Client) subscribeLocked(o Observer) uint64 {
	c.nextSub++
	c.subs = append(c.subs, subscription{id: c.nextSub, fn: o})
	return c.nextSub
}

// connect replaces the current connection with a new one to t.
func (c *Client) connect(t target.Target) (*Handle, error) {
	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClientClosed
	}

	prev := c.current
	if prev != nil && prev.state != StateClosed && prev.target == t {
		c.mu.Unlock()
		return prev, nil
	}

	var prevCh Channel
	var prevDone <-chan struct{}
	if prev != nil {
		prevCh = c.closeLocked(prev)
		prevDone = prev.done
	}

	c.nextID++
	ctx, cancel := context.WithCancel(context.Background())
	h := &Handle{
		id:     c.nextID,
		target: t,
		client: c,
		ctx:    ctx,
		cancel: cancel,
		prev:   prevDone,
		done:   make(chan struct{}),
		state:  StateConnecting,
	}

	c.current = h
	c.payload = ""
	c.hasPayload = false
	c.fault = nil
	c.wg.Add(1)
	c.mu.Unlock()

	if prevCh != nil {
		_ = prevCh.Close()
	}

	if prev != nil {
		c.logger.Debug("retargeting connection",
			"from_handle", prev.id,
			"to_handle", h.id,
			"target", t.String(),
		)
	} else {
		c.logger.Debug("initializing connection", "handle", h.id, "target", t.String())
	}

	go c.run(h)

	return h, nil
}

// closeLocked marks h closed and cancels its context. It returns the
// channel the caller must close after releasing c.mu, or nil when there is
// none or it was already handed out.
func (c *Client) closeLocked(h *Handle) Channel {
	h.state = StateClosed
	h.cancel()

	if h.channel == nil || h.channelClosed {
		return nil
	}
	h.channelClosed = true
	return h.channel
}

// run drives one connection from Connecting to Closed.
func (c *Client) run(h *Handle) {
	defer c.wg.Done()
	defer close(h.done)

	// The replaced connection releases its channel before this one asks
	// the transport for a new one.
	if h.prev != nil {
		<-h.prev
	}

	if h.ctx.Err() != nil {
		return
	}

	ch, err := c.transport.Open(h.ctx, h.target)
	if err != nil {
		c.fail(h, err, false)
		return
	}

	opened := c.commit(h, func() Update {
		h.state = StateOpen
		h.channel = ch
		return Update{Handle: h, Kind: UpdateOpened}
	})
	if !opened {
		// Superseded or disposed while connecting; the channel was never
		// registered so nobody else will close it.
		_ = ch.Close()
		return
	}
	c.logger.Debug("connection open", "handle", h.id, "target", h.target.String())

	for {
		ev, err := ch.Next()
		if err != nil {
			c.fail(h, err, true)
			return
		}

		if ev == nil {
			c.finish(h)
			return
		}

		if ev.Retry > 0 {
			// Reconnects are manual, the advertised delay is only recorded.
			c.logger.Debug("source advertised retry", "handle", h.id, "retry", ev.Retry)
		}

		if !ev.IsMessage() {
			c.logger.Debug("skipping non-message event", "handle", h.id, "type", ev.Type)
			continue
		}

		delivered := c.commit(h, func() Update {
			h.seq++
			c.payload = ev.Data
			c.hasPayload = true
			return Update{Handle: h, Kind: UpdateMessage, Payload: ev.Data, Seq: h.seq, EventID: ev.ID}
		})
		if !delivered {
			return
		}
	}
}

// fail records a transport fault on h if h is still the live current
// connection. Payload is left untouched.
func (c *Client) fail(h *Handle, err error, opened bool) {
	var ch Channel
	fault := &TransportFault{
		Target:   h.target,
		HandleID: h.id,
		Opened:   opened,
		Err:      err,
	}

	recorded := c.commit(h, func() Update {
		c.fault = fault
		ch = c.closeLocked(h)
		return Update{Handle: h, Kind: UpdateFaulted, Fault: fault}
	})

	if ch != nil {
		_ = ch.Close()
	}

	if recorded {
		c.logger.Debug("connection faulted", "handle", h.id, "target", h.target.String(), "error", err)
	}
}

// finish closes h after the source ended the stream without a fault.
func (c *Client) finish(h *Handle) {
	var ch Channel

	ended := c.commit(h, func() Update {
		ch = c.closeLocked(h)
		return Update{Handle: h, Kind: UpdateClosed}
	})

	if ch != nil {
		_ = ch.Close()
	}

	if ended {
		c.logger.Debug("stream ended by source", "handle", h.id, "target", h.target.String())
	}
}

// commit applies fn under c.mu if h is still the live current connection,
// then notifies observers with the update fn returned. It reports whether
// h was live.
func (c *Client) commit(h *Handle, fn func() Update) bool {
	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()

	c.mu.Lock()
	if c.current != h || h.state == StateClosed {
		c.mu.Unlock()
		return false
	}

	u := fn()
	subs := make([]Observer, len(c.subs))
	for i, s := range c.subs {
		subs[i] = s.fn
	}
	c.mu.Unlock()

	for _, o := range subs {
		o(u)
	}
	return true
}

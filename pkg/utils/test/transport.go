// Package testutils holds test doubles shared across timespace packages.
package testutils

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/papercomputeco/timespace/pkg/sse"
	"github.com/papercomputeco/timespace/pkg/stream"
	"github.com/papercomputeco/timespace/pkg/target"
)

// ErrChannelClosed is returned by MockChannel.Next after Close.
var ErrChannelClosed = errors.New("mock channel closed")

// MockTransport is a stream.Transport that hands out MockChannels and
// records how many are open at the same time.
type MockTransport struct {
	mu       sync.Mutex
	open     int
	maxOpen  int
	channels []*MockChannel
	openErr  error
	hold     chan struct{}

	// IgnoreClose makes channels keep returning queued events after Close,
	// which simulates a message racing the close of a replaced connection.
	IgnoreClose bool

	opens chan *MockChannel
}

// NewMockTransport returns an empty mock transport.
func NewMockTransport() *MockTransport {
	return &MockTransport{
		opens: make(chan *MockChannel, 256),
	}
}

var _ stream.Transport = (*MockTransport)(nil)

// Open returns a new MockChannel, the configured error, or blocks while
// the transport is held.
func (m *MockTransport) Open(ctx context.Context, t target.Target) (stream.Channel, error) {
	m.mu.Lock()
	hold := m.hold
	m.mu.Unlock()

	if hold != nil {
		select {
		case <-hold:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.openErr != nil {
		return nil, m.openErr
	}

	ch := &MockChannel{
		Target:      t,
		transport:   m,
		events:      make(chan mockItem, 256),
		closed:      make(chan struct{}),
		ignoreClose: m.IgnoreClose,
	}
	m.channels = append(m.channels, ch)
	m.open++
	if m.open > m.maxOpen {
		m.maxOpen = m.open
	}
	m.opens <- ch

	return ch, nil
}

// FailOpens makes every later Open return err. A nil err restores normal
// behavior.
func (m *MockTransport) FailOpens(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.openErr = err
}

// Hold makes Open block until Release or until its context is cancelled.
func (m *MockTransport) Hold() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.hold == nil {
		m.hold = make(chan struct{})
	}
}

// Release unblocks held and later Opens.
func (m *MockTransport) Release() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.hold != nil {
		close(m.hold)
		m.hold = nil
	}
}

// NextChannel waits up to timeout for the next opened channel.
func (m *MockTransport) NextChannel(timeout time.Duration) *MockChannel {
	select {
	case ch := <-m.opens:
		return ch
	case <-time.After(timeout):
		return nil
	}
}

// OpenCount returns the number of channels currently open.
func (m *MockTransport) OpenCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.open
}

// MaxConcurrentOpen returns the highest number of channels ever open at
// the same time.
func (m *MockTransport) MaxConcurrentOpen() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.maxOpen
}

// Channels returns every channel handed out so far.
func (m *MockTransport) Channels() []*MockChannel {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*MockChannel, len(m.channels))
	copy(out, m.channels)
	return out
}

type mockItem struct {
	ev  *sse.Event
	err error
}

// MockChannel is a stream.Channel driven by the test.
type MockChannel struct {
	Target target.Target

	transport   *MockTransport
	events      chan mockItem
	closed      chan struct{}
	closeCalls  atomic.Int32
	ignoreClose bool
}

// Send queues a message event with data.
func (c *MockChannel) Send(data string) {
	c.events <- mockItem{ev: &sse.Event{Type: sse.MessageType, Data: data}}
}

// SendEvent queues ev as is.
func (c *MockChannel) SendEvent(ev sse.Event) {
	c.events <- mockItem{ev: &ev}
}

// Fail makes the next Next return err.
func (c *MockChannel) Fail(err error) {
	c.events <- mockItem{err: err}
}

// End makes the next Next report that the source closed the stream.
func (c *MockChannel) End() {
	c.events <- mockItem{}
}

func (c *MockChannel) Next() (*sse.Event, error) {
	if c.ignoreClose {
		item := <-c.events
		return item.ev, item.err
	}

	select {
	case item := <-c.events:
		return item.ev, item.err
	case <-c.closed:
		return nil, ErrChannelClosed
	}
}

// Close releases the channel. Only the first call changes the transport's
// open count; every call is recorded.
func (c *MockChannel) Close() error {
	if c.closeCalls.Add(1) != 1 {
		return nil
	}

	close(c.closed)

	c.transport.mu.Lock()
	c.transport.open--
	c.transport.mu.Unlock()

	return nil
}

// CloseCalls returns how many times Close was called.
func (c *MockChannel) CloseCalls() int {
	return int(c.closeCalls.Load())
}

// IsClosed reports whether Close was called.
func (c *MockChannel) IsClosed() bool {
	return c.CloseCalls() > 0
}

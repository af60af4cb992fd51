package stream

import (
	"context"
	"errors"
	"sync"
)

// ErrMailboxClosed is returned by Mailbox.Wait once the mailbox is closed
// and drained.
var ErrMailboxClosed = errors.New("mailbox closed")

// Mailbox queues updates without bound so an Observer returns immediately
// and a single consumer goroutine can receive them in order.
type Mailbox struct {
	mu     sync.Mutex
	queue  []Update
	closed bool

	ready     chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// NewMailbox returns an empty open mailbox.
func NewMailbox() *Mailbox {
	return &Mailbox{
		ready: make(chan struct{}, 1),
		done:  make(chan struct{}),
	}
}

// Observe appends u. It is an Observer and never blocks. Updates observed
// after Close are dropped.
func (m *Mailbox) Observe(u Update) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.queue = append(m.queue, u)
	m.mu.Unlock()

	select {
	case m.ready <- struct{}{}:
	default:
	}
}

// Wait blocks until at least one update is queued and returns every queued
// update in arrival order. Queued updates are still returned after Close;
// once the queue is empty Wait returns ErrMailboxClosed.
func (m *Mailbox) Wait(ctx context.Context) ([]Update, error) {
	for {
		m.mu.Lock()
		if len(m.queue) > 0 {
			batch := m.queue
			m.queue = nil
			m.mu.Unlock()
			return batch, nil
		}
		closed := m.closed
		m.mu.Unlock()

		if closed {
			return nil, ErrMailboxClosed
		}

		select {
		case <-m.ready:
		case <-m.done:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Close stops accepting updates and wakes a blocked Wait.
func (m *Mailbox) Close() {
	m.closeOnce.Do(func() {
		m.mu.Lock()
		m.closed = true
		m.mu.Unlock()
		close(m.done)
	})
}

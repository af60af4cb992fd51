package stream

import (
	"context"

	"github.com/papercomputeco/timespace/pkg/target"
)

// Handle is a reference to one connection managed by a Client. Handles are
// never reused: every Initialize or Retarget that opens a connection
// returns a new Handle.
type Handle struct {
	id     uint64
	target target.Target
	client *Client

	ctx    context.Context
	cancel context.CancelFunc

	// prev is the done channel of the connection this one replaced.
	prev <-chan struct{}
	done chan struct{}

	// Guarded by client.mu.
	state         State
	channel       Channel
	channelClosed bool
	seq           uint64
}

// ID returns the connection identifier, unique within its Client.
func (h *Handle) ID() uint64 {
	return h.id
}

// Target returns the locator this connection is bound to.
func (h *Handle) Target() target.Target {
	return h.target
}

// State returns the current lifecycle state.
func (h *Handle) State() State {
	h.client.mu.Lock()
	defer h.client.mu.Unlock()
	return h.state
}

// Done is closed once the connection's goroutine has exited and its
// channel, if any, has been released.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

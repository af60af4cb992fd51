// Package stream manages the lifecycle of a single server-push connection:
// it opens a channel for a target, keeps the latest payload and fault,
// replaces the channel when the target changes, and guarantees that at
// most one channel is open per Client at any time.
//
// A Client is owned by one consumer. The consumer reads Payload and Fault
// (or a Snapshot), subscribes to Updates, and calls Retarget when the user
// issues a new query. Close must run on every exit path of the owning
// scope:
//
//	client := stream.New(httpsse.New())
//	defer client.Close()
//
//	h, err := client.Initialize("http://127.0.0.1:8000/stream?message=hi")
package stream

import (
	"context"

	"github.com/papercomputeco/timespace/pkg/sse"
	"github.com/papercomputeco/timespace/pkg/target"
)

// State is the lifecycle state of a connection.
type State int32

const (
	// StateConnecting means the transport has not confirmed the channel yet.
	StateConnecting State = iota

	// StateOpen means the channel is established and delivering events.
	StateOpen

	// StateClosed is terminal. A closed connection is never reopened.
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Transport opens server-push channels.
type Transport interface {
	// Open requests a channel for t and blocks until the source confirms
	// it or fails. Open must return promptly once ctx is cancelled.
	Open(ctx context.Context, t target.Target) (Channel, error)
}

// Channel is one open server-push channel.
type Channel interface {
	// Next blocks until the next event arrives. It returns nil, nil when
	// the source closed the stream.
	Next() (*sse.Event, error)

	// Close releases the channel and unblocks a pending Next. The Client
	// calls it exactly once per channel.
	Close() error
}

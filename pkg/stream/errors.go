package stream

import (
	"errors"
	"fmt"

	"github.com/papercomputeco/timespace/pkg/target"
)

// ErrMalformedTarget is returned synchronously by Initialize and Retarget
// when the target is empty or not a valid locator. No connection is
// attempted.
var ErrMalformedTarget = target.ErrMalformedTarget

// ErrClientClosed is returned when connecting through a closed Client.
var ErrClientClosed = errors.New("stream client closed")

// ErrForeignHandle is returned when a Handle is passed to a Client that did
// not create it.
var ErrForeignHandle = errors.New("handle belongs to a different client")

// TransportFault records a transport failure on a connection. It is only
// ever surfaced through Client.Fault and Update.Fault, never returned from
// a call.
type TransportFault struct {
	// Target is the locator of the failed connection.
	Target target.Target

	// HandleID identifies the failed connection.
	HandleID uint64

	// Opened is false when the failure happened before the source
	// confirmed the channel.
	Opened bool

	Err error
}

func (f *TransportFault) Error() string {
	phase := "connecting to"
	if f.Opened {
		phase = "streaming from"
	}
	return fmt.Sprintf("transport fault %s %s: %v", phase, f.Target, f.Err)
}

func (f *TransportFault) Unwrap() error {
	return f.Err
}

package eventstream

import "errors"

// ErrNilPayloadEvent indicates a nil payload event was provided to a publisher.
var ErrNilPayloadEvent = errors.New("nil payload event")

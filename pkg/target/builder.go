package target

import (
	"fmt"
	"net/url"
)

// Builder turns user messages into Targets against a fixed base URL.
type Builder struct {
	base         *url.URL
	messageParam string
	threadParam  string
	threadID     string
}

// BuilderOption configures a Builder.
type BuilderOption func(*Builder)

// WithMessageParam overrides the query parameter carrying the message.
func WithMessageParam(name string) BuilderOption {
	return func(b *Builder) {
		if name != "" {
			b.messageParam = name
		}
	}
}

// WithThread adds a thread identifier to every built target. The parameter
// name defaults to "thread_id".
func WithThread(param, id string) BuilderOption {
	return func(b *Builder) {
		if param != "" {
			b.threadParam = param
		}
		b.threadID = id
	}
}

// NewBuilder validates base and returns a Builder for it.
func NewBuilder(base string, opts ...BuilderOption) (*Builder, error) {
	t, err := Parse(base)
	if err != nil {
		return nil, err
	}

	u, err := url.Parse(t.String())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedTarget, err)
	}

	b := &Builder{
		base:         u,
		messageParam: "message",
		threadParam:  "thread_id",
	}
	for _, opt := range opts {
		opt(b)
	}

	return b, nil
}

// Base returns the base URL as a Target, with the thread parameter when set.
func (b *Builder) Base() Target {
	return b.build(nil)
}

// ThreadID returns the thread identifier, or "".
func (b *Builder) ThreadID() string {
	return b.threadID
}

// WithMessage returns a Target for base with the message query parameter
// set to message. Existing query parameters on base are kept.
func (b *Builder) WithMessage(message string) Target {
	return b.build(&message)
}

func (b *Builder) build(message *string) Target {
	u := *b.base
	q := u.Query()

	if b.threadID != "" {
		q.Set(b.threadParam, b.threadID)
	}
	if message != nil {
		q.Set(b.messageParam, *message)
	}

	u.RawQuery = q.Encode()
	return Target{raw: u.String()}
}

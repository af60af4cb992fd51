package stream

import (
	"log/slog"
)

// Option configures a Client created with New.
type Option func(*Client)

// WithLogger sets the logger for lifecycle debug output. The default
// discards everything.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithObserver subscribes o before any connection is opened.
func WithObserver(o Observer) Option {
	return func(c *Client) {
		c.subscribeLocked(o)
	}
}

// Package session assembles everything one conversation needs: a target
// builder bound to a thread, a stream client over HTTP SSE, an update
// mailbox for the UI, and optional payload mirroring.
package session

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/papercomputeco/timespace/pkg/config"
	"github.com/papercomputeco/timespace/pkg/logger"
	"github.com/papercomputeco/timespace/pkg/mirror"
	"github.com/papercomputeco/timespace/pkg/stream"
	"github.com/papercomputeco/timespace/pkg/stream/httpsse"
	"github.com/papercomputeco/timespace/pkg/target"
)

// ErrNothingToReconnect is returned by Reconnect before the first Ask.
var ErrNothingToReconnect = errors.New("no query to reconnect")

// Options configures New.
type Options struct {
	Config *config.Config

	// ThreadID identifies the conversation. Empty generates a new one.
	ThreadID string

	Logger *slog.Logger

	// Tee receives the raw bytes of every stream. Nil disables it.
	Tee io.Writer

	// Transport overrides the HTTP SSE transport.
	Transport stream.Transport
}

// Session is one conversation against the configured stream target.
type Session struct {
	client  *stream.Client
	builder *target.Builder
	mailbox *stream.Mailbox
	mirror  *mirror.Mirror
	logger  *slog.Logger
}

// New validates the configured target and wires the client. The caller
// must Close the session on every exit path.
func New(opts Options) (*Session, error) {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.NewDefaultConfig()
	}

	l := opts.Logger
	if l == nil {
		l = logger.Nop()
	}

	threadID := opts.ThreadID
	if threadID == "" {
		threadID = target.NewThreadID()
	}

	builder, err := target.NewBuilder(cfg.Stream.Target,
		target.WithMessageParam(cfg.Stream.MessageParam),
		target.WithThread(cfg.Stream.ThreadParam, threadID),
	)
	if err != nil {
		return nil, fmt.Errorf("stream target: %w", err)
	}

	m, err := mirror.New(cfg.EventStream, threadID, l)
	if err != nil {
		return nil, err
	}

	transport := opts.Transport
	if transport == nil {
		transport = httpsse.New(httpsse.WithTee(opts.Tee))
	}

	mailbox := stream.NewMailbox()
	client := stream.New(transport,
		stream.WithLogger(l.With("component", "stream")),
		stream.WithObserver(mailbox.Observe),
		stream.WithObserver(m.Observe),
	)

	l.Debug("session ready",
		"target", builder.Base().String(),
		"thread_id", threadID,
		"mirror", m.Enabled(),
	)

	return &Session{
		client:  client,
		builder: builder,
		mailbox: mailbox,
		mirror:  m,
		logger:  l,
	}, nil
}

// Client returns the underlying stream client.
func (s *Session) Client() *stream.Client {
	return s.client
}

// Mailbox returns the queue of stream updates for the UI goroutine.
func (s *Session) Mailbox() *stream.Mailbox {
	return s.mailbox
}

// ThreadID returns the conversation thread identifier.
func (s *Session) ThreadID() string {
	return s.builder.ThreadID()
}

// Base returns the target without a message.
func (s *Session) Base() target.Target {
	return s.builder.Base()
}

// Ask replaces the current connection with one streaming the reply to
// message. It must not be called from a stream.Observer.
func (s *Session) Ask(message string) (*stream.Handle, error) {
	return s.client.Retarget(s.client.Current(), s.builder.WithMessage(message).String())
}

// Reconnect opens a fresh connection to the current target, replacing the
// current one even while it is live. Faults never reconnect on their own.
func (s *Session) Reconnect() (*stream.Handle, error) {
	h := s.client.Current()
	if h == nil {
		return nil, ErrNothingToReconnect
	}

	s.client.Dispose(h)
	return s.client.Retarget(h, h.Target().String())
}

// Stop disposes the current connection and keeps its last payload.
func (s *Session) Stop() {
	s.client.Dispose(s.client.Current())
}

// Close releases the connection, drains mirroring and closes the mailbox.
func (s *Session) Close() error {
	err := s.client.Close()
	s.mailbox.Close()
	return errors.Join(err, s.mirror.Close())
}

// IsCurrent reports whether u belongs to the current connection. Updates
// queued in the mailbox before a retarget are stale once it returns.
func (s *Session) IsCurrent(u stream.Update) bool {
	return u.Handle != nil && u.Handle == s.client.Current()
}

// Package httpsse implements stream.Transport over HTTP text/event-stream
// responses.
package httpsse

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"sync"

	"github.com/papercomputeco/timespace/pkg/sse"
	"github.com/papercomputeco/timespace/pkg/stream"
	"github.com/papercomputeco/timespace/pkg/target"
)

// maxErrorBody caps how much of a failed response body is quoted in errors.
const maxErrorBody = 512

// ErrUnexpectedStatus is wrapped by Open when the source answers with a
// non-200 status.
var ErrUnexpectedStatus = errors.New("unexpected status")

// ErrNotEventStream is wrapped by Open when the response is not
// text/event-stream.
var ErrNotEventStream = errors.New("response is not an event stream")

// Transport opens SSE channels with an *http.Client.
type Transport struct {
	client  *http.Client
	headers http.Header
	tee     io.Writer
}

// Option configures a Transport.
type Option func(*Transport)

// WithHTTPClient overrides the HTTP client. The client must not set a
// Timeout: streams are long-lived and are cancelled through the context.
func WithHTTPClient(c *http.Client) Option {
	return func(t *Transport) {
		if c != nil {
			t.client = c
		}
	}
}

// WithHeader adds a header to every request.
func WithHeader(key, value string) Option {
	return func(t *Transport) {
		t.headers.Add(key, value)
	}
}

// WithTee copies the raw bytes of every opened stream to w. Writes from
// successive channels never overlap because the stream client opens at
// most one channel at a time.
func WithTee(w io.Writer) Option {
	return func(t *Transport) {
		t.tee = w
	}
}

// New returns an HTTP SSE transport.
func New(opts ...Option) *Transport {
	t := &Transport{
		client:  &http.Client{},
		headers: http.Header{},
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

var _ stream.Transport = (*Transport)(nil)

// Open issues the GET and returns once the response headers confirm an
// event stream.
func (t *Transport) Open(ctx context.Context, tgt target.Target) (stream.Channel, error) {
	// The request context outlives Open and is cancelled by Close so a
	// blocked read returns promptly.
	ctx, cancel := context.WithCancel(ctx)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, tgt.String(), nil)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("creating request: %w", err)
	}

	for k, vs := range t.headers {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := t.client.Do(req)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("sending request: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		defer cancel()
		defer resp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, fmt.Errorf("%w %d: %s", ErrUnexpectedStatus, resp.StatusCode, string(body))
	}

	mediaType, _, err := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if err != nil || mediaType != "text/event-stream" {
		resp.Body.Close()
		cancel()
		return nil, fmt.Errorf("%w: content type %q", ErrNotEventStream, resp.Header.Get("Content-Type"))
	}

	return &channel{
		cancel: cancel,
		body:   resp.Body,
		reader: sse.NewTeeReader(resp.Body, t.tee),
	}, nil
}

// channel is one open HTTP event stream.
type channel struct {
	cancel context.CancelFunc
	body   io.ReadCloser
	reader *sse.Reader

	closeOnce sync.Once
	closeErr  error
}

func (c *channel) Next() (*sse.Event, error) {
	return c.reader.Next()
}

func (c *channel) Close() error {
	c.closeOnce.Do(func() {
		c.cancel()
		c.closeErr = c.body.Close()
	})
	return c.closeErr
}

// Package target validates and builds the locators the stream client
// connects to.
package target

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/google/uuid"
)

// ErrMalformedTarget is returned when a target is empty or is not an
// absolute http(s) URL.
var ErrMalformedTarget = errors.New("malformed target")

// Target is a validated stream locator. The zero value is not valid.
type Target struct {
	raw string
}

// Parse validates raw and returns it as a Target. It never touches the
// network.
func Parse(raw string) (Target, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return Target{}, fmt.Errorf("%w: empty", ErrMalformedTarget)
	}

	u, err := url.Parse(trimmed)
	if err != nil {
		return Target{}, fmt.Errorf("%w: %w", ErrMalformedTarget, err)
	}

	switch u.Scheme {
	case "http", "https":
	default:
		return Target{}, fmt.Errorf("%w: unsupported scheme %q in %q", ErrMalformedTarget, u.Scheme, trimmed)
	}

	if u.Host == "" {
		return Target{}, fmt.Errorf("%w: missing host in %q", ErrMalformedTarget, trimmed)
	}

	return Target{raw: trimmed}, nil
}

// MustParse is Parse for constants and tests.
func MustParse(raw string) Target {
	t, err := Parse(raw)
	if err != nil {
		panic(err)
	}
	return t
}

// String returns the locator.
func (t Target) String() string {
	return t.raw
}

// IsZero reports whether t was never parsed.
func (t Target) IsZero() bool {
	return t.raw == ""
}

// Query returns the value of the named query parameter, or "".
func (t Target) Query(name string) string {
	u, err := url.Parse(t.raw)
	if err != nil {
		return ""
	}
	return u.Query().Get(name)
}

// NewThreadID returns a fresh conversation thread identifier.
func NewThreadID() string {
	return uuid.NewString()
}

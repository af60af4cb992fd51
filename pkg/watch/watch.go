// Package watch follows a small text file and reports its content whenever
// it changes. The tail command uses it to re-issue a query each time the
// query file is saved.
package watch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"

	"github.com/papercomputeco/timespace/pkg/logger"
)

// Option configures Follow.
type Option func(*follower)

// WithLogger sets the logger for watch debug output.
func WithLogger(l *slog.Logger) Option {
	return func(f *follower) {
		if l != nil {
			f.logger = l
		}
	}
}

type follower struct {
	path     string
	onChange func(string)
	logger   *slog.Logger
	last     string
}

// Follow calls onChange with the trimmed content of path once at start and
// again after every write that changes it. Empty content and unchanged
// content are skipped. The file may not exist yet; its directory must.
// Follow blocks until ctx is done and then returns ctx.Err().
func Follow(ctx context.Context, path string, onChange func(string), opts ...Option) error {
	f := &follower{
		path:     filepath.Clean(path),
		onChange: onChange,
		logger:   logger.Nop(),
	}
	for _, opt := range opts {
		opt(f)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating file watcher: %w", err)
	}
	defer watcher.Close()

	// Editors often replace the file on save, so watch the directory.
	if err := watcher.Add(filepath.Dir(f.path)); err != nil {
		return fmt.Errorf("watching %s: %w", filepath.Dir(f.path), err)
	}

	if err := f.read(); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != f.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if err := f.read(); err != nil {
				return err
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			f.logger.Warn("file watcher error", "path", f.path, "error", err)
		}
	}
}

func (f *follower) read() error {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("reading %s: %w", f.path, err)
	}

	content := strings.TrimSpace(string(data))
	if content == "" || content == f.last {
		return nil
	}

	f.last = content
	f.logger.Debug("watched file changed", "path", f.path)
	f.onChange(content)
	return nil
}

// Package file provides a formz.WatchableStore that keeps each key in its
// own file under a directory, watched using fsnotify.
package file

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/zoobzio/formz"
)

// Store persists form values as files named after their keys. Writes go
// through a temporary file and a rename, so watchers never read a partial
// value.
type Store struct {
	dir string
	ext string
}

// Option configures a Store.
type Option func(*Store)

// WithExtension sets the file extension, including the dot. Defaults to
// ".json".
func WithExtension(ext string) Option {
	return func(s *Store) {
		s.ext = ext
	}
}

// New creates a Store rooted at dir. The directory is created on first
// write.
func New(dir string, opts ...Option) *Store {
	s := &Store{dir: dir, ext: ".json"}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Path returns the file that holds key.
func (s *Store) Path(key string) string {
	return filepath.Join(s.dir, url.PathEscape(key)+s.ext)
}

// Get returns the contents of key's file, or formz.ErrNotFound.
func (s *Store) Get(_ context.Context, key string) ([]byte, error) {
	data, err := os.ReadFile(s.Path(key))
	if errors.Is(err, os.ErrNotExist) {
		return nil, formz.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	return data, nil
}

// Set replaces key's file with data.
func (s *Store) Set(_ context.Context, key string, data []byte) error {
	if err := os.MkdirAll(s.dir, 0o750); err != nil {
		return fmt.Errorf("create directory %s: %w", s.dir, err)
	}
	tmp, err := os.CreateTemp(s.dir, ".formz-*")
	if err != nil {
		return fmt.Errorf("write %s: %w", key, err)
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck // Gone after a successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write %s: %w", key, err)
	}
	if err := os.Rename(tmp.Name(), s.Path(key)); err != nil {
		return fmt.Errorf("write %s: %w", key, err)
	}
	return nil
}

// Delete removes key's file. Deleting a missing key is not an error.
func (s *Store) Delete(_ context.Context, key string) error {
	if err := os.Remove(s.Path(key)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

// Watch watches the store directory and returns a channel that emits the
// contents of key's file whenever it is written. The current contents are
// emitted immediately when the file exists. The directory must exist.
func (s *Store) Watch(ctx context.Context, key string) (<-chan []byte, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	if err := watcher.Add(s.dir); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to watch directory %s: %w", s.dir, err)
	}

	path := s.Path(key)
	out := make(chan []byte)

	go func() {
		defer close(out)
		defer watcher.Close()

		if data, err := os.ReadFile(path); err == nil {
			select {
			case out <- data:
			case <-ctx.Done():
				return
			}
		}

		for {
			select {
			case <-ctx.Done():
				return

			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != path {
					continue
				}

				// Only emit on write or create events
				if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}

				data, err := os.ReadFile(path)
				if err != nil {
					continue
				}

				select {
				case out <- data:
				case <-ctx.Done():
					return
				}

			case _, ok := <-watcher.Errors:
				if !ok {
					return
				}
				// Continue watching despite errors
			}
		}
	}()

	return out, nil
}

var _ formz.WatchableStore = (*Store)(nil)

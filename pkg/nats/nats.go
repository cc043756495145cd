// Package nats provides a formz.WatchableStore backed by a NATS JetStream
// key-value bucket, watched using the native Watch API.
package nats

import (
	"context"
	"errors"
	"fmt"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/zoobzio/formz"
)

// Store persists form values in a KV bucket. NATS keys are limited to
// letters, digits, and "-/_=.", so choose a service key prefix accordingly.
type Store struct {
	kv jetstream.KeyValue
}

// New creates a Store over kv.
func New(kv jetstream.KeyValue) *Store {
	return &Store{kv: kv}
}

// Get returns the value at key, or formz.ErrNotFound.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	entry, err := s.kv.Get(ctx, key)
	if errors.Is(err, jetstream.ErrKeyNotFound) {
		return nil, formz.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("nats get %s: %w", key, err)
	}
	return entry.Value(), nil
}

// Set writes data at key.
func (s *Store) Set(ctx context.Context, key string, data []byte) error {
	if _, err := s.kv.Put(ctx, key, data); err != nil {
		return fmt.Errorf("nats put %s: %w", key, err)
	}
	return nil
}

// Delete removes key.
func (s *Store) Delete(ctx context.Context, key string) error {
	if err := s.kv.Delete(ctx, key); err != nil && !errors.Is(err, jetstream.ErrKeyNotFound) {
		return fmt.Errorf("nats delete %s: %w", key, err)
	}
	return nil
}

// Watch returns a channel that emits the key's value whenever it is
// written. The current value is emitted immediately when present; deletes
// are skipped.
func (s *Store) Watch(ctx context.Context, key string) (<-chan []byte, error) {
	watcher, err := s.kv.Watch(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("failed to watch key: %w", err)
	}

	out := make(chan []byte)

	go func() {
		defer close(out)
		defer watcher.Stop() //nolint:errcheck

		for {
			select {
			case <-ctx.Done():
				return
			case entry, ok := <-watcher.Updates():
				if !ok {
					return
				}
				// nil entry marks the end of the initial values
				if entry == nil {
					continue
				}
				if entry.Operation() == jetstream.KeyValueDelete || entry.Operation() == jetstream.KeyValuePurge {
					continue
				}

				select {
				case out <- entry.Value():
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}

var _ formz.WatchableStore = (*Store)(nil)

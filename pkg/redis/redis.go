// Package redis provides a formz.WatchableStore backed by Redis keys,
// watched through keyspace notifications.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/zoobzio/formz"
)

// Store persists form values as Redis strings. Watching requires Redis to
// have keyspace notifications enabled:
//
//	CONFIG SET notify-keyspace-events KEA
//
// Or in redis.conf:
//
//	notify-keyspace-events KEA
type Store struct {
	client *redis.Client
	db     int
	ttl    time.Duration
}

// Option configures a Store.
type Option func(*Store)

// WithTTL expires stored values after d. Zero keeps them forever.
func WithTTL(d time.Duration) Option {
	return func(s *Store) {
		s.ttl = d
	}
}

// WithDB sets the database number used for keyspace channels. It must
// match the client's database. Default: 0.
func WithDB(db int) Option {
	return func(s *Store) {
		s.db = db
	}
}

// New creates a Store using client.
func New(client *redis.Client, opts ...Option) *Store {
	s := &Store{client: client}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get returns the value at key, or formz.ErrNotFound.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, formz.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %s: %w", key, err)
	}
	return val, nil
}

// Set writes data at key.
func (s *Store) Set(ctx context.Context, key string, data []byte) error {
	if err := s.client.Set(ctx, key, data, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

// Delete removes key. Deleting a missing key is not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis del %s: %w", key, err)
	}
	return nil
}

// Watch returns a channel that emits the key's value whenever it is
// written. The current value is emitted immediately when present. The
// channel closes when ctx is canceled.
func (s *Store) Watch(ctx context.Context, key string) (<-chan []byte, error) {
	channel := fmt.Sprintf("__keyspace@%d__:%s", s.db, key)
	pubsub := s.client.Subscribe(ctx, channel)

	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to keyspace notifications: %w", err)
	}

	out := make(chan []byte)

	go func() {
		defer close(out)
		defer pubsub.Close()

		val, err := s.client.Get(ctx, key).Bytes()
		if err != nil && !errors.Is(err, redis.Nil) {
			return
		}
		if err == nil {
			select {
			case out <- val:
			case <-ctx.Done():
				return
			}
		}

		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}

				switch msg.Payload {
				case "set", "setex", "psetex", "setnx", "mset":
					val, err := s.client.Get(ctx, key).Bytes()
					if err != nil {
						continue
					}
					select {
					case out <- val:
					case <-ctx.Done():
						return
					}
				}
			}
		}
	}()

	return out, nil
}

var _ formz.WatchableStore = (*Store)(nil)

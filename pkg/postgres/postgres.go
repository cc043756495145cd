// Package postgres provides a formz.WatchableStore backed by a PostgreSQL
// table, watched using LISTEN/NOTIFY.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/zoobzio/formz"
)

// Store persists form values as rows of a key/value table. Watching
// requires a trigger that notifies the store's channel with the row key;
// EnsureSchema creates the table and trigger:
//
//	CREATE TABLE form_values (key TEXT PRIMARY KEY, value BYTEA NOT NULL);
//
//	CREATE OR REPLACE FUNCTION form_values_notify() RETURNS trigger AS $$
//	BEGIN
//	    PERFORM pg_notify(TG_ARGV[0], NEW.key);
//	    RETURN NEW;
//	END;
//	$$ LANGUAGE plpgsql;
//
//	CREATE TRIGGER form_values_notify
//	    AFTER INSERT OR UPDATE ON form_values
//	    FOR EACH ROW EXECUTE FUNCTION form_values_notify('form_values_changed');
type Store struct {
	pool    *pgxpool.Pool
	table   string
	channel string
}

// Option configures a Store.
type Option func(*Store)

// WithTable sets the table name. Defaults to "form_values".
func WithTable(table string) Option {
	return func(s *Store) {
		s.table = table
	}
}

// WithChannel sets the notification channel. Defaults to
// "form_values_changed".
func WithChannel(channel string) Option {
	return func(s *Store) {
		s.channel = channel
	}
}

// New creates a Store using pool.
func New(pool *pgxpool.Pool, opts ...Option) *Store {
	s := &Store{
		pool:    pool,
		table:   "form_values",
		channel: "form_values_changed",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// EnsureSchema creates the table and notification trigger if missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	table := pgx.Identifier{s.table}.Sanitize()
	fn := pgx.Identifier{s.table + "_notify"}.Sanitize()
	channel := "'" + strings.ReplaceAll(s.channel, "'", "''") + "'"

	_, err := s.pool.Exec(ctx, fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %[1]s (
			key TEXT PRIMARY KEY,
			value BYTEA NOT NULL
		);

		CREATE OR REPLACE FUNCTION %[2]s() RETURNS trigger AS $$
		BEGIN
			PERFORM pg_notify(TG_ARGV[0], NEW.key);
			RETURN NEW;
		END;
		$$ LANGUAGE plpgsql;

		DROP TRIGGER IF EXISTS %[2]s ON %[1]s;
		CREATE TRIGGER %[2]s
			AFTER INSERT OR UPDATE ON %[1]s
			FOR EACH ROW EXECUTE FUNCTION %[2]s(%[3]s);
	`, table, fn, channel))
	if err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Get returns the value at key, or formz.ErrNotFound.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	query := fmt.Sprintf("SELECT value FROM %s WHERE key = $1", pgx.Identifier{s.table}.Sanitize())
	err := s.pool.QueryRow(ctx, query, key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, formz.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres get %s: %w", key, err)
	}
	return value, nil
}

// Set upserts data at key.
func (s *Store) Set(ctx context.Context, key string, data []byte) error {
	query := fmt.Sprintf(
		"INSERT INTO %s (key, value) VALUES ($1, $2) ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value",
		pgx.Identifier{s.table}.Sanitize(),
	)
	if _, err := s.pool.Exec(ctx, query, key, data); err != nil {
		return fmt.Errorf("postgres set %s: %w", key, err)
	}
	return nil
}

// Delete removes key. Deleting a missing key is not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	query := fmt.Sprintf("DELETE FROM %s WHERE key = $1", pgx.Identifier{s.table}.Sanitize())
	if _, err := s.pool.Exec(ctx, query, key); err != nil {
		return fmt.Errorf("postgres delete %s: %w", key, err)
	}
	return nil
}

// Watch listens on the store's channel and returns a channel that emits
// the row's value whenever it is written. The current value is emitted
// immediately when present.
func (s *Store) Watch(ctx context.Context, key string) (<-chan []byte, error) {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire connection: %w", err)
	}

	_, err = conn.Exec(ctx, "LISTEN "+pgx.Identifier{s.channel}.Sanitize())
	if err != nil {
		conn.Release()
		return nil, fmt.Errorf("failed to listen on channel %s: %w", s.channel, err)
	}

	out := make(chan []byte)

	go func() {
		defer close(out)
		defer conn.Release()

		if value, err := s.Get(ctx, key); err == nil {
			select {
			case out <- value:
			case <-ctx.Done():
				return
			}
		}

		for {
			notification, err := conn.Conn().WaitForNotification(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				continue
			}
			if notification.Payload != key {
				continue
			}

			value, err := s.Get(ctx, key)
			if err != nil {
				continue
			}

			select {
			case out <- value:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, nil
}

var _ formz.WatchableStore = (*Store)(nil)

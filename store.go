package formz

import (
	"context"
	"sync"
)

// Store persists encoded form values by key. Get returns ErrNotFound for a
// missing key and Delete of a missing key is not an error.
//
// Adapters for Redis, PostgreSQL, NATS KV, and the filesystem live under
// pkg/.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, data []byte) error
	Delete(ctx context.Context, key string) error
}

// WatchableStore is a Store that can push changes made by other writers.
type WatchableStore interface {
	Store

	// Watch emits the key's current value immediately, when present, and
	// again whenever it is written. The channel is closed when ctx is
	// canceled or the watch fails.
	Watch(ctx context.Context, key string) (<-chan []byte, error)
}

// MemoryStore is an in-process WatchableStore. It is the Service default.
type MemoryStore struct {
	mu       sync.Mutex
	data     map[string][]byte
	watchers map[string][]*memoryWatch
}

type memoryWatch struct {
	ch chan []byte
}

// offer delivers data, replacing an undelivered older value.
func (w *memoryWatch) offer(data []byte) {
	for {
		select {
		case w.ch <- data:
			return
		default:
		}
		select {
		case <-w.ch:
		default:
		}
	}
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		data:     make(map[string][]byte),
		watchers: make(map[string][]*memoryWatch),
	}
}

func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.data[key]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), data...), nil
}

func (s *MemoryStore) Set(_ context.Context, key string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := append([]byte(nil), data...)
	s.data[key] = stored
	for _, w := range s.watchers[key] {
		w.offer(append([]byte(nil), stored...))
	}
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
	return nil
}

// Keys lists the stored keys.
func (s *MemoryStore) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]string, 0, len(s.data))
	for k := range s.data {
		keys = append(keys, k)
	}
	return keys
}

// Watch implements WatchableStore. Slow readers only see the latest value.
func (s *MemoryStore) Watch(ctx context.Context, key string) (<-chan []byte, error) {
	w := &memoryWatch{ch: make(chan []byte, 1)}

	s.mu.Lock()
	if data, ok := s.data[key]; ok {
		w.ch <- append([]byte(nil), data...)
	}
	s.watchers[key] = append(s.watchers[key], w)
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		defer s.mu.Unlock()
		list := s.watchers[key]
		for i, candidate := range list {
			if candidate == w {
				s.watchers[key] = append(list[:i:i], list[i+1:]...)
				break
			}
		}
		if len(s.watchers[key]) == 0 {
			delete(s.watchers, key)
		}
		close(w.ch)
	}()

	return w.ch, nil
}

var _ WatchableStore = (*MemoryStore)(nil)

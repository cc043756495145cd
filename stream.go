package formz

import "sync"

// Subscription is a handle returned by every registration in this package.
// Unsubscribe is idempotent and safe to call from within the callback.
type Subscription struct {
	once   sync.Once
	cancel func()
}

func newSubscription(cancel func()) *Subscription {
	return &Subscription{cancel: cancel}
}

// Unsubscribe detaches the registration. A nil subscription is a no-op.
func (s *Subscription) Unsubscribe() {
	if s == nil || s.cancel == nil {
		return
	}
	s.once.Do(s.cancel)
}

// Stream is an ordered observer list. Emit delivers synchronously to every
// subscriber registered at the time of the call, in registration order.
//
// The zero value is ready to use.
type Stream[T any] struct {
	mu   sync.Mutex
	next uint64
	subs []streamSub[T]
}

type streamSub[T any] struct {
	id uint64
	fn func(T)
}

// Subscribe registers fn and returns a handle that removes it.
func (s *Stream[T]) Subscribe(fn func(T)) *Subscription {
	s.mu.Lock()
	s.next++
	id := s.next
	s.subs = append(s.subs, streamSub[T]{id: id, fn: fn})
	s.mu.Unlock()

	return newSubscription(func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for i, sub := range s.subs {
			if sub.id == id {
				s.subs = append(s.subs[:i:i], s.subs[i+1:]...)
				return
			}
		}
	})
}

// Emit delivers v to all current subscribers.
func (s *Stream[T]) Emit(v T) {
	s.mu.Lock()
	if len(s.subs) == 0 {
		s.mu.Unlock()
		return
	}
	subs := make([]streamSub[T], len(s.subs))
	copy(subs, s.subs)
	s.mu.Unlock()

	for _, sub := range subs {
		sub.fn(v)
	}
}

// Observed reports whether the stream has at least one subscriber.
func (s *Stream[T]) Observed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs) > 0
}

// Len returns the number of subscribers.
func (s *Stream[T]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

// Clear removes every subscriber.
func (s *Stream[T]) Clear() {
	s.mu.Lock()
	s.subs = nil
	s.mu.Unlock()
}

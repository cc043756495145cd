package formz

import (
	"context"
	"sync"
)

// Scheduler runs deferred work for a form tree. Controls are not safe for
// concurrent use, so every piece of deferred work touching a tree (async
// validator results, coalesced engine notifications, store watch updates)
// is funneled through the tree's scheduler.
type Scheduler interface {
	// Post enqueues fn. Implementations must run posted functions one at a
	// time, in the order they were posted.
	Post(fn func())
}

// Inline runs posted work immediately on the caller's goroutine. Work
// posted while another task is running is queued and executed after it,
// which gives microtask ordering without a separate goroutine.
type Inline struct {
	mu      sync.Mutex
	running bool
	queue   []func()
}

// NewInline creates an inline scheduler.
func NewInline() *Inline {
	return &Inline{}
}

// Post runs fn now, or after the currently running task.
func (s *Inline) Post(fn func()) {
	s.mu.Lock()
	if s.running {
		s.queue = append(s.queue, fn)
		s.mu.Unlock()
		return
	}
	s.running = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	for fn != nil {
		fn()
		s.mu.Lock()
		if len(s.queue) == 0 {
			fn = nil
		} else {
			fn = s.queue[0]
			s.queue = s.queue[1:]
		}
		s.mu.Unlock()
	}
}

// Queue holds posted work until Drain is called. Useful in tests that need
// to observe state between a change and its deferred consequences.
type Queue struct {
	mu    sync.Mutex
	queue []func()
}

// NewQueue creates a manual scheduler.
func NewQueue() *Queue {
	return &Queue{}
}

// Post enqueues fn.
func (q *Queue) Post(fn func()) {
	q.mu.Lock()
	q.queue = append(q.queue, fn)
	q.mu.Unlock()
}

// Pending returns the number of queued tasks.
func (q *Queue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.queue)
}

// Drain runs queued work, including work posted while draining, until the
// queue is empty. It returns the number of tasks run.
func (q *Queue) Drain() int {
	n := 0
	for {
		q.mu.Lock()
		if len(q.queue) == 0 {
			q.mu.Unlock()
			return n
		}
		fn := q.queue[0]
		q.queue = q.queue[1:]
		q.mu.Unlock()

		fn()
		n++
	}
}

// Loop confines a form tree to a single goroutine. Start it with Run and
// post all work touching the tree through it.
type Loop struct {
	mu    sync.Mutex
	queue []func()
	wake  chan struct{}
}

// NewLoop creates a loop scheduler. Call Run to start processing.
func NewLoop() *Loop {
	return &Loop{wake: make(chan struct{}, 1)}
}

// Post enqueues fn. It never blocks.
func (l *Loop) Post(fn func()) {
	l.mu.Lock()
	l.queue = append(l.queue, fn)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// Do posts fn and waits for it to finish. It must not be called from the
// loop goroutine.
func (l *Loop) Do(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	l.Post(func() {
		defer close(done)
		fn()
	})
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run processes posted work until ctx is canceled.
func (l *Loop) Run(ctx context.Context) error {
	for {
		for {
			l.mu.Lock()
			if len(l.queue) == 0 {
				l.mu.Unlock()
				break
			}
			fn := l.queue[0]
			l.queue = l.queue[1:]
			l.mu.Unlock()
			fn()
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.wake:
		}
	}
}

// Ensure schedulers implement Scheduler.
var (
	_ Scheduler = (*Inline)(nil)
	_ Scheduler = (*Queue)(nil)
	_ Scheduler = (*Loop)(nil)
)

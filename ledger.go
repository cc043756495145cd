package formz

import "sync"

// UnknownContext is the reserved context name that stands for state a
// control already had before any context-aware call touched it.
const UnknownContext = "__unknown__"

// ledger maps control IDs to an ordered context → value table. Entries are
// created lazily and keep first-insertion order, so a context re-asserted
// later keeps its original position.
type ledger[V any] struct {
	mu      sync.Mutex
	entries map[uint64]*ledgerEntry[V]
}

type ledgerEntry[V any] struct {
	order  []string
	values map[string]V
}

func newLedger[V any]() *ledger[V] {
	return &ledger[V]{entries: make(map[uint64]*ledgerEntry[V])}
}

// has reports whether a ledger exists for the control.
func (l *ledger[V]) has(id uint64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.entries[id]
	return ok
}

func (l *ledger[V]) get(id uint64, ctx string) (V, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var zero V
	e, ok := l.entries[id]
	if !ok {
		return zero, false
	}
	v, ok := e.values[ctx]
	return v, ok
}

func (l *ledger[V]) set(id uint64, ctx string, v V) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.entries[id]
	if !ok {
		e = &ledgerEntry[V]{values: make(map[string]V)}
		l.entries[id] = e
	}
	if _, exists := e.values[ctx]; !exists {
		e.order = append(e.order, ctx)
	}
	e.values[ctx] = v
}

// snapshot returns the control's contexts and values in insertion order.
func (l *ledger[V]) snapshot(id uint64) ([]string, []V) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.entries[id]
	if !ok {
		return nil, nil
	}
	names := make([]string, len(e.order))
	values := make([]V, len(e.order))
	for i, name := range e.order {
		names[i] = name
		values[i] = e.values[name]
	}
	return names, values
}

func (l *ledger[V]) drop(id uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.entries, id)
}

// sideTable is a per-control value table keyed by control ID.
type sideTable[V any] struct {
	mu sync.Mutex
	m  map[uint64]V
}

func (t *sideTable[V]) get(id uint64) (V, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	v, ok := t.m[id]
	return v, ok
}

func (t *sideTable[V]) set(id uint64, v V) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.m == nil {
		t.m = make(map[uint64]V)
	}
	t.m[id] = v
}

func (t *sideTable[V]) update(id uint64, fn func(V, bool) (V, bool)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	cur, ok := t.m[id]
	next, keep := fn(cur, ok)
	if !keep {
		delete(t.m, id)
		return
	}
	if t.m == nil {
		t.m = make(map[uint64]V)
	}
	t.m[id] = next
}

func (t *sideTable[V]) drop(id uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.m, id)
}

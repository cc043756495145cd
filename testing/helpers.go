// Package testing provides test utilities and helpers for formz services,
// forms, and coordinators.
package testing

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/zoobzio/formz"
)

// FieldConfig is a standard per-field configuration type for tests.
type FieldConfig struct {
	Label    string `yaml:"label" json:"label"`
	Hint     string `yaml:"hint" json:"hint"`
	ReadOnly bool   `yaml:"readOnly" json:"readOnly"`
}

// NewProfileGroup builds the group used across formz tests:
//
//	{name: "", email: "", age: 0, address: {city: ""}}
func NewProfileGroup(opts ...formz.NodeOption) *formz.Node {
	return formz.NewGroup([]formz.Member{
		formz.Named("name", formz.NewControl("")),
		formz.Named("email", formz.NewControl("")),
		formz.Named("age", formz.NewControl(0)),
		formz.Named("address", formz.NewGroup([]formz.Member{
			formz.Named("city", formz.NewControl("")),
		})),
	}, opts...)
}

// ProfileDefinition is a formz.Definition over NewProfileGroup with a
// label for every leaf.
type ProfileDefinition struct {
	formz.BaseDefinition[FieldConfig]
	// Options are applied to every built group, e.g. a scheduler.
	Options []formz.NodeOption
}

// BuildGroup implements formz.Definition.
func (d ProfileDefinition) BuildGroup(int) (*formz.Node, error) {
	return NewProfileGroup(d.Options...), nil
}

// FieldsConfig implements formz.Definition.
func (ProfileDefinition) FieldsConfig() *formz.Tree[formz.Setting[FieldConfig]] {
	return formz.NewConfig(
		formz.Const("name", FieldConfig{Label: "Name"}),
		formz.Const("email", FieldConfig{Label: "Email"}),
		formz.Const("age", FieldConfig{Label: "Age"}),
		formz.Section("address",
			formz.Const("city", FieldConfig{Label: "City"}),
		),
	)
}

// NewTestService creates a service over ProfileDefinition with a fresh
// MemoryStore. The service is closed when the test ends.
func NewTestService(t *testing.T, opts ...formz.NodeOption) *formz.Service[FieldConfig] {
	t.Helper()
	svc := formz.NewService[FieldConfig](ProfileDefinition{Options: opts}).
		Store(formz.NewMemoryStore())
	t.Cleanup(func() { _ = svc.Close(context.Background()) })
	return svc
}

// StartForm starts a form and closes it when the test ends.
func StartForm[C any](t *testing.T, f *formz.Form[C]) *formz.Form[C] {
	t.Helper()
	if err := f.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(func() { _ = f.Close(context.Background()) })
	return f
}

// WaitFor polls a condition until it returns true or timeout is reached.
// Returns true if the condition was met, false if timeout occurred.
func WaitFor(t *testing.T, timeout time.Duration, condition func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return false
}

// RequireStatus fails the test immediately if c is not in the expected status.
func RequireStatus(t *testing.T, c formz.Control, expected formz.Status) {
	t.Helper()
	if got := c.Status(); got != expected {
		t.Fatalf("expected status %s, got %s", expected, got)
	}
}

// RequireValue fails the test if the value at path under c differs from want.
func RequireValue(t *testing.T, c formz.Control, path string, want any) {
	t.Helper()
	target := formz.Find(c, path)
	if target == nil {
		t.Fatalf("no control at %q", path)
	}
	if diff := cmp.Diff(want, target.Value()); diff != "" {
		t.Fatalf("value at %q mismatch (-want +got):\n%s", path, diff)
	}
}

// RequireDisabledBy fails the test unless c is disabled by exactly the
// given contexts, in any order.
func RequireDisabledBy(t *testing.T, co *formz.Coordinator, c formz.Control, contexts ...string) {
	t.Helper()
	got := map[string]bool{}
	for _, name := range co.DisablingContexts(c) {
		got[name] = true
	}
	want := map[string]bool{}
	for _, name := range contexts {
		want[name] = true
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("disabling contexts mismatch (-want +got):\n%s", diff)
	}
	if len(contexts) > 0 && !c.Disabled() && !co.IsForceEnabled(c) {
		t.Fatalf("expected control disabled by %v", contexts)
	}
}

// Recorder collects everything emitted on a stream. It is safe for use
// from the goroutine the stream emits on and the test goroutine.
type Recorder[T any] struct {
	mu     sync.Mutex
	values []T
	sub    *formz.Subscription
}

// Record subscribes a new Recorder to s. It unsubscribes when the test ends.
func Record[T any](t *testing.T, s *formz.Stream[T]) *Recorder[T] {
	t.Helper()
	r := &Recorder[T]{}
	r.sub = s.Subscribe(func(v T) {
		r.mu.Lock()
		r.values = append(r.values, v)
		r.mu.Unlock()
	})
	t.Cleanup(r.sub.Unsubscribe)
	return r
}

// Values returns a copy of everything recorded so far.
func (r *Recorder[T]) Values() []T {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]T(nil), r.values...)
}

// Len returns the number of recorded values.
func (r *Recorder[T]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.values)
}

// Last returns the most recent value, or false when nothing was recorded.
func (r *Recorder[T]) Last() (T, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.values) == 0 {
		var zero T
		return zero, false
	}
	return r.values[len(r.values)-1], true
}

// Reset discards everything recorded so far.
func (r *Recorder[T]) Reset() {
	r.mu.Lock()
	r.values = nil
	r.mu.Unlock()
}

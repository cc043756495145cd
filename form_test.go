package formz

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

type queuedDefinition struct {
	BaseDefinition[string]
	q *Queue
}

func (d queuedDefinition) BuildGroup(int) (*Node, error) {
	return NewGroup([]Member{
		Named("name", NewControl("")),
		Named("age", NewControl(0)),
	}, WithScheduler(d.q)), nil
}

func startForm(t *testing.T, f *Form[string]) {
	t.Helper()
	if err := f.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(func() { _ = f.Close(context.Background()) })
}

func TestForm_StartSeedsFromStoredValues(t *testing.T) {
	ctx := context.Background()
	svc := NewService[string](profileDefinition{})
	_ = svc.SetFormValues(ctx, "profile", FormValues{RawValue: map[string]any{"name": "stored"}})

	f := NewForm(svc, "profile").InitialData(map[string]any{"name": "initial"})
	startForm(t, f)

	if got := f.Group().Get("name").Value(); got != "stored" {
		t.Errorf("name = %v, want stored", got)
	}
}

func TestForm_StartIgnoresStoreWhenNotSavingWithService(t *testing.T) {
	ctx := context.Background()
	svc := NewService[string](profileDefinition{})
	_ = svc.SetFormValues(ctx, "profile", FormValues{RawValue: map[string]any{"name": "stored"}})

	f := NewForm(svc, "profile").
		InitialData(map[string]any{"name": "initial"}).
		SaveWithService(false)
	startForm(t, f)

	if got := f.Group().Get("name").Value(); got != "initial" {
		t.Errorf("name = %v, want initial", got)
	}
}

func TestForm_StartTwice(t *testing.T) {
	f := NewForm(NewService[string](profileDefinition{}), "profile")
	startForm(t, f)
	if err := f.Start(context.Background()); !errors.Is(err, ErrAlreadyStarted) {
		t.Errorf("expected ErrAlreadyStarted, got %v", err)
	}
}

func TestForm_EmptyNameUsesDefaultID(t *testing.T) {
	svc := NewService[string](profileDefinition{}).DefaultComponentID("signup")
	if got := NewForm(svc, "").ComponentID(); got != "signup" {
		t.Errorf("ComponentID() = %q, want signup", got)
	}
	if got := NewForm(svc, "").Index(3).ComponentID(); got != "signup_3" {
		t.Errorf("ComponentID() = %q, want signup_3", got)
	}
}

func TestForm_ClassifiesValueChanges(t *testing.T) {
	svc := NewService[string](profileDefinition{})
	co := svc.Coordinator()
	f := NewForm(svc, "profile")
	startForm(t, f)

	var got []ValueChange
	f.ValueChanges().Subscribe(func(vc ValueChange) { got = append(got, vc) })
	g := f.Group()

	co.MarkAsUIChange(g)
	g.Get("name").SetValue("ada")
	g.Get("age").SetValue(36)
	co.MarkAsUIChange(g)
	g.Get("name").SetValue("grace")
	g.Get("name").SetValue("grace")

	if len(got) != 3 {
		t.Fatalf("expected 3 changes, got %d", len(got))
	}
	if !got[0].UIChange || !got[0].FirstUIChange || !got[0].DataChanged || !got[0].RawDataChanged {
		t.Errorf("first change = %+v, want first UI change", got[0])
	}
	if got[1].UIChange || got[1].FirstUIChange {
		t.Errorf("second change = %+v, want programmatic", got[1])
	}
	if !got[2].UIChange || got[2].FirstUIChange {
		t.Errorf("third change = %+v, want later UI change", got[2])
	}

	want := map[string]any{"name": "ada", "age": 0, "address": map[string]any{"city": ""}}
	if diff := cmp.Diff(want, got[1].Previous.RawValue); diff != "" {
		t.Errorf("previous mismatch (-want +got):\n%s", diff)
	}
	if !co.IsChangedByUIUnset(g) {
		t.Error("expected origin consumed by the form")
	}
}

func TestForm_DisabledControlChangesDataOnly(t *testing.T) {
	svc := NewService[string](profileDefinition{})
	f := NewForm(svc, "profile")
	startForm(t, f)

	var got []ValueChange
	f.ValueChanges().Subscribe(func(vc ValueChange) { got = append(got, vc) })

	if err := svc.Coordinator().DisableControl("readonly", f.Group().Get("age")); err != nil {
		t.Fatalf("DisableControl() error = %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 change, got %d", len(got))
	}
	if !got[0].DataChanged || got[0].RawDataChanged {
		t.Errorf("change = %+v, want data-only change", got[0])
	}
}

func TestForm_PersistsPerSaveTriggers(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	svc := NewService[string](profileDefinition{}).Store(store)
	co := svc.Coordinator()
	f := NewForm(svc, "profile")
	startForm(t, f)
	g := f.Group()

	g.Get("name").SetValue("code")
	if _, err := store.Get(ctx, "profile"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected programmatic change kept out of the store, got %v", err)
	}
	if v, ok := svc.FormValues()["profile"]; !ok || v.RawValue.(map[string]any)["name"] != "code" {
		t.Fatalf("expected programmatic change recorded in the service, got %+v", v)
	}

	co.MarkAsUIChange(g)
	g.Get("name").SetValue("user")
	data, err := store.Get(ctx, "profile")
	if err != nil {
		t.Fatalf("expected UI change stored, got %v", err)
	}
	var stored FormValues
	if err := json.Unmarshal(data, &stored); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if name := stored.RawValue.(map[string]any)["name"]; name != "user" {
		t.Errorf("stored name = %v, want user", name)
	}
}

func TestForm_SaveInStoreOverride(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	svc := NewService[string](profileDefinition{}).Store(store)
	f := NewForm(svc, "profile").SaveInStore(false)
	startForm(t, f)

	svc.Coordinator().MarkAsUIChange(f.Group())
	f.Group().Get("name").SetValue("user")
	if _, err := store.Get(ctx, "profile"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected nothing stored, got %v", err)
	}
	if _, ok := svc.GetFormValues(ctx, "profile"); !ok {
		t.Error("expected values recorded in the service")
	}
}

func TestForm_StatusChanges(t *testing.T) {
	svc := NewService[string](profileDefinition{})
	f := NewForm(svc, "profile").
		InitialValidators(map[string][]*Validator{"name": {Required}})

	var got []StatusChange
	f.StatusChanges().Subscribe(func(sc StatusChange) { got = append(got, sc) })
	startForm(t, f)
	f.Group().Get("name").SetValue("ada")
	f.Group().Get("age").SetValue(1)

	want := []StatusChange{
		{Previous: StatusInvalid, Current: StatusInvalid},
		{Previous: StatusInvalid, Current: StatusValid},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("status changes mismatch (-want +got):\n%s", diff)
	}
}

func TestForm_InvalidFields(t *testing.T) {
	svc := NewService[string](profileDefinition{})
	f := NewForm(svc, "profile").
		InitialValidators(map[string][]*Validator{"name": {Required}, "address.city": {Required}})

	var got [][]string
	f.InvalidFields().Subscribe(func(labels []string) { got = append(got, labels) })
	startForm(t, f)
	g := f.Group()

	svc.Coordinator().SetLabel(g.Get("address.city"), "City")
	g.Get("name").SetValue("ada")
	g.Get("address.city").SetValue("Paris")

	if len(got) != 3 {
		t.Fatalf("expected 3 emissions, got %v", got)
	}
	if diff := cmp.Diff([]string{"name", "city"}, got[0]); diff != "" {
		t.Errorf("initial labels mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"City"}, got[1]); diff != "" {
		t.Errorf("labels mismatch (-want +got):\n%s", diff)
	}
	if len(got[2]) != 0 {
		t.Errorf("expected no invalid fields, got %v", got[2])
	}
	if labels := f.InvalidLabels(); len(labels) != 0 {
		t.Errorf("InvalidLabels() = %v, want empty", labels)
	}
}

func TestForm_ReceivesRoutedPatches(t *testing.T) {
	svc := NewService[string](profileDefinition{}).DefaultComponentID("profile")
	f := NewForm(svc, "")
	other := NewForm(svc, "other")
	startForm(t, f)
	startForm(t, other)

	svc.PatchForm(map[string]any{"name": "patched"}, NoIndex)
	if got := f.Group().Get("name").Value(); got != "patched" {
		t.Errorf("name = %v, want patched", got)
	}
	if got := other.Group().Get("name").Value(); got != "" {
		t.Errorf("other name = %v, want untouched", got)
	}

	svc.PatchComponent("other", map[string]any{"age": 7})
	if got := other.Group().Get("age").Value(); got != 7 {
		t.Errorf("other age = %v, want 7", got)
	}
}

func TestForm_ClearToInitialData(t *testing.T) {
	svc := NewService[string](profileDefinition{})
	co := svc.Coordinator()
	f := NewForm(svc, "profile").
		InitialData(map[string]any{"name": "initial"}).
		SaveWithService(false)
	startForm(t, f)
	g := f.Group()
	g.Get("name").SetValue("edited")

	var got []ValueChange
	var sawReset bool
	f.ValueChanges().Subscribe(func(vc ValueChange) { got = append(got, vc) })
	g.ValueChanges().Subscribe(func(any) { sawReset = sawReset || co.IsResetChange(g) })

	if err := f.Clear(ClearRequest{}); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}
	if v := g.Get("name").Value(); v != "initial" {
		t.Errorf("name = %v, want initial", v)
	}
	if len(got) != 1 || !got[0].UIChange {
		t.Fatalf("expected one UI change, got %+v", got)
	}
	if !sawReset {
		t.Error("expected reset flag set while clearing")
	}
	if co.IsResetChange(g) {
		t.Error("expected reset flag cleared after Clear")
	}
}

func TestForm_SilentClear(t *testing.T) {
	svc := NewService[string](profileDefinition{})
	f := NewForm(svc, "profile").ClearWithInitialData(false)
	startForm(t, f)
	g := f.Group()
	g.Get("name").SetValue("edited")

	var got []ValueChange
	f.ValueChanges().Subscribe(func(vc ValueChange) { got = append(got, vc) })

	if err := f.Clear(ClearRequest{Silent: true}); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected silent clear, got %+v", got)
	}
	if v := g.Get("name").Value(); v != "" {
		t.Errorf("name = %v, want default", v)
	}

	g.Get("age").SetValue(5)
	if len(got) != 1 {
		t.Fatalf("expected 1 change, got %d", len(got))
	}
	if prev := got[0].Previous.RawValue.(map[string]any)["name"]; prev != "" {
		t.Errorf("previous name = %v, want the cleared value", prev)
	}
}

func TestForm_ClearWithValue(t *testing.T) {
	f := NewForm(NewService[string](profileDefinition{}), "profile")
	startForm(t, f)
	if err := f.Clear(ClearRequest{Value: map[string]any{"name": "given"}}); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}
	if v := f.Group().Get("name").Value(); v != "given" {
		t.Errorf("name = %v, want given", v)
	}
}

func TestForm_NotStarted(t *testing.T) {
	f := NewForm(NewService[string](profileDefinition{}), "profile")
	if err := f.Clear(ClearRequest{}); !errors.Is(err, ErrNotStarted) {
		t.Errorf("Clear() error = %v, want ErrNotStarted", err)
	}
	if _, err := f.Configure(nil, nil); !errors.Is(err, ErrNotStarted) {
		t.Errorf("Configure() error = %v, want ErrNotStarted", err)
	}
	if err := f.Close(context.Background()); !errors.Is(err, ErrNotStarted) {
		t.Errorf("Close() error = %v, want ErrNotStarted", err)
	}
	if v := f.Values(); v.Value != nil || v.RawValue != nil {
		t.Errorf("Values() = %+v, want zero", v)
	}
}

func TestForm_Configure(t *testing.T) {
	svc := NewService[string](profileDefinition{})
	f := NewForm(svc, "profile")
	startForm(t, f)

	e, err := f.Configure(NewConfig(Const("age", "Age")), nil)
	if err != nil {
		t.Fatalf("Configure() error = %v", err)
	}
	if f.Engine() != e {
		t.Error("expected engine attached")
	}
	want := map[string]any{"name": "Name", "age": "Age"}
	if diff := cmp.Diff(want, e.Change().ToMap()); diff != "" {
		t.Errorf("Change mismatch (-want +got):\n%s", diff)
	}
	if _, err := f.Configure(nil, nil); !errors.Is(err, ErrAlreadyStarted) {
		t.Errorf("second Configure() error = %v, want ErrAlreadyStarted", err)
	}

	if err := f.Close(context.Background()); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := e.Stop(context.Background()); err != nil {
		t.Errorf("expected engine already stopped, got %v", err)
	}
}

func TestForm_RelaysEvents(t *testing.T) {
	svc := NewService[string](profileDefinition{})
	f := NewForm(svc, "profile")
	startForm(t, f)

	var got []FormEvent
	f.Events().Subscribe(func(ev FormEvent) { got = append(got, ev) })
	svc.Events().Emit(context.Background(), f.Group().Get("name"), "blur", nil)

	if len(got) != 1 || got[0].ControlName != "name" || got[0].EventType != "blur" {
		t.Errorf("events = %+v, want one blur on name", got)
	}
}

func TestForm_CloseDetaches(t *testing.T) {
	ctx := context.Background()
	f := NewForm(NewService[string](profileDefinition{}), "profile")
	if err := f.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	var n int
	f.ValueChanges().Subscribe(func(ValueChange) { n++ })

	if err := f.Close(ctx); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := f.Close(ctx); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
	f.Group().Get("name").SetValue("after")
	if n != 0 {
		t.Errorf("expected no changes after Close, got %d", n)
	}
}

func TestForm_WatchAppliesRemoteWrites(t *testing.T) {
	q := NewQueue()
	store := NewMemoryStore()
	svc := NewService[string](queuedDefinition{q: q}).Store(store)
	f := NewForm(svc, "profile")
	startForm(t, f)
	q.Drain()

	var got []ValueChange
	f.ValueChanges().Subscribe(func(vc ValueChange) { got = append(got, vc) })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.Watch(ctx) }()

	data, _ := json.Marshal(FormValues{RawValue: map[string]any{"name": "remote", "age": 0}})
	if err := store.Set(context.Background(), "profile", data); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for q.Pending() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	q.Drain()

	if v := f.Group().Get("name").Value(); v != "remote" {
		t.Errorf("name = %v, want remote", v)
	}
	if len(got) != 1 || got[0].UIChange {
		t.Errorf("changes = %+v, want one programmatic change", got)
	}

	cancel()
	if err := <-done; err != nil {
		t.Errorf("Watch() error = %v", err)
	}
}

type plainStore struct{ Store }

func TestForm_WatchUnsupported(t *testing.T) {
	svc := NewService[string](profileDefinition{}).Store(plainStore{NewMemoryStore()})
	f := NewForm(svc, "profile")
	startForm(t, f)
	if err := f.Watch(context.Background()); !errors.Is(err, ErrWatchUnsupported) {
		t.Errorf("Watch() error = %v, want ErrWatchUnsupported", err)
	}
}

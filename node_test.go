package formz

import (
	"context"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func newProfile() *Node {
	return NewGroup([]Member{
		Named("name", NewControl("ada", WithValidators(Required))),
		Named("email", NewControl("")),
		Named("address", NewGroup([]Member{
			Named("city", NewControl("london")),
			Named("zip", NewControl("")),
		})),
		Named("tags", NewArray([]*Node{NewControl("a"), NewControl("b")})),
	})
}

func TestNode_GroupValue(t *testing.T) {
	g := newProfile()

	want := map[string]any{
		"name":    "ada",
		"email":   "",
		"address": map[string]any{"city": "london", "zip": ""},
		"tags":    []any{"a", "b"},
	}
	if diff := cmp.Diff(want, g.Value()); diff != "" {
		t.Errorf("Value() mismatch (-want +got):\n%s", diff)
	}
}

func TestNode_DisabledChildExcludedFromValue(t *testing.T) {
	g := newProfile()
	g.Get("email").Disable()

	v := g.Value().(map[string]any)
	if _, ok := v["email"]; ok {
		t.Error("expected disabled child to be excluded from Value")
	}
	raw := g.RawValue().(map[string]any)
	if _, ok := raw["email"]; !ok {
		t.Error("expected disabled child in RawValue")
	}
}

func TestNode_AllChildrenDisabledDisablesGroup(t *testing.T) {
	g := NewGroup([]Member{Named("a", NewControl(1)), Named("b", NewControl(2))})
	g.Get("a").Disable()
	if g.Disabled() {
		t.Fatal("group should stay enabled with one enabled child")
	}
	g.Get("b").Disable()
	if !g.Disabled() {
		t.Fatal("group should be disabled when every child is")
	}
	// A disabled group reports all children in Value.
	if diff := cmp.Diff(map[string]any{"a": 1, "b": 2}, g.Value()); diff != "" {
		t.Errorf("Value() mismatch (-want +got):\n%s", diff)
	}
}

func TestNode_StatusPropagates(t *testing.T) {
	g := newProfile()
	if !g.Valid() {
		t.Fatalf("expected VALID, got %s", g.Status())
	}

	g.Get("name").SetValue("")
	if !g.Get("name").Invalid() {
		t.Errorf("expected name INVALID, got %s", g.Get("name").Status())
	}
	if !g.Invalid() {
		t.Errorf("expected group INVALID, got %s", g.Status())
	}
	if !g.Get("name").Errors().Has("required") {
		t.Errorf("expected required error, got %v", g.Get("name").Errors())
	}
}

func TestNode_DisableClearsErrors(t *testing.T) {
	c := NewControl("", WithValidators(Required))
	if !c.Invalid() {
		t.Fatalf("expected INVALID, got %s", c.Status())
	}
	c.Disable()
	if c.Errors() != nil {
		t.Errorf("expected nil errors, got %v", c.Errors())
	}
	c.Enable()
	if !c.Invalid() {
		t.Errorf("expected INVALID after enable, got %s", c.Status())
	}
}

func TestNode_WithDisabled(t *testing.T) {
	c := NewControl("x", WithDisabled())
	if !c.Disabled() {
		t.Errorf("expected DISABLED, got %s", c.Status())
	}
}

func TestNode_ValueChangesEmitted(t *testing.T) {
	g := newProfile()
	var groupValues []any
	var leafValues []any
	g.ValueChanges().Subscribe(func(v any) { groupValues = append(groupValues, v) })
	g.Get("name").ValueChanges().Subscribe(func(v any) { leafValues = append(leafValues, v) })

	g.Get("name").SetValue("grace")
	g.Get("name").SetValue("hopper", Silent())
	g.Get("name").SetValue("lin", OnlySelf())

	if len(leafValues) != 2 {
		t.Errorf("expected 2 leaf emissions, got %d", len(leafValues))
	}
	if len(groupValues) != 1 {
		t.Errorf("expected 1 group emission, got %d", len(groupValues))
	}
}

func TestNode_DirtyAndTouchedPropagation(t *testing.T) {
	g := newProfile()
	city := g.Get("address.city")

	city.MarkAsDirty()
	if !g.Dirty() || !g.Get("address").Dirty() {
		t.Error("dirty should propagate to ancestors")
	}
	city.MarkAsPristine()
	if g.Dirty() {
		t.Error("pristine should be recomputed on ancestors")
	}

	city.MarkAsTouched(OnlySelf())
	if g.Touched() {
		t.Error("OnlySelf touch should not propagate")
	}
	city.MarkAsTouched()
	if !g.Touched() {
		t.Error("touch should propagate")
	}
	g.MarkAsUntouched()
	if city.Touched() {
		t.Error("untouched should propagate down")
	}
}

func TestNode_PatchValueKeepsMissing(t *testing.T) {
	g := newProfile()
	g.PatchValue(map[string]any{"address": map[string]any{"zip": "N1"}, "unknown": 1})

	if g.Get("address.city").Value() != "london" {
		t.Errorf("expected city untouched, got %v", g.Get("address.city").Value())
	}
	if g.Get("address.zip").Value() != "N1" {
		t.Errorf("expected zip N1, got %v", g.Get("address.zip").Value())
	}
}

func TestNode_SetValueClearsMissing(t *testing.T) {
	g := NewGroup([]Member{Named("a", NewControl(1)), Named("b", NewControl(2))})
	g.SetValue(map[string]any{"a": 5})

	if g.Get("a").Value() != 5 {
		t.Errorf("expected 5, got %v", g.Get("a").Value())
	}
	if g.Get("b").Value() != nil {
		t.Errorf("expected nil, got %v", g.Get("b").Value())
	}
}

func TestNode_Reset(t *testing.T) {
	c := NewControl("start", NonNullable())
	c.SetValue("changed")
	c.MarkAsDirty()
	c.MarkAsTouched()

	c.Reset(nil)
	if c.Value() != "start" {
		t.Errorf("expected non-nullable reset to initial value, got %v", c.Value())
	}
	if c.Dirty() || c.Touched() {
		t.Error("reset should clear dirty and touched")
	}

	g := newProfile()
	g.Get("name").MarkAsDirty()
	g.Reset(map[string]any{"name": "x"})
	if g.Dirty() {
		t.Error("group reset should clear dirty")
	}
	if g.Get("email").Value() != nil {
		t.Errorf("expected email reset to nil, got %v", g.Get("email").Value())
	}
}

func TestNode_ArrayOperations(t *testing.T) {
	arr := NewArray(nil)
	arr.Push(NewControl("a"))
	arr.Push(NewControl("c"))
	arr.Insert(1, NewControl("b"))

	if diff := cmp.Diff([]any{"a", "b", "c"}, arr.Value()); diff != "" {
		t.Errorf("Value() mismatch (-want +got):\n%s", diff)
	}

	b := arr.At(1)
	if ControlName(b) != "1" {
		t.Errorf("expected name '1', got %q", ControlName(b))
	}

	arr.RemoveAt(0)
	if arr.Len() != 2 || ControlName(b) != "0" {
		t.Errorf("expected b to move to index 0, got %q", ControlName(b))
	}
	if b.Parent() == nil {
		t.Error("expected parent to remain")
	}
}

func TestNode_GroupStructure(t *testing.T) {
	g := NewGroup(nil)
	g.AddControl("a", NewControl(1))
	g.AddControl("a", NewControl(2))
	if g.Get("a").Value() != 1 {
		t.Error("AddControl should keep existing child")
	}
	g.SetControl("a", NewControl(3))
	if g.Get("a").Value() != 3 {
		t.Error("SetControl should replace child")
	}
	g.RemoveControl("a")
	if g.Get("a") != nil || g.Len() != 0 {
		t.Error("RemoveControl should drop child")
	}
	if g.Child("missing") != nil {
		t.Error("Child should return a nil interface for missing names")
	}
}

func TestNode_AsyncValidatorInline(t *testing.T) {
	taken := NewAsyncValidator("taken", func(_ context.Context, c Control) Errors {
		if c.Value() == "admin" {
			return Errors{"taken": true}
		}
		return nil
	})
	c := NewControl("admin", WithAsyncValidators(taken))
	if !c.Invalid() {
		t.Errorf("expected INVALID, got %s", c.Status())
	}
	c.SetValue("guest")
	if !c.Valid() {
		t.Errorf("expected VALID, got %s", c.Status())
	}
}

func TestNode_AsyncValidatorScheduled(t *testing.T) {
	q := NewQueue()
	release := make(chan struct{})
	slow := NewAsyncValidator("slow", func(ctx context.Context, c Control) Errors {
		<-release
		return Errors{"slow": true}
	})

	g := NewGroup([]Member{Named("a", NewControl("x"))}, WithScheduler(q))
	g.Get("a").AddAsyncValidators(slow)
	g.Get("a").UpdateValueAndValidity()

	if !g.Get("a").Pending() || !g.Pending() {
		t.Fatalf("expected PENDING, got %s / %s", g.Get("a").Status(), g.Status())
	}

	close(release)
	deadline := time.Now().Add(2 * time.Second)
	for q.Pending() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	q.Drain()

	if !g.Get("a").Invalid() || !g.Invalid() {
		t.Errorf("expected INVALID, got %s / %s", g.Get("a").Status(), g.Status())
	}
}

func TestNode_SetErrorsDoesNotRevalidate(t *testing.T) {
	c := NewControl("x", WithValidators(Required))
	c.SetErrors(Errors{"server": "taken"})
	if !c.Invalid() || !c.Errors().Has("server") {
		t.Errorf("expected server error, got %v", c.Errors())
	}
	c.SetErrors(nil)
	if !c.Valid() {
		t.Errorf("expected VALID, got %s", c.Status())
	}
}

func TestNode_ModelChangeSkippedFromView(t *testing.T) {
	c := NewControl("")
	var writes []any
	c.OnModelChange(func(v any) { writes = append(writes, v) })

	c.SetValue("model")
	c.SetValue("view", FromView())

	if len(writes) != 1 || writes[0] != "model" {
		t.Errorf("expected one model write, got %v", writes)
	}
}

func TestPathAndFind(t *testing.T) {
	g := newProfile()
	tag := g.Get("tags.1")
	if tag == nil {
		t.Fatal("expected tags.1")
	}
	if p := Path(tag); p != "tags.1" {
		t.Errorf("expected 'tags.1', got %q", p)
	}
	if Find(g, "address.city") == nil {
		t.Error("expected to find address.city")
	}
	if Find(g, "address.nope") != nil {
		t.Error("expected nil for missing path")
	}
	if ControlName(g) != "" {
		t.Error("root should have no name")
	}
}

func TestMarkAllAsTouched(t *testing.T) {
	g := newProfile()
	MarkAllAsTouched(g)

	Walk(g, func(c Control) {
		if c.Kind() == KindLeaf && !c.Touched() {
			t.Errorf("leaf %s not touched", Path(c))
		}
	})
	if g.Touched() {
		t.Error("MarkAllAsTouched should not touch containers")
	}
}

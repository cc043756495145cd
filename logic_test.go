package formz

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestFieldLogic_For(t *testing.T) {
	var got []Phase
	rec := func(p Phase) LogicFunc[int] {
		return func(context.Context, LogicArgs[int]) LogicState {
			got = append(got, p)
			return Continue
		}
	}
	l := FieldLogic[int]{
		Init:        rec(PhaseInit),
		Config:      rec(PhaseConfig),
		Value:       rec(PhaseValue),
		Recalculate: rec(PhaseRecalculate),
		Destroy:     rec(PhaseDestroy),
	}
	phases := []Phase{PhaseInit, PhaseConfig, PhaseValue, PhaseRecalculate, PhaseDestroy}
	for _, p := range phases {
		l.For(p)(context.Background(), LogicArgs[int]{})
	}
	if diff := cmp.Diff(phases, got); diff != "" {
		t.Errorf("For mismatch (-want +got):\n%s", diff)
	}
	if l.For(Phase(99)) != nil {
		t.Error("expected nil for unknown phase")
	}
}

func TestMergeLogic_PhaseByPhase(t *testing.T) {
	var ran []string
	mark := func(s string) LogicFunc[int] {
		return func(context.Context, LogicArgs[int]) LogicState {
			ran = append(ran, s)
			return Continue
		}
	}
	base := NewLogic(
		Logic("a", FieldLogic[int]{Init: mark("base-init"), Value: mark("base-value")}),
		Logic("b", FieldLogic[int]{Value: mark("b-value")}),
	)
	over := NewLogic(
		Logic("a", FieldLogic[int]{Value: mark("over-value")}),
		Logic("c", FieldLogic[int]{Destroy: mark("c-destroy")}),
	)

	merged := MergeLogic(base, over)
	if diff := cmp.Diff([]string{"a", "b", "c"}, merged.Names()); diff != "" {
		t.Fatalf("Names mismatch (-want +got):\n%s", diff)
	}
	a, _ := merged.Lookup("a")
	a.Init(context.Background(), LogicArgs[int]{})
	a.Value(context.Background(), LogicArgs[int]{})
	if diff := cmp.Diff([]string{"base-init", "over-value"}, ran); diff != "" {
		t.Errorf("merged callbacks mismatch (-want +got):\n%s", diff)
	}
}

func TestRunPhase_SkipsMissingFields(t *testing.T) {
	form := NewGroup([]Member{Named("a", NewControl(1))})
	var paths []string
	logic := NewLogic(
		Logic("missing", FieldLogic[int]{Value: func(context.Context, LogicArgs[int]) LogicState {
			t.Error("logic for a missing field must not run")
			return Continue
		}}),
		Logic("a", FieldLogic[int]{Value: func(_ context.Context, a LogicArgs[int]) LogicState {
			paths = append(paths, a.Path)
			if a.Field.Value() != 1 {
				t.Errorf("Field value = %v", a.Field.Value())
			}
			return Continue
		}}),
	)

	res, err := runPhase(context.Background(), logic, LogicArgs[int]{
		Form:   form,
		Phase:  PhaseValue,
		Config: Group[int](),
	})
	if err != nil {
		t.Fatalf("runPhase() error = %v", err)
	}
	if res.ran != 1 || res.stoppedAt != "" {
		t.Errorf("result = %+v", res)
	}
	if diff := cmp.Diff([]string{"a"}, paths); diff != "" {
		t.Errorf("paths mismatch (-want +got):\n%s", diff)
	}
}

func TestRunPhase_Stop(t *testing.T) {
	form := NewGroup([]Member{
		Named("a", NewControl(1)),
		Named("b", NewControl(2)),
	})
	logic := NewLogic(
		Logic("a", FieldLogic[int]{Config: func(context.Context, LogicArgs[int]) LogicState { return Stop }}),
		Logic("b", FieldLogic[int]{Config: func(context.Context, LogicArgs[int]) LogicState {
			t.Error("b must not run after a stopped the phase")
			return Continue
		}}),
	)

	res, err := runPhase(context.Background(), logic, LogicArgs[int]{
		Form:   form,
		Phase:  PhaseConfig,
		Config: Group[int](),
	})
	if err != nil {
		t.Fatalf("runPhase() error = %v", err)
	}
	if res.stoppedAt != "a" {
		t.Errorf("stoppedAt = %q, want a", res.stoppedAt)
	}
}

func TestRunPhase_InitNeedsNoConfig(t *testing.T) {
	form := NewGroup([]Member{Named("a", NewControl(1))})
	called := false
	logic := NewLogic(Logic("a", FieldLogic[int]{Init: func(context.Context, LogicArgs[int]) LogicState {
		called = true
		return Continue
	}}))

	if _, err := runPhase(context.Background(), logic, LogicArgs[int]{Form: form, Phase: PhaseInit}); err != nil {
		t.Fatalf("runPhase() error = %v", err)
	}
	if !called {
		t.Error("expected init logic to run")
	}

	_, err := runPhase(context.Background(), logic, LogicArgs[int]{Form: form, Phase: PhaseDestroy})
	if !errors.Is(err, ErrMissingConfigSnapshot) {
		t.Errorf("expected ErrMissingConfigSnapshot, got %v", err)
	}
}

func TestLogicArgs_FieldConfig(t *testing.T) {
	a := LogicArgs[string]{
		Path:   "address.city",
		Config: Group(At("address", Group(At("city", Leaf("City"))))),
	}
	if v, ok := a.FieldConfig(); !ok || v != "City" {
		t.Errorf("FieldConfig() = %q, %v", v, ok)
	}
}

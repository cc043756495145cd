package formz

import "testing"

func TestStatus_String(t *testing.T) {
	cases := map[Status]string{
		StatusValid:    "VALID",
		StatusInvalid:  "INVALID",
		StatusPending:  "PENDING",
		StatusDisabled: "DISABLED",
		Status(99):     "UNKNOWN",
	}
	for s, want := range cases {
		if got := s.String(); got != want {
			t.Errorf("Status(%d).String() = %q, want %q", s, got, want)
		}
	}
}

func TestStatus_Values(t *testing.T) {
	// Verify iota ordering
	if StatusValid != 0 {
		t.Errorf("expected StatusValid=0, got %d", StatusValid)
	}
	if StatusDisabled != 3 {
		t.Errorf("expected StatusDisabled=3, got %d", StatusDisabled)
	}
}

func TestOrigin_String(t *testing.T) {
	if s := OriginUnset.String(); s != "unset" {
		t.Errorf("expected 'unset', got %q", s)
	}
	if s := OriginUI.String(); s != "ui" {
		t.Errorf("expected 'ui', got %q", s)
	}
	if s := OriginProgrammatic.String(); s != "programmatic" {
		t.Errorf("expected 'programmatic', got %q", s)
	}
	if s := Origin(42).String(); s != "unknown" {
		t.Errorf("expected 'unknown', got %q", s)
	}
}

func TestPhase_String(t *testing.T) {
	phases := []Phase{PhaseInit, PhaseConfig, PhaseValue, PhaseRecalculate, PhaseDestroy}
	want := []string{"init", "config", "value", "recalculate", "destroy"}
	for i, p := range phases {
		if got := p.String(); got != want[i] {
			t.Errorf("phase %d: expected %q, got %q", i, want[i], got)
		}
	}
	if s := Phase(-1).String(); s != "unknown" {
		t.Errorf("expected 'unknown', got %q", s)
	}
}

func TestKind_String(t *testing.T) {
	if KindLeaf.String() != "leaf" || KindGroup.String() != "group" || KindArray.String() != "array" {
		t.Error("unexpected kind names")
	}
	if Kind(9).String() != "unknown" {
		t.Errorf("expected 'unknown', got %q", Kind(9).String())
	}
}

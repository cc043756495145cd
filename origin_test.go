package formz

import "testing"

func TestOriginTracker_NonUIDoesNotOverrideUI(t *testing.T) {
	tr := NewOriginTracker()
	c := NewControl("")

	tr.MarkAsNonUIChange(c)
	tr.MarkAsNonUIChange(c)
	if tr.IsDataChangedByUI(c) {
		t.Fatal("expected programmatic origin")
	}

	tr.ResetUIChange(c)
	tr.MarkAsUIChange(c)
	tr.MarkAsNonUIChange(c)
	if !tr.IsDataChangedByUI(c) {
		t.Fatal("expected UI mark to survive a non-UI mark")
	}
}

func TestOriginTracker_NormalizesToRoot(t *testing.T) {
	tr := NewOriginTracker()
	g := NewGroup([]Member{
		Named("name", NewControl("")),
		Named("email", NewControl("")),
	})

	tr.MarkAsUIChange(g.Get("name"))
	if !tr.IsDataChangedByUI(g.Get("email")) {
		t.Error("expected sibling to observe the root flag")
	}
	if !tr.IsDataChangedByUI(g) {
		t.Error("expected root to observe the flag")
	}
	tr.ResetUIChange(g.Get("email"))
	if !tr.IsChangedByUIUnset(g) {
		t.Errorf("expected unset, got %s", tr.Origin(g))
	}
}

func TestOriginTracker_ResetFlag(t *testing.T) {
	tr := NewOriginTracker()
	g := NewGroup([]Member{Named("a", NewControl(1))})

	if tr.IsResetChange(g) {
		t.Fatal("expected no reset flag")
	}
	tr.MarkAsResetChange(g.Get("a"))
	if !tr.IsResetChange(g) {
		t.Fatal("expected reset flag on root")
	}
	tr.ResetResetChange(g)
	if tr.IsResetChange(g.Get("a")) {
		t.Fatal("expected reset flag cleared")
	}
}

func TestOriginTracker_NilControl(t *testing.T) {
	tr := NewOriginTracker()
	tr.MarkAsUIChange(nil)
	tr.MarkAsNonUIChange(nil)
	tr.ResetUIChange(nil)
	if tr.IsDataChangedByUI(nil) {
		t.Error("expected false for nil")
	}
	if !tr.IsChangedByUIUnset(nil) {
		t.Error("expected unset for nil")
	}
}

func TestOriginTracker_Forget(t *testing.T) {
	tr := NewOriginTracker()
	c := NewControl("")
	tr.MarkAsUIChange(c)
	tr.MarkAsResetChange(c)
	tr.Forget(c)
	if !tr.IsChangedByUIUnset(c) || tr.IsResetChange(c) {
		t.Error("expected flags dropped")
	}
}

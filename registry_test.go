package formz

import "testing"

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	var recalc, reload int
	sub := r.OnRecalculate(func() { recalc++ })
	r.OnRecalculate(func() { recalc++ })
	r.OnReload(func() { reload++ })

	if r.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", r.Len())
	}
	r.RecalculateConfig()
	r.ReloadLogic()
	if recalc != 2 || reload != 1 {
		t.Fatalf("recalc=%d reload=%d", recalc, reload)
	}

	sub.Unsubscribe()
	r.RecalculateConfig()
	if recalc != 3 {
		t.Errorf("recalc = %d, want 3 after unsubscribe", recalc)
	}

	r.Clear()
	r.RecalculateConfig()
	r.ReloadLogic()
	if recalc != 3 || reload != 1 || r.Len() != 0 {
		t.Error("expected no hooks after Clear")
	}
}

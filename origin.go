package formz

// OriginTracker records whether the latest change to a form tree came from
// the UI or from code. Every call normalizes to the control's root, so any
// control in a tree reads and writes the same flag.
type OriginTracker struct {
	origins sideTable[Origin]
	resets  sideTable[bool]
}

// NewOriginTracker creates an empty tracker.
func NewOriginTracker() *OriginTracker {
	return &OriginTracker{}
}

func rootID(c Control) (uint64, bool) {
	if c == nil {
		return 0, false
	}
	if r := c.Root(); r != nil {
		return r.ID(), true
	}
	return c.ID(), true
}

// MarkAsUIChange attributes the pending change to the UI.
func (t *OriginTracker) MarkAsUIChange(c Control) {
	if id, ok := rootID(c); ok {
		t.origins.set(id, OriginUI)
	}
}

// MarkAsNonUIChange attributes the pending change to code. It never
// overrides a flag that is already set.
func (t *OriginTracker) MarkAsNonUIChange(c Control) {
	id, ok := rootID(c)
	if !ok {
		return
	}
	t.origins.update(id, func(cur Origin, ok bool) (Origin, bool) {
		if ok && cur != OriginUnset {
			return cur, true
		}
		return OriginProgrammatic, true
	})
}

// ResetUIChange returns the flag to unset.
func (t *OriginTracker) ResetUIChange(c Control) {
	if id, ok := rootID(c); ok {
		t.origins.drop(id)
	}
}

// Origin returns the current flag for c's tree.
func (t *OriginTracker) Origin(c Control) Origin {
	id, ok := rootID(c)
	if !ok {
		return OriginUnset
	}
	o, _ := t.origins.get(id)
	return o
}

// IsDataChangedByUI reports whether the pending change came from the UI.
func (t *OriginTracker) IsDataChangedByUI(c Control) bool {
	return t.Origin(c) == OriginUI
}

// IsChangedByUIUnset reports whether no origin has been recorded.
func (t *OriginTracker) IsChangedByUIUnset(c Control) bool {
	return t.Origin(c) == OriginUnset
}

// MarkAsResetChange flags the next model write on c's tree as a reset.
func (t *OriginTracker) MarkAsResetChange(c Control) {
	if id, ok := rootID(c); ok {
		t.resets.set(id, true)
	}
}

// ResetResetChange clears the reset flag.
func (t *OriginTracker) ResetResetChange(c Control) {
	if id, ok := rootID(c); ok {
		t.resets.drop(id)
	}
}

// IsResetChange reports whether the reset flag is set for c's tree.
func (t *OriginTracker) IsResetChange(c Control) bool {
	id, ok := rootID(c)
	if !ok {
		return false
	}
	v, _ := t.resets.get(id)
	return v
}

// Forget drops the flags recorded for c's tree.
func (t *OriginTracker) Forget(c Control) {
	if id, ok := rootID(c); ok {
		t.origins.drop(id)
		t.resets.drop(id)
	}
}

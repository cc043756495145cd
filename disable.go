package formz

import (
	"context"

	"github.com/zoobzio/capitan"
)

// Disabler coordinates disable state asserted by independent contexts.
// A control is disabled while any context, including UnknownContext,
// asserts disable, unless a force-enable override is active.
type Disabler struct {
	ledger *ledger[bool]
	forced sideTable[bool]
}

// NewDisabler creates a Disabler with empty side tables.
func NewDisabler() *Disabler {
	return &Disabler{ledger: newLedger[bool]()}
}

// Disable asserts disable for name on c. A control that is already disabled
// with no recorded context has that state attributed to UnknownContext
// first, so it is not lost when name later releases.
func (d *Disabler) Disable(name string, c Control, opts ...Option) error {
	if name == UnknownContext {
		return &InvalidContextError{Context: name}
	}
	if c == nil {
		return nil
	}
	id := c.ID()
	wasDisabled := c.Disabled()
	if wasDisabled && len(d.blocking(id)) == 0 {
		d.ledger.set(id, UnknownContext, true)
	}
	d.ledger.set(id, name, true)

	capitan.Emit(context.Background(), ContextDisabled,
		KeyContext.Field(name),
		KeyControl.Field(Path(c)),
	)

	if d.IsForceEnabled(c) || wasDisabled {
		return nil
	}
	c.Disable(opts...)
	return nil
}

// Enable releases name's disable assertion on c. The control is enabled
// only when no other context still asserts disable. Force, or an already
// enabled control, also clears UnknownContext.
func (d *Disabler) Enable(name string, c Control, opts ...Option) {
	if c == nil {
		return
	}
	id := c.ID()
	if !d.ledger.has(id) && c.Disabled() {
		d.ledger.set(id, UnknownContext, true)
	}
	d.ledger.set(id, name, false)

	o := resolveOptions(opts)
	if o.force || c.Enabled() {
		d.ledger.set(id, UnknownContext, false)
	}

	capitan.Emit(context.Background(), ContextEnabled,
		KeyContext.Field(name),
		KeyControl.Field(Path(c)),
	)

	if len(d.blocking(id)) > 0 {
		return
	}
	c.Enable(opts...)
}

// Switch disables for name when disable is true and enables otherwise.
func (d *Disabler) Switch(disable bool, name string, c Control, opts ...Option) error {
	if disable {
		return d.Disable(name, c, opts...)
	}
	if name == UnknownContext {
		return &InvalidContextError{Context: name}
	}
	d.Enable(name, c, opts...)
	return nil
}

// ForceEnable enables c immediately and keeps it enabled regardless of
// blocking contexts until ResetForceEnable.
func (d *Disabler) ForceEnable(c Control, opts ...Option) {
	if c == nil {
		return
	}
	d.forced.set(c.ID(), true)
	capitan.Emit(context.Background(), ControlForceEnabled,
		KeyControl.Field(Path(c)),
	)
	c.Enable(opts...)
}

// ResetForceEnable clears the override and disables c again if a context
// still asserts disable.
func (d *Disabler) ResetForceEnable(c Control, opts ...Option) {
	if c == nil {
		return
	}
	id := c.ID()
	d.forced.drop(id)
	capitan.Emit(context.Background(), ControlForceEnableReset,
		KeyControl.Field(Path(c)),
	)
	if len(d.blocking(id)) > 0 {
		c.Disable(opts...)
	}
}

// IsForceEnabled reports whether the override is active for c.
func (d *Disabler) IsForceEnabled(c Control) bool {
	if c == nil {
		return false
	}
	v, _ := d.forced.get(c.ID())
	return v
}

// DisablingContexts returns the contexts currently asserting disable on c,
// in the order they were first recorded.
func (d *Disabler) DisablingContexts(c Control) []string {
	if c == nil {
		return nil
	}
	return d.blocking(c.ID())
}

// Forget drops all recorded state for c.
func (d *Disabler) Forget(c Control) {
	if c == nil {
		return
	}
	d.ledger.drop(c.ID())
	d.forced.drop(c.ID())
}

func (d *Disabler) blocking(id uint64) []string {
	names, values := d.ledger.snapshot(id)
	var out []string
	for i, name := range names {
		if values[i] {
			out = append(out, name)
		}
	}
	return out
}

package formz

import (
	"context"

	"github.com/zoobzio/capitan"
)

// validatorOps adapts the sync and async validator sets of a control.
type validatorOps[V comparable] struct {
	has    func(Control, V) bool
	add    func(Control, ...V)
	remove func(Control, ...V)
}

var syncOps = validatorOps[*Validator]{
	has:    func(c Control, v *Validator) bool { return c.HasValidator(v) },
	add:    func(c Control, vs ...*Validator) { c.AddValidators(vs...) },
	remove: func(c Control, vs ...*Validator) { c.RemoveValidators(vs...) },
}

var asyncOps = validatorOps[*AsyncValidator]{
	has:    func(c Control, v *AsyncValidator) bool { return c.HasAsyncValidator(v) },
	add:    func(c Control, vs ...*AsyncValidator) { c.AddAsyncValidators(vs...) },
	remove: func(c Control, vs ...*AsyncValidator) { c.RemoveAsyncValidators(vs...) },
}

// ValidatorContexts coordinates validators asserted by independent
// contexts. A validator stays active while any context asserts it, and
// validators a control carried before any context touched them are kept
// unless removed with Force.
//
// An empty context name defaults to the control's name in its parent.
type ValidatorContexts[V comparable] struct {
	ops      validatorOps[V]
	ledger   *ledger[[]V]
	existing sideTable[[]V]
}

// NewValidatorContexts coordinates sync validators.
func NewValidatorContexts() *ValidatorContexts[*Validator] {
	return &ValidatorContexts[*Validator]{ops: syncOps, ledger: newLedger[[]*Validator]()}
}

// NewAsyncValidatorContexts coordinates async validators.
func NewAsyncValidatorContexts() *ValidatorContexts[*AsyncValidator] {
	return &ValidatorContexts[*AsyncValidator]{ops: asyncOps, ledger: newLedger[[]*AsyncValidator]()}
}

// Add asserts vs under name, replacing whatever name asserted before. An
// empty vs clears what name asserted.
// Validators name no longer asserts are removed from c unless another
// context asserts them or they predate the coordinator. Validators c
// already carried outside any context are recorded as pre-existing.
func (vc *ValidatorContexts[V]) Add(name string, c Control, vs []V, opts ...Option) error {
	if name == UnknownContext {
		return &InvalidContextError{Context: name}
	}
	if c == nil {
		return nil
	}
	if name == "" {
		name = ControlName(c)
	}
	id := c.ID()

	prev, hadPrev := vc.ledger.get(id, name)
	if len(vs) == 0 && !hadPrev {
		return nil
	}

	for _, v := range vs {
		if vc.ops.has(c, v) && len(vc.assertedBy(id, v, "")) == 0 {
			vc.markExisting(id, v)
		}
	}

	next := make([]V, len(vs))
	copy(next, vs)
	vc.ledger.set(id, name, next)
	vc.ops.add(c, vs...)

	var dropped []V
	for _, v := range prev {
		if containsRef(next, v) || vc.isExisting(id, v) {
			continue
		}
		if len(vc.assertedBy(id, v, name)) > 0 {
			continue
		}
		dropped = append(dropped, v)
	}
	if len(dropped) > 0 {
		vc.ops.remove(c, dropped...)
	}

	capitan.Emit(context.Background(), ValidatorsAdded,
		KeyContext.Field(name),
		KeyControl.Field(Path(c)),
		KeyCount.Field(len(vs)),
	)

	c.UpdateValueAndValidity(opts...)
	return nil
}

// Remove releases validators asserted by name. Without vs it releases
// everything name asserts. Inactive validators are skipped, pre-existing
// ones are kept unless Force is given, and validators still asserted by
// another context stay active. Removing from an unknown context is a
// silent no-op.
func (vc *ValidatorContexts[V]) Remove(name string, c Control, vs []V, opts ...Option) error {
	if name == UnknownContext {
		return &InvalidContextError{Context: name}
	}
	if c == nil {
		return nil
	}
	if name == "" {
		name = ControlName(c)
	}
	id := c.ID()
	o := resolveOptions(opts)

	hasLedger := vc.ledger.has(id)
	own, hasOwn := vc.ledger.get(id, name)

	candidates := vs
	if len(candidates) == 0 {
		candidates = own
	}
	if len(candidates) == 0 {
		return nil
	}

	if !hasLedger {
		for _, v := range candidates {
			if vc.ops.has(c, v) {
				vc.markExisting(id, v)
			}
		}
	}
	vc.pruneExisting(c)

	var removal []V
	for _, v := range candidates {
		if !vc.ops.has(c, v) {
			continue
		}
		if !o.force && vc.isExisting(id, v) {
			continue
		}
		if hasLedger && !o.force && !containsRef(own, v) {
			continue
		}
		if len(vc.assertedBy(id, v, name)) > 0 {
			continue
		}
		removal = append(removal, v)
	}

	if hasOwn {
		kept := make([]V, 0, len(own))
		for _, v := range own {
			if !containsRef(candidates, v) {
				kept = append(kept, v)
			}
		}
		vc.ledger.set(id, name, kept)
	}

	if len(removal) == 0 {
		return nil
	}
	if o.force {
		vc.unmarkExisting(id, removal)
	}
	vc.ops.remove(c, removal...)

	capitan.Emit(context.Background(), ValidatorsRemoved,
		KeyContext.Field(name),
		KeyControl.Field(Path(c)),
		KeyCount.Field(len(removal)),
	)

	c.UpdateValueAndValidity(opts...)
	return nil
}

// Switch adds vs under name when add is true and removes them otherwise.
func (vc *ValidatorContexts[V]) Switch(add bool, name string, c Control, vs []V, opts ...Option) error {
	if add {
		return vc.Add(name, c, vs, opts...)
	}
	return vc.Remove(name, c, vs, opts...)
}

// Contexts returns the contexts currently asserting v on c, in the order
// they were first recorded.
func (vc *ValidatorContexts[V]) Contexts(c Control, v V) []string {
	if c == nil {
		return nil
	}
	return vc.assertedBy(c.ID(), v, "")
}

// Existing returns the validators recorded as pre-existing on c.
func (vc *ValidatorContexts[V]) Existing(c Control) []V {
	if c == nil {
		return nil
	}
	list, _ := vc.existing.get(c.ID())
	out := make([]V, len(list))
	copy(out, list)
	return out
}

// Forget drops all recorded state for c.
func (vc *ValidatorContexts[V]) Forget(c Control) {
	if c == nil {
		return
	}
	vc.ledger.drop(c.ID())
	vc.existing.drop(c.ID())
}

// assertedBy lists contexts other than skip whose list contains v.
func (vc *ValidatorContexts[V]) assertedBy(id uint64, v V, skip string) []string {
	names, lists := vc.ledger.snapshot(id)
	var out []string
	for i, name := range names {
		if name == skip {
			continue
		}
		if containsRef(lists[i], v) {
			out = append(out, name)
		}
	}
	return out
}

func (vc *ValidatorContexts[V]) isExisting(id uint64, v V) bool {
	list, _ := vc.existing.get(id)
	return containsRef(list, v)
}

func (vc *ValidatorContexts[V]) markExisting(id uint64, v V) {
	vc.existing.update(id, func(list []V, _ bool) ([]V, bool) {
		if containsRef(list, v) {
			return list, true
		}
		return append(append([]V(nil), list...), v), true
	})
}

func (vc *ValidatorContexts[V]) unmarkExisting(id uint64, vs []V) {
	vc.existing.update(id, func(list []V, ok bool) ([]V, bool) {
		if !ok {
			return nil, false
		}
		kept := make([]V, 0, len(list))
		for _, existing := range list {
			if !containsRef(vs, existing) {
				kept = append(kept, existing)
			}
		}
		return kept, len(kept) > 0
	})
}

// pruneExisting forgets pre-existing validators no longer on c.
func (vc *ValidatorContexts[V]) pruneExisting(c Control) {
	id := c.ID()
	list, ok := vc.existing.get(id)
	if !ok {
		return
	}
	kept := make([]V, 0, len(list))
	for _, v := range list {
		if vc.ops.has(c, v) {
			kept = append(kept, v)
		}
	}
	if len(kept) == 0 {
		vc.existing.drop(id)
		return
	}
	vc.existing.set(id, kept)
}
